package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusdash/nexus/internal/models"
	"gorm.io/gorm"
)

// BudgetStore reads budgets and the spend accumulated against them.
type BudgetStore interface {
	ActiveBudgets(ctx context.Context, userID string) ([]models.Budget, error)
	BudgetUsers(ctx context.Context) ([]string, error)
	PeriodSpend(ctx context.Context, budget models.Budget, now time.Time) (float64, error)
}

type GormBudgetStore struct {
	db *gorm.DB
}

func NewGormBudgetStore(db *gorm.DB) *GormBudgetStore {
	return &GormBudgetStore{db: db}
}

func (s *GormBudgetStore) ActiveBudgets(ctx context.Context, userID string) ([]models.Budget, error) {
	var budgets []models.Budget
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND amount > 0", userID, true).
		Order("created_at").
		Find(&budgets).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch budgets: %w", err)
	}
	return budgets, nil
}

func (s *GormBudgetStore) BudgetUsers(ctx context.Context) ([]string, error) {
	var users []string
	if err := s.db.WithContext(ctx).Model(&models.Budget{}).
		Distinct().
		Where("is_active = ?", true).
		Order("user_id").
		Pluck("user_id", &users).Error; err != nil {
		return nil, fmt.Errorf("failed to list budget owners: %w", err)
	}
	return users, nil
}

func (s *GormBudgetStore) PeriodSpend(ctx context.Context, budget models.Budget, now time.Time) (float64, error) {
	query := s.db.WithContext(ctx).Model(&models.APICall{}).
		Select("COALESCE(SUM(cost), 0)").
		Where("user_id = ? AND timestamp >= ? AND timestamp <= ?", budget.UserID, budget.PeriodStart(now), now)
	if budget.ProviderID != "" {
		query = query.Where("provider_id = ?", budget.ProviderID)
	}

	var spent float64
	if err := query.Scan(&spent).Error; err != nil {
		return 0, fmt.Errorf("failed to sum spend for budget %s: %w", budget.ID, err)
	}
	return spent, nil
}
