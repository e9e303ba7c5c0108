package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusdash/nexus/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lock provides per-job mutual exclusion.
type Lock interface {
	TryLock(ctx context.Context, name string) (bool, error)
	Unlock(ctx context.Context, name string) error
}

// LocalLock excludes concurrent runs inside one process.
type LocalLock struct {
	flags sync.Map // name -> *atomic.Bool
}

func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

func (l *LocalLock) flag(name string) *atomic.Bool {
	v, _ := l.flags.LoadOrStore(name, new(atomic.Bool))
	return v.(*atomic.Bool)
}

func (l *LocalLock) TryLock(_ context.Context, name string) (bool, error) {
	return l.flag(name).CompareAndSwap(false, true), nil
}

func (l *LocalLock) Unlock(_ context.Context, name string) error {
	l.flag(name).Store(false)
	return nil
}

// DBLock holds a lease row in job_locks so that several instances sharing a
// database run each job at most once at a time. A lease left behind by a
// crashed instance becomes available once it expires.
type DBLock struct {
	db    *gorm.DB
	owner string
	ttl   time.Duration
	now   func() time.Time
}

func NewDBLock(db *gorm.DB, owner string, ttl time.Duration) *DBLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DBLock{
		db:    db,
		owner: owner,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (l *DBLock) TryLock(ctx context.Context, name string) (bool, error) {
	now := l.now()
	expires := now.Add(l.ttl)

	res := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.JobLock{Name: name, Owner: l.owner, ExpiresAt: expires})
	if res.Error != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	res = l.db.WithContext(ctx).Model(&models.JobLock{}).
		Where("name = ? AND expires_at < ?", name, now).
		Updates(map[string]interface{}{"owner": l.owner, "expires_at": expires})
	if res.Error != nil {
		return false, fmt.Errorf("failed to take over lock %s: %w", name, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (l *DBLock) Unlock(ctx context.Context, name string) error {
	if err := l.db.WithContext(ctx).
		Where("name = ? AND owner = ?", name, l.owner).
		Delete(&models.JobLock{}).Error; err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}

// PurgeExpired removes leases nobody released.
func (l *DBLock) PurgeExpired(ctx context.Context) (int64, error) {
	res := l.db.WithContext(ctx).Where("expires_at < ?", l.now()).Delete(&models.JobLock{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge expired locks: %w", res.Error)
	}
	return res.RowsAffected, nil
}
