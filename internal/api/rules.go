package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexusdash/nexus/internal/alert"
	"github.com/nexusdash/nexus/internal/auth"
	"github.com/nexusdash/nexus/internal/models"
)

type ruleRequest struct {
	Name            string                `json:"name"`
	Description     string                `json:"description"`
	ProviderID      string                `json:"provider_id"`
	Type            models.AlertType      `json:"type"`
	Severity        models.Severity       `json:"severity"`
	Conditions      models.RuleConditions `json:"conditions"`
	IsActive        *bool                 `json:"is_active"`
	CooldownMinutes *int                  `json:"cooldown_minutes"`
}

// toRule builds the rule; an omitted cooldown becomes defaultCooldown.
func (r ruleRequest) toRule(defaultCooldown int) *models.AlertRule {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	cooldown := defaultCooldown
	if r.CooldownMinutes != nil {
		cooldown = *r.CooldownMinutes
	}
	return &models.AlertRule{
		Name:            r.Name,
		Description:     r.Description,
		ProviderID:      r.ProviderID,
		Type:            r.Type,
		Severity:        r.Severity,
		Conditions:      r.Conditions,
		IsActive:        active,
		CooldownMinutes: cooldown,
	}
}

func (s *Server) listRules(c *gin.Context) {
	rules, err := s.services.Rules.ListRules(c.Request.Context(), auth.UserID(c), queryBool(c, "active"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (s *Server) getRule(c *gin.Context) {
	rule, err := s.services.Rules.GetRule(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) createRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule := req.toRule(s.services.Rules.DefaultCooldown())
	if err := s.services.Rules.CreateRule(c.Request.Context(), auth.UserID(c), rule); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) updateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := s.services.Rules.UpdateRule(c.Request.Context(), auth.UserID(c), c.Param("id"), req.toRule(s.services.Rules.DefaultCooldown()))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) deleteRule(c *gin.Context) {
	if err := s.services.Rules.DeleteRule(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rule deleted successfully"})
}

func (s *Server) enableRule(c *gin.Context) {
	s.setRuleActive(c, true)
}

func (s *Server) disableRule(c *gin.Context) {
	s.setRuleActive(c, false)
}

func (s *Server) setRuleActive(c *gin.Context, active bool) {
	rule, err := s.services.Rules.SetRuleActive(c.Request.Context(), auth.UserID(c), c.Param("id"), active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) createDefaultRules(c *gin.Context) {
	rules, err := s.services.Rules.CreateDefaultRules(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rules)
}

func (s *Server) importRules(c *gin.Context) {
	rules, err := s.services.Rules.ImportRules(c.Request.Context(), auth.UserID(c), c.Request.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"imported": len(rules), "rules": rules})
}

func (s *Server) exportRules(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="alert-rules.json"`)
	c.Status(http.StatusOK)
	if err := s.services.Rules.ExportRules(c.Request.Context(), auth.UserID(c), c.Writer); err != nil {
		_ = c.Error(err)
	}
}

func (s *Server) previewRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule := req.toRule(s.services.Rules.DefaultCooldown())
	rule.UserID = auth.UserID(c)
	result, err := s.services.Rules.PreviewRule(c.Request.Context(), rule)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, evaluationView(result))
}

func (s *Server) evaluateRule(c *gin.Context) {
	rule, err := s.services.Rules.GetRule(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, evaluationView(s.services.Evaluator.Evaluate(c.Request.Context(), rule)))
}

func (s *Server) evaluateRules(c *gin.Context) {
	results, err := s.services.Evaluator.EvaluateUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]gin.H, 0, len(results))
	for _, r := range results {
		views = append(views, evaluationView(r))
	}
	c.JSON(http.StatusOK, views)
}

func evaluationView(r alert.EvaluationResult) gin.H {
	view := gin.H{
		"rule_id":       r.RuleID,
		"triggered":     r.Triggered,
		"current_value": r.CurrentValue,
		"threshold":     r.Threshold,
		"samples":       r.Samples,
		"in_cooldown":   r.InCooldown,
		"alert_created": r.AlertCreated,
	}
	if r.Alert != nil {
		view["alert"] = r.Alert
	}
	if r.Err != nil {
		view["error"] = r.Err.Error()
	}
	return view
}
