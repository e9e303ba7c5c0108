package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexusdash/nexus/internal/alert"
	"github.com/nexusdash/nexus/internal/auth"
	"github.com/nexusdash/nexus/internal/models"
)

func (s *Server) listAlerts(c *gin.Context) {
	filter := alert.ListFilter{
		UnreadOnly:     c.Query("unread") == "true",
		UnresolvedOnly: c.Query("unresolved") == "true",
		Type:           models.AlertType(c.Query("type")),
		Severity:       models.Severity(c.Query("severity")),
		ProviderID:     c.Query("provider_id"),
		Limit:          queryInt(c, "limit", 100),
		Offset:         queryInt(c, "offset", 0),
	}
	alerts, err := s.services.Alerts.ListAlerts(c.Request.Context(), auth.UserID(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) getAlert(c *gin.Context) {
	a, err := s.services.Alerts.GetAlert(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) unreadCount(c *gin.Context) {
	count, err := s.services.Alerts.UnreadCount(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (s *Server) alertDeliveries(c *gin.Context) {
	deliveries, err := s.services.Alerts.Deliveries(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deliveries)
}

type manualAlertRequest struct {
	ProviderID string           `json:"provider_id"`
	Type       models.AlertType `json:"type"`
	Severity   models.Severity  `json:"severity"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
}

// createAlert raises an operator-authored alert. It goes through the same
// deduplication and fan-out as generated alerts.
func (s *Server) createAlert(c *gin.Context) {
	var req manualAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, created, err := s.services.AlertManager.CreateAlert(c.Request.Context(), alert.CreateAlertInput{
		UserID:     auth.UserID(c),
		ProviderID: req.ProviderID,
		Type:       req.Type,
		Severity:   req.Severity,
		Title:      req.Title,
		Message:    req.Message,
		Metadata:   models.AlertMetadata{Source: models.AlertSourceManual},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"alert": a, "created": created})
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) markRead(c *gin.Context) {
	a, err := s.services.Alerts.MarkAsRead(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) markManyRead(c *gin.Context) {
	var req idsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	n, err := s.services.Alerts.MarkManyAsRead(c.Request.Context(), auth.UserID(c), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (s *Server) resolveAlert(c *gin.Context) {
	a, err := s.services.Alerts.ResolveAlert(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) resolveMany(c *gin.Context) {
	var req idsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	n, err := s.services.Alerts.ResolveMany(c.Request.Context(), auth.UserID(c), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (s *Server) runHeuristics(c *gin.Context) {
	res, err := s.services.Heuristics.GenerateHeuristicAlerts(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	errs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, e.Error())
	}
	c.JSON(http.StatusOK, gin.H{"alerts": res.Alerts, "errors": errs})
}

func (s *Server) retryDelivery(c *gin.Context) {
	d, err := s.services.Deliveries.Retry(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
