package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexusdash/nexus/internal/auth"
	"github.com/nexusdash/nexus/internal/models"
	"github.com/nexusdash/nexus/internal/notify"
)

type channelRequest struct {
	Name     string               `json:"name"`
	Type     models.ChannelType   `json:"type"`
	Config   models.ChannelConfig `json:"config"`
	IsActive *bool                `json:"is_active"`
}

func (r channelRequest) toChannel() *models.NotificationChannel {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &models.NotificationChannel{
		Name:     r.Name,
		Type:     r.Type,
		Config:   r.Config,
		IsActive: active,
	}
}

// channelView hides webhook secrets from API responses.
func channelView(ch *models.NotificationChannel) models.NotificationChannel {
	out := *ch
	out.Config = ch.Config.Redacted()
	return out
}

func deliveryView(r notify.DeliveryResult) gin.H {
	return gin.H{
		"success":      r.Success,
		"error":        r.Error,
		"response":     r.Response,
		"should_retry": r.ShouldRetry,
		"status_code":  r.StatusCode,
	}
}

func (s *Server) listChannels(c *gin.Context) {
	channels, err := s.services.Channels.ListChannels(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]models.NotificationChannel, 0, len(channels))
	for i := range channels {
		views = append(views, channelView(&channels[i]))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) getChannel(c *gin.Context) {
	ch, err := s.services.Channels.GetChannel(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, channelView(ch))
}

func (s *Server) createChannel(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ch := req.toChannel()
	if err := s.services.Channels.CreateChannel(c.Request.Context(), auth.UserID(c), ch); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, channelView(ch))
}

func (s *Server) updateChannel(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ch, err := s.services.Channels.UpdateChannel(c.Request.Context(), auth.UserID(c), c.Param("id"), req.toChannel())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, channelView(ch))
}

func (s *Server) deleteChannel(c *gin.Context) {
	if err := s.services.Channels.DeleteChannel(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "channel deleted successfully"})
}

func (s *Server) verifyChannel(c *gin.Context) {
	ch, result, err := s.services.Channels.VerifyChannel(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": channelView(ch), "result": deliveryView(result)})
}

func (s *Server) testChannel(c *gin.Context) {
	result, err := s.services.Channels.TestChannel(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deliveryView(result))
}

func (s *Server) resetChannel(c *gin.Context) {
	ch, err := s.services.Channels.ResetFailures(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, channelView(ch))
}

type preferenceRequest struct {
	AlertType  models.AlertType `json:"alert_type"`
	Severity   models.Severity  `json:"severity"`
	ChannelIDs []string         `json:"channel_ids"`
}

func (s *Server) listPreferences(c *gin.Context) {
	prefs, err := s.services.Preferences.ListPreferences(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (s *Server) setPreferences(c *gin.Context) {
	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prefs, err := s.services.Preferences.SetPreferences(c.Request.Context(), auth.UserID(c), req.AlertType, req.Severity, req.ChannelIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (s *Server) togglePreference(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.services.Preferences.SetEnabled(c.Request.Context(), auth.UserID(c), c.Param("id"), req.Enabled); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "enabled": req.Enabled})
}

func (s *Server) deletePreference(c *gin.Context) {
	if err := s.services.Preferences.DeletePreference(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "preference deleted successfully"})
}
