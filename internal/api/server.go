package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexusdash/nexus/internal/alert"
	"github.com/nexusdash/nexus/internal/auth"
	"github.com/nexusdash/nexus/internal/jobs"
	"github.com/nexusdash/nexus/internal/models"
	"github.com/nexusdash/nexus/internal/notify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Services bundles the components the HTTP API exposes.
type Services struct {
	Rules        *alert.RuleManager
	Evaluator    *alert.RuleEvaluator
	AlertManager *alert.AlertManager
	Alerts       *alert.AlertHandler
	Heuristics   *alert.HeuristicDetector
	Channels     *notify.ChannelManager
	Preferences  *notify.PreferenceManager
	Deliveries   *notify.DeliveryService
	Jobs         *jobs.Manager
}

type Server struct {
	services       Services
	auth           *auth.Authenticator
	router         *gin.Engine
	allowedOrigins []string
	httpServer     *http.Server
}

func NewServer(services Services, authenticator *auth.Authenticator, allowedOrigins []string) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	server := &Server{
		services:       services,
		auth:           authenticator,
		router:         router,
		allowedOrigins: allowedOrigins,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	api.Use(s.auth.Middleware())

	rules := api.Group("/rules")
	{
		view := auth.RequirePermission(models.ActionViewAlerts)
		manage := auth.RequirePermission(models.ActionManageRules)
		rules.GET("", view, s.listRules)
		rules.GET("/export", view, s.exportRules)
		rules.GET("/:id", view, s.getRule)
		rules.POST("", manage, s.createRule)
		rules.POST("/defaults", manage, s.createDefaultRules)
		rules.POST("/import", manage, s.importRules)
		rules.POST("/preview", manage, s.previewRule)
		rules.POST("/evaluate", manage, s.evaluateRules)
		rules.PUT("/:id", manage, s.updateRule)
		rules.DELETE("/:id", manage, s.deleteRule)
		rules.POST("/:id/enable", manage, s.enableRule)
		rules.POST("/:id/disable", manage, s.disableRule)
		rules.POST("/:id/evaluate", manage, s.evaluateRule)
	}

	alerts := api.Group("/alerts")
	{
		view := auth.RequirePermission(models.ActionViewAlerts)
		manage := auth.RequirePermission(models.ActionManageAlerts)
		alerts.GET("", view, s.listAlerts)
		alerts.GET("/unread-count", view, s.unreadCount)
		alerts.GET("/:id", view, s.getAlert)
		alerts.GET("/:id/deliveries", view, s.alertDeliveries)
		alerts.POST("", manage, s.createAlert)
		alerts.POST("/read", manage, s.markManyRead)
		alerts.POST("/resolve", manage, s.resolveMany)
		alerts.POST("/heuristics", manage, s.runHeuristics)
		alerts.POST("/:id/read", manage, s.markRead)
		alerts.POST("/:id/resolve", manage, s.resolveAlert)
	}
	api.POST("/deliveries/:id/retry", auth.RequirePermission(models.ActionManageAlerts), s.retryDelivery)

	channels := api.Group("/channels")
	channels.Use(auth.RequirePermission(models.ActionManageChannels))
	{
		channels.GET("", s.listChannels)
		channels.POST("", s.createChannel)
		channels.GET("/:id", s.getChannel)
		channels.PUT("/:id", s.updateChannel)
		channels.DELETE("/:id", s.deleteChannel)
		channels.POST("/:id/verify", s.verifyChannel)
		channels.POST("/:id/test", s.testChannel)
		channels.POST("/:id/reset", s.resetChannel)
	}

	prefs := api.Group("/preferences")
	prefs.Use(auth.RequirePermission(models.ActionManageChannels))
	{
		prefs.GET("", s.listPreferences)
		prefs.PUT("", s.setPreferences)
		prefs.PATCH("/:id", s.togglePreference)
		prefs.DELETE("/:id", s.deletePreference)
	}

	admin := api.Group("/jobs")
	admin.Use(auth.RequireRole(models.RoleAdmin))
	{
		admin.GET("", s.listJobs)
		admin.POST("/restart", s.restartJobs)
		admin.POST("/:name/run", s.runJob)
		admin.POST("/:name/start", s.startJob)
		admin.POST("/:name/stop", s.stopJob)
	}
}

// Handler returns the API wrapped with CORS handling.
func (s *Server) Handler() http.Handler {
	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler(s.router)
}

func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logrus.WithField("port", port).Info("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("Request handled")
	}
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var unknownJob jobs.ErrUnknownJob
	switch {
	case errors.Is(err, models.ErrNotFound), errors.As(err, &unknownJob):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case models.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, notify.ErrDeliveryClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logrus.WithField("path", c.FullPath()).WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func queryBool(c *gin.Context, key string) *bool {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
