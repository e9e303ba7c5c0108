package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexusdash/nexus/internal/alert"
	"github.com/nexusdash/nexus/internal/auth"
	"github.com/nexusdash/nexus/internal/database"
	"github.com/nexusdash/nexus/internal/jobs"
	"github.com/nexusdash/nexus/internal/models"
	"github.com/nexusdash/nexus/internal/monitor"
	"github.com/nexusdash/nexus/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	db      *gorm.DB
	auth    *auth.Authenticator
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	authenticator, err := auth.NewAuthenticator("test-secret")
	require.NoError(t, err)

	aggregator := monitor.NewGormAggregator(db)
	budgets := monitor.NewGormBudgetStore(db)
	dispatcher := notify.NewDispatcher(notify.NewTemplateStore(db), notify.DispatcherConfig{})
	deliveries := notify.NewDeliveryService(db, notify.NewRouter(db, 0), dispatcher, notify.DeliveryOptions{})
	alertManager := alert.NewAlertManager(db, alert.WithNotifier(deliveries))
	alerts := alert.NewAlertHandler(db)

	manager := jobs.NewManager(nil)
	manager.Register(jobs.NewCleanupJob(alerts, 30, nil, nil))

	server := NewServer(Services{
		Rules:        alert.NewRuleManager(db, aggregator),
		Evaluator:    alert.NewRuleEvaluator(db, aggregator, alertManager),
		AlertManager: alertManager,
		Alerts:       alerts,
		Heuristics:   alert.NewHeuristicDetector(aggregator, budgets, alertManager),
		Channels:     notify.NewChannelManager(db, dispatcher),
		Preferences:  notify.NewPreferenceManager(db),
		Deliveries:   deliveries,
		Jobs:         manager,
	}, authenticator, nil)

	return &testEnv{db: db, auth: authenticator, handler: server.Handler()}
}

func (e *testEnv) token(t *testing.T, user string, role models.Role) string {
	t.Helper()
	tok, err := e.auth.GenerateToken(user, role, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a request as user with role; an empty user sends no token.
func (e *testEnv) do(t *testing.T, method, path, user string, role models.Role, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, user, role))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func spendRule() gin.H {
	return gin.H{
		"name":     "Spend",
		"type":     "cost_threshold",
		"severity": "high",
		"conditions": gin.H{
			"metric":              "cost",
			"operator":            "gt",
			"threshold":           100,
			"time_window_minutes": 60,
			"aggregation":         "sum",
		},
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAuthenticationRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/rules", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRuleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/rules", "u1", models.RoleUser, spendRule())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.AlertRule
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "u1", created.UserID)
	assert.True(t, created.IsActive)

	w = env.do(t, http.MethodGet, "/api/v1/rules", "u1", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rules []models.AlertRule
	decode(t, w, &rules)
	assert.Len(t, rules, 1)

	w = env.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, "u2", models.RoleUser, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "rules are scoped to their owner")

	invalid := spendRule()
	invalid["severity"] = "apocalyptic"
	w = env.do(t, http.MethodPost, "/api/v1/rules", "u1", models.RoleUser, invalid)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/rules/"+created.ID+"/disable", "u1", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var disabled models.AlertRule
	decode(t, w, &disabled)
	assert.False(t, disabled.IsActive)

	w = env.do(t, http.MethodPost, "/api/v1/rules/"+created.ID+"/evaluate", "u1", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var eval map[string]interface{}
	decode(t, w, &eval)
	assert.Equal(t, created.ID, eval["rule_id"])
	assert.Equal(t, false, eval["triggered"])

	w = env.do(t, http.MethodDelete, "/api/v1/rules/"+created.ID, "u1", models.RoleUser, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, "/api/v1/rules/"+created.ID, "u1", models.RoleUser, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestViewerIsReadOnly(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/rules", "u1", models.RoleViewer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/api/v1/alerts", "u1", models.RoleViewer, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/rules", "u1", models.RoleViewer, spendRule())
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.do(t, http.MethodGet, "/api/v1/channels", "u1", models.RoleViewer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAlertEndpoints(t *testing.T) {
	env := newTestEnv(t)
	manual := gin.H{"provider_id": "openai", "type": "downtime", "severity": "high", "title": "Provider down"}

	w := env.do(t, http.MethodPost, "/api/v1/alerts", "u1", models.RoleUser, manual)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first struct {
		Alert   models.Alert `json:"alert"`
		Created bool         `json:"created"`
	}
	decode(t, w, &first)
	assert.True(t, first.Created)
	assert.Equal(t, models.AlertSourceManual, first.Alert.Metadata.Source)

	w = env.do(t, http.MethodPost, "/api/v1/alerts", "u1", models.RoleUser, manual)
	require.Equal(t, http.StatusOK, w.Code)
	var dup struct {
		Alert   models.Alert `json:"alert"`
		Created bool         `json:"created"`
	}
	decode(t, w, &dup)
	assert.False(t, dup.Created)
	assert.Equal(t, first.Alert.ID, dup.Alert.ID)

	w = env.do(t, http.MethodGet, "/api/v1/alerts/unread-count", "u1", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unread":1}`, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/alerts/read", "u1", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":1}`, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/alerts/"+first.Alert.ID+"/resolve", "u1", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resolved models.Alert
	decode(t, w, &resolved)
	assert.True(t, resolved.IsResolved)

	w = env.do(t, http.MethodGet, "/api/v1/alerts/"+first.Alert.ID, "u2", models.RoleUser, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/alerts", "u1", models.RoleUser, gin.H{"type": "meteor", "severity": "high", "title": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRuleCooldownOmittedOrZero(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/rules", "u1", models.RoleUser, spendRule())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var defaulted models.AlertRule
	decode(t, w, &defaulted)
	assert.Equal(t, models.DefaultCooldownMinutes, defaulted.CooldownMinutes)

	body := spendRule()
	body["cooldown_minutes"] = 0
	w = env.do(t, http.MethodPost, "/api/v1/rules", "u1", models.RoleUser, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var none models.AlertRule
	decode(t, w, &none)
	assert.Zero(t, none.CooldownMinutes)

	var stored models.AlertRule
	require.NoError(t, env.db.First(&stored, "id = ?", none.ID).Error)
	assert.Zero(t, stored.CooldownMinutes)
}

func TestChannelEndpointsRedactSecrets(t *testing.T) {
	env := newTestEnv(t)
	body := gin.H{
		"name": "hook",
		"type": "webhook",
		"config": gin.H{"webhook": gin.H{
			"url":    "https://example.com/hook",
			"secret": "s3cr3t",
		}},
	}

	w := env.do(t, http.MethodPost, "/api/v1/channels", "u1", models.RoleUser, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ch models.NotificationChannel
	decode(t, w, &ch)
	assert.False(t, ch.IsVerified)
	require.NotNil(t, ch.Config.Webhook)
	assert.Equal(t, "********", ch.Config.Webhook.Secret)

	var stored models.NotificationChannel
	require.NoError(t, env.db.First(&stored, "id = ?", ch.ID).Error)
	assert.Equal(t, "s3cr3t", stored.Config.Webhook.Secret)

	w = env.do(t, http.MethodPut, "/api/v1/preferences", "u1", models.RoleUser, gin.H{
		"alert_type": "error_rate", "severity": "high", "channel_ids": []string{ch.ID},
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPut, "/api/v1/preferences", "u2", models.RoleUser, gin.H{
		"alert_type": "error_rate", "severity": "high", "channel_ids": []string{ch.ID},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChannelRenameKeepsSecret(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/channels", "u1", models.RoleUser, gin.H{
		"name": "hook",
		"type": "webhook",
		"config": gin.H{"webhook": gin.H{
			"url":    "https://example.com/hook",
			"secret": "s3cr3t",
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.NotificationChannel
	decode(t, w, &created)

	w = env.do(t, http.MethodGet, "/api/v1/channels/"+created.ID, "u1", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched models.NotificationChannel
	decode(t, w, &fetched)

	w = env.do(t, http.MethodPut, "/api/v1/channels/"+created.ID, "u1", models.RoleUser, gin.H{
		"name":   "renamed",
		"type":   fetched.Type,
		"config": fetched.Config,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stored models.NotificationChannel
	require.NoError(t, env.db.First(&stored, "id = ?", created.ID).Error)
	assert.Equal(t, "renamed", stored.Name)
	assert.Equal(t, "s3cr3t", stored.Config.Webhook.Secret)
}

func TestJobEndpointsRequireAdmin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/jobs", "u1", models.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/jobs", "root", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var statuses []jobs.Status
	decode(t, w, &statuses)
	require.Len(t, statuses, 1)
	assert.Equal(t, jobs.CleanupJobName, statuses[0].Name)

	w = env.do(t, http.MethodPost, "/api/v1/jobs/cleanup/run", "root", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result jobs.Result
	decode(t, w, &result)
	assert.True(t, result.Success)

	w = env.do(t, http.MethodPost, "/api/v1/jobs/nope/run", "root", models.RoleAdmin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/rules", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}
