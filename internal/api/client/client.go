package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/nexusdash/nexus/internal/jobs"
	"github.com/nexusdash/nexus/internal/models"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient reads the server address and bearer token from the environment.
func NewClient() (*Client, error) {
	baseURL := os.Getenv("NEXUS_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	token := os.Getenv("NEXUS_API_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("NEXUS_API_TOKEN environment variable is not set")
	}

	return New(baseURL, token, &http.Client{Timeout: 30 * time.Second}), nil
}

func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, token: token, httpClient: httpClient}
}

type AlertQuery struct {
	UnreadOnly     bool
	UnresolvedOnly bool
	Type           string
	Severity       string
	ProviderID     string
	Limit          int
}

func (c *Client) ListAlerts(q AlertQuery) ([]models.Alert, error) {
	query := url.Values{}
	if q.UnreadOnly {
		query.Set("unread", "true")
	}
	if q.UnresolvedOnly {
		query.Set("unresolved", "true")
	}
	if q.Type != "" {
		query.Set("type", q.Type)
	}
	if q.Severity != "" {
		query.Set("severity", q.Severity)
	}
	if q.ProviderID != "" {
		query.Set("provider_id", q.ProviderID)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var alerts []models.Alert
	if err := c.get("/api/v1/alerts", query, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *Client) UnreadCount() (int64, error) {
	var resp struct {
		Unread int64 `json:"unread"`
	}
	if err := c.get("/api/v1/alerts/unread-count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Unread, nil
}

func (c *Client) MarkAlertRead(alertID string) error {
	return c.do(http.MethodPost, fmt.Sprintf("/api/v1/alerts/%s/read", alertID), nil, nil)
}

// MarkAllRead marks every alert of the caller as read.
func (c *Client) MarkAllRead() (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(http.MethodPost, "/api/v1/alerts/read", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (c *Client) ResolveAlert(alertID string) error {
	return c.do(http.MethodPost, fmt.Sprintf("/api/v1/alerts/%s/resolve", alertID), nil, nil)
}

func (c *Client) AlertDeliveries(alertID string) ([]models.AlertDelivery, error) {
	var deliveries []models.AlertDelivery
	if err := c.get(fmt.Sprintf("/api/v1/alerts/%s/deliveries", alertID), nil, &deliveries); err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (c *Client) RetryDelivery(deliveryID string) (*models.AlertDelivery, error) {
	var d models.AlertDelivery
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/v1/deliveries/%s/retry", deliveryID), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) ListRules() ([]models.AlertRule, error) {
	var rules []models.AlertRule
	if err := c.get("/api/v1/rules", nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (c *Client) SetRuleActive(ruleID string, active bool) error {
	action := "disable"
	if active {
		action = "enable"
	}
	return c.do(http.MethodPost, fmt.Sprintf("/api/v1/rules/%s/%s", ruleID, action), nil, nil)
}

func (c *Client) DeleteRule(ruleID string) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/api/v1/rules/%s", ruleID), nil, nil)
}

func (c *Client) CreateDefaultRules() ([]models.AlertRule, error) {
	var rules []models.AlertRule
	if err := c.do(http.MethodPost, "/api/v1/rules/defaults", nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// ImportRules uploads a rule export document as-is.
func (c *Client) ImportRules(r io.Reader) (int, error) {
	var resp struct {
		Imported int `json:"imported"`
	}
	if err := c.raw(http.MethodPost, "/api/v1/rules/import", r, &resp); err != nil {
		return 0, err
	}
	return resp.Imported, nil
}

func (c *Client) ExportRules(w io.Writer) error {
	resp, err := c.doRequest(http.MethodGet, "/api/v1/rules/export", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

type Evaluation struct {
	RuleID       string        `json:"rule_id"`
	Triggered    bool          `json:"triggered"`
	CurrentValue float64       `json:"current_value"`
	Threshold    float64       `json:"threshold"`
	Samples      int64         `json:"samples"`
	InCooldown   bool          `json:"in_cooldown"`
	AlertCreated bool          `json:"alert_created"`
	Alert        *models.Alert `json:"alert,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func (c *Client) EvaluateRules() ([]Evaluation, error) {
	var results []Evaluation
	if err := c.do(http.MethodPost, "/api/v1/rules/evaluate", nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) ListChannels() ([]models.NotificationChannel, error) {
	var channels []models.NotificationChannel
	if err := c.get("/api/v1/channels", nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

type DeliveryResult struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	Response    string `json:"response"`
	ShouldRetry bool   `json:"should_retry"`
	StatusCode  int    `json:"status_code"`
}

func (c *Client) TestChannel(channelID string) (*DeliveryResult, error) {
	var result DeliveryResult
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/v1/channels/%s/test", channelID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) VerifyChannel(channelID string) (*DeliveryResult, error) {
	var resp struct {
		Result DeliveryResult `json:"result"`
	}
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/v1/channels/%s/verify", channelID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

func (c *Client) ResetChannel(channelID string) error {
	return c.do(http.MethodPost, fmt.Sprintf("/api/v1/channels/%s/reset", channelID), nil, nil)
}

func (c *Client) ListJobs() ([]jobs.Status, error) {
	var status []jobs.Status
	if err := c.get("/api/v1/jobs", nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) RunJob(name string) (*jobs.Result, error) {
	var result jobs.Result
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/run", name), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SetJobScheduled(name string, scheduled bool) error {
	action := "stop"
	if scheduled {
		action = "start"
	}
	return c.do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/%s", name, action), nil, nil)
}

func (c *Client) get(endpoint string, query url.Values, v interface{}) error {
	resp, err := c.doRequest(http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) do(method, endpoint string, data, v interface{}) error {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %v", err)
		}
		body = bytes.NewReader(jsonData)
	}
	return c.raw(method, endpoint, body, v)
}

func (c *Client) raw(method, endpoint string, body io.Reader, v interface{}) error {
	resp, err := c.doRequest(method, endpoint, nil, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if v != nil {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

func (c *Client) doRequest(method, endpoint string, query url.Values, body io.Reader) (*http.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %v", err)
	}
	u.Path = path.Join(u.Path, endpoint)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequest(method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("API error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return resp, nil
}
