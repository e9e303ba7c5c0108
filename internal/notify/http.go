package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"
)

// maxResponseBytes caps how much of a remote response is kept on the
// delivery record.
const maxResponseBytes = 1024

// ClassifyStatus maps an HTTP status to a delivery outcome: 2xx succeeds,
// 429 and 5xx are worth retrying, every other status is permanent.
func ClassifyStatus(code int) (success, retry bool) {
	switch {
	case code >= 200 && code < 300:
		return true, false
	case code == http.StatusTooManyRequests, code >= 500:
		return false, true
	default:
		return false, false
	}
}

type jsonRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// sendJSON performs one outbound request and classifies the outcome.
// Transport failures are retryable.
func sendJSON(ctx context.Context, client *http.Client, r jsonRequest) DeliveryResult {
	method := r.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return permanentFailure(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "nexus-alerts/1.0")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return retryableFailure(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	result := DeliveryResult{
		StatusCode: resp.StatusCode,
		Response:   truncate(string(body), maxResponseBytes),
	}
	result.Success, result.ShouldRetry = ClassifyStatus(resp.StatusCode)
	if !result.Success {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s + "..."
}
