package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// RateLimitedError represents a throttling signal from the gateway.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("gateway rate limited, retry after %s", e.RetryAfter)
}

// Client dispatches capture requests to the external card gateway.
// Outcomes arrive asynchronously on the webhook, at least once.
type Client interface {
	Capture(ctx context.Context, attemptID string, amount float64, idempotencyKey string) (string, error)
}

// HTTPClient implements Client against the gateway's HTTP API.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

type captureRequest struct {
	AttemptID      string  `json:"attempt_id"`
	Amount         float64 `json:"amount"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type captureResponse struct {
	GatewayRef string `json:"gateway_ref"`
}

// NewHTTPClient creates a gateway client with default timeout.
func NewHTTPClient(baseURL string, logger *slog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("gateway url must be absolute")
	}
	return &HTTPClient{
		baseURL: parsed,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// Capture submits one capture request. The gateway deduplicates on the
// idempotency key, so retrying a dropped request cannot double-charge.
func (c *HTTPClient) Capture(ctx context.Context, attemptID string, amount float64, idempotencyKey string) (string, error) {
	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, "/api/v1/captures")

	payload, err := json.Marshal(captureRequest{AttemptID: attemptID, Amount: amount, IdempotencyKey: idempotencyKey})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		var data captureResponse
		if err := json.Unmarshal(body, &data); err != nil {
			return "", err
		}
		if data.GatewayRef == "" {
			return "", fmt.Errorf("gateway returned empty reference")
		}
		return data.GatewayRef, nil
	case http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", RateLimitedError{RetryAfter: retryAfter}
	default:
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("capture request failed", slog.Int("status", resp.StatusCode), slog.String("body", string(body)))
		return "", fmt.Errorf("gateway error: %s", resp.Status)
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 5 * time.Second
}
