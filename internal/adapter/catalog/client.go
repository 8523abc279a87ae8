package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/domain/model"
)

// Client resolves dish ids to names and current unit prices. The
// engine uses it read-only to snapshot prices at submission time.
type Client interface {
	Lookup(ctx context.Context, dishID string) (*model.Dish, error)
}

// HTTPClient implements Client against the catalog service.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

type dishResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
}

// NewHTTPClient creates a catalog client with default timeout.
func NewHTTPClient(baseURL string, logger *slog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("catalog url must be absolute")
	}
	return &HTTPClient{
		baseURL: parsed,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}, nil
}

// Lookup fetches one dish; unknown ids fail with ErrDishNotFound.
func (c *HTTPClient) Lookup(ctx context.Context, dishID string) (*model.Dish, error) {
	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, "/api/dishes/", dishID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		var data dishResponse
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, err
		}
		return &model.Dish{ID: data.ID, Name: data.Name, UnitPrice: data.UnitPrice}, nil
	case http.StatusNotFound:
		return nil, domainErrors.ErrDishNotFound
	default:
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("catalog request failed", slog.Int("status", resp.StatusCode), slog.String("body", string(body)))
		return nil, fmt.Errorf("catalog error: %s", resp.Status)
	}
}
