package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"bridgeScope/internal/httpjson"
	"bridgeScope/internal/model"
	"bridgeScope/internal/retry"
)

// StatusError is a non-2xx API response.
type StatusError = httpjson.StatusError

// apiClient issues JSON requests with exponential retry.
type apiClient struct {
	name   string
	json   *httpjson.Client
	retry  retry.Config
	header http.Header
	logger *zap.Logger
}

func newAPIClient(name string, client *http.Client, cfg retry.Config, logger *zap.Logger) *apiClient {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if cfg.BaseDelay <= 0 {
		cfg = DefaultRetry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	j := httpjson.New(client)
	return &apiClient{
		name:   name,
		json:   j,
		retry:  cfg,
		header: j.Header,
		logger: logger.With(zap.String("provider", name)),
	}
}

// DefaultRetry is four attempts with one second doubling backoff.
func DefaultRetry() retry.Config {
	return retry.Attempts(4, time.Second)
}

func (c *apiClient) get(ctx context.Context, url string, out any) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

func (c *apiClient) post(ctx context.Context, url string, body, out any) error {
	return c.do(ctx, http.MethodPost, url, body, out)
}

func (c *apiClient) do(ctx context.Context, method, url string, body, out any) error {
	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error) {
		c.logger.Debug("provider request failed", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
	}
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return c.json.Do(ctx, method, url, body, out)
	})
	if err != nil {
		return fmt.Errorf("%s request: %w", c.name, err)
	}
	return nil
}

// settle turns an adapter failure into a decline unless the provider is pinned.
func settle(logger *zap.Logger, req QuoteRequest, name string, err error) (*model.Quote, error) {
	if req.Pinned() {
		return nil, fmt.Errorf("error fetching quote from %s: %w", name, err)
	}
	logger.Info("provider quote failed", zap.Error(err))
	return nil, nil
}
