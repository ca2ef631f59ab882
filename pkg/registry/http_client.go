package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/util/resiliency"
)

// HTTPClient reads passports and session grants from a hosted registry
// service. 404 maps to ErrNotFound; any other failure is surfaced as a
// transport error so callers can distinguish "unauthorized" from
// "registry down".
type HTTPClient struct {
	baseURL string
	client  *resiliency.Client
	logger  *slog.Logger
}

// NewHTTPClient builds a registry client for baseURL. A bounded timeout is
// always set; registry reads must never hang the enforcement pipeline.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  resiliency.New("registry", timeout),
		logger:  logger,
	}
}

func (c *HTTPClient) Passport(ctx context.Context, agentAddress string) (*PassportPolicy, error) {
	var p PassportPolicy
	if err := c.getJSON(ctx, "/v1/passports/"+url.PathEscape(strings.ToLower(agentAddress)), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) Session(ctx context.Context, sessionAddress string) (*SessionGrant, error) {
	var g SessionGrant
	if err := c.getJSON(ctx, "/v1/sessions/"+url.PathEscape(strings.ToLower(sessionAddress)), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("registry: %s unreachable: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		c.logger.Warn("registry returned non-200", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("registry: unexpected status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("registry: decode response: %w", err)
	}
	return nil
}
