// Package daemonclient provides a shared HTTP client for the fabric daemon
// API, used by CLI commands talking to a running daemon.
package daemonclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edufabric/integration-fabric/internal/config"
	"github.com/edufabric/integration-fabric/internal/daemon"
	"github.com/edufabric/integration-fabric/internal/events"
	"github.com/edufabric/integration-fabric/internal/txlog"
)

// DefaultTimeout bounds daemon API calls.
const DefaultTimeout = 5 * time.Second

// Client provides a shared HTTP client for daemon endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// New creates a Client using daemon configuration.
func New(cfg config.DaemonConfig, opts ...Option) *Client {
	client := &Client{
		baseURL: ResolveBaseURL(cfg),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// NewFromConfig creates a Client from the root config.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	return New(cfg.Daemon, opts...), nil
}

// ResolveBaseURL builds the daemon base URL from config.
func ResolveBaseURL(cfg config.DaemonConfig) string {
	bind := NormalizeBind(cfg.HTTPBind)
	return fmt.Sprintf("http://%s:%d", bind, cfg.HTTPPort)
}

// NormalizeBind maps wildcard binds to loopback for local clients.
func NormalizeBind(bind string) string {
	if bind == "" || bind == "0.0.0.0" {
		return "127.0.0.1"
	}
	if strings.Contains(bind, ":") && !strings.HasPrefix(bind, "[") {
		return "[" + bind + "]"
	}
	return bind
}

// Ready fetches /readyz.
func (c *Client) Ready(ctx context.Context) (*daemon.ReadyzResponse, error) {
	var status daemon.ReadyzResponse
	if err := c.doJSON(ctx, "/readyz", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Components fetches the component list with current statuses.
func (c *Client) Components(ctx context.Context) ([]daemon.ComponentView, error) {
	var out []daemon.ComponentView
	if err := c.doJSON(ctx, "/api/components", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Graph fetches the dependency graph.
func (c *Client) Graph(ctx context.Context) (*daemon.GraphResponse, error) {
	var out daemon.GraphResponse
	if err := c.doJSON(ctx, "/api/graph", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Impact fetches the transitive dependents of a component.
func (c *Client) Impact(ctx context.Context, componentID string) (*daemon.ImpactResponse, error) {
	var out daemon.ImpactResponse
	if err := c.doJSON(ctx, "/api/impact/"+componentID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Visualization fetches the health visualization payload.
func (c *Client) Visualization(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any)
	if err := c.doJSON(ctx, "/api/visualization", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EventStats fetches event bus counters.
func (c *Client) EventStats(ctx context.Context) (*events.BusStats, error) {
	var out events.BusStats
	if err := c.doJSON(ctx, "/api/events/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransactionSummary fetches aggregate transaction counts.
func (c *Client) TransactionSummary(ctx context.Context) (*txlog.Summary, error) {
	var out txlog.Summary
	if err := c.doJSON(ctx, "/api/transactions/summary", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request; %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s; %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response; %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response; %w", err)
	}
	return nil
}
