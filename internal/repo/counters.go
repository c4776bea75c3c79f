// Package repo contains clients for the external collaborators the detector
// samples from: the instrumented service's counters endpoint and its host
// resource monitor.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/watchstack/watchstack-anomaly/internal/models"
	"github.com/watchstack/watchstack-anomaly/internal/utils"
)

// CountersClient reads live performance counters from the instrumented
// service over HTTP. All calls honour the request context and the configured
// timeout; a slow provider skips the cycle rather than blocking it.
type CountersClient struct {
	baseURL      string
	countersPath string
	resourcePath string
	httpClient   *http.Client
}

// NewCountersClient constructs a client for the configured service.
func NewCountersClient(baseURL, countersPath, resourcePath string, timeout time.Duration) *CountersClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CountersClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		countersPath: countersPath,
		resourcePath: resourcePath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchCounters reads the current counter set. The observation time defaults
// to now when the provider omits it.
func (c *CountersClient) FetchCounters(ctx context.Context) (models.CounterSet, error) {
	if c == nil || c.baseURL == "" {
		return models.CounterSet{}, fmt.Errorf("counters provider not configured")
	}

	var response struct {
		ObservedAt  time.Time                  `json:"observed_at"`
		SystemState models.SystemStateSnapshot `json:"system_state"`
		Efficiency  models.EfficiencySnapshot  `json:"efficiency"`
	}
	if err := c.getJSON(ctx, c.endpoint(c.countersPath), &response); err != nil {
		return models.CounterSet{}, utils.NewAppError("counters.fetch", "counters provider unreachable", err)
	}

	observedAt := response.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}
	return models.CounterSet{
		ObservedAt:  observedAt,
		SystemState: response.SystemState,
		Efficiency:  response.Efficiency,
	}, nil
}

// FetchResourceUsage reads host cpu/memory telemetry. Failures here are
// non-fatal to the caller: the emitter degrades them into an explicit
// unavailability marker inside the alert.
func (c *CountersClient) FetchResourceUsage(ctx context.Context) (models.ResourceSnapshot, error) {
	if c == nil || c.baseURL == "" {
		return models.ResourceSnapshot{}, fmt.Errorf("counters provider not configured")
	}
	if c.resourcePath == "" {
		return models.ResourceSnapshot{}, fmt.Errorf("resource telemetry endpoint not configured")
	}

	var snap models.ResourceSnapshot
	if err := c.getJSON(ctx, c.endpoint(c.resourcePath), &snap); err != nil {
		return models.ResourceSnapshot{}, utils.NewAppError("counters.resources", "resource monitor unreachable", err)
	}
	return snap, nil
}

func (c *CountersClient) endpoint(p string) string {
	parsed, err := url.Parse(c.baseURL)
	if err != nil || parsed.Host == "" {
		return c.baseURL + p
	}
	parsed.Path = path.Join(parsed.Path, p)
	return parsed.String()
}

func (c *CountersClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
