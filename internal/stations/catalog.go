// Package stations UK rail station reference catalog
// Process-wide, lazily loaded list of stations keyed by CRS code, with
// scored text search and haversine proximity search
package stations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"control-room/gateway/internal/metrics"
	"control-room/gateway/internal/types"
	"control-room/gateway/pkg/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// State catalog lifecycle
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// Catalog lazily loaded station catalog
// unloaded -> loading -> loaded. Concurrent cold callers share one fetch;
// a failed fetch returns the catalog to unloaded so a later call retries.
type Catalog struct {
	url     string
	timeout time.Duration
	client  *http.Client
	metrics *metrics.Metrics
	logger  *logrus.Logger

	group singleflight.Group

	mu      sync.RWMutex
	state   State
	records []types.StationRecord
}

// NewCatalog creates an unloaded catalog backed by the reference feed
func NewCatalog(endpoint types.ProviderEndpoint, m *metrics.Metrics, logger *logrus.Logger) *Catalog {
	return &Catalog{
		url:     endpoint.BaseURL,
		timeout: endpoint.Timeout,
		client:  &http.Client{Timeout: endpoint.Timeout},
		metrics: m,
		logger:  logger,
	}
}

// rawStation one entry of the reference feed
type rawStation struct {
	CRSCode            string      `json:"crsCode"`
	StationName        string      `json:"stationName"`
	ConstituentCountry string      `json:"constituentCountry"`
	Lat                interface{} `json:"lat"`
	Long               interface{} `json:"long"`
}

// State returns the current lifecycle state
func (c *Catalog) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Records returns the loaded station list, loading it on first use
// The returned slice is shared and must not be modified.
func (c *Catalog) Records(ctx context.Context) ([]types.StationRecord, error) {
	c.mu.RLock()
	if c.state == StateLoaded {
		records := c.records
		c.mu.RUnlock()
		return records, nil
	}
	c.mu.RUnlock()

	v, err, shared := c.group.Do("catalog", func() (interface{}, error) {
		c.mu.Lock()
		if c.state == StateLoaded {
			records := c.records
			c.mu.Unlock()
			return records, nil
		}
		c.state = StateLoading
		c.mu.Unlock()

		// Detached from the first caller so its cancellation does not fail the others
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		records, err := c.fetch(fetchCtx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.state = StateUnloaded
			c.metrics.RecordCatalogLoad("failed")
			return nil, err
		}
		c.records = records
		c.state = StateLoaded
		c.metrics.RecordCatalogLoad("ok")
		return records, nil
	})
	if err != nil {
		c.logger.Errorf("station catalog load failed (shared=%t): %v", shared, err)
		return nil, err
	}

	return v.([]types.StationRecord), nil
}

// fetch downloads and filters the reference feed
func (c *Catalog) fetch(ctx context.Context) ([]types.StationRecord, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog request: %w", err)
	}
	req.Header.Set(types.HeaderAccept, "application/json")
	req.Header.Set(types.HeaderUserAgent, types.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(types.ProviderStations, "transport_error", time.Since(start))
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ObserveUpstream(types.ProviderStations, "transport_error", time.Since(start))
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.ObserveUpstream(types.ProviderStations, "upstream_error", time.Since(start))
		return nil, fmt.Errorf("catalog HTTP %d: %s", resp.StatusCode, utils.Truncate(string(body), types.MaxErrorDetail))
	}
	c.metrics.ObserveUpstream(types.ProviderStations, "ok", time.Since(start))

	records, err := decodeStations(body)
	if err != nil {
		return nil, err
	}

	c.logger.Infof("station catalog loaded: %d stations in %v", len(records), time.Since(start))
	return records, nil
}

// decodeStations keeps records with a 3-character code and a non-empty name
func decodeStations(body []byte) ([]types.StationRecord, error) {
	var raw []rawStation
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("invalid catalog JSON: %w", err)
	}

	records := make([]types.StationRecord, 0, len(raw))
	for _, r := range raw {
		crs := strings.ToUpper(strings.TrimSpace(r.CRSCode))
		name := strings.TrimSpace(r.StationName)
		if len(crs) != 3 || name == "" {
			continue
		}
		records = append(records, types.StationRecord{
			CRS:     crs,
			Name:    name,
			Country: strings.ToLower(strings.TrimSpace(r.ConstituentCountry)),
			Lat:     toFloat(r.Lat),
			Lon:     toFloat(r.Long),
		})
	}
	return records, nil
}

// toFloat accepts JSON numbers and numeric strings
func toFloat(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return &f
		}
	}
	return nil
}
