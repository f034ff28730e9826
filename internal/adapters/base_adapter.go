// Package adapters upstream provider adapters
// Wraps each provider's wire protocol and auth behind a common call path
// that yields UpstreamCallResult values and ProviderError failures
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"control-room/gateway/internal/metrics"
	"control-room/gateway/internal/types"
	"control-room/gateway/pkg/utils"

	"github.com/sirupsen/logrus"
)

// BaseAdapter shared HTTP plumbing for provider adapters
// One attempt per call; the only retry path is the fallback chain.
type BaseAdapter struct {
	name       string
	httpClient *http.Client
	logger     *logrus.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	stats AdapterStats
}

// AdapterStats runtime call statistics
type AdapterStats struct {
	TotalRequests   int64         `json:"total_requests"`
	SuccessRequests int64         `json:"success_requests"`
	FailedRequests  int64         `json:"failed_requests"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	LastRequestTime time.Time     `json:"last_request_time"`
}

// NewBaseAdapter creates the shared plumbing with a per-provider timeout
func NewBaseAdapter(name string, timeout time.Duration, m *metrics.Metrics, logger *logrus.Logger) *BaseAdapter {
	return &BaseAdapter{
		name: name,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger:  logger,
		metrics: m,
	}
}

// Name provider identifier
func (b *BaseAdapter) Name() string {
	return b.name
}

// ========================================
// Upstream call
// ========================================

// call issues one upstream request and classifies the outcome
// Parameters:
//   - ctx: request context, bounded by the client timeout
//   - method, url: target
//   - body: request body, may be nil
//   - headers: request headers; User-Agent is always set
func (b *BaseAdapter) call(ctx context.Context, method, url string, body io.Reader, headers map[string]string) types.UpstreamCallResult {
	startTime := time.Now()
	b.logger.Debugf("[%s] upstream request: %s %s", b.name, method, redactURL(url))

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return b.finish(types.UpstreamCallResult{
			Kind: types.CallTransportError,
			Err:  fmt.Errorf("failed to create request: %w", err),
		}, startTime)
	}

	req.Header.Set(types.HeaderUserAgent, types.UserAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return b.finish(types.UpstreamCallResult{Kind: types.CallTransportError, Err: err}, startTime)
	}
	defer resp.Body.Close()

	payload, err := readBody(resp)
	if err != nil {
		return b.finish(types.UpstreamCallResult{
			Kind:       types.CallTransportError,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to read response: %w", err),
		}, startTime)
	}

	result := types.UpstreamCallResult{
		Kind:        types.CallOK,
		StatusCode:  resp.StatusCode,
		Body:        payload,
		ContentType: resp.Header.Get(types.HeaderContentType),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Kind = types.CallUpstreamError
	}
	return b.finish(result, startTime)
}

// finish stamps the duration and records stats and metrics
func (b *BaseAdapter) finish(result types.UpstreamCallResult, startTime time.Time) types.UpstreamCallResult {
	result.Duration = time.Since(startTime)

	outcome := strings.ReplaceAll(string(result.Kind), "-", "_")
	b.metrics.ObserveUpstream(b.name, outcome, result.Duration)
	b.updateStats(result.Kind == types.CallOK, result.Duration)

	switch result.Kind {
	case types.CallOK:
		b.logger.Debugf("[%s] upstream done: status=%d duration=%v", b.name, result.StatusCode, result.Duration)
	case types.CallUpstreamError:
		b.logger.Warnf("[%s] upstream error: status=%d duration=%v", b.name, result.StatusCode, result.Duration)
	default:
		b.logger.Warnf("[%s] upstream transport error: %v", b.name, result.Err)
	}
	return result
}

// failure converts a non-OK result into a ProviderError
// httpMessage receives the status code; transportMessage is used verbatim.
func (b *BaseAdapter) failure(result types.UpstreamCallResult, httpMessage, transportMessage string) *types.ProviderError {
	if result.Kind == types.CallUpstreamError {
		return &types.ProviderError{
			Provider:   b.name,
			Kind:       types.ErrorUpstream,
			StatusCode: result.StatusCode,
			Message:    fmt.Sprintf("%s %d", httpMessage, result.StatusCode),
			Detail:     utils.Truncate(string(result.Body), types.MaxErrorDetail),
		}
	}

	detail := ""
	if result.Err != nil {
		detail = result.Err.Error()
	}
	return &types.ProviderError{
		Provider: b.name,
		Kind:     types.ErrorTransport,
		Message:  transportMessage,
		Detail:   detail,
	}
}

// configError builds the no-I/O "<NAME> not set" failure
func (b *BaseAdapter) configError(name string, missing ...string) *types.ProviderError {
	if len(missing) == 0 {
		missing = []string{name}
	}
	return &types.ProviderError{
		Provider: b.name,
		Kind:     types.ErrorConfig,
		Message:  name + " not set",
		Missing:  missing,
	}
}

// parseJSONResponse decodes a JSON payload
func (b *BaseAdapter) parseJSONResponse(data []byte, target interface{}) error {
	if err := json.Unmarshal(data, target); err != nil {
		b.logger.Errorf("[%s] JSON decode failed: %v, data=%s", b.name, err, utils.Truncate(string(data), 200))
		return &types.ProviderError{
			Provider: b.name,
			Kind:     types.ErrorDecode,
			Message:  "invalid JSON from upstream",
			Detail:   err.Error(),
		}
	}
	return nil
}

// ========================================
// Stats
// ========================================

func (b *BaseAdapter) updateStats(success bool, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.TotalRequests++
	b.stats.LastRequestTime = time.Now()
	if success {
		b.stats.SuccessRequests++
	} else {
		b.stats.FailedRequests++
	}

	// Exponential moving average
	if b.stats.TotalRequests == 1 {
		b.stats.AvgResponseTime = duration
	} else {
		alpha := 0.1
		b.stats.AvgResponseTime = time.Duration(
			float64(b.stats.AvgResponseTime)*(1-alpha) + float64(duration)*alpha,
		)
	}
}

// Stats returns a copy of the adapter statistics
func (b *BaseAdapter) Stats() AdapterStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// ========================================
// Helpers
// ========================================

// readBody reads the response, decoding gzip when the server sent it unasked
func readBody(resp *http.Response) ([]byte, error) {
	if strings.EqualFold(strings.TrimSpace(resp.Header.Get("Content-Encoding")), "gzip") && !resp.Uncompressed {
		return gunzip(resp.Body)
	}
	return io.ReadAll(resp.Body)
}

// redactURL drops the query string, which may carry access keys
func redactURL(raw string) string {
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		return raw[:idx] + "?..."
	}
	return raw
}
