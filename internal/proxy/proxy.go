// Package proxy passthrough reverse proxy
// Forwards one inbound request to one fully resolved upstream URL with fresh
// headers and the route's credential, relays status and body, and keeps
// per-route statistics
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"control-room/gateway/internal/auth"
	"control-room/gateway/internal/metrics"
	"control-room/gateway/internal/types"

	"github.com/sirupsen/logrus"
)

// DefaultErrorMessage 502 message when the upstream cannot be reached
const DefaultErrorMessage = "Upstream failed"

// Target one resolved upstream call
type Target struct {
	RouteID     string            // stats key
	Provider    string            // metrics label
	URL         *url.URL          // complete upstream URL, query included
	Method      string            // defaults to GET
	Body        []byte            // request body, nil for none
	Headers     map[string]string // extra upstream headers
	Auth        types.AuthSpec    // credential strategy
	Credential  types.Credential  // credential material
	Timeout     time.Duration     // upstream timeout
	ContentType string            // used when the upstream sends none
	ErrorLabel  string            // 502 error message
	OnResponse  func(status int)  // observes the upstream status, e.g. for token invalidation
}

// ReverseProxy passthrough proxy manager
type ReverseProxy struct {
	transport http.RoundTripper
	metrics   *metrics.Metrics
	logger    *logrus.Logger

	mu    sync.Mutex
	stats *ProxyStats
}

// ProxyStats proxy statistics
type ProxyStats struct {
	TotalRequests   int64                 `json:"total_requests"`
	SuccessRequests int64                 `json:"success_requests"`
	FailedRequests  int64                 `json:"failed_requests"`
	RouteStats      map[string]*RouteStat `json:"route_stats"`
	StartTime       time.Time             `json:"start_time"`
}

// RouteStat statistics for one route
type RouteStat struct {
	TotalRequests   int64         `json:"total_requests"`
	SuccessRequests int64         `json:"success_requests"`
	FailedRequests  int64         `json:"failed_requests"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	LastRequestTime time.Time     `json:"last_request_time"`
	LastStatus      int           `json:"last_status"`
}

// NewReverseProxy creates the proxy with a shared upstream transport
func NewReverseProxy(m *metrics.Metrics, logger *logrus.Logger) *ReverseProxy {
	return &ReverseProxy{
		transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		metrics: m,
		logger:  logger,
		stats: &ProxyStats{
			RouteStats: make(map[string]*RouteStat),
			StartTime:  time.Now(),
		},
	}
}

// ========================================
// Core proxying
// ========================================

// Forward proxies r to target and writes the upstream response to w
// Inbound headers are never forwarded; the upstream sees only the User-Agent,
// the target's headers and its credential.
// Returns an error only when the outbound request cannot be built; nothing has
// been written to w in that case.
func (p *ReverseProxy) Forward(w http.ResponseWriter, r *http.Request, target *Target) error {
	startTime := time.Now()
	requestID := r.Header.Get(types.HeaderRequestID)

	// 1. Prepare outbound request
	outbound, err := p.prepare(target)
	if err != nil {
		return err
	}

	p.logger.Debugf("[%s] proxy start: route=%s upstream=%s%s", requestID, target.RouteID, outbound.URL.Host, outbound.URL.Path)

	// 2. Build proxy
	failed := false
	proxy := &httputil.ReverseProxy{
		Transport: p.transport,
		Director: func(req *http.Request) {
			req.Method = outbound.Method
			req.URL = outbound.URL
			req.Host = outbound.URL.Host
			req.Header = outbound.Header.Clone()
			// nil value suppresses the X-Forwarded-For the proxy would add
			req.Header["X-Forwarded-For"] = nil
			req.Body = http.NoBody
			req.GetBody = nil
			req.ContentLength = 0
			if target.Body != nil {
				req.Body = io.NopCloser(bytes.NewReader(target.Body))
				req.ContentLength = int64(len(target.Body))
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			for key := range resp.Header {
				if strings.HasPrefix(key, "Access-Control-") {
					resp.Header.Del(key)
				}
			}
			if resp.StatusCode >= http.StatusBadRequest {
				resp.Header.Set(types.HeaderContentType, "application/json")
			} else if resp.Header.Get(types.HeaderContentType) == "" && target.ContentType != "" {
				resp.Header.Set(types.HeaderContentType, target.ContentType)
			}
			if target.OnResponse != nil {
				target.OnResponse(resp.StatusCode)
			}
			return nil
		},
		ErrorHandler: func(rw http.ResponseWriter, req *http.Request, err error) {
			failed = true
			p.logger.Errorf("[%s] proxy failed: route=%s host=%s error=%v", requestID, target.RouteID, outbound.URL.Host, err)
			writeJSON(rw, http.StatusBadGateway, types.ErrorResponse{
				Error:  errorLabel(target),
				Detail: err.Error(),
			})
		},
	}

	// 3. Serve with the route timeout
	responseWriter := &responseWriterWrapper{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
	if responseWriter.Header().Get("Access-Control-Allow-Origin") == "" {
		responseWriter.Header().Set("Access-Control-Allow-Origin", "*")
	}

	ctx := r.Context()
	if target.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, target.Timeout)
		defer cancel()
	}
	proxy.ServeHTTP(responseWriter, r.WithContext(ctx))

	// 4. Record
	duration := time.Since(startTime)
	outcome := "ok"
	switch {
	case failed:
		outcome = "transport_error"
	case responseWriter.statusCode >= http.StatusBadRequest:
		outcome = "upstream_error"
	}
	p.metrics.ObserveUpstream(target.Provider, outcome, duration)
	p.updateStats(target.RouteID, outcome == "ok", responseWriter.statusCode, duration)

	p.logger.Debugf("[%s] proxy done: route=%s status=%d duration=%v", requestID, target.RouteID, responseWriter.statusCode, duration)
	return nil
}

// prepare builds the outbound method, URL and headers, applying the credential
func (p *ReverseProxy) prepare(target *Target) (*http.Request, error) {
	if target.URL == nil {
		return nil, fmt.Errorf("route %s: upstream URL not resolved", target.RouteID)
	}
	method := target.Method
	if method == "" {
		method = http.MethodGet
	}

	outbound, err := http.NewRequest(method, target.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("route %s: invalid upstream URL: %w", target.RouteID, err)
	}

	outbound.Header.Set(types.HeaderUserAgent, types.UserAgent)
	for key, value := range target.Headers {
		outbound.Header.Set(key, value)
	}

	spec := target.Auth
	if spec.Strategy == "" {
		spec.Strategy = types.AuthNone
	}
	if err := auth.Apply(outbound, spec, target.Credential); err != nil {
		return nil, fmt.Errorf("route %s: %w", target.RouteID, err)
	}
	return outbound, nil
}

func errorLabel(target *Target) string {
	if target.ErrorLabel != "" {
		return target.ErrorLabel
	}
	return DefaultErrorMessage
}

// ========================================
// Stats
// ========================================

func (p *ReverseProxy) updateStats(routeID string, success bool, status int, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.TotalRequests++
	if success {
		p.stats.SuccessRequests++
	} else {
		p.stats.FailedRequests++
	}

	routeStat, exists := p.stats.RouteStats[routeID]
	if !exists {
		routeStat = &RouteStat{}
		p.stats.RouteStats[routeID] = routeStat
	}

	routeStat.TotalRequests++
	routeStat.LastRequestTime = time.Now()
	routeStat.LastStatus = status
	if success {
		routeStat.SuccessRequests++
	} else {
		routeStat.FailedRequests++
	}

	// Exponential moving average
	if routeStat.TotalRequests == 1 {
		routeStat.AvgResponseTime = duration
	} else {
		alpha := 0.1
		routeStat.AvgResponseTime = time.Duration(
			float64(routeStat.AvgResponseTime)*(1-alpha) + float64(duration)*alpha,
		)
	}
}

// GetStats returns a snapshot of the proxy statistics
func (p *ReverseProxy) GetStats() *ProxyStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := &ProxyStats{
		TotalRequests:   p.stats.TotalRequests,
		SuccessRequests: p.stats.SuccessRequests,
		FailedRequests:  p.stats.FailedRequests,
		RouteStats:      make(map[string]*RouteStat, len(p.stats.RouteStats)),
		StartTime:       p.stats.StartTime,
	}
	for id, stat := range p.stats.RouteStats {
		copied := *stat
		snapshot.RouteStats[id] = &copied
	}
	return snapshot
}

// ========================================
// Response wrapper
// ========================================

// responseWriterWrapper captures the status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) Write(data []byte) (int, error) {
	return w.ResponseWriter.Write(data)
}

// Flush lets streamed upstream bodies through
func (w *responseWriterWrapper) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ========================================
// Helpers
// ========================================

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set(types.HeaderContentType, "application/json")
	w.WriteHeader(status)
	if data, err := json.Marshal(payload); err == nil {
		_, _ = w.Write(data)
	}
}
