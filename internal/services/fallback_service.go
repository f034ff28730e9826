// Package services gateway orchestration services
// The fallback chain resolver tries the primary provider for a capability and,
// on any provider failure, the secondary, returning one normalized shape
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"control-room/gateway/internal/adapters"
	"control-room/gateway/internal/metrics"
	"control-room/gateway/internal/types"

	"github.com/sirupsen/logrus"
)

// Capability names used in logs and metrics
const (
	CapabilityBoard   = "board"
	CapabilityService = "service"
)

// Fallback results
const (
	resultPrimary   = "primary"
	resultSecondary = "secondary"
	resultFailed    = "failed"
)

// BoardResult a board plus the provider that produced it
type BoardResult struct {
	Provider string
	Board    *types.NormalizedBoard
}

// ServiceResult service details plus the provider that produced them
type ServiceResult struct {
	Provider string
	Service  *types.ServiceDetails
}

// ChainError both providers failed; neither error is dropped
type ChainError struct {
	Primary  *types.ProviderError
	Fallback *types.ProviderError
}

func (e *ChainError) Error() string {
	if e.Fallback == nil {
		return fmt.Sprintf("primary failed: %v", e.Primary)
	}
	return fmt.Sprintf("primary failed: %v; fallback failed: %v", e.Primary, e.Fallback)
}

// Unwrap exposes the primary failure
func (e *ChainError) Unwrap() error {
	return e.Primary
}

// FallbackResolver ordered two-provider chains for boards and service details
type FallbackResolver struct {
	boards   []adapters.BoardProvider
	services []adapters.ServiceDetailsProvider
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	stats    *ResolverStats
}

// ResolverStats chain outcome counters
type ResolverStats struct {
	TotalRequests  int64         `json:"total_requests"`
	PrimaryHits    int64         `json:"primary_hits"`
	SecondaryHits  int64         `json:"secondary_hits"`
	ChainFailures  int64         `json:"chain_failures"`
	AvgResolveTime time.Duration `json:"avg_resolve_time"`
	mutex          sync.RWMutex
}

// NewFallbackResolver creates the resolver
// Parameters:
//   - primaryBoards, fallbackBoards: board providers in order
//   - primaryServices, fallbackServices: service-detail providers in order
func NewFallbackResolver(
	primaryBoards, fallbackBoards adapters.BoardProvider,
	primaryServices, fallbackServices adapters.ServiceDetailsProvider,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *FallbackResolver {
	return &FallbackResolver{
		boards:   []adapters.BoardProvider{primaryBoards, fallbackBoards},
		services: []adapters.ServiceDetailsProvider{primaryServices, fallbackServices},
		metrics:  m,
		logger:   logger,
		stats:    &ResolverStats{},
	}
}

// ========================================
// Chains
// ========================================

// ResolveBoard fetches a station board, falling back on primary failure
// Returns *ChainError when both providers fail.
func (r *FallbackResolver) ResolveBoard(ctx context.Context, kind types.BoardKind, crs string, rows int) (*BoardResult, error) {
	startTime := time.Now()
	var failures []*types.ProviderError

	for i, provider := range r.boards {
		board, err := provider.GetBoard(ctx, kind, crs, rows)
		if err == nil {
			r.succeeded(CapabilityBoard, i, startTime)
			r.logger.Infof("board %s %s served by %s in %v", kind, crs, provider.Name(), time.Since(startTime))
			return &BoardResult{Provider: provider.Name(), Board: board}, nil
		}

		pe := asProviderError(provider.Name(), err)
		r.logger.Warnf("board %s %s: %s failed: %v", kind, crs, provider.Name(), pe)
		failures = append(failures, pe)
	}

	return nil, r.failed(CapabilityBoard, failures, startTime)
}

// ResolveServiceDetails fetches one service, falling back on primary failure
func (r *FallbackResolver) ResolveServiceDetails(ctx context.Context, serviceID string) (*ServiceResult, error) {
	startTime := time.Now()
	var failures []*types.ProviderError

	for i, provider := range r.services {
		details, err := provider.GetServiceDetails(ctx, serviceID)
		if err == nil {
			r.succeeded(CapabilityService, i, startTime)
			return &ServiceResult{Provider: provider.Name(), Service: details}, nil
		}

		pe := asProviderError(provider.Name(), err)
		r.logger.Warnf("service %s: %s failed: %v", serviceID, provider.Name(), pe)
		failures = append(failures, pe)
	}

	return nil, r.failed(CapabilityService, failures, startTime)
}

// asProviderError classifies a foreign error as a transport failure
func asProviderError(provider string, err error) *types.ProviderError {
	var pe *types.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &types.ProviderError{
		Provider: provider,
		Kind:     types.ErrorTransport,
		Message:  provider + " request failed",
		Detail:   err.Error(),
	}
}

// ========================================
// Stats
// ========================================

func (r *FallbackResolver) succeeded(capability string, index int, startTime time.Time) {
	result := resultPrimary
	if index > 0 {
		result = resultSecondary
	}
	r.metrics.RecordFallback(capability, result)
	r.updateStats(result, time.Since(startTime))
}

func (r *FallbackResolver) failed(capability string, failures []*types.ProviderError, startTime time.Time) error {
	r.metrics.RecordFallback(capability, resultFailed)
	r.updateStats(resultFailed, time.Since(startTime))

	chain := &ChainError{Primary: failures[0]}
	if len(failures) > 1 {
		chain.Fallback = failures[1]
	}
	return chain
}

func (r *FallbackResolver) updateStats(result string, duration time.Duration) {
	r.stats.mutex.Lock()
	defer r.stats.mutex.Unlock()

	r.stats.TotalRequests++
	switch result {
	case resultPrimary:
		r.stats.PrimaryHits++
	case resultSecondary:
		r.stats.SecondaryHits++
	default:
		r.stats.ChainFailures++
	}

	// Exponential moving average
	if r.stats.TotalRequests == 1 {
		r.stats.AvgResolveTime = duration
	} else {
		alpha := 0.1
		r.stats.AvgResolveTime = time.Duration(
			float64(r.stats.AvgResolveTime)*(1-alpha) + float64(duration)*alpha,
		)
	}
}

// GetStats returns a snapshot of the chain counters
func (r *FallbackResolver) GetStats() map[string]interface{} {
	r.stats.mutex.RLock()
	defer r.stats.mutex.RUnlock()

	return map[string]interface{}{
		"total_requests":   r.stats.TotalRequests,
		"primary_hits":     r.stats.PrimaryHits,
		"secondary_hits":   r.stats.SecondaryHits,
		"chain_failures":   r.stats.ChainFailures,
		"avg_resolve_time": r.stats.AvgResolveTime.String(),
	}
}
