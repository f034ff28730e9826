package adapters

import (
	"context"

	"control-room/gateway/internal/types"
)

// BoardProvider a source of station departure and arrival boards
// Failures are *types.ProviderError so the fallback chain can classify them
type BoardProvider interface {
	// Name provider identifier used as the response provider tag
	Name() string

	// GetBoard fetches and normalizes a station board
	// Parameters:
	//   - ctx: request context
	//   - kind: departures or arrivals
	//   - crs: 3-letter station code, upper case
	//   - rows: maximum services requested
	GetBoard(ctx context.Context, kind types.BoardKind, crs string, rows int) (*types.NormalizedBoard, error)
}

// ServiceDetailsProvider a source of single-service detail records
type ServiceDetailsProvider interface {
	Name() string
	GetServiceDetails(ctx context.Context, serviceID string) (*types.ServiceDetails, error)
}
