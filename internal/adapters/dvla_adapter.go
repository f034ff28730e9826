package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"control-room/gateway/internal/config"
	"control-room/gateway/internal/metrics"
	"control-room/gateway/internal/types"

	"github.com/sirupsen/logrus"
)

// EnvDVLAKey Vehicle Enquiry Service api key
const EnvDVLAKey = "DVLA_API_KEY"

// vehiclesPath Vehicle Enquiry Service lookup path
const vehiclesPath = "/vehicle-enquiry/v1/vehicles"

// DVLAAdapter Vehicle Enquiry Service adapter
type DVLAAdapter struct {
	*BaseAdapter
	baseURL string
	store   *config.Store
}

// vehicleRequest VES request body
type vehicleRequest struct {
	RegistrationNumber string `json:"registrationNumber"`
}

// NewDVLAAdapter creates the vehicle lookup adapter
func NewDVLAAdapter(endpoint types.ProviderEndpoint, store *config.Store, m *metrics.Metrics, logger *logrus.Logger) *DVLAAdapter {
	return &DVLAAdapter{
		BaseAdapter: NewBaseAdapter(types.ProviderDVLA, endpoint.Timeout, m, logger),
		baseURL:     strings.TrimRight(endpoint.BaseURL, "/"),
		store:       store,
	}
}

// Endpoint full lookup URL
func (a *DVLAAdapter) Endpoint() string {
	return a.baseURL + vehiclesPath
}

// Configured reports whether the api key is present
func (a *DVLAAdapter) Configured() bool {
	return a.store.Has(EnvDVLAKey)
}

// NormalizeRegistration strips spaces and upper-cases a registration mark
func NormalizeRegistration(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ToUpper(raw), " ", ""))
}

// LookupVehicle posts a normalized registration and returns the raw upstream result
// The caller forwards status and body; only a missing key is an error here.
func (a *DVLAAdapter) LookupVehicle(ctx context.Context, registration string) (types.UpstreamCallResult, error) {
	key := a.store.Get(EnvDVLAKey)
	if key == "" {
		return types.UpstreamCallResult{}, a.configError(EnvDVLAKey)
	}

	payload, err := json.Marshal(vehicleRequest{RegistrationNumber: registration})
	if err != nil {
		return types.UpstreamCallResult{}, err
	}

	return a.call(ctx, http.MethodPost, a.Endpoint(), bytes.NewReader(payload), map[string]string{
		types.HeaderAccept:      "application/json",
		types.HeaderContentType: "application/json",
		types.HeaderDVLAKey:     key,
	}), nil
}
