package adapters

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"control-room/gateway/internal/config"
	"control-room/gateway/internal/metrics"
	"control-room/gateway/internal/soap"
	"control-room/gateway/internal/types"

	"github.com/sirupsen/logrus"
)

// EnvLDBWSToken access token embedded in the SOAP header
const EnvLDBWSToken = "NRE_LDBWS_TOKEN"

// LDBWSAdapter National Rail Live Departure Boards SOAP adapter
type LDBWSAdapter struct {
	*BaseAdapter
	endpoint string
	store    *config.Store
}

// NewLDBWSAdapter creates the SOAP board adapter
func NewLDBWSAdapter(endpoint types.ProviderEndpoint, store *config.Store, m *metrics.Metrics, logger *logrus.Logger) *LDBWSAdapter {
	return &LDBWSAdapter{
		BaseAdapter: NewBaseAdapter(types.ProviderLDBWS, endpoint.Timeout, m, logger),
		endpoint:    endpoint.BaseURL,
		store:       store,
	}
}

// Endpoint SOAP service URL
func (a *LDBWSAdapter) Endpoint() string {
	return a.endpoint
}

// Configured reports whether the access token is present
func (a *LDBWSAdapter) Configured() bool {
	return a.store.Has(EnvLDBWSToken)
}

// GetBoard implements BoardProvider
func (a *LDBWSAdapter) GetBoard(ctx context.Context, kind types.BoardKind, crs string, rows int) (*types.NormalizedBoard, error) {
	root, err := a.invoke(ctx, soap.BoardMethod(kind), []soap.Param{
		{Name: "numRows", Value: strconv.Itoa(rows)},
		{Name: "crs", Value: crs},
	})
	if err != nil {
		return nil, err
	}
	return soap.ExtractStationBoard(root), nil
}

// GetServiceDetails implements ServiceDetailsProvider
// A response without a details result yields a record carrying only the id.
func (a *LDBWSAdapter) GetServiceDetails(ctx context.Context, serviceID string) (*types.ServiceDetails, error) {
	root, err := a.invoke(ctx, soap.MethodServiceDetails, []soap.Param{
		{Name: "serviceID", Value: serviceID},
	})
	if err != nil {
		return nil, err
	}

	details := soap.ExtractServiceDetails(root, serviceID)
	if details == nil {
		details = &types.ServiceDetails{ServiceID: serviceID, CallingPoints: []types.CallingPoint{}}
	}
	return details, nil
}

// invoke runs one SOAP RPC and returns the fault-free response tree
func (a *LDBWSAdapter) invoke(ctx context.Context, method string, params []soap.Param) (*soap.Node, error) {
	// 1. Token check before any I/O
	token := a.store.Get(EnvLDBWSToken)
	if token == "" {
		return nil, a.configError(EnvLDBWSToken)
	}

	// 2. Build envelope
	envelope, err := soap.BuildEnvelope(token, method, params)
	if err != nil {
		return nil, &types.ProviderError{
			Provider: a.name,
			Kind:     types.ErrorDecode,
			Message:  "failed to build SOAP envelope",
			Detail:   err.Error(),
		}
	}

	// 3. POST
	result := a.call(ctx, http.MethodPost, a.endpoint, bytes.NewReader(envelope), map[string]string{
		types.HeaderContentType: soap.ContentType,
		types.HeaderAccept:      "text/xml",
		types.HeaderSOAPAction:  soap.SOAPAction(method),
	})
	if result.Kind != types.CallOK {
		return nil, a.failure(result, "HTTP", "LDBWS request failed")
	}

	// 4. Parse, faults short-circuit
	root, err := soap.ParseResponse(result.Body)
	if err != nil {
		var fault *soap.FaultError
		if errors.As(err, &fault) {
			a.logger.Warnf("[%s] %s SOAP fault: %s", a.name, method, fault.FaultString)
			return nil, &types.ProviderError{
				Provider: a.name,
				Kind:     types.ErrorFault,
				Message:  "LDBWS SOAP fault",
				Detail:   fault.FaultString,
			}
		}
		return nil, &types.ProviderError{
			Provider: a.name,
			Kind:     types.ErrorDecode,
			Message:  "LDBWS request failed",
			Detail:   err.Error(),
		}
	}
	return root, nil
}
