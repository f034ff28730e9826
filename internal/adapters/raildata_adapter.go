package adapters

import (
	"context"
	"net/http"

	"control-room/gateway/internal/config"
	"control-room/gateway/internal/metrics"
	"control-room/gateway/internal/types"
	"control-room/gateway/pkg/utils"

	"github.com/sirupsen/logrus"
)

// RailData live endpoint configuration keys
const (
	EnvRailDataAPIKey       = "RAILDATA_API_KEY"
	EnvLiveDepartureURL     = "RAILDATA_LIVE_DEPARTURE_URL"
	EnvLiveDepartureAPIKey  = "RAILDATA_LIVE_DEPARTURE_API_KEY"
	EnvLiveBoardURL         = "RAILDATA_LIVE_BOARD_URL"
	EnvLiveBoardAPIKey      = "RAILDATA_LIVE_BOARD_API_KEY"
	EnvServiceDetailsURL    = "RAILDATA_SERVICE_DETAILS_URL"
	EnvServiceDetailsAPIKey = "RAILDATA_SERVICE_DETAILS_API_KEY"
)

const (
	errMissingTemplateValues   = "Missing template values"
	railDataBoardHTTPMessage   = "RailData board HTTP"
	railDataServiceHTTPMessage = "RailData service HTTP"
)

// liveTemplate a configured URL template and its api key
type liveTemplate struct {
	urlKey string
	keyKey string
}

var boardTemplates = map[types.BoardKind]liveTemplate{
	types.BoardDepartures: {urlKey: EnvLiveDepartureURL, keyKey: EnvLiveDepartureAPIKey},
	types.BoardArrivals:   {urlKey: EnvLiveBoardURL, keyKey: EnvLiveBoardAPIKey},
}

var serviceTemplate = liveTemplate{urlKey: EnvServiceDetailsURL, keyKey: EnvServiceDetailsAPIKey}

// RailDataLiveAdapter RailData REST live board and service-details adapter
// URL templates and keys come from the secret store; templates are absolute URLs.
type RailDataLiveAdapter struct {
	*BaseAdapter
	store *config.Store
}

// NewRailDataLiveAdapter creates the REST fallback adapter
func NewRailDataLiveAdapter(endpoint types.ProviderEndpoint, store *config.Store, m *metrics.Metrics, logger *logrus.Logger) *RailDataLiveAdapter {
	return &RailDataLiveAdapter{
		BaseAdapter: NewBaseAdapter(types.ProviderRailData, endpoint.Timeout, m, logger),
		store:       store,
	}
}

// BoardReady reports whether the template and a key for kind are configured
func (a *RailDataLiveAdapter) BoardReady(kind types.BoardKind) bool {
	tpl, ok := boardTemplates[kind]
	if !ok {
		return false
	}
	return a.ready(tpl)
}

func (a *RailDataLiveAdapter) ready(tpl liveTemplate) bool {
	key, _ := a.store.FirstOf(tpl.keyKey, EnvRailDataAPIKey)
	return a.store.Has(tpl.urlKey) && key != ""
}

// GetBoard implements BoardProvider
// rows is not part of the REST contract and is ignored.
func (a *RailDataLiveAdapter) GetBoard(ctx context.Context, kind types.BoardKind, crs string, _ int) (*types.NormalizedBoard, error) {
	tpl, ok := boardTemplates[kind]
	if !ok {
		tpl = boardTemplates[types.BoardDepartures]
	}

	raw, err := a.fetch(ctx, tpl, map[string]string{"crs": crs}, railDataBoardHTTPMessage, "RailData board request failed")
	if err != nil {
		return nil, err
	}
	return NormalizeRailDataBoard(raw, crs), nil
}

// GetServiceDetails implements ServiceDetailsProvider
func (a *RailDataLiveAdapter) GetServiceDetails(ctx context.Context, serviceID string) (*types.ServiceDetails, error) {
	raw, err := a.fetch(ctx, serviceTemplate, map[string]string{"serviceid": serviceID}, railDataServiceHTTPMessage, "RailData service request failed")
	if err != nil {
		return nil, err
	}
	return NormalizeRailDataService(raw, serviceID), nil
}

// fetch renders the template and GETs the JSON payload
// Every configuration check happens before the request is issued.
func (a *RailDataLiveAdapter) fetch(ctx context.Context, tpl liveTemplate, values map[string]string, httpMessage, transportMessage string) (interface{}, error) {
	// 1. Template
	template := a.store.Get(tpl.urlKey)
	if template == "" {
		return nil, a.configError(tpl.urlKey)
	}
	url, missing := utils.RenderURLTemplate(template, values)
	if len(missing) > 0 {
		return nil, &types.ProviderError{
			Provider: a.name,
			Kind:     types.ErrorConfig,
			Message:  errMissingTemplateValues,
			Missing:  missing,
		}
	}

	// 2. Key, endpoint specific first
	key, _ := a.store.FirstOf(tpl.keyKey, EnvRailDataAPIKey)
	if key == "" {
		return nil, a.configError(tpl.keyKey, tpl.keyKey, EnvRailDataAPIKey)
	}

	// 3. Request
	result := a.call(ctx, http.MethodGet, url, nil, map[string]string{
		types.HeaderAccept:      "application/json",
		types.HeaderRailDataKey: key,
	})
	if result.Kind != types.CallOK {
		return nil, a.failure(result, httpMessage, transportMessage)
	}

	var raw interface{}
	if err := a.parseJSONResponse(result.Body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
