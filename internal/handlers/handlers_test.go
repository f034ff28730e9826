package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"control-room/gateway/internal/adapters"
	"control-room/gateway/internal/auth"
	"control-room/gateway/internal/config"
	"control-room/gateway/internal/middleware"
	"control-room/gateway/internal/proxy"
	"control-room/gateway/internal/services"
	"control-room/gateway/internal/stations"
	"control-room/gateway/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ========================================
// Harness
// ========================================

// fakeUpstream counts calls and keeps the last request seen
type fakeUpstream struct {
	*httptest.Server
	calls atomic.Int32

	mu       sync.Mutex
	lastReq  *http.Request
	lastBody []byte
}

func newFakeUpstream(t *testing.T, fn http.HandlerFunc) *fakeUpstream {
	u := &fakeUpstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.lastReq = r.Clone(r.Context())
		u.lastBody = body
		u.mu.Unlock()
		fn(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *fakeUpstream) last() (*http.Request, []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastReq, u.lastBody
}

func jsonReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func endpoint(base string) types.ProviderEndpoint {
	return types.ProviderEndpoint{BaseURL: base, Timeout: 2 * time.Second}
}

// unreachable endpoint for providers a test does not exercise
const unreachable = "http://127.0.0.1:1"

func testProviders() types.ProvidersConfig {
	return types.ProvidersConfig{
		CompaniesHouse: endpoint(unreachable),
		TfL:            endpoint(unreachable),
		Postcodes:      endpoint(unreachable),
		WebTRIS:        endpoint(unreachable),
		OSPlaces:       endpoint(unreachable),
		LDBWS:          endpoint(unreachable),
		Nominatim:      endpoint(unreachable),
		Aviationstack:  endpoint(unreachable),
		StationCatalog: endpoint(unreachable),
		DVLA:           endpoint(unreachable),
		RailData:       endpoint(unreachable),
		RailDataAuth:   endpoint(unreachable),
		RailDataLive:   endpoint(""),
		FR24Feed:       endpoint(unreachable),
		FR24Details:    endpoint(unreachable),
	}
}

func newTestGateway(t *testing.T, secrets map[string]string, configure func(*types.ProvidersConfig)) *gin.Engine {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	providers := testProviders()
	if configure != nil {
		configure(&providers)
	}
	cfg := &types.Config{
		Security: types.SecurityConfig{
			RailDataAllowedHosts: []string{"127.0.0.1", "api1.raildata.org.uk"},
		},
		Providers: providers,
	}
	store := config.NewStore(secrets)

	ldbws := adapters.NewLDBWSAdapter(providers.LDBWS, store, nil, logger)
	raildata := adapters.NewRailDataLiveAdapter(providers.RailDataLive, store, nil, logger)

	h := NewGatewayHandler(Dependencies{
		Config:    cfg,
		Store:     store,
		Proxy:     proxy.NewReverseProxy(nil, logger),
		Resolver:  services.NewFallbackResolver(ldbws, raildata, ldbws, raildata, nil, logger),
		Catalog:   stations.NewCatalog(providers.StationCatalog, nil, logger),
		Tokens:    auth.NewTokenSource(types.ProviderRailData, providers.RailDataAuth, store, nil, logger),
		LDBWS:     ldbws,
		RailData:  raildata,
		Schedules: adapters.NewAviationstackAdapter(providers.Aviationstack, store, nil, logger),
		Flights:   adapters.NewFlightRadarAdapter(providers.FR24Feed, providers.FR24Details, nil, logger),
		Vehicles:  adapters.NewDVLAAdapter(providers.DVLA, store, nil, logger),
		Logger:    logger,
	})

	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/health", h.HealthCheck)
	router.GET("/gateway/stats", h.GetStats)
	router.NoRoute(h.HandleRequest)
	return router
}

func do(router *gin.Engine, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// ========================================
// Dispatch
// ========================================

func TestMissingSecretMakesNoUpstreamCall(t *testing.T) {
	upstream := newFakeUpstream(t, jsonReply(http.StatusOK, `{}`))
	router := newTestGateway(t, nil, func(p *types.ProvidersConfig) {
		p.CompaniesHouse = endpoint(upstream.URL)
		p.OSPlaces = endpoint(upstream.URL)
		p.DVLA = endpoint(upstream.URL)
	})

	tests := []struct {
		name    string
		method  string
		target  string
		body    string
		wantErr string
	}{
		{"companies house", http.MethodGet, "/ch/company/00000006", "", "CH_API_KEY not set"},
		{"os places", http.MethodGet, "/osplaces/postcode?postcode=SW1A1AA", "", "OS_PLACES_API_KEY not set"},
		{"dvla", http.MethodPost, "/dvla/vehicle", `{"registrationNumber":"AB12CDE"}`, "DVLA_API_KEY not set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, tt.method, tt.target, strings.NewReader(tt.body))

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.wantErr, body["error"])
			assert.Equal(t, types.ErrCodeConfigMissing, body["code"])
		})
	}
	assert.EqualValues(t, 0, upstream.calls.Load())
}

func TestPrefixMatchingRespectsBoundaries(t *testing.T) {
	router := newTestGateway(t, nil, nil)

	for _, target := range []string{"/charlie", "/nre/services", "/raildata/healthz", "/unknown"} {
		w := do(router, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, target)
		assert.JSONEq(t, `{"error":"Not found"}`, w.Body.String(), target)
	}
}

func TestMethodMismatchIsNotFound(t *testing.T) {
	router := newTestGateway(t, nil, nil)

	w := do(router, http.MethodPost, "/nre/health", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodGet, "/dvla/vehicle", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouteTableLongestPrefixFirst(t *testing.T) {
	table := NewRouteTable(DefaultRoutes(testProviders()))

	route, remainder, ok := table.Match("/raildata/performance/reference")
	require.True(t, ok)
	assert.Equal(t, RoutePerformanceRef, route.ID)
	assert.Empty(t, remainder)

	route, _, ok = table.Match("/raildata/feeds/available")
	require.True(t, ok)
	assert.Equal(t, RouteFeedsAvailable, route.ID)

	route, remainder, ok = table.Match("/raildata/kb/tocs")
	require.True(t, ok)
	assert.Equal(t, RouteKB, route.ID)
	assert.Equal(t, "tocs", remainder)

	_, _, ok = table.Match("/nre/services")
	assert.False(t, ok)
}

// ========================================
// Passthrough
// ========================================

func TestPassthroughStripsPrefixAndIsIdempotent(t *testing.T) {
	upstream := newFakeUpstream(t, jsonReply(http.StatusOK, `{"company_name":"TEST LTD"}`))
	router := newTestGateway(t, map[string]string{EnvCompaniesHouseKey: "chkey"}, func(p *types.ProvidersConfig) {
		p.CompaniesHouse = endpoint(upstream.URL)
	})

	first := do(router, http.MethodGet, "/ch/company/00000006?items_per_page=5", nil)
	second := do(router, http.MethodGet, "/ch/company/00000006?items_per_page=5", nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.EqualValues(t, 2, upstream.calls.Load())

	req, _ := upstream.last()
	require.NotNil(t, req)
	assert.Equal(t, "/company/00000006", req.URL.Path)
	assert.Equal(t, "items_per_page=5", req.URL.RawQuery)
	assert.Equal(t, "Basic Y2hrZXk6", req.Header.Get(types.HeaderAuthorization))
}

func TestOSPlacesAddsFixedParameters(t *testing.T) {
	upstream := newFakeUpstream(t, jsonReply(http.StatusOK, `{"results":[]}`))
	router := newTestGateway(t, map[string]string{EnvOSPlacesKey: "oskey"}, func(p *types.ProvidersConfig) {
		p.OSPlaces = endpoint(upstream.URL)
	})

	w := do(router, http.MethodGet, "/osplaces/postcode", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.EqualValues(t, 0, upstream.calls.Load())

	w = do(router, http.MethodGet, "/osplaces/postcode?postcode=SW1A%201AA", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	req, _ := upstream.last()
	require.NotNil(t, req)
	q := req.URL.Query()
	assert.Equal(t, "/postcode", req.URL.Path)
	assert.Equal(t, "SW1A 1AA", q.Get("postcode"))
	assert.Equal(t, "1", q.Get("maxresults"))
	assert.Equal(t, "EPSG:4326", q.Get("output_srs"))
	assert.Equal(t, "oskey", q.Get("key"))
}

// ========================================
// National Rail
// ========================================

func TestBoardFallsBackToRailData(t *testing.T) {
	upstream := newFakeUpstream(t, jsonReply(http.StatusOK, `{
		"locationName": "London Kings Cross",
		"crs": "KGX",
		"trainServices": [{"serviceID": "svc-1", "std": "10:00", "etd": "On time"}]
	}`))
	router := newTestGateway(t, map[string]string{
		adapters.EnvLiveDepartureURL: upstream.URL + "/board/{crs}",
		adapters.EnvRailDataAPIKey:   "rdkey",
	}, nil)

	w := do(router, http.MethodGet, "/nre/departures?crs=kgx", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, types.ProviderRailData, body["provider"])
	board := body["board"].(map[string]interface{})
	assert.Equal(t, "London Kings Cross", board["locationName"])
	services := board["services"].([]interface{})
	require.Len(t, services, 1)
	assert.Equal(t, "svc-1", services[0].(map[string]interface{})["serviceID"])

	req, _ := upstream.last()
	require.NotNil(t, req)
	assert.Equal(t, "/board/KGX", req.URL.Path)
	assert.Equal(t, "rdkey", req.Header.Get(types.HeaderRailDataKey))
}

func TestBoardReportsBothFailures(t *testing.T) {
	router := newTestGateway(t, nil, nil)

	w := do(router, http.MethodGet, "/nre/arrivals?crs=KGX", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	body := decode(t, w)
	assert.Equal(t, "NRE_LDBWS_TOKEN not set", body["error"])
	assert.Equal(t, types.ErrCodeBadGateway, body["code"])
	fallback, ok := body["fallback"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	assert.Equal(t, adapters.EnvLiveBoardURL+" not set", fallback["error"])
}

func TestBoardRequiresThreeLetterCode(t *testing.T) {
	router := newTestGateway(t, nil, nil)

	for _, target := range []string{"/nre/departures", "/nre/departures?crs=KG", "/nre/departures?crs=KGXX"} {
		w := do(router, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestNREHealthReportsProvider(t *testing.T) {
	router := newTestGateway(t, map[string]string{
		adapters.EnvLiveDepartureURL: "https://api1.raildata.org.uk/board/{crs}",
		adapters.EnvRailDataAPIKey:   "rdkey",
	}, nil)

	w := do(router, http.MethodGet, "/nre/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["configured"])
	assert.Equal(t, "raildata", body["provider"])
	fallback := body["fallback"].(map[string]interface{})
	assert.Equal(t, true, fallback["raildata_departures_ready"])
	assert.Equal(t, false, fallback["raildata_arrivals_ready"])
}

func TestStationSearch(t *testing.T) {
	catalog := newFakeUpstream(t, jsonReply(http.StatusOK, `[
		{"crsCode": "KGX", "stationName": "London Kings Cross", "constituentCountry": "england", "lat": 51.5308, "long": -0.1238},
		{"crsCode": "STP", "stationName": "London St Pancras International", "constituentCountry": "england", "lat": 51.5322, "long": -0.1270},
		{"crsCode": "EDB", "stationName": "Edinburgh", "constituentCountry": "scotland", "lat": 55.9521, "long": -3.1890}
	]`))
	router := newTestGateway(t, nil, func(p *types.ProvidersConfig) {
		p.StationCatalog = endpoint(catalog.URL)
	})

	w := do(router, http.MethodGet, "/nre/stations?q=kings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	found := decode(t, w)["stations"].([]interface{})
	require.NotEmpty(t, found)
	assert.Equal(t, "KGX", found[0].(map[string]interface{})["crs"])

	w = do(router, http.MethodGet, "/nre/stations?crs=KGX&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "KGX", body["base"].(map[string]interface{})["crs"])
	nearby := body["stations"].([]interface{})
	require.NotEmpty(t, nearby)
	assert.Equal(t, "STP", nearby[0].(map[string]interface{})["crs"])

	w = do(router, http.MethodGet, "/nre/stations?crs=ZZZ", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Nil(t, body["base"])
	assert.Empty(t, body["stations"])

	// the catalog is fetched once and shared
	assert.EqualValues(t, 1, catalog.calls.Load())
}

// ========================================
// RailData
// ========================================

func TestRailDataProxyBlocksUnlistedHost(t *testing.T) {
	router := newTestGateway(t, map[string]string{auth.EnvDirectToken: "direct"}, nil)

	w := do(router, http.MethodGet, "/raildata/proxy?url=https://evil.example.com/feed", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	assert.Equal(t, "Blocked RailData URL host", body["error"])
	assert.Equal(t, "https://evil.example.com/feed", body["url"])
	assert.ElementsMatch(t, []interface{}{"127.0.0.1", "api1.raildata.org.uk"}, body["allowed_hosts"])
}

func TestRailDataProxyValidatesParameters(t *testing.T) {
	router := newTestGateway(t, nil, nil)

	w := do(router, http.MethodGet, "/raildata/proxy", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "url query parameter required", decode(t, w)["error"])

	w = do(router, http.MethodGet, "/raildata/proxy?url=https://api1.raildata.org.uk/x&auth=oauth", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "auth must be token|basic|apikey|none", decode(t, w)["error"])
}

func TestRailDataTokenInvalidatedOn401(t *testing.T) {
	var exchanges, feeds atomic.Int32
	upstream := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/token":
			exchanges.Add(1)
			jsonReply(http.StatusOK, `{"token":"tok-1"}`)(w, r)
		case "/api/feeds":
			if feeds.Add(1) == 1 {
				jsonReply(http.StatusUnauthorized, `{"error":"expired"}`)(w, r)
				return
			}
			jsonReply(http.StatusOK, `{"feeds":[]}`)(w, r)
		default:
			http.NotFound(w, r)
		}
	})
	router := newTestGateway(t, map[string]string{
		auth.EnvUsername: "user@example.com",
		auth.EnvPassword: "secret",
	}, func(p *types.ProvidersConfig) {
		p.RailData = endpoint(upstream.URL)
		p.RailDataAuth = endpoint(upstream.URL)
	})

	w := do(router, http.MethodGet, "/raildata/feeds", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.EqualValues(t, 1, exchanges.Load())

	w = do(router, http.MethodGet, "/raildata/feeds", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, exchanges.Load())

	req, _ := upstream.last()
	require.NotNil(t, req)
	assert.Equal(t, "tok-1", req.Header.Get(types.HeaderAuthToken))
}

func TestRailDataTokenMissingCredentials(t *testing.T) {
	router := newTestGateway(t, nil, nil)

	w := do(router, http.MethodGet, "/raildata/user", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Contains(t, body["error"], "RAILDATA credentials not set")
	assert.Equal(t, types.ErrCodeConfigMissing, body["code"])
}

func TestRailDataTemplateRoutes(t *testing.T) {
	upstream := newFakeUpstream(t, jsonReply(http.StatusOK, `{"ok":true}`))

	t.Run("url not configured", func(t *testing.T) {
		router := newTestGateway(t, nil, nil)
		w := do(router, http.MethodGet, "/raildata/naptan", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, "RAILDATA_NAPTAN_URL not set", body["error"])
		assert.Equal(t, raildataURLHint, body["hint"])
	})

	t.Run("missing template values", func(t *testing.T) {
		router := newTestGateway(t, map[string]string{
			"RAILDATA_NWR_PERFORMANCE_URL": upstream.URL + "/performance/{stanoxGroup}",
			adapters.EnvRailDataAPIKey:     "rdkey",
		}, nil)
		w := do(router, http.MethodGet, "/raildata/performance", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Missing required query parameter(s)", body["error"])
		assert.Equal(t, []interface{}{"stanoxGroup"}, body["missing"])
		assert.EqualValues(t, 0, upstream.calls.Load())
	})

	t.Run("rendered with endpoint key", func(t *testing.T) {
		router := newTestGateway(t, map[string]string{
			adapters.EnvLiveBoardURL:    upstream.URL + "/live/{crs}",
			adapters.EnvLiveBoardAPIKey: "boardkey",
			adapters.EnvRailDataAPIKey:  "rdkey",
		}, nil)
		w := do(router, http.MethodGet, "/raildata/live-board?crs=kgx", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		req, _ := upstream.last()
		require.NotNil(t, req)
		assert.Equal(t, "/live/KGX", req.URL.Path)
		assert.Equal(t, "boardkey", req.Header.Get(types.HeaderRailDataKey))
	})
}

func TestKBFeeds(t *testing.T) {
	upstream := newFakeUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, `<TrainOperatingCompanyList/>`)
	})
	router := newTestGateway(t, map[string]string{adapters.EnvRailDataAPIKey: "rdkey"}, func(p *types.ProvidersConfig) {
		p.RailData = endpoint(upstream.URL)
	})

	w := do(router, http.MethodGet, "/raildata/kb/Tocs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `<TrainOperatingCompanyList/>`, w.Body.String())
	req, _ := upstream.last()
	require.NotNil(t, req)
	assert.Equal(t, RailDataKBFeeds["tocs"], req.URL.Path)
	assert.Equal(t, "rdkey", req.Header.Get(types.HeaderRailDataKey))

	w = do(router, http.MethodGet, "/raildata/kb/timetable", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Unknown KB feed", body["error"])
	assert.Equal(t, "timetable", body["feed"])
	assert.Len(t, body["supported_feeds"], len(RailDataKBFeeds))
}

func TestRailDataHealth(t *testing.T) {
	router := newTestGateway(t, map[string]string{adapters.EnvRailDataAPIKey: "rdkey"}, nil)

	w := do(router, http.MethodGet, "/raildata/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["configured"])
	assert.Equal(t, "apikey", body["auth_mode"])
	assert.Len(t, body["kb_feeds"], len(RailDataKBFeeds))
}

// ========================================
// Flights and vehicles
// ========================================

func TestScheduleLookup(t *testing.T) {
	upstream := newFakeUpstream(t, jsonReply(http.StatusOK, `{"data": [
		{"flight_status": "", "flight": {"iata": "BA1"}, "airline": {"name": "Other"}},
		{"flight_status": "active", "live": {"altitude": 1000}, "flight": {"iata": "BA117"}, "airline": {"name": "British Airways"},
		 "departure": {"iata": "LHR", "scheduled": "2024-01-01T10:00:00+00:00"}, "arrival": {"iata": "JFK"}}
	]}`))

	router := newTestGateway(t, nil, nil)
	w := do(router, http.MethodGet, "/flight/schedule?callsign=ba117", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["ok"])

	router = newTestGateway(t, map[string]string{adapters.EnvAviationstackKey: "avkey"}, func(p *types.ProvidersConfig) {
		p.Aviationstack = endpoint(upstream.URL)
	})

	w = do(router, http.MethodGet, "/flight/schedule", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/flight/schedule?callsign=ba117", nil)
	require.Equal(t, http.StatusOK, w.Code)
	flight := decode(t, w)["flight"].(map[string]interface{})
	assert.Equal(t, "BA117", flight["flight_code"])
	assert.Equal(t, "active", flight["status"])
	assert.Equal(t, "LHR", flight["departure"].(map[string]interface{})["airport"])

	req, _ := upstream.last()
	require.NotNil(t, req)
	assert.Equal(t, "BA117", req.URL.Query().Get("flight_iata"))
	assert.Equal(t, "avkey", req.URL.Query().Get("access_key"))
}

func TestFlightDetailsRequiresID(t *testing.T) {
	router := newTestGateway(t, nil, nil)

	w := do(router, http.MethodGet, "/api/flightradar/flight", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"ok":false,"error":"Missing id"}`, w.Body.String())
}

func TestVehicleLookup(t *testing.T) {
	upstream := newFakeUpstream(t, jsonReply(http.StatusOK, `{"registrationNumber":"AB12CDE","make":"FORD"}`))
	router := newTestGateway(t, map[string]string{adapters.EnvDVLAKey: "dvlakey"}, func(p *types.ProvidersConfig) {
		p.DVLA = endpoint(upstream.URL)
	})

	w := do(router, http.MethodPost, "/dvla/vehicle", strings.NewReader(`{"registrationNumber":"ab12 cde"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"registrationNumber":"AB12CDE","make":"FORD"}`, w.Body.String())

	req, body := upstream.last()
	require.NotNil(t, req)
	assert.Equal(t, "dvlakey", req.Header.Get(types.HeaderDVLAKey))
	assert.JSONEq(t, `{"registrationNumber":"AB12CDE"}`, string(body))

	for _, payload := range []string{"", `{}`, `{"registrationNumber":"   "}`} {
		w = do(router, http.MethodPost, "/dvla/vehicle", strings.NewReader(payload))
		assert.Equal(t, http.StatusBadRequest, w.Code, payload)
		assert.Equal(t, "registrationNumber is required", decode(t, w)["error"])
	}

	w = do(router, http.MethodPost, "/dvla/vehicle", strings.NewReader(`{not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON body", decode(t, w)["error"])

	assert.EqualValues(t, 1, upstream.calls.Load())
}

// ========================================
// Self endpoints
// ========================================

func TestHealthAndStats(t *testing.T) {
	router := newTestGateway(t, map[string]string{adapters.EnvDVLAKey: "dvlakey"}, nil)

	w := do(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	providers := body["providers"].(map[string]interface{})
	assert.Equal(t, true, providers["dvla"])
	assert.Equal(t, false, providers["ldbws"])

	w = do(router, http.MethodGet, "/gateway/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.Contains(t, stats, "proxy")
	assert.Contains(t, stats, "fallback")
	assert.Contains(t, stats["adapters"], types.ProviderDVLA)
}
