package handlers

import (
	"net/http"
	"sort"
	"strings"

	"control-room/gateway/internal/adapters"
	"control-room/gateway/internal/types"
)

// Route identifiers
const (
	RouteCompaniesHouse = "ch"
	RouteTfL            = "tfl"
	RoutePostcodes      = "postcodes"
	RouteWebTRIS        = "webtris"
	RouteOSPlaces       = "osplaces-postcode"
	RouteGeoSearch      = "geo-search"
	RouteNREHealth      = "nre-health"
	RouteNREDepartures  = "nre-departures"
	RouteNREArrivals    = "nre-arrivals"
	RouteNREService     = "nre-service"
	RouteNREStations    = "nre-stations"
	RouteRailDataHealth = "raildata-health"
	RouteFeedsAvailable = "raildata-feeds-available"
	RouteFeeds          = "raildata-feeds"
	RouteUser           = "raildata-user"
	RouteKB             = "raildata-kb"
	RouteDisruptions    = "raildata-disruptions"
	RoutePerformanceRef = "raildata-performance-reference"
	RoutePerformance    = "raildata-performance"
	RouteReference      = "raildata-reference"
	RouteNaPTAN         = "raildata-naptan"
	RouteNPTG           = "raildata-nptg"
	RouteServiceDetails = "raildata-service-details"
	RouteLiveBoard      = "raildata-live-board"
	RouteRailDataProxy  = "raildata-proxy"
	RouteFlights        = "flightradar-flights"
	RouteFlight         = "flightradar-flight"
	RouteFlightSchedule = "flight-schedule"
	RouteDVLAHealth     = "dvla-health"
	RouteDVLAVehicle    = "dvla-vehicle"
)

const (
	raildataURLHint       = "Paste the exact subscribed endpoint URL from Rail Data My Feeds."
	raildataLiveBoardHint = "Paste Live Arrival and Departure Boards endpoint URL from Rail Data My Feeds."
)

// Secret and endpoint keys read by the route table
const (
	EnvCompaniesHouseKey = "CH_API_KEY"
	EnvOSPlacesKey       = "OS_PLACES_API_KEY"
	EnvDisruptionsURL    = "RAILDATA_DISRUPTIONS_URL"
)

// RailDataKBFeeds knowledge-base static feeds and their upstream paths
var RailDataKBFeeds = map[string]string{
	"stations":            "/api/staticfeeds/4.0/stations",
	"tocs":                "/api/staticfeeds/4.0/tocs",
	"incidents":           "/api/staticfeeds/5.0/incidents",
	"service-indicators":  "/api/staticfeeds/4.0/serviceIndicators",
	"ticket-restrictions": "/api/staticfeeds/4.0/ticket-restrictions",
	"ticket-types":        "/api/staticfeeds/4.0/ticket-types",
	"promotions-public":   "/api/staticfeeds/4.0/promotions-publics",
	"routeing":            "/api/staticfeeds/2.0/routeing",
}

// kbOverride explicit URL override for one KB feed
type kbOverride struct {
	urlKey string
	keyKey string
}

var kbOverrides = map[string]kbOverride{
	"tocs":     {urlKey: "RAILDATA_TOC_URL", keyKey: "RAILDATA_TOC_API_KEY"},
	"stations": {urlKey: "RAILDATA_KB_STATIONS_URL", keyKey: "RAILDATA_KB_STATIONS_API_KEY"},
}

// KBFeedNames sorted feed names
func KBFeedNames() []string {
	names := make([]string, 0, len(RailDataKBFeeds))
	for name := range RailDataKBFeeds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var get = []string{http.MethodGet}

// DefaultRoutes builds the static route table from provider endpoints
func DefaultRoutes(p types.ProvidersConfig) []types.Route {
	rd := p.RailData
	return []types.Route{
		// Pure passthrough proxies
		{ID: RouteCompaniesHouse, Prefix: "/ch/", Methods: get, Upstream: p.CompaniesHouse.BaseURL, Rewrite: types.RewriteStripPrefix,
			Auth: types.AuthSpec{Strategy: types.AuthBasic}, Requires: []types.SecretRef{{Name: EnvCompaniesHouseKey}}, Timeout: p.CompaniesHouse.Timeout},
		{ID: RouteTfL, Prefix: "/tfl/", Methods: get, Upstream: p.TfL.BaseURL, Rewrite: types.RewriteStripPrefix, Timeout: p.TfL.Timeout},
		{ID: RoutePostcodes, Prefix: "/postcodes/", Methods: get, Upstream: p.Postcodes.BaseURL, Rewrite: types.RewriteStripPrefix, Timeout: p.Postcodes.Timeout},
		{ID: RouteWebTRIS, Prefix: "/webtris/", Methods: get, Upstream: p.WebTRIS.BaseURL, Rewrite: types.RewriteStripPrefix, Timeout: p.WebTRIS.Timeout},

		// Fixed upstream paths
		{ID: RouteOSPlaces, Prefix: "/osplaces/postcode", Methods: get, Upstream: p.OSPlaces.BaseURL, Path: "/postcode", Rewrite: types.RewriteFixed,
			Auth: types.AuthSpec{Strategy: types.AuthAPIKeyQuery, Param: "key"}, Requires: []types.SecretRef{{Name: EnvOSPlacesKey}}, Timeout: p.OSPlaces.Timeout},
		{ID: RouteGeoSearch, Prefix: "/geo/search", Methods: get, Upstream: p.Nominatim.BaseURL, Rewrite: types.RewriteFixed, Timeout: p.Nominatim.Timeout},

		// National Rail boards with fallback
		{ID: RouteNREHealth, Prefix: "/nre/health", Methods: get, Rewrite: types.RewriteCustom},
		{ID: RouteNREDepartures, Prefix: "/nre/departures", Methods: get, Upstream: p.LDBWS.BaseURL, Rewrite: types.RewriteCustom,
			Auth: types.AuthSpec{Strategy: types.AuthSOAPToken}, Fallback: types.ProviderRailData, Timeout: p.LDBWS.Timeout},
		{ID: RouteNREArrivals, Prefix: "/nre/arrivals", Methods: get, Upstream: p.LDBWS.BaseURL, Rewrite: types.RewriteCustom,
			Auth: types.AuthSpec{Strategy: types.AuthSOAPToken}, Fallback: types.ProviderRailData, Timeout: p.LDBWS.Timeout},
		{ID: RouteNREService, Prefix: "/nre/service", Methods: get, Upstream: p.LDBWS.BaseURL, Rewrite: types.RewriteCustom,
			Auth: types.AuthSpec{Strategy: types.AuthSOAPToken}, Fallback: types.ProviderRailData, Timeout: p.LDBWS.Timeout},
		{ID: RouteNREStations, Prefix: "/nre/stations", Methods: get, Upstream: p.StationCatalog.BaseURL, Rewrite: types.RewriteCustom},

		// RailData helpers
		{ID: RouteRailDataHealth, Prefix: "/raildata/health", Methods: get, Rewrite: types.RewriteCustom},
		{ID: RouteFeedsAvailable, Prefix: "/raildata/feeds/available", Methods: get, Upstream: rd.BaseURL, Path: "/api/feeds/available",
			Rewrite: types.RewriteFixed, Auth: types.AuthSpec{Strategy: types.AuthExchangeToken}, Timeout: rd.Timeout},
		{ID: RouteFeeds, Prefix: "/raildata/feeds", Methods: get, Upstream: rd.BaseURL, Path: "/api/feeds",
			Rewrite: types.RewriteFixed, Auth: types.AuthSpec{Strategy: types.AuthExchangeToken}, Timeout: rd.Timeout},
		{ID: RouteUser, Prefix: "/raildata/user", Methods: get, Upstream: rd.BaseURL, Path: "/api/user",
			Rewrite: types.RewriteFixed, Auth: types.AuthSpec{Strategy: types.AuthExchangeToken}, Timeout: rd.Timeout},
		{ID: RouteKB, Prefix: "/raildata/kb/", Methods: get, Upstream: rd.BaseURL, Rewrite: types.RewriteCustom,
			APIKeyNames: []string{adapters.EnvRailDataAPIKey, "RAILDATA_TOC_API_KEY", "RAILDATA_KB_STATIONS_API_KEY"}, Timeout: rd.Timeout},
		{ID: RouteDisruptions, Prefix: "/raildata/disruptions", Methods: get, Upstream: rd.BaseURL, Path: RailDataKBFeeds["incidents"],
			Rewrite: types.RewriteFixed, URLConfigKey: EnvDisruptionsURL,
			APIKeyNames: []string{"RAILDATA_DISRUPTIONS_API_KEY", adapters.EnvRailDataAPIKey}, Timeout: rd.Timeout},
		{ID: RoutePerformanceRef, Prefix: "/raildata/performance/reference", Methods: get, Rewrite: types.RewriteTemplate,
			URLConfigKey: "RAILDATA_NWR_PERFORMANCE_REFERENCE_URL", Hint: raildataURLHint,
			APIKeyNames: []string{"RAILDATA_NWR_PERFORMANCE_REFERENCE_API_KEY", adapters.EnvRailDataAPIKey}, Timeout: rd.Timeout},
		{ID: RoutePerformance, Prefix: "/raildata/performance", Methods: get, Rewrite: types.RewriteTemplate,
			URLConfigKey: "RAILDATA_NWR_PERFORMANCE_URL", TemplateParams: []string{"stanoxGroup"}, Hint: raildataURLHint,
			APIKeyNames: []string{"RAILDATA_NWR_PERFORMANCE_API_KEY", adapters.EnvRailDataAPIKey}, Timeout: rd.Timeout},
		{ID: RouteReference, Prefix: "/raildata/reference", Methods: get, Rewrite: types.RewriteTemplate,
			URLConfigKey: "RAILDATA_REFERENCE_DATA_URL", TemplateParams: []string{"currentVersion"}, Hint: raildataURLHint,
			APIKeyNames: []string{"RAILDATA_REFERENCE_DATA_API_KEY", adapters.EnvRailDataAPIKey}, Timeout: rd.Timeout},
		{ID: RouteNaPTAN, Prefix: "/raildata/naptan", Methods: get, Rewrite: types.RewriteTemplate,
			URLConfigKey: "RAILDATA_NAPTAN_URL", Hint: raildataURLHint,
			APIKeyNames: []string{"RAILDATA_NAPTAN_API_KEY", adapters.EnvRailDataAPIKey}, Timeout: rd.Timeout},
		{ID: RouteNPTG, Prefix: "/raildata/nptg", Methods: get, Rewrite: types.RewriteTemplate,
			URLConfigKey: "RAILDATA_NPTG_URL", Hint: raildataURLHint,
			APIKeyNames: []string{"RAILDATA_NPTG_API_KEY", "RAILDATA_NAPTAN_API_KEY", adapters.EnvRailDataAPIKey}, Timeout: rd.Timeout},
		{ID: RouteServiceDetails, Prefix: "/raildata/service-details", Methods: get, Rewrite: types.RewriteTemplate,
			URLConfigKey: adapters.EnvServiceDetailsURL, TemplateParams: []string{"serviceid"}, Hint: raildataURLHint,
			APIKeyNames: []string{adapters.EnvServiceDetailsAPIKey, adapters.EnvRailDataAPIKey}, Timeout: rd.Timeout},
		{ID: RouteLiveBoard, Prefix: "/raildata/live-board", Methods: get, Rewrite: types.RewriteTemplate,
			URLConfigKey: adapters.EnvLiveBoardURL, TemplateParams: []string{"crs"}, Hint: raildataLiveBoardHint,
			APIKeyNames: []string{adapters.EnvLiveBoardAPIKey, adapters.EnvRailDataAPIKey}, Timeout: rd.Timeout},
		{ID: RouteRailDataProxy, Prefix: "/raildata/proxy", Methods: get, Rewrite: types.RewriteCustom,
			APIKeyNames: []string{adapters.EnvRailDataAPIKey}, Timeout: rd.Timeout},

		// Flights
		{ID: RouteFlights, Prefix: "/api/flightradar/flights", Methods: get, Upstream: p.FR24Feed.BaseURL, Rewrite: types.RewriteCustom},
		{ID: RouteFlight, Prefix: "/api/flightradar/flight", Methods: get, Upstream: p.FR24Details.BaseURL, Rewrite: types.RewriteCustom},
		{ID: RouteFlightSchedule, Prefix: "/flight/schedule", Methods: get, Upstream: p.Aviationstack.BaseURL, Rewrite: types.RewriteCustom,
			Auth: types.AuthSpec{Strategy: types.AuthAPIKeyQuery, Param: "access_key"}},

		// Vehicle licensing
		{ID: RouteDVLAHealth, Prefix: "/dvla/health", Methods: get, Rewrite: types.RewriteCustom},
		{ID: RouteDVLAVehicle, Prefix: "/dvla/vehicle", Methods: []string{http.MethodPost}, Upstream: p.DVLA.BaseURL, Rewrite: types.RewriteCustom,
			Auth: types.AuthSpec{Strategy: types.AuthAPIKeyHeader, Param: types.HeaderDVLAKey}, Requires: []types.SecretRef{{Name: adapters.EnvDVLAKey}}},
	}
}

// ========================================
// Route table
// ========================================

// RouteTable immutable prefix table, longest prefix first
type RouteTable struct {
	routes []types.Route
}

// NewRouteTable sorts routes by descending prefix length
func NewRouteTable(routes []types.Route) *RouteTable {
	sorted := make([]types.Route, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &RouteTable{routes: sorted}
}

// Match returns the longest-prefix route for path and the path remainder
// Matching is case-sensitive and must end on a segment boundary: "/ch/"
// never matches "/charlie" and "/nre/service" never matches "/nre/services".
func (t *RouteTable) Match(path string) (*types.Route, string, bool) {
	for i := range t.routes {
		route := &t.routes[i]
		if matchesPrefix(path, route.Prefix) {
			return route, path[len(route.Prefix):], true
		}
	}
	return nil, "", false
}

// Routes returns the table in match order
func (t *RouteTable) Routes() []types.Route {
	return t.routes
}

func matchesPrefix(path, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
