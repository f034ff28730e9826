// Package handlers gateway HTTP handlers
// The dispatcher resolves every inbound request against the static route
// table, checks the route's secrets before any upstream I/O and hands the
// request to the route's handler
package handlers

import (
	"net/http"
	"strings"
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
)

// routeHandler serves one matched route; remainder is the path after the prefix
type routeHandler func(c *gin.Context, route *types.Route, remainder string)

// Dependencies collaborators injected into the gateway handler
type Dependencies struct {
	Config    *types.Config
	Store     *config.Store
	Proxy     *proxy.ReverseProxy
	Resolver  *services.FallbackResolver
	Catalog   *stations.Catalog
	Tokens    *auth.TokenSource
	LDBWS     *adapters.LDBWSAdapter
	RailData  *adapters.RailDataLiveAdapter
	Schedules *adapters.AviationstackAdapter
	Flights   *adapters.FlightRadarAdapter
	Vehicles  *adapters.DVLAAdapter
	Static    http.Handler // serves unmatched GETs, may be nil
	Logger    *logrus.Logger
}

// GatewayHandler request router and dispatcher
type GatewayHandler struct {
	config    *types.Config
	store     *config.Store
	proxy     *proxy.ReverseProxy
	resolver  *services.FallbackResolver
	catalog   *stations.Catalog
	tokens    *auth.TokenSource
	ldbws     *adapters.LDBWSAdapter
	raildata  *adapters.RailDataLiveAdapter
	schedules *adapters.AviationstackAdapter
	flights   *adapters.FlightRadarAdapter
	vehicles  *adapters.DVLAAdapter
	static    http.Handler
	logger    *logrus.Logger

	routes       *RouteTable
	handlers     map[string]routeHandler
	allowedHosts map[string]struct{}
	startTime    time.Time
}

// NewGatewayHandler creates the dispatcher over the default route table
func NewGatewayHandler(deps Dependencies) *GatewayHandler {
	h := &GatewayHandler{
		config:    deps.Config,
		store:     deps.Store,
		proxy:     deps.Proxy,
		resolver:  deps.Resolver,
		catalog:   deps.Catalog,
		tokens:    deps.Tokens,
		ldbws:     deps.LDBWS,
		raildata:  deps.RailData,
		schedules: deps.Schedules,
		flights:   deps.Flights,
		vehicles:  deps.Vehicles,
		static:    deps.Static,
		logger:    deps.Logger,
		routes:    NewRouteTable(DefaultRoutes(deps.Config.Providers)),
		startTime: time.Now(),
	}

	h.allowedHosts = make(map[string]struct{}, len(deps.Config.Security.RailDataAllowedHosts))
	for _, host := range deps.Config.Security.RailDataAllowedHosts {
		h.allowedHosts[strings.ToLower(host)] = struct{}{}
	}

	h.handlers = map[string]routeHandler{
		RouteCompaniesHouse: h.handlePassthrough,
		RouteTfL:            h.handlePassthrough,
		RoutePostcodes:      h.handlePassthrough,
		RouteWebTRIS:        h.handlePassthrough,
		RouteOSPlaces:       h.handleOSPlaces,
		RouteGeoSearch:      h.handleGeoSearch,
		RouteNREHealth:      h.handleNREHealth,
		RouteNREDepartures:  h.handleBoard,
		RouteNREArrivals:    h.handleBoard,
		RouteNREService:     h.handleService,
		RouteNREStations:    h.handleStations,
		RouteRailDataHealth: h.handleRailDataHealth,
		RouteFeedsAvailable: h.handleRailDataFixed,
		RouteFeeds:          h.handleRailDataFixed,
		RouteUser:           h.handleRailDataFixed,
		RouteKB:             h.handleKBFeed,
		RouteDisruptions:    h.handleDisruptions,
		RoutePerformanceRef: h.handleRailDataConfigured,
		RoutePerformance:    h.handleRailDataConfigured,
		RouteReference:      h.handleRailDataConfigured,
		RouteNaPTAN:         h.handleRailDataConfigured,
		RouteNPTG:           h.handleRailDataConfigured,
		RouteServiceDetails: h.handleRailDataConfigured,
		RouteLiveBoard:      h.handleRailDataConfigured,
		RouteRailDataProxy:  h.handleRailDataProxy,
		RouteFlights:        h.handleFlights,
		RouteFlight:         h.handleFlight,
		RouteFlightSchedule: h.handleSchedule,
		RouteDVLAHealth:     h.handleDVLAHealth,
		RouteDVLAVehicle:    h.handleVehicle,
	}

	return h
}

// Routes exposes the route table
func (h *GatewayHandler) Routes() *RouteTable {
	return h.routes
}

// ========================================
// Dispatch
// ========================================

// HandleRequest dispatches every request not served by a fixed gin route
func (h *GatewayHandler) HandleRequest(c *gin.Context) {
	requestID := c.GetString(middleware.ContextRequestID)
	path := c.Request.URL.Path

	// 1. Longest-prefix match
	route, remainder, ok := h.routes.Match(path)
	if !ok || !route.Accepts(c.Request.Method) {
		h.handleUnmatched(c)
		return
	}

	h.logger.Debugf("[%s] route %s: %s %s", requestID, route.ID, c.Request.Method, path)

	// 2. Secrets before any upstream I/O
	if missing := h.missingSecret(route); missing != "" {
		h.logger.Warnf("[%s] route %s: %s not set", requestID, route.ID, missing)
		h.configMissing(c, missing)
		return
	}

	// 3. Route handler
	handler, exists := h.handlers[route.ID]
	if !exists {
		h.logger.Errorf("[%s] route %s has no handler", requestID, route.ID)
		h.writeError(c, http.StatusInternalServerError, types.ErrorResponse{
			Error: "route has no handler",
			Code:  types.ErrCodeInternalError,
		})
		return
	}
	handler(c, route, remainder)
}

// handleUnmatched static files for GET, 404 otherwise
func (h *GatewayHandler) handleUnmatched(c *gin.Context) {
	method := c.Request.Method
	if h.static != nil && (method == http.MethodGet || method == http.MethodHead) {
		h.static.ServeHTTP(c.Writer, c.Request)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
}

// missingSecret returns the first required secret with no value
func (h *GatewayHandler) missingSecret(route *types.Route) string {
	for _, ref := range route.Requires {
		keys := append([]string{ref.Name}, ref.Alternates...)
		if value, _ := h.store.FirstOf(keys...); value == "" {
			return ref.Name
		}
	}
	return ""
}

// routeCredential the static key satisfying the route's first requirement
func (h *GatewayHandler) routeCredential(route *types.Route, provider string) types.Credential {
	if len(route.Requires) == 0 {
		return types.Credential{}
	}
	ref := route.Requires[0]
	value, _ := h.store.FirstOf(append([]string{ref.Name}, ref.Alternates...)...)
	return auth.StaticKey(provider, value)
}

// ========================================
// Gateway self endpoints
// ========================================

// HealthCheck gateway self check
// GET /health
// Never performs upstream I/O.
func (h *GatewayHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   "1.0.0",
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		"station_catalog": gin.H{
			"state": h.catalog.State().String(),
		},
		"providers": gin.H{
			"ldbws":         h.ldbws.Configured(),
			"raildata_live": h.raildata.BoardReady(types.BoardDepartures) || h.raildata.BoardReady(types.BoardArrivals),
			"aviationstack": h.schedules.Configured(),
			"dvla":          h.vehicles.Configured(),
		},
	})
}

// GetStats proxy, fallback and adapter statistics
// GET /gateway/stats
func (h *GatewayHandler) GetStats(c *gin.Context) {
	adapterStats := gin.H{}
	for _, a := range []interface {
		Name() string
		Stats() adapters.AdapterStats
	}{h.ldbws, h.raildata, h.schedules, h.flights, h.vehicles} {
		adapterStats[a.Name()] = a.Stats()
	}

	c.JSON(http.StatusOK, gin.H{
		"proxy":     h.proxy.GetStats(),
		"fallback":  h.resolver.GetStats(),
		"adapters":  adapterStats,
		"token":     h.tokens.Status(),
		"timestamp": time.Now().Unix(),
	})
}

// ========================================
// Response helpers
// ========================================

func (h *GatewayHandler) writeError(c *gin.Context, status int, body types.ErrorResponse) {
	body.RequestID = c.GetString(middleware.ContextRequestID)
	c.JSON(status, body)
}

func (h *GatewayHandler) configMissing(c *gin.Context, name string) {
	h.writeError(c, http.StatusInternalServerError, types.ErrorResponse{
		Error: types.NotSet(name).Error(),
		Code:  types.ErrCodeConfigMissing,
	})
}

func (h *GatewayHandler) badRequest(c *gin.Context, message string) {
	h.writeError(c, http.StatusBadRequest, types.ErrorResponse{
		Error: message,
		Code:  types.ErrCodeInvalidRequest,
	})
}

// forward sends target through the passthrough proxy
func (h *GatewayHandler) forward(c *gin.Context, target *proxy.Target) {
	if err := h.proxy.Forward(c.Writer, c.Request, target); err != nil {
		h.logger.Errorf("[%s] route %s: %v", c.GetString(middleware.ContextRequestID), target.RouteID, err)
		h.writeError(c, http.StatusInternalServerError, types.ErrorResponse{
			Error:  "failed to build upstream request",
			Code:   types.ErrCodeInternalError,
			Detail: err.Error(),
		})
	}
}

// queryValue trimmed first value of a query parameter
func queryValue(c *gin.Context, name string) string {
	return strings.TrimSpace(c.Query(name))
}

// generatedAt unix time as seconds with a fraction
func generatedAt() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
