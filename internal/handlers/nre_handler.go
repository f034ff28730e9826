package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"control-room/gateway/internal/services"
	"control-room/gateway/internal/stations"
	"control-room/gateway/internal/types"

	"github.com/gin-gonic/gin"
)

// defaultBoardRows rows requested when the caller sends none
const defaultBoardRows = 10

// NRE health provider tags
const (
	healthProviderDarwin   = "darwin"
	healthProviderRailData = "raildata"
	healthProviderNone     = "none"
)

// handleNREHealth which rail board providers are configured
// GET /nre/health
func (h *GatewayHandler) handleNREHealth(c *gin.Context, _ *types.Route, _ string) {
	departuresReady := h.raildata.BoardReady(types.BoardDepartures)
	arrivalsReady := h.raildata.BoardReady(types.BoardArrivals)
	tokenSet := h.ldbws.Configured()

	provider := healthProviderNone
	switch {
	case tokenSet:
		provider = healthProviderDarwin
	case departuresReady || arrivalsReady:
		provider = healthProviderRailData
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"configured": tokenSet || departuresReady || arrivalsReady,
		"provider":   provider,
		"endpoint":   h.ldbws.Endpoint(),
		"fallback": gin.H{
			"raildata_departures_ready": departuresReady,
			"raildata_arrivals_ready":   arrivalsReady,
		},
	})
}

// handleBoard departure or arrival board through the fallback chain
// GET /nre/departures?crs=&rows=, /nre/arrivals?crs=&rows=
func (h *GatewayHandler) handleBoard(c *gin.Context, route *types.Route, _ string) {
	kind := types.BoardDepartures
	if route.ID == RouteNREArrivals {
		kind = types.BoardArrivals
	}

	crs := strings.ToUpper(queryValue(c, "crs"))
	if len(crs) != 3 {
		h.badRequest(c, "crs query parameter required (3-letter station code)")
		return
	}

	result, err := h.resolver.ResolveBoard(c.Request.Context(), kind, crs, boardRows(queryValue(c, "rows")))
	if err != nil {
		h.chainFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"type":     kind,
		"provider": result.Provider,
		"board":    result.Board,
	})
}

// handleService one service's details through the fallback chain
// GET /nre/service?service_id=
func (h *GatewayHandler) handleService(c *gin.Context, _ *types.Route, _ string) {
	serviceID := queryValue(c, "service_id")
	if serviceID == "" {
		h.badRequest(c, "service_id query parameter required")
		return
	}

	result, err := h.resolver.ResolveServiceDetails(c.Request.Context(), serviceID)
	if err != nil {
		h.chainFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"provider": result.Provider,
		"service":  result.Service,
	})
}

// chainFailed reports both provider failures; neither is dropped
func (h *GatewayHandler) chainFailed(c *gin.Context, err error) {
	var chain *services.ChainError
	if !errors.As(err, &chain) {
		h.writeError(c, http.StatusBadGateway, types.ErrorResponse{
			Error:  "NRE failed",
			Code:   types.ErrCodeBadGateway,
			Detail: err.Error(),
		})
		return
	}

	body := types.ErrorResponse{
		Error:   chain.Primary.Message,
		Code:    types.ErrCodeBadGateway,
		Detail:  chain.Primary.Detail,
		Missing: chain.Primary.Missing,
	}
	if chain.Fallback != nil {
		body.Fallback = &types.ErrorResponse{
			Error:   chain.Fallback.Message,
			Detail:  chain.Fallback.Detail,
			Missing: chain.Fallback.Missing,
		}
	}
	h.writeError(c, http.StatusBadGateway, body)
}

// handleStations station catalog search, proximity mode when crs is given
// GET /nre/stations?q=&crs=&limit=
func (h *GatewayHandler) handleStations(c *gin.Context, _ *types.Route, _ string) {
	q := queryValue(c, "q")
	crs := strings.ToUpper(queryValue(c, "crs"))
	limit := stations.ClampLimit(c.Query("limit"))

	records, err := h.catalog.Records(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"ok":       false,
			"error":    "station catalog unavailable",
			"detail":   err.Error(),
			"stations": []types.StationMatch{},
		})
		return
	}

	if len(crs) == 3 {
		base, found := stations.FindByCode(records, crs)
		if !found {
			c.JSON(http.StatusOK, gin.H{"ok": true, "base": nil, "stations": []types.StationMatch{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":       true,
			"base":     base,
			"stations": stations.SearchNearby(records, base, limit),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"stations": stations.SearchText(records, q, limit),
	})
}

// boardRows parses rows; anything unusable means the default
func boardRows(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultBoardRows
	}
	return n
}
