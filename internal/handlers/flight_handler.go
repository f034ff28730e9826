package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"control-room/gateway/internal/adapters"
	"control-room/gateway/internal/middleware"
	"control-room/gateway/internal/types"

	"github.com/gin-gonic/gin"
)

// handleFlights live aircraft inside a bounding box
// GET /api/flightradar/flights?n=&s=&w=&e=&ukOnly=
func (h *GatewayHandler) handleFlights(c *gin.Context, _ *types.Route, _ string) {
	bounds := adapters.Bounds{
		North: floatParam(c, "n", adapters.DefaultFeedBounds.North),
		South: floatParam(c, "s", adapters.DefaultFeedBounds.South),
		West:  floatParam(c, "w", adapters.DefaultFeedBounds.West),
		East:  floatParam(c, "e", adapters.DefaultFeedBounds.East),
	}.Clamp()
	ukOnly := flagParam(c.Query("ukOnly"), false)

	flights, err := h.flights.FetchFlights(c.Request.Context(), bounds)
	if err != nil {
		h.logger.Warnf("[%s] flight feed failed: %v", c.GetString(middleware.ContextRequestID), err)
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "FlightRadar24 fetch failed"})
		return
	}
	if ukOnly {
		flights = adapters.FilterUK(flights)
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"bounds":      bounds,
		"ukOnly":      ukOnly,
		"count":       len(flights),
		"flights":     flights,
		"generatedAt": generatedAt(),
	})
}

// handleFlight one flight's details and trail
// GET /api/flightradar/flight?id=&trail=
func (h *GatewayHandler) handleFlight(c *gin.Context, _ *types.Route, _ string) {
	id := queryValue(c, "id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Missing id"})
		return
	}
	withTrail := flagParam(c.Query("trail"), true)

	details, err := h.flights.FetchDetails(c.Request.Context(), id, withTrail)
	if err != nil {
		h.logger.Warnf("[%s] flight details %s failed: %v", c.GetString(middleware.ContextRequestID), id, err)
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "FlightRadar24 details fetch failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"id":          id,
		"details":     details,
		"generatedAt": generatedAt(),
	})
}

// handleSchedule best schedule match for a callsign
// GET /flight/schedule?callsign=&icao24=
// A missing key is advisory (200, ok=false); the map polls this endpoint.
func (h *GatewayHandler) handleSchedule(c *gin.Context, _ *types.Route, _ string) {
	callsign := strings.ToUpper(queryValue(c, "callsign"))
	icao24 := strings.ToLower(queryValue(c, "icao24"))

	if !h.schedules.Configured() {
		c.JSON(http.StatusOK, gin.H{
			"ok":     false,
			"reason": types.NotSet(adapters.EnvAviationstackKey).Error(),
			"flight": nil,
		})
		return
	}
	if callsign == "" && icao24 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "reason": "callsign or icao24 required", "flight": nil})
		return
	}

	schedule, err := h.schedules.LookupSchedule(c.Request.Context(), callsign, icao24)
	if err != nil {
		body := gin.H{"ok": false, "reason": err.Error()}
		var pe *types.ProviderError
		if errors.As(err, &pe) {
			body["reason"] = pe.Message
			body["detail"] = pe.Detail
		}
		c.JSON(http.StatusBadGateway, body)
		return
	}
	if schedule == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true, "reason": "no schedule match", "flight": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "flight": schedule})
}

// floatParam parses a float query parameter, fallback when absent or invalid
func floatParam(c *gin.Context, name string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(c.Query(name)), 64)
	if err != nil {
		return fallback
	}
	return v
}

// flagParam interprets 1/true/yes/on and 0/false/no/off
func flagParam(raw string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
