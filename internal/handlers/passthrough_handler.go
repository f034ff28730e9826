package handlers

import (
	"net/url"
	"strings"

	"control-room/gateway/internal/proxy"
	"control-room/gateway/internal/types"

	"github.com/gin-gonic/gin"
)

// routeProviders metrics label per passthrough route
var routeProviders = map[string]string{
	RouteCompaniesHouse: types.ProviderCompaniesHouse,
	RouteTfL:            types.ProviderTfL,
	RoutePostcodes:      types.ProviderPostcodes,
	RouteWebTRIS:        types.ProviderWebTRIS,
	RouteOSPlaces:       types.ProviderOSPlaces,
	RouteGeoSearch:      types.ProviderNominatim,
}

// handlePassthrough strips the prefix and forwards path and query verbatim
// GET /ch/*, /tfl/*, /postcodes/*, /webtris/*
func (h *GatewayHandler) handlePassthrough(c *gin.Context, route *types.Route, remainder string) {
	escaped := c.Request.URL.EscapedPath()
	if strings.HasPrefix(escaped, route.Prefix) {
		remainder = escaped[len(route.Prefix):]
	}

	target, err := url.Parse(joinUpstream(route.Upstream, remainder, c.Request.URL.RawQuery))
	if err != nil {
		h.badRequest(c, "invalid request path")
		return
	}

	provider := routeProviders[route.ID]
	h.forward(c, &proxy.Target{
		RouteID:     route.ID,
		Provider:    provider,
		URL:         target,
		Headers:     map[string]string{types.HeaderAccept: "application/json"},
		Auth:        route.Auth,
		Credential:  h.routeCredential(route, provider),
		Timeout:     route.Timeout,
		ContentType: "application/json",
	})
}

// handleOSPlaces postcode geocoding with fixed result parameters
// GET /osplaces/postcode?postcode=
func (h *GatewayHandler) handleOSPlaces(c *gin.Context, route *types.Route, _ string) {
	postcode := queryValue(c, "postcode")
	if postcode == "" {
		h.badRequest(c, "postcode query parameter required")
		return
	}

	params := url.Values{}
	params.Set("postcode", postcode)
	params.Set("maxresults", "1")
	params.Set("output_srs", "EPSG:4326")

	target, err := url.Parse(strings.TrimRight(route.Upstream, "/") + route.Path + "?" + params.Encode())
	if err != nil {
		h.badRequest(c, "invalid postcode")
		return
	}

	h.forward(c, &proxy.Target{
		RouteID:     route.ID,
		Provider:    types.ProviderOSPlaces,
		URL:         target,
		Headers:     map[string]string{types.HeaderAccept: "application/json"},
		Auth:        route.Auth,
		Credential:  h.routeCredential(route, types.ProviderOSPlaces),
		Timeout:     route.Timeout,
		ContentType: "application/json",
	})
}

// handleGeoSearch free-text geocoding
// GET /geo/search?q=&limit=
func (h *GatewayHandler) handleGeoSearch(c *gin.Context, route *types.Route, _ string) {
	q := queryValue(c, "q")
	if q == "" {
		h.badRequest(c, "q query parameter required")
		return
	}
	limit := queryValue(c, "limit")
	if limit == "" {
		limit = "1"
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "jsonv2")
	params.Set("limit", limit)

	target, err := url.Parse(route.Upstream + "?" + params.Encode())
	if err != nil {
		h.badRequest(c, "invalid query")
		return
	}

	h.forward(c, &proxy.Target{
		RouteID:     route.ID,
		Provider:    types.ProviderNominatim,
		URL:         target,
		Headers:     map[string]string{types.HeaderAccept: "application/json"},
		Timeout:     route.Timeout,
		ContentType: "application/json",
	})
}

// joinUpstream base + "/" + remainder + "?" + query
func joinUpstream(base, remainder, rawQuery string) string {
	target := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(remainder, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}
