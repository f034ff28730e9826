package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"control-room/gateway/internal/adapters"
	"control-room/gateway/internal/auth"
	"control-room/gateway/internal/middleware"
	"control-room/gateway/internal/proxy"
	"control-room/gateway/internal/types"
	"control-room/gateway/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RailData auth modes
const (
	railModeToken  = "token"
	railModeAPIKey = "apikey"
	railModeBasic  = "basic"
	railModeNone   = "none"
)

// railDataAccept RailData feeds answer in several formats
const railDataAccept = "application/json, application/xml, text/xml, text/plain, application/octet-stream"

// railDataHelpers advertised by /raildata/health
var railDataHelpers = []string{
	"/raildata/feeds",
	"/raildata/feeds/available",
	"/raildata/disruptions",
	"/raildata/performance",
	"/raildata/performance/reference",
	"/raildata/reference",
	"/raildata/naptan",
	"/raildata/nptg",
	"/raildata/service-details",
	"/raildata/live-board",
	"/raildata/proxy?url=<full-feed-url>",
}

// handleRailDataHealth auth mode and helper overview, no upstream I/O
// GET /raildata/health
func (h *GatewayHandler) handleRailDataHealth(c *gin.Context, _ *types.Route, _ string) {
	hasDirect := h.tokens.HasDirectToken()
	hasCredentials := h.store.Has(auth.EnvUsername) && h.store.Has(auth.EnvPassword)
	hasAPIKey := h.store.Has(adapters.EnvRailDataAPIKey)

	mode := "none"
	switch {
	case hasDirect:
		mode = "token"
	case hasCredentials:
		mode = "username_password"
	case hasAPIKey:
		mode = "apikey"
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"configured": hasDirect || hasCredentials || hasAPIKey,
		"auth_mode":  mode,
		"kb_feeds":   KBFeedNames(),
		"helpers":    railDataHelpers,
		"endpoint":   h.config.Providers.RailData.BaseURL,
		"token":      h.tokens.Status(),
	})
}

// handleRailDataFixed token-authenticated fixed paths
// GET /raildata/feeds, /raildata/feeds/available, /raildata/user
func (h *GatewayHandler) handleRailDataFixed(c *gin.Context, route *types.Route, _ string) {
	h.proxyRailData(c, route, strings.TrimRight(route.Upstream, "/")+route.Path, railModeToken, nil)
}

// handleKBFeed knowledge-base static feeds
// GET /raildata/kb/<feed>
func (h *GatewayHandler) handleKBFeed(c *gin.Context, route *types.Route, remainder string) {
	feed := strings.ToLower(strings.Trim(remainder, "/ "))
	query := ""
	if c.Request.URL.RawQuery != "" {
		query = "?" + c.Request.URL.RawQuery
	}

	if override, ok := kbOverrides[feed]; ok {
		if explicit := h.store.Get(override.urlKey); explicit != "" {
			h.proxyRailData(c, route, explicit+query, railModeAPIKey, []string{override.keyKey, adapters.EnvRailDataAPIKey})
			return
		}
	}

	path, ok := RailDataKBFeeds[feed]
	if !ok {
		h.writeError(c, http.StatusBadRequest, types.ErrorResponse{
			Error:          "Unknown KB feed",
			Code:           types.ErrCodeNotFound,
			Feed:           feed,
			SupportedFeeds: KBFeedNames(),
		})
		return
	}

	h.proxyRailData(c, route, strings.TrimRight(route.Upstream, "/")+path+query, h.railMode(route.APIKeyNames), route.APIKeyNames)
}

// handleDisruptions incidents feed, or the configured disruptions URL
// GET /raildata/disruptions
func (h *GatewayHandler) handleDisruptions(c *gin.Context, route *types.Route, _ string) {
	target := h.store.Get(route.URLConfigKey)
	if target == "" {
		target = strings.TrimRight(route.Upstream, "/") + route.Path
	}
	h.proxyRailData(c, route, target, h.railMode(route.APIKeyNames), route.APIKeyNames)
}

// handleRailDataConfigured endpoints whose URL (or template) comes from config
// GET /raildata/performance, /raildata/reference, /raildata/naptan, ...
func (h *GatewayHandler) handleRailDataConfigured(c *gin.Context, route *types.Route, _ string) {
	// 1. URL configured
	tpl := h.store.Get(route.URLConfigKey)
	if tpl == "" {
		h.writeError(c, http.StatusBadRequest, types.ErrorResponse{
			Error: types.NotSet(route.URLConfigKey).Error(),
			Code:  types.ErrCodeConfigMissing,
			Hint:  route.Hint,
		})
		return
	}

	// 2. Render placeholders from query parameters
	values := make(map[string]string, len(route.TemplateParams))
	for _, name := range utils.TemplatePlaceholders(tpl) {
		values[name] = c.Query(name)
	}
	if crs, ok := values["crs"]; ok {
		values["crs"] = strings.ToUpper(crs)
	}
	rendered, missing := utils.RenderURLTemplate(tpl, values)
	if len(missing) > 0 {
		h.writeError(c, http.StatusBadRequest, types.ErrorResponse{
			Error:   "Missing required query parameter(s)",
			Code:    types.ErrCodeInvalidRequest,
			Missing: missing,
		})
		return
	}

	// 3. Proxy
	h.proxyRailData(c, route, rendered, h.railMode(route.APIKeyNames), route.APIKeyNames)
}

// handleRailDataProxy any allow-listed RailData URL
// GET /raildata/proxy?url=&auth=token|basic|apikey|none
func (h *GatewayHandler) handleRailDataProxy(c *gin.Context, route *types.Route, _ string) {
	target := queryValue(c, "url")
	mode := strings.ToLower(queryValue(c, "auth"))
	if mode == "" {
		mode = railModeToken
	}

	if target == "" {
		h.badRequest(c, "url query parameter required")
		return
	}
	switch mode {
	case railModeToken, railModeBasic, railModeAPIKey, railModeNone:
	default:
		h.badRequest(c, "auth must be token|basic|apikey|none")
		return
	}

	h.proxyRailData(c, route, target, mode, route.APIKeyNames)
}

// ========================================
// RailData proxying
// ========================================

// railMode apikey when any candidate key is set, token otherwise
func (h *GatewayHandler) railMode(keyNames []string) string {
	if key, _ := h.store.FirstOf(keyNames...); key != "" {
		return railModeAPIKey
	}
	return railModeToken
}

// proxyRailData allow-list gate, credential selection, then proxy
func (h *GatewayHandler) proxyRailData(c *gin.Context, route *types.Route, rawURL, mode string, keyNames []string) {
	requestID := c.GetString(middleware.ContextRequestID)

	// 1. Allow-list, before anything else
	target, ok := h.allowedRailDataURL(rawURL)
	if !ok {
		h.logger.Warnf("[%s] blocked RailData URL host: %s", requestID, rawURL)
		h.writeError(c, http.StatusBadRequest, types.ErrorResponse{
			Error:        "Blocked RailData URL host",
			Code:         types.ErrCodeForbidden,
			URL:          rawURL,
			AllowedHosts: h.sortedAllowedHosts(),
		})
		return
	}

	fwd := &proxy.Target{
		RouteID:     route.ID,
		Provider:    types.ProviderRailData,
		URL:         target,
		Headers:     map[string]string{types.HeaderAccept: railDataAccept},
		Timeout:     route.Timeout,
		ContentType: "application/octet-stream",
		ErrorLabel:  "RailData upstream failed",
	}

	// 2. Credential for the mode
	switch mode {
	case railModeToken:
		token, err := h.tokens.Token(c.Request.Context())
		if err != nil {
			h.tokenFailed(c, err)
			return
		}
		fwd.Auth = types.AuthSpec{Strategy: types.AuthExchangeToken}
		fwd.Credential = auth.TokenCredential(types.ProviderRailData, token)
		fwd.OnResponse = func(status int) {
			if status == http.StatusUnauthorized {
				h.tokens.Invalidate()
			}
		}

	case railModeAPIKey:
		key, _ := h.store.FirstOf(keyNames...)
		if key == "" {
			name := adapters.EnvRailDataAPIKey
			if len(keyNames) > 0 {
				name = keyNames[0]
			}
			h.configMissing(c, name)
			return
		}
		fwd.Auth = types.AuthSpec{Strategy: types.AuthAPIKeyHeader, Param: types.HeaderRailDataKey}
		fwd.Credential = auth.StaticKey(types.ProviderRailData, key)

	case railModeBasic:
		username := h.store.Get(auth.EnvUsername)
		password := h.store.Get(auth.EnvPassword)
		if username == "" || password == "" {
			h.writeError(c, http.StatusInternalServerError, types.ErrorResponse{
				Error:   "RAILDATA_USERNAME and RAILDATA_PASSWORD required for basic auth endpoint",
				Code:    types.ErrCodeConfigMissing,
				Missing: []string{auth.EnvUsername, auth.EnvPassword},
			})
			return
		}
		fwd.Auth = types.AuthSpec{Strategy: types.AuthBasic}
		fwd.Credential = auth.UsernamePassword(types.ProviderRailData, username, password)
	}

	// 3. Proxy
	h.forward(c, fwd)
}

// tokenFailed credential exchange or token configuration failure
func (h *GatewayHandler) tokenFailed(c *gin.Context, err error) {
	var cfgErr *types.ConfigError
	if errors.As(err, &cfgErr) {
		h.writeError(c, http.StatusInternalServerError, types.ErrorResponse{
			Error:   cfgErr.Message,
			Code:    types.ErrCodeConfigMissing,
			Missing: cfgErr.Missing,
		})
		return
	}

	body := types.ErrorResponse{Error: err.Error(), Code: types.ErrCodeUnauthorized}
	var pe *types.ProviderError
	if errors.As(err, &pe) {
		body.Error = pe.Message
		body.Detail = pe.Detail
	}
	h.writeError(c, http.StatusInternalServerError, body)
}

// allowedRailDataURL http(s) URLs on an allow-listed host only
func (h *GatewayHandler) allowedRailDataURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if _, ok := h.allowedHosts[strings.ToLower(u.Hostname())]; !ok {
		return nil, false
	}
	return u, true
}

func (h *GatewayHandler) sortedAllowedHosts() []string {
	hosts := make([]string, 0, len(h.allowedHosts))
	for host := range h.allowedHosts {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}
