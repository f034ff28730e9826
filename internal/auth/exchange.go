package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"control-room/gateway/internal/config"
	"control-room/gateway/internal/metrics"
	"control-room/gateway/internal/types"
	"control-room/gateway/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Config keys read by the token source
const (
	EnvDirectToken = "RAILDATA_AUTH_TOKEN"
	EnvUsername    = "RAILDATA_USERNAME"
	EnvPassword    = "RAILDATA_PASSWORD"
)

// exchangeAttempt one request shape of the exchange probe
type exchangeAttempt struct {
	path    string
	userKey string // "username" or "email"
}

// exchangeAttempts probe order; kept exactly as upstream has historically accepted
var exchangeAttempts = []exchangeAttempt{
	{path: "/api/v1/token", userKey: "username"},
	{path: "/api/v1/authenticate", userKey: "username"},
	{path: "/api/v1/token", userKey: "email"},
	{path: "/api/v1/authenticate", userKey: "email"},
}

// tokenFields response fields that may carry the token, checked in order
var tokenFields = []string{"token", "authToken", "authenticationToken", "accessToken"}

// TokenSource credential exchange with a single cached token slot
// The slot is written only here: on a successful exchange and on Invalidate.
// Concurrent exchanges may both run; the last successful writer wins.
type TokenSource struct {
	provider string
	baseURL  string
	store    *config.Store
	client   *http.Client
	metrics  *metrics.Metrics
	logger   *logrus.Logger

	mu     sync.RWMutex
	cached *types.CachedToken
}

// TokenStatus cached token diagnostics, never the token itself
type TokenStatus struct {
	DirectToken bool       `json:"direct_token"`
	Cached      bool       `json:"cached"`
	ObtainedAt  *time.Time `json:"obtained_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// NewTokenSource creates a token source against the provider's auth endpoint
func NewTokenSource(provider string, endpoint types.ProviderEndpoint, store *config.Store, m *metrics.Metrics, logger *logrus.Logger) *TokenSource {
	return &TokenSource{
		provider: provider,
		baseURL:  strings.TrimRight(endpoint.BaseURL, "/"),
		store:    store,
		client:   &http.Client{Timeout: endpoint.Timeout},
		metrics:  m,
		logger:   logger,
	}
}

// ========================================
// Token lifecycle
// ========================================

// Token returns a usable token
// Direct token override first, then the cached slot, then a fresh exchange.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if direct := s.store.Get(EnvDirectToken); direct != "" {
		return direct, nil
	}

	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil && cached.Value != "" {
		return cached.Value, nil
	}

	username := s.store.Get(EnvUsername)
	password := s.store.Get(EnvPassword)
	if username == "" || password == "" {
		return "", &types.ConfigError{
			Message: "RAILDATA credentials not set (use RAILDATA_AUTH_TOKEN or RAILDATA_USERNAME/RAILDATA_PASSWORD)",
			Missing: []string{EnvDirectToken, EnvUsername, EnvPassword},
		}
	}

	token, err := s.exchange(ctx, username, password)
	if err != nil {
		s.metrics.RecordTokenExchange("failed")
		return "", err
	}
	s.metrics.RecordTokenExchange("ok")

	entry := &types.CachedToken{
		Provider:   s.provider,
		Value:      token,
		ObtainedAt: time.Now(),
		ExpiresAt:  tokenExpiry(token),
	}

	s.mu.Lock()
	s.cached = entry
	s.mu.Unlock()

	s.logger.Infof("[%s] token exchanged: %s", s.provider, utils.MaskSecret(token))
	return token, nil
}

// Invalidate clears the cached token after a 401
// No-op when a direct token is configured; reports whether the slot was cleared.
func (s *TokenSource) Invalidate() bool {
	if s.HasDirectToken() {
		return false
	}

	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()

	s.metrics.RecordTokenInvalidation()
	s.logger.Warnf("[%s] cached token invalidated after 401", s.provider)
	return true
}

// HasDirectToken reports whether a direct token override is configured
func (s *TokenSource) HasDirectToken() bool {
	return s.store.Has(EnvDirectToken)
}

// Status returns diagnostics for health endpoints
func (s *TokenSource) Status() TokenStatus {
	status := TokenStatus{DirectToken: s.HasDirectToken()}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cached != nil {
		obtained := s.cached.ObtainedAt
		status.Cached = true
		status.ObtainedAt = &obtained
		status.ExpiresAt = s.cached.ExpiresAt
	}
	return status
}

// ========================================
// Exchange
// ========================================

// exchange probes every request shape in order and returns the first token found
func (s *TokenSource) exchange(ctx context.Context, username, password string) (string, error) {
	var lastDetail string

	for i, attempt := range exchangeAttempts {
		payload := map[string]string{
			attempt.userKey: username,
			"password":      password,
		}

		token, detail := s.tryExchange(ctx, attempt.path, payload)
		if token != "" {
			s.logger.Debugf("[%s] exchange attempt %d succeeded: %s (%s)", s.provider, i+1, attempt.path, attempt.userKey)
			return token, nil
		}

		lastDetail = detail
		s.logger.Debugf("[%s] exchange attempt %d failed: %s (%s): %s", s.provider, i+1, attempt.path, attempt.userKey, detail)
	}

	return "", &types.ProviderError{
		Provider: s.provider,
		Kind:     types.ErrorUpstream,
		Message:  "Unable to authenticate with Rail Data API",
		Detail:   lastDetail,
	}
}

// tryExchange runs one request shape; any failure yields an empty token
func (s *TokenSource) tryExchange(ctx context.Context, path string, payload map[string]string) (string, string) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err.Error()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", err.Error()
	}
	req.Header.Set(types.HeaderAccept, "application/json")
	req.Header.Set(types.HeaderContentType, "application/json")
	req.Header.Set(types.HeaderUserAgent, types.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err.Error()
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err.Error()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Sprintf("HTTP %d: %s", resp.StatusCode, utils.Truncate(string(raw), types.MaxErrorDetail))
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", "response is not a JSON object"
	}

	return extractToken(data), "no token field in response"
}

// extractToken returns the first non-empty token field
func extractToken(data map[string]interface{}) string {
	for _, field := range tokenFields {
		if v, ok := data[field].(string); ok {
			if token := strings.TrimSpace(v); token != "" {
				return token
			}
		}
	}
	return ""
}

// tokenExpiry reads the exp claim of a JWT-shaped token, nil otherwise
// Informational only; invalidation stays reactive.
func tokenExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}
