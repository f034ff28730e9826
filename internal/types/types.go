// Package types Control Room gateway type definitions
// Defines gateway configuration, routes, credentials and the normalized
// rail schema shared by every provider adapter
package types

import (
	"fmt"
	"strings"
	"time"
)

// ========================================
// Configuration types
// ========================================

// Config gateway configuration
type Config struct {
	Server     ServerConfig     `json:"server"`     // server settings
	Security   SecurityConfig   `json:"security"`   // CORS and proxy allow-list
	Monitoring MonitoringConfig `json:"monitoring"` // health / metrics / request logging
	RateLimit  RateLimitConfig  `json:"rate_limit"` // inbound rate limiting
	Providers  ProvidersConfig  `json:"providers"`  // upstream endpoints
}

// ServerConfig basic server configuration
type ServerConfig struct {
	Port         int           `json:"port" validate:"min=1,max=65535"` // listen port
	Environment  string        `json:"environment" validate:"required"` // runtime environment
	LogLevel     string        `json:"log_level"`                       // log level
	ReadTimeout  time.Duration `json:"read_timeout" validate:"gt=0"`    // read timeout
	WriteTimeout time.Duration `json:"write_timeout" validate:"gt=0"`   // write timeout
	IdleTimeout  time.Duration `json:"idle_timeout" validate:"gt=0"`    // idle timeout
	StaticDir    string        `json:"static_dir"`                      // directory served for unmatched GETs
	Debug        bool          `json:"debug"`                           // debug mode
}

// SecurityConfig security configuration
type SecurityConfig struct {
	CORS                 CORSConfig `json:"cors"`                   // CORS settings
	RailDataAllowedHosts []string   `json:"raildata_allowed_hosts"` // hosts /raildata/* may reach
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"` // allowed origins
	AllowedMethods []string `json:"allowed_methods"` // allowed methods
	AllowedHeaders []string `json:"allowed_headers"` // allowed headers
	MaxAge         int      `json:"max_age"`         // preflight cache seconds
}

// MonitoringConfig monitoring configuration
type MonitoringConfig struct {
	MetricsEnabled  bool   `json:"metrics_enabled"`   // expose prometheus metrics
	MetricsPath     string `json:"metrics_path"`      // metrics path
	HealthCheckPath string `json:"health_check_path"` // health check path
	StatsPath       string `json:"stats_path"`        // proxy stats path
	LogRequests     bool   `json:"log_requests"`      // log request start
	SlowRequestMs   int    `json:"slow_request_ms"`   // slow request threshold (ms)
}

// RateLimitConfig inbound rate limit configuration
type RateLimitConfig struct {
	Enabled   bool       `json:"enabled"`     // enable rate limiting
	PerIPRate RateConfig `json:"per_ip_rate"` // per client IP rate
}

// RateConfig rate settings
type RateConfig struct {
	Requests int           `json:"requests"` // requests allowed
	Duration time.Duration `json:"duration"` // per duration
}

// ProvidersConfig upstream provider endpoints
type ProvidersConfig struct {
	CompaniesHouse ProviderEndpoint `json:"companies_house" yaml:"companies_house"`
	TfL            ProviderEndpoint `json:"tfl" yaml:"tfl"`
	Postcodes      ProviderEndpoint `json:"postcodes" yaml:"postcodes"`
	WebTRIS        ProviderEndpoint `json:"webtris" yaml:"webtris"`
	OSPlaces       ProviderEndpoint `json:"os_places" yaml:"os_places"`
	LDBWS          ProviderEndpoint `json:"ldbws" yaml:"ldbws"`
	Nominatim      ProviderEndpoint `json:"nominatim" yaml:"nominatim"`
	Aviationstack  ProviderEndpoint `json:"aviationstack" yaml:"aviationstack"`
	StationCatalog ProviderEndpoint `json:"station_catalog" yaml:"station_catalog"`
	DVLA           ProviderEndpoint `json:"dvla" yaml:"dvla"`
	RailData       ProviderEndpoint `json:"raildata" yaml:"raildata"`
	RailDataAuth   ProviderEndpoint `json:"raildata_auth" yaml:"raildata_auth"`
	RailDataLive   ProviderEndpoint `json:"raildata_live" yaml:"raildata_live"` // templates are absolute, only Timeout applies
	FR24Feed       ProviderEndpoint `json:"fr24_feed" yaml:"fr24_feed"`
	FR24Details    ProviderEndpoint `json:"fr24_details" yaml:"fr24_details"`
}

// ProviderEndpoint a single upstream base URL and its call timeout
type ProviderEndpoint struct {
	BaseURL string        `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`
}

// ========================================
// Routing types
// ========================================

// AuthStrategy how a route attaches its credential
type AuthStrategy string

const (
	AuthNone          AuthStrategy = "none"           // no credential
	AuthBasic         AuthStrategy = "basic"          // Authorization: Basic base64(key:) or base64(user:pass)
	AuthBearer        AuthStrategy = "bearer"         // Authorization: Bearer key
	AuthAPIKeyHeader  AuthStrategy = "apikey-header"  // <header>: key
	AuthAPIKeyQuery   AuthStrategy = "apikey-query"   // ?<param>=key
	AuthSOAPToken     AuthStrategy = "soap-token"     // key embedded in the SOAP header block
	AuthExchangeToken AuthStrategy = "exchange-token" // X-Auth-Token from the credential exchange
)

// AuthSpec a strategy plus its header or query parameter name
type AuthSpec struct {
	Strategy AuthStrategy `json:"strategy"`
	Param    string       `json:"param,omitempty"`
}

// RewriteRule how the upstream URL is derived from the inbound path
type RewriteRule string

const (
	RewriteStripPrefix RewriteRule = "strip-prefix" // base + "/" + remainder + ?query
	RewriteFixed       RewriteRule = "fixed"        // base + fixed path
	RewriteTemplate    RewriteRule = "template"     // configured template with {placeholders}
	RewriteCustom      RewriteRule = "custom"       // handler builds the upstream call itself
)

// SecretRef a required config key, satisfied by the key itself or any alternate
type SecretRef struct {
	Name       string   `json:"name"`
	Alternates []string `json:"alternates,omitempty"`
}

// Route static mapping from an inbound path prefix to an upstream target
// Built once at startup and never mutated
type Route struct {
	ID             string        `json:"id"`                        // route identifier
	Prefix         string        `json:"prefix"`                    // inbound path prefix
	Methods        []string      `json:"methods"`                   // accepted HTTP methods
	Upstream       string        `json:"upstream,omitempty"`        // upstream base URL
	Path           string        `json:"path,omitempty"`            // fixed upstream path (RewriteFixed)
	Rewrite        RewriteRule   `json:"rewrite"`                   // path rewrite rule
	Auth           AuthSpec      `json:"auth"`                      // auth strategy
	Requires       []SecretRef   `json:"requires,omitempty"`        // secrets checked before any I/O
	URLConfigKey   string        `json:"url_config_key,omitempty"`  // config key holding the upstream URL/template
	TemplateParams []string      `json:"template_params,omitempty"` // query parameters fed into the template
	APIKeyNames    []string      `json:"api_key_names,omitempty"`   // candidate api keys, first set wins
	Hint           string        `json:"hint,omitempty"`            // shown when URLConfigKey is unset
	Fallback       string        `json:"fallback,omitempty"`        // fallback provider id
	Timeout        time.Duration `json:"timeout"`                   // upstream timeout
}

// Accepts reports whether the route serves the given method
func (r *Route) Accepts(method string) bool {
	for _, m := range r.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// CredentialKind kind of credential material
type CredentialKind string

const (
	CredentialStaticKey        CredentialKind = "static-key"
	CredentialUsernamePassword CredentialKind = "username-password"
	CredentialDirectToken      CredentialKind = "direct-token"
)

// Credential provider credential sourced from config
type Credential struct {
	Provider string         `json:"provider"`
	Kind     CredentialKind `json:"kind"`
	Key      string         `json:"-"`
	Username string         `json:"-"`
	Password string         `json:"-"`
}

// Empty reports whether the credential carries no usable material
func (c Credential) Empty() bool {
	switch c.Kind {
	case CredentialUsernamePassword:
		return c.Username == "" || c.Password == ""
	default:
		return c.Key == ""
	}
}

// CachedToken exchanged session token
type CachedToken struct {
	Provider   string     `json:"provider"`
	Value      string     `json:"-"`
	ObtainedAt time.Time  `json:"obtained_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"` // informational only
}

// ========================================
// Normalized rail schema
// ========================================

// BoardKind departures or arrivals
type BoardKind string

const (
	BoardDepartures BoardKind = "departures"
	BoardArrivals   BoardKind = "arrivals"
)

// NormalizedBoard canonical station board regardless of provider
type NormalizedBoard struct {
	GeneratedAt  string              `json:"generatedAt"`
	LocationName string              `json:"locationName"`
	CRS          string              `json:"crs"`
	NRCCMessages []string            `json:"nrccMessages"`
	Services     []NormalizedService `json:"services"`
}

// NormalizedService one service on a board
type NormalizedService struct {
	ServiceID    string   `json:"serviceID"`
	STD          string   `json:"std"`
	ETD          string   `json:"etd"`
	STA          string   `json:"sta"`
	ETA          string   `json:"eta"`
	Platform     string   `json:"platform"`
	Operator     string   `json:"operator"`
	OperatorCode string   `json:"operatorCode"`
	Length       string   `json:"length"`
	Origin       []string `json:"origin"`
	Destination  []string `json:"destination"`
}

// CallingPoint a stop on a service
type CallingPoint struct {
	CRS  string `json:"crs"`
	Name string `json:"name"`
}

// CallingPointSet ordered calling points deduplicated by CRS, or by lower-cased name
type CallingPointSet struct {
	points []CallingPoint
	seen   map[string]struct{}
}

// Add appends a stop unless it is blank or already present
func (s *CallingPointSet) Add(crs, name string) {
	crs = strings.ToUpper(strings.TrimSpace(crs))
	name = strings.TrimSpace(name)
	if crs == "" && name == "" {
		return
	}

	key := crs
	if key == "" {
		key = strings.ToLower(name)
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.points = append(s.points, CallingPoint{CRS: crs, Name: name})
}

// Len number of collected stops
func (s *CallingPointSet) Len() int {
	return len(s.points)
}

// Points returns the collected stops, never nil
func (s *CallingPointSet) Points() []CallingPoint {
	if s.points == nil {
		return []CallingPoint{}
	}
	return s.points
}

// ServiceDetails canonical service-detail record
type ServiceDetails struct {
	ServiceID     string         `json:"serviceID"`
	GeneratedAt   string         `json:"generatedAt"`
	ServiceType   string         `json:"serviceType"`
	LocationName  string         `json:"locationName"`
	CRS           string         `json:"crs"`
	Operator      string         `json:"operator"`
	OperatorCode  string         `json:"operatorCode"`
	RSID          string         `json:"rsid"`
	STD           string         `json:"std"`
	ETD           string         `json:"etd"`
	STA           string         `json:"sta"`
	ETA           string         `json:"eta"`
	Platform      string         `json:"platform"`
	IsCancelled   string         `json:"isCancelled"`
	CancelReason  string         `json:"cancelReason"`
	DelayReason   string         `json:"delayReason"`
	CallingPoints []CallingPoint `json:"callingPoints"`
}

// StationRecord one entry of the station catalog
type StationRecord struct {
	CRS     string   `json:"crs"`
	Name    string   `json:"name"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// StationMatch a search result, with distance in proximity mode
type StationMatch struct {
	StationRecord
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

// ========================================
// Upstream call types
// ========================================

// CallKind outcome class of an upstream call
type CallKind string

const (
	CallOK             CallKind = "ok"
	CallUpstreamError  CallKind = "upstream-error"
	CallTransportError CallKind = "transport-error"
)

// UpstreamCallResult transient result of one upstream call
type UpstreamCallResult struct {
	Kind        CallKind      // outcome
	StatusCode  int           // HTTP status, 0 on transport error
	Body        []byte        // raw payload
	ContentType string        // upstream content type
	Duration    time.Duration // call duration
	Err         error         // transport error
}

// ErrorKind failure category
type ErrorKind string

const (
	ErrorConfig    ErrorKind = "config"    // secret or template missing, no I/O attempted
	ErrorUpstream  ErrorKind = "upstream"  // non-2xx from the provider
	ErrorTransport ErrorKind = "transport" // DNS, timeout, refused
	ErrorFault     ErrorKind = "fault"     // SOAP Fault element
	ErrorDecode    ErrorKind = "decode"    // payload could not be parsed
)

// ProviderError "provider call failed" outcome
type ProviderError struct {
	Provider   string    `json:"provider"`
	Kind       ErrorKind `json:"kind"`
	StatusCode int       `json:"status_code,omitempty"`
	Message    string    `json:"error"`
	Detail     string    `json:"detail,omitempty"`
	Missing    []string  `json:"missing,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ConfigError required secret or template value missing
type ConfigError struct {
	Message string
	Missing []string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Missing, ", "))
	}
	return e.Message
}

// NotSet builds the machine readable "<NAME> not set" error
func NotSet(name string) *ConfigError {
	return &ConfigError{Message: name + " not set"}
}

// ========================================
// API response types
// ========================================

// ErrorResponse error body; "error" is always present
type ErrorResponse struct {
	Error          string         `json:"error"`
	Code           string         `json:"code,omitempty"`
	Detail         string         `json:"detail,omitempty"`
	Missing        []string       `json:"missing,omitempty"`
	Hint           string         `json:"hint,omitempty"`
	URL            string         `json:"url,omitempty"`
	AllowedHosts   []string       `json:"allowed_hosts,omitempty"`
	Feed           string         `json:"feed,omitempty"`
	SupportedFeeds []string       `json:"supported_feeds,omitempty"`
	Fallback       *ErrorResponse `json:"fallback,omitempty"`
	RequestID      string         `json:"request_id,omitempty"`
}

// ========================================
// Constants
// ========================================

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"     // malformed client input
	ErrCodeConfigMissing  = "CONFIG_MISSING"      // secret or template missing
	ErrCodeForbidden      = "FORBIDDEN"           // blocked by allow-list
	ErrCodeNotFound       = "NOT_FOUND"           // no route / feed
	ErrCodeInternalError  = "INTERNAL_ERROR"      // gateway fault
	ErrCodeBadGateway     = "BAD_GATEWAY"         // provider failed
	ErrCodeUnauthorized   = "UNAUTHORIZED"        // credential exchange failed
	ErrCodeRateLimited    = "RATE_LIMIT_EXCEEDED" // inbound rate limit hit
)

// Provider identifiers
const (
	ProviderCompaniesHouse = "companies-house"
	ProviderTfL            = "tfl"
	ProviderPostcodes      = "postcodes"
	ProviderWebTRIS        = "webtris"
	ProviderOSPlaces       = "os-places"
	ProviderLDBWS          = "ldbws"
	ProviderRailData       = "raildata"
	ProviderNominatim      = "nominatim"
	ProviderAviationstack  = "aviationstack"
	ProviderDVLA           = "dvla"
	ProviderFR24           = "flightradar24"
	ProviderStations       = "station-catalog"
)

// HTTP header constants
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderUserAgent     = "User-Agent"
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"
	HeaderAuthToken     = "X-Auth-Token"
	HeaderRailDataKey   = "x-apikey"
	HeaderDVLAKey       = "x-api-key"
	HeaderSOAPAction    = "SOAPAction"
)

// UserAgent sent on every upstream call
const UserAgent = "ControlRoom/1.0 (+https://localhost)"

// MaxErrorDetail bound on upstream error bodies kept for diagnostics
const MaxErrorDetail = 500
