// Package config gateway configuration management
// Loads server settings and provider endpoints from .env, the process
// environment and an optional YAML overlay, then validates the result
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"control-room/gateway/internal/types"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultRailDataAllowedHosts hosts the RailData proxy may reach
var DefaultRailDataAllowedHosts = []string{
	"opendata.nationalrail.co.uk",
	"hsp-prod.rockshore.net",
	"api.nationalrail.co.uk",
	"api1.raildata.org.uk",
	"api.raildata.org.uk",
}

// providerDefault default endpoint and env override for one provider
type providerDefault struct {
	key     string // YAML key under providers:
	env     string // env var overriding the base URL
	baseURL string
	timeout time.Duration
	field   func(*types.ProvidersConfig) *types.ProviderEndpoint
}

var providerDefaults = []providerDefault{
	{"companies_house", "CH_API_BASE", "https://api.company-information.service.gov.uk", 30 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.CompaniesHouse }},
	{"tfl", "TFL_API_BASE", "https://api.tfl.gov.uk", 30 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.TfL }},
	{"postcodes", "POSTCODES_API_BASE", "https://api.postcodes.io", 30 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.Postcodes }},
	{"webtris", "WEBTRIS_API_BASE", "https://webtris.highwaysengland.co.uk/api", 30 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.WebTRIS }},
	{"os_places", "OS_PLACES_API_BASE", "https://api.os.uk/search/places/v1", 30 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.OSPlaces }},
	{"ldbws", "NRE_LDBWS_URL", "https://lite.realtime.nationalrail.co.uk/OpenLDBWS/ldb11.asmx", 30 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.LDBWS }},
	{"nominatim", "NOMINATIM_BASE", "https://nominatim.openstreetmap.org/search", 30 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.Nominatim }},
	{"aviationstack", "AVIATIONSTACK_BASE", "http://api.aviationstack.com/v1", 25 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.Aviationstack }},
	{"station_catalog", "UK_RAIL_STATIONS_URL", "https://raw.githubusercontent.com/davwheat/uk-railway-stations/main/stations.json", 25 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.StationCatalog }},
	{"dvla", "DVLA_VES_API_BASE", "https://driver-vehicle-licensing.api.gov.uk", 25 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.DVLA }},
	{"raildata", "RAILDATA_API_BASE", "https://opendata.nationalrail.co.uk", 40 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.RailData }},
	{"raildata_auth", "RAILDATA_AUTH_BASE", "", 20 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.RailDataAuth }},
	{"raildata_live", "", "", 30 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.RailDataLive }},
	{"fr24_feed", "FR24_FEED_URL", "https://data-cloud.flightradar24.com/zones/fcgi/feed.js", 15 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.FR24Feed }},
	{"fr24_details", "FR24_CLICKHANDLER_URL", "https://data-live.flightradar24.com/clickhandler/?flight=", 15 * time.Second,
		func(p *types.ProvidersConfig) *types.ProviderEndpoint { return &p.FR24Details }},
}

// providerOverride one entry of the YAML overlay
type providerOverride struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// fileConfig YAML overlay file layout
type fileConfig struct {
	Providers map[string]providerOverride `yaml:"providers"`
}

// Load loads the gateway configuration
// Order: defaults, YAML overlay (GATEWAY_CONFIG_FILE), environment
// Returns:
//   - *types.Config: the complete gateway configuration
//   - error: load or validation error
func Load() (*types.Config, error) {
	// Try .env first; its values land in the process environment
	if err := godotenv.Load(); err != nil {
		logrus.Info(".env file not found, using process environment")
	}

	overlay, err := loadOverlay(getEnv("GATEWAY_CONFIG_FILE", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to load config overlay: %w", err)
	}

	config := &types.Config{
		Server: types.ServerConfig{
			Port:         getEnvAsInt("PORT", 8000),
			Environment:  getEnv("APP_ENV", "development"),
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			ReadTimeout:  getEnvAsDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvAsDuration("IDLE_TIMEOUT", 120*time.Second),
			StaticDir:    getEnv("STATIC_DIR", "."),
			Debug:        getEnvAsBool("DEBUG", false),
		},
		Security: types.SecurityConfig{
			CORS: types.CORSConfig{
				AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
				AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{
					"GET", "POST", "OPTIONS",
				}),
				AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{
					"Content-Type", "Authorization", "X-Request-ID",
				}),
				MaxAge: getEnvAsInt("CORS_MAX_AGE", 86400),
			},
			RailDataAllowedHosts: allowedHosts(getEnvAsSlice("RAILDATA_EXTRA_ALLOWED_HOSTS", nil)),
		},
		Monitoring: types.MonitoringConfig{
			MetricsEnabled:  getEnvAsBool("METRICS_ENABLED", true),
			MetricsPath:     getEnv("METRICS_PATH", "/metrics"),
			HealthCheckPath: getEnv("HEALTH_CHECK_PATH", "/health"),
			StatsPath:       getEnv("STATS_PATH", "/gateway/stats"),
			LogRequests:     getEnvAsBool("LOG_REQUESTS", true),
			SlowRequestMs:   getEnvAsInt("SLOW_REQUEST_MS", 5000),
		},
		RateLimit: types.RateLimitConfig{
			Enabled: getEnvAsBool("RATE_LIMIT_ENABLED", false),
			PerIPRate: types.RateConfig{
				Requests: getEnvAsInt("PER_IP_RATE_REQUESTS", 600),
				Duration: getEnvAsDuration("PER_IP_RATE_DURATION", 1*time.Minute),
			},
		},
		Providers: loadProvidersConfig(overlay),
	}

	// Validate
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// loadOverlay reads the optional YAML overlay
func loadOverlay(path string) (map[string]providerOverride, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	for key := range fc.Providers {
		if !knownProvider(key) {
			logrus.Warnf("unknown provider %q in %s, ignored", key, path)
		}
	}

	return fc.Providers, nil
}

// loadProvidersConfig resolves every provider endpoint
// Defaults first, then the YAML overlay, then env overrides
func loadProvidersConfig(overlay map[string]providerOverride) types.ProvidersConfig {
	var providers types.ProvidersConfig

	for _, d := range providerDefaults {
		endpoint := d.field(&providers)
		endpoint.BaseURL = d.baseURL
		endpoint.Timeout = d.timeout

		if o, ok := overlay[d.key]; ok {
			if o.BaseURL != "" {
				endpoint.BaseURL = o.BaseURL
			}
			if o.Timeout > 0 {
				endpoint.Timeout = o.Timeout
			}
		}

		if d.env != "" {
			endpoint.BaseURL = getEnv(d.env, endpoint.BaseURL)
		}
		endpoint.Timeout = getEnvAsDuration(strings.ToUpper(d.key)+"_TIMEOUT", endpoint.Timeout)
	}

	// Token exchange lives on the RailData host unless overridden
	if providers.RailDataAuth.BaseURL == "" {
		providers.RailDataAuth.BaseURL = providers.RailData.BaseURL
	}

	return providers
}

func knownProvider(key string) bool {
	for _, d := range providerDefaults {
		if d.key == key {
			return true
		}
	}
	return false
}

// allowedHosts merges the fixed RailData allow-list with extra hosts
func allowedHosts(extra []string) []string {
	set := make(map[string]struct{}, len(DefaultRailDataAllowedHosts)+len(extra))
	for _, h := range DefaultRailDataAllowedHosts {
		set[h] = struct{}{}
	}
	for _, h := range extra {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			set[h] = struct{}{}
		}
	}

	hosts := make([]string, 0, len(set))
	for h := range set {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// validateConfig validates the configuration
func validateConfig(cfg *types.Config) error {
	v := validator.New()

	if err := v.Struct(cfg.Server); err != nil {
		return err
	}

	for _, d := range providerDefaults {
		endpoint := d.field(&cfg.Providers)
		if err := v.Struct(endpoint); err != nil {
			return fmt.Errorf("provider %s: %w", d.key, err)
		}
		if d.baseURL != "" && endpoint.BaseURL == "" {
			return fmt.Errorf("provider %s: base URL is required", d.key)
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.PerIPRate.Requests <= 0 || cfg.RateLimit.PerIPRate.Duration <= 0 {
			return fmt.Errorf("invalid per-IP rate: %d/%v", cfg.RateLimit.PerIPRate.Requests, cfg.RateLimit.PerIPRate.Duration)
		}
	}

	if cfg.Monitoring.HealthCheckPath == "" || !strings.HasPrefix(cfg.Monitoring.HealthCheckPath, "/") {
		return fmt.Errorf("invalid HEALTH_CHECK_PATH: %q", cfg.Monitoring.HealthCheckPath)
	}

	// Production checks
	if cfg.Server.Environment == "production" {
		if cfg.Server.Debug {
			return fmt.Errorf("debug mode must not be enabled in production")
		}
	}

	return nil
}

// ========================================
// Environment helpers
// ========================================

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		logrus.Warnf("cannot parse env %s as int, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		logrus.Warnf("cannot parse env %s as bool, using default %t", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		logrus.Warnf("cannot parse env %s as duration, using default %v", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
