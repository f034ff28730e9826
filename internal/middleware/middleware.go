// Package middleware gateway middleware
// Request IDs, request logging, permissive CORS, security headers, optional
// inbound rate limiting and panic recovery
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"control-room/gateway/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ContextRequestID gin context key for the request id
const ContextRequestID = "request_id"

// ========================================
// Request logging
// ========================================

// RequestLogger logs every request through the gateway
func RequestLogger(logger *logrus.Logger, config *types.MonitoringConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		requestID := c.GetString(ContextRequestID)

		if config.LogRequests {
			logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"method":     c.Request.Method,
				"path":       c.Request.URL.Path,
				"client_ip":  c.ClientIP(),
			}).Debug("request started")
		}

		c.Next()

		duration := time.Since(startTime)
		statusCode := c.Writer.Status()

		logLevel := logrus.InfoLevel
		if statusCode >= 400 {
			logLevel = logrus.WarnLevel
		}
		if statusCode >= 500 {
			logLevel = logrus.ErrorLevel
		}

		// Query strings are not logged; some providers take keys there
		logger.WithFields(logrus.Fields{
			"request_id":    requestID,
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"status_code":   statusCode,
			"duration_ms":   duration.Milliseconds(),
			"client_ip":     c.ClientIP(),
			"response_size": c.Writer.Size(),
		}).Log(logLevel, "request completed")

		if config.SlowRequestMs > 0 && duration.Milliseconds() > int64(config.SlowRequestMs) {
			logger.WithFields(logrus.Fields{
				"request_id":  requestID,
				"path":        c.Request.URL.Path,
				"duration_ms": duration.Milliseconds(),
				"threshold":   config.SlowRequestMs,
			}).Warn("slow request")
		}
	}
}

// ========================================
// CORS
// ========================================

// CORS permissive cross-origin headers on every response
// Unknown origins are never rejected; OPTIONS is answered with 204.
func CORS(config *types.CORSConfig) gin.HandlerFunc {
	methods := strings.Join(config.AllowedMethods, ", ")
	headers := strings.Join(config.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowOrigin(config.AllowedOrigins, c.GetHeader("Origin")))
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		if config.MaxAge > 0 {
			c.Header("Access-Control-Max-Age", maxAge)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// allowOrigin echoes a listed origin, otherwise "*"
func allowOrigin(allowed []string, origin string) string {
	if origin == "" {
		return "*"
	}
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
		if o == origin {
			return origin
		}
	}
	return "*"
}

// ========================================
// Rate limiting
// ========================================

// RateLimiter per client IP token buckets
type RateLimiter struct {
	config   *types.RateLimitConfig
	limiters map[string]*rate.Limiter
	mutex    sync.Mutex
	logger   *logrus.Logger
}

// NewRateLimiter creates the rate limiter
func NewRateLimiter(config *types.RateLimitConfig, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		config:   config,
		limiters: make(map[string]*rate.Limiter),
		logger:   logger,
	}
}

// RateLimit middleware function; a no-op unless enabled
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Enabled {
			c.Next()
			return
		}

		requestID := c.GetString(ContextRequestID)
		clientIP := c.ClientIP()

		if !rl.allow(clientIP) {
			rl.logger.Warnf("[%s] rate limit hit: %s", requestID, clientIP)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, types.ErrorResponse{
				Error:     "Too many requests",
				Code:      types.ErrCodeRateLimited,
				RequestID: requestID,
			})
			return
		}

		c.Next()
	}
}

// allow checks the bucket for ip
func (rl *RateLimiter) allow(ip string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	limiter, exists := rl.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(
			rate.Every(rl.config.PerIPRate.Duration/time.Duration(rl.config.PerIPRate.Requests)),
			rl.config.PerIPRate.Requests,
		)
		rl.limiters[ip] = limiter
	}

	return limiter.Allow()
}

// ========================================
// Security headers
// ========================================

// Security sets security headers
func Security() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Gateway", "ControlRoom-Gateway/1.0")

		// live data, never cache proxied responses
		if !isStaticPath(c.Request.URL.Path) {
			c.Header("Cache-Control", "no-store")
		}

		c.Next()
	}
}

func isStaticPath(path string) bool {
	return path == "/" || strings.Contains(path[strings.LastIndex(path, "/")+1:], ".")
}

// ========================================
// Request ID
// ========================================

// RequestID passes through or generates a request id
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(types.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
			c.Request.Header.Set(types.HeaderRequestID, requestID)
		}

		c.Set(ContextRequestID, requestID)
		c.Header(types.HeaderRequestID, requestID)

		c.Next()
	}
}

// ========================================
// Recovery
// ========================================

// Recovery turns a panic into a 500 JSON error; the server keeps serving
func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString(ContextRequestID)

				logger.WithFields(logrus.Fields{
					"request_id": requestID,
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
					"panic":      err,
				}).Error("panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, types.ErrorResponse{
					Error:     "Internal gateway error",
					Code:      types.ErrCodeInternalError,
					RequestID: requestID,
				})
			}
		}()

		c.Next()
	}
}
