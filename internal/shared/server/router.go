package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"menuscore-backend/internal/analyses"
	"menuscore-backend/internal/extraction"
	"menuscore-backend/internal/payments"
	"menuscore-backend/internal/shared/config"
	"menuscore-backend/internal/shared/metrics"
	"menuscore-backend/internal/shared/server/middleware"
	"menuscore-backend/internal/shared/server/respond"
	"menuscore-backend/internal/shared/telemetry"
)

const (
	// RateLimitGroupSubmit throttles analysis submissions separately.
	RateLimitGroupSubmit = "SUBMIT"
	healthCheckTimeout   = 2 * time.Second
)

// RouterDeps holds the handlers and collaborators the router mounts.
type RouterDeps struct {
	Config          config.Config
	Extractor       extraction.Client
	AnalysisHandler *analyses.Handler
	PaymentHandler  *payments.Handler
	RateLimiter     *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	// ClientIP only honours forwarding headers from configured proxies.
	if err := r.SetTrustedProxies(deps.Config.Server.TrustedProxies); err != nil {
		telemetry.Warn("server.trusted_proxies_invalid", map[string]any{"err": err})
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.Server.CORSOrigins),
	)
	if rl := deps.Config.Server.RateLimit; rl.Enabled {
		r.Use(middleware.RateLimit(RateLimitConfig(rl, deps.RateLimiter)))
	}

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler(deps.Extractor))
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	if deps.PaymentHandler != nil {
		deps.PaymentHandler.RegisterRoutes(api)
	}

	return r
}

// RateLimitConfig converts per-minute settings into token bucket rules.
func RateLimitConfig(rl config.RateLimit, limiter *middleware.RateLimiter) middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			RateLimitGroupSubmit: {Rate: rl.SubmitPerMin / 60, Burst: rl.SubmitBurst},
			"DEFAULT":            {Rate: rl.DefaultPerMin / 60, Burst: rl.DefaultBurst},
		},
		DefaultGroup: "DEFAULT",
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/analyses" {
				return RateLimitGroupSubmit
			}
			return ""
		},
		Limiter: limiter,
	}
}

func healthHandler(extractor extraction.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		upstream := false
		if extractor != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
			upstream = extractor.HealthCheck(ctx)
			cancel()
		}
		respond.JSON(c, http.StatusOK, gin.H{"ok": true, "extraction": upstream})
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
