// Package router builds the gin engine from the application modules.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apphttp "curbside_relay/internal/http"
	"curbside_relay/platform/httpkit"
)

const healthTimeout = 2 * time.Second

// New creates the engine: shared middleware, health, observer streams and
// every module's routes.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(app.Config)))

	engine.GET("/health", healthHandler(app.Health))

	providers := engine.Group("/")

	limiter := httpkit.NewIPRateLimiter(rate.Limit(app.Config.GetWebhookRateLimit()), app.Config.GetWebhookRateBurst(), app.Logger)
	webhooks := engine.Group("/")
	webhooks.Use(limiter.RateLimit())

	api := engine.Group("/api")
	streams := engine.Group("/")
	if app.Config.GetJWTAccessSecret() != "" {
		auth := httpkit.AuthRequired(app.Config)
		api.Use(auth)
		streams.Use(auth)
	} else {
		app.Logger.Warn("dashboard api is unauthenticated, set API_JWT_SECRET to protect it")
	}

	if app.Events != nil {
		streams.GET("/events", app.Events.SSEHandler())
		streams.GET("/ws", app.Events.WebsocketHandler())
	}

	rc := &apphttp.RouterContext{
		Engine:    engine,
		Providers: providers,
		Webhooks:  webhooks,
		API:       api,
		Config:    app.Config,
	}
	for _, module := range app.Modules {
		module.RegisterRoutes(rc)
		app.Logger.Debug("module routes registered", "module", module.Name())
	}

	return engine
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", httpkit.HeaderRequestID},
		ExposeHeaders:    []string{httpkit.HeaderRequestID},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = cfg.GetCORSOrigins()
	}
	return c
}

func healthHandler(health apphttp.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": time.Now().UTC()})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "ERROR", "database": "Unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": time.Now().UTC(), "database": "Connected"})
	}
}
