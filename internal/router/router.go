package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/streamhaven/entitlement-api/internal/handler"
	"github.com/streamhaven/entitlement-api/internal/middleware"
)

// Handler registers its routes on a group.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig
}

type Router struct {
	engine       *gin.Engine
	auth         *middleware.AuthMiddleware
	healthH      *handler.HealthHandler
	planH        Handler
	billingH     Handler
	entitlementH Handler
	familyH      Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH *handler.HealthHandler,
	planH Handler,
	billingH Handler,
	entitlementH Handler,
	familyH Handler,
	cfg Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: cfg.RequestTimeout}),
		middleware.CORS(cfg.CORS),
	)

	if cfg.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  cfg.RateLimit,
			Burst: cfg.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}

	return &Router{
		engine:       engine,
		auth:         auth,
		healthH:      healthH,
		planH:        planH,
		billingH:     billingH,
		entitlementH: entitlementH,
		familyH:      familyH,
	}
}

func (r *Router) Setup() {
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.healthH.RegisterRoutes(r.engine.Group(""))

	// Webhooks authenticate by shared secret, not bearer token.
	r.billingH.RegisterRoutes(r.engine.Group(""))

	api := r.engine.Group("/api/v1")
	r.planH.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.entitlementH.RegisterRoutes(protected)
	r.familyH.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
