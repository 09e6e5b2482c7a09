package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/managethefans/portal-api/internal/config"
	"github.com/managethefans/portal-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// WebhookHandler additionally exposes unauthenticated provider callbacks.
type WebhookHandler interface {
	Handler
	RegisterWebhookRoutes(*gin.RouterGroup)
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	db      *sqlx.DB
	metrics *routerMetrics

	authH         Handler
	userH         Handler
	appointmentH  Handler
	notificationH Handler
	messagingH    Handler
	templateH     Handler
	billingH      WebhookHandler
	dashboardH    Handler
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

func NewRouter(
	cfg *config.Config,
	db *sqlx.DB,
	auth *middleware.AuthMiddleware,
	authH Handler,
	userH Handler,
	appointmentH Handler,
	notificationH Handler,
	messagingH Handler,
	templateH Handler,
	billingH WebhookHandler,
	dashboardH Handler,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	middleware.RegisterValidators()
	engine := gin.New()

	r := &Router{
		engine:        engine,
		auth:          auth,
		db:            db,
		metrics:       initRouterMetrics("portal_api"),
		authH:         authH,
		userH:         userH,
		appointmentH:  appointmentH,
		notificationH: notificationH,
		messagingH:    messagingH,
		templateH:     templateH,
		billingH:      billingH,
		dashboardH:    dashboardH,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		r.metricsMiddleware(),
		middleware.Timeout(time.Duration(cfg.Server.TimeoutSeconds)*time.Second),
		middleware.CORS(middleware.DefaultCORSConfig()),
	)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	engine.Use(rateLimiter.RateLimit())

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	r.setupHealthCheck(api)

	// public routes: auth and provider webhooks
	r.authH.RegisterRoutes(api)
	r.billingH.RegisterWebhookRoutes(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())

	r.userH.RegisterRoutes(protected)
	r.appointmentH.RegisterRoutes(protected)
	r.notificationH.RegisterRoutes(protected)
	r.messagingH.RegisterRoutes(protected)
	r.templateH.RegisterRoutes(protected)
	r.billingH.RegisterRoutes(protected)
	r.dashboardH.RegisterRoutes(protected)
}

func (r *Router) setupHealthCheck(rg *gin.RouterGroup) {
	health := rg.Group("/health")
	{
		health.GET("/live", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		health.GET("/ready", func(c *gin.Context) {
			if err := r.db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		health.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string) *routerMetrics {
	return &routerMetrics{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
