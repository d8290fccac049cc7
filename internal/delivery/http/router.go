package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/delivery/http/middleware"
)

// RouterConfig carries the router's tunables.
type RouterConfig struct {
	MaxRequestBytes int64
	RateLimit       int
}

// Handlers groups the route handlers. Submission, Stream and Policy may be
// nil, in which case their routes are not registered.
type Handlers struct {
	Judge      *JudgeHandler
	Submission *SubmissionHandler
	Stream     *StreamHandler
	Policy     *PolicyHandler
	Health     *HealthHandler
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(h Handlers, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(logger))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.Health.Health)
		if h.Policy != nil {
			v1.GET("/policy", h.Policy.Get)
		}

		judging := v1.Group("")
		if cfg.RateLimit > 0 {
			judging.Use(middleware.RateLimiter(cfg.RateLimit))
		}
		if cfg.MaxRequestBytes > 0 {
			judging.Use(middleware.BodySizeLimit(cfg.MaxRequestBytes))
		}
		judging.POST("/judge", h.Judge.Judge)
		judging.POST("/analyze", h.Judge.Analyze)

		if h.Submission != nil {
			judging.POST("/submissions", h.Submission.Submit)
			v1.GET("/submissions/:id", h.Submission.GetByID)
		}
		if h.Stream != nil {
			v1.GET("/submissions/:id/stream", h.Stream.Stream)
		}
	}

	return router
}
