package router

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"warnet/backend/internal/handler"
	"warnet/backend/internal/metrics"
	"warnet/backend/internal/middleware"
	"warnet/backend/internal/service"
)

type Config struct {
	CORSOrigins []string
	LoginRate   rate.Limit
	LoginBurst  int
}

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	billingHandler *handler.BillingHandler,
	m *metrics.Metrics,
	log *slog.Logger,
	cfg Config,
) *gin.Engine {
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestLogger(log, func(method, route string, status int, elapsed time.Duration) {
			m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
		}),
		middleware.CORS(cfg.CORSOrigins),
	)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(m.Handler()))

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/login", middleware.RateLimit(cfg.LoginRate, cfg.LoginBurst), authHandler.Login)

	protected := api.Group("")
	protected.Use(middleware.Auth(authService))
	protected.POST("/auth/logout", authHandler.Logout)
	protected.GET("/auth/me", authHandler.Me)

	protected.GET("/status", billingHandler.Status)
	protected.GET("/packages", billingHandler.Packages)
	protected.GET("/dashboard", billingHandler.Dashboard)

	sessions := protected.Group("/sessions")
	sessions.GET("", billingHandler.ListSessions)
	sessions.POST("", billingHandler.AddSession)
	sessions.POST("/refresh", billingHandler.Refresh)
	sessions.GET("/:id", billingHandler.GetSession)
	sessions.DELETE("/:id", billingHandler.RemoveSession)
	sessions.POST("/:id/extend", billingHandler.ExtendSession)
	sessions.POST("/:id/complete", billingHandler.CompleteSession)
	sessions.POST("/:id/payments", billingHandler.RecordPayment)
	sessions.POST("/:id/finalize", billingHandler.FinalizeTransaction)
	sessions.GET("/:id/timer", billingHandler.TimerState)
	sessions.POST("/:id/timer/pause", billingHandler.PauseTimer)
	sessions.POST("/:id/timer/resume", billingHandler.ResumeTimer)

	payment := protected.Group("/payment")
	payment.GET("/:sessionId", billingHandler.PaymentView)
	payment.GET("/:sessionId/receipt", billingHandler.Receipt)

	protected.GET("/transactions", billingHandler.History)
	protected.DELETE("/transactions/:kind/:id", billingHandler.DeleteHistoryEntry)

	return engine
}
