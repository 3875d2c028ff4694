package handler

import (
	"net/http"
	"time"

	"pointmarket/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, cfg *config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()

	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(MetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", headerRequestID, headerUserID, headerAdminToken},
		ExposeHeaders:    []string{headerRequestID},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	if cfg.Server.RateLimitQPS > 0 {
		r.Use(RateLimitMiddleware(NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitQPS), cfg.Server.RateBurst)))
	}

	api := r.Group("/api/v1", AuthMiddleware())
	{
		orders := api.Group("/orders")
		{
			orders.POST("", h.CreateOrder)
			orders.GET("", h.ListOrders)
			orders.GET("/:order_no", h.GetOrder)
			orders.GET("/:order_no/logs", h.ListOrderLogs)
			orders.POST("/:order_no/pay", h.PayOrder)
			orders.POST("/:order_no/cancel", h.CancelOrder)
			orders.POST("/:order_no/complete", h.CompleteOrder)
			orders.POST("/:order_no/refund", h.RefundOrder)
		}

		points := api.Group("/points")
		{
			points.GET("/account", h.GetPointsAccount)
			points.GET("/transactions", h.ListPointTransactions)
			points.POST("/transfer", h.TransferPoints)
		}

		wallet := api.Group("/wallet")
		{
			wallet.GET("/balance", h.GetWalletBalance)
			wallet.GET("/entries", h.ListWalletEntries)
		}

		api.GET("/liabilities", h.ListMyLiabilities)
	}

	admin := r.Group("/admin", AdminMiddleware(cfg.Admin.Token))
	{
		admin.POST("/points/recharge", h.AdminRecharge)
		admin.POST("/points/adjust", h.AdminAdjust)
		admin.POST("/wallet/topup", h.AdminTopUpWallet)
		admin.GET("/orders/:order_no", h.AdminGetOrder)
		admin.POST("/orders/status", h.AdminForceStatus)
		admin.POST("/sellers/:seller_id/liabilities/settle", h.AdminSettleLiabilities)
		admin.GET("/ledger/audit", h.AdminLedgerAudit)
		admin.POST("/sweep/timeouts", h.AdminSweepTimeouts)
		admin.POST("/sweep/auto-complete", h.AdminSweepAutoComplete)
		admin.POST("/outbox/retry", h.AdminRetryOutbox)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
