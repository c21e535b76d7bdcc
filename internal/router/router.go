package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"etsy_erp_backend/internal/controller"
	"etsy_erp_backend/internal/middleware"
)

// Controllers 控制器集合
type Controllers struct {
	Auth    *controller.AuthController
	Shop    *controller.ShopController
	Webhook *controller.WebhookController
}

// SetupRouter 注册所有路由
func SetupRouter(mode string, ctls *Controllers, cooldown *middleware.CooldownLimiter, log *zap.Logger) *gin.Engine {
	gin.SetMode(ginMode(mode))
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLog(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		// auth 授权接入
		auth := api.Group("/auth")
		{
			// GET /api/auth/connect
			auth.GET("/connect", ctls.Auth.Connect)
			// GET /api/auth/callback
			auth.GET("/callback", ctls.Auth.Callback)
		}

		// shop 店铺管理
		shops := api.Group("/shops")
		{
			shops.GET("", ctls.Shop.List)
			shops.GET("/:id/orders", ctls.Shop.ListOrders)
			shops.GET("/:id/products", ctls.Shop.ListProducts)
			shops.POST("/:id/orders/:receipt_id/ship", ctls.Shop.ShipOrder)

			// 手动同步触发，店铺级冷却
			shops.POST("/:id/sync/orders",
				middleware.SyncCooldown(cooldown, middleware.SyncTypeOrder),
				ctls.Shop.TriggerOrderSync)
			shops.POST("/:id/sync/products",
				middleware.SyncCooldown(cooldown, middleware.SyncTypeProduct),
				ctls.Shop.TriggerProductSync)
		}

		// webhook 入站事件
		api.POST("/webhooks/etsy", ctls.Webhook.Receive)
	}

	return r
}

func ginMode(mode string) string {
	if mode == "debug" {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}
