package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"etsy_erp_backend/internal/service"
)

// AuthController Etsy OAuth 授权接入
type AuthController struct {
	authSvc *service.AuthService
	log     *zap.Logger
}

func NewAuthController(authSvc *service.AuthService, log *zap.Logger) *AuthController {
	return &AuthController{authSvc: authSvc, log: log}
}

// Connect 生成授权链接并重定向到 Etsy
// GET /api/auth/connect
func (c *AuthController) Connect(ctx *gin.Context) {
	authURL, err := c.authSvc.GenerateConnectURL(ctx.Request.Context())
	if err != nil {
		c.log.Error("生成授权链接失败", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.Redirect(http.StatusFound, authURL)
}

// Callback 处理 Etsy 授权回调
// GET /api/auth/callback?code=xxx&state=xxx
func (c *AuthController) Callback(ctx *gin.Context) {
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "缺少 code 或 state 参数"})
		return
	}

	shop, err := c.authSvc.HandleCallback(ctx.Request.Context(), code, state)
	if err != nil {
		c.log.Error("授权回调处理失败", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "店铺授权成功",
		"shop": gin.H{
			"id":           shop.ID,
			"etsy_shop_id": shop.EtsyShopID,
			"shop_name":    shop.ShopName,
			"status":       shop.Status,
		},
	})
}
