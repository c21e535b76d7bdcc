package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"etsy_erp_backend/internal/service"
)

// WebhookController 入站 Webhook 接收端
type WebhookController struct {
	webhookSvc *service.WebhookService
	log        *zap.Logger
}

func NewWebhookController(webhookSvc *service.WebhookService, log *zap.Logger) *WebhookController {
	return &WebhookController{webhookSvc: webhookSvc, log: log}
}

// Receive 接收 Etsy 事件
// 验签失败返回 401；载荷处理中的业务错误一律吞掉并确认，
// 避免对端对同一事件无限重投
func (c *WebhookController) Receive(ctx *gin.Context) {
	payload, err := ctx.GetRawData()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "读取请求体失败"})
		return
	}

	if c.webhookSvc.SignatureRequired() {
		msgID := ctx.GetHeader("webhook-id")
		timestamp := ctx.GetHeader("webhook-timestamp")
		signature := ctx.GetHeader("webhook-signature")

		if !c.webhookSvc.VerifySignature(msgID, timestamp, payload, signature) {
			c.log.Warn("webhook 验签失败",
				zap.String("msg_id", msgID),
				zap.String("client_ip", ctx.ClientIP()))
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "签名无效"})
			return
		}
	}

	c.webhookSvc.Handle(ctx.Request.Context(), payload)
	ctx.JSON(http.StatusOK, gin.H{"received": true})
}
