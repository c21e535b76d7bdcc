package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"etsy_erp_backend/internal/model"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier 通过 Telegram Bot 推送订单事件
type TelegramNotifier struct {
	http     *resty.Client
	botToken string
	log      *zap.Logger
}

// NewTelegramNotifier 工厂方法
func NewTelegramNotifier(botToken string, log *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		http:     resty.New().SetBaseURL(telegramAPIBase).SetTimeout(10 * time.Second),
		botToken: botToken,
		log:      log,
	}
}

// NotifyNewOrder 新付款订单推送
func (n *TelegramNotifier) NotifyNewOrder(ctx context.Context, shop *model.Shop, order *model.Order, items []OrderItemSummary) {
	if !n.enabled(shop) {
		return
	}

	var b strings.Builder
	b.WriteString("🛒 <b>新订单</b>\n\n")
	fmt.Fprintf(&b, "店铺: %s\n", html.EscapeString(shop.ShopName))
	fmt.Fprintf(&b, "订单号: %d\n", order.EtsyReceiptID)
	fmt.Fprintf(&b, "买家: %s\n", html.EscapeString(order.BuyerName))
	fmt.Fprintf(&b, "金额: %s %s\n", order.TotalPrice.StringFixed(2), order.Currency)
	if len(items) > 0 {
		b.WriteString("\n商品:\n")
		for _, item := range items {
			fmt.Fprintf(&b, "• %s ×%d", html.EscapeString(item.Title), item.Quantity)
			if item.SKU != "" {
				fmt.Fprintf(&b, " (SKU: %s)", html.EscapeString(item.SKU))
			}
			b.WriteString("\n")
		}
	}

	n.send(ctx, shop, b.String())
}

// NotifyOrderCanceled 订单取消推送
func (n *TelegramNotifier) NotifyOrderCanceled(ctx context.Context, shop *model.Shop, order *model.Order) {
	if !n.enabled(shop) {
		return
	}

	msg := fmt.Sprintf("❌ <b>订单已取消</b>\n\n店铺: %s\n订单号: %d\n金额: %s %s",
		html.EscapeString(shop.ShopName),
		order.EtsyReceiptID,
		order.TotalPrice.StringFixed(2),
		order.Currency,
	)
	n.send(ctx, shop, msg)
}

func (n *TelegramNotifier) enabled(shop *model.Shop) bool {
	return n.botToken != "" && shop.TelegramEnabled && shop.TelegramChatID != ""
}

// send 调用 Bot API，失败只记日志
func (n *TelegramNotifier) send(ctx context.Context, shop *model.Shop, text string) {
	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"chat_id":    shop.TelegramChatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", n.botToken))

	if err != nil {
		n.log.Warn("Telegram 推送失败",
			zap.Int64("shop_id", shop.ID), zap.Error(err))
		return
	}
	if resp.IsError() {
		n.log.Warn("Telegram 推送被拒绝",
			zap.Int64("shop_id", shop.ID),
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()))
	}
}
