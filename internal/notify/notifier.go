package notify

import (
	"context"

	"etsy_erp_backend/internal/model"
)

// OrderItemSummary 通知消息中的订单行摘要
type OrderItemSummary struct {
	Title    string
	SKU      string
	Quantity int
}

// Notifier 订单事件通知出口
// 通知失败只记日志，不影响同步流程
type Notifier interface {
	NotifyNewOrder(ctx context.Context, shop *model.Shop, order *model.Order, items []OrderItemSummary)
	NotifyOrderCanceled(ctx context.Context, shop *model.Shop, order *model.Order)
}

// ==================== 空实现 ====================

// NopNotifier 通知渠道未配置时使用
type NopNotifier struct{}

func (NopNotifier) NotifyNewOrder(ctx context.Context, shop *model.Shop, order *model.Order, items []OrderItemSummary) {
}

func (NopNotifier) NotifyOrderCanceled(ctx context.Context, shop *model.Shop, order *model.Order) {}
