package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"etsy_erp_backend/internal/model"
	"etsy_erp_backend/internal/notify"
	"etsy_erp_backend/internal/repository"
)

// ==================== Webhook 事件 ====================

const (
	EventOrderPaid     = "order.paid"
	EventOrderShipped  = "order.shipped"
	EventOrderCanceled = "order.canceled"
)

// 无收据单号时的兜底回溯窗口
const fallbackSyncWindow = 24 * time.Hour

var receiptIDPattern = regexp.MustCompile(`receipts/(\d+)`)

// WebhookEvent 入站事件载荷
type WebhookEvent struct {
	EventType string           `json:"event_type"`
	Data      WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	ShopID      int64  `json:"shop_id"`
	ResourceURL string `json:"resource_url"`
}

// ==================== WebhookService ====================

// WebhookService 入站 Webhook 的验签与分发
type WebhookService struct {
	shopRepo  repository.ShopRepository
	orderRepo repository.OrderRepository
	orderSync *OrderSyncService
	notifier  notify.Notifier
	secret    []byte
	log       *zap.Logger
}

// NewWebhookService 工厂方法
// secret 为 webhook 签名密钥 (whsec_ 前缀 + base64)，为空表示跳过验签
func NewWebhookService(
	shopRepo repository.ShopRepository,
	orderRepo repository.OrderRepository,
	orderSync *OrderSyncService,
	notifier notify.Notifier,
	secret string,
	log *zap.Logger,
) (*WebhookService, error) {
	svc := &WebhookService{
		shopRepo:  shopRepo,
		orderRepo: orderRepo,
		orderSync: orderSync,
		notifier:  notifier,
		log:       log,
	}
	if secret != "" {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
		if err != nil {
			return nil, fmt.Errorf("webhook secret 不是合法的 base64: %w", err)
		}
		svc.secret = raw
	}
	return svc, nil
}

// SignatureRequired 是否配置了验签密钥
func (s *WebhookService) SignatureRequired() bool {
	return len(s.secret) > 0
}

// VerifySignature 校验 webhook 签名
// 签名串为 HMAC-SHA256(msgId.timestamp.payload)，头部格式 "v1,<base64>"，
// 可能携带多个空格分隔的候选签名，任一匹配即通过
func (s *WebhookService) VerifySignature(msgID, timestamp string, payload []byte, signatureHeader string) bool {
	if !s.SignatureRequired() {
		return true
	}
	if msgID == "" || timestamp == "" || signatureHeader == "" {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(payload)
	expected := "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, candidate := range strings.Fields(signatureHeader) {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return true
		}
	}
	return false
}

// Handle 分发事件
// 未知事件类型与未接入的店铺都直接确认，避免对端无限重投
func (s *WebhookService) Handle(ctx context.Context, payload []byte) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.log.Warn("webhook 载荷解析失败", zap.Error(err))
		return
	}

	shop, err := s.shopRepo.GetByEtsyShopID(ctx, event.Data.ShopID)
	if err != nil {
		s.log.Warn("webhook 指向未接入的店铺",
			zap.Int64("etsy_shop_id", event.Data.ShopID),
			zap.String("event", event.EventType))
		return
	}

	switch event.EventType {
	case EventOrderPaid, EventOrderShipped:
		s.resync(ctx, shop, event.Data.ResourceURL)

	case EventOrderCanceled:
		s.resync(ctx, shop, event.Data.ResourceURL)
		s.notifyCanceled(ctx, shop, event.Data.ResourceURL)

	default:
		s.log.Debug("忽略未知 webhook 事件",
			zap.String("event", event.EventType),
			zap.Int64("etsy_shop_id", event.Data.ShopID))
	}
}

// resync 能定位收据单号时做单单同步，否则回溯一个窗口
func (s *WebhookService) resync(ctx context.Context, shop *model.Shop, resourceURL string) {
	if receiptID, ok := extractReceiptID(resourceURL); ok {
		if err := s.orderSync.SyncSingleReceipt(ctx, shop, receiptID); err != nil {
			s.log.Error("webhook 触发的收据同步失败",
				zap.Int64("shop_id", shop.ID),
				zap.Int64("receipt_id", receiptID),
				zap.Error(err))
		}
		return
	}

	if _, err := s.orderSync.SyncShopOrders(ctx, shop, time.Now().Add(-fallbackSyncWindow)); err != nil {
		s.log.Error("webhook 触发的兜底同步失败",
			zap.Int64("shop_id", shop.ID), zap.Error(err))
	}
}

func (s *WebhookService) notifyCanceled(ctx context.Context, shop *model.Shop, resourceURL string) {
	receiptID, ok := extractReceiptID(resourceURL)
	if !ok {
		return
	}
	order, err := s.orderRepo.GetByEtsyReceiptID(ctx, receiptID)
	if err != nil {
		return
	}
	if order.Status == model.OrderStatusCanceled {
		s.notifier.NotifyOrderCanceled(ctx, shop, order)
	}
}

func extractReceiptID(resourceURL string) (int64, bool) {
	m := receiptIDPattern.FindStringSubmatch(resourceURL)
	if len(m) != 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
