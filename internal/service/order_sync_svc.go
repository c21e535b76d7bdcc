package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"etsy_erp_backend/internal/model"
	"etsy_erp_backend/internal/notify"
	"etsy_erp_backend/internal/repository"
	"etsy_erp_backend/pkg/etsy"
	"etsy_erp_backend/pkg/locker"
)

// 单页拉取数量，Etsy 上限 100
const receiptPageSize = 100

// EtsyGateway 同步服务对 Etsy API 的依赖面
type EtsyGateway interface {
	GetShopReceipts(ctx context.Context, shopID, etsyShopID int64, params etsy.ReceiptListParams) (*etsy.EtsyReceiptsResp, error)
	GetReceipt(ctx context.Context, shopID, etsyShopID, receiptID int64) (*etsy.EtsyReceiptResp, error)
	GetShopListings(ctx context.Context, shopID, etsyShopID int64, params etsy.ListingListParams) (*etsy.EtsyListingsResp, error)
	GetListingInventory(ctx context.Context, shopID, listingID int64) (*etsy.EtsyInventoryResp, error)
	CreateReceiptShipment(ctx context.Context, shopID, etsyShopID, receiptID int64, req etsy.CreateShipmentReq) error
}

// SyncResult 单店铺同步结果统计
type SyncResult struct {
	Created int
	Updated int
	Failed  int
}

// OrderSyncService 订单对账同步
type OrderSyncService struct {
	gateway     EtsyGateway
	shopRepo    repository.ShopRepository
	orderRepo   repository.OrderRepository
	itemRepo    repository.OrderItemRepository
	variantRepo repository.ProductVariantRepository
	notifier    notify.Notifier
	locks       *locker.ShopLocker
	log         *zap.Logger
}

// NewOrderSyncService 工厂方法
func NewOrderSyncService(
	gateway EtsyGateway,
	shopRepo repository.ShopRepository,
	orderRepo repository.OrderRepository,
	itemRepo repository.OrderItemRepository,
	variantRepo repository.ProductVariantRepository,
	notifier notify.Notifier,
	locks *locker.ShopLocker,
	log *zap.Logger,
) *OrderSyncService {
	return &OrderSyncService{
		gateway:     gateway,
		shopRepo:    shopRepo,
		orderRepo:   orderRepo,
		itemRepo:    itemRepo,
		variantRepo: variantRepo,
		notifier:    notifier,
		locks:       locks,
		log:         log,
	}
}

// SyncShopOrders 同步单个店铺自 since 以来的订单
// 店铺级互斥：定时任务和 Webhook 触发的同步不会交叠
func (s *OrderSyncService) SyncShopOrders(ctx context.Context, shop *model.Shop, since time.Time) (*SyncResult, error) {
	s.locks.Lock(shop.ID)
	defer s.locks.Unlock(shop.ID)

	result := &SyncResult{}
	offset := 0

	for {
		resp, err := s.gateway.GetShopReceipts(ctx, shop.ID, shop.EtsyShopID, etsy.ReceiptListParams{
			Limit:      receiptPageSize,
			Offset:     offset,
			MinCreated: since.Unix(),
		})
		if err != nil {
			return result, fmt.Errorf("拉取收据列表失败 (offset=%d): %w", offset, err)
		}

		for i := range resp.Results {
			if err := s.upsertReceipt(ctx, shop, &resp.Results[i], result); err != nil {
				// 单条失败不中断整页
				result.Failed++
				s.log.Error("收据同步失败",
					zap.Int64("shop_id", shop.ID),
					zap.Int64("receipt_id", resp.Results[i].ReceiptID),
					zap.Error(err))
			}
		}

		offset += len(resp.Results)
		if len(resp.Results) < receiptPageSize || offset >= resp.Count {
			break
		}
	}

	now := time.Now()
	if err := s.shopRepo.UpdateLastSyncAt(ctx, shop.ID, now); err != nil {
		s.log.Warn("更新店铺同步时间失败", zap.Int64("shop_id", shop.ID), zap.Error(err))
	}

	s.log.Info("店铺订单同步完成",
		zap.Int64("shop_id", shop.ID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed))
	return result, nil
}

// SyncSingleReceipt 按收据单号同步一单 (Webhook 触发的窄同步)
func (s *OrderSyncService) SyncSingleReceipt(ctx context.Context, shop *model.Shop, receiptID int64) error {
	s.locks.Lock(shop.ID)
	defer s.locks.Unlock(shop.ID)

	receipt, err := s.gateway.GetReceipt(ctx, shop.ID, shop.EtsyShopID, receiptID)
	if err != nil {
		return fmt.Errorf("拉取收据 %d 失败: %w", receiptID, err)
	}

	result := &SyncResult{}
	return s.upsertReceipt(ctx, shop, receipt, result)
}

// SubmitTracking 回写物流单号到 Etsy 并更新本地订单
func (s *OrderSyncService) SubmitTracking(ctx context.Context, shop *model.Shop, receiptID int64, trackingCode, carrierName string) error {
	s.locks.Lock(shop.ID)
	defer s.locks.Unlock(shop.ID)

	order, err := s.orderRepo.GetByEtsyReceiptID(ctx, receiptID)
	if err != nil {
		return fmt.Errorf("订单 %d 不存在: %w", receiptID, err)
	}
	if order.ShopID != shop.ID {
		return fmt.Errorf("订单 %d 不属于店铺 %d", receiptID, shop.ID)
	}

	err = s.gateway.CreateReceiptShipment(ctx, shop.ID, shop.EtsyShopID, receiptID, etsy.CreateShipmentReq{
		TrackingCode: trackingCode,
		CarrierName:  carrierName,
	})
	if err != nil {
		return fmt.Errorf("回写物流单号失败: %w", err)
	}

	order.TrackingNumber = trackingCode
	order.CarrierName = carrierName
	order.Status = model.OrderStatusShipped
	if err := s.orderRepo.Update(ctx, order); err != nil {
		return fmt.Errorf("更新本地订单失败: %w", err)
	}

	s.log.Info("物流单号已回写",
		zap.Int64("shop_id", shop.ID),
		zap.Int64("receipt_id", receiptID),
		zap.String("tracking_code", trackingCode))
	return nil
}

// upsertReceipt 收据落库 (先查后写)，新付款订单触发通知
func (s *OrderSyncService) upsertReceipt(ctx context.Context, shop *model.Shop, receipt *etsy.EtsyReceiptResp, result *SyncResult) error {
	existing, findErr := s.orderRepo.GetByEtsyReceiptID(ctx, receipt.ReceiptID)
	if findErr != nil && !errors.Is(findErr, gorm.ErrRecordNotFound) {
		return fmt.Errorf("查询订单 %d 失败: %w", receipt.ReceiptID, findErr)
	}
	isNew := findErr != nil

	order := existing
	if isNew {
		order = &model.Order{
			EtsyReceiptID: receipt.ReceiptID,
			ShopID:        shop.ID,
		}
	}
	s.applyReceipt(order, receipt)

	var err error
	if isNew {
		err = s.orderRepo.Create(ctx, order)
	} else {
		err = s.orderRepo.Update(ctx, order)
	}
	if err != nil {
		return err
	}

	// 订单行
	items := s.upsertItems(ctx, shop, order, receipt)

	if isNew {
		result.Created++
		// 仅新建且状态为已付款的订单推送一次
		// 历史已发货/已取消的收据首次入库不推，后续更新也不重复推
		if order.Status == model.OrderStatusPaid {
			s.notifier.NotifyNewOrder(ctx, shop, order, items)
		}
	} else {
		result.Updated++
	}
	return nil
}

// applyReceipt 把 Etsy 收据字段映射到本地订单
func (s *OrderSyncService) applyReceipt(order *model.Order, receipt *etsy.EtsyReceiptResp) {
	order.BuyerUserID = receipt.BuyerUserID
	order.BuyerEmail = receipt.BuyerEmail
	order.BuyerName = receipt.Name
	order.EtsyStatus = receipt.Status
	order.Status = model.ProjectOrderStatus(receipt.Status, receipt.WasPaid, receipt.WasShipped)

	order.ShippingAddress = datatypes.JSONMap{
		"name":        receipt.Name,
		"first_line":  receipt.FirstLine,
		"second_line": receipt.SecondLine,
		"city":        receipt.City,
		"state":       receipt.State,
		"zip":         receipt.Zip,
		"country_iso": receipt.CountryISO,
	}
	order.ShippingCountry = receipt.CountryISO

	order.TotalPrice = receipt.Grandtotal.Decimal()
	order.Subtotal = receipt.Subtotal.Decimal()
	order.ShippingCost = receipt.TotalShippingCost.Decimal()
	order.SalesTax = receipt.TotalTaxCost.Decimal()
	if receipt.Grandtotal.CurrencyCode != "" {
		order.Currency = receipt.Grandtotal.CurrencyCode
	}

	if receipt.WasPaid && order.PaidAt == nil {
		paidAt := time.Now()
		if receipt.CreateTimestamp > 0 {
			paidAt = time.Unix(receipt.CreateTimestamp, 0)
		}
		order.PaidAt = &paidAt
	}

	// 物流取首个 shipment
	if len(receipt.Shipments) > 0 {
		order.TrackingNumber = receipt.Shipments[0].TrackingCode
		order.CarrierName = receipt.Shipments[0].CarrierName
	}

	if receipt.CreateTimestamp > 0 {
		created := time.Unix(receipt.CreateTimestamp, 0)
		order.EtsyCreatedAt = &created
	}
	if receipt.UpdateTimestamp > 0 {
		updated := time.Unix(receipt.UpdateTimestamp, 0)
		order.EtsyUpdatedAt = &updated
	}
}

// upsertItems 同步订单行，SKU 命中本地变体时回填关联
func (s *OrderSyncService) upsertItems(ctx context.Context, shop *model.Shop, order *model.Order, receipt *etsy.EtsyReceiptResp) []notify.OrderItemSummary {
	summaries := make([]notify.OrderItemSummary, 0, len(receipt.Transactions))

	for i := range receipt.Transactions {
		txn := &receipt.Transactions[i]
		summaries = append(summaries, notify.OrderItemSummary{
			Title:    txn.Title,
			SKU:      txn.SKU,
			Quantity: txn.Quantity,
		})

		existing, findErr := s.itemRepo.GetByEtsyTransactionID(ctx, txn.TransactionID)
		if findErr != nil && !errors.Is(findErr, gorm.ErrRecordNotFound) {
			s.log.Error("查询订单行失败",
				zap.Int64("transaction_id", txn.TransactionID),
				zap.Error(findErr))
			continue
		}
		item := existing
		if findErr != nil {
			txnID := txn.TransactionID
			item = &model.OrderItem{
				OrderID:           order.ID,
				EtsyTransactionID: &txnID,
			}
		}
		item.EtsyListingID = txn.ListingID
		item.Title = txn.Title
		item.SKU = txn.SKU
		item.Quantity = txn.Quantity
		item.Price = txn.Price.Decimal()

		variations := datatypes.JSONMap{}
		for _, v := range txn.Variations {
			variations[v.FormattedName] = v.FormattedValue
		}
		item.Variations = variations

		// SKU -> 本地变体
		if txn.SKU != "" && item.ProductVariantID == nil {
			if variant, err := s.variantRepo.FindBySKU(ctx, shop.ID, txn.SKU); err == nil {
				item.ProductVariantID = &variant.ID
			}
		}

		var err error
		if findErr != nil {
			err = s.itemRepo.Create(ctx, item)
		} else {
			err = s.itemRepo.Update(ctx, item)
		}
		if err != nil {
			s.log.Error("订单行同步失败",
				zap.Int64("order_id", order.ID),
				zap.Int64("transaction_id", txn.TransactionID),
				zap.Error(err))
		}
	}
	return summaries
}
