package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"etsy_erp_backend/internal/model"
	"etsy_erp_backend/internal/notify"
	"etsy_erp_backend/internal/repository"
	"etsy_erp_backend/pkg/etsy"
	"etsy_erp_backend/pkg/locker"
)

// ==================== 测试替身 ====================

// fakeGateway 可编程的 Etsy API 替身
type fakeGateway struct {
	receipts     []etsy.EtsyReceiptResp
	listings     []etsy.EtsyListingResp
	inventories  map[int64]*etsy.EtsyInventoryResp
	inventoryErr error
	shipments    []etsy.CreateShipmentReq
	shipmentErr  error
}

func (f *fakeGateway) GetShopReceipts(ctx context.Context, shopID, etsyShopID int64, params etsy.ReceiptListParams) (*etsy.EtsyReceiptsResp, error) {
	end := params.Offset + params.Limit
	if end > len(f.receipts) {
		end = len(f.receipts)
	}
	start := params.Offset
	if start > len(f.receipts) {
		start = len(f.receipts)
	}
	return &etsy.EtsyReceiptsResp{Count: len(f.receipts), Results: f.receipts[start:end]}, nil
}

func (f *fakeGateway) GetReceipt(ctx context.Context, shopID, etsyShopID, receiptID int64) (*etsy.EtsyReceiptResp, error) {
	for i := range f.receipts {
		if f.receipts[i].ReceiptID == receiptID {
			return &f.receipts[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeGateway) GetShopListings(ctx context.Context, shopID, etsyShopID int64, params etsy.ListingListParams) (*etsy.EtsyListingsResp, error) {
	end := params.Offset + params.Limit
	if end > len(f.listings) {
		end = len(f.listings)
	}
	start := params.Offset
	if start > len(f.listings) {
		start = len(f.listings)
	}
	return &etsy.EtsyListingsResp{Count: len(f.listings), Results: f.listings[start:end]}, nil
}

func (f *fakeGateway) GetListingInventory(ctx context.Context, shopID, listingID int64) (*etsy.EtsyInventoryResp, error) {
	if f.inventoryErr != nil {
		return nil, f.inventoryErr
	}
	if inv, ok := f.inventories[listingID]; ok {
		return inv, nil
	}
	return &etsy.EtsyInventoryResp{}, nil
}

func (f *fakeGateway) CreateReceiptShipment(ctx context.Context, shopID, etsyShopID, receiptID int64, req etsy.CreateShipmentReq) error {
	if f.shipmentErr != nil {
		return f.shipmentErr
	}
	f.shipments = append(f.shipments, req)
	return nil
}

// failingOrderRepo 查询返回瞬时错误的仓库替身
type failingOrderRepo struct {
	repository.OrderRepository
	findErr error
	created atomic.Int32
}

func (f *failingOrderRepo) GetByEtsyReceiptID(ctx context.Context, receiptID int64) (*model.Order, error) {
	return nil, f.findErr
}

func (f *failingOrderRepo) Create(ctx context.Context, order *model.Order) error {
	f.created.Add(1)
	return f.OrderRepository.Create(ctx, order)
}

// recordingNotifier 记录通知调用
type recordingNotifier struct {
	newOrders []int64
	canceled  []int64
}

func (r *recordingNotifier) NotifyNewOrder(ctx context.Context, shop *model.Shop, order *model.Order, items []notify.OrderItemSummary) {
	r.newOrders = append(r.newOrders, order.EtsyReceiptID)
}

func (r *recordingNotifier) NotifyOrderCanceled(ctx context.Context, shop *model.Shop, order *model.Order) {
	r.canceled = append(r.canceled, order.EtsyReceiptID)
}

// ==================== 测试辅助 ====================

func seedActiveShop(t *testing.T, db *gorm.DB) *model.Shop {
	shop := &model.Shop{EtsyShopID: 9001, ShopName: "demo", Status: model.ShopStatusActive}
	if err := db.Create(shop).Error; err != nil {
		t.Fatalf("预置店铺失败: %v", err)
	}
	return shop
}

func newTestOrderSync(db *gorm.DB, gateway EtsyGateway, notifier notify.Notifier) *OrderSyncService {
	return NewOrderSyncService(
		gateway,
		repository.NewShopRepository(db),
		repository.NewOrderRepository(db),
		repository.NewOrderItemRepository(db),
		repository.NewProductVariantRepository(db),
		notifier,
		locker.NewShopLocker(),
		zap.NewNop(),
	)
}

func paidReceipt(receiptID int64) etsy.EtsyReceiptResp {
	return etsy.EtsyReceiptResp{
		ReceiptID:       receiptID,
		Status:          "Paid",
		WasPaid:         true,
		Name:            "Alice",
		BuyerUserID:     501,
		BuyerEmail:      "alice@example.com",
		CountryISO:      "US",
		CreateTimestamp: time.Now().Add(-time.Hour).Unix(),
		UpdateTimestamp: time.Now().Unix(),
		Grandtotal:      etsy.EtsyMoney{Amount: 1999, Divisor: 100, CurrencyCode: "USD"},
		Subtotal:        etsy.EtsyMoney{Amount: 1799, Divisor: 100, CurrencyCode: "USD"},
		TotalShippingCost: etsy.EtsyMoney{Amount: 200, Divisor: 100, CurrencyCode: "USD"},
		Transactions: []etsy.EtsyTransactionResp{
			{
				TransactionID: 70001,
				ListingID:     80001,
				Title:         "Handmade Mug",
				SKU:           "MUG-RED",
				Quantity:      2,
				Price:         etsy.EtsyMoney{Amount: 899, Divisor: 100, CurrencyCode: "USD"},
				Variations: []etsy.EtsyVariationResp{
					{FormattedName: "Color", FormattedValue: "Red"},
				},
			},
		},
	}
}

// ==================== 单元测试 ====================

func TestOrderSync_CreatesOrderWithDecimalAmounts(t *testing.T) {
	db := setupServiceTestDB(t)
	shop := seedActiveShop(t, db)
	gateway := &fakeGateway{receipts: []etsy.EtsyReceiptResp{paidReceipt(60001)}}
	notifier := &recordingNotifier{}
	svc := newTestOrderSync(db, gateway, notifier)

	result, err := svc.SyncShopOrders(context.Background(), shop, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("同步失败: %v", err)
	}
	if result.Created != 1 || result.Updated != 0 {
		t.Errorf("created=%d updated=%d, 预期 1/0", result.Created, result.Updated)
	}

	var order model.Order
	if err := db.Where("etsy_receipt_id = ?", 60001).First(&order).Error; err != nil {
		t.Fatalf("查询订单失败: %v", err)
	}
	if order.TotalPrice.StringFixed(2) != "19.99" {
		t.Errorf("total = %s, 预期 19.99", order.TotalPrice.StringFixed(2))
	}
	if order.Status != model.OrderStatusPaid {
		t.Errorf("status = %s, 预期 paid", order.Status)
	}
	if order.PaidAt == nil {
		t.Error("已付款订单应记录 PaidAt")
	}

	var item model.OrderItem
	if err := db.Where("order_id = ?", order.ID).First(&item).Error; err != nil {
		t.Fatalf("查询订单行失败: %v", err)
	}
	if item.SKU != "MUG-RED" || item.Quantity != 2 {
		t.Errorf("订单行 = (%s, %d), 预期 (MUG-RED, 2)", item.SKU, item.Quantity)
	}
	if item.Price.StringFixed(2) != "8.99" {
		t.Errorf("单价 = %s, 预期 8.99", item.Price.StringFixed(2))
	}
}

func TestOrderSync_Idempotent(t *testing.T) {
	db := setupServiceTestDB(t)
	shop := seedActiveShop(t, db)
	gateway := &fakeGateway{receipts: []etsy.EtsyReceiptResp{paidReceipt(60001)}}
	notifier := &recordingNotifier{}
	svc := newTestOrderSync(db, gateway, notifier)

	since := time.Now().Add(-24 * time.Hour)
	if _, err := svc.SyncShopOrders(context.Background(), shop, since); err != nil {
		t.Fatalf("首次同步失败: %v", err)
	}
	result, err := svc.SyncShopOrders(context.Background(), shop, since)
	if err != nil {
		t.Fatalf("重复同步失败: %v", err)
	}
	if result.Created != 0 || result.Updated != 1 {
		t.Errorf("重复同步 created=%d updated=%d, 预期 0/1", result.Created, result.Updated)
	}

	var orderCount, itemCount int64
	db.Model(&model.Order{}).Count(&orderCount)
	db.Model(&model.OrderItem{}).Count(&itemCount)
	if orderCount != 1 || itemCount != 1 {
		t.Errorf("订单/订单行数量 = %d/%d, 预期 1/1", orderCount, itemCount)
	}
}

func TestOrderSync_FindErrorNotTreatedAsNew(t *testing.T) {
	db := setupServiceTestDB(t)
	shop := seedActiveShop(t, db)
	gateway := &fakeGateway{receipts: []etsy.EtsyReceiptResp{paidReceipt(60001)}}
	// 查询报瞬时错误 (非 NotFound)，不应走新建分支
	orderRepo := &failingOrderRepo{
		OrderRepository: repository.NewOrderRepository(db),
		findErr:         errors.New("driver: bad connection"),
	}
	svc := NewOrderSyncService(
		gateway,
		repository.NewShopRepository(db),
		orderRepo,
		repository.NewOrderItemRepository(db),
		repository.NewProductVariantRepository(db),
		&recordingNotifier{},
		locker.NewShopLocker(),
		zap.NewNop(),
	)

	result, err := svc.SyncShopOrders(context.Background(), shop, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("同步失败: %v", err)
	}
	if result.Failed != 1 || result.Created != 0 {
		t.Errorf("failed=%d created=%d, 预期 1/0", result.Failed, result.Created)
	}
	if orderRepo.created.Load() != 0 {
		t.Errorf("查询报错时不应尝试新建, 实际新建 %d 次", orderRepo.created.Load())
	}
}

func TestOrderSync_NotifiesNewPaidOrderOnce(t *testing.T) {
	db := setupServiceTestDB(t)
	shop := seedActiveShop(t, db)
	gateway := &fakeGateway{receipts: []etsy.EtsyReceiptResp{paidReceipt(60001)}}
	notifier := &recordingNotifier{}
	svc := newTestOrderSync(db, gateway, notifier)

	since := time.Now().Add(-24 * time.Hour)
	svc.SyncShopOrders(context.Background(), shop, since)
	svc.SyncShopOrders(context.Background(), shop, since)

	if len(notifier.newOrders) != 1 {
		t.Errorf("新订单推送次数 = %d, 预期 1 (重复同步不重复推送)", len(notifier.newOrders))
	}
}

func TestOrderSync_HistoricalShippedOrderNotNotified(t *testing.T) {
	db := setupServiceTestDB(t)
	shop := seedActiveShop(t, db)
	// 首次接入店铺时回溯到的历史收据，已付款且已发货
	receipt := paidReceipt(60003)
	receipt.Status = "Completed"
	receipt.WasShipped = true
	gateway := &fakeGateway{receipts: []etsy.EtsyReceiptResp{receipt}}
	notifier := &recordingNotifier{}
	svc := newTestOrderSync(db, gateway, notifier)

	svc.SyncShopOrders(context.Background(), shop, time.Now().Add(-24*time.Hour))

	if len(notifier.newOrders) != 0 {
		t.Errorf("历史已发货订单不应推送新订单通知, 实际推送 %d 次", len(notifier.newOrders))
	}
	var order model.Order
	if err := db.Where("etsy_receipt_id = ?", 60003).First(&order).Error; err != nil {
		t.Fatalf("查询订单失败: %v", err)
	}
	if order.Status != model.OrderStatusShipped {
		t.Errorf("status = %s, 预期 shipped", order.Status)
	}
}

func TestOrderSync_UnpaidOrderNotNotified(t *testing.T) {
	db := setupServiceTestDB(t)
	shop := seedActiveShop(t, db)
	receipt := paidReceipt(60002)
	receipt.Status = "Open"
	receipt.WasPaid = false
	gateway := &fakeGateway{receipts: []etsy.EtsyReceiptResp{receipt}}
	notifier := &recordingNotifier{}
	svc := newTestOrderSync(db, gateway, notifier)

	svc.SyncShopOrders(context.Background(), shop, time.Now().Add(-24*time.Hour))

	if len(notifier.newOrders) != 0 {
		t.Errorf("未付款订单不应推送, 实际推送 %d 次", len(notifier.newOrders))
	}
	var order model.Order
	db.Where("etsy_receipt_id = ?", 60002).First(&order)
	if order.Status != model.OrderStatusOpen {
		t.Errorf("status = %s, 预期 open", order.Status)
	}
}

func TestOrderSync_StatusProjection(t *testing.T) {
	cases := []struct {
		name       string
		etsyStatus string
		wasPaid    bool
		wasShipped bool
		want       string
	}{
		{"取消优先于发货", "Canceled", true, true, model.OrderStatusCanceled},
		{"发货优先于付款", "Paid", true, true, model.OrderStatusShipped},
		{"已付款", "Paid", true, false, model.OrderStatusPaid},
		{"进行中", "Open", false, false, model.OrderStatusOpen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := model.ProjectOrderStatus(tc.etsyStatus, tc.wasPaid, tc.wasShipped)
			if got != tc.want {
				t.Errorf("投影结果 = %s, 预期 %s", got, tc.want)
			}
		})
	}
}

func TestOrderSync_LinksVariantBySKU(t *testing.T) {
	db := setupServiceTestDB(t)
	shop := seedActiveShop(t, db)

	// 预置命中 SKU 的本地商品变体
	product := &model.Product{ShopID: shop.ID, EtsyListingID: 80001, Title: "Handmade Mug"}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("预置商品失败: %v", err)
	}
	variant := &model.ProductVariant{ProductID: product.ID, EtsyProductID: 91001, SKU: "MUG-RED"}
	if err := db.Create(variant).Error; err != nil {
		t.Fatalf("预置变体失败: %v", err)
	}

	gateway := &fakeGateway{receipts: []etsy.EtsyReceiptResp{paidReceipt(60001)}}
	svc := newTestOrderSync(db, gateway, &recordingNotifier{})

	svc.SyncShopOrders(context.Background(), shop, time.Now().Add(-24*time.Hour))

	var item model.OrderItem
	if err := db.Where("sku = ?", "MUG-RED").First(&item).Error; err != nil {
		t.Fatalf("查询订单行失败: %v", err)
	}
	if item.ProductVariantID == nil || *item.ProductVariantID != variant.ID {
		t.Errorf("SKU 命中应回填变体关联, 实际 %v", item.ProductVariantID)
	}
}

func TestOrderSync_TrackingFromShipment(t *testing.T) {
	db := setupServiceTestDB(t)
	shop := seedActiveShop(t, db)
	receipt := paidReceipt(60003)
	receipt.WasShipped = true
	receipt.Shipments = []etsy.EtsyShipmentResp{
		{TrackingCode: "LX123456789CN", CarrierName: "china-post"},
	}
	gateway := &fakeGateway{receipts: []etsy.EtsyReceiptResp{receipt}}
	svc := newTestOrderSync(db, gateway, &recordingNotifier{})

	svc.SyncShopOrders(context.Background(), shop, time.Now().Add(-24*time.Hour))

	var order model.Order
	if err := db.Where("etsy_receipt_id = ?", 60003).First(&order).Error; err != nil {
		t.Fatalf("查询订单失败: %v", err)
	}
	if order.TrackingNumber != "LX123456789CN" || order.CarrierName != "china-post" {
		t.Errorf("物流信息 = (%s, %s), 预期取首个 shipment", order.TrackingNumber, order.CarrierName)
	}
	if order.Status != model.OrderStatusShipped {
		t.Errorf("status = %s, 预期 shipped", order.Status)
	}
}

func TestOrderSync_SubmitTracking(t *testing.T) {
	db := setupServiceTestDB(t)
	shop := seedActiveShop(t, db)
	gateway := &fakeGateway{receipts: []etsy.EtsyReceiptResp{paidReceipt(60001)}}
	svc := newTestOrderSync(db, gateway, &recordingNotifier{})

	svc.SyncShopOrders(context.Background(), shop, time.Now().Add(-24*time.Hour))

	if err := svc.SubmitTracking(context.Background(), shop, 60001, "LX123456789CN", "china-post"); err != nil {
		t.Fatalf("回写物流失败: %v", err)
	}

	if len(gateway.shipments) != 1 || gateway.shipments[0].TrackingCode != "LX123456789CN" {
		t.Errorf("应调用发货接口一次, 实际 %v", gateway.shipments)
	}
	var order model.Order
	if err := db.Where("etsy_receipt_id = ?", 60001).First(&order).Error; err != nil {
		t.Fatalf("查询订单失败: %v", err)
	}
	if order.Status != model.OrderStatusShipped || order.TrackingNumber != "LX123456789CN" {
		t.Errorf("订单 = (%s, %s), 预期 (shipped, LX123456789CN)", order.Status, order.TrackingNumber)
	}

	// 不属于该收据的订单直接报错
	if err := svc.SubmitTracking(context.Background(), shop, 99999, "X", "Y"); err == nil {
		t.Error("不存在的订单应报错")
	}
}

func TestOrderSync_UpdatesLastSyncAt(t *testing.T) {
	db := setupServiceTestDB(t)
	shop := seedActiveShop(t, db)
	gateway := &fakeGateway{}
	svc := newTestOrderSync(db, gateway, &recordingNotifier{})

	if _, err := svc.SyncShopOrders(context.Background(), shop, time.Now().Add(-24*time.Hour)); err != nil {
		t.Fatalf("同步失败: %v", err)
	}

	var updated model.Shop
	if err := db.First(&updated, shop.ID).Error; err != nil {
		t.Fatalf("查询店铺失败: %v", err)
	}
	if updated.LastSyncAt == nil {
		t.Error("同步完成后应更新 LastSyncAt")
	}
}
