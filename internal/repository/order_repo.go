package repository

import (
	"context"

	"gorm.io/gorm"

	"etsy_erp_backend/internal/model"
)

// ==================== 接口定义 ====================

// OrderRepository 订单仓储接口
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	Update(ctx context.Context, order *model.Order) error
	GetByEtsyReceiptID(ctx context.Context, receiptID int64) (*model.Order, error)
	ListByShop(ctx context.Context, shopID int64, page, pageSize int) ([]model.Order, int64, error)
}

// OrderItemRepository 订单行仓储接口
type OrderItemRepository interface {
	Create(ctx context.Context, item *model.OrderItem) error
	Update(ctx context.Context, item *model.OrderItem) error
	GetByEtsyTransactionID(ctx context.Context, transactionID int64) (*model.OrderItem, error)
	ListByOrder(ctx context.Context, orderID int64) ([]model.OrderItem, error)
}

// ==================== 订单仓储实现 ====================

type orderRepo struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepo) Update(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *orderRepo) GetByEtsyReceiptID(ctx context.Context, receiptID int64) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Where("etsy_receipt_id = ?", receiptID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepo) ListByShop(ctx context.Context, shopID int64, page, pageSize int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("shop_id = ?", shopID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	err := query.
		Order("etsy_created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ==================== 订单行仓储实现 ====================

type orderItemRepo struct {
	db *gorm.DB
}

// NewOrderItemRepository 创建订单行仓储
func NewOrderItemRepository(db *gorm.DB) OrderItemRepository {
	return &orderItemRepo{db: db}
}

func (r *orderItemRepo) Create(ctx context.Context, item *model.OrderItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *orderItemRepo) Update(ctx context.Context, item *model.OrderItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *orderItemRepo) GetByEtsyTransactionID(ctx context.Context, transactionID int64) (*model.OrderItem, error) {
	var item model.OrderItem
	if err := r.db.WithContext(ctx).Where("etsy_transaction_id = ?", transactionID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *orderItemRepo) ListByOrder(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	var items []model.OrderItem
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
