package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ==================== 订单状态常量 ====================

// 本地订单状态，由 Etsy 回执标志位投影得到
// 优先级: canceled > shipped > paid > open
const (
	OrderStatusOpen     = "open"     // 进行中
	OrderStatusPaid     = "paid"     // 已支付
	OrderStatusShipped  = "shipped"  // 已发货
	OrderStatusCanceled = "canceled" // 已取消
)

// ==================== Order 订单主表 ====================

// Order 订单，以 Etsy receipt 为同步单位
type Order struct {
	BaseModel

	EtsyReceiptID int64 `gorm:"uniqueIndex;not null"`
	ShopID        int64 `gorm:"index;not null"`

	// 买家信息
	BuyerUserID int64
	BuyerEmail  string `gorm:"size:255"`
	BuyerName   string `gorm:"size:255"`

	// 状态
	Status     string `gorm:"size:32;index;default:open"`
	EtsyStatus string `gorm:"size:32"`

	// 收货信息
	ShippingAddress datatypes.JSONMap `gorm:"type:jsonb"`
	ShippingCountry string            `gorm:"size:10"`

	// 金额
	TotalPrice   decimal.Decimal `gorm:"type:decimal(10,2)"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(10,2)"`
	ShippingCost decimal.Decimal `gorm:"type:decimal(10,2)"`
	SalesTax     decimal.Decimal `gorm:"type:decimal(10,2)"`
	Currency     string          `gorm:"size:10;default:USD"`

	// 支付 / 发货
	PaidAt         *time.Time
	TrackingNumber string `gorm:"size:100"`
	CarrierName    string `gorm:"size:100"`

	// Etsy 侧时间
	EtsyCreatedAt *time.Time
	EtsyUpdatedAt *time.Time

	// 关联
	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (*Order) TableName() string {
	return "orders"
}

// ==================== OrderItem 订单行 ====================

// OrderItem 订单行，对应 Etsy transaction
type OrderItem struct {
	BaseModel

	OrderID int64 `gorm:"index;not null"`
	// 指针类型: 部分历史数据没有 transaction id，NULL 不参与唯一约束
	EtsyTransactionID *int64 `gorm:"uniqueIndex"`
	EtsyListingID     int64  `gorm:"index"`

	Title    string          `gorm:"size:512"`
	SKU      string          `gorm:"size:100;index"`
	Quantity int             `gorm:"default:1"`
	Price    decimal.Decimal `gorm:"type:decimal(10,2)"`

	// 变体属性快照，如 {"Color":"Red","Size":"M"}
	Variations datatypes.JSONMap `gorm:"type:jsonb"`

	// SKU 命中本地商品变体时回填
	ProductVariantID *int64 `gorm:"index"`
}

func (*OrderItem) TableName() string {
	return "order_items"
}

// ProjectOrderStatus 由 Etsy 回执标志位投影出本地状态
func ProjectOrderStatus(etsyStatus string, wasPaid, wasShipped bool) string {
	switch {
	case etsyStatus == "Canceled" || etsyStatus == "canceled":
		return OrderStatusCanceled
	case wasShipped:
		return OrderStatusShipped
	case wasPaid:
		return OrderStatusPaid
	default:
		return OrderStatusOpen
	}
}
