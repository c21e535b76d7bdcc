package model

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ==================== 商品状态常量 ====================

const (
	ProductStateActive   = "active"
	ProductStateInactive = "inactive"
	ProductStateDraft    = "draft"
	ProductStateExpired  = "expired"
	ProductStateRemoved  = "removed" // Etsy 侧已不可见
)

// ==================== Product 商品 ====================

// Product 商品，对应 Etsy listing
type Product struct {
	BaseModel

	ShopID        int64 `gorm:"uniqueIndex:idx_shop_listing;not null"`
	EtsyListingID int64 `gorm:"uniqueIndex:idx_shop_listing;not null"`

	Title       string `gorm:"size:512"`
	Description string `gorm:"type:text"`
	State       string `gorm:"size:32;index"`
	URL         string `gorm:"size:512"`

	Price    decimal.Decimal `gorm:"type:decimal(10,2)"`
	Currency string          `gorm:"size:10;default:USD"`
	Quantity int             `gorm:"default:0"`

	Tags      datatypes.JSON `gorm:"type:jsonb"`
	ImageURLs datatypes.JSON `gorm:"type:jsonb"`

	// 关联
	Variants []ProductVariant `gorm:"foreignKey:ProductID"`
}

func (*Product) TableName() string {
	return "products"
}

// ==================== ProductVariant 商品变体 ====================

// ProductVariant 商品变体，对应 Etsy inventory product
type ProductVariant struct {
	BaseModel

	ProductID     int64 `gorm:"uniqueIndex:idx_product_variant;not null"`
	EtsyProductID int64 `gorm:"uniqueIndex:idx_product_variant;not null"`

	// 第一个 offering 的标识与价量
	EtsyOfferingID int64
	SKU            string          `gorm:"size:100;index"`
	Price          decimal.Decimal `gorm:"type:decimal(10,2)"`
	Quantity       int             `gorm:"default:0"`

	// 属性组合，如 {"Color":"Red","Size":"M"}
	PropertyValues datatypes.JSONMap `gorm:"type:jsonb"`
}

func (*ProductVariant) TableName() string {
	return "product_variants"
}
