package repository

import (
	"context"

	"gorm.io/gorm"

	"etsy_erp_backend/internal/model"
)

// ==================== 接口定义 ====================

// ProductRepository 商品仓储接口
type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	Update(ctx context.Context, product *model.Product) error
	GetByListingID(ctx context.Context, shopID, etsyListingID int64) (*model.Product, error)
	ListByShop(ctx context.Context, shopID int64, page, pageSize int) ([]model.Product, int64, error)
}

// ProductVariantRepository 商品变体仓储接口
type ProductVariantRepository interface {
	Create(ctx context.Context, variant *model.ProductVariant) error
	Update(ctx context.Context, variant *model.ProductVariant) error
	GetByEtsyProductID(ctx context.Context, productID, etsyProductID int64) (*model.ProductVariant, error)
	// FindBySKU 按 SKU 在指定店铺的商品范围内查找变体
	FindBySKU(ctx context.Context, shopID int64, sku string) (*model.ProductVariant, error)
}

// ==================== 商品仓储实现 ====================

type productRepo struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepo{db: db}
}

func (r *productRepo) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepo) Update(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *productRepo) GetByListingID(ctx context.Context, shopID, etsyListingID int64) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND etsy_listing_id = ?", shopID, etsyListingID).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) ListByShop(ctx context.Context, shopID int64, page, pageSize int) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Product{}).Where("shop_id = ?", shopID)
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
		Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&products).Error
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// ==================== 变体仓储实现 ====================

type productVariantRepo struct {
	db *gorm.DB
}

// NewProductVariantRepository 创建变体仓储
func NewProductVariantRepository(db *gorm.DB) ProductVariantRepository {
	return &productVariantRepo{db: db}
}

func (r *productVariantRepo) Create(ctx context.Context, variant *model.ProductVariant) error {
	return r.db.WithContext(ctx).Create(variant).Error
}

func (r *productVariantRepo) Update(ctx context.Context, variant *model.ProductVariant) error {
	return r.db.WithContext(ctx).Save(variant).Error
}

func (r *productVariantRepo) GetByEtsyProductID(ctx context.Context, productID, etsyProductID int64) (*model.ProductVariant, error) {
	var variant model.ProductVariant
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND etsy_product_id = ?", productID, etsyProductID).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *productVariantRepo) FindBySKU(ctx context.Context, shopID int64, sku string) (*model.ProductVariant, error) {
	if sku == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var variant model.ProductVariant
	err := r.db.WithContext(ctx).
		Joins("JOIN products ON products.id = product_variants.product_id").
		Where("products.shop_id = ? AND product_variants.sku = ?", shopID, sku).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}
