package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"etsy_erp_backend/internal/model"
)

// ==================== 接口定义 ====================

// ShopRepository 店铺仓储接口
type ShopRepository interface {
	Create(ctx context.Context, shop *model.Shop) error
	GetByID(ctx context.Context, id int64) (*model.Shop, error)
	GetByEtsyShopID(ctx context.Context, etsyShopID int64) (*model.Shop, error)
	Update(ctx context.Context, shop *model.Shop) error

	// 列表查询
	List(ctx context.Context) ([]model.Shop, error)
	ListActiveShops(ctx context.Context) ([]model.Shop, error)

	// 状态相关
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdateLastSyncAt(ctx context.Context, id int64, at time.Time) error
}

// CredentialRepository 授权凭证仓储接口
type CredentialRepository interface {
	GetByShopID(ctx context.Context, shopID int64) (*model.Credential, error)
	Save(ctx context.Context, cred *model.Credential) error
	// FindExpiring 查询在指定时间窗口内到期的凭证 (仅限活跃店铺)
	FindExpiring(ctx context.Context, within time.Duration) ([]model.Credential, error)
}

// ==================== 仓储实现 ====================

type shopRepo struct {
	db *gorm.DB
}

// NewShopRepository 创建店铺仓储
func NewShopRepository(db *gorm.DB) ShopRepository {
	return &shopRepo{db: db}
}

func (r *shopRepo) Create(ctx context.Context, shop *model.Shop) error {
	return r.db.WithContext(ctx).Create(shop).Error
}

func (r *shopRepo) GetByID(ctx context.Context, id int64) (*model.Shop, error) {
	var shop model.Shop
	if err := r.db.WithContext(ctx).First(&shop, id).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *shopRepo) GetByEtsyShopID(ctx context.Context, etsyShopID int64) (*model.Shop, error) {
	var shop model.Shop
	if err := r.db.WithContext(ctx).Where("etsy_shop_id = ?", etsyShopID).First(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *shopRepo) Update(ctx context.Context, shop *model.Shop) error {
	return r.db.WithContext(ctx).Save(shop).Error
}

func (r *shopRepo) List(ctx context.Context) ([]model.Shop, error) {
	var shops []model.Shop
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&shops).Error; err != nil {
		return nil, err
	}
	return shops, nil
}

func (r *shopRepo) ListActiveShops(ctx context.Context) ([]model.Shop, error) {
	var shops []model.Shop
	err := r.db.WithContext(ctx).
		Where("status = ?", model.ShopStatusActive).
		Order("id ASC").
		Find(&shops).Error
	if err != nil {
		return nil, err
	}
	return shops, nil
}

func (r *shopRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).Model(&model.Shop{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *shopRepo) UpdateLastSyncAt(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Shop{}).
		Where("id = ?", id).
		Update("last_sync_at", at).Error
}

// ==================== 凭证仓储实现 ====================

type credentialRepo struct {
	db *gorm.DB
}

// NewCredentialRepository 创建凭证仓储
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) GetByShopID(ctx context.Context, shopID int64) (*model.Credential, error) {
	var cred model.Credential
	if err := r.db.WithContext(ctx).Where("shop_id = ?", shopID).First(&cred).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepo) Save(ctx context.Context, cred *model.Credential) error {
	// 先查后写：每个店铺唯一一条凭证
	var existing model.Credential
	err := r.db.WithContext(ctx).Where("shop_id = ?", cred.ShopID).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return r.db.WithContext(ctx).Create(cred).Error
		}
		return err
	}
	cred.ID = existing.ID
	cred.CreatedAt = existing.CreatedAt
	return r.db.WithContext(ctx).Save(cred).Error
}

func (r *credentialRepo) FindExpiring(ctx context.Context, within time.Duration) ([]model.Credential, error) {
	deadline := time.Now().Add(within)
	var creds []model.Credential
	err := r.db.WithContext(ctx).
		Joins("JOIN shops ON shops.id = credentials.shop_id").
		Where("shops.status = ?", model.ShopStatusActive).
		Where("credentials.expires_at < ?", deadline).
		Find(&creds).Error
	if err != nil {
		return nil, err
	}
	return creds, nil
}
