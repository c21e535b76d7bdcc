package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"etsy_erp_backend/internal/model"
	"etsy_erp_backend/internal/repository"
	"etsy_erp_backend/pkg/etsy"
	"etsy_erp_backend/pkg/locker"
)

const listingPageSize = 100

// ProductSyncService 商品对账同步
type ProductSyncService struct {
	gateway     EtsyGateway
	productRepo repository.ProductRepository
	variantRepo repository.ProductVariantRepository
	locks       *locker.ShopLocker
	log         *zap.Logger
}

// NewProductSyncService 工厂方法
func NewProductSyncService(
	gateway EtsyGateway,
	productRepo repository.ProductRepository,
	variantRepo repository.ProductVariantRepository,
	locks *locker.ShopLocker,
	log *zap.Logger,
) *ProductSyncService {
	return &ProductSyncService{
		gateway:     gateway,
		productRepo: productRepo,
		variantRepo: variantRepo,
		locks:       locks,
		log:         log,
	}
}

// SyncShopProducts 同步单个店铺的在售商品及变体
func (s *ProductSyncService) SyncShopProducts(ctx context.Context, shop *model.Shop) (*SyncResult, error) {
	s.locks.Lock(shop.ID)
	defer s.locks.Unlock(shop.ID)

	result := &SyncResult{}
	offset := 0

	for {
		resp, err := s.gateway.GetShopListings(ctx, shop.ID, shop.EtsyShopID, etsy.ListingListParams{
			Limit:  listingPageSize,
			Offset: offset,
			State:  model.ProductStateActive,
		})
		if err != nil {
			return result, fmt.Errorf("拉取商品列表失败 (offset=%d): %w", offset, err)
		}

		for i := range resp.Results {
			if err := s.upsertListing(ctx, shop, &resp.Results[i], result); err != nil {
				result.Failed++
				s.log.Error("商品同步失败",
					zap.Int64("shop_id", shop.ID),
					zap.Int64("listing_id", resp.Results[i].ListingID),
					zap.Error(err))
			}
		}

		offset += len(resp.Results)
		if len(resp.Results) < listingPageSize || offset >= resp.Count {
			break
		}
	}

	s.log.Info("店铺商品同步完成",
		zap.Int64("shop_id", shop.ID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed))
	return result, nil
}

// upsertListing 商品落库，随后拉取库存同步变体
func (s *ProductSyncService) upsertListing(ctx context.Context, shop *model.Shop, listing *etsy.EtsyListingResp, result *SyncResult) error {
	existing, findErr := s.productRepo.GetByListingID(ctx, shop.ID, listing.ListingID)
	if findErr != nil && !errors.Is(findErr, gorm.ErrRecordNotFound) {
		return fmt.Errorf("查询商品 %d 失败: %w", listing.ListingID, findErr)
	}
	isNew := findErr != nil

	product := existing
	if isNew {
		product = &model.Product{
			ShopID:        shop.ID,
			EtsyListingID: listing.ListingID,
		}
	}
	s.applyListing(product, listing)

	var err error
	if isNew {
		err = s.productRepo.Create(ctx, product)
	} else {
		err = s.productRepo.Update(ctx, product)
	}
	if err != nil {
		return err
	}
	if isNew {
		result.Created++
	} else {
		result.Updated++
	}

	// 库存接口失败不影响商品主体，记日志后继续
	if err := s.syncVariants(ctx, shop, product); err != nil {
		s.log.Warn("变体同步失败",
			zap.Int64("shop_id", shop.ID),
			zap.Int64("listing_id", listing.ListingID),
			zap.Error(err))
	}
	return nil
}

// applyListing 把 Etsy listing 字段映射到本地商品
func (s *ProductSyncService) applyListing(product *model.Product, listing *etsy.EtsyListingResp) {
	product.Title = listing.Title
	product.Description = listing.Description
	product.State = strings.ToLower(listing.State)
	product.URL = listing.URL
	product.Price = listing.Price.Decimal()
	if listing.Price.CurrencyCode != "" {
		product.Currency = listing.Price.CurrencyCode
	}
	product.Quantity = listing.Quantity

	if tags, err := json.Marshal(listing.Tags); err == nil {
		product.Tags = datatypes.JSON(tags)
	}
	urls := make([]string, 0, len(listing.Images))
	for _, img := range listing.Images {
		urls = append(urls, img.URLFullxFull)
	}
	if images, err := json.Marshal(urls); err == nil {
		product.ImageURLs = datatypes.JSON(images)
	}
}

// syncVariants 同步商品库存变体
func (s *ProductSyncService) syncVariants(ctx context.Context, shop *model.Shop, product *model.Product) error {
	inventory, err := s.gateway.GetListingInventory(ctx, shop.ID, product.EtsyListingID)
	if err != nil {
		return err
	}

	for i := range inventory.Products {
		ep := &inventory.Products[i]

		existing, findErr := s.variantRepo.GetByEtsyProductID(ctx, product.ID, ep.ProductID)
		if findErr != nil && !errors.Is(findErr, gorm.ErrRecordNotFound) {
			s.log.Error("查询变体失败",
				zap.Int64("product_id", product.ID),
				zap.Int64("etsy_product_id", ep.ProductID),
				zap.Error(findErr))
			continue
		}
		variant := existing
		if findErr != nil {
			variant = &model.ProductVariant{
				ProductID:     product.ID,
				EtsyProductID: ep.ProductID,
			}
		}

		variant.SKU = ep.SKU
		if len(ep.Offerings) > 0 {
			variant.EtsyOfferingID = ep.Offerings[0].OfferingID
			variant.Price = ep.Offerings[0].Price.Decimal()
			variant.Quantity = ep.Offerings[0].Quantity
		}

		props := datatypes.JSONMap{}
		for _, pv := range ep.PropertyValues {
			props[pv.PropertyName] = strings.Join(pv.Values, ", ")
		}
		variant.PropertyValues = props

		var err error
		if findErr != nil {
			err = s.variantRepo.Create(ctx, variant)
		} else {
			err = s.variantRepo.Update(ctx, variant)
		}
		if err != nil {
			s.log.Error("变体落库失败",
				zap.Int64("product_id", product.ID),
				zap.Int64("etsy_product_id", ep.ProductID),
				zap.Error(err))
		}
	}
	return nil
}
