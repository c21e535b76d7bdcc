package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"etsy_erp_backend/internal/model"
	"etsy_erp_backend/internal/repository"
	"etsy_erp_backend/internal/service"
)

// 手动同步的订单回溯窗口
const manualSyncWindow = 7 * 24 * time.Hour

// ShopController 店铺查询与手动同步触发
type ShopController struct {
	shopRepo    repository.ShopRepository
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	orderSync   *service.OrderSyncService
	productSync *service.ProductSyncService
	log         *zap.Logger
}

func NewShopController(
	shopRepo repository.ShopRepository,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	orderSync *service.OrderSyncService,
	productSync *service.ProductSyncService,
	log *zap.Logger,
) *ShopController {
	return &ShopController{
		shopRepo:    shopRepo,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		orderSync:   orderSync,
		productSync: productSync,
		log:         log,
	}
}

// List 店铺列表
// GET /api/shops
func (c *ShopController) List(ctx *gin.Context) {
	shops, err := c.shopRepo.List(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, 0, len(shops))
	for _, s := range shops {
		items = append(items, gin.H{
			"id":           s.ID,
			"etsy_shop_id": s.EtsyShopID,
			"shop_name":    s.ShopName,
			"shop_url":     s.ShopURL,
			"status":       s.Status,
			"last_sync_at": s.LastSyncAt,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"total": len(items), "items": items})
}

// ListOrders 店铺订单列表
// GET /api/shops/:id/orders?page=1&page_size=20
func (c *ShopController) ListOrders(ctx *gin.Context) {
	shopID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "无效的店铺 ID"})
		return
	}
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))

	orders, total, err := c.orderRepo.ListByShop(ctx.Request.Context(), shopID, page, pageSize)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"total": total, "items": orders})
}

// ListProducts 店铺商品列表
// GET /api/shops/:id/products?page=1&page_size=20
func (c *ShopController) ListProducts(ctx *gin.Context) {
	shopID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "无效的店铺 ID"})
		return
	}
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))

	products, total, err := c.productRepo.ListByShop(ctx.Request.Context(), shopID, page, pageSize)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"total": total, "items": products})
}

// TriggerOrderSync 手动触发订单同步
// POST /api/shops/:id/sync/orders
func (c *ShopController) TriggerOrderSync(ctx *gin.Context) {
	shop, ok := c.loadShop(ctx)
	if !ok {
		return
	}

	result, err := c.orderSync.SyncShopOrders(ctx.Request.Context(), shop, time.Now().Add(-manualSyncWindow))
	if err != nil {
		c.log.Error("手动订单同步失败", zap.Int64("shop_id", shop.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"created": result.Created,
		"updated": result.Updated,
		"failed":  result.Failed,
	})
}

// TriggerProductSync 手动触发商品同步
// POST /api/shops/:id/sync/products
func (c *ShopController) TriggerProductSync(ctx *gin.Context) {
	shop, ok := c.loadShop(ctx)
	if !ok {
		return
	}

	result, err := c.productSync.SyncShopProducts(ctx.Request.Context(), shop)
	if err != nil {
		c.log.Error("手动商品同步失败", zap.Int64("shop_id", shop.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"created": result.Created,
		"updated": result.Updated,
		"failed":  result.Failed,
	})
}

type shipOrderReq struct {
	TrackingCode string `json:"tracking_code" binding:"required"`
	CarrierName  string `json:"carrier_name" binding:"required"`
}

// ShipOrder 回写物流单号并标记发货
// POST /api/shops/:id/orders/:receipt_id/ship
func (c *ShopController) ShipOrder(ctx *gin.Context) {
	shop, ok := c.loadShop(ctx)
	if !ok {
		return
	}
	receiptID, err := strconv.ParseInt(ctx.Param("receipt_id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "无效的收据 ID"})
		return
	}

	var req shipOrderReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := c.orderSync.SubmitTracking(ctx.Request.Context(), shop, receiptID, req.TrackingCode, req.CarrierName); err != nil {
		c.log.Error("物流回写失败",
			zap.Int64("shop_id", shop.ID),
			zap.Int64("receipt_id", receiptID),
			zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"shipped": true})
}

// loadShop 解析路径参数并校验店铺可同步
func (c *ShopController) loadShop(ctx *gin.Context) (*model.Shop, bool) {
	shopID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "无效的店铺 ID"})
		return nil, false
	}

	s, err := c.shopRepo.GetByID(ctx.Request.Context(), shopID)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "店铺不存在"})
		return nil, false
	}
	if !s.IsActive() {
		ctx.JSON(http.StatusConflict, gin.H{"error": "店铺当前状态不可同步: " + s.Status})
		return nil, false
	}
	return s, true
}
