package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"etsy_erp_backend/internal/model"
	"etsy_erp_backend/internal/repository"
	"etsy_erp_backend/internal/service"
)

// 订单增量同步回溯窗口：上次以来的 24 小时兜底
const orderSyncWindow = 24 * time.Hour

// ==================== SyncTask 定时同步任务 ====================

// SyncTask 统一管理订单/商品定时同步
type SyncTask struct {
	shopRepo    repository.ShopRepository
	orderSync   *service.OrderSyncService
	productSync *service.ProductSyncService
	cron        *cron.Cron
	log         *zap.Logger

	// 并发控制：同时同步的店铺数上限
	concurrencyLimit int
}

// NewSyncTask 创建同步任务
func NewSyncTask(
	shopRepo repository.ShopRepository,
	orderSync *service.OrderSyncService,
	productSync *service.ProductSyncService,
	concurrencyLimit int,
	log *zap.Logger,
) *SyncTask {
	if concurrencyLimit <= 0 {
		concurrencyLimit = 3
	}
	return &SyncTask{
		shopRepo:         shopRepo,
		orderSync:        orderSync,
		productSync:      productSync,
		cron:             cron.New(cron.WithSeconds()),
		log:              log,
		concurrencyLimit: concurrencyLimit,
	}
}

// Start 注册并启动定时任务
// orderSpec / productSpec 为带秒位的 cron 表达式
func (t *SyncTask) Start(orderSpec, productSpec string) error {
	if _, err := t.cron.AddFunc(orderSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		t.runOrderSync(ctx)
	}); err != nil {
		return err
	}

	if _, err := t.cron.AddFunc(productSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
		defer cancel()
		t.runProductSync(ctx)
	}); err != nil {
		return err
	}

	t.cron.Start()
	t.log.Info("定时同步任务已启动",
		zap.String("order_spec", orderSpec),
		zap.String("product_spec", productSpec))
	return nil
}

// Stop 停止并等待在途任务
func (t *SyncTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.log.Info("定时同步任务已停止")
}

// runOrderSync 对所有活跃店铺执行一轮订单同步
func (t *SyncTask) runOrderSync(ctx context.Context) {
	batchID := uuid.NewString()
	log := t.log.With(zap.String("batch_id", batchID))

	shops, err := t.shopRepo.ListActiveShops(ctx)
	if err != nil {
		log.Error("查询活跃店铺失败", zap.Error(err))
		return
	}
	if len(shops) == 0 {
		return
	}
	log.Info("开始订单同步批次", zap.Int("shops", len(shops)))

	t.forEachShop(ctx, shops, func(ctx context.Context, shop *model.Shop) error {
		since := time.Now().Add(-orderSyncWindow)
		if shop.LastSyncAt != nil && shop.LastSyncAt.After(since) {
			since = *shop.LastSyncAt
		}
		_, err := t.orderSync.SyncShopOrders(ctx, shop, since)
		return err
	}, log)
}

// runProductSync 对所有活跃店铺执行一轮商品同步
func (t *SyncTask) runProductSync(ctx context.Context) {
	batchID := uuid.NewString()
	log := t.log.With(zap.String("batch_id", batchID))

	shops, err := t.shopRepo.ListActiveShops(ctx)
	if err != nil {
		log.Error("查询活跃店铺失败", zap.Error(err))
		return
	}
	if len(shops) == 0 {
		return
	}
	log.Info("开始商品同步批次", zap.Int("shops", len(shops)))

	t.forEachShop(ctx, shops, func(ctx context.Context, shop *model.Shop) error {
		_, err := t.productSync.SyncShopProducts(ctx, shop)
		return err
	}, log)
}

// forEachShop 信号量控制并发，单店失败不影响其余店铺
func (t *SyncTask) forEachShop(ctx context.Context, shops []model.Shop, fn func(context.Context, *model.Shop) error, log *zap.Logger) {
	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup

	var (
		successCount int
		failCount    int
		mu           sync.Mutex
	)

	for i := range shops {
		select {
		case <-ctx.Done():
			log.Warn("同步批次超时停止")
			wg.Wait()
			return
		default:
		}

		sem <- struct{}{}
		wg.Add(1)

		go func(shop model.Shop) {
			defer wg.Done()
			defer func() { <-sem }()

			err := fn(ctx, &shop)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failCount++
				log.Error("店铺同步失败",
					zap.Int64("shop_id", shop.ID),
					zap.String("shop_name", shop.ShopName),
					zap.Error(err))
			} else {
				successCount++
			}
		}(shops[i])
	}

	wg.Wait()
	log.Info("同步批次完成",
		zap.Int("success", successCount),
		zap.Int("fail", failCount))
}
