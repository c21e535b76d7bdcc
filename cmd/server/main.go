package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"etsy_erp_backend/internal/config"
	"etsy_erp_backend/internal/controller"
	"etsy_erp_backend/internal/middleware"
	"etsy_erp_backend/internal/model"
	"etsy_erp_backend/internal/notify"
	"etsy_erp_backend/internal/repository"
	"etsy_erp_backend/internal/router"
	"etsy_erp_backend/internal/service"
	"etsy_erp_backend/internal/task"
	"etsy_erp_backend/pkg/crypto"
	"etsy_erp_backend/pkg/database"
	"etsy_erp_backend/pkg/etsy"
	"etsy_erp_backend/pkg/locker"
	"etsy_erp_backend/pkg/logger"
	"etsy_erp_backend/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 初始化日志
	zlog, err := logger.New(cfg.Server.Mode)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Sync()

	// 3. 初始化依赖
	deps, err := initDependencies(cfg, zlog)
	if err != nil {
		zlog.Fatal("初始化依赖失败", zap.Error(err))
	}

	// 4. 启动定时任务
	startTasks(cfg, deps, zlog)

	// 5. 路由与服务
	r := router.SetupRouter(cfg.Server.Mode, deps.Controllers, middleware.NewCooldownLimiter(), zlog)
	startServer(cfg, r, deps, zlog)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Repos       *Repositories
	Services    *Services
	Controllers *router.Controllers
	SyncTask    *task.SyncTask
	TokenTask   *task.TokenRefreshTask
}

// Repositories 仓库集合
type Repositories struct {
	Shop       repository.ShopRepository
	Credential repository.CredentialRepository
	Order      repository.OrderRepository
	OrderItem  repository.OrderItemRepository
	Product    repository.ProductRepository
	Variant    repository.ProductVariantRepository
}

// Services 服务集合
type Services struct {
	Tokens      *service.TokenManager
	Auth        *service.AuthService
	OrderSync   *service.OrderSyncService
	ProductSync *service.ProductSyncService
	Webhook     *service.WebhookService
}

// ==================== 初始化函数 ====================

func initDependencies(cfg config.Config, zlog *zap.Logger) (*Dependencies, error) {
	// -------- 基础设施 --------
	db, err := database.InitDB(cfg.DB.DSN, cfg.Server.Mode == "debug",
		&model.Shop{}, &model.Credential{},
		&model.Order{}, &model.OrderItem{},
		&model.Product{}, &model.ProductVariant{},
	)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	vault, err := crypto.NewVault(cfg.Etsy.EncryptionKey)
	if err != nil {
		return nil, err
	}

	// -------- Repo 层 --------
	repos := &Repositories{
		Shop:       repository.NewShopRepository(db),
		Credential: repository.NewCredentialRepository(db),
		Order:      repository.NewOrderRepository(db),
		OrderItem:  repository.NewOrderItemRepository(db),
		Product:    repository.NewProductRepository(db),
		Variant:    repository.NewProductVariantRepository(db),
	}

	// -------- Etsy 接入层 --------
	endpoint := etsy.NewTokenEndpoint(cfg.Etsy.APIKey, cfg.Etsy.TokenURL, cfg.Etsy.Timeout)
	tokens := service.NewTokenManager(repos.Shop, repos.Credential, vault, endpoint, zlog)

	governor := ratelimit.NewGovernor(
		ratelimit.NewRedisStore(rdb),
		cfg.Etsy.DailyLimit, cfg.Etsy.WarnThreshold,
		zlog,
	)
	client := etsy.NewClient(etsy.ClientConfig{
		BaseURL: cfg.Etsy.BaseURL,
		APIKey:  cfg.Etsy.APIKey,
		Timeout: cfg.Etsy.Timeout,
	}, tokens, governor, zlog)

	// -------- 通知 --------
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Telegram.BotToken != "" {
		notifier = notify.NewTelegramNotifier(cfg.Telegram.BotToken, zlog)
	}

	// -------- 业务服务 --------
	locks := locker.NewShopLocker()
	services := &Services{Tokens: tokens}
	services.Auth = service.NewAuthService(
		repos.Shop, tokens, endpoint, client, rdb,
		cfg.Etsy.APIKey, cfg.Etsy.RedirectURI, cfg.Etsy.Scopes,
		zlog,
	)
	services.OrderSync = service.NewOrderSyncService(
		client, repos.Shop, repos.Order, repos.OrderItem, repos.Variant,
		notifier, locks, zlog,
	)
	services.ProductSync = service.NewProductSyncService(
		client, repos.Product, repos.Variant, locks, zlog,
	)
	services.Webhook, err = service.NewWebhookService(
		repos.Shop, repos.Order, services.OrderSync, notifier,
		cfg.Etsy.WebhookSecret, zlog,
	)
	if err != nil {
		return nil, err
	}

	// -------- Controller 层 --------
	controllers := &router.Controllers{
		Auth: controller.NewAuthController(services.Auth, zlog),
		Shop: controller.NewShopController(
			repos.Shop, repos.Order, repos.Product,
			services.OrderSync, services.ProductSync, zlog,
		),
		Webhook: controller.NewWebhookController(services.Webhook, zlog),
	}

	return &Dependencies{
		DB:          db,
		Redis:       rdb,
		Repos:       repos,
		Services:    services,
		Controllers: controllers,
	}, nil
}

// ==================== 定时任务 ====================

func startTasks(cfg config.Config, deps *Dependencies, zlog *zap.Logger) {
	if !cfg.Sync.Enabled {
		zlog.Info("定时同步已禁用")
		return
	}

	deps.SyncTask = task.NewSyncTask(
		deps.Repos.Shop, deps.Services.OrderSync, deps.Services.ProductSync,
		cfg.Sync.MaxConcurrent, zlog,
	)
	if err := deps.SyncTask.Start(cfg.Sync.OrderSpec, cfg.Sync.ProductSpec); err != nil {
		zlog.Fatal("启动同步任务失败", zap.Error(err))
	}

	deps.TokenTask = task.NewTokenRefreshTask(deps.Services.Tokens, zlog)
	if err := deps.TokenTask.Start(cfg.Sync.TokenSpec); err != nil {
		zlog.Fatal("启动 Token 刷新任务失败", zap.Error(err))
	}
}

// ==================== 服务启动 ====================

func startServer(cfg config.Config, handler http.Handler, deps *Dependencies, zlog *zap.Logger) {
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: handler,
	}

	go func() {
		zlog.Info("HTTP 服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("HTTP 服务异常退出", zap.Error(err))
		}
	}()

	// 优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("收到退出信号，开始优雅停机")

	if deps.SyncTask != nil {
		deps.SyncTask.Stop()
	}
	if deps.TokenTask != nil {
		deps.TokenTask.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("HTTP 停机失败", zap.Error(err))
	}
	if err := deps.Redis.Close(); err != nil {
		zlog.Error("关闭 Redis 连接失败", zap.Error(err))
	}
	zlog.Info("服务已退出")
}
