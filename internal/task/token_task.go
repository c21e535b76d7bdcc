package task

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"etsy_erp_backend/internal/service"
)

// 预刷新窗口：提前 60 分钟刷新即将到期的 Token
const tokenRefreshLookahead = time.Hour

// ==================== TokenRefreshTask Token 预刷新任务 ====================

// TokenRefreshTask 定期刷新即将到期的店铺 Token
// 与 API 调用路径上的按需刷新互为兜底
type TokenRefreshTask struct {
	tokens *service.TokenManager
	cron   *cron.Cron
	log    *zap.Logger
}

// NewTokenRefreshTask 创建 Token 预刷新任务
func NewTokenRefreshTask(tokens *service.TokenManager, log *zap.Logger) *TokenRefreshTask {
	return &TokenRefreshTask{
		tokens: tokens,
		cron:   cron.New(cron.WithSeconds()),
		log:    log,
	}
}

// Start 注册并启动
func (t *TokenRefreshTask) Start(spec string) error {
	if _, err := t.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		t.tokens.RefreshExpiring(ctx, tokenRefreshLookahead)
	}); err != nil {
		return err
	}

	t.cron.Start()
	t.log.Info("Token 预刷新任务已启动", zap.String("spec", spec))
	return nil
}

// Stop 停止并等待在途任务
func (t *TokenRefreshTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.log.Info("Token 预刷新任务已停止")
}
