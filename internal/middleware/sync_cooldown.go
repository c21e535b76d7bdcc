package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== CooldownLimiter 手动同步冷却 ====================

// SyncType 手动同步类型
type SyncType string

const (
	SyncTypeOrder   SyncType = "order"
	SyncTypeProduct SyncType = "product"
)

// 手动同步的默认冷却间隔
var defaultIntervals = map[SyncType]time.Duration{
	SyncTypeOrder:   time.Minute,
	SyncTypeProduct: 5 * time.Minute,
}

// CooldownLimiter 按店铺 + 同步类型冷却
// 防止手动触发过密，把每日 API 配额打空
type CooldownLimiter struct {
	entries sync.Map // key -> *cooldownEntry
}

type cooldownEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

// NewCooldownLimiter 工厂方法
func NewCooldownLimiter() *CooldownLimiter {
	return &CooldownLimiter{}
}

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Check 检查并占用冷却窗口
func (l *CooldownLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := l.entries.LoadOrStore(key, &cooldownEntry{})
	entry := actual.(*cooldownEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	elapsed := time.Since(entry.lastTime)
	if elapsed < interval {
		return CheckResult{Allowed: false, RetryAfter: interval - elapsed}
	}
	entry.lastTime = time.Now()
	return CheckResult{Allowed: true}
}

// Reset 重置指定 key 的冷却 (测试用)
func (l *CooldownLimiter) Reset(key string) {
	l.entries.Delete(key)
}

func cooldownKey(shopID int64, syncType SyncType) string {
	return fmt.Sprintf("shop:%d:%s", shopID, syncType)
}

// ==================== Gin 中间件 ====================

// SyncCooldown 手动同步冷却中间件
// 路由需携带 :id 店铺路径参数
func SyncCooldown(limiter *CooldownLimiter, syncType SyncType) gin.HandlerFunc {
	interval := defaultIntervals[syncType]

	return func(c *gin.Context) {
		shopID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的店铺 ID"})
			c.Abort()
			return
		}

		result := limiter.Check(cooldownKey(shopID, syncType), interval)
		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("操作过于频繁，请 %d 秒后重试", int(result.RetryAfter.Seconds())+1),
				"retry_after": int(result.RetryAfter.Seconds()) + 1,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
