package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestCooldownLimiter_Check(t *testing.T) {
	limiter := NewCooldownLimiter()
	key := cooldownKey(1, SyncTypeOrder)

	first := limiter.Check(key, time.Minute)
	if !first.Allowed {
		t.Fatal("首次触发应被放行")
	}

	second := limiter.Check(key, time.Minute)
	if second.Allowed {
		t.Fatal("冷却期内应被拒绝")
	}
	if second.RetryAfter <= 0 || second.RetryAfter > time.Minute {
		t.Errorf("剩余冷却 = %v, 预期 (0, 1m]", second.RetryAfter)
	}
}

func TestCooldownLimiter_KeysIndependent(t *testing.T) {
	limiter := NewCooldownLimiter()

	if !limiter.Check(cooldownKey(1, SyncTypeOrder), time.Minute).Allowed {
		t.Fatal("店铺 1 首次触发应被放行")
	}
	if !limiter.Check(cooldownKey(2, SyncTypeOrder), time.Minute).Allowed {
		t.Error("不同店铺的冷却互不影响")
	}
	if !limiter.Check(cooldownKey(1, SyncTypeProduct), time.Minute).Allowed {
		t.Error("同店铺不同类型的冷却互不影响")
	}
}

func TestCooldownLimiter_Reset(t *testing.T) {
	limiter := NewCooldownLimiter()
	key := cooldownKey(1, SyncTypeOrder)

	limiter.Check(key, time.Hour)
	limiter.Reset(key)

	if !limiter.Check(key, time.Hour).Allowed {
		t.Error("重置后应恢复放行")
	}
}

func TestSyncCooldown_LimiterInjected(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(limiter *CooldownLimiter) *gin.Engine {
		r := gin.New()
		r.POST("/shops/:id/sync/orders",
			SyncCooldown(limiter, SyncTypeOrder),
			func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}
	post := func(r *gin.Engine) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/shops/1/sync/orders", nil))
		return w.Code
	}

	r := newRouter(NewCooldownLimiter())
	if code := post(r); code != http.StatusOK {
		t.Fatalf("首次触发 = %d, 预期 200", code)
	}
	if code := post(r); code != http.StatusTooManyRequests {
		t.Errorf("冷却期内 = %d, 预期 429", code)
	}

	// 冷却状态跟随注入的 limiter，新实例之间互不影响
	if code := post(newRouter(NewCooldownLimiter())); code != http.StatusOK {
		t.Errorf("独立 limiter 首次触发 = %d, 预期 200", code)
	}
}
