package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"etsy_erp_backend/internal/model"
	"etsy_erp_backend/internal/repository"
	"etsy_erp_backend/pkg/crypto"
	"etsy_erp_backend/pkg/etsy"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

// ==================== 测试辅助 ====================

func setupServiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}

	err = db.AutoMigrate(
		&model.Shop{}, &model.Credential{},
		&model.Order{}, &model.OrderItem{},
		&model.Product{}, &model.ProductVariant{},
	)
	if err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}
	return db
}

func newTestVault(t *testing.T) *crypto.Vault {
	vault, err := crypto.NewVault(testEncryptionKey)
	if err != nil {
		t.Fatalf("创建 Vault 失败: %v", err)
	}
	return vault
}

// fakeRefresher 可注入的 Token 端点替身
type fakeRefresher struct {
	refreshCalls atomic.Int32
	refreshErr   error
	delay        time.Duration
	resp         *etsy.EtsyTokenResp
}

func (f *fakeRefresher) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*etsy.EtsyTokenResp, error) {
	return f.resp, f.refreshErr
}

func (f *fakeRefresher) Refresh(ctx context.Context, shopID int64, refreshToken string) (*etsy.EtsyTokenResp, error) {
	f.refreshCalls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.resp, nil
}

// seedShopWithCredential 预置一个带凭证的店铺，返回店铺 ID
func seedShopWithCredential(t *testing.T, db *gorm.DB, vault *crypto.Vault, expiresAt time.Time) int64 {
	shop := &model.Shop{EtsyShopID: 9001, ShopName: "demo", Status: model.ShopStatusActive}
	if err := db.Create(shop).Error; err != nil {
		t.Fatalf("预置店铺失败: %v", err)
	}

	accessEnc, err := vault.Encrypt("current-access-token")
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}
	refreshEnc, err := vault.Encrypt("current-refresh-token")
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}
	cred := &model.Credential{
		ShopID:                shop.ID,
		AccessTokenEncrypted:  accessEnc,
		RefreshTokenEncrypted: refreshEnc,
		ExpiresAt:             expiresAt,
	}
	if err := db.Create(cred).Error; err != nil {
		t.Fatalf("预置凭证失败: %v", err)
	}
	return shop.ID
}

func newTestTokenManager(db *gorm.DB, vault *crypto.Vault, endpoint TokenRefresher) *TokenManager {
	return NewTokenManager(
		repository.NewShopRepository(db),
		repository.NewCredentialRepository(db),
		vault,
		endpoint,
		zap.NewNop(),
	)
}

// ==================== 单元测试 ====================

func TestTokenManager_AccessTokenWithoutRefresh(t *testing.T) {
	db := setupServiceTestDB(t)
	vault := newTestVault(t)
	// 距过期 1 小时，不应触发刷新
	shopID := seedShopWithCredential(t, db, vault, time.Now().Add(time.Hour))

	refresher := &fakeRefresher{}
	mgr := newTestTokenManager(db, vault, refresher)

	token, err := mgr.AccessToken(context.Background(), shopID)
	if err != nil {
		t.Fatalf("解析 Token 失败: %v", err)
	}
	if token != "current-access-token" {
		t.Errorf("token = %q, 预期 current-access-token", token)
	}
	if refresher.refreshCalls.Load() != 0 {
		t.Errorf("未到刷新窗口不应调用端点, 实际调用 %d 次", refresher.refreshCalls.Load())
	}
}

func TestTokenManager_AccessTokenRefreshesNearExpiry(t *testing.T) {
	db := setupServiceTestDB(t)
	vault := newTestVault(t)
	// 距过期 2 分钟，落入 5 分钟余量内
	shopID := seedShopWithCredential(t, db, vault, time.Now().Add(2*time.Minute))

	refresher := &fakeRefresher{resp: &etsy.EtsyTokenResp{
		AccessToken:  "new-access-token",
		RefreshToken: "new-refresh-token",
		ExpiresIn:    3600,
	}}
	mgr := newTestTokenManager(db, vault, refresher)

	token, err := mgr.AccessToken(context.Background(), shopID)
	if err != nil {
		t.Fatalf("刷新失败: %v", err)
	}
	if token != "new-access-token" {
		t.Errorf("token = %q, 预期 new-access-token", token)
	}
	if refresher.refreshCalls.Load() != 1 {
		t.Errorf("端点调用次数 = %d, 预期 1", refresher.refreshCalls.Load())
	}

	// 新凭证应落库且为密文
	var cred model.Credential
	if err := db.Where("shop_id = ?", shopID).First(&cred).Error; err != nil {
		t.Fatalf("查询凭证失败: %v", err)
	}
	if cred.AccessTokenEncrypted == "new-access-token" {
		t.Error("access token 不应以明文落库")
	}
	got, err := vault.Decrypt(cred.RefreshTokenEncrypted)
	if err != nil || got != "new-refresh-token" {
		t.Errorf("refresh token 解密 = (%q, %v), 预期 new-refresh-token", got, err)
	}
	if time.Until(cred.ExpiresAt) < 59*time.Minute {
		t.Errorf("过期时间应约为 1 小时后, 实际 %v", cred.ExpiresAt)
	}
}

func TestTokenManager_ConcurrentRefreshDeduplicated(t *testing.T) {
	db := setupServiceTestDB(t)
	vault := newTestVault(t)
	shopID := seedShopWithCredential(t, db, vault, time.Now().Add(time.Minute))

	refresher := &fakeRefresher{
		delay: 50 * time.Millisecond,
		resp: &etsy.EtsyTokenResp{
			AccessToken:  "new-access-token",
			RefreshToken: "new-refresh-token",
			ExpiresIn:    3600,
		},
	}
	mgr := newTestTokenManager(db, vault, refresher)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.ForceRefresh(context.Background(), shopID); err != nil {
				t.Errorf("并发刷新失败: %v", err)
			}
		}()
	}
	wg.Wait()

	if refresher.refreshCalls.Load() != 1 {
		t.Errorf("并发刷新应合并为一次端点调用, 实际 %d 次", refresher.refreshCalls.Load())
	}
}

func TestTokenManager_RejectedRefreshMarksShopExpired(t *testing.T) {
	db := setupServiceTestDB(t)
	vault := newTestVault(t)
	shopID := seedShopWithCredential(t, db, vault, time.Now().Add(time.Minute))

	refresher := &fakeRefresher{refreshErr: &etsy.AuthError{ShopID: shopID, Status: 400, Body: "invalid_grant"}}
	mgr := newTestTokenManager(db, vault, refresher)

	_, err := mgr.AccessToken(context.Background(), shopID)
	if !etsy.IsAuthError(err) {
		t.Fatalf("预期 AuthError, 实际: %v", err)
	}

	var shop model.Shop
	if err := db.First(&shop, shopID).Error; err != nil {
		t.Fatalf("查询店铺失败: %v", err)
	}
	if shop.Status != model.ShopStatusTokenExpired {
		t.Errorf("店铺状态 = %s, 预期 token_expired", shop.Status)
	}
}

func TestTokenManager_RefreshExpiring(t *testing.T) {
	db := setupServiceTestDB(t)
	vault := newTestVault(t)
	// 30 分钟后到期，落入 60 分钟预刷新窗口
	shopID := seedShopWithCredential(t, db, vault, time.Now().Add(30*time.Minute))

	refresher := &fakeRefresher{resp: &etsy.EtsyTokenResp{
		AccessToken:  "new-access-token",
		RefreshToken: "new-refresh-token",
		ExpiresIn:    3600,
	}}
	mgr := newTestTokenManager(db, vault, refresher)

	mgr.RefreshExpiring(context.Background(), time.Hour)

	if refresher.refreshCalls.Load() != 1 {
		t.Fatalf("端点调用次数 = %d, 预期 1", refresher.refreshCalls.Load())
	}
	var cred model.Credential
	if err := db.Where("shop_id = ?", shopID).First(&cred).Error; err != nil {
		t.Fatalf("查询凭证失败: %v", err)
	}
	if got, _ := vault.Decrypt(cred.AccessTokenEncrypted); got != "new-access-token" {
		t.Errorf("预刷新后 access token = %q, 预期 new-access-token", got)
	}
}
