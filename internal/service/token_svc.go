package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"etsy_erp_backend/internal/model"
	"etsy_erp_backend/internal/repository"
	"etsy_erp_backend/pkg/crypto"
	"etsy_erp_backend/pkg/etsy"
)

// RefreshMargin 提前刷新余量：距过期不足 5 分钟视为已过期
const RefreshMargin = 5 * time.Minute

// TokenRefresher OAuth Token 端点的最小依赖面
type TokenRefresher interface {
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*etsy.EtsyTokenResp, error)
	Refresh(ctx context.Context, shopID int64, refreshToken string) (*etsy.EtsyTokenResp, error)
}

// TokenManager 店铺 Token 生命周期管理
// 实现 etsy.TokenSource：API 客户端每次调用前向这里解析有效 Token
type TokenManager struct {
	shopRepo repository.ShopRepository
	credRepo repository.CredentialRepository
	vault    *crypto.Vault
	endpoint TokenRefresher
	sf       singleflight.Group
	log      *zap.Logger
}

// NewTokenManager 工厂方法
func NewTokenManager(
	shopRepo repository.ShopRepository,
	credRepo repository.CredentialRepository,
	vault *crypto.Vault,
	endpoint TokenRefresher,
	log *zap.Logger,
) *TokenManager {
	return &TokenManager{
		shopRepo: shopRepo,
		credRepo: credRepo,
		vault:    vault,
		endpoint: endpoint,
		log:      log,
	}
}

// AccessToken 解析店铺当前有效的访问 Token
// 距过期超过 5 分钟直接解密返回，否则先刷新
func (m *TokenManager) AccessToken(ctx context.Context, shopID int64) (string, error) {
	cred, err := m.credRepo.GetByShopID(ctx, shopID)
	if err != nil {
		return "", fmt.Errorf("店铺 %d 无授权凭证: %w", shopID, err)
	}

	if !cred.ExpiresWithin(RefreshMargin) {
		return m.vault.Decrypt(cred.AccessTokenEncrypted)
	}
	return m.refresh(ctx, shopID)
}

// ForceRefresh 无视过期时间强制刷新 (API 返回 401 时调用)
func (m *TokenManager) ForceRefresh(ctx context.Context, shopID int64) (string, error) {
	return m.refresh(ctx, shopID)
}

// refresh 刷新 Token，singleflight 保证同一店铺并发刷新只打一次端点
func (m *TokenManager) refresh(ctx context.Context, shopID int64) (string, error) {
	token, err, _ := m.sf.Do(fmt.Sprintf("refresh:%d", shopID), func() (interface{}, error) {
		return m.doRefresh(ctx, shopID)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *TokenManager) doRefresh(ctx context.Context, shopID int64) (string, error) {
	cred, err := m.credRepo.GetByShopID(ctx, shopID)
	if err != nil {
		return "", fmt.Errorf("店铺 %d 无授权凭证: %w", shopID, err)
	}

	refreshToken, err := m.vault.Decrypt(cred.RefreshTokenEncrypted)
	if err != nil {
		return "", fmt.Errorf("解密 refresh token 失败: %w", err)
	}

	resp, err := m.endpoint.Refresh(ctx, shopID, refreshToken)
	if err != nil {
		// Etsy 明确拒绝刷新：店铺转入人工重新授权流程
		if etsy.IsAuthError(err) {
			m.log.Warn("Token 刷新被拒绝，店铺转入 token_expired",
				zap.Int64("shop_id", shopID), zap.Error(err))
			if updateErr := m.shopRepo.UpdateStatus(ctx, shopID, model.ShopStatusTokenExpired); updateErr != nil {
				m.log.Error("更新店铺状态失败", zap.Int64("shop_id", shopID), zap.Error(updateErr))
			}
		}
		return "", err
	}

	if err := m.storeTokens(ctx, shopID, resp, cred.Scopes); err != nil {
		return "", err
	}

	m.log.Info("Token 刷新成功",
		zap.Int64("shop_id", shopID),
		zap.Int("expires_in", resp.ExpiresIn))
	return resp.AccessToken, nil
}

// StoreExchanged 保存授权码换取的初始 Token
func (m *TokenManager) StoreExchanged(ctx context.Context, shopID int64, resp *etsy.EtsyTokenResp, scopes string) error {
	return m.storeTokens(ctx, shopID, resp, scopes)
}

func (m *TokenManager) storeTokens(ctx context.Context, shopID int64, resp *etsy.EtsyTokenResp, scopes string) error {
	accessEnc, err := m.vault.Encrypt(resp.AccessToken)
	if err != nil {
		return fmt.Errorf("加密 access token 失败: %w", err)
	}
	refreshEnc, err := m.vault.Encrypt(resp.RefreshToken)
	if err != nil {
		return fmt.Errorf("加密 refresh token 失败: %w", err)
	}

	cred := &model.Credential{
		ShopID:                shopID,
		AccessTokenEncrypted:  accessEnc,
		RefreshTokenEncrypted: refreshEnc,
		ExpiresAt:             time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		Scopes:                scopes,
	}
	return m.credRepo.Save(ctx, cred)
}

// RefreshExpiring 批量预刷新：对指定窗口内到期的凭证逐个刷新
// 单个失败不影响其余店铺
func (m *TokenManager) RefreshExpiring(ctx context.Context, within time.Duration) {
	creds, err := m.credRepo.FindExpiring(ctx, within)
	if err != nil {
		m.log.Error("查询到期凭证失败", zap.Error(err))
		return
	}
	if len(creds) == 0 {
		return
	}

	m.log.Info("开始批量预刷新 Token", zap.Int("count", len(creds)))
	for _, cred := range creds {
		if _, err := m.refresh(ctx, cred.ShopID); err != nil {
			m.log.Warn("预刷新失败",
				zap.Int64("shop_id", cred.ShopID), zap.Error(err))
		}
	}
}
