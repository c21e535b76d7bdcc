package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"etsy_erp_backend/internal/model"
	"etsy_erp_backend/internal/repository"
	"etsy_erp_backend/pkg/etsy"
	"etsy_erp_backend/pkg/pkce"
)

const (
	// ConnectURL Etsy 官方授权页
	ConnectURL = "https://www.etsy.com/oauth/connect"

	stateKeyPrefix = "etsy:oauth:state:"
	stateTTL       = 5 * time.Minute
)

// PublicAPI 授权回调阶段用到的无店铺上下文 API
type PublicAPI interface {
	GetUser(ctx context.Context, accessToken string) (*etsy.EtsyUserResp, error)
	GetUserShops(ctx context.Context, accessToken string, userID int64) ([]etsy.EtsyShopResp, error)
}

// AuthService Etsy OAuth 授权接入
type AuthService struct {
	shopRepo    repository.ShopRepository
	tokens      *TokenManager
	endpoint    TokenRefresher
	api         PublicAPI
	rdb         *redis.Client
	clientID    string
	redirectURI string
	scopes      string
	log         *zap.Logger
}

// NewAuthService 工厂方法
func NewAuthService(
	shopRepo repository.ShopRepository,
	tokens *TokenManager,
	endpoint TokenRefresher,
	api PublicAPI,
	rdb *redis.Client,
	clientID, redirectURI, scopes string,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		shopRepo:    shopRepo,
		tokens:      tokens,
		endpoint:    endpoint,
		api:         api,
		rdb:         rdb,
		clientID:    clientID,
		redirectURI: redirectURI,
		scopes:      scopes,
		log:         log,
	}
}

// GenerateConnectURL 生成授权链接
// PKCE verifier 以 state 为键缓存 5 分钟，回调时取回
func (s *AuthService) GenerateConnectURL(ctx context.Context) (string, error) {
	// 1. 生成 PKCE 安全参数
	verifier, err := pkce.GenerateVerifier(64)
	if err != nil {
		return "", fmt.Errorf("生成 verifier 失败: %w", err)
	}
	challenge := pkce.GenerateChallenge(verifier)
	state, err := pkce.GenerateVerifier(32)
	if err != nil {
		return "", fmt.Errorf("生成 state 失败: %w", err)
	}

	// 2. 缓存 verifier
	if err := s.rdb.Set(ctx, stateKeyPrefix+state, verifier, stateTTL).Err(); err != nil {
		return "", fmt.Errorf("缓存授权 state 失败: %w", err)
	}

	// 3. 拼接授权 URL
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", s.clientID)
	q.Set("redirect_uri", s.redirectURI)
	q.Set("scope", s.scopes)
	q.Set("state", state)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	return ConnectURL + "?" + q.Encode(), nil
}

// HandleCallback 处理 Etsy 回调：换 Token -> 拉取用户店铺 -> 落库
func (s *AuthService) HandleCallback(ctx context.Context, code, state string) (*model.Shop, error) {
	// 1. 校验 state 并取回 verifier (一次性使用)
	key := stateKeyPrefix + state
	verifier, err := s.rdb.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("授权超时或 state 无效，请重新发起")
	}
	if err != nil {
		return nil, fmt.Errorf("读取授权 state 失败: %w", err)
	}

	// 2. 授权码换 Token
	tokenResp, err := s.endpoint.ExchangeCode(ctx, code, verifier, s.redirectURI)
	if err != nil {
		return nil, fmt.Errorf("授权码换 Token 失败: %w", err)
	}

	// 3. 拉取授权用户与其店铺
	user, err := s.api.GetUser(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("获取授权用户失败: %w", err)
	}
	etsyShops, err := s.api.GetUserShops(ctx, tokenResp.AccessToken, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("获取用户店铺失败: %w", err)
	}
	if len(etsyShops) == 0 {
		return nil, fmt.Errorf("该 Etsy 账号名下没有店铺")
	}
	es := etsyShops[0]

	// 4. 店铺 upsert (先查后写)
	shop, err := s.shopRepo.GetByEtsyShopID(ctx, es.ShopID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("查询店铺失败: %w", err)
		}
		shop = &model.Shop{EtsyShopID: es.ShopID}
	}
	shop.EtsyUserID = user.UserID
	shop.ShopName = es.ShopName
	shop.ShopURL = es.URL
	shop.ShopIcon = es.IconURLFullxFull
	if es.CurrencyCode != "" {
		shop.Currency = es.CurrencyCode
	}
	// 重新授权后店铺恢复可同步
	shop.Status = model.ShopStatusActive

	if shop.ID == 0 {
		err = s.shopRepo.Create(ctx, shop)
	} else {
		err = s.shopRepo.Update(ctx, shop)
	}
	if err != nil {
		return nil, fmt.Errorf("保存店铺失败: %w", err)
	}

	// 5. 凭证加密落库
	if err := s.tokens.StoreExchanged(ctx, shop.ID, tokenResp, s.scopes); err != nil {
		return nil, fmt.Errorf("保存授权凭证失败: %w", err)
	}

	s.log.Info("店铺授权接入成功",
		zap.Int64("shop_id", shop.ID),
		zap.Int64("etsy_shop_id", shop.EtsyShopID),
		zap.String("shop_name", shop.ShopName))
	return shop, nil
}
