package etsy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultTokenURL = "https://api.etsy.com/v3/public/oauth/token"

// ==================== TokenEndpoint Token 端点 ====================

// TokenEndpoint Etsy OAuth Token 端点客户端
// 授权码换 Token 和 refresh_token 刷新都走这里，不经过每日配额计数
type TokenEndpoint struct {
	http     *resty.Client
	tokenURL string
	clientID string
}

// NewTokenEndpoint 创建 Token 端点客户端
// tokenURL 为空时使用 Etsy 官方地址 (测试时可指向本地 mock)
func NewTokenEndpoint(clientID, tokenURL string, timeout time.Duration) *TokenEndpoint {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TokenEndpoint{
		http:     resty.New().SetTimeout(timeout),
		tokenURL: tokenURL,
		clientID: clientID,
	}
}

// ExchangeCode 授权码换 Token (PKCE)
func (t *TokenEndpoint) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*EtsyTokenResp, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", t.clientID)
	form.Set("redirect_uri", redirectURI)
	form.Set("code", code)
	form.Set("code_verifier", codeVerifier)

	return t.post(ctx, 0, form)
}

// Refresh 用 refresh_token 换新 Token
// Etsy 明确拒绝 (400/401) 时返回 AuthError，调用方据此将店铺转入 token_expired
func (t *TokenEndpoint) Refresh(ctx context.Context, shopID int64, refreshToken string) (*EtsyTokenResp, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", t.clientID)
	form.Set("refresh_token", refreshToken)

	return t.post(ctx, shopID, form)
}

func (t *TokenEndpoint) post(ctx context.Context, shopID int64, form url.Values) (*EtsyTokenResp, error) {
	var tokenResp EtsyTokenResp

	resp, err := t.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormDataFromValues(form).
		SetResult(&tokenResp).
		Post(t.tokenURL)

	// 网络层错误
	if err != nil {
		return nil, fmt.Errorf("token 端点请求失败: %w", err)
	}

	// 业务层错误: 只有明确收到 400/401 才视为授权失效
	switch {
	case resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized:
		return nil, &AuthError{ShopID: shopID, Status: resp.StatusCode(), Body: resp.String()}
	case resp.StatusCode() != http.StatusOK:
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}

	return &tokenResp, nil
}
