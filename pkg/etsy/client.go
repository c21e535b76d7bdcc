package etsy

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.etsy.com/v3/application"

// ==================== 依赖接口 ====================

// TokenSource 提供店铺的有效 access token
// 业务层实现需在此方法中完成缓存判断、解密与必要的刷新
type TokenSource interface {
	// AccessToken 返回当前可用的 access token
	AccessToken(ctx context.Context, shopID int64) (string, error)

	// ForceRefresh 强制刷新并返回新 token (收到 401 时调用)
	// refresh token 本身被拒绝时返回 AuthError，属终止性错误
	ForceRefresh(ctx context.Context, shopID int64) (string, error)
}

// RateLimiter 每日调用配额
type RateLimiter interface {
	Consume(ctx context.Context) (int64, error)
}

// ==================== Client Etsy API 客户端 ====================

// ClientConfig 客户端配置
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration // 单次 HTTP 调用超时，默认 30s
	MaxRetries        int           // 429/401 的额外重试次数，默认 3
	DefaultRetryAfter time.Duration // 429 未带 retry-after 时的等待，默认 5s
}

// Client 带重试与配额控制的 Etsy API 客户端
// 调用顺序：配额 -> Token -> HTTP；429 按 retry-after 等待重试，
// 401 强制刷新 Token 后重试，两者共享同一份重试预算
type Client struct {
	http    *resty.Client
	tokens  TokenSource
	limiter RateLimiter
	log     *zap.Logger

	baseURL           string
	apiKey            string
	maxRetries        int
	defaultRetryAfter time.Duration
}

// NewClient 创建客户端
func NewClient(cfg ClientConfig, tokens TokenSource, limiter RateLimiter, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = 5 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "etsy-erp-backend/1.0")

	return &Client{
		http:              httpClient,
		tokens:            tokens,
		limiter:           limiter,
		log:               log,
		baseURL:           cfg.BaseURL,
		apiKey:            cfg.APIKey,
		maxRetries:        cfg.MaxRetries,
		defaultRetryAfter: cfg.DefaultRetryAfter,
	}
}

// apiRequest 单次 API 请求描述
type apiRequest struct {
	method string
	path   string
	query  map[string]string
	body   interface{}
	result interface{}
}

// execute 执行一次逻辑调用 (含重试)
func (c *Client) execute(ctx context.Context, shopID int64, req apiRequest) error {
	// 1. 配额检查 (先于 Token 解析，配额耗尽不消耗 Token 刷新)
	if _, err := c.limiter.Consume(ctx); err != nil {
		return err
	}

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		// 2. 解析 Token
		token, err := c.tokens.AccessToken(ctx, shopID)
		if err != nil {
			return err
		}

		// 3. 发出请求
		r := c.http.R().
			SetContext(ctx).
			SetHeader("x-api-key", c.apiKey).
			SetHeader("Authorization", "Bearer "+token)
		if req.query != nil {
			r.SetQueryParams(req.query)
		}
		if req.body != nil {
			r.SetHeader("Content-Type", "application/json").SetBody(req.body)
		}
		if req.result != nil {
			r.SetResult(req.result)
		}

		resp, err := r.Execute(req.method, req.path)

		// 传输层失败: 不重试，直接上抛
		if err != nil {
			return fmt.Errorf("请求 Etsy API 失败: %w", err)
		}

		status := resp.StatusCode()
		switch {
		case status == http.StatusTooManyRequests:
			delay := c.parseRetryAfter(resp)
			lastErr = &RateLimitError{RetryAfter: delay}
			if attempt == c.maxRetries {
				return lastErr
			}
			c.log.Warn("Etsy 限流，等待后重试",
				zap.Int64("shop_id", shopID),
				zap.Duration("retry_after", delay),
				zap.Int("attempt", attempt+1),
			)
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			continue

		case status == http.StatusUnauthorized:
			lastErr = &APIError{Status: status, Body: resp.String()}
			if attempt == c.maxRetries {
				return lastErr
			}
			// 强刷 Token 后重试一次；刷新本身失败则为终止性错误
			if _, err := c.tokens.ForceRefresh(ctx, shopID); err != nil {
				return err
			}
			continue

		case status >= 400:
			return &APIError{Status: status, Body: resp.String()}
		}

		return nil
	}

	return lastErr
}

// parseRetryAfter 解析 retry-after 响应头 (秒)，缺失时使用默认值
func (c *Client) parseRetryAfter(resp *resty.Response) time.Duration {
	if v := resp.Header().Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.defaultRetryAfter
}

// sleepCtx 可被 ctx 打断的等待
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ==================== Shop ====================

// GetShop 获取店铺信息
func (c *Client) GetShop(ctx context.Context, shopID, etsyShopID int64) (*EtsyShopResp, error) {
	var result EtsyShopResp
	err := c.execute(ctx, shopID, apiRequest{
		method: http.MethodGet,
		path:   fmt.Sprintf("/shops/%d", etsyShopID),
		result: &result,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ==================== Receipts (订单) ====================

// GetShopReceipts 分页获取店铺收据
func (c *Client) GetShopReceipts(ctx context.Context, shopID, etsyShopID int64, params ReceiptListParams) (*EtsyReceiptsResp, error) {
	if params.Limit <= 0 {
		params.Limit = 100
	}
	query := map[string]string{
		"limit":  strconv.Itoa(params.Limit),
		"offset": strconv.Itoa(params.Offset),
	}
	if params.MinCreated > 0 {
		query["min_created"] = strconv.FormatInt(params.MinCreated, 10)
	}

	var result EtsyReceiptsResp
	err := c.execute(ctx, shopID, apiRequest{
		method: http.MethodGet,
		path:   fmt.Sprintf("/shops/%d/receipts", etsyShopID),
		query:  query,
		result: &result,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetReceipt 获取单个收据
func (c *Client) GetReceipt(ctx context.Context, shopID, etsyShopID, receiptID int64) (*EtsyReceiptResp, error) {
	var result EtsyReceiptResp
	err := c.execute(ctx, shopID, apiRequest{
		method: http.MethodGet,
		path:   fmt.Sprintf("/shops/%d/receipts/%d", etsyShopID, receiptID),
		result: &result,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateReceiptShipment 回写物流单号到 Etsy
func (c *Client) CreateReceiptShipment(ctx context.Context, shopID, etsyShopID, receiptID int64, req CreateShipmentReq) error {
	return c.execute(ctx, shopID, apiRequest{
		method: http.MethodPost,
		path:   fmt.Sprintf("/shops/%d/receipts/%d/tracking", etsyShopID, receiptID),
		body:   req,
	})
}

// ==================== Listings (商品) ====================

// GetShopListings 分页获取店铺商品
func (c *Client) GetShopListings(ctx context.Context, shopID, etsyShopID int64, params ListingListParams) (*EtsyListingsResp, error) {
	if params.Limit <= 0 {
		params.Limit = 100
	}
	query := map[string]string{
		"limit":  strconv.Itoa(params.Limit),
		"offset": strconv.Itoa(params.Offset),
	}
	if params.State != "" {
		query["state"] = params.State
	}

	var result EtsyListingsResp
	err := c.execute(ctx, shopID, apiRequest{
		method: http.MethodGet,
		path:   fmt.Sprintf("/shops/%d/listings", etsyShopID),
		query:  query,
		result: &result,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetListingInventory 获取商品库存 (变体)
func (c *Client) GetListingInventory(ctx context.Context, shopID, listingID int64) (*EtsyInventoryResp, error) {
	var result EtsyInventoryResp
	err := c.execute(ctx, shopID, apiRequest{
		method: http.MethodGet,
		path:   fmt.Sprintf("/listings/%d/inventory", listingID),
		result: &result,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ==================== 公开接口 (授权流程用) ====================

// GetUser 获取授权用户信息
// 授权回调时直接持 access token 调用，不经过配额与 TokenSource
func (c *Client) GetUser(ctx context.Context, accessToken string) (*EtsyUserResp, error) {
	var result EtsyUserResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.apiKey).
		SetHeader("Authorization", "Bearer "+accessToken).
		SetResult(&result).
		Get("/users/me")
	if err != nil {
		return nil, fmt.Errorf("请求 Etsy API 失败: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return &result, nil
}

// GetUserShops 获取用户名下的店铺
func (c *Client) GetUserShops(ctx context.Context, accessToken string, userID int64) ([]EtsyShopResp, error) {
	var result EtsyShopsResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.apiKey).
		SetHeader("Authorization", "Bearer "+accessToken).
		SetResult(&result).
		Get(fmt.Sprintf("/users/%d/shops", userID))
	if err != nil {
		return nil, fmt.Errorf("请求 Etsy API 失败: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return result.Results, nil
}
