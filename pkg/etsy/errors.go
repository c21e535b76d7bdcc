package etsy

import (
	"errors"
	"fmt"
	"time"
)

// ==================== 错误分类 ====================

// APIError Etsy 明确拒绝的业务错误 (4xx/5xx)，不做重试
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Etsy API 错误 [%d]: %s", e.Status, e.Body)
}

// RateLimitError 命中 429 限流，按 retry-after 等待后重试
// 重试预算耗尽后该错误原样上抛
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Etsy 限流 (429)，建议 %s 后重试", e.RetryAfter)
}

// AuthError refresh token 被拒绝，该店铺授权已失效
// 终止性错误：店铺转入 token_expired 状态，重新授权前不再发起调用
type AuthError struct {
	ShopID int64
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("店铺 %d 授权已失效 (HTTP %d): %s", e.ShopID, e.Status, e.Body)
}

// IsAuthError 判断是否为授权失效错误
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
