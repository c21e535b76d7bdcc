package model

import (
	"time"
)

// ==================== 店铺状态常量 ====================

const (
	ShopStatusActive       = "active"        // 正常
	ShopStatusInactive     = "inactive"      // 已停用
	ShopStatusTokenExpired = "token_expired" // Token 失效，需重新授权
	ShopStatusError        = "error"         // 同步异常
)

// ==================== Shop 店铺 ====================

// Shop 已接入的 Etsy 店铺
type Shop struct {
	BaseModel

	// 1. 核心身份
	EtsyShopID int64 `gorm:"uniqueIndex;not null"` // 对应 Etsy 平台的 shop_id
	EtsyUserID int64 `gorm:"index"`                // 对应 Etsy 平台的 user_id

	// 2. 店铺资料
	ShopName string `gorm:"size:100"`
	ShopURL  string `gorm:"size:255"`
	ShopIcon string `gorm:"size:255"`
	Currency string `gorm:"size:10;default:USD"`

	// 3. 同步状态
	Status     string     `gorm:"size:32;index;default:active;comment:active/inactive/token_expired/error"`
	LastSyncAt *time.Time `gorm:"comment:最后一次成功同步时间"`

	// 4. 通知设置
	TelegramEnabled   bool   `gorm:"default:false"`
	TelegramChatID    string `gorm:"size:64"`
	EmailEnabled      bool   `gorm:"default:false"`
	NotificationEmail string `gorm:"size:255"`

	// 5. 关联 (Has One)
	Credential *Credential `gorm:"foreignKey:ShopID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*Shop) TableName() string {
	return "shops"
}

// IsActive 店铺是否可参与同步
func (s *Shop) IsActive() bool {
	return s.Status == ShopStatusActive
}

// ==================== Credential 授权凭证 ====================

// Credential 店铺的 OAuth 凭证，Token 均为加密后的密文
type Credential struct {
	BaseModel

	ShopID int64 `gorm:"uniqueIndex;not null"`

	// 密文格式: iv:tag:cipher (hex)
	AccessTokenEncrypted  string `gorm:"type:text;not null"`
	RefreshTokenEncrypted string `gorm:"type:text;not null"`

	ExpiresAt time.Time `gorm:"index;not null;comment:access token 过期时间"`
	Scopes    string    `gorm:"size:512"`
}

func (*Credential) TableName() string {
	return "credentials"
}

// ExpiresWithin 凭证是否在指定窗口内到期
func (c *Credential) ExpiresWithin(d time.Duration) bool {
	return time.Until(c.ExpiresAt) < d
}
