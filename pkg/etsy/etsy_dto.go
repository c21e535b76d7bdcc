package etsy

import "github.com/shopspring/decimal"

// ==========================================
// DTO: 用于接收 Etsy API 返回的原始 JSON 数据
// ==========================================

// EtsyMoney Etsy 金额对象
// amount 为最小货币单位整数 (分)，divisor 通常为 100
type EtsyMoney struct {
	Amount       int64  `json:"amount"`
	Divisor      int64  `json:"divisor"`
	CurrencyCode string `json:"currency_code"`
}

// Decimal 转为主货币单位的十进制金额 (1999/100 -> 19.99)
func (m EtsyMoney) Decimal() decimal.Decimal {
	divisor := m.Divisor
	if divisor <= 0 {
		divisor = 100
	}
	return decimal.NewFromInt(m.Amount).Div(decimal.NewFromInt(divisor))
}

// EtsyTokenResp OAuth Token 端点响应
// POST /v3/public/oauth/token
type EtsyTokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Error        string `json:"error,omitempty"`
}

// EtsyUserResp 当前授权用户
// GET /v3/application/users/me
type EtsyUserResp struct {
	UserID       int64  `json:"user_id"`
	LoginName    string `json:"login_name"`
	PrimaryEmail string `json:"primary_email"`
}

// EtsyShopResp Etsy 店铺 API 响应
// GET /v3/application/shops/{shop_id}
type EtsyShopResp struct {
	ShopID           int64  `json:"shop_id"`
	UserID           int64  `json:"user_id"`
	ShopName         string `json:"shop_name"`
	Title            string `json:"title"`
	CurrencyCode     string `json:"currency_code"`
	URL              string `json:"url"`
	IconURLFullxFull string `json:"icon_url_fullxfull"`
	CreateTimestamp  int64  `json:"create_timestamp"`
	UpdateTimestamp  int64  `json:"update_timestamp"`
}

// EtsyShopsResp 用户店铺列表响应
// GET /v3/application/users/{user_id}/shops
type EtsyShopsResp struct {
	Count   int            `json:"count"`
	Results []EtsyShopResp `json:"results"`
}

// ==================== Receipt (订单) ====================

// EtsyShipmentResp 收据上的发货信息
type EtsyShipmentResp struct {
	TrackingCode string `json:"tracking_code"`
	CarrierName  string `json:"carrier_name"`
}

// EtsyVariationResp 交易变体选择 (如 颜色: 红)
type EtsyVariationResp struct {
	FormattedName  string `json:"formatted_name"`
	FormattedValue string `json:"formatted_value"`
}

// EtsyTransactionResp 收据中的单笔交易 (订单行项目)
type EtsyTransactionResp struct {
	TransactionID int64               `json:"transaction_id"`
	ListingID     int64               `json:"listing_id"`
	ProductID     int64               `json:"product_id"`
	Title         string              `json:"title"`
	SKU           string              `json:"sku"`
	Quantity      int                 `json:"quantity"`
	Price         EtsyMoney           `json:"price"`
	ShippingCost  EtsyMoney           `json:"shipping_cost"`
	Variations    []EtsyVariationResp `json:"variations"`
}

// EtsyReceiptResp Etsy 收据 API 响应
// GET /v3/application/shops/{shop_id}/receipts/{receipt_id}
type EtsyReceiptResp struct {
	ReceiptID       int64  `json:"receipt_id"`
	Status          string `json:"status"`
	WasPaid         bool   `json:"was_paid"`
	WasShipped      bool   `json:"was_shipped"`
	Name            string `json:"name"`
	BuyerUserID     int64  `json:"buyer_user_id"`
	BuyerEmail      string `json:"buyer_email"`
	FirstLine       string `json:"first_line"`
	SecondLine      string `json:"second_line"`
	City            string `json:"city"`
	State           string `json:"state"`
	Zip             string `json:"zip"`
	CountryISO      string `json:"country_iso"`
	CreateTimestamp int64  `json:"create_timestamp"`
	UpdateTimestamp int64  `json:"update_timestamp"`

	Grandtotal        EtsyMoney `json:"grandtotal"`
	Subtotal          EtsyMoney `json:"subtotal"`
	TotalShippingCost EtsyMoney `json:"total_shipping_cost"`
	TotalTaxCost      EtsyMoney `json:"total_tax_cost"`

	Shipments    []EtsyShipmentResp    `json:"shipments"`
	Transactions []EtsyTransactionResp `json:"transactions"`
}

// EtsyReceiptsResp 收据列表响应
// GET /v3/application/shops/{shop_id}/receipts
type EtsyReceiptsResp struct {
	Count   int               `json:"count"`
	Results []EtsyReceiptResp `json:"results"`
}

// ==================== Listing (商品) ====================

// EtsyListingImageResp 商品图片
type EtsyListingImageResp struct {
	ListingImageID int64  `json:"listing_image_id"`
	URLFullxFull   string `json:"url_fullxfull"`
}

// EtsyListingResp Etsy 商品 API 响应
// GET /v3/application/shops/{shop_id}/listings
type EtsyListingResp struct {
	ListingID   int64                  `json:"listing_id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	State       string                 `json:"state"`
	Tags        []string               `json:"tags"`
	SKUs        []string               `json:"skus"`
	Price       EtsyMoney              `json:"price"`
	Quantity    int                    `json:"quantity"`
	URL         string                 `json:"url"`
	Images      []EtsyListingImageResp `json:"images"`
}

// EtsyListingsResp 商品列表响应
type EtsyListingsResp struct {
	Count   int               `json:"count"`
	Results []EtsyListingResp `json:"results"`
}

// ==================== Inventory (库存/变体) ====================

// EtsyPropertyValueResp 变体属性值
type EtsyPropertyValueResp struct {
	PropertyName string   `json:"property_name"`
	Values       []string `json:"values"`
}

// EtsyOfferingResp 变体报价 (价格/库存)
type EtsyOfferingResp struct {
	OfferingID int64     `json:"offering_id"`
	Price      EtsyMoney `json:"price"`
	Quantity   int       `json:"quantity"`
}

// EtsyInventoryProductResp 库存中的单个变体
type EtsyInventoryProductResp struct {
	ProductID      int64                   `json:"product_id"`
	SKU            string                  `json:"sku"`
	PropertyValues []EtsyPropertyValueResp `json:"property_values"`
	Offerings      []EtsyOfferingResp      `json:"offerings"`
}

// EtsyInventoryResp 商品库存响应
// GET /v3/application/listings/{listing_id}/inventory
type EtsyInventoryResp struct {
	Products []EtsyInventoryProductResp `json:"products"`
}

// ==================== 请求参数 ====================

// ReceiptListParams 收据列表查询参数
type ReceiptListParams struct {
	Limit      int
	Offset     int
	MinCreated int64 // Unix 秒，0 表示不限
}

// ListingListParams 商品列表查询参数
type ListingListParams struct {
	Limit  int
	Offset int
	State  string // 如 "active"
}

// CreateShipmentReq 回写物流单号请求
// POST /v3/application/shops/{shop_id}/receipts/{receipt_id}/tracking
type CreateShipmentReq struct {
	TrackingCode string `json:"tracking_code"`
	CarrierName  string `json:"carrier_name"`
	SendBCC      bool   `json:"send_bcc,omitempty"`
}
