package models

import "github.com/shopspring/decimal"

// PromoResult is the outcome of a promo check, shared by the cart and ad-hoc variants.
// DiscountPercent and DiscountAmount are mutually exclusive once normalized.
type PromoResult struct {
	Code            string           `json:"code,omitempty"`
	Valid           bool             `json:"is_valid"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	DiscountAmount  *decimal.Decimal `json:"discount_amount,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// PromoCheckRequest is the body of POST promo/check
type PromoCheckRequest struct {
	Code      string `json:"code"`
	ProductID string `json:"product_id,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
}

// ApplyPromoRequest is the body of POST cart/promo
type ApplyPromoRequest struct {
	Code string `json:"code"`
}

// PriceBreakdown is derived on every change and never stored
type PriceBreakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}
