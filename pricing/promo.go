package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/aswathylr-builds/storefront-checkout/models"
)

const (
	reasonPercentOutOfRange = "discount percent must be between 0 and 100"
	reasonNegativeAmount    = "discount amount must not be negative"
)

// NormalizePromo returns a copy of promo with the discount policy enforced:
// percent outside [0,100] or a negative amount invalidates the result, and a
// percent drops any absolute amount. Nil stays nil.
func NormalizePromo(promo *models.PromoResult) *models.PromoResult {
	if promo == nil {
		return nil
	}
	out := *promo
	if !out.Valid {
		return &out
	}

	if out.DiscountPercent != nil {
		p := *out.DiscountPercent
		if p.IsNegative() || p.GreaterThan(hundred) {
			return invalid(out, reasonPercentOutOfRange)
		}
		out.DiscountAmount = nil
		return &out
	}
	if out.DiscountAmount != nil && out.DiscountAmount.IsNegative() {
		return invalid(out, reasonNegativeAmount)
	}
	return &out
}

// PromoFromCart reads the promo the cart owner persisted on the cart
func PromoFromCart(cart *models.Cart) *models.PromoResult {
	if cart == nil || cart.PromoCode == "" {
		return nil
	}
	result := &models.PromoResult{Code: cart.PromoCode, Valid: true}
	if cart.PromoDiscountPercent != nil {
		p := *cart.PromoDiscountPercent
		result.DiscountPercent = &p
	}
	return NormalizePromo(result)
}

// Percent is a convenience constructor for percent promo results
func Percent(code string, percent int64) *models.PromoResult {
	p := decimal.NewFromInt(percent)
	return &models.PromoResult{Code: code, Valid: true, DiscountPercent: &p}
}

// Amount is a convenience constructor for absolute promo results
func Amount(code string, amount decimal.Decimal) *models.PromoResult {
	return &models.PromoResult{Code: code, Valid: true, DiscountAmount: &amount}
}

func invalid(out models.PromoResult, reason string) *models.PromoResult {
	out.Valid = false
	out.DiscountPercent = nil
	out.DiscountAmount = nil
	out.Error = reason
	return &out
}
