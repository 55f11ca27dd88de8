// Package pricing derives the price breakdown of a checkout from the cart or
// single-product state and the active promo result. Everything here is pure.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/aswathylr-builds/storefront-checkout/models"
)

var hundred = decimal.NewFromInt(100)

// Source is the thing being priced: a cart or a single product
type Source interface {
	base() (base decimal.Decimal, currency string)
}

// CartSource prices a whole cart
type CartSource struct {
	Cart *models.Cart
}

// base is the cart total when the backend sent one, so cart-level
// adjustments are already folded in
func (s CartSource) base() (decimal.Decimal, string) {
	if s.Cart == nil {
		return decimal.Zero, ""
	}
	if s.Cart.Total != nil {
		return *s.Cart.Total, s.Cart.Currency
	}
	return s.Cart.Subtotal, s.Cart.Currency
}

// ProductSource prices a single product bought directly
type ProductSource struct {
	Product models.ProductSelection
}

func (s ProductSource) base() (decimal.Decimal, string) {
	qty := s.Product.Quantity
	if qty < 0 {
		qty = 0
	}
	return s.Product.UnitPrice.Mul(decimal.NewFromInt(int64(qty))), s.Product.Currency
}

// Calculate returns subtotal, discount and total with
// total = max(0, subtotal - discount). Subtotal is the amount the promo applies to.
func Calculate(src Source, promo *models.PromoResult) models.PriceBreakdown {
	base, currency := src.base()
	base = base.Round(2)
	if base.IsNegative() {
		base = decimal.Zero
	}

	// rounding the discount first keeps the three lines consistent to the cent
	discount := Discount(base, promo).Round(2)
	total := base.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return models.PriceBreakdown{
		Subtotal: base,
		Discount: discount,
		Total:    total,
		Currency: currency,
	}
}

// CalculateTotal is Calculate reduced to the final amount
func CalculateTotal(src Source, promo *models.PromoResult) decimal.Decimal {
	return Calculate(src, promo).Total
}

// Discount is the amount a promo takes off base. Percent wins over an absolute amount.
func Discount(base decimal.Decimal, promo *models.PromoResult) decimal.Decimal {
	promo = NormalizePromo(promo)
	if promo == nil || !promo.Valid {
		return decimal.Zero
	}
	if promo.DiscountPercent != nil {
		return base.Mul(*promo.DiscountPercent).Div(hundred)
	}
	if promo.DiscountAmount != nil {
		if promo.DiscountAmount.GreaterThan(base) {
			return base
		}
		return *promo.DiscountAmount
	}
	return decimal.Zero
}
