package models

import "github.com/shopspring/decimal"

// CartItem represents a single line of the storefront cart
type CartItem struct {
	ID              string           `json:"id"`
	ProductID       string           `json:"product_id"`
	Quantity        int              `json:"quantity"`
	UnitPrice       decimal.Decimal  `json:"price"`
	Currency        string           `json:"currency"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
}

// Cart represents the multi-item purchase owned by the user session
type Cart struct {
	Items                []CartItem       `json:"items"`
	Subtotal             decimal.Decimal  `json:"subtotal"`
	Total                *decimal.Decimal `json:"total,omitempty"`
	Currency             string           `json:"currency"`
	PromoCode            string           `json:"promo_code,omitempty"`
	PromoDiscountPercent *decimal.Decimal `json:"promo_discount_percent,omitempty"`
}

// FindItem returns the cart line holding the given product
func (c *Cart) FindItem(productID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// IsEmpty reports whether the cart has nothing to check out
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ProductSelection represents a single product bought directly, without the cart screen
type ProductSelection struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
}

// AddItemRequest is the body of POST cart/items
type AddItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// SetQuantityRequest is the body of PATCH cart/items/{id}
type SetQuantityRequest struct {
	Quantity int `json:"quantity"`
}
