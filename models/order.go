package models

// CreateOrderRequest is the body of POST orders
type CreateOrderRequest struct {
	PaymentMethod string `json:"payment_method"`
	PromoCode     string `json:"promo_code,omitempty"`
}

// OrderResult is the backend answer to order creation.
// An empty PaymentURL means nothing further needs to be paid.
type OrderResult struct {
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url,omitempty"`
}

// OrderStatusResponse is the body of GET orders/{id}/status
type OrderStatusResponse struct {
	Status PaymentStatus `json:"status"`
}

// ManualConfirmRequest is the body of POST orders/confirm-payment
type ManualConfirmRequest struct {
	OrderID string `json:"order_id"`
	Hash    string `json:"hash"`
}

// ManualConfirmResponse is the backend answer to a manual confirmation
type ManualConfirmResponse struct {
	Success bool          `json:"success"`
	Status  PaymentStatus `json:"status,omitempty"`
	Message string        `json:"message,omitempty"`
}

// Confirmed reports whether the manual confirmation settled the order
func (r *ManualConfirmResponse) Confirmed() bool {
	return r.Success || r.Status.Classify() == ClassSuccess
}
