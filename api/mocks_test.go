package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aswathylr-builds/storefront-checkout/models"
	"github.com/aswathylr-builds/storefront-checkout/storefront"
)

// stubBackend is a storefront with one cart line of 1000 and the promo SAVE20
type stubBackend struct {
	mu sync.Mutex

	cart       models.Cart
	order      models.OrderResult
	createErr  error
	tokens     []string
	orderCalls int
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		cart: models.Cart{
			Items: []models.CartItem{{
				ID:        "item-1",
				ProductID: "sku-1",
				Quantity:  1,
				UnitPrice: decimal.NewFromInt(1000),
				Currency:  "USD",
			}},
			Subtotal: decimal.NewFromInt(1000),
			Currency: "USD",
		},
		order: models.OrderResult{OrderID: "ord-1"},
	}
}

func (b *stubBackend) copyCart() *models.Cart {
	cart := b.cart
	cart.Items = append([]models.CartItem(nil), b.cart.Items...)
	return &cart
}

func (b *stubBackend) GetCart(context.Context) (*models.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyCart(), nil
}

func (b *stubBackend) AddItem(_ context.Context, req models.AddItemRequest) (*models.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cart.Items = append(b.cart.Items, models.CartItem{ID: "item-" + req.ProductID, ProductID: req.ProductID, Quantity: req.Quantity})
	return b.copyCart(), nil
}

func (b *stubBackend) SetItemQuantity(_ context.Context, itemID string, quantity int) (*models.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.cart.Items {
		if b.cart.Items[i].ID == itemID {
			b.cart.Items[i].Quantity = quantity
			b.cart.Subtotal = b.cart.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
			return b.copyCart(), nil
		}
	}
	return nil, &storefront.APIError{StatusCode: http.StatusNotFound, Message: "Item not found"}
}

func (b *stubBackend) RemoveItem(_ context.Context, itemID string) (*models.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cart.Items = nil
	b.cart.Subtotal = decimal.Zero
	return b.copyCart(), nil
}

func (b *stubBackend) ApplyPromo(_ context.Context, code string) (*models.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code != "SAVE20" {
		return nil, &storefront.APIError{StatusCode: http.StatusBadRequest, Message: "Promo code " + code + " is not valid"}
	}
	p := decimal.NewFromInt(20)
	b.cart.PromoCode = code
	b.cart.PromoDiscountPercent = &p
	return b.copyCart(), nil
}

func (b *stubBackend) RemovePromo(context.Context) (*models.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cart.PromoCode = ""
	b.cart.PromoDiscountPercent = nil
	return b.copyCart(), nil
}

func (b *stubBackend) CheckPromo(_ context.Context, req models.PromoCheckRequest) (*models.PromoResult, error) {
	if req.Code != "HALF" {
		return &models.PromoResult{Error: "unknown promo"}, nil
	}
	p := decimal.NewFromInt(50)
	return &models.PromoResult{Valid: true, DiscountPercent: &p}, nil
}

func (b *stubBackend) CreateOrder(context.Context, models.CreateOrderRequest, string) (*models.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orderCalls++
	if b.createErr != nil {
		return nil, b.createErr
	}
	order := b.order
	return &order, nil
}

type stubMethods struct {
	fallback bool
}

func (m stubMethods) List(context.Context) ([]models.PaymentMethod, bool) {
	if m.fallback {
		return models.FallbackPaymentMethods(), true
	}
	return []models.PaymentMethod{{SystemGroup: "card", Name: "Card"}}, false
}

// fakeConfirmations records what the API asked of the workflow layer
type fakeConfirmations struct {
	mu sync.Mutex

	started  []models.ConfirmationRequest
	signals  []string
	running  map[string]bool
	snapshot *models.ConfirmationSnapshot
	startErr error
}

func newFakeConfirmations() *fakeConfirmations {
	return &fakeConfirmations{running: map[string]bool{}}
}

func (f *fakeConfirmations) Start(_ context.Context, req models.ConfirmationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.running[req.OrderID] {
		return ErrConfirmationRunning
	}
	f.running[req.OrderID] = true
	f.started = append(f.started, req)
	return nil
}

func (f *fakeConfirmations) Signal(_ context.Context, orderID, signal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[orderID] {
		return ErrConfirmationNotFound
	}
	f.signals = append(f.signals, signal)
	return nil
}

func (f *fakeConfirmations) State(_ context.Context, orderID string) (*models.ConfirmationSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[orderID] || f.snapshot == nil {
		return nil, ErrConfirmationNotFound
	}
	snapshot := *f.snapshot
	return &snapshot, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
