package checkout

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/aswathylr-builds/storefront-checkout/models"
	"github.com/aswathylr-builds/storefront-checkout/storefront"
)

// fakeBackend is an in-memory storefront with a fixed promo catalogue
type fakeBackend struct {
	mu sync.Mutex

	cart           models.Cart
	prices         map[string]decimal.Decimal
	cartPromos     map[string]int64
	checkPromos    map[string]*models.PromoResult
	createErr      error
	applyErr       error
	removePromoErr error
	createGate     chan struct{}
	createEntered  chan struct{}

	createCalls      int
	addCalls         int
	applyCalls       []string
	removePromoCalls int
	idempotencyKeys  []string
	orderRequests    []models.CreateOrderRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		cart:        models.Cart{Currency: "USD"},
		prices:      map[string]decimal.Decimal{},
		cartPromos:  map[string]int64{},
		checkPromos: map[string]*models.PromoResult{},
	}
}

func (f *fakeBackend) withItem(productID string, price string, qty int) *fakeBackend {
	f.prices[productID] = decimal.RequireFromString(price)
	f.cart.Items = append(f.cart.Items, models.CartItem{
		ID:        "item-" + productID,
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: f.prices[productID],
		Currency:  "USD",
	})
	f.recalc()
	return f
}

func (f *fakeBackend) recalc() {
	subtotal := decimal.Zero
	for _, item := range f.cart.Items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	f.cart.Subtotal = subtotal
}

func (f *fakeBackend) snapshot() *models.Cart {
	cart := f.cart
	cart.Items = append([]models.CartItem(nil), f.cart.Items...)
	return &cart
}

func (f *fakeBackend) GetCart(_ context.Context) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot(), nil
}

func (f *fakeBackend) AddItem(_ context.Context, req models.AddItemRequest) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	price, ok := f.prices[req.ProductID]
	if !ok {
		price = decimal.NewFromInt(1)
	}
	f.cart.Items = append(f.cart.Items, models.CartItem{ID: "item-" + req.ProductID, ProductID: req.ProductID, Quantity: req.Quantity, UnitPrice: price})
	f.recalc()
	return f.snapshot(), nil
}

func (f *fakeBackend) SetItemQuantity(_ context.Context, itemID string, quantity int) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.cart.Items {
		if f.cart.Items[i].ID == itemID {
			f.cart.Items[i].Quantity = quantity
			f.recalc()
			return f.snapshot(), nil
		}
	}
	return nil, &storefront.APIError{StatusCode: http.StatusNotFound, Message: "item not found"}
}

func (f *fakeBackend) RemoveItem(_ context.Context, itemID string) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.cart.Items[:0]
	for _, item := range f.cart.Items {
		if item.ID != itemID {
			items = append(items, item)
		}
	}
	f.cart.Items = items
	f.recalc()
	return f.snapshot(), nil
}

func (f *fakeBackend) ApplyPromo(_ context.Context, code string) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls = append(f.applyCalls, code)
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	percent, ok := f.cartPromos[code]
	if !ok {
		return nil, &storefront.APIError{StatusCode: http.StatusBadRequest, Code: "invalid_promo", Message: fmt.Sprintf("Promo code %s is not valid", code)}
	}
	p := decimal.NewFromInt(percent)
	f.cart.PromoCode = code
	f.cart.PromoDiscountPercent = &p
	return f.snapshot(), nil
}

func (f *fakeBackend) RemovePromo(_ context.Context) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removePromoCalls++
	if f.removePromoErr != nil {
		return nil, f.removePromoErr
	}
	if f.cart.PromoCode == "" {
		return nil, &storefront.APIError{StatusCode: http.StatusNotFound, Message: "no promo"}
	}
	f.cart.PromoCode = ""
	f.cart.PromoDiscountPercent = nil
	return f.snapshot(), nil
}

func (f *fakeBackend) CheckPromo(_ context.Context, req models.PromoCheckRequest) (*models.PromoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if result, ok := f.checkPromos[req.Code]; ok {
		out := *result
		return &out, nil
	}
	return &models.PromoResult{Valid: false, Error: "Promo code not found"}, nil
}

func (f *fakeBackend) CreateOrder(_ context.Context, req models.CreateOrderRequest, key string) (*models.OrderResult, error) {
	f.mu.Lock()
	f.createCalls++
	f.idempotencyKeys = append(f.idempotencyKeys, key)
	f.orderRequests = append(f.orderRequests, req)
	gate, entered, err := f.createGate, f.createEntered, f.createErr
	n := f.createCalls
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &models.OrderResult{OrderID: fmt.Sprintf("ord-%d", n), PaymentURL: "https://pay.example/session"}, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}
