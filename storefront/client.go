// Package storefront is the HTTP client for the storefront backend: cart,
// promo, payment methods and orders.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aswathylr-builds/storefront-checkout/models"
)

// maxResponseBody caps a successful response
const maxResponseBody = 4 << 20

// IdempotencyHeader carries the client-generated key of an order attempt
const IdempotencyHeader = "Idempotency-Key"

// Client talks to the storefront backend
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	Token      string
}

// NewClient creates a new backend client. baseURL is the API root, e.g. https://shop.example/api/v1
func NewClient(baseURL, token string) *Client {
	return &Client{
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
	}
}

// GetCart fetches the current cart
func (c *Client) GetCart(ctx context.Context) (*models.Cart, error) {
	var cart models.Cart
	if err := c.do(ctx, http.MethodGet, "/cart", nil, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddItem puts a product into the cart and returns the updated cart
func (c *Client) AddItem(ctx context.Context, req models.AddItemRequest) (*models.Cart, error) {
	var cart models.Cart
	if err := c.do(ctx, http.MethodPost, "/cart/items", req, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// SetItemQuantity changes the quantity of a cart line
func (c *Client) SetItemQuantity(ctx context.Context, itemID string, quantity int) (*models.Cart, error) {
	var cart models.Cart
	path := "/cart/items/" + url.PathEscape(itemID)
	if err := c.do(ctx, http.MethodPatch, path, models.SetQuantityRequest{Quantity: quantity}, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveItem deletes a cart line
func (c *Client) RemoveItem(ctx context.Context, itemID string) (*models.Cart, error) {
	var cart models.Cart
	if err := c.do(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(itemID), nil, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// ApplyPromo persists a promo code on the cart
func (c *Client) ApplyPromo(ctx context.Context, code string) (*models.Cart, error) {
	var cart models.Cart
	if err := c.do(ctx, http.MethodPost, "/cart/promo", models.ApplyPromoRequest{Code: code}, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemovePromo clears the promo stored on the cart
func (c *Client) RemovePromo(ctx context.Context) (*models.Cart, error) {
	var cart models.Cart
	if err := c.do(ctx, http.MethodDelete, "/cart/promo", nil, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// CheckPromo validates a code without persisting it
func (c *Client) CheckPromo(ctx context.Context, req models.PromoCheckRequest) (*models.PromoResult, error) {
	var result models.PromoResult
	if err := c.do(ctx, http.MethodPost, "/promo/check", req, nil, &result); err != nil {
		return nil, err
	}
	result.Code = req.Code
	return &result, nil
}

// PaymentMethods lists the payment methods offered by the backend
func (c *Client) PaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	if err := c.do(ctx, http.MethodGet, "/payment-methods", nil, nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// CreateOrder creates an order from the cart
func (c *Client) CreateOrder(ctx context.Context, req models.CreateOrderRequest, idempotencyKey string) (*models.OrderResult, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers[IdempotencyHeader] = idempotencyKey
	}
	var result models.OrderResult
	if err := c.do(ctx, http.MethodPost, "/orders", req, headers, &result); err != nil {
		return nil, err
	}
	if result.OrderID == "" {
		return nil, fmt.Errorf("create order: %w", ErrMalformedResponse)
	}
	return &result, nil
}

// OrderStatus reads the settlement status of an order
func (c *Client) OrderStatus(ctx context.Context, orderID string) (*models.OrderStatusResponse, error) {
	var result models.OrderStatusResponse
	path := "/orders/" + url.PathEscape(orderID) + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ConfirmPayment asks the backend to re-check settlement of an order right now
func (c *Client) ConfirmPayment(ctx context.Context, req models.ManualConfirmRequest) (*models.ManualConfirmResponse, error) {
	var result models.ManualConfirmResponse
	if err := c.do(ctx, http.MethodPost, "/orders/confirm-payment", req, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newAPIError(resp.StatusCode, errBody)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
