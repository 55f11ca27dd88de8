package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/aswathylr-builds/storefront-checkout/models"
	"github.com/aswathylr-builds/storefront-checkout/pricing"
)

type checkoutTestContext struct {
	backend *fakeBackend
	session *Session
	err     error
	errs    []error
}

func (c *checkoutTestContext) reset() {
	c.backend = newFakeBackend()
	c.session = nil
	c.err = nil
	c.errs = nil
}

func (c *checkoutTestContext) aCartWithProduct(productID string, price, quantity int) error {
	c.backend.withItem(productID, fmt.Sprint(price), quantity)
	c.session = NewCartSession(c.backend, Options{})
	return c.session.Load(context.Background())
}

func (c *checkoutTestContext) aSingleProduct(productID string, price, quantity int) error {
	s, err := NewProductSession(c.backend, models.ProductSelection{
		ProductID: productID,
		UnitPrice: decimal.NewFromInt(int64(price)),
		Quantity:  quantity,
	}, Options{})
	if err != nil {
		return err
	}
	c.session = s
	return nil
}

func (c *checkoutTestContext) theStoreAcceptsPromo(code string, percent int) error {
	c.backend.cartPromos[code] = int64(percent)
	c.backend.checkPromos[code] = pricing.Percent(code, int64(percent))
	return nil
}

func (c *checkoutTestContext) theStoreOffersAmount(code string, amount int) error {
	c.backend.checkPromos[code] = pricing.Amount(code, decimal.NewFromInt(int64(amount)))
	return nil
}

func (c *checkoutTestContext) iApplyPromo(code string) error {
	_, c.err = c.session.ApplyPromo(context.Background(), code)
	return nil
}

func (c *checkoutTestContext) iRemoveThePromo() error {
	return c.session.RemovePromo(context.Background())
}

func (c *checkoutTestContext) iSubmitTwice(method string) error {
	c.backend.createGate = make(chan struct{})
	c.backend.createEntered = make(chan struct{}, 1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := c.session.CreateOrder(context.Background(), method)
		mu.Lock()
		c.errs = append(c.errs, err)
		mu.Unlock()
	}()
	<-c.backend.createEntered

	_, err := c.session.CreateOrder(context.Background(), method)
	mu.Lock()
	c.errs = append(c.errs, err)
	mu.Unlock()

	close(c.backend.createGate)
	wg.Wait()
	return nil
}

func (c *checkoutTestContext) theTotalIs(expected int) error {
	total := c.session.Breakdown().Total
	if !total.Equal(decimal.NewFromInt(int64(expected))) {
		return fmt.Errorf("expected total %d, got %s", expected, total)
	}
	return nil
}

func (c *checkoutTestContext) theDiscountIs(expected int) error {
	discount := c.session.Breakdown().Discount
	if !discount.Equal(decimal.NewFromInt(int64(expected))) {
		return fmt.Errorf("expected discount %d, got %s", expected, discount)
	}
	return nil
}

func (c *checkoutTestContext) thePromoIsRejectedWith(message string) error {
	if c.err == nil {
		return errors.New("expected promo to be rejected")
	}
	if got := UserMessage(c.err); got != message {
		return fmt.Errorf("expected message %q, got %q", message, got)
	}
	return nil
}

func (c *checkoutTestContext) theBackendReceivedOrders(expected int) error {
	if got := c.backend.calls(); got != expected {
		return fmt.Errorf("expected %d order calls, got %d", expected, got)
	}
	return nil
}

func (c *checkoutTestContext) oneSubmissionWasRejected() error {
	rejected := 0
	for _, err := range c.errs {
		if errors.Is(err, ErrSubmissionInFlight) {
			rejected++
		} else if err != nil {
			return fmt.Errorf("unexpected error: %w", err)
		}
	}
	if rejected != 1 {
		return fmt.Errorf("expected 1 rejected submission, got %d", rejected)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a cart with product "([^"]*)" priced (\d+) and quantity (\d+)$`, tc.aCartWithProduct)
	ctx.Step(`^a single product "([^"]*)" priced (\d+) with quantity (\d+)$`, tc.aSingleProduct)
	ctx.Step(`^the store accepts promo "([^"]*)" for (\d+) percent$`, tc.theStoreAcceptsPromo)
	ctx.Step(`^the store offers promo "([^"]*)" worth (\d+) off$`, tc.theStoreOffersAmount)

	// When steps
	ctx.Step(`^I apply promo "([^"]*)"$`, tc.iApplyPromo)
	ctx.Step(`^I remove the promo$`, tc.iRemoveThePromo)
	ctx.Step(`^I submit the order twice at the same time with "([^"]*)"$`, tc.iSubmitTwice)

	// Then steps
	ctx.Step(`^the total is (\d+)$`, tc.theTotalIs)
	ctx.Step(`^the discount is (\d+)$`, tc.theDiscountIs)
	ctx.Step(`^the promo is rejected with "([^"]*)"$`, tc.thePromoIsRejectedWith)
	ctx.Step(`^the backend received (\d+) orders?$`, tc.theBackendReceivedOrders)
	ctx.Step(`^one submission was rejected as already in flight$`, tc.oneSubmissionWasRejected)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/checkout.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
