package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/go_cart/cloudshelf-cart/internal/domain"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/events"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/metrics"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/order"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/stock"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/store"
	"golang.org/x/sync/singleflight"
)

// Timeouts bound each call to a collaborator. Zero means no extra bound
// beyond the caller's context.
type Timeouts struct {
	Store time.Duration
	Stock time.Duration
	Order time.Duration
	Event time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Store: 2 * time.Second,
		Stock: 3 * time.Second,
		Order: 5 * time.Second,
		Event: 2 * time.Second,
	}
}

type Option func(*CartService)

func WithTimeouts(t Timeouts) Option {
	return func(s *CartService) { s.timeouts = t }
}

func WithMetrics(m *metrics.CartMetrics) Option {
	return func(s *CartService) { s.metrics = m }
}

// WithEvents announces completed checkouts through p. Publishing is best
// effort and never changes the checkout result.
func WithEvents(p events.Publisher) Option {
	return func(s *CartService) { s.events = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *CartService) { s.log = l }
}

// CartService owns a cart for the duration of one request: it loads it from
// the store, applies the change and writes it back. Writes for the same user
// are not serialized, so concurrent mutations are last-writer-wins.
type CartService struct {
	store    store.CartStore
	stock    stock.Verifier
	orders   order.Submitter
	timeouts Timeouts
	metrics  *metrics.CartMetrics
	events   events.Publisher
	log      *slog.Logger
	sfg      singleflight.Group // coalesces concurrent GetCart loads per user
}

func NewCartService(cartStore store.CartStore, verifier stock.Verifier, submitter order.Submitter, opts ...Option) *CartService {
	s := &CartService{
		store:    cartStore,
		stock:    verifier,
		orders:   submitter,
		timeouts: DefaultTimeouts(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "cart-service")
	return s
}

// GetCart never hides a store failure behind an empty cart.
func (s *CartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if err := validateUserID(userID); err != nil {
		return domain.Cart{}, err
	}

	// The shared load is detached from the caller that started it and bounded
	// by the store timeout. Each caller waits on its own ctx.
	ch := s.sfg.DoChan(userID, func() (interface{}, error) {
		return s.load(context.WithoutCancel(ctx), userID)
	})

	select {
	case <-ctx.Done():
		return domain.Cart{}, fmt.Errorf("%w: load: %w", domain.ErrStoreUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domain.Cart{}, res.Err
		}
		// every caller sharing the flight gets its own copy
		return res.Val.(domain.Cart).Clone(), nil
	}
}

// AddItem admits item only after the stock check says the quantity is
// available. When the check fails or reports no stock, the stored cart is
// not touched.
func (s *CartService) AddItem(ctx context.Context, userID string, item domain.CartItem) (domain.Cart, error) {
	if err := validateUserID(userID); err != nil {
		return domain.Cart{}, err
	}
	if err := item.Validate(); err != nil {
		return domain.Cart{}, err
	}

	if err := s.checkStock(ctx, item); err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.load(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}

	if err := cart.AddItem(item); err != nil {
		return domain.Cart{}, err
	}

	if err := s.save(ctx, userID, cart); err != nil {
		return domain.Cart{}, err
	}

	s.metrics.RecordItemAdded()
	s.log.DebugContext(ctx, "item added to cart", "user_id", userID, "book_id", item.BookID, "quantity", item.Quantity)
	return cart.Clone(), nil
}

// RemoveItem is idempotent. Removing an absent book writes nothing; removing
// the last line deletes the stored cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, bookID string) (domain.Cart, error) {
	if err := validateUserID(userID); err != nil {
		return domain.Cart{}, err
	}
	if strings.TrimSpace(bookID) == "" {
		return domain.Cart{}, domain.ErrBookIDRequired
	}

	cart, err := s.load(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}

	if !cart.RemoveItem(bookID) {
		return cart.Clone(), nil
	}

	if cart.IsEmpty() {
		err = s.delete(ctx, userID)
	} else {
		err = s.save(ctx, userID, cart)
	}
	if err != nil {
		return domain.Cart{}, err
	}

	return cart.Clone(), nil
}

func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	return s.delete(ctx, userID)
}

// Checkout submits the cart as an order. The cart is cleared if and only if
// the order service reports success; on a rejection or when the order
// service cannot be reached the stored cart stays as it was.
//
// idempotencyKey may be empty. When set it is forwarded to the order service
// unchanged; the cart service itself does not deduplicate attempts.
func (s *CartService) Checkout(ctx context.Context, userID, idempotencyKey string) (string, error) {
	if err := validateUserID(userID); err != nil {
		return "", err
	}
	start := time.Now()

	cart, err := s.load(ctx, userID)
	if err != nil {
		s.metrics.RecordCheckout(metrics.CheckoutStoreError, time.Since(start))
		return "", err
	}
	if cart.IsEmpty() {
		s.metrics.RecordCheckout(metrics.CheckoutEmpty, time.Since(start))
		return "", domain.ErrEmptyCart
	}

	req := cart.ToOrderRequest()
	req.IdempotencyKey = idempotencyKey

	outcome, err := s.submit(ctx, req)
	if err != nil {
		s.metrics.RecordCheckout(metrics.CheckoutUnreachable, time.Since(start))
		return "", err
	}

	if !outcome.Succeeded() {
		s.metrics.RecordCheckout(metrics.CheckoutRejected, time.Since(start))
		s.log.InfoContext(ctx, "order rejected", "user_id", userID, "message", outcome.Message)
		return "", &domain.OrderRejectedError{Message: outcome.Message}
	}

	if err := s.delete(ctx, userID); err != nil {
		s.metrics.RecordCheckout(metrics.CheckoutStoreError, time.Since(start))
		s.log.ErrorContext(ctx, "order placed but cart was not cleared",
			"user_id", userID, "message", outcome.Message, "error", err)
		return "", fmt.Errorf("order placed (%s) but cart was not cleared: %w", outcome.Message, err)
	}

	s.metrics.RecordCheckout(metrics.CheckoutSuccess, time.Since(start))
	s.log.InfoContext(ctx, "checkout completed", "user_id", userID, "lines", len(req.LineItems))
	s.publishCheckout(ctx, req, outcome.Message)
	return outcome.Message, nil
}

func (s *CartService) publishCheckout(ctx context.Context, req domain.OrderRequest, message string) {
	if s.events == nil {
		return
	}
	eventCtx, cancel := withTimeout(ctx, s.timeouts.Event)
	defer cancel()

	ev := events.NewCheckoutEvent(req, message, time.Now())
	if err := s.events.PublishCheckout(eventCtx, ev); err != nil {
		s.metrics.RecordDependencyError(metrics.DependencyEvents)
		s.log.WarnContext(ctx, "checkout event not published",
			"user_id", req.UserID, "event_id", ev.EventID, "error", err)
	}
}

func (s *CartService) checkStock(ctx context.Context, item domain.CartItem) error {
	stockCtx, cancel := withTimeout(ctx, s.timeouts.Stock)
	defer cancel()

	result, err := s.stock.Check(stockCtx, item.BookID, item.Quantity)
	if err != nil {
		s.metrics.RecordDependencyError(metrics.DependencyStockCheck)
		s.log.ErrorContext(ctx, "stock check failed", "book_id", item.BookID, "error", err)
		if errors.Is(err, domain.ErrVerifierUnreachable) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrVerifierUnreachable, err)
	}

	if !result.InStock {
		s.metrics.RecordStockRejection()
		s.log.InfoContext(ctx, "item not in stock",
			"book_id", item.BookID, "requested", item.Quantity, "available", result.AvailableQuantity)
		return &domain.OutOfStockError{
			BookID:    item.BookID,
			Requested: item.Quantity,
			Available: result.AvailableQuantity,
		}
	}
	return nil
}

func (s *CartService) submit(ctx context.Context, req domain.OrderRequest) (domain.OrderOutcome, error) {
	orderCtx, cancel := withTimeout(ctx, s.timeouts.Order)
	defer cancel()

	outcome, err := s.orders.Submit(orderCtx, req)
	if err != nil {
		s.metrics.RecordDependencyError(metrics.DependencyOrderSubmit)
		s.log.ErrorContext(ctx, "order submission failed", "user_id", req.UserID, "error", err)
		if errors.Is(err, domain.ErrSubmitterUnreachable) {
			return domain.OrderOutcome{}, err
		}
		return domain.OrderOutcome{}, fmt.Errorf("%w: %w", domain.ErrSubmitterUnreachable, err)
	}
	return outcome, nil
}

func (s *CartService) load(ctx context.Context, userID string) (domain.Cart, error) {
	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()

	cart, err := s.store.Load(storeCtx, userID)
	if err != nil {
		return domain.Cart{}, s.storeError(ctx, "load", userID, err)
	}
	if cart.UserID == "" {
		cart.UserID = userID
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, userID string, cart domain.Cart) error {
	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()

	if err := s.store.Save(storeCtx, userID, cart); err != nil {
		return s.storeError(ctx, "save", userID, err)
	}
	return nil
}

func (s *CartService) delete(ctx context.Context, userID string) error {
	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()

	if err := s.store.Delete(storeCtx, userID); err != nil {
		return s.storeError(ctx, "delete", userID, err)
	}
	return nil
}

func (s *CartService) storeError(ctx context.Context, op, userID string, err error) error {
	s.metrics.RecordDependencyError(metrics.DependencyStore)
	s.log.ErrorContext(ctx, "cart store "+op+" failed", "user_id", userID, "error", err)
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrUserIDRequired
	}
	return nil
}
