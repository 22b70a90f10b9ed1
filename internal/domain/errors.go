package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUserIDRequired  = errors.New("user_id is required")
	ErrBookIDRequired  = errors.New("bookId is required")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidPrice    = errors.New("price must be non-negative")

	// ErrOutOfStock and ErrEmptyCart are user-correctable.
	ErrOutOfStock = errors.New("item not in stock")
	ErrEmptyCart  = errors.New("cart is empty, nothing to checkout")

	// Dependency failures. Nothing retries these automatically.
	ErrVerifierUnreachable  = errors.New("stock check service unreachable")
	ErrSubmitterUnreachable = errors.New("order service unreachable")
	ErrStoreUnavailable     = errors.New("cart store unavailable")

	// ErrOrderRejected means the order service answered with a non-success status.
	ErrOrderRejected = errors.New("order rejected")
)

type OutOfStockError struct {
	BookID    string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("item not in stock: %s (requested %d, available %d)", e.BookID, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error {
	return ErrOutOfStock
}

type OrderRejectedError struct {
	Message string
}

func (e *OrderRejectedError) Error() string {
	return "order failed: " + e.Message
}

func (e *OrderRejectedError) Unwrap() error {
	return ErrOrderRejected
}

// IsValidation reports whether err was caused by bad caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUserIDRequired) ||
		errors.Is(err, ErrBookIDRequired) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidPrice)
}

// IsDependencyFailure reports whether err came from an unreachable collaborator.
// These are the errors a client may retry.
func IsDependencyFailure(err error) bool {
	return errors.Is(err, ErrVerifierUnreachable) ||
		errors.Is(err, ErrSubmitterUnreachable) ||
		errors.Is(err, ErrStoreUnavailable)
}
