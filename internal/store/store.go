package store

import (
	"context"

	"github.com/fjod/go_cart/cloudshelf-cart/internal/domain"
)

// CartStore persists one cart document per user. It is the record of truth
// for an active cart between requests.
//
// There is no transaction across Load and Save: two writers for the same
// user race and the last Save wins.
type CartStore interface {
	// Load returns an empty cart, not an error, when nothing is stored.
	Load(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, userID string, cart domain.Cart) error
	// Delete is idempotent; deleting an absent cart is not an error.
	Delete(ctx context.Context, userID string) error
	Ping(ctx context.Context) error
}

const keyPrefix = "cart:"

func cartKey(userID string) string {
	return keyPrefix + userID
}

func normalize(userID string, cart domain.Cart) domain.Cart {
	if cart.UserID == "" {
		cart.UserID = userID
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart
}
