package domain

import (
	"fmt"
	"math"
	"strings"
)

type Cart struct {
	UserID string     `json:"userId" bson:"user_id"`
	Items  []CartItem `json:"items" bson:"items"`
}

type CartItem struct {
	BookID   string  `json:"bookId" bson:"book_id"`
	Title    string  `json:"title" bson:"title"`
	Quantity int     `json:"quantity" bson:"quantity"`
	Price    float64 `json:"price" bson:"price"`
}

// NewCart returns the empty cart a user has before anything is stored.
func NewCart(userID string) Cart {
	return Cart{UserID: userID, Items: []CartItem{}}
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone returns a copy that shares no item storage with c.
func (c Cart) Clone() Cart {
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	return Cart{UserID: c.UserID, Items: items}
}

// AddItem merges item into the cart. A line with the same book id gets the
// quantities summed, so the cart never holds two lines for one book. A sum
// that would overflow leaves the cart unchanged and returns ErrInvalidQuantity.
func (c *Cart) AddItem(item CartItem) error {
	for i := range c.Items {
		if c.Items[i].BookID == item.BookID {
			if c.Items[i].Quantity > math.MaxInt-item.Quantity {
				return fmt.Errorf("%w: total for %s too large", ErrInvalidQuantity, item.BookID)
			}
			c.Items[i].Quantity += item.Quantity
			return nil
		}
	}
	c.Items = append(c.Items, item)
	return nil
}

// RemoveItem drops every line for bookID and reports whether anything was removed.
func (c *Cart) RemoveItem(bookID string) bool {
	kept := c.Items[:0]
	removed := false
	for _, item := range c.Items {
		if item.BookID == bookID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	c.Items = kept
	return removed
}

// ToOrderRequest projects the cart into the payload sent to the order service.
func (c Cart) ToOrderRequest() OrderRequest {
	lines := make([]OrderLineItem, len(c.Items))
	for i, item := range c.Items {
		lines[i] = OrderLineItem{
			SkuCode:  item.BookID,
			Price:    item.Price,
			Quantity: item.Quantity,
		}
	}
	return OrderRequest{UserID: c.UserID, LineItems: lines}
}

func (i CartItem) Validate() error {
	if strings.TrimSpace(i.BookID) == "" {
		return ErrBookIDRequired
	}
	if i.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if i.Price < 0 {
		return ErrInvalidPrice
	}
	return nil
}
