package domain

import "strings"

type OrderLineItem struct {
	SkuCode  string  `json:"skuCode"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type OrderRequest struct {
	UserID    string          `json:"userId"`
	LineItems []OrderLineItem `json:"lineItems"`

	// IdempotencyKey is sent as a header, never in the body.
	IdempotencyKey string `json:"-"`
}

type OrderStatus string

const (
	OrderStatusSuccess OrderStatus = "SUCCESS"
	OrderStatusFailure OrderStatus = "FAILURE"
)

// InvalidOrderResponseMessage is reported when the order service answers without a status.
const InvalidOrderResponseMessage = "invalid order-service response"

type OrderOutcome struct {
	Status  OrderStatus
	Message string
}

func (o OrderOutcome) Succeeded() bool {
	return o.Status == OrderStatusSuccess
}

// ParseOrderStatus maps the raw status field of the order service. Only
// "success" (any case) is a success; everything else is a failure.
func ParseOrderStatus(raw string) OrderStatus {
	if strings.EqualFold(strings.TrimSpace(raw), "success") {
		return OrderStatusSuccess
	}
	return OrderStatusFailure
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}
