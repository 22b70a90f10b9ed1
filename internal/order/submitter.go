package order

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/cloudshelf-cart/internal/domain"
	"github.com/sony/gobreaker/v2"
)

// Submitter places an order built from a cart. A returned error means the
// outcome is unknown; a rejected order is a Failure outcome, not an error.
type Submitter interface {
	Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderOutcome, error)
}

const (
	placeOrderPath       = "/api/order"
	idempotencyKeyHeader = "Idempotency-Key"
	maxResponseSize      = 1 << 20
)

type HTTPSubmitter struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[domain.OrderOutcome]
}

func NewHTTPSubmitter(baseURL string, client *http.Client, breaker *gobreaker.CircuitBreaker[domain.OrderOutcome]) *HTTPSubmitter {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSubmitter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		breaker: breaker,
	}
}

type placeOrderResponse struct {
	Status  *string `json:"status"`
	Message string  `json:"message"`
}

// Submit wraps domain.ErrSubmitterUnreachable around transport failures,
// 5xx, 408 and 429 answers, and an open breaker.
func (s *HTTPSubmitter) Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderOutcome, error) {
	call := func() (domain.OrderOutcome, error) {
		return s.submit(ctx, req)
	}

	var (
		outcome domain.OrderOutcome
		err     error
	)
	if s.breaker != nil {
		outcome, err = s.breaker.Execute(call)
	} else {
		outcome, err = call()
	}
	if err != nil {
		return domain.OrderOutcome{}, fmt.Errorf("%w: %w", domain.ErrSubmitterUnreachable, err)
	}
	return outcome, nil
}

func (s *HTTPSubmitter) submit(ctx context.Context, req domain.OrderRequest) (domain.OrderOutcome, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.OrderOutcome{}, fmt.Errorf("marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+placeOrderPath, bytes.NewReader(payload))
	if err != nil {
		return domain.OrderOutcome{}, fmt.Errorf("build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(idempotencyKeyHeader, req.IdempotencyKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return domain.OrderOutcome{}, fmt.Errorf("order request failed: %w", err)
	}
	defer resp.Body.Close()

	// 408 and 429 say nothing about the order itself, so they are retryable
	if resp.StatusCode >= 500 ||
		resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests {
		return domain.OrderOutcome{}, fmt.Errorf("order service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return domain.OrderOutcome{}, fmt.Errorf("read order response: %w", err)
	}

	return ParseOutcome(body), nil
}

// ParseOutcome decodes the order service answer. A body without a status is
// reported as a failure, never as a success.
func ParseOutcome(body []byte) domain.OrderOutcome {
	var resp placeOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Status == nil {
		return domain.OrderOutcome{
			Status:  domain.OrderStatusFailure,
			Message: domain.InvalidOrderResponseMessage,
		}
	}

	return domain.OrderOutcome{
		Status:  domain.ParseOrderStatus(*resp.Status),
		Message: resp.Message,
	}
}
