package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fjod/go_cart/cloudshelf-cart/internal/domain"
	"github.com/sony/gobreaker/v2"
)

// Verifier asks the inventory side whether a quantity of a book is available.
// It does not retry.
type Verifier interface {
	Check(ctx context.Context, bookID string, quantity int) (domain.StockCheckResult, error)
}

const (
	checkPath       = "/api/stock/check"
	maxResponseSize = 1 << 20
)

// HTTPVerifier calls the stock-check service over HTTP through a circuit breaker.
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[domain.StockCheckResult]
}

func NewHTTPVerifier(baseURL string, client *http.Client, breaker *gobreaker.CircuitBreaker[domain.StockCheckResult]) *HTTPVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		breaker: breaker,
	}
}

// Check returns an error wrapping domain.ErrVerifierUnreachable when the
// service cannot be reached, answers with a non-2xx status, or the breaker is open.
func (v *HTTPVerifier) Check(ctx context.Context, bookID string, quantity int) (domain.StockCheckResult, error) {
	call := func() (domain.StockCheckResult, error) {
		return v.check(ctx, bookID, quantity)
	}

	var (
		result domain.StockCheckResult
		err    error
	)
	if v.breaker != nil {
		result, err = v.breaker.Execute(call)
	} else {
		result, err = call()
	}
	if err != nil {
		return domain.StockCheckResult{}, fmt.Errorf("%w: %w", domain.ErrVerifierUnreachable, err)
	}
	return result, nil
}

func (v *HTTPVerifier) check(ctx context.Context, bookID string, quantity int) (domain.StockCheckResult, error) {
	query := url.Values{}
	query.Set("bookId", bookID)
	query.Set("quantity", strconv.Itoa(quantity))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+checkPath+"?"+query.Encode(), nil)
	if err != nil {
		return domain.StockCheckResult{}, fmt.Errorf("build stock request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return domain.StockCheckResult{}, fmt.Errorf("stock request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.StockCheckResult{}, fmt.Errorf("stock service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return domain.StockCheckResult{}, fmt.Errorf("read stock response: %w", err)
	}

	return ParseCheckResponse(bookID, body), nil
}

// ParseCheckResponse decodes a stock-check body. It never fails open: a body
// that is not JSON, or an inStock field that is missing or not a boolean,
// yields InStock=false.
func ParseCheckResponse(bookID string, body []byte) domain.StockCheckResult {
	result := domain.StockCheckResult{BookID: bookID}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return result
	}

	if raw, ok := fields["inStock"]; ok {
		var inStock bool
		if err := json.Unmarshal(raw, &inStock); err == nil {
			result.InStock = inStock
		}
	}
	if raw, ok := fields["availableQuantity"]; ok {
		var available int
		if err := json.Unmarshal(raw, &available); err == nil {
			result.AvailableQuantity = available
		}
	}

	return result
}
