package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/domain"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/order"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/service"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/stock"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler   http.Handler
	mr        *miniredis.Miniredis
	store     *store.RedisStore
	verifier  *stock.MemoryVerifier
	submitter *order.MemorySubmitter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ts := &testServer{
		mr:        mr,
		store:     store.NewRedisStore(client, 0),
		verifier:  stock.NewMemoryVerifier(),
		submitter: order.NewMemorySubmitter("OK-123"),
	}
	svc := service.NewCartService(ts.store, ts.verifier, ts.submitter)
	ts.handler = NewRouter(NewCartHandler(svc, nil), ts.store, RouterConfig{
		RequestTimeout: 5 * time.Second,
		Metrics:        http.NotFoundHandler(),
	}, nil)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) domain.Cart {
	t.Helper()
	var cart domain.Cart
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cart))
	return cart
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestGetCart_Empty(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/cart/u1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"userId":"u1","items":[]}`, rec.Body.String())
}

func TestAddItem_ThenGet(t *testing.T) {
	ts := newTestServer(t)
	ts.verifier.SetStock("b1", 5)

	rec := ts.do(t, http.MethodPost, "/api/cart/u1/add", `{"bookId":"b1","title":"Dune","quantity":2,"price":9.99}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Cart{UserID: "u1", Items: []domain.CartItem{
		{BookID: "b1", Title: "Dune", Quantity: 2, Price: 9.99},
	}}, decodeCart(t, rec))

	rec = ts.do(t, http.MethodGet, "/api/cart/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeCart(t, rec).Items, 1)
}

func TestAddItem_OutOfStock(t *testing.T) {
	ts := newTestServer(t)
	ts.verifier.SetStock("b1", 1)

	rec := ts.do(t, http.MethodPost, "/api/cart/u1/add", `{"bookId":"b1","quantity":2,"price":9.99}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "out_of_stock", decodeError(t, rec).Code)
	assert.False(t, ts.mr.Exists("cart:u1"))
}

func TestAddItem_BadRequests(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed json", `{"bookId":`},
		{"zero quantity", `{"bookId":"b1","quantity":0}`},
		{"missing book", `{"quantity":1}`},
		{"negative price", `{"bookId":"b1","quantity":1,"price":-2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/cart/u1/add", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
		})
	}
	assert.Zero(t, ts.verifier.Calls())
}

func TestAddItem_StockServiceDown(t *testing.T) {
	ts := newTestServer(t)
	ts.verifier.FailWith(errors.New("connection refused"))

	rec := ts.do(t, http.MethodPost, "/api/cart/u1/add", `{"bookId":"b1","quantity":1}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "stock_service_unavailable", decodeError(t, rec).Code)
}

func TestRemoveItem(t *testing.T) {
	ts := newTestServer(t)
	ts.verifier.SetStock("b1", 5)
	ts.verifier.SetStock("b2", 5)
	ts.do(t, http.MethodPost, "/api/cart/u1/add", `{"bookId":"b1","quantity":1}`)
	ts.do(t, http.MethodPost, "/api/cart/u1/add", `{"bookId":"b2","quantity":1}`)

	rec := ts.do(t, http.MethodDelete, "/api/cart/u1/remove/b1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeCart(t, rec)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "b2", cart.Items[0].BookID)
}

func TestRemoveItem_Absent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodDelete, "/api/cart/u1/remove/nope", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec).Items)
}

func TestClearCart(t *testing.T) {
	ts := newTestServer(t)
	ts.verifier.SetStock("b1", 5)
	ts.do(t, http.MethodPost, "/api/cart/u1/add", `{"bookId":"b1","quantity":1}`)

	rec := ts.do(t, http.MethodDelete, "/api/cart/u1/clear", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.False(t, ts.mr.Exists("cart:u1"))
}

func TestCheckout_Success(t *testing.T) {
	ts := newTestServer(t)
	ts.verifier.SetStock("b1", 5)
	ts.do(t, http.MethodPost, "/api/cart/u1/add", `{"bookId":"b1","quantity":2,"price":9.99}`)

	rec := ts.do(t, http.MethodPost, "/api/cart/u1/checkout", "", "Idempotency-Key", "key-1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK-123", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.False(t, ts.mr.Exists("cart:u1"))

	submitted := ts.submitter.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, "key-1", submitted[0].IdempotencyKey)
}

func TestCheckout_EmptyCart(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/cart/u1/checkout", "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "empty_cart", decodeError(t, rec).Code)
	assert.Empty(t, ts.submitter.Submitted())
}

func TestCheckout_Rejected(t *testing.T) {
	ts := newTestServer(t)
	ts.verifier.SetStock("b1", 5)
	ts.do(t, http.MethodPost, "/api/cart/u1/add", `{"bookId":"b1","quantity":1}`)
	ts.submitter.Respond(domain.OrderOutcome{Status: domain.OrderStatusFailure, Message: "declined"}, nil)

	rec := ts.do(t, http.MethodPost, "/api/cart/u1/checkout", "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "order_rejected", resp.Code)
	assert.Equal(t, "order failed: declined", resp.Error)
	assert.True(t, ts.mr.Exists("cart:u1"))
}

func TestCheckout_OrderServiceDown(t *testing.T) {
	ts := newTestServer(t)
	ts.verifier.SetStock("b1", 5)
	ts.do(t, http.MethodPost, "/api/cart/u1/add", `{"bookId":"b1","quantity":1}`)
	ts.submitter.Respond(domain.OrderOutcome{}, errors.New("connection refused"))

	rec := ts.do(t, http.MethodPost, "/api/cart/u1/checkout", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "order_service_unavailable", decodeError(t, rec).Code)
	assert.True(t, ts.mr.Exists("cart:u1"))
}

func TestStoreDown(t *testing.T) {
	ts := newTestServer(t)
	ts.mr.SetError("ERR store down")

	rec := ts.do(t, http.MethodGet, "/api/cart/u1", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", decodeError(t, rec).Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","store":"ok"}`, rec.Body.String())

	ts.mr.SetError("ERR store down")
	rec = ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDEcho(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "", RequestIDHeader, "req-42")
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	rec = ts.do(t, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestErrorStatus_RequestDeadlineWins(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	status, code := errorStatus(ctx, domain.ErrVerifierUnreachable)

	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, "timeout", code)
}

func TestErrorStatus_Unknown(t *testing.T) {
	status, code := errorStatus(context.Background(), errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", code)
}

type blockingCart struct {
	CartAPI
}

func (blockingCart) GetCart(ctx context.Context, _ string) (domain.Cart, error) {
	<-ctx.Done()
	return domain.Cart{}, fmt.Errorf("%w: load: %w", domain.ErrStoreUnavailable, ctx.Err())
}

type headerCounter struct {
	*httptest.ResponseRecorder
	writeHeaders int
}

func (h *headerCounter) WriteHeader(code int) {
	h.writeHeaders++
	h.ResponseRecorder.WriteHeader(code)
}

func TestRequestTimeout_SingleErrorResponse(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	handler := NewRouter(NewCartHandler(blockingCart{}, nil), store.NewRedisStore(client, 0), RouterConfig{
		RequestTimeout: 20 * time.Millisecond,
		Metrics:        http.NotFoundHandler(),
	}, nil)

	rec := &headerCounter{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart/u1", nil))

	assert.Equal(t, 1, rec.writeHeaders)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	dec := json.NewDecoder(rec.Body)
	var resp ErrorResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "timeout", resp.Code)
	assert.False(t, dec.More(), "nothing may follow the error body")
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := TimeoutMiddleware(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}
