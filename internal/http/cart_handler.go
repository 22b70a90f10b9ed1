package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/fjod/go_cart/cloudshelf-cart/internal/domain"
	"github.com/go-chi/chi/v5"
)

const maxRequestBodySize = 1 << 20 // 1MB

// CartAPI is the part of the cart service the handlers drive.
type CartAPI interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	AddItem(ctx context.Context, userID string, item domain.CartItem) (domain.Cart, error)
	RemoveItem(ctx context.Context, userID, bookID string) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
	Checkout(ctx context.Context, userID, idempotencyKey string) (string, error)
}

type CartHandler struct {
	cart CartAPI
	log  *slog.Logger
}

func NewCartHandler(cart CartAPI, log *slog.Logger) *CartHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CartHandler{
		cart: cart,
		log:  log.With("component", "cart-handler"),
	}
}

type AddItemRequestDTO struct {
	BookID   string  `json:"bookId"`
	Title    string  `json:"title"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *CartHandler) Routes(r chi.Router) {
	r.Route("/api/cart/{userId}", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/add", h.AddItem)
		r.Delete("/remove/{bookId}", h.RemoveItem)
		r.Delete("/clear", h.ClearCart)
		r.Post("/checkout", h.Checkout)
	})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.cart.GetCart(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid_request", "request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	cart, err := h.cart.AddItem(r.Context(), chi.URLParam(r, "userId"), domain.CartItem{
		BookID:   req.BookID,
		Title:    req.Title,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.cart.RemoveItem(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "bookId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.ClearCart(r.Context(), chi.URLParam(r, "userId")); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout answers with the order service's message as plain text.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	msg, err := h.cart.Checkout(r.Context(), chi.URLParam(r, "userId"), r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, msg); err != nil {
		h.log.ErrorContext(r.Context(), "failed to write checkout response", "error", err)
	}
}

func (h *CartHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(r.Context(), err)
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed",
			"request_id", getRequestID(r.Context()), "path", r.URL.Path, "code", code, "error", err)
	}
	respondError(w, status, code, err.Error())
}

// errorStatus maps an error kind to an HTTP status and error code. A deadline
// on the request context itself wins over the dependency that hit it.
func errorStatus(ctx context.Context, err error) (int, string) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "timeout"
	}

	var oos *domain.OutOfStockError
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &oos):
		return http.StatusConflict, "out_of_stock"
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusUnprocessableEntity, "empty_cart"
	case errors.Is(err, domain.ErrOrderRejected):
		return http.StatusUnprocessableEntity, "order_rejected"
	case errors.Is(err, domain.ErrVerifierUnreachable):
		return http.StatusServiceUnavailable, "stock_service_unavailable"
	case errors.Is(err, domain.ErrSubmitterUnreachable):
		return http.StatusServiceUnavailable, "order_service_unavailable"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
