// Package rest provides the HTTP handlers for the cart, checkout and
// order endpoints.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/armorline/storefront/internal/cart"
	"github.com/armorline/storefront/internal/catalog"
	"github.com/armorline/storefront/internal/checkout"
	ordererrors "github.com/armorline/storefront/internal/order/errors"
	"github.com/armorline/storefront/internal/order/service"
	"github.com/armorline/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader lets clients replay a checkout submission safely.
const IdempotencyKeyHeader = "Idempotency-Key"

type Handler struct {
	carts    *cart.Service
	catalog  catalog.Provider
	orders   service.OrderService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new Handler with the provided collaborators.
func NewHandler(carts *cart.Service, provider catalog.Provider, orders service.OrderService, logger *slog.Logger) *Handler {
	return &Handler{
		carts:    carts,
		catalog:  provider,
		orders:   orders,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the storefront.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Get("/watch", h.WatchCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Delete("/items/{productID}", h.RemoveItem)
			r.Post("/items/{productID}/decrement", h.DecrementItem)
		})
		r.Post("/checkout", h.Checkout)
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.FindOrdersByUserID)
			r.Get("/{id}", h.FindOrderByID)
		})
		r.Route("/admin/orders/{id}/status", func(r chi.Router) {
			r.Patch("/", h.UpdateStatus)
			r.Get("/choices", h.StatusChoices)
		})
	})
	r.Get("/healthz", h.HealthCheck)
}

// cartView is the cart joined against the catalog at read time.
// Lines whose product no longer exists are left out.
type cartView struct {
	Lines []cartLineView `json:"lines"`
	Total int64          `json:"total"`
}

type cartLineView struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int32  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

// ListProducts returns the full catalog for the storefront grid.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	products, err := h.catalog.List(r.Context())
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error listing products", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to load products")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, products)
}

// GetCart returns the acting identity's cart resolved against the catalog.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	shopperCart, err := h.carts.Get(r.Context(), h.identity(r))
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error loading cart", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to load cart")
		return
	}
	view, err := h.resolveCart(r, shopperCart)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error resolving cart against catalog", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to load cart")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

// WatchCart streams the acting identity's cart over server-sent events.
// The stream opens with the current snapshot and emits a new one
// whenever the cart changes: change-bus broadcasts deliver updates
// promptly, and the interval poll behind the mirror catches writes
// whose broadcast was missed.
func (h *Handler) WatchCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	flusher, ok := w.(http.Flusher)
	if !ok {
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	mirror := h.carts.Watch(h.identity(r))
	if err := mirror.Refresh(ctx); err != nil {
		mLogger.ErrorContext(ctx, "Error loading cart", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to load cart")
		return
	}
	// The initial load already lands in the first snapshot below.
	select {
	case <-mirror.Changed():
	default:
	}
	go func() {
		if err := mirror.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			mLogger.ErrorContext(ctx, "Cart mirror stopped", "error", err)
			cancel()
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := h.writeCartEvent(w, r, mirror.Lines()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mirror.Changed():
			if err := h.writeCartEvent(w, r, mirror.Lines()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) writeCartEvent(w http.ResponseWriter, r *http.Request, lines []cart.Line) error {
	view, err := h.resolveCart(r, &cart.Cart{Lines: lines})
	if err != nil {
		return err
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// AddItem increments the product's line quantity, inserting the line on first add.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		web.RespondError(w, mLogger, http.StatusBadRequest, "product_id is required")
		return
	}
	shopperCart, err := h.carts.Add(r.Context(), h.identity(r), req.ProductID)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error adding cart item", "product_id", req.ProductID, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to update cart")
		return
	}
	h.respondCart(w, r, mLogger, shopperCart)
}

// DecrementItem lowers the line's quantity, removing it at zero. A
// missing line is a no-op, never an error.
func (h *Handler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	productID := chi.URLParam(r, "productID")
	shopperCart, err := h.carts.Decrement(r.Context(), h.identity(r), productID)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error decrementing cart item", "product_id", productID, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to update cart")
		return
	}
	h.respondCart(w, r, mLogger, shopperCart)
}

// RemoveItem deletes the line outright.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	productID := chi.URLParam(r, "productID")
	shopperCart, err := h.carts.Remove(r.Context(), h.identity(r), productID)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error removing cart item", "product_id", productID, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to update cart")
		return
	}
	h.respondCart(w, r, mLogger, shopperCart)
}

// ClearCart empties the acting identity's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	if err := h.carts.Clear(r.Context(), h.identity(r)); err != nil {
		mLogger.ErrorContext(r.Context(), "Error clearing cart", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to clear cart")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusNoContent, nil)
}

// Checkout transforms the cart into a persisted order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req service.CheckoutDto
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyKeyHeader)
	if err := h.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errorResponse := make(map[string]string)
			for _, fieldErr := range validationErrors {
				errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
			web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
			return
		}
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}

	placed, err := h.orders.Checkout(r.Context(), req)
	if err != nil {
		status, message := checkoutError(err)
		if status >= http.StatusInternalServerError {
			mLogger.ErrorContext(r.Context(), "Checkout failed", "error", err)
		} else {
			mLogger.WarnContext(r.Context(), "Checkout rejected", "reason", message)
		}
		web.RespondError(w, mLogger, status, message)
		return
	}
	mLogger.InfoContext(r.Context(), "Order placed", slog.String("ID", placed.ID.String()))
	web.RespondJSON(w, mLogger, http.StatusCreated, placed)
}

// FindOrdersByUserID lists the acting user's orders, newest first.
func (h *Handler) FindOrdersByUserID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	userID, ok := h.requireUserID(w, r, mLogger)
	if !ok {
		return
	}
	offset, limit := pagination(r)
	list, err := h.orders.FindOrdersByUserID(r.Context(), userID, offset, limit)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving order list", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// FindOrderByID retrieves one of the acting user's orders.
func (h *Handler) FindOrderByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := h.parseOrderID(w, r, mLogger)
	if !ok {
		return
	}
	userID, ok := h.requireUserID(w, r, mLogger)
	if !ok {
		return
	}
	found, err := h.orders.FindByID(r.Context(), userID, id)
	if err != nil {
		switch {
		case errors.Is(err, ordererrors.ErrOrderNotFound):
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Order with ID %s not found", id))
		case errors.Is(err, ordererrors.ErrAccessDenied):
			web.RespondError(w, mLogger, http.StatusForbidden, fmt.Sprintf("Access denied to order with ID %s", id))
		default:
			mLogger.ErrorContext(r.Context(), "Error retrieving order", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve order with ID %s", id))
		}
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// UpdateStatus is the administrative write of both lifecycle fields.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := h.parseOrderID(w, r, mLogger)
	if !ok {
		return
	}
	var req service.StatusUpdateDto
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ID = id
	if err := h.validate.Struct(req); err != nil {
		web.RespondError(w, mLogger, http.StatusBadRequest, "status and payment_status are required")
		return
	}
	updated, err := h.orders.UpdateStatus(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ordererrors.ErrOrderNotFound):
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Order with ID %s not found", id))
		case errors.Is(err, ordererrors.ErrInvalidTransition):
			web.RespondError(w, mLogger, http.StatusConflict, err.Error())
		default:
			mLogger.ErrorContext(r.Context(), "Error updating order status", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to update order with ID %s", id))
		}
		return
	}
	mLogger.InfoContext(r.Context(), "Order status updated", slog.String("ID", updated.ID.String()))
	web.RespondJSON(w, mLogger, http.StatusOK, updated)
}

// StatusChoices lists the forward-only transitions the admin surface offers.
func (h *Handler) StatusChoices(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := h.parseOrderID(w, r, mLogger)
	if !ok {
		return
	}
	choices, err := h.orders.StatusChoices(r.Context(), id)
	if err != nil {
		if errors.Is(err, ordererrors.ErrOrderNotFound) {
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Order with ID %s not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error loading status choices", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to load status choices")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, choices)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// identity returns the acting identity token, empty for the anonymous bucket.
func (h *Handler) identity(r *http.Request) string {
	token, _ := web.UserIDFrom(r.Context())
	return token
}

func (h *Handler) requireUserID(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger) (uuid.UUID, bool) {
	token, ok := web.UserIDFrom(r.Context())
	if !ok || token == "" {
		web.RespondError(w, mLogger, http.StatusUnauthorized, "Unauthorized: Missing or invalid user ID")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(token)
	if err != nil {
		web.RespondError(w, mLogger, http.StatusBadRequest, fmt.Sprintf("Invalid user ID: %s", token))
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handler) parseOrderID(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		web.RespondError(w, mLogger, http.StatusBadRequest, fmt.Sprintf("Invalid ID: %s", raw))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, shopperCart *cart.Cart) {
	view, err := h.resolveCart(r, shopperCart)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error resolving cart against catalog", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to load cart")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

func (h *Handler) resolveCart(r *http.Request, shopperCart *cart.Cart) (*cartView, error) {
	ids := make([]string, 0, len(shopperCart.Lines))
	for _, line := range shopperCart.Lines {
		ids = append(ids, line.ProductID)
	}
	products, err := h.catalog.FindByIDs(r.Context(), ids)
	if err != nil {
		return nil, err
	}
	view := &cartView{Lines: []cartLineView{}}
	for _, line := range shopperCart.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}
		view.Lines = append(view.Lines, cartLineView{
			ProductID: line.ProductID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
			LineTotal: product.Price * int64(line.Quantity),
		})
	}
	view.Total = shopperCart.Total(catalog.Prices(products))
	return view, nil
}

// checkoutError maps builder and persistence errors to HTTP responses.
// Every failure yields a distinguishable, human-readable message.
func checkoutError(err error) (int, string) {
	switch {
	case errors.Is(err, checkout.ErrInvalidIdentity):
		return http.StatusUnauthorized, "Sign in with a valid account to place an order"
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest, "Your cart has no items available for checkout"
	case errors.Is(err, checkout.ErrMissingAddress):
		return http.StatusBadRequest, "A delivery address is required"
	case errors.Is(err, checkout.ErrTermsNotAccepted):
		return http.StatusBadRequest, "Please accept the terms and conditions"
	case errors.Is(err, checkout.ErrMissingPaymentReference):
		return http.StatusBadRequest, "A payment reference is required for the selected payment method"
	case errors.Is(err, checkout.ErrUnknownPaymentMethod):
		return http.StatusBadRequest, "Unknown payment method"
	case errors.Is(err, checkout.ErrOrderPersistenceFailure):
		return http.StatusInternalServerError, "The order could not be saved, please try again"
	default:
		return http.StatusInternalServerError, "An unexpected error occurred"
	}
}

// maxPageSize caps the order list page so a single request cannot pull
// a user's entire history in one transaction.
const maxPageSize = 100

func pagination(r *http.Request) (offset, limit int32) {
	offset, limit = 0, 20
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := parseInt32(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := parseInt32(v); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}
	return offset, limit
}

func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	return int32(v), err
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
