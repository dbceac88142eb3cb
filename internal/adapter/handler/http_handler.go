package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shop-cart/internal/core/domain"
	"github.com/rl1809/shop-cart/internal/core/service"
	"github.com/rl1809/shop-cart/internal/port"
)

// IdentityResolver extracts the caller's user id from a request.
type IdentityResolver interface {
	UserID(r *http.Request) (string, error)
}

var errUnauthenticated = errors.New("missing user identity")

// HeaderIdentity trusts a header set by an upstream auth proxy.
type HeaderIdentity struct {
	Header string
}

func (h HeaderIdentity) UserID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(h.Header))
	if id == "" {
		return "", errUnauthenticated
	}
	return id, nil
}

type HTTPHandler struct {
	carts    *service.CartService
	stock    *service.StockService
	products port.ProductRepository
	identity IdentityResolver
	logger   *zap.Logger
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

type stockRequest struct {
	RequestID string `json:"requestId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
}

type discountRequest struct {
	Percentage decimal.Decimal `json:"percentage"`
	StartTime  *time.Time      `json:"startDate"`
	EndTime    *time.Time      `json:"endDate"`
}

type variantRequest struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

type productRequest struct {
	Name      string           `json:"name"`
	BasePrice decimal.Decimal  `json:"price"`
	Discount  *discountRequest `json:"discount"`
	Variants  []variantRequest `json:"sizes"`
	Stock     *int             `json:"totalStock"`
	IsActive  *bool            `json:"isActive"`
}

type cartLineResponse struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"productId"`
	Name            string    `json:"name,omitempty"`
	Quantity        int       `json:"quantity"`
	AddedAt         time.Time `json:"addedAt"`
	Price           string    `json:"price,omitempty"`
	DiscountedPrice string    `json:"discountedPrice,omitempty"`
	ItemTotal       string    `json:"itemTotal,omitempty"`
	StockStatus     string    `json:"stockStatus,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

type cartResponse struct {
	Items       []cartLineResponse `json:"items"`
	Unavailable []cartLineResponse `json:"unavailable"`
	Summary     domain.CartSummary `json:"summary"`
}

func NewHTTPHandler(carts *service.CartService, stock *service.StockService, products port.ProductRepository, identity IdentityResolver, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		carts:    carts,
		stock:    stock,
		products: products,
		identity: identity,
		logger:   logger,
	}
}

// RegisterRoutes registers all routes on the provided router
func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	cart := r.PathPrefix("/api/cart").Subrouter()
	cart.HandleFunc("", h.GetCart).Methods(http.MethodGet)
	cart.HandleFunc("/add", h.AddToCart).Methods(http.MethodPost)
	cart.HandleFunc("/update/{itemId}", h.UpdateCartItem).Methods(http.MethodPut)
	cart.HandleFunc("/remove/{itemId}", h.RemoveCartItem).Methods(http.MethodDelete)
	cart.HandleFunc("/clear", h.ClearCart).Methods(http.MethodDelete)
	cart.HandleFunc("/count", h.GetCartCount).Methods(http.MethodGet)

	inventory := r.PathPrefix("/api/inventory").Subrouter()
	inventory.HandleFunc("/{productId}", h.GetStock).Methods(http.MethodGet)
	inventory.HandleFunc("/{productId}/decrement", h.DecrementStock).Methods(http.MethodPost)
	inventory.HandleFunc("/{productId}/restock", h.RestockProduct).Methods(http.MethodPost)

	r.HandleFunc("/api/admin/products/{productId}", h.SaveProduct).Methods(http.MethodPut)
}

// Router wires the routes behind the request id and logging middleware.
func (h *HTTPHandler) Router() http.Handler {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	r.Use(WithRequestID, WithLogging(h.logger))
	return r
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := cartResponse{
		Items:       make([]cartLineResponse, 0, len(view.Lines)),
		Unavailable: make([]cartLineResponse, 0, len(view.Unavailable)),
		Summary:     view.Summary(),
	}
	for _, line := range view.Lines {
		resp.Items = append(resp.Items, toLineResponse(line))
	}
	for _, line := range view.Unavailable {
		resp.Unavailable = append(resp.Unavailable, toLineResponse(line))
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: resp})
}

func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	result, err := h.carts.AddToCart(r.Context(), userID, req.ProductID, quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Item added to cart successfully",
		Data: map[string]any{
			"cartItemCount": result.CartItemCount,
			"cart":          result.Entries,
		},
	})
}

func (h *HTTPHandler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req updateCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "Valid quantity is required"})
		return
	}

	if err := h.carts.UpdateCartItem(r.Context(), userID, mux.Vars(r)["itemId"], *req.Quantity); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Cart updated successfully"})
}

func (h *HTTPHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.carts.RemoveCartItem(r.Context(), userID, mux.Vars(r)["itemId"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Item removed from cart successfully"})
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Cart cleared successfully"})
}

func (h *HTTPHandler) GetCartCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	count, err := h.carts.GetCartCount(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]int{"count": count}})
}

func (h *HTTPHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["productId"]
	size := r.URL.Query().Get("size")

	inStock, err := h.stock.IsInStock(r.Context(), productID, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]any{
			"productId": productID,
			"size":      size,
			"inStock":   inStock,
		},
	})
}

func (h *HTTPHandler) DecrementStock(w http.ResponseWriter, r *http.Request) {
	h.moveStock(w, r, domain.MovementDecrement)
}

func (h *HTTPHandler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	h.moveStock(w, r, domain.MovementIncrement)
}

func (h *HTTPHandler) moveStock(w http.ResponseWriter, r *http.Request, kind domain.MovementKind) {
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}

	productID := mux.Vars(r)["productId"]
	var err error
	if kind == domain.MovementDecrement {
		err = h.stock.Decrement(r.Context(), req.RequestID, productID, req.Quantity, req.Size)
	} else {
		err = h.stock.Restock(r.Context(), req.RequestID, productID, req.Quantity, req.Size)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "stock updated"})
}

func (h *HTTPHandler) SaveProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	p := domain.Product{
		ID:        mux.Vars(r)["productId"],
		Name:      req.Name,
		BasePrice: req.BasePrice,
		IsActive:  req.IsActive == nil || *req.IsActive,
	}
	if req.Discount != nil {
		p.Discount = &domain.Discount{
			Percentage: req.Discount.Percentage,
			StartTime:  req.Discount.StartTime,
			EndTime:    req.Discount.EndTime,
		}
	}
	for _, v := range req.Variants {
		p.Variants = append(p.Variants, domain.Variant{Size: v.Size, Stock: v.Stock})
		if req.Stock == nil {
			p.AggregateStock += v.Stock
		}
	}
	if req.Stock != nil {
		p.AggregateStock = *req.Stock
	}

	if err := h.products.SaveProduct(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "product saved"})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := h.identity.UserID(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, Response{Message: err.Error()})
		return "", false
	}
	return id, true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := httpStatus(kind)
	message := err.Error()
	if kind == domain.KindInternal {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		message = "internal error"
	}
	writeJSON(w, status, Response{Message: message})
}

func httpStatus(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindInsufficientStock, domain.KindConflict:
		return http.StatusConflict
	case domain.KindProductInactive:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func toLineResponse(line domain.CartLine) cartLineResponse {
	resp := cartLineResponse{
		ID:          line.EntryID,
		ProductID:   line.ProductID,
		Name:        line.Name,
		Quantity:    line.Quantity,
		AddedAt:     line.AddedAt,
		StockStatus: line.StockStatus,
		Reason:      line.Reason,
	}
	if line.Reason == "" {
		resp.Price = line.BasePrice.StringFixed(2)
		resp.DiscountedPrice = line.UnitPrice.StringFixed(2)
		resp.ItemTotal = line.LineTotal.StringFixed(2)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
