package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tokshop/api/internal/database"
	"github.com/tokshop/api/internal/middleware"
	"github.com/tokshop/api/internal/money"
	"github.com/tokshop/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

// OrderLifecycler drives status changes on existing orders.
// Satisfied by *service.LifecycleManager.
type OrderLifecycler interface {
	Confirm(ctx context.Context, orderID uuid.UUID, action string) (database.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, next string) (database.Order, error)
	ApplyPaymentUpdate(ctx context.Context, orderID uuid.UUID, paymentStatus string) (database.Order, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	CountOrders(ctx context.Context, arg database.ListOrdersParams) (int64, error)
	ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]database.OrderLine, error)
}

// EventBroadcaster pushes order events to the staff feed. Satisfied by
// *ws.Hub; broadcasting is best-effort and never fails a request.
type EventBroadcaster interface {
	BroadcastJSON(eventType string, payload interface{})
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc       OrderServicer
	lifecycle OrderLifecycler
	store     OrderStore
	events    EventBroadcaster
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, lifecycle OrderLifecycler, store OrderStore, events EventBroadcaster) *OrderHandler {
	return &OrderHandler{svc: svc, lifecycle: lifecycle, store: store, events: events}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.Create)
	r.Get("/orders", h.List)
	r.Get("/orders/{id}", h.Get)
	r.Post("/orders/{id}/confirm", h.Confirm)
	r.Patch("/orders/{id}/status", h.UpdateStatus)
	r.Patch("/orders/{id}/payment", h.UpdatePayment)
}

// --- Request / Response types ---

// createOrderLineRequest accepts both the current field names and the legacy
// Spanish ones still sent by older storefront builds. The adapter below
// coalesces them; the service layer only ever sees the normalized shape.
type createOrderLineRequest struct {
	ProductID       string                    `json:"product_id"`
	LegacyProductID string                    `json:"productId"`
	Title           string                    `json:"title"`
	LegacyTitle     string                    `json:"titulo"`
	Sku             string                    `json:"sku"`
	UnitPrice       *decimal.Decimal          `json:"unit_price"`
	LegacyPrice     *decimal.Decimal          `json:"precio"`
	Quantity        int32                     `json:"quantity"`
	LegacyQuantity  int32                     `json:"cantidad"`
	Variant         *createOrderLineVariant   `json:"variant"`
}

type createOrderLineVariant struct {
	Sku   string            `json:"sku"`
	Attrs map[string]string `json:"attrs"`
}

type customerRequest struct {
	Name    string                  `json:"name"`
	Email   string                  `json:"email"`
	Phone   string                  `json:"phone"`
	DocID   string                  `json:"doc_id"`
	Address *customerAddressRequest `json:"shipping_address"`
}

type customerAddressRequest struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
	City  string `json:"city"`
	State string `json:"state"`
	Zip   string `json:"zip"`
}

type createOrderWireRequest struct {
	Lines               []createOrderLineRequest `json:"lines"`
	LegacyLines         []createOrderLineRequest `json:"productos"`
	PaymentMethod       string                   `json:"payment_method"`
	LegacyPaymentMethod string                   `json:"metodoPago"`
	CreatedBy           string                   `json:"created_by"`
	LegacySeller        string                   `json:"vendedor"`
	DeclaredTotal       *decimal.Decimal         `json:"total"`
	Tags                []string                 `json:"tags"`
	DiscountPercent     *int64                   `json:"discount_percent"`
	LegacyDiscount      *int64                   `json:"descuento"`
	Customer            *customerRequest         `json:"customer"`
	Shipping            *decimal.Decimal         `json:"shipping_total"`
	Tax                 *decimal.Decimal         `json:"tax_total"`
	Discount            *decimal.Decimal         `json:"discount_total"`
	Notes               string                   `json:"notes"`
}

type confirmRequest struct {
	Action string `json:"action"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updatePaymentRequest struct {
	PaymentStatus string `json:"payment_status"`
}

type orderLineResponse struct {
	ID           uuid.UUID         `json:"id"`
	ProductID    uuid.UUID         `json:"product_id"`
	Title        string            `json:"title"`
	Sku          *string           `json:"sku"`
	UnitPrice    string            `json:"unit_price"`
	Quantity     int32             `json:"quantity"`
	VariantSku   *string           `json:"variant_sku"`
	VariantAttrs map[string]string `json:"variant_attrs,omitempty"`
	Subtotal     string            `json:"subtotal"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	OrderNumber   string              `json:"order_number"`
	Channel       string              `json:"channel"`
	Status        string              `json:"status"`
	ItemsTotal    string              `json:"items_total"`
	DiscountTotal string              `json:"discount_total"`
	ShippingTotal string              `json:"shipping_total"`
	TaxTotal      string              `json:"tax_total"`
	GrandTotal    string              `json:"grand_total"`
	Currency      string              `json:"currency"`
	Customer      *database.Customer  `json:"customer,omitempty"`
	PaymentMethod string              `json:"payment_method"`
	PaymentStatus string              `json:"payment_status"`
	PaidAt        *time.Time          `json:"paid_at"`
	Notes         *string             `json:"notes"`
	CreatedBy     string              `json:"created_by"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Lines         []orderLineResponse `json:"lines,omitempty"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func toOrderLineResponse(l database.OrderLine) orderLineResponse {
	resp := orderLineResponse{
		ID:           l.ID,
		ProductID:    l.ProductID,
		Title:        l.Title,
		UnitPrice:    money.Format(l.UnitPrice),
		Quantity:     l.Quantity,
		VariantAttrs: l.VariantAttrs,
		Subtotal:     money.Format(l.Subtotal),
	}
	if l.Sku.Valid {
		resp.Sku = &l.Sku.String
	}
	if l.VariantSku.Valid {
		resp.VariantSku = &l.VariantSku.String
	}
	return resp
}

func toOrderResponse(o database.Order, lines []database.OrderLine) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Channel:       o.Channel,
		Status:        o.Status,
		ItemsTotal:    money.Format(o.ItemsTotal),
		DiscountTotal: money.Format(o.DiscountTotal),
		ShippingTotal: money.Format(o.ShippingTotal),
		TaxTotal:      money.Format(o.TaxTotal),
		GrandTotal:    money.Format(o.GrandTotal),
		Currency:      o.Currency,
		Customer:      o.Customer,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		CreatedBy:     o.CreatedBy,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.PaidAt.Valid {
		resp.PaidAt = &o.PaidAt.Time
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, toOrderLineResponse(l))
	}
	return resp
}

// --- Wire adapter helpers ---

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func toCartLines(wire []createOrderLineRequest) ([]service.CartLine, error) {
	lines := make([]service.CartLine, len(wire))
	for i, l := range wire {
		qty := l.Quantity
		if qty == 0 {
			qty = l.LegacyQuantity
		}

		var unitPrice *int64
		price := l.UnitPrice
		if price == nil {
			price = l.LegacyPrice
		}
		if price != nil {
			v, err := money.FromDecimal(*price)
			if err != nil {
				return nil, err
			}
			unitPrice = &v
		}

		line := service.CartLine{
			ProductID: firstNonEmpty(l.ProductID, l.LegacyProductID),
			Title:     firstNonEmpty(l.Title, l.LegacyTitle),
			Sku:       l.Sku,
			UnitPrice: unitPrice,
			Quantity:  qty,
		}
		if l.Variant != nil {
			line.Variant = &service.CartVariant{Sku: l.Variant.Sku, Attrs: l.Variant.Attrs}
		}
		lines[i] = line
	}
	return lines, nil
}

func toCustomer(c *customerRequest) *database.Customer {
	if c == nil {
		return nil
	}
	cust := &database.Customer{
		Name:  c.Name,
		Email: c.Email,
		Phone: c.Phone,
		DocID: c.DocID,
	}
	if c.Address != nil {
		cust.Address = &database.CustomerAddress{
			Line1: c.Address.Line1,
			Line2: c.Address.Line2,
			City:  c.Address.City,
			State: c.Address.State,
			Zip:   c.Address.Zip,
		}
	}
	return cust
}

func optionalAmount(d *decimal.Decimal) (int64, error) {
	if d == nil {
		return 0, nil
	}
	return money.FromDecimal(*d)
}

// isValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyCart) ||
		errors.Is(err, service.ErrMissingPaymentMethod) ||
		errors.Is(err, service.ErrMissingCreator) ||
		errors.Is(err, service.ErrMissingTotal) ||
		errors.Is(err, service.ErrInvalidDiscount) ||
		errors.Is(err, service.ErrLineNoProduct) ||
		errors.Is(err, service.ErrInvalidProduct) ||
		errors.Is(err, service.ErrInvalidQuantity)
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderWireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	wireLines := req.Lines
	if len(wireLines) == 0 {
		wireLines = req.LegacyLines
	}

	lines, err := toCartLines(wireLines)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line price"})
		return
	}

	createdBy := firstNonEmpty(req.CreatedBy, req.LegacySeller)
	if createdBy == "" {
		// Staff-created orders fall back to the authenticated user.
		if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
			createdBy = claims.FullName
		}
	}

	var declaredTotal *int64
	if req.DeclaredTotal != nil {
		v, err := money.FromDecimal(*req.DeclaredTotal)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid total"})
			return
		}
		declaredTotal = &v
	}

	discountPercent := int64(0)
	if req.DiscountPercent != nil {
		discountPercent = *req.DiscountPercent
	} else if req.LegacyDiscount != nil {
		discountPercent = *req.LegacyDiscount
	}

	shipping, err := optionalAmount(req.Shipping)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid shipping_total"})
		return
	}
	tax, err := optionalAmount(req.Tax)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tax_total"})
		return
	}
	discount, err := optionalAmount(req.Discount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid discount_total"})
		return
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		Lines:           lines,
		PaymentMethod:   firstNonEmpty(req.PaymentMethod, req.LegacyPaymentMethod),
		CreatedBy:       createdBy,
		DeclaredTotal:   declaredTotal,
		Tags:            req.Tags,
		DiscountPercent: discountPercent,
		Customer:        toCustomer(req.Customer),
		Shipping:        shipping,
		Tax:             tax,
		Discount:        discount,
		Notes:           req.Notes,
	})
	if err != nil {
		if isValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if errors.Is(err, service.ErrTotalMismatch) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: create order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := toOrderResponse(result.Order, result.Lines)
	h.events.BroadcastJSON("order.created", resp)

	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListOrdersParams{
		Channel: r.URL.Query().Get("channel"),
		Status:  r.URL.Query().Get("status"),
		Query:   r.URL.Query().Get("q"),
		Limit:   int32(limit),
		Offset:  int32(offset),
	}

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date format, use YYYY-MM-DD"})
			return
		}
		params.From = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date format, use YYYY-MM-DD"})
			return
		}
		// Inclusive through the end of the day.
		params.To = pgtype.Timestamptz{Time: t.Add(24*time.Hour - time.Nanosecond), Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	total, err := h.store.CountOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: count orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o, nil)
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	lines, err := h.store.ListOrderLines(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order lines: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, lines))
}

// Confirm handles POST /orders/{id}/confirm: "sold" marks the order paid,
// "not-sold" cancels it. Repeats of the same action are no-ops.
func (h *OrderHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.lifecycle.Confirm(r.Context(), orderID, req.Action)
	if err != nil {
		h.writeLifecycleError(w, err, "confirm order")
		return
	}

	resp := toOrderResponse(order, nil)
	h.events.BroadcastJSON("order.status", resp)

	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	order, err := h.lifecycle.Transition(r.Context(), orderID, req.Status)
	if err != nil {
		h.writeLifecycleError(w, err, "update order status")
		return
	}

	resp := toOrderResponse(order, nil)
	h.events.BroadcastJSON("order.status", resp)

	writeJSON(w, http.StatusOK, resp)
}

// UpdatePayment handles PATCH /orders/{id}/payment. Payment-provider status
// updates drive the same lifecycle paths as staff confirmation.
func (h *OrderHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.PaymentStatus == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payment_status is required"})
		return
	}

	order, err := h.lifecycle.ApplyPaymentUpdate(r.Context(), orderID, req.PaymentStatus)
	if err != nil {
		h.writeLifecycleError(w, err, "update order payment")
		return
	}

	resp := toOrderResponse(order, nil)
	h.events.BroadcastJSON("order.status", resp)

	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) writeLifecycleError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrInvalidAction):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrStatusConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
