package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tokshop/api/internal/database"
	"github.com/tokshop/api/internal/money"
)

// commissionPercent is the flat per-sale commission applied on the
// cash-close report.
const commissionPercent = 2

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportsStore interface {
	ListCashCloseOrders(ctx context.Context, arg database.ListCashCloseOrdersParams) ([]database.Order, error)
}

// ReportsHandler handles report endpoints.
type ReportsHandler struct {
	store ReportsStore
	loc   *time.Location
}

// NewReportsHandler creates a new ReportsHandler. The location anchors the
// report day boundaries; pass time.Local for the shop's server timezone.
func NewReportsHandler(store ReportsStore, loc *time.Location) *ReportsHandler {
	if loc == nil {
		loc = time.Local
	}
	return &ReportsHandler{store: store, loc: loc}
}

// RegisterRoutes registers report endpoints. Mounted behind the admin role
// check.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/reports/cash-close", h.CashClose)
}

// --- Response types ---

type cashCloseRowResponse struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	Time          string    `json:"time"`
	Seller        string    `json:"seller"`
	PaymentMethod string    `json:"payment_method"`
	Total         string    `json:"total"`
	Commission    string    `json:"commission"`
}

type cashCloseResponse struct {
	Date            string                 `json:"date"`
	OrderCount      int                    `json:"order_count"`
	GrossTotal      string                 `json:"gross_total"`
	CommissionTotal string                 `json:"commission_total"`
	NetTotal        string                 `json:"net_total"`
	Orders          []cashCloseRowResponse `json:"orders"`
}

// --- Handlers ---

// CashClose returns the in-store sales of one day with the per-sale
// commission broken out. Covers paid and fulfilled orders; cancelled and
// refunded ones never count.
func (h *ReportsHandler) CashClose(w http.ResponseWriter, r *http.Request) {
	day := time.Now().In(h.loc)
	if s := r.URL.Query().Get("date"); s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, h.loc)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date format, use YYYY-MM-DD"})
			return
		}
		day = t
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, h.loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)

	orders, err := h.store.ListCashCloseOrders(r.Context(), database.ListCashCloseOrdersParams{
		Start: start,
		End:   end,
	})
	if err != nil {
		log.Printf("ERROR: list cash-close orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	rows := make([]cashCloseRowResponse, len(orders))
	var gross, commissionTotal int64
	for i, o := range orders {
		commission := o.GrandTotal * commissionPercent / 100
		gross += o.GrandTotal
		commissionTotal += commission

		rows[i] = cashCloseRowResponse{
			OrderID:       o.ID,
			OrderNumber:   o.OrderNumber,
			Time:          o.CreatedAt.In(h.loc).Format("15:04"),
			Seller:        o.CreatedBy,
			PaymentMethod: o.PaymentMethod,
			Total:         money.Format(o.GrandTotal),
			Commission:    money.Format(commission),
		}
	}

	writeJSON(w, http.StatusOK, cashCloseResponse{
		Date:            start.Format("2006-01-02"),
		OrderCount:      len(rows),
		GrossTotal:      money.Format(gross),
		CommissionTotal: money.Format(commissionTotal),
		NetTotal:        money.Format(gross - commissionTotal),
		Orders:          rows,
	})
}
