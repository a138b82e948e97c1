package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tokshop/api/internal/database"
	"github.com/tokshop/api/internal/enum"
	"github.com/tokshop/api/internal/handler"
)

type mockReportsStore struct {
	listCashCloseFn func(ctx context.Context, arg database.ListCashCloseOrdersParams) ([]database.Order, error)
}

func (m *mockReportsStore) ListCashCloseOrders(ctx context.Context, arg database.ListCashCloseOrdersParams) ([]database.Order, error) {
	return m.listCashCloseFn(ctx, arg)
}

func newReportsRouter(store *mockReportsStore) *chi.Mux {
	h := handler.NewReportsHandler(store, time.UTC)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func cashOrder(number string, total int64, createdAt time.Time) database.Order {
	return database.Order{
		ID:            uuid.New(),
		OrderNumber:   number,
		Channel:       enum.ChannelPOS,
		Status:        enum.OrderStatusPaid,
		GrandTotal:    total,
		Currency:      "ARS",
		PaymentMethod: "cash",
		CreatedBy:     "Ana García",
		CreatedAt:     createdAt,
	}
}

func TestCashClose_Totals(t *testing.T) {
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	store := &mockReportsStore{}
	var captured database.ListCashCloseOrdersParams
	store.listCashCloseFn = func(_ context.Context, arg database.ListCashCloseOrdersParams) ([]database.Order, error) {
		captured = arg
		return []database.Order{
			cashOrder("TOK-000001", 460000, day.Add(10*time.Hour+30*time.Minute)),
			cashOrder("TOK-000002", 255000, day.Add(15*time.Hour+5*time.Minute)),
		}, nil
	}

	req := httptest.NewRequest("GET", "/reports/cash-close?date=2026-08-28", nil)
	rr := httptest.NewRecorder()
	newReportsRouter(store).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	if !captured.Start.Equal(day) {
		t.Errorf("range start: got %v, want %v", captured.Start, day)
	}
	if !captured.End.After(day.Add(23 * time.Hour)) {
		t.Errorf("range end %v does not cover the full day", captured.End)
	}

	resp := decodeResponse(t, rr)
	if resp["date"] != "2026-08-28" {
		t.Errorf("date: got %v", resp["date"])
	}
	if resp["order_count"] != float64(2) {
		t.Errorf("order_count: got %v, want 2", resp["order_count"])
	}
	// 4600 + 2550 = 7150 gross; 2% commission = 92 + 51 = 143; net 7007.
	if resp["gross_total"] != "7150.00" {
		t.Errorf("gross_total: got %v, want 7150.00", resp["gross_total"])
	}
	if resp["commission_total"] != "143.00" {
		t.Errorf("commission_total: got %v, want 143.00", resp["commission_total"])
	}
	if resp["net_total"] != "7007.00" {
		t.Errorf("net_total: got %v, want 7007.00", resp["net_total"])
	}

	orders, ok := resp["orders"].([]interface{})
	if !ok || len(orders) != 2 {
		t.Fatalf("expected 2 order rows, got %v", resp["orders"])
	}
	first := orders[0].(map[string]interface{})
	if first["time"] != "10:30" {
		t.Errorf("time: got %v, want 10:30", first["time"])
	}
	if first["commission"] != "92.00" {
		t.Errorf("commission: got %v, want 92.00", first["commission"])
	}
	if first["seller"] != "Ana García" {
		t.Errorf("seller: got %v", first["seller"])
	}
}

func TestCashClose_EmptyDay(t *testing.T) {
	store := &mockReportsStore{}
	store.listCashCloseFn = func(_ context.Context, _ database.ListCashCloseOrdersParams) ([]database.Order, error) {
		return nil, nil
	}

	req := httptest.NewRequest("GET", "/reports/cash-close?date=2026-08-01", nil)
	rr := httptest.NewRecorder()
	newReportsRouter(store).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	resp := decodeResponse(t, rr)
	if resp["order_count"] != float64(0) {
		t.Errorf("order_count: got %v, want 0", resp["order_count"])
	}
	if resp["gross_total"] != "0.00" {
		t.Errorf("gross_total: got %v, want 0.00", resp["gross_total"])
	}
}

func TestCashClose_InvalidDate(t *testing.T) {
	req := httptest.NewRequest("GET", "/reports/cash-close?date=28/08/2026", nil)
	rr := httptest.NewRecorder()
	newReportsRouter(&mockReportsStore{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
