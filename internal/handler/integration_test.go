//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tokshop/api/internal/config"
	"github.com/tokshop/api/internal/database"
	"github.com/tokshop/api/internal/router"
	"github.com/tokshop/api/internal/ws"
	"golang.org/x/crypto/bcrypt"
)

// TestIntegrationFlow exercises the full order-acceptance lifecycle against a
// real PostgreSQL database: catalog setup, POS and online checkout, stock
// movement, confirmation, and the cash-close report, all wired through the
// router.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:          "8081",
		DatabaseURL:   connStr,
		JWTSecret:     "integration-test-secret",
		Currency:      "ARS",
		POSPrefix:     "TOK",
		OnlinePrefix:  "WEB",
		POSTagMarkers: []string{"local"},
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit — Hub has no shutdown
	// mechanism. Acceptable for tests.
	go hub.Run()

	r := router.New(cfg, queries, pool, hub)
	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Bootstrap an admin user (manual DB insert) ---
	adminID := createAdminUser(t, ctx, pool)

	// --- 2. Login ---
	token := login(t, server, "admin@test.com", "password123")

	// --- 3. Create a product with an explicit variant ---
	productResp := createTestProduct(t, server, token)
	productID := uuid.MustParse(productResp["id"].(string))
	if got := productResp["list_price"].(string); got != "2550.00" {
		t.Fatalf("product list_price: got %s, want 2550.00", got)
	}
	variants := productResp["variants"].([]interface{})
	require.Len(t, variants, 1)
	variantSku := variants[0].(map[string]interface{})["sku"].(string)

	// --- 4. POS checkout: 2 units, declared total matches recomputed total ---
	posOrder := createTestOrder(t, server, token, productID, variantSku, 2, "5100.00", []string{"local"})
	posOrderID := uuid.MustParse(posOrder["id"].(string))
	if got := posOrder["channel"].(string); got != "pos" {
		t.Fatalf("pos order channel: got %s, want pos", got)
	}
	if got := posOrder["order_number"].(string); got != "TOK-000001" {
		t.Fatalf("pos order number: got %s, want TOK-000001", got)
	}
	if got := posOrder["grand_total"].(string); got != "5100.00" {
		t.Fatalf("pos order grand_total: got %s, want 5100.00", got)
	}
	// POS orders auto-confirm to paid after commit.
	if got := posOrder["status"].(string); got != "paid" {
		t.Fatalf("pos order status: got %s, want paid", got)
	}
	require.NotNil(t, posOrder["paid_at"], "pos order must carry paid_at")

	// Stock moved from 3 to 1.
	if got := variantStock(t, ctx, pool, productID, variantSku); got != 1 {
		t.Fatalf("stock after pos order: got %d, want 1", got)
	}

	// --- 5. Oversell: a second 2-unit order drives stock negative ---
	oversell := createTestOrder(t, server, token, productID, variantSku, 2, "5100.00", []string{"local"})
	if got := oversell["order_number"].(string); got != "TOK-000002" {
		t.Fatalf("oversell order number: got %s, want TOK-000002", got)
	}
	if got := variantStock(t, ctx, pool, productID, variantSku); got != -1 {
		t.Fatalf("stock after oversell: got %d, want -1", got)
	}

	// --- 6. Online checkout stays in created/pending ---
	webOrder := createTestOrder(t, server, token, productID, variantSku, 1, "2550.00", []string{"tienda"})
	webOrderID := uuid.MustParse(webOrder["id"].(string))
	if got := webOrder["channel"].(string); got != "online" {
		t.Fatalf("web order channel: got %s, want online", got)
	}
	if got := webOrder["order_number"].(string); got != "WEB-000001" {
		t.Fatalf("web order number: got %s, want WEB-000001", got)
	}
	if got := webOrder["status"].(string); got != "created" {
		t.Fatalf("web order status: got %s, want created", got)
	}
	if got := webOrder["payment_status"].(string); got != "pending" {
		t.Fatalf("web order payment_status: got %s, want pending", got)
	}

	// --- 7. Staff confirms the online sale as sold ---
	confirmed := confirmOrder(t, server, token, webOrderID, "sold")
	if got := confirmed["status"].(string); got != "paid" {
		t.Fatalf("confirmed status: got %s, want paid", got)
	}
	firstPaidAt := confirmed["paid_at"].(string)

	// Repeating the same action is a no-op that preserves paid_at.
	repeat := confirmOrder(t, server, token, webOrderID, "sold")
	if got := repeat["paid_at"].(string); got != firstPaidAt {
		t.Fatalf("paid_at changed on repeated confirm: %s -> %s", firstPaidAt, got)
	}

	// --- 8. A second online order gets cancelled via not-sold ---
	webOrder2 := createTestOrder(t, server, token, productID, variantSku, 1, "2550.00", nil)
	webOrder2ID := uuid.MustParse(webOrder2["id"].(string))
	cancelled := confirmOrder(t, server, token, webOrder2ID, "not-sold")
	if got := cancelled["status"].(string); got != "cancelled" {
		t.Fatalf("cancelled status: got %s, want cancelled", got)
	}

	// Confirming a cancelled order as sold is forbidden.
	mustFailConfirm(t, server, token, webOrder2ID, "sold", http.StatusConflict)

	// --- 9. Fulfil the paid POS order through the status endpoint ---
	fulfilled := patchStatus(t, server, token, posOrderID, "fulfilled")
	if got := fulfilled["status"].(string); got != "fulfilled" {
		t.Fatalf("fulfilled status: got %s, want fulfilled", got)
	}

	// --- 10. Cash-close report covers today's paid+fulfilled POS orders ---
	report := httpGetJSON(t, server, "/reports/cash-close", token)
	if got := int(report["order_count"].(float64)); got != 2 {
		t.Fatalf("report order_count: got %d, want 2", got)
	}
	if got := report["gross_total"].(string); got != "10200.00" {
		t.Fatalf("report gross_total: got %s, want 10200.00", got)
	}

	t.Logf("Integration test passed: container=%s, admin=%s, product=%s, pos_order=%s, web_order=%s",
		pgContainer.GetContainerID(), adminID, productID, posOrderID, webOrderID)
}

// TestIntegrationSequenceConcurrency fires concurrent checkouts and verifies
// every order gets a unique number.
func TestIntegrationSequenceConcurrency(t *testing.T) {
	ctx := context.Background()

	_, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:          "8081",
		DatabaseURL:   connStr,
		JWTSecret:     "integration-test-secret",
		Currency:      "ARS",
		POSPrefix:     "TOK",
		OnlinePrefix:  "WEB",
		POSTagMarkers: []string{"local"},
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	go hub.Run()

	server := httptest.NewServer(router.New(cfg, queries, pool, hub))
	defer server.Close()

	createAdminUser(t, ctx, pool)
	token := login(t, server, "admin@test.com", "password123")

	productResp := createTestProduct(t, server, token)
	productID := uuid.MustParse(productResp["id"].(string))
	variantSku := productResp["variants"].([]interface{})[0].(map[string]interface{})["sku"].(string)

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := createTestOrder(t, server, token, productID, variantSku, 1, "2550.00", []string{"local"})
			mu.Lock()
			numbers[resp["order_number"].(string)] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, numbers, n, "every concurrent checkout must get a unique order number")
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("tokshop_test"),
		tcpostgres.WithUsername("tokshop"),
		tcpostgres.WithPassword("tokshop"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Path relative to this package directory; go test sets cwd here.
	m, err := migrate.NewWithDatabaseInstance(
		"file://../database/migrations",
		"postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createAdminUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var id uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO users (email, full_name, hashed_password, role)
		 VALUES ($1, $2, $3, 'admin')
		 RETURNING id`,
		"admin@test.com", "Test Admin", string(hashed),
	).Scan(&id)
	if err != nil {
		t.Fatalf("create admin user: %v", err)
	}
	return id
}

func variantStock(t *testing.T, ctx context.Context, pool *pgxpool.Pool, productID uuid.UUID, sku string) int64 {
	t.Helper()

	var stock int64
	err := pool.QueryRow(ctx,
		`SELECT stock FROM variants WHERE product_id = $1 AND sku = $2`,
		productID, sku,
	).Scan(&stock)
	if err != nil {
		t.Fatalf("read variant stock: %v", err)
	}
	return stock
}

// --- API call helpers ---

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()

	body := map[string]interface{}{
		"email":    email,
		"password": password,
	}
	resp := httpPostJSON(t, server, "/auth/login", body, "")
	token, ok := resp["token"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no token in response: %+v", resp)
	}
	return token
}

func createTestProduct(t *testing.T, server *httptest.Server, token string) map[string]interface{} {
	t.Helper()

	body := map[string]interface{}{
		"title":      "Remera Titanio",
		"brand":      "Bravia",
		"category":   "remeras",
		"list_price": "2550.00",
		"variants": []map[string]interface{}{
			{"sku": "BRA-REM-M", "stock": 3, "attrs": map[string]string{"size": "M"}},
		},
	}
	return httpPostJSON(t, server, "/products", body, token)
}

func createTestOrder(t *testing.T, server *httptest.Server, token string, productID uuid.UUID, variantSku string, qty int, total string, tags []string) map[string]interface{} {
	t.Helper()

	body := map[string]interface{}{
		"lines": []map[string]interface{}{
			{
				"product_id": productID.String(),
				"quantity":   qty,
				"variant":    map[string]interface{}{"sku": variantSku},
			},
		},
		"payment_method": "efectivo",
		"created_by":     "Test Admin",
		"total":          total,
	}
	if tags != nil {
		body["tags"] = tags
	}
	return httpPostJSON(t, server, "/orders", body, token)
}

func confirmOrder(t *testing.T, server *httptest.Server, token string, orderID uuid.UUID, action string) map[string]interface{} {
	t.Helper()

	body := map[string]interface{}{"action": action}
	return httpPostJSON(t, server, fmt.Sprintf("/orders/%s/confirm", orderID), body, token)
}

func mustFailConfirm(t *testing.T, server *httptest.Server, token string, orderID uuid.UUID, action string, wantStatus int) {
	t.Helper()

	b, _ := json.Marshal(map[string]interface{}{"action": action})
	req, err := http.NewRequest("POST", server.URL+fmt.Sprintf("/orders/%s/confirm", orderID), bytes.NewReader(b))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("confirm %s on resolved order: got status %d, want %d", action, resp.StatusCode, wantStatus)
	}
}

func patchStatus(t *testing.T, server *httptest.Server, token string, orderID uuid.UUID, status string) map[string]interface{} {
	t.Helper()

	b, err := json.Marshal(map[string]interface{}{"status": status})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest("PATCH", server.URL+fmt.Sprintf("/orders/%s/status", orderID), bytes.NewReader(b))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("PATCH status %s: status %d, body: %v", status, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

// --- HTTP helpers ---

func httpPostJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()

	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req, err := http.NewRequest("POST", server.URL+path, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("POST %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpGetJSON(t *testing.T, server *httptest.Server, path string, token string) map[string]interface{} {
	t.Helper()

	req, err := http.NewRequest("GET", server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("GET %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}
