package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tokshop/api/internal/database"
	"github.com/tokshop/api/internal/enum"
	"github.com/tokshop/api/internal/money"
)

// ProductStore defines the database methods needed by product handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ProductStore interface {
	ListProducts(ctx context.Context, arg database.ListProductsParams) ([]database.Product, error)
	SearchProducts(ctx context.Context, query string, limit int32) ([]database.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (database.Product, error)
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	CreateVariant(ctx context.Context, arg database.CreateVariantParams) (database.Variant, error)
	ListVariantsByProducts(ctx context.Context, productIDs []uuid.UUID) ([]database.Variant, error)
}

// ProductHandler handles product catalog endpoints.
type ProductHandler struct {
	store    ProductStore
	currency string
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(store ProductStore, currency string) *ProductHandler {
	return &ProductHandler{store: store, currency: currency}
}

// RegisterRoutes registers read-only product endpoints on the given Chi router.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/products", h.List)
	r.Get("/products/search", h.Search)
	r.Get("/products/slug/{slug}", h.GetBySlug)
	r.Get("/products/{id}", h.Get)
}

// RegisterAdminRoutes registers mutating product endpoints. Mounted behind
// the admin role check.
func (h *ProductHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/products", h.Create)
	r.Put("/products/{id}", h.Update)
	r.Delete("/products/{id}", h.Delete)
}

// --- Request / Response types ---

type createVariantRequest struct {
	Sku      string            `json:"sku"`
	Stock    int64             `json:"stock"`
	Attrs    map[string]string `json:"attrs"`
	Position int32             `json:"position"`
}

type createProductRequest struct {
	Sku         string                 `json:"sku"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Brand       string                 `json:"brand"`
	Category    string                 `json:"category"`
	Slug        string                 `json:"slug"`
	Tags        []string               `json:"tags"`
	ListPrice   string                 `json:"list_price"`
	SalePrice   *string                `json:"sale_price"`
	Status      string                 `json:"status"`
	Variants    []createVariantRequest `json:"variants"`
}

type updateProductRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Brand       string   `json:"brand"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	ListPrice   string   `json:"list_price"`
	SalePrice   *string  `json:"sale_price"`
	Status      string   `json:"status"`
}

type variantResponse struct {
	ID       uuid.UUID         `json:"id"`
	Sku      string            `json:"sku"`
	Stock    int64             `json:"stock"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Position int32             `json:"position"`
}

type productResponse struct {
	ID          uuid.UUID         `json:"id"`
	Sku         string            `json:"sku"`
	Title       string            `json:"title"`
	Description *string           `json:"description"`
	Brand       *string           `json:"brand"`
	Category    *string           `json:"category"`
	Slug        *string           `json:"slug"`
	Tags        []string          `json:"tags"`
	Currency    string            `json:"currency"`
	ListPrice   string            `json:"list_price"`
	SalePrice   *string           `json:"sale_price"`
	Status      string            `json:"status"`
	Variants    []variantResponse `json:"variants,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func toProductResponse(p database.Product, variants []database.Variant) productResponse {
	resp := productResponse{
		ID:        p.ID,
		Sku:       p.Sku,
		Title:     p.Title,
		Tags:      p.Tags,
		Currency:  p.Currency,
		ListPrice: money.Format(p.ListPrice),
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}

	if p.Description.Valid {
		resp.Description = &p.Description.String
	}
	if p.Brand.Valid {
		resp.Brand = &p.Brand.String
	}
	if p.Category.Valid {
		resp.Category = &p.Category.String
	}
	if p.Slug.Valid {
		resp.Slug = &p.Slug.String
	}
	if p.SalePrice.Valid {
		s := money.Format(p.SalePrice.Int64)
		resp.SalePrice = &s
	}

	for _, v := range variants {
		resp.Variants = append(resp.Variants, variantResponse{
			ID:       v.ID,
			Sku:      v.Sku,
			Stock:    v.Stock,
			Attrs:    v.Attrs,
			Position: v.Position,
		})
	}
	return resp
}

// --- Helpers ---

var errNegativePrice = errors.New("negative price")

func parsePrice(s string) (int64, error) {
	v, err := money.Parse(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errNegativePrice
	}
	return v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = nonSlugChars.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// generateSKU builds a code like BRA-TIT-1234 from the first three letters
// of brand and title plus a random 4-digit suffix.
func generateSKU(brand, title string) string {
	return fmt.Sprintf("%s-%s-%04d", skuPart(brand), skuPart(title), rand.Intn(10000))
}

func skuPart(s string) string {
	cleaned := nonSlugChars.ReplaceAllString(strings.ToLower(s), "")
	if cleaned == "" {
		cleaned = "gen"
	}
	if len(cleaned) > 3 {
		cleaned = cleaned[:3]
	}
	return strings.ToUpper(cleaned)
}

func isValidProductStatus(status string) bool {
	switch status {
	case enum.ProductStatusActive, enum.ProductStatusDraft, enum.ProductStatusArchived:
		return true
	}
	return false
}

// --- Handlers ---

// List returns a page of products, newest first.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := int32(50)
	offset := int32(0)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = int32(n)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
		offset = int32(n)
	}

	products, err := h.store.ListProducts(r.Context(), database.ListProductsParams{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		log.Printf("ERROR: list products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p, nil)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Search returns up to 10 products matching the query on title, SKU or brand.
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}

	products, err := h.store.SearchProducts(r.Context(), query, 10)
	if err != nil {
		log.Printf("ERROR: search products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p, nil)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single product with its variants.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	prodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	product, err := h.store.GetProduct(r.Context(), prodID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.respondWithVariants(w, r, product)
}

// GetBySlug returns a single product looked up by its URL slug.
func (h *ProductHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	product, err := h.store.GetProductBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product by slug: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.respondWithVariants(w, r, product)
}

func (h *ProductHandler) respondWithVariants(w http.ResponseWriter, r *http.Request, product database.Product) {
	variants, err := h.store.ListVariantsByProducts(r.Context(), []uuid.UUID{product.ID})
	if err != nil {
		log.Printf("ERROR: list variants: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product, variants))
}

// Create adds a new product together with its variants. A missing SKU is
// generated from brand and title; a missing slug comes from the title.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}

	if req.ListPrice == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "list_price is required"})
		return
	}

	listPrice, err := parsePrice(req.ListPrice)
	if err != nil {
		if errors.Is(err, errNegativePrice) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "list_price must be >= 0"})
		} else {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid list_price"})
		}
		return
	}

	salePrice := pgtype.Int8{}
	if req.SalePrice != nil {
		v, err := parsePrice(*req.SalePrice)
		if err != nil {
			if errors.Is(err, errNegativePrice) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sale_price must be >= 0"})
			} else {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sale_price"})
			}
			return
		}
		salePrice = pgtype.Int8{Int64: v, Valid: true}
	}

	status := req.Status
	if status == "" {
		status = enum.ProductStatusActive
	}
	if !isValidProductStatus(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	sku := req.Sku
	if sku == "" {
		sku = generateSKU(req.Brand, req.Title)
	}

	slug := req.Slug
	if slug == "" {
		slug = slugify(req.Title)
	}

	desc := pgtype.Text{}
	if req.Description != "" {
		desc = pgtype.Text{String: req.Description, Valid: true}
	}
	brand := pgtype.Text{}
	if req.Brand != "" {
		brand = pgtype.Text{String: req.Brand, Valid: true}
	}
	category := pgtype.Text{}
	if req.Category != "" {
		category = pgtype.Text{String: req.Category, Valid: true}
	}

	product, err := h.store.CreateProduct(r.Context(), database.CreateProductParams{
		Sku:         sku,
		Title:       req.Title,
		Description: desc,
		Brand:       brand,
		Category:    category,
		Slug:        pgtype.Text{String: slug, Valid: slug != ""},
		Tags:        req.Tags,
		Currency:    h.currency,
		ListPrice:   listPrice,
		SalePrice:   salePrice,
		Status:      status,
	})
	if err != nil {
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "sku or slug already exists"})
			return
		}
		log.Printf("ERROR: create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	// Every product carries at least one variant so it can hold stock.
	reqVariants := req.Variants
	if len(reqVariants) == 0 {
		reqVariants = []createVariantRequest{{Sku: product.Sku}}
	}

	variants := make([]database.Variant, 0, len(reqVariants))
	for i, v := range reqVariants {
		vSku := v.Sku
		if vSku == "" {
			vSku = fmt.Sprintf("%s-%d", product.Sku, i+1)
		}
		position := v.Position
		if position == 0 {
			position = int32(i)
		}
		variant, err := h.store.CreateVariant(r.Context(), database.CreateVariantParams{
			ProductID: product.ID,
			Sku:       vSku,
			Stock:     v.Stock,
			Attrs:     v.Attrs,
			Position:  position,
		})
		if err != nil {
			log.Printf("ERROR: create variant: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		variants = append(variants, variant)
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product, variants))
}

// Update modifies an existing product.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	prodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req updateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}

	if req.ListPrice == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "list_price is required"})
		return
	}

	listPrice, err := parsePrice(req.ListPrice)
	if err != nil {
		if errors.Is(err, errNegativePrice) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "list_price must be >= 0"})
		} else {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid list_price"})
		}
		return
	}

	salePrice := pgtype.Int8{}
	if req.SalePrice != nil {
		v, err := parsePrice(*req.SalePrice)
		if err != nil {
			if errors.Is(err, errNegativePrice) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sale_price must be >= 0"})
			} else {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sale_price"})
			}
			return
		}
		salePrice = pgtype.Int8{Int64: v, Valid: true}
	}

	status := req.Status
	if status == "" {
		status = enum.ProductStatusActive
	}
	if !isValidProductStatus(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	desc := pgtype.Text{}
	if req.Description != "" {
		desc = pgtype.Text{String: req.Description, Valid: true}
	}
	brand := pgtype.Text{}
	if req.Brand != "" {
		brand = pgtype.Text{String: req.Brand, Valid: true}
	}
	category := pgtype.Text{}
	if req.Category != "" {
		category = pgtype.Text{String: req.Category, Valid: true}
	}

	product, err := h.store.UpdateProduct(r.Context(), database.UpdateProductParams{
		ID:          prodID,
		Title:       req.Title,
		Description: desc,
		Brand:       brand,
		Category:    category,
		Tags:        req.Tags,
		ListPrice:   listPrice,
		SalePrice:   salePrice,
		Status:      status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: update product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product, nil))
}

// Delete removes a product and its variants.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	prodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	_, err = h.store.DeleteProduct(r.Context(), prodID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: delete product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
