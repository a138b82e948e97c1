package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tokshop/api/internal/database"
)

// CatalogProduct couples a product with its variants for order resolution.
type CatalogProduct struct {
	Product  database.Product
	Variants []database.Variant
}

// CatalogReader is the read-only catalog lookup the line normalizer depends
// on. Missing ids are simply absent from the result; callers decide whether
// that is an error.
type CatalogReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]CatalogProduct, error)
}

// CatalogStore defines the DB methods needed to resolve catalog products.
// Satisfied by *database.Queries.
type CatalogStore interface {
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.Product, error)
	ListVariantsByProducts(ctx context.Context, productIDs []uuid.UUID) ([]database.Variant, error)
}

// Catalog implements CatalogReader over the database store.
type Catalog struct {
	store CatalogStore
}

func NewCatalog(store CatalogStore) *Catalog {
	return &Catalog{store: store}
}

func (c *Catalog) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]CatalogProduct, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	products, err := c.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	if len(products) == 0 {
		return nil, nil
	}

	productIDs := make([]uuid.UUID, len(products))
	for i, p := range products {
		productIDs[i] = p.ID
	}

	variants, err := c.store.ListVariantsByProducts(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}

	byProduct := make(map[uuid.UUID][]database.Variant, len(products))
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}

	result := make([]CatalogProduct, len(products))
	for i, p := range products {
		result[i] = CatalogProduct{Product: p, Variants: byProduct[p.ID]}
	}
	return result, nil
}
