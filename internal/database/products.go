package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, sku, title, description, brand, category, slug, tags, currency, list_price, sale_price, status, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.Sku, &p.Title, &p.Description, &p.Brand, &p.Category,
		&p.Slug, &p.Tags, &p.Currency, &p.ListPrice, &p.SalePrice,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

type CreateProductParams struct {
	Sku         string
	Title       string
	Description pgtype.Text
	Brand       pgtype.Text
	Category    pgtype.Text
	Slug        pgtype.Text
	Tags        []string
	Currency    string
	ListPrice   int64
	SalePrice   pgtype.Int8
	Status      string
}

const createProduct = `
INSERT INTO products (sku, title, description, brand, category, slug, tags, currency, list_price, sale_price, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + productColumns

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, createProduct,
		arg.Sku, arg.Title, arg.Description, arg.Brand, arg.Category,
		arg.Slug, arg.Tags, arg.Currency, arg.ListPrice, arg.SalePrice, arg.Status,
	)
	return scanProduct(row)
}

type UpdateProductParams struct {
	ID          uuid.UUID
	Title       string
	Description pgtype.Text
	Brand       pgtype.Text
	Category    pgtype.Text
	Tags        []string
	ListPrice   int64
	SalePrice   pgtype.Int8
	Status      string
}

const updateProduct = `
UPDATE products
SET title = $2, description = $3, brand = $4, category = $5, tags = $6,
    list_price = $7, sale_price = $8, status = $9, updated_at = now()
WHERE id = $1
RETURNING ` + productColumns

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, updateProduct,
		arg.ID, arg.Title, arg.Description, arg.Brand, arg.Category,
		arg.Tags, arg.ListPrice, arg.SalePrice, arg.Status,
	)
	return scanProduct(row)
}

const deleteProduct = `DELETE FROM products WHERE id = $1 RETURNING id`

func (q *Queries) DeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var deleted uuid.UUID
	err := q.db.QueryRow(ctx, deleteProduct, id).Scan(&deleted)
	return deleted, err
}

const getProduct = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProduct, id))
}

const getProductBySlug = `SELECT ` + productColumns + ` FROM products WHERE slug = $1`

func (q *Queries) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProductBySlug, slug))
}

const listProducts = `
SELECT ` + productColumns + `
FROM products
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`

type ListProductsParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListProducts(ctx context.Context, arg ListProductsParams) ([]Product, error) {
	rows, err := q.db.Query(ctx, listProducts, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

const searchProducts = `
SELECT ` + productColumns + `
FROM products
WHERE title ILIKE '%' || $1 || '%'
   OR sku ILIKE '%' || $1 || '%'
   OR brand ILIKE '%' || $1 || '%'
ORDER BY title
LIMIT $2`

func (q *Queries) SearchProducts(ctx context.Context, query string, limit int32) ([]Product, error) {
	rows, err := q.db.Query(ctx, searchProducts, query, limit)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

const getProductsByIDs = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

func (q *Queries) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	rows, err := q.db.Query(ctx, getProductsByIDs, ids)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

// --- Variants ---

const variantColumns = `id, product_id, sku, stock, attrs, position, created_at`

func scanVariant(row pgx.Row) (Variant, error) {
	var v Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.Sku, &v.Stock, &v.Attrs, &v.Position, &v.CreatedAt)
	return v, err
}

type CreateVariantParams struct {
	ProductID uuid.UUID
	Sku       string
	Stock     int64
	Attrs     map[string]string
	Position  int32
}

const createVariant = `
INSERT INTO variants (product_id, sku, stock, attrs, position)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + variantColumns

func (q *Queries) CreateVariant(ctx context.Context, arg CreateVariantParams) (Variant, error) {
	row := q.db.QueryRow(ctx, createVariant,
		arg.ProductID, arg.Sku, arg.Stock, arg.Attrs, arg.Position,
	)
	return scanVariant(row)
}

const listVariantsByProducts = `
SELECT ` + variantColumns + `
FROM variants
WHERE product_id = ANY($1)
ORDER BY product_id, position, created_at`

func (q *Queries) ListVariantsByProducts(ctx context.Context, productIDs []uuid.UUID) ([]Variant, error) {
	rows, err := q.db.Query(ctx, listVariantsByProducts, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

type AdjustVariantStockParams struct {
	ProductID uuid.UUID
	Sku       string
	Delta     int64
}

// adjustVariantStock applies a signed delta to the stock counter of the
// variant matched by (product_id, sku). There is no floor: stock may go
// negative under concurrent orders, which is accepted policy.
const adjustVariantStock = `
UPDATE variants
SET stock = stock + $3
WHERE product_id = $1 AND sku = $2`

func (q *Queries) AdjustVariantStock(ctx context.Context, arg AdjustVariantStockParams) (int64, error) {
	tag, err := q.db.Exec(ctx, adjustVariantStock, arg.ProductID, arg.Sku, arg.Delta)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type AdjustFirstVariantStockParams struct {
	ProductID uuid.UUID
	Delta     int64
}

const adjustFirstVariantStock = `
UPDATE variants
SET stock = stock + $2
WHERE id = (
	SELECT id FROM variants
	WHERE product_id = $1
	ORDER BY position, created_at
	LIMIT 1
)`

func (q *Queries) AdjustFirstVariantStock(ctx context.Context, arg AdjustFirstVariantStockParams) (int64, error) {
	tag, err := q.db.Exec(ctx, adjustFirstVariantStock, arg.ProductID, arg.Delta)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
