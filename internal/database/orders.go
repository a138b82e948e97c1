package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, channel, status, items_total, discount_total, shipping_total, tax_total, grand_total, currency, customer, payment_method, payment_status, paid_at, payment_amount, notes, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.Channel, &o.Status,
		&o.ItemsTotal, &o.DiscountTotal, &o.ShippingTotal, &o.TaxTotal, &o.GrandTotal,
		&o.Currency, &o.Customer, &o.PaymentMethod, &o.PaymentStatus,
		&o.PaidAt, &o.PaymentAmount, &o.Notes, &o.CreatedBy,
		&o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

type CreateOrderParams struct {
	OrderNumber   string
	Channel       string
	Status        string
	ItemsTotal    int64
	DiscountTotal int64
	ShippingTotal int64
	TaxTotal      int64
	GrandTotal    int64
	Currency      string
	Customer      *Customer
	PaymentMethod string
	PaymentStatus string
	PaymentAmount int64
	Notes         pgtype.Text
	CreatedBy     string
}

const createOrder = `
INSERT INTO orders (
	order_number, channel, status,
	items_total, discount_total, shipping_total, tax_total, grand_total,
	currency, customer, payment_method, payment_status, payment_amount,
	notes, created_by
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber, arg.Channel, arg.Status,
		arg.ItemsTotal, arg.DiscountTotal, arg.ShippingTotal, arg.TaxTotal, arg.GrandTotal,
		arg.Currency, arg.Customer, arg.PaymentMethod, arg.PaymentStatus, arg.PaymentAmount,
		arg.Notes, arg.CreatedBy,
	)
	return scanOrder(row)
}

const orderLineColumns = `id, order_id, product_id, title, sku, unit_price, quantity, variant_sku, variant_attrs, subtotal`

func scanOrderLine(row pgx.Row) (OrderLine, error) {
	var l OrderLine
	err := row.Scan(
		&l.ID, &l.OrderID, &l.ProductID, &l.Title, &l.Sku,
		&l.UnitPrice, &l.Quantity, &l.VariantSku, &l.VariantAttrs, &l.Subtotal,
	)
	return l, err
}

type CreateOrderLineParams struct {
	OrderID      uuid.UUID
	ProductID    uuid.UUID
	Title        string
	Sku          pgtype.Text
	UnitPrice    int64
	Quantity     int32
	VariantSku   pgtype.Text
	VariantAttrs map[string]string
	Subtotal     int64
}

const createOrderLine = `
INSERT INTO order_lines (order_id, product_id, title, sku, unit_price, quantity, variant_sku, variant_attrs, subtotal)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + orderLineColumns

func (q *Queries) CreateOrderLine(ctx context.Context, arg CreateOrderLineParams) (OrderLine, error) {
	row := q.db.QueryRow(ctx, createOrderLine,
		arg.OrderID, arg.ProductID, arg.Title, arg.Sku,
		arg.UnitPrice, arg.Quantity, arg.VariantSku, arg.VariantAttrs, arg.Subtotal,
	)
	return scanOrderLine(row)
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const listOrderLines = `
SELECT ` + orderLineColumns + `
FROM order_lines
WHERE order_id = $1
ORDER BY id`

func (q *Queries) ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	rows, err := q.db.Query(ctx, listOrderLines, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderLine
	for rows.Next() {
		l, err := scanOrderLine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

type ListOrdersParams struct {
	Channel string
	Status  string
	From    pgtype.Timestamptz
	To      pgtype.Timestamptz
	Query   string
	Limit   int32
	Offset  int32
}

const listOrdersFilter = `
FROM orders
WHERE ($1 = '' OR channel = $1)
  AND ($2 = '' OR status = $2)
  AND ($3::timestamptz IS NULL OR created_at >= $3)
  AND ($4::timestamptz IS NULL OR created_at <= $4)
  AND ($5 = ''
       OR order_number ILIKE '%' || $5 || '%'
       OR customer->>'name' ILIKE '%' || $5 || '%'
       OR customer->>'email' ILIKE '%' || $5 || '%')`

const listOrders = `SELECT ` + orderColumns + listOrdersFilter + `
ORDER BY created_at DESC
LIMIT $6 OFFSET $7`

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders,
		arg.Channel, arg.Status, arg.From, arg.To, arg.Query, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const countOrders = `SELECT count(*)` + listOrdersFilter

func (q *Queries) CountOrders(ctx context.Context, arg ListOrdersParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOrders,
		arg.Channel, arg.Status, arg.From, arg.To, arg.Query,
	).Scan(&n)
	return n, err
}

// markOrderPaid is guarded on status so the paid_at timestamp is written at
// most once; a repeat confirm finds zero rows and leaves the order untouched.
const markOrderPaid = `
UPDATE orders
SET status = 'paid', payment_status = 'approved', paid_at = now(), updated_at = now()
WHERE id = $1 AND status = 'created'
RETURNING ` + orderColumns

func (q *Queries) MarkOrderPaid(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markOrderPaid, id))
}

const cancelOrder = `
UPDATE orders
SET status = 'cancelled', updated_at = now()
WHERE id = $1 AND status = 'created'
RETURNING ` + orderColumns

func (q *Queries) CancelOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, cancelOrder, id))
}

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	Status     string
	FromStatus string
}

// updateOrderStatus only applies when the order is still in the status the
// caller validated against, so a concurrent transition surfaces as zero rows
// instead of silently overwriting.
const updateOrderStatus = `
UPDATE orders
SET status = $2,
    payment_status = CASE WHEN $2 = 'refunded' THEN 'refunded' ELSE payment_status END,
    updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.FromStatus))
}

type ListCashCloseOrdersParams struct {
	Start time.Time
	End   time.Time
}

const listCashCloseOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE channel = 'pos'
  AND status IN ('paid', 'fulfilled')
  AND created_at >= $1 AND created_at <= $2
ORDER BY created_at`

func (q *Queries) ListCashCloseOrders(ctx context.Context, arg ListCashCloseOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listCashCloseOrders, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}
