package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Product is a catalog entry. Prices are integer minor units.
type Product struct {
	ID          uuid.UUID
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
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Variant is a SKU-level configuration of a product carrying its own stock
// counter. Stock is intentionally unconstrained and may go negative under
// concurrent orders.
type Variant struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Sku       string
	Stock     int64
	Attrs     map[string]string
	Position  int32
	CreatedAt time.Time
}

// Customer is the customer snapshot copied onto an order at creation time.
// It is stored as jsonb and never re-resolved.
type Customer struct {
	Name    string           `json:"name,omitempty"`
	Email   string           `json:"email,omitempty"`
	Phone   string           `json:"phone,omitempty"`
	DocID   string           `json:"doc_id,omitempty"`
	Address *CustomerAddress `json:"shipping_address,omitempty"`
}

type CustomerAddress struct {
	Line1 string `json:"line1,omitempty"`
	Line2 string `json:"line2,omitempty"`
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
	Zip   string `json:"zip,omitempty"`
}

// Order is the aggregate root persisted by the order transaction. Totals are
// integer minor units.
type Order struct {
	ID            uuid.UUID
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
	PaidAt        pgtype.Timestamptz
	PaymentAmount int64
	Notes         pgtype.Text
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderLine is an immutable snapshot of one cart line at order-creation time.
type OrderLine struct {
	ID           uuid.UUID
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

// User is a staff account.
type User struct {
	ID             uuid.UUID
	Email          string
	FullName       string
	HashedPassword string
	Role           string
	IsActive       bool
	CreatedAt      time.Time
}
