package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tokshop/api/internal/database"
	"github.com/tokshop/api/internal/enum"
	"github.com/tokshop/api/internal/money"
)

// Errors returned by the order service.
var (
	ErrEmptyCart            = errors.New("cart lines are required")
	ErrMissingPaymentMethod = errors.New("payment_method is required")
	ErrMissingCreator       = errors.New("created_by is required")
	ErrMissingTotal         = errors.New("declared_total is required")
	ErrInvalidDiscount      = errors.New("discount_percent must be between 0 and 100")
	ErrTotalMismatch        = errors.New("declared total does not match computed total")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed inside the order transaction.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderLine(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error)
	AdjustVariantStock(ctx context.Context, arg database.AdjustVariantStockParams) (int64, error)
	AdjustFirstVariantStock(ctx context.Context, arg database.AdjustFirstVariantStockParams) (int64, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// NumberAllocator issues the human-readable order number for a prefix.
// Satisfied by *SequenceAllocator.
type NumberAllocator interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// Confirmer applies the paid transition to a committed order.
// Satisfied by *LifecycleManager.
type Confirmer interface {
	Confirm(ctx context.Context, orderID uuid.UUID, action string) (database.Order, error)
}

// ChannelRules configures channel classification and number prefixes.
type ChannelRules struct {
	// POSMarkers classify an order as an in-store sale when any marker
	// appears, case-insensitively, in the joined tag string.
	POSMarkers   []string
	POSPrefix    string
	OnlinePrefix string
	Currency     string
}

// CreateOrderRequest is the validated input for creating an order.
// All amounts are integer minor units.
type CreateOrderRequest struct {
	Lines           []CartLine
	PaymentMethod   string
	CreatedBy       string
	DeclaredTotal   *int64
	Tags            []string
	DiscountPercent int64
	Customer        *database.Customer
	Shipping        int64
	Tax             int64
	Discount        int64
	Notes           string
}

// CreateOrderResult is the committed order plus the outcome of the
// best-effort POS follow-up. AutoConfirmErr is only ever set after the order
// itself has committed; it never invalidates the creation.
type CreateOrderResult struct {
	Order          database.Order
	Lines          []database.OrderLine
	AutoConfirmed  bool
	AutoConfirmErr error
}

// OrderService coordinates the order-acceptance transaction: it recomputes
// totals against trusted catalog data, allocates an order number, and writes
// the order record and the stock decrements as one atomic unit.
type OrderService struct {
	pool      TxBeginner
	newStore  NewOrderStore
	catalog   CatalogReader
	sequences NumberAllocator
	lifecycle Confirmer
	rules     ChannelRules
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, catalog CatalogReader, sequences NumberAllocator, lifecycle Confirmer, rules ChannelRules) *OrderService {
	return &OrderService{
		pool:      pool,
		newStore:  newStore,
		catalog:   catalog,
		sequences: sequences,
		lifecycle: lifecycle,
		rules:     rules,
	}
}

// ResolveChannel classifies an order by its channel tags: any configured
// marker appearing in the joined tag string means an in-store sale.
func ResolveChannel(tags, posMarkers []string) string {
	joined := strings.ToLower(strings.Join(tags, ","))
	for _, m := range posMarkers {
		if m != "" && strings.Contains(joined, strings.ToLower(m)) {
			return enum.ChannelPOS
		}
	}
	return enum.ChannelOnline
}

// CreateOrder validates the cart, recomputes prices and totals, allocates an
// order number, and persists the order and stock decrements atomically.
// Nothing is visible to readers until commit; any failure inside the
// transaction leaves zero side effects (the burned sequence number excepted —
// numbering is gap-tolerant). For POS orders the paid transition runs as a
// separate best-effort step after commit.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if req.PaymentMethod == "" {
		return nil, ErrMissingPaymentMethod
	}
	if req.CreatedBy == "" {
		return nil, ErrMissingCreator
	}
	if req.DeclaredTotal == nil {
		return nil, ErrMissingTotal
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return nil, ErrInvalidDiscount
	}

	lines, itemsTotal, err := NormalizeLines(ctx, s.catalog, req.Lines, req.DiscountPercent)
	if err != nil {
		return nil, err
	}

	// The comparison rounds to the nearest whole currency unit; line-level
	// arithmetic stays exact.
	grand := itemsTotal + req.Shipping + req.Tax - req.Discount
	if money.RoundToUnit(grand) != money.RoundToUnit(*req.DeclaredTotal) {
		return nil, fmt.Errorf("%w: server %s, client %s",
			ErrTotalMismatch, money.Format(grand), money.Format(*req.DeclaredTotal))
	}

	channel := ResolveChannel(req.Tags, s.rules.POSMarkers)
	prefix := s.rules.OnlinePrefix
	if channel == enum.ChannelPOS {
		prefix = s.rules.POSPrefix
	}
	orderNumber, err := s.sequences.Next(ctx, prefix)
	if err != nil {
		return nil, err
	}

	order, dbLines, err := s.createOrderTx(ctx, req, lines, channel, orderNumber, itemsTotal, grand)
	if err != nil {
		return nil, err
	}

	result := &CreateOrderResult{Order: order, Lines: dbLines}

	if channel == enum.ChannelPOS {
		confirmed, err := s.lifecycle.Confirm(ctx, order.ID, enum.ConfirmActionSold)
		if err != nil {
			// The order is already committed; report, never roll back.
			log.Printf("ERROR: auto-confirm pos order %s: %v", order.OrderNumber, err)
			result.AutoConfirmErr = err
		} else {
			result.Order = confirmed
			result.AutoConfirmed = true
		}
	}

	return result, nil
}

// createOrderTx writes the order, its lines, and the stock decrements in a
// single transaction.
func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest, lines []NormalizedLine, channel, orderNumber string, itemsTotal, grand int64) (database.Order, []database.OrderLine, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	notes := pgtype.Text{}
	if req.Notes != "" {
		notes = pgtype.Text{String: req.Notes, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:   orderNumber,
		Channel:       channel,
		Status:        enum.OrderStatusCreated,
		ItemsTotal:    itemsTotal,
		DiscountTotal: req.Discount,
		ShippingTotal: req.Shipping,
		TaxTotal:      req.Tax,
		GrandTotal:    grand,
		Currency:      s.rules.Currency,
		Customer:      req.Customer,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: enum.PaymentStatusPending,
		PaymentAmount: grand,
		Notes:         notes,
		CreatedBy:     req.CreatedBy,
	})
	if err != nil {
		return database.Order{}, nil, fmt.Errorf("create order: %w", err)
	}

	dbLines := make([]database.OrderLine, 0, len(lines))
	for _, l := range lines {
		sku := pgtype.Text{}
		if l.Sku != "" {
			sku = pgtype.Text{String: l.Sku, Valid: true}
		}
		variantSku := pgtype.Text{}
		if l.VariantSku != "" {
			variantSku = pgtype.Text{String: l.VariantSku, Valid: true}
		}

		line, err := store.CreateOrderLine(ctx, database.CreateOrderLineParams{
			OrderID:      order.ID,
			ProductID:    l.ProductID,
			Title:        l.Title,
			Sku:          sku,
			UnitPrice:    l.UnitPrice,
			Quantity:     l.Quantity,
			VariantSku:   variantSku,
			VariantAttrs: l.VariantAttrs,
			Subtotal:     l.Subtotal,
		})
		if err != nil {
			return database.Order{}, nil, fmt.Errorf("create order line: %w", err)
		}
		dbLines = append(dbLines, line)

		if err := s.decrementStock(ctx, store, l, order.OrderNumber); err != nil {
			return database.Order{}, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, nil, fmt.Errorf("commit tx: %w", err)
	}

	return order, dbLines, nil
}

// decrementStock applies the line's quantity as a negative delta to its
// resolved variant. A declared SKU that matches no variant falls back to the
// product's first variant; the fallback is a data-quality signal and gets
// logged rather than silently absorbed.
func (s *OrderService) decrementStock(ctx context.Context, store OrderStore, l NormalizedLine, orderNumber string) error {
	delta := -int64(l.Quantity)

	if l.VariantSku != "" {
		n, err := store.AdjustVariantStock(ctx, database.AdjustVariantStockParams{
			ProductID: l.ProductID,
			Sku:       l.VariantSku,
			Delta:     delta,
		})
		if err != nil {
			return fmt.Errorf("adjust stock for %s/%s: %w", l.ProductID, l.VariantSku, err)
		}
		if n > 0 {
			return nil
		}
		log.Printf("WARN: order %s: declared sku %q matches no variant of product %s, falling back to first variant",
			orderNumber, l.VariantSku, l.ProductID)
	}

	if _, err := store.AdjustFirstVariantStock(ctx, database.AdjustFirstVariantStockParams{
		ProductID: l.ProductID,
		Delta:     delta,
	}); err != nil {
		return fmt.Errorf("adjust stock for %s: %w", l.ProductID, err)
	}
	return nil
}
