package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tokshop/api/internal/database"
	"github.com/tokshop/api/internal/enum"
)

// Errors returned by the lifecycle manager.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidAction     = errors.New("invalid confirm action")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrStatusConflict    = errors.New("order status changed, please retry")
)

// LifecycleStore defines the DB methods needed to drive order status
// changes. Satisfied by *database.Queries.
type LifecycleStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID) (database.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
}

// allowedTransitions is the explicit allow-list for the order state machine.
// Anything absent here is forbidden; the schema permits more than the
// application drives on purpose.
var allowedTransitions = map[string][]string{
	enum.OrderStatusCreated: {enum.OrderStatusPaid, enum.OrderStatusCancelled},
	enum.OrderStatusPaid:    {enum.OrderStatusFulfilled, enum.OrderStatusRefunded},
}

func transitionAllowed(current, next string) bool {
	for _, s := range allowedTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

func isKnownStatus(s string) bool {
	switch s {
	case enum.OrderStatusCreated, enum.OrderStatusPaid, enum.OrderStatusFulfilled,
		enum.OrderStatusCancelled, enum.OrderStatusRefunded:
		return true
	}
	return false
}

// LifecycleManager applies staff/customer actions and payment-style updates
// to existing orders.
type LifecycleManager struct {
	store LifecycleStore
}

func NewLifecycleManager(store LifecycleStore) *LifecycleManager {
	return &LifecycleManager{store: store}
}

// Confirm resolves a created order: "sold" moves it to paid and stamps
// paid_at, "not-sold" cancels it. Both are idempotent — repeating the same
// action on an order that already reached the target status is a no-op that
// preserves the original timestamps. The status guard lives in the UPDATE
// itself, so concurrent confirms cannot double-stamp paid_at.
func (m *LifecycleManager) Confirm(ctx context.Context, orderID uuid.UUID, action string) (database.Order, error) {
	switch action {
	case enum.ConfirmActionSold:
		return m.resolve(ctx, orderID, enum.OrderStatusPaid, m.store.MarkOrderPaid)
	case enum.ConfirmActionNotSold:
		return m.resolve(ctx, orderID, enum.OrderStatusCancelled, m.store.CancelOrder)
	default:
		return database.Order{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}

// resolve runs a guarded created→target update and disambiguates the
// zero-row case: missing order, idempotent repeat, or forbidden transition.
func (m *LifecycleManager) resolve(ctx context.Context, orderID uuid.UUID, target string, update func(context.Context, uuid.UUID) (database.Order, error)) (database.Order, error) {
	order, err := update(ctx, orderID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.Order{}, fmt.Errorf("update order %s: %w", orderID, err)
	}

	current, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if current.Status == target {
		return current, nil
	}
	return database.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
}

// Transition moves an order to an arbitrary allow-listed status. Used by the
// staff status endpoint for fulfilled/refunded; paid and cancelled route
// through the same guarded updates as Confirm so payment fields stay
// consistent.
func (m *LifecycleManager) Transition(ctx context.Context, orderID uuid.UUID, next string) (database.Order, error) {
	if !isKnownStatus(next) {
		return database.Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	current, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}

	if !transitionAllowed(current.Status, next) {
		return database.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next)
	}

	var updated database.Order
	switch next {
	case enum.OrderStatusPaid:
		updated, err = m.store.MarkOrderPaid(ctx, orderID)
	case enum.OrderStatusCancelled:
		updated, err = m.store.CancelOrder(ctx, orderID)
	default:
		updated, err = m.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
			ID:         orderID,
			Status:     next,
			FromStatus: current.Status,
		})
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Status moved between our read and the guarded write.
			return database.Order{}, ErrStatusConflict
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}
	return updated, nil
}

// ApplyPaymentUpdate maps a payment-provider status onto the lifecycle:
// approved pays the order, rejected cancels it, refunded refunds a paid one.
func (m *LifecycleManager) ApplyPaymentUpdate(ctx context.Context, orderID uuid.UUID, paymentStatus string) (database.Order, error) {
	switch paymentStatus {
	case enum.PaymentStatusApproved:
		return m.Confirm(ctx, orderID, enum.ConfirmActionSold)
	case enum.PaymentStatusRejected:
		return m.Confirm(ctx, orderID, enum.ConfirmActionNotSold)
	case enum.PaymentStatusRefunded:
		return m.Transition(ctx, orderID, enum.OrderStatusRefunded)
	default:
		return database.Order{}, fmt.Errorf("%w: payment status %q", ErrInvalidAction, paymentStatus)
	}
}
