package enum

// ── State machines (CHECK constrained in DB) ──

const (
	OrderStatusCreated   = "created"
	OrderStatusPaid      = "paid"
	OrderStatusFulfilled = "fulfilled"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusRejected = "rejected"
	PaymentStatusRefunded = "refunded"
)

const (
	ProductStatusActive   = "active"
	ProductStatusDraft    = "draft"
	ProductStatusArchived = "archived"
)

// ── Sales channels (CHECK constrained in DB) ──

const (
	ChannelPOS    = "pos"
	ChannelOnline = "online"
)

// ── Confirm actions (application-level allow-list, no DB constraint) ──

const (
	ConfirmActionSold    = "sold"
	ConfirmActionNotSold = "not-sold"
)

// ── Staff roles (CHECK constrained in DB) ──

const (
	UserRoleAdmin  = "admin"
	UserRoleSeller = "seller"
)
