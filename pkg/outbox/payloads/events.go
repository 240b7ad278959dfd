package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/wholesale-backend/pkg/enums"
)

// OrderPaidEvent is emitted once a payment is confirmed and the settlement row exists.
type OrderPaidEvent struct {
	OrderID           uuid.UUID `json:"order_id"`
	OrderNumber       string    `json:"order_number"`
	RetailerID        uuid.UUID `json:"retailer_id"`
	WholesalerID      uuid.UUID `json:"wholesaler_id"`
	SettlementID      uuid.UUID `json:"settlement_id"`
	PaymentKey        string    `json:"payment_key"`
	Amount            int64     `json:"amount"`
	PlatformFee       int64     `json:"platform_fee"`
	WholesalerAmount  int64     `json:"wholesaler_amount"`
	PaidAt            time.Time `json:"paid_at"`
	ScheduledPayoutAt time.Time `json:"scheduled_payout_at"`
}

// OrderStatusChangedEvent is emitted on every fulfillment transition.
type OrderStatusChangedEvent struct {
	OrderID      uuid.UUID         `json:"order_id"`
	RetailerID   uuid.UUID         `json:"retailer_id"`
	WholesalerID uuid.UUID         `json:"wholesaler_id"`
	From         enums.OrderStatus `json:"from"`
	To           enums.OrderStatus `json:"to"`
	ChangedAt    time.Time         `json:"changed_at"`
}

// SettlementCompletedEvent is emitted when a settlement is paid out.
type SettlementCompletedEvent struct {
	SettlementID     uuid.UUID `json:"settlement_id"`
	OrderID          uuid.UUID `json:"order_id"`
	WholesalerID     uuid.UUID `json:"wholesaler_id"`
	WholesalerAmount int64     `json:"wholesaler_amount"`
	CompletedAt      time.Time `json:"completed_at"`
	Early            bool      `json:"early"`
}
