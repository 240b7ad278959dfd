package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/wholesale-backend/pkg/enums"
)

// Order is a retailer purchase from a single wholesaler. TotalAmount is whole KRW.
type Order struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber  string            `gorm:"column:order_number;not null"`
	RetailerID   uuid.UUID         `gorm:"column:retailer_id;type:uuid;not null"`
	WholesalerID uuid.UUID         `gorm:"column:wholesaler_id;type:uuid;not null"`
	TotalAmount  int64             `gorm:"column:total_amount;not null"`
	Status       enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentKey   *string           `gorm:"column:payment_key"`
	PaidAt       *time.Time        `gorm:"column:paid_at"`
	ShippedAt    *time.Time        `gorm:"column:shipped_at"`
	CompletedAt  *time.Time        `gorm:"column:completed_at"`
	CancelledAt  *time.Time        `gorm:"column:cancelled_at"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// BoundPaymentKey returns the payment key recorded on the order, or "".
func (o *Order) BoundPaymentKey() string {
	if o == nil || o.PaymentKey == nil {
		return ""
	}
	return *o.PaymentKey
}
