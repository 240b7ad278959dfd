package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/wholesale-backend/pkg/enums"
)

// Payment records a captured gateway payment.
type Payment struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	SettlementID uuid.UUID           `gorm:"column:settlement_id;type:uuid;not null"`
	Method       string              `gorm:"column:method;not null"`
	Amount       int64               `gorm:"column:amount;not null"`
	PaymentKey   string              `gorm:"column:payment_key;not null"`
	Status       enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'paid'"`
	PaidAt       time.Time           `gorm:"column:paid_at;not null"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
}
