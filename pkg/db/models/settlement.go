package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/wholesale-backend/pkg/enums"
)

// Settlement is the fee split owed to the wholesaler for one paid order.
type Settlement struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID              `gorm:"column:order_id;type:uuid;not null"`
	WholesalerID      uuid.UUID              `gorm:"column:wholesaler_id;type:uuid;not null"`
	OrderAmount       int64                  `gorm:"column:order_amount;not null"`
	PlatformFeeRate   decimal.Decimal        `gorm:"column:platform_fee_rate;type:numeric(5,4);not null"`
	PlatformFee       int64                  `gorm:"column:platform_fee;not null"`
	WholesalerAmount  int64                  `gorm:"column:wholesaler_amount;not null"`
	Status            enums.SettlementStatus `gorm:"column:status;type:settlement_status;not null;default:'pending'"`
	ScheduledPayoutAt time.Time              `gorm:"column:scheduled_payout_at;not null"`
	CompletedAt       *time.Time             `gorm:"column:completed_at"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
