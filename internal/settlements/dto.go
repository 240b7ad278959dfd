package settlements

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/wholesale-backend/pkg/db/models"
	"github.com/angelmondragon/wholesale-backend/pkg/enums"
)

// SettlementDTO is the API shape of a settlement.
type SettlementDTO struct {
	ID                uuid.UUID              `json:"id"`
	OrderID           uuid.UUID              `json:"orderId"`
	WholesalerID      uuid.UUID              `json:"wholesalerId"`
	OrderAmount       int64                  `json:"orderAmount"`
	PlatformFeeRate   decimal.Decimal        `json:"platformFeeRate"`
	PlatformFee       int64                  `json:"platformFee"`
	WholesalerAmount  int64                  `json:"wholesalerAmount"`
	Status            enums.SettlementStatus `json:"status"`
	ScheduledPayoutAt time.Time              `json:"scheduledPayoutAt"`
	CompletedAt       *time.Time             `json:"completedAt,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
}

func mapSettlement(s models.Settlement) SettlementDTO {
	return SettlementDTO{
		ID:                s.ID,
		OrderID:           s.OrderID,
		WholesalerID:      s.WholesalerID,
		OrderAmount:       s.OrderAmount,
		PlatformFeeRate:   s.PlatformFeeRate,
		PlatformFee:       s.PlatformFee,
		WholesalerAmount:  s.WholesalerAmount,
		Status:            s.Status,
		ScheduledPayoutAt: s.ScheduledPayoutAt,
		CompletedAt:       s.CompletedAt,
		CreatedAt:         s.CreatedAt,
	}
}

// ListInput carries the list query parameters.
type ListInput struct {
	Status *enums.SettlementStatus
	Limit  int
	Cursor string
}
