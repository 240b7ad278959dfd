package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/wholesale-backend/pkg/db/models"
	"github.com/angelmondragon/wholesale-backend/pkg/enums"
)

// OrderDTO is the API shape of an order.
type OrderDTO struct {
	ID           uuid.UUID         `json:"id"`
	OrderNumber  string            `json:"orderNumber"`
	RetailerID   uuid.UUID         `json:"retailerId"`
	WholesalerID uuid.UUID         `json:"wholesalerId"`
	TotalAmount  int64             `json:"totalAmount"`
	Status       enums.OrderStatus `json:"status"`
	PaymentKey   *string           `json:"paymentKey,omitempty"`
	PaidAt       *time.Time        `json:"paidAt,omitempty"`
	ShippedAt    *time.Time        `json:"shippedAt,omitempty"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
	CancelledAt  *time.Time        `json:"cancelledAt,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func mapOrder(order models.Order) OrderDTO {
	return OrderDTO{
		ID:           order.ID,
		OrderNumber:  order.OrderNumber,
		RetailerID:   order.RetailerID,
		WholesalerID: order.WholesalerID,
		TotalAmount:  order.TotalAmount,
		Status:       order.Status,
		PaymentKey:   order.PaymentKey,
		PaidAt:       order.PaidAt,
		ShippedAt:    order.ShippedAt,
		CompletedAt:  order.CompletedAt,
		CancelledAt:  order.CancelledAt,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
}

// ListInput carries the query parameters of GET /api/v1/orders.
type ListInput struct {
	Status *enums.OrderStatus
	Limit  int
	Cursor string
}
