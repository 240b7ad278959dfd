package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/wholesale-backend/pkg/db/models"
	"github.com/angelmondragon/wholesale-backend/pkg/enums"
	"github.com/angelmondragon/wholesale-backend/pkg/pagination"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentKey(ctx context.Context, paymentKey string) (*models.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentKey string, paidAt time.Time) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Order, error)
}

// ListFilter narrows List. A nil field does not filter.
type ListFilter struct {
	RetailerID   *uuid.UUID
	WholesalerID *uuid.UUID
	Status       *enums.OrderStatus
}
