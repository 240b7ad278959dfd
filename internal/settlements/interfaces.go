package settlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/wholesale-backend/pkg/db/models"
	"github.com/angelmondragon/wholesale-backend/pkg/enums"
	"github.com/angelmondragon/wholesale-backend/pkg/pagination"
)

// Repository defines persistence operations for the settlements table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, settlement *models.Settlement) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Settlement, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Settlement, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Settlement, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// ListFilter narrows List. A nil field does not filter.
type ListFilter struct {
	WholesalerID *uuid.UUID
	Status       *enums.SettlementStatus
}
