package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/wholesale-backend/pkg/auth"
	"github.com/angelmondragon/wholesale-backend/pkg/db/models"
	"github.com/angelmondragon/wholesale-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
	"github.com/angelmondragon/wholesale-backend/pkg/outbox"
	"github.com/angelmondragon/wholesale-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/wholesale-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes order reads scoped to the caller and the fulfillment
// transitions that follow payment.
type Service interface {
	Get(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*OrderDTO, error)
	List(ctx context.Context, principal auth.Principal, input ListInput) (*pagination.Page[OrderDTO], error)
	Ship(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*OrderDTO, error)
	Complete(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*OrderDTO, error)
	Cancel(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*OrderDTO, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
	now    func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: emitter,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// NotFound is the error returned for orders that do not exist or are not
// visible to the caller.
func NotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *service) Get(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*OrderDTO, error) {
	if !principal.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !visibleTo(*order, principal) {
		return nil, NotFound()
	}
	dto := mapOrder(*order)
	return &dto, nil
}

func (s *service) List(ctx context.Context, principal auth.Principal, input ListInput) (*pagination.Page[OrderDTO], error) {
	if !principal.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	filter := ListFilter{Status: input.Status}
	switch principal.Role {
	case enums.MemberRoleRetailer:
		filter.RetailerID = &principal.UserID
	case enums.MemberRoleWholesaler:
		filter.WholesalerID = &principal.UserID
	}

	params := pagination.Params{Limit: input.Limit, Cursor: input.Cursor}
	rows, err := s.repo.List(ctx, filter, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	dtos := make([]OrderDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, mapOrder(row))
	}
	page := pagination.Build(dtos, input.Limit, func(o OrderDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &page, nil
}

func (s *service) Ship(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*OrderDTO, error) {
	return s.transition(ctx, principal, orderID, enums.OrderStatusShipped, func(order models.Order) bool {
		return principal.Role == enums.MemberRoleWholesaler && order.WholesalerID == principal.UserID
	})
}

func (s *service) Complete(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*OrderDTO, error) {
	return s.transition(ctx, principal, orderID, enums.OrderStatusCompleted, func(order models.Order) bool {
		if principal.IsAdmin() {
			return true
		}
		return principal.Role == enums.MemberRoleRetailer && order.RetailerID == principal.UserID
	})
}

func (s *service) Cancel(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*OrderDTO, error) {
	return s.transition(ctx, principal, orderID, enums.OrderStatusCancelled, func(order models.Order) bool {
		return visibleTo(order, principal)
	})
}

func (s *service) transition(ctx context.Context, principal auth.Principal, orderID uuid.UUID, target enums.OrderStatus, allowed func(models.Order) bool) (*OrderDTO, error) {
	if !principal.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var result OrderDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if !visibleTo(*order, principal) {
			return NotFound()
		}
		if !allowed(*order) {
			return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("role %s cannot move order to %s", principal.Role, target))
		}
		if order.Status == target {
			result = mapOrder(*order)
			return nil
		}
		if !order.Status.CanTransitionTo(target) {
			return stateConflict(order.Status, target)
		}

		from := order.Status
		at := s.now()
		ok, err := repo.TransitionStatus(ctx, order.ID, from, target, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return stateConflict(from, target)
		}
		applyTransition(order, target, at)

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: principal.UserID, Role: principal.Role},
			OccurredAt:    at,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:      order.ID,
				RetailerID:   order.RetailerID,
				WholesalerID: order.WholesalerID,
				From:         from,
				To:           target,
				ChangedAt:    at,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
		}
		result = mapOrder(*order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func stateConflict(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot move from %s to %s", from, to)).
		WithDetails(map[string]string{"from": string(from), "to": string(to)})
}

func applyTransition(order *models.Order, target enums.OrderStatus, at time.Time) {
	order.Status = target
	order.UpdatedAt = at
	switch target {
	case enums.OrderStatusShipped:
		order.ShippedAt = &at
	case enums.OrderStatusCompleted:
		order.CompletedAt = &at
	case enums.OrderStatusCancelled:
		order.CancelledAt = &at
	}
}

func visibleTo(order models.Order, principal auth.Principal) bool {
	switch principal.Role {
	case enums.MemberRoleAdmin:
		return true
	case enums.MemberRoleRetailer:
		return order.RetailerID == principal.UserID
	case enums.MemberRoleWholesaler:
		return order.WholesalerID == principal.UserID
	default:
		return false
	}
}
