package settlements

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

// Service exposes settlement reads and payout completion.
type Service interface {
	List(ctx context.Context, principal auth.Principal, input ListInput) (*pagination.Page[SettlementDTO], error)
	CompleteEarly(ctx context.Context, principal auth.Principal, settlementID uuid.UUID) (*SettlementDTO, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Settlement, error)
	CompleteScheduled(ctx context.Context, settlementID uuid.UUID) (bool, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
	now    func() time.Time
}

// NewService wires the settlements service.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settlements repository required")
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

// NotFound is returned for settlements that do not exist or are not visible
// to the caller.
func NotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
}

// List returns the caller's settlements. Wholesalers only ever see their own
// rows; admins see every row.
func (s *service) List(ctx context.Context, principal auth.Principal, input ListInput) (*pagination.Page[SettlementDTO], error) {
	if !principal.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	filter := ListFilter{Status: input.Status}
	switch principal.Role {
	case enums.MemberRoleAdmin:
	case enums.MemberRoleWholesaler:
		filter.WholesalerID = &principal.UserID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "settlements are visible to wholesalers and admins only")
	}

	rows, err := s.repo.List(ctx, filter, pagination.Params{Limit: input.Limit, Cursor: input.Cursor})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlements")
	}

	dtos := make([]SettlementDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, mapSettlement(row))
	}
	page := pagination.Build(dtos, input.Limit, func(d SettlementDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	})
	return &page, nil
}

// CompleteEarly pays out a pending settlement ahead of its schedule.
func (s *service) CompleteEarly(ctx context.Context, principal auth.Principal, settlementID uuid.UUID) (*SettlementDTO, error) {
	if !principal.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can complete settlements early")
	}

	var result SettlementDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		settlement, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, settlementID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
		}
		if settlement.Status != enums.SettlementStatusPending {
			return notPending(settlement.Status)
		}
		actor := &outbox.ActorRef{UserID: principal.UserID, Role: principal.Role}
		ok, err := s.complete(ctx, tx, settlement, true, actor)
		if err != nil {
			return err
		}
		if !ok {
			return notPending(enums.SettlementStatusCompleted)
		}
		result = mapSettlement(*settlement)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Settlement, error) {
	return s.repo.ListDue(ctx, now, limit)
}

// CompleteScheduled completes one due settlement for the payout job. It
// reports false when another worker or an admin completed it first.
func (s *service) CompleteScheduled(ctx context.Context, settlementID uuid.UUID) (bool, error) {
	var completed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		settlement, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, settlementID)
		if err != nil {
			return err
		}
		if settlement.Status != enums.SettlementStatusPending {
			return nil
		}
		completed, err = s.complete(ctx, tx, settlement, false, nil)
		return err
	})
	return completed, err
}

func (s *service) complete(ctx context.Context, tx *gorm.DB, settlement *models.Settlement, early bool, actor *outbox.ActorRef) (bool, error) {
	at := s.now()
	ok, err := s.repo.WithTx(tx).MarkCompleted(ctx, settlement.ID, at)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete settlement")
	}
	if !ok {
		return false, nil
	}
	settlement.Status = enums.SettlementStatusCompleted
	settlement.CompletedAt = &at
	settlement.UpdatedAt = at

	event := outbox.DomainEvent{
		EventType:     enums.EventSettlementCompleted,
		AggregateType: enums.AggregateSettlement,
		AggregateID:   settlement.ID,
		Actor:         actor,
		OccurredAt:    at,
		Data: payloads.SettlementCompletedEvent{
			SettlementID:     settlement.ID,
			OrderID:          settlement.OrderID,
			WholesalerID:     settlement.WholesalerID,
			WholesalerAmount: settlement.WholesalerAmount,
			CompletedAt:      at,
			Early:            early,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit settlement completed event")
	}
	return true, nil
}

func notPending(status enums.SettlementStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("settlement is %s, only pending settlements can be completed", status)).
		WithDetails(map[string]string{"status": string(status)})
}
