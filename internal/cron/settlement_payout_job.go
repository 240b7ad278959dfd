package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/wholesale-backend/pkg/db/models"
	"github.com/angelmondragon/wholesale-backend/pkg/logger"
)

const defaultPayoutBatchSize = 200

type payoutService interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Settlement, error)
	CompleteScheduled(ctx context.Context, settlementID uuid.UUID) (bool, error)
}

type SettlementPayoutJobParams struct {
	Logger      *logger.Logger
	Settlements payoutService
	BatchSize   int
}

// NewSettlementPayoutJob completes pending settlements whose payout date has
// passed. Each settlement commits on its own so one failure does not block
// the rest; failures are combined into the returned error.
func NewSettlementPayoutJob(params SettlementPayoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlements service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPayoutBatchSize
	}
	return &settlementPayoutJob{
		logg:        params.Logger,
		settlements: params.Settlements,
		batchSize:   batch,
		now:         time.Now,
	}, nil
}

type settlementPayoutJob struct {
	logg        *logger.Logger
	settlements payoutService
	batchSize   int
	now         func() time.Time
}

func (j *settlementPayoutJob) Name() string { return "settlement-payout" }

func (j *settlementPayoutJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	due, err := j.settlements.ListDue(ctx, now, j.batchSize)
	if err != nil {
		return fmt.Errorf("list due settlements: %w", err)
	}

	var (
		errs      error
		completed int
		skipped   int
	)
	for _, settlement := range due {
		ok, err := j.settlements.CompleteScheduled(ctx, settlement.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("settlement %s: %w", settlement.ID, err))
			continue
		}
		if ok {
			completed++
		} else {
			skipped++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":       len(due),
		"completed": completed,
		"skipped":   skipped,
		"failed":    len(multierr.Errors(errs)),
	})
	if errs != nil {
		j.logg.Warn(logCtx, "settlement payout finished with failures")
		return errs
	}
	j.logg.Info(logCtx, "settlement payout complete")
	return nil
}
