package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/wholesale-backend/internal/orders"
	"github.com/angelmondragon/wholesale-backend/internal/settlements"
	pkgdb "github.com/angelmondragon/wholesale-backend/pkg/db"
	"github.com/angelmondragon/wholesale-backend/pkg/db/models"
	"github.com/angelmondragon/wholesale-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
	"github.com/angelmondragon/wholesale-backend/pkg/logger"
	"github.com/angelmondragon/wholesale-backend/pkg/outbox"
	"github.com/angelmondragon/wholesale-backend/pkg/outbox/payloads"
)

const (
	constraintOrderPaymentKey    = "ux_orders_payment_key"
	constraintSettlementPerOrder = "ux_settlements_order_id"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// WriteInput is a gateway-confirmed payment to settle.
type WriteInput struct {
	Order      models.Order
	PaymentKey string
	ApprovedAt time.Time
	Amount     int64
	Method     string
}

// WriteResult reports what the writer persisted. Settlement is always set on
// success; Payment is nil when its best-effort write failed.
type WriteResult struct {
	Settlement *models.Settlement
	Payment    *models.Payment
	PaymentErr error
}

// Complete reports whether the payment record was written too.
func (r *WriteResult) Complete() bool {
	return r != nil && r.Payment != nil && r.PaymentErr == nil
}

// PaymentID returns the payment row id, or nil on partial success.
func (r *WriteResult) PaymentID() *uuid.UUID {
	if !r.Complete() {
		return nil
	}
	id := r.Payment.ID
	return &id
}

type WriterParams struct {
	TransactionRunner txRunner
	Orders            orders.Repository
	Settlements       settlements.Repository
	Payments          Repository
	Outbox            outbox.Emitter
	FeeRate           decimal.Decimal
	PayoutOffset      time.Duration
	DefaultMethod     string
	Logger            *logger.Logger
}

// Writer turns a confirmed payment into a settlement, a paid order and a
// payment record.
type Writer struct {
	tx            txRunner
	orders        orders.Repository
	settlements   settlements.Repository
	payments      Repository
	outbox        outbox.Emitter
	feeRate       decimal.Decimal
	payoutOffset  time.Duration
	defaultMethod string
	logg          *logger.Logger
}

func NewWriter(params WriterParams) (*Writer, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlements repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.FeeRate.IsNegative() || params.FeeRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee rate must be within [0,1]")
	}
	method := strings.TrimSpace(params.DefaultMethod)
	if method == "" {
		method = "card"
	}
	return &Writer{
		tx:            params.TransactionRunner,
		orders:        params.Orders,
		settlements:   params.Settlements,
		payments:      params.Payments,
		outbox:        params.Outbox,
		feeRate:       params.FeeRate,
		payoutOffset:  params.PayoutOffset,
		defaultMethod: method,
		logg:          params.Logger,
	}, nil
}

// Write records the settlement and binds the payment to the order in one
// transaction together with the order_paid event, then writes the payment row.
// A failed payment write does not undo the settlement; it is reported through
// WriteResult.PaymentErr.
func (w *Writer) Write(ctx context.Context, input WriteInput) (*WriteResult, error) {
	if input.Order.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order required")
	}
	if strings.TrimSpace(input.PaymentKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment key required")
	}
	approvedAt := input.ApprovedAt.UTC()
	split, err := settlements.Calculate(input.Amount, w.feeRate, approvedAt, w.payoutOffset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "calculate settlement")
	}

	order := input.Order
	settlement := &models.Settlement{
		ID:                uuid.New(),
		OrderID:           order.ID,
		WholesalerID:      order.WholesalerID,
		OrderAmount:       split.OrderAmount,
		PlatformFeeRate:   split.PlatformFeeRate,
		PlatformFee:       split.PlatformFee,
		WholesalerAmount:  split.WholesalerAmount,
		Status:            enums.SettlementStatusPending,
		ScheduledPayoutAt: split.ScheduledPayoutAt,
	}

	err = w.tx.WithTx(ctx, func(tx *gorm.DB) error {
		settlementRepo := w.settlements.WithTx(tx)
		if _, err := settlementRepo.FindByOrderID(ctx, order.ID); err == nil {
			return alreadySettled()
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing settlement")
		}

		if err := settlementRepo.Create(ctx, settlement); err != nil {
			if pkgdb.IsUniqueViolation(err, constraintSettlementPerOrder) {
				return alreadySettled()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlement")
		}

		ok, err := w.orders.WithTx(tx).MarkPaid(ctx, order.ID, input.PaymentKey, approvedAt)
		if err != nil {
			if pkgdb.IsUniqueViolation(err, constraintOrderPaymentKey) {
				return DuplicatePayment()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting payment").
				WithDetails(map[string]string{"from": string(order.Status), "to": string(enums.OrderStatusConfirmed)})
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			OccurredAt:    approvedAt,
			Data: payloads.OrderPaidEvent{
				OrderID:           order.ID,
				OrderNumber:       order.OrderNumber,
				RetailerID:        order.RetailerID,
				WholesalerID:      order.WholesalerID,
				SettlementID:      settlement.ID,
				PaymentKey:        input.PaymentKey,
				Amount:            split.OrderAmount,
				PlatformFee:       split.PlatformFee,
				WholesalerAmount:  split.WholesalerAmount,
				PaidAt:            approvedAt,
				ScheduledPayoutAt: split.ScheduledPayoutAt,
			},
		}
		if err := w.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order paid event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &WriteResult{Settlement: settlement}
	method := strings.TrimSpace(input.Method)
	if method == "" {
		method = w.defaultMethod
	}
	payment := &models.Payment{
		ID:           uuid.New(),
		OrderID:      order.ID,
		SettlementID: settlement.ID,
		Method:       method,
		Amount:       split.OrderAmount,
		PaymentKey:   input.PaymentKey,
		Status:       enums.PaymentStatusPaid,
		PaidAt:       approvedAt,
	}
	if err := w.payments.Create(ctx, payment); err != nil {
		logCtx := w.logg.WithFields(ctx, map[string]any{
			"order_id":      order.ID.String(),
			"settlement_id": settlement.ID.String(),
		})
		w.logg.Error(logCtx, "payment record write failed after settlement", err)
		result.PaymentErr = err
		return result, nil
	}
	result.Payment = payment
	return result, nil
}

// DuplicatePayment is returned when a payment key is already bound to another order.
func DuplicatePayment() error {
	return pkgerrors.New(pkgerrors.CodeDuplicatePayment, "payment key already bound to another order")
}

func alreadySettled() error {
	return pkgerrors.New(pkgerrors.CodeDuplicatePayment, "order already settled")
}
