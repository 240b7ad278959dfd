package tosswebhook

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/wholesale-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
	"github.com/angelmondragon/wholesale-backend/pkg/logger"
	"github.com/angelmondragon/wholesale-backend/pkg/toss"
)

// EventPaymentStatusChanged is the only event type that settles payments.
const EventPaymentStatusChanged = "PAYMENT_STATUS_CHANGED"

// Event is the callback body posted by the payment gateway.
type Event struct {
	EventType string    `json:"eventType"`
	CreatedAt string    `json:"createdAt,omitempty"`
	Data      EventData `json:"data"`
}

type EventData struct {
	PaymentKey  string          `json:"paymentKey"`
	OrderID     string          `json:"orderId"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	ApprovedAt  string          `json:"approvedAt"`
	Method      string          `json:"method,omitempty"`
}

// Outcome tells the controller how to answer. Result is nil when the event
// was ignored or already delivered.
type Outcome struct {
	Ignored   bool
	Duplicate bool
	Result    *payments.Result
}

type callbackProcessor interface {
	ProcessCallback(ctx context.Context, input payments.CallbackInput) (*payments.Result, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

type ServiceParams struct {
	Payments callbackProcessor
	Guard    deliveryGuard
	Logger   *logger.Logger
}

type Service struct {
	payments callbackProcessor
	guard    deliveryGuard
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments: params.Payments,
		guard:    params.Guard,
		logg:     params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event Event) (*Outcome, error) {
	if event.EventType != EventPaymentStatusChanged || event.Data.Status != toss.StatusDone {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_type": event.EventType,
			"status":     event.Data.Status,
		}), "toss callback ignored")
		return &Outcome{Ignored: true}, nil
	}

	paymentKey := strings.TrimSpace(event.Data.PaymentKey)
	if paymentKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paymentKey is required").
			WithDetails(map[string]string{"paymentKey": "required"})
	}

	deliveryID := DeliveryID(paymentKey, event.Data.Status)
	seen, err := s.guard.CheckAndMark(ctx, deliveryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency")
	}
	if seen {
		s.logg.Info(s.logg.WithField(ctx, "payment_key", paymentKey), "toss callback already delivered")
		return &Outcome{Duplicate: true}, nil
	}

	result, err := s.payments.ProcessCallback(ctx, payments.CallbackInput{
		PaymentKey:  paymentKey,
		OrderID:     event.Data.OrderID,
		TotalAmount: event.Data.TotalAmount,
		ApprovedAt:  event.Data.ApprovedAt,
		Method:      event.Data.Method,
	})
	if err != nil {
		if delErr := s.guard.Delete(ctx, deliveryID); delErr != nil {
			s.logg.Error(s.logg.WithField(ctx, "payment_key", paymentKey), "failed to clear webhook idempotency key", delErr)
		}
		return nil, err
	}
	return &Outcome{Result: result}, nil
}
