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
	"github.com/angelmondragon/wholesale-backend/pkg/auth"
	"github.com/angelmondragon/wholesale-backend/pkg/db/models"
	"github.com/angelmondragon/wholesale-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
	"github.com/angelmondragon/wholesale-backend/pkg/logger"
	"github.com/angelmondragon/wholesale-backend/pkg/toss"
)

const (
	flowConfirm  = "confirm"
	flowCallback = "callback"

	outcomeSuccess = "success"
	outcomePartial = "partial"
	outcomeReplay  = "replay"

	partialWarning = "payment confirmed and settlement recorded, but the payment record could not be saved"
)

// Gateway confirms payments with the payment provider.
type Gateway interface {
	Confirm(ctx context.Context, req toss.ConfirmRequest) (*toss.Payment, error)
}

type outcomeRecorder interface {
	IncOutcome(flow, outcome string)
}

// ConfirmInput is the client's request to capture an authorized payment.
// Principal is the caller; only the buying retailer or an admin may confirm.
type ConfirmInput struct {
	Principal  auth.Principal
	PaymentKey string
	OrderID    string
	Amount     decimal.Decimal
}

// CallbackInput is a payment the gateway reports as captured.
type CallbackInput struct {
	PaymentKey  string
	OrderID     string
	TotalAmount decimal.Decimal
	ApprovedAt  string
	Method      string
}

// Result is the outcome of a confirmation or callback. PaymentID is nil when
// the payment record could not be written, in which case Warning is set.
type Result struct {
	OrderID      uuid.UUID
	SettlementID *uuid.UUID
	PaymentID    *uuid.UUID
	Warning      string
	Replayed     bool
}

type ServiceParams struct {
	Orders      orders.Repository
	Settlements settlements.Repository
	Payments    Repository
	Writer      *Writer
	Gateway     Gateway
	Metrics     outcomeRecorder
	Logger      *logger.Logger
}

// Service runs the confirmation chain: validate, look up the order, detect
// replays and duplicate keys, reconcile the amount, confirm with the gateway
// and settle.
type Service struct {
	orders      orders.Repository
	settlements settlements.Repository
	payments    Repository
	writer      *Writer
	gateway     Gateway
	metrics     outcomeRecorder
	logg        *logger.Logger
	now         func() time.Time
}

// NewService wires the payment service. A nil Gateway is allowed so the API
// can start without gateway credentials; every confirmation then fails.
func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Settlements == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlements repository required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repository required")
	}
	if params.Writer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement writer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		orders:      params.Orders,
		settlements: params.Settlements,
		payments:    params.Payments,
		writer:      params.Writer,
		gateway:     params.Gateway,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Confirm captures a payment. Nothing is written unless the gateway approves.
func (s *Service) Confirm(ctx context.Context, input ConfirmInput) (result *Result, err error) {
	defer func() { s.record(flowConfirm, result, err) }()

	paymentKey := strings.TrimSpace(input.PaymentKey)
	orderRef := strings.TrimSpace(input.OrderID)
	if err := validateFields(paymentKey, orderRef, input.Amount, "amount"); err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway is not configured")
	}
	if !input.Principal.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": orderRef, "payment_key": paymentKey})

	order, err := s.loadOrder(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	if !payableBy(*order, input.Principal) {
		return nil, orders.NotFound()
	}
	if order.BoundPaymentKey() == paymentKey {
		s.logg.Info(ctx, "payment already applied to order")
		return s.replay(ctx, order)
	}
	if err := s.ensureKeyUnbound(ctx, paymentKey, order.ID); err != nil {
		return nil, err
	}
	if err := reconcileAmount(order, input.Amount); err != nil {
		return nil, err
	}
	if err := s.ensureSettleable(ctx, order); err != nil {
		return nil, err
	}

	payment, err := s.gateway.Confirm(ctx, toss.ConfirmRequest{
		PaymentKey: paymentKey,
		OrderID:    orderRef,
		Amount:     order.TotalAmount,
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payment gateway confirmation failed")
		return nil, mapGatewayError(err)
	}
	if !payment.Approved() {
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotApproved, fmt.Sprintf("payment status is %s", payment.Status)).
			WithDetails(map[string]string{"status": payment.Status})
	}

	approvedAt, err := payment.ApprovedTime()
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "gateway approval time unusable, using server time")
		approvedAt = s.now()
	}

	return s.settle(ctx, WriteInput{
		Order:      *order,
		PaymentKey: paymentKey,
		ApprovedAt: approvedAt,
		Amount:     order.TotalAmount,
		Method:     payment.Method,
	})
}

// ProcessCallback settles a payment the gateway reports as done. A repeated
// callback for the key the order was settled with returns the existing ids; a
// different key on a settled order is a duplicate payment.
func (s *Service) ProcessCallback(ctx context.Context, input CallbackInput) (result *Result, err error) {
	defer func() { s.record(flowCallback, result, err) }()

	paymentKey := strings.TrimSpace(input.PaymentKey)
	orderRef := strings.TrimSpace(input.OrderID)
	if err := validateFields(paymentKey, orderRef, input.TotalAmount, "totalAmount"); err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": orderRef, "payment_key": paymentKey})

	order, err := s.loadOrder(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	if err := s.ensureKeyUnbound(ctx, paymentKey, order.ID); err != nil {
		return nil, err
	}
	if err := reconcileAmount(order, input.TotalAmount); err != nil {
		return nil, err
	}

	switch bound := order.BoundPaymentKey(); {
	case bound == paymentKey:
		s.logg.Info(ctx, "callback for settled order")
		return s.replay(ctx, order)
	case bound != "":
		s.logg.Warn(s.logg.WithField(ctx, "bound_payment_key", bound), "callback reports a second payment for a settled order")
		return nil, alreadySettled()
	}
	if _, err := s.settlements.FindByOrderID(ctx, order.ID); err == nil {
		s.logg.Warn(ctx, "callback for order settled without a bound payment key")
		return nil, alreadySettled()
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing settlement")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, notAwaitingPayment(order.Status)
	}

	approvedAt := s.now()
	if raw := strings.TrimSpace(input.ApprovedAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "approved_at", raw), "callback approval time unusable, using server time")
		} else {
			approvedAt = parsed
		}
	}

	return s.settle(ctx, WriteInput{
		Order:      *order,
		PaymentKey: paymentKey,
		ApprovedAt: approvedAt,
		Amount:     order.TotalAmount,
		Method:     input.Method,
	})
}

func (s *Service) settle(ctx context.Context, input WriteInput) (*Result, error) {
	written, err := s.writer.Write(ctx, input)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDuplicatePayment) {
			// a concurrent request with the same key may have settled first
			if replayed, ok, replayErr := s.replayIfBound(ctx, input.Order.ID, input.PaymentKey); ok || replayErr != nil {
				return replayed, replayErr
			}
		}
		return nil, err
	}
	settlementID := written.Settlement.ID
	result := &Result{
		OrderID:      input.Order.ID,
		SettlementID: &settlementID,
		PaymentID:    written.PaymentID(),
	}
	if !written.Complete() {
		result.Warning = partialWarning
	}
	s.logg.Info(s.logg.WithField(ctx, "settlement_id", settlementID.String()), "payment settled")
	return result, nil
}

// replayIfBound reloads the order and replays it when it is bound to paymentKey.
func (s *Service) replayIfBound(ctx context.Context, orderID uuid.UUID, paymentKey string) (*Result, bool, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	if order.BoundPaymentKey() != paymentKey {
		return nil, false, nil
	}
	s.logg.Info(ctx, "payment settled by a concurrent request")
	result, err := s.replay(ctx, order)
	return result, err == nil, err
}

func (s *Service) replay(ctx context.Context, order *models.Order) (*Result, error) {
	result := &Result{OrderID: order.ID, Replayed: true}
	settlement, err := s.settlements.FindByOrderID(ctx, order.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
	}
	settlementID := settlement.ID
	result.SettlementID = &settlementID

	payment, err := s.payments.FindBySettlementID(ctx, settlement.ID)
	switch {
	case err == nil:
		paymentID := payment.ID
		result.PaymentID = &paymentID
	case errors.Is(err, gorm.ErrRecordNotFound):
		result.Warning = partialWarning
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return result, nil
}

func (s *Service) loadOrder(ctx context.Context, ref string) (*models.Order, error) {
	orderID, err := uuid.Parse(ref)
	if err != nil {
		return nil, orders.NotFound()
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orders.NotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func payableBy(order models.Order, principal auth.Principal) bool {
	switch principal.Role {
	case enums.MemberRoleAdmin:
		return true
	case enums.MemberRoleRetailer:
		return order.RetailerID == principal.UserID
	default:
		return false
	}
}

func (s *Service) ensureKeyUnbound(ctx context.Context, paymentKey string, orderID uuid.UUID) error {
	other, err := s.orders.FindByPaymentKey(ctx, paymentKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payment key")
	}
	if other.ID != orderID {
		return DuplicatePayment()
	}
	return nil
}

func (s *Service) ensureSettleable(ctx context.Context, order *models.Order) error {
	if _, err := s.settlements.FindByOrderID(ctx, order.ID); err == nil {
		return alreadySettled()
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing settlement")
	}
	if order.Status != enums.OrderStatusPending {
		return notAwaitingPayment(order.Status)
	}
	return nil
}

func (s *Service) record(flow string, result *Result, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncOutcome(flow, outcomeOf(result, err))
}

func outcomeOf(result *Result, err error) string {
	switch {
	case err != nil:
		return strings.ToLower(string(pkgerrors.CodeOf(err)))
	case result == nil:
		return outcomeSuccess
	case result.Replayed:
		return outcomeReplay
	case result.PaymentID == nil:
		return outcomePartial
	default:
		return outcomeSuccess
	}
}

func validateFields(paymentKey, orderRef string, amount decimal.Decimal, amountField string) error {
	missing := map[string]string{}
	if paymentKey == "" {
		missing["paymentKey"] = "required"
	}
	if orderRef == "" {
		missing["orderId"] = "required"
	}
	if !amount.IsPositive() {
		missing[amountField] = "must be a positive number"
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "paymentKey, orderId and a positive amount are required").
			WithDetails(missing)
	}
	return nil
}

func reconcileAmount(order *models.Order, amount decimal.Decimal) error {
	if amount.Equal(decimal.NewFromInt(order.TotalAmount)) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeAmountMismatch, "payment amount does not match order total").
		WithDetails(map[string]string{
			"expected": decimal.NewFromInt(order.TotalAmount).String(),
			"actual":   amount.String(),
		})
}

func notAwaitingPayment(status enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s and no longer awaiting payment", status)).
		WithDetails(map[string]string{"from": string(status), "to": string(enums.OrderStatusConfirmed)})
}

func mapGatewayError(err error) error {
	var gwErr *toss.GatewayError
	if !errors.As(err, &gwErr) {
		if errors.Is(err, toss.ErrSecretKeyRequired) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "payment gateway is not configured")
		}
		return pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, "payment gateway error")
	}

	details := map[string]string{}
	if gwErr.Code != "" {
		details["gatewayCode"] = gwErr.Code
	}
	if gwErr.Message != "" {
		details["gatewayMessage"] = gwErr.Message
	}

	var mapped *pkgerrors.Error
	switch gwErr.Kind {
	case toss.KindUnreachable:
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnreachable, err, "payment gateway unreachable")
	case toss.KindNotFound:
		mapped = pkgerrors.Wrap(pkgerrors.CodeGatewayNotFound, err, "payment session not found")
	case toss.KindRejected:
		mapped = pkgerrors.Wrap(pkgerrors.CodeGatewayRejected, err, "payment rejected by gateway")
	case toss.KindUnauthorized:
		mapped = pkgerrors.Wrap(pkgerrors.CodeGatewayUnauthorized, err, "payment gateway credentials rejected")
	default:
		mapped = pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, "payment gateway error")
	}
	if len(details) > 0 {
		mapped = mapped.WithDetails(details)
	}
	return mapped
}
