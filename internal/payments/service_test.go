package payments

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/wholesale-backend/internal/orders"
	"github.com/angelmondragon/wholesale-backend/internal/settlements"
	"github.com/angelmondragon/wholesale-backend/pkg/auth"
	"github.com/angelmondragon/wholesale-backend/pkg/db/dbtest"
	"github.com/angelmondragon/wholesale-backend/pkg/db/models"
	"github.com/angelmondragon/wholesale-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
	"github.com/angelmondragon/wholesale-backend/pkg/logger"
	"github.com/angelmondragon/wholesale-backend/pkg/outbox"
	"github.com/angelmondragon/wholesale-backend/pkg/toss"
)

const approvedAt = "2026-03-01T10:00:00+09:00"

type fakeGateway struct {
	calls    []toss.ConfirmRequest
	response *toss.Payment
	err      error
	// during runs once inside the next gateway call
	during func()
}

func (f *fakeGateway) Confirm(_ context.Context, req toss.ConfirmRequest) (*toss.Payment, error) {
	f.calls = append(f.calls, req)
	if during := f.during; during != nil {
		f.during = nil
		during()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.response != nil {
		return f.response, nil
	}
	return &toss.Payment{
		PaymentKey:  req.PaymentKey,
		OrderID:     req.OrderID,
		Status:      toss.StatusDone,
		Method:      "카드",
		TotalAmount: req.Amount,
		ApprovedAt:  approvedAt,
	}, nil
}

type recordingMetrics struct {
	outcomes []string
}

func (r *recordingMetrics) IncOutcome(flow, outcome string) {
	r.outcomes = append(r.outcomes, flow+":"+outcome)
}

type failingPayments struct {
	Repository
}

func (f failingPayments) Create(context.Context, *models.Payment) error {
	return errors.New("payments table unavailable")
}

type fixture struct {
	conn    *gorm.DB
	gateway *fakeGateway
	metrics *recordingMetrics
	service *Service
}

func newFixture(t *testing.T, opts ...func(*ServiceParams, *WriterParams)) fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	logg := logger.Nop()

	orderRepo := orders.NewRepository(conn)
	settlementRepo := settlements.NewRepository(conn)
	paymentRepo := NewRepository(conn)
	gateway := &fakeGateway{}
	metrics := &recordingMetrics{}

	writerParams := WriterParams{
		TransactionRunner: client,
		Orders:            orderRepo,
		Settlements:       settlementRepo,
		Payments:          paymentRepo,
		Outbox:            outbox.NewService(outbox.NewRepository(conn), logg),
		FeeRate:           decimal.RequireFromString("0.05"),
		PayoutOffset:      7 * 24 * time.Hour,
		DefaultMethod:     "card",
		Logger:            logg,
	}
	serviceParams := ServiceParams{
		Orders:      orderRepo,
		Settlements: settlementRepo,
		Payments:    paymentRepo,
		Gateway:     gateway,
		Metrics:     metrics,
		Logger:      logg,
	}
	for _, opt := range opts {
		opt(&serviceParams, &writerParams)
	}

	writer, err := NewWriter(writerParams)
	require.NoError(t, err)
	serviceParams.Writer = writer
	svc, err := NewService(serviceParams)
	require.NoError(t, err)
	return fixture{conn: conn, gateway: gateway, metrics: metrics, service: svc}
}

func seedOrder(t *testing.T, conn *gorm.DB, mutate func(*models.Order)) models.Order {
	t.Helper()
	order := models.Order{
		ID:           uuid.New(),
		OrderNumber:  "ORD-" + uuid.NewString()[:8],
		RetailerID:   uuid.New(),
		WholesalerID: uuid.New(),
		TotalAmount:  100000,
		Status:       enums.OrderStatusPending,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if mutate != nil {
		mutate(&order)
	}
	require.NoError(t, orders.NewRepository(conn).Create(context.Background(), &order))
	return order
}

func buyerOf(order models.Order) auth.Principal {
	return auth.Principal{UserID: order.RetailerID, Role: enums.MemberRoleRetailer}
}

func confirmInput(order models.Order, key string) ConfirmInput {
	return ConfirmInput{
		Principal:  buyerOf(order),
		PaymentKey: key,
		OrderID:    order.ID.String(),
		Amount:     decimal.NewFromInt(order.TotalAmount),
	}
}

func countRows(t *testing.T, conn *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(model).Count(&n).Error)
	return n
}

func TestConfirmSettlesPayment(t *testing.T) {
	fx := newFixture(t)
	order := seedOrder(t, fx.conn, nil)

	result, err := fx.service.Confirm(context.Background(), confirmInput(order, "pk_1"))
	require.NoError(t, err)
	assert.Equal(t, order.ID, result.OrderID)
	require.NotNil(t, result.SettlementID)
	require.NotNil(t, result.PaymentID)
	assert.Empty(t, result.Warning)

	require.Len(t, fx.gateway.calls, 1)
	assert.Equal(t, toss.ConfirmRequest{PaymentKey: "pk_1", OrderID: order.ID.String(), Amount: 100000}, fx.gateway.calls[0])

	var settlement models.Settlement
	require.NoError(t, fx.conn.Where("order_id = ?", order.ID).First(&settlement).Error)
	assert.Equal(t, *result.SettlementID, settlement.ID)
	assert.Equal(t, int64(5000), settlement.PlatformFee)
	assert.Equal(t, int64(95000), settlement.WholesalerAmount)
	assert.Equal(t, enums.SettlementStatusPending, settlement.Status)
	wantPayout := time.Date(2026, 3, 8, 1, 0, 0, 0, time.UTC)
	assert.True(t, settlement.ScheduledPayoutAt.Equal(wantPayout), "payout %s", settlement.ScheduledPayoutAt)

	stored, err := orders.NewRepository(fx.conn).FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, stored.Status)
	assert.Equal(t, "pk_1", stored.BoundPaymentKey())
	require.NotNil(t, stored.PaidAt)

	var payment models.Payment
	require.NoError(t, fx.conn.Where("settlement_id = ?", settlement.ID).First(&payment).Error)
	assert.Equal(t, "카드", payment.Method)
	assert.Equal(t, int64(100000), payment.Amount)
	assert.Equal(t, enums.PaymentStatusPaid, payment.Status)

	var events int64
	require.NoError(t, fx.conn.Model(&models.OutboxEvent{}).Where("event_type = ? AND aggregate_id = ?", enums.EventOrderPaid, order.ID).Count(&events).Error)
	assert.Equal(t, int64(1), events)
	assert.Equal(t, []string{"confirm:success"}, fx.metrics.outcomes)
}

func TestConfirmReplayReturnsExistingSettlement(t *testing.T) {
	fx := newFixture(t)
	order := seedOrder(t, fx.conn, nil)

	first, err := fx.service.Confirm(context.Background(), confirmInput(order, "pk_1"))
	require.NoError(t, err)

	second, err := fx.service.Confirm(context.Background(), confirmInput(order, "pk_1"))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.SettlementID, second.SettlementID)
	assert.Equal(t, first.PaymentID, second.PaymentID)

	assert.Len(t, fx.gateway.calls, 1)
	assert.Equal(t, int64(1), countRows(t, fx.conn, &models.Settlement{}))
	assert.Equal(t, int64(1), countRows(t, fx.conn, &models.Payment{}))
	assert.Equal(t, []string{"confirm:success", "confirm:replay"}, fx.metrics.outcomes)
}

func TestConfirmRejectsKeyBoundToAnotherOrder(t *testing.T) {
	fx := newFixture(t)
	paid := seedOrder(t, fx.conn, nil)
	other := seedOrder(t, fx.conn, nil)

	_, err := fx.service.Confirm(context.Background(), confirmInput(paid, "pk_shared"))
	require.NoError(t, err)

	_, err = fx.service.Confirm(context.Background(), confirmInput(other, "pk_shared"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicatePayment), "got %v", err)
	assert.Len(t, fx.gateway.calls, 1)
	assert.Equal(t, int64(1), countRows(t, fx.conn, &models.Settlement{}))
}

func TestConfirmRejectsAmountMismatchWithoutCallingGateway(t *testing.T) {
	fx := newFixture(t)
	order := seedOrder(t, fx.conn, nil)

	for _, amount := range []string{"99999", "100001", "100000.5"} {
		input := confirmInput(order, "pk_1")
		input.Amount = decimal.RequireFromString(amount)
		_, err := fx.service.Confirm(context.Background(), input)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAmountMismatch), "amount %s: %v", amount, err)
	}
	assert.Empty(t, fx.gateway.calls)
	assert.Equal(t, int64(0), countRows(t, fx.conn, &models.Settlement{}))
}

func TestConfirmValidationAndLookup(t *testing.T) {
	fx := newFixture(t)
	order := seedOrder(t, fx.conn, nil)
	buyer := buyerOf(order)

	cases := []struct {
		name  string
		input ConfirmInput
		code  pkgerrors.Code
	}{
		{name: "no principal", input: ConfirmInput{PaymentKey: "pk", OrderID: order.ID.String(), Amount: decimal.NewFromInt(100000)}, code: pkgerrors.CodeUnauthorized},
		{name: "missing key", input: ConfirmInput{OrderID: order.ID.String(), Amount: decimal.NewFromInt(100000)}, code: pkgerrors.CodeValidation},
		{name: "missing order", input: ConfirmInput{PaymentKey: "pk", Amount: decimal.NewFromInt(100000)}, code: pkgerrors.CodeValidation},
		{name: "zero amount", input: ConfirmInput{PaymentKey: "pk", OrderID: order.ID.String()}, code: pkgerrors.CodeValidation},
		{name: "negative amount", input: ConfirmInput{PaymentKey: "pk", OrderID: order.ID.String(), Amount: decimal.NewFromInt(-5)}, code: pkgerrors.CodeValidation},
		{name: "malformed order id", input: ConfirmInput{Principal: buyer, PaymentKey: "pk", OrderID: "order-1", Amount: decimal.NewFromInt(100000)}, code: pkgerrors.CodeNotFound},
		{name: "unknown order", input: ConfirmInput{Principal: buyer, PaymentKey: "pk", OrderID: uuid.NewString(), Amount: decimal.NewFromInt(100000)}, code: pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.service.Confirm(context.Background(), tc.input)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
	assert.Empty(t, fx.gateway.calls)
}

func TestConfirmNotApprovedWritesNothing(t *testing.T) {
	fx := newFixture(t)
	fx.gateway.response = &toss.Payment{Status: "READY"}
	order := seedOrder(t, fx.conn, nil)

	_, err := fx.service.Confirm(context.Background(), confirmInput(order, "pk_1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentNotApproved), "got %v", err)
	assert.Equal(t, int64(0), countRows(t, fx.conn, &models.Settlement{}))

	stored, err := orders.NewRepository(fx.conn).FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
	assert.Nil(t, stored.PaymentKey)
}

func TestConfirmMapsGatewayFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code pkgerrors.Code
	}{
		{name: "network", err: &toss.GatewayError{Kind: toss.KindUnreachable, Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, code: pkgerrors.CodeGatewayUnreachable},
		{name: "session", err: &toss.GatewayError{Kind: toss.KindNotFound, Status: 404, Code: "NOT_FOUND_PAYMENT_SESSION"}, code: pkgerrors.CodeGatewayNotFound},
		{name: "rejected", err: &toss.GatewayError{Kind: toss.KindRejected, Status: 403, Code: "REJECT_CARD_PAYMENT"}, code: pkgerrors.CodeGatewayRejected},
		{name: "unauthorized", err: &toss.GatewayError{Kind: toss.KindUnauthorized, Status: 401, Code: "UNAUTHORIZED_KEY"}, code: pkgerrors.CodeGatewayUnauthorized},
		{name: "unknown", err: &toss.GatewayError{Kind: toss.KindUnknown, Status: 500, Code: "PROVIDER_ERROR"}, code: pkgerrors.CodeGatewayError},
		{name: "unclassified", err: errors.New("boom"), code: pkgerrors.CodeGatewayError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.gateway.err = tc.err
			order := seedOrder(t, fx.conn, nil)

			_, err := fx.service.Confirm(context.Background(), confirmInput(order, "pk_1"))
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
			assert.Equal(t, int64(0), countRows(t, fx.conn, &models.Settlement{}))
			assert.Equal(t, int64(0), countRows(t, fx.conn, &models.OutboxEvent{}))
		})
	}
}

func TestConfirmWithoutGatewayIsInternal(t *testing.T) {
	fx := newFixture(t, func(sp *ServiceParams, _ *WriterParams) { sp.Gateway = nil })
	order := seedOrder(t, fx.conn, nil)

	_, err := fx.service.Confirm(context.Background(), confirmInput(order, "pk_1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal), "got %v", err)
	assert.Equal(t, int64(0), countRows(t, fx.conn, &models.Settlement{}))
}

func TestConfirmRejectsCancelledOrderBeforeGateway(t *testing.T) {
	fx := newFixture(t)
	order := seedOrder(t, fx.conn, func(o *models.Order) { o.Status = enums.OrderStatusCancelled })

	_, err := fx.service.Confirm(context.Background(), confirmInput(order, "pk_1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
	assert.Empty(t, fx.gateway.calls)
}

func TestConfirmNewKeyOnSettledOrderIsDuplicate(t *testing.T) {
	fx := newFixture(t)
	order := seedOrder(t, fx.conn, nil)

	_, err := fx.service.Confirm(context.Background(), confirmInput(order, "pk_1"))
	require.NoError(t, err)

	_, err = fx.service.Confirm(context.Background(), confirmInput(order, "pk_2"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicatePayment), "got %v", err)
	assert.Len(t, fx.gateway.calls, 1)
}

func TestConfirmOnlyByBuyerOrAdmin(t *testing.T) {
	fx := newFixture(t)
	order := seedOrder(t, fx.conn, nil)

	for _, principal := range []auth.Principal{
		{UserID: uuid.New(), Role: enums.MemberRoleRetailer},
		{UserID: order.WholesalerID, Role: enums.MemberRoleWholesaler},
	} {
		input := confirmInput(order, "pk_1")
		input.Principal = principal
		_, err := fx.service.Confirm(context.Background(), input)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "%s: got %v", principal.Role, err)
	}
	assert.Empty(t, fx.gateway.calls)
	assert.Equal(t, int64(0), countRows(t, fx.conn, &models.Settlement{}))

	input := confirmInput(order, "pk_1")
	input.Principal = auth.Principal{UserID: uuid.New(), Role: enums.MemberRoleAdmin}
	result, err := fx.service.Confirm(context.Background(), input)
	require.NoError(t, err)
	require.NotNil(t, result.SettlementID)
}

func TestConfirmRacingSameKeyReplays(t *testing.T) {
	fx := newFixture(t)
	order := seedOrder(t, fx.conn, nil)

	var inner *Result
	fx.gateway.during = func() {
		var err error
		inner, err = fx.service.Confirm(context.Background(), confirmInput(order, "pk_1"))
		require.NoError(t, err)
	}

	outer, err := fx.service.Confirm(context.Background(), confirmInput(order, "pk_1"))
	require.NoError(t, err)
	require.NotNil(t, inner)
	assert.True(t, outer.Replayed)
	assert.Equal(t, inner.SettlementID, outer.SettlementID)
	assert.Equal(t, inner.PaymentID, outer.PaymentID)

	assert.Equal(t, int64(1), countRows(t, fx.conn, &models.Settlement{}))
	assert.Equal(t, []string{"confirm:success", "confirm:replay"}, fx.metrics.outcomes)
}

func TestConfirmPartialSuccessKeepsSettlement(t *testing.T) {
	fx := newFixture(t, func(_ *ServiceParams, wp *WriterParams) {
		wp.Payments = failingPayments{Repository: wp.Payments}
	})
	order := seedOrder(t, fx.conn, nil)

	result, err := fx.service.Confirm(context.Background(), confirmInput(order, "pk_1"))
	require.NoError(t, err)
	require.NotNil(t, result.SettlementID)
	assert.Nil(t, result.PaymentID)
	assert.NotEmpty(t, result.Warning)

	assert.Equal(t, int64(1), countRows(t, fx.conn, &models.Settlement{}))
	assert.Equal(t, int64(0), countRows(t, fx.conn, &models.Payment{}))
	assert.Equal(t, []string{"confirm:partial"}, fx.metrics.outcomes)
}

func callbackInput(order models.Order, key string) CallbackInput {
	return CallbackInput{
		PaymentKey:  key,
		OrderID:     order.ID.String(),
		TotalAmount: decimal.NewFromInt(order.TotalAmount),
		ApprovedAt:  approvedAt,
	}
}

func TestProcessCallbackSettlesOnce(t *testing.T) {
	fx := newFixture(t)
	order := seedOrder(t, fx.conn, nil)

	first, err := fx.service.ProcessCallback(context.Background(), callbackInput(order, "pk_cb"))
	require.NoError(t, err)
	require.NotNil(t, first.SettlementID)
	require.NotNil(t, first.PaymentID)
	assert.False(t, first.Replayed)

	var payment models.Payment
	require.NoError(t, fx.conn.Where("id = ?", *first.PaymentID).First(&payment).Error)
	assert.Equal(t, "card", payment.Method)

	second, err := fx.service.ProcessCallback(context.Background(), callbackInput(order, "pk_cb"))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.SettlementID, second.SettlementID)

	assert.Empty(t, fx.gateway.calls)
	assert.Equal(t, int64(1), countRows(t, fx.conn, &models.Settlement{}))
	assert.Equal(t, []string{"callback:success", "callback:replay"}, fx.metrics.outcomes)
}

func TestProcessCallbackRejections(t *testing.T) {
	fx := newFixture(t)
	order := seedOrder(t, fx.conn, nil)
	other := seedOrder(t, fx.conn, nil)

	mismatch := callbackInput(order, "pk_cb")
	mismatch.TotalAmount = decimal.NewFromInt(1)
	_, err := fx.service.ProcessCallback(context.Background(), mismatch)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAmountMismatch), "got %v", err)

	_, err = fx.service.ProcessCallback(context.Background(), callbackInput(models.Order{ID: uuid.New(), TotalAmount: 1}, "pk_cb"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	_, err = fx.service.ProcessCallback(context.Background(), callbackInput(order, "pk_cb"))
	require.NoError(t, err)
	_, err = fx.service.ProcessCallback(context.Background(), callbackInput(other, "pk_cb"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicatePayment), "got %v", err)
}

func TestProcessCallbackSecondKeyOnSettledOrderIsDuplicate(t *testing.T) {
	fx := newFixture(t)
	order := seedOrder(t, fx.conn, nil)

	first, err := fx.service.Confirm(context.Background(), confirmInput(order, "pk_A"))
	require.NoError(t, err)

	_, err = fx.service.ProcessCallback(context.Background(), callbackInput(order, "pk_B"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicatePayment), "got %v", err)

	stored, err := orders.NewRepository(fx.conn).FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pk_A", stored.BoundPaymentKey())
	assert.Equal(t, int64(1), countRows(t, fx.conn, &models.Settlement{}))
	assert.Equal(t, int64(1), countRows(t, fx.conn, &models.Payment{}))

	replayed, err := fx.service.ProcessCallback(context.Background(), callbackInput(order, "pk_A"))
	require.NoError(t, err)
	assert.True(t, replayed.Replayed)
	assert.Equal(t, first.SettlementID, replayed.SettlementID)
}
