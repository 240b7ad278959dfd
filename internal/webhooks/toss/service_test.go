package tosswebhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/wholesale-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
	"github.com/angelmondragon/wholesale-backend/pkg/logger"
)

type memoryStore struct {
	values map[string]any
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]any{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) WebhookKey(provider, id string) string {
	return "wholesale:webhook:" + provider + ":" + id
}

type stubProcessor struct {
	calls  []payments.CallbackInput
	result *payments.Result
	err    error
}

func (s *stubProcessor) ProcessCallback(_ context.Context, input payments.CallbackInput) (*payments.Result, error) {
	s.calls = append(s.calls, input)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestService(t *testing.T, processor *stubProcessor, store *memoryStore) *Service {
	t.Helper()
	guard, err := NewIdempotencyGuard(store, time.Hour)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	svc, err := NewService(ServiceParams{Payments: processor, Guard: guard, Logger: logger.Nop()})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func doneEvent() Event {
	return Event{
		EventType: EventPaymentStatusChanged,
		Data: EventData{
			PaymentKey:  "pk_1",
			OrderID:     uuid.NewString(),
			Status:      "DONE",
			TotalAmount: decimal.NewFromInt(50000),
			ApprovedAt:  "2026-03-01T10:00:00+09:00",
		},
	}
}

func TestHandleEventIgnoresOtherEvents(t *testing.T) {
	processor := &stubProcessor{}
	svc := newTestService(t, processor, newMemoryStore())

	canceled := doneEvent()
	canceled.Data.Status = "CANCELED"
	other := doneEvent()
	other.EventType = "DEPOSIT_CALLBACK"

	for _, event := range []Event{canceled, other} {
		outcome, err := svc.HandleEvent(context.Background(), event)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !outcome.Ignored {
			t.Fatalf("expected %s/%s to be ignored", event.EventType, event.Data.Status)
		}
	}
	if len(processor.calls) != 0 {
		t.Fatalf("expected no processing, got %d calls", len(processor.calls))
	}
}

func TestHandleEventProcessesOncePerDelivery(t *testing.T) {
	settlementID := uuid.New()
	processor := &stubProcessor{result: &payments.Result{OrderID: uuid.New(), SettlementID: &settlementID}}
	svc := newTestService(t, processor, newMemoryStore())
	event := doneEvent()

	first, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if first.Result == nil || *first.Result.SettlementID != settlementID {
		t.Fatalf("expected settlement result, got %+v", first)
	}
	if got := processor.calls[0]; got.PaymentKey != "pk_1" || !got.TotalAmount.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected callback input %+v", got)
	}

	second, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected duplicate delivery, got %+v", second)
	}
	if len(processor.calls) != 1 {
		t.Fatalf("expected one processing call, got %d", len(processor.calls))
	}
}

func TestHandleEventClearsMarkOnFailure(t *testing.T) {
	store := newMemoryStore()
	processor := &stubProcessor{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	svc := newTestService(t, processor, store)

	if _, err := svc.HandleEvent(context.Background(), doneEvent()); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(store.values) != 0 {
		t.Fatalf("expected idempotency mark to be cleared, got %v", store.values)
	}

	processor.err = nil
	processor.result = &payments.Result{}
	outcome, err := svc.HandleEvent(context.Background(), doneEvent())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if outcome.Duplicate || len(processor.calls) != 2 {
		t.Fatalf("expected retry to be processed, got %+v after %d calls", outcome, len(processor.calls))
	}
}

func TestHandleEventRequiresPaymentKey(t *testing.T) {
	svc := newTestService(t, &stubProcessor{}, newMemoryStore())
	event := doneEvent()
	event.Data.PaymentKey = " "

	if _, err := svc.HandleEvent(context.Background(), event); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type failingStore struct{ *memoryStore }

func (failingStore) SetNX(context.Context, string, any, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestHandleEventGuardFailureIsDependency(t *testing.T) {
	guard, err := NewIdempotencyGuard(failingStore{newMemoryStore()}, time.Hour)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	svc, err := NewService(ServiceParams{Payments: &stubProcessor{}, Guard: guard, Logger: logger.Nop()})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if _, err := svc.HandleEvent(context.Background(), doneEvent()); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestDeliveryID(t *testing.T) {
	if got := DeliveryID("pk", "DONE"); got != "pk:DONE" {
		t.Fatalf("unexpected delivery id %q", got)
	}
}
