package tosswebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const provider = "toss"

type deliveryStore interface {
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	WebhookKey(provider, id string) string
}

// IdempotencyGuard marks callback deliveries in Redis so a redelivered
// event is skipped while the first one is processed or after it succeeded.
type IdempotencyGuard struct {
	store deliveryStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store deliveryStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports whether the delivery was already seen and marks it
// otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookKey(provider, deliveryID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook key: %w", err)
	}
	return !set, nil
}

// Delete clears the mark so the gateway's retry is processed.
func (g *IdempotencyGuard) Delete(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.store.WebhookKey(provider, deliveryID))
}

// DeliveryID keys a delivery on the payment and the status it reports.
func DeliveryID(paymentKey, status string) string {
	return paymentKey + ":" + status
}
