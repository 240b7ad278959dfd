package payments

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/wholesale-backend/api/middleware"
	"github.com/angelmondragon/wholesale-backend/api/responses"
	"github.com/angelmondragon/wholesale-backend/api/validators"
	internalpayments "github.com/angelmondragon/wholesale-backend/internal/payments"
	tosswebhook "github.com/angelmondragon/wholesale-backend/internal/webhooks/toss"
	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
	"github.com/angelmondragon/wholesale-backend/pkg/logger"
)

// ignoredMessage answers callbacks that settle nothing.
const ignoredMessage = "Ignored"

type ConfirmService interface {
	Confirm(ctx context.Context, input internalpayments.ConfirmInput) (*internalpayments.Result, error)
}

type CallbackService interface {
	HandleEvent(ctx context.Context, event tosswebhook.Event) (*tosswebhook.Outcome, error)
}

type confirmRequest struct {
	PaymentKey string          `json:"paymentKey"`
	OrderID    string          `json:"orderId"`
	Amount     decimal.Decimal `json:"amount"`
}

// settledResponse is the body both payment endpoints return on success. The
// ids are written as null rather than omitted.
type settledResponse struct {
	Success      bool       `json:"success"`
	OrderID      uuid.UUID  `json:"orderId"`
	SettlementID *uuid.UUID `json:"settlementId"`
	PaymentID    *uuid.UUID `json:"paymentId"`
	Warning      string     `json:"warning,omitempty"`
}

func settled(result *internalpayments.Result) settledResponse {
	return settledResponse{
		Success:      true,
		OrderID:      result.OrderID,
		SettlementID: result.SettlementID,
		PaymentID:    result.PaymentID,
		Warning:      result.Warning,
	}
}

// Confirm captures a payment the client authorized with the gateway widget.
// Field checks live in the service so every rejection carries its own code.
func Confirm(svc ConfirmService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		principal, ok := middleware.PrincipalFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body confirmRequest
		if err := validators.DecodeLenientJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Confirm(ctx, internalpayments.ConfirmInput{
			Principal:  principal,
			PaymentKey: body.PaymentKey,
			OrderID:    body.OrderID,
			Amount:     body.Amount,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteRaw(w, http.StatusOK, settled(result))
	}
}

// Callback receives gateway status notifications. Events other than a
// completed payment, and repeated deliveries, are acknowledged and dropped.
func Callback(svc CallbackService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "callback service unavailable"))
			return
		}

		var event tosswebhook.Event
		if err := validators.DecodeLenientJSONBody(r, &event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome, err := svc.HandleEvent(ctx, event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if outcome == nil || outcome.Result == nil {
			responses.WriteMessage(w, ignoredMessage)
			return
		}

		if logg != nil {
			logg.Info(logg.WithOrderID(ctx, outcome.Result.OrderID.String()), "toss callback processed")
		}
		responses.WriteRaw(w, http.StatusOK, settled(outcome.Result))
	}
}
