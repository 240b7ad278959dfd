package marketprices

import (
	"context"
	"net/http"

	"github.com/angelmondragon/wholesale-backend/api/responses"
	"github.com/angelmondragon/wholesale-backend/api/validators"
	internalmarketprices "github.com/angelmondragon/wholesale-backend/internal/marketprices"
	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
	"github.com/angelmondragon/wholesale-backend/pkg/logger"
)

const maxTrendWindow = 30

type Service interface {
	Prices(ctx context.Context, input internalmarketprices.QueryInput) (*internalmarketprices.Series, error)
	Summarize(ctx context.Context, input internalmarketprices.QueryInput, period internalmarketprices.Period) (*internalmarketprices.Summary, error)
	Trend(ctx context.Context, input internalmarketprices.QueryInput, window int) (*internalmarketprices.Trend, error)
}

func queryInput(r *http.Request) internalmarketprices.QueryInput {
	q := r.URL.Query()
	return internalmarketprices.QueryInput{
		ItemCategoryCode: q.Get("itemCategoryCode"),
		ItemCode:         q.Get("itemCode"),
		KindCode:         q.Get("kindCode"),
		StartDay:         q.Get("startDay"),
		EndDay:           q.Get("endDay"),
	}
}

// List returns daily wholesale prices for one item.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "market price service unavailable"))
			return
		}
		series, err := svc.Prices(r.Context(), queryInput(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, series)
	}
}

func Summary(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "market price service unavailable"))
			return
		}
		period, err := validators.ParseQueryOneOf(r, "period", string(internalmarketprices.PeriodWeek),
			string(internalmarketprices.PeriodWeek), string(internalmarketprices.PeriodMonth))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summarize(r.Context(), queryInput(r), internalmarketprices.Period(period))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func Trend(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "market price service unavailable"))
			return
		}
		window, err := validators.ParseQueryInt(r, "window", internalmarketprices.DefaultTrendWindow, 1, maxTrendWindow)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		trend, err := svc.Trend(r.Context(), queryInput(r), window)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, trend)
	}
}
