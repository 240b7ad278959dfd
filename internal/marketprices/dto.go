package marketprices

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/wholesale-backend/pkg/marketprice"
)

// Period groups daily prices for a summary.
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// DefaultTrendWindow is how many preceding published days the latest price
// is compared against.
const DefaultTrendWindow = 7

// QueryInput carries the raw query parameters shared by every endpoint.
type QueryInput struct {
	ItemCategoryCode string `validate:"required,numeric"`
	ItemCode         string `validate:"required,numeric"`
	KindCode         string `validate:"required,numeric"`
	StartDay         string
	EndDay           string
}

// Series is the daily price list for one item.
type Series struct {
	ItemCategoryCode string              `json:"itemCategoryCode"`
	ItemCode         string              `json:"itemCode"`
	KindCode         string              `json:"kindCode"`
	StartDay         string              `json:"startDay"`
	EndDay           string              `json:"endDay"`
	Points           []marketprice.Point `json:"points"`
}

// PeriodSummary aggregates the published prices of one week or month.
type PeriodSummary struct {
	PeriodStart string          `json:"periodStart"`
	Average     decimal.Decimal `json:"average"`
	Min         int64           `json:"min"`
	Max         int64           `json:"max"`
	Count       int             `json:"count"`
}

type Summary struct {
	Period  Period          `json:"period"`
	Periods []PeriodSummary `json:"periods"`
}

// Direction is the sign of a price change.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Trend compares the latest price with the average of the days before it.
type Trend struct {
	Latest          marketprice.Point `json:"latest"`
	PreviousAverage *decimal.Decimal  `json:"previousAverage"`
	Change          *decimal.Decimal  `json:"change"`
	ChangePercent   *decimal.Decimal  `json:"changePercent"`
	Direction       Direction         `json:"direction"`
	Window          int               `json:"window"`
}

type query struct {
	marketprice.Query
	startDay string
	endDay   string
}

func dayString(t time.Time) string {
	return t.Format(dayLayout)
}
