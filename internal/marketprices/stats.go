package marketprices

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/wholesale-backend/pkg/marketprice"
)

var hundred = decimal.NewFromInt(100)

func periodStart(day time.Time, period Period) time.Time {
	if period == PeriodMonth {
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	}
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, day.Location())
}

// summarize expects points ordered by date.
func summarize(points []marketprice.Point, period Period) []PeriodSummary {
	out := []PeriodSummary{}
	var (
		current PeriodSummary
		sum     decimal.Decimal
		key     time.Time
	)
	flush := func() {
		if current.Count == 0 {
			return
		}
		current.Average = sum.Div(decimal.NewFromInt(int64(current.Count))).Round(2)
		out = append(out, current)
	}
	for _, point := range points {
		start := periodStart(point.Date.In(marketprice.Location()), period)
		if current.Count == 0 || !start.Equal(key) {
			flush()
			key = start
			current = PeriodSummary{PeriodStart: dayString(start), Min: point.Price, Max: point.Price}
			sum = decimal.Zero
		}
		current.Count++
		sum = sum.Add(decimal.NewFromInt(point.Price))
		if point.Price < current.Min {
			current.Min = point.Price
		}
		if point.Price > current.Max {
			current.Max = point.Price
		}
	}
	flush()
	return out
}

// trend expects at least one point ordered by date.
func trend(points []marketprice.Point, window int) *Trend {
	latest := points[len(points)-1]
	result := &Trend{Latest: latest, Direction: DirectionFlat, Window: window}

	previous := points[:len(points)-1]
	if len(previous) > window {
		previous = previous[len(previous)-window:]
	}
	if len(previous) == 0 {
		return result
	}

	sum := decimal.Zero
	for _, point := range previous {
		sum = sum.Add(decimal.NewFromInt(point.Price))
	}
	average := sum.Div(decimal.NewFromInt(int64(len(previous)))).Round(2)
	change := decimal.NewFromInt(latest.Price).Sub(average)
	result.PreviousAverage = &average
	result.Change = &change
	if !average.IsZero() {
		percent := change.Div(average).Mul(hundred).Round(2)
		result.ChangePercent = &percent
	}
	switch change.Sign() {
	case 1:
		result.Direction = DirectionUp
	case -1:
		result.Direction = DirectionDown
	}
	return result
}
