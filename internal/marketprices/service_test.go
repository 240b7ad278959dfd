package marketprices

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
	"github.com/angelmondragon/wholesale-backend/pkg/logger"
	"github.com/angelmondragon/wholesale-backend/pkg/marketprice"
)

type stubSource struct {
	calls  []marketprice.Query
	points []marketprice.Point
	err    error
}

func (s *stubSource) PeriodPrices(_ context.Context, q marketprice.Query) ([]marketprice.Point, error) {
	s.calls = append(s.calls, q)
	return s.points, s.err
}

type memoryCache struct {
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	value, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCache) CacheKey(scope string, parts ...string) string {
	key := "wholesale:cache:" + scope
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

func day(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, marketprice.Location())
	if err != nil {
		panic(err)
	}
	return t
}

func newTestService(t *testing.T, source *stubSource, cache *memoryCache) *Service {
	t.Helper()
	params := ServiceParams{Source: source, CacheTTL: time.Hour, Logger: logger.Nop()}
	if cache != nil {
		params.Cache = cache
	}
	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC) }
	return svc
}

var cabbage = QueryInput{ItemCategoryCode: "200", ItemCode: "211", KindCode: "01", StartDay: "2026-03-02", EndDay: "2026-03-13"}

func TestPricesReadsThroughCache(t *testing.T) {
	source := &stubSource{points: []marketprice.Point{
		{Date: day("2026-03-02"), Price: 4000},
		{Date: day("2026-03-03"), Price: 4200},
	}}
	cache := newMemoryCache()
	svc := newTestService(t, source, cache)

	first, err := svc.Prices(context.Background(), cabbage)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.Prices(context.Background(), cabbage)
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if len(source.calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", len(source.calls))
	}
	if len(second.Points) != 2 || second.Points[1].Price != 4200 || !second.Points[1].Date.Equal(first.Points[1].Date) {
		t.Fatalf("cached points differ: %+v vs %+v", second.Points, first.Points)
	}
	key := "wholesale:cache:market-prices:200:211:01:2026-03-02:2026-03-13"
	if _, ok := cache.values[key]; !ok {
		t.Fatalf("expected cache key %s, have %v", key, cache.values)
	}
	if cache.ttls[key] != time.Hour {
		t.Fatalf("expected 1h ttl got %v", cache.ttls[key])
	}
}

func TestPricesCacheFailureFallsBackToSource(t *testing.T) {
	source := &stubSource{points: []marketprice.Point{{Date: day("2026-03-02"), Price: 4000}}}
	cache := newMemoryCache()
	cache.getErr = errors.New("redis down")
	svc := newTestService(t, source, cache)

	series, err := svc.Prices(context.Background(), cabbage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series.Points) != 1 || len(source.calls) != 1 {
		t.Fatalf("expected upstream result, got %+v", series)
	}
}

func TestPricesDefaultsRangeAndValidates(t *testing.T) {
	source := &stubSource{}
	svc := newTestService(t, source, nil)

	series, err := svc.Prices(context.Background(), QueryInput{ItemCategoryCode: "200", ItemCode: "211", KindCode: "01"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if series.EndDay != "2026-03-15" || series.StartDay != "2026-02-13" {
		t.Fatalf("unexpected default range %s..%s", series.StartDay, series.EndDay)
	}
	if series.Points == nil {
		t.Fatal("expected empty, non-nil points")
	}

	bad := []QueryInput{
		{ItemCode: "211", KindCode: "01"},
		{ItemCategoryCode: "abc", ItemCode: "211", KindCode: "01"},
		{ItemCategoryCode: "200", ItemCode: "211", KindCode: "01", StartDay: "03/01/2026"},
		{ItemCategoryCode: "200", ItemCode: "211", KindCode: "01", StartDay: "2026-03-10", EndDay: "2026-03-01"},
		{ItemCategoryCode: "200", ItemCode: "211", KindCode: "01", StartDay: "2024-01-01", EndDay: "2026-03-01"},
	}
	for _, input := range bad {
		if _, err := svc.Prices(context.Background(), input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}
}

func TestPricesPropagatesUpstreamErrors(t *testing.T) {
	source := &stubSource{err: pkgerrors.New(pkgerrors.CodeDependency, "upstream down")}
	svc := newTestService(t, source, newMemoryCache())

	if _, err := svc.Prices(context.Background(), cabbage); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestSummarizeByWeekAndMonth(t *testing.T) {
	source := &stubSource{points: []marketprice.Point{
		{Date: day("2026-02-26"), Price: 3000},
		{Date: day("2026-03-02"), Price: 4000},
		{Date: day("2026-03-03"), Price: 4500},
		{Date: day("2026-03-06"), Price: 3500},
		{Date: day("2026-03-09"), Price: 5000},
	}}
	svc := newTestService(t, source, nil)

	weekly, err := svc.Summarize(context.Background(), cabbage, PeriodWeek)
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if len(weekly.Periods) != 3 {
		t.Fatalf("expected 3 weeks, got %+v", weekly.Periods)
	}
	mid := weekly.Periods[1]
	if mid.PeriodStart != "2026-03-02" || mid.Count != 3 || mid.Min != 3500 || mid.Max != 4500 {
		t.Fatalf("unexpected week summary %+v", mid)
	}
	if !mid.Average.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("expected average 4000, got %s", mid.Average)
	}
	if weekly.Periods[0].PeriodStart != "2026-02-23" {
		t.Fatalf("expected monday start, got %s", weekly.Periods[0].PeriodStart)
	}

	monthly, err := svc.Summarize(context.Background(), cabbage, PeriodMonth)
	if err != nil {
		t.Fatalf("monthly: %v", err)
	}
	if len(monthly.Periods) != 2 || monthly.Periods[1].PeriodStart != "2026-03-01" || monthly.Periods[1].Count != 4 {
		t.Fatalf("unexpected month summary %+v", monthly.Periods)
	}
	if !monthly.Periods[1].Average.Equal(decimal.NewFromInt(4250)) {
		t.Fatalf("expected average 4250, got %s", monthly.Periods[1].Average)
	}

	if _, err := svc.Summarize(context.Background(), cabbage, Period("year")); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTrendDirections(t *testing.T) {
	cases := []struct {
		name      string
		prices    []int64
		direction Direction
		change    string
		percent   string
	}{
		{name: "up", prices: []int64{1000, 1000, 1200}, direction: DirectionUp, change: "200", percent: "20"},
		{name: "down", prices: []int64{2000, 1000, 1200}, direction: DirectionDown, change: "-300", percent: "-20"},
		{name: "flat", prices: []int64{1000, 1000}, direction: DirectionFlat, change: "0", percent: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			points := make([]marketprice.Point, 0, len(tc.prices))
			for i, price := range tc.prices {
				points = append(points, marketprice.Point{Date: day("2026-03-02").AddDate(0, 0, i), Price: price})
			}
			svc := newTestService(t, &stubSource{points: points}, nil)

			got, err := svc.Trend(context.Background(), cabbage, 0)
			if err != nil {
				t.Fatalf("trend: %v", err)
			}
			if got.Direction != tc.direction {
				t.Fatalf("expected %s, got %s", tc.direction, got.Direction)
			}
			if !got.Change.Equal(decimal.RequireFromString(tc.change)) {
				t.Fatalf("expected change %s, got %s", tc.change, got.Change)
			}
			if !got.ChangePercent.Equal(decimal.RequireFromString(tc.percent)) {
				t.Fatalf("expected percent %s, got %s", tc.percent, got.ChangePercent)
			}
			if got.Window != DefaultTrendWindow {
				t.Fatalf("expected default window, got %d", got.Window)
			}
		})
	}
}

func TestTrendWindowAndEdgeCases(t *testing.T) {
	points := []marketprice.Point{
		{Date: day("2026-03-02"), Price: 9000},
		{Date: day("2026-03-03"), Price: 1000},
		{Date: day("2026-03-04"), Price: 1000},
		{Date: day("2026-03-05"), Price: 1100},
	}
	svc := newTestService(t, &stubSource{points: points}, nil)
	got, err := svc.Trend(context.Background(), cabbage, 2)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if !got.PreviousAverage.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected window to exclude the oldest day, got %s", got.PreviousAverage)
	}

	single := newTestService(t, &stubSource{points: points[:1]}, nil)
	one, err := single.Trend(context.Background(), cabbage, 0)
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	if one.Direction != DirectionFlat || one.PreviousAverage != nil || one.Change != nil {
		t.Fatalf("expected flat trend without comparison, got %+v", one)
	}

	empty := newTestService(t, &stubSource{}, nil)
	if _, err := empty.Trend(context.Background(), cabbage, 0); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
