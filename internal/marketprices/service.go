package marketprices

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
	"github.com/angelmondragon/wholesale-backend/pkg/logger"
	"github.com/angelmondragon/wholesale-backend/pkg/marketprice"
	"github.com/angelmondragon/wholesale-backend/pkg/redis"
)

const (
	cacheScope       = "market-prices"
	dayLayout        = "2006-01-02"
	defaultRangeDays = 30
	maxRangeDays     = 366
)

type priceSource interface {
	PeriodPrices(ctx context.Context, q marketprice.Query) ([]marketprice.Point, error)
}

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(scope string, parts ...string) string
}

type ServiceParams struct {
	Source   priceSource
	Cache    cacheStore
	CacheTTL time.Duration
	Logger   *logger.Logger
}

// Service is a read-through cache in front of the public price service plus
// the aggregations built on its daily points.
type Service struct {
	source   priceSource
	cache    cacheStore
	ttl      time.Duration
	logg     *logger.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Source == nil {
		return nil, fmt.Errorf("price source required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		source:   params.Source,
		cache:    params.Cache,
		ttl:      params.CacheTTL,
		logg:     params.Logger,
		validate: validator.New(),
		now:      time.Now,
	}, nil
}

// Prices returns the daily points for the requested item and range.
func (s *Service) Prices(ctx context.Context, input QueryInput) (*Series, error) {
	q, err := s.parse(input)
	if err != nil {
		return nil, err
	}
	points, err := s.points(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Series{
		ItemCategoryCode: q.ItemCategoryCode,
		ItemCode:         q.ItemCode,
		KindCode:         q.KindCode,
		StartDay:         q.startDay,
		EndDay:           q.endDay,
		Points:           points,
	}, nil
}

// Summarize aggregates the range per week (Monday start) or per month.
func (s *Service) Summarize(ctx context.Context, input QueryInput, period Period) (*Summary, error) {
	if period == "" {
		period = PeriodWeek
	}
	if period != PeriodWeek && period != PeriodMonth {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period must be week or month").
			WithDetails(map[string]string{"period": string(period)})
	}
	q, err := s.parse(input)
	if err != nil {
		return nil, err
	}
	points, err := s.points(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Summary{Period: period, Periods: summarize(points, period)}, nil
}

// Trend compares the latest published price with the average of up to window
// published days before it.
func (s *Service) Trend(ctx context.Context, input QueryInput, window int) (*Trend, error) {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	q, err := s.parse(input)
	if err != nil {
		return nil, err
	}
	points, err := s.points(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no prices published for the requested range")
	}
	return trend(points, window), nil
}

func (s *Service) parse(input QueryInput) (query, error) {
	input.ItemCategoryCode = strings.TrimSpace(input.ItemCategoryCode)
	input.ItemCode = strings.TrimSpace(input.ItemCode)
	input.KindCode = strings.TrimSpace(input.KindCode)
	if err := s.validate.Struct(input); err != nil {
		return query{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "itemCategoryCode, itemCode and kindCode are required numeric codes").
			WithDetails(fieldErrors(err))
	}

	loc := marketprice.Location()
	today := s.now().In(loc)
	end := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	if raw := strings.TrimSpace(input.EndDay); raw != "" {
		parsed, err := time.ParseInLocation(dayLayout, raw, loc)
		if err != nil {
			return query{}, invalidDay("endDay", raw)
		}
		end = parsed
	}
	start := end.AddDate(0, 0, -defaultRangeDays)
	if raw := strings.TrimSpace(input.StartDay); raw != "" {
		parsed, err := time.ParseInLocation(dayLayout, raw, loc)
		if err != nil {
			return query{}, invalidDay("startDay", raw)
		}
		start = parsed
	}
	if start.After(end) {
		return query{}, pkgerrors.New(pkgerrors.CodeValidation, "startDay must not be after endDay")
	}
	if end.Sub(start) > maxRangeDays*24*time.Hour {
		return query{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("range must not exceed %d days", maxRangeDays))
	}

	return query{
		Query: marketprice.Query{
			ItemCategoryCode: input.ItemCategoryCode,
			ItemCode:         input.ItemCode,
			KindCode:         input.KindCode,
			StartDay:         start,
			EndDay:           end,
		},
		startDay: dayString(start),
		endDay:   dayString(end),
	}, nil
}

func (s *Service) points(ctx context.Context, q query) ([]marketprice.Point, error) {
	key := ""
	if s.cache != nil {
		key = s.cache.CacheKey(cacheScope, q.ItemCategoryCode, q.ItemCode, q.KindCode, q.startDay, q.endDay)
		if cached, ok := s.readCache(ctx, key); ok {
			return cached, nil
		}
	}

	points, err := s.source.PeriodPrices(ctx, q.Query)
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []marketprice.Point{}
	}

	if s.cache != nil {
		s.writeCache(ctx, key, points)
	}
	return points, nil
}

func (s *Service) readCache(ctx context.Context, key string) ([]marketprice.Point, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !redis.IsNil(err) {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"key": key, "error": err.Error()}), "market price cache read failed")
		}
		return nil, false
	}
	var points []marketprice.Point
	if err := json.Unmarshal([]byte(raw), &points); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"key": key, "error": err.Error()}), "market price cache entry unreadable")
		return nil, false
	}
	return points, true
}

func (s *Service) writeCache(ctx context.Context, key string, points []marketprice.Point) {
	encoded, err := json.Marshal(points)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(encoded), s.ttl); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"key": key, "error": err.Error()}), "market price cache write failed")
	}
}

func invalidDay(field, raw string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be formatted as YYYY-MM-DD", field)).
		WithDetails(map[string]string{field: raw})
}

func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			out[lowerFirst(fe.Field())] = fe.Tag()
		}
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
