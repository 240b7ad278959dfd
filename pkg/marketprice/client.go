package marketprice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://www.kamis.or.kr"
	periodListPath              = "/service/price/xml.do"
	responseBodyLimit     int64 = 4 << 20
	successCode                 = "000"
	noDataCode                  = "001"
	averageCounty               = "평균"
	dayLayout                   = "2006-01-02"
	defaultRetailProduct        = "02"
	defaultRankCode             = "04"
	defaultRequestTimeout       = 10 * time.Second
)

var seoul = time.FixedZone("KST", 9*60*60)

// Location is the zone the price service publishes days in.
func Location() *time.Location {
	return seoul
}

var errCredentialsRequired = errors.New("market price cert key and id are required")

// Client reads daily agricultural prices from the public price service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	certKey    string
	certID     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the service base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a client for the given service credentials.
func NewClient(certKey, certID string, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(certKey)
	id := strings.TrimSpace(certID)
	if key == "" || id == "" {
		return nil, errCredentialsRequired
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		baseURL:    defaultBaseURL,
		certKey:    key,
		certID:     id,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Query selects one item over an inclusive day range.
type Query struct {
	ItemCategoryCode string
	ItemCode         string
	KindCode         string
	StartDay         time.Time
	EndDay           time.Time
}

// Point is one day's price in KRW.
type Point struct {
	Date  time.Time `json:"date"`
	Price int64     `json:"price"`
}

type periodResponse struct {
	Data json.RawMessage `json:"data"`
}

type periodData struct {
	ErrorCode string       `json:"error_code"`
	Item      []periodItem `json:"item"`
}

type periodItem struct {
	CountyName string `json:"countyname"`
	Year       string `json:"yyyy"`
	RegDay     string `json:"regday"`
	Price      string `json:"price"`
}

// PeriodPrices returns daily points ordered by date. Days without a published
// price are omitted.
func (c *Client) PeriodPrices(ctx context.Context, q Query) ([]Point, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "market price client not configured")
	}

	endpoint, err := url.Parse(c.baseURL + periodListPath)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid market price base url")
	}
	params := url.Values{}
	params.Set("action", "periodProductList")
	params.Set("p_productclscode", defaultRetailProduct)
	params.Set("p_productrankcode", defaultRankCode)
	params.Set("p_itemcategorycode", q.ItemCategoryCode)
	params.Set("p_itemcode", q.ItemCode)
	params.Set("p_kindcode", q.KindCode)
	params.Set("p_startday", q.StartDay.Format(dayLayout))
	params.Set("p_endday", q.EndDay.Format(dayLayout))
	params.Set("p_convert_kg_yn", "N")
	params.Set("p_cert_key", c.certKey)
	params.Set("p_cert_id", c.certID)
	params.Set("p_returntype", "json")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build market price request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "market price service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read market price response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("market price service returned %d", resp.StatusCode))
	}

	return decodePeriod(body)
}

func decodePeriod(body []byte) ([]Point, error) {
	var envelope periodResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode market price response")
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || trimmed[0] == '[' {
		// The service answers `"data": ["001"]` when nothing matches.
		var codes []string
		if len(trimmed) > 0 {
			if err := json.Unmarshal(trimmed, &codes); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode market price status")
			}
		}
		if len(codes) == 0 || codes[0] == noDataCode {
			return []Point{}, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "market price service error "+codes[0])
	}

	var data periodData
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode market price data")
	}
	switch data.ErrorCode {
	case successCode, "":
	case noDataCode:
		return []Point{}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "market price service error "+data.ErrorCode)
	}

	rows := data.Item
	if hasCounty(rows, averageCounty) {
		rows = filterCounty(rows, averageCounty)
	}

	seen := make(map[string]struct{}, len(rows))
	points := make([]Point, 0, len(rows))
	for _, row := range rows {
		price, ok := parsePrice(row.Price)
		if !ok {
			continue
		}
		date, err := parseDay(row.Year, row.RegDay)
		if err != nil {
			continue
		}
		key := date.Format(dayLayout)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		points = append(points, Point{Date: date, Price: price})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

func hasCounty(rows []periodItem, county string) bool {
	for _, row := range rows {
		if row.CountyName == county {
			return true
		}
	}
	return false
}

func filterCounty(rows []periodItem, county string) []periodItem {
	out := make([]periodItem, 0, len(rows))
	for _, row := range rows {
		if row.CountyName == county {
			out = append(out, row)
		}
	}
	return out
}

func parsePrice(raw string) (int64, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" || cleaned == "-" {
		return 0, false
	}
	value, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

func parseDay(year, regDay string) (time.Time, error) {
	return time.ParseInLocation("2006/01/02", strings.TrimSpace(year)+"/"+strings.TrimSpace(regDay), seoul)
}
