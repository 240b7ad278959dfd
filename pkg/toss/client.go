package toss

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL             = "https://api.tosspayments.com"
	confirmPath                = "/v1/payments/confirm"
	responseBodyLimit    int64 = 1 << 20
	StatusDone                 = "DONE"
	defaultClientTimeout       = 10 * time.Second
)

var ErrSecretKeyRequired = errors.New("toss secret key is required")

// Observer receives the outcome and latency of each gateway call.
type Observer interface {
	ObserveGatewayCall(operation, outcome string, elapsed time.Duration)
}

// Client calls the payment gateway's confirmation API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	observer   Observer
	now        func() time.Time
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

// WithBaseURL overrides the gateway base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithObserver records call metrics.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient builds a client authenticating with Basic base64(secretKey + ":").
func NewClient(secretKey string, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(secretKey)
	if key == "" {
		return nil, ErrSecretKeyRequired
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultClientTimeout},
		baseURL:    defaultBaseURL,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(key+":")),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ConfirmRequest is the body sent to the confirmation endpoint.
type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

// Payment is the subset of the gateway payment object the service relies on.
type Payment struct {
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	Method      string `json:"method"`
	TotalAmount int64  `json:"totalAmount"`
	ApprovedAt  string `json:"approvedAt"`
}

// Approved reports whether the gateway captured the payment.
func (p *Payment) Approved() bool {
	return p != nil && p.Status == StatusDone
}

// ApprovedTime parses approvedAt. The gateway sends RFC3339 with a zone offset.
func (p *Payment) ApprovedTime() (time.Time, error) {
	if p == nil || strings.TrimSpace(p.ApprovedAt) == "" {
		return time.Time{}, errors.New("approvedAt missing")
	}
	t, err := time.Parse(time.RFC3339, p.ApprovedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse approvedAt %q: %w", p.ApprovedAt, err)
	}
	return t, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Confirm asks the gateway to capture the payment. Non-2xx responses and
// transport failures are returned as *GatewayError.
func (c *Client) Confirm(ctx context.Context, req ConfirmRequest) (*Payment, error) {
	if c == nil {
		return nil, ErrSecretKeyRequired
	}
	start := c.now()

	payment, err := c.confirm(ctx, req)
	if c.observer != nil {
		c.observer.ObserveGatewayCall("confirm", outcomeOf(payment, err), c.now().Sub(start))
	}
	return payment, err
}

func (c *Client) confirm(ctx context.Context, req ConfirmRequest) (*Payment, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal confirm request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+confirmPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build confirm request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GatewayError{Kind: KindUnreachable, Message: "payment gateway unreachable", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return nil, &GatewayError{Kind: KindUnreachable, Status: resp.StatusCode, Message: "read gateway response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var parsed errorBody
		_ = json.Unmarshal(body, &parsed)
		return nil, newGatewayError(resp.StatusCode, parsed.Code, parsed.Message)
	}

	var payment Payment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, &GatewayError{Kind: KindUnknown, Status: resp.StatusCode, Message: "decode gateway response", Err: err}
	}
	return &payment, nil
}

func outcomeOf(payment *Payment, err error) string {
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			return string(gwErr.Kind)
		}
		return "error"
	}
	if !payment.Approved() {
		return "not_approved"
	}
	return "approved"
}
