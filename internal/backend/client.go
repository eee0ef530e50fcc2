package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agri-storefront/internal/models"
	"agri-storefront/internal/util"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("backend unavailable")
	ErrMalformedResponse = errors.New("malformed backend response")
)

// StatusError is a non-2xx answer from the backend
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

type tokenKey struct{}

// ContextWithToken attaches the shopper's bearer token to outgoing calls
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

const maxBodyBytes = 4 << 20

// Client talks to the order-management REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	logger := util.GetLogger().Named("backend")

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "backend-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 4xx answers mean the backend is healthy
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || errors.Is(err, ErrNotFound) || (errors.As(err, &se) && se.Code < 500)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

// CreateOrder submits an order and returns the created record
func (c *Client) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.OrderRecord, error) {
	ctx, span := util.StartSpan(ctx, "Backend.CreateOrder")
	defer span.End()

	headers := http.Header{}
	if req.IdempotencyKey != "" {
		headers.Set("Idempotency-Key", req.IdempotencyKey)
	}

	var order models.OrderRecord
	if err := c.do(ctx, "create_order", http.MethodPost, "/orders", headers, req, &order); err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	if err := validateOrder(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

// MyOrders lists the orders of the authenticated user
func (c *Client) MyOrders(ctx context.Context) ([]models.OrderRecord, error) {
	var orders []models.OrderRecord
	if err := c.do(ctx, "my_orders", http.MethodGet, "/orders/my-orders", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// LookupOrder finds an order by its human order number
func (c *Client) LookupOrder(ctx context.Context, orderNo string) (*models.OrderRecord, error) {
	var order models.OrderRecord
	path := "/orders/lookup/" + url.PathEscape(orderNo)
	if err := c.do(ctx, "lookup_order", http.MethodGet, path, nil, nil, &order); err != nil {
		return nil, err
	}
	if err := validateOrder(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder fetches an order by id
func (c *Client) GetOrder(ctx context.Context, id int64) (*models.OrderRecord, error) {
	var order models.OrderRecord
	if err := c.do(ctx, "get_order", http.MethodGet, fmt.Sprintf("/orders/%d", id), nil, nil, &order); err != nil {
		return nil, err
	}
	if err := validateOrder(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus changes the status of an order
func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status string) (*models.OrderRecord, error) {
	var order models.OrderRecord
	body := map[string]string{"status": status}
	if err := c.do(ctx, "update_order", http.MethodPut, fmt.Sprintf("/orders/%d", id), nil, body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// PaymentMethods lists every configured payment method
func (c *Client) PaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	if err := c.do(ctx, "payment_methods", http.MethodGet, "/payment-methods", nil, nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, headers http.Header, body, out interface{}) error {
	start := time.Now()
	defer func() {
		util.BackendRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
	}

	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, headers, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(unwrap(data), out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, headers http.Header, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	if token, ok := ctx.Value(tokenKey{}).(string); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	return data, nil
}

// unwrap accepts both bare payloads and {"data": ...} envelopes
func unwrap(data []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return data
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return data
	}
	return env.Data
}

func validateOrder(o *models.OrderRecord) error {
	if o.ID == 0 || o.OrderNo == "" {
		return fmt.Errorf("%w: order without id or order number", ErrMalformedResponse)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
