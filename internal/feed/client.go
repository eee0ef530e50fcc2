package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agri-storefront/internal/util"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrorCode classifies why a fetch produced no records
type ErrorCode string

const (
	ErrMissingAPIURL   ErrorCode = "missing_api_url"
	ErrMissingAPIKey   ErrorCode = "missing_api_key"
	ErrFetchFailed     ErrorCode = "fetch_failed"
	ErrInvalidResponse ErrorCode = "invalid_response"
)

// Record is one bank transaction from the feed
type Record struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	When        string  `json:"when,omitempty"`
}

// Result is either a batch of records or an error code, never both
type Result struct {
	Records []Record
	Err     ErrorCode
	Detail  string
}

// OK reports whether the fetch succeeded
func (r Result) OK() bool {
	return r.Err == ""
}

// Fetcher returns the most recent bank transactions. Implementations never
// panic or return Go errors; every failure is folded into Result.Err.
type Fetcher interface {
	FetchRecentTransactions(ctx context.Context) Result
}

type envelope struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Data    *struct {
		Records []Record `json:"records"`
	} `json:"data"`
}

const maxBodyBytes = 4 << 20

// Client queries the third-party transaction listing endpoint
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a feed client. rps <= 0 disables request limiting.
func NewClient(url, apiKey string, timeout time.Duration, rps float64) *Client {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Client{
		url:        strings.TrimSpace(url),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     util.GetLogger().Named("feed"),
	}
}

func (c *Client) FetchRecentTransactions(ctx context.Context) Result {
	ctx, span := util.StartSpan(ctx, "TransactionFeed.FetchRecentTransactions")
	defer span.End()

	res := c.fetch(ctx)
	if !res.OK() {
		util.TransactionFeedErrorsTotal.WithLabelValues(string(res.Err)).Inc()
		c.logger.Warn("Transaction feed fetch failed",
			zap.String("code", string(res.Err)),
			zap.String("detail", res.Detail))
	}
	return res
}

func (c *Client) fetch(ctx context.Context) Result {
	if c.url == "" {
		return Result{Err: ErrMissingAPIURL}
	}
	if c.apiKey == "" {
		return Result{Err: ErrMissingAPIKey}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{Err: ErrFetchFailed, Detail: err.Error()}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Result{Err: ErrFetchFailed, Detail: err.Error()}
	}
	req.Header.Set("Authorization", "Apikey "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	util.TransactionFeedLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return Result{Err: ErrFetchFailed, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Result{Err: ErrFetchFailed, Detail: fmt.Sprintf("feed returned status %d", resp.StatusCode)}
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&env); err != nil {
		return Result{Err: ErrInvalidResponse, Detail: err.Error()}
	}
	if env.Error != 0 {
		return Result{Err: ErrFetchFailed, Detail: fmt.Sprintf("feed error %d: %s", env.Error, env.Message)}
	}
	if env.Data == nil {
		return Result{Err: ErrInvalidResponse, Detail: "missing data"}
	}

	return Result{Records: env.Data.Records}
}

var _ Fetcher = (*Client)(nil)
