package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appconfig "priceflow/config"
	"priceflow/logger"
	"priceflow/models"
)

// maxBodyBytes caps how much of a response is read; a full intraday series
// is well below this.
const maxBodyBytes = 32 << 20

// HTTPDoer is the subset of *http.Client the quote client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches one time series per symbol from the quote provider and
// classifies every response into a models.FetchOutcome.
type Client struct {
	baseURL    string
	apiKey     string
	function   string
	interval   string
	outputSize string
	seriesKey  string

	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration

	http    HTTPDoer
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	log     *logger.Log
}

type Option func(*Client)

// WithHTTPClient replaces the default pooled HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		c.http = doer
	}
}

// WithLimiter sets the limiter every attempt waits on.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

func NewClient(cfg appconfig.ProviderConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		function:   strings.ToUpper(strings.TrimSpace(cfg.Function)),
		interval:   cfg.Interval,
		outputSize: cfg.OutputSize,
		seriesKey:  cfg.SeriesKey,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		http:       newHTTPClient(),
		sleep:      sleepContext,
		log:        logger.GetLogger(),
	}
	if c.seriesKey == "" {
		c.seriesKey = SeriesKeyFor(c.function, c.interval)
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if cfg.MaxRequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxRequestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport}
}

// SeriesKeyFor returns the JSON key holding the series for a function.
func SeriesKeyFor(function, interval string) string {
	switch {
	case strings.HasPrefix(function, "TIME_SERIES_INTRADAY"):
		return fmt.Sprintf("Time Series (%s)", interval)
	case strings.HasPrefix(function, "TIME_SERIES_DAILY"):
		return "Time Series (Daily)"
	case function == "TIME_SERIES_WEEKLY":
		return "Weekly Time Series"
	case function == "TIME_SERIES_WEEKLY_ADJUSTED":
		return "Weekly Adjusted Time Series"
	case function == "TIME_SERIES_MONTHLY":
		return "Monthly Time Series"
	case function == "TIME_SERIES_MONTHLY_ADJUSTED":
		return "Monthly Adjusted Time Series"
	default:
		return "Time Series (Daily)"
	}
}

func (c *Client) SeriesKey() string {
	return c.seriesKey
}

// Fetch requests the series for symbol, retrying retryable outcomes up to
// maxRetries extra times with a linear delay. It always returns the last
// outcome; cancellation surfaces as a TransportFailure.
func (c *Client) Fetch(ctx context.Context, symbol string) models.FetchOutcome {
	log := c.log.WithComponent("quote_client").WithFields(logger.Fields{"symbol": symbol})

	var out models.FetchOutcome
	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		if attempt > 1 {
			delay := c.baseDelay * time.Duration(attempt-1)
			if err := c.sleep(ctx, delay); err != nil {
				return c.cancelled(err, attempt-1)
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return c.cancelled(err, attempt-1)
			}
		}

		start := time.Now()
		out = c.attempt(ctx, symbol)
		out.Attempts = attempt

		fields := logger.Fields{
			"attempt":     attempt,
			"outcome":     out.Kind.String(),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if !out.Kind.Retryable() {
			log.WithFields(fields).Debug("fetch finished")
			return out
		}
		if ctx.Err() != nil {
			return c.cancelled(ctx.Err(), attempt)
		}
		if attempt <= c.maxRetries {
			log.WithFields(fields).WithField("reason", out.Message).Warn("fetch attempt failed, retrying")
		}
	}

	log.WithFields(logger.Fields{
		"attempts": out.Attempts,
		"outcome":  out.Kind.String(),
		"reason":   out.Message,
	}).Error("fetch retries exhausted")
	return out
}

func (c *Client) cancelled(err error, attempts int) models.FetchOutcome {
	out := models.TransportFailure(fmt.Sprintf("fetch cancelled: %v", err))
	out.Attempts = attempts
	return out
}

func (c *Client) attempt(ctx context.Context, symbol string) models.FetchOutcome {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.requestURL(symbol), nil)
	if err != nil {
		return models.TransportFailure(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "priceflow/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.TransportFailure(redact(err.Error(), c.apiKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.TransportFailure(fmt.Sprintf("read body: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.TransportFailure(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	return classify(body, c.seriesKey)
}

func (c *Client) requestURL(symbol string) string {
	q := url.Values{}
	q.Set("function", c.function)
	q.Set("symbol", symbol)
	if strings.HasPrefix(c.function, "TIME_SERIES_INTRADAY") && c.interval != "" {
		q.Set("interval", c.interval)
	}
	if c.outputSize != "" {
		q.Set("outputsize", c.outputSize)
	}
	q.Set("apikey", c.apiKey)

	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return c.baseURL + sep + q.Encode()
}

// classify maps a decoded provider body onto an outcome. Provider notices win
// over error messages, and both win over the series.
func classify(body []byte, seriesKey string) models.FetchOutcome {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return models.Malformed(fmt.Sprintf("decode body: %v", err))
	}

	if raw, ok := doc["Note"]; ok {
		return models.RateLimited(message(raw))
	}
	if raw, ok := doc["Information"]; ok {
		msg := message(raw)
		if isQuotaNotice(msg) {
			return models.RateLimited(msg)
		}
		// Premium-endpoint and key notices do not clear on retry.
		return models.Malformed("provider notice: " + msg)
	}
	if raw, ok := doc["Error Message"]; ok {
		return models.APIError(message(raw))
	}

	raw, ok := doc[seriesKey]
	if !ok {
		return models.Empty()
	}
	var series models.RawQuotePayload
	if err := json.Unmarshal(raw, &series); err != nil {
		return models.Malformed(fmt.Sprintf("decode %q: %v", seriesKey, err))
	}
	if len(series) == 0 {
		return models.Empty()
	}
	return models.Success(series)
}

var quotaWords = []string{"rate limit", "call frequency", "calls per", "requests per"}

func isQuotaNotice(msg string) bool {
	msg = strings.ToLower(msg)
	for _, w := range quotaWords {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

func message(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// redact keeps the API key out of error messages that embed the request URL.
func redact(msg, secret string) string {
	if secret == "" {
		return msg
	}
	return strings.ReplaceAll(msg, secret, "***")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
