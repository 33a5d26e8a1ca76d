package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	xhttp "BarPull/pkg/http"

	"github.com/shopspring/decimal"
)

// KlineClient fetches bars from a REST endpoint that answers with
// [openTimeMs, open, high, low, close, volume, ...] rows.
type KlineClient struct {
	id      string
	profile Profile
	baseURL string
	timeout time.Duration
	http    *xhttp.Client
}

// ClientOption configures KlineClient.
type ClientOption func(*KlineClient)

// WithBaseURL points the client at another host (mirrors, tests).
func WithBaseURL(u string) ClientOption {
	return func(c *KlineClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithMaxRows overrides the profile's row cap.
func WithMaxRows(n int) ClientOption {
	return func(c *KlineClient) {
		if n > 0 {
			c.profile.MaxRows = n
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *KlineClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient injects a preconfigured HTTP client.
func WithHTTPClient(h *xhttp.Client) ClientOption {
	return func(c *KlineClient) {
		c.http = h
	}
}

// NewKlineClient creates a client identified by id using the named profile.
func NewKlineClient(id, profile string, opts ...ClientOption) (*KlineClient, error) {
	p, err := LookupProfile(profile)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = p.Name
	}
	c := &KlineClient{
		id:      id,
		profile: p,
		baseURL: p.BaseURL,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(c.timeout))
	}
	return c, nil
}

func (c *KlineClient) ID() string { return c.id }

// MaxRows is the largest page the upstream serves.
func (c *KlineClient) MaxRows() int { return c.profile.MaxRows }

// Intervals returns per-timeframe interval code overrides.
func (c *KlineClient) Intervals() map[models.Timeframe]string { return c.profile.Intervals }

// FetchWindow requests one window. Bars come back ascending, in UTC, with
// only Timestamp and OHLCV set.
func (c *KlineClient) FetchWindow(ctx context.Context, req repository.FetchRequest) ([]models.Bar, error) {
	limit := req.Limit
	if limit <= 0 || limit > c.profile.MaxRows {
		limit = c.profile.MaxRows
	}

	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + c.profile.Path,
		QueryParams: map[string][]string{
			"symbol":    {req.Pair},
			"interval":  {req.Interval},
			"startTime": {strconv.FormatInt(req.StartMs, 10)},
			"endTime":   {strconv.FormatInt(req.EndMs, 10)},
			"limit":     {strconv.Itoa(limit)},
		},
	}, &body)
	if err != nil {
		return nil, c.classify(err)
	}

	return c.parse(body)
}

func (c *KlineClient) parse(body []byte) ([]models.Bar, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		return nil, c.apiError(0, body)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, repository.Transient(c.id, 0, fmt.Errorf("decode klines: %w", err))
	}

	bars := make([]models.Bar, 0, len(rows))
	for _, raw := range rows {
		b, ok := parseRow(raw)
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// parseRow tolerates extra trailing fields and a missing volume.
func parseRow(raw json.RawMessage) (models.Bar, bool) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) < 5 {
		return models.Bar{}, false
	}

	openMs, ok := parseMillis(fields[0])
	if !ok {
		return models.Bar{}, false
	}

	var ohlcv [5]decimal.Decimal
	for i := 1; i < len(fields) && i <= 5; i++ {
		if err := json.Unmarshal(fields[i], &ohlcv[i-1]); err != nil {
			return models.Bar{}, false
		}
	}

	return models.Bar{
		Timestamp: time.UnixMilli(openMs).UTC(),
		Open:      ohlcv[0],
		High:      ohlcv[1],
		Low:       ohlcv[2],
		Close:     ohlcv[3],
		Volume:    ohlcv[4],
	}, true
}

func parseMillis(raw json.RawMessage) (int64, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if v, err := n.Int64(); err == nil {
		return v, true
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

func (c *KlineClient) classify(err error) error {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusRequestTimeout,
			se.StatusCode == http.StatusTeapot, // binance IP ban while rate limited
			se.StatusCode == http.StatusTooManyRequests,
			se.StatusCode >= 500:
			return repository.Transient(c.id, se.StatusCode, err)
		case se.StatusCode >= 400:
			return c.apiError(se.StatusCode, se.Body)
		}
	}
	if xhttp.IsTimeout(err) {
		return repository.Timeout(c.id, err)
	}
	return repository.Transient(c.id, 0, err)
}

type apiErrorBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// apiError classifies an upstream error document. Rejected pairs and
// intervals are permanent; anything else in a 4xx is permanent too.
func (c *KlineClient) apiError(status int, body []byte) error {
	var doc apiErrorBody
	_ = json.Unmarshal(body, &doc)
	msg := strings.TrimSpace(doc.Msg)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	cause := fmt.Errorf("upstream error %d: %s", doc.Code, msg)

	lower := strings.ToLower(msg)
	if status >= 400 && status < 500 ||
		strings.Contains(lower, "invalid symbol") ||
		strings.Contains(lower, "invalid interval") {
		return repository.Permanent(c.id, status, cause)
	}
	return repository.Transient(c.id, status, cause)
}
