package finnhub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"FieldScan/internal/domain/models"
	svcmetrics "FieldScan/internal/service/metrics"
	"FieldScan/internal/service/ratelimit"
	pkghttp "FieldScan/pkg/http"
	applogger "FieldScan/pkg/logger"
)

const source = "finnhub"

var ErrNoData = errors.New("finnhub: no data")

type Config struct {
	APIKey      string
	BaseURL     string
	HistoryDays int
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Client fetches daily candles, insider transactions and company news over
// the Finnhub REST API. Calls share one rate limiter key and one breaker.
type Client struct {
	cfg     Config
	http    *pkghttp.Client
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	l       *applogger.Logger
	now     func() time.Time
}

func New(cfg Config, httpClient *pkghttp.Client, limiter *ratelimit.Limiter, l *applogger.Logger) *Client {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 730
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	st := gobreaker.Settings{
		Name:     source,
		Interval: time.Minute,
		Timeout:  cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if l != nil {
				l.Warn("circuit breaker state change",
					applogger.String("breaker", name),
					applogger.String("from", from.String()),
					applogger.String("to", to.String()),
				)
			}
		},
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: limiter,
		breaker: gobreaker.NewCircuitBreaker(st),
		l:       l,
		now:     time.Now,
	}
}

type candleResponse struct {
	Close  []float64 `json:"c"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Open   []float64 `json:"o"`
	Status string    `json:"s"`
	Time   []int64   `json:"t"`
	Volume []float64 `json:"v"`
}

type insiderResponse struct {
	Data []struct {
		Name            string  `json:"name"`
		Share           float64 `json:"share"`
		Change          float64 `json:"change"`
		FilingDate      string  `json:"filingDate"`
		TransactionDate string  `json:"transactionDate"`
		TransactionCode string  `json:"transactionCode"`
	} `json:"data"`
	Symbol string `json:"symbol"`
}

type newsItem struct {
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	URL      string `json:"url"`
}

// get runs one rate-limited, breaker-guarded GET and decodes into dest.
func (c *Client) get(ctx context.Context, endpoint string, params map[string]string, dest interface{}) error {
	if err := c.limiter.Wait(ctx, source); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	q := map[string][]string{"token": {c.cfg.APIKey}}
	for k, v := range params {
		q[k] = []string{v}
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
			Method:      pkghttp.MethodGet,
			URL:         c.cfg.BaseURL + endpoint,
			QueryParams: q,
		}, dest)
	})
	svcmetrics.UpstreamLatency.WithLabelValues(source, endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		svcmetrics.UpstreamErrors.WithLabelValues(source, endpoint).Inc()
		return fmt.Errorf("GET %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) window() (time.Time, time.Time) {
	to := c.now().UTC()
	return to.AddDate(0, 0, -c.cfg.HistoryDays), to
}

// Candles returns daily bars in ascending date order.
func (c *Client) Candles(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	from, to := c.window()
	var resp candleResponse
	err := c.get(ctx, "/stock/candle", map[string]string{
		"symbol":     ticker,
		"resolution": "D",
		"from":       strconv.FormatInt(from.Unix(), 10),
		"to":         strconv.FormatInt(to.Unix(), 10),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("%s candles: %w", ticker, ErrNoData)
	}
	n := len(resp.Time)
	if len(resp.Open) != n || len(resp.High) != n || len(resp.Low) != n || len(resp.Close) != n || len(resp.Volume) != n {
		return nil, fmt.Errorf("%s candles: ragged arrays", ticker)
	}
	bars := make([]models.PriceBar, n)
	for i := 0; i < n; i++ {
		bars[i] = models.PriceBar{
			Date:   models.Day(time.Unix(resp.Time[i], 0)),
			Open:   resp.Open[i],
			High:   resp.High[i],
			Low:    resp.Low[i],
			Close:  resp.Close[i],
			Volume: resp.Volume[i],
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// Insider returns one event per insider transaction, dated by transaction date.
func (c *Client) Insider(ctx context.Context, ticker string) ([]models.EventRecord, error) {
	from, to := c.window()
	var resp insiderResponse
	err := c.get(ctx, "/stock/insider-transactions", map[string]string{
		"symbol": ticker,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}, &resp)
	if err != nil {
		return nil, err
	}
	out := make([]models.EventRecord, 0, len(resp.Data))
	for _, d := range resp.Data {
		date := d.TransactionDate
		if date == "" {
			date = d.FilingDate
		}
		ts, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		out = append(out, models.EventRecord{
			Timestamp: ts,
			Type:      models.EventInsider,
			Payload: map[string]string{
				"name":   d.Name,
				"code":   d.TransactionCode,
				"change": strconv.FormatFloat(d.Change, 'f', -1, 64),
			},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// News returns company news items as events.
func (c *Client) News(ctx context.Context, ticker string) ([]models.EventRecord, error) {
	from, to := c.window()
	var items []newsItem
	err := c.get(ctx, "/company-news", map[string]string{
		"symbol": ticker,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}, &items)
	if err != nil {
		return nil, err
	}
	out := make([]models.EventRecord, 0, len(items))
	for _, it := range items {
		if it.Datetime <= 0 {
			continue
		}
		out = append(out, models.EventRecord{
			Timestamp: time.Unix(it.Datetime, 0).UTC(),
			Type:      models.EventNews,
			Payload:   map[string]string{"headline": it.Headline, "source": it.Source},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Series implements MarketData. Missing event feeds degrade to empty lists;
// missing candles fail the ticker.
func (c *Client) Series(ctx context.Context, ticker string) (*models.TickerSeries, error) {
	bars, err := c.Candles(ctx, ticker)
	if err != nil {
		return nil, err
	}
	series := &models.TickerSeries{Ticker: ticker, Bars: bars}

	if series.Insider, err = c.Insider(ctx, ticker); err != nil {
		c.warn("insider feed unavailable", ticker, err)
	}
	if series.News, err = c.News(ctx, ticker); err != nil {
		c.warn("news feed unavailable", ticker, err)
	}
	return series, nil
}

func (c *Client) warn(msg, ticker string, err error) {
	if c.l == nil {
		return
	}
	c.l.Warn(msg, applogger.String("ticker", ticker), applogger.Error(err))
}

// State exposes the breaker state for health reporting.
func (c *Client) State() string {
	return c.breaker.State().String()
}
