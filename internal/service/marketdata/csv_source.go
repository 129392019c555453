package marketdata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"FieldScan/internal/domain/models"
	applogger "FieldScan/pkg/logger"
)

const eventsSuffix = "_events"

// csvBar mirrors a Yahoo Finance daily export. Values stay strings because
// exports carry "null" rows on market holidays.
type csvBar struct {
	Date     string `csv:"Date"`
	Open     string `csv:"Open"`
	High     string `csv:"High"`
	Low      string `csv:"Low"`
	Close    string `csv:"Close"`
	AdjClose string `csv:"Adj Close"`
	Volume   string `csv:"Volume"`
}

type csvEvent struct {
	Timestamp string `csv:"timestamp"`
	Type      string `csv:"type"`
	Title     string `csv:"title"`
}

// CSVSource reads <dir>/<TICKER>.csv bars and optional <dir>/<TICKER>_events.csv
// insider/news rows.
type CSVSource struct {
	dir string
	l   *applogger.Logger
}

func NewCSVSource(dir string, l *applogger.Logger) *CSVSource {
	if l == nil {
		l = applogger.Nop()
	}
	return &CSVSource{dir: dir, l: l}
}

func (s *CSVSource) Series(ctx context.Context, ticker string) (*models.TickerSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []*csvBar
	if err := readCSV(filepath.Join(s.dir, ticker+".csv"), &rows); err != nil {
		return nil, fmt.Errorf("read bars %s: %w", ticker, err)
	}

	bars := make([]models.PriceBar, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		b, ok := r.toBar()
		if !ok {
			skipped++
			continue
		}
		bars = append(bars, b)
	}
	if skipped > 0 {
		s.l.Debug("skipped unparsable csv rows", applogger.String("ticker", ticker), applogger.Int("rows", skipped))
	}

	series := &models.TickerSeries{Ticker: ticker, Bars: bars}
	if err := s.loadEvents(ticker, series); err != nil {
		return nil, err
	}
	return series, nil
}

func (s *CSVSource) loadEvents(ticker string, series *models.TickerSeries) error {
	var rows []*csvEvent
	err := readCSV(filepath.Join(s.dir, ticker+eventsSuffix+".csv"), &rows)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read events %s: %w", ticker, err)
	}
	for _, r := range rows {
		ts, ok := parseTimestamp(r.Timestamp)
		if !ok {
			continue
		}
		ev := models.EventRecord{Timestamp: ts, Type: models.EventType(strings.ToLower(strings.TrimSpace(r.Type)))}
		if r.Title != "" {
			ev.Payload = map[string]string{"title": r.Title}
		}
		switch ev.Type {
		case models.EventInsider:
			series.Insider = append(series.Insider, ev)
		case models.EventNews:
			series.News = append(series.News, ev)
		}
	}
	sortEvents(series.Insider)
	sortEvents(series.News)
	return nil
}

// Tickers lists every bar file in the directory.
func (s *CSVSource) Tickers(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".csv")
		if strings.HasSuffix(name, eventsSuffix) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func readCSV(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.Unmarshal(f, out)
}

func (r *csvBar) toBar() (models.PriceBar, bool) {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(r.Date))
	if err != nil {
		return models.PriceBar{}, false
	}
	var vals [6]float64
	for i, raw := range []string{r.Open, r.High, r.Low, r.Close, r.AdjClose, r.Volume} {
		raw = strings.TrimSpace(raw)
		if raw == "" && i == 4 {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.PriceBar{}, false
		}
		vals[i] = v
	}
	return models.PriceBar{
		Date:     d,
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		AdjClose: vals[4],
		Volume:   vals[5],
	}, true
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC(), true
	}
	return time.Time{}, false
}

func sortEvents(evs []models.EventRecord) {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Timestamp.Before(evs[j].Timestamp) })
}
