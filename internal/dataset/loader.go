// Package dataset loads price histories and signal sets from an archive
// store. A dataset lives under one prefix:
//
//	<prefix>/prices/<TICKER>.csv   date,open,high,low,close,volume
//	<prefix>/signals.json          array of signals
package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/storage/archive"
	"go.uber.org/zap"
)

const (
	PricesDir   = "prices"
	SignalsFile = "signals.json"
)

// Dataset is one loaded input set
type Dataset struct {
	Prices  core.PriceMap
	Signals []core.Signal
}

// Loader reads datasets from a Storage
type Loader struct {
	store  archive.Storage
	logger *zap.Logger
}

// NewLoader creates a Loader.
func NewLoader(store archive.Storage, logger ...*zap.Logger) *Loader {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Loader{store: store, logger: l}
}

// Load reads every price file and the signal file under prefix. A missing
// signal file yields an empty signal set.
func (l *Loader) Load(ctx context.Context, prefix string) (*Dataset, error) {
	prices, err := l.LoadPrices(ctx, prefix)
	if err != nil {
		return nil, err
	}
	signals, err := l.LoadSignals(ctx, prefix)
	if err != nil {
		return nil, err
	}
	l.logger.Info("dataset loaded",
		zap.String("prefix", prefix),
		zap.Int("tickers", len(prices)),
		zap.Int("signals", len(signals)),
	)
	return &Dataset{Prices: prices, Signals: signals}, nil
}

// LoadPrices reads <prefix>/prices/*.csv. The ticker is the file name
// without extension.
func (l *Loader) LoadPrices(ctx context.Context, prefix string) (core.PriceMap, error) {
	dir := path.Join(prefix, PricesDir)
	paths, err := l.store.List(ctx, dir)
	if err != nil {
		return nil, err
	}

	prices := make(core.PriceMap)
	for _, p := range paths {
		if !strings.EqualFold(path.Ext(p), ".csv") {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ticker := strings.TrimSuffix(path.Base(p), path.Ext(p))
		data, err := l.store.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		series, err := ParsePrices(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ticker, err)
		}
		prices[ticker] = series
		l.logger.Debug("loaded prices", zap.String("ticker", ticker), zap.Int("bars", len(series)))
	}

	if len(prices) == 0 {
		return nil, core.Errorf(core.ErrNoData, "no price files under %s", dir)
	}
	return prices, nil
}

// LoadSignals reads <prefix>/signals.json. A missing file yields an empty
// signal set; a file that exists but does not decode is an error.
func (l *Loader) LoadSignals(ctx context.Context, prefix string) ([]core.Signal, error) {
	p := path.Join(prefix, SignalsFile)
	ok, err := l.store.Exists(ctx, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.logger.Debug("no signal file", zap.String("path", p))
		return []core.Signal{}, nil
	}

	data, err := l.store.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	signals, err := ParseSignals(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return signals, nil
}

// ParsePrices decodes a CSV price file. Columns are matched by header
// name; volume is optional. The result is validated for ascending,
// unique dates.
func ParsePrices(r io.Reader) (core.PriceSeries, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, core.Errorf(core.ErrNoData, "empty price file")
	}
	if err != nil {
		return nil, core.Errorf(core.ErrInvalidSeries, "reading header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := col[name]; !ok {
			return nil, core.Errorf(core.ErrInvalidSeries, "missing column %q", name)
		}
	}

	var series core.PriceSeries
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.Errorf(core.ErrInvalidSeries, "line %d: %w", line, err)
		}

		bar, err := parseBar(rec, col)
		if err != nil {
			return nil, core.Errorf(core.ErrInvalidSeries, "line %d: %w", line, err)
		}
		series = append(series, bar)
	}

	if err := series.Validate(); err != nil {
		return nil, err
	}
	return series, nil
}

func parseBar(rec []string, col map[string]int) (core.Bar, error) {
	var bar core.Bar
	date, err := core.ParseDate(rec[col["date"]])
	if err != nil {
		return bar, err
	}
	bar.Date = date

	for name, dst := range map[string]*float64{
		"open": &bar.Open, "high": &bar.High, "low": &bar.Low, "close": &bar.Close,
	} {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[name]]), 64)
		if err != nil {
			return bar, fmt.Errorf("%s: %w", name, err)
		}
		*dst = v
	}

	if i, ok := col["volume"]; ok && i < len(rec) && strings.TrimSpace(rec[i]) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return bar, fmt.Errorf("volume: %w", err)
		}
		bar.Volume = int64(v)
	}
	return bar, nil
}

// ParseSignals decodes a JSON signal array. Directions are normalized and
// timestamps accept a date, RFC 3339 or "YYYY-MM-DD hh:mm:ss". Any
// malformed entry fails the whole file.
func ParseSignals(data []byte) ([]core.Signal, error) {
	var signals []core.Signal
	if err := json.Unmarshal(data, &signals); err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) {
			return nil, err
		}
		return nil, core.Errorf(core.ErrInvalidSignal, "decoding signals: %w", err)
	}

	for i, sig := range signals {
		if err := sig.Validate(); err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
	}
	if signals == nil {
		signals = []core.Signal{}
	}
	return signals, nil
}
