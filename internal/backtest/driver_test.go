package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"listingshort/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticListings struct {
	listings []market.Listing
	err      error
}

func (s staticListings) Listings(context.Context) ([]market.Listing, error) {
	return s.listings, s.err
}

type MockCandleFetcher struct {
	mock.Mock
}

func (m *MockCandleFetcher) Fetch(ctx context.Context, req FetchRequest) FetchResult {
	args := m.Called(ctx, req)
	return args.Get(0).(FetchResult)
}

type fetchFunc func(ctx context.Context, req FetchRequest) FetchResult

func (f fetchFunc) Fetch(ctx context.Context, req FetchRequest) FetchResult { return f(ctx, req) }

func listingAt(symbol string, offsetHours int64) market.Listing {
	return market.Listing{
		Symbol:           symbol,
		BaseAsset:        symbol[:len(symbol)-4],
		QuoteAsset:       "USDT",
		ListingTimestamp: testListingTS + offsetHours*hourMs,
	}
}

func newTestDriver(t *testing.T, listings ListingProvider, fetcher CandleFetcher, concurrency int) *Driver {
	t.Helper()
	sim, err := NewSimulator(DefaultSimulatorConfig())
	require.NoError(t, err)
	d, err := NewDriver(listings, fetcher, sim, RunConfig{Interval: "1h", SafetyMargin: 10, Concurrency: concurrency}, nil)
	require.NoError(t, err)
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }
	d.newID = func() string { return "run-fixed" }
	return d
}

func TestDriverRunsEachListingOnce(t *testing.T) {
	stop := listingAt("STOPUSDT", 0)
	stop.ListingTimestamp += 30 * 60_000
	thin := listingAt("THINUSDT", 5)
	partial := listingAt("PARTUSDT", 9)

	stopCandles := flatCandles(88)
	stopCandles[10].High = 115

	fetcher := new(MockCandleFetcher)
	fetcher.On("Fetch", mock.Anything, mock.MatchedBy(func(r FetchRequest) bool {
		return r.Symbol == "STOPUSDT" && r.Start == testListingTS && r.Limit == 88 && r.Interval == "1h"
	})).Return(FetchResult{Candles: stopCandles, Pages: 1, Requests: 1, StopReason: StopLimitReached}).Once()
	fetcher.On("Fetch", mock.Anything, mock.MatchedBy(func(r FetchRequest) bool {
		return r.Symbol == "THINUSDT"
	})).Return(FetchResult{Candles: flatCandles(5), Pages: 1, Requests: 1, StopReason: StopShortPage}).Once()
	fetcher.On("Fetch", mock.Anything, mock.MatchedBy(func(r FetchRequest) bool {
		return r.Symbol == "PARTUSDT"
	})).Return(FetchResult{
		Candles: flatCandles(20), Pages: 1, Requests: 6,
		StopReason: StopRetriesExhausted, Err: market.ErrRateLimited,
	}).Once()

	d := newTestDriver(t, staticListings{listings: []market.Listing{stop, thin, partial}}, fetcher, 1)
	report, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-fixed", report.RunID)
	assert.Equal(t, RunStatusDone, report.Status)
	require.Len(t, report.Trades, 3)

	assert.Equal(t, "STOPUSDT", report.Trades[0].Symbol)
	assert.Equal(t, ExitStopLoss, report.Trades[0].ExitReason)
	assert.Equal(t, StatusSkipped, report.Trades[1].Status)
	assert.Equal(t, ExitNoData, report.Trades[1].ExitReason)
	assert.Equal(t, ExitTimeout, report.Trades[2].ExitReason)
	assert.Contains(t, report.Trades[2].Note, string(StopRetriesExhausted))

	assert.Equal(t, 3, report.Summary.Total)
	assert.Equal(t, 2, report.Summary.Completed)
	assert.Equal(t, 1, report.Summary.Skipped)
	assert.Equal(t, 88, report.Config.CandlesNeeded())
	assert.Equal(t, DefaultSimulatorConfig(), report.Config.Simulator)
	fetcher.AssertExpectations(t)
}

func TestDriverCatalogFailureIsFatal(t *testing.T) {
	fetcher := new(MockCandleFetcher)
	d := newTestDriver(t, staticListings{err: fmt.Errorf("%w: boom", market.ErrCatalogUnavailable)}, fetcher, 1)

	report, err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrCatalogUnavailable)
	assert.Equal(t, RunStatusFailed, report.Status)
	assert.Empty(t, report.Trades)
	assert.NotEmpty(t, report.Error)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestDriverPreservesOrderUnderConcurrency(t *testing.T) {
	listings := make([]market.Listing, 20)
	for i := range listings {
		listings[i] = listingAt(fmt.Sprintf("C%02dUSDT", i), int64(i))
	}
	var inflight, peak int32
	fetcher := fetchFunc(func(ctx context.Context, req FetchRequest) FetchResult {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		defer atomic.AddInt32(&inflight, -1)
		idx := int((req.Start - testListingTS) / hourMs)
		time.Sleep(time.Duration(20-idx) * time.Millisecond)
		candles := flatCandles(88)
		candles[6+1+idx%5].High = 200
		return FetchResult{Candles: candles, Pages: 1, Requests: 1, StopReason: StopLimitReached}
	})

	d := newTestDriver(t, staticListings{listings: listings}, fetcher, 4)
	report, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Trades, len(listings))
	for i, trade := range report.Trades {
		assert.Equal(t, listings[i].Symbol, trade.Symbol)
		assert.Equal(t, ExitStopLoss, trade.ExitReason)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(4))
	assert.Equal(t, 4, report.Config.Concurrency)
}

func TestDriverReportIsReproducible(t *testing.T) {
	listings := []market.Listing{listingAt("AUSDT", 0), listingAt("BUSDT", 1)}
	fetcher := fetchFunc(func(_ context.Context, req FetchRequest) FetchResult {
		candles := flatCandles(88)
		for i := range candles {
			candles[i].Close = 100 - float64(i%4)
		}
		return FetchResult{Candles: candles, Pages: 1, Requests: 1, StopReason: StopLimitReached}
	})
	d := newTestDriver(t, staticListings{listings: listings}, fetcher, 2)

	first, err := d.Run(context.Background())
	require.NoError(t, err)
	second, err := d.Run(context.Background())
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestDriverMarksCanceledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	listings := []market.Listing{listingAt("AUSDT", 0), listingAt("BUSDT", 1)}
	fetcher := fetchFunc(func(ctx context.Context, req FetchRequest) FetchResult {
		cancel()
		return FetchResult{StopReason: StopCanceled, Err: ctx.Err()}
	})
	d := newTestDriver(t, staticListings{listings: listings}, fetcher, 1)

	report, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCanceled, report.Status)
	require.Len(t, report.Trades, 2)
	for _, trade := range report.Trades {
		assert.Equal(t, StatusSkipped, trade.Status)
		assert.Contains(t, trade.Note, string(StopCanceled))
	}
}

func TestNewDriverValidation(t *testing.T) {
	sim, err := NewSimulator(DefaultSimulatorConfig())
	require.NoError(t, err)
	_, err = NewDriver(nil, new(MockCandleFetcher), sim, RunConfig{Interval: "1h"}, nil)
	assert.Error(t, err)
	_, err = NewDriver(staticListings{}, nil, sim, RunConfig{Interval: "1h"}, nil)
	assert.Error(t, err)
	_, err = NewDriver(staticListings{}, new(MockCandleFetcher), nil, RunConfig{Interval: "1h"}, nil)
	assert.Error(t, err)
	_, err = NewDriver(staticListings{}, new(MockCandleFetcher), sim, RunConfig{Interval: "bad"}, nil)
	assert.Error(t, err)
}
