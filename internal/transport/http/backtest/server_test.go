package backtesthttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"listingshort/internal/backtest"
	"listingshort/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Start(o backtest.Overrides) (backtest.Report, error) {
	args := m.Called(o)
	return args.Get(0).(backtest.Report), args.Error(1)
}

func (m *MockLauncher) Active() string {
	args := m.Called()
	return args.String(0)
}

type MockResults struct {
	mock.Mock
}

func (m *MockResults) ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.RunRecord), args.Error(1)
}

func (m *MockResults) GetRun(ctx context.Context, id string) (store.RunRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(store.RunRecord), args.Error(1)
}

func (m *MockResults) ListTrades(ctx context.Context, runID string, limit int) ([]backtest.Trade, error) {
	args := m.Called(ctx, runID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]backtest.Trade), args.Error(1)
}

func newTestServer(t *testing.T, launcher Launcher, results ResultReader) *Server {
	t.Helper()
	srv, err := NewServer(Config{
		Launcher: launcher,
		Results:  results,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})
	require.NoError(t, err)
	return srv
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleRunStart(t *testing.T) {
	launcher := new(MockLauncher)
	launcher.On("Start", mock.MatchedBy(func(o backtest.Overrides) bool {
		return o.StopLoss != nil && *o.StopLoss == 0.2 && o.Limit != nil && *o.Limit == 3 && o.EntryOffset == nil
	})).Return(backtest.Report{RunID: "run-1", Status: backtest.RunStatusRunning}, nil).Once()
	srv := newTestServer(t, launcher, nil)

	rec := doRequest(srv, http.MethodPost, "/api/backtest/runs", `{"stop_loss":0.2,"limit":3}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp struct {
		Run backtest.Report `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.Run.RunID)
	launcher.AssertExpectations(t)
}

func TestHandleRunStartWithoutBody(t *testing.T) {
	launcher := new(MockLauncher)
	launcher.On("Start", backtest.Overrides{}).Return(backtest.Report{RunID: "run-2"}, nil).Once()
	srv := newTestServer(t, launcher, nil)

	rec := doRequest(srv, http.MethodPost, "/api/backtest/runs", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	launcher.AssertExpectations(t)
}

func TestHandleRunStartErrors(t *testing.T) {
	launcher := new(MockLauncher)
	launcher.On("Start", mock.MatchedBy(func(o backtest.Overrides) bool { return o.Limit == nil && o.TakeProfit == nil })).
		Return(backtest.Report{}, fmt.Errorf("%w: run-1", backtest.ErrRunInProgress))
	launcher.On("Start", mock.MatchedBy(func(o backtest.Overrides) bool { return o.TakeProfit != nil })).
		Return(backtest.Report{}, fmt.Errorf("take_profit 需在 (0,1) 区间"))
	launcher.On("Active").Return("run-1")
	srv := newTestServer(t, launcher, nil)

	rec := doRequest(srv, http.MethodPost, "/api/backtest/runs", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-1")

	rec = doRequest(srv, http.MethodPost, "/api/backtest/runs", `{"take_profit":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/backtest/runs", `{"limit":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRunQueries(t *testing.T) {
	started := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	results := new(MockResults)
	results.On("ListRuns", mock.Anything, 10).Return([]store.RunRecord{{ID: "run-1", Status: "done", StartedAt: started}}, nil)
	results.On("GetRun", mock.Anything, "run-1").Return(store.RunRecord{ID: "run-1", Status: "done", StartedAt: started}, nil)
	results.On("GetRun", mock.Anything, "missing").Return(store.RunRecord{}, fmt.Errorf("%w: missing", store.ErrRunNotFound))
	results.On("ListTrades", mock.Anything, "run-1", 1000).Return([]backtest.Trade{
		{Symbol: "AUSDT", Status: backtest.StatusCompleted, ExitReason: backtest.ExitTakeProfit, PnLPercent: 40},
	}, nil)
	srv := newTestServer(t, new(MockLauncher), results)

	rec := doRequest(srv, http.MethodGet, "/api/backtest/runs?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"run-1"`)

	rec = doRequest(srv, http.MethodGet, "/api/backtest/runs/run-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/backtest/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/backtest/runs/run-1/trades", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Trades []backtest.Trade `json:"trades"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Trades, 1)
	assert.Equal(t, 40.0, resp.Trades[0].PnLPercent)

	rec = doRequest(srv, http.MethodGet, "/api/backtest/runs/missing/trades", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	results.AssertExpectations(t)
}

func TestQueriesWithoutStore(t *testing.T) {
	srv := newTestServer(t, new(MockLauncher), nil)
	for _, path := range []string{"/api/backtest/runs", "/api/backtest/runs/x", "/api/backtest/runs/x/trades"} {
		rec := doRequest(srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	launcher := new(MockLauncher)
	launcher.On("Active").Return("")
	srv := newTestServer(t, launcher, nil)

	rec := doRequest(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","active_run":""}`, rec.Body.String())

	rec = doRequest(srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestNewServerRequiresLauncher(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}
