// internal/api/handler/api/analysis_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/edgelab/internal/analysis"
	"github.com/newthinker/edgelab/internal/api/job"
	"github.com/newthinker/edgelab/internal/api/response"
	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/metrics"
	"github.com/newthinker/edgelab/internal/storage/archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func rising(n int) core.PriceSeries {
	ps := make(core.PriceSeries, n)
	for i := range ps {
		c := 100 * math.Pow(1.01, float64(i))
		ps[i] = core.Bar{Date: day(i), Open: c, High: c, Low: c, Close: c}
	}
	return ps
}

func quickOptions() analysis.Options {
	opts := analysis.DefaultOptions()
	opts.Backtest.HoldingPeriod = 5
	opts.MonteCarlo.Simulations = 50
	opts.MonteCarlo.Seed = 1
	return opts
}

func newHandler(t *testing.T, store archive.Storage) (*AnalysisHandler, *job.Store) {
	t.Helper()
	jobs := job.NewStore(10, time.Hour)
	h := NewAnalysisHandler(
		HandlerConfig{Defaults: quickOptions(), MaxRunning: 2, Timeout: 10 * time.Second},
		jobs,
		analysis.NewRunner(nil, nil),
		store,
		metrics.NewRegistry(),
		nil,
	)
	return h, jobs
}

func post(t *testing.T, h *AnalysisHandler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", bytes.NewReader(data))
	w := httptest.NewRecorder()
	h.Create(w, req)
	return w
}

func jobID(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Data struct {
			JobID string `json:"job_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.JobID)
	return resp.Data.JobID
}

func waitDone(t *testing.T, jobs *job.Store, id string) *job.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		j, err := jobs.Get(id)
		require.NoError(t, err)
		if j.Status.Done() {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func postRaw(h *AnalysisHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.Create(w, req)
	return w
}

func results(t *testing.T, h *AnalysisHandler) []string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/results", nil)
	w := httptest.NewRecorder()
	h.Results(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func get(h *AnalysisHandler, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+id, nil)
	req.SetPathValue("id", id)
	w := httptest.NewRecorder()
	h.Get(w, req)
	return w
}

func TestAnalysisHandler_InlineRun(t *testing.T) {
	h, jobs := newHandler(t, nil)

	w := post(t, h, AnalysisRequest{
		Name:   "inline",
		Prices: core.PriceMap{"AAA": rising(60)},
		Signals: []core.Signal{
			{Ticker: "AAA", Direction: core.DirectionBuy, Score: 70, Timestamp: day(0)},
			{Ticker: "AAA", Direction: core.DirectionBuy, Score: 70, Timestamp: day(20)},
		},
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	id := jobID(t, w)
	j := waitDone(t, jobs, id)
	require.Equal(t, job.StatusComplete, j.Status, "error: %v", j.Error)

	res, ok := j.Result.(*analysis.Result)
	require.True(t, ok)
	assert.Equal(t, id, res.RunID)
	assert.Len(t, res.Trades, 2)

	w = get(h, id)
	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Status string          `json:"status"`
			Result analysis.Result `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "complete", body.Data.Status)
	assert.Len(t, body.Data.Result.Trades, 2)
}

func TestAnalysisHandler_OptionsOverrideDefaults(t *testing.T) {
	h, jobs := newHandler(t, nil)

	w := post(t, h, map[string]any{
		"prices":  core.PriceMap{"AAA": rising(60)},
		"signals": []core.Signal{{Ticker: "AAA", Direction: core.DirectionBuy, Timestamp: day(0)}},
		"options": map[string]any{
			"backtest":        map[string]any{"holding_period": 10},
			"run_monte_carlo": false,
		},
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	j := waitDone(t, jobs, jobID(t, w))
	require.Equal(t, job.StatusComplete, j.Status)
	res := j.Result.(*analysis.Result)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, 10, res.Trades[0].HoldingDays)
	assert.Nil(t, res.MonteCarlo)
	assert.NotNil(t, res.WalkForward)
}

func TestAnalysisHandler_RejectsBadRequests(t *testing.T) {
	h, _ := newHandler(t, nil)

	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"no data", map[string]any{"name": "x"}, "CONFIG_MISSING"},
		{"dataset without store", map[string]any{"dataset": "demo"}, "CONFIG_MISSING"},
		{"bad option", map[string]any{
			"prices":  core.PriceMap{"AAA": rising(10)},
			"options": map[string]any{"backtest": map[string]any{"holding_period": 0}},
		}, "CONFIG_INVALID"},
		{"unsorted prices", map[string]any{
			"prices": core.PriceMap{"AAA": {{Date: day(1), Close: 1}, {Date: day(0), Close: 1}}},
		}, "INVALID_SERIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp response.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}

	w := postRaw(h, "{")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "CONFIG_INVALID")
}

func TestAnalysisHandler_FailedJobReportsError(t *testing.T) {
	h, jobs := newHandler(t, nil)

	w := post(t, h, AnalysisRequest{
		Prices:   core.PriceMap{"AAA": rising(30)},
		Strategy: "missing_strategy",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	j := waitDone(t, jobs, jobID(t, w))
	assert.Equal(t, job.StatusFailed, j.Status)
	require.NotNil(t, j.Error)
	assert.Equal(t, core.ErrConfigInvalid.Code, j.Error.Code)

	w = get(h, j.ID)
	assert.Contains(t, w.Body.String(), "CONFIG_INVALID")
}

func TestAnalysisHandler_DatasetAndArchive(t *testing.T) {
	store, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	csv := "date,open,high,low,close,volume\n"
	for i, bar := range rising(40) {
		csv += bar.Date.Format("2006-01-02") + ",1,1,1," + jsonNumber(bar.Close) + "," + jsonNumber(float64(i)) + "\n"
	}
	require.NoError(t, store.Write(ctx, "demo/prices/AAA.csv", []byte(csv)))
	require.NoError(t, store.Write(ctx, "demo/signals.json",
		[]byte(`[{"ticker":"AAA","direction":"BUY","score":60,"timestamp":"2024-01-01"}]`)))

	h, jobs := newHandler(t, store)
	w := post(t, h, AnalysisRequest{Name: "from-dataset", Dataset: "demo"})
	require.Equal(t, http.StatusAccepted, w.Code)

	id := jobID(t, w)
	j := waitDone(t, jobs, id)
	require.Equal(t, job.StatusComplete, j.Status, "error: %v", j.Error)
	assert.Equal(t, archive.ResultPath(id), j.ArchivePath)

	archived, err := archive.LoadResult(ctx, store, id)
	require.NoError(t, err)
	assert.Len(t, archived.Trades, 1)

	// a fresh handler without the job in memory serves it from the archive
	h2, _ := newHandler(t, store)
	w = get(h2, id)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"complete"`)

	assert.Equal(t, []string{id}, results(t, h2))
}

func TestAnalysisHandler_DatasetWithMalformedSignalsFails(t *testing.T) {
	store, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "demo/prices/AAA.csv",
		[]byte("date,open,high,low,close\n2024-01-01,1,1,1,1\n2024-01-02,1,1,1,1\n")))
	require.NoError(t, store.Write(ctx, "demo/signals.json", []byte(`[{"ticker":"AAA"`)))

	h, jobs := newHandler(t, store)
	w := post(t, h, AnalysisRequest{Dataset: "demo"})
	require.Equal(t, http.StatusAccepted, w.Code)

	j := waitDone(t, jobs, jobID(t, w))
	assert.Equal(t, job.StatusFailed, j.Status)
	require.NotNil(t, j.Error)
	assert.Equal(t, core.ErrInvalidSignal.Code, j.Error.Code)
}

func TestAnalysisHandler_InlineSignalsAreNormalized(t *testing.T) {
	h, jobs := newHandler(t, nil)

	prices, err := json.Marshal(core.PriceMap{"AAA": rising(60)})
	require.NoError(t, err)
	body := `{"prices":` + string(prices) + `,"signals":[` +
		`{"ticker":"AAA","direction":"buy","score":70,"timestamp":"2024-01-01"},` +
		`{"ticker":"AAA","direction":"strong_buy","score":80,"timestamp":"2024-01-21 00:00:00"}]}`

	w := postRaw(h, body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	j := waitDone(t, jobs, jobID(t, w))
	require.Equal(t, job.StatusComplete, j.Status, "error: %v", j.Error)
	res := j.Result.(*analysis.Result)
	require.Len(t, res.Trades, 2)
	assert.True(t, res.Trades[0].EntryDate.Equal(day(0)))
	assert.True(t, res.Trades[1].EntryDate.Equal(day(20)))
}

func TestAnalysisHandler_RejectsInvalidInlineSignals(t *testing.T) {
	h, _ := newHandler(t, nil)

	prices, err := json.Marshal(core.PriceMap{"AAA": rising(10)})
	require.NoError(t, err)

	tests := []struct {
		name   string
		signal string
	}{
		{"unknown direction", `{"ticker":"AAA","direction":"LONG","timestamp":"2024-01-01"}`},
		{"bad timestamp", `{"ticker":"AAA","direction":"BUY","timestamp":"01/02/2024"}`},
		{"missing ticker", `{"direction":"BUY","timestamp":"2024-01-01"}`},
		{"missing direction", `{"ticker":"AAA","timestamp":"2024-01-01"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postRaw(h, `{"prices":`+string(prices)+`,"signals":[`+tt.signal+`]}`)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp response.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, core.ErrInvalidSignal.Code, resp.Error.Code)
		})
	}
}

func TestAnalysisHandler_ResultsWithoutStore(t *testing.T) {
	h, _ := newHandler(t, nil)
	assert.Empty(t, results(t, h))
}

func TestAnalysisHandler_GetUnknown(t *testing.T) {
	h, _ := newHandler(t, nil)
	w := get(h, "does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "JOB_NOT_FOUND")
}

func TestAnalysisHandler_List(t *testing.T) {
	h, jobs := newHandler(t, nil)
	w := post(t, h, AnalysisRequest{Name: "one", Prices: core.PriceMap{"AAA": rising(30)}})
	waitDone(t, jobs, jobID(t, w))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil)
	w = httptest.NewRecorder()
	h.List(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"one"`)
}

func jsonNumber(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
