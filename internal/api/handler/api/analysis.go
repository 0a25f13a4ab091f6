// internal/api/handler/api/analysis.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/edgelab/internal/analysis"
	"github.com/newthinker/edgelab/internal/api/job"
	"github.com/newthinker/edgelab/internal/api/response"
	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/dataset"
	"github.com/newthinker/edgelab/internal/metrics"
	"github.com/newthinker/edgelab/internal/storage/archive"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 5 * time.Minute
	maxRequestBytes = 64 << 20
)

// AnalysisRequest is the request body for starting an analysis. Prices and
// signals are given inline or loaded from a dataset prefix in the store.
// Options are applied over the server defaults.
type AnalysisRequest struct {
	Name     string          `json:"name"`
	Dataset  string          `json:"dataset,omitempty"`
	Strategy string          `json:"strategy,omitempty"`
	Signals  []core.Signal   `json:"signals,omitempty"`
	Prices   core.PriceMap   `json:"prices,omitempty"`
	Options  json.RawMessage `json:"options,omitempty"`
}

// HandlerConfig configures the analysis handler.
type HandlerConfig struct {
	Defaults   analysis.Options
	MaxRunning int
	Timeout    time.Duration
}

// AnalysisHandler runs analyses as async jobs.
type AnalysisHandler struct {
	jobs     *job.Store
	runner   *analysis.Runner
	store    archive.Storage // optional, datasets and result archive
	metrics  *metrics.Registry
	defaults analysis.Options
	timeout  time.Duration
	sem      chan struct{}
	logger   *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler. store and reg may be
// nil.
func NewAnalysisHandler(
	cfg HandlerConfig,
	jobs *job.Store,
	runner *analysis.Runner,
	store archive.Storage,
	reg *metrics.Registry,
	logger *zap.Logger,
) *AnalysisHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRunning <= 0 {
		cfg.MaxRunning = analysis.DefaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &AnalysisHandler{
		jobs:     jobs,
		runner:   runner,
		store:    store,
		metrics:  reg,
		defaults: cfg.Defaults,
		timeout:  cfg.Timeout,
		sem:      make(chan struct{}, cfg.MaxRunning),
		logger:   logger,
	}
}

// Create validates the request and starts an analysis job.
func (h *AnalysisHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body AnalysisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&body); err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) {
			response.Fail(w, err)
			return
		}
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	req, err := h.buildRequest(body)
	if err != nil {
		response.Fail(w, err)
		return
	}

	j := h.jobs.Create("analysis", body.Name)
	req.ID = j.ID

	// Run analysis in background
	go h.run(j.ID, body.Dataset, req)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

// buildRequest resolves options and checks everything that can be checked
// before the data is loaded.
func (h *AnalysisHandler) buildRequest(body AnalysisRequest) (analysis.Request, error) {
	opts := h.defaults
	if len(body.Options) > 0 {
		if err := json.Unmarshal(body.Options, &opts); err != nil {
			return analysis.Request{}, core.WrapError(core.ErrConfigInvalid, err)
		}
	}
	if err := opts.Validate(); err != nil {
		return analysis.Request{}, err
	}

	switch {
	case body.Dataset != "" && len(body.Prices) > 0:
		return analysis.Request{}, core.Errorf(core.ErrConfigInvalid, "give either dataset or prices, not both")
	case body.Dataset != "" && h.store == nil:
		return analysis.Request{}, core.Errorf(core.ErrConfigMissing, "no dataset store configured")
	case body.Dataset == "" && len(body.Prices) == 0:
		return analysis.Request{}, core.Errorf(core.ErrConfigMissing, "prices or dataset required")
	}
	if len(body.Prices) > 0 {
		if err := body.Prices.Validate(); err != nil {
			return analysis.Request{}, err
		}
	}
	for i, sig := range body.Signals {
		if err := sig.Validate(); err != nil {
			return analysis.Request{}, fmt.Errorf("signal %d: %w", i, err)
		}
	}

	return analysis.Request{
		Name:     body.Name,
		Signals:  body.Signals,
		Prices:   body.Prices,
		Strategy: body.Strategy,
		Options:  opts,
	}, nil
}

// run executes the job and updates its status.
func (h *AnalysisHandler) run(jobID, datasetPrefix string, req analysis.Request) {
	h.sem <- struct{}{}
	defer func() { <-h.sem }()

	if h.metrics != nil {
		h.metrics.JobStarted()
		defer h.metrics.JobFinished()
	}

	// Mark as running
	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	result, archivePath, err := h.execute(ctx, datasetPrefix, req)
	if err != nil {
		h.logger.Error("analysis job failed", zap.String("job_id", jobID), zap.Error(err))
		h.jobs.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = asCoreError(err)
		})
		return
	}

	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = result
		j.ArchivePath = archivePath
	})
}

func (h *AnalysisHandler) execute(ctx context.Context, datasetPrefix string, req analysis.Request) (*analysis.Result, string, error) {
	if datasetPrefix != "" {
		ds, err := dataset.NewLoader(h.store, h.logger).Load(ctx, datasetPrefix)
		if err != nil {
			return nil, "", err
		}
		req.Prices = ds.Prices
		if len(req.Signals) == 0 {
			req.Signals = ds.Signals
		}
	}

	result, err := h.runner.Run(ctx, req)
	if err != nil {
		return nil, "", err
	}

	if h.store == nil {
		return result, "", nil
	}
	p, err := archive.SaveResult(ctx, h.store, result)
	if err != nil {
		// the result is still served from memory
		h.logger.Warn("archiving result failed", zap.String("run_id", result.RunID), zap.Error(err))
		return result, "", nil
	}
	return result, p, nil
}

// Get returns the status of an analysis job, with its result when
// complete. Jobs evicted from memory are served from the archive.
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	j, err := h.jobs.Get(jobID)
	if err != nil {
		if res, archErr := h.fromArchive(r.Context(), jobID); archErr == nil {
			response.JSON(w, http.StatusOK, map[string]any{
				"job_id":   jobID,
				"status":   job.StatusComplete,
				"progress": 100,
				"result":   res,
			})
			return
		}
		response.Fail(w, err)
		return
	}

	resp := map[string]any{
		"job_id":   j.ID,
		"name":     j.Name,
		"status":   j.Status,
		"progress": j.Progress,
	}

	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
		if j.ArchivePath != "" {
			resp["archive_path"] = j.ArchivePath
		}
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = response.ErrorDetail{
			Code:    j.Error.Code,
			Message: j.Error.Message,
			Cause:   causeString(j.Error),
		}
	}

	response.JSON(w, http.StatusOK, resp)
}

// List returns a summary of the live jobs.
func (h *AnalysisHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List()
	out := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, map[string]any{
			"job_id":     j.ID,
			"name":       j.Name,
			"status":     j.Status,
			"created_at": j.CreatedAt,
		})
	}
	response.JSON(w, http.StatusOK, out)
}

// Results lists the run ids held in the result archive.
func (h *AnalysisHandler) Results(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		response.JSON(w, http.StatusOK, []string{})
		return
	}
	ids, err := archive.ListResults(r.Context(), h.store)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, ids)
}

func (h *AnalysisHandler) fromArchive(ctx context.Context, runID string) (*analysis.Result, error) {
	if h.store == nil {
		return nil, core.ErrNoData
	}
	return archive.LoadResult(ctx, h.store, runID)
}

func asCoreError(err error) *core.Error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr
	}
	return core.WrapError(core.ErrAnalysisFailed, err)
}

func causeString(e *core.Error) string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}
