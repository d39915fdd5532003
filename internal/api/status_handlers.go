package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/runs"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 500
	defaultRunLimit    = 20
	maxRunLimit        = 100
	statusTimeout      = 3 * time.Second
)

// StatusHandler exposes read-only crawl state.
type StatusHandler struct {
	deps    Deps
	timeout time.Duration
	logger  *zap.Logger
}

// NewStatusHandler wires the crawl views and logger.
func NewStatusHandler(deps Deps, logger *zap.Logger) *StatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHandler{deps: deps, timeout: statusTimeout, logger: logger}
}

// Progress handles GET /v1/progress and returns the tracker snapshot.
func (h *StatusHandler) Progress(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Progress == nil {
		writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": h.deps.Progress.Snapshot()})
}

type statusDTO struct {
	CheckpointKeys int `json:"checkpoint_keys"`
	Records        int `json:"records"`
}

// Status handles GET /v1/status. It returns 503 when either view is missing
// and 500 when the records cannot be read.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.deps.Checkpoints == nil || h.deps.Records == nil {
		writeError(w, http.StatusServiceUnavailable, "status unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	records, err := h.deps.Records.Records(ctx)
	if err != nil {
		h.logger.Error("read records failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read records")
		return
	}
	writeJSON(w, http.StatusOK, statusDTO{
		CheckpointKeys: h.deps.Checkpoints.Len(),
		Records:        len(records),
	})
}

// Records handles GET /v1/records?limit=&offset=. It returns
// {"records": [...], "total": n}, 400 for invalid paging, 503 when no record
// view is configured, or 500 if reading fails.
func (h *StatusHandler) Records(w http.ResponseWriter, r *http.Request) {
	if h.deps.Records == nil {
		writeError(w, http.StatusServiceUnavailable, "records unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRecordLimit, maxRecordLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	records, err := h.deps.Records.Records(ctx)
	if err != nil {
		h.logger.Error("read records failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read records")
		return
	}
	if records == nil {
		records = []crawler.Record{}
	}
	total := len(records)
	start := min(offset, total)
	end := min(start+limit, total)
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records[start:end],
		"total":   total,
	})
}

// Runs handles GET /v1/runs?limit=&offset= and lists recorded runs, newest
// first. It returns 503 when no run history is configured.
func (h *StatusHandler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	list, err := h.deps.Runs.ListRuns(ctx, limit, offset)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if list == nil {
		list = []runs.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": list})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
