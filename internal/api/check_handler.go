package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/developer-az/commit-warrior/internal/cache"
	"github.com/developer-az/commit-warrior/internal/commits"
	"github.com/developer-az/commit-warrior/internal/errmsg"
	"github.com/developer-az/commit-warrior/internal/github"
	"github.com/developer-az/commit-warrior/internal/history"
	"github.com/developer-az/commit-warrior/internal/watch"
)

const (
	defaultHistoryLimit = 30
	defaultCheckTimeout = 2 * time.Minute
)

// Checker is the commit checker surface the API exposes
type Checker interface {
	CheckDate(ctx context.Context, cred github.Credential, day time.Time) commits.CheckResult
	ValidateToken(ctx context.Context, cred github.Credential) (*github.TokenValidation, error)
	GetRateLimitStatus() github.RateLimitStatus
	GetCacheStats() cache.Stats
	ClearCache()
	Days() commits.Days
}

// Scheduler is the periodic watcher
type Scheduler interface {
	Trigger(ctx context.Context) commits.CheckResult
	Status() watch.Status
	LastResult() *commits.CheckResult
}

// HistoryStore lists stored check results
type HistoryStore interface {
	List(ctx context.Context, username string, limit int) ([]*history.Record, error)
}

// CheckHandler serves check, status and cache endpoints
type CheckHandler struct {
	checker   Checker
	scheduler Scheduler
	history   HistoryStore
	creds     watch.CredentialFunc
	timeout   time.Duration
	logger    *slog.Logger
}

// NewCheckHandler creates a handler. history may be nil. timeout bounds a
// dated check; zero uses the default.
func NewCheckHandler(checker Checker, scheduler Scheduler, history HistoryStore, creds watch.CredentialFunc, timeout time.Duration, logger *slog.Logger) *CheckHandler {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &CheckHandler{
		checker:   checker,
		scheduler: scheduler,
		history:   history,
		creds:     creds,
		timeout:   timeout,
		logger:    logger,
	}
}

// CheckRequest is the optional body of POST /api/check
type CheckRequest struct {
	// Date is a YYYY-MM-DD day to check instead of today
	Date string `json:"date"`
}

// Check handles POST /api/check. The result is always 200 with the
// structured CheckResult; failures are described inside it.
func (h *CheckHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := parseJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Date == "" {
		respondJSON(w, http.StatusOK, h.scheduler.Trigger(r.Context()))
		return
	}

	day, err := h.checker.Days().Parse(req.Date)
	if err != nil {
		http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	respondJSON(w, http.StatusOK, h.checker.CheckDate(ctx, h.creds(), day))
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Scheduler  watch.Status         `json:"scheduler"`
	LastResult *commits.CheckResult `json:"lastResult"`
}

// Status handles GET /api/status
func (h *CheckHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		Scheduler:  h.scheduler.Status(),
		LastResult: h.scheduler.LastResult(),
	})
}

// History handles GET /api/history?limit=N
func (h *CheckHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 || l > history.MaxListLimit {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = l
	}

	records, err := h.history.List(r.Context(), h.creds().Username, limit)
	if err != nil {
		h.logger.Error("Failed to list history", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// RateLimit handles GET /api/ratelimit
func (h *CheckHandler) RateLimit(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.checker.GetRateLimitStatus())
}

// CacheStats handles GET /api/cache/stats
func (h *CheckHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.checker.GetCacheStats())
}

// ClearCache handles DELETE /api/cache
func (h *CheckHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.checker.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

// ValidateToken handles GET /api/token/validate
func (h *CheckHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	v, err := h.checker.ValidateToken(r.Context(), h.creds())
	if err != nil {
		ue := errmsg.ToUserFacing(err, "Validating token")
		status := http.StatusBadGateway
		if errors.Is(err, errmsg.ErrMissingCredentials) {
			status = http.StatusBadRequest
		}
		respondJSON(w, status, ue)
		return
	}
	respondJSON(w, http.StatusOK, v)
}
