package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/developer-az/commit-warrior/internal/commits"
	"github.com/developer-az/commit-warrior/internal/github"
	"github.com/developer-az/commit-warrior/internal/history"
)

// Checker runs one commit check
type Checker interface {
	CheckCommits(ctx context.Context, cred github.Credential) commits.CheckResult
}

// Recorder persists finished checks
type Recorder interface {
	Insert(ctx context.Context, rec *history.Record) error
}

// CredentialFunc returns the credential to check, read fresh for every run
type CredentialFunc func() github.Credential

// Status values
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// Status describes the scheduler for the health and status endpoints
type Status struct {
	State     string     `json:"state"`
	Schedule  string     `json:"schedule"`
	Runs      int        `json:"runs"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

// Watcher checks the configured credential on a cron schedule and keeps the
// latest result
type Watcher struct {
	checker  Checker
	creds    CredentialFunc
	spec     string
	schedule rcron.Schedule
	recorder Recorder
	timeout  time.Duration
	logger   *slog.Logger

	cron    *rcron.Cron
	entryID rcron.EntryID

	mu         sync.RWMutex
	state      string
	inFlight   int
	runs       int
	lastRun    time.Time
	lastError  string
	lastResult *commits.CheckResult

	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Option configures a Watcher
type Option func(*Watcher)

// WithRecorder stores every result
func WithRecorder(r Recorder) Option {
	return func(w *Watcher) { w.recorder = r }
}

// WithTimeout bounds each check, including retry backoff
func WithTimeout(d time.Duration) Option {
	return func(w *Watcher) { w.timeout = d }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a watcher. spec is a standard cron expression or descriptor
// such as "@every 15m".
func New(checker Checker, creds CredentialFunc, spec string, opts ...Option) (*Watcher, error) {
	schedule, err := rcron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	w := &Watcher{
		checker:  checker,
		creds:    creds,
		spec:     spec,
		schedule: schedule,
		timeout:  2 * time.Minute,
		logger:   slog.Default(),
		state:    StatusIdle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run starts the schedule and performs one check immediately
func (w *Watcher) Run(ctx context.Context) {
	w.runCtx, w.cancel = context.WithCancel(ctx)

	cronLog := rcron.PrintfLogger(slog.NewLogLogger(w.logger.Handler(), slog.LevelDebug))
	w.cron = rcron.New(rcron.WithChain(rcron.SkipIfStillRunning(cronLog)))
	w.entryID = w.cron.Schedule(w.schedule, rcron.FuncJob(func() {
		w.run(w.runCtx, "schedule")
	}))
	w.cron.Start()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(w.runCtx, "startup")
	}()

	w.logger.Info("Commit watcher started", "schedule", w.spec)
}

// Stop halts the schedule and waits for running checks to finish
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		if w.cron != nil {
			<-w.cron.Stop().Done()
		}
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()

		w.mu.Lock()
		w.state = StatusStopped
		w.mu.Unlock()
		w.logger.Info("Commit watcher stopped")
	})
}

// Trigger runs a user-initiated check now and returns its result. A check
// already in flight is not interrupted; the cache absorbs the overlap.
func (w *Watcher) Trigger(ctx context.Context) commits.CheckResult {
	return w.run(ctx, "manual")
}

func (w *Watcher) run(ctx context.Context, reason string) commits.CheckResult {
	w.mu.Lock()
	w.inFlight++
	w.state = StatusRunning
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	cred := w.creds()
	res := w.checker.CheckCommits(ctx, cred)

	w.mu.Lock()
	w.inFlight--
	if w.inFlight == 0 && w.state == StatusRunning {
		w.state = StatusIdle
	}
	w.runs++
	w.lastRun = time.Now()
	w.lastResult = &res
	w.lastError = ""
	if !res.Success {
		w.lastError = res.Message
	}
	w.mu.Unlock()

	w.logger.Debug("Check finished", "reason", reason, "success", res.Success, "has_committed", res.HasCommitted)

	if w.recorder != nil && res.ErrorCode != commits.ErrorCodeMissingCredentials {
		if err := w.recorder.Insert(ctx, history.FromResult(cred.Username, res)); err != nil {
			w.logger.Error("Failed to record check result", "error", err)
		}
	}
	return res
}

// Status returns the scheduler's current state
func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Status{
		State:     w.state,
		Schedule:  w.spec,
		Runs:      w.runs,
		LastError: w.lastError,
	}
	if !w.lastRun.IsZero() {
		last := w.lastRun
		s.LastRun = &last
	}
	if w.cron != nil && w.state != StatusStopped {
		if next := w.cron.Entry(w.entryID).Next; !next.IsZero() {
			s.NextRun = &next
		}
	}
	return s
}

// LastResult returns the most recent check result, nil before the first run
func (w *Watcher) LastResult() *commits.CheckResult {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.lastResult == nil {
		return nil
	}
	res := *w.lastResult
	return &res
}
