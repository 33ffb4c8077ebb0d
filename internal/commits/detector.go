package commits

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/developer-az/commit-warrior/internal/github"
)

const (
	// recentRepoWindow selects repositories touched shortly before the day
	recentRepoWindow = 7 * 24 * time.Hour
	// fallbackRepoCount is scanned when nothing was updated recently
	fallbackRepoCount = 15
)

// Source is the cached, retried view of the GitHub API used for detection.
// Each call reports whether it was served from cache.
type Source interface {
	SearchCommits(ctx context.Context, cred github.Credential, since, until time.Time) (*github.SearchResult, bool, error)
	Events(ctx context.Context, cred github.Credential) ([]github.ActivityEvent, bool, error)
	Repositories(ctx context.Context, cred github.Credential) ([]github.Repository, bool, error)
	RepositoryCommits(ctx context.Context, cred github.Credential, repo github.Repository, since, until time.Time) ([]github.CommitSummary, bool, error)
}

// DetectorOptions tunes the strategies
type DetectorOptions struct {
	// MaxRepositories caps how many repositories the scan visits
	MaxRepositories int
	// Concurrency bounds in-flight per-repository requests
	Concurrency int
	// ExcludeMerges drops merge-looking commits and commits without an
	// author identity from the events count
	ExcludeMerges bool
}

// DefaultDetectorOptions scans at most 20 repositories, 3 at a time
func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{
		MaxRepositories: 20,
		Concurrency:     3,
	}
}

// Detector runs the search, events and repository strategies for a day
type Detector struct {
	source Source
	days   Days
	opts   DetectorOptions
	logger *slog.Logger
}

// NewDetector creates a detector
func NewDetector(source Source, days Days, opts DetectorOptions, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRepositories < 1 {
		opts.MaxRepositories = DefaultDetectorOptions().MaxRepositories
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultDetectorOptions().Concurrency
	}
	return &Detector{
		source: source,
		days:   days,
		opts:   opts,
		logger: logger,
	}
}

// Detect runs all three strategies concurrently and waits for every one to
// settle. A failing strategy is recorded in its MethodResult; an error is
// returned only when all three failed, preferring the events failure.
func (d *Detector) Detect(ctx context.Context, cred github.Credential, day time.Time) (Detection, error) {
	var det Detection
	var g errgroup.Group

	g.Go(func() error {
		det.Search = d.bySearch(ctx, cred, day)
		return nil
	})
	g.Go(func() error {
		det.Events = d.byEvents(ctx, cred, day)
		return nil
	})
	g.Go(func() error {
		det.Repositories = d.byRepositories(ctx, cred, day)
		return nil
	})
	_ = g.Wait()

	if !det.Search.Success && !det.Events.Success && !det.Repositories.Success {
		return det, fmt.Errorf("all detection methods failed: %w", det.Events.Err())
	}
	return det, nil
}

func (d *Detector) bySearch(ctx context.Context, cred github.Credential, day time.Time) MethodResult {
	since, until := d.days.Bounds(day)

	res, cached, err := d.source.SearchCommits(ctx, cred, since, until)
	if err != nil {
		d.logger.Warn("Search method failed", "username", cred.Username, "error", err)
		return failedMethod(MethodSearch, err)
	}

	if res.IncompleteResults {
		d.logger.Debug("Search reported incomplete results", "username", cred.Username)
	}

	return MethodResult{
		Method:            MethodSearch,
		Success:           true,
		CommitCount:       res.TotalCount,
		HasCommitted:      res.TotalCount > 0,
		Cached:            cached,
		IncompleteResults: res.IncompleteResults,
	}
}

func (d *Detector) byEvents(ctx context.Context, cred github.Credential, day time.Time) MethodResult {
	events, cached, err := d.source.Events(ctx, cred)
	if err != nil {
		d.logger.Warn("Events method failed", "username", cred.Username, "error", err)
		return failedMethod(MethodEvents, err)
	}

	count := CountPushedCommits(events, d.days, d.days.Date(day), d.opts.ExcludeMerges)

	return MethodResult{
		Method:       MethodEvents,
		Success:      true,
		CommitCount:  count,
		HasCommitted: count > 0,
		Cached:       cached,
	}
}

// CountPushedCommits sums commits pushed on date. With excludeMerges, merge
// commits and commits lacking author name or email are not counted; pushes
// without a commit list fall back to their payload size either way.
func CountPushedCommits(events []github.ActivityEvent, days Days, date string, excludeMerges bool) int {
	total := 0
	for _, ev := range events {
		if ev.Type != github.EventPush || days.Date(ev.CreatedAt) != date {
			continue
		}
		if !excludeMerges || len(ev.PushedCommits) == 0 {
			total += ev.CommitCount()
			continue
		}
		for _, c := range ev.PushedCommits {
			if c.IsMerge() || !c.HasAuthor() {
				continue
			}
			total++
		}
	}
	return total
}

func (d *Detector) byRepositories(ctx context.Context, cred github.Credential, day time.Time) MethodResult {
	repos, reposCached, err := d.source.Repositories(ctx, cred)
	if err != nil {
		d.logger.Warn("Repositories method failed", "username", cred.Username, "error", err)
		return failedMethod(MethodRepositories, err)
	}

	since, until := d.days.Bounds(day)
	selected := SelectRepositories(repos, since, d.opts.MaxRepositories)

	d.logger.Debug("Scanning repositories",
		"username", cred.Username,
		"total", len(repos),
		"selected", len(selected),
	)

	var (
		mu        sync.Mutex
		total     int
		allCached = reposCached
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for _, repo := range selected {
		repo := repo // per-iteration copy (go directive is 1.21)
		g.Go(func() error {
			commits, cached, err := d.source.RepositoryCommits(gctx, cred, repo, since, until)
			if err != nil {
				d.logger.Warn("Skipping repository", "repo", repo.Owner+"/"+repo.Name, "error", err)
				return nil // one bad repository doesn't sink the scan
			}

			mu.Lock()
			total += len(commits)
			allCached = allCached && cached
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return MethodResult{
		Method:              MethodRepositories,
		Success:             true,
		CommitCount:         total,
		HasCommitted:        total > 0,
		Cached:              allCached,
		RepositoriesScanned: len(selected),
	}
}

// SelectRepositories keeps repositories updated within a week before
// dayStart or later, capped at max. If none qualify the most recently
// updated ones are used instead. repos must be sorted by update time, newest first.
func SelectRepositories(repos []github.Repository, dayStart time.Time, max int) []github.Repository {
	cutoff := dayStart.Add(-recentRepoWindow)

	var recent []github.Repository
	for _, r := range repos {
		if r.UpdatedAt.After(cutoff) {
			recent = append(recent, r)
		}
	}

	if len(recent) == 0 {
		n := min(fallbackRepoCount, max, len(repos))
		return repos[:n]
	}
	if len(recent) > max {
		recent = recent[:max]
	}
	return recent
}
