package commits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/developer-az/commit-warrior/internal/cache"
	"github.com/developer-az/commit-warrior/internal/errmsg"
	"github.com/developer-az/commit-warrior/internal/github"
)

// Backend is everything the checker needs from the API layer.
// *github.Source implements it.
type Backend interface {
	Source
	ValidateToken(ctx context.Context, cred github.Credential) (*github.TokenValidation, bool, error)
	RemoteRateLimit(ctx context.Context, token string) (*github.RateLimit, error)
	RateLimitStatus() github.RateLimitStatus
	CacheStats() cache.Stats
	ClearCache()
}

// Options configures a Checker
type Options struct {
	Detector DetectorOptions
	// ValidateToken confirms the token belongs to the username before detecting
	ValidateToken bool
	// Location defines the calendar day; nil means time.Local
	Location *time.Location
	// Now overrides the clock in tests
	Now func() time.Time
}

// Checker answers "has this user committed today" for a credential
type Checker struct {
	backend  Backend
	detector *Detector
	streak   *StreakCalculator
	days     Days
	now      func() time.Time
	validate bool
	logger   *slog.Logger
}

// NewChecker wires the detector and streak calculator over backend
func NewChecker(backend Backend, opts Options, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	days := NewDays(opts.Location)

	return &Checker{
		backend:  backend,
		detector: NewDetector(backend, days, opts.Detector, logger),
		streak:   NewStreakCalculator(backend, days, now, logger),
		days:     days,
		now:      now,
		validate: opts.ValidateToken,
		logger:   logger,
	}
}

// Days returns the checker's calendar
func (c *Checker) Days() Days {
	return c.days
}

// CheckCommits checks today's commits. The returned result is always
// populated; failures are described inside it.
func (c *Checker) CheckCommits(ctx context.Context, cred github.Credential) CheckResult {
	return c.CheckDate(ctx, cred, c.now())
}

// CheckDate checks commits on the calendar day containing day. The streak
// is always computed relative to the current day.
func (c *Checker) CheckDate(ctx context.Context, cred github.Credential, day time.Time) CheckResult {
	start := c.now()
	date := c.days.Date(day)

	if cred.Empty() {
		c.logger.Warn("Skipping check, credentials missing")
		return CheckResult{
			Success:   false,
			Date:      date,
			CheckedAt: start,
			ErrorCode: ErrorCodeMissingCredentials,
			Message:   errmsg.ErrMissingCredentials.Error(),
			Error:     errmsg.ToUserFacing(errmsg.ErrMissingCredentials, ""),
		}
	}

	c.logger.Info("Checking commits", "username", cred.Username, "date", date)

	if c.validate {
		if failed := c.checkToken(ctx, cred); failed != nil {
			failed.Date = date
			failed.CheckedAt = start
			return *failed
		}
	}

	var (
		det    Detection
		streak StreakResult
		g      errgroup.Group
	)
	g.Go(func() error {
		var err error
		if det, err = c.detector.Detect(ctx, cred, day); err != nil {
			c.logger.Warn("Commit detection unavailable", "username", cred.Username, "error", err)
		}
		return nil
	})
	g.Go(func() error {
		streak = c.streak.Calculate(ctx, cred)
		return nil
	})
	_ = g.Wait()

	res := Consolidate(det.All(), streak)
	res.Date = date
	res.CheckedAt = start
	res.RateLimitRemaining = c.backend.RateLimitStatus().Remaining

	if res.Success {
		c.logger.Info("Check complete",
			"username", cred.Username,
			"has_committed", res.HasCommitted,
			"commit_count", res.CommitCount,
			"streak", res.Streak,
			"method", res.Method,
			"cached", res.Cached,
			"inferred", res.Inferred,
			"duration", time.Since(start),
		)
	} else {
		c.logger.Error("Check failed",
			"username", cred.Username,
			"kind", res.ErrorKind(),
			"error", res.Error.Technical,
		)
	}
	return res
}

// checkToken returns a failed result when the token is rejected or belongs
// to someone else. Other validation errors are logged and ignored so
// detection can still run.
func (c *Checker) checkToken(ctx context.Context, cred github.Credential) *CheckResult {
	v, _, err := c.backend.ValidateToken(ctx, cred)
	if err != nil {
		if errmsg.Classify(err) == errmsg.KindAuth {
			ue := errmsg.ToUserFacing(err, "Validating token")
			return &CheckResult{Success: false, Error: ue, Message: ue.Message}
		}
		c.logger.Warn("Token validation unavailable, continuing", "username", cred.Username, "error", err)
		return nil
	}

	if !v.Valid {
		ue := errmsg.ToUserFacing(
			fmt.Errorf("token invalid for %s: belongs to %s", cred.Username, v.TokenUsername),
			"Validating token",
		)
		return &CheckResult{Success: false, Error: ue, Message: ue.Message}
	}
	return nil
}

// ValidateToken reports whether the token belongs to cred.Username
func (c *Checker) ValidateToken(ctx context.Context, cred github.Credential) (*github.TokenValidation, error) {
	if cred.Empty() {
		return nil, errmsg.ErrMissingCredentials
	}
	v, _, err := c.backend.ValidateToken(ctx, cred)
	return v, err
}

// GetRateLimitStatus returns the quota recorded from the last API response
func (c *Checker) GetRateLimitStatus() github.RateLimitStatus {
	return c.backend.RateLimitStatus()
}

// RemoteRateLimit asks the API for the current quota
func (c *Checker) RemoteRateLimit(ctx context.Context, token string) (*github.RateLimit, error) {
	return c.backend.RemoteRateLimit(ctx, token)
}

// GetCacheStats reports response cache occupancy
func (c *Checker) GetCacheStats() cache.Stats {
	return c.backend.CacheStats()
}

// ClearCache drops all cached responses
func (c *Checker) ClearCache() {
	c.backend.ClearCache()
	c.logger.Info("Cache cleared")
}
