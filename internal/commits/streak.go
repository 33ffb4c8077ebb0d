package commits

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/developer-az/commit-warrior/internal/github"
)

// EventSource provides the activity history a streak is computed from
type EventSource interface {
	Events(ctx context.Context, cred github.Credential) ([]github.ActivityEvent, bool, error)
}

// StreakCalculator derives streaks from recent activity
type StreakCalculator struct {
	source EventSource
	days   Days
	now    func() time.Time
	logger *slog.Logger
}

// NewStreakCalculator creates a calculator using now to decide "today"
func NewStreakCalculator(source EventSource, days Days, now func() time.Time, logger *slog.Logger) *StreakCalculator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreakCalculator{source: source, days: days, now: now, logger: logger}
}

// Calculate fetches the user's events and computes the streak ending today
func (s *StreakCalculator) Calculate(ctx context.Context, cred github.Credential) StreakResult {
	events, _, err := s.source.Events(ctx, cred)
	if err != nil {
		s.logger.Warn("Streak calculation failed", "username", cred.Username, "error", err)
		return StreakResult{Success: false, Error: err.Error(), err: err}
	}

	res := CalculateStreak(events, s.days, s.days.Date(s.now()))
	s.logger.Debug("Streak calculated",
		"username", cred.Username,
		"streak", res.Streak,
		"today", res.CommittedToday,
		"yesterday", res.CommittedYesterday,
	)
	return res
}

// CalculateStreak counts consecutive contribution days ending at today, or
// at yesterday when nothing happened today yet.
func CalculateStreak(events []github.ActivityEvent, days Days, today string) StreakResult {
	set := make(map[string]struct{})
	lastPush := ""
	for _, ev := range events {
		if !ev.Type.IsContribution() {
			continue
		}
		date := days.Date(ev.CreatedAt)
		set[date] = struct{}{}
		if ev.Type == github.EventPush && date > lastPush {
			lastPush = date
		}
	}

	return streakFromDates(set, days, today, lastPush)
}

// StreakFromDates computes a streak from contribution days in YYYY-MM-DD form
func StreakFromDates(dates []string, days Days, today string) StreakResult {
	set := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}
	return streakFromDates(set, days, today, "")
}

func streakFromDates(set map[string]struct{}, days Days, today, lastPush string) StreakResult {
	dates := make([]string, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	yesterday := days.AddDays(today, -1)
	_, committedToday := set[today]
	_, committedYesterday := set[yesterday]

	res := StreakResult{
		Success:            true,
		ContributionDates:  dates,
		CommittedToday:     committedToday,
		CommittedYesterday: committedYesterday,
		LastCommitDate:     lastPush,
	}

	var anchor string
	switch {
	case committedToday:
		anchor = today
	case committedYesterday:
		anchor = yesterday
	default:
		return res
	}

	for day := anchor; ; day = days.AddDays(day, -1) {
		if _, ok := set[day]; !ok {
			break
		}
		res.Streak++
	}
	return res
}
