package commits

import (
	"errors"

	"github.com/developer-az/commit-warrior/internal/errmsg"
)

var errNoResults = errors.New("no detection results")

// minInferenceStreak is the shortest streak that may vouch for today
const minInferenceStreak = 2

// Consolidate merges strategy outcomes and the streak into the final result.
// It performs no I/O.
//
// commitCount is the largest count among successful methods and
// hasCommitted is true when any of them saw a commit.
//
// Streak inference: when no method saw a commit but the user committed
// yesterday with a streak of at least two days, the day is reported as
// committed with a count of at least one. This papers over search and
// events lag on the API side. It is a known false positive when the streak
// actually broke today and the only activity is from yesterday; Inferred is
// set so callers can tell.
func Consolidate(methods []MethodResult, streak StreakResult) CheckResult {
	res := CheckResult{
		Methods: methods,
	}

	byMethod := make(map[Method]MethodResult, len(methods))
	anySuccess := false
	allCached := true
	for _, m := range methods {
		byMethod[m.Method] = m
		if !m.Success {
			continue
		}
		anySuccess = true
		allCached = allCached && m.Cached
		if m.CommitCount > res.CommitCount {
			res.CommitCount = m.CommitCount
		}
		if m.HasCommitted || m.CommitCount > 0 {
			res.HasCommitted = true
		}
	}
	res.Cached = anySuccess && allCached

	if !anySuccess && !streak.Success {
		res.Success = false
		res.Error = errmsg.ToUserFacing(preferredError(byMethod, streak), "Checking commits")
		res.Message = res.Error.Message
		return res
	}
	res.Success = true

	// Reporting method: the highest count wins, ties go to the more
	// trustworthy strategy
	for _, m := range methodPriority {
		r, ok := byMethod[m]
		if !ok || !r.Success {
			continue
		}
		if res.Method == "" {
			res.Method = m
		}
		if r.CommitCount == res.CommitCount {
			res.Method = m
			break
		}
	}

	if streak.Success {
		res.Streak = streak.Streak
		res.LastCommitDate = streak.LastCommitDate

		if !res.HasCommitted && streak.CommittedYesterday && streak.Streak >= minInferenceStreak {
			res.HasCommitted = true
			res.CommitCount = max(res.CommitCount, 1)
			res.Method = MethodStreak
			res.Inferred = true
		}
	}

	switch {
	case !anySuccess && res.HasCommitted:
		res.Message = "Commit detection unavailable, inferred from streak"
	case !anySuccess:
		res.Message = "Commit detection unavailable, showing streak only"
	case res.HasCommitted:
		res.Message = "Commit found for today"
	default:
		res.Message = "No commits yet today"
	}
	return res
}

func preferredError(byMethod map[Method]MethodResult, streak StreakResult) error {
	for _, m := range methodPriority {
		if r, ok := byMethod[m]; ok && r.Err() != nil {
			return r.Err()
		}
	}
	if streak.Err() != nil {
		return streak.Err()
	}
	return errNoResults
}
