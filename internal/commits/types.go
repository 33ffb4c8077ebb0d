package commits

import (
	"time"

	"github.com/developer-az/commit-warrior/internal/errmsg"
)

// Method is one of the fixed detection strategies
type Method string

const (
	MethodSearch       Method = "search"
	MethodEvents       Method = "events"
	MethodRepositories Method = "repositories"
	// MethodStreak marks a result inferred from the streak, not observed
	MethodStreak Method = "streak"
)

// methodPriority orders strategies when choosing the reporting method
var methodPriority = []Method{MethodEvents, MethodRepositories, MethodSearch}

// MethodResult is the outcome of one strategy for one check
type MethodResult struct {
	Method       Method `json:"method"`
	Success      bool   `json:"success"`
	CommitCount  int    `json:"commitCount"`
	HasCommitted bool   `json:"hasCommitted"`
	Cached       bool   `json:"cached"`
	Error        string `json:"error,omitempty"`

	// Search only
	IncompleteResults bool `json:"incompleteResults,omitempty"`
	// Repositories only
	RepositoriesScanned int `json:"repositoriesScanned,omitempty"`

	err error
}

// Err returns the underlying failure, nil on success
func (r MethodResult) Err() error {
	return r.err
}

func failedMethod(m Method, err error) MethodResult {
	return MethodResult{Method: m, Success: false, Error: err.Error(), err: err}
}

// StreakResult is the consecutive-day contribution count ending today or yesterday
type StreakResult struct {
	Success            bool     `json:"success"`
	Streak             int      `json:"streak"`
	ContributionDates  []string `json:"contributionDates"`
	CommittedToday     bool     `json:"committedToday"`
	CommittedYesterday bool     `json:"committedYesterday"`
	// LastCommitDate is the most recent day with a push, empty if none
	LastCommitDate string `json:"lastCommitDate,omitempty"`
	Error          string `json:"error,omitempty"`

	err error
}

// Err returns the underlying failure, nil on success
func (r StreakResult) Err() error {
	return r.err
}

// Detection holds every strategy outcome of one detect call
type Detection struct {
	Search       MethodResult `json:"search"`
	Events       MethodResult `json:"events"`
	Repositories MethodResult `json:"repositories"`
}

// All returns the results in strategy order
func (d Detection) All() []MethodResult {
	return []MethodResult{d.Search, d.Events, d.Repositories}
}

// ErrorCodeMissingCredentials is reported when username or token is empty
const ErrorCodeMissingCredentials = "MISSING_CREDENTIALS"

// CheckResult is the final answer handed to the caller
type CheckResult struct {
	Success            bool           `json:"success"`
	HasCommitted       bool           `json:"hasCommitted"`
	CommitCount        int            `json:"commitCount"`
	Streak             int            `json:"streak"`
	Method             Method         `json:"method,omitempty"`
	Cached             bool           `json:"cached"`
	Inferred           bool           `json:"inferred,omitempty"`
	Date               string         `json:"date"`
	LastCommitDate     string         `json:"lastCommitDate,omitempty"`
	CheckedAt          time.Time      `json:"checkedAt"`
	RateLimitRemaining *int           `json:"rateLimitRemaining,omitempty"`
	Methods            []MethodResult `json:"methods,omitempty"`
	ErrorCode          string         `json:"errorCode,omitempty"`
	Message            string         `json:"message,omitempty"`
	Error              *errmsg.Error  `json:"error,omitempty"`
}

// ErrorKind returns the classified failure kind, empty on success
func (r *CheckResult) ErrorKind() string {
	if r.ErrorCode != "" {
		return r.ErrorCode
	}
	if r.Error != nil {
		return string(r.Error.Kind)
	}
	return ""
}
