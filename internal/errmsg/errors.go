package errmsg

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMissingCredentials is returned before any network call when the
// username or token is empty.
var ErrMissingCredentials = errors.New("github username and token are required")

// Catalog entry shown to the user for a Kind
type Message struct {
	Title     string
	Message   string
	Solutions []string
}

var messages = map[Kind]Message{
	KindNetwork: {
		Title:   "Network Connection Error",
		Message: "Unable to connect to GitHub. Please check your internet connection.",
		Solutions: []string{
			"Check your internet connection",
			"Try again in a few moments",
			"Check if GitHub is accessible from your browser",
		},
	},
	KindAuth: {
		Title:   "Authentication Error",
		Message: "GitHub token is invalid or has insufficient permissions.",
		Solutions: []string{
			"Verify your GitHub token is correct",
			`Ensure the token has "repo" scope permissions`,
			"Generate a new token at github.com/settings/tokens",
			"Make sure the token hasn't expired",
		},
	},
	KindRateLimit: {
		Title:   "Rate Limit Exceeded",
		Message: "Too many requests to GitHub API. Please wait before trying again.",
		Solutions: []string{
			"Wait a few minutes before trying again",
			"Consider using a GitHub token with higher rate limits",
			"Try again during off-peak hours",
		},
	},
	KindValidation: {
		Title:   "Invalid Input",
		Message: "The provided information is not valid.",
		Solutions: []string{
			"Check that your GitHub username is correct",
			"Ensure your token is properly formatted",
			"Remove any extra spaces from your input",
		},
	},
	KindServerAPI: {
		Title:   "GitHub API Error",
		Message: "GitHub API returned an unexpected response.",
		Solutions: []string{
			"Try again in a few moments",
			"Check GitHub's status page",
			"Verify your token permissions",
		},
	},
	KindStorage: {
		Title:   "Storage Error",
		Message: "Unable to save or load settings.",
		Solutions: []string{
			"Restart the application",
			"Check disk space availability",
			"Try resetting settings if the problem persists",
		},
	},
	KindUnknown: {
		Title:   "Unexpected Error",
		Message: "An unexpected error occurred.",
		Solutions: []string{
			"Try again in a few moments",
			"Restart the application",
			"Check the application logs for more details",
		},
	},
}

// MessageFor returns the catalog entry for kind
func MessageFor(kind Kind) Message {
	if m, ok := messages[kind]; ok {
		return m
	}
	return messages[KindUnknown]
}

// Error is the user-facing form of a classified failure.
type Error struct {
	Kind               Kind       `json:"kind"`
	Title              string     `json:"title"`
	Message            string     `json:"message"`
	Solutions          []string   `json:"solutions"`
	Technical          string     `json:"technical"`
	HTTPStatus         int        `json:"httpStatus,omitempty"`
	APIMessage         string     `json:"apiMessage,omitempty"`
	RateLimitRemaining *int       `json:"rateLimitRemaining,omitempty"`
	RateLimitReset     *time.Time `json:"rateLimitReset,omitempty"`

	cause error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// ToUserFacing classifies err and attaches the catalog message, remediation
// steps and any HTTP/rate-limit detail. context, when non-empty, prefixes
// the message ("Searching for commits: ...").
func ToUserFacing(err error, context string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	kind := Classify(err)
	entry := MessageFor(kind)

	message := entry.Message
	if context != "" {
		message = fmt.Sprintf("%s: %s", context, message)
	}

	ue := &Error{
		Kind:      kind,
		Title:     entry.Title,
		Message:   message,
		Solutions: append([]string(nil), entry.Solutions...),
		Technical: err.Error(),
		cause:     err,
	}

	var httpErr HTTPFailure
	if errors.As(err, &httpErr) {
		ue.HTTPStatus = httpErr.Status()
		ue.APIMessage = httpErr.APIMessage()
		if h := httpErr.Headers(); h != nil {
			if v := h.Get("X-RateLimit-Remaining"); v != "" {
				if n, convErr := strconv.Atoi(v); convErr == nil {
					ue.RateLimitRemaining = &n
				}
			}
			if v := h.Get("X-RateLimit-Reset"); v != "" {
				if secs, convErr := strconv.ParseInt(v, 10, 64); convErr == nil {
					reset := time.Unix(secs, 0).UTC()
					ue.RateLimitReset = &reset
				}
			}
		}
	}

	return ue
}
