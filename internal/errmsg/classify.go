package errmsg

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
)

// Kind is the closed set of failure categories surfaced to the user.
type Kind string

const (
	KindNetwork    Kind = "NETWORK"
	KindAuth       Kind = "AUTH"
	KindRateLimit  Kind = "RATE_LIMIT"
	KindValidation Kind = "VALIDATION"
	KindServerAPI  Kind = "API"
	KindStorage    Kind = "STORAGE"
	KindUnknown    Kind = "UNKNOWN"
)

// HTTPFailure is implemented by errors that carry a remote HTTP response.
// The github gateway's APIError satisfies it.
type HTTPFailure interface {
	error
	Status() int
	Headers() http.Header
	APIMessage() string
}

// Classify maps a raw error to its Kind. Rules are evaluated in priority order.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	// Already classified errors keep their kind
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	if IsTransport(err) {
		return KindNetwork
	}

	var httpErr HTTPFailure
	if errors.As(err, &httpErr) {
		status := httpErr.Status()
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			if RateLimited(httpErr) {
				return KindRateLimit
			}
			return KindAuth
		case status >= 500:
			return KindServerAPI
		case status >= 400:
			return KindValidation
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return KindValidation
	}

	if isStorage(err) {
		return KindStorage
	}

	return KindUnknown
}

// RateLimited reports whether an HTTP failure is the remote rate limiter
// speaking: zero remaining quota or a rate-limit message body.
func RateLimited(httpErr HTTPFailure) bool {
	if h := httpErr.Headers(); h != nil && h.Get("X-RateLimit-Remaining") == "0" {
		return true
	}
	return strings.Contains(strings.ToLower(httpErr.APIMessage()), "rate limit")
}

// IsTransport reports host-not-found, refused, reset and timeout failures.
func IsTransport(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func isStorage(err error) bool {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrExist)
}
