package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Common retry-related errors.
var (
	// ErrMaxRetriesExceeded is returned when all retry attempts are exhausted.
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")

	// ErrNonRetryable marks an error as explicitly non-retryable.
	ErrNonRetryable = errors.New("error is not retryable")
)

// DefaultErrorChecker considers network errors, timeouts, and temporary
// errors retryable. It is the fallback used by SSH and HTTPS probes in the
// health engine when no more specific checker applies.
type DefaultErrorChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *DefaultErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNonRetryable) {
		return false
	}

	if isTransientNetworkError(err) {
		return true
	}

	if isTimeoutError(err) {
		return true
	}

	type temporary interface {
		Temporary() bool
	}
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}

	return true
}

func isTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED),
			errors.Is(opErr.Err, syscall.ECONNRESET),
			errors.Is(opErr.Err, syscall.ENETUNREACH),
			errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return true
		}
	}

	return false
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	for _, indicator := range []string{"timeout", "deadline exceeded", "i/o timeout", "timed out"} {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}

	type timeout interface {
		Timeout() bool
	}
	if te, ok := err.(timeout); ok {
		return te.Timeout()
	}

	return false
}

// HTTPErrorChecker retries on HTTP status codes embedded in an error's
// message — used for the admin-UI/database port reachability probes and
// the update-versions HEAD-request scan, which report failures this way
// rather than through a typed HTTP client error.
type HTTPErrorChecker struct {
	RetryOn5xx bool
	RetryOn429 bool
	RetryOn408 bool
}

// NewHTTPErrorChecker returns an HTTPErrorChecker with sensible defaults.
func NewHTTPErrorChecker() *HTTPErrorChecker {
	return &HTTPErrorChecker{RetryOn5xx: true, RetryOn429: true, RetryOn408: true}
}

// IsRetryable implements RetryableErrorChecker.
func (c *HTTPErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()

	if c.RetryOn5xx {
		for code := 500; code < 600; code++ {
			if strings.Contains(errMsg, fmt.Sprintf("%d", code)) {
				return true
			}
		}
	}

	if c.RetryOn429 && (strings.Contains(errMsg, "429") || strings.Contains(errMsg, "rate limit")) {
		return true
	}

	if c.RetryOn408 && strings.Contains(errMsg, "408") {
		return true
	}

	return (&DefaultErrorChecker{}).IsRetryable(err)
}

// ChainedErrorChecker returns true if any of its checkers considers the
// error retryable.
type ChainedErrorChecker struct {
	Checkers []RetryableErrorChecker
}

// IsRetryable implements RetryableErrorChecker.
func (c *ChainedErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, checker := range c.Checkers {
		if checker.IsRetryable(err) {
			return true
		}
	}
	return false
}

// NeverRetryChecker always returns false.
type NeverRetryChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *NeverRetryChecker) IsRetryable(error) bool { return false }

// AlwaysRetryChecker retries any non-nil error.
type AlwaysRetryChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *AlwaysRetryChecker) IsRetryable(err error) bool { return err != nil }
