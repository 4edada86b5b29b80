package resilience

import (
	"context"
	"errors"
	"net"
)

// classifyError labels an error for the retry metrics emitted by WithRetry.
func classifyError(err error) string {
	if err == nil {
		return "none"
	}

	if errors.Is(err, context.Canceled) {
		return "context_cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "context_deadline"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "network"
	}

	if isTimeoutError(err) {
		return "timeout"
	}

	return "unknown"
}
