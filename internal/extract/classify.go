package extract

import (
	"context"
	"errors"
	"net"
	"strings"
)

// FailureClass buckets an extraction failure for backoff logging and for
// the orchestrator's circuit-breaker decision.
type FailureClass string

const (
	FailureRateLimit FailureClass = "rate_limit"
	FailureNetwork   FailureClass = "network"
	FailureOther     FailureClass = "other"
)

var networkPatterns = []string{
	"connection",
	"timeout",
	"timed out",
	"network",
	"no such host",
	"eof",
	"reset",
	"refused",
	"broken pipe",
	"unreachable",
	"dial",
}

var rateLimitPatterns = []string{
	"rate limit",
	"too many requests",
	"429",
}

// Classify buckets err as rate-limit, network/transient, or other.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureOther
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range rateLimitPatterns {
		if strings.Contains(msg, pattern) {
			return FailureRateLimit
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureNetwork
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(msg, pattern) {
			return FailureNetwork
		}
	}

	return FailureOther
}

// IsNetwork reports whether err classifies as a network/transient failure.
// The orchestrator keeps going on these; anything else counts toward the
// circuit breaker as a systemic fault.
func IsNetwork(err error) bool {
	return Classify(err) == FailureNetwork
}
