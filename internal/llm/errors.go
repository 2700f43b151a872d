package llm

import (
	"errors"
	"strings"
)

// ErrFatalAPI marks API errors that will not succeed on retry (billing,
// auth, quota). Callers should abort the run instead of burning attempts.
var ErrFatalAPI = errors.New("fatal API error")

// ErrDimensionMismatch marks an embedding whose length does not match the
// store's configured index dimension. Always fatal for its batch.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// fatalPatterns are substrings that indicate a non-retryable API failure.
// Rate limiting is deliberately absent: it clears with backoff and is
// classified as retryable by the extraction worker.
var fatalPatterns = []string{
	"credit balance",
	"quota",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports whether err indicates a failure that retrying
// cannot fix.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range fatalPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// wrapFatalError wraps err with ErrFatalAPI when it matches a fatal
// pattern; otherwise returns err unchanged.
func wrapFatalError(err error) error {
	if err == nil {
		return nil
	}
	if isFatalAPIError(err) && !errors.Is(err, ErrFatalAPI) {
		return errors.Join(ErrFatalAPI, err)
	}
	return err
}
