package generate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKeyReset marks an authorization or quota failure on a model call.
// Callers surface it as the app-wide "upgrade required" gate instead of a
// generic error; every other failure stays request-local.
var ErrKeyReset = errors.New("key reset required")

// keyResetPatterns groups error substrings by category.
// Matched case-insensitively against err.Error().
//
// NOTE: This uses string matching because Genkit and LLM provider SDKs
// do not expose typed/sentinel errors for auth and quota failures.
// This is a documented exception to the project rule against
// strings.Contains(err.Error(), ...).
// Re-evaluate if Genkit adds structured error types in a future version.
var keyResetPatterns = [][]string{
	{"rate limit", "quota", "resource_exhausted", "too many requests", "429"}, // quota and rate limiting
	{"api key", "api_key_invalid", "permission denied", "unauthenticated", "unauthorized", "401", "403"}, // credentials
	{"not found", "404"}, // model availability (expired previews surface as not-found)
}

// IsKeyReset reports whether err is an authorization or quota failure that
// must gate the application.
func IsKeyReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKeyReset) {
		return true
	}
	errStr := err.Error()
	for _, group := range keyResetPatterns {
		if containsAny(errStr, group...) {
			return true
		}
	}
	return false
}

// Classify wraps model-call errors so callers can branch with errors.Is.
// Auth/quota failures come back wrapping ErrKeyReset; anything else is
// returned unchanged. Idempotent: an error already carrying ErrKeyReset
// passes through untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrKeyReset) {
		return err
	}
	if IsKeyReset(err) {
		return fmt.Errorf("%w: %v", ErrKeyReset, err)
	}
	return err
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
