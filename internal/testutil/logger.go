package testutil

import "log/slog"

// DiscardLogger returns a logger that drops everything. The default for
// tests that do not assert on log output; tests that do should build one
// with log.NewWithWriter over a buffer instead.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
