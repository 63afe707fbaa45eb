// Package logger provides adapters for popular logger libraries to
// work with relic's Logger interface.
//
// Note that the standard library's slog.Logger already implements
// relic.Logger directly.
//
// Example:
//
//	log := logrus.New()
//	db, err := relic.Open("data.db", relic.WithLogger(logger.NewLogrus(log)))
package logger
