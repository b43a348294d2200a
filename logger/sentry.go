package logger

import (
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryOptions configures error reporting. An empty DSN disables it.
type SentryOptions struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry sets up the global Sentry hub and returns a flush func to call
// before the process exits. With no DSN it returns a no-op flush.
func InitSentry(opts SentryOptions) (func(), error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
	})
	if err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// Report sends err to Sentry when it is configured.
func Report(err error) {
	if err == nil || sentry.CurrentHub().Client() == nil {
		return
	}
	sentry.CaptureException(err)
}
