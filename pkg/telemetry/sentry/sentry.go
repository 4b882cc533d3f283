// Package sentry reports failed schedule runs and crashes. Every function is a no-op until Init
// has been called with a DSN.
package sentry

import (
	"context"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/trace"
)

const flushTimeout = 2 * time.Second

type Options struct {
	DSN         string
	Environment string
	Tags        map[string]string
}

// Init installs the global Sentry client. An empty DSN leaves reporting disabled.
func Init(opt Options) error {
	if opt.DSN == "" {
		return nil
	}
	err := sentrygo.Init(sentrygo.ClientOptions{
		Dsn:         opt.DSN,
		Environment: opt.Environment,
		Tags:        opt.Tags,
	})
	if err != nil {
		return eris.Wrap(err, "failed to initialize sentry")
	}
	return nil
}

func Enabled() bool {
	return sentrygo.CurrentHub().Client() != nil
}

// CaptureError reports err tagged with the trace and span ids found in ctx.
func CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil || !Enabled() {
		return
	}
	sentrygo.WithScope(func(scope *sentrygo.Scope) {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			scope.SetTag("trace_id", sc.TraceID().String())
			scope.SetTag("span_id", sc.SpanID().String())
		}
		scope.SetTags(tags)
		sentrygo.CaptureException(err)
	})
}

// RecoverAndFlush must be deferred. It reports a panic, flushes, then panics again so the process
// still crashes.
func RecoverAndFlush() {
	if !Enabled() {
		return
	}
	if r := recover(); r != nil {
		sentrygo.CurrentHub().Recover(r)
		sentrygo.Flush(flushTimeout)
		panic(r)
	}
	sentrygo.Flush(flushTimeout)
}
