package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// SentryConfig configures the optional Sentry hub used for best-effort
// invocation and scope error reporting. A zero Hub (no InitSentry call) is
// valid and every reporting call becomes a no-op.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry initializes the global Sentry hub. Returns a flush function
// to call during shutdown. If cfg.DSN is empty, returns a no-op flush and
// ReportError calls made afterward do nothing.
func InitSentry(cfg SentryConfig, logger *zap.Logger) (func(time.Duration), error) {
	if cfg.DSN == "" {
		return func(time.Duration) {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
	})
	if err != nil {
		logger.Error("failed to initialize sentry", zap.Error(err))
		return func(time.Duration) {}, err
	}
	return func(timeout time.Duration) { sentry.Flush(timeout) }, nil
}

// ReportError forwards an invocation or scope error to Sentry, tagged with
// the run and component context. No-op when Sentry was never initialized.
func ReportError(err error, runID, component string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", runID)
		scope.SetTag("component", component)
		sentry.CaptureException(err)
	})
}
