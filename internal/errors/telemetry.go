// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter implements TelemetryReporter for Sentry. Only errors at or
// above the configured minimum priority are sent.
type SentryReporter struct {
	enabled     bool
	minPriority string
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool, minPriority string) *SentryReporter {
	if minPriority == "" {
		minPriority = PriorityHigh
	}
	return &SentryReporter{enabled: enabled, minPriority: minPriority}
}

// InitSentry initializes the sentry client and installs a SentryReporter as
// the active telemetry reporter.
func InitSentry(dsn, release string) error {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		AttachStacktrace: true,
	}); err != nil {
		return New(err).
			Component("telemetry").
			Category(CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}
	SetTelemetryReporter(NewSentryReporter(true, PriorityHigh))
	return nil
}

// FlushSentry waits for buffered events to be delivered.
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with privacy protection
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() || priorityRank(ee.Priority) < priorityRank(sr.minPriority) {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Error()))

	sentry.WithScope(func(scope *sentry.Scope) {
		title := errorTitle(ee)
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))
		for key, value := range ee.Context {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetFingerprint([]string{title, ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = sentry.LevelError
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func priorityRank(p string) int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// errorTitle builds "<Component> <category> <Operation>" for grouping
func errorTitle(ee *EnhancedError) string {
	parts := []string{ee.GetComponent(), string(ee.Category)}
	if op, ok := ee.Context["operation"].(string); ok && op != "" {
		parts = append(parts, strings.ReplaceAll(op, "_", " "))
	}
	return strings.Join(parts, " ")
}

var (
	activeReporter     atomic.Pointer[TelemetryReporter]
	hasActiveReporting atomic.Bool
)

// SetTelemetryReporter sets the global telemetry reporter. A nil reporter
// disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	if reporter == nil {
		activeReporter.Store(nil)
		hasActiveReporting.Store(false)
		return
	}
	activeReporter.Store(&reporter)
	hasActiveReporting.Store(reporter.IsEnabled())
}

func reportToTelemetry(ee *EnhancedError) {
	if r := activeReporter.Load(); r != nil && (*r).IsEnabled() {
		(*r).ReportError(ee)
	}
}

var (
	urlQueryRegex = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	secretRegex   = regexp.MustCompile(`(?i)(api[_-]?key|token|auth|dsn)[=:]\S+`)
)

// scrubMessage removes query strings and credentials from messages
func scrubMessage(message string) string {
	scrubbed := urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	return secretRegex.ReplaceAllString(scrubbed, "$1=[REDACTED]")
}
