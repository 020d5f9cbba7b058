// Package errors provides centralized error handling with optional telemetry integration
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryFileIO        ErrorCategory = "file-io"
	CategorySystem        ErrorCategory = "system-resource"
	CategoryAudio         ErrorCategory = "audio-processing"
	CategoryAudioDevice   ErrorCategory = "audio-device"
	CategoryState         ErrorCategory = "state"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryCancellation  ErrorCategory = "cancellation"
	CategoryGeneric       ErrorCategory = "generic"

	// Shared sample store and streaming categories
	CategoryAllocation      ErrorCategory = "shm-allocation"   // region cannot be created or attached
	CategoryChannelMapping  ErrorCategory = "channel-mapping"  // mapping cardinality invalid
	CategoryCapacity        ErrorCategory = "buffer-capacity"  // transfer longer than the buffer
	CategoryStreamAbort     ErrorCategory = "stream-abort"     // real-time block transfer cannot continue
	CategoryBufferExhausted ErrorCategory = "buffer-exhausted" // read past the last frame
)

// Priority constants for error prioritization
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error          // Original error
	component string         // Component where error occurred
	Category  ErrorCategory  // Error category for grouping and matching
	Priority  string         // Explicit priority override (optional)
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
	reported  atomic.Bool    // Whether telemetry has been sent
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	if ee.Err != nil {
		return ee.Err.Error()
	}
	if len(ee.Context) == 0 {
		return string(ee.Category)
	}

	keys := make([]string, 0, len(ee.Context))
	for k := range ee.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(string(ee.Category))
	for i, k := range keys {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", k, ee.Context[k])
	}
	return sb.String()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category, so sentinels built with only a
// category can be used as errors.Is targets.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return false
}

// GetComponent returns the component name
func (ee *EnhancedError) GetComponent() string {
	if ee.component == "" {
		return ComponentUnknown
	}
	return ee.component
}

// GetCategory returns the error category
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetPriority returns the explicit priority if set, empty string otherwise
func (ee *EnhancedError) GetPriority() string {
	return ee.Priority
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// MarkReported marks this error as reported to telemetry
func (ee *EnhancedError) MarkReported() {
	ee.reported.Store(true)
}

// IsReported returns whether this error has been reported
func (ee *EnhancedError) IsReported() bool {
	return ee.reported.Load()
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New creates a new error with enhanced context
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error with enhanced context
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority sets the explicit priority override for the error
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	default:
		if priority != "" {
			eb.priority = PriorityMedium
		}
	}
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build creates the EnhancedError and triggers optional telemetry reporting
func (eb *ErrorBuilder) Build() *EnhancedError {
	if eb.category == "" {
		eb.category = detectCategory(eb.err)
	}

	ee := &EnhancedError{
		Err:       eb.err,
		Category:  eb.category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	ee.component = resolveComponent(eb.component)

	if hasActiveReporting.Load() {
		reportToTelemetry(ee)
	}
	return ee
}

// detectCategory inherits the category of a wrapped EnhancedError
func detectCategory(err error) ErrorCategory {
	var enhErr *EnhancedError
	if err != nil && stderrors.As(err, &enhErr) && enhErr.Category != "" {
		return enhErr.Category
	}
	return CategoryGeneric
}

// Component registry used for log and telemetry tagging
var (
	componentRegistry = make(map[string]string)
	registryMutex     sync.RWMutex
)

// RegisterComponent registers a short package name with a component name
func RegisterComponent(packageName, componentName string) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	componentRegistry[packageName] = componentName
}

// LookupComponent returns the registered component name for a package, or
// ComponentUnknown.
func LookupComponent(packageName string) string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	if c, ok := componentRegistry[packageName]; ok {
		return c
	}
	return ComponentUnknown
}

// resolveComponent maps a package name to its registered component name.
// Unregistered names are kept as given.
func resolveComponent(name string) string {
	if name == "" {
		return ComponentUnknown
	}
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	if c, ok := componentRegistry[name]; ok {
		return c
	}
	return name
}

func init() {
	RegisterComponent("shm", "shm")
	RegisterComponent("ringbuffer", "ringbuffer")
	RegisterComponent("channelmap", "channelmap")
	RegisterComponent("stream", "stream")
	RegisterComponent("monitor", "monitor")
	RegisterComponent("conf", "configuration")
	RegisterComponent("malgo", "backend.malgo")
	RegisterComponent("loopback", "backend.loopback")
	RegisterComponent("audiocore", "audiocore")
	RegisterComponent("generator", "generator")
	RegisterComponent("app", "app")
	RegisterComponent("cmd", "cli")
}

// Convenience functions for common error patterns

// ValidationError creates a validation error
func ValidationError(message string) *EnhancedError {
	return New(NewStd(message)).
		Category(CategoryValidation).
		Build()
}

// Standard library passthrough functions

// NewStd creates a new standard error (passthrough to standard library)
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target (passthrough to standard library)
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target (passthrough to standard library)
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err (passthrough to standard library)
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors (passthrough to standard library)
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory checks if an error is an EnhancedError with the specified category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}
