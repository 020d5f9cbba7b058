package audiocore

import (
	"github.com/tphakala/shmaudio/internal/errors"
)

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

// Sentinels match any error of the same category through errors.Is.
var (
	// ErrAllocation is returned when a shared region cannot be created or attached
	ErrAllocation = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryAllocation).
			Build()

	// ErrMappingMismatch is returned when a channel mapping does not fit the data or device
	ErrMappingMismatch = errors.New(nil).
				Component(ComponentAudioCore).
				Category(errors.CategoryChannelMapping).
				Build()

	// ErrCapacity is returned when a transfer is longer than the buffer
	ErrCapacity = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryCapacity).
			Build()

	// ErrStreamAbort is returned from a callback to halt the stream. It never
	// reaches application code.
	ErrStreamAbort = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryStreamAbort).
			Build()

	// ErrExhausted is returned by reads past the last frame the buffer can hold
	ErrExhausted = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryBufferExhausted).
			Build()

	// ErrInvalidState is returned when an operation does not fit the stream state
	ErrInvalidState = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryState).
			Build()
)
