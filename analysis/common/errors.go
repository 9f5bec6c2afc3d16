package common

import "errors"

// Hard error kinds surfaced to callers. Raise sites wrap these with
// fmt.Errorf("...: %w", ...) so callers can branch with errors.Is while
// still seeing call-specific context.
var (
	// ErrInvalidArgument covers unknown window tags, non-positive sample
	// rates and zero/negative segment parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmptySignal means the caller supplied no samples at all.
	ErrEmptySignal = errors.New("empty signal")

	// ErrInsufficientSamples means the record is too short for the
	// requested segmentation.
	ErrInsufficientSamples = errors.New("insufficient samples")

	// ErrChannelMismatch means a two-channel method was given channels of
	// unequal length or sample rate.
	ErrChannelMismatch = errors.New("channel mismatch")

	// ErrTemplateNotFound means the matched-filter template file is
	// missing or unreadable.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrEmptyTemplate means the template file parsed to zero samples.
	ErrEmptyTemplate = errors.New("empty template")
)
