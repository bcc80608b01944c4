package session

import "errors"

// Validation errors. Each is also surfaced as a notice; none mutates state.
var (
	ErrEmptyURL      = errors.New("enter a URL first")
	ErrNoFile        = errors.New("no file selected")
	ErrNoTranscript  = errors.New("no transcript available")
	ErrEmptyPrompt   = errors.New("enter a summary prompt first")
	ErrBusy          = errors.New("operation already in progress")
	ErrNoCapability  = errors.New("capability not configured")
	ErrBadSuggestion = errors.New("suggestion index out of range")
)
