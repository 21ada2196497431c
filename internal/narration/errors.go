package narration

import (
	"errors"
	"fmt"
)

// ErrEmptyPayload is returned by Narrate for blank text.
var ErrEmptyPayload = errors.New("nothing to narrate")

type TranscriptionError struct {
	StoryID string
	Err     error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed for story %s: %v", e.StoryID, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

type ContextError struct {
	StoryID string
	Err     error
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("context generation failed for story %s: %v", e.StoryID, e.Err)
}

func (e *ContextError) Unwrap() error { return e.Err }

type IllustrationError struct {
	StoryID string
	Err     error
}

func (e *IllustrationError) Error() string {
	return fmt.Sprintf("illustration failed for story %s: %v", e.StoryID, e.Err)
}

func (e *IllustrationError) Unwrap() error { return e.Err }

// NarrationError is a speech service failure.
type NarrationError struct {
	Voice string
	Err   error
}

func (e *NarrationError) Error() string {
	return fmt.Sprintf("narration with voice %q failed: %v", e.Voice, e.Err)
}

func (e *NarrationError) Unwrap() error { return e.Err }

// ParseError means the service answered but the answer was not the expected
// shape.
type ParseError struct {
	What string
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse %s response: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
