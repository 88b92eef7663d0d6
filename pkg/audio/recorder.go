package audio

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied means the platform refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrCaptureClosed is returned when a capture handle is used after Stop or Discard.
	ErrCaptureClosed = errors.New("capture already closed")
)

// Recorder produces captures from the microphone. Permission is requested
// lazily on the first StartCapture.
type Recorder interface {
	StartCapture(ctx context.Context) (Capture, error)
	// Close discards any live capture and releases the platform resources.
	Close() error
}

// Capture is one in-flight recording.
type Capture interface {
	ID() string
	// Stop ends the recording and returns the finished clip.
	Stop() (Clip, error)
	// Discard ends the recording and drops the audio.
	Discard()
}
