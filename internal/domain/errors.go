package domain

import (
	"errors"
	"fmt"
)

// ErrNoModelSelected is returned when a transcription starts without a model.
var ErrNoModelSelected = errors.New("no model selected")

// ErrNoAudioSelected is returned when a transcription starts without an audio file.
var ErrNoAudioSelected = errors.New("no audio file selected")

// ErrorKind classifies job failures for logs and metrics.
type ErrorKind string

const (
	KindConfig      ErrorKind = "config"
	KindModelLoad   ErrorKind = "model_load"
	KindAudioDecode ErrorKind = "audio_decode"
	KindResample    ErrorKind = "resample"
	KindInference   ErrorKind = "inference"
	KindNetwork     ErrorKind = "network"
	KindIO          ErrorKind = "io"
)

// JobError is a kind-aware failure raised inside a worker.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error formats the failure as the human-readable reason shown to users.
func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *JobError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of the first JobError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	return ""
}
