// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., a local whisper.cpp
// server or Deepgram) and exposes a uniform batch interface: one recorded
// audio file in, one transcript out. Transcription of a long diary recording
// can take minutes, so callers should bound the call with a context deadline.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Request describes a single transcription job.
type Request struct {
	// AudioPath is the path of the recorded audio file on local disk. The
	// provider reads the file itself; decoding is left to the backend.
	AudioPath string

	// Language is an optional BCP-47 language hint (e.g., "en", "uk"). An
	// empty string lets the provider auto-detect the language.
	Language string
}

// Segment is a time-aligned piece of the transcript. Providers that do not
// report segment timing leave Result.Segments nil.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Result is the outcome of a transcription job.
type Result struct {
	// Text is the full transcribed speech content.
	Text string

	// Language is the language code the provider detected, or the hint it was
	// given when detection is not reported. May be empty.
	Language string

	// Segments holds per-segment detail when available.
	Segments []Segment

	// Duration is the length of the audio as reported by the provider. Zero
	// when unknown.
	Duration time.Duration
}

// Provider is the abstraction over any batch STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Transcribe converts the audio file named in req into text. It returns an
	// error when the file cannot be read, the backend is unreachable, or the
	// backend rejects the audio.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
