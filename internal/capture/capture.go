// Package capture defines the adapter boundary between trackers and the
// sensing backends. Real backends (OS hooks, webcams, eye trackers) live
// behind these interfaces; the package ships deterministic replay
// adapters for tests and the demo recorder.
package capture

import (
	"context"
	"errors"
)

// ErrEndOfStream is returned by Next when a finite adapter has no more
// samples. Trackers treat it as a quiet source, not a failure.
var ErrEndOfStream = errors.New("capture: end of stream")

// Adapter produces raw samples of one modality. Open must be called
// before Next; Close releases the backend. Next blocks until a sample is
// available, the context is cancelled, or the stream ends.
type Adapter[T any] interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (T, error)
	Close() error
}

// PointerKind discriminates raw pointer samples.
type PointerKind string

const (
	PointerKindMove   PointerKind = "move"
	PointerKindClick  PointerKind = "click"
	PointerKindScroll PointerKind = "scroll"
)

// PointerSample is one raw pointer observation in screen pixels.
type PointerSample struct {
	Kind     PointerKind
	X, Y     int
	Button   string
	Pressed  bool
	ScrollDX float64
	ScrollDY float64
}

// FrameSample is one raw captured frame. Pixels is tightly packed RGBA,
// 4 bytes per pixel, row-major.
type FrameSample struct {
	Width  int
	Height int
	Pixels []byte
}

// AudioChunk is a run of raw PCM from the audio backend.
type AudioChunk struct {
	PCM        []byte
	SampleRate int
	Channels   int
	// Seconds of audio in PCM.
	Duration float64
}

// EmotionReading is one raw inference result from the facial-emotion
// backend. FaceDetected false means the intensity vector is meaningless.
type EmotionReading struct {
	FaceDetected bool
	Confidence   float64
	Intensities  [7]float64 // canonical emotion order
	Age          *int
	Gender       *string
}

// GazeReading is one raw frame from the gaze backend.
type GazeReading struct {
	LeftPupilX, LeftPupilY   float64
	RightPupilX, RightPupilY float64
	GazeX, GazeY             float64
	LeftEyeOpen              bool
	RightEyeOpen             bool
	HeadPoseX                float64
	HeadPoseY                float64
	HeadPoseZ                float64
	Calibrated               bool
}
