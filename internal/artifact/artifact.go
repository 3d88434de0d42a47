// Package artifact provides the media artifact store. Screenshots, audio
// segments, and rendered heatmaps are written here; the session database
// records only object paths.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"
)

// Common errors for artifact operations.
var (
	ErrObjectNotFound = errors.New("artifact not found")
	ErrSaveFailed     = errors.New("save failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// Store abstracts the artifact backend. Implementations include the
// local filesystem and S3-compatible object storage.
type Store interface {
	// Save writes r to objectPath, creating parents as needed, and
	// returns the number of bytes written.
	Save(ctx context.Context, r io.Reader, objectPath string) (int64, error)

	// Open returns a reader over the stored object.
	Open(ctx context.Context, objectPath string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// List returns all object paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Per-session object layout. Everything recorded in one session lives
// under its UUID so a session can be archived or deleted as a unit.

// ScreenshotPath returns the object path for the seq-th screenshot of a
// session.
func ScreenshotPath(sessionUUID string, seq int, format string) string {
	return path.Join(sessionUUID, "screenshots", fmt.Sprintf("%06d.%s", seq, format))
}

// AudioPath returns the object path for the seq-th audio segment of a
// session.
func AudioPath(sessionUUID string, seq int) string {
	return path.Join(sessionUUID, "audio", fmt.Sprintf("segment_%03d.wav", seq))
}

// HeatmapPath returns the object path for a heatmap rendered at the
// given time. The timestamp keeps successive renders of the same kind
// from overwriting each other.
func HeatmapPath(sessionUUID, kind string, at time.Time) string {
	return path.Join(sessionUUID, "heatmaps",
		fmt.Sprintf("%s_%s.png", at.UTC().Format("20060102T150405"), kind))
}
