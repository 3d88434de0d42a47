// Package types provides core data types shared across the hcilog system.
package types

import "time"

// SessionStatus describes the lifecycle state of a recording session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusError     SessionStatus = "error"
)

// Session represents one timed observation session. A session is created
// in the active state and transitions to completed or error exactly once.
type Session struct {
	// ID is the storage-assigned row identifier.
	ID int64 `json:"id"`

	// UUID is the external session identity used for directory layout
	// and artifact naming.
	UUID string `json:"uuid"`

	// StartTime and EndTime are wall-clock Unix seconds. EndTime is zero
	// while the session is active.
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time,omitempty"`

	// ParticipantID and ExperimentID are optional study identifiers.
	ParticipantID string `json:"participant_id,omitempty"`
	ExperimentID  string `json:"experiment_id,omitempty"`

	// TargetURL is the context being observed (e.g., a web page).
	TargetURL string `json:"target_url,omitempty"`

	// ScreenWidth and ScreenHeight record the screen geometry at
	// capture time. Immutable once set.
	ScreenWidth  int `json:"screen_width"`
	ScreenHeight int `json:"screen_height"`

	Status SessionStatus `json:"status"`

	// Notes carries free text, including degraded-tracker annotations
	// appended by the coordinator.
	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionMeta holds the caller-supplied fields for a new session.
type SessionMeta struct {
	ParticipantID string
	ExperimentID  string
	TargetURL     string
	ScreenWidth   int
	ScreenHeight  int
	Notes         string
}
