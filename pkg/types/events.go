package types

// PointerEventType categorizes pointer events.
type PointerEventType string

const (
	PointerMove   PointerEventType = "move"
	PointerClick  PointerEventType = "click"
	PointerScroll PointerEventType = "scroll"
)

// TriggerType classifies what caused a screenshot capture.
type TriggerType string

const (
	TriggerClick    TriggerType = "click"
	TriggerScroll   TriggerType = "scroll"
	TriggerPeriodic TriggerType = "periodic"
	TriggerNone     TriggerType = ""
)

// PointerEvent is one normalized pointer sample. Timestamp is seconds
// relative to the session epoch.
type PointerEvent struct {
	SessionID int64            `json:"session_id"`
	Timestamp float64          `json:"timestamp"`
	Type      PointerEventType `json:"event_type"`
	X         int              `json:"x"`
	Y         int              `json:"y"`

	// Button and Pressed are set for click events only.
	Button  string `json:"button,omitempty"`
	Pressed *bool  `json:"pressed,omitempty"`

	// ScrollDX and ScrollDY are set for scroll events only.
	ScrollDX *float64 `json:"scroll_dx,omitempty"`
	ScrollDY *float64 `json:"scroll_dy,omitempty"`

	// TaskID tags the task/phase active at capture time, if any.
	TaskID *int64 `json:"task_id,omitempty"`
}

// ScreenshotEvent describes one captured frame written to the artifact
// store.
type ScreenshotEvent struct {
	SessionID int64   `json:"session_id"`
	Timestamp float64 `json:"timestamp"`
	FilePath  string  `json:"file_path"`
	FileSize  int64   `json:"file_size"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Format    string  `json:"format"`

	TriggerType TriggerType `json:"trigger_type,omitempty"`
	TriggerX    *int        `json:"trigger_x,omitempty"`
	TriggerY    *int        `json:"trigger_y,omitempty"`

	// TriggerMeta holds free-form trigger context (button, scroll
	// accumulation). Persisted snappy-compressed.
	TriggerMeta map[string]interface{} `json:"trigger_meta,omitempty"`

	TaskID *int64 `json:"task_id,omitempty"`
}

// AudioSegment describes one finalized audio segment file.
type AudioSegment struct {
	SessionID      int64   `json:"session_id"`
	StartTimestamp float64 `json:"start_timestamp"`
	EndTimestamp   float64 `json:"end_timestamp"`
	Duration       float64 `json:"duration"`
	FilePath       string  `json:"file_path"`
	SampleRate     int     `json:"sample_rate"`
	Channels       int     `json:"channels"`
	FileSize       int64   `json:"file_size"`
	TaskID         *int64  `json:"task_id,omitempty"`
}

// GazeSample is one frame of gaze estimation.
type GazeSample struct {
	SessionID    int64   `json:"session_id"`
	Timestamp    float64 `json:"timestamp"`
	LeftPupilX   float64 `json:"left_pupil_x"`
	LeftPupilY   float64 `json:"left_pupil_y"`
	RightPupilX  float64 `json:"right_pupil_x"`
	RightPupilY  float64 `json:"right_pupil_y"`
	GazeX        float64 `json:"gaze_x"`
	GazeY        float64 `json:"gaze_y"`
	LeftEyeOpen  bool    `json:"left_eye_open"`
	RightEyeOpen bool    `json:"right_eye_open"`
	HeadPoseX    float64 `json:"head_pose_x"`
	HeadPoseY    float64 `json:"head_pose_y"`
	HeadPoseZ    float64 `json:"head_pose_z"`
	IsCalibrated bool    `json:"is_calibrated"`
}

// TranscriptionSegment is a derived text segment produced from an audio
// segment file after the session ends.
type TranscriptionSegment struct {
	SessionID int64   `json:"session_id"`
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"text"`
	AudioFile string  `json:"audio_file"`
	TaskID    *int64  `json:"task_id,omitempty"`
}
