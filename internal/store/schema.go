package store

// SchemaVersion is recorded in the metadata table so future versions
// can detect and migrate older databases.
const SchemaVersion = "1"

// AllSchemaSQL returns the schema statements executed on open. Creation
// is idempotent; opening an existing database is a no-op.
func AllSchemaSQL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '` + SchemaVersion + `')`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_uuid TEXT NOT NULL UNIQUE,
			start_time REAL NOT NULL,
			end_time REAL,
			participant_id TEXT,
			experiment_id TEXT,
			target_url TEXT,
			screen_width INTEGER,
			screen_height INTEGER,
			status TEXT NOT NULL DEFAULT 'active'
				CHECK (status IN ('active', 'completed', 'error')),
			notes TEXT,
			created_at REAL NOT NULL,
			updated_at REAL NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS pointer_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			timestamp REAL NOT NULL,
			event_type TEXT NOT NULL CHECK (event_type IN ('move', 'click', 'scroll')),
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			button TEXT,
			pressed INTEGER,
			scroll_dx REAL,
			scroll_dy REAL,
			task_id INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pointer_session_time ON pointer_events(session_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS screenshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			timestamp REAL NOT NULL,
			file_path TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			format TEXT NOT NULL,
			trigger_type TEXT NOT NULL DEFAULT ''
				CHECK (trigger_type IN ('', 'click', 'scroll', 'periodic')),
			trigger_x INTEGER,
			trigger_y INTEGER,
			trigger_meta BLOB,
			task_id INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_screenshots_session_time ON screenshots(session_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS audio_segments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			start_timestamp REAL NOT NULL,
			end_timestamp REAL NOT NULL,
			duration REAL NOT NULL,
			file_path TEXT NOT NULL,
			sample_rate INTEGER NOT NULL,
			channels INTEGER NOT NULL,
			file_size INTEGER NOT NULL,
			task_id INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_session_time ON audio_segments(session_id, start_timestamp)`,

		`CREATE TABLE IF NOT EXISTS emotion_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			timestamp REAL NOT NULL,
			angry REAL NOT NULL CHECK (angry BETWEEN 0 AND 1),
			disgust REAL NOT NULL CHECK (disgust BETWEEN 0 AND 1),
			fear REAL NOT NULL CHECK (fear BETWEEN 0 AND 1),
			happy REAL NOT NULL CHECK (happy BETWEEN 0 AND 1),
			sad REAL NOT NULL CHECK (sad BETWEEN 0 AND 1),
			surprise REAL NOT NULL CHECK (surprise BETWEEN 0 AND 1),
			neutral REAL NOT NULL CHECK (neutral BETWEEN 0 AND 1),
			dominant_emotion TEXT NOT NULL,
			face_confidence REAL NOT NULL CHECK (face_confidence BETWEEN 0 AND 1),
			age INTEGER,
			gender TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_emotion_session_time ON emotion_samples(session_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS gaze_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			timestamp REAL NOT NULL,
			left_pupil_x REAL NOT NULL,
			left_pupil_y REAL NOT NULL,
			right_pupil_x REAL NOT NULL,
			right_pupil_y REAL NOT NULL,
			gaze_x REAL NOT NULL,
			gaze_y REAL NOT NULL,
			left_eye_open INTEGER NOT NULL,
			right_eye_open INTEGER NOT NULL,
			head_pose_x REAL NOT NULL,
			head_pose_y REAL NOT NULL,
			head_pose_z REAL NOT NULL,
			is_calibrated INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gaze_session_time ON gaze_samples(session_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS transcriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			timestamp REAL NOT NULL,
			text TEXT NOT NULL,
			audio_file TEXT NOT NULL,
			task_id INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcriptions_session_time ON transcriptions(session_id, timestamp)`,
	}
}
