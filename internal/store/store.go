// Package store implements the durable session store on SQLite. A single
// write connection serializes all mutations; a separate read-only pool
// serves concurrent queries against the WAL snapshot.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

// Store owns the session database. All writes go through writeDB, which
// is capped at a single open connection so batch transactions never
// contend inside the process; readDB is a read-only pool that may be
// used concurrently with writes.
type Store struct {
	path    string
	writeDB *sql.DB
	readDB  *sql.DB
}

// Open opens (creating if necessary) the database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	writeDSN := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", filepath.ToSlash(path))
	writeDB, err := sql.Open("sqlite3", writeDSN)
	if err != nil {
		return nil, hcierrors.NewStorageUnavailable("open write connection", err)
	}
	writeDB.SetMaxOpenConns(1)

	if err := writeDB.Ping(); err != nil {
		writeDB.Close()
		return nil, hcierrors.NewStorageUnavailable("ping write connection", err)
	}

	for _, stmt := range AllSchemaSQL() {
		if _, err := writeDB.Exec(stmt); err != nil {
			writeDB.Close()
			return nil, hcierrors.NewStorageUnavailable("apply schema", err)
		}
	}

	readDSN := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&mode=ro", filepath.ToSlash(path))
	readDB, err := sql.Open("sqlite3", readDSN)
	if err != nil {
		writeDB.Close()
		return nil, hcierrors.NewStorageUnavailable("open read pool", err)
	}
	readDB.SetMaxOpenConns(8)

	log.Printf("store: opened %s (schema v%s)", path, SchemaVersion)
	return &Store{path: path, writeDB: writeDB, readDB: readDB}, nil
}

// Close closes both connection pools.
func (s *Store) Close() error {
	var firstErr error
	if err := s.readDB.Close(); err != nil {
		firstErr = err
	}
	if err := s.writeDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// CreateSession inserts a new active session row and returns it with ID,
// UUID, and timestamps populated. UUID collisions surface as constraint
// violations rather than silent overwrites.
func (s *Store) CreateSession(ctx context.Context, meta types.SessionMeta) (*types.Session, error) {
	now := time.Now()
	sess := &types.Session{
		UUID:          uuid.NewString(),
		StartTime:     float64(now.UnixNano()) / 1e9,
		ParticipantID: meta.ParticipantID,
		ExperimentID:  meta.ExperimentID,
		TargetURL:     meta.TargetURL,
		ScreenWidth:   meta.ScreenWidth,
		ScreenHeight:  meta.ScreenHeight,
		Status:        types.StatusActive,
		Notes:         meta.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	res, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO sessions (session_uuid, start_time, participant_id, experiment_id,
			target_url, screen_width, screen_height, status, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.UUID, sess.StartTime, sess.ParticipantID, sess.ExperimentID,
		sess.TargetURL, sess.ScreenWidth, sess.ScreenHeight, string(sess.Status),
		sess.Notes, unixSeconds(sess.CreatedAt), unixSeconds(sess.UpdatedAt))
	if err != nil {
		return nil, mapSQLiteError("create session", err)
	}
	sess.ID, err = res.LastInsertId()
	if err != nil {
		return nil, hcierrors.NewStorageUnavailable("create session", err)
	}
	log.Printf("store: created session %d (%s)", sess.ID, sess.UUID)
	return sess, nil
}

// EndSession marks a session finished exactly once. The first call wins;
// a session already in a terminal state is left untouched and reported
// as a constraint violation.
func (s *Store) EndSession(ctx context.Context, sessionID int64, endTime float64, status types.SessionStatus) error {
	if status != types.StatusCompleted && status != types.StatusError {
		return hcierrors.NewConstraintViolation(fmt.Sprintf("invalid terminal status %q", status), nil)
	}
	res, err := s.writeDB.ExecContext(ctx,
		`UPDATE sessions SET end_time = ?, status = ?, updated_at = ?
		 WHERE id = ? AND status = 'active'`,
		endTime, string(status), unixSeconds(time.Now()), sessionID)
	if err != nil {
		return mapSQLiteError("end session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return hcierrors.NewStorageUnavailable("end session", err)
	}
	if n == 0 {
		if _, err := s.GetSession(ctx, sessionID); err != nil {
			return err
		}
		return hcierrors.NewConstraintViolation(fmt.Sprintf("session %d already ended", sessionID), nil)
	}
	log.Printf("store: ended session %d (%s)", sessionID, status)
	return nil
}

// UpdateSessionNotes replaces the free-form notes on a session.
func (s *Store) UpdateSessionNotes(ctx context.Context, sessionID int64, notes string) error {
	res, err := s.writeDB.ExecContext(ctx,
		`UPDATE sessions SET notes = ?, updated_at = ? WHERE id = ?`,
		notes, unixSeconds(time.Now()), sessionID)
	if err != nil {
		return mapSQLiteError("update session notes", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return hcierrors.New(hcierrors.ErrCategorySession, hcierrors.CodeSessionNotFound,
			fmt.Sprintf("session %d not found", sessionID))
	}
	return nil
}

// GetSession loads a session by numeric ID.
func (s *Store) GetSession(ctx context.Context, sessionID int64) (*types.Session, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT id, session_uuid, start_time, end_time, participant_id, experiment_id,
			target_url, screen_width, screen_height, status, notes, created_at, updated_at
		 FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row, sessionID)
}

// GetSessionByUUID loads a session by its public UUID.
func (s *Store) GetSessionByUUID(ctx context.Context, sessionUUID string) (*types.Session, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT id, session_uuid, start_time, end_time, participant_id, experiment_id,
			target_url, screen_width, screen_height, status, notes, created_at, updated_at
		 FROM sessions WHERE session_uuid = ?`, sessionUUID)
	return scanSession(row, 0)
}

// ListSessions returns sessions newest first, optionally filtered by
// participant. limit <= 0 means no limit.
func (s *Store) ListSessions(ctx context.Context, participantID string, limit int) ([]*types.Session, error) {
	q := `SELECT id, session_uuid, start_time, end_time, participant_id, experiment_id,
			target_url, screen_width, screen_height, status, notes, created_at, updated_at
		 FROM sessions`
	args := []interface{}{}
	if participantID != "" {
		q += ` WHERE participant_id = ?`
		args = append(args, participantID)
	}
	q += ` ORDER BY start_time DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.readDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, hcierrors.NewStorageUnavailable("list sessions", err)
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(r rowScanner, id int64) (*types.Session, error) {
	var (
		sess               types.Session
		endTime            sql.NullFloat64
		status             string
		createdAt, updated float64
	)
	err := r.Scan(&sess.ID, &sess.UUID, &sess.StartTime, &endTime,
		&sess.ParticipantID, &sess.ExperimentID, &sess.TargetURL,
		&sess.ScreenWidth, &sess.ScreenHeight, &status, &sess.Notes,
		&createdAt, &updated)
	if err == sql.ErrNoRows {
		return nil, hcierrors.New(hcierrors.ErrCategorySession, hcierrors.CodeSessionNotFound,
			fmt.Sprintf("session %d not found", id))
	}
	if err != nil {
		return nil, hcierrors.NewStorageUnavailable("scan session", err)
	}
	if endTime.Valid {
		sess.EndTime = endTime.Float64
	}
	sess.Status = types.SessionStatus(status)
	sess.CreatedAt = fromUnixSeconds(createdAt)
	sess.UpdatedAt = fromUnixSeconds(updated)
	return &sess, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(sec float64) time.Time {
	return time.Unix(0, int64(sec*1e9))
}

// mapSQLiteError translates driver errors into the storage error
// taxonomy: constraint failures are non-retryable data errors, anything
// else means the store itself is unhealthy.
func mapSQLiteError(op string, err error) error {
	if sqliteErr, ok := err.(sqlite3.Error); ok {
		if sqliteErr.Code == sqlite3.ErrConstraint {
			return hcierrors.NewConstraintViolation(op, err)
		}
	}
	return hcierrors.NewStorageUnavailable(op, err)
}
