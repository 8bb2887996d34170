package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ontime-app/backend/internal/models"

	_ "modernc.org/sqlite"
)

// LocalStore is the on-device SQLite database. It mirrors events for
// offline reads, queues pending writes, and owns state that must not
// depend on connectivity: lock sessions and idempotency replay records.
type LocalStore struct {
	db *sql.DB
}

// OpenLocalStore opens (or creates) the SQLite database and initializes
// the schema. WAL mode keeps the scheduler and request handlers from
// blocking each other.
func OpenLocalStore(path string) (*LocalStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &LocalStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate local db: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *LocalStore) Close() error { return s.db.Close() }

func (s *LocalStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		start_time TEXT NOT NULL,
		sync_state TEXT NOT NULL,
		payload    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_user_start ON events(user_id, start_time);
	CREATE INDEX IF NOT EXISTS idx_events_user_sync ON events(user_id, sync_state);

	CREATE TABLE IF NOT EXISTS lock_sessions (
		id       TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		user_id  TEXT NOT NULL,
		state    TEXT NOT NULL,
		payload  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_locks_user_state ON lock_sessions(user_id, state);
	CREATE INDEX IF NOT EXISTS idx_locks_event ON lock_sessions(event_id);

	CREATE TABLE IF NOT EXISTS idempotency_keys (
		key           TEXT NOT NULL,
		route         TEXT NOT NULL,
		user_id       TEXT NOT NULL,
		response_body BLOB NOT NULL,
		status_code   INTEGER NOT NULL,
		created_at    TEXT NOT NULL,
		PRIMARY KEY (key, route, user_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Event cache
// ---------------------------------------------------------------------------

// Put inserts or replaces a cached event.
func (s *LocalStore) Put(ctx context.Context, event *models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, user_id, start_time, sync_state, payload)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   start_time = excluded.start_time,
		   sync_state = excluded.sync_state,
		   payload    = excluded.payload`,
		event.ID, event.UserID, event.StartTime.UTC().Format(time.RFC3339Nano),
		event.SyncState, string(payload),
	)
	if err != nil {
		return fmt.Errorf("cache event: %w", err)
	}
	return nil
}

// Get returns a cached event by id.
func (s *LocalStore) Get(ctx context.Context, id string) (*models.Event, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM events WHERE id = ?`, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cached event: %w", err)
	}
	return unmarshalEvent(payload)
}

// ListByUserAndRange returns cached events starting within [from, to),
// ordered by start time.
func (s *LocalStore) ListByUserAndRange(ctx context.Context, userID string, from, to time.Time) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events
		 WHERE user_id = ? AND start_time >= ? AND start_time < ?
		 ORDER BY start_time ASC`,
		userID, from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("list cached events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListBySyncState returns the user's events in the given sync state.
func (s *LocalStore) ListBySyncState(ctx context.Context, userID string, state models.SyncState) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events
		 WHERE user_id = ? AND sync_state = ?
		 ORDER BY start_time ASC`,
		userID, state,
	)
	if err != nil {
		return nil, fmt.Errorf("list events by sync state: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// SetSyncState updates the sync state of a cached event, both in the
// indexed column and inside the stored payload.
func (s *LocalStore) SetSyncState(ctx context.Context, id string, state models.SyncState) error {
	event, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	event.SyncState = state
	return s.Put(ctx, event)
}

// Delete removes a cached event.
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete cached event: %w", err)
	}
	return nil
}

func unmarshalEvent(payload string) (*models.Event, error) {
	var event models.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("unmarshal cached event: %w", err)
	}
	return &event, nil
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	var events []models.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan cached event: %w", err)
		}
		event, err := unmarshalEvent(payload)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// ---------------------------------------------------------------------------
// Lock sessions
// ---------------------------------------------------------------------------

// Save inserts or replaces a lock session.
func (s *LocalStore) Save(ctx context.Context, session *models.LockSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal lock session: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lock_sessions (id, event_id, user_id, state, payload)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   state   = excluded.state,
		   payload = excluded.payload`,
		session.ID, session.EventID, session.UserID, session.State, string(payload),
	)
	if err != nil {
		return fmt.Errorf("save lock session: %w", err)
	}
	return nil
}

// GetArmed returns the user's armed lock session, or ErrNotFound. At most
// one session is armed per user.
func (s *LocalStore) GetArmed(ctx context.Context, userID string) (*models.LockSession, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM lock_sessions WHERE user_id = ? AND state = ? LIMIT 1`,
		userID, models.LockArmed,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read armed lock session: %w", err)
	}
	return unmarshalLockSession(payload)
}

// GetByEventID returns the most recent lock session for an event.
func (s *LocalStore) GetByEventID(ctx context.Context, eventID string) (*models.LockSession, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM lock_sessions WHERE event_id = ? ORDER BY rowid DESC LIMIT 1`,
		eventID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read lock session: %w", err)
	}
	return unmarshalLockSession(payload)
}

func unmarshalLockSession(payload string) (*models.LockSession, error) {
	var session models.LockSession
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return nil, fmt.Errorf("unmarshal lock session: %w", err)
	}
	return &session, nil
}

// ---------------------------------------------------------------------------
// Idempotency keys
// ---------------------------------------------------------------------------

// GetIdempotency retrieves a stored response for a replayed request.
// Returns (nil, nil) when the key is unseen.
func (s *LocalStore) GetIdempotency(ctx context.Context, key, route, userID string) (*models.IdempotencyKey, error) {
	rec := models.IdempotencyKey{Key: key, Route: route, UserID: userID}
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT response_body, status_code, created_at
		 FROM idempotency_keys WHERE key = ? AND route = ? AND user_id = ?`,
		key, route, userID,
	).Scan(&rec.ResponseBody, &rec.StatusCode, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}
	if t, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
		rec.CreatedAt = t
	}
	return &rec, nil
}

// StoreIdempotency saves a response for replay. A duplicate insert is
// ignored; the first stored response wins.
func (s *LocalStore) StoreIdempotency(ctx context.Context, key, route, userID string, responseBody []byte, statusCode int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, route, user_id, response_body, status_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key, route, user_id) DO NOTHING`,
		key, route, userID, responseBody, statusCode,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store idempotency key: %w", err)
	}
	return nil
}
