package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ontime-app/backend/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when an optimistic stats write lost the
// race. Callers re-read and re-apply.
var ErrVersionConflict = errors.New("stats version conflict")

// EventRepository defines remote event data access.
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) (*models.Event, error)
	GetByID(ctx context.Context, id string) (*models.Event, error)
	GetByUserIDAndDateRange(ctx context.Context, userID string, from, to time.Time) ([]models.Event, error)
	GetByExternalID(ctx context.Context, userID, externalID string) (*models.Event, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) (*models.Event, error)
	Delete(ctx context.Context, id string) error
}

// StatsRepository defines user stats data access. Writes are guarded by
// an optimistic version check.
type StatsRepository interface {
	Get(ctx context.Context, userID string) (*models.UserStats, error)
	Create(ctx context.Context, stats *models.UserStats) (*models.UserStats, error)
	UpdateWithVersion(ctx context.Context, stats *models.UserStats) (*models.UserStats, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// EventCache is the device-local event mirror. It answers reads when the
// remote store is unreachable and queues writes made offline.
type EventCache interface {
	Put(ctx context.Context, event *models.Event) error
	Get(ctx context.Context, id string) (*models.Event, error)
	ListByUserAndRange(ctx context.Context, userID string, from, to time.Time) ([]models.Event, error)
	ListBySyncState(ctx context.Context, userID string, state models.SyncState) ([]models.Event, error)
	SetSyncState(ctx context.Context, id string, state models.SyncState) error
	Delete(ctx context.Context, id string) error
}

// LockSessionRepository persists focus-lock sessions locally. Lock state
// must survive a process restart so an armed lock cannot be shed by
// killing the app.
type LockSessionRepository interface {
	Save(ctx context.Context, session *models.LockSession) error
	GetArmed(ctx context.Context, userID string) (*models.LockSession, error)
	GetByEventID(ctx context.Context, eventID string) (*models.LockSession, error)
}

// IdempotencyRepository stores replayed responses for idempotent routes.
type IdempotencyRepository interface {
	Get(ctx context.Context, key, route, userID string) (*models.IdempotencyKey, error)
	Store(ctx context.Context, key, route, userID string, responseBody []byte, statusCode int) error
}
