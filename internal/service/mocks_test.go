package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ontime-app/backend/internal/logger"
	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/internal/repository"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(logger.Config{Level: logger.LevelError, Format: "text"})
}

// mockEventRepository is an in-memory EventRepository. Setting unreachable
// makes every call fail, simulating a remote outage.
type mockEventRepository struct {
	mu          sync.Mutex
	events      map[string]*models.Event
	unreachable bool
	createCalls int
	updateCalls int
}

func newMockEventRepository() *mockEventRepository {
	return &mockEventRepository{events: make(map[string]*models.Event)}
}

func (m *mockEventRepository) Create(ctx context.Context, event *models.Event) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return nil, errors.New("remote unreachable")
	}
	m.createCalls++
	cp := *event
	m.events[cp.ID] = &cp
	return &cp, nil
}

func (m *mockEventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return nil, errors.New("remote unreachable")
	}
	if ev, ok := m.events[id]; ok {
		cp := *ev
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockEventRepository) GetByUserIDAndDateRange(ctx context.Context, userID string, from, to time.Time) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return nil, errors.New("remote unreachable")
	}
	var out []models.Event
	for _, ev := range m.events {
		if ev.UserID != userID || ev.StartTime.Before(from) || !ev.StartTime.Before(to) {
			continue
		}
		out = append(out, *ev)
	}
	return out, nil
}

func (m *mockEventRepository) GetByExternalID(ctx context.Context, userID, externalID string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return nil, errors.New("remote unreachable")
	}
	for _, ev := range m.events {
		if ev.UserID == userID && ev.ExternalID != nil && *ev.ExternalID == externalID {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockEventRepository) Update(ctx context.Context, id string, fields map[string]interface{}) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return nil, errors.New("remote unreachable")
	}
	ev, ok := m.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.updateCalls++
	applyEventFields(ev, fields)
	cp := *ev
	return &cp, nil
}

func (m *mockEventRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return errors.New("remote unreachable")
	}
	delete(m.events, id)
	return nil
}

func applyEventFields(ev *models.Event, fields map[string]interface{}) {
	for key, value := range fields {
		switch key {
		case "title":
			ev.Title = value.(string)
		case "description":
			ev.Description = value.(string)
		case "location":
			loc := value.(string)
			ev.Location = &loc
		case "latitude":
			lat := value.(float64)
			ev.Latitude = &lat
		case "longitude":
			lon := value.(float64)
			ev.Longitude = &lon
		case "start_time":
			t, _ := time.Parse(time.RFC3339, value.(string))
			ev.StartTime = t
		case "end_time":
			t, _ := time.Parse(time.RFC3339, value.(string))
			ev.EndTime = t
		case "status":
			ev.Status = value.(models.EventStatus)
		case "arrived_on_time":
			b := value.(bool)
			ev.ArrivedOnTime = &b
		case "completed_at":
			t, _ := time.Parse(time.RFC3339, value.(string))
			ev.CompletedAt = &t
		case "travel_time_minutes":
			v := value.(int)
			ev.TravelTimeMinutes = &v
		case "travel_time_is_fallback":
			ev.TravelTimeIsFallback = value.(bool)
		}
	}
}

// mockEventCache is an in-memory EventCache.
type mockEventCache struct {
	mu     sync.Mutex
	events map[string]*models.Event
}

func newMockEventCache() *mockEventCache {
	return &mockEventCache{events: make(map[string]*models.Event)}
}

func (m *mockEventCache) Put(ctx context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	m.events[cp.ID] = &cp
	return nil
}

func (m *mockEventCache) Get(ctx context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.events[id]; ok {
		cp := *ev
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockEventCache) ListByUserAndRange(ctx context.Context, userID string, from, to time.Time) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, ev := range m.events {
		if ev.UserID != userID || ev.StartTime.Before(from) || !ev.StartTime.Before(to) {
			continue
		}
		out = append(out, *ev)
	}
	return out, nil
}

func (m *mockEventCache) ListBySyncState(ctx context.Context, userID string, state models.SyncState) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, ev := range m.events {
		if ev.UserID == userID && ev.SyncState == state {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (m *mockEventCache) SetSyncState(ctx context.Context, id string, state models.SyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	ev.SyncState = state
	return nil
}

func (m *mockEventCache) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	return nil
}

// mockStatsRepository enforces the version check the way PostgREST does.
// conflictsLeft forces that many version conflicts before writes succeed.
type mockStatsRepository struct {
	mu            sync.Mutex
	stats         map[string]*models.UserStats
	conflictsLeft int
	updateCalls   int
}

func newMockStatsRepository() *mockStatsRepository {
	return &mockStatsRepository{stats: make(map[string]*models.UserStats)}
}

func (m *mockStatsRepository) Get(ctx context.Context, userID string) (*models.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.stats[userID]; ok {
		cp := cloneStats(st)
		return cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockStatsRepository) Create(ctx context.Context, stats *models.UserStats) (*models.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneStats(stats)
	m.stats[cp.UserID] = cp
	return cloneStats(cp), nil
}

func (m *mockStatsRepository) UpdateWithVersion(ctx context.Context, stats *models.UserStats) (*models.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	current, ok := m.stats[stats.UserID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		current.Version++
		return nil, repository.ErrVersionConflict
	}
	if current.Version != stats.Version {
		return nil, repository.ErrVersionConflict
	}
	next := cloneStats(stats)
	next.Version = stats.Version + 1
	m.stats[stats.UserID] = next
	return cloneStats(next), nil
}

func (m *mockStatsRepository) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]models.LeaderboardEntry, 0, len(m.stats))
	for _, st := range m.stats {
		entries = append(entries, models.LeaderboardEntry{UserID: st.UserID, XP: st.XP, Level: st.Level()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].XP > entries[j].XP })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// mockSessionRepository is an in-memory LockSessionRepository.
type mockSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.LockSession
}

func newMockSessionRepository() *mockSessionRepository {
	return &mockSessionRepository{sessions: make(map[string]*models.LockSession)}
}

func (m *mockSessionRepository) Save(ctx context.Context, session *models.LockSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[cp.ID] = &cp
	return nil
}

func (m *mockSessionRepository) GetArmed(ctx context.Context, userID string) (*models.LockSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.State == models.LockArmed {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockSessionRepository) GetByEventID(ctx context.Context, eventID string) (*models.LockSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.EventID == eventID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

// recordingSink captures everything the scheduler hands to delivery.
type recordingSink struct {
	mu        sync.Mutex
	scheduled []models.ReminderIntent
	cancelled []string
}

func (r *recordingSink) Schedule(intent models.ReminderIntent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, intent)
}

func (r *recordingSink) CancelByID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, id)
}
