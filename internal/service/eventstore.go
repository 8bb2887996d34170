package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ontime-app/backend/internal/calendar"
	"github.com/ontime-app/backend/internal/logger"
	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/internal/repository"
	"github.com/ontime-app/backend/internal/retry"
)

// eventHorizon bounds how far ahead GetNextEvent looks.
const eventHorizon = 30 * 24 * time.Hour

// lockCanceller is the slice of the lock service the event store needs
// when an event is deleted. Bound after construction to avoid a
// constructor cycle.
type lockCanceller interface {
	Cancel(ctx context.Context, userID, eventID string, now time.Time) error
}

type EventStore struct {
	remote     repository.EventRepository
	cache      repository.EventCache
	travelTime TravelTimeService
	notify     NotificationScheduler
	prefs      models.ReminderPreferences
	policy     retry.Policy
	log        logger.Logger

	locks lockCanceller
}

// NewEventStoreService creates the unified event store over the remote
// repository and the local cache. Empty reminder preferences fall back to
// the defaults.
func NewEventStoreService(
	remote repository.EventRepository,
	cache repository.EventCache,
	travelTime TravelTimeService,
	notify NotificationScheduler,
	prefs models.ReminderPreferences,
	log logger.Logger,
) *EventStore {
	if len(prefs.OffsetsMinutes) == 0 {
		prefs = models.DefaultReminderPreferences()
	}
	return &EventStore{
		remote:     remote,
		cache:      cache,
		travelTime: travelTime,
		notify:     notify,
		prefs:      prefs,
		policy:     retry.DefaultPolicy,
		log:        log,
	}
}

// BindLockService wires the lock service in after both services exist.
func (s *EventStore) BindLockService(locks lockCanceller) {
	s.locks = locks
}

func (s *EventStore) CreateEvent(ctx context.Context, userID string, req *models.CreateEventRequest) (*models.Event, error) {
	now := time.Now().UTC()

	endTime := req.StartTime.Add(time.Hour)
	if req.EndTime != nil {
		endTime = *req.EndTime
	}

	event := &models.Event{
		ID:          uuid.NewString(),
		UserID:      userID,
		Source:      models.SourceLocal,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		StartTime:   req.StartTime.UTC(),
		EndTime:     endTime.UTC(),
		Timezone:    req.Timezone,
		Status:      models.StatusUpcoming,
		SyncState:   models.SyncPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.TravelTimeMinutes != nil {
		event.TravelTimeMinutes = req.TravelTimeMinutes
	} else if req.Location != nil && *req.Location != "" {
		est := s.travelTime.Estimate(ctx, "", *req.Location, event.StartTime)
		event.TravelTimeMinutes = &est.Minutes
		event.TravelTimeIsFallback = est.Fallback
	}

	// Local first. The event exists for the user even if the remote write
	// never succeeds.
	if err := s.cache.Put(ctx, event); err != nil {
		return nil, err
	}

	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		_, rerr := s.remote.Create(ctx, event)
		if rerr != nil {
			return retry.Transient(rerr)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("remote create failed, event queued locally",
			logger.String("event_id", event.ID),
			logger.Err(err),
		)
		return event, nil
	}

	// Confirmed under the client-provided id, so the remote link is the
	// event's own id. The link lets later offline copies re-merge.
	remoteID := event.ID
	event.RemoteID = &remoteID
	event.SyncState = models.SyncSynced
	if err := s.cache.Put(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *EventStore) GetEvent(ctx context.Context, userID, eventID string) (*models.Event, error) {
	event, err := s.cache.Get(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		event, err = s.remote.GetByID(ctx, eventID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
	}
	if err != nil {
		return nil, err
	}
	if event.UserID != userID {
		return nil, ErrEventNotFound
	}
	return event, nil
}

// readRange reads [from, to) from the remote store with retries, refreshing
// the cache on success. When the remote stays unreachable it degrades to
// the cached view, flagging previously synced copies as conflict since they
// may be stale.
func (s *EventStore) readRange(ctx context.Context, userID string, from, to time.Time) ([]models.Event, error) {
	var remoteEvents []models.Event
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		evs, rerr := s.remote.GetByUserIDAndDateRange(ctx, userID, from, to)
		if rerr != nil {
			return retry.Transient(rerr)
		}
		remoteEvents = evs
		return nil
	})
	if err != nil {
		s.log.Warn("remote read failed, serving local view",
			logger.String("user_id", userID),
			logger.Err(err),
		)
		local, lerr := s.cache.ListByUserAndRange(ctx, userID, from, to)
		if lerr != nil {
			return nil, fmt.Errorf("%w: local fallback failed: %s", ErrRemoteUnavailable, lerr)
		}
		for i := range local {
			if local[i].SyncState == models.SyncSynced {
				local[i].SyncState = models.SyncConflict
			}
		}
		return local, nil
	}

	local, err := s.cache.ListBySyncState(ctx, userID, models.SyncPending)
	if err != nil {
		return nil, err
	}

	merged := Merge(remoteEvents, local)
	for i := range merged {
		// The remote row never carries the reward bookkeeping flag; a
		// refresh must not wipe it off the cached copy.
		if !merged[i].RewardPending {
			if cached, cerr := s.cache.Get(ctx, merged[i].ID); cerr == nil && cached.RewardPending {
				merged[i].RewardPending = true
			}
		}
		if err := s.cache.Put(ctx, &merged[i]); err != nil {
			return nil, err
		}
	}

	var inRange []models.Event
	for _, ev := range merged {
		if ev.StartTime.Before(from) || !ev.StartTime.Before(to) {
			continue
		}
		inRange = append(inRange, ev)
	}
	return inRange, nil
}

func (s *EventStore) GetNextEvent(ctx context.Context, userID string, now time.Time) (*models.Event, error) {
	events, err := s.readRange(ctx, userID, now.UTC(), now.UTC().Add(eventHorizon))
	if err != nil {
		return nil, err
	}
	for i := range events {
		switch events[i].Status {
		case models.StatusCompleted, models.StatusMissed:
			continue
		}
		return &events[i], nil
	}
	return nil, nil
}

func (s *EventStore) GetTodayEvents(ctx context.Context, userID string, now time.Time) ([]models.Event, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)
	return s.readRange(ctx, userID, dayStart, dayStart.Add(24*time.Hour))
}

func (s *EventStore) UpdateEvent(ctx context.Context, userID, eventID string, req *models.UpdateEventRequest) (*models.Event, error) {
	event, err := s.GetEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if req.Title != nil {
		event.Title = *req.Title
		fields["title"] = *req.Title
	}
	if req.Description != nil {
		event.Description = *req.Description
		fields["description"] = *req.Description
	}
	if req.Location != nil {
		event.Location = req.Location
		fields["location"] = *req.Location
	}
	if req.Latitude != nil {
		event.Latitude = req.Latitude
		fields["latitude"] = *req.Latitude
	}
	if req.Longitude != nil {
		event.Longitude = req.Longitude
		fields["longitude"] = *req.Longitude
	}
	if req.StartTime != nil {
		event.StartTime = req.StartTime.UTC()
		fields["start_time"] = event.StartTime.Format(time.RFC3339)
	}
	if req.EndTime != nil {
		event.EndTime = req.EndTime.UTC()
		fields["end_time"] = event.EndTime.Format(time.RFC3339)
	}

	travelChanged := false
	if req.TravelTimeMinutes.Set {
		travelChanged = true
		if req.TravelTimeMinutes.Valid {
			v := req.TravelTimeMinutes.Value
			event.TravelTimeMinutes = &v
			event.TravelTimeIsFallback = false
			fields["travel_time_minutes"] = v
			fields["travel_time_is_fallback"] = false
		} else {
			// Explicit null clears the override back to an estimate.
			dest := ""
			if event.Location != nil {
				dest = *event.Location
			}
			est := s.travelTime.Estimate(ctx, "", dest, event.StartTime)
			event.TravelTimeMinutes = &est.Minutes
			event.TravelTimeIsFallback = est.Fallback
			fields["travel_time_minutes"] = est.Minutes
			fields["travel_time_is_fallback"] = est.Fallback
		}
	}

	if travelChanged || req.StartTime != nil {
		// The departure deadline moved; stale reminder intents must go
		// before replanning.
		s.notify.CancelAll(event.ID)
		s.notify.PlanReminders(event, s.prefs, time.Now().UTC())
	}

	event.UpdatedAt = time.Now().UTC()
	if err := s.cache.Put(ctx, event); err != nil {
		return nil, err
	}

	if len(fields) > 0 && event.SyncState != models.SyncPending {
		err = retry.Do(ctx, s.policy, func(ctx context.Context) error {
			_, rerr := s.remote.Update(ctx, eventID, fields)
			if rerr != nil {
				return retry.Transient(rerr)
			}
			return nil
		})
		if err != nil {
			s.log.Warn("remote update failed, marking pending",
				logger.String("event_id", eventID),
				logger.Err(err),
			)
			event.SyncState = models.SyncPending
			if cerr := s.cache.Put(ctx, event); cerr != nil {
				return nil, cerr
			}
		}
	}

	return event, nil
}

func (s *EventStore) DeleteEvent(ctx context.Context, userID, eventID string) error {
	event, err := s.GetEvent(ctx, userID, eventID)
	if err != nil {
		return err
	}

	// Lock session and reminder intents go first; the event must never
	// vanish underneath an armed lock.
	if s.locks != nil {
		if err := s.locks.Cancel(ctx, userID, eventID, time.Now().UTC()); err != nil && !errors.Is(err, ErrLockNotArmed) {
			return err
		}
	}
	s.notify.CancelAll(eventID)

	if event.SyncState != models.SyncPending {
		err = retry.Do(ctx, s.policy, func(ctx context.Context) error {
			if rerr := s.remote.Delete(ctx, eventID); rerr != nil {
				return retry.Transient(rerr)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return s.cache.Delete(ctx, eventID)
}

// SyncExternal ingests normalized external calendar entries. Keyed by
// external id; re-running with identical data writes nothing. All-day
// entries carry no concrete start time and are skipped.
func (s *EventStore) SyncExternal(ctx context.Context, userID string, externals []calendar.ExternalEvent) (*models.SyncResult, error) {
	result := &models.SyncResult{}

	for _, ext := range externals {
		if ext.AllDay {
			result.Skipped++
			continue
		}

		existing, err := s.remote.GetByExternalID(ctx, userID, ext.ExternalID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return result, err
		}

		if existing == nil {
			extID := ext.ExternalID
			loc := ext.Location
			event := &models.Event{
				ID:          uuid.NewString(),
				UserID:      userID,
				Source:      models.SourceRemote,
				ExternalID:  &extID,
				Title:       ext.Title,
				Description: ext.Description,
				StartTime:   ext.StartTime.UTC(),
				EndTime:     ext.EndTime.UTC(),
				Timezone:    ext.Timezone,
				Status:      models.StatusUpcoming,
				SyncState:   models.SyncSynced,
			}
			if loc != "" {
				event.Location = &loc
			}
			created, err := s.remote.Create(ctx, event)
			if err != nil {
				return result, err
			}
			if err := s.cache.Put(ctx, created); err != nil {
				return result, err
			}
			result.Created++
			continue
		}

		fields := externalDiff(existing, ext)
		if len(fields) == 0 {
			result.Skipped++
			continue
		}

		updated, err := s.remote.Update(ctx, existing.ID, fields)
		if err != nil {
			return result, err
		}
		if err := s.cache.Put(ctx, updated); err != nil {
			return result, err
		}
		result.Updated++
	}

	return result, nil
}

// externalDiff returns the remote fields the external copy changes.
// Completion fields are never touched by sync.
func externalDiff(existing *models.Event, ext calendar.ExternalEvent) map[string]interface{} {
	fields := make(map[string]interface{})
	if existing.Title != ext.Title {
		fields["title"] = ext.Title
	}
	if existing.Description != ext.Description {
		fields["description"] = ext.Description
	}
	existingLoc := ""
	if existing.Location != nil {
		existingLoc = *existing.Location
	}
	if existingLoc != ext.Location {
		fields["location"] = ext.Location
	}
	if !existing.StartTime.Equal(ext.StartTime) {
		fields["start_time"] = ext.StartTime.UTC().Format(time.RFC3339)
	}
	if !existing.EndTime.Equal(ext.EndTime) {
		fields["end_time"] = ext.EndTime.UTC().Format(time.RFC3339)
	}
	return fields
}

// FlushPending reconciles pending local copies with the remote store:
// existing rows are updated in place, unknown ones created. Each confirmed
// write marks the local copy synced. Returns the number flushed.
func (s *EventStore) FlushPending(ctx context.Context, userID string) (int, error) {
	pending, err := s.cache.ListBySyncState(ctx, userID, models.SyncPending)
	if err != nil {
		return 0, err
	}

	flushed := 0
	for i := range pending {
		event := &pending[i]
		err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
			if rerr := s.pushRemote(ctx, event); rerr != nil {
				return retry.Transient(rerr)
			}
			return nil
		})
		if err != nil {
			s.log.Warn("flush failed, event stays pending",
				logger.String("event_id", event.ID),
				logger.Err(err),
			)
			continue
		}
		remoteID := event.ID
		if event.RemoteID != nil {
			remoteID = *event.RemoteID
		}
		if err := s.markSynced(ctx, event.ID, remoteID); err != nil {
			return flushed, err
		}
		flushed++
	}
	return flushed, nil
}

// pushRemote writes one local copy to the remote store, updating the row
// when it exists and creating it otherwise. A pending copy may hold a
// failed status or completion write for a row that already exists, so
// create alone would either duplicate or drop those fields.
func (s *EventStore) pushRemote(ctx context.Context, event *models.Event) error {
	remoteID := event.ID
	if event.RemoteID != nil {
		remoteID = *event.RemoteID
	}
	_, err := s.remote.Update(ctx, remoteID, remoteFields(event))
	if errors.Is(err, repository.ErrNotFound) {
		_, err = s.remote.Create(ctx, event)
	}
	return err
}

// remoteFields is the full set of syncable fields for a reconciling write.
// Local bookkeeping (sync state, reward flag) stays out.
func remoteFields(event *models.Event) map[string]interface{} {
	fields := map[string]interface{}{
		"title":       event.Title,
		"description": event.Description,
		"start_time":  event.StartTime.UTC().Format(time.RFC3339),
		"end_time":    event.EndTime.UTC().Format(time.RFC3339),
		"status":      event.Status,
	}
	if event.Location != nil {
		fields["location"] = *event.Location
	}
	if event.Latitude != nil {
		fields["latitude"] = *event.Latitude
	}
	if event.Longitude != nil {
		fields["longitude"] = *event.Longitude
	}
	if event.TravelTimeMinutes != nil {
		fields["travel_time_minutes"] = *event.TravelTimeMinutes
		fields["travel_time_is_fallback"] = event.TravelTimeIsFallback
	}
	if event.ArrivedOnTime != nil {
		fields["arrived_on_time"] = *event.ArrivedOnTime
	}
	if event.CompletedAt != nil {
		fields["completed_at"] = event.CompletedAt.UTC().Format(time.RFC3339)
	}
	return fields
}

// markSynced links a local-only event to its confirmed remote copy. It
// only updates source, remote id, and sync state; history is kept.
func (s *EventStore) markSynced(ctx context.Context, localEventID, remoteID string) error {
	event, err := s.cache.Get(ctx, localEventID)
	if err != nil {
		return err
	}
	event.Source = models.SourceRemote
	event.RemoteID = &remoteID
	event.SyncState = models.SyncSynced
	return s.cache.Put(ctx, event)
}

func (s *EventStore) UpdateEventStatus(ctx context.Context, eventID string, status models.EventStatus) (*models.Event, error) {
	event, err := s.cache.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	event.Status = status
	event.UpdatedAt = time.Now().UTC()
	if err := s.cache.Put(ctx, event); err != nil {
		return nil, err
	}

	if event.SyncState != models.SyncPending {
		err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
			_, rerr := s.remote.Update(ctx, eventID, map[string]interface{}{"status": status})
			if rerr != nil {
				return retry.Transient(rerr)
			}
			return nil
		})
		if err != nil {
			// Keep the copy in the pending queue or the next refresh
			// would serve the stale remote status.
			s.log.Warn("remote status write failed, marking pending",
				logger.String("event_id", eventID),
				logger.Err(err),
			)
			event.SyncState = models.SyncPending
			if cerr := s.cache.Put(ctx, event); cerr != nil {
				return nil, cerr
			}
		}
	}
	return event, nil
}

// SetCompletion records the completion fields exactly once. The boolean
// reports whether this call performed the transition; a second call for
// the same event is a no-op returning false.
func (s *EventStore) SetCompletion(ctx context.Context, eventID string, arrivedOnTime bool, completedAt time.Time) (*models.Event, bool, error) {
	event, err := s.cache.Get(ctx, eventID)
	if err != nil {
		return nil, false, err
	}
	if event.CompletedAt != nil {
		return event, false, nil
	}

	completedAt = completedAt.UTC()
	event.Status = models.StatusCompleted
	event.ArrivedOnTime = &arrivedOnTime
	event.CompletedAt = &completedAt
	event.UpdatedAt = completedAt
	event.RewardPending = true
	if err := s.cache.Put(ctx, event); err != nil {
		return nil, false, err
	}

	if event.SyncState != models.SyncPending {
		err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
			_, rerr := s.remote.Update(ctx, eventID, map[string]interface{}{
				"status":          models.StatusCompleted,
				"arrived_on_time": arrivedOnTime,
				"completed_at":    completedAt.Format(time.RFC3339),
			})
			if rerr != nil {
				return retry.Transient(rerr)
			}
			return nil
		})
		if err != nil {
			// The completion lives only in the cache until FlushPending
			// reconciles; pending keeps the merge from reviving the stale
			// uncompleted remote row.
			s.log.Warn("remote completion write failed, marking pending",
				logger.String("event_id", eventID),
				logger.Err(err),
			)
			event.SyncState = models.SyncPending
			if cerr := s.cache.Put(ctx, event); cerr != nil {
				return nil, false, cerr
			}
		}
	}
	return event, true, nil
}

// SetRewardApplied clears the reward bookkeeping flag once the stats write
// for the completion has landed.
func (s *EventStore) SetRewardApplied(ctx context.Context, eventID string) error {
	event, err := s.cache.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if !event.RewardPending {
		return nil
	}
	event.RewardPending = false
	return s.cache.Put(ctx, event)
}

// Merge produces one deduplicated, start-ordered view from the remote
// collection and the local pending queue. Copies are matched by remote id
// (falling back to the shared event id); on a match the remote copy wins
// every field except status, arrivedOnTime, and completedAt, which come
// from whichever copy completed more recently. A matched pending copy
// keeps its pending sync state and reward flag so FlushPending and the
// reward engine can still reconcile it.
func Merge(remoteEvents, localEvents []models.Event) []models.Event {
	byRemoteID := make(map[string]int, len(remoteEvents))
	merged := make([]models.Event, len(remoteEvents))
	copy(merged, remoteEvents)
	for i := range merged {
		byRemoteID[merged[i].ID] = i
		if merged[i].RemoteID != nil {
			byRemoteID[*merged[i].RemoteID] = i
		}
	}

	for _, local := range localEvents {
		key := local.ID
		if local.RemoteID != nil {
			key = *local.RemoteID
		}
		idx, ok := byRemoteID[key]
		if !ok {
			merged = append(merged, local)
			continue
		}
		if completedAfter(&local, &merged[idx]) {
			merged[idx].Status = local.Status
			merged[idx].ArrivedOnTime = local.ArrivedOnTime
			merged[idx].CompletedAt = local.CompletedAt
		}
		if local.SyncState == models.SyncPending {
			merged[idx].SyncState = models.SyncPending
		}
		if local.RewardPending {
			merged[idx].RewardPending = true
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].StartTime.Before(merged[j].StartTime)
	})
	return merged
}

// completedAfter reports whether a completed more recently than b.
func completedAfter(a, b *models.Event) bool {
	if a.CompletedAt == nil {
		return false
	}
	if b.CompletedAt == nil {
		return true
	}
	return a.CompletedAt.After(*b.CompletedAt)
}
