package service

import (
	"context"
	"testing"
	"time"

	"github.com/ontime-app/backend/internal/calendar"
	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/internal/retry"
)

type storeFixture struct {
	store  *EventStore
	remote *mockEventRepository
	cache  *mockEventCache
	sink   *recordingSink
	notify NotificationScheduler
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	remote := newMockEventRepository()
	cache := newMockEventCache()
	sink := &recordingSink{}
	notify := NewNotificationScheduler(sink)
	travel := NewTravelTimeService(nil, 0, testLogger())

	store := NewEventStoreService(remote, cache, travel, notify, models.DefaultReminderPreferences(), testLogger())
	store.policy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Factor: 2}

	return &storeFixture{store: store, remote: remote, cache: cache, sink: sink, notify: notify}
}

func externalFixture(id string, start time.Time) calendar.ExternalEvent {
	return calendar.ExternalEvent{
		ExternalID: id,
		Title:      "Imported " + id,
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
	}
}

func TestSyncExternalIdempotent(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	externals := []calendar.ExternalEvent{
		externalFixture("ext-1", start),
		externalFixture("ext-2", start.Add(2*time.Hour)),
	}

	first, err := f.store.SyncExternal(ctx, "user-1", externals)
	if err != nil {
		t.Fatalf("SyncExternal: %v", err)
	}
	if first.Created != 2 || first.Updated != 0 {
		t.Errorf("first pass: expected created=2 updated=0, got %+v", first)
	}

	second, err := f.store.SyncExternal(ctx, "user-1", externals)
	if err != nil {
		t.Fatalf("SyncExternal rerun: %v", err)
	}
	if second.Created != 0 || second.Updated != 0 {
		t.Errorf("identical rerun: expected created=0 updated=0, got %+v", second)
	}
	if f.remote.createCalls != 2 {
		t.Errorf("expected 2 remote creates total, got %d", f.remote.createCalls)
	}
}

func TestSyncExternalSkipsAllDay(t *testing.T) {
	f := newStoreFixture(t)

	allDay := calendar.ExternalEvent{ExternalID: "ext-holiday", Title: "Holiday", AllDay: true}
	result, err := f.store.SyncExternal(context.Background(), "user-1", []calendar.ExternalEvent{allDay})
	if err != nil {
		t.Fatalf("SyncExternal: %v", err)
	}
	if result.Created != 0 || result.Skipped != 1 {
		t.Errorf("expected all-day event skipped, got %+v", result)
	}
}

func TestSyncExternalUpdatePreservesCompletion(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	if _, err := f.store.SyncExternal(ctx, "user-1", []calendar.ExternalEvent{externalFixture("ext-1", start)}); err != nil {
		t.Fatalf("SyncExternal: %v", err)
	}

	// Complete the event, then sync a title change from the calendar.
	existing, err := f.remote.GetByExternalID(ctx, "user-1", "ext-1")
	if err != nil {
		t.Fatalf("GetByExternalID: %v", err)
	}
	if err := f.cache.Put(ctx, existing); err != nil {
		t.Fatalf("cache put: %v", err)
	}
	completedAt := start.Add(-5 * time.Minute)
	if _, _, err := f.store.SetCompletion(ctx, existing.ID, true, completedAt); err != nil {
		t.Fatalf("SetCompletion: %v", err)
	}

	changed := externalFixture("ext-1", start)
	changed.Title = "Renamed upstream"
	result, err := f.store.SyncExternal(ctx, "user-1", []calendar.ExternalEvent{changed})
	if err != nil {
		t.Fatalf("SyncExternal update: %v", err)
	}
	if result.Updated != 1 {
		t.Fatalf("expected updated=1, got %+v", result)
	}

	after, err := f.remote.GetByID(ctx, existing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after.Title != "Renamed upstream" {
		t.Errorf("remote field should win, got title %q", after.Title)
	}
	if after.Status != models.StatusCompleted || after.ArrivedOnTime == nil || !*after.ArrivedOnTime {
		t.Errorf("completion fields must survive sync, got status=%q arrived=%v", after.Status, after.ArrivedOnTime)
	}
}

func TestMergeRemoteWinsExceptCompletion(t *testing.T) {
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	remoteID := "evt-remote"
	localDone := start.Add(-2 * time.Minute)
	onTime := true

	remote := []models.Event{{
		ID:        remoteID,
		UserID:    "user-1",
		Source:    models.SourceRemote,
		Title:     "Remote title",
		StartTime: start,
		Status:    models.StatusUpcoming,
	}}
	local := []models.Event{{
		ID:            "evt-local",
		RemoteID:      &remoteID,
		UserID:        "user-1",
		Source:        models.SourceLocal,
		Title:         "Stale local title",
		StartTime:     start,
		Status:        models.StatusCompleted,
		ArrivedOnTime: &onTime,
		CompletedAt:   &localDone,
	}}

	merged := Merge(remote, local)
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged event, got %d", len(merged))
	}
	got := merged[0]
	if got.Title != "Remote title" {
		t.Errorf("remote wins ordinary fields, got title %q", got.Title)
	}
	if got.Status != models.StatusCompleted || got.CompletedAt == nil || !got.CompletedAt.Equal(localDone) {
		t.Errorf("completion fields come from the more recently completed copy, got %+v", got)
	}
}

func TestMergeKeepsUnlinkedLocalEvents(t *testing.T) {
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	remote := []models.Event{{ID: "evt-r", UserID: "user-1", StartTime: start.Add(time.Hour)}}
	local := []models.Event{{ID: "evt-l", UserID: "user-1", StartTime: start, SyncState: models.SyncPending}}

	merged := Merge(remote, local)
	if len(merged) != 2 {
		t.Fatalf("expected 2 events, got %d", len(merged))
	}
	if merged[0].ID != "evt-l" {
		t.Errorf("expected start-time order with local first, got %q", merged[0].ID)
	}
}

func TestCreateEventOfflineThenFlush(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	f.remote.unreachable = true

	req := &models.CreateEventRequest{
		Title:     "Dentist",
		StartTime: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	event, err := f.store.CreateEvent(ctx, "user-1", req)
	if err != nil {
		t.Fatalf("CreateEvent offline: %v", err)
	}
	if event.SyncState != models.SyncPending {
		t.Fatalf("offline create must stay pending, got %q", event.SyncState)
	}

	f.remote.unreachable = false
	flushed, err := f.store.FlushPending(ctx, "user-1")
	if err != nil {
		t.Fatalf("FlushPending: %v", err)
	}
	if flushed != 1 {
		t.Fatalf("expected 1 flushed event, got %d", flushed)
	}

	cached, err := f.cache.Get(ctx, event.ID)
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	if cached.SyncState != models.SyncSynced || cached.Source != models.SourceRemote {
		t.Errorf("flushed event should be linked, got sync=%q source=%q", cached.SyncState, cached.Source)
	}
	if _, err := f.remote.GetByID(ctx, event.ID); err != nil {
		t.Errorf("flushed event missing remotely: %v", err)
	}
}

func TestReadFallsBackToLocalViewOnOutage(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	cached := &models.Event{
		ID:        "evt-1",
		UserID:    "user-1",
		Title:     "Cached",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    models.StatusUpcoming,
		SyncState: models.SyncSynced,
	}
	if err := f.cache.Put(ctx, cached); err != nil {
		t.Fatalf("cache put: %v", err)
	}

	f.remote.unreachable = true
	events, err := f.store.GetTodayEvents(ctx, "user-1", start)
	if err != nil {
		t.Fatalf("GetTodayEvents during outage: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected local view with 1 event, got %d", len(events))
	}
	if events[0].SyncState != models.SyncConflict {
		t.Errorf("stale synced copy must be flagged conflict, got %q", events[0].SyncState)
	}
}

func TestGetNextEventSkipsFinished(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	done := now.Add(30 * time.Minute)
	for _, ev := range []*models.Event{
		{ID: "evt-done", UserID: "user-1", StartTime: now.Add(time.Hour), Status: models.StatusCompleted, CompletedAt: &done},
		{ID: "evt-missed", UserID: "user-1", StartTime: now.Add(2 * time.Hour), Status: models.StatusMissed},
		{ID: "evt-up", UserID: "user-1", StartTime: now.Add(3 * time.Hour), Status: models.StatusUpcoming},
	} {
		if _, err := f.remote.Create(ctx, ev); err != nil {
			t.Fatalf("seed remote: %v", err)
		}
	}

	next, err := f.store.GetNextEvent(ctx, "user-1", now)
	if err != nil {
		t.Fatalf("GetNextEvent: %v", err)
	}
	if next == nil || next.ID != "evt-up" {
		t.Fatalf("expected evt-up, got %+v", next)
	}
}

type recordingCanceller struct {
	cancelled []string
}

func (r *recordingCanceller) Cancel(ctx context.Context, userID, eventID string, now time.Time) error {
	r.cancelled = append(r.cancelled, eventID)
	return nil
}

func TestDeleteEventCancelsLockAndReminders(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	canceller := &recordingCanceller{}
	f.store.BindLockService(canceller)

	start := time.Now().UTC().Add(2 * time.Hour)
	event, err := f.store.CreateEvent(ctx, "user-1", &models.CreateEventRequest{Title: "Gym", StartTime: start})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	f.notify.PlanReminders(event, models.DefaultReminderPreferences(), time.Now().UTC())
	if len(f.notify.Pending(event.ID)) == 0 {
		t.Fatal("expected planned reminders before delete")
	}

	if err := f.store.DeleteEvent(ctx, "user-1", event.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}

	if len(canceller.cancelled) != 1 || canceller.cancelled[0] != event.ID {
		t.Errorf("lock session must be cancelled first, got %v", canceller.cancelled)
	}
	if len(f.notify.Pending(event.ID)) != 0 {
		t.Error("reminder intents must be cancelled on delete")
	}
	if _, err := f.cache.Get(ctx, event.ID); err == nil {
		t.Error("event should be gone from the cache")
	}
}

func TestSetCompletionExactlyOnce(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	event := &models.Event{ID: "evt-1", UserID: "user-1", StartTime: start, Status: models.StatusLocked, SyncState: models.SyncSynced}
	if err := f.cache.Put(ctx, event); err != nil {
		t.Fatalf("cache put: %v", err)
	}
	if _, err := f.remote.Create(ctx, event); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	_, performed, err := f.store.SetCompletion(ctx, "evt-1", true, start.Add(-time.Minute))
	if err != nil {
		t.Fatalf("SetCompletion: %v", err)
	}
	if !performed {
		t.Fatal("first completion must perform the transition")
	}

	_, performed, err = f.store.SetCompletion(ctx, "evt-1", false, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("SetCompletion repeat: %v", err)
	}
	if performed {
		t.Fatal("second completion must be a no-op")
	}

	got, err := f.cache.Get(ctx, "evt-1")
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	if got.ArrivedOnTime == nil || !*got.ArrivedOnTime {
		t.Error("first completion's fields must stand")
	}
}

func TestCompletionSurvivesRemoteOutage(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	event := &models.Event{
		ID: "evt-1", UserID: "user-1", Title: "Standup",
		StartTime: start, EndTime: start.Add(time.Hour),
		Status: models.StatusLocked, SyncState: models.SyncSynced,
	}
	if err := f.cache.Put(ctx, event); err != nil {
		t.Fatalf("cache put: %v", err)
	}
	if _, err := f.remote.Create(ctx, event); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	// The remote write of the completion fails; the stale remote row keeps
	// saying upcoming.
	f.remote.unreachable = true
	_, performed, err := f.store.SetCompletion(ctx, "evt-1", true, start.Add(-time.Minute))
	if err != nil {
		t.Fatalf("SetCompletion during outage: %v", err)
	}
	if !performed {
		t.Fatal("first completion must perform the transition")
	}

	cached, err := f.cache.Get(ctx, "evt-1")
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	if cached.SyncState != models.SyncPending {
		t.Fatalf("failed completion write must queue the copy, got %q", cached.SyncState)
	}

	// Remote back up: the merge must not revive the stale uncompleted row.
	f.remote.unreachable = false
	events, err := f.store.GetTodayEvents(ctx, "user-1", start)
	if err != nil {
		t.Fatalf("GetTodayEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Status != models.StatusCompleted || events[0].CompletedAt == nil {
		t.Fatalf("completion fields must survive the merge, got %+v", events[0])
	}

	// A retried completion stays a no-op after the refresh.
	_, performed, err = f.store.SetCompletion(ctx, "evt-1", false, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("SetCompletion repeat: %v", err)
	}
	if performed {
		t.Fatal("completion must not perform twice after an outage")
	}

	// Flush reconciles the existing remote row in place.
	if _, err := f.store.FlushPending(ctx, "user-1"); err != nil {
		t.Fatalf("FlushPending: %v", err)
	}
	remoteCopy, err := f.remote.GetByID(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if remoteCopy.Status != models.StatusCompleted || remoteCopy.CompletedAt == nil {
		t.Errorf("flush must push the completion, got status=%q", remoteCopy.Status)
	}
	if f.remote.createCalls != 1 {
		t.Errorf("flush must update the existing row, not recreate it, got %d creates", f.remote.createCalls)
	}
}

func TestStatusWriteFailureMarksPending(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	event := &models.Event{
		ID: "evt-1", UserID: "user-1", StartTime: start, EndTime: start.Add(time.Hour),
		Status: models.StatusUpcoming, SyncState: models.SyncSynced,
	}
	if err := f.cache.Put(ctx, event); err != nil {
		t.Fatalf("cache put: %v", err)
	}
	if _, err := f.remote.Create(ctx, event); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	f.remote.unreachable = true
	updated, err := f.store.UpdateEventStatus(ctx, "evt-1", models.StatusDepartureDue)
	if err != nil {
		t.Fatalf("UpdateEventStatus during outage: %v", err)
	}
	if updated.SyncState != models.SyncPending {
		t.Errorf("failed status write must queue the copy, got %q", updated.SyncState)
	}
}

func TestUpdateEventClearTravelOverrideReplansReminders(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	override := 40
	start := time.Now().UTC().Add(3 * time.Hour)
	loc := "12 High Street"
	event := &models.Event{
		ID: "evt-1", UserID: "user-1", Title: "Dentist", Location: &loc,
		StartTime: start, EndTime: start.Add(time.Hour),
		TravelTimeMinutes: &override, Status: models.StatusUpcoming, SyncState: models.SyncSynced,
	}
	if err := f.cache.Put(ctx, event); err != nil {
		t.Fatalf("cache put: %v", err)
	}
	if _, err := f.remote.Create(ctx, event); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	var req models.UpdateEventRequest
	req.TravelTimeMinutes.Set = true // explicit null: Set without Valid

	updated, err := f.store.UpdateEvent(ctx, "user-1", "evt-1", &req)
	if err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	if updated.TravelTimeMinutes == nil || *updated.TravelTimeMinutes != 15 {
		t.Errorf("cleared override must fall back to the default estimate, got %v", updated.TravelTimeMinutes)
	}
	if !updated.TravelTimeIsFallback {
		t.Error("fallback estimate must be marked as such")
	}
	if len(f.notify.Pending("evt-1")) == 0 {
		t.Error("reminders must be replanned after travel change")
	}
}
