package service

import (
	"testing"
	"time"

	"github.com/ontime-app/backend/internal/models"
)

func reminderEvent(travelMinutes int) *models.Event {
	tm := travelMinutes
	return &models.Event{
		ID:                "evt-1",
		UserID:            "user-1",
		Title:             "Dentist",
		StartTime:         time.Date(2026, 4, 1, 15, 0, 0, 0, time.UTC),
		TravelTimeMinutes: &tm,
	}
}

func TestPlanRemindersSlots(t *testing.T) {
	sink := &recordingSink{}
	sched := NewNotificationScheduler(sink)

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	event := reminderEvent(20) // departure deadline 14:40

	intents := sched.PlanReminders(event, models.DefaultReminderPreferences(), now)
	if len(intents) != 3 {
		t.Fatalf("expected leave + 2 offsets, got %d", len(intents))
	}

	// Ordered by fire time: offset-30 (14:10), offset-15 (14:25), leave (14:40).
	wantIDs := []string{"evt-1:offset-30", "evt-1:offset-15", "evt-1:leave"}
	wantFire := []time.Time{
		time.Date(2026, 4, 1, 14, 10, 0, 0, time.UTC),
		time.Date(2026, 4, 1, 14, 25, 0, 0, time.UTC),
		time.Date(2026, 4, 1, 14, 40, 0, 0, time.UTC),
	}
	for i, intent := range intents {
		if intent.ID != wantIDs[i] {
			t.Errorf("intent %d: expected id %q, got %q", i, wantIDs[i], intent.ID)
		}
		if !intent.FireAt.Equal(wantFire[i]) {
			t.Errorf("intent %d: expected fire %v, got %v", i, wantFire[i], intent.FireAt)
		}
	}
	if intents[2].Channel != ChannelTimeToLeave {
		t.Errorf("leave intent channel: got %q", intents[2].Channel)
	}
	if intents[0].Channel != ChannelReminders {
		t.Errorf("offset intent channel: got %q", intents[0].Channel)
	}
	if len(sink.scheduled) != 3 {
		t.Errorf("expected 3 scheduled intents at the sink, got %d", len(sink.scheduled))
	}
}

func TestPlanRemindersOmitsPastSlots(t *testing.T) {
	sched := NewNotificationScheduler(nil)

	// 14:30: offset-30 (14:10) and offset-15 (14:25) already passed.
	now := time.Date(2026, 4, 1, 14, 30, 0, 0, time.UTC)
	intents := sched.PlanReminders(reminderEvent(20), models.DefaultReminderPreferences(), now)

	if len(intents) != 1 {
		t.Fatalf("expected only the leave intent, got %d", len(intents))
	}
	if intents[0].Slot != "leave" {
		t.Errorf("expected leave slot, got %q", intents[0].Slot)
	}
}

func TestReplanReplacesNotDuplicates(t *testing.T) {
	sink := &recordingSink{}
	sched := NewNotificationScheduler(sink)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	first := sched.PlanReminders(reminderEvent(20), models.DefaultReminderPreferences(), now)
	// Travel time recalculated: deadline moves from 14:40 to 14:30.
	second := sched.PlanReminders(reminderEvent(30), models.DefaultReminderPreferences(), now)

	if len(sched.Pending("evt-1")) != 3 {
		t.Fatalf("replan must replace, got %d pending", len(sched.Pending("evt-1")))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("slot ids must be stable across replans: %q vs %q", first[i].ID, second[i].ID)
		}
	}
	if !second[2].FireAt.Equal(time.Date(2026, 4, 1, 14, 30, 0, 0, time.UTC)) {
		t.Errorf("leave intent must move with the deadline, got %v", second[2].FireAt)
	}
	// Old intents were cancelled at the sink before rescheduling.
	if len(sink.cancelled) != 3 {
		t.Errorf("expected 3 cancellations on replan, got %d", len(sink.cancelled))
	}
}

func TestCancelAllRemovesEveryIntent(t *testing.T) {
	sink := &recordingSink{}
	sched := NewNotificationScheduler(sink)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	sched.PlanReminders(reminderEvent(20), models.DefaultReminderPreferences(), now)
	sched.CancelAll("evt-1")

	if len(sched.Pending("evt-1")) != 0 {
		t.Error("expected no pending intents after CancelAll")
	}
	if len(sink.cancelled) != 3 {
		t.Errorf("expected 3 sink cancellations, got %d", len(sink.cancelled))
	}
}

func TestDefaultTravelTimeDrivesDeadline(t *testing.T) {
	sched := NewNotificationScheduler(nil)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	event := reminderEvent(0)
	event.TravelTimeMinutes = nil // unset: default 15 applies

	intents := sched.PlanReminders(event, models.DefaultReminderPreferences(), now)
	var leave *models.ReminderIntent
	for i := range intents {
		if intents[i].Slot == "leave" {
			leave = &intents[i]
		}
	}
	if leave == nil {
		t.Fatal("missing leave intent")
	}
	if !leave.FireAt.Equal(time.Date(2026, 4, 1, 14, 45, 0, 0, time.UTC)) {
		t.Errorf("default travel time is 15 minutes, got fire %v", leave.FireAt)
	}
}

func TestAnnouncementIntents(t *testing.T) {
	sink := &recordingSink{}
	sched := NewNotificationScheduler(sink)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	rule := models.AchievementRule{ID: "first_event", Title: "First Steps", Description: "d", XPReward: 50}
	achievement := sched.AnnounceAchievements("user-1", []models.AchievementRule{rule}, now)
	if len(achievement) != 1 || achievement[0].Channel != ChannelAchievements {
		t.Fatalf("unexpected achievement intents: %+v", achievement)
	}

	levelUp := sched.AnnounceLevelUp("user-1", 2, now)
	if len(levelUp) != 1 || levelUp[0].ID != "levelup:user-1:2" {
		t.Fatalf("unexpected level-up intent: %+v", levelUp)
	}

	streak := sched.AnnounceStreak("user-1", 7, now)
	if len(streak) != 1 || streak[0].ID != "streak:user-1:7" {
		t.Fatalf("unexpected streak intent: %+v", streak)
	}

	if len(sink.scheduled) != 3 {
		t.Errorf("expected 3 immediate intents at the sink, got %d", len(sink.scheduled))
	}
}
