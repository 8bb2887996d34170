package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ontime-app/backend/internal/logger"
	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/internal/timemath"
)

// Notification channels, matching what the delivery collaborator exposes.
const (
	ChannelTimeToLeave  = "time-to-leave"
	ChannelReminders    = "reminders"
	ChannelAchievements = "achievements"
)

// Sink receives planned and cancelled intents. The external delivery
// collaborator implements this; tests use a recording fake.
type Sink interface {
	Schedule(intent models.ReminderIntent)
	CancelByID(id string)
}

// LogSink records every scheduled and cancelled intent in the structured
// log. It stands in until a push delivery collaborator is attached.
type LogSink struct {
	Log logger.Logger
}

func (s *LogSink) Schedule(intent models.ReminderIntent) {
	s.Log.Debug("reminder scheduled",
		logger.String("intent_id", intent.ID),
		logger.String("channel", intent.Channel),
		logger.Time("fire_at", intent.FireAt),
	)
}

func (s *LogSink) CancelByID(id string) {
	s.Log.Debug("reminder cancelled", logger.String("intent_id", id))
}

type notificationScheduler struct {
	sink Sink

	mu      sync.Mutex
	planned map[string][]models.ReminderIntent // eventID -> intents
}

// NewNotificationScheduler creates the reminder planner. sink may be nil
// when no delivery collaborator is attached (tests, dry runs).
func NewNotificationScheduler(sink Sink) NotificationScheduler {
	return &notificationScheduler{
		sink:    sink,
		planned: make(map[string][]models.ReminderIntent),
	}
}

// intentID is stable per (event, slot) so replanning replaces prior
// intents instead of duplicating them.
func intentID(eventID, slot string) string {
	return eventID + ":" + slot
}

// PlanReminders computes the reminder intents for one event: a leave
// intent at the departure deadline plus one per preference offset before
// it. Intents whose fire time is already past are omitted, never
// scheduled-then-fired. Replanning replaces the event's prior intents.
func (s *notificationScheduler) PlanReminders(event *models.Event, prefs models.ReminderPreferences, now time.Time) []models.ReminderIntent {
	deadline := timemath.DepartureDeadline(event.StartTime, timemath.EffectiveTravelMinutes(event.TravelTimeMinutes))

	var intents []models.ReminderIntent
	if !deadline.Before(now) {
		intents = append(intents, models.ReminderIntent{
			ID:      intentID(event.ID, "leave"),
			EventID: event.ID,
			Slot:    "leave",
			Channel: ChannelTimeToLeave,
			Title:   "Time to leave",
			Body:    fmt.Sprintf("Leave now to make %q on time", event.Title),
			FireAt:  deadline,
			Data:    map[string]string{"event_id": event.ID},
		})
	}

	offsets := prefs.OffsetsMinutes
	if len(offsets) == 0 {
		offsets = models.DefaultReminderPreferences().OffsetsMinutes
	}
	for _, offset := range offsets {
		fireAt := deadline.Add(-time.Duration(offset) * time.Minute)
		if fireAt.Before(now) {
			continue
		}
		slot := fmt.Sprintf("offset-%d", offset)
		intents = append(intents, models.ReminderIntent{
			ID:      intentID(event.ID, slot),
			EventID: event.ID,
			Slot:    slot,
			Channel: ChannelReminders,
			Title:   fmt.Sprintf("%q in %d minutes", event.Title, offset),
			Body:    fmt.Sprintf("Departure for %q is at %s", event.Title, deadline.Format("15:04")),
			FireAt:  fireAt,
			Data:    map[string]string{"event_id": event.ID},
		})
	}

	sort.Slice(intents, func(i, j int) bool { return intents[i].FireAt.Before(intents[j].FireAt) })

	s.mu.Lock()
	prior := s.planned[event.ID]
	s.planned[event.ID] = intents
	s.mu.Unlock()

	if s.sink != nil {
		for _, old := range prior {
			s.sink.CancelByID(old.ID)
		}
		for _, intent := range intents {
			s.sink.Schedule(intent)
		}
	}

	return intents
}

// CancelAll removes every intent keyed by the event. Must run before the
// event is deleted or its travel time recalculated.
func (s *notificationScheduler) CancelAll(eventID string) {
	s.mu.Lock()
	prior := s.planned[eventID]
	delete(s.planned, eventID)
	s.mu.Unlock()

	if s.sink != nil {
		for _, intent := range prior {
			s.sink.CancelByID(intent.ID)
		}
	}
}

// Pending returns the currently planned intents for an event.
func (s *notificationScheduler) Pending(eventID string) []models.ReminderIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ReminderIntent(nil), s.planned[eventID]...)
}

// AnnounceAchievements emits immediate intents for freshly earned
// achievements.
func (s *notificationScheduler) AnnounceAchievements(userID string, awarded []models.AchievementRule, now time.Time) []models.ReminderIntent {
	var intents []models.ReminderIntent
	for _, rule := range awarded {
		intent := models.ReminderIntent{
			ID:      "achievement:" + userID + ":" + rule.ID,
			Slot:    "achievement",
			Channel: ChannelAchievements,
			Title:   "Achievement unlocked!",
			Body:    fmt.Sprintf("%s: %s (+%d XP)", rule.Title, rule.Description, rule.XPReward),
			FireAt:  now,
			Data:    map[string]string{"achievement_id": rule.ID},
		}
		intents = append(intents, intent)
		if s.sink != nil {
			s.sink.Schedule(intent)
		}
	}
	return intents
}

// AnnounceLevelUp emits an immediate intent for a level increase.
func (s *notificationScheduler) AnnounceLevelUp(userID string, level int, now time.Time) []models.ReminderIntent {
	intent := models.ReminderIntent{
		ID:      fmt.Sprintf("levelup:%s:%d", userID, level),
		Slot:    "levelup",
		Channel: ChannelAchievements,
		Title:   "Level up!",
		Body:    fmt.Sprintf("You reached level %d", level),
		FireAt:  now,
	}
	if s.sink != nil {
		s.sink.Schedule(intent)
	}
	return []models.ReminderIntent{intent}
}

// AnnounceStreak emits an immediate intent for a streak milestone.
func (s *notificationScheduler) AnnounceStreak(userID string, streak int, now time.Time) []models.ReminderIntent {
	intent := models.ReminderIntent{
		ID:      fmt.Sprintf("streak:%s:%d", userID, streak),
		Slot:    "streak",
		Channel: ChannelAchievements,
		Title:   "Streak milestone!",
		Body:    fmt.Sprintf("%d on-time events in a row", streak),
		FireAt:  now,
	}
	if s.sink != nil {
		s.sink.Schedule(intent)
	}
	return []models.ReminderIntent{intent}
}
