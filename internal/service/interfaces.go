package service

import (
	"context"
	"time"

	"github.com/ontime-app/backend/internal/calendar"
	"github.com/ontime-app/backend/internal/models"
)

// EventStoreService defines the unified event read/write model over the
// remote store and the local cache.
type EventStoreService interface {
	CreateEvent(ctx context.Context, userID string, req *models.CreateEventRequest) (*models.Event, error)
	GetEvent(ctx context.Context, userID, eventID string) (*models.Event, error)
	GetNextEvent(ctx context.Context, userID string, now time.Time) (*models.Event, error)
	GetTodayEvents(ctx context.Context, userID string, now time.Time) ([]models.Event, error)
	UpdateEvent(ctx context.Context, userID, eventID string, req *models.UpdateEventRequest) (*models.Event, error)
	DeleteEvent(ctx context.Context, userID, eventID string) error
	SyncExternal(ctx context.Context, userID string, externals []calendar.ExternalEvent) (*models.SyncResult, error)
	FlushPending(ctx context.Context, userID string) (int, error)
	UpdateEventStatus(ctx context.Context, eventID string, status models.EventStatus) (*models.Event, error)
	SetCompletion(ctx context.Context, eventID string, arrivedOnTime bool, completedAt time.Time) (*models.Event, bool, error)
	SetRewardApplied(ctx context.Context, eventID string) error
}

// TravelTimeService estimates travel duration between two places.
type TravelTimeService interface {
	Estimate(ctx context.Context, origin, destination string, departureTime time.Time) TravelEstimate
}

// LockService manages the focus-lock lifecycle.
type LockService interface {
	Arm(ctx context.Context, userID, eventID string, now time.Time) (*models.LockSession, error)
	ReportLocation(ctx context.Context, userID string, sample models.LocationSample) (*models.LockSession, error)
	EmergencyUnlock(ctx context.Context, userID, pin string, now time.Time) (*models.LockSession, error)
	Cancel(ctx context.Context, userID, eventID string, now time.Time) error
	CheckTimeTrigger(ctx context.Context, userID string, now time.Time) (*models.LockSession, error)
	ActiveSession(ctx context.Context, userID string) (*models.LockSession, error)
}

// RewardService applies completion outcomes to user statistics and
// evaluates achievements.
type RewardService interface {
	CompleteEvent(ctx context.Context, userID, eventID string, outcome models.CompletionOutcome) (*models.CompletionResult, error)
	GetStats(ctx context.Context, userID string) (*models.UserStats, error)
	ListAchievements(ctx context.Context, userID string) ([]models.AchievementRule, []string, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// NotificationScheduler plans reminder intents for the external delivery
// collaborator. It never delivers anything itself.
type NotificationScheduler interface {
	PlanReminders(event *models.Event, prefs models.ReminderPreferences, now time.Time) []models.ReminderIntent
	CancelAll(eventID string)
	Pending(eventID string) []models.ReminderIntent
	AnnounceAchievements(userID string, awarded []models.AchievementRule, now time.Time) []models.ReminderIntent
	AnnounceLevelUp(userID string, level int, now time.Time) []models.ReminderIntent
	AnnounceStreak(userID string, streak int, now time.Time) []models.ReminderIntent
}
