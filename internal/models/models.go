package models

import "time"

// EventSource identifies where an event record originated.
type EventSource string

const (
	SourceLocal  EventSource = "local"
	SourceRemote EventSource = "remote"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusUpcoming     EventStatus = "upcoming"
	StatusDepartureDue EventStatus = "departure-due"
	StatusLocked       EventStatus = "locked"
	StatusCompleted    EventStatus = "completed"
	StatusMissed       EventStatus = "missed"
)

// SyncState tracks whether an event copy has been confirmed remotely.
type SyncState string

const (
	SyncPending  SyncState = "pending"
	SyncSynced   SyncState = "synced"
	SyncConflict SyncState = "conflict"
)

// Event is the canonical event record. Local and remote copies are both
// normalized into this shape at the store boundary; Source is the
// discriminant. Timestamps are UTC; Timezone is display-only and never
// enters deadline arithmetic.
type Event struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Source      EventSource `json:"source"`
	RemoteID    *string     `json:"remote_id,omitempty"`
	ExternalID  *string     `json:"external_id,omitempty"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category,omitempty"`
	Location    *string     `json:"location,omitempty"`
	Latitude    *float64    `json:"latitude,omitempty"`
	Longitude   *float64    `json:"longitude,omitempty"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	Timezone    string      `json:"timezone,omitempty"`

	TravelTimeMinutes    *int `json:"travel_time_minutes,omitempty"`
	TravelTimeIsFallback bool `json:"travel_time_is_fallback,omitempty"`

	Status        EventStatus `json:"status"`
	ArrivedOnTime *bool       `json:"arrived_on_time,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	SyncState     SyncState   `json:"sync_state"`

	// RewardPending marks a completed event whose stats write has not
	// landed yet. Local bookkeeping only; never sent to the remote store.
	RewardPending bool `json:"reward_pending,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Completed reports whether the event reached a terminal completed state.
func (e *Event) Completed() bool {
	return e.Status == StatusCompleted
}

// CompletionRecord is one entry in the pruned recent-completion window kept
// on UserStats, used to evaluate window-based achievement conditions.
type CompletionRecord struct {
	CompletedAt time.Time `json:"completed_at"`
	OnTime      bool      `json:"on_time"`
}

// UserStats is the single mutable gamification record per user.
// PunctualityScore and Level are always derived from the base counters;
// Version guards compare-and-swap writes.
type UserStats struct {
	UserID            string             `json:"user_id"`
	XP                int                `json:"xp"`
	CurrentStreak     int                `json:"current_streak"`
	LongestStreak     int                `json:"longest_streak"`
	TotalEvents       int                `json:"total_events"`
	EventsOnTime      int                `json:"events_on_time"`
	EarlyArrivals     int                `json:"early_arrivals"`
	CategoryCounts    map[string]int     `json:"category_counts,omitempty"`
	RecentCompletions []CompletionRecord `json:"recent_completions,omitempty"`

	EarnedAchievementIDs []string `json:"earned_achievement_ids"`
	EarnedBadgeIDs       []string `json:"earned_badge_ids"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Level is derived from XP: floor(xp/100) + 1.
func (s *UserStats) Level() int {
	return s.XP/100 + 1
}

// PunctualityScore is derived: round(eventsOnTime/totalEvents*100), 0 when
// no events have completed.
func (s *UserStats) PunctualityScore() int {
	if s.TotalEvents == 0 {
		return 0
	}
	return int(float64(s.EventsOnTime)/float64(s.TotalEvents)*100 + 0.5)
}

// HasAchievement reports whether the rule id is already in the earned set.
func (s *UserStats) HasAchievement(id string) bool {
	for _, earned := range s.EarnedAchievementIDs {
		if earned == id {
			return true
		}
	}
	return false
}

// ConditionType tags an achievement rule condition.
type ConditionType string

const (
	ConditionEventsOnTimeAtLeast   ConditionType = "events_on_time_at_least"
	ConditionStreakAtLeast         ConditionType = "streak_at_least"
	ConditionLevelAtLeast          ConditionType = "level_at_least"
	ConditionPerfectWindow         ConditionType = "perfect_window"
	ConditionEarlyArrivalsAtLeast  ConditionType = "early_arrivals_at_least"
	ConditionCategoryEventsAtLeast ConditionType = "category_events_at_least"
)

// Condition is the tagged variant an AchievementRule evaluates. Count is
// the threshold (or window length in days for perfect_window); Category is
// set only for category_events_at_least.
type Condition struct {
	Type     ConditionType `json:"type"`
	Count    int           `json:"count"`
	Category string        `json:"category,omitempty"`
}

// AchievementRule is one row of the declarative reward rule table.
type AchievementRule struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	XPReward    int       `json:"xp_reward"`
	BadgeID     string    `json:"badge_id,omitempty"`
	Condition   Condition `json:"condition"`
}

// Badge is display metadata for an earned badge id.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

// LockState is the state of a lock session.
type LockState string

const (
	LockArmed    LockState = "armed"
	LockUnlocked LockState = "unlocked"
)

// UnlockReason records which trigger ended a lock session. Set exactly once.
type UnlockReason string

const (
	UnlockArrived           UnlockReason = "arrived"
	UnlockEventStarted      UnlockReason = "event-started"
	UnlockEmergencyOverride UnlockReason = "emergency-override"
	UnlockCancelled         UnlockReason = "cancelled"
)

// LockSession is the focus-lock lifecycle record for a single event. It
// references the event by id; it does not own the event's lifetime.
type LockSession struct {
	ID             string       `json:"id"`
	EventID        string       `json:"event_id"`
	UserID         string       `json:"user_id"`
	ArmedAt        time.Time    `json:"armed_at"`
	UnlockDeadline time.Time    `json:"unlock_deadline"`
	State          LockState    `json:"state"`
	UnlockReason   UnlockReason `json:"unlock_reason,omitempty"`
	UnlockedAt     *time.Time   `json:"unlocked_at,omitempty"`

	// FailedPINAttempts counts consecutive rejected override PINs while
	// this session is armed. Three failures disable the override until a
	// natural unlock trigger fires.
	FailedPINAttempts int `json:"failed_pin_attempts"`
}

// ReminderIntent is a scheduled reminder handed to the external
// notification collaborator. ID is stable per (event, slot) so replanning
// replaces rather than duplicates.
type ReminderIntent struct {
	ID      string            `json:"id"`
	EventID string            `json:"event_id"`
	Slot    string            `json:"slot"`
	Channel string            `json:"channel"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	FireAt  time.Time         `json:"fire_at"`
	Data    map[string]string `json:"data,omitempty"`
}

// ReminderPreferences carries the reminder offsets, in minutes before the
// departure deadline.
type ReminderPreferences struct {
	OffsetsMinutes []int `json:"offsets_minutes"`
}

// DefaultReminderPreferences are applied when the user never configured
// offsets.
func DefaultReminderPreferences() ReminderPreferences {
	return ReminderPreferences{OffsetsMinutes: []int{30, 15}}
}

// CompletionOutcome is what the lock state machine forwards to the reward
// engine when a session unlocks.
type CompletionOutcome struct {
	Event         *Event       `json:"event"`
	ArrivedOnTime bool         `json:"arrived_on_time"`
	ArrivedEarly  bool         `json:"arrived_early"`
	Reason        UnlockReason `json:"reason"`
}

// CompletionResult is returned by the reward engine after a completion has
// been applied.
type CompletionResult struct {
	Stats               *UserStats        `json:"stats"`
	AwardedAchievements []AchievementRule `json:"awarded_achievements"`
	LeveledUpTo         *int              `json:"leveled_up_to,omitempty"`
	XPDelta             int               `json:"xp_delta"`
}

// SyncResult summarizes one external calendar sync pass.
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// LocationSample is one push-based location signal from the external
// location collaborator.
type LocationSample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateEventRequest is the request to create a manual event. Latitude and
// Longitude feed arrival detection; events without them only unlock on the
// time trigger.
type CreateEventRequest struct {
	Title             string     `json:"title" binding:"required"`
	Description       string     `json:"description"`
	Category          string     `json:"category"`
	Location          *string    `json:"location"`
	Latitude          *float64   `json:"latitude"`
	Longitude         *float64   `json:"longitude"`
	StartTime         time.Time  `json:"start_time" binding:"required"`
	EndTime           *time.Time `json:"end_time"`
	Timezone          string     `json:"timezone"`
	TravelTimeMinutes *int       `json:"travel_time_minutes"`
}

// UpdateEventRequest is a partial update. TravelTimeMinutes uses NullableInt
// so an explicit null clears a user override back to the estimated value.
type UpdateEventRequest struct {
	Title             *string     `json:"title"`
	Description       *string     `json:"description"`
	Location          *string     `json:"location"`
	Latitude          *float64    `json:"latitude"`
	Longitude         *float64    `json:"longitude"`
	StartTime         *time.Time  `json:"start_time"`
	EndTime           *time.Time  `json:"end_time"`
	TravelTimeMinutes NullableInt `json:"travel_time_minutes"`
}

// ArmLockRequest arms the focus lock for an event.
type ArmLockRequest struct {
	EventID string `json:"event_id" binding:"required"`
}

// EmergencyUnlockRequest carries the override PIN.
type EmergencyUnlockRequest struct {
	PIN string `json:"pin" binding:"required"`
}

// RecordCompletionRequest completes an event manually. ArrivedAt backfills
// the arrival timestamp (RFC3339); empty means now.
type RecordCompletionRequest struct {
	ArrivedAt *string `json:"arrived_at"`
}

// IdempotencyKey is a cached response for idempotent request replay.
type IdempotencyKey struct {
	Key          string    `json:"key"`
	Route        string    `json:"route"`
	UserID       string    `json:"user_id"`
	ResponseBody []byte    `json:"response_body"`
	StatusCode   int       `json:"status_code"`
	CreatedAt    time.Time `json:"created_at"`
}

// LeaderboardEntry is one row of the XP leaderboard.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	XP     int    `json:"xp"`
	Level  int    `json:"level"`
}
