// Package scheduler drives time-based event phase transitions. A periodic
// tick re-evaluates every tracked user's events: upcoming events whose
// departure deadline passed become departure-due, overdue unarmed events
// become missed, and armed lock sessions get their time trigger checked.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ontime-app/backend/internal/logger"
	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/internal/service"
	"github.com/ontime-app/backend/internal/timemath"
)

// tickSpec matches the poll cadence the phase model assumes.
const tickSpec = "@every 30s"

// Scheduler owns the cron loop and the set of users it tracks. Users are
// tracked from their first authenticated request onward.
type Scheduler struct {
	events service.EventStoreService
	locks  service.LockService
	notify service.NotificationScheduler
	prefs  models.ReminderPreferences
	log    logger.Logger

	cron *cron.Cron

	mu    sync.Mutex
	users map[string]struct{}
}

// New creates a scheduler. Empty reminder preferences fall back to the
// defaults. Start must be called to begin ticking.
func New(events service.EventStoreService, locks service.LockService, notify service.NotificationScheduler, prefs models.ReminderPreferences, log logger.Logger) *Scheduler {
	if len(prefs.OffsetsMinutes) == 0 {
		prefs = models.DefaultReminderPreferences()
	}
	return &Scheduler{
		events: events,
		locks:  locks,
		notify: notify,
		prefs:  prefs,
		log:    log,
		cron:   cron.New(),
		users:  make(map[string]struct{}),
	}
}

// Start begins the periodic tick.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(tickSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		s.Tick(ctx, time.Now().UTC())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Track registers a user for phase re-evaluation.
func (s *Scheduler) Track(userID string) {
	s.mu.Lock()
	s.users[userID] = struct{}{}
	s.mu.Unlock()
}

// Tick runs one re-evaluation pass for every tracked user. now is explicit
// so tests can drive arbitrary clocks.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	users := make([]string, 0, len(s.users))
	for id := range s.users {
		users = append(users, id)
	}
	s.mu.Unlock()

	for _, userID := range users {
		if err := s.tickUser(ctx, userID, now); err != nil {
			s.log.Error("tick failed",
				logger.String("user_id", userID),
				logger.Err(err),
			)
		}
	}
}

func (s *Scheduler) tickUser(ctx context.Context, userID string, now time.Time) error {
	// Time trigger for an armed lock session first; its unlock may
	// complete an event this pass would otherwise mark missed.
	if _, err := s.locks.CheckTimeTrigger(ctx, userID, now); err != nil && !errors.Is(err, service.ErrLockNotArmed) {
		return err
	}

	events, err := s.events.GetTodayEvents(ctx, userID, now)
	if err != nil {
		return err
	}

	for i := range events {
		event := &events[i]
		deadline := timemath.DepartureDeadline(event.StartTime, timemath.EffectiveTravelMinutes(event.TravelTimeMinutes))
		phase := timemath.Classify(now, event.StartTime, deadline)

		switch event.Status {
		case models.StatusUpcoming:
			switch phase {
			case timemath.PhaseDepartureDue:
				if _, err := s.events.UpdateEventStatus(ctx, event.ID, models.StatusDepartureDue); err != nil {
					return err
				}
				s.notify.PlanReminders(event, s.prefs, now)
			case timemath.PhaseOverdue:
				if err := s.markMissed(ctx, event, now); err != nil {
					return err
				}
			}
		case models.StatusDepartureDue:
			if phase == timemath.PhaseOverdue {
				if err := s.markMissed(ctx, event, now); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// markMissed handles an overdue event with no lock protecting it. Locked
// events are resolved by the lock's own time trigger, never here.
func (s *Scheduler) markMissed(ctx context.Context, event *models.Event, now time.Time) error {
	if event.Status == models.StatusLocked {
		return nil
	}
	if _, err := s.events.UpdateEventStatus(ctx, event.ID, models.StatusMissed); err != nil {
		return err
	}
	s.notify.CancelAll(event.ID)
	s.log.Info("event missed",
		logger.String("event_id", event.ID),
		logger.Time("start_time", event.StartTime),
	)
	return nil
}
