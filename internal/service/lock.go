package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ontime-app/backend/internal/logger"
	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/internal/repository"
	"github.com/ontime-app/backend/internal/timemath"
)

const (
	// DefaultProximityRadiusMeters is the arrival radius when none is
	// configured.
	DefaultProximityRadiusMeters = 50.0

	maxPINFailures = 3

	// fallbackPIN exists only when the user never configured one. Known
	// weak default, kept for compatibility with existing installs; its
	// use is logged loudly. TODO: require PIN setup before offering the
	// emergency override at all.
	fallbackPIN = "1234"
)

type lockService struct {
	sessions        repository.LockSessionRepository
	events          EventStoreService
	rewards         RewardService
	notify          NotificationScheduler
	radius          float64
	pinHash         []byte
	usedFallbackPIN bool
	log             logger.Logger

	// mu makes every unlock a single atomic transition. Arrival, time
	// expiry, and override signals may race; the loser observes the
	// unlocked state and no-ops.
	mu sync.Mutex
}

// NewLockService creates the focus-lock state machine. configuredPIN may
// be empty, in which case the legacy fallback PIN applies.
func NewLockService(
	sessions repository.LockSessionRepository,
	events EventStoreService,
	rewards RewardService,
	notify NotificationScheduler,
	radiusMeters float64,
	configuredPIN string,
	log logger.Logger,
) (LockService, error) {
	if radiusMeters <= 0 {
		radiusMeters = DefaultProximityRadiusMeters
	}

	pin := configuredPIN
	usedFallback := false
	if pin == "" {
		pin = fallbackPIN
		usedFallback = true
		log.Warn("no emergency PIN configured, using legacy fallback")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash emergency PIN: %w", err)
	}

	return &lockService{
		sessions:        sessions,
		events:          events,
		rewards:         rewards,
		notify:          notify,
		radius:          radiusMeters,
		pinHash:         hash,
		usedFallbackPIN: usedFallback,
		log:             log,
	}, nil
}

// Arm creates an armed session for the event. Fails when another event's
// session is already armed; arming the same event again returns the
// existing session.
func (s *lockService) Arm(ctx context.Context, userID, eventID string, now time.Time) (*models.LockSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.sessions.GetArmed(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.EventID == eventID {
			return existing, nil
		}
		return nil, ErrLockAlreadyArmed
	}

	event, err := s.events.GetEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if event.CompletedAt != nil {
		return nil, ErrEventAlreadyCompleted
	}

	session := &models.LockSession{
		ID:             uuid.NewString(),
		EventID:        eventID,
		UserID:         userID,
		ArmedAt:        now.UTC(),
		UnlockDeadline: event.StartTime,
		State:          models.LockArmed,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	if _, err := s.events.UpdateEventStatus(ctx, eventID, models.StatusLocked); err != nil {
		return nil, err
	}

	s.log.Info("lock armed",
		logger.String("event_id", eventID),
		logger.Time("unlock_deadline", session.UnlockDeadline),
	)
	return session, nil
}

// ReportLocation feeds one location sample. Within the proximity radius
// of the event location the session unlocks with reason arrived.
func (s *lockService) ReportLocation(ctx context.Context, userID string, sample models.LocationSample) (*models.LockSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.sessions.GetArmed(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrLockNotArmed
	}
	if err != nil {
		return nil, err
	}

	event, err := s.events.GetEvent(ctx, userID, session.EventID)
	if err != nil {
		return nil, err
	}
	if event.Latitude == nil || event.Longitude == nil {
		return session, nil
	}

	distance := haversineMeters(sample.Latitude, sample.Longitude, *event.Latitude, *event.Longitude)
	if distance > s.radius {
		return session, nil
	}

	now := sample.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	return s.unlockLocked(ctx, session, event, models.UnlockArrived, now.UTC())
}

// CheckTimeTrigger unlocks the armed session once the event start time is
// reached. This is the deterministic fallback when arrival is never
// detected.
func (s *lockService) CheckTimeTrigger(ctx context.Context, userID string, now time.Time) (*models.LockSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.sessions.GetArmed(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrLockNotArmed
	}
	if err != nil {
		return nil, err
	}
	if now.Before(session.UnlockDeadline) {
		return session, nil
	}

	event, err := s.events.GetEvent(ctx, userID, session.EventID)
	if err != nil {
		return nil, err
	}
	return s.unlockLocked(ctx, session, event, models.UnlockEventStarted, now.UTC())
}

// EmergencyUnlock verifies the override PIN. Three consecutive mismatches
// within a session refuse further override attempts, right PIN or wrong,
// until a natural trigger unlocks.
func (s *lockService) EmergencyUnlock(ctx context.Context, userID, pin string, now time.Time) (*models.LockSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.sessions.GetArmed(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrLockNotArmed
	}
	if err != nil {
		return nil, err
	}

	if session.FailedPINAttempts >= maxPINFailures {
		return nil, ErrOverrideLockedOut
	}

	if bcrypt.CompareHashAndPassword(s.pinHash, []byte(pin)) != nil {
		session.FailedPINAttempts++
		if err := s.sessions.Save(ctx, session); err != nil {
			return nil, err
		}
		if session.FailedPINAttempts >= maxPINFailures {
			return nil, ErrOverrideLockedOut
		}
		return nil, ErrInvalidPIN
	}

	if s.usedFallbackPIN {
		s.log.Warn("emergency override used with fallback PIN",
			logger.String("user_id", userID),
		)
	}

	event, err := s.events.GetEvent(ctx, userID, session.EventID)
	if err != nil {
		return nil, err
	}
	return s.unlockLocked(ctx, session, event, models.UnlockEmergencyOverride, now.UTC())
}

// Cancel unlocks the event's session with reason cancelled and suppresses
// reward computation. Called when the user deletes the event.
func (s *lockService) Cancel(ctx context.Context, userID, eventID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.sessions.GetByEventID(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrLockNotArmed
	}
	if err != nil {
		return err
	}
	if session.UserID != userID || session.State != models.LockArmed {
		return ErrLockNotArmed
	}

	_, err = s.unlockLocked(ctx, session, nil, models.UnlockCancelled, now.UTC())
	return err
}

// ActiveSession returns the user's armed session, or nil.
func (s *lockService) ActiveSession(ctx context.Context, userID string) (*models.LockSession, error) {
	session, err := s.sessions.GetArmed(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// unlockLocked performs the single armed→unlocked transition. Callers hold
// s.mu. Idempotent: an already unlocked session is returned untouched, so
// racing triggers produce exactly one recorded reason and exactly one
// reward invocation.
func (s *lockService) unlockLocked(ctx context.Context, session *models.LockSession, event *models.Event, reason models.UnlockReason, now time.Time) (*models.LockSession, error) {
	if session.State == models.LockUnlocked {
		return session, nil
	}

	session.State = models.LockUnlocked
	session.UnlockReason = reason
	session.UnlockedAt = &now
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	s.log.Info("lock unlocked",
		logger.String("event_id", session.EventID),
		logger.String("reason", string(reason)),
	)

	// A cancelled event is not a completed one.
	if reason == models.UnlockCancelled {
		return session, nil
	}

	arrivedOnTime := timemath.OnTime(now, event.StartTime)
	outcome := models.CompletionOutcome{
		Event:         event,
		ArrivedOnTime: arrivedOnTime,
		ArrivedEarly:  timemath.Early(now, event.StartTime),
		Reason:        reason,
	}
	if _, err := s.rewards.CompleteEvent(ctx, session.UserID, session.EventID, outcome); err != nil {
		return nil, fmt.Errorf("apply completion: %w", err)
	}

	if s.notify != nil {
		s.notify.CancelAll(session.EventID)
	}
	return session, nil
}

// haversineMeters is the great-circle distance between two coordinates.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusMeters = 6371000.0

	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
