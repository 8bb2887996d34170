package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ontime-app/backend/internal/logger"
	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/internal/repository"
)

const (
	// XP policy table. One base award and at most one adjustment per
	// completion; adjustments never stack.
	xpOnTimeReward     = 50
	xpOverridePenalty  = 10
	eveningHour        = 18
	completionWindow   = 45 * 24 * time.Hour
	maxCASAttempts     = 5
	streakMilestoneMin = 3
)

type rewardService struct {
	stats  repository.StatsRepository
	events EventStoreService
	notify NotificationScheduler
	rules  []models.AchievementRule
	log    logger.Logger
}

// NewRewardService creates the reward engine over the stats repository.
// A nil rules slice uses the default table.
func NewRewardService(
	stats repository.StatsRepository,
	events EventStoreService,
	notify NotificationScheduler,
	rules []models.AchievementRule,
	log logger.Logger,
) RewardService {
	if rules == nil {
		rules = DefaultAchievementRules
	}
	return &rewardService{
		stats:  stats,
		events: events,
		notify: notify,
		rules:  rules,
		log:    log,
	}
}

// ApplyCompletion is the pure half of the reward engine: given a stats
// snapshot and a completion outcome, it returns the new stats, the rules
// awarded in this pass, and a level-up notice. The input snapshot is not
// mutated. applyBase=false re-runs only achievement evaluation, which is
// how an interrupted completion resumes without double-counting the base
// reward.
func ApplyCompletion(stats *models.UserStats, outcome models.CompletionOutcome, rules []models.AchievementRule, applyBase bool, now time.Time) *models.CompletionResult {
	next := cloneStats(stats)
	levelBefore := next.Level()
	xpBefore := next.XP

	if applyBase {
		next.TotalEvents++
		if outcome.ArrivedOnTime {
			next.EventsOnTime++
			next.CurrentStreak++
			next.XP += xpOnTimeReward
		} else {
			next.CurrentStreak = 0
		}
		if next.CurrentStreak > next.LongestStreak {
			next.LongestStreak = next.CurrentStreak
		}
		if outcome.Reason == models.UnlockEmergencyOverride {
			next.XP -= xpOverridePenalty
			if next.XP < 0 {
				next.XP = 0
			}
		}
		if outcome.ArrivedOnTime && outcome.ArrivedEarly {
			next.EarlyArrivals++
		}
		if outcome.ArrivedOnTime && outcome.Event != nil {
			for _, cat := range eventCategories(outcome.Event) {
				if next.CategoryCounts == nil {
					next.CategoryCounts = make(map[string]int)
				}
				next.CategoryCounts[cat]++
			}
		}
		recordCompletion(next, outcome, now)
	}

	// Single pass in declaration order. Each rule fires at most once per
	// user; awards compound immediately so later rules in the same pass
	// see the updated XP.
	var awarded []models.AchievementRule
	for _, rule := range rules {
		if next.HasAchievement(rule.ID) {
			continue
		}
		if !ConditionMet(rule.Condition, next) {
			continue
		}
		next.EarnedAchievementIDs = append(next.EarnedAchievementIDs, rule.ID)
		next.XP += rule.XPReward
		if rule.BadgeID != "" && !hasBadge(next, rule.BadgeID) {
			next.EarnedBadgeIDs = append(next.EarnedBadgeIDs, rule.BadgeID)
		}
		awarded = append(awarded, rule)
	}

	result := &models.CompletionResult{
		Stats:               next,
		AwardedAchievements: awarded,
		XPDelta:             next.XP - xpBefore,
	}
	if level := next.Level(); level > levelBefore {
		result.LeveledUpTo = &level
	}
	return result
}

// CompleteEvent records the punctuality outcome for one physical event
// completion. The event-level completion flag makes the base reward apply
// exactly once; the reward flag keeps the base delta claimable when the
// stats write fails after the flag was set, so a retried call resumes
// instead of losing it. Stats persistence is optimistic: a version
// conflict re-reads and re-applies.
func (s *rewardService) CompleteEvent(ctx context.Context, userID, eventID string, outcome models.CompletionOutcome) (*models.CompletionResult, error) {
	now := time.Now().UTC()
	completedAt := now
	if outcome.Event != nil && outcome.Event.CompletedAt != nil {
		completedAt = *outcome.Event.CompletedAt
	}

	event, performed, err := s.events.SetCompletion(ctx, eventID, outcome.ArrivedOnTime, completedAt)
	if err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}
	outcome.Event = event
	applyBase := performed || event.RewardPending
	if !performed && applyBase && event.ArrivedOnTime != nil {
		// Resuming an interrupted completion: the recorded outcome wins
		// over whatever the retry computed.
		outcome.ArrivedOnTime = *event.ArrivedOnTime
	}

	var result *models.CompletionResult
	for attempt := 0; ; attempt++ {
		stats, err := s.getOrCreateStats(ctx, userID)
		if err != nil {
			return nil, err
		}

		result = ApplyCompletion(stats, outcome, s.rules, applyBase, now)
		if result.XPDelta == 0 && len(result.AwardedAchievements) == 0 && !applyBase {
			// Resumed call with nothing left to apply.
			return result, nil
		}

		_, err = s.stats.UpdateWithVersion(ctx, result.Stats)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("persist stats: %w", err)
		}
		if attempt+1 >= maxCASAttempts {
			return nil, fmt.Errorf("persist stats: %w", err)
		}
		s.log.Debug("stats version conflict, re-applying",
			logger.String("user_id", userID),
			logger.Int("attempt", attempt+1),
		)
	}

	if applyBase {
		if err := s.events.SetRewardApplied(ctx, eventID); err != nil {
			s.log.Warn("clearing reward flag failed",
				logger.String("event_id", eventID),
				logger.Err(err),
			)
		}
	}

	s.announce(userID, result, now)
	return result, nil
}

func (s *rewardService) announce(userID string, result *models.CompletionResult, now time.Time) {
	if s.notify == nil {
		return
	}
	if len(result.AwardedAchievements) > 0 {
		s.notify.AnnounceAchievements(userID, result.AwardedAchievements, now)
	}
	if result.LeveledUpTo != nil {
		s.notify.AnnounceLevelUp(userID, *result.LeveledUpTo, now)
	}
	if streak := result.Stats.CurrentStreak; streak >= streakMilestoneMin && isStreakMilestone(streak) {
		s.notify.AnnounceStreak(userID, streak, now)
	}
}

func (s *rewardService) GetStats(ctx context.Context, userID string) (*models.UserStats, error) {
	return s.getOrCreateStats(ctx, userID)
}

func (s *rewardService) ListAchievements(ctx context.Context, userID string) ([]models.AchievementRule, []string, error) {
	stats, err := s.getOrCreateStats(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return s.rules, stats.EarnedAchievementIDs, nil
}

func (s *rewardService) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.stats.Leaderboard(ctx, limit)
}

func (s *rewardService) getOrCreateStats(ctx context.Context, userID string) (*models.UserStats, error) {
	stats, err := s.stats.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.stats.Create(ctx, &models.UserStats{UserID: userID})
	}
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func cloneStats(stats *models.UserStats) *models.UserStats {
	next := *stats
	next.EarnedAchievementIDs = append([]string(nil), stats.EarnedAchievementIDs...)
	next.EarnedBadgeIDs = append([]string(nil), stats.EarnedBadgeIDs...)
	next.RecentCompletions = append([]models.CompletionRecord(nil), stats.RecentCompletions...)
	if stats.CategoryCounts != nil {
		next.CategoryCounts = make(map[string]int, len(stats.CategoryCounts))
		for k, v := range stats.CategoryCounts {
			next.CategoryCounts[k] = v
		}
	}
	return &next
}

func hasBadge(stats *models.UserStats, badgeID string) bool {
	for _, id := range stats.EarnedBadgeIDs {
		if id == badgeID {
			return true
		}
	}
	return false
}

// recordCompletion prepends the completion to the rolling window and drops
// entries older than the retention horizon.
func recordCompletion(stats *models.UserStats, outcome models.CompletionOutcome, now time.Time) {
	rec := models.CompletionRecord{CompletedAt: now, OnTime: outcome.ArrivedOnTime}
	if outcome.Event != nil && outcome.Event.CompletedAt != nil {
		rec.CompletedAt = *outcome.Event.CompletedAt
	}

	kept := []models.CompletionRecord{rec}
	cutoff := now.Add(-completionWindow)
	for _, old := range stats.RecentCompletions {
		if old.CompletedAt.After(cutoff) {
			kept = append(kept, old)
		}
	}
	stats.RecentCompletions = kept
}

// socialKeywords tag an event as social when its title or description
// mentions one. Synced calendar entries carry no explicit category, so
// keyword derivation is what makes them count.
var socialKeywords = []string{"meeting", "party", "gathering", "social", "team", "group"}

// eventCategories derives the category tags a completion counts toward.
// An explicit category tag counts directly; social comes from title and
// description keywords, evening from the start hour.
func eventCategories(event *models.Event) []string {
	var cats []string
	if event.Category != "" {
		cats = append(cats, event.Category)
	}
	if event.Category != "social" && isSocialEvent(event) {
		cats = append(cats, "social")
	}
	if event.StartTime.UTC().Hour() >= eveningHour {
		cats = append(cats, "evening")
	}
	return cats
}

func isSocialEvent(event *models.Event) bool {
	text := strings.ToLower(event.Title + " " + event.Description)
	for _, keyword := range socialKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// isStreakMilestone reports streaks worth announcing: 3, 7, 14, 30, then
// every multiple of 30.
func isStreakMilestone(streak int) bool {
	switch streak {
	case 3, 7, 14, 30:
		return true
	}
	return streak > 30 && streak%30 == 0
}
