package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/pkg/supabase"
)

type statsRepository struct {
	client *supabase.Client
}

// NewStatsRepository creates a stats repository backed by the remote
// user_stats table.
func NewStatsRepository(client *supabase.Client) StatsRepository {
	return &statsRepository{client: client}
}

func (r *statsRepository) Get(ctx context.Context, userID string) (*models.UserStats, error) {
	query := map[string]interface{}{
		"user_id": fmt.Sprintf("eq.%s", userID),
	}

	body, err := r.client.Query(ctx, "user_stats", query)
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}

	var rows []models.UserStats
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user stats: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	return &rows[0], nil
}

func (r *statsRepository) Create(ctx context.Context, stats *models.UserStats) (*models.UserStats, error) {
	body, err := r.client.Insert(ctx, "user_stats", statsRow(stats))
	if err != nil {
		return nil, fmt.Errorf("failed to create user stats: %w", err)
	}

	return firstStats(body)
}

// UpdateWithVersion writes the full stats row, filtered on the version the
// caller read. PostgREST returns zero rows when the filter misses, which
// means another writer bumped the version first.
func (r *statsRepository) UpdateWithVersion(ctx context.Context, stats *models.UserStats) (*models.UserStats, error) {
	query := map[string]interface{}{
		"user_id": fmt.Sprintf("eq.%s", stats.UserID),
		"version": fmt.Sprintf("eq.%d", stats.Version),
	}

	data := statsRow(stats)
	data["version"] = stats.Version + 1

	body, err := r.client.UpdateWhere(ctx, "user_stats", query, data)
	if err != nil {
		return nil, fmt.Errorf("failed to update user stats: %w", err)
	}

	var rows []models.UserStats
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user stats: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrVersionConflict
	}

	return &rows[0], nil
}

// Leaderboard returns the top rows by XP. Level is derived from XP on the
// way out so the table never stores it.
func (r *statsRepository) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	query := map[string]interface{}{
		"select": "user_id,xp",
		"order":  "xp.desc",
		"limit":  fmt.Sprintf("%d", limit),
	}

	body, err := r.client.Query(ctx, "user_stats", query)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}

	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal leaderboard: %w", err)
	}
	for i := range entries {
		stats := models.UserStats{XP: entries[i].XP}
		entries[i].Level = stats.Level()
	}
	return entries, nil
}

func statsRow(stats *models.UserStats) map[string]interface{} {
	return map[string]interface{}{
		"user_id":                stats.UserID,
		"xp":                     stats.XP,
		"current_streak":         stats.CurrentStreak,
		"longest_streak":         stats.LongestStreak,
		"total_events":           stats.TotalEvents,
		"events_on_time":         stats.EventsOnTime,
		"early_arrivals":         stats.EarlyArrivals,
		"category_counts":        stats.CategoryCounts,
		"recent_completions":     stats.RecentCompletions,
		"earned_achievement_ids": stats.EarnedAchievementIDs,
		"earned_badge_ids":       stats.EarnedBadgeIDs,
		"version":                stats.Version,
	}
}

func firstStats(body []byte) (*models.UserStats, error) {
	var rows []models.UserStats
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user stats: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}
