package service

import "github.com/ontime-app/backend/internal/models"

// DefaultAchievementRules is the declarative rule table. Evaluation order
// is declaration order; rules satisfied in the same pass all fire together.
var DefaultAchievementRules = []models.AchievementRule{
	{
		ID:          "first_event",
		Title:       "First Steps",
		Description: "Complete your first event on time",
		Icon:        "emoji-events",
		XPReward:    50,
		BadgeID:     "rookie",
		Condition:   models.Condition{Type: models.ConditionEventsOnTimeAtLeast, Count: 1},
	},
	{
		ID:          "streak_3",
		Title:       "Getting Started",
		Description: "Maintain a 3-day streak",
		Icon:        "local-fire-department",
		XPReward:    100,
		BadgeID:     "consistent",
		Condition:   models.Condition{Type: models.ConditionStreakAtLeast, Count: 3},
	},
	{
		ID:          "streak_7",
		Title:       "Week Warrior",
		Description: "Maintain a 7-day streak",
		Icon:        "local-fire-department",
		XPReward:    250,
		BadgeID:     "dedicated",
		Condition:   models.Condition{Type: models.ConditionStreakAtLeast, Count: 7},
	},
	{
		ID:          "streak_30",
		Title:       "Month Master",
		Description: "Maintain a 30-day streak",
		Icon:        "local-fire-department",
		XPReward:    1000,
		BadgeID:     "legendary",
		Condition:   models.Condition{Type: models.ConditionStreakAtLeast, Count: 30},
	},
	{
		ID:          "perfect_week",
		Title:       "Perfect Week",
		Description: "Be on time for all events in a week",
		Icon:        "check-circle",
		XPReward:    200,
		BadgeID:     "perfectionist",
		Condition:   models.Condition{Type: models.ConditionPerfectWindow, Count: 7},
	},
	{
		ID:          "early_bird",
		Title:       "Early Bird",
		Description: "Arrive 10 minutes early to 5 events",
		Icon:        "schedule",
		XPReward:    150,
		BadgeID:     "punctual",
		Condition:   models.Condition{Type: models.ConditionEarlyArrivalsAtLeast, Count: 5},
	},
	{
		ID:          "night_owl",
		Title:       "Night Owl",
		Description: "Complete 10 evening events on time",
		Icon:        "nightlight-round",
		XPReward:    200,
		BadgeID:     "nocturnal",
		Condition:   models.Condition{Type: models.ConditionCategoryEventsAtLeast, Count: 10, Category: "evening"},
	},
	{
		ID:          "social_butterfly",
		Title:       "Social Butterfly",
		Description: "Attend 20 social events on time",
		Icon:        "people",
		XPReward:    300,
		BadgeID:     "social",
		Condition:   models.Condition{Type: models.ConditionCategoryEventsAtLeast, Count: 20, Category: "social"},
	},
	{
		ID:          "level_10",
		Title:       "Rising Star",
		Description: "Reach level 10",
		Icon:        "star",
		XPReward:    500,
		BadgeID:     "rising_star",
		Condition:   models.Condition{Type: models.ConditionLevelAtLeast, Count: 10},
	},
	{
		ID:          "level_20",
		Title:       "OnTime Legend",
		Description: "Reach level 20",
		Icon:        "military-tech",
		XPReward:    1000,
		BadgeID:     "legend",
		Condition:   models.Condition{Type: models.ConditionLevelAtLeast, Count: 20},
	},
}

// DefaultBadges maps badge ids to display metadata.
var DefaultBadges = map[string]models.Badge{
	"rookie":        {ID: "rookie", Name: "Rookie", Description: "Just getting started", Icon: "emoji-events", Color: "#9C27B0"},
	"consistent":    {ID: "consistent", Name: "Consistent", Description: "Building good habits", Icon: "trending-up", Color: "#2196F3"},
	"dedicated":     {ID: "dedicated", Name: "Dedicated", Description: "Week-long commitment", Icon: "fitness-center", Color: "#4CAF50"},
	"legendary":     {ID: "legendary", Name: "Legendary", Description: "Month-long mastery", Icon: "auto-awesome", Color: "#ffd700"},
	"perfectionist": {ID: "perfectionist", Name: "Perfectionist", Description: "Perfect week achieved", Icon: "check-circle", Color: "#ff6b6b"},
	"punctual":      {ID: "punctual", Name: "Punctual", Description: "Always early", Icon: "schedule", Color: "#ff9800"},
	"nocturnal":     {ID: "nocturnal", Name: "Nocturnal", Description: "Night event specialist", Icon: "nightlight-round", Color: "#673AB7"},
	"social":        {ID: "social", Name: "Social", Description: "Social event champion", Icon: "people", Color: "#E91E63"},
	"rising_star":   {ID: "rising_star", Name: "Rising Star", Description: "Level 10 achiever", Icon: "star", Color: "#00BCD4"},
	"legend":        {ID: "legend", Name: "Legend", Description: "Level 20 master", Icon: "military-tech", Color: "#FF5722"},
}

// ConditionMet evaluates one condition against a stats snapshot.
func ConditionMet(cond models.Condition, stats *models.UserStats) bool {
	switch cond.Type {
	case models.ConditionEventsOnTimeAtLeast:
		return stats.EventsOnTime >= cond.Count
	case models.ConditionStreakAtLeast:
		return stats.CurrentStreak >= cond.Count
	case models.ConditionLevelAtLeast:
		return stats.Level() >= cond.Count
	case models.ConditionEarlyArrivalsAtLeast:
		return stats.EarlyArrivals >= cond.Count
	case models.ConditionCategoryEventsAtLeast:
		return stats.CategoryCounts[cond.Category] >= cond.Count
	case models.ConditionPerfectWindow:
		return perfectWindow(stats, cond.Count)
	default:
		return false
	}
}

// perfectWindow reports whether every completion in the last `days` days
// was on time, with at least one completion in the window.
func perfectWindow(stats *models.UserStats, days int) bool {
	if len(stats.RecentCompletions) == 0 || days <= 0 {
		return false
	}
	latest := stats.RecentCompletions[0].CompletedAt
	for _, rec := range stats.RecentCompletions {
		if rec.CompletedAt.After(latest) {
			latest = rec.CompletedAt
		}
	}
	cutoff := latest.AddDate(0, 0, -days)

	seen := false
	for _, rec := range stats.RecentCompletions {
		if rec.CompletedAt.Before(cutoff) {
			continue
		}
		seen = true
		if !rec.OnTime {
			return false
		}
	}
	return seen
}
