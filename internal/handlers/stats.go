package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ontime-app/backend/internal/apierror"
	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/internal/service"
)

type StatsHandler struct {
	rewards service.RewardService
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(rewards service.RewardService) *StatsHandler {
	return &StatsHandler{rewards: rewards}
}

// GetStats handles GET /api/v1/stats
func (h *StatsHandler) GetStats(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(requestID))
		return
	}

	stats, err := h.rewards.GetStats(c.Request.Context(), userID.(string))
	if err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewInternalError(requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats": stats,
		"level": stats.Level(),
	})
}

// achievementView pairs a rule with whether the user has earned it and
// the display metadata of its badge.
type achievementView struct {
	models.AchievementRule
	Earned bool          `json:"earned"`
	Badge  *models.Badge `json:"badge,omitempty"`
}

// GetAchievements handles GET /api/v1/achievements
func (h *StatsHandler) GetAchievements(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(requestID))
		return
	}

	rules, earnedIDs, err := h.rewards.ListAchievements(c.Request.Context(), userID.(string))
	if err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewInternalError(requestID))
		return
	}

	earned := make(map[string]bool, len(earnedIDs))
	for _, id := range earnedIDs {
		earned[id] = true
	}

	views := make([]achievementView, 0, len(rules))
	for _, rule := range rules {
		view := achievementView{AchievementRule: rule, Earned: earned[rule.ID]}
		if badge, ok := service.DefaultBadges[rule.BadgeID]; ok {
			b := badge
			view.Badge = &b
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, views)
}

// GetLeaderboard handles GET /api/v1/leaderboard
func (h *StatsHandler) GetLeaderboard(c *gin.Context) {
	if _, exists := c.Get("user_id"); !exists {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(requestID))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	entries, err := h.rewards.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewInternalError(requestID))
		return
	}

	c.JSON(http.StatusOK, entries)
}
