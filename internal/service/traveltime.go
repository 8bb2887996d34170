package service

import (
	"context"
	"math"
	"time"

	"github.com/ontime-app/backend/internal/logger"
	"github.com/ontime-app/backend/internal/timemath"
	"github.com/ontime-app/backend/pkg/distancematrix"
)

// TravelEstimate is the resolver's answer. Fallback marks the default
// estimate used when the upstream estimator could not answer; consumers
// may warn the user but must never treat it as a confident value.
type TravelEstimate struct {
	Minutes    int     `json:"minutes"`
	DistanceKm float64 `json:"distance_km"`
	Fallback   bool    `json:"fallback"`
}

// Estimator is the upstream travel-estimation contract.
type Estimator interface {
	Estimate(ctx context.Context, origin, destination string, departureTime time.Time) (*distancematrix.Estimate, error)
}

type travelTimeService struct {
	estimator Estimator
	timeout   time.Duration
	log       logger.Logger
}

// NewTravelTimeService creates a travel time resolver. A nil estimator
// means the upstream is disabled and every estimate is the fallback.
func NewTravelTimeService(estimator Estimator, timeout time.Duration, log logger.Logger) TravelTimeService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &travelTimeService{
		estimator: estimator,
		timeout:   timeout,
		log:       log,
	}
}

func fallbackEstimate() TravelEstimate {
	return TravelEstimate{Minutes: timemath.DefaultTravelTimeMinutes, Fallback: true}
}

// Estimate resolves a travel duration. Disabled upstream, missing
// addresses, non-success status, and timeout all yield the fallback.
func (s *travelTimeService) Estimate(ctx context.Context, origin, destination string, departureTime time.Time) TravelEstimate {
	if s.estimator == nil || origin == "" || destination == "" {
		return fallbackEstimate()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	est, err := s.estimator.Estimate(ctx, origin, destination, departureTime)
	if err != nil {
		s.log.Warn("travel estimate unavailable, using fallback",
			logger.String("origin", origin),
			logger.String("destination", destination),
			logger.Err(err),
		)
		return fallbackEstimate()
	}

	minutes := int(math.Round(est.Duration.Minutes()))
	if minutes < 0 {
		minutes = 0
	}

	return TravelEstimate{
		Minutes:    minutes,
		DistanceKm: est.Distance,
	}
}
