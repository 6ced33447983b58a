package service

import (
	"math"

	"todaride/internal/config"
)

// FareBreakdown itemises a fare estimate for the priced trip.
type FareBreakdown struct {
	DistanceKm           float64 `json:"distance_km"`
	EstimatedDurationMin int     `json:"estimated_duration_min"`
	BaseFare             float64 `json:"base_fare"`
	PerKmFare            float64 `json:"per_km_fare"`
	PerMinuteFare        float64 `json:"per_minute_fare"`
	TotalFare            float64 `json:"total_fare"`
}

// FareEstimator computes linear fares: base + km*rate + minutes*rate.
type FareEstimator struct {
	baseFare      float64
	ratePerKm     float64
	ratePerMinute float64
}

// NewFareEstimator creates a FareEstimator with the configured rates.
func NewFareEstimator(cfg config.FareConfig) *FareEstimator {
	return &FareEstimator{
		baseFare:      cfg.BaseFare,
		ratePerKm:     cfg.RatePerKm,
		ratePerMinute: cfg.RatePerMinute,
	}
}

// Estimate returns the fare for a trip. Every amount is rounded to two decimals.
func (f *FareEstimator) Estimate(distanceKm float64, durationMin int) (FareBreakdown, error) {
	if distanceKm < 0 || durationMin < 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return FareBreakdown{}, ErrInvalidFareInput
	}

	perKm := distanceKm * f.ratePerKm
	perMinute := float64(durationMin) * f.ratePerMinute

	return FareBreakdown{
		DistanceKm:           distanceKm,
		EstimatedDurationMin: durationMin,
		BaseFare:             round2(f.baseFare),
		PerKmFare:            round2(perKm),
		PerMinuteFare:        round2(perMinute),
		TotalFare:            round2(f.baseFare + perKm + perMinute),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
