// Package estimator derives a target response time from a card's review history.
package estimator

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/mcdev12/focustimer/go/internal/models"
)

const (
	// MaxSamples is how many of the most recent responses contribute.
	MaxSamples = 10
	// Decay is the weight ratio between consecutive responses, newest first.
	Decay = 0.9
)

type sample struct {
	responseMs float64
	atMs       int64
}

// WeightedAverage returns the recency-weighted mean response time of the card.
// The second return is false when the card is nil or has no positive response
// times. The i-th newest response is weighted Decay^i.
func WeightedAverage(card *models.Card) (time.Duration, bool) {
	if !card.HasHistory() {
		return 0, false
	}

	samples := Qualifying(card.RepetitionHistory)
	if len(samples) == 0 {
		return 0, false
	}
	if len(samples) > MaxSamples {
		samples = samples[:MaxSamples]
	}

	var weightedSum, totalWeight float64
	for i, s := range samples {
		w := math.Pow(Decay, float64(i))
		weightedSum += s * w
		totalWeight += w
	}

	avgMs := weightedSum / totalWeight
	return time.Duration(avgMs * float64(time.Millisecond)), true
}

// Qualifying returns the positive response times in milliseconds, newest
// first. Records sharing a timestamp keep their input order.
func Qualifying(history []models.ResponseRecord) []float64 {
	samples := make([]sample, 0, len(history))
	for _, rec := range history {
		if !(rec.ResponseTime > 0) {
			continue
		}
		samples = append(samples, sample{responseMs: rec.ResponseTime, atMs: rec.Date.UnixMilli()})
	}

	slices.SortStableFunc(samples, func(a, b sample) int {
		return cmp.Compare(b.atMs, a.atMs)
	})

	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.responseMs
	}
	return out
}
