package derived

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/synapse/internal/errors"
	"github.com/Iron-Ham/synapse/internal/event"
)

// Recommendation is a suggestion produced by a handler. It stays live until
// it is executed.
type Recommendation struct {
	ID            string
	Domain        string
	Title         string
	Description   string
	Priority      event.Priority
	Confidence    float64 // Clamped to [0, 1]
	Actionable    bool
	AutoExecute   bool
	CreatedAt     time.Time
	CorrelationID string
	SubjectID     string
}

type recommendationList struct {
	mu    sync.Mutex
	items []Recommendation
}

// RecordRecommendation appends r to the live list and returns the stored
// recommendation.
func (s *Store) RecordRecommendation(r Recommendation) Recommendation {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	if r.Priority == "" {
		r.Priority = event.PriorityMedium
	}
	r.Confidence = clamp01(r.Confidence)

	s.recommendations.mu.Lock()
	s.recommendations.items = append(s.recommendations.items, r)
	s.recommendations.mu.Unlock()

	s.metrics.DerivedRecorded("recommendation")
	return r
}

// Recommendations returns the live recommendations in recording order.
func (s *Store) Recommendations() []Recommendation {
	s.recommendations.mu.Lock()
	defer s.recommendations.mu.Unlock()
	return slices.Clone(s.recommendations.items)
}

// ExecuteRecommendation consumes the recommendation with id and returns it.
// It fails with ErrRecommendationNotFound or ErrRecommendationNotActionable,
// leaving the live set untouched.
func (s *Store) ExecuteRecommendation(id string) (Recommendation, error) {
	s.recommendations.mu.Lock()
	defer s.recommendations.mu.Unlock()

	i := slices.IndexFunc(s.recommendations.items, func(r Recommendation) bool {
		return r.ID == id
	})
	if i < 0 {
		return Recommendation{}, errors.Wrapf(errors.ErrRecommendationNotFound, "execute %s", id)
	}

	rec := s.recommendations.items[i]
	if !rec.Actionable {
		return rec, errors.Wrapf(errors.ErrRecommendationNotActionable, "execute %s", id)
	}

	s.recommendations.items = slices.Delete(s.recommendations.items, i, i+1)
	return rec, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
