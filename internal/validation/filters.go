// Package validation provides argument and artifact checks for cohort snapshots.
package validation

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/fpl-cohorts/internal/model"
)

// ErrInvalidPeriod is returned for a gameweek outside [1, model.MaxPeriod].
var ErrInvalidPeriod = errors.New("invalid period")

// ErrInvalidSnapshot is returned when an artifact fails structural checks.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// ValidatePeriod rejects gameweeks outside the season.
func ValidatePeriod(period int) error {
	if period < 1 || period > model.MaxPeriod {
		return fmt.Errorf("%w: %d not in [1,%d]", ErrInvalidPeriod, period, model.MaxPeriod)
	}
	return nil
}

// SnapshotOptions holds configuration for snapshot validation
type SnapshotOptions struct {
	// Bands that every snapshot must carry a bucket for
	Bands []model.Band

	// RequireSample rejects snapshots in which every band is empty
	RequireSample bool
}

// ValidateSnapshot checks a cohort snapshot before it is archived and after
// it is restored from cold storage.
func ValidateSnapshot(s *model.CohortSnapshot, period int, opts SnapshotOptions) error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if s.Gameweek != period {
		return fmt.Errorf("%w: gameweek %d, want %d", ErrInvalidSnapshot, s.Gameweek, period)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSnapshot)
	}

	for _, b := range opts.Bands {
		summary, ok := s.Buckets[b.Key]
		if !ok {
			return fmt.Errorf("%w: missing bucket %q", ErrInvalidSnapshot, b.Key)
		}
		if err := validateSummary(summary); err != nil {
			return fmt.Errorf("%w: bucket %q: %v", ErrInvalidSnapshot, b.Key, err)
		}
	}

	if opts.RequireSample && s.TotalSampled() == 0 {
		return fmt.Errorf("%w: every band is empty", ErrInvalidSnapshot)
	}
	return nil
}

func validateSummary(b model.BandSummary) error {
	if b.SampleSize < 0 || b.SampleSize > b.Attempted {
		return fmt.Errorf("sample size %d outside [0,%d]", b.SampleSize, b.Attempted)
	}
	for name, avg := range b.Averages {
		if avg != nil && !isFinite(*avg) {
			return fmt.Errorf("average %s is not finite", name)
		}
	}
	for name, values := range b.Distributions {
		if len(values) > b.SampleSize {
			return fmt.Errorf("distribution %s has %d values for %d samples", name, len(values), b.SampleSize)
		}
		for _, v := range values {
			if !isFinite(v) {
				logrus.WithFields(logrus.Fields{
					"metric": name,
					"value":  v,
				}).Debug("Rejected non-finite distribution value")
				return fmt.Errorf("distribution %s holds a non-finite value", name)
			}
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
