package validation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/fpl-cohorts/internal/model"
)

func ptr(v float64) *float64 { return &v }

func TestValidatePeriod(t *testing.T) {
	tests := []struct {
		name    string
		period  int
		wantErr bool
	}{
		{name: "first gameweek", period: 1},
		{name: "last gameweek", period: 38},
		{name: "zero", period: 0, wantErr: true},
		{name: "negative", period: -3, wantErr: true},
		{name: "past season end", period: 39, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePeriod(tt.period)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPeriod)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateSnapshot(t *testing.T) {
	bands := []model.Band{{Key: "top10k", MaxRank: 10_000}}
	now := time.Now()

	valid := &model.CohortSnapshot{
		Gameweek:  5,
		Timestamp: now,
		Buckets: map[string]model.BandSummary{
			"top10k": {
				SampleSize:    2,
				Attempted:     3,
				Averages:      map[string]*float64{model.MetricPPM: ptr(1.5), model.MetricFDR: nil},
				Distributions: map[string][]float64{model.MetricPPM: {1, 2}, model.MetricFDR: {}},
			},
		},
	}

	t.Run("valid snapshot", func(t *testing.T) {
		require.NoError(t, ValidateSnapshot(valid, 5, SnapshotOptions{Bands: bands, RequireSample: true}))
	})

	t.Run("wrong gameweek", func(t *testing.T) {
		err := ValidateSnapshot(valid, 6, SnapshotOptions{Bands: bands})
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
	})

	t.Run("missing bucket", func(t *testing.T) {
		err := ValidateSnapshot(valid, 5, SnapshotOptions{Bands: append(bands, model.Band{Key: "top50k"})})
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
		assert.Contains(t, err.Error(), "top50k")
	})

	t.Run("non-finite distribution", func(t *testing.T) {
		bad := &model.CohortSnapshot{
			Gameweek:  5,
			Timestamp: now,
			Buckets: map[string]model.BandSummary{
				"top10k": {
					SampleSize:    1,
					Attempted:     1,
					Distributions: map[string][]float64{model.MetricXGI: {math.NaN()}},
				},
			},
		}
		assert.ErrorIs(t, ValidateSnapshot(bad, 5, SnapshotOptions{Bands: bands}), ErrInvalidSnapshot)
	})

	t.Run("empty sample rejected when required", func(t *testing.T) {
		empty := &model.CohortSnapshot{
			Gameweek:  5,
			Timestamp: now,
			Buckets:   map[string]model.BandSummary{"top10k": {Attempted: 10}},
		}
		assert.NoError(t, ValidateSnapshot(empty, 5, SnapshotOptions{Bands: bands}))
		assert.ErrorIs(t, ValidateSnapshot(empty, 5, SnapshotOptions{Bands: bands, RequireSample: true}), ErrInvalidSnapshot)
	})

	t.Run("nil snapshot", func(t *testing.T) {
		assert.ErrorIs(t, ValidateSnapshot(nil, 5, SnapshotOptions{}), ErrInvalidSnapshot)
	})
}
