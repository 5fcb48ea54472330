package aggregate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/fpl-cohorts/internal/model"
)

func intPtr(v int) *int { return &v }

func testReference() *model.Reference {
	return &model.Reference{
		Players: []model.Player{
			{ID: 1, Team: 1, ElementType: model.ElementDefender, NowCost: 50, TotalPoints: 30, Minutes: 270,
				Form: 4, EPNext: 5, SelectedByPercent: 10, XGIPer90: 0.1},
			{ID: 2, Team: 2, ElementType: model.ElementMidfielder, NowCost: 100, TotalPoints: 60, Minutes: 180,
				Form: 6, EPNext: 7, SelectedByPercent: 30, XGIPer90: 0.5},
		},
		Fixtures: []model.Fixture{
			{ID: 1, Event: intPtr(4), TeamH: 1, TeamA: 2, TeamHDifficulty: 2, TeamADifficulty: 5},
			{ID: 2, Event: intPtr(9), TeamH: 2, TeamA: 1, TeamHDifficulty: 5, TeamADifficulty: 5},
			{ID: 3, Event: nil, TeamH: 1, TeamA: 2, TeamHDifficulty: 1, TeamADifficulty: 1},
		},
	}
}

func TestDeriver_Derive(t *testing.T) {
	d := NewDeriver(testReference(), 3, DefaultFDRHorizon)

	m := d.Derive(&model.EntityPicks{
		EntryID: 42,
		Picks: []model.Pick{
			{Element: 1, Position: 1, Multiplier: 1},
			{Element: 2, Position: 2, Multiplier: 2, IsCaptain: true},
			{Element: 999, Position: 3, Multiplier: 1},
		},
	})

	assert.Equal(t, 42, m.EntryID)
	assert.InDelta(t, 6.0, m.PPM, 1e-9, "90 points over 15.0m")
	assert.InDelta(t, 3.5, m.FDR, 1e-9, "only gameweeks 4..8 count")
	assert.InDelta(t, 5.0, m.Form, 1e-9)
	assert.InDelta(t, 60.0, m.ExpectedPoints, 1e-9, "ep_next sum scaled by five")
	assert.InDelta(t, 20.0, m.Ownership, 1e-9)
	assert.InDelta(t, 250.0/3, m.MinPercent, 1e-9)
	assert.InDelta(t, 0.3, m.XGI, 1e-9)
}

func TestDeriver_Defaults(t *testing.T) {
	ref := testReference()
	ref.Fixtures = nil
	ref.Players[0].NowCost = 0
	ref.Players[1].NowCost = 0

	m := NewDeriver(ref, 3, 0).Derive(&model.EntityPicks{Picks: []model.Pick{{Element: 1}, {Element: 2}}})

	assert.Equal(t, 0.0, m.PPM, "zero cost gives zero ppm")
	assert.Equal(t, DefaultFDR, m.FDR)
}

func TestDeriver_UnknownSquad(t *testing.T) {
	m := NewDeriver(nil, 3, 5).Derive(&model.EntityPicks{Picks: []model.Pick{{Element: 1}}})

	for name, v := range m.Values() {
		assert.True(t, math.IsNaN(v), "%s should be NaN", name)
	}
}

func TestReduceBand(t *testing.T) {
	tests := []struct {
		name      string
		metrics   []model.EntityMetrics
		attempted int
		wantSize  int
		wantPPM   *float64
		wantDist  int
	}{
		{
			name:      "empty band",
			metrics:   nil,
			attempted: 120,
			wantSize:  0,
			wantPPM:   nil,
			wantDist:  0,
		},
		{
			name: "single entry",
			metrics: []model.EntityMetrics{
				{EntryID: 1, PPM: 6, FDR: 3, Form: 5, ExpectedPoints: 60, Ownership: 20, MinPercent: 80, XGI: 0.3},
			},
			attempted: 1,
			wantSize:  1,
			wantPPM:   floatPtr(6),
			wantDist:  1,
		},
		{
			name: "non-finite values are skipped",
			metrics: []model.EntityMetrics{
				{EntryID: 1, PPM: 4},
				{EntryID: 2, PPM: math.NaN()},
				{EntryID: 3, PPM: math.Inf(1)},
				{EntryID: 4, PPM: 8},
			},
			attempted: 10,
			wantSize:  4,
			wantPPM:   floatPtr(6),
			wantDist:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ReduceBand(tt.metrics, tt.attempted)

			assert.Equal(t, tt.wantSize, s.SampleSize)
			assert.Equal(t, tt.attempted, s.Attempted)
			for _, name := range model.MetricNames {
				assert.Contains(t, s.Averages, name)
				assert.NotNil(t, s.Distributions[name], "distributions must never be nil")
			}
			if tt.wantPPM == nil {
				assert.Nil(t, s.Averages[model.MetricPPM])
			} else {
				require.NotNil(t, s.Averages[model.MetricPPM])
				assert.InDelta(t, *tt.wantPPM, *s.Averages[model.MetricPPM], 1e-9)
			}
			assert.Len(t, s.Distributions[model.MetricPPM], tt.wantDist)
		})
	}
}

func TestReduceBand_AllFailed(t *testing.T) {
	s := ReduceBand([]model.EntityMetrics{}, 10)

	assert.Equal(t, 0, s.SampleSize)
	for _, name := range model.MetricNames {
		assert.Nil(t, s.Averages[name], name)
		assert.Empty(t, s.Distributions[name], name)
	}
}

func TestReduceBand_OrderIndependent(t *testing.T) {
	metrics := make([]model.EntityMetrics, 50)
	for i := range metrics {
		v := float64(i) * 1.37
		metrics[i] = model.EntityMetrics{EntryID: i, PPM: v, FDR: v / 10, Form: v / 3, ExpectedPoints: v * 5,
			Ownership: v, MinPercent: v, XGI: v / 100}
	}

	shuffled := make([]model.EntityMetrics, len(metrics))
	copy(shuffled, metrics)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	assert.Equal(t, ReduceBand(metrics, 60), ReduceBand(shuffled, 60))
}

func squadFor253() ([]model.Pick, map[int]model.Player) {
	players := map[int]model.Player{}
	var picks []model.Pick
	add := func(id, elementType, position, multiplier int) {
		players[id] = model.Player{ID: id, ElementType: elementType}
		picks = append(picks, model.Pick{Element: id, Position: position, Multiplier: multiplier})
	}

	add(1, model.ElementGoalkeeper, 1, 1)
	add(2, model.ElementDefender, 2, 1)
	for i := 0; i < 5; i++ {
		add(10+i, model.ElementMidfielder, 3+i, 1)
	}
	for i := 0; i < 3; i++ {
		add(20+i, model.ElementForward, 8+i, 1)
	}
	for i := 0; i < 5; i++ {
		add(30+i, model.ElementDefender, 11+i, 0)
	}
	picks[3].IsCaptain, picks[3].Multiplier = true, 2
	picks[4].IsViceCaptain = true
	return picks, players
}

func TestFormation(t *testing.T) {
	picks, players := squadFor253()
	require.Len(t, picks, 15)

	f, ok := Formation(picks, players)
	require.True(t, ok)
	assert.Equal(t, "2-5-3", f)

	_, ok = Formation(picks, map[int]model.Player{})
	assert.False(t, ok)
}

func TestReducePicks(t *testing.T) {
	picks, players := squadFor253()

	reversed := make([]model.Pick, len(picks))
	for i, p := range picks {
		reversed[len(picks)-1-i] = p
	}

	agg := ReducePicks([]model.EntityPicks{
		{EntryID: 1, Picks: picks},
		{EntryID: 2, Picks: reversed},
	}, players)

	assert.Equal(t, 2, agg.SampleSize)
	assert.Equal(t, map[string]int{"2-5-3": 2}, agg.Formations)

	captain := agg.Players[picks[3].Element]
	require.NotNil(t, captain)
	assert.Equal(t, 2, captain.Ownership)
	assert.Equal(t, 2, captain.CaptainCount)
	assert.Equal(t, 4, captain.MultiplierSum)

	vice := agg.Players[picks[4].Element]
	require.NotNil(t, vice)
	assert.Equal(t, 2, vice.ViceCaptainCount)

	bench := agg.Players[34]
	require.NotNil(t, bench)
	assert.Equal(t, 2, bench.BenchCount)
	assert.Equal(t, 0, bench.MultiplierSum)
}

func TestReducePicks_Empty(t *testing.T) {
	agg := ReducePicks(nil, nil)

	assert.Equal(t, 0, agg.SampleSize)
	assert.Empty(t, agg.Players)
	assert.Empty(t, agg.Formations)
}

func floatPtr(v float64) *float64 { return &v }
