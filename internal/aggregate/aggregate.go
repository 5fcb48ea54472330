package aggregate

import (
	"fmt"
	"math"
	"sort"

	"github.com/yourorg/fpl-cohorts/internal/model"
)

// ReduceBand folds per-entry metrics into a BandSummary. Non-finite values
// are left out of both distributions and averages, and a metric without a
// single finite value averages to nil. Distributions are sorted so that the
// result does not depend on fetch order.
func ReduceBand(metrics []model.EntityMetrics, attempted int) model.BandSummary {
	summary := model.BandSummary{
		SampleSize:    len(metrics),
		Attempted:     attempted,
		Averages:      make(map[string]*float64, len(model.MetricNames)),
		Distributions: make(map[string][]float64, len(model.MetricNames)),
	}
	if summary.Attempted < summary.SampleSize {
		summary.Attempted = summary.SampleSize
	}

	for _, name := range model.MetricNames {
		summary.Distributions[name] = []float64{}
	}
	for _, m := range metrics {
		for name, v := range m.Values() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			summary.Distributions[name] = append(summary.Distributions[name], v)
		}
	}

	for _, name := range model.MetricNames {
		values := summary.Distributions[name]
		sort.Float64s(values)
		summary.Averages[name] = Mean(values)
	}
	return summary
}

// Mean returns the arithmetic mean of values, or nil for an empty slice.
func Mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	return &mean
}

// ReducePicks counts ownership, captaincy, bench and formation usage over
// every sampled squad. players classifies picks into formation lines.
func ReducePicks(raw []model.EntityPicks, players map[int]model.Player) *model.PicksAggregate {
	agg := &model.PicksAggregate{
		SampleSize: len(raw),
		Players:    make(map[int]*model.PlayerPickCounts),
		Formations: make(map[string]int),
	}

	for _, squad := range raw {
		for _, p := range squad.Picks {
			c, ok := agg.Players[p.Element]
			if !ok {
				c = &model.PlayerPickCounts{}
				agg.Players[p.Element] = c
			}
			c.Ownership++
			c.MultiplierSum += p.Multiplier
			if p.IsCaptain {
				c.CaptainCount++
			}
			if p.IsViceCaptain {
				c.ViceCaptainCount++
			}
			if p.IsBench() {
				c.BenchCount++
			}
		}

		if f, ok := Formation(squad.Picks, players); ok {
			agg.Formations[f]++
		}
	}
	return agg
}

// Formation returns the "d-m-f" shape of the players that counted for the
// gameweek (multiplier above zero). Goalkeepers share the first line with
// defenders. ok is false when no counted player could be classified.
func Formation(picks []model.Pick, players map[int]model.Player) (string, bool) {
	var def, mid, fwd int
	for _, p := range picks {
		if p.Multiplier <= 0 {
			continue
		}
		pl, ok := players[p.Element]
		if !ok {
			continue
		}
		switch {
		case pl.ElementType <= model.ElementDefender:
			def++
		case pl.ElementType == model.ElementMidfielder:
			mid++
		case pl.ElementType == model.ElementForward:
			fwd++
		}
	}
	if def+mid+fwd == 0 {
		return "", false
	}
	return fmt.Sprintf("%d-%d-%d", def, mid, fwd), true
}
