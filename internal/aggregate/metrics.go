// Package aggregate derives per-entry metrics from squads and reduces them
// into band level summaries.
package aggregate

import (
	"math"

	"github.com/yourorg/fpl-cohorts/internal/model"
)

// DefaultFDRHorizon is the number of upcoming gameweeks averaged for fdr.
const DefaultFDRHorizon = 5

// DefaultFDR is used when no upcoming fixture is known for a squad.
const DefaultFDR = 3.0

// expectedPointsScale multiplies single gameweek ep_next. This approximates
// points over the next five gameweeks from a one gameweek projection; it is
// not a real multi-gameweek forecast.
const expectedPointsScale = 5

// Deriver turns squads into EntityMetrics against one reference snapshot.
// It is safe for concurrent use once built.
type Deriver struct {
	period  int
	players map[int]model.Player
	teamFDR map[int]float64
}

// NewDeriver indexes ref for gameweek period. A nil ref yields NaN metrics.
func NewDeriver(ref *model.Reference, period, horizon int) *Deriver {
	if horizon <= 0 {
		horizon = DefaultFDRHorizon
	}
	return &Deriver{
		period:  period,
		players: ref.PlayerByID(),
		teamFDR: teamDifficulty(ref, period, horizon),
	}
}

// Players exposes the player index used by the deriver.
func (d *Deriver) Players() map[int]model.Player {
	return d.players
}

// teamDifficulty averages each team's difficulty over fixtures in
// gameweeks period+1 .. period+horizon.
func teamDifficulty(ref *model.Reference, period, horizon int) map[int]float64 {
	out := make(map[int]float64)
	if ref == nil {
		return out
	}

	sums := make(map[int]float64)
	counts := make(map[int]int)
	first, last := period+1, period+horizon
	for _, f := range ref.Fixtures {
		if f.Event == nil || *f.Event < first || *f.Event > last {
			continue
		}
		sums[f.TeamH] += float64(f.TeamHDifficulty)
		counts[f.TeamH]++
		sums[f.TeamA] += float64(f.TeamADifficulty)
		counts[f.TeamA]++
	}
	for team, n := range counts {
		out[team] = sums[team] / float64(n)
	}
	return out
}

// Derive computes the metrics of a single squad. Picks whose player is not
// in the reference are ignored; a squad with no known player gets NaN for
// every metric.
func (d *Deriver) Derive(picks *model.EntityPicks) model.EntityMetrics {
	m := model.EntityMetrics{EntryID: picks.EntryID}

	var (
		known, fdrCount            int
		points, cost, fdrSum       float64
		form, ep, owned, xgi, mins float64
	)

	for _, p := range picks.Picks {
		pl, ok := d.players[p.Element]
		if !ok {
			continue
		}
		known++

		points += float64(pl.TotalPoints)
		cost += float64(pl.NowCost) / 10
		form += pl.Form
		ep += pl.EPNext
		owned += pl.SelectedByPercent
		xgi += pl.XGIPer90
		if d.period > 0 {
			mins += float64(pl.Minutes) / float64(d.period*90) * 100
		}
		if fdr, ok := d.teamFDR[pl.Team]; ok {
			fdrSum += fdr
			fdrCount++
		}
	}

	if known == 0 {
		nan := math.NaN()
		m.PPM, m.FDR, m.Form, m.ExpectedPoints = nan, nan, nan, nan
		m.Ownership, m.MinPercent, m.XGI = nan, nan, nan
		return m
	}

	n := float64(known)
	if cost > 0 {
		m.PPM = points / cost
	}
	m.FDR = DefaultFDR
	if fdrCount > 0 {
		m.FDR = fdrSum / float64(fdrCount)
	}
	m.Form = form / n
	m.ExpectedPoints = ep * expectedPointsScale
	m.Ownership = owned / n
	m.MinPercent = mins / n
	m.XGI = xgi / n
	return m
}
