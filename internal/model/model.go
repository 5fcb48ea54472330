// Package model defines the core data structures for fpl-cohorts.
package model

import (
	"time"
)

// MaxPeriod is the last gameweek of a season.
const MaxPeriod = 38

// Period is one gameweek as reported by the upstream bootstrap snapshot.
// It is read-only to this service.
type Period struct {
	ID int `json:"id"`

	Finished  bool `json:"finished"`
	IsCurrent bool `json:"is_current"`

	// Deadline is the zero time when upstream did not report one.
	Deadline time.Time `json:"deadline_time"`

	// DataChecked mirrors upstream's data_checked flag.
	DataChecked bool `json:"data_checked"`

	// DataCheckedAt is when this service first observed DataChecked=true.
	// Nil when unknown.
	DataCheckedAt *time.Time `json:"data_checked_at,omitempty"`
}

// Band is a ranked population slice, e.g. the top 10k overall entries.
type Band struct {
	Key     string `json:"key" koanf:"key"`
	Label   string `json:"label" koanf:"label"`
	MaxRank int    `json:"max_rank" koanf:"max_rank"`
}

// DefaultBands are the three population bands sampled for every gameweek.
func DefaultBands() []Band {
	return []Band{
		{Key: "top10k", Label: "Top 10k", MaxRank: 10_000},
		{Key: "top50k", Label: "Top 50k", MaxRank: 50_000},
		{Key: "top100k", Label: "Top 100k", MaxRank: 100_000},
	}
}

// Element types as used by the upstream player list.
const (
	ElementGoalkeeper = 1
	ElementDefender   = 2
	ElementMidfielder = 3
	ElementForward    = 4
)

// Player is the reference data for a single footballer.
type Player struct {
	ID          int `json:"id"`
	Team        int `json:"team"`
	ElementType int `json:"element_type"`

	// NowCost is expressed in tenths of a million, e.g. 55 = 5.5m.
	NowCost     int `json:"now_cost"`
	TotalPoints int `json:"total_points"`
	Minutes     int `json:"minutes"`

	Form              float64 `json:"form"`
	EPNext            float64 `json:"ep_next"`
	SelectedByPercent float64 `json:"selected_by_percent"`
	XGIPer90          float64 `json:"expected_goal_involvements_per_90"`
}

// Team is a Premier League club.
type Team struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
}

// Fixture is a single match with per-side difficulty ratings.
type Fixture struct {
	ID int `json:"id"`

	// Event is nil for fixtures that have not been scheduled into a gameweek.
	Event *int `json:"event"`

	TeamH           int  `json:"team_h"`
	TeamA           int  `json:"team_a"`
	TeamHDifficulty int  `json:"team_h_difficulty"`
	TeamADifficulty int  `json:"team_a_difficulty"`
	Finished        bool `json:"finished"`
}

// Reference is the latest bootstrap + fixtures snapshot the core reads from.
type Reference struct {
	Periods   []Period  `json:"events"`
	Players   []Player  `json:"elements"`
	Teams     []Team    `json:"teams"`
	Fixtures  []Fixture `json:"fixtures"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PlayerByID indexes the player list.
func (r *Reference) PlayerByID() map[int]Player {
	if r == nil {
		return map[int]Player{}
	}
	out := make(map[int]Player, len(r.Players))
	for _, p := range r.Players {
		out[p.ID] = p
	}
	return out
}

// Period returns the period with the given id, if present.
func (r *Reference) Period(id int) (Period, bool) {
	if r == nil {
		return Period{}, false
	}
	for _, p := range r.Periods {
		if p.ID == id {
			return p, true
		}
	}
	return Period{}, false
}

// Pick is one squad slot of an entry for a gameweek.
type Pick struct {
	Element int `json:"element"`

	// Position is the squad slot, 1..15. Slots 12..15 are the bench.
	Position int `json:"position"`

	// Multiplier is 0 for players that did not count (bench, or
	// auto-subbed out), 2 or 3 for the captain.
	Multiplier    int  `json:"multiplier"`
	IsCaptain     bool `json:"is_captain"`
	IsViceCaptain bool `json:"is_vice_captain"`
}

// StartingSlots is the number of squad slots that start a gameweek.
const StartingSlots = 11

// IsBench reports whether the pick was named on the bench.
func (p Pick) IsBench() bool {
	return p.Position > StartingSlots
}

// AutomaticSub records an automatic substitution applied by upstream.
type AutomaticSub struct {
	ElementIn  int `json:"element_in"`
	ElementOut int `json:"element_out"`
}

// EntityPicks is a single entry's squad for one gameweek.
type EntityPicks struct {
	EntryID       int            `json:"entry_id"`
	Picks         []Pick         `json:"picks"`
	AutomaticSubs []AutomaticSub `json:"automatic_subs,omitempty"`
}

// StandingEntry is one row of a ranked standings page.
type StandingEntry struct {
	EntryID int `json:"entry"`
	Rank    int `json:"rank"`
}

// StandingsPage is a single page of a classic league's standings.
type StandingsPage struct {
	Page    int             `json:"page"`
	Entries []StandingEntry `json:"results"`
	HasNext bool            `json:"has_next"`
}
