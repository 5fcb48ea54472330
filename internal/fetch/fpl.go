package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/fpl-cohorts/internal/model"
)

// Endpoint labels used in metrics.
const (
	EndpointStandings = "standings"
	EndpointPicks     = "picks"
	EndpointBootstrap = "bootstrap"
	EndpointFixtures  = "fixtures"
)

// StandingsPageSize is the number of entries upstream returns per page.
const StandingsPageSize = 50

// FetchStandingsPage returns one page of a classic league's standings.
func (c *Client) FetchStandingsPage(ctx context.Context, leagueID, page int) (*model.StandingsPage, error) {
	var response struct {
		Standings struct {
			HasNext bool                  `json:"has_next"`
			Page    int                   `json:"page"`
			Results []model.StandingEntry `json:"results"`
		} `json:"standings"`
	}

	resource := fmt.Sprintf("standings league %d page %d", leagueID, page)
	path := fmt.Sprintf("/leagues-classic/%d/standings/?page_standings=%d", leagueID, page)
	if err := c.getJSON(ctx, EndpointStandings, resource, path, &response); err != nil {
		return nil, err
	}

	out := &model.StandingsPage{
		Page:    response.Standings.Page,
		Entries: response.Standings.Results,
		HasNext: response.Standings.HasNext,
	}
	if out.Page == 0 {
		out.Page = page
	}
	return out, nil
}

// FetchPicks returns an entry's squad for a gameweek.
func (c *Client) FetchPicks(ctx context.Context, entryID, period int) (*model.EntityPicks, error) {
	var response struct {
		Picks         []model.Pick         `json:"picks"`
		AutomaticSubs []model.AutomaticSub `json:"automatic_subs"`
	}

	resource := fmt.Sprintf("picks entry %d gameweek %d", entryID, period)
	path := fmt.Sprintf("/entry/%d/event/%d/picks/", entryID, period)
	if err := c.getJSON(ctx, EndpointPicks, resource, path, &response); err != nil {
		return nil, err
	}

	return &model.EntityPicks{
		EntryID:       entryID,
		Picks:         response.Picks,
		AutomaticSubs: response.AutomaticSubs,
	}, nil
}

// decimal accepts both JSON numbers and numeric strings; upstream sends
// several player stats as strings such as "5.2".
type decimal float64

func (d *decimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*d = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid decimal %q: %w", s, err)
		}
		*d = decimal(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*d = decimal(v)
	return nil
}

type bootstrapEvent struct {
	ID           int        `json:"id"`
	Finished     bool       `json:"finished"`
	IsCurrent    bool       `json:"is_current"`
	DeadlineTime *time.Time `json:"deadline_time"`
	DataChecked  bool       `json:"data_checked"`
}

type bootstrapElement struct {
	ID                int     `json:"id"`
	Team              int     `json:"team"`
	ElementType       int     `json:"element_type"`
	NowCost           int     `json:"now_cost"`
	TotalPoints       int     `json:"total_points"`
	Minutes           int     `json:"minutes"`
	Form              decimal `json:"form"`
	EPNext            decimal `json:"ep_next"`
	SelectedByPercent decimal `json:"selected_by_percent"`
	XGIPer90          decimal `json:"expected_goal_involvements_per_90"`
}

type bootstrapResponse struct {
	Events   []bootstrapEvent   `json:"events"`
	Elements []bootstrapElement `json:"elements"`
	Teams    []model.Team       `json:"teams"`
}

// FetchBootstrap returns gameweeks, players and teams.
func (c *Client) FetchBootstrap(ctx context.Context) ([]model.Period, []model.Player, []model.Team, error) {
	var response bootstrapResponse
	if err := c.getJSON(ctx, EndpointBootstrap, "bootstrap", "/bootstrap-static/", &response); err != nil {
		return nil, nil, nil, err
	}

	periods := make([]model.Period, 0, len(response.Events))
	for _, e := range response.Events {
		p := model.Period{
			ID:          e.ID,
			Finished:    e.Finished,
			IsCurrent:   e.IsCurrent,
			DataChecked: e.DataChecked,
		}
		if e.DeadlineTime != nil {
			p.Deadline = *e.DeadlineTime
		}
		periods = append(periods, p)
	}

	players := make([]model.Player, 0, len(response.Elements))
	for _, e := range response.Elements {
		players = append(players, model.Player{
			ID:                e.ID,
			Team:              e.Team,
			ElementType:       e.ElementType,
			NowCost:           e.NowCost,
			TotalPoints:       e.TotalPoints,
			Minutes:           e.Minutes,
			Form:              float64(e.Form),
			EPNext:            float64(e.EPNext),
			SelectedByPercent: float64(e.SelectedByPercent),
			XGIPer90:          float64(e.XGIPer90),
		})
	}

	return periods, players, response.Teams, nil
}

// FetchFixtures returns every fixture of the season.
func (c *Client) FetchFixtures(ctx context.Context) ([]model.Fixture, error) {
	var fixtures []model.Fixture
	if err := c.getJSON(ctx, EndpointFixtures, "fixtures", "/fixtures/", &fixtures); err != nil {
		return nil, err
	}
	return fixtures, nil
}

// FetchReference loads bootstrap and fixtures into one snapshot.
func (c *Client) FetchReference(ctx context.Context) (*model.Reference, error) {
	periods, players, teams, err := c.FetchBootstrap(ctx)
	if err != nil {
		return nil, err
	}
	fixtures, err := c.FetchFixtures(ctx)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"periods":  len(periods),
		"players":  len(players),
		"fixtures": len(fixtures),
	}).Debug("Loaded reference data")

	return &model.Reference{
		Periods:  periods,
		Players:  players,
		Teams:    teams,
		Fixtures: fixtures,
	}, nil
}
