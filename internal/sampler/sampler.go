// Package sampler picks a bounded, evenly spread set of entries from the
// overall standings for each population band.
package sampler

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/fpl-cohorts/internal/model"
)

// Defaults for Options.
const (
	DefaultLeagueID       = 314 // the overall league
	DefaultPageSize       = 50
	DefaultSamplesPerBand = 8
	DefaultCap            = 500
)

// StandingsFetcher loads a standings page. *fetch.Client implements it.
type StandingsFetcher interface {
	FetchStandingsPage(ctx context.Context, leagueID, page int) (*model.StandingsPage, error)
}

// Options tune the sampling walk.
type Options struct {
	LeagueID       int
	PageSize       int
	SamplesPerBand int
	// Cap bounds the number of entries collected per band.
	Cap int
}

func (o Options) withDefaults() Options {
	if o.LeagueID <= 0 {
		o.LeagueID = DefaultLeagueID
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.SamplesPerBand <= 0 {
		o.SamplesPerBand = DefaultSamplesPerBand
	}
	if o.Cap <= 0 {
		o.Cap = DefaultCap
	}
	return o
}

// Sampler walks standings pages for a band.
type Sampler struct {
	fetcher StandingsFetcher
	opts    Options
}

// New creates a sampler.
func New(fetcher StandingsFetcher, opts Options) *Sampler {
	return &Sampler{fetcher: fetcher, opts: opts.withDefaults()}
}

// Cap returns the per band entry cap.
func (s *Sampler) Cap() int {
	return s.opts.Cap
}

// SamplePages returns the ascending pages visited for a band: page 1, every
// step-th page and the last page, where
// step = max(1, totalPages/samplesPerBand).
func SamplePages(maxRank, pageSize, samplesPerBand int) []int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if samplesPerBand <= 0 {
		samplesPerBand = DefaultSamplesPerBand
	}
	totalPages := (maxRank + pageSize - 1) / pageSize
	if totalPages <= 1 {
		return []int{1}
	}

	step := totalPages / samplesPerBand
	if step < 1 {
		step = 1
	}

	pages := []int{1}
	for p := step; p < totalPages; p += step {
		if p > 1 {
			pages = append(pages, p)
		}
	}
	return append(pages, totalPages)
}

// collector accumulates unique in-band entry ids up to a cap.
type collector struct {
	maxRank int
	cap     int
	seen    map[int]struct{}
	ids     []int
}

func (c *collector) add(entries []model.StandingEntry) {
	for _, e := range entries {
		if c.full() {
			return
		}
		if e.Rank > c.maxRank {
			continue
		}
		if _, dup := c.seen[e.EntryID]; dup {
			continue
		}
		c.seen[e.EntryID] = struct{}{}
		c.ids = append(c.ids, e.EntryID)
	}
}

func (c *collector) full() bool {
	return len(c.ids) >= c.cap
}

// Sample returns up to Cap unique entry ids ranked within band.MaxRank.
// Failed pages are logged and skipped. When a planned page comes back empty
// the league is shorter than the band, so the walk continues page by page
// from the last non-empty page while upstream reports more. The only error
// returned is ctx's.
func (s *Sampler) Sample(ctx context.Context, band model.Band) ([]int, error) {
	log := logrus.WithField("band", band.Key)
	pages := SamplePages(band.MaxRank, s.opts.PageSize, s.opts.SamplesPerBand)
	totalPages := pages[len(pages)-1]

	c := &collector{maxRank: band.MaxRank, cap: s.opts.Cap, seen: make(map[int]struct{})}

	lastFilled, hasNext, short := 0, false, false
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return c.ids, err
		}

		res, err := s.fetcher.FetchStandingsPage(ctx, s.opts.LeagueID, page)
		if err != nil {
			log.WithField("page", page).WithError(err).Warn("Skipping standings page")
			continue
		}
		if len(res.Entries) == 0 {
			short = true
			break
		}

		c.add(res.Entries)
		lastFilled, hasNext = page, res.HasNext
		if c.full() {
			break
		}
	}

	if short && !c.full() && lastFilled > 0 && hasNext {
		log.WithField("from_page", lastFilled+1).Debug("League shorter than band, walking remaining pages")
		for page := lastFilled + 1; page <= totalPages && !c.full(); page++ {
			if err := ctx.Err(); err != nil {
				return c.ids, err
			}

			res, err := s.fetcher.FetchStandingsPage(ctx, s.opts.LeagueID, page)
			if err != nil {
				log.WithField("page", page).WithError(err).Warn("Skipping standings page")
				continue
			}
			if len(res.Entries) == 0 {
				break
			}
			c.add(res.Entries)
			if !res.HasNext {
				break
			}
		}
	}

	log.WithFields(logrus.Fields{
		"pages":   len(pages),
		"sampled": len(c.ids),
	}).Debug("Band sample collected")
	return c.ids, nil
}
