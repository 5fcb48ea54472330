package model

import (
	"time"
)

// Metric names used as keys of BandSummary averages and distributions.
const (
	MetricPPM            = "ppm"
	MetricFDR            = "fdr"
	MetricForm           = "form"
	MetricExpectedPoints = "expectedPoints"
	MetricOwnership      = "ownership"
	MetricMinPercent     = "minPercent"
	MetricXGI            = "xgi"
)

// MetricNames lists every derived per-entity metric in a stable order.
var MetricNames = []string{
	MetricPPM,
	MetricFDR,
	MetricForm,
	MetricExpectedPoints,
	MetricOwnership,
	MetricMinPercent,
	MetricXGI,
}

// EntityMetrics are the derived scalars for one sampled entry.
// A NaN value means the metric could not be computed for this entry.
type EntityMetrics struct {
	EntryID int `json:"entry_id"`

	PPM            float64 `json:"ppm"`
	FDR            float64 `json:"fdr"`
	Form           float64 `json:"form"`
	ExpectedPoints float64 `json:"expectedPoints"`
	Ownership      float64 `json:"ownership"`
	MinPercent     float64 `json:"minPercent"`
	XGI            float64 `json:"xgi"`
}

// Values returns the metrics keyed by metric name.
func (m EntityMetrics) Values() map[string]float64 {
	return map[string]float64{
		MetricPPM:            m.PPM,
		MetricFDR:            m.FDR,
		MetricForm:           m.Form,
		MetricExpectedPoints: m.ExpectedPoints,
		MetricOwnership:      m.Ownership,
		MetricMinPercent:     m.MinPercent,
		MetricXGI:            m.XGI,
	}
}

// BandSummary is the cohort output for one (gameweek, band) pair.
type BandSummary struct {
	SampleSize int `json:"sampleSize"`
	Attempted  int `json:"attempted"`

	// Averages holds nil for metrics without a single finite sample.
	Averages map[string]*float64 `json:"averages"`

	// Distributions holds every finite per-entry value, for percentile
	// and histogram rendering on the client.
	Distributions map[string][]float64 `json:"distributions"`
}

// PlayerPickCounts are the ownership counters for one player in a band.
type PlayerPickCounts struct {
	Ownership        int `json:"ownership"`
	CaptainCount     int `json:"captainCount"`
	ViceCaptainCount int `json:"viceCaptainCount"`
	BenchCount       int `json:"benchCount"`
	MultiplierSum    int `json:"multiplierSum"`
}

// PicksAggregate is the ownership side output for one (gameweek, band).
type PicksAggregate struct {
	SampleSize int                       `json:"sampleSize"`
	Players    map[int]*PlayerPickCounts `json:"players"`
	Formations map[string]int            `json:"formations"`
}

// CohortSnapshot is the cached and archived cohort artifact for a gameweek.
type CohortSnapshot struct {
	Gameweek  int                    `json:"gameweek"`
	Timestamp time.Time              `json:"timestamp"`
	Buckets   map[string]BandSummary `json:"buckets"`
}

// PicksSnapshot is the sibling ownership artifact for a gameweek.
type PicksSnapshot struct {
	Gameweek  int                        `json:"gameweek"`
	Timestamp time.Time                  `json:"timestamp"`
	Buckets   map[string]*PicksAggregate `json:"buckets"`
}

// ReferenceSnapshot freezes the player and fixture data a gameweek's
// cohort was computed against.
type ReferenceSnapshot struct {
	Gameweek  int       `json:"gameweek"`
	Timestamp time.Time `json:"timestamp"`
	Players   []Player  `json:"players"`
	Teams     []Team    `json:"teams"`
	Fixtures  []Fixture `json:"fixtures"`
}

// Snapshot pairs the cohort and picks artifacts of one compute run.
type Snapshot struct {
	Cohorts *CohortSnapshot `json:"cohorts"`
	Picks   *PicksSnapshot  `json:"picks"`
}

// TotalSampled sums the sample sizes of every band.
func (c *CohortSnapshot) TotalSampled() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, b := range c.Buckets {
		total += b.SampleSize
	}
	return total
}
