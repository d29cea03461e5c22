package entity

import "time"

// RegionReport summarises one region kind's share of a pass.
type RegionReport struct {
	Kind     RegionKind `json:"kind"`
	Present  bool       `json:"present"`
	Dropped  bool       `json:"dropped"`
	Targets  int        `json:"targets"`
	Skipped  int        `json:"skipped"`
	Reserved int        `json:"reserved"`
	Photos   int        `json:"photos"`
	Empty    int        `json:"empty"`
	Failed   int        `json:"failed"`
}

// PassReport is the outcome of one enrichment sweep.
type PassReport struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Regions   []RegionReport `json:"regions"`
}

// Fetches returns the number of resolver calls the pass issued.
func (r *PassReport) Fetches() int {
	n := 0
	for _, rr := range r.Regions {
		n += rr.Reserved
	}
	return n
}

// Region returns the report for kind, or nil.
func (r *PassReport) Region(kind RegionKind) *RegionReport {
	for i := range r.Regions {
		if r.Regions[i].Kind == kind {
			return &r.Regions[i]
		}
	}
	return nil
}
