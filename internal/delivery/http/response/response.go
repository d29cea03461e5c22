package response

import (
	"time"

	"github.com/user/enricher-service/internal/entity"
)

// PassResponse is a DTO for a manually triggered pass.
type PassResponse struct {
	Status     string                `json:"status"`
	StartedAt  time.Time             `json:"started_at"`
	DurationMS int64                 `json:"duration_ms"`
	Fetches    int                   `json:"fetches"`
	Regions    []entity.RegionReport `json:"regions"`
	Error      string                `json:"error,omitempty"`
}

// TargetsResponse lists the annotation ledger.
type TargetsResponse struct {
	Count   int                   `json:"count"`
	Targets []entity.TargetStatus `json:"targets"`
}
