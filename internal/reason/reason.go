// Package reason produces a single validated travel recommendation for the
// orchestrator. Two providers exist: a deterministic rule provider and a
// guardrailed LLM provider that constrains, validates and retries an
// untrusted text backend.
package reason

import (
	"context"
	"time"

	"railwatch/internal/model"
)

// Request carries everything a provider needs for one recommendation
// cycle. Alternatives is never empty; the orchestrator guards that.
type Request struct {
	Alternatives []model.RouteOption
	Selected     *model.RouteOption
	Disruption   model.Disruption

	BufferMinutes    int
	MeetingStartHHMM string
	ArriveByHHMM     string

	Now               time.Time
	DepartAfter       string // effective "HH:MM" floor; empty means none
	UsedWidenedSearch bool
}

// Provider is the recommendation contract. A nil recommendation with a nil
// error means "no recommendation"; callers suppress the notification and
// must not treat it as an error.
type Provider interface {
	Recommend(ctx context.Context, req Request) (*model.Recommendation, error)
}
