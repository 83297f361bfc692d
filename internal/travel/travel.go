// Package travel provides transit alternatives for the session's travel
// query. Sources are injected; the orchestrator never branches on the
// concrete implementation.
package travel

import (
	"context"

	"railwatch/internal/model"
)

// PlannedTrip describes the journey the user originally planned.
type PlannedTrip struct {
	From             string `json:"from"`
	To               string `json:"to"`
	PlannedDeparture string `json:"plannedDeparture"`
}

// Source is the transit collaborator contract. Alternatives honors
// query.DepartAfter as an "HH:MM" floor; absent or invalid values mean no
// floor.
type Source interface {
	PlannedTrip(ctx context.Context) (PlannedTrip, error)
	Disruption(ctx context.Context) (model.Disruption, error)
	Alternatives(ctx context.Context, query model.TravelQuery) ([]model.RouteOption, error)
}
