package travel

import (
	"context"
	"sync"

	"railwatch/internal/model"
	"railwatch/internal/timeutil"
)

// MockSource serves a fixed set of alternatives and a settable disruption
// state, for demos and tests.
type MockSource struct {
	mu         sync.Mutex
	disruption model.Disruption
	options    []model.RouteOption
}

func NewMockSource() *MockSource {
	return &MockSource{
		disruption: model.DisruptionNone,
		options: []model.RouteOption{
			{ID: "a", Summary: "14:28 via Utrecht", DepartureTime: "14:28", ArrivalTime: "15:42", Changes: 1},
			{ID: "b", Summary: "14:46 direct", DepartureTime: "14:46", ArrivalTime: "16:05", Changes: 0},
			{ID: "c", Summary: "14:22 via Den Haag", DepartureTime: "14:22", ArrivalTime: "15:55", Changes: 1},
		},
	}
}

// SetDisruption flips the simulated service status. Demo convenience.
func (m *MockSource) SetDisruption(d model.Disruption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disruption = d
}

// SetOptions replaces the simulated alternatives.
func (m *MockSource) SetOptions(options []model.RouteOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options = append([]model.RouteOption(nil), options...)
}

func (m *MockSource) PlannedTrip(context.Context) (PlannedTrip, error) {
	return PlannedTrip{From: "Amsterdam", To: "Rotterdam", PlannedDeparture: "14:32"}, nil
}

func (m *MockSource) Disruption(context.Context) (model.Disruption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disruption, nil
}

func (m *MockSource) Alternatives(_ context.Context, query model.TravelQuery) ([]model.RouteOption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	floor, hasFloor := timeutil.ParseHHMM(query.DepartAfter)
	out := make([]model.RouteOption, 0, len(m.options))
	for _, opt := range m.options {
		if hasFloor {
			if dep, ok := timeutil.ParseHHMM(opt.DepartureTime); ok && dep < floor {
				continue
			}
		}
		out = append(out, opt)
	}
	return out, nil
}
