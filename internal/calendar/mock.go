package calendar

import (
	"context"
	"sync"
	"time"

	"railwatch/internal/model"
)

// MockSource is an in-memory calendar for demos and tests. With no blocks
// set it simulates one meeting three hours out, lasting 30 minutes, seeded
// on first use so that demo shifts actually move it.
type MockSource struct {
	mu     sync.Mutex
	blocks []model.BusyBlock
	set    bool
}

func NewMockSource() *MockSource {
	return &MockSource{}
}

// SetBlocks replaces the simulated calendar contents.
func (m *MockSource) SetBlocks(blocks []model.BusyBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append([]model.BusyBlock(nil), blocks...)
	m.set = true
}

// ShiftNextMeeting moves every stored block by delta. Used by the demo
// controls to simulate a meeting moving earlier or later. The simulated
// default meeting is materialized first so the shift is observable even
// before any read.
func (m *MockSource) ShiftNextMeeting(delta time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.materializeLocked(time.Now())
	for i := range m.blocks {
		m.blocks[i].Start = m.blocks[i].Start.Add(delta)
		m.blocks[i].End = m.blocks[i].End.Add(delta)
	}
}

// materializeLocked seeds the simulated meeting three hours from ref. The
// caller must hold mu.
func (m *MockSource) materializeLocked(ref time.Time) {
	if m.set {
		return
	}
	start := ref.Add(3 * time.Hour).Truncate(time.Hour)
	m.blocks = []model.BusyBlock{{
		ID:    "mock-meeting",
		Title: "Meeting",
		Start: start,
		End:   start.Add(30 * time.Minute),
	}}
	m.set = true
}

func (m *MockSource) BusyBlocks(_ context.Context, from, to time.Time) ([]model.BusyBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.materializeLocked(from)

	out := make([]model.BusyBlock, 0, len(m.blocks))
	for _, b := range m.blocks {
		if b.End.Before(from) || b.Start.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
