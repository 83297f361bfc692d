// Package monitor owns the recommendation session: the travel query, the
// user's selected option with its inferred punctuality buffer, and the
// cycle that turns a calendar change into at most one validated alert.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"railwatch/internal/calendar"
	appLog "railwatch/internal/log"
	"railwatch/internal/model"
	"railwatch/internal/notify"
	"railwatch/internal/reason"
	"railwatch/internal/timeutil"
	"railwatch/internal/travel"
	"railwatch/internal/watch"
)

const defaultBufferMinutes = 10

// Monitor drives one full recommendation cycle per qualifying calendar
// change. Session state is guarded by a mutex for memory safety only;
// a user selection racing an in-flight cycle resolves last-writer-wins,
// and in-flight cycles are never cancelled.
type Monitor struct {
	calendar  calendar.Source
	travel    travel.Source
	reasoning reason.Provider
	notifier  notify.Notifier
	now       func() time.Time

	mu              sync.Mutex
	query           model.TravelQuery
	selected        *model.RouteOption
	bufferMinutes   *int
	lastFingerprint string
}

func New(cal calendar.Source, trav travel.Source, reasoning reason.Provider, notifier notify.Notifier, initialQuery model.TravelQuery) *Monitor {
	return &Monitor{
		calendar:  cal,
		travel:    trav,
		reasoning: reasoning,
		notifier:  notifier,
		now:       time.Now,
		query:     initialQuery,
	}
}

// UseLocation pins wall-clock computations (deadlines, widening floors) to
// loc instead of the process-local zone.
func (m *Monitor) UseLocation(loc *time.Location) {
	if loc != nil {
		m.now = func() time.Time { return time.Now().In(loc) }
	}
}

// Session is a read-only view of the current session state.
type Session struct {
	Query         model.TravelQuery  `json:"query"`
	Selected      *model.RouteOption `json:"selected,omitempty"`
	BufferMinutes *int               `json:"bufferMinutes,omitempty"`
}

func (m *Monitor) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Session{Query: m.query}
	if m.selected != nil {
		sel := *m.selected
		s.Selected = &sel
	}
	if m.bufferMinutes != nil {
		b := *m.bufferMinutes
		s.BufferMinutes = &b
	}
	return s
}

// SetTravelQuery shallow-merges the patch into the session's query.
func (m *Monitor) SetTravelQuery(patch model.TravelQueryPatch) {
	m.mu.Lock()
	m.query = patch.Apply(m.query)
	q := m.query
	m.mu.Unlock()
	appLog.Info("travel query updated", "from", q.From, "to", q.To, "station", q.Station, "depart_after", q.DepartAfter)
}

// SelectOption stores the option and infers the user's punctuality buffer
// from meetingStart - selectedArrival, clamped to [5,90] minutes. When the
// buffer cannot be computed (no upcoming meeting, unparsable arrival, or a
// calendar fetch failure) the default of 10 is stored instead. The option
// and the buffer are always set together.
func (m *Monitor) SelectOption(ctx context.Context, option model.RouteOption) {
	now := m.now()
	buffer := defaultBufferMinutes

	blocks, err := m.calendar.BusyBlocks(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		appLog.Error("selectOption calendar fetch failed, using default buffer", err)
	} else if next, ok := calendar.NextUpcoming(blocks, now); ok {
		if arrMins, aok := timeutil.ParseHHMM(option.ArrivalTime); aok {
			inferred := timeutil.MinutesOfDay(next.Start) - arrMins
			if inferred > 0 {
				buffer = clamp(inferred, 5, 90)
			}
		}
	}

	m.mu.Lock()
	opt := option
	m.selected = &opt
	m.bufferMinutes = &buffer
	m.mu.Unlock()

	appLog.Info("option selected", "id", option.ID, "arrival", option.ArrivalTime, "inferred_buffer", buffer)
}

// ClearSelection resets the selected option and the inferred buffer
// together; never one without the other.
func (m *Monitor) ClearSelection() {
	m.mu.Lock()
	m.selected = nil
	m.bufferMinutes = nil
	m.mu.Unlock()
	appLog.Info("selection cleared")
}

// OnCalendarChanged is the detector's entry point for one change event.
func (m *Monitor) OnCalendarChanged(ctx context.Context, change watch.Change) {
	m.runCycle(ctx, change.After.Fingerprint())
}

// Recheck forces a recommendation cycle regardless of the deduplication
// guard. Used by the demo controls and the control API.
func (m *Monitor) Recheck(ctx context.Context) {
	m.runCycle(ctx, "")
}

func (m *Monitor) runCycle(ctx context.Context, fingerprint string) {
	now := m.now()

	// Idempotence guard against duplicate detector callbacks.
	if fingerprint != "" {
		m.mu.Lock()
		dup := m.lastFingerprint == fingerprint
		if !dup {
			m.lastFingerprint = fingerprint
		}
		m.mu.Unlock()
		if dup {
			appLog.Debug("duplicate change fingerprint, ignoring", "fingerprint", fingerprint)
			return
		}
	}

	blocks, err := m.calendar.BusyBlocks(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		appLog.Error("cycle calendar fetch failed, aborting", err)
		return
	}
	nextMeeting, ok := calendar.NextUpcoming(blocks, now)
	if !ok {
		appLog.Debug("no upcoming meeting, nothing to recommend")
		return
	}

	m.mu.Lock()
	query := m.query
	var selected *model.RouteOption
	if m.selected != nil {
		sel := *m.selected
		selected = &sel
	}
	buffer := defaultBufferMinutes
	if m.bufferMinutes != nil {
		buffer = *m.bufferMinutes
	}
	m.mu.Unlock()

	meetingStartMins := timeutil.MinutesOfDay(nextMeeting.Start)
	arriveByMins := meetingStartMins - buffer
	if arriveByMins < 0 {
		arriveByMins = 0
	}
	meetingStartHHMM := timeutil.FormatHHMM(meetingStartMins)
	arriveByHHMM := timeutil.FormatHHMM(arriveByMins)

	appLog.Info("cycle timing", "meeting_start", meetingStartHHMM, "arrive_by", arriveByHHMM, "buffer", buffer)

	alternatives, err := m.travel.Alternatives(ctx, query)
	if err != nil {
		appLog.Error("alternatives fetch failed, aborting cycle", err)
		return
	}

	// Search widening: a meeting moving earlier can require departures the
	// user's original window excluded. The floor is anchored to "now" so
	// already-departed trains never reappear.
	alternatives, effectiveDepartAfter, usedWidened := m.widen(ctx, query, alternatives, now)

	if len(alternatives) == 0 {
		appLog.Info("no alternatives even after widening, no recommendation")
		return
	}

	disruption := model.DisruptionNone
	if d, err := m.travel.Disruption(ctx); err == nil {
		disruption = d
	}

	rec, err := m.reasoning.Recommend(ctx, reason.Request{
		Alternatives:      alternatives,
		Selected:          selected,
		Disruption:        disruption,
		BufferMinutes:     buffer,
		MeetingStartHHMM:  meetingStartHHMM,
		ArriveByHHMM:      arriveByHHMM,
		Now:               now,
		DepartAfter:       effectiveDepartAfter,
		UsedWidenedSearch: usedWidened,
	})
	if err != nil {
		appLog.Error("recommendation failed, aborting cycle", err)
		return
	}
	if rec == nil {
		// Fail-closed: an unverifiable recommendation is worse than none.
		appLog.Info("no validated recommendation, suppressing notification")
		return
	}

	if rec.Meta == nil {
		rec.Meta = map[string]any{}
	}
	rec.Meta["usedWidenedSearch"] = usedWidened

	body := "Your calendar changed. Finding the best train based on your updated schedule."
	if selected != nil {
		body = "Your calendar changed. Checking if your selected train still fits."
	}

	appLog.Info("notifying", "chosen", rec.Chosen.ID, "summary", rec.Chosen.Summary, "confidence", rec.Confidence)
	m.notifier.Notify(model.TravelAlert{
		ID:             uuid.NewString(),
		Type:           model.AlertCalendarChange,
		Title:          "Travel update",
		Body:           body,
		CreatedAt:      now,
		Recommendation: rec,
	})
}

// widen relaxes the depart-after floor to the current instant when that is
// strictly earlier than the query's floor, or when the query has no floor
// at all (so already-departed options drop out), and adopts the widened
// candidate list only when it is non-empty.
func (m *Monitor) widen(ctx context.Context, query model.TravelQuery, current []model.RouteOption, now time.Time) ([]model.RouteOption, string, bool) {
	widenMins := timeutil.MinutesOfDay(now)
	if widenMins < 0 {
		widenMins = 0
	}
	widenedHHMM := timeutil.FormatHHMM(widenMins)

	userMins, hasUser := timeutil.ParseHHMM(query.DepartAfter)
	if hasUser && userMins <= widenMins {
		// The user's floor is already at least as wide.
		return current, query.DepartAfter, false
	}

	widenedQuery := query
	widenedQuery.DepartAfter = widenedHHMM
	widened, err := m.travel.Alternatives(ctx, widenedQuery)
	if err != nil {
		appLog.Error("widened alternatives fetch failed, keeping original list", err)
		return current, query.DepartAfter, false
	}
	if len(widened) == 0 {
		return current, query.DepartAfter, false
	}

	appLog.Info("search widened", "floor", widenedHHMM, "count", len(widened))
	return widened, widenedHHMM, true
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
