package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"railwatch/internal/model"
	"railwatch/internal/reason"
	"railwatch/internal/travel"
	"railwatch/internal/watch"
)

func fixedNow() time.Time {
	return time.Date(2026, 5, 1, 16, 0, 0, 0, time.UTC)
}

type calendarFunc func(ctx context.Context, from, to time.Time) ([]model.BusyBlock, error)

func (f calendarFunc) BusyBlocks(ctx context.Context, from, to time.Time) ([]model.BusyBlock, error) {
	return f(ctx, from, to)
}

func meetingAt(hour, minute int) calendarFunc {
	start := time.Date(2026, 5, 1, hour, minute, 0, 0, time.UTC)
	return func(context.Context, time.Time, time.Time) ([]model.BusyBlock, error) {
		return []model.BusyBlock{{ID: "m", Title: "Review", Start: start, End: start.Add(30 * time.Minute)}}, nil
	}
}

// fakeTravel filters a fixed option list by the query's depart-after floor,
// mirroring how real sources honor it, and records every query it sees.
type fakeTravel struct {
	options    []model.RouteOption
	disruption model.Disruption
	queries    []model.TravelQuery
	err        error
}

func (f *fakeTravel) PlannedTrip(context.Context) (travel.PlannedTrip, error) {
	return travel.PlannedTrip{From: "Eindhoven", To: "Utrecht Centraal"}, nil
}

func (f *fakeTravel) Disruption(context.Context) (model.Disruption, error) {
	if f.disruption == "" {
		return model.DisruptionNone, nil
	}
	return f.disruption, nil
}

func (f *fakeTravel) Alternatives(_ context.Context, query model.TravelQuery) ([]model.RouteOption, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	var out []model.RouteOption
	for _, opt := range f.options {
		if query.DepartAfter != "" && opt.DepartureTime < query.DepartAfter {
			continue
		}
		out = append(out, opt)
	}
	return out, nil
}

type fakeProvider struct {
	requests []reason.Request
	rec      *model.Recommendation
	err      error
}

func (f *fakeProvider) Recommend(_ context.Context, req reason.Request) (*model.Recommendation, error) {
	f.requests = append(f.requests, req)
	return f.rec, f.err
}

type captureNotifier struct {
	alerts []model.TravelAlert
}

func (c *captureNotifier) Notify(alert model.TravelAlert) {
	c.alerts = append(c.alerts, alert)
}

func defaultOptions() []model.RouteOption {
	return []model.RouteOption{
		{ID: "a", DepartureTime: "16:20", ArrivalTime: "17:05", Summary: "16:20 direct"},
		{ID: "b", DepartureTime: "16:45", ArrivalTime: "17:30", Summary: "16:45 direct"},
	}
}

func acceptFirst() *model.Recommendation {
	return &model.Recommendation{
		Chosen:     model.RouteOption{ID: "a", DepartureTime: "16:20", ArrivalTime: "17:05", Summary: "16:20 direct"},
		Reason:     "the 16:20 should get you there with room to spare",
		Confidence: 0.8,
	}
}

func changeWithFingerprint(hour, minute int) watch.Change {
	start := time.Date(2026, 5, 1, hour, minute, 0, 0, time.UTC)
	return watch.Change{After: model.EventSnapshot{Title: "Review", Start: start, End: start.Add(30 * time.Minute)}}
}

func newTestMonitor(cal calendarFunc, trav *fakeTravel, prov *fakeProvider) (*Monitor, *captureNotifier) {
	notifier := &captureNotifier{}
	m := New(cal, trav, prov, notifier, model.TravelQuery{From: "Eindhoven", To: "Utrecht Centraal", Station: "EHV"})
	m.now = fixedNow
	return m, notifier
}

func TestCycleNotifiesWithRecommendation(t *testing.T) {
	trav := &fakeTravel{options: defaultOptions()}
	prov := &fakeProvider{rec: acceptFirst()}
	m, notifier := newTestMonitor(meetingAt(18, 0), trav, prov)

	m.OnCalendarChanged(context.Background(), changeWithFingerprint(18, 0))

	if len(notifier.alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(notifier.alerts))
	}
	alert := notifier.alerts[0]
	if alert.Type != model.AlertCalendarChange {
		t.Fatalf("alert type = %s", alert.Type)
	}
	if alert.ID == "" {
		t.Fatalf("alert must carry an id")
	}
	if alert.Recommendation == nil || alert.Recommendation.Chosen.ID != "a" {
		t.Fatalf("recommendation missing or wrong: %+v", alert.Recommendation)
	}
	// With no floor on the query the cycle re-fetches with floor = now.
	if got := alert.Recommendation.Meta["usedWidenedSearch"]; got != true {
		t.Fatalf("usedWidenedSearch meta = %v", got)
	}
	if alert.Body != "Your calendar changed. Finding the best train based on your updated schedule." {
		t.Fatalf("unexpected body without selection: %q", alert.Body)
	}
}

func TestDuplicateFingerprintRunsOnce(t *testing.T) {
	trav := &fakeTravel{options: defaultOptions()}
	prov := &fakeProvider{rec: acceptFirst()}
	m, notifier := newTestMonitor(meetingAt(18, 0), trav, prov)

	ctx := context.Background()
	m.OnCalendarChanged(ctx, changeWithFingerprint(18, 0))
	m.OnCalendarChanged(ctx, changeWithFingerprint(18, 0))

	if len(notifier.alerts) != 1 {
		t.Fatalf("duplicate change must be ignored, got %d alerts", len(notifier.alerts))
	}
	if len(prov.requests) != 1 {
		t.Fatalf("provider called %d times", len(prov.requests))
	}

	// A genuinely new fingerprint runs again.
	m.OnCalendarChanged(ctx, changeWithFingerprint(17, 40))
	if len(notifier.alerts) != 2 {
		t.Fatalf("new fingerprint must run a cycle, got %d alerts", len(notifier.alerts))
	}
}

func TestDefaultBufferYieldsDeadlineTenBeforeMeeting(t *testing.T) {
	trav := &fakeTravel{options: defaultOptions()}
	prov := &fakeProvider{rec: acceptFirst()}
	m, _ := newTestMonitor(meetingAt(17, 40), trav, prov)

	m.OnCalendarChanged(context.Background(), changeWithFingerprint(17, 40))

	if len(prov.requests) != 1 {
		t.Fatalf("provider called %d times", len(prov.requests))
	}
	req := prov.requests[0]
	if req.MeetingStartHHMM != "17:40" || req.ArriveByHHMM != "17:30" {
		t.Fatalf("timing = start %s arriveBy %s", req.MeetingStartHHMM, req.ArriveByHHMM)
	}
	if req.BufferMinutes != 10 {
		t.Fatalf("default buffer = %d", req.BufferMinutes)
	}
}

func TestSelectOptionInfersBuffer(t *testing.T) {
	trav := &fakeTravel{options: defaultOptions()}
	prov := &fakeProvider{rec: acceptFirst()}
	m, _ := newTestMonitor(meetingAt(18, 0), trav, prov)

	// Meeting 18:00, arrival 17:30: a 30 minute habit.
	m.SelectOption(context.Background(), model.RouteOption{ID: "b", ArrivalTime: "17:30"})

	s := m.Session()
	if s.Selected == nil || s.Selected.ID != "b" {
		t.Fatalf("selection not stored: %+v", s.Selected)
	}
	if s.BufferMinutes == nil || *s.BufferMinutes != 30 {
		t.Fatalf("inferred buffer = %v", s.BufferMinutes)
	}

	// The inferred buffer drives the next deadline.
	m.OnCalendarChanged(context.Background(), changeWithFingerprint(18, 0))
	req := prov.requests[len(prov.requests)-1]
	if req.ArriveByHHMM != "17:30" {
		t.Fatalf("arriveBy with inferred buffer = %s", req.ArriveByHHMM)
	}
	if req.Selected == nil || req.Selected.ID != "b" {
		t.Fatalf("selection not forwarded to the provider")
	}
}

func TestSelectOptionBufferClampAndFallback(t *testing.T) {
	cases := []struct {
		name    string
		meeting calendarFunc
		arrival string
		want    int
	}{
		{"clamped to ninety", meetingAt(18, 0), "16:00", 90},
		{"clamped to five", meetingAt(18, 0), "17:57", 5},
		{"arrival after meeting falls back", meetingAt(18, 0), "18:15", 10},
		{"unparsable arrival falls back", meetingAt(18, 0), "late", 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newTestMonitor(tc.meeting, &fakeTravel{options: defaultOptions()}, &fakeProvider{})
			m.SelectOption(context.Background(), model.RouteOption{ID: "x", ArrivalTime: tc.arrival})
			s := m.Session()
			if s.BufferMinutes == nil || *s.BufferMinutes != tc.want {
				t.Fatalf("buffer = %v, want %d", s.BufferMinutes, tc.want)
			}
		})
	}
}

func TestSelectOptionCalendarFailureUsesDefault(t *testing.T) {
	failing := calendarFunc(func(context.Context, time.Time, time.Time) ([]model.BusyBlock, error) {
		return nil, errors.New("calendar unavailable")
	})
	m, _ := newTestMonitor(failing, &fakeTravel{options: defaultOptions()}, &fakeProvider{})

	m.SelectOption(context.Background(), model.RouteOption{ID: "a", ArrivalTime: "17:05"})

	s := m.Session()
	if s.Selected == nil || s.BufferMinutes == nil || *s.BufferMinutes != 10 {
		t.Fatalf("selection should stick with the default buffer: %+v", s)
	}
}

func TestClearSelectionResetsBothFields(t *testing.T) {
	m, _ := newTestMonitor(meetingAt(18, 0), &fakeTravel{options: defaultOptions()}, &fakeProvider{})

	m.SelectOption(context.Background(), model.RouteOption{ID: "a", ArrivalTime: "17:05"})
	m.ClearSelection()

	s := m.Session()
	if s.Selected != nil || s.BufferMinutes != nil {
		t.Fatalf("clear must drop both fields: %+v", s)
	}
}

func TestSelectedBodyVariant(t *testing.T) {
	trav := &fakeTravel{options: defaultOptions()}
	prov := &fakeProvider{rec: acceptFirst()}
	m, notifier := newTestMonitor(meetingAt(18, 0), trav, prov)

	m.SelectOption(context.Background(), model.RouteOption{ID: "a", ArrivalTime: "17:05"})
	m.OnCalendarChanged(context.Background(), changeWithFingerprint(18, 0))

	if len(notifier.alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(notifier.alerts))
	}
	if notifier.alerts[0].Body != "Your calendar changed. Checking if your selected train still fits." {
		t.Fatalf("unexpected body with selection: %q", notifier.alerts[0].Body)
	}
}

func TestWideningAdoptsEarlierDepartures(t *testing.T) {
	// The user's floor (16:30) hides the 16:20, but the meeting has moved to
	// 16:55 so arriveBy is 16:45 and only the 16:20 makes it.
	trav := &fakeTravel{options: []model.RouteOption{
		{ID: "a", DepartureTime: "16:20", ArrivalTime: "16:40", Summary: "16:20 direct"},
	}}
	prov := &fakeProvider{rec: &model.Recommendation{
		Chosen:     trav.options[0],
		Reason:     "the earlier train should make the moved meeting comfortably",
		Confidence: 0.7,
	}}
	m, notifier := newTestMonitor(meetingAt(16, 55), trav, prov)
	after := "16:30"
	m.SetTravelQuery(model.TravelQueryPatch{DepartAfter: &after})

	m.OnCalendarChanged(context.Background(), changeWithFingerprint(16, 55))

	if len(prov.requests) != 1 {
		t.Fatalf("provider called %d times", len(prov.requests))
	}
	req := prov.requests[0]
	if !req.UsedWidenedSearch {
		t.Fatalf("cycle should have widened the search")
	}
	if req.DepartAfter != "16:00" {
		t.Fatalf("widened floor = %s, want now", req.DepartAfter)
	}
	if len(req.Alternatives) != 1 || req.Alternatives[0].ID != "a" {
		t.Fatalf("widened alternatives = %+v", req.Alternatives)
	}
	if len(trav.queries) != 2 {
		t.Fatalf("expected original plus widened fetch, got %d", len(trav.queries))
	}
	if trav.queries[1].DepartAfter != "16:00" {
		t.Fatalf("widened query floor = %s", trav.queries[1].DepartAfter)
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected one alert")
	}
	if got := notifier.alerts[0].Recommendation.Meta["usedWidenedSearch"]; got != true {
		t.Fatalf("usedWidenedSearch meta = %v", got)
	}
}

func TestWideningSkippedWhenFloorAlreadyWide(t *testing.T) {
	trav := &fakeTravel{options: defaultOptions()}
	prov := &fakeProvider{rec: acceptFirst()}
	m, _ := newTestMonitor(meetingAt(18, 0), trav, prov)
	after := "15:00"
	m.SetTravelQuery(model.TravelQueryPatch{DepartAfter: &after})

	m.OnCalendarChanged(context.Background(), changeWithFingerprint(18, 0))

	if len(trav.queries) != 1 {
		t.Fatalf("floor earlier than now must not trigger a second fetch, got %d", len(trav.queries))
	}
	if prov.requests[0].UsedWidenedSearch {
		t.Fatalf("cycle must not report a widened search")
	}
	if prov.requests[0].DepartAfter != "15:00" {
		t.Fatalf("effective floor = %s", prov.requests[0].DepartAfter)
	}
}

func TestWideningWithoutFloorDropsDepartedOptions(t *testing.T) {
	// Without a floor the first fetch returns everything, including a train
	// that left at 15:30. The widened re-fetch with floor = now must keep
	// it away from the recommender.
	trav := &fakeTravel{options: []model.RouteOption{
		{ID: "gone", DepartureTime: "15:30", ArrivalTime: "16:15", Summary: "15:30 direct"},
		{ID: "a", DepartureTime: "16:20", ArrivalTime: "17:05", Summary: "16:20 direct"},
	}}
	prov := &fakeProvider{rec: acceptFirst()}
	m, _ := newTestMonitor(meetingAt(18, 0), trav, prov)

	m.OnCalendarChanged(context.Background(), changeWithFingerprint(18, 0))

	if len(trav.queries) != 2 {
		t.Fatalf("no floor still requires a widened re-fetch, got %d fetch(es)", len(trav.queries))
	}
	if trav.queries[1].DepartAfter != "16:00" {
		t.Fatalf("widened query floor = %s, want now", trav.queries[1].DepartAfter)
	}
	req := prov.requests[0]
	if !req.UsedWidenedSearch || req.DepartAfter != "16:00" {
		t.Fatalf("widened flag/floor not forwarded: %v %s", req.UsedWidenedSearch, req.DepartAfter)
	}
	for _, opt := range req.Alternatives {
		if opt.ID == "gone" {
			t.Fatalf("departed option reached the recommender: %+v", req.Alternatives)
		}
	}
	if len(req.Alternatives) != 1 || req.Alternatives[0].ID != "a" {
		t.Fatalf("alternatives = %+v", req.Alternatives)
	}
}

func TestNoAlternativesSuppressesNotification(t *testing.T) {
	trav := &fakeTravel{} // no options at all
	prov := &fakeProvider{rec: acceptFirst()}
	m, notifier := newTestMonitor(meetingAt(18, 0), trav, prov)
	after := "16:30"
	m.SetTravelQuery(model.TravelQueryPatch{DepartAfter: &after})

	m.OnCalendarChanged(context.Background(), changeWithFingerprint(18, 0))

	if len(prov.requests) != 0 {
		t.Fatalf("provider must not be called without candidates")
	}
	if len(notifier.alerts) != 0 {
		t.Fatalf("no candidates must mean no alert")
	}
}

func TestFailClosedRecommendationSuppressesNotification(t *testing.T) {
	trav := &fakeTravel{options: defaultOptions()}
	prov := &fakeProvider{rec: nil} // provider declines
	m, notifier := newTestMonitor(meetingAt(18, 0), trav, prov)

	m.OnCalendarChanged(context.Background(), changeWithFingerprint(18, 0))

	if len(prov.requests) != 1 {
		t.Fatalf("provider should have been consulted")
	}
	if len(notifier.alerts) != 0 {
		t.Fatalf("declined recommendation must not produce an alert")
	}
}

func TestTravelFailureAbortsCycle(t *testing.T) {
	trav := &fakeTravel{err: errors.New("travel api down")}
	prov := &fakeProvider{rec: acceptFirst()}
	m, notifier := newTestMonitor(meetingAt(18, 0), trav, prov)

	m.OnCalendarChanged(context.Background(), changeWithFingerprint(18, 0))

	if len(prov.requests) != 0 || len(notifier.alerts) != 0 {
		t.Fatalf("failed fetch must abort the cycle")
	}
}

func TestNoUpcomingMeetingDoesNothing(t *testing.T) {
	empty := calendarFunc(func(context.Context, time.Time, time.Time) ([]model.BusyBlock, error) {
		return nil, nil
	})
	trav := &fakeTravel{options: defaultOptions()}
	prov := &fakeProvider{rec: acceptFirst()}
	m, notifier := newTestMonitor(empty, trav, prov)

	m.OnCalendarChanged(context.Background(), changeWithFingerprint(18, 0))

	if len(trav.queries) != 0 || len(prov.requests) != 0 || len(notifier.alerts) != 0 {
		t.Fatalf("no meeting means no work")
	}
}

func TestRecheckBypassesDedupe(t *testing.T) {
	trav := &fakeTravel{options: defaultOptions()}
	prov := &fakeProvider{rec: acceptFirst()}
	m, notifier := newTestMonitor(meetingAt(18, 0), trav, prov)

	ctx := context.Background()
	m.OnCalendarChanged(ctx, changeWithFingerprint(18, 0))
	m.Recheck(ctx)
	m.Recheck(ctx)

	if len(notifier.alerts) != 3 {
		t.Fatalf("rechecks must always run, got %d alerts", len(notifier.alerts))
	}
}

func TestDisruptionForwardedToProvider(t *testing.T) {
	trav := &fakeTravel{options: defaultOptions(), disruption: model.DisruptionCancelled}
	prov := &fakeProvider{rec: acceptFirst()}
	m, _ := newTestMonitor(meetingAt(18, 0), trav, prov)

	m.OnCalendarChanged(context.Background(), changeWithFingerprint(18, 0))

	if prov.requests[0].Disruption != model.DisruptionCancelled {
		t.Fatalf("disruption = %s", prov.requests[0].Disruption)
	}
}
