package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"railwatch/internal/model"
)

type sourceFunc func(ctx context.Context, from, to time.Time) ([]model.BusyBlock, error)

func (f sourceFunc) BusyBlocks(ctx context.Context, from, to time.Time) ([]model.BusyBlock, error) {
	return f(ctx, from, to)
}

func fixedNow() time.Time {
	return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func meetingAt(start time.Time, title string) []model.BusyBlock {
	return []model.BusyBlock{{ID: "m", Title: title, Start: start, End: start.Add(30 * time.Minute)}}
}

func TestFirstCheckEstablishesBaselineWithoutCallback(t *testing.T) {
	fired := 0
	d := NewDetector(sourceFunc(func(context.Context, time.Time, time.Time) ([]model.BusyBlock, error) {
		return meetingAt(fixedNow().Add(2*time.Hour), "Standup"), nil
	}), "* * * * *", func(Change) { fired++ })
	d.now = fixedNow

	if err := d.CheckOnce(context.Background()); err != nil {
		t.Fatalf("CheckOnce: %v", err)
	}
	if fired != 0 {
		t.Fatalf("baseline must not fire the callback")
	}
}

func TestChangeFiresCallbackOnce(t *testing.T) {
	blocks := meetingAt(fixedNow().Add(2*time.Hour), "Standup")
	var changes []Change
	d := NewDetector(sourceFunc(func(context.Context, time.Time, time.Time) ([]model.BusyBlock, error) {
		return blocks, nil
	}), "* * * * *", func(c Change) { changes = append(changes, c) })
	d.now = fixedNow

	ctx := context.Background()
	if err := d.CheckOnce(ctx); err != nil {
		t.Fatalf("baseline check: %v", err)
	}

	// Same schedule again: no callback.
	if err := d.CheckOnce(ctx); err != nil {
		t.Fatalf("repeat check: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("unchanged fingerprint must not fire, got %d", len(changes))
	}

	// Move the meeting earlier.
	blocks = meetingAt(fixedNow().Add(90*time.Minute), "Standup")
	if err := d.CheckOnce(ctx); err != nil {
		t.Fatalf("changed check: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected one change callback, got %d", len(changes))
	}
	if changes[0].Before == nil {
		t.Fatalf("change must carry the prior snapshot")
	}
	if !changes[0].After.Start.Equal(fixedNow().Add(90 * time.Minute)) {
		t.Fatalf("after snapshot start = %v", changes[0].After.Start)
	}

	// The changed snapshot is now the baseline.
	if err := d.CheckOnce(ctx); err != nil {
		t.Fatalf("post-change check: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("new snapshot must become the baseline, got %d callbacks", len(changes))
	}
}

func TestNoUpcomingEventIsSilentNoOp(t *testing.T) {
	empty := true
	var changes []Change
	d := NewDetector(sourceFunc(func(context.Context, time.Time, time.Time) ([]model.BusyBlock, error) {
		if empty {
			return nil, nil
		}
		return meetingAt(fixedNow().Add(time.Hour), "Lunch"), nil
	}), "* * * * *", func(c Change) { changes = append(changes, c) })
	d.now = fixedNow

	ctx := context.Background()
	if err := d.CheckOnce(ctx); err != nil {
		t.Fatalf("empty check must not error: %v", err)
	}

	// Baseline forms later, still without a callback.
	empty = false
	if err := d.CheckOnce(ctx); err != nil {
		t.Fatalf("CheckOnce: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("first real snapshot is a baseline, not a change")
	}

	// An empty poll after a baseline leaves the baseline untouched.
	empty = true
	if err := d.CheckOnce(ctx); err != nil {
		t.Fatalf("CheckOnce: %v", err)
	}
	empty = false
	if err := d.CheckOnce(ctx); err != nil {
		t.Fatalf("CheckOnce: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("re-seeing the same event after an empty poll is not a change")
	}
}

func TestFetchFailureLeavesSnapshotUntouched(t *testing.T) {
	fail := false
	blocks := meetingAt(fixedNow().Add(2*time.Hour), "Standup")
	var changes []Change
	d := NewDetector(sourceFunc(func(context.Context, time.Time, time.Time) ([]model.BusyBlock, error) {
		if fail {
			return nil, errors.New("calendar unavailable")
		}
		return blocks, nil
	}), "* * * * *", func(c Change) { changes = append(changes, c) })
	d.now = fixedNow

	ctx := context.Background()
	if err := d.CheckOnce(ctx); err != nil {
		t.Fatalf("baseline: %v", err)
	}

	fail = true
	if err := d.CheckOnce(ctx); err == nil {
		t.Fatalf("fetch failure should surface to the caller for logging")
	}

	// After recovery the unchanged schedule must still compare equal to
	// the pre-failure baseline.
	fail = false
	if err := d.CheckOnce(ctx); err != nil {
		t.Fatalf("recovered check: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("failure must not disturb the stored snapshot")
	}
}

func TestStartStopIsIdempotent(t *testing.T) {
	d := NewDetector(sourceFunc(func(context.Context, time.Time, time.Time) ([]model.BusyBlock, error) {
		return nil, nil
	}), "* * * * *", func(Change) {})

	stop, err := d.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop()
	stop() // second call must be a no-op
}

func TestStartRejectsBadCronSpec(t *testing.T) {
	d := NewDetector(sourceFunc(func(context.Context, time.Time, time.Time) ([]model.BusyBlock, error) {
		return nil, nil
	}), "not a cron spec", func(Change) {})

	if _, err := d.Start(context.Background()); err == nil {
		t.Fatalf("invalid cron spec must fail Start")
	}
}
