// Package watch turns "the calendar may have changed" into a single
// rate-limited change callback, by fingerprinting the next upcoming event
// on every check.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"railwatch/internal/calendar"
	appLog "railwatch/internal/log"
	"railwatch/internal/model"
)

// Change carries the snapshots around one detected calendar change.
// Before is nil only in theory; the detector never fires without a stored
// baseline.
type Change struct {
	Before *model.EventSnapshot
	After  model.EventSnapshot
}

// Detector polls the calendar source on a cron schedule (plus one
// immediate check at start) and invokes onChange when the fingerprint of
// the next upcoming event changes.
type Detector struct {
	source   calendar.Source
	onChange func(Change)
	spec     string
	now      func() time.Time

	mu   sync.Mutex
	last *model.EventSnapshot
}

// NewDetector creates a detector. spec is a cron expression such as
// "*/5 * * * *"; it stands in for the foreground/active lifecycle signal
// a mobile host would provide.
func NewDetector(source calendar.Source, spec string, onChange func(Change)) *Detector {
	return &Detector{
		source:   source,
		onChange: onChange,
		spec:     spec,
		now:      time.Now,
	}
}

// UseLocation pins the detector's clock to loc so that snapshot
// fingerprints carry a stable UTC offset.
func (d *Detector) UseLocation(loc *time.Location) {
	if loc != nil {
		d.now = func() time.Time { return time.Now().In(loc) }
	}
}

// Start performs one immediate check, then schedules recurring checks.
// The returned stop function is idempotent.
func (d *Detector) Start(ctx context.Context) (func(), error) {
	if err := d.CheckOnce(ctx); err != nil {
		// Initial-check failures are logged, not fatal; the recurring
		// schedule may succeed later.
		appLog.Error("initial calendar check failed", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(d.spec, func() {
		if err := d.CheckOnce(ctx); err != nil {
			appLog.Error("scheduled calendar check failed", err)
		}
	}); err != nil {
		return nil, err
	}
	c.Start()
	appLog.Info("calendar watch started", "cron", d.spec)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.Stop()
			appLog.Info("calendar watch stopped")
		})
	}, nil
}

// CheckOnce fetches busy blocks for the next 24h, snapshots the soonest
// upcoming event and fires onChange when its fingerprint differs from the
// stored baseline. Overlapping invocations are each allowed to complete
// independently.
func (d *Detector) CheckOnce(ctx context.Context) error {
	now := d.now()

	blocks, err := d.source.BusyBlocks(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		// Fetch failure: stored snapshot stays untouched.
		return err
	}

	next, ok := calendar.NextUpcoming(blocks, now)
	if !ok {
		appLog.Debug("no upcoming events found")
		return nil
	}

	after := model.EventSnapshot{
		Title:    next.Title,
		Start:    next.Start,
		End:      next.End,
		Location: next.Location,
	}

	d.mu.Lock()
	before := d.last
	d.last = &after
	d.mu.Unlock()

	if before == nil {
		appLog.Info("calendar baseline set", "fingerprint", after.Fingerprint())
		return nil
	}
	if before.Fingerprint() == after.Fingerprint() {
		return nil
	}

	appLog.Info("calendar changed",
		"before", before.Fingerprint(),
		"after", after.Fingerprint(),
	)
	d.onChange(Change{Before: before, After: after})
	return nil
}
