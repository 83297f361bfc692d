package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "railwatch/internal/log"
	"railwatch/internal/model"
)

// Cap on expanded occurrences per recurring event, to keep a pathological
// RRULE from flooding a 24h window.
const maxOccurrencesPerEvent = 500

// Feed identifies one ICS subscription.
type Feed struct {
	ID  string
	URL string
}

// ICSSource reads busy blocks from one or more ICS subscription feeds.
// All-day events are skipped: they carry no arrive-by semantics for a
// travel deadline.
type ICSSource struct {
	feeds   []Feed
	fetcher *feedFetcher
}

// NewICSSource creates a calendar source over the given feeds, caching
// fetched bodies under cacheDir.
func NewICSSource(feeds []Feed, cacheDir string) *ICSSource {
	return &ICSSource{
		feeds:   feeds,
		fetcher: newFeedFetcher(cacheDir),
	}
}

// BusyBlocks fetches and expands every feed into concrete busy blocks
// within [from, to]. Per-feed failures are logged and skipped; an error is
// returned only when every feed fails.
func (s *ICSSource) BusyBlocks(ctx context.Context, from, to time.Time) ([]model.BusyBlock, error) {
	if len(s.feeds) == 0 {
		return nil, errors.New("no ICS feeds configured")
	}

	var blocks []model.BusyBlock
	failures := 0

	for _, feed := range s.feeds {
		body, err := s.fetcher.fetch(ctx, feed.ID, feed.URL)
		if err != nil {
			appLog.Error("ics feed fetch failed", err, "id", feed.ID)
			failures++
			continue
		}
		fb, err := expandFeed(feed, body, from, to)
		if err != nil {
			appLog.Error("ics feed expand failed", err, "id", feed.ID)
			failures++
			continue
		}
		blocks = append(blocks, fb...)
	}

	if failures == len(s.feeds) {
		return nil, fmt.Errorf("all %d ICS feeds failed", failures)
	}
	return blocks, nil
}

// expandFeed parses one ICS body and expands its events (single and
// RRULE-recurring, honoring EXDATE) into busy blocks intersecting
// [from, to].
func expandFeed(feed Feed, body []byte, from, to time.Time) ([]model.BusyBlock, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var blocks []model.BusyBlock

	for _, ve := range cal.Events() {
		uid := ""
		if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
			uid = p.Value
		}
		if uid == "" {
			continue
		}

		title := ""
		if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
			title = p.Value
		}
		location := ""
		if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
			location = p.Value
		}

		start, serr := ve.GetStartAt()
		end, eerr := ve.GetEndAt()
		if serr != nil || eerr != nil {
			continue
		}
		if isAllDay(ve) {
			continue
		}

		rawRRule := ""
		if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
			rawRRule = p.Value
		}

		if rawRRule == "" {
			if end.Before(from) || start.After(to) {
				continue
			}
			blocks = append(blocks, model.BusyBlock{
				ID:       feed.ID + "/" + uid,
				Title:    title,
				Start:    start,
				End:      end,
				Location: location,
			})
			continue
		}

		occ, err := expandRecurrence(ve, rawRRule, start, end, from, to)
		if err != nil {
			appLog.Error("rrule expansion failed", err, "uid", uid, "rrule", rawRRule)
			continue
		}
		for _, o := range occ {
			blocks = append(blocks, model.BusyBlock{
				ID:       feed.ID + "/" + uid + "/" + o.start.Format(time.RFC3339),
				Title:    title,
				Start:    o.start,
				End:      o.end,
				Location: location,
			})
		}
	}

	return blocks, nil
}

type occurrence struct {
	start time.Time
	end   time.Time
}

func expandRecurrence(ve *ical.VEvent, rawRRule string, dtStart, dtEnd, from, to time.Time) ([]occurrence, error) {
	r, err := rrule.StrToRRule(rawRRule)
	if err != nil {
		return nil, err
	}
	r.DTStart(dtStart)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range exDates(ve) {
		set.ExDate(ex.In(dtStart.Location()))
	}

	// Between operates in the event's own location; convert the window.
	starts := set.Between(from.In(dtStart.Location()), to.In(dtStart.Location()), true)
	if len(starts) > maxOccurrencesPerEvent {
		starts = starts[:maxOccurrencesPerEvent]
	}

	dur := dtEnd.Sub(dtStart)
	out := make([]occurrence, 0, len(starts))
	for _, s := range starts {
		out = append(out, occurrence{start: s, end: s.Add(dur)})
	}
	return out, nil
}

func exDates(ve *ical.VEvent) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

func isAllDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

// parseICSTime parses basic ICS DATE/DATE-TIME/UTC forms as used by EXDATE.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.Local)
	default:
		return time.ParseInLocation("20060102", v, time.Local)
	}
}
