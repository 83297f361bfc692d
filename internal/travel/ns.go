package travel

import (
	"context"
	"fmt"
	"strings"
	"time"

	appLog "railwatch/internal/log"
	"railwatch/internal/model"
	"railwatch/internal/timeutil"
)

// Demo assumptions carried over from the proof of concept: a fixed
// Eindhoven -> Utrecht travel time on an Intercity, no transfers. A proper
// trip-planner integration would replace both.
const (
	demoTravelMinutes = 47
	demoChanges       = 0
	maxOptions        = 6
)

// NSSource synthesizes route options from the NS departures board, reached
// through the railproxy.
type NSSource struct {
	client *reisinfoClient
	now    func() time.Time
}

func NewNSSource(proxyBaseURL string) *NSSource {
	return &NSSource{
		client: newReisinfoClient(proxyBaseURL),
		now:    time.Now,
	}
}

func (s *NSSource) PlannedTrip(context.Context) (PlannedTrip, error) {
	return PlannedTrip{From: "Eindhoven", To: "Utrecht Centraal", PlannedDeparture: ""}, nil
}

// Disruption always reports none; the departures board carries delay data
// per train, not a journey-level status.
func (s *NSSource) Disruption(context.Context) (model.Disruption, error) {
	return model.DisruptionNone, nil
}

// departuresPayload mirrors the subset of the reisinformatie v2 departures
// response we consume. Some proxy configurations double-wrap the payload.
type departuresPayload struct {
	Payload struct {
		Departures []departure `json:"departures"`
		Payload    *struct {
			Departures []departure `json:"departures"`
		} `json:"payload"`
	} `json:"payload"`
	Departures []departure `json:"departures"`
}

type departure struct {
	ActualDateTime  string `json:"actualDateTime"`
	PlannedDateTime string `json:"plannedDateTime"`
	Direction       string `json:"direction"`
	Product         struct {
		ShortCategoryName string `json:"shortCategoryName"`
		CategoryName      string `json:"categoryName"`
	} `json:"product"`
}

func (p departuresPayload) list() []departure {
	if len(p.Payload.Departures) > 0 {
		return p.Payload.Departures
	}
	if p.Payload.Payload != nil && len(p.Payload.Payload.Departures) > 0 {
		return p.Payload.Payload.Departures
	}
	return p.Departures
}

func (s *NSSource) Alternatives(ctx context.Context, query model.TravelQuery) ([]model.RouteOption, error) {
	station := query.Station
	if station == "" {
		station = "EHV"
	}
	fromLabel := orDefault(query.From, "Eindhoven")
	toLabel := orDefault(query.To, "Utrecht Centraal")

	// Threshold minutes-of-day for filtering; the floor defaults to now.
	threshold := timeutil.MinutesOfDay(s.now())
	if mins, ok := timeutil.ParseHHMM(query.DepartAfter); ok {
		threshold = mins
	}

	var payload departuresPayload
	if err := s.client.get(ctx, "departures", map[string]string{"station": station, "v": "2"}, &payload); err != nil {
		return nil, err
	}

	type candidate struct {
		idx     int
		depMins int
		depHHMM string
		product string
	}

	var mapped []candidate
	for idx, d := range payload.list() {
		dt := d.ActualDateTime
		if dt == "" {
			dt = d.PlannedDateTime
		}
		hhmm := hhmmFromISO(dt)
		mins, ok := timeutil.ParseHHMM(hhmm)
		if !ok || mins < threshold {
			continue
		}
		product := d.Product.ShortCategoryName
		if product == "" {
			product = d.Product.CategoryName
		}
		mapped = append(mapped, candidate{idx: idx, depMins: mins, depHHMM: hhmm, product: product})
	}

	// Prefer Intercity departures so the list is not flooded by sprinters,
	// but only when enough remain.
	ic := mapped[:0:0]
	for _, c := range mapped {
		if strings.Contains(strings.ToLower(c.product), "ic") {
			ic = append(ic, c)
		}
	}
	if len(ic) >= 2 {
		mapped = ic
	}

	if len(mapped) > maxOptions {
		mapped = mapped[:maxOptions]
	}

	options := make([]model.RouteOption, 0, len(mapped))
	for _, c := range mapped {
		arr := timeutil.FormatHHMM(c.depMins + demoTravelMinutes)
		options = append(options, model.RouteOption{
			ID:            fmt.Sprintf("%s-%d", strings.ToLower(station), c.idx),
			From:          fromLabel,
			To:            toLabel,
			DepartureTime: c.depHHMM,
			ArrivalTime:   arr,
			Changes:       demoChanges,
			Summary:       fmt.Sprintf("%s  %s → %s", c.depHHMM, fromLabel, toLabel),
		})
	}

	appLog.Debug("ns alternatives", "station", station, "threshold", timeutil.FormatHHMM(threshold), "count", len(options))
	return options, nil
}

// hhmmFromISO slices the wall clock out of an ISO-8601 local datetime
// (e.g. "2026-05-01T14:28:00+0200" -> "14:28").
func hhmmFromISO(s string) string {
	if len(s) < 16 {
		return ""
	}
	return s[11:16]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
