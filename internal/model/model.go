package model

import "time"

// BusyBlock is a calendar-sourced interval during which the user is
// occupied. Produced by a calendar source; the core only reads and ranks
// these, never mutates them.
type BusyBlock struct {
	ID       string
	Title    string
	Start    time.Time
	End      time.Time
	Location string
}

// EventSnapshot captures the single soonest upcoming busy block as seen by
// the change detector at one poll.
type EventSnapshot struct {
	Title    string
	Start    time.Time
	End      time.Time
	Location string
}

// Fingerprint derives the equality key used for change detection. It
// includes start/end so that time edits always change the key.
func (s EventSnapshot) Fingerprint() string {
	return s.Title + "|" + s.Start.Format(time.RFC3339) + "|" + s.End.Format(time.RFC3339) + "|" + s.Location
}

// Disruption is the current service status of the planned journey.
type Disruption string

const (
	DisruptionNone      Disruption = "none"
	DisruptionCancelled Disruption = "cancelled"
	DisruptionDelayed   Disruption = "delayed"
)

// RouteOption is a single transit alternative as issued by a travel source.
// Times are wall-clock "HH:MM" strings; DepartureTime may be empty when the
// source does not know it.
type RouteOption struct {
	ID            string `json:"id"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	DepartureTime string `json:"departureTime,omitempty"`
	ArrivalTime   string `json:"arrivalTime"`
	Changes       int    `json:"changes"`
	Summary       string `json:"summary"`
}

// TravelQuery is the user's coordinate in "what should I search for".
// Owned by the orchestrator; updated only via an explicit set operation.
type TravelQuery struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Station     string `json:"station"`
	DepartAfter string `json:"departAfter,omitempty"` // "HH:MM"; empty means no floor
}

// TravelQueryPatch is a partial TravelQuery; nil fields are left untouched
// by the merge.
type TravelQueryPatch struct {
	From        *string `json:"from,omitempty"`
	To          *string `json:"to,omitempty"`
	Station     *string `json:"station,omitempty"`
	DepartAfter *string `json:"departAfter,omitempty"`
}

// Apply shallow-merges the patch into q.
func (p TravelQueryPatch) Apply(q TravelQuery) TravelQuery {
	if p.From != nil {
		q.From = *p.From
	}
	if p.To != nil {
		q.To = *p.To
	}
	if p.Station != nil {
		q.Station = *p.Station
	}
	if p.DepartAfter != nil {
		q.DepartAfter = *p.DepartAfter
	}
	return q
}

// Recommendation is the accepted output of one guardrail cycle. Immutable;
// attached to an outbound alert and otherwise discarded.
type Recommendation struct {
	Chosen     RouteOption    `json:"chosen"`
	Reason     string         `json:"reason"`
	Confidence float64        `json:"confidence"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// AlertType classifies an outbound travel alert.
type AlertType string

const (
	AlertDisruption     AlertType = "disruption"
	AlertCalendarChange AlertType = "calendar_change"
)

// TravelAlert is the payload handed to the notification channel.
// Fire-and-forget; no delivery guarantee is required of the core.
type TravelAlert struct {
	ID             string          `json:"id"`
	Type           AlertType       `json:"type"`
	Title          string          `json:"title"`
	Body           string          `json:"body"`
	CreatedAt      time.Time       `json:"createdAt"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
}
