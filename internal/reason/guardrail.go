package reason

import (
	"encoding/json"
	"regexp"
	"strings"

	"railwatch/internal/model"
	"railwatch/internal/timeutil"
)

// failureCategory classifies why an attempt was rejected; the retry prompt
// names it so the backend can correct course.
type failureCategory string

const (
	failMalformedJSON failureCategory = "malformed-json"
	failInvalidID     failureCategory = "invalid-id"
	failConstraint    failureCategory = "constraint-violation"
	failBadReason     failureCategory = "bad-reason"
)

const minReasonLength = 90

// llmReply is the schema the backend is asked to produce. Confidence is a
// pointer so a missing value is distinguishable from 0.
type llmReply struct {
	ChosenOptionID    string   `json:"chosenOptionId"`
	Reason            string   `json:"reason"`
	Confidence        *float64 `json:"confidence"`
	WillArriveOnTime  bool     `json:"willArriveOnTime"`
	SelectedStillFits bool     `json:"selectedStillFits"`
}

var (
	// Hard-certainty language is rejected: the backend cannot promise
	// anything about a train.
	certaintyRe = regexp.MustCompile(`(?i)\b(will|guarantee[ds]?|definitely|certainly)\b`)

	softeners = []string{"should", "likely", "might", "probably", "looks like", "i suggest"}

	bannedPhrases = []string{
		"based on current context",
		"best option available",
		"as an ai",
	}
)

// extractJSONSpan returns the substring from the first '{' to the last '}'
// so that prose or code fences around the JSON object do not break parsing.
func extractJSONSpan(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func parseReply(text string) (llmReply, bool) {
	var reply llmReply
	if err := json.Unmarshal([]byte(extractJSONSpan(text)), &reply); err != nil {
		return llmReply{}, false
	}
	return reply, true
}

// onTimeSubset returns the candidates independently known to satisfy the
// arrive-by deadline. Unparsable arrivals never qualify.
func onTimeSubset(candidates []model.RouteOption, arriveByHHMM string) []model.RouteOption {
	deadline, ok := timeutil.ParseHHMM(arriveByHHMM)
	if !ok {
		return nil
	}
	var out []model.RouteOption
	for _, c := range candidates {
		if arr, ok := timeutil.ParseHHMM(c.ArrivalTime); ok && arr <= deadline {
			out = append(out, c)
		}
	}
	return out
}

// validateReply runs the full validation sequence against one parsed reply
// and returns the chosen candidate on success, or the failure category.
func validateReply(reply llmReply, req Request) (model.RouteOption, failureCategory, bool) {
	var chosen model.RouteOption
	found := false
	for _, c := range req.Alternatives {
		if c.ID == reply.ChosenOptionID {
			chosen = c
			found = true
			break
		}
	}
	if !found {
		return model.RouteOption{}, failInvalidID, false
	}

	// Temporal guard: no past departures, no departures before the
	// effective search floor.
	if dep, ok := timeutil.ParseHHMM(chosen.DepartureTime); ok {
		if dep < timeutil.MinutesOfDay(req.Now) {
			return model.RouteOption{}, failConstraint, false
		}
		if floor, fok := timeutil.ParseHHMM(req.DepartAfter); fok && dep < floor {
			return model.RouteOption{}, failConstraint, false
		}
	}

	// Temporal guard: no late arrival when an on-time option exists. The
	// subset is computed here, never trusted from the backend.
	if deadline, ok := timeutil.ParseHHMM(req.ArriveByHHMM); ok {
		if len(onTimeSubset(req.Alternatives, req.ArriveByHHMM)) > 0 {
			arr, aok := timeutil.ParseHHMM(chosen.ArrivalTime)
			if !aok || arr > deadline {
				return model.RouteOption{}, failConstraint, false
			}
		}
	}

	if !reasonAcceptable(reply.Reason) {
		return model.RouteOption{}, failBadReason, false
	}

	return chosen, "", true
}

// reasonAcceptable enforces the tone rules: substantial, no canned filler,
// no hard certainty, at least one softening qualifier.
func reasonAcceptable(reason string) bool {
	trimmed := strings.TrimSpace(reason)
	if len(trimmed) < minReasonLength {
		return false
	}

	lower := strings.ToLower(trimmed)
	for _, phrase := range bannedPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	if certaintyRe.MatchString(trimmed) || strings.Contains(trimmed, "100%") {
		return false
	}

	for _, s := range softeners {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// normalizeConfidence coerces a missing confidence to the default and
// clamps the rest into [0,1].
func normalizeConfidence(c *float64) float64 {
	if c == nil {
		return 0.7
	}
	v := *c
	if v != v { // NaN
		return 0.7
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
