package reason

import (
	"context"
	"sort"

	"railwatch/internal/model"
	"railwatch/internal/timeutil"
)

// RuleProvider is the deterministic fallback recommender: earliest arrival
// wins, with phrasing and confidence keyed off the disruption status and
// how close the next meeting is.
type RuleProvider struct{}

func NewRuleProvider() *RuleProvider {
	return &RuleProvider{}
}

func (p *RuleProvider) Recommend(_ context.Context, req Request) (*model.Recommendation, error) {
	if len(req.Alternatives) == 0 {
		return nil, nil
	}

	sorted := append([]model.RouteOption(nil), req.Alternatives...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, aok := timeutil.ParseHHMM(sorted[i].ArrivalTime)
		b, bok := timeutil.ParseHHMM(sorted[j].ArrivalTime)
		if aok != bok {
			return aok
		}
		return a < b
	})
	chosen := sorted[0]

	timeCritical := false
	if start, ok := timeutil.ParseHHMM(req.MeetingStartHHMM); ok {
		timeCritical = start-timeutil.MinutesOfDay(req.Now) < 120
	}

	reason := "Based on current information, this looks like the fastest option and should get you there with time to spare."
	confidence := 0.75

	switch req.Disruption {
	case model.DisruptionNone:
		if timeCritical {
			reason = "You have a time-sensitive event coming up. This option should arrive comfortably before it, and I'll keep watching in case anything changes."
		} else {
			reason = "All looks good for now. This option should work well, and I'll stay quiet unless something important changes on your route."
		}
		confidence = 0.9
	case model.DisruptionCancelled:
		if timeCritical {
			reason = "Your planned train is cancelled and your next event is close. This option looks like your best chance of arriving on time."
		} else {
			reason = "Your planned train is cancelled. This option should get you there with minimal extra delay compared to the others."
		}
		confidence = 0.8
	case model.DisruptionDelayed:
		if timeCritical {
			reason = "Your train is delayed and you have a time-sensitive event. This option should reduce the risk of arriving late."
		} else {
			reason = "Your train is delayed. This option should keep your overall delay as small as possible right now."
		}
		confidence = 0.7
	}

	return &model.Recommendation{
		Chosen:     chosen,
		Reason:     reason,
		Confidence: confidence,
	}, nil
}
