package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	appLog "railwatch/internal/log"
	"railwatch/internal/model"
	"railwatch/internal/timeutil"
)

// LLMProvider obtains exactly one recommendation from the text backend,
// guarded so that its output can never violate the temporal or tone
// invariants. At most two backend calls are made per invocation; if both
// attempts fail validation, or any call fails outright, the provider
// returns no recommendation rather than an error.
type LLMProvider struct {
	gen Generator
}

func NewLLMProvider(gen Generator) *LLMProvider {
	return &LLMProvider{gen: gen}
}

func (p *LLMProvider) Recommend(ctx context.Context, req Request) (*model.Recommendation, error) {
	// First attempt.
	text, err := p.gen.Generate(ctx, buildPrompt(req, req.Alternatives, ""))
	if err != nil {
		appLog.Error("reasoning backend call failed, suppressing recommendation", err)
		return nil, nil
	}

	reply, chosen, category, ok := evaluate(text, req)
	if ok {
		return accept(reply, chosen, 1), nil
	}
	appLog.Info("reasoning attempt rejected, retrying with correction", "category", string(category))

	// Retry once with a corrective prompt. The identifier constraint is
	// narrowed to the independently-computed on-time subset when possible.
	narrowed := onTimeSubset(req.Alternatives, req.ArriveByHHMM)
	if len(narrowed) == 0 {
		narrowed = req.Alternatives
	}

	text, err = p.gen.Generate(ctx, buildPrompt(req, narrowed, string(category)))
	if err != nil {
		appLog.Error("reasoning retry call failed, suppressing recommendation", err)
		return nil, nil
	}

	reply, chosen, category, ok = evaluate(text, req)
	if !ok {
		appLog.Info("reasoning retry rejected, suppressing recommendation", "category", string(category))
		return nil, nil
	}
	return accept(reply, chosen, 2), nil
}

// evaluate parses and validates one backend response.
func evaluate(text string, req Request) (llmReply, model.RouteOption, failureCategory, bool) {
	reply, ok := parseReply(text)
	if !ok {
		return llmReply{}, model.RouteOption{}, failMalformedJSON, false
	}
	chosen, category, ok := validateReply(reply, req)
	if !ok {
		return reply, model.RouteOption{}, category, false
	}
	return reply, chosen, "", true
}

func accept(reply llmReply, chosen model.RouteOption, attempts int) *model.Recommendation {
	return &model.Recommendation{
		Chosen:     chosen,
		Reason:     strings.TrimSpace(reply.Reason),
		Confidence: normalizeConfidence(reply.Confidence),
		Meta: map[string]any{
			"provider":          "llm",
			"attempts":          attempts,
			"willArriveOnTime":  reply.WillArriveOnTime,
			"selectedStillFits": reply.SelectedStillFits,
		},
	}
}

// buildPrompt renders the first-attempt prompt, or the corrective retry
// prompt when failedCategory is non-empty. allowed is the candidate set
// whose identifiers the backend may choose from.
func buildPrompt(req Request, allowed []model.RouteOption, failedCategory string) string {
	var b strings.Builder

	b.WriteString("You are an NS travel assistant. Choose ONE best option from the alternatives below.\n")
	b.WriteString("Goal: reduce stress and maximize on-time arrival, especially when time-critical.\n\n")

	if failedCategory != "" {
		fmt.Fprintf(&b, "Your previous answer was rejected: %s. Follow every rule below exactly this time.\n\n", failedCategory)
	}

	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Disruption status: %s\n", req.Disruption)
	fmt.Fprintf(&b, "- Current time: %s\n", timeutil.HHMMFromTime(req.Now))
	if req.MeetingStartHHMM != "" {
		fmt.Fprintf(&b, "- Next calendar event starts at: %s\n", req.MeetingStartHHMM)
	}
	if req.ArriveByHHMM != "" {
		fmt.Fprintf(&b, "- The user wants to ARRIVE BY %s (meeting start minus a %d minute buffer)\n", req.ArriveByHHMM, req.BufferMinutes)
	}
	if req.DepartAfter != "" {
		fmt.Fprintf(&b, "- Only departures at or after %s are physically possible\n", req.DepartAfter)
	}
	if req.UsedWidenedSearch {
		b.WriteString("- The search window was widened because the schedule moved earlier\n")
	}
	if req.Selected != nil {
		sel, _ := json.Marshal(req.Selected)
		fmt.Fprintf(&b, "- The user's currently selected option: %s\n", sel)
	}

	ids := make([]string, 0, len(allowed))
	for _, opt := range allowed {
		ids = append(ids, opt.ID)
	}
	opts, _ := json.MarshalIndent(allowed, "", "  ")
	fmt.Fprintf(&b, "\nAlternatives (JSON):\n%s\n", opts)
	fmt.Fprintf(&b, "\nchosenOptionId MUST be exactly one of: %s\n", strings.Join(ids, ", "))

	b.WriteString(`
Return ONLY a valid JSON object in this schema, no markdown, no prose:
{
  "chosenOptionId": "string",
  "reason": "string",
  "confidence": number,
  "willArriveOnTime": boolean,
  "selectedStillFits": boolean
}
confidence must be between 0 and 1.
reason must be exactly two sentences and at least 90 characters.
reason must use hedged wording such as "should", "likely" or "probably".
reason must NOT use "will", "guarantee", "100%", "definitely" or "certainly" - train travel is never certain.
`)

	return b.String()
}
