// Package actionable turns a classification summary into follow-up cards
// for the safety team.
package actionable

import (
	"fmt"

	"deviation-classifier-go/internal/aggregator"
	"deviation-classifier-go/internal/types"
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

const (
	failureThreshold    = 0.2
	correctionThreshold = 0.35
)

// Generate returns cards ordered by priority. There is always at least one.
func Generate(s aggregator.Summary) []ActionCard {
	var cards []ActionCard

	for _, h := range s.Hotspots {
		if h.Severity < types.SeverityHigh {
			break
		}
		team, _ := aggregator.Top(s.ByRouting)
		cards = append(cards, ActionCard{
			Insight: fmt.Sprintf("%s reported at %s (%d reports)", h.MaxSeverity, h.Location, h.Count),
			Action:  fmt.Sprintf("Inspect %s and contain the hazard; notify %s", h.Location, team),
			Impact:  "Prevent escalation to an accident",
		})
	}

	if s.Total > 0 {
		if rate := float64(s.Failed) / float64(s.Total); rate >= failureThreshold {
			cards = append(cards, ActionCard{
				Insight: fmt.Sprintf("%d of %d reports could not be classified (%.0f%%)", s.Failed, s.Total, rate*100),
				Action:  "Check transcription backend and model availability, then re-run the failed rows",
				Impact:  "Unclassified deviations are not routed to any team",
			})
		}
	}

	if s.Classified > 0 {
		if rate := float64(s.Corrected) / float64(s.Classified); rate >= correctionThreshold {
			cards = append(cards, ActionCard{
				Insight: fmt.Sprintf("Reviewer corrected %.0f%% of model classifications", rate*100),
				Action:  "Update the keyword model with the corrected examples",
				Impact:  "Better first-pass accuracy when the reviewer is unavailable",
			})
		}
	}

	if len(cards) == 0 {
		return []ActionCard{{
			Insight: "No critical deviation pattern detected",
			Action:  "Monitor and collect more data",
			Impact:  "Low immediate intervention",
		}}
	}
	return cards
}

// Rows renders cards for a report sheet.
func Rows(cards []ActionCard) [][]any {
	out := make([][]any, 0, len(cards))
	for i, c := range cards {
		out = append(out, []any{fmt.Sprintf("action:%d", i+1), c.Insight, c.Action, c.Impact})
	}
	return out
}
