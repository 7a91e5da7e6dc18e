package types

import "strings"

// QueryUnderstanding is the per-turn analysis of an incoming query. It is never
// stored on its own, only as metadata of the user message of the turn.
type QueryUnderstanding struct {
	OriginalQuery           string   `json:"original_query"`
	IsAmbiguous             bool     `json:"is_ambiguous"`
	RewrittenQuery          *string  `json:"rewritten_query"`
	PossibleInterpretations []string `json:"possible_interpretations"`
	NeededContextFromMemory []string `json:"needed_context_from_memory"`
	ClarifyingQuestions     []string `json:"clarifying_questions"`
	FinalAugmentedContext   string   `json:"final_augmented_context"`
}

// Rewritten returns the trimmed rewritten query, or "" when absent.
func (q *QueryUnderstanding) Rewritten() string {
	if q == nil || q.RewrittenQuery == nil {
		return ""
	}
	return strings.TrimSpace(*q.RewrittenQuery)
}

// EffectiveQuery is the rewritten query when present, otherwise the original.
func (q *QueryUnderstanding) EffectiveQuery() string {
	if rw := q.Rewritten(); rw != "" {
		return rw
	}
	return q.OriginalQuery
}

// AsMetadata converts the analysis into the map stored under
// MetadataQueryAnalysis on the user message.
func (q *QueryUnderstanding) AsMetadata() map[string]any {
	var rewritten any
	if rw := q.Rewritten(); rw != "" {
		rewritten = rw
	}
	return map[string]any{
		"original_query":             q.OriginalQuery,
		"is_ambiguous":               q.IsAmbiguous,
		"rewritten_query":            rewritten,
		"possible_interpretations":   nonNil(q.PossibleInterpretations),
		"needed_context_from_memory": nonNil(q.NeededContextFromMemory),
		"clarifying_questions":       nonNil(q.ClarifyingQuestions),
		"final_augmented_context":    q.FinalAugmentedContext,
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
