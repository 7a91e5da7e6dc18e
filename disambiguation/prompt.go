package disambiguation

import (
	"fmt"
	"strings"

	"github.com/youssefsiam38/convmem/types"
)

// NoHistoryText stands in for the recent window when the session is empty.
const NoHistoryText = "No previous conversation."

// AnalysisSystemPrompt instructs the generator how to classify a query.
const AnalysisSystemPrompt = `You are a query understanding expert.
Analyze the user's query together with the recent conversation and session memory, and decide whether its intent is clear.

Return ONLY valid JSON. No markdown code blocks, no explanatory text.

Required JSON schema:
{
  "original_query": "the user's query",
  "is_ambiguous": true/false,
  "rewritten_query": "clarified version of the query, or null",
  "possible_interpretations": ["2-3 concrete readings when the query is ambiguous"],
  "needed_context_from_memory": ["memory fields the answer depends on"],
  "clarifying_questions": ["1-3 questions, only when the query is genuinely cryptic"],
  "final_augmented_context": "condensed synthesis of the recent conversation and relevant session memory"
}

STRATEGY:

1. CONTEXT FIRST: read the recent conversation before judging ambiguity.
   A short query such as "make it faster" or "fix it" usually refers to what was just discussed.
   GOOD rewrite: "Optimize the Python scraper's request throughput"
   BAD: "Speed up what?" (ignores context)

2. ENUMERATE, DON'T INTERROGATE: when the query is ambiguous but has 2-3 plausible readings,
   do NOT ask "what do you mean?". Instead:
   - list each concrete reading in possible_interpretations
   - write a rewritten_query that mentions all readings
   - leave clarifying_questions empty
   Example: "get football data" could mean match results, league standings, or player statistics.

3. HARD STOP ONLY WHEN CRYPTIC: use clarifying_questions (1-3) only when the query is ambiguous
   AND cannot be decomposed into readings even with the full context. Leave rewritten_query null
   and possible_interpretations empty in that case.

4. USER DELEGATION ("you decide", "you choose", "up to you", "your call", "theo ý bạn"):
   set is_ambiguous to false, pick the single best reading from the conversation,
   put it in rewritten_query and as the only possible_interpretations entry, and ask no questions.

5. ALWAYS fill final_augmented_context with a condensed synthesis of the recent conversation
   and the relevant session memory. Never leave it empty.

Start your response with { and end it with }.`

// RenderWindow renders the recent messages, or NoHistoryText when empty.
func RenderWindow(recent []*types.Message) string {
	if len(recent) == 0 {
		return NoHistoryText
	}
	return types.FormatTranscript(recent)
}

// RenderMemory renders the relevant fields of the latest summary, capping
// key facts, open questions and todos at maxItems. It returns "" without a summary.
func RenderMemory(summary *types.SessionSummary, maxItems int) string {
	if summary == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Session Memory:\n")
	fmt.Fprintf(&b, "- User preferences: %s\n", joinOrNone(summary.UserProfile.Preferences, 0))
	fmt.Fprintf(&b, "- Constraints: %s\n", joinOrNone(summary.UserProfile.Constraints, 0))
	fmt.Fprintf(&b, "- Key facts: %s\n", joinOrNone(summary.KeyFacts, maxItems))
	fmt.Fprintf(&b, "- Open questions: %s\n", joinOrNone(summary.OpenQuestions, maxItems))
	fmt.Fprintf(&b, "- Todos: %s", joinOrNone(summary.Todos, maxItems))
	return b.String()
}

func joinOrNone(items []string, max int) string {
	if len(items) == 0 {
		return "None"
	}
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return strings.Join(items, ", ")
}

// BuildAnalysisUserPrompt creates the user message for query analysis.
func BuildAnalysisUserPrompt(windowText, memoryText, query string) string {
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	b.WriteString(windowText)
	b.WriteString("\n\n")
	if memoryText != "" {
		b.WriteString(memoryText)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "New user query: %q\n\n", query)
	b.WriteString("Analyze this query for ambiguity and determine what context is needed.")
	return b.String()
}
