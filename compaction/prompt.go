package compaction

import (
	"strings"

	"github.com/youssefsiam38/convmem/types"
)

// SummarizationSystemPrompt is the system prompt used for session memory
// summarization. It carries the rolling-merge contract: an existing summary
// is updated, never restarted, and unresolved items are carried forward.
const SummarizationSystemPrompt = `You are an expert conversation analyst. Your task is to extract actionable, specific information from a conversation into a structured session memory.

ROLLING SUMMARY CONTRACT:
- If a previous summary is provided, UPDATE it: keep every still-relevant item, add new facts, add new decisions, and update todos.
- Carry forward open questions and todos that the new conversation does not resolve. Never drop an unresolved item silently.
- Remove an open question only when the conversation answers it; record the answer as a key fact or decision, or turn it into a todo.
- If no previous summary is provided, CREATE a fresh summary from the conversation alone.

Return ONLY a valid JSON object. No markdown, no explanations, no code blocks.

Required JSON schema:
{
  "user_profile": {
    "preferences": ["Specific preferences: languages, frameworks, tools, formats"],
    "constraints": ["Concrete limitations: deadlines, budgets, technical restrictions, required features"]
  },
  "key_facts": ["Specific details: URLs, data points, libraries, versions, requirements"],
  "decisions": ["Concrete decisions made: which approach, which tool, what to focus on"],
  "open_questions": ["Specific unresolved questions"],
  "todos": ["Actionable next steps with clear deliverables"]
}

Rules:
1. Extract only information that exists in the conversation or the previous summary.
2. Be specific: name the tools, URLs, fields and numbers involved. "User wants to scrape data" is too generic.
3. Empty arrays are fine when nothing meaningful was found.
4. Start the response with { and end it with }.`

// RenderPreviousSummary renders the previous summary block with the merge
// instruction, or "" when there is no previous summary.
func RenderPreviousSummary(previous *types.SessionSummary) string {
	if previous == nil {
		return ""
	}
	return "Previous Summary (to be updated):\n" +
		previous.Render(0) +
		"\n\nInstructions: Merge the new conversation below with this previous summary. " +
		"Update facts, add new decisions, resolve or carry forward open questions, update todos."
}

// BuildSummarizationUserPrompt creates the user message for summarization.
// previous may be nil.
func BuildSummarizationUserPrompt(previous *types.SessionSummary, transcript string) string {
	var b strings.Builder

	if block := RenderPreviousSummary(previous); block != "" {
		b.WriteString(block)
		b.WriteString("\n\n")
	}

	b.WriteString("New Conversation to Process:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nAnalyze and extract structured information. ")
	if previous != nil {
		b.WriteString("UPDATE the previous summary with new information from the conversation above.")
	} else {
		b.WriteString("Create a new summary.")
	}
	b.WriteString("\n\nRemember: Return ONLY valid JSON, no markdown code blocks.")

	return b.String()
}
