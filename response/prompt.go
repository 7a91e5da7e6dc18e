package response

import (
	"fmt"
	"strings"
)

// ClarificationHeader opens a hard-stop reply.
const ClarificationHeader = "I need some clarification:"

// SystemPrompt is the instruction for every best-effort answer.
const SystemPrompt = `You are a helpful AI assistant.
Use the provided context to give accurate and relevant responses.
Respond naturally in the same language as the user's query.
If the query has several possible interpretations:
1. Acknowledge the ambiguity
2. List numbered options
3. Suggest an approach for each
4. Let the user choose or provide more information`

// FormatClarification renders the hard-stop reply as a numbered list.
func FormatClarification(questions []string) string {
	lines := make([]string, len(questions))
	for i, q := range questions {
		lines[i] = fmt.Sprintf("%d. %s", i+1, q)
	}
	return ClarificationHeader + "\n\n" + strings.Join(lines, "\n")
}

// BuildMultiInterpretationPrompt asks for guidance on each reading and for
// the user to pick one.
func BuildMultiInterpretationPrompt(context, query string, interpretations []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Context:\n%s\n\n", context)
	fmt.Fprintf(&b, "User query: %s\n\n", query)
	b.WriteString("This query has multiple possible interpretations:\n")
	for i, interp := range interpretations {
		fmt.Fprintf(&b, "%d. %s\n", i+1, interp)
	}
	b.WriteString("\nProvide a helpful response that:\n")
	b.WriteString("1. Acknowledges these different interpretations\n")
	b.WriteString("2. Gives brief guidance for each option\n")
	b.WriteString("3. Asks the user which specific aspect they want to focus on")
	return b.String()
}

// BuildDirectPrompt asks for a direct answer.
func BuildDirectPrompt(context, query string) string {
	return fmt.Sprintf("Context:\n%s\n\nUser query: %s\n\nProvide a helpful response.", context, query)
}
