package transcript

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/youssefsiam38/convmem/types"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
	sanitizer    *bluemonday.Policy
)

func renderer() (goldmark.Markdown, *bluemonday.Policy) {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
		sanitizer = bluemonday.UGCPolicy()
	})
	return markdown, sanitizer
}

// RenderMarkdown converts message content to sanitized HTML. Generated
// replies are markdown; raw HTML in them is stripped.
func RenderMarkdown(content string) (template.HTML, error) {
	md, policy := renderer()
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return template.HTML(policy.SanitizeBytes(buf.Bytes())), nil
}

type htmlMessage struct {
	Index    int
	Role     string
	Time     string
	Tokens   int
	Archived bool
	Body     template.HTML
}

type htmlSummary struct {
	From, To int
	Time     string
	Summary  types.SessionSummary
}

type htmlPage struct {
	SessionID   string
	ExportedAt  string
	TotalTokens int
	Messages    []htmlMessage
	Summaries   []htmlSummary
}

var pageTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Session {{.SessionID}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 52rem; margin: 2rem auto; color: #222; }
.message { border-left: 3px solid #ccc; padding: 0.25rem 1rem; margin: 1rem 0; }
.message.user { border-color: #3b82f6; }
.message.assistant { border-color: #10b981; }
.message.archived { opacity: 0.6; }
.meta { font-size: 0.8rem; color: #666; }
.summary { background: #f6f6f6; padding: 0.5rem 1rem; margin: 1rem 0; }
</style>
</head>
<body>
<h1>Session {{.SessionID}}</h1>
<p class="meta">Exported {{.ExportedAt}} &middot; {{len .Messages}} messages &middot; {{.TotalTokens}} tokens</p>
{{range .Messages}}
<div class="message {{.Role}}{{if .Archived}} archived{{end}}">
<p class="meta">#{{.Index}} {{.Role}} &middot; {{.Time}} &middot; {{.Tokens}} tokens{{if .Archived}} &middot; archived{{end}}</p>
{{.Body}}
</div>
{{end}}
{{if .Summaries}}<h2>Summaries</h2>{{end}}
{{range .Summaries}}
<div class="summary">
<p class="meta">Messages {{.From}}&ndash;{{.To}} &middot; {{.Time}}</p>
{{with .Summary}}
<ul>
<li>Preferences: {{range $i, $v := .UserProfile.Preferences}}{{if $i}}, {{end}}{{$v}}{{end}}</li>
<li>Constraints: {{range $i, $v := .UserProfile.Constraints}}{{if $i}}, {{end}}{{$v}}{{end}}</li>
<li>Key facts: {{range $i, $v := .KeyFacts}}{{if $i}}, {{end}}{{$v}}{{end}}</li>
<li>Decisions: {{range $i, $v := .Decisions}}{{if $i}}, {{end}}{{$v}}{{end}}</li>
<li>Open questions: {{range $i, $v := .OpenQuestions}}{{if $i}}, {{end}}{{$v}}{{end}}</li>
<li>Todos: {{range $i, $v := .Todos}}{{if $i}}, {{end}}{{$v}}{{end}}</li>
</ul>
{{end}}
</div>
{{end}}
</body>
</html>
`))

const timeLayout = "2006-01-02 15:04:05 MST"

// WriteHTML renders t as a standalone HTML page.
func WriteHTML(w io.Writer, t *Transcript) error {
	page := htmlPage{
		SessionID:   t.SessionID,
		ExportedAt:  t.ExportedAt.Format(timeLayout),
		TotalTokens: t.TotalTokens(),
	}

	for i, msg := range t.Messages {
		body, err := RenderMarkdown(msg.Content)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		page.Messages = append(page.Messages, htmlMessage{
			Index:    i,
			Role:     string(msg.Role),
			Time:     msg.Timestamp.Format(timeLayout),
			Tokens:   msg.TokenCount,
			Archived: msg.Archived,
			Body:     body,
		})
	}

	for _, s := range t.Summaries {
		page.Summaries = append(page.Summaries, htmlSummary{
			From:    s.MessageRangeSummarized.FromIndex,
			To:      s.MessageRangeSummarized.ToIndex,
			Time:    s.Timestamp.Format(timeLayout),
			Summary: s.SessionSummary,
		})
	}

	return pageTemplate.Execute(w, page)
}
