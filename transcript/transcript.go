// Package transcript exports a session as JSON Lines or as a sanitized HTML
// page.
//
// The JSONL form has one header line, then one line per message in log
// order, then one line per summary, oldest first:
//
//	{"type":"header","format":"convmem.transcript","version":1,"session_id":"...",...}
//	{"type":"message","index":0,"role":"user","content":"...","token_count":12,...}
//	{"type":"summary","message_range_summarized":{"from_index":0,"to_index":9},...}
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/types"
)

const (
	// Format identifies a convmem transcript.
	Format = "convmem.transcript"

	// Version of the JSONL layout.
	Version = 1
)

// Line types.
const (
	LineHeader  = "header"
	LineMessage = "message"
	LineSummary = "summary"
)

// Transcript is the full record of a session.
type Transcript struct {
	SessionID  string
	ExportedAt time.Time
	Messages   []*types.Message
	Summaries  []*types.SessionMemoryOutput
}

// Load reads every message and summary of a session from store.
func Load(ctx context.Context, store storage.Store, sessionID string) (*Transcript, error) {
	messages, err := store.ListMessages(ctx, sessionID, storage.FilterAll)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	summaries, err := store.ListSummaries(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load summaries: %w", err)
	}
	return &Transcript{
		SessionID:  sessionID,
		ExportedAt: time.Now().UTC(),
		Messages:   messages,
		Summaries:  summaries,
	}, nil
}

// TotalTokens is the summed token count of every message.
func (t *Transcript) TotalTokens() int {
	return types.SumTokens(t.Messages)
}

type headerLine struct {
	Type         string    `json:"type"`
	Format       string    `json:"format"`
	Version      int       `json:"version"`
	SessionID    string    `json:"session_id"`
	ExportedAt   time.Time `json:"exported_at"`
	MessageCount int       `json:"message_count"`
	SummaryCount int       `json:"summary_count"`
	TotalTokens  int       `json:"total_tokens"`
}

type messageLine struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	*types.Message
}

type summaryLine struct {
	Type string `json:"type"`
	*types.SessionMemoryOutput
}

// WriteJSONL writes t as JSON Lines.
func WriteJSONL(w io.Writer, t *Transcript) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	header := headerLine{
		Type:         LineHeader,
		Format:       Format,
		Version:      Version,
		SessionID:    t.SessionID,
		ExportedAt:   t.ExportedAt,
		MessageCount: len(t.Messages),
		SummaryCount: len(t.Summaries),
		TotalTokens:  t.TotalTokens(),
	}
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, msg := range t.Messages {
		if err := enc.Encode(messageLine{Type: LineMessage, Index: i, Message: msg}); err != nil {
			return fmt.Errorf("failed to write message %d: %w", i, err)
		}
	}

	for i, summary := range t.Summaries {
		if err := enc.Encode(summaryLine{Type: LineSummary, SessionMemoryOutput: summary}); err != nil {
			return fmt.Errorf("failed to write summary %d: %w", i, err)
		}
	}
	return nil
}
