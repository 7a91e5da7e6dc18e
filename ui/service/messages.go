package service

import (
	"context"
	"io"

	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/transcript"
	"github.com/youssefsiam38/convmem/types"
)

// Export formats.
const (
	FormatJSONL = "jsonl"
	FormatHTML  = "html"
)

// ListMessages returns the session's messages in log order.
func (s *Service) ListMessages(ctx context.Context, sessionID string, filter storage.Filter) ([]*types.Message, error) {
	return s.pipeline.Session(sessionID).Messages(ctx, filter)
}

// ListSummaries returns the session's summaries, oldest first.
func (s *Service) ListSummaries(ctx context.Context, sessionID string) ([]*types.SessionMemoryOutput, error) {
	return s.pipeline.Session(sessionID).Summaries(ctx)
}

// ContentType returns the MIME type of an export format.
func ContentType(format string) (string, error) {
	switch format {
	case "", FormatJSONL:
		return "application/x-ndjson", nil
	case FormatHTML:
		return "text/html; charset=utf-8", nil
	}
	return "", ErrUnsupportedFormat
}

// LoadTranscript reads a session for export. A session without messages or
// summaries is ErrNotFound.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) (*transcript.Transcript, error) {
	t, err := transcript.Load(ctx, s.pipeline.Store(), sessionID)
	if err != nil {
		return nil, err
	}
	if len(t.Messages) == 0 && len(t.Summaries) == 0 {
		return nil, ErrNotFound
	}
	return t, nil
}

// WriteTranscript writes t in format to w. An empty format means JSONL.
func WriteTranscript(w io.Writer, t *transcript.Transcript, format string) error {
	switch format {
	case "", FormatJSONL:
		return transcript.WriteJSONL(w, t)
	case FormatHTML:
		return transcript.WriteHTML(w, t)
	}
	return ErrUnsupportedFormat
}
