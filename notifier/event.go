package notifier

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/youssefsiam38/convmem/driver"
)

// EventType names a kind of store change.
type EventType string

const (
	EventSummarySaved   EventType = "summary_saved"
	EventSessionDeleted EventType = "session_deleted"
)

var eventChannels = map[string]EventType{
	driver.ChannelSummarySaved:   EventSummarySaved,
	driver.ChannelSessionDeleted: EventSessionDeleted,
}

// Channels returns the PostgreSQL channels a notifier listens on, sorted.
func Channels() []string {
	channels := make([]string, 0, len(eventChannels))
	for ch := range eventChannels {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// Event is one committed store change. Payload is the raw notification
// text: a JSON object for EventSummarySaved, the session ID for
// EventSessionDeleted.
type Event struct {
	Type       EventType
	Payload    string
	ReceivedAt time.Time
}

// SummarySaved is the decoded payload of EventSummarySaved.
type SummarySaved struct {
	SessionID string `json:"session_id"`
	SummaryID string `json:"summary_id"`
	FromIndex int    `json:"from_index"`
	ToIndex   int    `json:"to_index"`
}

// SummarySaved decodes the payload. It fails with ErrUnexpectedEvent on
// other event types and ErrMalformedPayload on bad JSON.
func (e *Event) SummarySaved() (*SummarySaved, error) {
	if e.Type != EventSummarySaved {
		return nil, fmt.Errorf("%w: %s is not %s", ErrUnexpectedEvent, e.Type, EventSummarySaved)
	}
	var p SummarySaved
	if err := json.Unmarshal([]byte(e.Payload), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &p, nil
}

// SessionID returns the session the event is about, or "" when the payload
// cannot be decoded.
func (e *Event) SessionID() string {
	switch e.Type {
	case EventSessionDeleted:
		return e.Payload
	case EventSummarySaved:
		if p, err := e.SummarySaved(); err == nil {
			return p.SessionID
		}
	}
	return ""
}
