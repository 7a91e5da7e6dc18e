package driver

import "context"

// Notification represents a PostgreSQL NOTIFY notification.
type Notification struct {
	// Channel is the notification channel name.
	Channel string

	// Payload is the notification payload (may be empty).
	Payload string
}

// Listener receives PostgreSQL notifications on a dedicated connection.
// Only drivers with dedicated listener connections (pgx/v5) implement it.
type Listener interface {
	// Listen subscribes to the channels and starts delivering notifications.
	Listen(ctx context.Context, channels ...string) error

	// Notifications returns the channel notifications are delivered on.
	// It is closed by Close.
	Notifications() <-chan Notification

	// Close stops listening and releases the connection.
	Close() error
}

// Notification channels written by the SQL store. Notifications are sent
// inside the writing transaction and so are delivered only on commit.
const (
	// ChannelSummarySaved is notified when a compaction is committed.
	// Payload contains JSON: {"session_id": "...", "summary_id": "...", "from_index": N, "to_index": N}
	ChannelSummarySaved = "convmem_summary_saved"

	// ChannelSessionDeleted is notified when a session is deleted.
	// Payload contains the session ID.
	ChannelSessionDeleted = "convmem_session_deleted"
)
