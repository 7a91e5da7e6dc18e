// Package compaction keeps a session's live context within a token budget.
//
// Every message carries a token count fixed at creation (content tokens plus
// role tokens plus MessageOverheadTokens). When the summed count of a
// session's unarchived messages exceeds the threshold, the Compactor merges
// those messages with the latest summary into a new SessionSummary, stores it
// and archives the covered messages in one transaction.
//
// # Rolling merge
//
// The generation service receives the previous summary, when there is one,
// with an instruction to update it rather than start over: unresolved open
// questions and todos are carried forward. A reply that does not decode into
// a SessionSummary is replaced by the empty summary and the range is still
// archived. Generation failures abort the compaction with nothing written.
//
// # Usage
//
//	compactor := compaction.New(store, generator, &compaction.Config{
//	    Threshold: 10000,
//	}, logger)
//
//	result, err := compactor.CompactIfNeeded(ctx, sessionID)
//	if err != nil {
//	    return err
//	}
//	if result != nil {
//	    log.Printf("archived %d messages", result.MessagesArchived)
//	}
//
// # Token Counting
//
// ApproximateTokenizer estimates ~4 characters per token. APITokenizer uses
// Claude's token counting API and falls back to the approximation for good
// after the first API failure.
package compaction
