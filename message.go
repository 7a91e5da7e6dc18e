package convmem

import (
	"context"

	"github.com/youssefsiam38/convmem/compaction"
	"github.com/youssefsiam38/convmem/types"
)

// newMessage creates a message whose token count is fixed at creation.
func (p *Pipeline) newMessage(ctx context.Context, sessionID string, role types.Role, content string, metadata map[string]any) (*types.Message, error) {
	tokens, err := compaction.MessageTokens(ctx, p.config.tokenizer, role, content)
	if err != nil {
		return nil, err
	}
	return &types.Message{
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		Timestamp:  p.config.now(),
		TokenCount: tokens,
		Metadata:   metadata,
	}, nil
}

// newUserMessage creates the user message of a turn, carrying the query analysis.
func (p *Pipeline) newUserMessage(ctx context.Context, result *TurnResult) (*types.Message, error) {
	metadata := map[string]any{
		types.MetadataQueryAnalysis: result.Understanding.AsMetadata(),
	}
	return p.newMessage(ctx, result.SessionID, types.RoleUser, result.Query, metadata)
}

// newAssistantMessage creates the assistant message of a turn. When the turn
// compacted, the stored summary is attached.
func (p *Pipeline) newAssistantMessage(ctx context.Context, result *TurnResult) (*types.Message, error) {
	metadata := map[string]any{
		types.MetadataResponseBranch:   string(result.Branch),
		types.MetadataSummaryTriggered: result.Compacted(),
	}
	if result.Compacted() {
		metadata[types.MetadataSessionSummary] = result.Compaction.SessionSummary
	}
	return p.newMessage(ctx, result.SessionID, types.RoleAssistant, result.Response, metadata)
}
