package compaction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/youssefsiam38/convmem/types"
)

// MessageOverheadTokens is the fixed structural cost added to every message.
const MessageOverheadTokens = 4

// Tokenizer measures the token length of text. Implementations must be
// deterministic for a given configuration: switching schemes mid-session
// invalidates the compaction threshold.
type Tokenizer interface {
	Count(ctx context.Context, text string) (int, error)
}

// ApproximateTokens provides fast estimation without API call
// (~4 characters per token, rounded up).
func ApproximateTokens(content string) int {
	if content == "" {
		return 0
	}
	return (len(content) + 3) / 4
}

// ApproximateTokenizer counts tokens with ApproximateTokens.
type ApproximateTokenizer struct{}

// Count implements Tokenizer.
func (ApproximateTokenizer) Count(ctx context.Context, text string) (int, error) {
	return ApproximateTokens(text), nil
}

// MessageTokens returns the token count stored on a message at creation:
// content tokens plus role-label tokens plus MessageOverheadTokens.
func MessageTokens(ctx context.Context, tok Tokenizer, role types.Role, content string) (int, error) {
	contentTokens, err := tok.Count(ctx, content)
	if err != nil {
		return 0, err
	}
	roleTokens, err := tok.Count(ctx, string(role))
	if err != nil {
		return 0, err
	}
	return contentTokens + roleTokens + MessageOverheadTokens, nil
}

// maxCachedCounts bounds the APITokenizer cache; it is cleared when full.
const maxCachedCounts = 4096

// APITokenizer counts tokens with the Anthropic token counting API, caching
// results by content. After the first API failure it switches to
// ApproximateTokens for the rest of its lifetime, so a session is never
// measured with a mix of both schemes.
type APITokenizer struct {
	client *anthropic.Client
	model  string
	logger Logger

	mu       sync.Mutex
	cache    map[string]int
	fallback bool
}

// NewAPITokenizer creates a tokenizer bound to a model.
func NewAPITokenizer(client *anthropic.Client, model string, logger Logger) *APITokenizer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &APITokenizer{
		client: client,
		model:  model,
		logger: logger,
		cache:  make(map[string]int),
	}
}

// Count implements Tokenizer.
func (t *APITokenizer) Count(ctx context.Context, text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	key := t.cacheKey(text)

	t.mu.Lock()
	if count, ok := t.cache[key]; ok {
		t.mu.Unlock()
		return count, nil
	}
	if t.fallback || t.client == nil {
		t.mu.Unlock()
		return ApproximateTokens(text), nil
	}
	t.mu.Unlock()

	resp, err := t.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model: anthropic.Model(t.model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		t.mu.Lock()
		t.fallback = true
		t.mu.Unlock()
		t.logger.Warn("token counting API failed, using approximation", "error", err)
		return ApproximateTokens(text), nil
	}

	count := int(resp.InputTokens)

	t.mu.Lock()
	if len(t.cache) >= maxCachedCounts {
		t.cache = make(map[string]int)
	}
	t.cache[key] = count
	t.mu.Unlock()

	return count, nil
}

// UsingFallback reports whether the tokenizer has switched to approximation.
func (t *APITokenizer) UsingFallback() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fallback
}

func (t *APITokenizer) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(t.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
