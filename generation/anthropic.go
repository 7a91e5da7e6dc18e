package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// DefaultMaxTokens is used when neither the generator nor the request sets one.
const DefaultMaxTokens = 4096

// AnthropicGenerator implements Generator with the Anthropic Messages API.
type AnthropicGenerator struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicGenerator creates a generator bound to a model.
func NewAnthropicGenerator(client *anthropic.Client, model string, maxTokens int) *AnthropicGenerator {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicGenerator{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
	}
}

// Model returns the model ID requests are sent to.
func (g *AnthropicGenerator) Model() string {
	return g.model
}

// Generate sends the request and concatenates the text blocks of the reply.
func (g *AnthropicGenerator) Generate(ctx context.Context, req *Request) (string, error) {
	if req == nil || len(req.Messages) == 0 {
		return "", fmt.Errorf("%w: request has no messages", ErrGenerationFailed)
	}

	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(maxTokens),
		Messages:  convertBlocks(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	message, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	return text.String(), nil
}

// convertBlocks maps role-tagged blocks to Anthropic message params.
func convertBlocks(blocks []Block) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(blocks))
	for _, block := range blocks {
		text := anthropic.NewTextBlock(block.Content)
		if block.Role == RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(text))
			continue
		}
		params = append(params, anthropic.NewUserMessage(text))
	}
	return params
}
