// Package generation defines the contract with the text-completion service used
// to produce summaries, query analyses and answers, together with the helpers
// that turn its free-text output into fixed schemas.
//
// The Anthropic Messages API is the bundled implementation:
//
//	client := anthropic.NewClient()
//	gen := generation.NewAnthropicGenerator(&client, "claude-3-5-haiku-20241022", 4096)
//	text, err := gen.Generate(ctx, &generation.Request{
//	    System:   "You are a helpful assistant.",
//	    Messages: []generation.Block{generation.User("hello")},
//	})
package generation

import (
	"context"
	"errors"
)

// ErrGenerationFailed indicates the generation service was unreachable or
// returned an error. It is never recovered inside the core.
var ErrGenerationFailed = errors.New("generation service failed")

// Role of an instruction/content block.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block is one role-tagged content block of a request.
type Block struct {
	Role    Role
	Content string
}

// User returns a user block.
func User(content string) Block {
	return Block{Role: RoleUser, Content: content}
}

// Assistant returns an assistant block.
func Assistant(content string) Block {
	return Block{Role: RoleAssistant, Content: content}
}

// Request is an ordered list of blocks plus the system instruction.
type Request struct {
	// System is the system instruction. Optional.
	System string

	// Messages are the ordered content blocks. At least one is required.
	Messages []Block

	// Temperature overrides the generator's default when non-nil.
	Temperature *float64

	// MaxTokens overrides the generator's default when positive.
	MaxTokens int
}

// Generator produces text for a request.
type Generator interface {
	Generate(ctx context.Context, req *Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req *Request) (string, error)

// Generate calls f(ctx, req).
func (f GeneratorFunc) Generate(ctx context.Context, req *Request) (string, error) {
	return f(ctx, req)
}

// Float returns a pointer to v, for Request.Temperature.
func Float(v float64) *float64 {
	return &v
}
