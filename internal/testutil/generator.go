package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/youssefsiam38/convmem/generation"
)

// ErrScriptExhausted is returned when a ScriptedGenerator runs out of replies.
var ErrScriptExhausted = errors.New("scripted generator has no more replies")

// Reply is one scripted generator outcome.
type Reply struct {
	Text string
	Err  error
}

// ScriptedGenerator replays replies in order and records every request.
// A Route function, when set, takes precedence over the script.
type ScriptedGenerator struct {
	mu       sync.Mutex
	replies  []Reply
	requests []*generation.Request

	// Route picks a reply from the request. Returning ok=false falls back
	// to the script.
	Route func(req *generation.Request) (reply Reply, ok bool)
}

// NewScriptedGenerator returns a generator replaying texts in order.
func NewScriptedGenerator(texts ...string) *ScriptedGenerator {
	g := &ScriptedGenerator{}
	for _, text := range texts {
		g.replies = append(g.replies, Reply{Text: text})
	}
	return g
}

// Push appends replies to the script.
func (g *ScriptedGenerator) Push(replies ...Reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, replies...)
}

// Generate implements generation.Generator.
func (g *ScriptedGenerator) Generate(ctx context.Context, req *generation.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)

	if g.Route != nil {
		if reply, ok := g.Route(req); ok {
			return reply.Text, reply.Err
		}
	}

	if len(g.replies) == 0 {
		return "", ErrScriptExhausted
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply.Text, reply.Err
}

// Requests returns the recorded requests in call order.
func (g *ScriptedGenerator) Requests() []*generation.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*generation.Request(nil), g.requests...)
}

// Calls returns the number of Generate calls.
func (g *ScriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// LastPrompt returns the concatenated block contents of the last request.
func (g *ScriptedGenerator) LastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		return ""
	}
	return PromptText(g.requests[len(g.requests)-1])
}

// PromptText joins a request's system instruction and block contents.
func PromptText(req *generation.Request) string {
	parts := []string{req.System}
	for _, block := range req.Messages {
		parts = append(parts, block.Content)
	}
	return strings.Join(parts, "\n")
}
