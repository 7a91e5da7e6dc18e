// Package hooks lets callers observe, and veto, the stages of a turn.
//
// Hooks run in registration order. A hook returning an error aborts the turn
// at that stage; hooks that only observe should return nil.
package hooks

import (
	"context"
	"slices"
	"sync"

	"github.com/youssefsiam38/convmem/compaction"
	"github.com/youssefsiam38/convmem/response"
	"github.com/youssefsiam38/convmem/types"
)

// BeforeCompactionHook is called once the trigger fired, before the summary is generated
type BeforeCompactionHook func(ctx context.Context, sessionID string, check *compaction.Check) error

// AfterCompactionHook is called after the summary was stored and the range archived
type AfterCompactionHook func(ctx context.Context, result *compaction.Result) error

// AfterAnalysisHook is called with the query understanding of a turn
type AfterAnalysisHook func(ctx context.Context, sessionID string, understanding *types.QueryUnderstanding) error

// AfterResponseHook is called with the reply of a turn
type AfterResponseHook func(ctx context.Context, sessionID string, reply *response.Reply) error

// Registry holds hooks per stage. It is safe for concurrent use; hooks added
// while a stage is running take effect on the next trigger.
type Registry struct {
	mu               sync.RWMutex
	beforeCompaction []BeforeCompactionHook
	afterCompaction  []AfterCompactionHook
	afterAnalysis    []AfterAnalysisHook
	afterResponse    []AfterResponseHook
}

func NewRegistry() *Registry {
	return &Registry{}
}

func add[H any](r *Registry, list *[]H, hook H) {
	r.mu.Lock()
	*list = append(*list, hook)
	r.mu.Unlock()
}

// fire calls each hook of a snapshot taken under the read lock and stops at
// the first error.
func fire[H any](r *Registry, list *[]H, call func(H) error) error {
	r.mu.RLock()
	snapshot := slices.Clone(*list)
	r.mu.RUnlock()

	for _, hook := range snapshot {
		if err := call(hook); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) OnBeforeCompaction(hook BeforeCompactionHook) {
	add(r, &r.beforeCompaction, hook)
}

func (r *Registry) OnAfterCompaction(hook AfterCompactionHook) {
	add(r, &r.afterCompaction, hook)
}

func (r *Registry) OnAfterAnalysis(hook AfterAnalysisHook) {
	add(r, &r.afterAnalysis, hook)
}

func (r *Registry) OnAfterResponse(hook AfterResponseHook) {
	add(r, &r.afterResponse, hook)
}

// TriggerBeforeCompaction runs the before-compaction hooks. An error vetoes
// the compaction.
func (r *Registry) TriggerBeforeCompaction(ctx context.Context, sessionID string, check *compaction.Check) error {
	return fire(r, &r.beforeCompaction, func(h BeforeCompactionHook) error {
		return h(ctx, sessionID, check)
	})
}

func (r *Registry) TriggerAfterCompaction(ctx context.Context, result *compaction.Result) error {
	return fire(r, &r.afterCompaction, func(h AfterCompactionHook) error {
		return h(ctx, result)
	})
}

func (r *Registry) TriggerAfterAnalysis(ctx context.Context, sessionID string, understanding *types.QueryUnderstanding) error {
	return fire(r, &r.afterAnalysis, func(h AfterAnalysisHook) error {
		return h(ctx, sessionID, understanding)
	})
}

func (r *Registry) TriggerAfterResponse(ctx context.Context, sessionID string, reply *response.Reply) error {
	return fire(r, &r.afterResponse, func(h AfterResponseHook) error {
		return h(ctx, sessionID, reply)
	})
}

// Register adds every hook method that h implements.
// LoggingHooks and MetricsHooks are registered this way.
func (r *Registry) Register(h any) {
	if hook, ok := h.(interface {
		BeforeCompaction(context.Context, string, *compaction.Check) error
	}); ok {
		r.OnBeforeCompaction(hook.BeforeCompaction)
	}
	if hook, ok := h.(interface {
		AfterCompaction(context.Context, *compaction.Result) error
	}); ok {
		r.OnAfterCompaction(hook.AfterCompaction)
	}
	if hook, ok := h.(interface {
		AfterAnalysis(context.Context, string, *types.QueryUnderstanding) error
	}); ok {
		r.OnAfterAnalysis(hook.AfterAnalysis)
	}
	if hook, ok := h.(interface {
		AfterResponse(context.Context, string, *response.Reply) error
	}); ok {
		r.OnAfterResponse(hook.AfterResponse)
	}
}
