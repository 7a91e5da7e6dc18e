package convmem

import (
	"context"
	"errors"

	"github.com/youssefsiam38/convmem/driver"
)

// turnContextKey is the context key for the running turn.
type turnContextKey struct{}

// turnInfo identifies the turn a stage belongs to.
type turnInfo struct {
	sessionID string
	stage     Stage
}

// ErrNoTurn is returned when TurnFromContextSafely is called outside a turn.
var ErrNoTurn = errors.New("convmem: no turn in context, only available within pipeline execution")

// withTurn stores the session and current stage in context.
// Hooks and generators receive this context.
func withTurn(ctx context.Context, sessionID string, stage Stage) context.Context {
	return context.WithValue(ctx, turnContextKey{}, turnInfo{sessionID: sessionID, stage: stage})
}

// TurnFromContext returns the session ID and stage of the running turn.
// It panics outside a turn; use TurnFromContextSafely to handle that case.
//
// Example, in a generator wrapper:
//
//	func (g *tracedGenerator) Generate(ctx context.Context, req *generation.Request) (string, error) {
//	    sessionID, stage := convmem.TurnFromContext(ctx)
//	    g.tracer.Record(sessionID, stage)
//	    return g.next.Generate(ctx, req)
//	}
func TurnFromContext(ctx context.Context) (sessionID string, stage Stage) {
	sessionID, stage, err := TurnFromContextSafely(ctx)
	if err != nil {
		panic(err)
	}
	return sessionID, stage
}

// TurnFromContextSafely returns the session ID and stage of the running turn,
// or ErrNoTurn.
func TurnFromContextSafely(ctx context.Context) (string, Stage, error) {
	info, ok := ctx.Value(turnContextKey{}).(turnInfo)
	if !ok {
		return "", "", ErrNoTurn
	}
	return info.sessionID, info.stage, nil
}

// WithTx makes store operations using the returned context run inside tx.
// The type parameter TTx must match the transaction type of the driver:
//   - pgx.Tx for pgxv5.Driver
//   - *sql.Tx for databasesql.Driver
//
// Example:
//
//	tx, _ := pool.Begin(ctx)
//	defer tx.Rollback(ctx)
//
//	result, err := pipeline.Session(id).Turn(convmem.WithTx(ctx, drv, tx), query)
//	if err != nil {
//	    return err
//	}
//	_ = tx.Commit(ctx)
func WithTx[TTx any](ctx context.Context, drv driver.Driver[TTx], tx TTx) context.Context {
	return driver.WithExecutor(ctx, drv.UnwrapExecutor(tx))
}
