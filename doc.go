// Package convmem is a conversational memory core: it keeps an unbounded chat
// history coherent within a bounded context budget, and decides per query
// whether intent is clear enough to answer.
//
// # Key Features
//
//   - Token-budget compaction: when a session's live messages exceed the
//     threshold they are merged into a rolling structured summary and archived
//   - Query disambiguation with context-first rewriting, enumerated
//     interpretations and a hard stop only for cryptic queries
//   - PostgreSQL persistence through pgx/v5 or database/sql, or in memory
//   - Hooks for observability
//
// # Quick Start
//
//	client := anthropic.NewClient()
//	pool, _ := pgxpool.New(ctx, databaseURL)
//	drv := pgxv5.New(pool)
//	_ = drv.Migrate(ctx)
//
//	pipeline, err := convmem.New(
//	    convmem.Config{
//	        Generator: generation.NewAnthropicGenerator(&client, "claude-sonnet-4-5-20250929", 4096),
//	        Store:     drv.GetStore(),
//	    },
//	    convmem.WithTokenThreshold(10000),
//	)
//
//	result, err := pipeline.Session("user-123").Turn(ctx, "fix it")
//	fmt.Println(result.Response)
//
// # Turn Stages
//
// Every turn runs check_compaction, then compact when the live tokens exceed
// the threshold, then disambiguate and respond. Session.Turn finally stores the
// user message, with its query analysis as metadata, and the reply. The turn's
// own messages are stored after the pipeline, so the compaction of a turn only
// covers earlier messages.
//
// Turns of one session are serialized in-process. Across processes the store
// rejects a second compaction of the same range with storage.ErrRangeConflict.
//
// # Errors
//
// Failures are returned as *PipelineError naming the stage. errors.Is
// classifies them:
//
//	if errors.Is(err, convmem.ErrGeneration) {
//	    // the generation service failed; the turn's messages were not stored
//	}
//
// Malformed generator output is never an error: compaction stores the empty
// summary and disambiguation falls back to a neutral understanding.
package convmem
