package convmem

import "github.com/youssefsiam38/convmem/compaction"

// DefaultTokenThreshold is the live token count above which a session is compacted.
const DefaultTokenThreshold = compaction.DefaultThreshold

// Stage names one step of a turn. Stages run strictly in order, each at most once:
//
//	check_compaction ──> [compact] ──> disambiguate ──> respond ──> [persist]
//
// compact runs only when the live token count exceeds the threshold; persist
// runs only for Session.Turn.
type Stage string

const (
	// StageCheckCompaction sums the live tokens and evaluates the trigger.
	StageCheckCompaction Stage = "check_compaction"

	// StageCompact summarizes and archives the live messages.
	StageCompact Stage = "compact"

	// StageDisambiguate analyzes the query.
	StageDisambiguate Stage = "disambiguate"

	// StageRespond produces the reply.
	StageRespond Stage = "respond"

	// StagePersist stores the user and assistant messages of the turn.
	StagePersist Stage = "persist"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}
