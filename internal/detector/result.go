// Package detector implements the matcher: the depth-first walk of a
// magic.Database's pattern tree against a byte buffer (spec §4.9).
package detector

// MatchState is the three-valued outcome of matching one pattern's
// subtree: no_match / partial / full (spec §3's "Result accumulator").
type MatchState int

const (
	NoMatch MatchState = iota
	Partial
	Full
)

// Result is the classification output for one top-level attempt.
type Result struct {
	RawMessage      string
	Mime            string
	FormattedMessage string
	PartialOnly     bool
}

// accumulator is the per-classify-call mutable state threaded through the
// recursive walk (spec §3: "Not shared across matches").
type accumulator struct {
	state          MatchState
	messageBuffer  string
	mime           string
	matchingLevel  int
	rawMessage     string
	hasRawMessage  bool
	hasMime        bool
}

func newAccumulator() *accumulator {
	return &accumulator{matchingLevel: -1}
}

// promote raises the accumulator's state monotonically (NoMatch ->
// Partial -> Full); it never downgrades. matchUse's demotion case sets
// a.state directly instead, since that is the one documented exception
// (spec §4.9's Use/children interaction).
func (a *accumulator) promote(s MatchState) {
	if s > a.state {
		a.state = s
	}
}

func (a *accumulator) toResult() Result {
	return Result{
		RawMessage:       a.rawMessage,
		Mime:             a.mime,
		FormattedMessage: a.messageBuffer,
		PartialOnly:      a.state == Partial,
	}
}

// append implements spec §4.5's accumulator-assembly rule: clear on
// clear_previous, otherwise a single separating space before non-empty
// text unless no_space_prefix suppresses it.
func (a *accumulator) append(text string, clearPrevious, noSpacePrefix bool) {
	if clearPrevious {
		a.messageBuffer = ""
	}
	if text == "" {
		return
	}
	if a.messageBuffer != "" && !noSpacePrefix {
		a.messageBuffer += " "
	}
	a.messageBuffer += text
}
