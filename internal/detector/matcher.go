package detector

import (
	"context"

	"github.com/shirou/gomagic/internal/magic"
)

// MaxRecursionDepth bounds Use/Indirect recursion chains (spec §5's
// "reference: 20 levels, matching MAX_LEVELS used at load").
const MaxRecursionDepth = 20

// Classify walks db against buf, implementing the control spine of
// spec §4.9. db.Candidates(buf[0]) puts the first-byte bucket ahead of
// the rest of TopLevel, so the common case of a buffer whose leading
// byte the load-time index already pinned to a handful of entries never
// touches the rest of the database. Each top-level candidate gets its
// own accumulator (spec §3: "created per top-level classification
// attempt"): a candidate that only partially matches must not leak its
// message text into the next candidate's result. The first FULL match
// returns immediately; failing that, the first PARTIAL match is held as
// the fallback (spec §4.9 steps 2-3). ctx is checked between top-level
// pattern attempts only: the per-criterion evaluators in package magic
// stay pure functions, so a deadline exceeded mid-pattern is caught at
// the next top-level boundary rather than inside, say, a single Search
// scan.
func Classify(ctx context.Context, db *magic.Database, buf []byte) Result {
	if len(buf) == 0 {
		return Result{}
	}
	return scanCandidates(ctx, db, buf, db.Candidates(buf[0]))
}

// scanCandidates tries each of order in turn, each against its own fresh
// accumulator, returning the first FULL match immediately or the first
// PARTIAL match if no FULL one turns up (spec §4.9 steps 2-3).
func scanCandidates(ctx context.Context, db *magic.Database, buf []byte, order []int) Result {
	var fallback Result
	haveFallback := false
	for _, idx := range order {
		select {
		case <-ctx.Done():
			if haveFallback {
				return fallback
			}
			return Result{}
		default:
		}
		acc := newAccumulator()
		matchPattern(ctx, db, buf, idx, 0, acc, false, 0)
		if acc.state == Full {
			return acc.toResult()
		}
		if acc.state == Partial && !haveFallback {
			fallback = acc.toResult()
			haveFallback = true
		}
	}
	if haveFallback {
		return fallback
	}
	return Result{}
}

// scanTopLevel re-enters the top-level pattern list on the shared
// accumulator of an in-progress match, for the Indirect instruction
// (spec §4.9: "Indirect: iterate the database's top-level list at the
// computed offset"). Unlike Classify's outer loop, this continues the
// same classification attempt rather than starting independent ones, so
// the accumulator is not reset between candidates here.
func scanTopLevel(ctx context.Context, db *magic.Database, buf []byte, cursor int64, acc *accumulator, invert bool, depth int) bool {
	var order []int
	if cursor >= 0 && cursor < int64(len(buf)) {
		order = db.Candidates(buf[cursor])
	} else {
		order = db.UnhintedTopLevel()
	}
	matchedAny := false
	for _, idx := range order {
		select {
		case <-ctx.Done():
			return matchedAny
		default:
		}
		if matchPattern(ctx, db, buf, idx, cursor, acc, invert, depth) {
			matchedAny = true
		}
		if acc.state == Full {
			return true
		}
	}
	return matchedAny
}

// matchPattern implements try_match from spec §4.9.
func matchPattern(ctx context.Context, db *magic.Database, buf []byte, idx int, cursor int64, acc *accumulator, invert bool, depth int) bool {
	p := &db.Patterns[idx]

	offset, ok, err := p.Offset.Evaluate(buf, cursor)
	if err != nil || !ok {
		return false
	}

	var value any
	matched := false

	if p.IsInstruction {
		switch p.Instruction.Kind {
		case magic.InstructionUse:
			matched = matchUse(ctx, db, buf, p, offset, acc, invert, depth)
			if !matched {
				return false
			}
		case magic.InstructionIndirect:
			if depth+1 > MaxRecursionDepth {
				return false
			}
			matched = scanTopLevel(ctx, db, buf, offset, acc, invert, depth+1)
			if !matched {
				return false
			}
		case magic.InstructionName, magic.InstructionDefault:
			matched = true
			acc.promote(Partial)
		default:
			matched = true
			acc.promote(Partial)
		}
	} else {
		res, err := p.Criterion.Evaluate(buf, offset, invert)
		if err != nil || !res.Matched {
			return false
		}
		matched = true
		offset = res.NextOffset
		value = res.Value
		acc.promote(Partial)
	}

	appendMessage(acc, p, value)

	childrenFull := descendChildren(ctx, db, buf, p, offset, acc, invert, depth)
	if len(p.Children) == 0 {
		acc.promote(Full)
	} else if childrenFull {
		acc.promote(Full)
	}

	annotate(acc, p)
	return matched
}

// matchUse resolves a `use` instruction's named pattern and recurses into
// it on the same accumulator, propagating the combined endianness
// inversion (spec §4.4). If the named subtree reaches FULL but p itself
// still has children of its own to satisfy, the result is demoted back
// to Partial so p's own children descent still gates the final state.
func matchUse(ctx context.Context, db *magic.Database, buf []byte, p *magic.Pattern, offset int64, acc *accumulator, invert bool, depth int) bool {
	if depth+1 > MaxRecursionDepth {
		return false
	}
	namedIdx, ok := db.Named[p.Instruction.UseLabel]
	if !ok {
		return false
	}
	combinedInvert := invert
	if p.Instruction.InvertEndianness {
		combinedInvert = !combinedInvert
	}
	matched := matchPattern(ctx, db, buf, namedIdx, offset, acc, combinedInvert, depth+1)
	if matched && acc.state == Full && len(p.Children) > 0 {
		acc.state = Partial
	}
	return matched
}

// descendChildren implements spec §4.9 step 4: collects p's children,
// defers any Default instruction until every other child has been tried,
// and reports whether the all-optional short-circuit applies.
func descendChildren(ctx context.Context, db *magic.Database, buf []byte, p *magic.Pattern, cursor int64, acc *accumulator, invert bool, depth int) bool {
	if len(p.Children) == 0 {
		return false
	}

	allOptional := true
	noneMatched := true
	deferredDefault := -1

	for _, childIdx := range p.Children {
		child := &db.Patterns[childIdx]
		if child.IsInstruction && child.Instruction.Kind == magic.InstructionDefault {
			deferredDefault = childIdx
			continue
		}
		if !child.Optional {
			allOptional = false
		}
		if matchPattern(ctx, db, buf, childIdx, cursor, acc, invert, depth) {
			if !child.Optional {
				noneMatched = false
			}
		}
	}

	if noneMatched && deferredDefault >= 0 {
		matchPattern(ctx, db, buf, deferredDefault, cursor, acc, invert, depth)
	}

	return allOptional
}

// appendMessage formats p's message (if any) against value and appends
// it to the accumulator per spec §4.5's assembly rule.
func appendMessage(acc *accumulator, p *magic.Pattern, value any) {
	if p.Message == nil {
		return
	}
	text := p.Message.Format(value)
	if text == "" && !p.Message.ClearPrevious {
		return
	}
	if !acc.hasRawMessage && p.Message.Source != "" {
		acc.rawMessage = p.Message.Source
		acc.hasRawMessage = true
	}
	acc.append(text, p.Message.ClearPrevious, p.Message.NoSpacePrefix)
}

// annotate applies step 6 of spec §4.9: set the accumulator's MIME the
// first time one is seen, or override it when a deeper pattern carries
// its own MIME.
func annotate(acc *accumulator, p *magic.Pattern) {
	if p.Mime == "" {
		return
	}
	if !acc.hasMime || p.Level > acc.matchingLevel {
		acc.mime = p.Mime
		acc.hasMime = true
		acc.matchingLevel = p.Level
	}
}
