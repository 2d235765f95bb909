package magic

// Pattern is one line of a magic(5) entry: a level, an offset, a type (a
// Criterion or an Instruction), and an optional message. Patterns are
// stored flat in a Database's arena and linked by index rather than
// pointer, so the tree has no parent/child reference cycles and copies
// cheaply (spec §9 REDESIGN FLAGS, grounded on the slice-of-structs arena
// style used for mebo's columnar blocks rather than the teacher's
// pointer-linked MagicEntry list).
type Pattern struct {
	Level  int
	Offset Offset

	// Exactly one of Criterion/Instruction is meaningful, selected by
	// IsInstruction.
	IsInstruction bool
	Criterion     Criterion
	Instruction   Instruction

	Message *Message

	// Children holds the indices, into the owning Database's Patterns
	// arena, of this pattern's immediate continuations (level = this
	// level + 1, appearing directly after this pattern before the next
	// pattern at <= this level).
	Children []int
	Parent   int // -1 for top-level patterns

	// Optional marks a pattern (at any level) whose failure to match
	// must not prevent its parent from reaching a FULL result (spec
	// §4.9 step 4's all_optional/none_matched bookkeeping), set by a
	// trailing "!:optional" extension line.
	Optional bool

	// Mime/Apple/Ext/Strength are classification annotations that, in
	// practice, only ever follow a top-level pattern's line (spec §4.6),
	// but nothing in the grammar restricts them to level 0.
	Mime     string
	Apple    string
	Ext      []string
	Strength int // 0 until a !:strength line applies; the first one adjusts from a base of 50

	// TextHint/BinaryHint mirror the criterion's own /t and /b flags
	// (spec §4.3/§9) up onto the Pattern itself, so a caller building its
	// own two-phase "binary first, then text" strategy can inspect them
	// without reaching into Criterion.StrFlags. The matcher's own
	// dispatch ignores both, per spec.md's open question.
	TextHint   bool
	BinaryHint bool

	SourceFile int // index into the owning Database's Sources
	SourceLine int
}

// IsTopLevel reports whether p begins a new magic entry.
func (p *Pattern) IsTopLevel() bool {
	return p.Level == 0
}
