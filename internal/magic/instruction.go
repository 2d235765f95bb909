package magic

// InstructionKind distinguishes the non-comparable directive lines from
// spec §3/§4.6: `name`, `use`, `default`, and `indirect`. These never carry
// a Criterion — they control tree structure and dispatch instead.
type InstructionKind uint8

const (
	InstructionNone InstructionKind = iota
	InstructionName
	InstructionUse
	InstructionDefault
	InstructionIndirect
)

// Instruction holds the parsed payload for a non-comparable type line.
type Instruction struct {
	Kind InstructionKind

	// Name: the label this pattern subtree is registered under.
	NameLabel string

	// Use: the label of the named subtree to splice in at this point.
	UseLabel         string
	InvertEndianness bool // "use \^label"

	// Indirect: the /r relative-addressing flag. It is stored but not
	// evaluated (spec §9 Open Question); the loader logs a warning at load
	// time for any indirect line that sets it.
	IndirectRelative bool
}
