package magic

import "fmt"

// OffsetReadType describes how an indirect offset's pointer value is read
// from the buffer (spec §3).
type OffsetReadType struct {
	Endian Endianness
	Width  int // 1, 2, 4, or 8
	ID3    bool
}

// DefaultOffsetReadType is ".l": little-endian, 4 bytes.
func DefaultOffsetReadType() OffsetReadType {
	return OffsetReadType{Endian: Little, Width: 4}
}

// OffsetModification is the optional arithmetic applied to a value read by
// an IndirectOffset (spec §3).
type OffsetModification struct {
	Op              Operator
	Operand         int64
	OperandIndirect bool
	OperandReadType OffsetReadType
}

// IndirectOffset reads a pointer value from the buffer, optionally
// modifying it, to produce the effective offset (spec §3, §4.2).
type IndirectOffset struct {
	InnerOffset   int64
	InnerRelative bool
	ReadType      OffsetReadType
	Modification  *OffsetModification
}

// Offset is either a constant/relative value, or computed indirectly
// through a pointer read from the buffer (spec §3).
type Offset struct {
	Base     int64
	Relative bool
	Indirect *IndirectOffset
}

// ErrNegativeOffset reports a rule-level error: a resolved offset went
// negative, which spec §4.2 treats as a rule error (not an out-of-range
// read).
type ErrNegativeOffset struct {
	Resolved int64
}

func (e *ErrNegativeOffset) Error() string {
	return fmt.Sprintf("negative offset: %d", e.Resolved)
}

// Evaluate resolves o to an absolute buffer offset, given the current read
// cursor. `relative` offsets (both the offset itself and, inside an
// IndirectOffset, the pointer's own location) are taken relative to
// cursor; callers descending into Use/children subtrees pass the parent
// pattern's match-end cursor, matching the teacher's top-down scan order.
//
// Out-of-range reads while resolving an indirect pointer are not errors:
// they yield ok=false, which the caller (criterion evaluation) must treat
// as "no match" for the owning pattern (spec §4.2).
func (o Offset) Evaluate(buf []byte, cursor int64) (int64, bool, error) {
	if o.Indirect == nil {
		base := o.Base
		if o.Relative {
			base += cursor
		}
		if base < 0 {
			return 0, false, &ErrNegativeOffset{Resolved: base}
		}
		return base, true, nil
	}

	ind := o.Indirect
	p := ind.InnerOffset
	if ind.InnerRelative {
		p += cursor
	}
	if p < 0 {
		return 0, false, &ErrNegativeOffset{Resolved: p}
	}

	v, ok := ReadUint(buf, p, ind.ReadType.Width, ind.ReadType.Endian, ind.ReadType.ID3)
	if !ok {
		return 0, false, nil
	}
	result := int64(v)

	if ind.Modification != nil {
		mod := ind.Modification
		operand := mod.Operand
		if mod.OperandIndirect {
			// The operand's own read offset is relative to the start of
			// the outer indirect read (p), not the buffer start.
			opOffset := p + mod.Operand
			if opOffset < 0 {
				return 0, false, &ErrNegativeOffset{Resolved: opOffset}
			}
			ov, ok := ReadUint(buf, opOffset, mod.OperandReadType.Width, mod.OperandReadType.Endian, mod.OperandReadType.ID3)
			if !ok {
				return 0, false, nil
			}
			operand = int64(ov)
		}
		result = mod.Op.Apply(result, operand)
	}
	if o.Relative {
		result += cursor
	}

	if result < 0 {
		return 0, false, &ErrNegativeOffset{Resolved: result}
	}
	return result, true, nil
}
