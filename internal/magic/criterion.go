package magic

import (
	"fmt"
	"regexp"
	"strings"
)

// CriterionKind tags the disjoint union of comparable tests (spec §3).
type CriterionKind uint8

const (
	CriterionByteNum CriterionKind = iota
	CriterionShortNum
	CriterionIntNum
	CriterionLongNum
	CriterionFloat
	CriterionDouble
	CriterionID3
	CriterionString
	CriterionPascalString
	CriterionString16
	CriterionSearch
	CriterionRegex
	CriterionDefault
)

// StringFlags are the /[WwcCtbT] modifier flags for the String criterion
// (spec §4.3). Search reuses the same flags (plus its own /range).
type StringFlags struct {
	CompactWhitespace         bool // W
	OptionalWhitespace        bool // w
	IgnoreLowerCase           bool // c
	IgnoreUpperCase           bool // C
	Trim                      bool // T
	TextHint                  bool // t — parsed, ignored at evaluation level
	BinaryHint                bool // b — parsed, ignored at evaluation level
}

// PascalLenSpec describes the Pascal-string length prefix (spec §4.3).
type PascalLenSpec struct {
	Width              int // 1, 2, or 4
	Endian             Endianness
	LengthIncludesSelf bool // /J
}

// DefaultPascalLenSpec is the implied 1-byte unsigned length prefix.
func DefaultPascalLenSpec() PascalLenSpec {
	return PascalLenSpec{Width: 1, Endian: Big}
}

// Modifier is a criterion's optional pre-comparison value transform
// (spec §3: "an optional pre-comparison modifier (modOp, modOperand)").
type Modifier struct {
	Present bool
	Op      Operator
	Operand uint64
}

// Criterion is a single comparable test (spec §3/§4.3).
type Criterion struct {
	Kind       CriterionKind
	Endianness Endianness
	Unsigned   bool
	Operator   Operator

	// IsDate/LocalTime mark a numeric criterion as one of the "date"
	// type family (spec §3: "numeric but formatted as timestamps").
	// LocalTime distinguishes "ldate"/"qldate" (local time) from
	// "date"/"qdate" (UTC).
	IsDate    bool
	LocalTime bool

	// Numeric criteria.
	ExpectedInt   int64
	ExpectedFloat float64
	NumModifier   Modifier

	// String / Search criteria.
	ExpectedString string
	StrFlags       StringFlags

	// PascalString.
	PascalLen PascalLenSpec

	// String16.
	String16Units []uint16

	// Search.
	SearchRange      int64
	SearchWholeBuffer bool

	// Regex.
	RegexSource      string
	RegexCompiled    *regexp.Regexp
	RegexCaseFold    bool
	RegexMatchStart  bool // /s — per spec §4.3/§9 now implemented
}

// CriterionResult is what Evaluate reports back to the matcher.
type CriterionResult struct {
	Matched     bool
	NextOffset  int64
	Value       any // int64, uint64, float64, or string — for the formatter
}

// Evaluate runs c against buf at offset, per spec §4.3. invertEndianness
// propagates a `use ^label` endianness inversion down through numeric
// extractors only (string-family criteria are endianness-agnostic save
// for String16, which does care).
func (c *Criterion) Evaluate(buf []byte, offset int64, invertEndianness bool) (CriterionResult, error) {
	switch c.Kind {
	case CriterionByteNum:
		return c.evalNumeric(buf, offset, 1, invertEndianness)
	case CriterionShortNum:
		return c.evalNumeric(buf, offset, 2, invertEndianness)
	case CriterionIntNum:
		return c.evalNumeric(buf, offset, 4, invertEndianness)
	case CriterionLongNum:
		return c.evalNumeric(buf, offset, 8, invertEndianness)
	case CriterionID3:
		return c.evalID3(buf, offset)
	case CriterionFloat:
		return c.evalFloat(buf, offset, 4, invertEndianness)
	case CriterionDouble:
		return c.evalFloat(buf, offset, 8, invertEndianness)
	case CriterionString:
		return c.evalString(buf, offset)
	case CriterionPascalString:
		return c.evalPascalString(buf, offset)
	case CriterionString16:
		return c.evalString16(buf, offset, invertEndianness)
	case CriterionSearch:
		return c.evalSearch(buf, offset)
	case CriterionRegex:
		return c.evalRegex(buf, offset)
	case CriterionDefault:
		// Matching semantics live in the matcher (depends on sibling
		// state); Evaluate alone always reports a match with no value.
		return CriterionResult{Matched: true, NextOffset: offset}, nil
	default:
		return CriterionResult{}, fmt.Errorf("magic: unevaluable criterion kind %d", c.Kind)
	}
}

func (c *Criterion) effectiveEndian(invert bool) Endianness {
	e := c.Endianness.ResolveNative()
	if invert {
		e = e.Invert()
	}
	return e
}

func (c *Criterion) evalNumeric(buf []byte, offset int64, width int, invert bool) (CriterionResult, error) {
	e := c.effectiveEndian(invert)

	if c.Operator == OpAnyValue {
		v, ok := ReadUint(buf, offset, width, e, false)
		if !ok {
			return CriterionResult{}, nil
		}
		val := applyNumModifier(c, v, width)
		return CriterionResult{Matched: true, NextOffset: offset + int64(width), Value: c.wrapValue(signedOrUnsigned(val, width, c.Unsigned))}, nil
	}

	raw, ok := ReadUint(buf, offset, width, e, false)
	if !ok {
		return CriterionResult{}, nil
	}
	raw = applyNumModifier(c, raw, width)

	matched, err := compareInt(raw, uint64(c.ExpectedInt), width, c.Unsigned, c.Operator)
	if err != nil {
		return CriterionResult{}, err
	}
	if !matched {
		return CriterionResult{}, nil
	}
	return CriterionResult{
		Matched:    true,
		NextOffset: offset + int64(width),
		Value:      c.wrapValue(signedOrUnsigned(raw, width, c.Unsigned)),
	}, nil
}

// wrapValue marks a date-family criterion's extracted value as a
// TimestampValue so the formatter renders it via FormatTimestamp instead
// of as a bare integer (spec §3: dates are numeric but formatted as
// timestamps).
func (c *Criterion) wrapValue(v any) any {
	if !c.IsDate {
		return v
	}
	var seconds int64
	switch n := v.(type) {
	case int64:
		seconds = n
	case uint64:
		seconds = int64(n)
	default:
		return v
	}
	return TimestampValue{Seconds: seconds, Local: c.LocalTime}
}

func applyNumModifier(c *Criterion, v uint64, width int) uint64 {
	if !c.NumModifier.Present {
		return v
	}
	return ApplyModifier(c.NumModifier.Op, v, c.NumModifier.Operand)
}

func signedOrUnsigned(raw uint64, width int, unsigned bool) any {
	if unsigned {
		return raw
	}
	switch width {
	case 1:
		return int64(int8(raw))
	case 2:
		return int64(int16(raw))
	case 4:
		return int64(int32(raw))
	default:
		return int64(raw)
	}
}

// compareInt implements the operator semantics of spec §4.3 step 3.
func compareInt(raw, expected uint64, width int, unsigned bool, op Operator) (bool, error) {
	switch op {
	case OpAllSet:
		return (raw & expected) == expected, nil
	case OpAllClear:
		return (raw & expected) == 0, nil
	case OpBitNot:
		mask := maskForWidth(width)
		return (raw & mask) == (^expected & mask), nil
	case OpAnyValue:
		return true, nil
	}

	if unsigned {
		switch op {
		case OpEqual, OpNone:
			return raw == expected, nil
		case OpNotEqual:
			return raw != expected, nil
		case OpGreater:
			return raw > expected, nil
		case OpLess:
			return raw < expected, nil
		}
		return false, fmt.Errorf("magic: invalid numeric operator %d", op)
	}

	a := signExtendToInt64(raw, width)
	b := signExtendToInt64(expected, width)
	switch op {
	case OpEqual, OpNone:
		return a == b, nil
	case OpNotEqual:
		return a != b, nil
	case OpGreater:
		return a > b, nil
	case OpLess:
		return a < b, nil
	}
	return false, fmt.Errorf("magic: invalid numeric operator %d", op)
}

// maskForWidth returns the all-ones mask for a width-byte field, so `~`
// complement comparisons (spec §4.3 step 3) are masked to the type's
// width rather than to a full 64-bit complement.
func maskForWidth(width int) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (uint(width) * 8)) - 1
}

func signExtendToInt64(v uint64, width int) int64 {
	switch width {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return int64(v)
	}
}

func (c *Criterion) evalID3(buf []byte, offset int64) (CriterionResult, error) {
	v, ok := ExtractID3(buf, offset, c.Endianness)
	if !ok {
		return CriterionResult{}, nil
	}
	v = applyNumModifier(c, v, 4)
	if c.Operator != OpAnyValue {
		matched, err := compareInt(v, uint64(c.ExpectedInt), 4, true, c.Operator)
		if err != nil {
			return CriterionResult{}, err
		}
		if !matched {
			return CriterionResult{}, nil
		}
	}
	return CriterionResult{Matched: true, NextOffset: offset + 4, Value: v}, nil
}

func (c *Criterion) evalFloat(buf []byte, offset int64, width int, invert bool) (CriterionResult, error) {
	e := c.effectiveEndian(invert)
	var v float64
	var ok bool
	if width == 4 {
		v, ok = ExtractFloat32(buf, offset, e)
	} else {
		v, ok = ExtractFloat64(buf, offset, e)
	}
	if !ok {
		return CriterionResult{}, nil
	}
	if c.NumModifier.Present {
		return CriterionResult{}, fmt.Errorf("magic: bitwise/arithmetic modifier invalid for float/double")
	}
	if c.Operator == OpAllSet || c.Operator == OpAllClear || c.Operator == OpBitNot {
		return CriterionResult{}, fmt.Errorf("magic: operator invalid for float/double type")
	}
	if c.Operator != OpAnyValue {
		matched := compareFloat(v, c.ExpectedFloat, c.Operator)
		if !matched {
			return CriterionResult{}, nil
		}
	}
	return CriterionResult{Matched: true, NextOffset: offset + int64(width), Value: v}, nil
}

func compareFloat(a, b float64, op Operator) bool {
	switch op {
	case OpEqual, OpNone:
		return a == b
	case OpNotEqual:
		return a != b
	case OpGreater:
		return a > b
	case OpLess:
		return a < b
	default:
		return false
	}
}

func (c *Criterion) evalString(buf []byte, offset int64) (CriterionResult, error) {
	return matchStringAt(buf, offset, c.ExpectedString, c.StrFlags, c.Operator)
}

// matchStringAt implements the String criterion's comparison, shared with
// Search (spec §4.3). On success, NextOffset is offset + the number of
// actual bytes consumed (which can exceed len(expected) under /w). The
// formatted %s value is the rule's own declared pattern text, not the
// literal matched bytes: under /W or /w, actual whitespace in the buffer
// can differ in run length from the pattern, and file(1)'s message
// substitution always prints the pattern's own string (spec §8 scenario
// 3: a `search/10/w h\ e\ llo %s` rule against buffer text "hello" still
// formats as "h e llo").
func matchStringAt(buf []byte, offset int64, expected string, flags StringFlags, op Operator) (CriterionResult, error) {
	if offset < 0 || offset > int64(len(buf)) {
		return CriterionResult{}, nil
	}
	actual := buf[offset:]
	consumed, matched := compareStringPattern(actual, expected, flags, op)
	if !matched {
		return CriterionResult{}, nil
	}
	result := expected
	if flags.Trim {
		result = strings.TrimSpace(result)
	}
	return CriterionResult{Matched: true, NextOffset: offset + int64(consumed), Value: result}, nil
}

// compareStringPattern walks expected against actual applying the /[Ww]
// whitespace rules and /[cC] case-folding rules of spec §4.3. It returns
// how many bytes of actual were consumed and whether the comparison
// succeeded under op.
func compareStringPattern(actual []byte, expected string, flags StringFlags, op Operator) (int, bool) {
	ai, ei := 0, 0
	expBytes := []byte(expected)
	lastCmp := 0
	differs := false

	for ei < len(expBytes) {
		ec := expBytes[ei]
		isExpSpace := ec == ' ' || ec == '\t'

		if isExpSpace && (flags.CompactWhitespace || flags.OptionalWhitespace) {
			start := ai
			for ai < len(actual) && isWhitespaceByte(actual[ai]) {
				ai++
			}
			consumedSpaces := ai - start
			if flags.CompactWhitespace && consumedSpaces == 0 {
				return 0, false
			}
			// Skip any run of whitespace in the expected pattern too.
			for ei < len(expBytes) && (expBytes[ei] == ' ' || expBytes[ei] == '\t') {
				ei++
			}
			continue
		}

		if ai >= len(actual) {
			return 0, false
		}
		ac := actual[ai]
		cmp := compareStringByte(ac, ec, flags)
		lastCmp = cmp

		switch op {
		case OpEqual, OpNone:
			if cmp != 0 {
				return 0, false
			}
		case OpNotEqual:
			if cmp != 0 {
				differs = true
			}
		case OpLess, OpGreater:
			if ei < len(expBytes)-1 {
				// All but the last character must be <=/>= (spec §4.3).
				if op == OpLess && cmp > 0 {
					return 0, false
				}
				if op == OpGreater && cmp < 0 {
					return 0, false
				}
			}
		}
		ai++
		ei++
	}

	switch op {
	case OpEqual, OpNone:
		return ai, true
	case OpNotEqual:
		return ai, differs
	case OpLess:
		return ai, lastCmp < 0
	case OpGreater:
		return ai, lastCmp > 0
	default:
		return ai, true
	}
}

func isWhitespaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// compareStringByte returns -1/0/1 the way bytes.Compare would, after
// applying the /[cC] case-insensitivity rules: c folds lower-case letters
// in the expected pattern to match either case in the actual byte; C does
// the symmetric fold on upper-case letters.
func compareStringByte(actual, expected byte, flags StringFlags) int {
	a, e := actual, expected
	if flags.IgnoreLowerCase && e >= 'a' && e <= 'z' {
		a = toLower(a)
		e = toLower(e)
	}
	if flags.IgnoreUpperCase && e >= 'A' && e <= 'Z' {
		a = toUpper(a)
		e = toUpper(e)
	}
	switch {
	case a < e:
		return -1
	case a > e:
		return 1
	default:
		return 0
	}
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func toUpper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func (c *Criterion) evalPascalString(buf []byte, offset int64) (CriterionResult, error) {
	n := c.PascalLen.Width
	lenVal, ok := ExtractPascalLength(buf, offset, n, c.PascalLen.Endian)
	if !ok {
		return CriterionResult{}, nil
	}
	if c.PascalLen.LengthIncludesSelf {
		lenVal -= int64(n)
	}
	if lenVal < 0 {
		return CriterionResult{}, nil
	}
	dataOffset := offset + int64(n)
	actual, ok := ExtractUTF8(buf, dataOffset, int(lenVal))
	if !ok {
		return CriterionResult{}, nil
	}
	if actual != c.ExpectedString {
		return CriterionResult{}, nil
	}
	return CriterionResult{
		Matched:    true,
		NextOffset: dataOffset + lenVal,
		Value:      actual,
	}, nil
}

func (c *Criterion) evalString16(buf []byte, offset int64, invert bool) (CriterionResult, error) {
	e := c.effectiveEndian(invert)
	units, ok := ExtractUTF16(buf, offset, len(c.String16Units), e)
	if !ok {
		return CriterionResult{}, nil
	}
	for i, u := range units {
		if u != c.String16Units[i] {
			return CriterionResult{}, nil
		}
	}
	return CriterionResult{
		Matched:    true,
		NextOffset: offset + int64(len(units))*2,
		Value:      utf16ToString(units),
	}, nil
}

func utf16ToString(units []uint16) string {
	var sb strings.Builder
	for _, u := range units {
		sb.WriteRune(rune(u))
	}
	return sb.String()
}

func (c *Criterion) evalSearch(buf []byte, offset int64) (CriterionResult, error) {
	start := offset
	end := int64(len(buf))
	if !c.SearchWholeBuffer {
		rangeEnd := offset + c.SearchRange
		if rangeEnd < end {
			end = rangeEnd
		}
	}
	for pos := start; pos <= end; pos++ {
		res, err := matchStringAt(buf, pos, c.ExpectedString, c.StrFlags, c.Operator)
		if err != nil {
			return CriterionResult{}, err
		}
		if res.Matched {
			return res, nil
		}
	}
	return CriterionResult{}, nil
}

func (c *Criterion) evalRegex(buf []byte, offset int64) (CriterionResult, error) {
	if c.RegexCompiled == nil {
		return CriterionResult{}, fmt.Errorf("magic: regex %q not compiled", c.RegexSource)
	}
	if offset < 0 || offset > int64(len(buf)) {
		return CriterionResult{}, nil
	}
	loc := c.RegexCompiled.FindIndex(buf[offset:])
	if loc == nil {
		return CriterionResult{}, nil
	}
	matchStart := offset + int64(loc[0])
	matchEnd := offset + int64(loc[1])
	next := matchEnd
	if c.RegexMatchStart {
		next = matchStart
	}
	return CriterionResult{
		Matched:    true,
		NextOffset: next,
		Value:      string(buf[matchStart:matchEnd]),
	}, nil
}
