package magic

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseLine parses one magic(5) pattern line (spec §4.6) into a Pattern.
// Parent/Children/Offset-in-arena linkage is the Builder's job; ParseLine
// only fills in the per-line fields. Extension lines ("!:...") are
// handled separately by ParseExtension.
func ParseLine(file string, lineNo int, text string) (*Pattern, error) {
	level, rest := parseLevel(text)
	offsetText, rest, err := splitField(rest)
	if err != nil || offsetText == "" {
		return nil, &RuleSyntaxError{File: file, Line: lineNo, Text: text, Err: fmt.Errorf("missing offset field")}
	}
	offset, err := parseOffset(offsetText)
	if err != nil {
		return nil, &RuleSyntaxError{File: file, Line: lineNo, Text: text, Err: err}
	}

	typeText, rest, err := splitField(rest)
	if err != nil || typeText == "" {
		return nil, &RuleSyntaxError{File: file, Line: lineNo, Text: text, Err: fmt.Errorf("missing type field")}
	}

	p := &Pattern{
		Level:      level,
		Offset:     offset,
		SourceLine: lineNo,
	}

	rawName, unsigned, modifier := parseTypeField(typeText)

	if tag, ok := instructionTagFromName(rawName); ok {
		instr, messageText, err := parseInstruction(tag, modifier, rest)
		if err != nil {
			return nil, &RuleSyntaxError{File: file, Line: lineNo, Text: text, Err: err}
		}
		p.IsInstruction = true
		p.Instruction = instr
		p.Message = NewMessage(expandCEscapes(messageText))
		return p, nil
	}

	endian, bareName := parseEndianPrefixedName(rawName)
	tag, ok := TagFromName(bareName)
	if !ok {
		return nil, &UnknownTypeError{File: file, Line: lineNo, Name: rawName}
	}

	crit, messageText, err := parseCriterion(tag, endian, unsigned, modifier, rest)
	if err != nil {
		var unknownOp *UnknownOperatorError
		if errors.As(err, &unknownOp) {
			return nil, &UnknownOperatorError{File: file, Line: lineNo, Char: unknownOp.Char}
		}
		return nil, &RuleSyntaxError{File: file, Line: lineNo, Text: text, Err: err}
	}
	p.Criterion = *crit
	p.TextHint = crit.StrFlags.TextHint
	p.BinaryHint = crit.StrFlags.BinaryHint
	p.Message = NewMessage(expandCEscapes(messageText))
	return p, nil
}

func instructionTagFromName(name string) (TypeTag, bool) {
	switch name {
	case "name":
		return TypeName, true
	case "use":
		return TypeUse, true
	case "default":
		return TypeDefault, true
	case "indirect":
		return TypeIndirect, true
	}
	return TypeInvalid, false
}

func parseInstruction(tag TypeTag, modifier string, rest string) (Instruction, string, error) {
	switch tag {
	case TypeName:
		label, msg, _ := splitFieldOrRest(rest)
		return Instruction{Kind: InstructionName, NameLabel: label}, msg, nil
	case TypeUse:
		label, msg, _ := splitFieldOrRest(rest)
		invert := false
		if strings.HasPrefix(label, "^") {
			invert = true
			label = label[1:]
		}
		return Instruction{Kind: InstructionUse, UseLabel: label, InvertEndianness: invert}, msg, nil
	case TypeDefault:
		// default's test field is conventionally "x" but is never
		// evaluated (spec §3); discard it like name/use discard their
		// own leading field before the message begins.
		_, msg, _ := splitFieldOrRest(rest)
		return Instruction{Kind: InstructionDefault}, msg, nil
	case TypeIndirect:
		relative := strings.Contains(modifier, "r")
		return Instruction{Kind: InstructionIndirect, IndirectRelative: relative}, rest, nil
	default:
		return Instruction{}, rest, fmt.Errorf("unhandled instruction tag %v", tag)
	}
}

// parseLevel strips leading '>' characters (and an optional following
// space) and returns the level and remaining text.
func parseLevel(s string) (int, string) {
	level := 0
	i := 0
	for i < len(s) && s[i] == '>' {
		level++
		i++
	}
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return level, s[i:]
}

// splitField consumes leading whitespace, then returns the next
// whitespace-delimited field and the remainder (with its own leading
// whitespace intact for the caller's next call).
func splitField(s string) (string, string, error) {
	s = strings.TrimLeft(s, " \t")
	i := 0
	for i < len(s) && s[i] != ' ' && s[i] != '\t' {
		i++
	}
	return s[:i], s[i:], nil
}

func splitFieldOrRest(s string) (string, string, bool) {
	field, rest, _ := splitField(s)
	rest = strings.TrimLeft(rest, " \t")
	return field, rest, true
}

// parseOffset implements the offset grammar of spec §4.6:
//
//	[&]( [(] base [.typeCh] [opModifier] [)] )
func parseOffset(s string) (Offset, error) {
	relative := strings.HasPrefix(s, "&")
	s = strings.TrimPrefix(s, "&")
	if strings.HasPrefix(s, "(") {
		inner := strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
		ind, err := parseIndirectOffset(inner)
		if err != nil {
			return Offset{}, err
		}
		return Offset{Relative: relative, Indirect: &ind}, nil
	}

	base, err := parseIntLiteral(s)
	if err != nil {
		return Offset{}, err
	}
	return Offset{Base: base, Relative: relative}, nil
}

// parseIndirectOffset parses the interior of a "(...)" indirect offset
// expression: base[.typeCh][opModifier].
func parseIndirectOffset(s string) (IndirectOffset, error) {
	relative := strings.HasPrefix(s, "&")
	s = strings.TrimPrefix(s, "&")

	readType := DefaultOffsetReadType()
	var mod *OffsetModification

	// Split off an optional trailing arithmetic modifier: one of
	// + - * / % & | ^ followed by a literal or a parenthesised
	// operand-indirect expression.
	base := s
	if idx := findModifierStart(s); idx >= 0 {
		base = s[:idx]
		m, err := parseOffsetModification(s[idx:])
		if err != nil {
			return IndirectOffset{}, err
		}
		mod = m
	}

	// Optional ".typeCh" suffix on base.
	if dot := strings.LastIndexByte(base, '.'); dot >= 0 && dot < len(base)-1 {
		typeCh := base[dot+1]
		rt, ok := offsetReadTypeFromChar(typeCh)
		if ok {
			readType = rt
			base = base[:dot]
		}
	}

	innerOffset, err := parseIntLiteral(base)
	if err != nil {
		return IndirectOffset{}, err
	}

	return IndirectOffset{
		InnerOffset:   innerOffset,
		InnerRelative: relative,
		ReadType:      readType,
		Modification:  mod,
	}, nil
}

func offsetReadTypeFromChar(c byte) (OffsetReadType, bool) {
	switch c {
	case 'b':
		return OffsetReadType{Endian: Little, Width: 1}, true
	case 'B':
		return OffsetReadType{Endian: Big, Width: 1}, true
	case 's':
		return OffsetReadType{Endian: Little, Width: 2}, true
	case 'S':
		return OffsetReadType{Endian: Big, Width: 2}, true
	case 'i':
		return OffsetReadType{Endian: Little, Width: 4, ID3: true}, true
	case 'I':
		return OffsetReadType{Endian: Big, Width: 4, ID3: true}, true
	case 'l':
		return OffsetReadType{Endian: Little, Width: 4}, true
	case 'L':
		return OffsetReadType{Endian: Big, Width: 4}, true
	case 'm':
		return OffsetReadType{Endian: Middle, Width: 4}, true
	case 'q':
		return OffsetReadType{Endian: Little, Width: 8}, true
	case 'Q':
		return OffsetReadType{Endian: Big, Width: 8}, true
	}
	return OffsetReadType{}, false
}

func findModifierStart(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+', '-', '*', '/', '%', '&', '|', '^':
			if i == 0 {
				continue // leading '&' is the relative marker, not a modifier
			}
			return i
		}
	}
	return -1
}

func parseOffsetModification(s string) (*OffsetModification, error) {
	op, ok := operatorFromChar(s[0])
	if !ok {
		return nil, fmt.Errorf("invalid offset modifier operator %q", s[0])
	}
	rest := s[1:]
	if strings.HasPrefix(rest, "(") {
		inner := strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
		ind, err := parseIndirectOffset(inner)
		if err != nil {
			return nil, err
		}
		return &OffsetModification{
			Op:              op,
			Operand:         ind.InnerOffset,
			OperandIndirect: true,
			OperandReadType: ind.ReadType,
		}, nil
	}
	v, err := parseIntLiteral(rest)
	if err != nil {
		return nil, err
	}
	return &OffsetModification{Op: op, Operand: v}, nil
}

func operatorFromChar(c byte) (Operator, bool) {
	switch c {
	case '+':
		return OpAdd, true
	case '-':
		return OpSub, true
	case '*':
		return OpMul, true
	case '/':
		return OpDiv, true
	case '%':
		return OpMod, true
	case '&':
		return OpBitAnd, true
	case '|':
		return OpBitOr, true
	case '^':
		return OpBitXor, true
	}
	return OpNone, false
}

func parseIntLiteral(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty integer literal")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	base := 10
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		base = 16
		s = s[2:]
	case strings.HasPrefix(s, "0") && len(s) > 1:
		base = 8
		s = s[1:]
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, err
	}
	if neg {
		return -int64(v), nil
	}
	return int64(v), nil
}

// parseTypeField splits "[u]name[/modifiers]" (spec §4.6) into the bare
// name token (still possibly "le"/"be"/"me"-prefixed; parseEndianPrefixedName
// resolves that next), its unsigned flag, and the modifier tail. A
// leading "u" is a signedness marker and is stripped, unless the whole
// token is itself a type name ("use").
func parseTypeField(field string) (name string, unsigned bool, modifier string) {
	body := field
	if slash := strings.IndexByte(body, '/'); slash >= 0 {
		modifier = body[slash+1:]
		body = body[:slash]
	}
	if _, known := TagFromName(body); !known && strings.HasPrefix(body, "u") && len(body) > 1 {
		unsigned = true
		body = body[1:]
	}
	return body, unsigned, modifier
}

// parseCriterion builds a Criterion from a resolved type tag, its
// endianness (from the "le"/"be"/"me" name prefix, or Native), unsigned
// flag, and modifier text, and the remaining line text (operator + value
// + message).
func parseCriterion(tag TypeTag, endian Endianness, unsigned bool, modifier string, rest string) (*Criterion, string, error) {
	switch tag {
	case TypeByte, TypeShort, TypeLong, TypeQuad, TypeDate, TypeLongDate,
		TypeQuadDate, TypeQuadLongDate, TypeMSDOSDate, TypeMSDOSTime, TypeOctal, TypeOffset:
		c, msg, err := parseNumericCriterion(kindForTag(tag), endian, unsigned, modifier, rest)
		if err != nil {
			return nil, "", err
		}
		c.IsDate, c.LocalTime = dateFlagsForTag(tag)
		return c, msg, nil
	case TypeFloat:
		return parseFloatCriterion(CriterionFloat, endian, rest)
	case TypeDouble:
		return parseFloatCriterion(CriterionDouble, endian, rest)
	case TypeString:
		return parseStringCriterion(endian, modifier, rest)
	case TypePascalString:
		return parsePascalCriterion(modifier, rest)
	case TypeString16:
		return parseString16Criterion(endian, rest)
	case TypeSearch:
		return parseSearchCriterion(modifier, rest)
	case TypeRegex:
		return parseRegexCriterion(modifier, rest)
	default:
		return nil, "", fmt.Errorf("type %q has no criterion form", tag.Name())
	}
}

// dateFlagsForTag reports whether tag belongs to the date family (spec §3:
// "Dates are numeric but formatted as timestamps") and, if so, whether it
// is a local-time variant ("ldate"/"qldate") rather than UTC
// ("date"/"qdate"). qwdate (Windows FILETIME) is an explicit non-goal
// (spec §1): parseCriterion has no case for it, so a qwdate line is
// rejected as having no criterion form.
func dateFlagsForTag(tag TypeTag) (isDate, local bool) {
	switch tag {
	case TypeDate, TypeQuadDate:
		return true, false
	case TypeLongDate, TypeQuadLongDate:
		return true, true
	default:
		return false, false
	}
}

func kindForTag(tag TypeTag) CriterionKind {
	switch tag {
	case TypeByte:
		return CriterionByteNum
	case TypeShort, TypeMSDOSDate, TypeMSDOSTime:
		return CriterionShortNum
	case TypeLong, TypeDate, TypeLongDate, TypeOctal, TypeOffset:
		return CriterionIntNum
	case TypeQuad, TypeQuadDate, TypeQuadLongDate:
		return CriterionLongNum
	default:
		return CriterionIntNum
	}
}

// parseEndianPrefixedName splits a full type token like "lelong" or
// "mequad" into its endianness and bare family name, per the magic(5)
// naming convention (spec §3's "belong"/"lelong" example).
func parseEndianPrefixedName(name string) (Endianness, string) {
	switch {
	case strings.HasPrefix(name, "le"):
		if _, ok := TagFromName(name[2:]); ok {
			return Little, name[2:]
		}
	case strings.HasPrefix(name, "be"):
		if _, ok := TagFromName(name[2:]); ok {
			return Big, name[2:]
		}
	case strings.HasPrefix(name, "me"):
		if _, ok := TagFromName(name[2:]); ok {
			return Middle, name[2:]
		}
	}
	return Native, name
}

func parseNumericCriterion(kind CriterionKind, endian Endianness, unsigned bool, modifier string, rest string) (*Criterion, string, error) {
	mod, remModifier := parseNumModifier(modifier)
	op, valueText, message, err := parseOperatorAndValue(rest, true)
	if err != nil {
		return nil, "", err
	}
	c := &Criterion{
		Kind:       kind,
		Endianness: endian,
		Unsigned:   unsigned,
		Operator:   op,
		NumModifier: mod,
	}
	_ = remModifier
	if op == OpAnyValue {
		return c, message, nil
	}
	v, err := parseIntLiteral(valueText)
	if err != nil {
		return nil, "", fmt.Errorf("invalid numeric value %q: %w", valueText, err)
	}
	c.ExpectedInt = v
	return c, message, nil
}

// parseNumModifier reads a trailing "&operand" or "-operand" pre-
// comparison modifier from a type's modifier text (spec §4.3 step 2 /
// §9's undocumented "-" subtraction modifier).
func parseNumModifier(modifier string) (Modifier, string) {
	if modifier == "" {
		return Modifier{}, ""
	}
	idx := strings.IndexAny(modifier, "&-")
	if idx < 0 {
		return Modifier{}, modifier
	}
	opChar := modifier[idx]
	operandText := modifier[idx+1:]
	v, err := parseIntLiteral(operandText)
	if err != nil {
		return Modifier{}, modifier
	}
	op := OpBitAnd
	if opChar == '-' {
		op = OpSub
	}
	return Modifier{Present: true, Op: op, Operand: uint64(v)}, modifier[:idx]
}

func parseFloatCriterion(kind CriterionKind, endian Endianness, rest string) (*Criterion, string, error) {
	op, valueText, message, err := parseOperatorAndValue(rest, true)
	if err != nil {
		return nil, "", err
	}
	c := &Criterion{Kind: kind, Endianness: endian, Operator: op}
	if op == OpAnyValue {
		return c, message, nil
	}
	v, err := strconv.ParseFloat(valueText, 64)
	if err != nil {
		return nil, "", fmt.Errorf("invalid float value %q: %w", valueText, err)
	}
	c.ExpectedFloat = v
	return c, message, nil
}

func parseStringCriterion(endian Endianness, modifier string, rest string) (*Criterion, string, error) {
	flags := parseStringFlags(modifier)
	op, valueText, message, err := parseOperatorAndValue(rest, false)
	if err != nil {
		return nil, "", err
	}
	return &Criterion{
		Kind:           CriterionString,
		Endianness:     endian,
		Operator:       op,
		ExpectedString: expandCEscapes(valueText),
		StrFlags:       flags,
	}, message, nil
}

func parseStringFlags(modifier string) StringFlags {
	var f StringFlags
	for i := 0; i < len(modifier); i++ {
		switch modifier[i] {
		case 'W':
			f.CompactWhitespace = true
		case 'w':
			f.OptionalWhitespace = true
		case 'c':
			f.IgnoreLowerCase = true
		case 'C':
			f.IgnoreUpperCase = true
		case 'T':
			f.Trim = true
		case 't':
			f.TextHint = true
		case 'b':
			f.BinaryHint = true
		}
	}
	return f
}

func parsePascalCriterion(modifier string, rest string) (*Criterion, string, error) {
	lenSpec := DefaultPascalLenSpec()
	for i := 0; i < len(modifier); i++ {
		switch modifier[i] {
		case 'B':
			lenSpec.Width, lenSpec.Endian = 1, Big
		case 'b':
			lenSpec.Width, lenSpec.Endian = 1, Little
		case 'H':
			lenSpec.Width, lenSpec.Endian = 2, Big
		case 'h':
			lenSpec.Width, lenSpec.Endian = 2, Little
		case 'L':
			lenSpec.Width, lenSpec.Endian = 4, Big
		case 'l':
			lenSpec.Width, lenSpec.Endian = 4, Little
		case 'J':
			lenSpec.LengthIncludesSelf = true
		}
	}
	_, valueText, message, err := parseOperatorAndValue(rest, false)
	if err != nil {
		return nil, "", err
	}
	return &Criterion{
		Kind:           CriterionPascalString,
		Operator:       OpEqual,
		ExpectedString: expandCEscapes(valueText),
		PascalLen:      lenSpec,
	}, message, nil
}

func parseString16Criterion(endian Endianness, rest string) (*Criterion, string, error) {
	op, valueText, message, err := parseOperatorAndValue(rest, false)
	if err != nil {
		return nil, "", err
	}
	expanded := expandCEscapes(valueText)
	units := make([]uint16, 0, len(expanded))
	for _, r := range expanded {
		units = append(units, uint16(r))
	}
	return &Criterion{
		Kind:          CriterionString16,
		Endianness:    endian,
		Operator:      op,
		String16Units: units,
	}, message, nil
}

func parseSearchCriterion(modifier string, rest string) (*Criterion, string, error) {
	rangeVal := int64(0)
	whole := false
	flagsText := modifier
	if slash := strings.IndexByte(modifier, '/'); slash >= 0 {
		rangeText := modifier[:slash]
		flagsText = modifier[slash+1:]
		if rangeText != "" {
			if v, err := strconv.ParseInt(rangeText, 10, 64); err == nil {
				rangeVal = v
			}
		}
	} else if modifier != "" {
		if v, err := strconv.ParseInt(modifier, 10, 64); err == nil {
			rangeVal = v
			flagsText = ""
		}
	}
	flags := parseStringFlags(flagsText)
	if flags.OptionalWhitespace {
		whole = true
	}
	_, valueText, message, err := parseOperatorAndValue(rest, false)
	if err != nil {
		return nil, "", err
	}
	return &Criterion{
		Kind:              CriterionSearch,
		Operator:          OpEqual,
		ExpectedString:    expandCEscapes(valueText),
		StrFlags:          flags,
		SearchRange:       rangeVal,
		SearchWholeBuffer: whole,
	}, message, nil
}

func parseRegexCriterion(modifier string, rest string) (*Criterion, string, error) {
	caseFold := strings.ContainsRune(modifier, 'c')
	matchStart := strings.ContainsRune(modifier, 's')
	_, valueText, message, err := parseOperatorAndValue(rest, false)
	if err != nil {
		return nil, "", err
	}
	pattern := expandCEscapes(valueText)
	source := pattern
	compiled, err := regexp.CompilePOSIX(posixToRE2(pattern))
	if caseFold {
		compiled, err = regexp.Compile("(?i)" + posixToRE2(pattern))
	}
	if err != nil {
		return nil, "", fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return &Criterion{
		Kind:            CriterionRegex,
		RegexSource:     source,
		RegexCompiled:   compiled,
		RegexCaseFold:   caseFold,
		RegexMatchStart: matchStart,
	}, message, nil
}

// posixToRE2 passes the pattern through unchanged: Go's regexp package
// already accepts POSIX ERE syntax as a subset of RE2. Kept as a named
// seam so a future divergence (e.g. POSIX bracket classes) has one place
// to land.
func posixToRE2(pattern string) string {
	return pattern
}

// parseOperatorAndValue splits "[op]value remaining-message" into the
// operator, the value token, and the message text (spec §4.6's operation
// grammar, including the "isolated operator extended by next token"
// rule). The "x" operator takes no value token: everything after it is
// the message. With numericValue true, the value is a single
// whitespace-delimited token, and a value with no operator that does not
// start with a digit, '-' or '.' is an UnknownOperatorError. With
// numericValue false, the value runs to the first space or tab that is
// not backslash-escaped (see splitEscapedField).
func parseOperatorAndValue(rest string, numericValue bool) (Operator, string, string, error) {
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return OpNone, "", "", nil
	}

	op := OpEqual
	consumed := 0
	switch rest[0] {
	case '=':
		op = OpEqual
		consumed = 1
	case '!':
		op = OpNotEqual
		consumed = 1
	case '<':
		op = OpLess
		consumed = 1
	case '>':
		op = OpGreater
		consumed = 1
	case '&':
		op = OpAllSet
		consumed = 1
	case '^':
		op = OpAllClear
		consumed = 1
	case '~':
		op = OpBitNot
		consumed = 1
	case 'x':
		if len(rest) == 1 || rest[1] == ' ' || rest[1] == '\t' {
			op = OpAnyValue
			consumed = 1
		}
	}
	if numericValue && consumed == 0 {
		if c0 := rest[0]; !(c0 >= '0' && c0 <= '9') && c0 != '-' && c0 != '.' {
			return OpNone, "", "", &UnknownOperatorError{Char: c0}
		}
	}
	rest = rest[consumed:]
	if op == OpAnyValue {
		return op, "", strings.TrimLeft(rest, " \t"), nil
	}

	valueText, remainder, _ := splitEscapedField(rest, numericValue)
	message := strings.TrimLeft(remainder, " \t")
	return op, valueText, message, nil
}

// splitEscapedField reads the value token: for numeric values, a single
// whitespace-delimited token; for string/search/regex values, a token
// that may itself contain backslash-escaped spaces (\ ), terminated by
// the first unescaped space.
func splitEscapedField(s string, numericValue bool) (string, string, bool) {
	if numericValue {
		field, rest, _ := splitField(s)
		return field, rest, true
	}
	var sb strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			sb.WriteByte(s[i])
			sb.WriteByte(s[i+1])
			i += 2
			continue
		}
		if s[i] == ' ' || s[i] == '\t' {
			break
		}
		sb.WriteByte(s[i])
		i++
	}
	return sb.String(), s[i:], true
}

// expandCEscapes expands the standard-C escapes magic(5) allows in
// string patterns and messages (spec §4.6): \n \t \r \f \b, octal
// \0-\377, hex \xNN, \\, and \<space>.
func expandCEscapes(s string) string {
	var sb strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '\\' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			i++
			continue
		}
		next := s[i+1]
		switch next {
		case 'n':
			sb.WriteByte('\n')
			i += 2
		case 't':
			sb.WriteByte('\t')
			i += 2
		case 'r':
			sb.WriteByte('\r')
			i += 2
		case 'f':
			sb.WriteByte('\f')
			i += 2
		case 'b':
			sb.WriteByte('\b')
			i += 2
		case '\\':
			sb.WriteByte('\\')
			i += 2
		case ' ':
			sb.WriteByte(' ')
			i += 2
		case 'x':
			j := i + 2
			end := j
			for end < len(s) && end < j+2 && isHexDigit(s[end]) {
				end++
			}
			if end > j {
				v, _ := strconv.ParseUint(s[j:end], 16, 8)
				sb.WriteByte(byte(v))
				i = end
			} else {
				sb.WriteByte(next)
				i += 2
			}
		default:
			if next >= '0' && next <= '7' {
				j := i + 1
				end := j
				for end < len(s) && end < j+3 && s[end] >= '0' && s[end] <= '7' {
					end++
				}
				v, _ := strconv.ParseUint(s[j:end], 8, 8)
				sb.WriteByte(byte(v))
				i = end
			} else {
				sb.WriteByte(next)
				i += 2
			}
		}
	}
	return sb.String()
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// ExtensionKind enumerates the "!:" lines of spec §4.6/§9's expanded
// extension-directive handling.
type ExtensionKind int

const (
	ExtMime ExtensionKind = iota
	ExtOptional
	ExtApple
	ExtStrength
	ExtExt
	ExtUnknown
)

// ParseExtension parses a "!:key value" line, applying it to target
// (the most recently parsed pattern, at whatever level, per spec §4.6).
func ParseExtension(target *Pattern, line string) {
	line = strings.TrimPrefix(line, "!:")
	key, value, _ := splitField(line)
	value = strings.TrimSpace(value)
	switch key {
	case "mime":
		target.Mime = truncateTo(value, MAXMIME)
	case "optional":
		target.Optional = true
	case "apple":
		target.Apple = truncateTo(value, 8)
	case "ext":
		target.Ext = splitExtList(truncateTo(value, MAXEXT))
	case "strength":
		target.Strength = applyStrengthModifier(target.Strength, value)
	}
}

func truncateTo(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func splitExtList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyStrengthModifier implements "!:strength +10"/"-10"/"*2"/"/2"
// against a base of 50 (spec's expansion of the extension-line grammar).
func applyStrengthModifier(current int, value string) int {
	if current == 0 {
		current = 50
	}
	if value == "" {
		return current
	}
	op := value[0]
	numText := value
	if strings.ContainsAny(string(op), "+-*/") {
		numText = value[1:]
	} else {
		op = '='
	}
	n, err := strconv.Atoi(strings.TrimSpace(numText))
	if err != nil {
		return current
	}
	switch op {
	case '+':
		return current + n
	case '-':
		return current - n
	case '*':
		return current * n
	case '/':
		if n == 0 {
			return current
		}
		return current / n
	default:
		return n
	}
}
