package magic

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Message is the printf-style template attached to a pattern (spec §4.5).
// It is stored as the raw source text plus a pre-split list of verbs so
// that formatting a hit never needs to re-parse the template.
type Message struct {
	Source string
	parts  []messagePart

	// ClearPrevious is set when the message begins with \r: the
	// matcher's accumulator is reset before appending this message
	// (spec §3/§4.5).
	ClearPrevious bool
	// NoSpacePrefix is set when the message begins with \b: the
	// matcher's accumulator suppresses the automatic separating space
	// before appending this message.
	NoSpacePrefix bool
}

// messagePart is either literal text or a single conversion spec.
type messagePart struct {
	literal string
	verb    *messageVerb
}

type messageVerb struct {
	raw       string // the full "%...X" text, for fallback fmt.Sprintf
	flags     string
	width     string
	precision string
	conv      byte
}

// NewMessage parses src into a Message ready for Format. Parsing never
// fails: an unrecognized verb is kept as literal text, matching file(1)'s
// permissiveness toward malformed magic database entries.
func NewMessage(src string) *Message {
	m := &Message{}
	body := src
	for len(body) > 0 {
		switch body[0] {
		case '\r':
			m.ClearPrevious = true
			body = body[1:]
			continue
		case '\b':
			m.NoSpacePrefix = true
			body = body[1:]
			continue
		}
		break
	}
	if len(body) > MAXDESC-1 {
		body = body[:MAXDESC-1]
	}
	m.Source = body
	m.parts = splitMessageParts(body)
	return m
}

func splitMessageParts(src string) []messagePart {
	var parts []messagePart
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, messagePart{literal: lit.String()})
			lit.Reset()
		}
	}

	i := 0
	for i < len(src) {
		if src[i] != '%' {
			lit.WriteByte(src[i])
			i++
			continue
		}
		if i+1 < len(src) && src[i+1] == '%' {
			lit.WriteByte('%')
			i += 2
			continue
		}
		verb, n, ok := parseVerb(src[i:])
		if !ok {
			lit.WriteByte(src[i])
			i++
			continue
		}
		flush()
		parts = append(parts, messagePart{verb: verb})
		i += n
	}
	flush()
	return parts
}

// parseVerb parses a single "%[-+0 #][width][.prec][lqh]*[conv]" token
// starting at s[0]=='%' (spec §4.5's printf subset). Length modifiers are
// recognized and discarded: Go's formatting of int64/float64/string needs
// no width hint from the original C type.
func parseVerb(s string) (*messageVerb, int, bool) {
	i := 1
	start := i
	for i < len(s) && strings.IndexByte("-+0 #", s[i]) >= 0 {
		i++
	}
	flags := s[start:i]

	start = i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	width := s[start:i]

	precision := ""
	if i < len(s) && s[i] == '.' {
		i++
		start = i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		precision = s[start:i]
	}

	for i < len(s) && strings.IndexByte("lqh", s[i]) >= 0 {
		i++
	}

	if i >= len(s) {
		return nil, 0, false
	}
	conv := s[i]
	if strings.IndexByte("bcdeEfFgGiosuxX", conv) < 0 {
		return nil, 0, false
	}
	i++

	return &messageVerb{
		raw:       s[:i],
		flags:     flags,
		width:     width,
		precision: precision,
		conv:      conv,
	}, i, true
}

// Format renders m against a single extracted value (spec §4.5: each
// pattern's message consumes at most the one value its own criterion
// produced; %s against a numeric value or vice versa degrades to a plain
// Go rendering of the underlying verb, matching file(1)'s forgiving
// behavior on mismatched magic entries).
func (m *Message) Format(value any) string {
	var sb strings.Builder
	used := false
	for _, p := range m.parts {
		if p.verb == nil {
			sb.WriteString(p.literal)
			continue
		}
		if used {
			// A second conversion in one message reuses the same value
			// (no magic(5) pattern produces more than one extracted value
			// per line); render it identically rather than erroring.
			sb.WriteString(formatVerb(p.verb, value))
			continue
		}
		sb.WriteString(formatVerb(p.verb, value))
		used = true
	}
	return sb.String()
}

func formatVerb(v *messageVerb, value any) string {
	spec := "%" + v.flags + v.width + precisionSuffix(v.precision)

	switch v.conv {
	case 'd', 'i', 'u', 'o', 'x', 'X', 'c':
		return fmt.Sprintf(spec+string(goConvFor(v.conv)), asInt64(value))
	case 'b':
		return fmt.Sprintf(spec+"s", asBinaryString(value))
	case 's':
		return fmt.Sprintf(spec+"s", asDisplayString(value))
	case 'e', 'E', 'f', 'F', 'g', 'G':
		return formatFloatVerb(spec, v.conv, asFloat64(value))
	default:
		return v.raw
	}
}

func precisionSuffix(prec string) string {
	if prec == "" {
		return ""
	}
	return "." + prec
}

func goConvFor(conv byte) byte {
	switch conv {
	case 'u':
		return 'd'
	default:
		return conv
	}
}

func formatFloatVerb(spec string, conv byte, f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	if math.IsInf(f, 0) {
		return "inf"
	}
	return fmt.Sprintf(spec+string(conv), f)
}

// TimestampValue marks a date-family criterion's matched value so Format
// renders it as ctime-style text rather than a bare integer (spec §3).
type TimestampValue struct {
	Seconds int64
	Local   bool
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	case TimestampValue:
		return v.Seconds
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
		return n
	default:
		return 0
	}
}

func asFloat64(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	default:
		return 0
	}
}

func asDisplayString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case TimestampValue:
		return FormatTimestamp(v.Seconds, v.Local)
	default:
		return fmt.Sprint(v)
	}
}

func asBinaryString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return asDisplayString(value)
}

// FormatTimestamp renders a date/ldate/qdate/qldate value the way
// file(1)'s magic formatter does: ctime-style text, UTC for the "q"
// (non-local) variants and local time for "ldate"/"qldate" (spec §3's
// date-family types; local-vs-UTC is the one piece of default behavior
// the printf verb table alone can't express).
func FormatTimestamp(unixSeconds int64, local bool) string {
	t := time.Unix(unixSeconds, 0)
	if local {
		t = t.Local()
	} else {
		t = t.UTC()
	}
	return t.Format("Mon Jan  2 15:04:05 2006")
}
