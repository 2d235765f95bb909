package magic

import "fmt"

// RuleSyntaxError reports a magic(5) line that could not be parsed at all
// (spec §7): a malformed level/offset/type/operator/value field.
type RuleSyntaxError struct {
	File string
	Line int
	Text string
	Err  error
}

func (e *RuleSyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: syntax error: %v (%q)", e.File, e.Line, e.Err, e.Text)
}

func (e *RuleSyntaxError) Unwrap() error { return e.Err }

// UnknownTypeError reports a type field naming a family TagFromName does
// not recognize.
type UnknownTypeError struct {
	File string
	Line int
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("%s:%d: unknown type %q", e.File, e.Line, e.Name)
}

// UnknownOperatorError reports a comparison operator character that isn't
// one of =!<>&^~x.
type UnknownOperatorError struct {
	File string
	Line int
	Char byte
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("%s:%d: unknown operator %q", e.File, e.Line, string(e.Char))
}

// NameCollisionError reports a `name` label registered more than once
// within a single Database (spec §3 invariant 2).
type NameCollisionError struct {
	Label      string
	FirstFile  string
	FirstLine  int
	SecondFile string
	SecondLine int
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("name %q redefined at %s:%d (first defined at %s:%d)",
		e.Label, e.SecondFile, e.SecondLine, e.FirstFile, e.FirstLine)
}

// UnknownNameError reports a `use` directive referencing a label with no
// matching `name` pattern anywhere in the Database (spec §4.4).
type UnknownNameError struct {
	File  string
	Line  int
	Label string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("%s:%d: use references unknown name %q", e.File, e.Line, e.Label)
}

// NegativeOffsetError wraps ErrNegativeOffset with the rule's source
// location, for reporting (not halting) during a match.
type NegativeOffsetError struct {
	File string
	Line int
	Err  error
}

func (e *NegativeOffsetError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *NegativeOffsetError) Unwrap() error { return e.Err }

// RecursionDepthError reports a `use` chain or indirect chain exceeding
// the matcher's depth guard (spec §4.9 edge case).
type RecursionDepthError struct {
	Label string
	Depth int
}

func (e *RecursionDepthError) Error() string {
	return fmt.Sprintf("recursion depth exceeded (%d) resolving %q", e.Depth, e.Label)
}

// RegexCompileError wraps a regexp.Compile failure with the rule's source
// location.
type RegexCompileError struct {
	File    string
	Line    int
	Pattern string
	Err     error
}

func (e *RegexCompileError) Error() string {
	return fmt.Sprintf("%s:%d: invalid regex %q: %v", e.File, e.Line, e.Pattern, e.Err)
}

func (e *RegexCompileError) Unwrap() error { return e.Err }
