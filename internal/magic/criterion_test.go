package magic

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCriterionByteNumEqual(t *testing.T) {
	c := &Criterion{Kind: CriterionByteNum, Operator: OpEqual, ExpectedInt: 0x7F}
	res, err := c.Evaluate([]byte{0x7F, 0x00}, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.EqualValues(t, 1, res.NextOffset)
	require.Equal(t, int64(0x7F), res.Value)
}

func TestCriterionLongNumAnyValueAlwaysMatches(t *testing.T) {
	c := &Criterion{Kind: CriterionLongNum, Operator: OpAnyValue}
	res, err := c.Evaluate([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)
}

func TestCriterionShortNumNotEqual(t *testing.T) {
	c := &Criterion{Kind: CriterionShortNum, Operator: OpNotEqual, ExpectedInt: 5, Unsigned: true, Endianness: Big}
	res, err := c.Evaluate([]byte{0x00, 0x06}, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)

	res, err = c.Evaluate([]byte{0x00, 0x05}, 0, false)
	require.NoError(t, err)
	require.False(t, res.Matched)
}

func TestCriterionAllSetAllClear(t *testing.T) {
	allSet := &Criterion{Kind: CriterionByteNum, Operator: OpAllSet, ExpectedInt: 0x0F, Unsigned: true}
	res, err := allSet.Evaluate([]byte{0xFF}, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)

	allClear := &Criterion{Kind: CriterionByteNum, Operator: OpAllClear, ExpectedInt: 0x0F, Unsigned: true}
	res, err = allClear.Evaluate([]byte{0xF0}, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)

	res, err = allClear.Evaluate([]byte{0xF1}, 0, false)
	require.NoError(t, err)
	require.False(t, res.Matched)
}

func TestCriterionEndiannessInversion(t *testing.T) {
	c := &Criterion{Kind: CriterionShortNum, Operator: OpEqual, ExpectedInt: 0x0102, Endianness: Big, Unsigned: true}
	// Little-endian bytes for 0x0102 would be {0x02, 0x01}; inverting Big
	// at evaluation time should let this still match.
	res, err := c.Evaluate([]byte{0x02, 0x01}, 0, true)
	require.NoError(t, err)
	require.True(t, res.Matched)
}

func TestCriterionSignedNegativeComparison(t *testing.T) {
	c := &Criterion{Kind: CriterionByteNum, Operator: OpLess, ExpectedInt: 0}
	res, err := c.Evaluate([]byte{0xFF}, 0, false) // -1 as signed byte
	require.NoError(t, err)
	require.True(t, res.Matched)
}

func TestCriterionNumModifierMask(t *testing.T) {
	c := &Criterion{
		Kind:        CriterionByteNum,
		Operator:    OpEqual,
		ExpectedInt: 0x0F,
		Unsigned:    true,
		NumModifier: Modifier{Present: true, Op: OpBitAnd, Operand: 0x0F},
	}
	res, err := c.Evaluate([]byte{0xAF}, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)
}

func TestCriterionFloatEqual(t *testing.T) {
	c := &Criterion{Kind: CriterionFloat, Operator: OpEqual, ExpectedFloat: 1.5}
	buf := []byte{0x3F, 0xC0, 0x00, 0x00} // 1.5f big endian
	res, err := c.Evaluate(buf, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)
}

func TestCriterionFloatRejectsBitwiseOperator(t *testing.T) {
	c := &Criterion{Kind: CriterionFloat, Operator: OpAllSet}
	_, err := c.Evaluate([]byte{0, 0, 0, 0}, 0, false)
	require.Error(t, err)
}

func TestCriterionComplementOperator(t *testing.T) {
	c := &Criterion{Kind: CriterionByteNum, Operator: OpBitNot, ExpectedInt: 0x0F, Unsigned: true}
	res, err := c.Evaluate([]byte{0xF0}, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched, "0xF0 == ^0x0F masked to one byte")

	res, err = c.Evaluate([]byte{0xF1}, 0, false)
	require.NoError(t, err)
	require.False(t, res.Matched)
}

func TestCriterionFloatRejectsComplementOperator(t *testing.T) {
	c := &Criterion{Kind: CriterionDouble, Operator: OpBitNot}
	_, err := c.Evaluate(make([]byte, 8), 0, false)
	require.Error(t, err)
}

func TestCriterionStringEqual(t *testing.T) {
	c := &Criterion{Kind: CriterionString, Operator: OpEqual, ExpectedString: "PNG"}
	buf := []byte("PNG image")
	res, err := c.Evaluate(buf, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.EqualValues(t, 3, res.NextOffset)
	require.Equal(t, "PNG", res.Value)
}

func TestCriterionStringCaseFold(t *testing.T) {
	c := &Criterion{
		Kind: CriterionString, Operator: OpEqual, ExpectedString: "png",
		StrFlags: StringFlags{IgnoreLowerCase: true},
	}
	res, err := c.Evaluate([]byte("PNG"), 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)
}

func TestCriterionStringCompactWhitespace(t *testing.T) {
	c := &Criterion{
		Kind: CriterionString, Operator: OpEqual, ExpectedString: "a b",
		StrFlags: StringFlags{CompactWhitespace: true},
	}
	res, err := c.Evaluate([]byte("a    b"), 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)

	res, err = c.Evaluate([]byte("ab"), 0, false) // no whitespace at all: must fail under /W
	require.NoError(t, err)
	require.False(t, res.Matched)
}

func TestCriterionPascalString(t *testing.T) {
	c := &Criterion{
		Kind:           CriterionPascalString,
		Operator:       OpEqual,
		ExpectedString: "hi",
		PascalLen:      DefaultPascalLenSpec(),
	}
	buf := []byte{2, 'h', 'i', 'x'}
	res, err := c.Evaluate(buf, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.EqualValues(t, 3, res.NextOffset)
}

func TestCriterionString16(t *testing.T) {
	c := &Criterion{
		Kind:          CriterionString16,
		Endianness:    Big,
		String16Units: []uint16{'h', 'i'},
	}
	buf := []byte{0x00, 'h', 0x00, 'i'}
	res, err := c.Evaluate(buf, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.Equal(t, "hi", res.Value)
}

func TestCriterionSearchWithinRange(t *testing.T) {
	c := &Criterion{
		Kind:           CriterionSearch,
		Operator:       OpEqual,
		ExpectedString: "FOO",
		SearchRange:    10,
	}
	buf := []byte("....FOO....")
	res, err := c.Evaluate(buf, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.EqualValues(t, 7, res.NextOffset)
}

func TestCriterionSearchOutOfRangeFails(t *testing.T) {
	c := &Criterion{
		Kind:           CriterionSearch,
		Operator:       OpEqual,
		ExpectedString: "FOO",
		SearchRange:    2,
	}
	buf := []byte("....FOO....")
	res, err := c.Evaluate(buf, 0, false)
	require.NoError(t, err)
	require.False(t, res.Matched)
}

func TestCriterionRegexMatch(t *testing.T) {
	compiled := regexp.MustCompile(`^[0-9]+`)
	c := &Criterion{Kind: CriterionRegex, RegexCompiled: compiled}
	res, err := c.Evaluate([]byte("12345abc"), 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.Equal(t, "12345", res.Value)
}

func TestCriterionRegexMatchStartFlag(t *testing.T) {
	compiled := regexp.MustCompile(`abc`)
	c := &Criterion{Kind: CriterionRegex, RegexCompiled: compiled, RegexMatchStart: true}
	res, err := c.Evaluate([]byte("xxabcyy"), 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.EqualValues(t, 2, res.NextOffset) // start of the match, not the end
}

func TestCriterionDefaultAlwaysMatches(t *testing.T) {
	c := &Criterion{Kind: CriterionDefault}
	res, err := c.Evaluate([]byte{}, 0, false)
	require.NoError(t, err)
	require.True(t, res.Matched)
}
