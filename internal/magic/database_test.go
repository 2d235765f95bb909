package magic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pngPattern() Pattern {
	return Pattern{
		Level: 0,
		Criterion: Criterion{
			Kind:           CriterionString,
			Operator:       OpEqual,
			ExpectedString: "PNG",
		},
		Message: NewMessage("PNG image data"),
	}
}

func TestBuilderAddPatternIndexesFirstByte(t *testing.T) {
	b := NewBuilder(nil)
	idx, err := b.AddPattern(pngPattern())
	require.NoError(t, err)

	db, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, []int{idx}, db.TopLevel)

	hint, ok := db.FirstByteHint(idx)
	require.True(t, ok)
	require.Equal(t, byte('P'), hint)
	require.Contains(t, db.FirstByteIndex['P'], idx)
}

func TestBuilderIndirectRootHasNoFirstByteHint(t *testing.T) {
	b := NewBuilder(nil)
	p := Pattern{
		Level:  0,
		Offset: Offset{Indirect: &IndirectOffset{ReadType: DefaultOffsetReadType()}},
		Criterion: Criterion{
			Kind:        CriterionByteNum,
			Operator:    OpEqual,
			ExpectedInt: 1,
		},
	}
	idx, err := b.AddPattern(p)
	require.NoError(t, err)
	_, ok := b.db.FirstByteHint(idx)
	require.False(t, ok)
}

func TestBuilderNameCollision(t *testing.T) {
	b := NewBuilder(nil)
	_, err := b.AddPattern(Pattern{IsInstruction: true, Instruction: Instruction{Kind: InstructionName, NameLabel: "foo"}})
	require.NoError(t, err)

	_, err = b.AddPattern(Pattern{IsInstruction: true, Instruction: Instruction{Kind: InstructionName, NameLabel: "foo"}})
	require.Error(t, err)
	var collErr *NameCollisionError
	require.ErrorAs(t, err, &collErr)
}

func TestBuilderBuildFailsOnUnresolvedUse(t *testing.T) {
	b := NewBuilder(nil)
	_, err := b.AddPattern(Pattern{IsInstruction: true, Instruction: Instruction{Kind: InstructionUse, UseLabel: "missing"}})
	require.NoError(t, err)

	_, err = b.Build()
	require.Error(t, err)
	var unknownErr *UnknownNameError
	require.ErrorAs(t, err, &unknownErr)
}

func TestBuilderBuildResolvesUse(t *testing.T) {
	b := NewBuilder(nil)
	_, err := b.AddPattern(Pattern{IsInstruction: true, Instruction: Instruction{Kind: InstructionName, NameLabel: "target"}})
	require.NoError(t, err)
	_, err = b.AddPattern(Pattern{IsInstruction: true, Instruction: Instruction{Kind: InstructionUse, UseLabel: "target"}})
	require.NoError(t, err)

	db, err := b.Build()
	require.NoError(t, err)
	require.NotNil(t, db)
}

func TestBuilderLinkChildAndPatternAt(t *testing.T) {
	b := NewBuilder(nil)
	parentIdx, err := b.AddPattern(pngPattern())
	require.NoError(t, err)
	childIdx, err := b.AddPattern(Pattern{Level: 1, Criterion: Criterion{Kind: CriterionByteNum, Operator: OpAnyValue}})
	require.NoError(t, err)

	b.LinkChild(parentIdx, childIdx)
	require.Equal(t, []int{childIdx}, b.PatternAt(parentIdx).Children)
}

func TestAddSourceReturnsSequentialIndices(t *testing.T) {
	b := NewBuilder(nil)
	i0 := b.AddSource("a.magic")
	i1 := b.AddSource("b.magic")
	require.Equal(t, 0, i0)
	require.Equal(t, 1, i1)
}

func TestFormatForListOrdersByDescendingStrength(t *testing.T) {
	b := NewBuilder(nil)
	weak := pngPattern()
	weak.Message = NewMessage("weak match")
	weak.Strength = 10
	_, err := b.AddPattern(weak)
	require.NoError(t, err)

	strong := pngPattern()
	strong.Message = NewMessage("strong match")
	strong.Strength = 90
	_, err = b.AddPattern(strong)
	require.NoError(t, err)

	db, err := b.Build()
	require.NoError(t, err)

	require.Equal(t, []string{"strong match", "weak match"}, db.FormatForList())
}

func TestFirstByteBucketSortedByStrength(t *testing.T) {
	b := NewBuilder(nil)
	weak := pngPattern()
	weak.Strength = 10
	weakIdx, err := b.AddPattern(weak)
	require.NoError(t, err)

	strong := pngPattern()
	strong.Strength = 90
	strongIdx, err := b.AddPattern(strong)
	require.NoError(t, err)

	db, err := b.Build()
	require.NoError(t, err)

	require.Equal(t, []int{strongIdx, weakIdx}, db.FirstByteIndex['P'])
}
