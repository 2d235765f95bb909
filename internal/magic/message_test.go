package magic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMessagePlainText(t *testing.T) {
	m := NewMessage("PNG image data")
	require.Equal(t, "PNG image data", m.Format(nil))
	require.False(t, m.ClearPrevious)
	require.False(t, m.NoSpacePrefix)
}

func TestNewMessageClearPreviousPrefix(t *testing.T) {
	m := NewMessage("\rreset")
	require.True(t, m.ClearPrevious)
	require.Equal(t, "reset", m.Format(nil))
}

func TestNewMessageNoSpacePrefix(t *testing.T) {
	m := NewMessage("\bsuffix")
	require.True(t, m.NoSpacePrefix)
	require.Equal(t, "suffix", m.Format(nil))
}

func TestMessageFormatIntVerb(t *testing.T) {
	m := NewMessage("version %d")
	require.Equal(t, "version 42", m.Format(int64(42)))
}

func TestMessageFormatHexVerb(t *testing.T) {
	m := NewMessage("0x%x")
	require.Equal(t, "0x2a", m.Format(int64(42)))
}

func TestMessageFormatStringVerb(t *testing.T) {
	m := NewMessage("name: %s")
	require.Equal(t, "name: hello", m.Format("hello"))
}

func TestMessageFormatFloatVerb(t *testing.T) {
	m := NewMessage("value %.2f")
	require.Equal(t, "value 1.50", m.Format(1.5))
}

func TestMessageFormatFloatSpecialValues(t *testing.T) {
	nan := NewMessage("%f")
	require.Equal(t, "nan", nan.Format(mustNaN()))

	inf := NewMessage("%f")
	require.Equal(t, "inf", inf.Format(mustInf()))
}

func TestMessageFormatLiteralPercent(t *testing.T) {
	m := NewMessage("100%% done")
	require.Equal(t, "100% done", m.Format(nil))
}

func TestMessageFormatUnrecognizedVerbKeptLiteral(t *testing.T) {
	m := NewMessage("weird %z verb")
	require.Equal(t, "weird %z verb", m.Format(nil))
}

func TestMessageFormatWidthAndFlags(t *testing.T) {
	m := NewMessage("[%5d]")
	require.Equal(t, "[   42]", m.Format(int64(42)))
}

func TestFormatTimestampUTC(t *testing.T) {
	// 2009-02-13 23:31:30 UTC, the canonical Unix "1234567890" instant.
	s := FormatTimestamp(1234567890, false)
	require.Contains(t, s, "2009")
	require.Contains(t, s, "Feb")
}

func mustNaN() float64 {
	var z float64
	return z / z
}

func mustInf() float64 {
	var z float64
	one := 1.0
	return one / z
}
