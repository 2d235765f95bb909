package gomagic

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeMagicFile writes a magic(5) source to a temp file and returns a
// File built from it, the way a caller with an on-disk rule database
// would use NewWithOptions (spec §6/§8's end-to-end scenarios).
func writeMagicFile(t *testing.T, body string) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.magic")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	f, err := NewWithOptions(Options{MagicFiles: []string{path}})
	require.NoError(t, err)
	return f
}

// Scenario 1 (spec §8): little-endian integer.
func TestScenarioLittleEndianInteger(t *testing.T) {
	f := writeMagicFile(t, "0\tlelong\t0x03cbc6c5\tmatch\n")
	buf := []byte{0xc5, 0xc6, 0xcb, 0x03}
	require.Equal(t, "match", f.IdentifyBytes(buf))
}

// Scenario 2 (spec §8): big-endian unsigned/signed greater-than.
func TestScenarioBigEndianGreaterThan(t *testing.T) {
	unsigned := writeMagicFile(t, "0\tubelong\t>0xF0000000\tmatch\n")
	require.Equal(t, "match", unsigned.IdentifyBytes([]byte{0xFF, 0xFF, 0xFF, 0xFF}))

	signed := writeMagicFile(t, "0\tbelong\t>0xF0000000\tmatch\n")
	// Two's complement: 0x7FFFFFFF > 0xF0000000 (interpreted signed, the
	// right side sign-extends from a negative 32-bit pattern).
	require.Equal(t, "match", signed.IdentifyBytes([]byte{0x7F, 0xFF, 0xFF, 0xFF}))

	unsignedMiss := writeMagicFile(t, "0\tubelong\t>0xF0000000\tmatch\n")
	require.Equal(t, "data", unsignedMiss.IdentifyBytes([]byte{0x7F, 0xFF, 0xFF, 0xFF}))
}

// Scenario 3 (spec §8): search with optional-whitespace string flag.
func TestScenarioSearchOptionalWhitespace(t *testing.T) {
	f := writeMagicFile(t, "0\tsearch/10/w\th\\ e\\ llo\t%s\n")
	require.Equal(t, "h e llo", f.IdentifyBytes([]byte("12hello 24")))
}

// Scenario 4 (spec §8): Pascal string length.
func TestScenarioPascalString(t *testing.T) {
	f := writeMagicFile(t, "0\tpstring\t=hello\tgreeting\n")
	buf := []byte{0x05, 'h', 'e', 'l', 'l', 'o', 0xFF}
	require.Equal(t, "greeting", f.IdentifyBytes(buf))
}

// Scenario 5 (spec §8): regex with escapes, case-insensitive.
func TestScenarioRegexWithEscapes(t *testing.T) {
	f := writeMagicFile(t, "0\tregex/c\thrm\\twow\t%s\n")
	buf := []byte("some line with HRM\twow in it")
	require.Equal(t, "HRM\twow", f.IdentifyBytes(buf))
}

// Scenario 6 (spec §8): named subroutine + use + endianness inversion. The
// subroutine and its child use relative ("&0") offsets so the position
// threads through the `use` call rather than re-reading from the start of
// the buffer; the child is declared "beshort" so that without inversion a
// direct read of the subroutine fails (as it does when idx0 is tried on its
// own at top level) and only `use ^swapped`'s endianness flip makes it read
// little-endian and match.
func TestScenarioNamedUseEndianInversion(t *testing.T) {
	body := "&0\tname\tswapped\n" +
		">&0\tbeshort\t0x0102\tok\n" +
		"0\tbelong\t0xDEADBEEF\tcontainer\n" +
		">&0\tuse\t^swapped\n"
	f := writeMagicFile(t, body)
	buf := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x02, 0x01}
	require.Equal(t, "container ok", f.IdentifyBytes(buf))
}

func TestIdentifyBytesEmptyBuffer(t *testing.T) {
	f := writeMagicFile(t, "0\tstring\tAB\tmatch\n")
	require.Equal(t, "empty", f.IdentifyBytes(nil))
}

func TestIdentifyBytesNoMatchFallsBackToData(t *testing.T) {
	f := writeMagicFile(t, "0\tstring\tAB\tmatch\n")
	require.Equal(t, "data", f.IdentifyBytes([]byte("zz")))
}

func TestIdentifyMimeReturnsAnnotatedType(t *testing.T) {
	f := writeMagicFile(t, "0\tstring\tAB\tcontainer\n!:mime\tapplication/x-test\n")
	require.Equal(t, "application/x-test", f.IdentifyMime([]byte("AB")))
}

func TestListMagicReturnsRawMessages(t *testing.T) {
	f := writeMagicFile(t, "0\tstring\tAB\tfirst\n0\tstring\tCD\tsecond\n")
	require.ElementsMatch(t, []string{"first", "second"}, f.ListMagic())
}

func TestIdentifyFileDirectory(t *testing.T) {
	f := writeMagicFile(t, "0\tstring\tAB\tmatch\n")
	result, err := f.IdentifyFile(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "directory", result)
}
