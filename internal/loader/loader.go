// Package loader turns magic(5) files on disk into the rule-stream
// interface the core parser consumes, and builds a ready-to-use
// magic.Database from them. None of this is core rule-engine logic
// (spec §1/§6): it is the "rule-database sourcing" collaborator. The
// core never imports this package; loadSource reads a LineSource and
// hands the core one line at a time through magic.ParseLine.
package loader

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gomagic/internal/magic"
)

// LineSource is the exact shape of the "iterator of (line_number, text)
// pairs" spec §6 asks the core to consume.
type LineSource interface {
	Next() (lineNo int, text string, ok bool)
}

// scannerLineSource adapts a bufio.Scanner, the way the teacher's
// Parser.LoadOne reads lines, behind LineSource.
type scannerLineSource struct {
	scanner *bufio.Scanner
	lineNo  int
}

// NewLineSource wraps r in a line-oriented LineSource.
func NewLineSource(r io.Reader) LineSource {
	return &scannerLineSource{scanner: bufio.NewScanner(r)}
}

func (s *scannerLineSource) Next() (int, string, bool) {
	if !s.scanner.Scan() {
		return 0, "", false
	}
	s.lineNo++
	return s.lineNo, s.scanner.Text(), true
}

// Open opens a magic file at path, transparently gzip-decoding when the
// name ends in ".gz" (spec §6's expansion of the out-of-core loader
// collaborator). The returned ReadCloser closes both the gzip reader and
// the underlying file.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("loader: %s: %w", path, err)
	}
	return &gzipReadCloser{gz: gz, file: f}, nil
}

type gzipReadCloser struct {
	gz   *gzip.Reader
	file *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	fileErr := g.file.Close()
	if gzErr != nil {
		return gzErr
	}
	return fileErr
}

// LoadFile parses one magic file (plain or gzip-compressed) into b,
// logging and skipping any line the core parser rejects (spec §4.6/§7:
// load-time rule errors are reported, not fatal).
func LoadFile(b *magic.Builder, path string, logger *slog.Logger) error {
	rc, err := Open(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	return loadSource(b, NewLineSource(rc), path, logger)
}

// LoadReader parses one already-open magic(5) stream into b, under the
// given name for diagnostics (spec §6: the core only ever sees a
// LineSource; this is the plain, non-file-backed variant used by callers
// that already hold the rule text, e.g. tests or embedded databases).
func LoadReader(b *magic.Builder, r io.Reader, name string, logger *slog.Logger) error {
	return loadSource(b, NewLineSource(r), name, logger)
}

// loadSource feeds every line of src through the core parser, building
// the parent/child arena links spec §4.7 describes: parentAtLevel[n]
// holds the most recent pattern index seen at level n, reset whenever a
// new top-level (level 0) pattern starts.
func loadSource(b *magic.Builder, src LineSource, path string, logger *slog.Logger) error {
	sourceIdx := b.AddSource(path)
	lastPatternIdx := -1
	parentAtLevel := map[int]int{-1: -1}

	for {
		lineNo, text, ok := src.Next()
		if !ok {
			break
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "!:") {
			if lastPatternIdx >= 0 {
				magic.ParseExtension(b.PatternAt(lastPatternIdx), trimmed)
			}
			continue
		}

		pattern, err := magic.ParseLine(path, lineNo, text)
		if err != nil {
			if logger != nil {
				logger.Warn("magic rule rejected", "file", path, "line", lineNo, "error", err)
			}
			continue
		}
		pattern.SourceFile = sourceIdx
		pattern.SourceLine = lineNo

		if pattern.IsInstruction && pattern.Instruction.Kind == magic.InstructionIndirect && pattern.Instruction.IndirectRelative {
			if logger != nil {
				logger.Warn("indirect/r is parsed but not evaluated; offset will be read absolute", "file", path, "line", lineNo)
			}
		}

		if pattern.Level == 0 {
			parentAtLevel = map[int]int{-1: -1}
			pattern.Parent = -1
		} else {
			parent, hasParent := parentAtLevel[pattern.Level-1]
			if !hasParent || parent < 0 {
				if logger != nil {
					logger.Warn("magic rule has no parent at previous level", "file", path, "line", lineNo)
				}
				continue
			}
			pattern.Parent = parent
		}

		idx, err := b.AddPattern(*pattern)
		if err != nil {
			if logger != nil {
				logger.Warn("magic rule rejected", "file", path, "line", lineNo, "error", err)
			}
			continue
		}
		if pattern.Parent >= 0 {
			b.LinkChild(pattern.Parent, idx)
		}
		parentAtLevel[pattern.Level] = idx
		lastPatternIdx = idx
	}
	return nil
}

// LoadDefault walks the standard magic-file search locations (spec §6's
// expansion, porting the teacher's LoadDefaultMagicFiles) and returns a
// built Database. A nil logger defaults to slog.Default().
func LoadDefault(logger *slog.Logger) (*magic.Database, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := magic.NewBuilder(logger)

	paths := []string{
		"/etc/magic",
		"/usr/share/misc/magic",
		"/usr/share/file/magic",
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".magic"))
	}
	if env := os.Getenv("MAGIC"); env != "" {
		paths = append(strings.Split(env, ":"), paths...)
	}

	foundAny := false
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.IsDir() {
			magicFile := filepath.Join(path, "magic")
			if _, err := os.Stat(magicFile); err == nil {
				if err := LoadFile(b, magicFile, logger); err == nil {
					foundAny = true
				}
			}
			continue
		}
		if err := LoadFile(b, path, logger); err == nil {
			foundAny = true
		}
	}

	if !foundAny {
		return nil, fmt.Errorf("loader: no magic files found in standard locations")
	}
	return b.Build()
}
