// Package gomagic identifies the type of an opaque byte buffer by
// matching it against a database of magic(5) rules: the Go-native rule
// engine behind the Unix file(1) command.
package gomagic

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/shirou/gomagic/internal/detector"
	"github.com/shirou/gomagic/internal/loader"
	"github.com/shirou/gomagic/internal/magic"
)

// sniffLength caps how many bytes Identify reads from a Reader before
// classifying, matching spec §6's "callers that only want to sniff
// should pass a capped prefix" guidance.
const sniffLength = 8192

// File is a loaded rule database ready to classify buffers.
type File struct {
	database *magic.Database
}

// Options configures database loading. Unlike the teacher's Options
// (which also carried CLI-facing output-mode flags), this carries only
// what the core engine and loader need — the rest is a Non-goal
// (spec §1: "CLI wrappers" out of scope).
type Options struct {
	MagicFiles []string     // custom magic(5) files; empty = standard locations
	Logger     *slog.Logger // nil = slog.Default()
}

// New creates a File from the standard magic-file search locations.
func New() (*File, error) {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a File from the given Options.
func NewWithOptions(opts Options) (*File, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var db *magic.Database
	var err error
	if len(opts.MagicFiles) > 0 {
		b := magic.NewBuilder(logger)
		loadedAny := false
		for _, path := range opts.MagicFiles {
			if loadErr := loader.LoadFile(b, path, logger); loadErr != nil {
				logger.Warn("failed to load magic file", "file", path, "error", loadErr)
				continue
			}
			loadedAny = true
		}
		if !loadedAny {
			return nil, fmt.Errorf("gomagic: no magic files could be loaded from %v", opts.MagicFiles)
		}
		db, err = b.Build()
	} else {
		db, err = loader.LoadDefault(logger)
	}
	if err != nil {
		return nil, fmt.Errorf("gomagic: %w", err)
	}

	return &File{database: db}, nil
}

// IdentifyFile identifies the type of a file by path, handling special
// file types (directories, symlinks, devices) the way file(1) does
// before ever consulting the rule database.
func (f *File) IdentifyFile(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", fmt.Errorf("cannot stat %s: %w", path, err)
	}

	switch {
	case info.IsDir():
		return "directory", nil
	case info.Mode()&os.ModeSymlink != 0:
		target, _ := os.Readlink(path)
		if target != "" {
			return fmt.Sprintf("symbolic link to %s", target), nil
		}
		return "symbolic link", nil
	case info.Mode()&os.ModeDevice != 0:
		if info.Mode()&os.ModeCharDevice != 0 {
			return "character special", nil
		}
		return "block special", nil
	case info.Mode()&os.ModeNamedPipe != 0:
		return "fifo (named pipe)", nil
	case info.Mode()&os.ModeSocket != 0:
		return "socket", nil
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer file.Close()
	return f.Identify(file)
}

// Identify reads up to sniffLength bytes from r and classifies them.
func (f *File) Identify(r io.Reader) (string, error) {
	return f.IdentifyContext(context.Background(), r)
}

// IdentifyContext is Identify with an opt-in per-match deadline
// (spec §5: "implementations should expose an opt-in per-match
// deadline"), checked by the matcher between top-level pattern attempts.
func (f *File) IdentifyContext(ctx context.Context, r io.Reader) (string, error) {
	buf := make([]byte, sniffLength)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("gomagic: failed to read data: %w", err)
	}
	return f.IdentifyBytesContext(ctx, buf[:n]), nil
}

// IdentifyBytes classifies buf directly — the primary entry point for
// callers that already hold the full buffer in memory (spec §6's
// "classification input: the full byte buffer").
func (f *File) IdentifyBytes(buf []byte) string {
	return f.IdentifyBytesContext(context.Background(), buf)
}

// IdentifyBytesContext is IdentifyBytes with an opt-in deadline.
func (f *File) IdentifyBytesContext(ctx context.Context, buf []byte) string {
	if len(buf) == 0 {
		return "empty"
	}
	result := detector.Classify(ctx, f.database, buf)
	if result.FormattedMessage == "" {
		return "data"
	}
	return result.FormattedMessage
}

// IdentifyMime classifies buf and returns its MIME type, or "" if no
// matching pattern carried one.
func (f *File) IdentifyMime(buf []byte) string {
	return detector.Classify(context.Background(), f.database, buf).Mime
}

// GetDatabase exposes the loaded rule database, mainly for tests and
// introspection tooling.
func (f *File) GetDatabase() *magic.Database {
	return f.database
}

// ListMagic returns every top-level pattern's raw message text, in
// declaration order.
func (f *File) ListMagic() []string {
	out := make([]string, 0, len(f.database.TopLevel))
	for _, idx := range f.database.TopLevel {
		p := f.database.Patterns[idx]
		if p.Message != nil {
			out = append(out, p.Message.Source)
		}
	}
	return out
}
