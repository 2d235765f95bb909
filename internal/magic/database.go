package magic

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Database is the compiled, immutable form of one or more magic(5) files:
// a flat arena of Patterns plus the indices needed to drive a match
// without ever walking pointer-linked structures (spec §9 REDESIGN
// FLAGS). TopLevel holds, in file order, the index of each entry's root
// pattern. FirstByteIndex is a performance hint only (spec §4.9/§9): it
// buckets top-level entries by the first literal byte their root
// criterion can match, exactly mirroring the teacher's first-byte
// dispatch table in internal/detector, but the matcher must still be
// correct when the hint is unavailable (e.g. an indirect root, or a
// first criterion shorter than one byte).
type Database struct {
	Patterns       []Pattern
	TopLevel       []int
	FirstByteIndex [256][]int
	Named          map[string]int

	Sources []string // SourceFile indices resolve into this

	// firstByte maps a top-level pattern's arena index to its hinted
	// first byte, when indexFirstByte could determine one. FirstByteHint
	// exposes it, and UnhintedTopLevel lists the entries that have none.
	firstByte map[int]byte
}

// Builder accumulates Patterns while parsing one or more magic(5) files
// and produces a Database once closed, enforcing the invariants of spec
// §3: every `name` label unique, every `use` resolvable by the time the
// Database is built.
type Builder struct {
	db          *Database
	pendingUses []pendingUse
	fingerprint map[uint64][]int // content hash -> top-level pattern indices, for duplicate warnings
	logger      *slog.Logger
}

type pendingUse struct {
	patternIdx int
	label      string
	file       string
	line       int
}

// NewBuilder creates an empty Builder. A nil logger defaults to
// slog.Default(), matching the teacher's injectable-but-optional logger
// convention.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		db: &Database{
			Named:     make(map[string]int),
			firstByte: make(map[int]byte),
		},
		fingerprint: make(map[uint64][]int),
		logger:      logger,
	}
}

// AddSource registers a new source file name and returns its index, for
// Pattern.SourceFile bookkeeping.
func (b *Builder) AddSource(name string) int {
	b.db.Sources = append(b.db.Sources, name)
	return len(b.db.Sources) - 1
}

// PatternAt returns a mutable pointer into the arena, for a loader to
// apply a trailing "!:" extension line to the pattern it just added.
func (b *Builder) PatternAt(idx int) *Pattern {
	return &b.db.Patterns[idx]
}

// LinkChild records childIdx as one of parentIdx's children, in the
// order added (spec §4.7's builder bookkeeping).
func (b *Builder) LinkChild(parentIdx, childIdx int) {
	b.db.Patterns[parentIdx].Children = append(b.db.Patterns[parentIdx].Children, childIdx)
}

// AddPattern appends p to the arena and returns its index. Callers are
// responsible for linking Parent/Children as they parse; AddPattern only
// handles name registration, use-resolution bookkeeping, and top-level
// indexing. A `name` whose label is already registered is not added:
// AddPattern returns -1 and a NameCollisionError.
func (b *Builder) AddPattern(p Pattern) (int, error) {
	if p.IsInstruction && p.Instruction.Kind == InstructionName {
		label := p.Instruction.NameLabel
		if existing, ok := b.db.Named[label]; ok {
			prev := b.db.Patterns[existing]
			return -1, &NameCollisionError{
				Label:      label,
				FirstFile:  b.sourceName(prev.SourceFile),
				FirstLine:  prev.SourceLine,
				SecondFile: b.sourceName(p.SourceFile),
				SecondLine: p.SourceLine,
			}
		}
	}

	idx := len(b.db.Patterns)
	b.db.Patterns = append(b.db.Patterns, p)

	if p.IsTopLevel() {
		b.db.TopLevel = append(b.db.TopLevel, idx)
		b.indexFirstByte(idx)
		b.recordFingerprint(idx)
	}

	if p.IsInstruction && p.Instruction.Kind == InstructionName {
		b.db.Named[p.Instruction.NameLabel] = idx
	}

	if p.IsInstruction && p.Instruction.Kind == InstructionUse {
		b.pendingUses = append(b.pendingUses, pendingUse{
			patternIdx: idx,
			label:      p.Instruction.UseLabel,
			file:       b.sourceName(p.SourceFile),
			line:       p.SourceLine,
		})
	}

	return idx, nil
}

func (b *Builder) sourceName(idx int) string {
	if idx < 0 || idx >= len(b.db.Sources) {
		return "<unknown>"
	}
	return b.db.Sources[idx]
}

// indexFirstByte populates FirstByteIndex for a top-level pattern whose
// root criterion pins down a literal first byte (spec §9's "first-byte
// index is a hint, not ground truth": entries whose first byte can't be
// determined statically are simply omitted, and the matcher falls back to
// scanning all TopLevel entries when a buffer's leading byte has no
// bucket, or always includes a catch-all pass — see Database.Candidates).
func (b *Builder) indexFirstByte(idx int) {
	p := &b.db.Patterns[idx]
	if p.IsInstruction || p.Offset.Indirect != nil || p.Offset.Base != 0 {
		return
	}
	c := &p.Criterion
	var firstByte byte
	var ok bool
	switch c.Kind {
	case CriterionByteNum, CriterionShortNum, CriterionIntNum, CriterionLongNum:
		if c.Operator == OpEqual || c.Operator == OpNone {
			firstByte, ok = firstByteOfInt(c, c.Endianness)
		}
	case CriterionString, CriterionPascalString:
		if len(c.ExpectedString) > 0 && (c.Operator == OpEqual || c.Operator == OpNone) {
			firstByte, ok = c.ExpectedString[0], true
		}
	}
	if ok {
		b.db.FirstByteIndex[firstByte] = append(b.db.FirstByteIndex[firstByte], idx)
		b.db.firstByte[idx] = firstByte
	}
}

func firstByteOfInt(c *Criterion, e Endianness) (byte, bool) {
	width := c.Kind.width()
	if width == 0 {
		return 0, false
	}
	enc := EncodeUint(uint64(c.ExpectedInt), width, e.ResolveNative())
	if len(enc) == 0 {
		return 0, false
	}
	return enc[0], true
}

func (k CriterionKind) width() int {
	switch k {
	case CriterionByteNum:
		return 1
	case CriterionShortNum:
		return 2
	case CriterionIntNum:
		return 4
	case CriterionLongNum:
		return 8
	default:
		return 0
	}
}

// recordFingerprint hashes a top-level pattern's offset base, criterion
// kind, operator, expected value and endianness with xxhash, and warns
// when an earlier top-level pattern hashed the same. The message, the
// offset's relative/indirect form, signedness and type modifiers are not
// hashed, so rules that differ only in those are reported too (spec §4.7,
// grounded on arloliu/mebo's content-hash deduplication). Duplicates are
// legal in magic(5) databases (distinct files may define the same rule);
// this is purely a load-time diagnostic.
func (b *Builder) recordFingerprint(idx int) {
	h := fingerprintPattern(&b.db.Patterns[idx])
	if prior := b.fingerprint[h]; len(prior) > 0 {
		b.logger.Warn("duplicate magic rule fingerprint",
			"file", b.sourceName(b.db.Patterns[idx].SourceFile),
			"line", b.db.Patterns[idx].SourceLine,
			"first_seen_at_index", prior[0])
	}
	b.fingerprint[h] = append(b.fingerprint[h], idx)
}

func fingerprintPattern(p *Pattern) uint64 {
	d := xxhash.New()
	fmt.Fprintf(d, "%d|%d|%d|%s|%v|%v|%d",
		p.Offset.Base, p.Criterion.Kind, p.Criterion.Operator,
		p.Criterion.ExpectedString, p.Criterion.ExpectedInt, p.Criterion.ExpectedFloat,
		p.Criterion.Endianness)
	return d.Sum64()
}

// Build finalizes the Database: every pending `use` must resolve to a
// registered name (spec §4.4), or the first failure is returned.
func (b *Builder) Build() (*Database, error) {
	for _, pu := range b.pendingUses {
		if _, ok := b.db.Named[pu.label]; !ok {
			return nil, &UnknownNameError{File: pu.file, Line: pu.line, Label: pu.label}
		}
	}
	b.db.sortFirstByteBuckets()
	return b.db, nil
}

// sortFirstByteBuckets stable-sorts each FirstByteIndex bucket by
// descending !:strength (SPEC_FULL.md §3/§4.7: strength only ever breaks
// ties among entries that already share a first-byte hint — it never
// changes classify's FULL/PARTIAL outcome, since Classify still returns
// the first FULL match it finds and a bucket holds no more than one
// winner per buffer in practice). Entries with equal strength keep their
// original declaration order.
func (db *Database) sortFirstByteBuckets() {
	for b := range db.FirstByteIndex {
		bucket := db.FirstByteIndex[b]
		if len(bucket) < 2 {
			continue
		}
		sort.SliceStable(bucket, func(i, j int) bool {
			return db.Patterns[bucket[i]].Strength > db.Patterns[bucket[j]].Strength
		})
	}
}

// FormatForList returns every top-level pattern's raw message text,
// ordered by descending !:strength (ties keep declaration order) — the
// same ordering file(1)'s own magic listing uses, and the home for the
// strength annotation SPEC_FULL.md's expanded extension-line handling
// introduces. ListMagic (package gomagic) is the plain declaration-order
// variant; this is the strength-aware one.
func (db *Database) FormatForList() []string {
	order := make([]int, len(db.TopLevel))
	copy(order, db.TopLevel)
	sort.SliceStable(order, func(i, j int) bool {
		return db.Patterns[order[i]].Strength > db.Patterns[order[j]].Strength
	})
	out := make([]string, 0, len(order))
	for _, idx := range order {
		p := db.Patterns[idx]
		if p.Message != nil {
			out = append(out, p.Message.Source)
		}
	}
	return out
}

// FirstByteHint returns the statically-determined first byte of the
// top-level pattern at idx, if indexFirstByte could compute one.
func (db *Database) FirstByteHint(idx int) (byte, bool) {
	b, ok := db.firstByte[idx]
	return b, ok
}

// Candidates returns the TopLevel indices worth trying against a buffer
// whose leading byte is firstByte, bucket first (spec §4.9 steps 2-3):
// FirstByteIndex[firstByte] — already sorted by descending strength —
// comes first, since reaching it quickly is the whole reason the index
// exists, followed by every other TopLevel entry in declaration order.
// The result is always a permutation of TopLevel: no entry is dropped,
// so the index changes the order in which entries are tried, never
// which entries are tried (spec §8's "the index is a hint only").
func (db *Database) Candidates(firstByte byte) []int {
	bucket := db.FirstByteIndex[firstByte]
	out := make([]int, 0, len(db.TopLevel))
	out = append(out, bucket...)
	if len(bucket) == len(db.TopLevel) {
		return out
	}
	tried := make(map[int]bool, len(bucket))
	for _, idx := range bucket {
		tried[idx] = true
	}
	for _, idx := range db.TopLevel {
		if tried[idx] {
			continue
		}
		out = append(out, idx)
	}
	return out
}

// UnhintedTopLevel returns the TopLevel entries indexFirstByte could not
// pin a first byte for. An Indirect restart (spec §4.9) may land its
// cursor outside the buffer, leaving no byte to bucket against; hinted
// entries can still be ruled out in that case; this is what's left.
func (db *Database) UnhintedTopLevel() []int {
	out := make([]int, 0, len(db.TopLevel))
	for _, idx := range db.TopLevel {
		if _, ok := db.firstByte[idx]; !ok {
			out = append(out, idx)
		}
	}
	return out
}
