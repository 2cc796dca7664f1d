package pl

import "sort"

// Range is a half-open byte interval [Start, End) inside a ByteSource or
// a synthetic section. Patterns, not tokens, carry Ranges: tokens and AST
// nodes only need a source line number (see Token.Line, and §3.1 of the
// language contract).
type Range struct {
	Start uint64
	End   uint64
}

// NewRange builds a Range from an offset and a size.
func NewRange(offset, size uint64) Range {
	return Range{Start: offset, End: offset + size}
}

// Len returns the number of bytes spanned by the range.
func (r Range) Len() uint64 { return r.End - r.Start }

// Contains reports whether offset falls within [Start, End).
func (r Range) Contains(offset uint64) bool {
	return offset >= r.Start && offset < r.End
}

// Overlaps reports whether the two ranges share at least one byte.
func (r Range) Overlaps(other Range) bool {
	return r.Start < other.End && other.Start < r.End
}

// LineMap records, for each line of preprocessed text, which original
// (file, line) it was expanded from. The preprocessor builds one
// incrementally as it expands #include directives and strips comments,
// so that lexer/parser errors can be reported against the text the user
// actually wrote rather than the macro-expanded text the lexer sees.
//
// This mirrors the teacher's LineIndex (a sorted table consulted by
// binary search), adapted from "byte offset -> line/column" to
// "expanded line number -> original source locus".
type LineMap struct {
	entries []lineMapEntry
}

type lineMapEntry struct {
	expandedLine int
	file         string
	originalLine int
}

// NewLineMap creates an empty map where every line maps to itself in the
// root file; callers add entries as they splice in included text.
func NewLineMap() *LineMap {
	return &LineMap{}
}

// Record associates an expanded line number with its origin. Entries must
// be added in non-decreasing expandedLine order, matching how the
// preprocessor emits output line by line.
func (m *LineMap) Record(expandedLine int, file string, originalLine int) {
	m.entries = append(m.entries, lineMapEntry{expandedLine, file, originalLine})
}

// Resolve returns the original (file, line) for a given expanded line
// number, or ("", expandedLine) if nothing more specific was recorded.
func (m *LineMap) Resolve(expandedLine int) (file string, line int) {
	if len(m.entries) == 0 {
		return "", expandedLine
	}
	idx := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].expandedLine > expandedLine
	}) - 1
	if idx < 0 {
		return "", expandedLine
	}
	e := m.entries[idx]
	delta := expandedLine - e.expandedLine
	return e.file, e.originalLine + delta
}
