package pl

import (
	"sort"
	"strconv"
	"strings"
)

// Tree is the forest of top-level patterns an evaluation run produced,
// plus the information needed to answer the tree-level queries of §4.5
// without re-walking the AST.
type Tree struct {
	Roots []Pattern
}

// VisitFunc is called once per pattern, pre-order, by Tree.Visit.
type VisitFunc func(Pattern) error

// Visit walks every pattern in the tree, root to leaf, left to right.
func (t *Tree) Visit(fn VisitFunc) error {
	for _, r := range t.Roots {
		if err := visitPattern(r, fn); err != nil {
			return err
		}
	}
	return nil
}

func visitPattern(p Pattern, fn VisitFunc) error {
	if err := fn(p); err != nil {
		return err
	}
	for _, c := range Children(p) {
		if err := visitPattern(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the innermost pattern whose range contains offset, or
// nil if offset falls outside every root's range. Ties (a composite and
// its first byte of its first member) resolve to the most specific
// (deepest) match.
func (t *Tree) Lookup(offset uint64) Pattern {
	var best Pattern
	for _, r := range t.Roots {
		if found := lookupIn(r, offset); found != nil {
			best = found
		}
	}
	return best
}

func lookupIn(p Pattern, offset uint64) Pattern {
	if !p.Range().Contains(offset) {
		return nil
	}
	for _, c := range Children(p) {
		if found := lookupIn(c, offset); found != nil {
			return found
		}
	}
	return p
}

// HighlightedRange is one contiguous byte span to be drawn in a
// pattern's Color, used by hex-editor style consumers.
type HighlightedRange struct {
	Range Range
	Color uint32
}

// HighlightedRanges flattens the tree into the list of colored spans a
// host would paint over a hex view, skipping Hidden patterns and
// patterns marked local (built without a ByteSource).
func (t *Tree) HighlightedRanges() []HighlightedRange {
	var out []HighlightedRange
	t.Visit(func(p Pattern) error {
		if p.Hidden() {
			return nil
		}
		if cp, ok := p.(interface{ isLocal() bool }); ok && cp.isLocal() {
			return nil
		}
		if p.Range().Len() == 0 {
			return nil
		}
		out = append(out, HighlightedRange{Range: p.Range(), Color: p.Color()})
		return nil
	})
	return out
}

func (c common) isLocal() bool { return c.local }

// Sort reorders a composite pattern's direct children by the given
// comparator and writes the result back in place (I5: this never
// recurses into grandchildren, matching §4.5's "sort is shallow").
func Sort(p Pattern, less func(a, b Pattern) bool) {
	children := Children(p)
	if children == nil {
		return
	}
	sorted := append([]Pattern(nil), children...)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	SetChildren(p, sorted)
}

// formattedValuePrinter renders a pattern's FormattedValue without
// requiring callers to implement the full PatternVisitor for a single
// leaf read; it is itself a PatternVisitor so every variant goes
// through Accept/double-dispatch rather than a type switch.
type formattedValuePrinter struct {
	result string
	err    error
	read   func(Pattern) (Value, error)
}

// FormattedValue reads the bytes a pattern covers (via read, typically
// the evaluator's own scalar reader) and renders them the way the
// pattern's type and any attached Formatter prescribe (§4.5).
func FormattedValue(p Pattern, read func(Pattern) (Value, error)) (string, error) {
	fvp := &formattedValuePrinter{read: read}
	if err := p.Accept(fvp); err != nil {
		return "", err
	}
	return fvp.result, fvp.err
}

// formatScalar reads p's value and renders it: a `transform` attribute
// rewrites the value first, then a `format` attribute (or, absent one,
// the value's own String method) turns it into display text.
func (f *formattedValuePrinter) formatScalar(p Pattern) {
	v, err := f.read(p)
	if err != nil {
		f.err = err
		return
	}
	c := commonPtr(p)
	if c != nil && c.transformFn != nil {
		v, err = c.transformFn(v)
		if err != nil {
			f.err = err
			return
		}
	}
	if c != nil && c.formatFn != nil {
		s, err := c.formatFn(v)
		if err != nil {
			f.err = err
			return
		}
		f.result = s
		return
	}
	f.result = v.String()
}

func (f *formattedValuePrinter) VisitUnsigned(p *UnsignedPattern) error {
	f.formatScalar(p)
	return f.err
}
func (f *formattedValuePrinter) VisitSigned(p *SignedPattern) error {
	f.formatScalar(p)
	return f.err
}
func (f *formattedValuePrinter) VisitFloatP(p *FloatPattern) error {
	f.formatScalar(p)
	return f.err
}
func (f *formattedValuePrinter) VisitBooleanP(p *BooleanPattern) error {
	f.formatScalar(p)
	return f.err
}
func (f *formattedValuePrinter) VisitCharacterP(p *CharacterPattern) error {
	f.formatScalar(p)
	return f.err
}
func (f *formattedValuePrinter) VisitWideCharacter(p *WideCharacterPattern) error {
	f.formatScalar(p)
	return f.err
}
func (f *formattedValuePrinter) VisitStringP(p *StringPattern) error {
	f.formatScalar(p)
	return f.err
}
func (f *formattedValuePrinter) VisitWideString(p *WideStringPattern) error {
	f.formatScalar(p)
	return f.err
}
func (f *formattedValuePrinter) VisitPadding(p *PaddingPattern) error {
	f.result = "padding"
	return nil
}
func (f *formattedValuePrinter) VisitStaticArray(p *StaticArrayPattern) error {
	f.result = arraySummary(p.EntryType.TypeName(), p.Count)
	return nil
}
func (f *formattedValuePrinter) VisitDynamicArray(p *DynamicArrayPattern) error {
	name := ""
	if len(p.Entries) > 0 {
		name = p.Entries[0].TypeName()
	}
	f.result = arraySummary(name, uint64(len(p.Entries)))
	return nil
}
func (f *formattedValuePrinter) VisitStructP(p *StructPattern) error {
	f.result = p.TypeName()
	return nil
}
func (f *formattedValuePrinter) VisitUnionP(p *UnionPattern) error {
	f.result = p.TypeName()
	return nil
}
func (f *formattedValuePrinter) VisitBitfieldP(p *BitfieldPattern) error {
	f.result = p.TypeName()
	return nil
}
func (f *formattedValuePrinter) VisitBitfieldField(p *BitfieldFieldPattern) error {
	f.formatScalar(p)
	return f.err
}
func (f *formattedValuePrinter) VisitEnumP(p *EnumPattern) error {
	c := commonPtr(p)
	var v Value = p.Value
	if c != nil && c.transformFn != nil {
		tv, err := c.transformFn(v)
		if err != nil {
			f.err = err
			return err
		}
		v = tv
	}
	if c != nil && c.formatFn != nil {
		s, err := c.formatFn(v)
		if err != nil {
			f.err = err
			return err
		}
		f.result = s
		return nil
	}
	if name := p.CurrentName(); name != "" {
		f.result = p.TypeName() + "::" + name
	} else {
		f.result = v.String()
	}
	return nil
}
func (f *formattedValuePrinter) VisitPointer(p *PointerPattern) error {
	var target string
	if p.Target != nil {
		target = p.Target.TypeName()
	}
	f.result = "*(" + target + ")"
	return nil
}

func arraySummary(entryType string, count uint64) string {
	var b strings.Builder
	b.WriteString(entryType)
	b.WriteString("[")
	if count > 0 {
		b.WriteString(strconv.FormatUint(count, 10))
	}
	b.WriteString("]")
	return b.String()
}
