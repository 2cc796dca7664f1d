package pl

import "fmt"

// Pattern is a single node of the pattern tree the evaluator builds
// while walking a template over a ByteSource: one node per placed
// variable, struct, array element, and so on (§3.4, §4.5). Like Node
// and Value it is a closed interface-plus-struct sum type rather than a
// class hierarchy, grounded in the original C++ `Pattern` base class
// (`original_source/include/pl/core/ast/...` / `pattern.hpp`) but
// expressed without inheritance.
//
// Invariants (I1-I5): a pattern's Range never extends past its
// ByteSource's ActualSize (I1); a composite's children all fall inside
// its own Range (I2); TypeName is never empty (I3); Clone produces a
// node with no shared mutable slices/maps with the original (I4); Sort
// reorders only a composite's direct children, never recursively (I5).
type Pattern interface {
	Range() Range
	TypeName() string
	DisplayName() string
	Comment() string
	Color() uint32
	Hidden() bool
	Endian() Endian
	Accept(PatternVisitor) error
	Clone() Pattern
}

// common holds the fields every pattern variant carries.
type common struct {
	rng         Range
	typeName    string
	displayName string
	comment     string
	color       uint32
	hidden      bool
	sealed      bool
	inlined     bool
	endian      Endian
	local       bool // built by an evaluator with no ByteSource; not backed by a source range

	exported        bool // `export` attribute: visible to a host outside this run's local scope
	noUniqueAddress bool // `no_unique_address` attribute: may overlap its sibling's range

	formatFn    formatter             // `format(fn_name)`: renders the display string
	transformFn func(Value) (Value, error) // `transform(fn_name)`: rewrites the value before it is displayed
}

func (c common) Exported() bool        { return c.exported }
func (c common) NoUniqueAddress() bool { return c.noUniqueAddress }

func (c common) Range() Range         { return c.rng }
func (c common) TypeName() string     { return c.typeName }
func (c common) Comment() string      { return c.comment }
func (c common) Color() uint32        { return c.color }
func (c common) Hidden() bool         { return c.hidden }
func (c common) Endian() Endian       { return c.endian }
func (c common) DisplayName() string {
	if c.displayName != "" {
		return c.displayName
	}
	return c.typeName
}

func (c common) clone() common { return c }

type PatternVisitor interface {
	VisitUnsigned(*UnsignedPattern) error
	VisitSigned(*SignedPattern) error
	VisitFloatP(*FloatPattern) error
	VisitBooleanP(*BooleanPattern) error
	VisitCharacterP(*CharacterPattern) error
	VisitWideCharacter(*WideCharacterPattern) error
	VisitStringP(*StringPattern) error
	VisitWideString(*WideStringPattern) error
	VisitPadding(*PaddingPattern) error
	VisitStaticArray(*StaticArrayPattern) error
	VisitDynamicArray(*DynamicArrayPattern) error
	VisitStructP(*StructPattern) error
	VisitUnionP(*UnionPattern) error
	VisitBitfieldP(*BitfieldPattern) error
	VisitBitfieldField(*BitfieldFieldPattern) error
	VisitEnumP(*EnumPattern) error
	VisitPointer(*PointerPattern) error
}

// formatter, when set, overrides a scalar pattern's FormattedValue
// (§4.5, "a pattern may carry a transform/formatter function").
type formatter func(Value) (string, error)

type UnsignedPattern struct {
	common
	Type TypeTag
}

func (p *UnsignedPattern) Accept(v PatternVisitor) error { return v.VisitUnsigned(p) }
func (p *UnsignedPattern) Clone() Pattern                { c := *p; c.common = p.common.clone(); return &c }

type SignedPattern struct {
	common
	Type TypeTag
}

func (p *SignedPattern) Accept(v PatternVisitor) error { return v.VisitSigned(p) }
func (p *SignedPattern) Clone() Pattern                { c := *p; c.common = p.common.clone(); return &c }

type FloatPattern struct {
	common
	Type TypeTag
}

func (p *FloatPattern) Accept(v PatternVisitor) error { return v.VisitFloatP(p) }
func (p *FloatPattern) Clone() Pattern                { c := *p; c.common = p.common.clone(); return &c }

type BooleanPattern struct {
	common
}

func (p *BooleanPattern) Accept(v PatternVisitor) error { return v.VisitBooleanP(p) }
func (p *BooleanPattern) Clone() Pattern                { c := *p; c.common = p.common.clone(); return &c }

type CharacterPattern struct {
	common
}

func (p *CharacterPattern) Accept(v PatternVisitor) error { return v.VisitCharacterP(p) }
func (p *CharacterPattern) Clone() Pattern                { c := *p; c.common = p.common.clone(); return &c }

type WideCharacterPattern struct {
	common
}

func (p *WideCharacterPattern) Accept(v PatternVisitor) error { return v.VisitWideCharacter(p) }
func (p *WideCharacterPattern) Clone() Pattern                { c := *p; c.common = p.common.clone(); return &c }

type StringPattern struct {
	common
}

func (p *StringPattern) Accept(v PatternVisitor) error { return v.VisitStringP(p) }
func (p *StringPattern) Clone() Pattern                { c := *p; c.common = p.common.clone(); return &c }

type WideStringPattern struct {
	common
}

func (p *WideStringPattern) Accept(v PatternVisitor) error { return v.VisitWideString(p) }
func (p *WideStringPattern) Clone() Pattern                { c := *p; c.common = p.common.clone(); return &c }

type PaddingPattern struct {
	common
}

func (p *PaddingPattern) Accept(v PatternVisitor) error { return v.VisitPadding(p) }
func (p *PaddingPattern) Clone() Pattern                { c := *p; c.common = p.common.clone(); return &c }

// StaticArrayPattern is an array whose elements all share one type and
// size, stored once rather than per-element (§4.4.1's array collapse
// rule for Character/WideCharacter/Padding element types, applied to
// integer element types as well; see isCollapsibleType).
type StaticArrayPattern struct {
	common
	EntryType Pattern // template entry, not itself part of the tree
	Count     uint64
}

func (p *StaticArrayPattern) Accept(v PatternVisitor) error { return v.VisitStaticArray(p) }
func (p *StaticArrayPattern) Clone() Pattern {
	c := *p
	c.common = p.common.clone()
	if p.EntryType != nil {
		c.EntryType = p.EntryType.Clone()
	}
	return &c
}

type DynamicArrayPattern struct {
	common
	Entries []Pattern
}

func (p *DynamicArrayPattern) Accept(v PatternVisitor) error { return v.VisitDynamicArray(p) }
func (p *DynamicArrayPattern) Clone() Pattern {
	c := *p
	c.common = p.common.clone()
	c.Entries = clonePatterns(p.Entries)
	return &c
}

type StructPattern struct {
	common
	Members []Pattern
}

func (p *StructPattern) Accept(v PatternVisitor) error { return v.VisitStructP(p) }
func (p *StructPattern) Clone() Pattern {
	c := *p
	c.common = p.common.clone()
	c.Members = clonePatterns(p.Members)
	return &c
}

type UnionPattern struct {
	common
	Members []Pattern
}

func (p *UnionPattern) Accept(v PatternVisitor) error { return v.VisitUnionP(p) }
func (p *UnionPattern) Clone() Pattern {
	c := *p
	c.common = p.common.clone()
	c.Members = clonePatterns(p.Members)
	return &c
}

type BitfieldFieldPattern struct {
	common
	BitOffset uint8
	BitSize   uint8
}

func (p *BitfieldFieldPattern) Accept(v PatternVisitor) error { return v.VisitBitfieldField(p) }
func (p *BitfieldFieldPattern) Clone() Pattern                { c := *p; c.common = p.common.clone(); return &c }

type BitfieldPattern struct {
	common
	Fields []*BitfieldFieldPattern
}

func (p *BitfieldPattern) Accept(v PatternVisitor) error { return v.VisitBitfieldP(p) }
func (p *BitfieldPattern) Clone() Pattern {
	c := *p
	c.common = p.common.clone()
	fields := make([]*BitfieldFieldPattern, len(p.Fields))
	for i, f := range p.Fields {
		fields[i] = f.Clone().(*BitfieldFieldPattern)
	}
	c.Fields = fields
	return &c
}

type EnumEntry struct {
	Name  string
	Value *IntegerValue
}

type EnumPattern struct {
	common
	Underlying TypeTag
	Entries    []EnumEntry
	Value      *IntegerValue
}

func (p *EnumPattern) Accept(v PatternVisitor) error { return v.VisitEnumP(p) }
func (p *EnumPattern) Clone() Pattern {
	c := *p
	c.common = p.common.clone()
	c.Entries = append([]EnumEntry(nil), p.Entries...)
	return &c
}

// CurrentName returns the enum constant matching Value, or "" if the
// stored value doesn't correspond to any declared entry.
func (p *EnumPattern) CurrentName() string {
	for _, e := range p.Entries {
		if e.Value.Val.Cmp(p.Value.Val) == 0 {
			return e.Name
		}
	}
	return ""
}

type PointerPattern struct {
	common
	PointerType TypeTag
	Target      Pattern
}

func (p *PointerPattern) Accept(v PatternVisitor) error { return v.VisitPointer(p) }
func (p *PointerPattern) Clone() Pattern {
	c := *p
	c.common = p.common.clone()
	if p.Target != nil {
		c.Target = p.Target.Clone()
	}
	return &c
}

func clonePatterns(pats []Pattern) []Pattern {
	if pats == nil {
		return nil
	}
	out := make([]Pattern, len(pats))
	for i, p := range pats {
		out[i] = p.Clone()
	}
	return out
}

// Children returns a composite pattern's direct members, or nil for a
// scalar/leaf pattern. Used by the pattern tree's Visit/Lookup/Sort
// operations (§4.5) without a type switch at every call site.
func Children(p Pattern) []Pattern {
	switch t := p.(type) {
	case *StructPattern:
		return t.Members
	case *UnionPattern:
		return t.Members
	case *DynamicArrayPattern:
		return t.Entries
	case *BitfieldPattern:
		out := make([]Pattern, len(t.Fields))
		for i, f := range t.Fields {
			out[i] = f
		}
		return out
	default:
		return nil
	}
}

// SetChildren replaces a composite pattern's direct members in place,
// the mutation Sort uses (§4.5, I5: reordering never recurses).
func SetChildren(p Pattern, children []Pattern) {
	switch t := p.(type) {
	case *StructPattern:
		t.Members = children
	case *UnionPattern:
		t.Members = children
	case *DynamicArrayPattern:
		t.Entries = children
	default:
		panic(fmt.Sprintf("pattern %T has no reorderable children", p))
	}
}
