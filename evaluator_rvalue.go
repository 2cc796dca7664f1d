package pl

import "fmt"

// resolveRValue walks a dotted/indexed path against the scope stack,
// starting from `parent`, `this`, `$`, or a plain identifier, and
// returns the Value the path denotes (§4.4.3). Pointer patterns are
// transparent: indexing or dotting through one automatically steps into
// its Target, matching the original's "pointers dereference themselves
// in member access" behavior.
func (ev *evaluator) resolveRValue(n *RValueNode) (Value, error) {
	if len(n.Path) == 0 {
		return nil, NewErrorAt(KindEvaluation, n.Pos(), "empty rvalue path")
	}

	v, rest, err := ev.resolveHead(n.Path, n.Pos())
	if err != nil {
		return nil, err
	}
	for _, seg := range rest {
		v, err = ev.step(v, seg, n.Pos())
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

// resolveHead resolves the first path segment, which is the only one
// allowed to be a bare name lookup against the scope stack rather than
// a member/index step against an already-resolved value.
func (ev *evaluator) resolveHead(path []PathSegment, line int) (Value, []PathSegment, error) {
	head := path[0]
	if head.Index != nil {
		return nil, nil, NewErrorAt(KindEvaluation, line, "path cannot begin with an index")
	}

	switch head.Name {
	case "parent":
		for i := len(ev.scopes) - 2; i >= 0; i-- {
			if ev.scopes[i].pattern != nil {
				return NewPatternValue(ev.scopes[i].pattern), path[1:], nil
			}
		}
		return nil, nil, NewErrorAt(KindEvaluation, line, "no enclosing pattern for 'parent'")
	case "this":
		if p := ev.top().pattern; p != nil {
			return NewPatternValue(p), path[1:], nil
		}
		return nil, nil, NewErrorAt(KindEvaluation, line, "no enclosing pattern for 'this'")
	case "$":
		return NewInteger(int64(ev.cursor), TypeUnsigned64), path[1:], nil
	}

	for i := len(ev.scopes) - 1; i >= 0; i-- {
		if v, ok := ev.scopes[i].vars[head.Name]; ok {
			return v, path[1:], nil
		}
	}
	if _, ok := ev.functions[head.Name]; ok {
		return nil, nil, NewErrorAt(KindEvaluation, line, fmt.Sprintf("%q is a function, not a value", head.Name))
	}
	return nil, nil, NewErrorAt(KindEvaluation, line, fmt.Sprintf("undefined identifier %q", head.Name))
}

// step applies one member or index segment to an already-resolved
// value, which must be a PatternValue wrapping a composite.
func (ev *evaluator) step(v Value, seg PathSegment, line int) (Value, error) {
	p, err := asPattern(v, line)
	if err != nil {
		return nil, err
	}
	p = dereference(p)

	if seg.Index != nil {
		idx, err := ev.evalExpr(seg.Index)
		if err != nil {
			return nil, err
		}
		iv, ok := idx.(*IntegerValue)
		if !ok {
			return nil, NewErrorAt(KindEvaluation, line, "index expression must be an integer")
		}
		elem, err := ev.arrayElement(p, iv.Val.Uint64(), line)
		if err != nil {
			return nil, err
		}
		return ev.terminalValue(elem)
	}

	child, err := ev.memberByName(p, seg.Name, line)
	if err != nil {
		return nil, err
	}
	return ev.terminalValue(child)
}

func dereference(p Pattern) Pattern {
	if ptr, ok := p.(*PointerPattern); ok && ptr.Target != nil {
		return ptr.Target
	}
	return p
}

func asPattern(v Value, line int) (Pattern, error) {
	pv, ok := v.(*PatternValue)
	if !ok {
		return nil, NewErrorAt(KindEvaluation, line, "value has no members to access")
	}
	return pv.Pattern, nil
}

func (ev *evaluator) memberByName(p Pattern, name string, line int) (Pattern, error) {
	for _, c := range Children(p) {
		if c.DisplayName() == name {
			return c, nil
		}
	}
	return nil, NewErrorAt(KindEvaluation, line, fmt.Sprintf("pattern %q has no member %q", p.TypeName(), name))
}

func (ev *evaluator) arrayElement(p Pattern, idx uint64, line int) (Pattern, error) {
	switch t := p.(type) {
	case *DynamicArrayPattern:
		if idx >= uint64(len(t.Entries)) {
			return nil, NewErrorAt(KindEvaluation, line, fmt.Sprintf("array index %d out of bounds (len %d)", idx, len(t.Entries)))
		}
		return t.Entries[idx], nil
	case *StaticArrayPattern:
		if idx >= t.Count {
			return nil, NewErrorAt(KindEvaluation, line, fmt.Sprintf("array index %d out of bounds (len %d)", idx, t.Count))
		}
		elemSize := t.EntryType.Range().Len()
		offset := t.Range().Start + idx*elemSize
		return ev.buildPattern(templateTypeRef(t.EntryType), offset, fmt.Sprintf("%s[%d]", t.DisplayName(), idx))
	default:
		return nil, NewErrorAt(KindEvaluation, line, fmt.Sprintf("%q is not an array", p.TypeName()))
	}
}

// templateTypeRef recovers a TypeRef good enough to rebuild a scalar
// element pattern from the template entry a StaticArrayPattern cached;
// only scalar entry kinds are ever collapsed (isCollapsibleType), so
// this never needs to handle composites.
func templateTypeRef(entry Pattern) TypeRef {
	switch entry.(type) {
	case *CharacterPattern:
		return TypeRef{Builtin: TypeCharacter}
	case *WideCharacterPattern:
		return TypeRef{Builtin: TypeCharacter16}
	case *PaddingPattern:
		return TypeRef{Builtin: TypePadding}
	case *UnsignedPattern:
		return TypeRef{Builtin: entry.(*UnsignedPattern).Type}
	case *SignedPattern:
		return TypeRef{Builtin: entry.(*SignedPattern).Type}
	default:
		return TypeRef{Builtin: TypePadding}
	}
}

// terminalValue converts a resolved pattern into the Value a path
// expression should evaluate to: scalars read their bytes, composites
// stay wrapped for further member/index access.
func (ev *evaluator) terminalValue(p Pattern) (Value, error) {
	switch p.(type) {
	case *StructPattern, *UnionPattern, *DynamicArrayPattern, *StaticArrayPattern, *BitfieldPattern, *PointerPattern:
		return NewPatternValue(p), nil
	default:
		return ev.readPatternValue(p)
	}
}
