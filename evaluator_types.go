package pl

import (
	"fmt"
	"math"
	"math/big"
)

// placeVariable creates the pattern for a single `type name @ offset`
// declaration, advancing the evaluator's placement cursor past it
// (§4.4.1, §4.4.3).
func (ev *evaluator) placeVariable(n *VariableDeclNode) (Pattern, error) {
	offset, err := ev.resolveOffset(n.Offset)
	if err != nil {
		return nil, err
	}
	p, err := ev.buildPattern(n.Type, offset, n.Name)
	if err != nil {
		return nil, err
	}
	if err := ev.applyAttributes(p, n.Attributes, n.Pos()); err != nil {
		return nil, err
	}
	ev.cursor = offset + p.Range().Len()
	return p, ev.countPattern(n.Pos())
}

func (ev *evaluator) placePointer(n *PointerVariableDeclNode) (Pattern, error) {
	offset, err := ev.resolveOffset(n.Offset)
	if err != nil {
		return nil, err
	}
	size := n.PointerSize.Size()
	addr, err := ev.readUnsigned(offset, size, endianOf(n.Type, ev.cfg))
	if err != nil {
		return nil, err
	}
	base, err := ev.pointerBaseFor(n.Attributes, n.Pos())
	if err != nil {
		return nil, err
	}
	target, err := ev.buildPattern(n.Type, base+addr.Uint64(), n.Name)
	if err != nil {
		return nil, err
	}
	p := &PointerPattern{
		common:      ev.commonFields(n.Name, NewRange(offset, uint64(size)), "*"+n.Name),
		PointerType: n.PointerSize,
		Target:      target,
	}
	if err := ev.applyAttributes(p, n.Attributes, n.Pos()); err != nil {
		return nil, err
	}
	ev.cursor = offset + uint64(size)
	return p, ev.countPattern(n.Pos())
}

// pointerBaseFor implements the `pointer_base(fn_name)` attribute: the
// named function is called with no arguments and its integer result is
// added to the raw pointer value before the target is placed, letting a
// pattern program rebase a pointer against something other than the
// byte source's own base address.
func (ev *evaluator) pointerBaseFor(attrs []Attribute, line int) (uint64, error) {
	for _, a := range attrs {
		if a.Name != "pointer_base" {
			continue
		}
		fn, err := ev.attributeFunction(a.Arg, line)
		if err != nil {
			return 0, err
		}
		rv, err := ev.callFunction(fn, nil, line)
		if err != nil {
			return 0, err
		}
		iv, ok := rv.(*IntegerValue)
		if !ok {
			return 0, NewErrorAt(KindEvaluation, line, "pointer_base function must return an integer")
		}
		return iv.Val.Uint64(), nil
	}
	return 0, nil
}

func (ev *evaluator) placeArray(n *ArrayVariableDeclNode) (Pattern, error) {
	offset, err := ev.resolveOffset(n.Offset)
	if err != nil {
		return nil, err
	}
	ev.arrayDepth++
	defer func() { ev.arrayDepth-- }()
	if ev.cfg.RecursionLimit != 0 && ev.arrayDepth > ev.cfg.RecursionLimit {
		return nil, limitError(n.Pos(), "recursion_limit", "array nesting too deep")
	}

	switch n.Kind {
	case ArrayFixed:
		count, err := ev.evalCountExpr(n.Size)
		if err != nil {
			return nil, err
		}
		return ev.placeFixedArray(n, offset, count)
	case ArrayWhile:
		return ev.placeWhileArray(n, offset)
	default:
		return ev.placeZeroTerminatedArray(n, offset)
	}
}

// placeFixedArray collapses Character, WideCharacter, Padding and
// integer element types (isCollapsibleType) into a single
// StaticArrayPattern instead of one pattern per element, the
// optimization §4.4.1 calls out by name. Float, bool and custom element
// types get one pattern per element.
func (ev *evaluator) placeFixedArray(n *ArrayVariableDeclNode, offset uint64, count uint64) (Pattern, error) {
	if ev.cfg.ArrayLimit != 0 && count > ev.cfg.ArrayLimit {
		return nil, limitError(n.Pos(), "array_limit", "array declares more elements than the limit allows")
	}

	if isCollapsibleType(n.Type) {
		entry, err := ev.buildPattern(n.Type, offset, n.Name)
		if err != nil {
			return nil, err
		}
		size := entry.Range().Len() * count
		p := &StaticArrayPattern{
			common:    ev.commonFields(n.Name, NewRange(offset, size), arrayTypeName(n.Type)),
			EntryType: entry,
			Count:     count,
		}
		ev.cursor = offset + size
		return p, nil
	}

	entries := make([]Pattern, 0, count)
	cur := offset
	for i := uint64(0); i < count; i++ {
		if err := ev.checkAbort(n.Pos()); err != nil {
			return nil, err
		}
		e, err := ev.buildPattern(n.Type, cur, fmt.Sprintf("%s[%d]", n.Name, i))
		if err != nil {
			return nil, err
		}
		cur += e.Range().Len()
		entries = append(entries, e)
	}
	p := &DynamicArrayPattern{
		common:  ev.commonFields(n.Name, NewRange(offset, cur-offset), arrayTypeName(n.Type)),
		Entries: entries,
	}
	ev.cursor = cur
	return p, nil
}

func (ev *evaluator) placeWhileArray(n *ArrayVariableDeclNode, offset uint64) (Pattern, error) {
	var entries []Pattern
	cur := offset
	for i := uint64(0); ; i++ {
		if ev.cfg.ArrayLimit != 0 && i > ev.cfg.ArrayLimit {
			return nil, limitError(n.Pos(), "array_limit", "while array exceeded element limit")
		}
		if err := ev.checkAbort(n.Pos()); err != nil {
			return nil, err
		}
		savedCursor := ev.cursor
		ev.cursor = cur
		truth, err := ev.evalBoolExpr(n.Cond)
		ev.cursor = savedCursor
		if err != nil {
			return nil, err
		}
		if !truth {
			break
		}
		e, err := ev.buildPattern(n.Type, cur, fmt.Sprintf("%s[%d]", n.Name, i))
		if err != nil {
			return nil, err
		}
		cur += e.Range().Len()
		entries = append(entries, e)
	}
	p := &DynamicArrayPattern{
		common:  ev.commonFields(n.Name, NewRange(offset, cur-offset), arrayTypeName(n.Type)),
		Entries: entries,
	}
	ev.cursor = cur
	return p, nil
}

// placeZeroTerminatedArray reads elements until one equal to zero is
// found, consuming the terminator itself into the array's range but not
// into its visible entries (the common char* / wide-string idiom).
func (ev *evaluator) placeZeroTerminatedArray(n *ArrayVariableDeclNode, offset uint64) (Pattern, error) {
	var entries []Pattern
	cur := offset
	for i := uint64(0); ; i++ {
		if ev.cfg.ArrayLimit != 0 && i > ev.cfg.ArrayLimit {
			return nil, limitError(n.Pos(), "array_limit", "zero-terminated array exceeded element limit")
		}
		e, err := ev.buildPattern(n.Type, cur, fmt.Sprintf("%s[%d]", n.Name, i))
		if err != nil {
			return nil, err
		}
		v, err := ev.readPatternValue(e)
		if err != nil {
			return nil, err
		}
		cur += e.Range().Len()
		if isZero(v) {
			break
		}
		entries = append(entries, e)
	}
	p := &DynamicArrayPattern{
		common:  ev.commonFields(n.Name, NewRange(offset, cur-offset), arrayTypeName(n.Type)),
		Entries: entries,
	}
	ev.cursor = cur
	return p, nil
}

func isZero(v Value) bool {
	switch t := v.(type) {
	case *IntegerValue:
		return t.Val.Sign() == 0
	case *CharValue:
		return t.Val == 0
	default:
		return false
	}
}

func isCollapsibleType(t TypeRef) bool {
	return t.Builtin == TypeCharacter || t.Builtin == TypeCharacter16 ||
		t.Builtin == TypePadding || (t.Builtin != TypeCustom && t.Builtin.IsInteger())
}

func arrayTypeName(t TypeRef) string {
	if t.IsCustom() {
		return t.Name
	}
	return t.Builtin.String()
}

// buildPattern is the recursive heart of placement: it dispatches on
// the static or resolved-custom type and produces one Pattern, reading
// from ev.source at offset. Composite types push a scope so their
// members can resolve `parent`/`this`.
func (ev *evaluator) buildPattern(ref TypeRef, offset uint64, name string) (Pattern, error) {
	if err := ev.countPattern(0); err != nil {
		return nil, err
	}

	if !ref.IsCustom() {
		return ev.buildPrimitive(ref, offset, name)
	}

	def, resolved, err := ev.resolveType(ref)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return ev.buildPrimitive(resolved, offset, name)
	}

	switch t := def.(type) {
	case *StructNode:
		return ev.buildStruct(t, offset, name)
	case *UnionNode:
		return ev.buildUnion(t, offset, name)
	case *EnumNode:
		return ev.buildEnum(t, offset, name, ref)
	case *BitfieldNode:
		return ev.buildBitfield(t, offset, name)
	default:
		return nil, fmt.Errorf("type %q cannot be placed", ref.Name)
	}
}

func (ev *evaluator) buildPrimitive(ref TypeRef, offset uint64, name string) (Pattern, error) {
	endian := endianOf(ref, ev.cfg)
	cf := func(size uint64, typeName string) common {
		c := ev.commonFields(name, NewRange(offset, size), typeName)
		c.endian = endian
		return c
	}
	tag := ref.Builtin
	switch {
	case tag.IsInteger():
		size := uint64(tag.Size())
		up := &UnsignedPattern{common: cf(size, tag.String())}
		return up.withSign(tag), nil
	case tag.IsFloatingPoint():
		size := uint64(tag.Size())
		return &FloatPattern{common: cf(size, tag.String()), Type: tag}, nil
	case tag == TypeBoolean:
		return &BooleanPattern{common: cf(1, "bool")}, nil
	case tag == TypeCharacter:
		return &CharacterPattern{common: cf(1, "char")}, nil
	case tag == TypeCharacter16:
		return &WideCharacterPattern{common: cf(2, "char16")}, nil
	case tag == TypePadding:
		return &PaddingPattern{common: cf(1, "padding")}, nil
	case tag == TypeString:
		return ev.buildCString(offset, name)
	default:
		return nil, fmt.Errorf("cannot place value of type %v", tag)
	}
}

// withSign turns the generic Unsigned placeholder into a SignedPattern
// when the tag says so; kept as a tiny helper so buildPrimitive reads
// top to bottom as one switch.
func (p *UnsignedPattern) withSign(tag TypeTag) Pattern {
	p.Type = tag
	if tag.IsSigned() {
		return &SignedPattern{common: p.common, Type: tag}
	}
	return p
}

func (ev *evaluator) buildCString(offset uint64, name string) (Pattern, error) {
	buf := make([]byte, 1)
	cur := offset
	for {
		n, err := ev.source.Read(cur, buf)
		if err != nil || n == 0 {
			return nil, NewError(KindEvaluation, fmt.Sprintf("unterminated string at 0x%x", offset))
		}
		cur++
		if buf[0] == 0 {
			break
		}
	}
	return &StringPattern{common: ev.commonFields(name, NewRange(offset, cur-offset), "str")}, nil
}

func (ev *evaluator) buildStruct(def *StructNode, offset uint64, name string) (Pattern, error) {
	p := &StructPattern{common: ev.commonFields(name, NewRange(offset, 0), def.Name)}
	savedCursor := ev.cursor
	ev.cursor = offset

	if def.Parent != "" {
		if parentDef, ok := ev.types[def.Parent]; ok {
			if ps, ok := parentDef.(*StructNode); ok {
				for _, m := range ps.Members {
					if err := ev.placeStructMember(p, m); err != nil {
						ev.cursor = savedCursor
						return nil, err
					}
				}
			}
		}
	}

	ev.pushScope(p)
	for _, m := range def.Members {
		if err := ev.placeStructMember(p, m); err != nil {
			ev.popScope()
			ev.cursor = savedCursor
			return nil, err
		}
	}
	ev.popScope()

	size := ev.cursor - offset
	p.rng = NewRange(offset, size)
	ev.cursor = savedCursor
	return p, nil
}

func (ev *evaluator) placeStructMember(parent *StructPattern, m Node) error {
	f, err := ev.execStatement(m)
	if err != nil {
		return err
	}
	_ = f
	return nil
}

// buildUnion places every member at the same starting offset and takes
// the widest one as the union's own size.
func (ev *evaluator) buildUnion(def *UnionNode, offset uint64, name string) (Pattern, error) {
	p := &UnionPattern{common: ev.commonFields(name, NewRange(offset, 0), def.Name)}
	savedCursor := ev.cursor
	maxSize := uint64(0)

	ev.pushScope(p)
	for _, m := range def.Members {
		ev.cursor = offset
		if _, err := ev.execStatement(m); err != nil {
			ev.popScope()
			ev.cursor = savedCursor
			return nil, err
		}
		if len(p.Members) > 0 {
			if sz := p.Members[len(p.Members)-1].Range().Len(); sz > maxSize {
				maxSize = sz
			}
		}
	}
	ev.popScope()
	p.rng = NewRange(offset, maxSize)
	ev.cursor = savedCursor
	return p, nil
}

func (ev *evaluator) buildEnum(def *EnumNode, offset uint64, name string, ref TypeRef) (Pattern, error) {
	size := uint64(def.Underlying.Size())
	raw, err := ev.readUnsigned(offset, int(size), endianOf(ref, ev.cfg))
	if err != nil {
		return nil, err
	}

	entries := make([]EnumEntry, 0, len(def.Values))
	cur := new(big.Int)
	ev.pushScope(nil)
	for _, ev2 := range def.Values {
		if ev2.Expr != nil {
			v, err := ev.evalExpr(ev2.Expr)
			if err != nil {
				ev.popScope()
				return nil, err
			}
			iv, ok := v.(*IntegerValue)
			if !ok {
				ev.popScope()
				return nil, NewError(KindEvaluation, "enum value must be an integer constant")
			}
			cur = new(big.Int).Set(iv.Val)
		}
		entries = append(entries, EnumEntry{Name: ev2.Name, Value: integerFromBig(cur, def.Underlying)})
		cur = new(big.Int).Add(cur, big.NewInt(1))
	}
	ev.popScope()

	p := &EnumPattern{
		common:     ev.commonFields(name, NewRange(offset, size), def.Name),
		Underlying: def.Underlying,
		Entries:    entries,
		Value:      integerFromBig(raw, def.Underlying),
	}
	return p, nil
}

func (ev *evaluator) buildBitfield(def *BitfieldNode, offset uint64, name string) (Pattern, error) {
	totalBits := 0
	for _, f := range def.Fields {
		v, err := ev.evalExpr(f.Bits)
		if err != nil {
			return nil, err
		}
		iv, ok := v.(*IntegerValue)
		if !ok {
			return nil, NewError(KindEvaluation, "bitfield field width must be a constant integer")
		}
		totalBits += int(iv.Val.Int64())
	}
	totalBytes := uint64((totalBits + 7) / 8)

	p := &BitfieldPattern{common: ev.commonFields(name, NewRange(offset, totalBytes), def.Name)}
	bitOffset := 0
	for _, f := range def.Fields {
		v, err := ev.evalExpr(f.Bits)
		if err != nil {
			return nil, err
		}
		width := int(v.(*IntegerValue).Val.Int64())
		fp := &BitfieldFieldPattern{
			common:    ev.commonFields(f.Name, NewRange(offset, totalBytes), def.Name+"."+f.Name),
			BitOffset: uint8(bitOffset),
			BitSize:   uint8(width),
		}
		p.Fields = append(p.Fields, fp)
		bitOffset += width
	}
	return p, nil
}

func (ev *evaluator) commonFields(name string, rng Range, typeName string) common {
	return common{rng: rng, typeName: typeName, displayName: name, endian: ev.cfg.DefaultEndian, local: ev.source == nil}
}

// applyAttributes interprets the `[[name("arg")]]` annotations §6.4's
// fixed set defines: `hidden`, `comment`, `color`, `inline`, `sealed`,
// `name` (display name override), `export`, `no_unique_address`,
// `format`/`transform` (display hooks dispatched through the function
// registry, the same ev.functions lookup evalCall uses for a
// user-defined call) and `pointer_base` (resolved separately by
// placePointer, before the pointer's target is placed, since it needs
// to run before rather than after the pattern exists). Unknown
// attributes are a warning, not an error.
func (ev *evaluator) applyAttributes(p Pattern, attrs []Attribute, line int) error {
	c := commonPtr(p)
	if c == nil {
		return nil
	}
	for _, a := range attrs {
		switch a.Name {
		case "hidden":
			c.hidden = true
		case "comment":
			c.comment = a.Arg
		case "color":
			if n, ok := new(big.Int).SetString(a.Arg, 0); ok {
				c.color = uint32(n.Uint64())
			}
		case "inline":
			c.inlined = true
		case "sealed":
			c.sealed = true
		case "name":
			c.displayName = a.Arg
		case "export":
			c.exported = true
		case "no_unique_address":
			c.noUniqueAddress = true
		case "pointer_base":
			// consumed by placePointer before the pattern is built.
		case "format":
			fn, err := ev.attributeFunction(a.Arg, line)
			if err != nil {
				return err
			}
			c.formatFn = func(v Value) (string, error) {
				rv, err := ev.callFunction(fn, []Value{v}, line)
				if err != nil {
					return "", err
				}
				if sv, ok := rv.(*StringValue); ok {
					return sv.Val, nil
				}
				return rv.String(), nil
			}
		case "transform":
			fn, err := ev.attributeFunction(a.Arg, line)
			if err != nil {
				return err
			}
			c.transformFn = func(v Value) (Value, error) {
				return ev.callFunction(fn, []Value{v}, line)
			}
		default:
			ev.logger.Log(LogWarn, fmt.Sprintf("unknown attribute %q", a.Name))
		}
	}
	return nil
}

// attributeFunction resolves the function name a `format`/`transform`/
// `pointer_base` attribute argument names against the registry
// registerDeclarations already built, the same table evalCall consults
// for a plain function call.
func (ev *evaluator) attributeFunction(name string, line int) (*FunctionDefinitionNode, error) {
	fn, ok := ev.functions[name]
	if !ok {
		return nil, NewErrorAt(KindEvaluation, line, fmt.Sprintf("attribute references undefined function %q", name))
	}
	return fn, nil
}

// commonPtr returns a pointer to the embedded common struct so
// applyAttributes can mutate a pattern's shared fields without a
// per-variant setter method.
func commonPtr(p Pattern) *common {
	switch t := p.(type) {
	case *UnsignedPattern:
		return &t.common
	case *SignedPattern:
		return &t.common
	case *FloatPattern:
		return &t.common
	case *BooleanPattern:
		return &t.common
	case *CharacterPattern:
		return &t.common
	case *WideCharacterPattern:
		return &t.common
	case *StringPattern:
		return &t.common
	case *WideStringPattern:
		return &t.common
	case *PaddingPattern:
		return &t.common
	case *StaticArrayPattern:
		return &t.common
	case *DynamicArrayPattern:
		return &t.common
	case *StructPattern:
		return &t.common
	case *UnionPattern:
		return &t.common
	case *BitfieldPattern:
		return &t.common
	case *BitfieldFieldPattern:
		return &t.common
	case *EnumPattern:
		return &t.common
	case *PointerPattern:
		return &t.common
	default:
		return nil
	}
}

func (ev *evaluator) resolveOffset(n Node) (uint64, error) {
	if n == nil {
		return ev.cursor, nil
	}
	v, err := ev.evalExpr(n)
	if err != nil {
		return 0, err
	}
	iv, ok := v.(*IntegerValue)
	if !ok {
		return 0, NewError(KindEvaluation, "offset expression must be an integer")
	}
	return iv.Val.Uint64(), nil
}

func (ev *evaluator) evalCountExpr(n Node) (uint64, error) {
	v, err := ev.evalExpr(n)
	if err != nil {
		return 0, err
	}
	iv, ok := v.(*IntegerValue)
	if !ok {
		return 0, NewError(KindEvaluation, "array size must be an integer")
	}
	return iv.Val.Uint64(), nil
}

func (ev *evaluator) evalBoolExpr(n Node) (bool, error) {
	v, err := ev.evalExpr(n)
	if err != nil {
		return false, err
	}
	return truthy(v)
}

// ---- scalar reads ----

func (ev *evaluator) readBytes(offset uint64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := ev.source.Read(offset, buf)
	if err != nil {
		return nil, wrapInternal(0, err, "read")
	}
	if n != size {
		return nil, NewError(KindEvaluation, fmt.Sprintf("short read at 0x%x: wanted %d bytes, got %d", offset, size, n))
	}
	return buf, nil
}

func orderBytes(buf []byte, endian Endian) []byte {
	if endian != EndianBig {
		return buf
	}
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[len(buf)-1-i] = b
	}
	return out
}

func (ev *evaluator) readUnsigned(offset uint64, size int, endian Endian) (*big.Int, error) {
	buf, err := ev.readBytes(offset, size)
	if err != nil {
		return nil, err
	}
	le := orderBytes(buf, endian)
	v := new(big.Int)
	for i := len(le) - 1; i >= 0; i-- {
		v.Lsh(v, 8)
		v.Or(v, big.NewInt(int64(le[i])))
	}
	return v, nil
}

func (ev *evaluator) readPatternValue(p Pattern) (Value, error) {
	switch t := p.(type) {
	case *UnsignedPattern:
		v, err := ev.readUnsigned(t.Range().Start, t.Type.Size(), t.Endian())
		if err != nil {
			return nil, err
		}
		return integerFromBig(v, t.Type), nil
	case *SignedPattern:
		v, err := ev.readUnsigned(t.Range().Start, t.Type.Size(), t.Endian())
		if err != nil {
			return nil, err
		}
		return integerFromBig(v, t.Type), nil
	case *FloatPattern:
		raw, err := ev.readUnsigned(t.Range().Start, t.Type.Size(), t.Endian())
		if err != nil {
			return nil, err
		}
		if t.Type == TypeFloat {
			return NewFloat(float64(math.Float32frombits(uint32(raw.Uint64()))), false), nil
		}
		return NewFloat(math.Float64frombits(raw.Uint64()), true), nil
	case *BooleanPattern:
		raw, err := ev.readBytes(t.Range().Start, 1)
		if err != nil {
			return nil, err
		}
		return NewBoolean(raw[0] != 0), nil
	case *CharacterPattern:
		raw, err := ev.readBytes(t.Range().Start, 1)
		if err != nil {
			return nil, err
		}
		return NewChar(rune(raw[0])), nil
	case *WideCharacterPattern:
		v, err := ev.readUnsigned(t.Range().Start, 2, t.Endian())
		if err != nil {
			return nil, err
		}
		return NewChar(rune(v.Uint64())), nil
	case *StringPattern:
		n := t.Range().Len()
		if n == 0 {
			return NewString(""), nil
		}
		raw, err := ev.readBytes(t.Range().Start, int(n)-1)
		if err != nil {
			return nil, err
		}
		return NewString(string(raw)), nil
	case *EnumPattern:
		return t.Value, nil
	case *PaddingPattern:
		return &VoidValue{}, nil
	default:
		return NewPatternValue(p), nil
	}
}

func (ev *evaluator) zeroValueFor(t TypeRef) (Value, error) {
	if t.IsCustom() {
		return &VoidValue{}, nil
	}
	switch {
	case t.Builtin.IsInteger():
		return NewInteger(0, t.Builtin), nil
	case t.Builtin.IsFloatingPoint():
		return NewFloat(0, t.Builtin == TypeDouble), nil
	case t.Builtin == TypeBoolean:
		return NewBoolean(false), nil
	case t.Builtin == TypeCharacter || t.Builtin == TypeCharacter16:
		return NewChar(0), nil
	case t.Builtin == TypeString:
		return NewString(""), nil
	default:
		return &VoidValue{}, nil
	}
}
