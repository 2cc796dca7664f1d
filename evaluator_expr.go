package pl

import (
	"fmt"
	"math"
	"math/big"
)

// evalExpr evaluates any expression-shaped AST node to a runtime Value
// (§4.4.4). It is a plain recursive type switch rather than a
// Visitor.Accept dispatch because every case needs to return a value,
// not just an error.
func (ev *evaluator) evalExpr(n Node) (Value, error) {
	switch t := n.(type) {
	case *LiteralNode:
		return t.Value, nil
	case *RValueNode:
		return ev.resolveRValue(t)
	case *UnaryNode:
		return ev.evalUnary(t)
	case *BinaryNode:
		return ev.evalBinary(t)
	case *TernaryNode:
		cond, err := ev.evalExpr(t.Cond)
		if err != nil {
			return nil, err
		}
		truth, err := truthy(cond)
		if err != nil {
			return nil, err
		}
		if truth {
			return ev.evalExpr(t.Then)
		}
		return ev.evalExpr(t.Else)
	case *CastNode:
		return ev.evalCast(t)
	case *ScopeResolutionNode:
		return ev.evalScopeResolution(t)
	case *FunctionCallNode:
		return ev.evalCall(t)
	default:
		return nil, NewErrorAt(KindEvaluation, n.Pos(), fmt.Sprintf("%T is not an expression", n))
	}
}

func (ev *evaluator) evalUnary(n *UnaryNode) (Value, error) {
	v, err := ev.evalExpr(n.Expr)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case UnaryNeg:
		switch t := v.(type) {
		case *IntegerValue:
			r := integerFromBig(new(big.Int).Neg(t.Val), t.Type)
			return r, nil
		case *FloatValue:
			return NewFloat(-t.Val, t.Double), nil
		}
	case UnaryNot:
		b, err := truthy(v)
		if err != nil {
			return nil, err
		}
		return NewBoolean(!b), nil
	case UnaryBitNot:
		if t, ok := v.(*IntegerValue); ok {
			return integerFromBig(new(big.Int).Not(t.Val), t.Type), nil
		}
	}
	return nil, NewErrorAt(KindEvaluation, n.Pos(), fmt.Sprintf("invalid operand for unary operator: %v", v.Kind()))
}

func (ev *evaluator) evalBinary(n *BinaryNode) (Value, error) {
	if n.Op == BinAssign {
		return ev.evalAssign(n)
	}
	left, err := ev.evalExpr(n.Left)
	if err != nil {
		return nil, err
	}

	// short-circuit logical operators
	if n.Op == BinAnd || n.Op == BinOr {
		lb, err := truthy(left)
		if err != nil {
			return nil, err
		}
		if n.Op == BinAnd && !lb {
			return NewBoolean(false), nil
		}
		if n.Op == BinOr && lb {
			return NewBoolean(true), nil
		}
		right, err := ev.evalExpr(n.Right)
		if err != nil {
			return nil, err
		}
		rb, err := truthy(right)
		if err != nil {
			return nil, err
		}
		return NewBoolean(rb), nil
	}

	right, err := ev.evalExpr(n.Right)
	if err != nil {
		return nil, err
	}
	return applyBinary(n.Pos(), n.Op, left, right)
}

func applyBinary(line int, op BinaryOp, left, right Value) (Value, error) {
	if op == BinXor {
		lb, err := truthy(left)
		if err != nil {
			return nil, err
		}
		rb, err := truthy(right)
		if err != nil {
			return nil, err
		}
		return NewBoolean(lb != rb), nil
	}

	if lf, rf, ok := asFloatPair(left, right); ok {
		return floatBinary(line, op, lf, rf)
	}
	if li, ri, ok := asIntPair(left, right); ok {
		return integerBinary(line, op, li, ri)
	}
	if ls, rs, ok := asStringPair(left, right); ok {
		return stringBinary(line, op, ls, rs)
	}
	return nil, NewErrorAt(KindEvaluation, line, fmt.Sprintf("operands of incompatible type: %v and %v", left.Kind(), right.Kind()))
}

func asFloatPair(l, r Value) (float64, float64, bool) {
	lf, lok := l.(*FloatValue)
	rf, rok := r.(*FloatValue)
	if lok && rok {
		return lf.Val, rf.Val, true
	}
	if lok {
		if ri, ok := r.(*IntegerValue); ok {
			f, _ := new(big.Float).SetInt(ri.Val).Float64()
			return lf.Val, f, true
		}
	}
	if rok {
		if li, ok := l.(*IntegerValue); ok {
			f, _ := new(big.Float).SetInt(li.Val).Float64()
			return f, rf.Val, true
		}
	}
	return 0, 0, false
}

func asIntPair(l, r Value) (*IntegerValue, *IntegerValue, bool) {
	li, lok := l.(*IntegerValue)
	ri, rok := r.(*IntegerValue)
	if lok && rok {
		return li, ri, true
	}
	if lb, ok := l.(*BooleanValue); ok {
		if ri, ok := r.(*IntegerValue); ok {
			return boolToInt(lb), ri, true
		}
	}
	if rb, ok := r.(*BooleanValue); ok {
		if li, ok := l.(*IntegerValue); ok {
			return li, boolToInt(rb), true
		}
	}
	if lb, ok := l.(*BooleanValue); ok {
		if rb, ok := r.(*BooleanValue); ok {
			return boolToInt(lb), boolToInt(rb), true
		}
	}
	return nil, nil, false
}

func boolToInt(b *BooleanValue) *IntegerValue {
	if b.Val {
		return NewInteger(1, TypeBoolean)
	}
	return NewInteger(0, TypeBoolean)
}

func asStringPair(l, r Value) (string, string, bool) {
	ls, lok := l.(*StringValue)
	rs, rok := r.(*StringValue)
	if lok && rok {
		return ls.Val, rs.Val, true
	}
	return "", "", false
}

func widestType(a, b TypeTag) TypeTag {
	if a.Size() >= b.Size() {
		return a
	}
	return b
}

func integerBinary(line int, op BinaryOp, l, r *IntegerValue) (Value, error) {
	t := widestType(l.Type, r.Type)
	switch op {
	case BinAdd:
		return integerFromBig(new(big.Int).Add(l.Val, r.Val), t), nil
	case BinSub:
		return integerFromBig(new(big.Int).Sub(l.Val, r.Val), t), nil
	case BinMul:
		return integerFromBig(new(big.Int).Mul(l.Val, r.Val), t), nil
	case BinDiv:
		if r.Val.Sign() == 0 {
			return nil, NewErrorAt(KindEvaluation, line, "division by zero")
		}
		return integerFromBig(new(big.Int).Quo(l.Val, r.Val), t), nil
	case BinMod:
		if r.Val.Sign() == 0 {
			return nil, NewErrorAt(KindEvaluation, line, "modulo by zero")
		}
		return integerFromBig(new(big.Int).Rem(l.Val, r.Val), t), nil
	case BinBitAnd:
		return integerFromBig(new(big.Int).And(l.Val, r.Val), t), nil
	case BinBitOr:
		return integerFromBig(new(big.Int).Or(l.Val, r.Val), t), nil
	case BinBitXor:
		return integerFromBig(new(big.Int).Xor(l.Val, r.Val), t), nil
	case BinShl, BinShr:
		width := uint64(l.Type.Size() * 8)
		shift := r.Val.Uint64()
		if !r.Val.IsUint64() || shift >= width {
			return nil, NewErrorAt(KindEvaluation, line, fmt.Sprintf("shift amount %s is not less than the %d-bit operand width", r.Val.String(), width))
		}
		if op == BinShl {
			return integerFromBig(new(big.Int).Lsh(l.Val, uint(shift)), t), nil
		}
		return integerFromBig(new(big.Int).Rsh(l.Val, uint(shift)), t), nil
	case BinEq:
		return NewBoolean(l.Val.Cmp(r.Val) == 0), nil
	case BinNeq:
		return NewBoolean(l.Val.Cmp(r.Val) != 0), nil
	case BinLt:
		return NewBoolean(l.Val.Cmp(r.Val) < 0), nil
	case BinLe:
		return NewBoolean(l.Val.Cmp(r.Val) <= 0), nil
	case BinGt:
		return NewBoolean(l.Val.Cmp(r.Val) > 0), nil
	case BinGe:
		return NewBoolean(l.Val.Cmp(r.Val) >= 0), nil
	default:
		return nil, NewErrorAt(KindEvaluation, line, "invalid integer operator")
	}
}

func floatBinary(line int, op BinaryOp, l, r float64) (Value, error) {
	switch op {
	case BinAdd:
		return NewFloat(l+r, true), nil
	case BinSub:
		return NewFloat(l-r, true), nil
	case BinMul:
		return NewFloat(l*r, true), nil
	case BinDiv:
		return NewFloat(l/r, true), nil
	case BinMod:
		return NewFloat(math.Mod(l, r), true), nil
	case BinEq:
		return NewBoolean(l == r), nil
	case BinNeq:
		return NewBoolean(l != r), nil
	case BinLt:
		return NewBoolean(l < r), nil
	case BinLe:
		return NewBoolean(l <= r), nil
	case BinGt:
		return NewBoolean(l > r), nil
	case BinGe:
		return NewBoolean(l >= r), nil
	default:
		return nil, NewErrorAt(KindEvaluation, line, "invalid floating-point operator")
	}
}

func stringBinary(line int, op BinaryOp, l, r string) (Value, error) {
	switch op {
	case BinAdd:
		return NewString(l + r), nil
	case BinEq:
		return NewBoolean(l == r), nil
	case BinNeq:
		return NewBoolean(l != r), nil
	case BinLt:
		return NewBoolean(l < r), nil
	case BinLe:
		return NewBoolean(l <= r), nil
	case BinGt:
		return NewBoolean(l > r), nil
	case BinGe:
		return NewBoolean(l >= r), nil
	default:
		return nil, NewErrorAt(KindEvaluation, line, "invalid string operator")
	}
}

// evalAssign writes to a local variable slot. Assigning through a path
// with member/index segments (struct.field = x) is a Non-goal shared
// with the original's read-mostly pattern model: placed memory is never
// written back, only local (un-placed) variables are assignable.
func (ev *evaluator) evalAssign(n *BinaryNode) (Value, error) {
	rv, ok := n.Left.(*RValueNode)
	if !ok || len(rv.Path) != 1 || rv.Path[0].Index != nil {
		return nil, NewErrorAt(KindEvaluation, n.Pos(), "left-hand side of '=' must be a local variable")
	}
	name := rv.Path[0].Name
	val, err := ev.evalExpr(n.Right)
	if err != nil {
		return nil, err
	}
	for i := len(ev.scopes) - 1; i >= 0; i-- {
		if old, ok := ev.scopes[i].vars[name]; ok {
			// integer results are truncated to the slot's declared type
			if oi, ok := old.(*IntegerValue); ok {
				if iv, ok := val.(*IntegerValue); ok {
					val = integerFromBig(iv.Val, oi.Type)
				}
			}
			ev.scopes[i].vars[name] = val
			return val, nil
		}
	}
	ev.top().vars[name] = val
	return val, nil
}

func (ev *evaluator) evalCast(n *CastNode) (Value, error) {
	v, err := ev.evalExpr(n.Expr)
	if err != nil {
		return nil, err
	}
	return castValue(n.Pos(), v, n.Target)
}

func castValue(line int, v Value, target TypeRef) (Value, error) {
	if target.IsCustom() {
		return nil, NewErrorAt(KindEvaluation, line, "cannot cast to a custom type")
	}
	tag := target.Builtin
	switch {
	case tag.IsInteger():
		switch t := v.(type) {
		case *IntegerValue:
			return integerFromBig(t.Val, tag), nil
		case *FloatValue:
			bi, _ := big.NewFloat(t.Val).Int(nil)
			return integerFromBig(bi, tag), nil
		case *BooleanValue:
			return integerFromBig(boolToInt(t).Val, tag), nil
		case *CharValue:
			return integerFromBig(big.NewInt(int64(t.Val)), tag), nil
		}
	case tag.IsFloatingPoint():
		switch t := v.(type) {
		case *IntegerValue:
			f, _ := new(big.Float).SetInt(t.Val).Float64()
			return NewFloat(f, tag == TypeDouble), nil
		case *FloatValue:
			return NewFloat(t.Val, tag == TypeDouble), nil
		}
	case tag == TypeBoolean:
		b, err := truthy(v)
		if err != nil {
			return nil, err
		}
		return NewBoolean(b), nil
	case tag == TypeCharacter || tag == TypeCharacter16:
		if iv, ok := v.(*IntegerValue); ok {
			return NewChar(rune(iv.Val.Int64())), nil
		}
	case tag == TypeString:
		return NewString(v.String()), nil
	}
	return nil, NewErrorAt(KindEvaluation, line, fmt.Sprintf("cannot cast %v to %v", v.Kind(), tag))
}

func (ev *evaluator) evalScopeResolution(n *ScopeResolutionNode) (Value, error) {
	if len(n.Path) < 2 {
		return nil, NewErrorAt(KindEvaluation, n.Pos(), "malformed scope resolution")
	}
	typeName := n.Path[0]
	for i := 1; i < len(n.Path)-1; i++ {
		typeName += "::" + n.Path[i]
	}
	member := n.Path[len(n.Path)-1]

	def, ok := ev.types[typeName]
	if !ok {
		return nil, NewErrorAt(KindEvaluation, n.Pos(), fmt.Sprintf("unknown type %q", typeName))
	}
	enumDef, ok := def.(*EnumNode)
	if !ok {
		return nil, NewErrorAt(KindEvaluation, n.Pos(), fmt.Sprintf("%q is not an enum", typeName))
	}

	cur := new(big.Int)
	ev.pushScope(nil)
	defer ev.popScope()
	for _, v := range enumDef.Values {
		if v.Expr != nil {
			val, err := ev.evalExpr(v.Expr)
			if err != nil {
				return nil, err
			}
			iv, ok := val.(*IntegerValue)
			if !ok {
				return nil, NewErrorAt(KindEvaluation, n.Pos(), "enum value must be a constant integer")
			}
			cur = new(big.Int).Set(iv.Val)
		}
		if v.Name == member {
			return integerFromBig(cur, enumDef.Underlying), nil
		}
		cur = new(big.Int).Add(cur, big.NewInt(1))
	}
	return nil, NewErrorAt(KindEvaluation, n.Pos(), fmt.Sprintf("enum %q has no member %q", typeName, member))
}
