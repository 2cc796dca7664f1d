package pl

// execStatement runs one statement-level node and reports the
// control-flow signal it produced, if any (§4.4.6). Declarations that
// create patterns append them either as a tree root (top-level call) or
// as a member of the composite pattern currently being placed
// (struct/union body call), depending on ev.top().pattern.
func (ev *evaluator) execStatement(n Node) (flow, error) {
	if err := ev.checkAbort(n.Pos()); err != nil {
		return flowNone, err
	}

	switch t := n.(type) {
	case *CompoundNode:
		return ev.execBlock(t.Body)

	case *VariableDeclNode:
		if t.Offset == nil && ev.top().pattern == nil {
			v, err := ev.zeroValueFor(t.Type)
			if err != nil {
				return flowNone, err
			}
			ev.top().vars[t.Name] = v
			return flowNone, nil
		}
		p, err := ev.placeVariable(t)
		if err != nil {
			return flowNone, err
		}
		ev.deliverPattern(t.Name, p)
		return flowNone, nil

	case *ArrayVariableDeclNode:
		p, err := ev.placeArray(t)
		if err != nil {
			return flowNone, err
		}
		ev.deliverPattern(t.Name, p)
		return flowNone, nil

	case *PointerVariableDeclNode:
		p, err := ev.placePointer(t)
		if err != nil {
			return flowNone, err
		}
		ev.deliverPattern(t.Name, p)
		return flowNone, nil

	case *StructNode:
		ev.types[t.Name] = t
		return flowNone, nil
	case *UnionNode:
		ev.types[t.Name] = t
		return flowNone, nil
	case *EnumNode:
		ev.types[t.Name] = t
		return flowNone, nil
	case *BitfieldNode:
		ev.types[t.Name] = t
		return flowNone, nil
	case *TypeDeclNode:
		ev.types[t.Name] = t
		return flowNone, nil

	case *IfNode:
		cond, err := ev.evalExpr(t.Cond)
		if err != nil {
			return flowNone, err
		}
		truth, err := truthy(cond)
		if err != nil {
			return flowNone, err
		}
		if truth {
			return ev.execBlock(t.Then)
		}
		return ev.execBlock(t.Else)

	case *WhileNode:
		return ev.execWhile(t)

	case *ForNode:
		return ev.execFor(t)

	case *ReturnNode:
		if t.Expr == nil {
			ev.returnValue = &VoidValue{}
			return flowReturn, nil
		}
		v, err := ev.evalExpr(t.Expr)
		if err != nil {
			return flowNone, err
		}
		ev.returnValue = v
		return flowReturn, nil

	case *BreakNode:
		return flowBreak, nil
	case *ContinueNode:
		return flowContinue, nil

	case *FunctionCallNode:
		_, err := ev.evalExpr(t)
		return flowNone, err

	default:
		// a bare expression statement (assignment)
		_, err := ev.evalExpr(n)
		return flowNone, err
	}
}

func (ev *evaluator) execBlock(body []Node) (flow, error) {
	for _, s := range body {
		f, err := ev.execStatement(s)
		if err != nil {
			return flowNone, err
		}
		if f != flowNone {
			return f, nil
		}
	}
	return flowNone, nil
}

func (ev *evaluator) execWhile(n *WhileNode) (flow, error) {
	for iterations := uint64(0); ; iterations++ {
		if ev.cfg.ArrayLimit != 0 && iterations > ev.cfg.ArrayLimit {
			return flowNone, limitError(n.Pos(), "array_limit", "while loop exceeded iteration limit")
		}
		cond, err := ev.evalExpr(n.Cond)
		if err != nil {
			return flowNone, err
		}
		truth, err := truthy(cond)
		if err != nil {
			return flowNone, err
		}
		if !truth {
			return flowNone, nil
		}
		f, err := ev.execBlock(n.Body)
		if err != nil {
			return flowNone, err
		}
		if f == flowBreak {
			return flowNone, nil
		}
		if f == flowReturn {
			return f, nil
		}
	}
}

func (ev *evaluator) execFor(n *ForNode) (flow, error) {
	if n.Init != nil {
		if _, err := ev.execStatement(n.Init); err != nil {
			return flowNone, err
		}
	}
	for iterations := uint64(0); ; iterations++ {
		if ev.cfg.ArrayLimit != 0 && iterations > ev.cfg.ArrayLimit {
			return flowNone, limitError(n.Pos(), "array_limit", "for loop exceeded iteration limit")
		}
		if n.Cond != nil {
			cond, err := ev.evalExpr(n.Cond)
			if err != nil {
				return flowNone, err
			}
			truth, err := truthy(cond)
			if err != nil {
				return flowNone, err
			}
			if !truth {
				return flowNone, nil
			}
		}
		f, err := ev.execBlock(n.Body)
		if err != nil {
			return flowNone, err
		}
		if f == flowBreak {
			return flowNone, nil
		}
		if f == flowReturn {
			return f, nil
		}
		if n.Post != nil {
			if _, err := ev.evalExpr(n.Post); err != nil {
				return flowNone, err
			}
		}
	}
}

// deliverPattern records a freshly placed pattern either as a local
// variable binding, a member of the composite currently being built, or
// a root of the tree, depending on which scope is active.
func (ev *evaluator) deliverPattern(name string, p Pattern) {
	top := ev.top()
	top.vars[name] = NewPatternValue(p)
	if top.pattern != nil {
		switch c := top.pattern.(type) {
		case *StructPattern:
			c.Members = append(c.Members, p)
		case *UnionPattern:
			c.Members = append(c.Members, p)
		}
		return
	}
	if len(ev.scopes) == 1 {
		ev.addRoot(p)
	}
}

func truthy(v Value) (bool, error) {
	switch t := v.(type) {
	case *BooleanValue:
		return t.Val, nil
	case *IntegerValue:
		return t.Val.Sign() != 0, nil
	case *FloatValue:
		return t.Val != 0, nil
	default:
		return false, NewError(KindEvaluation, "expected a boolean-convertible value in condition")
	}
}
