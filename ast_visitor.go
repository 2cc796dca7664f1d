package pl

// Visitor is the double-dispatch counterpart to Node.Accept, one method
// per AST variant (§3.3). No type in this package implements it; the
// evaluator and Walk dispatch with type switches instead.
type Visitor interface {
	VisitLiteral(*LiteralNode) error
	VisitRValue(*RValueNode) error
	VisitUnary(*UnaryNode) error
	VisitBinary(*BinaryNode) error
	VisitTernary(*TernaryNode) error
	VisitCast(*CastNode) error
	VisitScopeResolution(*ScopeResolutionNode) error
	VisitTypeDecl(*TypeDeclNode) error
	VisitBuiltinTypeRef(*BuiltinTypeRefNode) error
	VisitVariableDecl(*VariableDeclNode) error
	VisitArrayVariableDecl(*ArrayVariableDeclNode) error
	VisitPointerVariableDecl(*PointerVariableDeclNode) error
	VisitStruct(*StructNode) error
	VisitUnion(*UnionNode) error
	VisitEnum(*EnumNode) error
	VisitBitfield(*BitfieldNode) error
	VisitBitfieldField(*BitfieldFieldNode) error
	VisitFunctionDefinition(*FunctionDefinitionNode) error
	VisitFunctionCall(*FunctionCallNode) error
	VisitIf(*IfNode) error
	VisitWhile(*WhileNode) error
	VisitFor(*ForNode) error
	VisitReturn(*ReturnNode) error
	VisitBreak(*BreakNode) error
	VisitContinue(*ContinueNode) error
	VisitNamespace(*NamespaceNode) error
	VisitCompound(*CompoundNode) error
}

// walkFunc is invoked for every node in a tree, pre-order.
type walkFunc func(Node) error

// Walk visits n and, recursively, every node it contains, for callers
// that don't want to implement the full Visitor (today: the tests).
func Walk(n Node, fn walkFunc) error {
	if n == nil {
		return nil
	}
	if err := fn(n); err != nil {
		return err
	}
	switch t := n.(type) {
	case *RValueNode:
		for _, seg := range t.Path {
			if seg.Index != nil {
				if err := Walk(seg.Index, fn); err != nil {
					return err
				}
			}
		}
	case *UnaryNode:
		return Walk(t.Expr, fn)
	case *BinaryNode:
		if err := Walk(t.Left, fn); err != nil {
			return err
		}
		return Walk(t.Right, fn)
	case *TernaryNode:
		if err := Walk(t.Cond, fn); err != nil {
			return err
		}
		if err := Walk(t.Then, fn); err != nil {
			return err
		}
		return Walk(t.Else, fn)
	case *CastNode:
		return Walk(t.Expr, fn)
	case *VariableDeclNode:
		return Walk(t.Offset, fn)
	case *ArrayVariableDeclNode:
		if err := Walk(t.Size, fn); err != nil {
			return err
		}
		if err := Walk(t.Cond, fn); err != nil {
			return err
		}
		return Walk(t.Offset, fn)
	case *PointerVariableDeclNode:
		return Walk(t.Offset, fn)
	case *StructNode:
		return walkList(t.Members, fn)
	case *UnionNode:
		return walkList(t.Members, fn)
	case *EnumNode:
		for _, ev := range t.Values {
			if err := Walk(ev.Expr, fn); err != nil {
				return err
			}
		}
	case *BitfieldNode:
		for _, f := range t.Fields {
			if err := Walk(f, fn); err != nil {
				return err
			}
		}
	case *BitfieldFieldNode:
		return Walk(t.Bits, fn)
	case *FunctionDefinitionNode:
		return walkList(t.Body, fn)
	case *FunctionCallNode:
		return walkList(t.Args, fn)
	case *IfNode:
		if err := Walk(t.Cond, fn); err != nil {
			return err
		}
		if err := walkList(t.Then, fn); err != nil {
			return err
		}
		return walkList(t.Else, fn)
	case *WhileNode:
		if err := Walk(t.Cond, fn); err != nil {
			return err
		}
		return walkList(t.Body, fn)
	case *ForNode:
		if err := Walk(t.Init, fn); err != nil {
			return err
		}
		if err := Walk(t.Cond, fn); err != nil {
			return err
		}
		if err := Walk(t.Post, fn); err != nil {
			return err
		}
		return walkList(t.Body, fn)
	case *ReturnNode:
		return Walk(t.Expr, fn)
	case *NamespaceNode:
		return walkList(t.Body, fn)
	case *CompoundNode:
		return walkList(t.Body, fn)
	}
	return nil
}

func walkList(nodes []Node, fn walkFunc) error {
	for _, n := range nodes {
		if err := Walk(n, fn); err != nil {
			return err
		}
	}
	return nil
}
