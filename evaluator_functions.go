package pl

import "fmt"

// evalCall dispatches a call to either a built-in or a user-defined
// function. Built-ins run directly against the evaluator; user
// functions get a fresh scope seeded with their bound parameters
// (§4.4.6).
func (ev *evaluator) evalCall(n *FunctionCallNode) (Value, error) {
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		v, err := ev.evalExpr(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	if b, ok := builtinTable[n.Name]; ok {
		if b.Dangerous && !ev.gate.Allow(n.Name) {
			return nil, NewErrorAt(KindEvaluation, n.Pos(), fmt.Sprintf("function %q requires explicit permission", n.Name))
		}
		return b.Call(ev, n.Pos(), args)
	}

	fn, ok := ev.functions[n.Name]
	if !ok {
		return nil, NewErrorAt(KindEvaluation, n.Pos(), fmt.Sprintf("undefined function %q", n.Name))
	}
	return ev.callFunction(fn, args, n.Pos())
}

func (ev *evaluator) callFunction(fn *FunctionDefinitionNode, args []Value, line int) (Value, error) {
	ev.callDepth++
	defer func() { ev.callDepth-- }()
	if ev.cfg.RecursionLimit != 0 && ev.callDepth > ev.cfg.RecursionLimit {
		return nil, limitError(line, "recursion_limit", fmt.Sprintf("call to %q exceeded recursion limit", fn.Name))
	}
	if !fn.Variadic && len(args) != len(fn.Params) {
		return nil, NewErrorAt(KindEvaluation, line, fmt.Sprintf("%q expects %d arguments, got %d", fn.Name, len(fn.Params), len(args)))
	}

	ev.pushScope(nil)
	defer ev.popScope()
	for i, p := range fn.Params {
		if i < len(args) {
			ev.top().vars[p.Name] = args[i]
		}
	}

	f, err := ev.execBlock(fn.Body)
	if err != nil {
		return nil, err
	}
	if f == flowReturn {
		rv := ev.returnValue
		ev.returnValue = nil
		return rv, nil
	}
	return &VoidValue{}, nil
}
