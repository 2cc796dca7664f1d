package pl

import (
	"context"
	"fmt"
	"math/big"

	"github.com/pkg/errors"
)

// flow is the control-flow signal a statement execution can produce,
// propagated up through block/if/loop/function boundaries the way the
// teacher propagates parse failures up the call stack (§4.4.6).
type flow int

const (
	flowNone flow = iota
	flowBreak
	flowContinue
	flowReturn
)

// scope is one frame of the evaluator's lexical stack: local variables
// plus, when the frame corresponds to a struct/union/bitfield currently
// being placed, the composite pattern `this`/`parent` resolve against
// (§4.4.3).
type scope struct {
	vars    map[string]Value
	pattern Pattern
}

func newScope(pattern Pattern) *scope {
	return &scope{vars: map[string]Value{}, pattern: pattern}
}

// evaluator holds everything C5 needs across a single run: the
// registries built from the first declaration pass, the live scope
// stack, and the resource/abort limits of §4.4.5-4.4.6.
type evaluator struct {
	ctx    context.Context
	cfg    Config
	source ByteSource
	logger Logger
	gate   PermissionGate

	types     map[string]Node // struct/union/enum/bitfield/using declarations, qualified name
	functions map[string]*FunctionDefinitionNode

	scopes []*scope
	tree   Tree

	patternCount uint64
	arrayDepth   uint32
	callDepth    uint32
	cursor       uint64

	sections map[string][]byte

	returnValue Value
}

// Result is what a completed evaluation produces: the pattern forest
// plus, when the program defines a `main` with a non-void return, the
// value it returned (§2, §6.3's `Result<(Vec<Pattern>, Option<Value>), Error>`).
type Result struct {
	Tree       *Tree
	MainResult Value
}

// Evaluate runs the four-stage pipeline's last stage: it walks the
// parsed declaration list, placing patterns over source and executing
// `main` if one is defined, and returns the resulting pattern tree
// together with main's return value, if any (§4.4).
func Evaluate(ctx context.Context, decls []Node, source ByteSource, cfg Config, logger Logger, gate PermissionGate) (*Result, error) {
	if logger == nil {
		logger = NopLogger{}
	}
	if gate == nil {
		gate = staticGate(cfg.DangerousFunctions == PermissionAllow)
	}
	ev := &evaluator{
		ctx:       ctx,
		cfg:       cfg,
		source:    source,
		logger:    logger,
		gate:      gate,
		types:     map[string]Node{},
		functions: map[string]*FunctionDefinitionNode{},
		sections:  map[string][]byte{},
	}
	ev.scopes = []*scope{newScope(nil)}
	if source != nil {
		ev.cursor = source.BaseAddress()
	}

	if err := ev.registerDeclarations(decls, nil); err != nil {
		return nil, err
	}

	for _, d := range decls {
		if err := ev.execTopLevel(d); err != nil {
			if _, ok := err.(*Error); !ok {
				err = wrapInternal(d.Pos(), err, "evaluate")
			}
			return nil, err
		}
	}

	res := &Result{Tree: &ev.tree}
	if fn, ok := ev.functions["main"]; ok {
		rv, err := ev.callFunction(fn, mainArgs(cfg, fn), 0)
		if err != nil {
			if _, ok := err.(*Error); !ok {
				err = wrapInternal(fn.Pos(), err, "main")
			}
			return nil, err
		}
		if _, isVoid := rv.(*VoidValue); !isVoid {
			res.MainResult = rv
		}
	}

	return res, nil
}

// mainArgs builds the argument list `main` is invoked with: empty
// unless the caller supplied a MainArgument (§6.3's `main_argument:
// Option<Value>`) and `main` actually declares a parameter to receive
// it.
func mainArgs(cfg Config, fn *FunctionDefinitionNode) []Value {
	if cfg.MainArgument == nil || len(fn.Params) == 0 {
		return nil
	}
	return []Value{cfg.MainArgument}
}

// Run is the convenience wrapper chaining all four stages (§5): it
// preprocesses, lexes, parses and evaluates in one call, the rough
// equivalent of the teacher's GrammarFromBytes/GrammarFromFile helpers
// that skip straight from source text to a usable result.
func Run(ctx context.Context, text string, resolver IncludeResolver, source ByteSource, cfg Config, logger Logger, gate PermissionGate) (*Result, map[string]string, error) {
	expanded, _, pragmas, err := Preprocess(text, resolver)
	if err != nil {
		return nil, nil, err
	}
	toks, err := Lex(expanded)
	if err != nil {
		return nil, nil, err
	}
	decls, err := Parse(toks)
	if err != nil {
		return nil, nil, err
	}
	switch pragmas["endian"] {
	case "little":
		cfg.DefaultEndian = EndianLittle
	case "big":
		cfg.DefaultEndian = EndianBig
	case "native":
		cfg.DefaultEndian = EndianNative
	}
	res, err := Evaluate(ctx, decls, source, cfg, logger, gate)
	if err != nil {
		return nil, pragmas, err
	}
	return res, pragmas, nil
}

// registerDeclarations makes a first pass over the declaration list so
// that forward references between types and functions (§4.4, a struct
// can reference a type declared later in the same file) resolve
// regardless of source order.
func (ev *evaluator) registerDeclarations(decls []Node, namespacePath []string) error {
	for _, d := range decls {
		switch t := d.(type) {
		case *NamespaceNode:
			if err := ev.registerDeclarations(t.Body, append(namespacePath, t.Path...)); err != nil {
				return err
			}
		case *StructNode:
			ev.types[qualify(namespacePath, t.Name)] = t
		case *UnionNode:
			ev.types[qualify(namespacePath, t.Name)] = t
		case *EnumNode:
			ev.types[qualify(namespacePath, t.Name)] = t
		case *BitfieldNode:
			ev.types[qualify(namespacePath, t.Name)] = t
		case *TypeDeclNode:
			ev.types[qualify(namespacePath, t.Name)] = t
		case *FunctionDefinitionNode:
			ev.functions[qualify(namespacePath, t.Name)] = t
		}
	}
	return nil
}

func qualify(path []string, name string) string {
	out := name
	for i := len(path) - 1; i >= 0; i-- {
		out = path[i] + "::" + out
	}
	return out
}

// execTopLevel places the root-level variable declarations the way the
// original interprets a pattern file: every top-level placement becomes
// a root of the pattern tree.
func (ev *evaluator) execTopLevel(d Node) error {
	switch d.(type) {
	case *VariableDeclNode, *ArrayVariableDeclNode, *PointerVariableDeclNode:
		_, err := ev.execStatement(d)
		return err
	}
	return nil
}

func (ev *evaluator) pushScope(pattern Pattern) { ev.scopes = append(ev.scopes, newScope(pattern)) }
func (ev *evaluator) popScope()                 { ev.scopes = ev.scopes[:len(ev.scopes)-1] }
func (ev *evaluator) top() *scope                { return ev.scopes[len(ev.scopes)-1] }

func (ev *evaluator) checkAbort(line int) error {
	if isAborted(ev.ctx) {
		return NewErrorAt(KindAborted, line, "evaluation aborted")
	}
	return nil
}

func (ev *evaluator) countPattern(line int) error {
	ev.patternCount++
	if ev.cfg.PatternLimit != 0 && ev.patternCount > ev.cfg.PatternLimit {
		return limitError(line, "pattern_limit", "too many patterns created")
	}
	return ev.checkAbort(line)
}

func (ev *evaluator) addRoot(p Pattern) { ev.tree.Roots = append(ev.tree.Roots, p) }

func (ev *evaluator) internalError(line int, err error, what string) error {
	return wrapInternal(line, errors.Wrap(err, what), what)
}

func endianOf(t TypeRef, cfg Config) Endian {
	if t.Endian != nil {
		return *t.Endian
	}
	return cfg.DefaultEndian
}

func (ev *evaluator) resolveType(ref TypeRef) (Node, TypeRef, error) {
	if !ref.IsCustom() {
		return nil, ref, nil
	}
	name := ref.Name
	if n, ok := ev.types[name]; ok {
		if td, ok := n.(*TypeDeclNode); ok {
			return ev.resolveType(td.Type)
		}
		return n, ref, nil
	}
	return nil, ref, fmt.Errorf("unknown type %q", name)
}

// integerFromBig builds a runtime IntegerValue already truncated to t.
func integerFromBig(v *big.Int, t TypeTag) *IntegerValue {
	iv := NewIntegerBig(new(big.Int).Set(v), t)
	iv.Truncate()
	return iv
}
