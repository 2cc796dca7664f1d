package pl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func parseSource(t *testing.T, src string) []Node {
	t.Helper()
	toks, err := Lex(src)
	require.NoError(t, err)
	decls, err := Parse(toks)
	require.NoError(t, err)
	return decls
}

func TestParseStructWithFields(t *testing.T) {
	decls := parseSource(t, `
struct Header {
    u32 magic;
    u16 version;
};
`)
	require.Len(t, decls, 1)
	s, ok := decls[0].(*StructNode)
	require.True(t, ok)
	require.Equal(t, "Header", s.Name)
	require.Len(t, s.Members, 2)
	f0 := s.Members[0].(*VariableDeclNode)
	require.Equal(t, "magic", f0.Name)
	require.Equal(t, TypeUnsigned32, f0.Type.Builtin)
}

func TestParseStructInheritance(t *testing.T) {
	decls := parseSource(t, `
struct Base { u8 a; };
struct Derived : Base { u8 b; };
`)
	require.Len(t, decls, 2)
	derived := decls[1].(*StructNode)
	require.Equal(t, "Base", derived.Parent)
}

func TestParsePlacedVariableWithOffset(t *testing.T) {
	decls := parseSource(t, `u32 header @ 0x10;`)
	require.Len(t, decls, 1)
	v := decls[0].(*VariableDeclNode)
	require.Equal(t, "header", v.Name)
	require.NotNil(t, v.Offset)
	lit := v.Offset.(*LiteralNode)
	require.Equal(t, "16", lit.Value.(*IntegerValue).Val.String())
}

func TestParseFixedArrayDeclaration(t *testing.T) {
	decls := parseSource(t, `u8 bytes[16] @ 0;`)
	arr := decls[0].(*ArrayVariableDeclNode)
	require.Equal(t, ArrayFixed, arr.Kind)
	require.NotNil(t, arr.Size)
}

func TestParseZeroTerminatedArrayDeclaration(t *testing.T) {
	decls := parseSource(t, `u8 str[] @ 0;`)
	arr := decls[0].(*ArrayVariableDeclNode)
	require.Equal(t, ArrayZeroTerminated, arr.Kind)
}

func TestParseWhileArrayDeclaration(t *testing.T) {
	decls := parseSource(t, `u8 items[while($ < 10)] @ 0;`)
	arr := decls[0].(*ArrayVariableDeclNode)
	require.Equal(t, ArrayWhile, arr.Kind)
	require.NotNil(t, arr.Cond)
}

func TestParsePointerDeclaration(t *testing.T) {
	decls := parseSource(t, `u32 *ptr : u64 @ 0;`)
	p := decls[0].(*PointerVariableDeclNode)
	require.Equal(t, "ptr", p.Name)
	require.Equal(t, TypeUnsigned64, p.PointerSize)
	require.Equal(t, TypeUnsigned32, p.Type.Builtin)
}

func TestParseEnumWithUnderlyingType(t *testing.T) {
	decls := parseSource(t, `
enum Color : u8 {
    Red,
    Green,
    Blue = 10
};
`)
	e := decls[0].(*EnumNode)
	require.Equal(t, TypeUnsigned8, e.Underlying)
	require.Len(t, e.Values, 3)
	require.Equal(t, "Blue", e.Values[2].Name)
	require.NotNil(t, e.Values[2].Expr)
	require.Nil(t, e.Values[0].Expr)
}

func TestParseBitfieldFields(t *testing.T) {
	decls := parseSource(t, `
bitfield Flags {
    a : 1;
    b : 7;
};
`)
	bf := decls[0].(*BitfieldNode)
	require.Len(t, bf.Fields, 2)
	require.Equal(t, "a", bf.Fields[0].Name)
}

func TestParseUnionMembers(t *testing.T) {
	decls := parseSource(t, `
union U {
    u8 small;
    u32 big;
};
`)
	u := decls[0].(*UnionNode)
	require.Len(t, u.Members, 2)
}

func TestParseFunctionDefinitionWithParamsAndBody(t *testing.T) {
	decls := parseSource(t, `
fn add(u32 a, u32 b) {
    return a + b;
};
`)
	fn := decls[0].(*FunctionDefinitionNode)
	require.Equal(t, "add", fn.Name)
	require.Len(t, fn.Params, 2)
	require.Equal(t, "a", fn.Params[0].Name)
	require.Len(t, fn.Body, 1)
	_, ok := fn.Body[0].(*ReturnNode)
	require.True(t, ok)
}

func TestParseIfElseStatement(t *testing.T) {
	decls := parseSource(t, `
fn classify(u32 x) {
    if (x > 0) {
        return 1;
    } else {
        return 0;
    }
};
`)
	fn := decls[0].(*FunctionDefinitionNode)
	ifNode := fn.Body[0].(*IfNode)
	require.Len(t, ifNode.Then, 1)
	require.Len(t, ifNode.Else, 1)
}

func TestParseWhileAndForLoops(t *testing.T) {
	decls := parseSource(t, `
fn loopy() {
    u32 i;
    while (i < 10) {
        i = i + 1;
    }
    for (j = 0, j < 10, j = j + 1) {
        break;
    }
};
`)
	fn := decls[0].(*FunctionDefinitionNode)
	require.Len(t, fn.Body, 3)
	_, ok := fn.Body[1].(*WhileNode)
	require.True(t, ok)
	forNode, ok := fn.Body[2].(*ForNode)
	require.True(t, ok)
	require.NotNil(t, forNode.Init)
	require.NotNil(t, forNode.Cond)
	require.NotNil(t, forNode.Post)
}

func TestParseNamespaceWrapsDeclarations(t *testing.T) {
	decls := parseSource(t, `
namespace foo {
    struct Inner { u8 x; };
}
`)
	ns := decls[0].(*NamespaceNode)
	require.Equal(t, []string{"foo"}, ns.Path)
	require.Len(t, ns.Body, 1)
}

func TestParseUsingAlias(t *testing.T) {
	decls := parseSource(t, `using MyInt = u32;`)
	decl := decls[0].(*TypeDeclNode)
	require.Equal(t, "MyInt", decl.Name)
	require.Equal(t, TypeUnsigned32, decl.Type.Builtin)
}

func TestParseAttributes(t *testing.T) {
	decls := parseSource(t, `u32 secret @ 0 [[hidden, comment("shh")]];`)
	v := decls[0].(*VariableDeclNode)
	require.Len(t, v.Attributes, 2)
	require.Equal(t, "hidden", v.Attributes[0].Name)
	require.Equal(t, "comment", v.Attributes[1].Name)
	require.Equal(t, "shh", v.Attributes[1].Arg)
}

func TestParseBigEndianTypePrefix(t *testing.T) {
	decls := parseSource(t, `be u32 value @ 0;`)
	v := decls[0].(*VariableDeclNode)
	require.NotNil(t, v.Type.Endian)
	require.Equal(t, EndianBig, *v.Type.Endian)
}

func TestParseFunctionCallExpression(t *testing.T) {
	decls := parseSource(t, `
fn main() {
    foo(1, 2);
};
`)
	fn := decls[0].(*FunctionDefinitionNode)
	call, ok := fn.Body[0].(*FunctionCallNode)
	require.True(t, ok)
	require.Equal(t, "foo", call.Name)
	require.Len(t, call.Args, 2)
}

func TestParseRValuePathWithMemberAndIndex(t *testing.T) {
	decls := parseSource(t, `
fn main() {
    x = header.fields[2];
};
`)
	fn := decls[0].(*FunctionDefinitionNode)
	assign := fn.Body[0].(*BinaryNode)
	require.Equal(t, BinAssign, assign.Op)
	rv, ok := assign.Right.(*RValueNode)
	require.True(t, ok)
	require.Equal(t, "header", rv.Path[0].Name)
	require.Equal(t, "fields", rv.Path[1].Name)
	require.NotNil(t, rv.Path[2].Index)
}

func TestParseMalformedDeclarationReturnsParseError(t *testing.T) {
	toks, err := Lex(`struct { u32 x; };`)
	require.NoError(t, err)
	_, err = Parse(toks)
	require.Error(t, err)
	var plErr *Error
	require.ErrorAs(t, err, &plErr)
	require.Equal(t, KindParse, plErr.Kind)
}
