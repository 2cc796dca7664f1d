package pl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testSource is a minimal in-memory ByteSource, kept local to this test
// file so these scenarios stay independent of the memsource package.
type testSource struct {
	base uint64
	data []byte
}

func newTestSource(data []byte) *testSource { return &testSource{data: data} }

func (s *testSource) BaseAddress() uint64 { return s.base }
func (s *testSource) ActualSize() uint64  { return uint64(len(s.data)) }
func (s *testSource) Read(offset uint64, buf []byte) (int, error) {
	if offset >= uint64(len(s.data)) {
		return 0, nil
	}
	return copy(buf, s.data[offset:]), nil
}
func (s *testSource) IsReadable(offset, size uint64) bool {
	return offset+size <= uint64(len(s.data))
}

func runProgram(t *testing.T, src string, data []byte, cfg Config) (*Tree, error) {
	t.Helper()
	res, err := runProgramResult(t, src, data, cfg)
	if res == nil {
		return nil, err
	}
	return res.Tree, err
}

func runProgramResult(t *testing.T, src string, data []byte, cfg Config) (*Result, error) {
	t.Helper()
	source := newTestSource(data)
	return evalRun(context.Background(), src, source, cfg)
}

func evalRun(ctx context.Context, src string, source ByteSource, cfg Config) (*Result, error) {
	res, _, err := Run(ctx, src, nil, source, cfg, nil, staticGate(true))
	return res, err
}

func TestEvaluateStructFields(t *testing.T) {
	src := `
struct Header {
    u32 magic;
    u16 version;
    u8 flags;
};

Header header @ 0;
`
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x00, 0x07}
	tree, err := runProgram(t, src, data, NewConfig())
	require.NoError(t, err)
	require.Len(t, tree.Roots, 1)

	root := tree.Roots[0].(*StructPattern)
	require.Equal(t, "Header", root.TypeName())
	require.Len(t, root.Members, 3)

	ev := &evaluator{source: newTestSource(data)}
	magic, err := ev.readPatternValue(root.Members[0])
	require.NoError(t, err)
	require.Equal(t, "67305985", magic.(*IntegerValue).Val.String()) // 0x04030201 little-endian

	version, err := ev.readPatternValue(root.Members[1])
	require.NoError(t, err)
	require.Equal(t, "5", version.(*IntegerValue).Val.String())

	flags, err := ev.readPatternValue(root.Members[2])
	require.NoError(t, err)
	require.Equal(t, "7", flags.(*IntegerValue).Val.String())
}

func TestEvaluateBigEndian(t *testing.T) {
	src := `be u32 value @ 0;`
	data := []byte{0x00, 0x00, 0x01, 0x00}
	cfg := NewConfig()
	tree, err := runProgram(t, src, data, cfg)
	require.NoError(t, err)
	require.Len(t, tree.Roots, 1)
	ev := &evaluator{source: newTestSource(data)}
	v, err := ev.readPatternValue(tree.Roots[0])
	require.NoError(t, err)
	require.Equal(t, "256", v.(*IntegerValue).Val.String())
}

func TestEvaluateFixedArrayCollapsesToStaticArray(t *testing.T) {
	src := `u8 bytes[4] @ 0;`
	data := []byte{1, 2, 3, 4}
	tree, err := runProgram(t, src, data, NewConfig())
	require.NoError(t, err)
	require.Len(t, tree.Roots, 1)
	arr, ok := tree.Roots[0].(*StaticArrayPattern)
	require.True(t, ok, "expected fixed array of a collapsible integer type to be a StaticArrayPattern")
	require.Equal(t, uint64(4), arr.Count)
	require.Equal(t, NewRange(0, 4), arr.Range())
}

func TestEvaluateDynamicArrayOfStructsStaysPerElement(t *testing.T) {
	src := `
struct Pair {
    u8 a;
    u8 b;
};
Pair pairs[2] @ 0;
`
	data := []byte{1, 2, 3, 4}
	tree, err := runProgram(t, src, data, NewConfig())
	require.NoError(t, err)
	arr, ok := tree.Roots[0].(*DynamicArrayPattern)
	require.True(t, ok)
	require.Len(t, arr.Entries, 2)
}

func TestEvaluatePointer(t *testing.T) {
	src := `u8 *ptr : u32 @ 0;`
	data := []byte{4, 0, 0, 0, 0xAB}
	tree, err := runProgram(t, src, data, NewConfig())
	require.NoError(t, err)
	ptr, ok := tree.Roots[0].(*PointerPattern)
	require.True(t, ok)
	require.Equal(t, uint64(4), ptr.Target.Range().Start)
	ev := &evaluator{source: newTestSource(data)}
	v, err := ev.readPatternValue(ptr.Target)
	require.NoError(t, err)
	require.Equal(t, "171", v.(*IntegerValue).Val.String())
}

func TestEvaluateEnum(t *testing.T) {
	src := `
enum Color : u8 {
    Red,
    Green,
    Blue = 10
};
Color c @ 0;
`
	data := []byte{1}
	tree, err := runProgram(t, src, data, NewConfig())
	require.NoError(t, err)
	ep, ok := tree.Roots[0].(*EnumPattern)
	require.True(t, ok)
	require.Equal(t, "Green", ep.CurrentName())
}

func TestEvaluateBitfield(t *testing.T) {
	src := `
bitfield Flags {
    enabled : 1;
    mode : 3;
    reserved : 4;
};
Flags f @ 0;
`
	data := []byte{0b10110101}
	tree, err := runProgram(t, src, data, NewConfig())
	require.NoError(t, err)
	bf, ok := tree.Roots[0].(*BitfieldPattern)
	require.True(t, ok)
	require.Len(t, bf.Fields, 3)
	require.Equal(t, uint8(0), bf.Fields[0].BitOffset)
	require.Equal(t, uint8(1), bf.Fields[0].BitSize)
	require.Equal(t, uint8(1), bf.Fields[1].BitOffset)
	require.Equal(t, uint8(3), bf.Fields[1].BitSize)
}

func TestEvaluateUnionSharesOffsetTakesWidestMember(t *testing.T) {
	src := `
union U {
    u8 small;
    u32 big;
};
U u @ 0;
`
	data := []byte{1, 2, 3, 4}
	tree, err := runProgram(t, src, data, NewConfig())
	require.NoError(t, err)
	u, ok := tree.Roots[0].(*UnionPattern)
	require.True(t, ok)
	require.Len(t, u.Members, 2)
	require.Equal(t, uint64(0), u.Members[0].Range().Start)
	require.Equal(t, uint64(0), u.Members[1].Range().Start)
	require.Equal(t, uint64(4), u.Range().Len())
}

func TestEvaluateLocalVariableInFunctionIsNotPlaced(t *testing.T) {
	src := `
fn compute() {
    u32 total;
    total = 41;
    total = total + 1;
    std::assert(total == 42, "wrong total");
};
u8 dummy @ 0;
fn main() {
    compute();
};
`
	tree, err := runProgram(t, src, []byte{0}, NewConfig())
	require.NoError(t, err)
	require.Len(t, tree.Roots, 1, "the local variable inside compute() must not become a tree root")
}

func TestEvaluatePatternLimitExceeded(t *testing.T) {
	src := `
struct Pair {
    u8 a;
    u8 b;
};
Pair pairs[10] @ 0;
`
	cfg := NewConfig()
	cfg.PatternLimit = 2
	data := make([]byte, 20)
	_, err := runProgram(t, src, data, cfg)
	require.Error(t, err)
	var plErr *Error
	require.ErrorAs(t, err, &plErr)
}

func TestEvaluateArrayLimitExceeded(t *testing.T) {
	src := `u8 bytes[100] @ 0;`
	cfg := NewConfig()
	cfg.ArrayLimit = 4
	data := make([]byte, 100)
	_, err := runProgram(t, src, data, cfg)
	require.Error(t, err)
}

func TestEvaluateWhileLoopLimitExceeded(t *testing.T) {
	src := `
fn main() {
    u32 i;
    i = 0;
    while (true) {
        i = i + 1;
    }
};
`
	cfg := NewConfig()
	cfg.ArrayLimit = 5
	_, err := runProgram(t, src, []byte{0}, cfg)
	require.Error(t, err)
}

func TestEvaluateRecursionLimitOnFunctionCalls(t *testing.T) {
	src := `
fn recurse(u32 n) {
    recurse(n + 1);
};
fn main() {
    recurse(0);
};
`
	cfg := NewConfig()
	cfg.RecursionLimit = 8
	_, err := runProgram(t, src, []byte{0}, cfg)
	require.Error(t, err)
}

func TestEvaluateCancellationViaContext(t *testing.T) {
	src := `
fn main() {
    u32 i;
    i = 0;
    while (true) {
        i = i + 1;
    }
};
`
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	cfg := NewConfig()
	cfg.ArrayLimit = 0
	_, err := evalRun(ctx, src, newTestSource([]byte{0}), cfg)
	require.Error(t, err)
	var plErr *Error
	require.ErrorAs(t, err, &plErr)
	require.Equal(t, KindAborted, plErr.Kind)
}

func TestEvaluatePrintAndAssertBuiltins(t *testing.T) {
	src := `
fn main() {
    std::print("hello", 42);
    std::assert(1 == 1, "never fails");
};
`
	logger := NewRecordingLogger()
	source := newTestSource([]byte{0})
	res, _, err := Run(context.Background(), src, nil, source, NewConfig(), logger, staticGate(true))
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Len(t, logger.Entries, 1)
	require.Contains(t, logger.Entries[0].Message, "hello")
	require.Contains(t, logger.Entries[0].Message, "42")
}

func TestEvaluateAssertionFailureReportsError(t *testing.T) {
	src := `
fn main() {
    std::assert(1 == 2, "always fails");
};
`
	_, _, err := Run(context.Background(), src, nil, newTestSource([]byte{0}), NewConfig(), nil, staticGate(true))
	require.Error(t, err)
	require.Contains(t, err.Error(), "always fails")
}

func TestEvaluateDangerousBuiltinDeniedByPermissionGate(t *testing.T) {
	src := `
fn main() {
    std::mem::create_section("x");
};
`
	_, _, err := Run(context.Background(), src, nil, newTestSource([]byte{0}), NewConfig(), nil, staticGate(false))
	require.Error(t, err)
}

func TestEvaluateDangerousBuiltinAllowedByPermissionGate(t *testing.T) {
	src := `
fn main() {
    std::mem::create_section("x");
};
`
	_, _, err := Run(context.Background(), src, nil, newTestSource([]byte{0}), NewConfig(), nil, staticGate(true))
	require.NoError(t, err)
}

func TestEvaluateHighlightedRangesSkipsHiddenPatterns(t *testing.T) {
	src := `
u32 visible @ 0;
u32 secret @ 4 [[hidden]];
`
	data := make([]byte, 8)
	tree, err := runProgram(t, src, data, NewConfig())
	require.NoError(t, err)
	ranges := tree.HighlightedRanges()
	require.Len(t, ranges, 1)
	require.Equal(t, uint64(0), ranges[0].Range.Start)
}

func TestEvaluateMainResultSurfacesReturnValue(t *testing.T) {
	src := `
fn main() {
    return std::mem::read_unsigned(0, 4);
}
u32 v @ 0x00;
`
	data := []byte{0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x41, 0x42, 0x43, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}
	res, err := runProgramResult(t, src, data, NewConfig())
	require.NoError(t, err)
	require.NotNil(t, res.MainResult)
	require.Equal(t, "1", res.MainResult.(*IntegerValue).Val.String())
	require.Len(t, res.Tree.Roots, 1)
}

func TestEvaluateMainWithoutReturnLeavesMainResultNil(t *testing.T) {
	src := `
fn main() {
    std::assert(true, "unused");
}
`
	res, err := runProgramResult(t, src, []byte{0}, NewConfig())
	require.NoError(t, err)
	require.Nil(t, res.MainResult)
}

func TestEvaluateMainArgumentIsPassedWhenConfigured(t *testing.T) {
	src := `
fn main(u32 seed) {
    return seed + 1;
}
`
	cfg := NewConfig()
	cfg.MainArgument = NewInteger(41, TypeUnsigned32)
	res, err := runProgramResult(t, src, []byte{0}, cfg)
	require.NoError(t, err)
	require.NotNil(t, res.MainResult)
	require.Equal(t, "42", res.MainResult.(*IntegerValue).Val.String())
}

func TestEvaluateMainArgumentIgnoredWhenMainTakesNoParameter(t *testing.T) {
	src := `
fn main() {
    return 7;
}
`
	cfg := NewConfig()
	cfg.MainArgument = NewInteger(99, TypeUnsigned32)
	res, err := runProgramResult(t, src, []byte{0}, cfg)
	require.NoError(t, err)
	require.Equal(t, "7", res.MainResult.(*IntegerValue).Val.String())
}

func TestEvaluateShiftAtOrPastWidthIsDiagnostic(t *testing.T) {
	src := `
fn main() {
    u8 x;
    x = 1;
    x = x << 8;
}
`
	_, err := runProgramResult(t, src, []byte{0}, NewConfig())
	require.Error(t, err)
	var plErr *Error
	require.ErrorAs(t, err, &plErr)
	require.Equal(t, KindEvaluation, plErr.Kind)
}

func TestEvaluateShiftBelowWidthSucceeds(t *testing.T) {
	src := `
fn main() {
    u8 x;
    x = 1;
    x = x << 7;
    std::assert(x == 128, "unexpected shift result");
}
`
	_, err := runProgramResult(t, src, []byte{0}, NewConfig())
	require.NoError(t, err)
}

func TestEvaluateFormatAndTransformAttributes(t *testing.T) {
	src := `
fn double_it(u32 v) {
    return v * 2;
}
fn describe(u32 v) {
    if (v == 10) {
        return "doubled";
    }
    return "not-doubled";
}
u32 value @ 0 [[transform("double_it"), format("describe")]];
`
	data := []byte{5, 0, 0, 0}
	tree, err := runProgram(t, src, data, NewConfig())
	require.NoError(t, err)
	ev := &evaluator{source: newTestSource(data)}
	formatted, err := FormattedValue(tree.Roots[0], ev.readPatternValue)
	require.NoError(t, err)
	require.Equal(t, "doubled", formatted)
}

func TestEvaluateNameExportAndNoUniqueAddressAttributes(t *testing.T) {
	src := `u32 value @ 0 [[name("renamed"), export, no_unique_address]];`
	data := []byte{1, 0, 0, 0}
	tree, err := runProgram(t, src, data, NewConfig())
	require.NoError(t, err)
	c := commonPtr(tree.Roots[0])
	require.NotNil(t, c)
	require.Equal(t, "renamed", tree.Roots[0].DisplayName())
	require.True(t, tree.Roots[0].(interface{ Exported() bool }).Exported())
	require.True(t, tree.Roots[0].(interface{ NoUniqueAddress() bool }).NoUniqueAddress())
}

func TestEvaluatePointerBaseAttributeRebasesTarget(t *testing.T) {
	src := `
fn base_addr() {
    return 4;
}
u8 *ptr : u32 @ 0 [[pointer_base("base_addr")]];
`
	data := []byte{0, 0, 0, 0, 0xAB, 0xCD}
	tree, err := runProgram(t, src, data, NewConfig())
	require.NoError(t, err)
	ptr, ok := tree.Roots[0].(*PointerPattern)
	require.True(t, ok)
	require.Equal(t, uint64(4), ptr.Target.Range().Start)
}

func TestTreeLookupFindsInnermostPattern(t *testing.T) {
	src := `
struct Header {
    u32 magic;
    u16 version;
};
Header header @ 0;
`
	data := make([]byte, 6)
	tree, err := runProgram(t, src, data, NewConfig())
	require.NoError(t, err)
	found := tree.Lookup(4)
	require.NotNil(t, found)
	require.Equal(t, "version", found.DisplayName())
	require.Nil(t, tree.Lookup(100))
}
