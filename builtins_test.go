package pl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEvaluator(data []byte) *evaluator {
	return &evaluator{
		ctx:      context.Background(),
		cfg:      NewConfig(),
		source:   newTestSource(data),
		logger:   NewRecordingLogger(),
		gate:     staticGate(true),
		sections: map[string][]byte{},
	}
}

func TestBuiltinReadUnsignedAndSigned(t *testing.T) {
	ev := newTestEvaluator([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	v, err := builtinReadUnsigned(ev, 1, []Value{NewInteger(0, TypeUnsigned64), NewInteger(4, TypeUnsigned64)})
	require.NoError(t, err)
	require.Equal(t, "4294967295", v.(*IntegerValue).Val.String())

	v, err = builtinReadSigned(ev, 1, []Value{NewInteger(0, TypeUnsigned64), NewInteger(4, TypeUnsigned64)})
	require.NoError(t, err)
	require.Equal(t, "-1", v.(*IntegerValue).Val.String())
}

func TestBuiltinReadUnsignedWrongArgCount(t *testing.T) {
	ev := newTestEvaluator([]byte{0, 0})
	_, err := builtinReadUnsigned(ev, 1, []Value{NewInteger(0, TypeUnsigned64)})
	require.Error(t, err)
}

func TestBuiltinBaseAddressAndSize(t *testing.T) {
	ev := newTestEvaluator(make([]byte, 16))
	v, err := builtinBaseAddress(ev, 1, nil)
	require.NoError(t, err)
	require.Equal(t, "0", v.(*IntegerValue).Val.String())

	v, err = builtinSize(ev, 1, nil)
	require.NoError(t, err)
	require.Equal(t, "16", v.(*IntegerValue).Val.String())
}

func TestBuiltinFindSequence(t *testing.T) {
	ev := newTestEvaluator([]byte{0x10, 0xDE, 0xAD, 0xBE, 0xEF, 0x20, 0xDE, 0xAD, 0xBE, 0xEF})
	needle := []Value{
		NewInteger(1, TypeUnsigned64), // second occurrence
		NewInteger(0xDE, TypeUnsigned8), NewInteger(0xAD, TypeUnsigned8),
		NewInteger(0xBE, TypeUnsigned8), NewInteger(0xEF, TypeUnsigned8),
	}
	v, err := builtinFindSequence(ev, 1, needle)
	require.NoError(t, err)
	require.Equal(t, "6", v.(*IntegerValue).Val.String())
}

func TestBuiltinFindSequenceNotFound(t *testing.T) {
	ev := newTestEvaluator([]byte{1, 2, 3})
	v, err := builtinFindSequence(ev, 1, []Value{NewInteger(0, TypeUnsigned64), NewInteger(0xAA, TypeUnsigned8)})
	require.NoError(t, err)
	require.Equal(t, "-1", v.(*IntegerValue).Val.String())
}

func TestBuiltinAlignTo(t *testing.T) {
	ev := newTestEvaluator(nil)
	tests := []struct {
		alignment, value uint64
		want             string
	}{
		{4, 0, "0"},
		{4, 1, "4"},
		{4, 4, "4"},
		{8, 9, "16"},
	}
	for _, tt := range tests {
		v, err := builtinAlignTo(ev, 1, []Value{NewInteger(int64(tt.alignment), TypeUnsigned64), NewInteger(int64(tt.value), TypeUnsigned64)})
		require.NoError(t, err)
		require.Equal(t, tt.want, v.(*IntegerValue).Val.String())
	}
}

func TestBuiltinAlignToZeroAlignmentErrors(t *testing.T) {
	ev := newTestEvaluator(nil)
	_, err := builtinAlignTo(ev, 1, []Value{NewInteger(0, TypeUnsigned64), NewInteger(5, TypeUnsigned64)})
	require.Error(t, err)
}

func TestBuiltinCreateAndDeleteSection(t *testing.T) {
	ev := newTestEvaluator(nil)
	_, err := builtinCreateSection(ev, 1, []Value{NewString("scratch")})
	require.NoError(t, err)
	_, ok := ev.sections["scratch"]
	require.True(t, ok)

	_, err = builtinDeleteSection(ev, 1, []Value{NewString("scratch")})
	require.NoError(t, err)
	_, ok = ev.sections["scratch"]
	require.False(t, ok)
}

func TestBuiltinStringLengthAtSubstr(t *testing.T) {
	ev := newTestEvaluator(nil)

	v, err := builtinStringLength(ev, 1, []Value{NewString("hello")})
	require.NoError(t, err)
	require.Equal(t, "5", v.(*IntegerValue).Val.String())

	v, err = builtinStringAt(ev, 1, []Value{NewString("hello"), NewInteger(1, TypeUnsigned64)})
	require.NoError(t, err)
	require.Equal(t, 'e', v.(*CharValue).Val)

	v, err = builtinStringSubstr(ev, 1, []Value{NewString("hello world"), NewInteger(6, TypeUnsigned64), NewInteger(5, TypeUnsigned64)})
	require.NoError(t, err)
	require.Equal(t, "world", v.(*StringValue).Val)
}

func TestBuiltinStringAtOutOfRange(t *testing.T) {
	ev := newTestEvaluator(nil)
	_, err := builtinStringAt(ev, 1, []Value{NewString("hi"), NewInteger(5, TypeUnsigned64)})
	require.Error(t, err)
}

func TestBuiltinStringSubstrClampsToLength(t *testing.T) {
	ev := newTestEvaluator(nil)
	v, err := builtinStringSubstr(ev, 1, []Value{NewString("hi"), NewInteger(0, TypeUnsigned64), NewInteger(100, TypeUnsigned64)})
	require.NoError(t, err)
	require.Equal(t, "hi", v.(*StringValue).Val)
}

func TestBuiltinPrintLogsInfo(t *testing.T) {
	ev := newTestEvaluator(nil)
	_, err := builtinPrint(ev, 1, []Value{NewString("value:"), NewInteger(7, TypeUnsigned32)})
	require.NoError(t, err)
	rec := ev.logger.(*RecordingLogger)
	require.Len(t, rec.Entries, 1)
	require.Equal(t, LogInfo, rec.Entries[0].Level)
	require.Equal(t, "value: 7", rec.Entries[0].Message)
}

func TestBuiltinAssertPassesAndFails(t *testing.T) {
	ev := newTestEvaluator(nil)
	_, err := builtinAssert(ev, 1, []Value{NewBoolean(true), NewString("unused")})
	require.NoError(t, err)

	_, err = builtinAssert(ev, 1, []Value{NewBoolean(false), NewString("boom")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestBuiltinAssertWarnLogsWithoutFailing(t *testing.T) {
	ev := newTestEvaluator(nil)
	_, err := builtinAssertWarn(ev, 1, []Value{NewBoolean(false), NewString("careful")})
	require.NoError(t, err)
	rec := ev.logger.(*RecordingLogger)
	require.Len(t, rec.Entries, 1)
	require.Equal(t, LogWarn, rec.Entries[0].Level)
	require.Contains(t, rec.Entries[0].Message, "careful")
}

func TestBuiltinTableGatesDangerousFunctions(t *testing.T) {
	for name, want := range map[string]bool{
		"std::mem::create_section": true,
		"std::mem::delete_section": true,
		"std::mem::read_unsigned":  false,
		"std::print":               false,
	} {
		b, ok := builtinTable[name]
		require.True(t, ok, "missing builtin %q", name)
		require.Equal(t, want, b.Dangerous, "unexpected Dangerous flag for %q", name)
	}
}

func TestBuiltinHashAndEncodeFunctions(t *testing.T) {
	ev := newTestEvaluator(nil)

	v, err := builtinCRC32(ev, 1, []Value{NewString("123456789")})
	require.NoError(t, err)
	require.Equal(t, "3421780262", v.(*IntegerValue).Val.String())

	v, err = builtinMD5(ev, 1, []Value{NewString("")})
	require.NoError(t, err)
	require.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", v.(*StringValue).Val)

	v, err = builtinSHA1(ev, 1, []Value{NewString("")})
	require.NoError(t, err)
	require.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", v.(*StringValue).Val)

	v, err = builtinSHA256(ev, 1, []Value{NewString("")})
	require.NoError(t, err)
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", v.(*StringValue).Val)

	v, err = builtinHexEncode(ev, 1, []Value{NewString("AB")})
	require.NoError(t, err)
	require.Equal(t, "4142", v.(*StringValue).Val)

	v, err = builtinBase64Encode(ev, 1, []Value{NewString("hello")})
	require.NoError(t, err)
	require.Equal(t, "aGVsbG8=", v.(*StringValue).Val)
}

func TestBuiltinBytesArgRejectsNonString(t *testing.T) {
	_, err := builtinBytesArg([]Value{NewInteger(1, TypeUnsigned32)}, 1)
	require.Error(t, err)
}

func TestBuiltinZlibAndGzipRoundTrip(t *testing.T) {
	ev := newTestEvaluator(nil)

	zlibData := []byte{120, 156, 75, 76, 74, 78, 1, 0, 3, 216, 1, 139}
	v, err := builtinZlibDecompress(ev, 1, []Value{NewString(string(zlibData))})
	require.NoError(t, err)
	require.Equal(t, "abcd", v.(*StringValue).Val)

	gzipData := []byte{31, 139, 8, 0, 0, 0, 0, 0, 2, 255, 75, 76, 74, 78, 1, 0, 17, 205, 130, 237, 4, 0, 0, 0}
	v, err = builtinGzipDecompress(ev, 1, []Value{NewString(string(gzipData))})
	require.NoError(t, err)
	require.Equal(t, "abcd", v.(*StringValue).Val)

	_, err = builtinGzipDecompress(ev, 1, []Value{NewString("not gzip data")})
	require.Error(t, err)
}
