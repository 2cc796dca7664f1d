package pl

import (
	"fmt"
)

// Builtin is one entry of the function catalog the evaluator exposes to
// pattern source, grounded in the original's `ContentRegistry::PatternLanguage`
// function table (`original_source/plugins/libimhex/source/helpers/...`,
// `plugins/libstd/source/stdlib/...`). Dangerous builtins touch the
// ByteSource's address space or the host filesystem/section store and
// are gated by PermissionGate (§4.4.6).
type Builtin struct {
	Dangerous bool
	Call      func(ev *evaluator, line int, args []Value) (Value, error)
}

var builtinTable map[string]Builtin

func init() {
	builtinTable = map[string]Builtin{
		"std::mem::read_unsigned": {Call: builtinReadUnsigned},
		"std::mem::read_signed":   {Call: builtinReadSigned},
		"std::mem::base_address":  {Call: builtinBaseAddress},
		"std::mem::size":          {Call: builtinSize},
		"std::mem::find_sequence": {Call: builtinFindSequence},
		"std::mem::align_to":      {Call: builtinAlignTo},

		"std::mem::create_section": {Dangerous: true, Call: builtinCreateSection},
		"std::mem::delete_section": {Dangerous: true, Call: builtinDeleteSection},

		"std::string::length": {Call: builtinStringLength},
		"std::string::at":     {Call: builtinStringAt},
		"std::string::substr": {Call: builtinStringSubstr},

		"std::print":       {Call: builtinPrint},
		"std::assert":      {Call: builtinAssert},
		"std::assert_warn": {Call: builtinAssertWarn},

		"std::hash::crc32":     {Call: builtinCRC32},
		"std::hash::md5":       {Call: builtinMD5},
		"std::hash::sha1":      {Call: builtinSHA1},
		"std::hash::sha256":    {Call: builtinSHA256},
		"std::encode::hex":     {Call: builtinHexEncode},
		"std::encode::base64":  {Call: builtinBase64Encode},
		"std::decompress::zlib": {Call: builtinZlibDecompress},
		"std::decompress::gzip": {Call: builtinGzipDecompress},
	}
}

func argCount(line int, name string, args []Value, want int) error {
	if len(args) != want {
		return NewErrorAt(KindEvaluation, line, fmt.Sprintf("%s expects %d arguments, got %d", name, want, len(args)))
	}
	return nil
}

func asUint(v Value, line int) (uint64, error) {
	iv, ok := v.(*IntegerValue)
	if !ok {
		return 0, NewErrorAt(KindEvaluation, line, "expected an integer argument")
	}
	return iv.Val.Uint64(), nil
}

func asString(v Value, line int) (string, error) {
	sv, ok := v.(*StringValue)
	if !ok {
		return "", NewErrorAt(KindEvaluation, line, "expected a string argument")
	}
	return sv.Val, nil
}

func builtinReadUnsigned(ev *evaluator, line int, args []Value) (Value, error) {
	if err := argCount(line, "std::mem::read_unsigned", args, 2); err != nil {
		return nil, err
	}
	offset, err := asUint(args[0], line)
	if err != nil {
		return nil, err
	}
	size, err := asUint(args[1], line)
	if err != nil {
		return nil, err
	}
	v, err := ev.readUnsigned(offset, int(size), ev.cfg.DefaultEndian)
	if err != nil {
		return nil, err
	}
	return integerFromBig(v, sizedUnsignedTag(size)), nil
}

func builtinReadSigned(ev *evaluator, line int, args []Value) (Value, error) {
	if err := argCount(line, "std::mem::read_signed", args, 2); err != nil {
		return nil, err
	}
	offset, err := asUint(args[0], line)
	if err != nil {
		return nil, err
	}
	size, err := asUint(args[1], line)
	if err != nil {
		return nil, err
	}
	v, err := ev.readUnsigned(offset, int(size), ev.cfg.DefaultEndian)
	if err != nil {
		return nil, err
	}
	tag := sizedSignedTag(size)
	return integerFromBig(v, tag), nil
}

func sizedUnsignedTag(size uint64) TypeTag {
	switch size {
	case 1:
		return TypeUnsigned8
	case 2:
		return TypeUnsigned16
	case 4:
		return TypeUnsigned32
	case 16:
		return TypeUnsigned128
	default:
		return TypeUnsigned64
	}
}

func sizedSignedTag(size uint64) TypeTag {
	switch size {
	case 1:
		return TypeSigned8
	case 2:
		return TypeSigned16
	case 4:
		return TypeSigned32
	case 16:
		return TypeSigned128
	default:
		return TypeSigned64
	}
}

func builtinBaseAddress(ev *evaluator, line int, args []Value) (Value, error) {
	if err := argCount(line, "std::mem::base_address", args, 0); err != nil {
		return nil, err
	}
	return NewInteger(int64(ev.source.BaseAddress()), TypeUnsigned64), nil
}

func builtinSize(ev *evaluator, line int, args []Value) (Value, error) {
	if err := argCount(line, "std::mem::size", args, 0); err != nil {
		return nil, err
	}
	return NewInteger(int64(ev.source.ActualSize()), TypeUnsigned64), nil
}

func builtinFindSequence(ev *evaluator, line int, args []Value) (Value, error) {
	if len(args) < 2 {
		return nil, NewErrorAt(KindEvaluation, line, "std::mem::find_sequence expects an occurrence index and at least one byte")
	}
	occurrence, err := asUint(args[0], line)
	if err != nil {
		return nil, err
	}
	needle := make([]byte, 0, len(args)-1)
	for _, a := range args[1:] {
		b, err := asUint(a, line)
		if err != nil {
			return nil, err
		}
		needle = append(needle, byte(b))
	}

	size := ev.source.ActualSize()
	base := ev.source.BaseAddress()
	found := uint64(0)
	buf := make([]byte, len(needle))
	for off := uint64(0); off+uint64(len(needle)) <= size; off++ {
		n, err := ev.source.Read(base+off, buf)
		if err != nil || n != len(buf) {
			continue
		}
		if bytesEqual(buf, needle) {
			if found == occurrence {
				return NewInteger(int64(base+off), TypeUnsigned64), nil
			}
			found++
		}
		if err := ev.checkAbort(line); err != nil {
			return nil, err
		}
	}
	return NewInteger(-1, TypeSigned64), nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func builtinAlignTo(ev *evaluator, line int, args []Value) (Value, error) {
	if err := argCount(line, "std::mem::align_to", args, 2); err != nil {
		return nil, err
	}
	alignment, err := asUint(args[0], line)
	if err != nil {
		return nil, err
	}
	value, err := asUint(args[1], line)
	if err != nil {
		return nil, err
	}
	if alignment == 0 {
		return nil, NewErrorAt(KindEvaluation, line, "alignment must be non-zero")
	}
	rem := value % alignment
	if rem == 0 {
		return NewInteger(int64(value), TypeUnsigned64), nil
	}
	return NewInteger(int64(value+alignment-rem), TypeUnsigned64), nil
}

func builtinCreateSection(ev *evaluator, line int, args []Value) (Value, error) {
	name, err := asString(args[0], line)
	if err != nil {
		return nil, err
	}
	if _, exists := ev.sections[name]; !exists {
		ev.sections[name] = []byte{}
	}
	return &VoidValue{}, nil
}

func builtinDeleteSection(ev *evaluator, line int, args []Value) (Value, error) {
	name, err := asString(args[0], line)
	if err != nil {
		return nil, err
	}
	delete(ev.sections, name)
	return &VoidValue{}, nil
}

func builtinStringLength(ev *evaluator, line int, args []Value) (Value, error) {
	if err := argCount(line, "std::string::length", args, 1); err != nil {
		return nil, err
	}
	s, err := asString(args[0], line)
	if err != nil {
		return nil, err
	}
	return NewInteger(int64(len(s)), TypeUnsigned64), nil
}

func builtinStringAt(ev *evaluator, line int, args []Value) (Value, error) {
	if err := argCount(line, "std::string::at", args, 2); err != nil {
		return nil, err
	}
	s, err := asString(args[0], line)
	if err != nil {
		return nil, err
	}
	idx, err := asUint(args[1], line)
	if err != nil {
		return nil, err
	}
	if idx >= uint64(len(s)) {
		return nil, NewErrorAt(KindEvaluation, line, "std::string::at index out of range")
	}
	return NewChar(rune(s[idx])), nil
}

func builtinStringSubstr(ev *evaluator, line int, args []Value) (Value, error) {
	if err := argCount(line, "std::string::substr", args, 3); err != nil {
		return nil, err
	}
	s, err := asString(args[0], line)
	if err != nil {
		return nil, err
	}
	start, err := asUint(args[1], line)
	if err != nil {
		return nil, err
	}
	length, err := asUint(args[2], line)
	if err != nil {
		return nil, err
	}
	if start > uint64(len(s)) {
		start = uint64(len(s))
	}
	end := start + length
	if end > uint64(len(s)) {
		end = uint64(len(s))
	}
	return NewString(s[start:end]), nil
}

func builtinPrint(ev *evaluator, line int, args []Value) (Value, error) {
	msg := ""
	for i, a := range args {
		if i > 0 {
			msg += " "
		}
		msg += a.String()
	}
	ev.logger.Log(LogInfo, msg)
	return &VoidValue{}, nil
}

func builtinAssert(ev *evaluator, line int, args []Value) (Value, error) {
	if err := argCount(line, "std::assert", args, 2); err != nil {
		return nil, err
	}
	truth, err := truthy(args[0])
	if err != nil {
		return nil, err
	}
	if !truth {
		msg, _ := asString(args[1], line)
		return nil, NewErrorAt(KindEvaluation, line, fmt.Sprintf("assertion failed: %s", msg))
	}
	return &VoidValue{}, nil
}

func builtinAssertWarn(ev *evaluator, line int, args []Value) (Value, error) {
	if err := argCount(line, "std::assert_warn", args, 2); err != nil {
		return nil, err
	}
	truth, err := truthy(args[0])
	if err != nil {
		return nil, err
	}
	if !truth {
		msg, _ := asString(args[1], line)
		ev.logger.Log(LogWarn, fmt.Sprintf("assertion warning: %s", msg))
	}
	return &VoidValue{}, nil
}

