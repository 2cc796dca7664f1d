package pl

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"hash/crc32"
	"io"
)

// These hashing/encoding/decompression builtins are grounded on
// `original_source/plugins/libimhex/source/helpers/crypto.cpp` and
// `plugins/decompress/source/content/pl_functions.cpp`. No library in
// the example pack addresses this narrow a concern (one-shot digest and
// stream decompression over an in-memory buffer) better than the
// standard library's own crypto/compress packages, so these stay on
// stdlib rather than reaching for an out-of-pack dependency.
func builtinCRC32(ev *evaluator, line int, args []Value) (Value, error) {
	b, err := builtinBytesArg(args, line)
	if err != nil {
		return nil, err
	}
	return NewInteger(int64(crc32.ChecksumIEEE(b)), TypeUnsigned32), nil
}

func builtinMD5(ev *evaluator, line int, args []Value) (Value, error) {
	b, err := builtinBytesArg(args, line)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(b)
	return NewString(hex.EncodeToString(sum[:])), nil
}

func builtinSHA1(ev *evaluator, line int, args []Value) (Value, error) {
	b, err := builtinBytesArg(args, line)
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(b)
	return NewString(hex.EncodeToString(sum[:])), nil
}

func builtinSHA256(ev *evaluator, line int, args []Value) (Value, error) {
	b, err := builtinBytesArg(args, line)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return NewString(hex.EncodeToString(sum[:])), nil
}

func builtinHexEncode(ev *evaluator, line int, args []Value) (Value, error) {
	b, err := builtinBytesArg(args, line)
	if err != nil {
		return nil, err
	}
	return NewString(hex.EncodeToString(b)), nil
}

func builtinBase64Encode(ev *evaluator, line int, args []Value) (Value, error) {
	b, err := builtinBytesArg(args, line)
	if err != nil {
		return nil, err
	}
	return NewString(base64.StdEncoding.EncodeToString(b)), nil
}

func builtinZlibDecompress(ev *evaluator, line int, args []Value) (Value, error) {
	b, err := builtinBytesArg(args, line)
	if err != nil {
		return nil, err
	}
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, wrapInternal(line, err, "zlib decompress")
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, wrapInternal(line, err, "zlib decompress")
	}
	return NewString(string(out)), nil
}

func builtinGzipDecompress(ev *evaluator, line int, args []Value) (Value, error) {
	b, err := builtinBytesArg(args, line)
	if err != nil {
		return nil, err
	}
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, wrapInternal(line, err, "gzip decompress")
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, wrapInternal(line, err, "gzip decompress")
	}
	return NewString(string(out)), nil
}

// builtinBytesArg accepts exactly one string argument and returns its
// raw bytes. A placed pattern or any other value is rejected; the
// bytes a pattern covers in the ByteSource are not read here.
func builtinBytesArg(args []Value, line int) ([]byte, error) {
	if len(args) != 1 {
		return nil, NewErrorAt(KindEvaluation, line, "expected exactly one argument")
	}
	switch t := args[0].(type) {
	case *StringValue:
		return []byte(t.Val), nil
	default:
		return nil, NewErrorAt(KindEvaluation, line, "expected a string argument")
	}
}
