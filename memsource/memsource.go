// Package memsource is a reference pl.ByteSource backed by a plain
// byte slice, the in-memory stand-in a host embedding the evaluator
// over a file it has already read fully into memory would use. It
// exists so the evaluator's tests and the patlang CLI have a concrete
// ByteSource without pulling in a real memory-inspection backend.
package memsource

import "github.com/binlang/patlang"

// Source implements pl.ByteSource over an in-memory buffer addressed
// starting at Base.
type Source struct {
	Base uint64
	Data []byte
}

// New wraps data as a ByteSource whose addressable range starts at base.
func New(base uint64, data []byte) *Source {
	return &Source{Base: base, Data: data}
}

func (s *Source) BaseAddress() uint64 { return s.Base }
func (s *Source) ActualSize() uint64  { return uint64(len(s.Data)) }

func (s *Source) Read(offset uint64, buf []byte) (int, error) {
	if offset < s.Base {
		return 0, nil
	}
	rel := offset - s.Base
	if rel >= uint64(len(s.Data)) {
		return 0, nil
	}
	n := copy(buf, s.Data[rel:])
	return n, nil
}

func (s *Source) IsReadable(offset, size uint64) bool {
	if offset < s.Base {
		return false
	}
	rel := offset - s.Base
	return rel+size <= uint64(len(s.Data))
}

var _ pl.ByteSource = (*Source)(nil)
