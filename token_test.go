package pl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenMatches(t *testing.T) {
	tests := []struct {
		name     string
		tok      Token
		pattern  Token
		expected bool
	}{
		{"identifier matches identifier pattern regardless of lexeme", tokIdent("foo", 1), patIdentifier(), true},
		{"integer matches integer pattern regardless of value", tokInt(NewInteger(42, TypeUnsigned32), 1), patInteger(), true},
		{"keyword matches same keyword", tokKeyword(KwStruct, 1), patKeyword(KwStruct), true},
		{"keyword does not match different keyword", tokKeyword(KwStruct, 1), patKeyword(KwUnion), false},
		{"operator matches same operator", tokOperator(OpPlus, 1), patOperator(OpPlus), true},
		{"operator does not match different operator", tokOperator(OpPlus, 1), patOperator(OpMinus), false},
		{"separator matches same separator", tokSeparator(SepCurlyOpen, 1), patSeparator(SepCurlyOpen), true},
		{"value type matches exact type", tokValueType(TypeUnsigned8, 1), patValueType(TypeUnsigned8), true},
		{"value type does not match different type", tokValueType(TypeUnsigned8, 1), patValueType(TypeSigned8), false},
		{"value type matches any-type wildcard", tokValueType(TypeUnsigned8, 1), patValueTypeAny(), true},
		{"different kinds never match", tokIdent("foo", 1), patInteger(), false},
		{"end of program matches itself", tokEOF(1), tokEOF(0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.tok.Matches(tt.pattern))
		})
	}
}

func TestTokenString(t *testing.T) {
	assert.Equal(t, "identifier(foo)", tokIdent("foo", 1).String())
	assert.Contains(t, tokKeyword(KwStruct, 1).String(), "keyword")
	assert.Contains(t, tokOperator(OpPlus, 1).String(), "operator")
	assert.Contains(t, tokInt(NewInteger(7, TypeUnsigned8), 1).String(), "7")
}

func TestTokenKindString(t *testing.T) {
	assert.Equal(t, "Identifier", TokIdentifier.String())
	assert.Equal(t, "Unknown", TokenKind(99).String())
}
