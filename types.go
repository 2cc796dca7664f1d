package pl

// TypeTag is the closed set of primitive value types (§3.2). Size and
// signedness are recoverable from the tag alone: the encoding packs the
// byte size into the high bits and a signedness/float class into the low
// bits, the same layout the original C++ `Token::ValueType` enum uses
// (`original_source/include/lang/token.hpp`), kept here as an internal
// implementation detail rather than a public requirement.
type TypeTag uint32

const (
	classUnsigned = 0x0
	classSigned   = 0x1
	classFloat    = 0x2
)

func mkTag(size int, class uint32) TypeTag {
	return TypeTag(uint32(size)<<4 | class)
}

const (
	TypeUnsigned8   TypeTag = TypeTag(1<<4 | classUnsigned)
	TypeSigned8     TypeTag = TypeTag(1<<4 | classSigned)
	TypeUnsigned16  TypeTag = TypeTag(2<<4 | classUnsigned)
	TypeSigned16    TypeTag = TypeTag(2<<4 | classSigned)
	TypeUnsigned32  TypeTag = TypeTag(4<<4 | classUnsigned)
	TypeSigned32    TypeTag = TypeTag(4<<4 | classSigned)
	TypeUnsigned64  TypeTag = TypeTag(8<<4 | classUnsigned)
	TypeSigned64    TypeTag = TypeTag(8<<4 | classSigned)
	TypeUnsigned128 TypeTag = TypeTag(16<<4 | classUnsigned)
	TypeSigned128   TypeTag = TypeTag(16<<4 | classSigned)
	TypeFloat       TypeTag = TypeTag(4<<4 | classFloat)
	TypeDouble      TypeTag = TypeTag(8<<4 | classFloat)

	// These seven don't fit the size|class scheme and are given
	// out-of-band sentinel values above any real size shift.
	TypeCharacter   TypeTag = 0xF000 + 1
	TypeCharacter16 TypeTag = 0xF000 + 2
	TypeBoolean     TypeTag = 0xF000 + 3
	TypeString      TypeTag = 0xF000 + 4
	TypePadding     TypeTag = 0xF000 + 5
	TypeCustom      TypeTag = 0xF000 + 6
	TypeAuto        TypeTag = 0xF000 + 7
)

// Size returns the byte size of the type, or 0 for types without a
// fixed size (String, CustomType, Auto, Padding-before-resolution).
func (t TypeTag) Size() int {
	switch t {
	case TypeCharacter:
		return 1
	case TypeCharacter16:
		return 2
	case TypeBoolean:
		return 1
	case TypeString, TypeCustom, TypeAuto, TypePadding:
		return 0
	default:
		return int(t >> 4)
	}
}

func (t TypeTag) IsSigned() bool {
	return t&0xF == classSigned && t < 0xF000
}

func (t TypeTag) IsUnsigned() bool {
	return t&0xF == classUnsigned && t < 0xF000 && t.Size() > 0
}

func (t TypeTag) IsFloatingPoint() bool {
	return t == TypeFloat || t == TypeDouble
}

func (t TypeTag) IsInteger() bool {
	return t.IsSigned() || t.IsUnsigned()
}

func (t TypeTag) String() string {
	switch t {
	case TypeUnsigned8:
		return "u8"
	case TypeSigned8:
		return "s8"
	case TypeUnsigned16:
		return "u16"
	case TypeSigned16:
		return "s16"
	case TypeUnsigned32:
		return "u32"
	case TypeSigned32:
		return "s32"
	case TypeUnsigned64:
		return "u64"
	case TypeSigned64:
		return "s64"
	case TypeUnsigned128:
		return "u128"
	case TypeSigned128:
		return "s128"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeCharacter:
		return "char"
	case TypeCharacter16:
		return "char16"
	case TypeBoolean:
		return "bool"
	case TypeString:
		return "str"
	case TypePadding:
		return "padding"
	case TypeCustom:
		return "<custom>"
	case TypeAuto:
		return "auto"
	default:
		return "<unknown>"
	}
}

// typeFamily names the value type families (Any|Unsigned|Signed|
// FloatingPoint|Integer) that inFamily classifies a tag into.
// Token.Matches does not consult it.
type typeFamily int

const (
	familyAny typeFamily = iota
	familyUnsigned
	familySigned
	familyFloatingPoint
	familyInteger
)

func (t TypeTag) inFamily(f typeFamily) bool {
	switch f {
	case familyAny:
		return true
	case familyUnsigned:
		return t.IsUnsigned()
	case familySigned:
		return t.IsSigned()
	case familyFloatingPoint:
		return t.IsFloatingPoint()
	case familyInteger:
		return t.IsInteger()
	default:
		return false
	}
}
