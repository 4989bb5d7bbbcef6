package bytecode

import (
	"fmt"
	"strconv"
)

// ConstantTag identifies the type of a pooled constant, both in memory
// and in the serialized form.
type ConstantTag byte

const (
	TagNumber  ConstantTag = 0
	TagString  ConstantTag = 1
	TagBoolean ConstantTag = 2
	TagNil     ConstantTag = 3
)

// Constant is a compile-time value stored in a program's constant pool.
// Exactly one of the payload fields is meaningful, selected by Tag.
type Constant struct {
	Tag  ConstantTag
	Num  float64
	Str  string
	Bool bool
}

func NumberConstant(n float64) Constant  { return Constant{Tag: TagNumber, Num: n} }
func StringConstant(s string) Constant   { return Constant{Tag: TagString, Str: s} }
func BooleanConstant(b bool) Constant    { return Constant{Tag: TagBoolean, Bool: b} }
func NilConstant() Constant              { return Constant{Tag: TagNil} }

// Equal reports structural equality. The pool deduplicates on this:
// two constants that are Equal share a single pool slot.
func (c Constant) Equal(other Constant) bool {
	if c.Tag != other.Tag {
		return false
	}
	switch c.Tag {
	case TagNumber:
		return c.Num == other.Num
	case TagString:
		return c.Str == other.Str
	case TagBoolean:
		return c.Bool == other.Bool
	default:
		return true
	}
}

// key returns the dedup map key for this constant. Numbers use the
// exact bit pattern via strconv so 1 and 1.0 collapse but 1 and 2 never do.
func (c Constant) key() string {
	switch c.Tag {
	case TagNumber:
		return "n:" + strconv.FormatFloat(c.Num, 'b', -1, 64)
	case TagString:
		return "s:" + c.Str
	case TagBoolean:
		if c.Bool {
			return "b:1"
		}
		return "b:0"
	default:
		return "nil"
	}
}

// Value converts the pooled constant into a runtime value.
func (c Constant) Value() Value {
	switch c.Tag {
	case TagNumber:
		return NumberValue(c.Num)
	case TagString:
		return StringValue(c.Str)
	case TagBoolean:
		return BooleanValue(c.Bool)
	default:
		return NilValue()
	}
}

// String renders the constant for disassembly listings.
func (c Constant) String() string {
	switch c.Tag {
	case TagNumber:
		return formatNumber(c.Num)
	case TagString:
		return fmt.Sprintf("%q", c.Str)
	case TagBoolean:
		return strconv.FormatBool(c.Bool)
	default:
		return "nothing"
	}
}
