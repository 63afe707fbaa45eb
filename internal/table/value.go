package table

import (
	"fmt"
	"strings"
)

// TypeID enumerates column types. The executor layer only needs
// integers and strings; everything else is out of scope here.
type TypeID uint8

const (
	IntType TypeID = iota
	VarcharType
)

func (t TypeID) String() string {
	switch t {
	case IntType:
		return "int"
	case VarcharType:
		return "varchar"
	}
	return "unknown"
}

// Value is a single typed cell.
type Value struct {
	Type TypeID
	Int  int64
	Str  string
}

// IntValue wraps an int64.
func IntValue(v int64) Value { return Value{Type: IntType, Int: v} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{Type: VarcharType, Str: s} }

// BoolValue encodes a predicate result as an integer value.
func BoolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}

// AsBool interprets a value as a predicate result.
func (v Value) AsBool() bool {
	return v.Type == IntType && v.Int != 0
}

// Compare orders two values of the same type.
func (v Value) Compare(o Value) int {
	if v.Type != o.Type {
		panic(fmt.Sprintf("table: comparing %s with %s", v.Type, o.Type))
	}
	switch v.Type {
	case IntType:
		switch {
		case v.Int < o.Int:
			return -1
		case v.Int > o.Int:
			return 1
		}
		return 0
	case VarcharType:
		return strings.Compare(v.Str, o.Str)
	}
	panic("table: unknown type")
}

func (v Value) String() string {
	switch v.Type {
	case IntType:
		return fmt.Sprintf("%d", v.Int)
	case VarcharType:
		return v.Str
	}
	return "?"
}
