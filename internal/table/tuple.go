package table

import (
	"encoding/binary"
	"fmt"

	"relic/internal/base"
)

// Tuple is a row of values plus the record id it was read from.
type Tuple struct {
	Values []Value
	RID    base.RID
}

// NewTuple builds a tuple from values.
func NewTuple(values ...Value) *Tuple {
	return &Tuple{Values: values}
}

// Serialize encodes the tuple per schema: int64s as 8 fixed bytes,
// strings length-prefixed with 2 bytes.
func (t *Tuple) Serialize(s *Schema) ([]byte, error) {
	if len(t.Values) != len(s.Columns) {
		return nil, fmt.Errorf("table: tuple has %d values, schema has %d columns",
			len(t.Values), len(s.Columns))
	}
	var out []byte
	for i, col := range s.Columns {
		v := t.Values[i]
		if v.Type != col.Type {
			return nil, fmt.Errorf("table: column %q expects %s, got %s",
				col.Name, col.Type, v.Type)
		}
		switch col.Type {
		case IntType:
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], uint64(v.Int))
			out = append(out, buf[:]...)
		case VarcharType:
			if len(v.Str) > 0xffff {
				return nil, fmt.Errorf("table: string too long for column %q", col.Name)
			}
			var buf [2]byte
			binary.LittleEndian.PutUint16(buf[:], uint16(len(v.Str)))
			out = append(out, buf[:]...)
			out = append(out, v.Str...)
		}
	}
	return out, nil
}

// DeserializeTuple decodes data written by Serialize.
func DeserializeTuple(data []byte, s *Schema, rid base.RID) (*Tuple, error) {
	t := &Tuple{Values: make([]Value, 0, len(s.Columns)), RID: rid}
	off := 0
	for _, col := range s.Columns {
		switch col.Type {
		case IntType:
			if off+8 > len(data) {
				return nil, fmt.Errorf("table: short tuple data for column %q", col.Name)
			}
			t.Values = append(t.Values, IntValue(int64(binary.LittleEndian.Uint64(data[off:]))))
			off += 8
		case VarcharType:
			if off+2 > len(data) {
				return nil, fmt.Errorf("table: short tuple data for column %q", col.Name)
			}
			n := int(binary.LittleEndian.Uint16(data[off:]))
			off += 2
			if off+n > len(data) {
				return nil, fmt.Errorf("table: short tuple data for column %q", col.Name)
			}
			t.Values = append(t.Values, StringValue(string(data[off:off+n])))
			off += n
		}
	}
	return t, nil
}

// KeyFromTuple extracts the indexed columns into a fixed-width key.
// Integers use the order-preserving 8-byte encoding; strings are
// padded or truncated to fill the remaining width.
func (t *Tuple) KeyFromTuple(keyAttrs []int, keySize int) []byte {
	key := make([]byte, 0, keySize)
	for _, at := range keyAttrs {
		v := t.Values[at]
		switch v.Type {
		case IntType:
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], uint64(v.Int)^(1<<63))
			key = append(key, buf[:]...)
		case VarcharType:
			key = append(key, v.Str...)
		}
	}
	if len(key) > keySize {
		key = key[:keySize]
	}
	for len(key) < keySize {
		key = append(key, 0)
	}
	return key
}
