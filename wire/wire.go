// Package wire implements the framed binary protocol spoken by the binary cache backend.
//
// Every message is a frame of the form
//
//	[type:1 byte][length:4 bytes, little-endian][payload]
//
// Strings (SimpleString, Error, BulkString) carry `length` raw bytes. Integers carry a
// length of 8 followed by a little-endian int64. Null carries a zero length and no payload.
// For an Array the length field holds the element count and the elements follow as
// complete frames. Commands are sent as an Array of BulkStrings.
//
// The little-endian length matches the reference peer server. Clients that wrote the
// length big-endian exist; they do not interoperate with this package.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Type is the one-byte tag that starts every frame.
type Type byte

const (
	TypeSimpleString Type = 0x01
	TypeError        Type = 0x02
	TypeInteger      Type = 0x03
	TypeBulkString   Type = 0x04
	TypeArray        Type = 0x05
	TypeNull         Type = 0x06
)

const (
	headerSize  = 5
	integerSize = 8

	// MaxPayload bounds a single string payload in either direction.
	MaxPayload = 512 << 20
	// MaxArrayLen bounds the element count of an array.
	MaxArrayLen = 1 << 20
	// MaxDepth bounds array nesting.
	MaxDepth = 32

	// readChunk is the initial buffer for a string payload.
	readChunk = 64 << 10
)

var (
	// ErrEncoding is returned when a message cannot be represented on the wire.
	ErrEncoding = errors.New("wire: encoding error")
	// ErrMalformed is returned when a frame cannot be decoded.
	ErrMalformed = errors.New("wire: malformed frame")
)

func (t Type) String() string {
	switch t {
	case TypeSimpleString:
		return "simple-string"
	case TypeError:
		return "error"
	case TypeInteger:
		return "integer"
	case TypeBulkString:
		return "bulk-string"
	case TypeArray:
		return "array"
	case TypeNull:
		return "null"
	default:
		return "unknown(0x" + strconv.FormatUint(uint64(t), 16) + ")"
	}
}

// Valid reports whether t is one of the six protocol tags.
func (t Type) Valid() bool {
	return t >= TypeSimpleString && t <= TypeNull
}

// Message is a decoded protocol value. Str is used by the string types, Int by
// TypeInteger and Array by TypeArray.
type Message struct {
	Type  Type
	Str   string
	Int   int64
	Array []Message
}

func SimpleString(s string) Message { return Message{Type: TypeSimpleString, Str: s} }
func Error(s string) Message        { return Message{Type: TypeError, Str: s} }
func Integer(n int64) Message       { return Message{Type: TypeInteger, Int: n} }
func BulkString(s string) Message   { return Message{Type: TypeBulkString, Str: s} }
func Null() Message                 { return Message{Type: TypeNull} }

func Array(elems ...Message) Message {
	if elems == nil {
		elems = []Message{}
	}
	return Message{Type: TypeArray, Array: elems}
}

// Command builds the Array-of-BulkStrings form used for requests.
func Command(args ...string) Message {
	elems := make([]Message, len(args))
	for i, a := range args {
		elems[i] = BulkString(a)
	}
	return Array(elems...)
}

// IsString reports whether the message carries a string payload that callers
// treat as a value (SimpleString or BulkString).
func (m Message) IsString() bool {
	return m.Type == TypeSimpleString || m.Type == TypeBulkString
}

// Equal compares two messages by value. A nil and an empty Array are equal.
func (m Message) Equal(o Message) bool {
	if m.Type != o.Type {
		return false
	}
	switch m.Type {
	case TypeSimpleString, TypeError, TypeBulkString:
		return m.Str == o.Str
	case TypeInteger:
		return m.Int == o.Int
	case TypeArray:
		if len(m.Array) != len(o.Array) {
			return false
		}
		for i := range m.Array {
			if !m.Array[i].Equal(o.Array[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (m Message) String() string {
	switch m.Type {
	case TypeSimpleString, TypeBulkString:
		return strconv.Quote(m.Str)
	case TypeError:
		return "(error) " + m.Str
	case TypeInteger:
		return "(integer) " + strconv.FormatInt(m.Int, 10)
	case TypeNull:
		return "(nil)"
	case TypeArray:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, e := range m.Array {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(e.String())
		}
		b.WriteByte(']')
		return b.String()
	default:
		return m.Type.String()
	}
}

// checkLength fails when n is negative or above limit.
func checkLength(n, limit int, what string) error {
	if n < 0 || n > limit {
		return fmt.Errorf("%w: %s length %d exceeds %d", ErrEncoding, what, n, limit)
	}
	return nil
}
