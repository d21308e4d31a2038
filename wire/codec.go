package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Encode serializes m into a single frame.
func Encode(m Message) ([]byte, error) {
	return AppendMessage(nil, m)
}

// EncodeCommand serializes args as an Array of BulkStrings.
func EncodeCommand(args ...string) ([]byte, error) {
	return Encode(Command(args...))
}

// AppendMessage appends the frame for m to buf. It enforces the same payload,
// array and nesting limits as the decoder, so anything it accepts decodes.
func AppendMessage(buf []byte, m Message) ([]byte, error) {
	return appendMessage(buf, m, 0)
}

func appendMessage(buf []byte, m Message, depth int) ([]byte, error) {
	switch m.Type {
	case TypeSimpleString, TypeError, TypeBulkString:
		if err := checkLength(len(m.Str), MaxPayload, m.Type.String()+" payload"); err != nil {
			return nil, err
		}
		buf = appendHeader(buf, m.Type, uint32(len(m.Str)))
		return append(buf, m.Str...), nil
	case TypeInteger:
		buf = appendHeader(buf, m.Type, integerSize)
		return binary.LittleEndian.AppendUint64(buf, uint64(m.Int)), nil
	case TypeNull:
		return appendHeader(buf, m.Type, 0), nil
	case TypeArray:
		if depth >= MaxDepth {
			return nil, fmt.Errorf("%w: nesting deeper than %d", ErrEncoding, MaxDepth)
		}
		if err := checkLength(len(m.Array), MaxArrayLen, "array"); err != nil {
			return nil, err
		}
		buf = appendHeader(buf, m.Type, uint32(len(m.Array)))
		var err error
		for _, e := range m.Array {
			if buf, err = appendMessage(buf, e, depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %s", ErrEncoding, m.Type)
	}
}

func appendHeader(buf []byte, t Type, n uint32) []byte {
	buf = append(buf, byte(t))
	return binary.LittleEndian.AppendUint32(buf, n)
}

// WriteMessage encodes m and writes it to w in one call.
func WriteMessage(w io.Writer, m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Decode parses exactly one frame from data. Trailing bytes are an error.
func Decode(data []byte) (Message, error) {
	src := bytes.NewReader(data)
	r := bufio.NewReader(src)
	m, err := ReadMessage(r)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Message{}, fmt.Errorf("%w: truncated frame", ErrMalformed)
		}
		return Message{}, err
	}
	if rest := r.Buffered() + src.Len(); rest > 0 {
		return Message{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, rest)
	}
	return m, nil
}

// ReadMessage reads one complete frame from r. I/O errors are returned as is so
// callers can tell a dropped connection from a malformed frame.
func ReadMessage(r *bufio.Reader) (Message, error) {
	return readMessage(r, 0)
}

func readMessage(r *bufio.Reader, depth int) (Message, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, err
	}
	t := Type(hdr[0])
	n := binary.LittleEndian.Uint32(hdr[1:])

	switch t {
	case TypeSimpleString, TypeError, TypeBulkString:
		if n > MaxPayload {
			return Message{}, fmt.Errorf("%w: %s payload of %d bytes", ErrMalformed, t, n)
		}
		// Grow with the bytes that actually arrive, not with the length field.
		var payload bytes.Buffer
		payload.Grow(int(min(n, readChunk)))
		if _, err := io.CopyN(&payload, r, int64(n)); err != nil {
			return Message{}, unexpected(err)
		}
		return Message{Type: t, Str: payload.String()}, nil
	case TypeInteger:
		if n != integerSize {
			return Message{}, fmt.Errorf("%w: integer length %d", ErrMalformed, n)
		}
		var payload [integerSize]byte
		if _, err := io.ReadFull(r, payload[:]); err != nil {
			return Message{}, unexpected(err)
		}
		return Integer(int64(binary.LittleEndian.Uint64(payload[:]))), nil
	case TypeNull:
		if n != 0 {
			return Message{}, fmt.Errorf("%w: null with length %d", ErrMalformed, n)
		}
		return Null(), nil
	case TypeArray:
		if depth >= MaxDepth {
			return Message{}, fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, MaxDepth)
		}
		if n > MaxArrayLen {
			return Message{}, fmt.Errorf("%w: array of %d elements", ErrMalformed, n)
		}
		elems := make([]Message, 0, n)
		for i := uint32(0); i < n; i++ {
			e, err := readMessage(r, depth+1)
			if err != nil {
				return Message{}, unexpected(err)
			}
			elems = append(elems, e)
		}
		return Message{Type: TypeArray, Array: elems}, nil
	default:
		return Message{}, fmt.Errorf("%w: unknown type tag 0x%02x", ErrMalformed, hdr[0])
	}
}

// unexpected turns a clean EOF in the middle of a frame into io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
