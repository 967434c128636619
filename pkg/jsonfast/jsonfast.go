// Package jsonfast provides a small append-only JSON object builder for
// payloads with a known field set.
package jsonfast

import "strconv"

// Builder appends a single JSON object into a buffer.
// Field names and string values are escaped; raw values are not validated.
type Builder struct {
	buf    []byte
	opened bool
	first  bool
}

// New creates a new builder with initial capacity.
func New(capacity int) *Builder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Builder{
		buf:   make([]byte, 0, capacity),
		first: true,
	}
}

// Bytes returns the underlying buffer (do not modify after use).
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Clone returns a copy of the buffer that is safe to keep.
func (b *Builder) Clone() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// BeginObject starts a JSON object.
func (b *Builder) BeginObject() {
	b.buf = append(b.buf, '{')
	b.opened = true
	b.first = true
}

// EndObject ends a JSON object.
func (b *Builder) EndObject() {
	if !b.opened {
		b.BeginObject()
	}
	b.buf = append(b.buf, '}')
	b.opened = false
}

// AddStringField adds a "name":"value" field.
func (b *Builder) AddStringField(name, value string) {
	b.key(name)
	b.quote(value)
}

// AddStringFieldIfNotEmpty adds the field only when value is not empty.
func (b *Builder) AddStringFieldIfNotEmpty(name, value string) {
	if value != "" {
		b.AddStringField(name, value)
	}
}

// AddRawJSONField adds a "name":<raw json> field. An empty value is written as null.
func (b *Builder) AddRawJSONField(name string, rawJSON []byte) {
	b.key(name)
	if len(rawJSON) == 0 {
		b.buf = append(b.buf, "null"...)
		return
	}
	b.buf = append(b.buf, rawJSON...)
}

// AddInt64Field adds a "name":int64 field.
func (b *Builder) AddInt64Field(name string, v int64) {
	b.key(name)
	b.buf = strconv.AppendInt(b.buf, v, 10)
}

func (b *Builder) key(name string) {
	b.sep()
	b.quote(name)
	b.buf = append(b.buf, ':')
}

func (b *Builder) sep() {
	if !b.opened {
		b.BeginObject()
		b.first = false
		return
	}
	if b.first {
		b.first = false
		return
	}
	b.buf = append(b.buf, ',')
}

func (b *Builder) quote(s string) {
	b.buf = append(b.buf, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '"':
			b.buf = append(b.buf, '\\', c)
		case '\b':
			b.buf = append(b.buf, '\\', 'b')
		case '\f':
			b.buf = append(b.buf, '\\', 'f')
		case '\n':
			b.buf = append(b.buf, '\\', 'n')
		case '\r':
			b.buf = append(b.buf, '\\', 'r')
		case '\t':
			b.buf = append(b.buf, '\\', 't')
		default:
			if c < 0x20 {
				b.buf = append(b.buf, '\\', 'u', '0', '0', hex[c>>4], hex[c&0x0f])
			} else {
				b.buf = append(b.buf, c)
			}
		}
	}
	b.buf = append(b.buf, '"')
}

const hex = "0123456789abcdef"
