// Package fesl implements the FESL application record format: a fixed
// 12-byte header (4-byte ASCII type tag, 32-bit id, 32-bit total length)
// followed by newline-separated key=value fields and a NUL terminator.
package fesl

// Protocol framing constants. The delimiters are fixed by the wire format
// and must never change.
const (
	HeaderSize  = 12
	TypeTagSize = 4

	fieldSeparator   = '\n'
	keyValueSep      = '='
	recordTerminator = 0x00
)

// DiscriminatorKey names the field every actionable record carries. Records
// without it are unclassifiable and must be forwarded untouched.
const DiscriminatorKey = "TXN"

// Packet is one decoded FESL record. It is built fresh from each inbound
// buffer and discarded after re-serialization; never reused or persisted.
type Packet struct {
	// ID is the correlation identifier, reused verbatim when re-encoding.
	ID uint32
	// Length is the total record length as declared on the wire. Encode
	// recomputes it; it is kept here for inspection and logging only.
	Length uint32
	// Type is the 4-character category tag, e.g. "acct" or "fsys".
	Type string
	// Fields holds the record's key=value section in wire order.
	Fields *Fields
}

// TXN returns the packet's discriminator value, or "" if absent.
func (p *Packet) TXN() string {
	v, _ := p.Fields.Get(DiscriminatorKey)
	return v
}

// Fields is an insertion-ordered string-to-string mapping. The protocol is
// open-ended, so fields are kept as a generic mapping rather than named
// struct members; order matters because the format is positional text, not
// a self-describing structure.
type Fields struct {
	keys   []string
	values map[string]string
}

// NewFields returns an empty field list.
func NewFields() *Fields {
	return &Fields{values: make(map[string]string)}
}

// Get returns the value for key and whether it is present.
func (f *Fields) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Set replaces the value for an existing key in place, or appends a new
// key at the end of the field order.
func (f *Fields) Set(key, value string) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Keys returns the field names in wire order.
func (f *Fields) Keys() []string {
	return f.keys
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	return len(f.keys)
}

// Map returns a copy of the mapping, losing order. Intended for logging
// and event payloads.
func (f *Fields) Map() map[string]string {
	m := make(map[string]string, len(f.values))
	for k, v := range f.values {
		m[k] = v
	}
	return m
}
