package fesl

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Decode parses a raw application-data buffer into a Packet. It returns nil
// when the buffer cannot be classified: too short for a header, or carrying
// no TXN discriminator. A nil result is not an error; callers forward such
// buffers unmodified.
func Decode(buf []byte) *Packet {
	if len(buf) < HeaderSize {
		return nil
	}

	typeTag := string(buf[0:TypeTagSize])
	id := binary.BigEndian.Uint32(buf[4:8])
	length := binary.BigEndian.Uint32(buf[8:12])

	// Trust the declared length only when it frames a region inside the
	// buffer; otherwise fall back to everything after the header.
	payload := buf[HeaderSize:]
	if int64(length) >= HeaderSize && int64(length) <= int64(len(buf)) {
		payload = buf[HeaderSize:length]
	}
	payload = bytes.TrimSuffix(payload, []byte{recordTerminator})

	fields := NewFields()
	for _, line := range bytes.Split(payload, []byte{fieldSeparator}) {
		if len(line) == 0 {
			continue
		}
		key, value, ok := bytes.Cut(line, []byte{keyValueSep})
		if !ok {
			continue
		}
		fields.Set(string(key), string(value))
	}

	if txn, ok := fields.Get(DiscriminatorKey); !ok || txn == "" {
		return nil
	}

	return &Packet{
		ID:     id,
		Length: length,
		Type:   typeTag,
		Fields: fields,
	}
}

// Encode serializes a Packet back to wire bytes, preserving field order and
// recomputing the declared length from the serialized field section. The
// output is byte-for-byte what a compliant peer expects.
func Encode(p *Packet) ([]byte, error) {
	if len(p.Type) != TypeTagSize {
		return nil, fmt.Errorf("type tag %q must be exactly %d bytes", p.Type, TypeTagSize)
	}

	var payload bytes.Buffer
	for i, key := range p.Fields.Keys() {
		value, _ := p.Fields.Get(key)
		if err := validateField(key, value); err != nil {
			return nil, err
		}
		if i > 0 {
			payload.WriteByte(fieldSeparator)
		}
		payload.WriteString(key)
		payload.WriteByte(keyValueSep)
		payload.WriteString(value)
	}
	payload.WriteByte(recordTerminator)

	total := HeaderSize + payload.Len()
	out := make([]byte, HeaderSize, total)
	copy(out[0:TypeTagSize], p.Type)
	binary.BigEndian.PutUint32(out[4:8], p.ID)
	binary.BigEndian.PutUint32(out[8:12], uint32(total))
	return append(out, payload.Bytes()...), nil
}

func validateField(key, value string) error {
	if key == "" {
		return fmt.Errorf("field key must not be empty")
	}
	if bytes.ContainsAny([]byte(key), "=\n\x00") {
		return fmt.Errorf("field key %q contains delimiter bytes", key)
	}
	if bytes.ContainsAny([]byte(value), "\n\x00") {
		return fmt.Errorf("field %q value contains delimiter bytes", key)
	}
	return nil
}
