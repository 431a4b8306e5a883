package pppoe

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Tag is a single TLV record from the payload of a PPPoE discovery packet.
//
// Tags returned by a TagIterator alias the buffer they were parsed from.
// Use Clone to retain a tag beyond the lifetime of that buffer.
type Tag struct {
	Type PPPoETagType
	Data []byte
}

// Clone returns a deep copy of the tag.
func (tag Tag) Clone() *Tag {
	data := make([]byte, len(tag.Data))
	copy(data, tag.Data)
	return &Tag{Type: tag.Type, Data: data}
}

// Len returns the encoded size of the tag, including its header.
func (tag Tag) Len() int {
	return pppoeTagMinLength + len(tag.Data)
}

// Equal reports whether two tags have the same type and payload.
func (tag Tag) Equal(other Tag) bool {
	return tag.Type == other.Type && bytes.Equal(tag.Data, other.Data)
}

// String provides a human-readable representation of Tag.
//
// For tags specified by the RFC to contain strings, a string representation
// of the tag data is rendered.  For all other tags a dump of the raw hex bytes
// is provided.
func (tag Tag) String() string {
	switch tag.Type {
	case PPPoETagTypeServiceName,
		PPPoETagTypeACName,
		PPPoETagTypeServiceNameError,
		PPPoETagTypeACSystemError,
		PPPoETagTypeGenericError:
		return fmt.Sprintf("%v: '%s'", tag.Type, string(tag.Data))
	}
	return fmt.Sprintf("%v: %#v", tag.Type, tag.Data)
}

// TagIterator walks the tags of a discovery packet payload without
// copying them.
//
// Iteration ends at the end of the payload, at an End-Of-List tag, or when
// a tag header or tag length would run past the payload.  In the last case
// Err returns an error wrapping ErrMalformedPacket; the tags yielded before
// that point remain valid.
//
//	it := NewTagIterator(payload)
//	for it.Next() {
//		tag := it.Tag()
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type TagIterator struct {
	buf    []byte
	offset int
	tag    Tag
	err    error
	done   bool
}

// NewTagIterator returns an iterator over the tags in payload.
func NewTagIterator(payload []byte) *TagIterator {
	return &TagIterator{buf: payload}
}

// Next advances to the next tag, returning false when iteration is over.
func (it *TagIterator) Next() bool {
	if it.done {
		return false
	}

	remaining := len(it.buf) - it.offset
	if remaining == 0 {
		it.done = true
		return false
	}

	if remaining < pppoeTagMinLength {
		it.fail(fmt.Errorf("%w: truncated tag header at offset %d (%d bytes remain)",
			ErrMalformedPacket, it.offset, remaining))
		return false
	}

	typ := PPPoETagType(binary.BigEndian.Uint16(it.buf[it.offset:]))
	length := int(binary.BigEndian.Uint16(it.buf[it.offset+2:]))

	if typ == PPPoETagTypeEOL {
		it.done = true
		return false
	}

	start := it.offset + pppoeTagMinLength
	if length > len(it.buf)-start {
		it.fail(fmt.Errorf("%w: %v tag length %d exceeds buffer bounds of %d",
			ErrMalformedPacket, typ, length, len(it.buf)-start))
		return false
	}

	it.tag = Tag{
		Type: typ,
		Data: it.buf[start : start+length : start+length],
	}
	it.offset = start + length
	return true
}

func (it *TagIterator) fail(err error) {
	it.err = err
	it.done = true
	it.tag = Tag{}
}

// Tag returns the tag at the current iterator position.
func (it *TagIterator) Tag() Tag {
	return it.tag
}

// Err returns the error which stopped iteration, if any.
func (it *TagIterator) Err() error {
	return it.err
}

// Reset rewinds the iterator to the first tag.
func (it *TagIterator) Reset() {
	it.offset = 0
	it.tag = Tag{}
	it.err = nil
	it.done = false
}

// FindTag returns the first tag of the given type in payload.
//
// A malformed tag list is reported as an error even if a matching tag
// preceded the malformed section.
func FindTag(payload []byte, typ PPPoETagType) (tag Tag, found bool, err error) {
	it := NewTagIterator(payload)
	for it.Next() {
		if !found && it.Tag().Type == typ {
			tag, found = it.Tag(), true
		}
	}
	if err = it.Err(); err != nil {
		return Tag{}, false, err
	}
	return
}

// TagEncoder builds the tag list for an outgoing discovery packet.
//
// The encoder never grows beyond MaxPayloadLen bytes.  An append which
// would exceed that capacity fails with ErrTagOverflow and leaves the
// encoded tags untouched.
type TagEncoder struct {
	buf []byte
}

// Len returns the number of bytes encoded so far.
func (enc *TagEncoder) Len() int {
	return len(enc.buf)
}

// Available returns the number of bytes which may still be appended.
func (enc *TagEncoder) Available() int {
	return MaxPayloadLen - len(enc.buf)
}

// Bytes returns the encoded tag list.
func (enc *TagEncoder) Bytes() []byte {
	return enc.buf
}

// Append encodes a tag with the given type and payload.
func (enc *TagEncoder) Append(typ PPPoETagType, data []byte) error {
	need := pppoeTagMinLength + len(data)
	if need > enc.Available() {
		return fmt.Errorf("%w: %v tag needs %d bytes, %d available",
			ErrTagOverflow, typ, need, enc.Available())
	}

	var hdr [pppoeTagMinLength]byte
	binary.BigEndian.PutUint16(hdr[0:], uint16(typ))
	binary.BigEndian.PutUint16(hdr[2:], uint16(len(data)))
	enc.buf = append(enc.buf, hdr[:]...)
	enc.buf = append(enc.buf, data...)
	return nil
}

// AppendTag encodes tag verbatim.
func (enc *TagEncoder) AppendTag(tag Tag) error {
	return enc.Append(tag.Type, tag.Data)
}
