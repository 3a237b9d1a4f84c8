// Package der exposes DER-encoded structures as a flat stream of
// tag/length/value tokens. The actual TLV parsing and encoding is done
// by golang.org/x/crypto/cryptobyte; this package only provides the
// cursor and builder surface that key parsers consume.
package der

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Tag identifies the type of a DER node.
type Tag uint8

const (
	TagInteger     Tag = 0x02
	TagBitString   Tag = 0x03
	TagOctetString Tag = 0x04
	TagNull        Tag = 0x05
	TagOID         Tag = 0x06
	TagSequence    Tag = 0x30
	TagSet         Tag = 0x31
)

// constructed is the bit that marks a tag as a container node.
const constructed = 0x20

var (
	// ErrTruncated is returned when the input ends inside a node.
	ErrTruncated = errors.New("der: truncated encoding")

	// ErrBadTag is returned when a value accessor is called on a node
	// of a different type.
	ErrBadTag = errors.New("der: node has unexpected tag")
)

// TokenSource is the cursor consumed by key structure parsers. Any
// false or failed result means the input is malformed; there is no
// partial success.
type TokenSource interface {
	// Next advances to the next node. Container nodes are yielded
	// first, then their children.
	Next() bool

	// Tag reports the tag of the current node.
	Tag() Tag

	// Integer returns the raw big-endian content bytes of the current
	// INTEGER node, as a view into the input buffer.
	Integer() ([]byte, error)
}

// Decoder walks a DER buffer as a token stream. Entering a constructed
// node pushes its contents so the children are yielded on subsequent
// Next calls. Decoder never copies value bytes.
type Decoder struct {
	stack []cryptobyte.String
	tag   Tag
	value cryptobyte.String
	err   error
}

var _ TokenSource = (*Decoder)(nil)

// NewDecoder returns a Decoder positioned before the first node of buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{stack: []cryptobyte.String{cryptobyte.String(buf)}}
}

// Next advances the cursor. It returns false at end of input or on a
// malformed node; Err distinguishes the two.
func (d *Decoder) Next() bool {
	if d.err != nil {
		return false
	}

	// Drop exhausted frames from finished containers.
	for len(d.stack) > 0 && len(d.stack[len(d.stack)-1]) == 0 {
		d.stack = d.stack[:len(d.stack)-1]
	}
	if len(d.stack) == 0 {
		return false
	}

	frame := &d.stack[len(d.stack)-1]

	var body cryptobyte.String
	var tag asn1.Tag
	if !frame.ReadAnyASN1(&body, &tag) {
		d.err = ErrTruncated
		return false
	}

	d.tag = Tag(tag)
	d.value = body

	if d.tag&constructed != 0 {
		d.stack = append(d.stack, body)
	}

	return true
}

// Tag reports the tag of the current node. Only valid after a
// successful Next.
func (d *Decoder) Tag() Tag {
	return d.tag
}

// Integer returns the verbatim content bytes of the current INTEGER
// node, including any leading zero octet the encoder emitted.
func (d *Decoder) Integer() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.tag != TagInteger {
		return nil, fmt.Errorf("%w: got 0x%02x, want INTEGER", ErrBadTag, uint8(d.tag))
	}
	return d.value, nil
}

// Err reports the first malformed-encoding error encountered, or nil
// if the stream simply ended.
func (d *Decoder) Err() error {
	return d.err
}
