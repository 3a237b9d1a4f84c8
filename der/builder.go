package der

import (
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Builder assembles DER structures. It is a thin layer over
// cryptobyte.Builder that knows how to emit unsigned INTEGER nodes from
// raw big-endian component bytes, which is the form cryptographic
// providers hand back key material in.
type Builder struct {
	b *cryptobyte.Builder
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{b: &cryptobyte.Builder{}}
}

// AddSequence emits a SEQUENCE node whose contents are produced by f.
func (b *Builder) AddSequence(f func(*Builder)) {
	b.b.AddASN1(asn1.SEQUENCE, func(child *cryptobyte.Builder) {
		f(&Builder{b: child})
	})
}

// AddInt emits a small non-negative INTEGER node.
func (b *Builder) AddInt(v int64) {
	b.b.AddASN1Int64(v)
}

// AddUnsignedInteger emits an INTEGER node for a raw big-endian
// unsigned value. Leading zero octets are trimmed and a zero octet is
// prepended when the top bit is set, per DER's minimal two's-complement
// form.
func (b *Builder) AddUnsignedInteger(raw []byte) {
	for len(raw) > 1 && raw[0] == 0 {
		raw = raw[1:]
	}
	b.b.AddASN1(asn1.INTEGER, func(child *cryptobyte.Builder) {
		if len(raw) == 0 {
			child.AddUint8(0)
			return
		}
		if raw[0]&0x80 != 0 {
			child.AddUint8(0)
		}
		child.AddBytes(raw)
	})
}

// Bytes returns the encoded output, or an error if any node could not
// be serialized.
func (b *Builder) Bytes() ([]byte, error) {
	return b.b.Bytes()
}
