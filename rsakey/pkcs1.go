package rsakey

import (
	"fmt"

	"github.com/avolkov-io/rsakit/der"
)

// PKCS1PrivateKey holds the numeric fields of an RSAPrivateKey
// structure. Each field is the verbatim big-endian content of the
// corresponding DER INTEGER node, viewed into the source buffer.
type PKCS1PrivateKey struct {
	Version         int
	Modulus         []byte
	PublicExponent  []byte
	PrivateExponent []byte
	Prime1          []byte
	Prime2          []byte
	Exponent1       []byte
	Exponent2       []byte
	Coefficient     []byte
}

// PKCS1PublicKey holds the numeric fields of an RSAPublicKey structure.
type PKCS1PublicKey struct {
	Modulus        []byte
	PublicExponent []byte
}

// ParsePKCS1PrivateKey consumes an RSAPrivateKey structure from src:
// a SEQUENCE followed by nine INTEGER nodes in fixed order. It performs
// no semantic validation of the numeric values; that is the provider's
// job when the key is imported.
func ParsePKCS1PrivateKey(src der.TokenSource) (PKCS1PrivateKey, error) {
	var out PKCS1PrivateKey

	if !src.Next() || src.Tag() != der.TagSequence {
		return out, fmt.Errorf("%w: expected RSAPrivateKey SEQUENCE", ErrMalformedEncoding)
	}

	version, err := nextInteger(src)
	if err != nil {
		return out, err
	}
	if len(version) != 1 || version[0] != 0 {
		return out, fmt.Errorf("%w: unsupported RSAPrivateKey version", ErrUnsupportedKeyFormat)
	}
	out.Version = 0

	fields := []*[]byte{
		&out.Modulus,
		&out.PublicExponent,
		&out.PrivateExponent,
		&out.Prime1,
		&out.Prime2,
		&out.Exponent1,
		&out.Exponent2,
		&out.Coefficient,
	}
	for _, f := range fields {
		if *f, err = nextInteger(src); err != nil {
			return out, err
		}
	}

	return out, nil
}

// ParsePKCS1PublicKey consumes an RSAPublicKey structure from src: a
// SEQUENCE followed by two INTEGER nodes.
func ParsePKCS1PublicKey(src der.TokenSource) (PKCS1PublicKey, error) {
	var out PKCS1PublicKey

	if !src.Next() || src.Tag() != der.TagSequence {
		return out, fmt.Errorf("%w: expected RSAPublicKey SEQUENCE", ErrMalformedEncoding)
	}

	var err error
	if out.Modulus, err = nextInteger(src); err != nil {
		return out, err
	}
	if out.PublicExponent, err = nextInteger(src); err != nil {
		return out, err
	}

	return out, nil
}

func nextInteger(src der.TokenSource) ([]byte, error) {
	if !src.Next() {
		return nil, fmt.Errorf("%w: expected INTEGER node", ErrMalformedEncoding)
	}
	v, err := src.Integer()
	if err != nil {
		return nil, fmt.Errorf("%w: expected INTEGER node", ErrMalformedEncoding)
	}
	return v, nil
}
