package rsakey

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"math/big"
	"testing"

	"github.com/avolkov-io/rsakit/der"
)

func testRSAKey(t *testing.T, bits int) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func TestParsePKCS1PrivateKey(t *testing.T) {
	key := testRSAKey(t, 1024)
	blob := x509.MarshalPKCS1PrivateKey(key)

	fields, err := ParsePKCS1PrivateKey(der.NewDecoder(blob))
	if err != nil {
		t.Fatalf("ParsePKCS1PrivateKey() error = %v", err)
	}

	checks := []struct {
		name string
		got  []byte
		want *big.Int
	}{
		{"modulus", fields.Modulus, key.N},
		{"public exponent", fields.PublicExponent, big.NewInt(int64(key.E))},
		{"private exponent", fields.PrivateExponent, key.D},
		{"prime1", fields.Prime1, key.Primes[0]},
		{"prime2", fields.Prime2, key.Primes[1]},
		{"exponent1", fields.Exponent1, key.Precomputed.Dp},
		{"exponent2", fields.Exponent2, key.Precomputed.Dq},
		{"coefficient", fields.Coefficient, key.Precomputed.Qinv},
	}
	for _, c := range checks {
		if new(big.Int).SetBytes(c.got).Cmp(c.want) != 0 {
			t.Errorf("%s does not match source key", c.name)
		}
	}
}

func TestParsePKCS1PrivateKeyVersionOne(t *testing.T) {
	b := der.NewBuilder()
	b.AddSequence(func(b *der.Builder) {
		b.AddInt(1) // multi-prime form
		for i := 0; i < 8; i++ {
			b.AddUnsignedInteger([]byte{0x05})
		}
	})
	blob, err := b.Bytes()
	if err != nil {
		t.Fatalf("build test blob: %v", err)
	}

	_, err = ParsePKCS1PrivateKey(der.NewDecoder(blob))
	if !errors.Is(err, ErrUnsupportedKeyFormat) {
		t.Errorf("error = %v, want ErrUnsupportedKeyFormat", err)
	}
}

func TestParsePKCS1PrivateKeyMissingField(t *testing.T) {
	// RSAPrivateKey with the trailing coefficient INTEGER dropped.
	b := der.NewBuilder()
	b.AddSequence(func(b *der.Builder) {
		b.AddInt(0)
		for i := 0; i < 7; i++ {
			b.AddUnsignedInteger([]byte{0x05})
		}
	})
	blob, err := b.Bytes()
	if err != nil {
		t.Fatalf("build test blob: %v", err)
	}

	_, err = ParsePKCS1PrivateKey(der.NewDecoder(blob))
	if !errors.Is(err, ErrMalformedEncoding) {
		t.Errorf("error = %v, want ErrMalformedEncoding", err)
	}
}

func TestParsePKCS1PrivateKeyTruncatedBytes(t *testing.T) {
	key := testRSAKey(t, 1024)
	blob := x509.MarshalPKCS1PrivateKey(key)

	_, err := ParsePKCS1PrivateKey(der.NewDecoder(blob[:len(blob)-10]))
	if !errors.Is(err, ErrMalformedEncoding) {
		t.Errorf("error = %v, want ErrMalformedEncoding", err)
	}
}

func TestParsePKCS1PrivateKeyNotASequence(t *testing.T) {
	b := der.NewBuilder()
	b.AddInt(42)
	blob, err := b.Bytes()
	if err != nil {
		t.Fatalf("build test blob: %v", err)
	}

	_, err = ParsePKCS1PrivateKey(der.NewDecoder(blob))
	if !errors.Is(err, ErrMalformedEncoding) {
		t.Errorf("error = %v, want ErrMalformedEncoding", err)
	}
}

func TestParsePKCS1PublicKey(t *testing.T) {
	key := testRSAKey(t, 1024)
	blob := x509.MarshalPKCS1PublicKey(&key.PublicKey)

	fields, err := ParsePKCS1PublicKey(der.NewDecoder(blob))
	if err != nil {
		t.Fatalf("ParsePKCS1PublicKey() error = %v", err)
	}
	if new(big.Int).SetBytes(fields.Modulus).Cmp(key.N) != 0 {
		t.Error("modulus does not match source key")
	}
	if new(big.Int).SetBytes(fields.PublicExponent).Int64() != int64(key.E) {
		t.Error("public exponent does not match source key")
	}
}

func TestParsePKCS1PublicKeyEmpty(t *testing.T) {
	_, err := ParsePKCS1PublicKey(der.NewDecoder(nil))
	if !errors.Is(err, ErrMalformedEncoding) {
		t.Errorf("error = %v, want ErrMalformedEncoding", err)
	}
}
