package rsakey

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
)

// EncryptionAlgorithm selects the padding scheme for encrypt/decrypt.
type EncryptionAlgorithm int

const (
	EncryptionPKCS1v15 EncryptionAlgorithm = iota
	EncryptionOAEPSHA256
	EncryptionOAEPSHA512
)

func (a EncryptionAlgorithm) String() string {
	switch a {
	case EncryptionPKCS1v15:
		return "rsa-pkcs1v15"
	case EncryptionOAEPSHA256:
		return "rsa-oaep-sha256"
	case EncryptionOAEPSHA512:
		return "rsa-oaep-sha512"
	default:
		return fmt.Sprintf("rsa-encryption(%d)", int(a))
	}
}

// SigningAlgorithm selects the signature scheme for sign/verify. The
// caller supplies the digest of the message, not the message itself.
type SigningAlgorithm int

const (
	SignaturePKCS1v15SHA256 SigningAlgorithm = iota
	SignaturePSSSHA256
)

func (a SigningAlgorithm) String() string {
	switch a {
	case SignaturePKCS1v15SHA256:
		return "rsa-pkcs1v15-sha256"
	case SignaturePSSSHA256:
		return "rsa-pss-sha256"
	default:
		return fmt.Sprintf("rsa-signature(%d)", int(a))
	}
}

// Supported key size bounds in bits.
const (
	MinKeySizeBits = 1024
	MaxKeySizeBits = 4096
)

func validKeySizeBits(bits int) bool {
	return bits >= MinKeySizeBits && bits <= MaxKeySizeBits && bits%8 == 0
}

// MaxPlaintextSize returns the largest plaintext, in bytes, that a key
// of the given size can encrypt under the given padding scheme, per
// RFC 8017. Passing an unknown algorithm value is a programming error
// and panics.
func MaxPlaintextSize(keySizeBits int, alg EncryptionAlgorithm) int {
	keyBytes := keySizeBits / 8
	switch alg {
	case EncryptionPKCS1v15:
		return keyBytes - 11
	case EncryptionOAEPSHA256:
		return keyBytes - 2*sha256.Size - 2
	case EncryptionOAEPSHA512:
		return keyBytes - 2*sha512.Size - 2
	}
	panic(fmt.Sprintf("rsakey: unknown encryption algorithm %d", int(alg)))
}

// RequiredBlockSize returns the exact length, in bytes, of ciphertexts
// and signatures for a key of the given size.
func RequiredBlockSize(keySizeBits int) int {
	return keySizeBits / 8
}
