package rsakey

import "fmt"

// backendOps is the operation set every native provider implements.
// Exactly one implementation is bound to a KeyPair at construction and
// used for its whole lifetime.
//
// Every operation checks that the key half it needs is present and
// that the provider supports the operation/algorithm pair, independent
// of provider-level checks. Encrypt, decrypt, and sign append their
// result to dst and return the extended slice.
type backendOps interface {
	destroy(kp *KeyPair)
	encrypt(kp *KeyPair, alg EncryptionAlgorithm, dst, plaintext []byte) ([]byte, error)
	decrypt(kp *KeyPair, alg EncryptionAlgorithm, dst, ciphertext []byte) ([]byte, error)
	sign(kp *KeyPair, alg SigningAlgorithm, dst, digest []byte) ([]byte, error)
	verify(kp *KeyPair, alg SigningAlgorithm, digest, signature []byte) error
}

// Provider constructs key pairs. A concrete provider is selected at
// startup; there is no backend switching on a live key pair.
type Provider interface {
	// Generate creates a new random key pair of the given size. The
	// size must be a multiple of 8 within the supported bounds.
	Generate(sizeBits int) (*KeyPair, error)

	// ImportPrivatePKCS1 builds a key pair from a PKCS1 DER encoding
	// of an RSA private key. The public half is derived from the
	// private key when the provider allows it.
	ImportPrivatePKCS1(keyDER []byte) (*KeyPair, error)

	// ImportPublicPKCS1 builds a public-only key pair from a PKCS1 DER
	// encoding of an RSA public key.
	ImportPublicPKCS1(keyDER []byte) (*KeyPair, error)
}

// UnavailableProvider returns a Provider sentinel whose constructors
// all fail fast with ErrProviderUnavailable. It stands in when no
// cryptographic backend is configured, so misconfiguration surfaces as
// a clear error instead of a crash deep inside an operation.
func UnavailableProvider(reason string) Provider {
	return unavailableProvider{reason: reason}
}

type unavailableProvider struct {
	reason string
}

func (p unavailableProvider) Generate(int) (*KeyPair, error) {
	return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, p.reason)
}

func (p unavailableProvider) ImportPrivatePKCS1([]byte) (*KeyPair, error) {
	return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, p.reason)
}

func (p unavailableProvider) ImportPublicPKCS1([]byte) (*KeyPair, error) {
	return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, p.reason)
}
