package rsakey

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/avolkov-io/rsakit/der"
)

// SoftwareProvider is a Provider whose native backend is the Go
// runtime crypto stack. It keeps the same contract as hardware
// providers: the modular arithmetic, padding, and semantic key
// validation all happen inside crypto/rsa, never in this package.
type SoftwareProvider struct{}

var _ Provider = SoftwareProvider{}

// NewSoftwareProvider returns the software-backed Provider.
func NewSoftwareProvider() SoftwareProvider {
	return SoftwareProvider{}
}

// Generate creates a new random key pair of the given size.
func (SoftwareProvider) Generate(sizeBits int) (kp *KeyPair, err error) {
	defer func() { recordConstruction("generate", err) }()

	if !validKeySizeBits(sizeBits) {
		return nil, fmt.Errorf("%w: key size %d bits (want multiple of 8 in [%d, %d])",
			ErrInvalidArgument, sizeBits, MinKeySizeBits, MaxKeySizeBits)
	}

	key, err := rsa.GenerateKey(rand.Reader, sizeBits)
	if err != nil {
		return nil, fmt.Errorf("%w: key generation: %v", ErrSystemCallFailure, err)
	}

	ops := &softKeyPair{priv: key, pub: &key.PublicKey}
	kp = newKeyPair(ops)
	kp.priv = x509.MarshalPKCS1PrivateKey(key)
	kp.pub = x509.MarshalPKCS1PublicKey(&key.PublicKey)
	kp.sizeBits = key.Size() * 8 // provider-reported block size
	kp.valid = true

	slog.Debug("generated RSA key pair", "provider", "software", "bits", kp.sizeBits)
	return kp, nil
}

// ImportPrivatePKCS1 builds a key pair from a PKCS1 DER private key.
// The caller's bytes are copied into the key pair before the provider
// sees them, so a failed import still wipes them on teardown.
func (SoftwareProvider) ImportPrivatePKCS1(keyDER []byte) (kp *KeyPair, err error) {
	defer func() { recordConstruction("import_private", err) }()

	ops := &softKeyPair{}
	kp = newKeyPair(ops)
	kp.priv = append([]byte(nil), keyDER...)

	fields, err := ParsePKCS1PrivateKey(der.NewDecoder(kp.priv))
	if err != nil {
		kp.Release()
		return nil, err
	}

	key, err := privateKeyFromFields(fields)
	if err != nil {
		slog.Warn("provider rejected private key import", "provider", "software", "error", err)
		kp.Release()
		return nil, fmt.Errorf("%w: malformed or unsupported private key", ErrInvalidArgument)
	}

	ops.priv = key
	ops.pub = &key.PublicKey
	kp.pub = x509.MarshalPKCS1PublicKey(&key.PublicKey)
	kp.sizeBits = key.Size() * 8
	kp.valid = true
	return kp, nil
}

// ImportPublicPKCS1 builds a public-only key pair from a PKCS1 DER
// public key.
func (SoftwareProvider) ImportPublicPKCS1(keyDER []byte) (kp *KeyPair, err error) {
	defer func() { recordConstruction("import_public", err) }()

	ops := &softKeyPair{}
	kp = newKeyPair(ops)
	kp.pub = append([]byte(nil), keyDER...)

	fields, err := ParsePKCS1PublicKey(der.NewDecoder(kp.pub))
	if err != nil {
		kp.Release()
		return nil, err
	}

	pub, err := publicKeyFromFields(fields)
	if err != nil {
		slog.Warn("provider rejected public key import", "provider", "software", "error", err)
		kp.Release()
		return nil, fmt.Errorf("%w: malformed or unsupported public key", ErrInvalidArgument)
	}

	ops.pub = pub
	kp.sizeBits = pub.Size() * 8
	kp.valid = true
	return kp, nil
}

func privateKeyFromFields(fields PKCS1PrivateKey) (*rsa.PrivateKey, error) {
	e, err := exponentFromBytes(fields.PublicExponent)
	if err != nil {
		return nil, err
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{
			N: new(big.Int).SetBytes(fields.Modulus),
			E: e,
		},
		D: new(big.Int).SetBytes(fields.PrivateExponent),
		Primes: []*big.Int{
			new(big.Int).SetBytes(fields.Prime1),
			new(big.Int).SetBytes(fields.Prime2),
		},
	}
	key.Precompute()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return key, nil
}

func publicKeyFromFields(fields PKCS1PublicKey) (*rsa.PublicKey, error) {
	e, err := exponentFromBytes(fields.PublicExponent)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(fields.Modulus)
	if n.Sign() <= 0 {
		return nil, errors.New("zero modulus")
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}

func exponentFromBytes(raw []byte) (int, error) {
	e := new(big.Int).SetBytes(raw)
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return 0, errors.New("public exponent out of range")
	}
	return int(e.Int64()), nil
}

// softKeyPair owns the in-memory key halves for one KeyPair. Either
// half may be nil: a pair imported from a public key has no private
// half.
type softKeyPair struct {
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey
}

func (s *softKeyPair) destroy(kp *KeyPair) {
	// Drop the provider's key references; the entity wipes the DER
	// buffers after this returns.
	s.priv = nil
	s.pub = nil
}

func (s *softKeyPair) encrypt(kp *KeyPair, alg EncryptionAlgorithm, dst, plaintext []byte) ([]byte, error) {
	if s.pub == nil {
		slog.Error("key pair is missing public key required for encrypt")
		return nil, fmt.Errorf("%w: encrypt needs a public key", ErrMissingKeyComponent)
	}

	var ct []byte
	var err error
	switch alg {
	case EncryptionPKCS1v15:
		ct, err = rsa.EncryptPKCS1v15(rand.Reader, s.pub, plaintext)
	case EncryptionOAEPSHA256:
		ct, err = rsa.EncryptOAEP(sha256.New(), rand.Reader, s.pub, plaintext, nil)
	case EncryptionOAEPSHA512:
		ct, err = rsa.EncryptOAEP(sha512.New(), rand.Reader, s.pub, plaintext, nil)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt: %v", ErrSystemCallFailure, err)
	}
	return append(dst, ct...), nil
}

func (s *softKeyPair) decrypt(kp *KeyPair, alg EncryptionAlgorithm, dst, ciphertext []byte) ([]byte, error) {
	if s.priv == nil {
		slog.Error("key pair is missing private key required for decrypt")
		return nil, fmt.Errorf("%w: decrypt needs a private key", ErrMissingKeyComponent)
	}

	var pt []byte
	var err error
	switch alg {
	case EncryptionPKCS1v15:
		pt, err = rsa.DecryptPKCS1v15(rand.Reader, s.priv, ciphertext)
	case EncryptionOAEPSHA256:
		pt, err = rsa.DecryptOAEP(sha256.New(), rand.Reader, s.priv, ciphertext, nil)
	case EncryptionOAEPSHA512:
		pt, err = rsa.DecryptOAEP(sha512.New(), rand.Reader, s.priv, ciphertext, nil)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt: %v", ErrSystemCallFailure, err)
	}
	return append(dst, pt...), nil
}

func (s *softKeyPair) sign(kp *KeyPair, alg SigningAlgorithm, dst, digest []byte) ([]byte, error) {
	if s.priv == nil {
		slog.Error("key pair is missing private key required for sign")
		return nil, fmt.Errorf("%w: sign needs a private key", ErrMissingKeyComponent)
	}

	var sig []byte
	var err error
	switch alg {
	case SignaturePKCS1v15SHA256:
		sig, err = rsa.SignPKCS1v15(rand.Reader, s.priv, crypto.SHA256, digest)
	case SignaturePSSSHA256:
		sig, err = rsa.SignPSS(rand.Reader, s.priv, crypto.SHA256, digest, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %v", ErrSystemCallFailure, err)
	}
	return append(dst, sig...), nil
}

func (s *softKeyPair) verify(kp *KeyPair, alg SigningAlgorithm, digest, signature []byte) error {
	if s.pub == nil {
		slog.Error("key pair is missing public key required for verify")
		return fmt.Errorf("%w: verify needs a public key", ErrMissingKeyComponent)
	}

	var err error
	switch alg {
	case SignaturePKCS1v15SHA256:
		err = rsa.VerifyPKCS1v15(s.pub, crypto.SHA256, digest, signature)
	case SignaturePSSSHA256:
		err = rsa.VerifyPSS(s.pub, crypto.SHA256, digest, signature, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
		})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
	if err != nil {
		if errors.Is(err, rsa.ErrVerification) {
			return ErrSignatureValidationFailed
		}
		return fmt.Errorf("%w: verify: %v", ErrSystemCallFailure, err)
	}
	return nil
}
