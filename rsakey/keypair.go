// Package rsakey presents one uniform RSA key-pair object and
// operation set while delegating the modular arithmetic to a native
// cryptographic provider behind an opaque handle.
package rsakey

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/avolkov-io/rsakit/internal/metrics"
)

// KeyPair is a reference-counted RSA key pair bound to one native
// provider backend. Once constructed it is immutable: the key size,
// the stored PKCS1 encodings, and the backend binding never change,
// so concurrent Encrypt/Decrypt/Sign/Verify calls on one valid KeyPair
// need no external locking. Construction and teardown are not safe
// against in-flight operations; callers must not release the last
// reference while an operation is running.
type KeyPair struct {
	refs atomic.Int64

	sizeBits int
	pub      []byte // PKCS1 DER, empty if the half is absent
	priv     []byte // PKCS1 DER, empty if the half is absent
	ops      backendOps
	valid    bool
}

// newKeyPair returns a key pair shell holding one reference. Backends
// fill in key material and mark it valid; a shell that fails to finish
// construction is torn down through the normal Release path so its
// handles and any copied key bytes are wiped.
func newKeyPair(ops backendOps) *KeyPair {
	kp := &KeyPair{ops: ops}
	kp.refs.Store(1)
	return kp
}

// Acquire increments the reference count and returns the same key pair.
func (kp *KeyPair) Acquire() *KeyPair {
	kp.refs.Add(1)
	return kp
}

// Release decrements the reference count. When it reaches zero the
// backend handle is destroyed and both key buffers are zero-filled,
// in that order. Teardown never fails as a whole: the buffers are
// wiped even if the backend reported a problem destroying its handles.
func (kp *KeyPair) Release() {
	if kp == nil {
		return
	}
	if kp.refs.Add(-1) > 0 {
		return
	}

	if kp.ops != nil {
		kp.ops.destroy(kp)
	}
	wipe(kp.priv)
	wipe(kp.pub)
	kp.priv = nil
	kp.pub = nil
	kp.valid = false
}

// KeySizeBits reports the key size in bits.
func (kp *KeyPair) KeySizeBits() int {
	return kp.sizeBits
}

// BlockLength reports the key size in bytes: the exact length of every
// ciphertext and signature this key produces.
func (kp *KeyPair) BlockLength() int {
	return RequiredBlockSize(kp.sizeBits)
}

// SignatureLength reports the length of signatures this key produces.
func (kp *KeyPair) SignatureLength() int {
	return RequiredBlockSize(kp.sizeBits)
}

// MaxPlaintextSize reports the largest plaintext this key can encrypt
// under the given padding scheme.
func (kp *KeyPair) MaxPlaintextSize(alg EncryptionAlgorithm) int {
	return MaxPlaintextSize(kp.sizeBits, alg)
}

// PublicKeyPKCS1 returns a read-only view of the stored PKCS1 DER
// public key. The view is wiped when the last reference is released;
// callers must not modify or retain it past their reference.
func (kp *KeyPair) PublicKeyPKCS1() ([]byte, error) {
	if !kp.valid {
		return nil, ErrInvalidState
	}
	if len(kp.pub) == 0 {
		return nil, fmt.Errorf("%w: public key not populated", ErrMissingKeyComponent)
	}
	return kp.pub, nil
}

// PrivateKeyPKCS1 returns a read-only view of the stored PKCS1 DER
// private key, under the same rules as PublicKeyPKCS1.
func (kp *KeyPair) PrivateKeyPKCS1() ([]byte, error) {
	if !kp.valid {
		return nil, ErrInvalidState
	}
	if len(kp.priv) == 0 {
		return nil, fmt.Errorf("%w: private key not populated", ErrMissingKeyComponent)
	}
	return kp.priv, nil
}

// PublicKeyTo copies the PKCS1 DER public key into dst and reports the
// number of bytes written. It fails with ErrShortBuffer if dst cannot
// hold the encoding.
func (kp *KeyPair) PublicKeyTo(dst []byte) (int, error) {
	src, err := kp.PublicKeyPKCS1()
	if err != nil {
		return 0, err
	}
	if len(dst) < len(src) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, len(src), len(dst))
	}
	return copy(dst, src), nil
}

// PrivateKeyTo copies the PKCS1 DER private key into dst, under the
// same rules as PublicKeyTo.
func (kp *KeyPair) PrivateKeyTo(dst []byte) (int, error) {
	src, err := kp.PrivateKeyPKCS1()
	if err != nil {
		return 0, err
	}
	if len(dst) < len(src) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, len(src), len(dst))
	}
	return copy(dst, src), nil
}

// Encrypt encrypts plaintext with the public key under alg, appends
// the ciphertext to dst, and returns the extended slice. The plaintext
// must not exceed MaxPlaintextSize for this key and algorithm.
func (kp *KeyPair) Encrypt(dst []byte, alg EncryptionAlgorithm, plaintext []byte) ([]byte, error) {
	if !kp.valid {
		return nil, ErrInvalidState
	}
	if len(plaintext) > MaxPlaintextSize(kp.sizeBits, alg) {
		metrics.RecordOperation("encrypt", "rejected")
		return nil, fmt.Errorf("%w: plaintext %d bytes exceeds maximum for %s", ErrBufferTooLargeForAlgorithm, len(plaintext), alg)
	}

	start := time.Now()
	out, err := kp.ops.encrypt(kp, alg, dst, plaintext)
	observeOp("encrypt", start, err)
	return out, err
}

// Decrypt decrypts ciphertext with the private key under alg, appends
// the plaintext to dst, and returns the extended slice. The ciphertext
// length must equal BlockLength exactly; a mismatch is rejected before
// the provider is invoked.
func (kp *KeyPair) Decrypt(dst []byte, alg EncryptionAlgorithm, ciphertext []byte) ([]byte, error) {
	if !kp.valid {
		return nil, ErrInvalidState
	}
	if len(ciphertext) != RequiredBlockSize(kp.sizeBits) {
		metrics.RecordOperation("decrypt", "rejected")
		return nil, fmt.Errorf("%w: ciphertext is %d bytes, want block size %d", ErrInvalidArgument, len(ciphertext), RequiredBlockSize(kp.sizeBits))
	}

	start := time.Now()
	out, err := kp.ops.decrypt(kp, alg, dst, ciphertext)
	observeOp("decrypt", start, err)
	return out, err
}

// Sign signs digest with the private key under alg, appends the
// signature to dst, and returns the extended slice. The digest length
// is implied by the signing algorithm's hash and is validated by the
// backend, not here.
func (kp *KeyPair) Sign(dst []byte, alg SigningAlgorithm, digest []byte) ([]byte, error) {
	if !kp.valid {
		return nil, ErrInvalidState
	}

	start := time.Now()
	out, err := kp.ops.sign(kp, alg, dst, digest)
	observeOp("sign", start, err)
	return out, err
}

// Verify checks signature against digest with the public key under
// alg. A mismatch is reported as ErrSignatureValidationFailed; nil
// means the signature is valid.
func (kp *KeyPair) Verify(alg SigningAlgorithm, digest, signature []byte) error {
	if !kp.valid {
		return ErrInvalidState
	}

	start := time.Now()
	err := kp.ops.verify(kp, alg, digest, signature)
	observeOp("verify", start, err)
	return err
}

func observeOp(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordOperation(op, status)
	metrics.ObserveOperationDuration(op, time.Since(start).Seconds())
}

func recordConstruction(origin string, err error) {
	if err != nil {
		metrics.RecordConstruction(origin, "error")
		slog.Debug("key pair construction failed", "origin", origin, "error", err)
		return
	}
	metrics.RecordConstruction(origin, "ok")
}

// wipe overwrites b with zeros. Private key bytes go through here
// before their buffer is dropped.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
