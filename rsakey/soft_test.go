package rsakey

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKeySizes(t *testing.T) {
	p := NewSoftwareProvider()

	for _, bits := range []int{1024, 2048} {
		kp, err := p.Generate(bits)
		require.NoError(t, err)

		require.Equal(t, bits, kp.KeySizeBits())
		require.Equal(t, bits/8, kp.BlockLength())
		require.Equal(t, bits/8, kp.SignatureLength())
		kp.Release()
	}
}

func TestGenerateRejectsInvalidSizes(t *testing.T) {
	p := NewSoftwareProvider()

	for _, bits := range []int{0, 512, 1023, 8192} {
		_, err := p.Generate(bits)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Generate(%d) error = %v, want ErrInvalidArgument", bits, err)
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	p := NewSoftwareProvider()

	kp, err := p.Generate(2048)
	require.NoError(t, err)
	defer kp.Release()

	privDER, err := kp.PrivateKeyPKCS1()
	require.NoError(t, err)
	pubDER, err := kp.PublicKeyPKCS1()
	require.NoError(t, err)

	imported, err := p.ImportPrivatePKCS1(privDER)
	require.NoError(t, err)
	defer imported.Release()

	require.Equal(t, kp.KeySizeBits(), imported.KeySizeBits())

	reExported, err := imported.PrivateKeyPKCS1()
	require.NoError(t, err)
	require.True(t, bytes.Equal(privDER, reExported), "private key changed across import")

	derivedPub, err := imported.PublicKeyPKCS1()
	require.NoError(t, err)
	require.True(t, bytes.Equal(pubDER, derivedPub), "derived public key differs from original")
}

func TestImportPrivateRejectsGarbage(t *testing.T) {
	p := NewSoftwareProvider()

	_, err := p.ImportPrivatePKCS1([]byte{0xde, 0xad, 0xbe, 0xef})
	if !errors.Is(err, ErrMalformedEncoding) {
		t.Errorf("error = %v, want ErrMalformedEncoding", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	p := NewSoftwareProvider()
	kp, err := p.Generate(2048)
	require.NoError(t, err)
	defer kp.Release()

	for _, alg := range []EncryptionAlgorithm{EncryptionPKCS1v15, EncryptionOAEPSHA256, EncryptionOAEPSHA512} {
		t.Run(alg.String(), func(t *testing.T) {
			plaintext := bytes.Repeat([]byte{0xa5}, kp.MaxPlaintextSize(alg))

			ct, err := kp.Encrypt(nil, alg, plaintext)
			require.NoError(t, err)
			require.Len(t, ct, kp.BlockLength())

			pt, err := kp.Decrypt(nil, alg, ct)
			require.NoError(t, err)
			require.Equal(t, plaintext, pt)
		})
	}
}

func TestEncryptAppendsToDst(t *testing.T) {
	p := NewSoftwareProvider()
	kp, err := p.Generate(1024)
	require.NoError(t, err)
	defer kp.Release()

	prefix := []byte("header:")
	out, err := kp.Encrypt(append([]byte(nil), prefix...), EncryptionOAEPSHA256, []byte("payload"))
	require.NoError(t, err)
	require.Len(t, out, len(prefix)+kp.BlockLength())
	require.True(t, bytes.HasPrefix(out, prefix))
}

func TestEncryptOversizedPlaintext(t *testing.T) {
	p := NewSoftwareProvider()
	kp, err := p.Generate(1024)
	require.NoError(t, err)
	defer kp.Release()

	for _, alg := range []EncryptionAlgorithm{EncryptionPKCS1v15, EncryptionOAEPSHA256} {
		tooBig := make([]byte, kp.MaxPlaintextSize(alg)+1)
		_, err := kp.Encrypt(nil, alg, tooBig)
		if !errors.Is(err, ErrBufferTooLargeForAlgorithm) {
			t.Errorf("%s: error = %v, want ErrBufferTooLargeForAlgorithm", alg, err)
		}
	}
}

func TestDecryptWrongCiphertextLength(t *testing.T) {
	p := NewSoftwareProvider()
	kp, err := p.Generate(1024)
	require.NoError(t, err)
	defer kp.Release()

	for _, n := range []int{0, kp.BlockLength() - 1, kp.BlockLength() + 1} {
		_, err := kp.Decrypt(nil, EncryptionPKCS1v15, make([]byte, n))
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Decrypt with %d bytes: error = %v, want ErrInvalidArgument", n, err)
		}
	}
}

func TestSignVerify(t *testing.T) {
	p := NewSoftwareProvider()
	kp, err := p.Generate(2048)
	require.NoError(t, err)
	defer kp.Release()

	digest := sha256.Sum256([]byte("message to sign"))

	for _, alg := range []SigningAlgorithm{SignaturePKCS1v15SHA256, SignaturePSSSHA256} {
		t.Run(alg.String(), func(t *testing.T) {
			sig, err := kp.Sign(nil, alg, digest[:])
			require.NoError(t, err)
			require.Len(t, sig, kp.SignatureLength())

			require.NoError(t, kp.Verify(alg, digest[:], sig))

			// One flipped bit must fail verification.
			sig[kp.SignatureLength()/2] ^= 0x01
			err = kp.Verify(alg, digest[:], sig)
			if !errors.Is(err, ErrSignatureValidationFailed) {
				t.Errorf("error = %v, want ErrSignatureValidationFailed", err)
			}
		})
	}
}

func TestVerifyWrongDigest(t *testing.T) {
	p := NewSoftwareProvider()
	kp, err := p.Generate(1024)
	require.NoError(t, err)
	defer kp.Release()

	digest := sha256.Sum256([]byte("original"))
	sig, err := kp.Sign(nil, SignaturePKCS1v15SHA256, digest[:])
	require.NoError(t, err)

	other := sha256.Sum256([]byte("tampered"))
	err = kp.Verify(SignaturePKCS1v15SHA256, other[:], sig)
	if !errors.Is(err, ErrSignatureValidationFailed) {
		t.Errorf("error = %v, want ErrSignatureValidationFailed", err)
	}
}

func TestPublicOnlyKeyPair(t *testing.T) {
	p := NewSoftwareProvider()
	full, err := p.Generate(2048)
	require.NoError(t, err)
	defer full.Release()

	pubDER, err := full.PublicKeyPKCS1()
	require.NoError(t, err)

	pub, err := p.ImportPublicPKCS1(pubDER)
	require.NoError(t, err)
	defer pub.Release()

	// The private half is absent, so export and private-key operations
	// fail with the component error.
	if _, err := pub.PrivateKeyPKCS1(); !errors.Is(err, ErrMissingKeyComponent) {
		t.Errorf("PrivateKeyPKCS1 error = %v, want ErrMissingKeyComponent", err)
	}

	digest := sha256.Sum256([]byte("data"))
	if _, err := pub.Sign(nil, SignaturePKCS1v15SHA256, digest[:]); !errors.Is(err, ErrMissingKeyComponent) {
		t.Errorf("Sign error = %v, want ErrMissingKeyComponent", err)
	}

	ct, err := pub.Encrypt(nil, EncryptionOAEPSHA256, []byte("secret"))
	require.NoError(t, err)
	if _, err := pub.Decrypt(nil, EncryptionOAEPSHA256, ct); !errors.Is(err, ErrMissingKeyComponent) {
		t.Errorf("Decrypt error = %v, want ErrMissingKeyComponent", err)
	}

	// Cross-pair: the public-only pair verifies and encrypts for the
	// full pair.
	sig, err := full.Sign(nil, SignaturePSSSHA256, digest[:])
	require.NoError(t, err)
	require.NoError(t, pub.Verify(SignaturePSSSHA256, digest[:], sig))

	pt, err := full.Decrypt(nil, EncryptionOAEPSHA256, ct)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), pt)
}
