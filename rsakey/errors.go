package rsakey

import "errors"

var (
	// ErrInvalidArgument is returned for out-of-range key sizes,
	// wrong-length ciphertexts, and key bytes the provider rejects as
	// malformed or unsupported.
	ErrInvalidArgument = errors.New("rsakey: invalid argument")

	// ErrUnsupportedAlgorithm is returned when an algorithm value is
	// unknown, or recognized but unavailable on the active provider.
	ErrUnsupportedAlgorithm = errors.New("rsakey: unsupported algorithm")

	// ErrMissingKeyComponent is returned when an operation needs a half
	// of the key pair that was never populated.
	ErrMissingKeyComponent = errors.New("rsakey: missing required key component")

	// ErrMalformedEncoding is returned when a DER structure does not
	// have the expected shape.
	ErrMalformedEncoding = errors.New("rsakey: malformed DER encoding")

	// ErrUnsupportedKeyFormat is returned for structurally valid key
	// encodings that are semantically rejected, such as a non-zero
	// PKCS1 version.
	ErrUnsupportedKeyFormat = errors.New("rsakey: unsupported key format")

	// ErrBufferTooLargeForAlgorithm is returned when a plaintext
	// exceeds the maximum the key size and padding scheme allow.
	ErrBufferTooLargeForAlgorithm = errors.New("rsakey: buffer too large for algorithm")

	// ErrShortBuffer is returned when a caller-supplied output buffer
	// cannot hold the result.
	ErrShortBuffer = errors.New("rsakey: short buffer")

	// ErrSystemCallFailure is returned for opaque native provider
	// failures.
	ErrSystemCallFailure = errors.New("rsakey: provider call failed")

	// ErrSignatureValidationFailed is returned by verify when the
	// signature does not match the digest.
	ErrSignatureValidationFailed = errors.New("rsakey: signature validation failed")

	// ErrInvalidState is returned when an operation is attempted on a
	// key pair that did not fully construct.
	ErrInvalidState = errors.New("rsakey: key pair is not valid")

	// ErrProviderUnavailable is returned by the unavailable-provider
	// sentinel when no cryptographic backend was configured.
	ErrProviderUnavailable = errors.New("rsakey: no cryptographic provider available")
)
