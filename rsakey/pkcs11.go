package rsakey

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/miekg/pkcs11"

	"github.com/avolkov-io/rsakit/der"
	"github.com/avolkov-io/rsakit/internal/metrics"
)

// PKCS11Provider is the reference native backend: an adapter over a
// PKCS#11 token. Key material lives behind opaque object handles owned
// by the token; this adapter only translates the operation set into
// provider calls and keeps the allocate/use/release discipline on
// every path.
type PKCS11Provider struct {
	mod     *pkcs11.Ctx
	slot    uint
	session pkcs11.SessionHandle

	// PKCS#11 Init/operation call pairs are stateful per session, so
	// everything that touches the session is serialized.
	mu sync.Mutex
}

var _ Provider = (*PKCS11Provider)(nil)

// NewPKCS11Provider loads the PKCS#11 module at modulePath, opens a
// session on the token with the given label, and logs in with pin.
func NewPKCS11Provider(modulePath, tokenLabel, pin string) (*PKCS11Provider, error) {
	mod := pkcs11.New(modulePath)
	if mod == nil {
		return nil, fmt.Errorf("%w: cannot load PKCS#11 module %q", ErrProviderUnavailable, modulePath)
	}

	if err := mod.Initialize(); err != nil {
		mod.Destroy()
		return nil, fmt.Errorf("%w: initialize PKCS#11 module: %v", ErrSystemCallFailure, err)
	}

	slot, err := findSlotByLabel(mod, tokenLabel)
	if err != nil {
		mod.Finalize()
		mod.Destroy()
		return nil, err
	}

	session, err := mod.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		mod.Finalize()
		mod.Destroy()
		return nil, fmt.Errorf("%w: open session: %v", ErrSystemCallFailure, err)
	}

	if err := mod.Login(session, pkcs11.CKU_USER, pin); err != nil {
		// A shared module may already hold a login for this token.
		if !errors.Is(err, pkcs11.Error(pkcs11.CKR_USER_ALREADY_LOGGED_IN)) {
			mod.CloseSession(session)
			mod.Finalize()
			mod.Destroy()
			return nil, fmt.Errorf("%w: login: %v", ErrSystemCallFailure, err)
		}
	}

	slog.Info("PKCS#11 provider ready", "module", modulePath, "token", tokenLabel)
	return &PKCS11Provider{mod: mod, slot: slot, session: session}, nil
}

// Close logs out and releases the module. Key pairs constructed from
// this provider must be released first.
func (p *PKCS11Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mod == nil {
		return nil
	}
	p.mod.Logout(p.session)
	err := p.mod.CloseSession(p.session)
	p.mod.Finalize()
	p.mod.Destroy()
	p.mod = nil
	if err != nil {
		return fmt.Errorf("%w: close session: %v", ErrSystemCallFailure, err)
	}
	return nil
}

func findSlotByLabel(mod *pkcs11.Ctx, label string) (uint, error) {
	slots, err := mod.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("%w: slot list: %v", ErrSystemCallFailure, err)
	}
	for _, slot := range slots {
		info, err := mod.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if info.Label == label {
			return slot, nil
		}
	}
	return 0, fmt.Errorf("%w: token %q not found", ErrInvalidArgument, label)
}

// Generate creates a key pair on the token and exports both halves to
// PKCS1 DER. Any step failing destroys every handle created so far
// through the normal teardown path.
func (p *PKCS11Provider) Generate(sizeBits int) (kp *KeyPair, err error) {
	defer func() { recordConstruction("generate", err) }()

	if !validKeySizeBits(sizeBits) {
		return nil, fmt.Errorf("%w: key size %d bits (want multiple of 8 in [%d, %d])",
			ErrInvalidArgument, sizeBits, MinKeySizeBits, MaxKeySizeBits)
	}

	ops := &pkcs11KeyPair{p: p}
	kp = newKeyPair(ops)

	publicTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_ENCRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, true),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS_BITS, sizeBits),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, []byte{0x01, 0x00, 0x01}),
	}
	privateTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_DECRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
		// Exportable so the PKCS1 encoding can be read back out.
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, false),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, true),
	}

	p.mu.Lock()
	pubHandle, privHandle, err := p.mod.GenerateKeyPair(p.session,
		[]*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_KEY_PAIR_GEN, nil)},
		publicTemplate, privateTemplate)
	p.mu.Unlock()
	if err != nil {
		kp.Release()
		return nil, fmt.Errorf("%w: generate key pair: %v", ErrSystemCallFailure, err)
	}

	ops.privHandle, ops.havePriv = privHandle, true
	ops.pubHandle, ops.havePub = pubHandle, true

	privDER, modulus, err := p.exportPrivatePKCS1(privHandle)
	if err != nil {
		kp.Release()
		return nil, err
	}
	pubDER, err := p.exportPublicPKCS1(pubHandle)
	if err != nil {
		wipe(privDER)
		kp.Release()
		return nil, err
	}

	kp.priv = privDER
	kp.pub = pubDER
	kp.sizeBits = len(modulus) * 8
	kp.valid = true

	slog.Debug("generated RSA key pair", "provider", "pkcs11", "bits", kp.sizeBits)
	return kp, nil
}

// ImportPrivatePKCS1 maps the PKCS1 fields out of keyDER and hands
// them to the token as a private key object. The caller's bytes are
// copied into the key pair before the token sees them. Failure to
// derive the public object afterwards is non-fatal: the pair stays
// usable for private-key operations.
func (p *PKCS11Provider) ImportPrivatePKCS1(keyDER []byte) (kp *KeyPair, err error) {
	defer func() { recordConstruction("import_private", err) }()

	ops := &pkcs11KeyPair{p: p}
	kp = newKeyPair(ops)
	kp.priv = append([]byte(nil), keyDER...)

	fields, err := ParsePKCS1PrivateKey(der.NewDecoder(kp.priv))
	if err != nil {
		kp.Release()
		return nil, err
	}

	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_DECRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, false),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, true),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, fields.Modulus),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, fields.PublicExponent),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE_EXPONENT, fields.PrivateExponent),
		pkcs11.NewAttribute(pkcs11.CKA_PRIME_1, fields.Prime1),
		pkcs11.NewAttribute(pkcs11.CKA_PRIME_2, fields.Prime2),
		pkcs11.NewAttribute(pkcs11.CKA_EXPONENT_1, fields.Exponent1),
		pkcs11.NewAttribute(pkcs11.CKA_EXPONENT_2, fields.Exponent2),
		pkcs11.NewAttribute(pkcs11.CKA_COEFFICIENT, fields.Coefficient),
	}

	p.mu.Lock()
	privHandle, err := p.mod.CreateObject(p.session, template)
	p.mu.Unlock()
	if err != nil {
		slog.Warn("provider rejected private key import", "provider", "pkcs11", "error", err)
		kp.Release()
		return nil, fmt.Errorf("%w: malformed or unsupported private key", ErrInvalidArgument)
	}
	ops.privHandle, ops.havePriv = privHandle, true

	// Key size comes from the provider's view of the object, not from
	// the caller-declared encoding.
	modulus, err := p.readModulus(privHandle)
	if err != nil {
		kp.Release()
		return nil, err
	}
	kp.sizeBits = len(modulus) * 8

	pubHandle, err := p.createPublicObject(fields.Modulus, fields.PublicExponent)
	if err != nil {
		slog.Warn("could not derive public key object; pair is private-only", "error", err)
	} else {
		ops.pubHandle, ops.havePub = pubHandle, true
		kp.pub = encodePublicPKCS1(fields.Modulus, fields.PublicExponent)
	}

	kp.valid = true
	return kp, nil
}

// ImportPublicPKCS1 maps the PKCS1 fields out of keyDER and hands them
// to the token as a public key object.
func (p *PKCS11Provider) ImportPublicPKCS1(keyDER []byte) (kp *KeyPair, err error) {
	defer func() { recordConstruction("import_public", err) }()

	ops := &pkcs11KeyPair{p: p}
	kp = newKeyPair(ops)
	kp.pub = append([]byte(nil), keyDER...)

	fields, err := ParsePKCS1PublicKey(der.NewDecoder(kp.pub))
	if err != nil {
		kp.Release()
		return nil, err
	}

	pubHandle, err := p.createPublicObject(fields.Modulus, fields.PublicExponent)
	if err != nil {
		slog.Warn("provider rejected public key import", "provider", "pkcs11", "error", err)
		kp.Release()
		return nil, fmt.Errorf("%w: malformed or unsupported public key", ErrInvalidArgument)
	}
	ops.pubHandle, ops.havePub = pubHandle, true

	modulus, err := p.readModulus(pubHandle)
	if err != nil {
		kp.Release()
		return nil, err
	}
	kp.sizeBits = len(modulus) * 8

	kp.valid = true
	return kp, nil
}

func (p *PKCS11Provider) createPublicObject(modulus, publicExponent []byte) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_ENCRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, true),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, modulus),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, publicExponent),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mod.CreateObject(p.session, template)
}

func (p *PKCS11Provider) readModulus(handle pkcs11.ObjectHandle) ([]byte, error) {
	p.mu.Lock()
	attrs, err := p.mod.GetAttributeValue(p.session, handle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, nil),
	})
	p.mu.Unlock()
	if err != nil || len(attrs) != 1 {
		return nil, fmt.Errorf("%w: read modulus: %v", ErrSystemCallFailure, err)
	}
	return trimLeadingZeros(attrs[0].Value), nil
}

// exportPrivatePKCS1 reads the key components back from the token and
// assembles the RSAPrivateKey encoding. Returns the encoding and the
// normalized modulus.
func (p *PKCS11Provider) exportPrivatePKCS1(handle pkcs11.ObjectHandle) ([]byte, []byte, error) {
	types := []uint{
		pkcs11.CKA_MODULUS,
		pkcs11.CKA_PUBLIC_EXPONENT,
		pkcs11.CKA_PRIVATE_EXPONENT,
		pkcs11.CKA_PRIME_1,
		pkcs11.CKA_PRIME_2,
		pkcs11.CKA_EXPONENT_1,
		pkcs11.CKA_EXPONENT_2,
		pkcs11.CKA_COEFFICIENT,
	}
	query := make([]*pkcs11.Attribute, len(types))
	for i, t := range types {
		query[i] = pkcs11.NewAttribute(t, nil)
	}

	p.mu.Lock()
	attrs, err := p.mod.GetAttributeValue(p.session, handle, query)
	p.mu.Unlock()
	if err != nil || len(attrs) != len(types) {
		return nil, nil, fmt.Errorf("%w: export private key: %v", ErrSystemCallFailure, err)
	}

	b := der.NewBuilder()
	b.AddSequence(func(b *der.Builder) {
		b.AddInt(0)
		for _, a := range attrs {
			b.AddUnsignedInteger(a.Value)
		}
	})
	out, err := b.Bytes()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encode private key: %v", ErrSystemCallFailure, err)
	}
	return out, trimLeadingZeros(attrs[0].Value), nil
}

func (p *PKCS11Provider) exportPublicPKCS1(handle pkcs11.ObjectHandle) ([]byte, error) {
	p.mu.Lock()
	attrs, err := p.mod.GetAttributeValue(p.session, handle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, nil),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, nil),
	})
	p.mu.Unlock()
	if err != nil || len(attrs) != 2 {
		return nil, fmt.Errorf("%w: export public key: %v", ErrSystemCallFailure, err)
	}
	return encodePublicPKCS1(attrs[0].Value, attrs[1].Value), nil
}

func encodePublicPKCS1(modulus, publicExponent []byte) []byte {
	b := der.NewBuilder()
	b.AddSequence(func(b *der.Builder) {
		b.AddUnsignedInteger(modulus)
		b.AddUnsignedInteger(publicExponent)
	})
	out, err := b.Bytes()
	if err != nil {
		// Both inputs are raw byte strings; the builder cannot fail on
		// them.
		panic(fmt.Sprintf("rsakey: encode RSAPublicKey: %v", err))
	}
	return out
}

func trimLeadingZeros(b []byte) []byte {
	for len(b) > 1 && b[0] == 0 {
		b = b[1:]
	}
	return b
}

// mechanismSupported asks the token whether it implements mech before
// the operation is attempted.
func (p *PKCS11Provider) mechanismSupported(mech *pkcs11.Mechanism) bool {
	_, err := p.mod.GetMechanismInfo(p.slot, []*pkcs11.Mechanism{mech})
	return err == nil
}

// encryptionMechanism resolves an abstract encryption algorithm to the
// provider mechanism, or fails with ErrUnsupportedAlgorithm.
func encryptionMechanism(alg EncryptionAlgorithm) (*pkcs11.Mechanism, error) {
	switch alg {
	case EncryptionPKCS1v15:
		return pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil), nil
	case EncryptionOAEPSHA256:
		return pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_OAEP,
			pkcs11.NewOAEPParams(pkcs11.CKM_SHA256, pkcs11.CKG_MGF1_SHA256, pkcs11.CKZ_DATA_SPECIFIED, nil)), nil
	case EncryptionOAEPSHA512:
		return pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_OAEP,
			pkcs11.NewOAEPParams(pkcs11.CKM_SHA512, pkcs11.CKG_MGF1_SHA512, pkcs11.CKZ_DATA_SPECIFIED, nil)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
}

// sha256DigestInfoPrefix is the DigestInfo header prepended to a
// SHA-256 digest for raw CKM_RSA_PKCS signing, per RFC 8017 §9.2.
var sha256DigestInfoPrefix = []byte{
	0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
	0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20,
}

// signingMechanism resolves an abstract signing algorithm to the
// provider mechanism plus any DigestInfo prefix the raw mechanism
// requires.
func signingMechanism(alg SigningAlgorithm) (*pkcs11.Mechanism, []byte, error) {
	switch alg {
	case SignaturePKCS1v15SHA256:
		return pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil), sha256DigestInfoPrefix, nil
	case SignaturePSSSHA256:
		return pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_PSS,
			pkcs11.NewPSSParams(pkcs11.CKM_SHA256, pkcs11.CKG_MGF1_SHA256, 32)), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
}

// pkcs11KeyPair owns the token object handles for one KeyPair.
type pkcs11KeyPair struct {
	p          *PKCS11Provider
	privHandle pkcs11.ObjectHandle
	pubHandle  pkcs11.ObjectHandle
	havePriv   bool
	havePub    bool
}

func (k *pkcs11KeyPair) destroy(kp *KeyPair) {
	k.p.mu.Lock()
	defer k.p.mu.Unlock()

	if k.p.mod == nil {
		return
	}
	if k.havePriv {
		if err := k.p.mod.DestroyObject(k.p.session, k.privHandle); err != nil {
			slog.Warn("destroy private key object", "error", err)
		}
		k.havePriv = false
	}
	if k.havePub {
		if err := k.p.mod.DestroyObject(k.p.session, k.pubHandle); err != nil {
			slog.Warn("destroy public key object", "error", err)
		}
		k.havePub = false
	}
}

func (k *pkcs11KeyPair) encrypt(kp *KeyPair, alg EncryptionAlgorithm, dst, plaintext []byte) ([]byte, error) {
	if !k.havePub {
		slog.Error("key pair is missing public key required for encrypt")
		return nil, fmt.Errorf("%w: encrypt needs a public key", ErrMissingKeyComponent)
	}
	mech, err := encryptionMechanism(alg)
	if err != nil {
		return nil, err
	}
	if !k.p.mechanismSupported(mech) {
		return nil, fmt.Errorf("%w: %s not offered by token", ErrUnsupportedAlgorithm, alg)
	}

	k.p.mu.Lock()
	defer k.p.mu.Unlock()

	if err := k.p.mod.EncryptInit(k.p.session, []*pkcs11.Mechanism{mech}, k.pubHandle); err != nil {
		return nil, providerOpError("encrypt", err)
	}
	ct, err := k.p.mod.Encrypt(k.p.session, plaintext)
	if err != nil {
		return nil, providerOpError("encrypt", err)
	}
	return append(dst, ct...), nil
}

func (k *pkcs11KeyPair) decrypt(kp *KeyPair, alg EncryptionAlgorithm, dst, ciphertext []byte) ([]byte, error) {
	if !k.havePriv {
		slog.Error("key pair is missing private key required for decrypt")
		return nil, fmt.Errorf("%w: decrypt needs a private key", ErrMissingKeyComponent)
	}
	mech, err := encryptionMechanism(alg)
	if err != nil {
		return nil, err
	}
	if !k.p.mechanismSupported(mech) {
		return nil, fmt.Errorf("%w: %s not offered by token", ErrUnsupportedAlgorithm, alg)
	}

	k.p.mu.Lock()
	defer k.p.mu.Unlock()

	if err := k.p.mod.DecryptInit(k.p.session, []*pkcs11.Mechanism{mech}, k.privHandle); err != nil {
		return nil, providerOpError("decrypt", err)
	}
	pt, err := k.p.mod.Decrypt(k.p.session, ciphertext)
	if err != nil {
		return nil, providerOpError("decrypt", err)
	}
	return append(dst, pt...), nil
}

func (k *pkcs11KeyPair) sign(kp *KeyPair, alg SigningAlgorithm, dst, digest []byte) ([]byte, error) {
	if !k.havePriv {
		slog.Error("key pair is missing private key required for sign")
		return nil, fmt.Errorf("%w: sign needs a private key", ErrMissingKeyComponent)
	}
	mech, prefix, err := signingMechanism(alg)
	if err != nil {
		return nil, err
	}
	if !k.p.mechanismSupported(mech) {
		return nil, fmt.Errorf("%w: %s not offered by token", ErrUnsupportedAlgorithm, alg)
	}

	input := digest
	if prefix != nil {
		input = make([]byte, 0, len(prefix)+len(digest))
		input = append(input, prefix...)
		input = append(input, digest...)
	}

	k.p.mu.Lock()
	defer k.p.mu.Unlock()

	if err := k.p.mod.SignInit(k.p.session, []*pkcs11.Mechanism{mech}, k.privHandle); err != nil {
		return nil, providerOpError("sign", err)
	}
	sig, err := k.p.mod.Sign(k.p.session, input)
	if err != nil {
		return nil, providerOpError("sign", err)
	}
	return append(dst, sig...), nil
}

func (k *pkcs11KeyPair) verify(kp *KeyPair, alg SigningAlgorithm, digest, signature []byte) error {
	if !k.havePub {
		slog.Error("key pair is missing public key required for verify")
		return fmt.Errorf("%w: verify needs a public key", ErrMissingKeyComponent)
	}
	mech, prefix, err := signingMechanism(alg)
	if err != nil {
		return err
	}
	if !k.p.mechanismSupported(mech) {
		return fmt.Errorf("%w: %s not offered by token", ErrUnsupportedAlgorithm, alg)
	}

	input := digest
	if prefix != nil {
		input = make([]byte, 0, len(prefix)+len(digest))
		input = append(input, prefix...)
		input = append(input, digest...)
	}

	k.p.mu.Lock()
	defer k.p.mu.Unlock()

	if err := k.p.mod.VerifyInit(k.p.session, []*pkcs11.Mechanism{mech}, k.pubHandle); err != nil {
		return providerOpError("verify", err)
	}
	if err := k.p.mod.Verify(k.p.session, input, signature); err != nil {
		if errors.Is(err, pkcs11.Error(pkcs11.CKR_SIGNATURE_INVALID)) ||
			errors.Is(err, pkcs11.Error(pkcs11.CKR_SIGNATURE_LEN_RANGE)) {
			return ErrSignatureValidationFailed
		}
		return providerOpError("verify", err)
	}
	return nil
}

func providerOpError(op string, err error) error {
	metrics.RecordProviderError(op)
	return fmt.Errorf("%w: %s: %v", ErrSystemCallFailure, op, err)
}
