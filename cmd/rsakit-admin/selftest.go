package main

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"flag"
	"fmt"

	"github.com/avolkov-io/rsakit/rsakey"
)

// selftestCommand exercises the configured backend end to end: one key
// pair, every encryption algorithm, every signing algorithm, and an
// export/import round trip.
func selftestCommand(args []string) error {
	fs := flag.NewFlagSet("selftest", flag.ExitOnError)
	bits := fs.Int("bits", 2048, "Key size in bits")
	configPath := fs.String("config", getConfigPath(), "Path to config.yaml")
	fs.Parse(args)

	provider, closer, err := buildProvider(*configPath)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer()
	}

	kp, err := provider.Generate(*bits)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	defer kp.Release()
	fmt.Printf("generate %d bits: ok\n", kp.KeySizeBits())

	encAlgs := []rsakey.EncryptionAlgorithm{
		rsakey.EncryptionPKCS1v15,
		rsakey.EncryptionOAEPSHA256,
		rsakey.EncryptionOAEPSHA512,
	}
	for _, alg := range encAlgs {
		plaintext := make([]byte, kp.MaxPlaintextSize(alg))
		if _, err := rand.Read(plaintext); err != nil {
			return fmt.Errorf("random plaintext: %w", err)
		}

		ct, err := kp.Encrypt(nil, alg, plaintext)
		if err != nil {
			return fmt.Errorf("%s encrypt: %w", alg, err)
		}
		pt, err := kp.Decrypt(nil, alg, ct)
		if err != nil {
			return fmt.Errorf("%s decrypt: %w", alg, err)
		}
		if !bytes.Equal(pt, plaintext) {
			return fmt.Errorf("%s: decrypted plaintext differs", alg)
		}
		fmt.Printf("%s round trip: ok\n", alg)
	}

	digest := sha256.Sum256([]byte("rsakit selftest"))
	sigAlgs := []rsakey.SigningAlgorithm{
		rsakey.SignaturePKCS1v15SHA256,
		rsakey.SignaturePSSSHA256,
	}
	for _, alg := range sigAlgs {
		sig, err := kp.Sign(nil, alg, digest[:])
		if err != nil {
			return fmt.Errorf("%s sign: %w", alg, err)
		}
		if err := kp.Verify(alg, digest[:], sig); err != nil {
			return fmt.Errorf("%s verify: %w", alg, err)
		}
		fmt.Printf("%s sign/verify: ok\n", alg)
	}

	privDER, err := kp.PrivateKeyPKCS1()
	if err != nil {
		return fmt.Errorf("export private key: %w", err)
	}
	imported, err := provider.ImportPrivatePKCS1(privDER)
	if err != nil {
		return fmt.Errorf("reimport private key: %w", err)
	}
	imported.Release()
	fmt.Println("export/import round trip: ok")

	fmt.Println("selftest passed")
	return nil
}
