package main

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"

	"github.com/ThalesGroup/crypto11"

	"github.com/avolkov-io/rsakit/internal/config"
)

// probeCommand checks the configured PKCS#11 token from the outside,
// through crypto11's crypto.Signer view rather than this module's own
// backend. A passing probe means the token, slot, and PIN are usable
// before any key pairs are built on it.
func probeCommand(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	bits := fs.Int("bits", 2048, "Key size in bits for the throwaway probe key")
	configPath := fs.String("config", getConfigPath(), "Path to config.yaml")
	fs.Parse(args)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.Backend != "pkcs11" {
		return fmt.Errorf("probe needs provider.backend=pkcs11, config has %q", cfg.Provider.Backend)
	}

	pin := os.Getenv(cfg.Provider.PKCS11.PinEnv)
	if pin == "" {
		return fmt.Errorf("%s environment variable not set", cfg.Provider.PKCS11.PinEnv)
	}

	ctx, err := crypto11.Configure(&crypto11.Config{
		Path:       cfg.Provider.PKCS11.ModulePath,
		TokenLabel: cfg.Provider.PKCS11.TokenLabel,
		Pin:        pin,
	})
	if err != nil {
		return fmt.Errorf("configure PKCS#11: %w", err)
	}
	defer ctx.Close()
	fmt.Printf("token %q reachable via %s\n", cfg.Provider.PKCS11.TokenLabel, cfg.Provider.PKCS11.ModulePath)

	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return fmt.Errorf("probe key id: %w", err)
	}

	signer, err := ctx.GenerateRSAKeyPairWithLabel(id, []byte("rsakit-probe"), *bits)
	if err != nil {
		return fmt.Errorf("generate probe key: %w", err)
	}
	defer signer.Delete()
	fmt.Printf("generated throwaway %d-bit probe key\n", *bits)

	digest := sha256.Sum256([]byte("rsakit probe"))
	sig, err := signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return fmt.Errorf("sign with probe key: %w", err)
	}

	pub, ok := signer.Public().(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("probe key public half is %T, not *rsa.PublicKey", signer.Public())
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("verify probe signature: %w", err)
	}

	fmt.Println("probe passed: token can serve RSA signing")
	return nil
}
