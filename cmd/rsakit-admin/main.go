package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/avolkov-io/rsakit/internal/config"
	"github.com/avolkov-io/rsakit/internal/logging"
	"github.com/avolkov-io/rsakit/rsakey"
)

const defaultConfigPath = "config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "generate":
		if err := generateCommand(os.Args[2:]); err != nil {
			log.Fatalf("Generate failed: %v", err)
		}
	case "inspect":
		if err := inspectCommand(os.Args[2:]); err != nil {
			log.Fatalf("Inspect failed: %v", err)
		}
	case "selftest":
		if err := selftestCommand(os.Args[2:]); err != nil {
			log.Fatalf("Selftest failed: %v", err)
		}
	case "probe":
		if err := probeCommand(os.Args[2:]); err != nil {
			log.Fatalf("Probe failed: %v", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("rsakit-admin - RSA key pair management")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  rsakit-admin <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  generate   Generate a key pair and write PKCS1 DER files")
	fmt.Println("  inspect    Print the fields of a PKCS1 DER key file")
	fmt.Println("  selftest   Run an encrypt/decrypt/sign/verify round trip on the configured backend")
	fmt.Println("  probe      Check that the configured PKCS#11 token can serve RSA signing")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  rsakit-admin generate --bits 2048 --out-priv key.der --out-pub key.pub.der")
	fmt.Println("  rsakit-admin inspect --key key.der")
	fmt.Println("  rsakit-admin selftest --bits 2048")
	fmt.Println("  rsakit-admin probe")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  RSAKIT_CONFIG       Path to config.yaml (default: config.yaml)")
	fmt.Println("  RSAKIT_PKCS11_PIN   Token PIN (required for the pkcs11 backend)")
}

func getConfigPath() string {
	if path := os.Getenv("RSAKIT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildProvider loads configuration and returns the backend it selects.
// The returned closer is non-nil for backends that hold a session.
func buildProvider(configPath string) (rsakey.Provider, func() error, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := logging.Init(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("init logging: %w", err)
	}

	switch cfg.Provider.Backend {
	case "software":
		return rsakey.NewSoftwareProvider(), nil, nil
	case "pkcs11":
		pin := os.Getenv(cfg.Provider.PKCS11.PinEnv)
		if pin == "" {
			return nil, nil, fmt.Errorf("%s environment variable not set", cfg.Provider.PKCS11.PinEnv)
		}
		p, err := rsakey.NewPKCS11Provider(cfg.Provider.PKCS11.ModulePath, cfg.Provider.PKCS11.TokenLabel, pin)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return rsakey.UnavailableProvider("backend " + cfg.Provider.Backend + " not configured"), nil, nil
	}
}

func generateCommand(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	bits := fs.Int("bits", 2048, "Key size in bits")
	outPriv := fs.String("out-priv", "", "Output path for the PKCS1 DER private key (required)")
	outPub := fs.String("out-pub", "", "Output path for the PKCS1 DER public key (required)")
	configPath := fs.String("config", getConfigPath(), "Path to config.yaml")
	fs.Parse(args)

	if *outPriv == "" || *outPub == "" {
		fmt.Println("Error: --out-priv and --out-pub are required")
		fs.Usage()
		os.Exit(1)
	}

	provider, closer, err := buildProvider(*configPath)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer()
	}

	kp, err := provider.Generate(*bits)
	if err != nil {
		return err
	}
	defer kp.Release()

	privDER, err := kp.PrivateKeyPKCS1()
	if err != nil {
		return err
	}
	pubDER, err := kp.PublicKeyPKCS1()
	if err != nil {
		return err
	}

	if err := os.WriteFile(*outPriv, privDER, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(*outPub, pubDER, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	fmt.Printf("Generated %d-bit key pair\n", kp.KeySizeBits())
	fmt.Printf("  private: %s (%d bytes)\n", *outPriv, len(privDER))
	fmt.Printf("  public:  %s (%d bytes)\n", *outPub, len(pubDER))
	return nil
}
