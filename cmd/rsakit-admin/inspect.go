package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/avolkov-io/rsakit/der"
	"github.com/avolkov-io/rsakit/rsakey"
)

func inspectCommand(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	keyPath := fs.String("key", "", "Path to a PKCS1 DER key file (required)")
	fs.Parse(args)

	if *keyPath == "" {
		fmt.Println("Error: --key is required")
		fs.Usage()
		os.Exit(1)
	}

	blob, err := os.ReadFile(*keyPath)
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}

	// Try the private form first; a public key fails that parse at the
	// version field.
	if priv, err := rsakey.ParsePKCS1PrivateKey(der.NewDecoder(blob)); err == nil {
		fmt.Printf("%s: RSAPrivateKey\n", *keyPath)
		fmt.Printf("  modulus:         %d bits\n", new(big.Int).SetBytes(priv.Modulus).BitLen())
		fmt.Printf("  public exponent: %s\n", new(big.Int).SetBytes(priv.PublicExponent))
		fmt.Printf("  prime1:          %d bits\n", new(big.Int).SetBytes(priv.Prime1).BitLen())
		fmt.Printf("  prime2:          %d bits\n", new(big.Int).SetBytes(priv.Prime2).BitLen())
		fmt.Println("  CRT parameters:  present")
		return nil
	}

	pub, err := rsakey.ParsePKCS1PublicKey(der.NewDecoder(blob))
	if err != nil {
		return fmt.Errorf("not a PKCS1 private or public key: %w", err)
	}
	fmt.Printf("%s: RSAPublicKey\n", *keyPath)
	fmt.Printf("  modulus:         %d bits\n", new(big.Int).SetBytes(pub.Modulus).BitLen())
	fmt.Printf("  public exponent: %s\n", new(big.Int).SetBytes(pub.PublicExponent))
	return nil
}
