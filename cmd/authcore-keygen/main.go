package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MrEthical07/authcore/keystore"
)

const (
	privateKeyFile = "private.pem"
	publicKeyFile  = "public.pem"
)

func main() {
	var (
		out    = flag.String("out", ".", "directory the key pair is written to")
		bits   = flag.Int("bits", keystore.DefaultKeyBits, "RSA modulus size")
		kid    = flag.String("kid", "", "key id; derived from the public key when empty")
		legacy = flag.Bool("legacy", false, "write the private key as PKCS#1 instead of PKCS#8")
		force  = flag.Bool("force", false, "overwrite existing key files")
	)
	flag.Parse()

	keyID, err := generate(*out, *bits, *kid, *legacy, *force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s and %s\n", filepath.Join(*out, privateKeyFile), filepath.Join(*out, publicKeyFile))
	fmt.Printf("AUTHCORE_KEY_ID=%s\n", keyID)
}

// generate writes a fresh pair into dir after checking that it loads back
// and signs.
func generate(dir string, bits int, kid string, legacy, force bool) (string, error) {
	ks, err := keystore.Generate(bits, kid)
	if err != nil {
		return "", err
	}
	if err := keystore.SelfTest(ks); err != nil {
		return "", err
	}
	privPEM, pubPEM, err := ks.EncodePEM(legacy)
	if err != nil {
		return "", err
	}

	reloaded, err := keystore.Load(keystore.Config{
		PrivateKey: string(privPEM),
		PublicKey:  string(pubPEM),
		KeyID:      ks.KeyID(),
	})
	if err != nil {
		return "", fmt.Errorf("reload generated pair: %w", err)
	}
	if reloaded.KeyID() != ks.KeyID() {
		return "", fmt.Errorf("reload generated pair: key id %q != %q", reloaded.KeyID(), ks.KeyID())
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	if err := writeFile(filepath.Join(dir, privateKeyFile), privPEM, flags, 0o600); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(dir, publicKeyFile), pubPEM, flags, 0o644); err != nil {
		return "", err
	}
	return ks.KeyID(), nil
}

func writeFile(path string, data []byte, flags int, perm os.FileMode) error {
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
