package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore/keystore"
)

func TestGenerateWritesLoadablePair(t *testing.T) {
	dir := t.TempDir()

	kid, err := generate(dir, keystore.DefaultKeyBits, "", false, false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if kid == "" {
		t.Fatal("expected a key id")
	}

	priv, err := os.ReadFile(filepath.Join(dir, privateKeyFile))
	if err != nil {
		t.Fatalf("read private key: %v", err)
	}
	pub, err := os.ReadFile(filepath.Join(dir, publicKeyFile))
	if err != nil {
		t.Fatalf("read public key: %v", err)
	}
	if !strings.Contains(string(priv), "BEGIN PRIVATE KEY") {
		t.Fatalf("expected PKCS#8 block, got %q", string(priv)[:40])
	}

	info, err := os.Stat(filepath.Join(dir, privateKeyFile))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		t.Fatalf("private key readable by others: %v", perm)
	}

	ks, err := keystore.Load(keystore.Config{PrivateKey: string(priv), PublicKey: string(pub), KeyID: kid})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ks.Ephemeral() {
		t.Fatal("loaded pair must not be ephemeral")
	}
}

func TestGenerateLegacyAndOverwrite(t *testing.T) {
	dir := t.TempDir()

	if _, err := generate(dir, keystore.DefaultKeyBits, "k1", true, false); err != nil {
		t.Fatalf("generate: %v", err)
	}
	priv, err := os.ReadFile(filepath.Join(dir, privateKeyFile))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(priv), "BEGIN RSA PRIVATE KEY") {
		t.Fatal("expected PKCS#1 block")
	}

	if _, err := generate(dir, keystore.DefaultKeyBits, "k2", false, false); !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected os.ErrExist without -force, got %v", err)
	}
	kid, err := generate(dir, keystore.DefaultKeyBits, "k2", false, true)
	if err != nil || kid != "k2" {
		t.Fatalf("forced generate: kid=%q err=%v", kid, err)
	}
}

func TestGenerateRejectsWeakKey(t *testing.T) {
	if _, err := generate(t.TempDir(), 1024, "", false, false); !errors.Is(err, keystore.ErrWeakKey) {
		t.Fatalf("expected ErrWeakKey, got %v", err)
	}
}
