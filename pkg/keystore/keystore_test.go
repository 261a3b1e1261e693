package keystore

import (
	"path/filepath"
	"testing"

	"github.com/WebFirstLanguage/ssbnet/pkg/identity"
)

func TestDecodeStripsCommentLines(t *testing.T) {
	id, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	raw := "# this is your SECRET name.\n" +
		"# this name gives you magical powers.\n" +
		`{"id":"` + id.ID + `","curve":"ed25519","public":"` +
		identity.EncodePublicKey(id.Public) + `","private":"` +
		identity.EncodeSecretKey(id.Secret) + "\"}\n" +
		"# WARNING: It's vital that you DO NOT share this.\n"

	decoded, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != id.ID {
		t.Fatalf("decoded id = %q, want %q", decoded.ID, id.ID)
	}
	if !decoded.Public.Equal(id.Public) {
		t.Fatal("decoded public key does not match")
	}
}

func TestDecodeRejectsWrongCurve(t *testing.T) {
	_, err := Decode([]byte(`{"id":"@x.ed25519","curve":"secp256k1","public":"x","private":"y"}`))
	if err == nil {
		t.Fatal("expected error for unsupported curve")
	}
}

func TestDecodeRejectsMismatchedID(t *testing.T) {
	id, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	other, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	raw := `{"id":"` + other.ID + `","curve":"ed25519","public":"` +
		identity.EncodePublicKey(id.Public) + `","private":"` +
		identity.EncodeSecretKey(id.Secret) + `"}`

	if _, err := Decode([]byte(raw)); err == nil {
		t.Fatal("expected error for id/public-key mismatch")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	id, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	path := filepath.Join(t.TempDir(), "secret")

	if err := Save(path, id); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != id.ID {
		t.Fatalf("loaded id = %q, want %q", loaded.ID, id.ID)
	}
	if !loaded.Secret.Equal(id.Secret) {
		t.Fatal("loaded secret key does not match")
	}
}

func TestLoadOrCreateGeneratesOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "secret")

	first, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("load or create: %v", err)
	}
	second, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("load or create (second run): %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("second run generated a new identity instead of loading the saved one: %q != %q", second.ID, first.ID)
	}
}

func TestDefaultPathsAreUnderHome(t *testing.T) {
	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("default path: %v", err)
	}
	if filepath.Base(path) != "secret" || filepath.Base(filepath.Dir(path)) != ".ssb" {
		t.Fatalf("unexpected default path: %s", path)
	}

	goPath, err := GoSecretPath()
	if err != nil {
		t.Fatalf("go secret path: %v", err)
	}
	if filepath.Base(goPath) != "secret" || filepath.Base(filepath.Dir(goPath)) != ".ssb-go" {
		t.Fatalf("unexpected go-sbot path: %s", goPath)
	}
}
