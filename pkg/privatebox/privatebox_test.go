package privatebox

import (
	"bytes"
	"testing"

	"github.com/WebFirstLanguage/ssbnet/pkg/identity"
)

func genIdentities(t *testing.T, n int) []*identity.Identity {
	t.Helper()
	ids := make([]*identity.Identity, n)
	for i := range ids {
		id, err := identity.GenerateIdentity()
		if err != nil {
			t.Fatalf("generate identity %d: %v", i, err)
		}
		ids[i] = id
	}
	return ids
}

func TestEncryptDecryptSingleRecipient(t *testing.T) {
	ids := genIdentities(t, 1)
	plaintext := []byte("hello, private box")

	ct, err := Encrypt(plaintext, []identity.PublicKey{ids[0].Public})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, isRecipient, err := Decrypt(ct, ids[0].Secret)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !isRecipient {
		t.Fatal("expected recipient to be recognized")
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("decrypted %q, want %q", got, plaintext)
	}
}

func TestEncryptDecryptMultiRecipient(t *testing.T) {
	ids := genIdentities(t, 5)
	plaintext := []byte("fan-out message to five recipients")

	recipients := make([]identity.PublicKey, len(ids))
	for i, id := range ids {
		recipients[i] = id.Public
	}

	ct, err := Encrypt(plaintext, recipients)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	for i, id := range ids {
		got, isRecipient, err := Decrypt(ct, id.Secret)
		if err != nil {
			t.Fatalf("decrypt (recipient %d): %v", i, err)
		}
		if !isRecipient {
			t.Fatalf("recipient %d not recognized", i)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("recipient %d: decrypted %q, want %q", i, got, plaintext)
		}
	}
}

func TestDecryptNonRecipientIsNotAnError(t *testing.T) {
	ids := genIdentities(t, 2)
	outsider := genIdentities(t, 1)[0]

	ct, err := Encrypt([]byte("secret"), []identity.PublicKey{ids[0].Public, ids[1].Public})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, isRecipient, err := Decrypt(ct, outsider.Secret)
	if err != nil {
		t.Fatalf("decrypt for non-recipient should not error: %v", err)
	}
	if isRecipient {
		t.Fatal("outsider should not be recognized as a recipient")
	}
	if got != nil {
		t.Fatal("expected no plaintext for a non-recipient")
	}
}

func TestEncryptRejectsEmptyPlaintext(t *testing.T) {
	ids := genIdentities(t, 1)
	if _, err := Encrypt(nil, []identity.PublicKey{ids[0].Public}); err == nil {
		t.Fatal("expected error for empty plaintext")
	}
}

func TestEncryptRejectsBadRecipientCount(t *testing.T) {
	ids := genIdentities(t, MaxRecipients+1)
	recipients := make([]identity.PublicKey, len(ids))
	for i, id := range ids {
		recipients[i] = id.Public
	}
	if _, err := Encrypt([]byte("x"), recipients); err == nil {
		t.Fatal("expected error for too many recipients")
	}
	if _, err := Encrypt([]byte("x"), nil); err == nil {
		t.Fatal("expected error for zero recipients")
	}
}

func TestEncodeDecodeBoxRoundTrip(t *testing.T) {
	ids := genIdentities(t, 1)
	ct, err := Encrypt([]byte("box form"), []identity.PublicKey{ids[0].Public})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	text := EncodeBox(ct)
	if !IsPrivateBox(text) {
		t.Fatalf("IsPrivateBox(%q) = false, want true", text)
	}
	decoded, err := DecodeBox(text)
	if err != nil {
		t.Fatalf("decode box: %v", err)
	}
	if !bytes.Equal(decoded, ct) {
		t.Fatal("decoded box bytes do not match original ciphertext")
	}
}

func TestIsPrivateBoxRejectsPlainString(t *testing.T) {
	if IsPrivateBox("not a box") {
		t.Fatal("IsPrivateBox should reject a string without the .box suffix")
	}
}
