package names

import (
	"path/filepath"
	"testing"

	"github.com/WebFirstLanguage/ssbnet/pkg/typedcontent"
)

func aboutWith(subject, name string) typedcontent.About {
	n := name
	return typedcontent.About{About: subject, Name: &n}
}

func TestSelfAssertedNamePreferredOverThirdParty(t *testing.T) {
	s := NewStore()
	s.Apply("@mallory.ed25519", aboutWith("@alice.ed25519", "Not Alice"), 1)
	s.Apply("@alice.ed25519", aboutWith("@alice.ed25519", "Alice"), 1)

	name, ok := s.Get("@alice.ed25519")
	if !ok || name != "Alice" {
		t.Fatalf("Get() = (%q, %v), want (Alice, true)", name, ok)
	}
}

func TestThirdPartyNameUsedWhenNoSelfClaim(t *testing.T) {
	s := NewStore()
	s.Apply("@mallory.ed25519", aboutWith("@bob.ed25519", "Bob From Mallory"), 1)

	name, ok := s.Get("@bob.ed25519")
	if !ok || name != "Bob From Mallory" {
		t.Fatalf("Get() = (%q, %v)", name, ok)
	}
}

func TestHigherSequenceWins(t *testing.T) {
	s := NewStore()
	s.Apply("@alice.ed25519", aboutWith("@alice.ed25519", "Old Name"), 1)
	s.Apply("@alice.ed25519", aboutWith("@alice.ed25519", "New Name"), 2)

	name, ok := s.Get("@alice.ed25519")
	if !ok || name != "New Name" {
		t.Fatalf("Get() = (%q, %v), want (New Name, true)", name, ok)
	}
}

func TestLowerSequenceDoesNotOverwrite(t *testing.T) {
	s := NewStore()
	s.Apply("@alice.ed25519", aboutWith("@alice.ed25519", "New Name"), 5)
	s.Apply("@alice.ed25519", aboutWith("@alice.ed25519", "Stale Name"), 2)

	name, ok := s.Get("@alice.ed25519")
	if !ok || name != "New Name" {
		t.Fatalf("Get() = (%q, %v), want (New Name, true)", name, ok)
	}
}

func TestGetImageFor(t *testing.T) {
	s := NewStore()
	link := "&avatar.sha256"
	a := typedcontent.About{About: "@alice.ed25519", Image: &typedcontent.Image{Link: link}}
	s.Apply("@alice.ed25519", a, 1)

	got, ok := s.GetImageFor("@alice.ed25519")
	if !ok || got != link {
		t.Fatalf("GetImageFor() = (%q, %v), want (%q, true)", got, ok, link)
	}
}

func TestGetSignifierNormalizesCase(t *testing.T) {
	s := NewStore()
	s.Apply("@alice.ed25519", aboutWith("@alice.ed25519", "  ALICE  "), 1)

	sig, ok := s.GetSignifier("@alice.ed25519")
	if !ok || sig != "alice" {
		t.Fatalf("GetSignifier() = (%q, %v), want (alice, true)", sig, ok)
	}
}

func TestGetUnknownSubject(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("@unknown.ed25519"); ok {
		t.Fatal("expected no name for unknown subject")
	}
}

func TestSaveAndLoadFromFileRoundTrip(t *testing.T) {
	s := NewStore()
	s.Apply("@alice.ed25519", aboutWith("@alice.ed25519", "Alice"), 3)
	s.Apply("@mallory.ed25519", aboutWith("@bob.ed25519", "Bob From Mallory"), 1)

	path := filepath.Join(t.TempDir(), "names.cbor")
	if err := s.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	name, ok := loaded.Get("@alice.ed25519")
	if !ok || name != "Alice" {
		t.Fatalf("Get(alice) = (%q, %v), want (Alice, true)", name, ok)
	}
	name, ok = loaded.Get("@bob.ed25519")
	if !ok || name != "Bob From Mallory" {
		t.Fatalf("Get(bob) = (%q, %v), want (Bob From Mallory, true)", name, ok)
	}
}

func TestLoadFromFileMissingReturnsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.cbor")
	s, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if _, ok := s.Get("@anyone.ed25519"); ok {
		t.Fatal("expected an empty store when the cache file is missing")
	}
}
