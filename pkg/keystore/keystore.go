// Package keystore reads and writes the on-disk identity file spec §6
// describes: a small JSON object naming a keypair's curve and its three
// textual encodings. Grounded on pkg/identity's encode/decode functions,
// which do all the actual key-format work; this package only knows the
// file's JSON shape and its two well-known locations.
package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/WebFirstLanguage/ssbnet/pkg/identity"
)

// curveEd25519 is the only value secret.Curve is allowed to hold.
const curveEd25519 = "ed25519"

// Error reports a keystore-format or filesystem failure.
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("keystore: %s: %s", e.Code, e.Reason)
}

func newError(code, reason string) *Error { return &Error{Code: code, Reason: reason} }

// Named failure modes.
var (
	ErrHomeNotFound   = "HomeNotFound"
	ErrInvalidConfig  = "InvalidConfig"
	ErrUnsupportedCurve = "UnsupportedCurve"
)

// secretFile is the on-disk JSON shape: {"id","curve","public","private"}.
type secretFile struct {
	ID      string `json:"id"`
	Curve   string `json:"curve"`
	Public  string `json:"public"`
	Private string `json:"private"`
}

// DefaultPath returns $HOME/.ssb/secret, the canonical identity file path.
func DefaultPath() (string, error) {
	return pathUnder(".ssb")
}

// GoSecretPath returns $HOME/.ssb-go/secret, the alternate location spec §6
// names: the same JSON shape, just never written with comment lines.
func GoSecretPath() (string, error) {
	return pathUnder(".ssb-go")
}

func pathUnder(dir string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", newError(ErrHomeNotFound, "$HOME not set")
	}
	return filepath.Join(home, dir, "secret"), nil
}

// Load reads and decodes an identity file at path, stripping any lines
// beginning with "#" before parsing — patchwork's secret file carries a
// human-readable comment banner above the JSON object; go-sbot's does not,
// but stripping is harmless either way since it only touches whole lines
// starting with "#".
func Load(path string) (*identity.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses raw secret-file bytes (after comment stripping) into an
// Identity, the way Load does for a file already on disk.
func Decode(data []byte) (*identity.Identity, error) {
	stripped := stripComments(data)

	var sf secretFile
	if err := json.Unmarshal(stripped, &sf); err != nil {
		return nil, fmt.Errorf("keystore: decode secret: %w", err)
	}
	if sf.Curve != curveEd25519 {
		return nil, newError(ErrUnsupportedCurve, sf.Curve)
	}
	pub, err := identity.DecodePublicKeyWithSuffix(sf.Public)
	if err != nil {
		return nil, fmt.Errorf("keystore: decode public key: %w", err)
	}
	sec, err := identity.DecodeSecretKey(sf.Private)
	if err != nil {
		return nil, fmt.Errorf("keystore: decode secret key: %w", err)
	}
	id := identity.NewIdentity(pub, sec)
	if sf.ID != "" && sf.ID != id.ID {
		return nil, newError(ErrInvalidConfig, "id field does not match embedded public key")
	}
	return id, nil
}

func stripComments(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		kept = append(kept, line)
	}
	return []byte(strings.Join(kept, "\n"))
}

// Save renders id as a secret file and writes it to path with file mode
// 0600, creating parent directories as needed. The written file carries no
// comment banner; Load strips comments unconditionally regardless, so a
// hand-edited file with one added later still parses.
func Save(path string, id *identity.Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("keystore: create directory for %s: %w", path, err)
	}
	sf := secretFile{
		ID:      id.ID,
		Curve:   curveEd25519,
		Public:  identity.EncodePublicKey(id.Public),
		Private: identity.EncodeSecretKey(id.Secret),
	}
	data, err := json.Marshal(sf)
	if err != nil {
		return fmt.Errorf("keystore: encode secret: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("keystore: write %s: %w", path, err)
	}
	return nil
}

// LoadOrCreate loads the identity at path if it exists, or generates a fresh
// one and saves it there — the common CLI-startup path: "use my existing
// key, or mint one on first run".
func LoadOrCreate(path string) (*identity.Identity, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keystore: stat %s: %w", path, err)
	}
	id, err := identity.GenerateIdentity()
	if err != nil {
		return nil, fmt.Errorf("keystore: generate identity: %w", err)
	}
	if err := Save(path, id); err != nil {
		return nil, err
	}
	return id, nil
}
