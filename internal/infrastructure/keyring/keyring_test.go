package keyring

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/kirillkom/archivist/internal/core/domain"
)

func hexKey(b byte) string {
	key := make([]byte, keySize)
	for i := range key {
		key[i] = b
	}
	return hex.EncodeToString(key)
}

func TestParsePicksHighestVersionAsCurrent(t *testing.T) {
	spec := "2:" + hexKey(0x02) + ",1:" + hexKey(0x01)
	ring, err := Parse(spec)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	version, key, err := ring.CurrentKey()
	if err != nil {
		t.Fatalf("CurrentKey() error = %v", err)
	}
	if version != 2 {
		t.Fatalf("expected current version 2, got %d", version)
	}
	if key[0] != 0x02 {
		t.Fatalf("current key content mismatch")
	}

	old, err := ring.Key(1)
	if err != nil {
		t.Fatalf("Key(1) error = %v", err)
	}
	if old[0] != 0x01 {
		t.Fatalf("old key content mismatch")
	}
}

func TestParseRejectsMalformedSpecs(t *testing.T) {
	cases := []struct {
		name string
		spec string
	}{
		{"missing separator", hexKey(0x01)},
		{"bad version", "one:" + hexKey(0x01)},
		{"bad hex", "1:zz"},
		{"short key", "1:" + strings.Repeat("ab", 16)},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.spec); err == nil {
				t.Fatalf("expected error for spec %q", tc.spec)
			}
		})
	}
}

func TestKeyUnknownVersion(t *testing.T) {
	ring, err := Parse("1:" + hexKey(0x01))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	_, err = ring.Key(9)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewEphemeralProducesUsableKey(t *testing.T) {
	ring, err := NewEphemeral()
	if err != nil {
		t.Fatalf("NewEphemeral() error = %v", err)
	}
	version, key, err := ring.CurrentKey()
	if err != nil {
		t.Fatalf("CurrentKey() error = %v", err)
	}
	if version != 1 || len(key) != keySize {
		t.Fatalf("unexpected ephemeral key version=%d len=%d", version, len(key))
	}
}

func TestNewValidatesCurrentVersionPresent(t *testing.T) {
	key := make([]byte, keySize)
	if _, err := New(2, map[uint32][]byte{1: key}); err == nil {
		t.Fatalf("expected error when current version is missing")
	}
}
