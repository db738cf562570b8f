package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/archivist/internal/core/domain"
)

const keySize = 32

// Static resolves symmetric keys by version. Blobs record the version
// they were sealed with, so rotation only changes the current key and
// never re-encrypts existing content.
type Static struct {
	current uint32
	keys    map[uint32][]byte
}

func New(current uint32, keys map[uint32][]byte) (*Static, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("keyring: no keys configured")
	}
	for version, key := range keys {
		if len(key) != keySize {
			return nil, fmt.Errorf("keyring: key version %d has %d bytes, want %d", version, len(key), keySize)
		}
	}
	if _, ok := keys[current]; !ok {
		return nil, fmt.Errorf("keyring: current key version %d not configured", current)
	}
	return &Static{current: current, keys: keys}, nil
}

// Parse builds a keyring from "version:hexkey" pairs separated by
// commas, e.g. "1:ab...ff,2:cd...00". The highest version is current.
func Parse(spec string) (*Static, error) {
	keys := make(map[uint32][]byte)
	var current uint32
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		versionRaw, keyHex, found := strings.Cut(pair, ":")
		if !found {
			return nil, fmt.Errorf("keyring: malformed key entry %q", pair)
		}
		version, err := strconv.ParseUint(versionRaw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("keyring: parse key version %q: %w", versionRaw, err)
		}
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("keyring: decode key version %d: %w", version, err)
		}
		keys[uint32(version)] = key
		if uint32(version) > current {
			current = uint32(version)
		}
	}
	return New(current, keys)
}

// NewEphemeral generates a single random key, version 1. Data sealed
// with it is unreadable after restart; development use only.
func NewEphemeral() (*Static, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("keyring: generate ephemeral key: %w", err)
	}
	return New(1, map[uint32][]byte{1: key})
}

func (s *Static) CurrentKey() (uint32, []byte, error) {
	return s.current, s.keys[s.current], nil
}

func (s *Static) Key(version uint32) ([]byte, error) {
	key, ok := s.keys[version]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "resolve key",
			fmt.Errorf("key version %d", version))
	}
	return key, nil
}
