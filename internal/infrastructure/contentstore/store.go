package contentstore

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kirillkom/archivist/internal/core/domain"
	"github.com/kirillkom/archivist/internal/core/ports"
)

// envelope layout on disk: [1B format][4B key version][12B nonce][ciphertext].
const (
	envelopeFormat = 0x01
	headerSize     = 1 + 4
	nonceSize      = 12
)

// BlobMetadata is the bookkeeping row for one stored blob. Reference
// counts and the release timestamp drive garbage collection.
type BlobMetadata struct {
	Hash       string
	Size       int64
	MediaType  string
	KeyVersion uint32
	RefCount   int
	ReleasedAt *time.Time
	CreatedAt  time.Time
}

// MetadataStore persists blob bookkeeping. DecrementRef must stamp
// ReleasedAt when the count reaches zero.
type MetadataStore interface {
	Get(ctx context.Context, hash string) (*BlobMetadata, error)
	Insert(ctx context.Context, meta BlobMetadata) error
	IncrementRef(ctx context.Context, hash string) error
	DecrementRef(ctx context.Context, hash string) (remaining int, err error)
	ListExpired(ctx context.Context, cutoff time.Time) ([]string, error)
	Delete(ctx context.Context, hash string) error
}

// Store is content-addressed encrypted blob storage on a local
// directory. The content hash is computed over plaintext before
// encryption, so identical uploads dedupe regardless of nonce.
type Store struct {
	dir   string
	keys  ports.KeyProvider
	meta  MetadataStore
	grace time.Duration

	mu      sync.Mutex
	inPut   map[string]*sync.Mutex
	putRefs map[string]int
}

func New(dir string, keys ports.KeyProvider, meta MetadataStore, grace time.Duration) (*Store, error) {
	if dir == "" {
		dir = "./data/blobs"
	}
	if err := os.MkdirAll(filepath.Join(dir, "objects"), 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	if grace <= 0 {
		grace = 30 * 24 * time.Hour
	}
	return &Store{
		dir:     dir,
		keys:    keys,
		meta:    meta,
		grace:   grace,
		inPut:   make(map[string]*sync.Mutex),
		putRefs: make(map[string]int),
	}, nil
}

// Put stores plaintext under its SHA-256 hash. Concurrent identical
// uploads are idempotent: one physical write, every caller bumps the
// reference count.
func (s *Store) Put(ctx context.Context, plaintext []byte, mediaType string) (domain.BlobRef, error) {
	if len(plaintext) == 0 {
		return domain.BlobRef{}, domain.WrapError(domain.ErrInvalidInput, "put blob", errors.New("empty payload"))
	}
	sum := sha256.Sum256(plaintext)
	hash := hex.EncodeToString(sum[:])

	unlock := s.lockHash(hash)
	defer unlock()

	existing, err := s.meta.Get(ctx, hash)
	switch {
	case err == nil:
		if err := s.meta.IncrementRef(ctx, hash); err != nil {
			return domain.BlobRef{}, fmt.Errorf("increment blob refcount: %w", err)
		}
		return domain.BlobRef{Hash: hash, Size: existing.Size, MediaType: existing.MediaType}, nil
	case domain.IsKind(err, domain.ErrNotFound):
	default:
		return domain.BlobRef{}, fmt.Errorf("lookup blob metadata: %w", err)
	}

	keyVersion, key, err := s.keys.CurrentKey()
	if err != nil {
		return domain.BlobRef{}, fmt.Errorf("resolve current key: %w", err)
	}
	sealed, err := seal(key, keyVersion, plaintext)
	if err != nil {
		return domain.BlobRef{}, err
	}
	if err := s.writeObject(hash, sealed); err != nil {
		return domain.BlobRef{}, err
	}

	meta := BlobMetadata{
		Hash:       hash,
		Size:       int64(len(plaintext)),
		MediaType:  mediaType,
		KeyVersion: keyVersion,
		RefCount:   1,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.meta.Insert(ctx, meta); err != nil {
		return domain.BlobRef{}, fmt.Errorf("insert blob metadata: %w", err)
	}
	return domain.BlobRef{Hash: hash, Size: meta.Size, MediaType: mediaType}, nil
}

// Get decrypts the blob and verifies its content hash. A mismatch is
// never served; it surfaces as domain.ErrIntegrity.
func (s *Store) Get(ctx context.Context, ref domain.BlobRef) ([]byte, error) {
	meta, err := s.meta.Get(ctx, ref.Hash)
	if err != nil {
		return nil, err
	}

	sealed, err := os.ReadFile(s.objectPath(ref.Hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrIntegrity, "get blob",
				fmt.Errorf("object file missing for known hash %s", ref.Hash))
		}
		return nil, fmt.Errorf("read blob object: %w", err)
	}

	plaintext, err := s.open(sealed, meta.KeyVersion)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(plaintext)
	if hex.EncodeToString(sum[:]) != ref.Hash {
		return nil, domain.WrapError(domain.ErrIntegrity, "get blob",
			fmt.Errorf("content hash mismatch for %s", ref.Hash))
	}
	return plaintext, nil
}

// Retain bumps the reference count of an existing blob, used when a
// rollback binds an old blob to a new version.
func (s *Store) Retain(ctx context.Context, hash string) error {
	return s.meta.IncrementRef(ctx, hash)
}

// Release decrements the reference count. The blob stays on disk for
// the retention grace period even at zero references.
func (s *Store) Release(ctx context.Context, hash string) error {
	_, err := s.meta.DecrementRef(ctx, hash)
	return err
}

// SweepExpired physically removes blobs whose refcount reached zero
// before the grace period cutoff. Returns the number removed.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	hashes, err := s.meta.ListExpired(ctx, now.Add(-s.grace))
	if err != nil {
		return 0, fmt.Errorf("list expired blobs: %w", err)
	}
	removed := 0
	for _, hash := range hashes {
		if err := os.Remove(s.objectPath(hash)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove blob object %s: %w", hash, err)
		}
		if err := s.meta.Delete(ctx, hash); err != nil {
			return removed, fmt.Errorf("delete blob metadata %s: %w", hash, err)
		}
		removed++
	}
	return removed, nil
}

func (s *Store) objectPath(hash string) string {
	prefix := "xx"
	if len(hash) >= 2 {
		prefix = hash[:2]
	}
	return filepath.Join(s.dir, "objects", prefix, hash)
}

func (s *Store) writeObject(hash string, sealed []byte) error {
	path := s.objectPath(hash)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create blob shard dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "put-*")
	if err != nil {
		return fmt.Errorf("create blob temp file: %w", err)
	}
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write blob temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close blob temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish blob object: %w", err)
	}
	return nil
}

// lockHash serializes concurrent Put calls for the same content.
func (s *Store) lockHash(hash string) func() {
	s.mu.Lock()
	mu, ok := s.inPut[hash]
	if !ok {
		mu = &sync.Mutex{}
		s.inPut[hash] = mu
	}
	s.putRefs[hash]++
	s.mu.Unlock()

	mu.Lock()
	return func() {
		mu.Unlock()
		s.mu.Lock()
		s.putRefs[hash]--
		if s.putRefs[hash] == 0 {
			delete(s.inPut, hash)
			delete(s.putRefs, hash)
		}
		s.mu.Unlock()
	}
}

func seal(key []byte, keyVersion uint32, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte(envelopeFormat)
	if err := binary.Write(&buf, binary.BigEndian, keyVersion); err != nil {
		return nil, fmt.Errorf("write envelope header: %w", err)
	}
	buf.Write(nonce)
	buf.Write(gcm.Seal(nil, nonce, plaintext, nil))
	return buf.Bytes(), nil
}

func (s *Store) open(sealed []byte, metaKeyVersion uint32) ([]byte, error) {
	if len(sealed) < headerSize+nonceSize || sealed[0] != envelopeFormat {
		return nil, domain.WrapError(domain.ErrIntegrity, "open blob", errors.New("malformed envelope"))
	}
	keyVersion := binary.BigEndian.Uint32(sealed[1:headerSize])
	if keyVersion != metaKeyVersion {
		return nil, domain.WrapError(domain.ErrIntegrity, "open blob",
			fmt.Errorf("envelope key version %d does not match metadata %d", keyVersion, metaKeyVersion))
	}
	key, err := s.keys.Key(keyVersion)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	nonce := sealed[headerSize : headerSize+nonceSize]
	plaintext, err := gcm.Open(nil, nonce, sealed[headerSize+nonceSize:], nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIntegrity, "open blob", err)
	}
	return plaintext, nil
}
