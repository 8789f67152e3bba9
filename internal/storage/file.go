package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phinze/fpdeck/internal/print"
)

// sealedMagic starts files written with a seal key.
var sealedMagic = []byte("FPSEALED1\n")

// KeySize is the length of a seal key in bytes.
const KeySize = 32

// FileStore keeps one YAML file per print under
// <dir>/<driver>/<device id>/<username>/<finger>.yaml. Files are encrypted
// when a seal key is set.
type FileStore struct {
	dir  string
	aead cipher.AEAD
}

// FileOption configures a FileStore.
type FileOption func(*FileStore) error

// WithSealKey encrypts stored prints with AES-GCM under key.
func WithSealKey(key []byte) FileOption {
	return func(s *FileStore) error {
		if len(key) != KeySize {
			return fmt.Errorf("seal key must be %d bytes, got %d", KeySize, len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return fmt.Errorf("create cipher: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return fmt.Errorf("create AEAD: %w", err)
		}
		s.aead = aead
		return nil
	}
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	s := &FileStore{dir: dir}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return s, nil
}

// GenerateKey returns a new random seal key encoded as base64, suitable for
// keeping in the keyring.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// DecodeKey parses a key produced by GenerateKey.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decoding seal key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

func (s *FileStore) deviceDir(driver, deviceID string) string {
	return filepath.Join(s.dir, driver, url.PathEscape(deviceID))
}

func (s *FileStore) path(k Key) string {
	return filepath.Join(s.deviceDir(k.Driver, k.DeviceID), k.Username, k.Finger.String()+".yaml")
}

// Save writes p, replacing any print stored under the same key.
func (s *FileStore) Save(ctx context.Context, p *print.Print) error {
	key, err := prepare(p)
	if err != nil {
		return err
	}
	data, err := p.Serialize()
	if err != nil {
		return fmt.Errorf("serializing print: %w", err)
	}
	if data, err = s.seal(data); err != nil {
		return err
	}

	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating print dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing print: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads the print stored under key.
func (s *FileStore) Load(ctx context.Context, key Key) (*print.Print, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return s.readFile(s.path(key))
}

func (s *FileStore) readFile(path string) (*print.Print, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading print: %w", err)
	}
	if data, err = s.unseal(data); err != nil {
		return nil, err
	}
	return print.Deserialize(data)
}

// List returns the prints of a device ordered by username, then finger.
func (s *FileStore) List(ctx context.Context, driver, deviceID string) ([]*print.Print, error) {
	root := s.deviceDir(driver, deviceID)
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".yaml") {
			paths = append(paths, path)
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing prints: %w", err)
	}
	sort.Strings(paths)

	prints := make([]*print.Print, 0, len(paths))
	for _, path := range paths {
		p, err := s.readFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		prints = append(prints, p)
	}
	sort.SliceStable(prints, func(i, j int) bool {
		if prints[i].Username != prints[j].Username {
			return prints[i].Username < prints[j].Username
		}
		return prints[i].Finger < prints[j].Finger
	})
	return prints, nil
}

// Delete removes the print stored under key.
func (s *FileStore) Delete(ctx context.Context, key Key) error {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return err
	}
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (s *FileStore) seal(data []byte) ([]byte, error) {
	if s.aead == nil {
		return data, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	out := append([]byte(nil), sealedMagic...)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, data, sealedMagic), nil
}

func (s *FileStore) unseal(data []byte) ([]byte, error) {
	sealed := strings.HasPrefix(string(data), string(sealedMagic))
	switch {
	case !sealed && s.aead == nil:
		return data, nil
	case sealed && s.aead == nil:
		return nil, errors.New("print is sealed and no seal key is configured")
	case !sealed:
		return nil, errors.New("refusing to read an unsealed print with a seal key configured")
	}
	rest := data[len(sealedMagic):]
	n := s.aead.NonceSize()
	if len(rest) < n {
		return nil, fmt.Errorf("%w: sealed print is truncated", print.ErrInvalid)
	}
	plain, err := s.aead.Open(nil, rest[:n], rest[n:], sealedMagic)
	if err != nil {
		return nil, fmt.Errorf("unsealing print: %w", err)
	}
	return plain, nil
}
