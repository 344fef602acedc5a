package store

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const saltLength = 16

// EncryptedFileStore has the FileStore contract but seals every value
// with XChaCha20-Poly1305. The key is derived from a passphrase with
// argon2id; the salt lives in the store file itself.
type EncryptedFileStore struct {
	mu   sync.Mutex
	path string
	key  []byte
	salt []byte
}

type encryptedFile struct {
	Salt   string            `json:"salt"`
	Values map[string]string `json:"values"`
}

func NewEncryptedFileStore(path string, passphrase string) (*EncryptedFileStore, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &EncryptedFileStore{path: path}

	file, err := s.load()
	if err != nil {
		return nil, err
	}
	if file.Salt == "" {
		salt := make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		s.salt = salt
	} else {
		salt, err := base64.StdEncoding.DecodeString(file.Salt)
		if err != nil {
			return nil, fmt.Errorf("decode salt: %w", err)
		}
		s.salt = salt
	}

	s.key = argon2.IDKey([]byte(passphrase), s.salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
	return s, nil
}

func (s *EncryptedFileStore) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return "", err
	}
	sealed, ok := file.Values[name]
	if !ok {
		return "", ErrNotFound
	}
	return s.open(sealed)
}

func (s *EncryptedFileStore) Set(name string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	file.Values[name] = sealed
	return s.save(file)
}

func (s *EncryptedFileStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}
	delete(file.Values, name)
	return s.save(file)
}

func (s *EncryptedFileStore) seal(value string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *EncryptedFileStore) open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode value: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open value: %w", err)
	}
	return string(plain), nil
}

func (s *EncryptedFileStore) load() (*encryptedFile, error) {
	file := &encryptedFile{Values: map[string]string{}}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return file, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	if len(data) == 0 {
		return file, nil
	}
	if err := json.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("decode store: %w", err)
	}
	if file.Values == nil {
		file.Values = map[string]string{}
	}
	return file, nil
}

func (s *EncryptedFileStore) save(file *encryptedFile) error {
	file.Salt = base64.StdEncoding.EncodeToString(s.salt)

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
