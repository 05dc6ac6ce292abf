package infra

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

const (
	journalKeySuffix = ".key"
	journalKeySize   = 32 // SQLCipher raw key
)

// JournalKeyFile keeps the journal's SQLCipher key beside the database as
// base64 text, owner-readable only.
type JournalKeyFile struct {
	path string
}

// NewJournalKeyFile returns the key file for the journal in dataDir.
func NewJournalKeyFile(dataDir string) *JournalKeyFile {
	return &JournalKeyFile{path: filepath.Join(dataDir, journalDBName+journalKeySuffix)}
}

func (k *JournalKeyFile) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(k.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal key: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode journal key: %w", err)
	}
	if len(key) != journalKeySize {
		return nil, fmt.Errorf("journal key is %d bytes, want %d", len(key), journalKeySize)
	}
	return key, nil
}

func (k *JournalKeyFile) StoreKey(key []byte) error {
	if len(key) != journalKeySize {
		return fmt.Errorf("journal key is %d bytes, want %d", len(key), journalKeySize)
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(k.path, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write journal key: %w", err)
	}
	return nil
}

func (k *JournalKeyFile) KeyExists() bool {
	_, err := os.Stat(k.path)
	return err == nil
}

// journalKey returns the key for the journal in dataDir. When the key is
// missing but a database is present, that database can never be read again:
// it is renamed out of the way and its new path returned as setAside.
func journalKey(dataDir string, keys domain.KeyProvider) (key []byte, setAside string, err error) {
	if keys.KeyExists() {
		key, err = keys.GetKey()
		return key, "", err
	}

	dbPath := filepath.Join(dataDir, journalDBName)
	if _, statErr := os.Stat(dbPath); statErr == nil {
		setAside = fmt.Sprintf("%s.unreadable-%d", dbPath, time.Now().Unix())
		if err := os.Rename(dbPath, setAside); err != nil {
			return nil, "", fmt.Errorf("failed to set aside journal without key: %w", err)
		}
	}

	key, err = generateJournalKey()
	if err != nil {
		return nil, "", err
	}
	if err := keys.StoreKey(key); err != nil {
		return nil, "", err
	}
	return key, setAside, nil
}

func generateJournalKey() ([]byte, error) {
	key := make([]byte, journalKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate journal key: %w", err)
	}
	return key, nil
}

var _ domain.KeyProvider = (*JournalKeyFile)(nil)
