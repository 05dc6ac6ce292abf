package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

const (
	journalDBName = "journal.db"

	// DefaultJournalLimit is how many entries Recent returns for limit <= 0.
	DefaultJournalLimit = 50
)

// EncryptedJournal implements domain.Journal on a SQLCipher database.
type EncryptedJournal struct {
	db       *sql.DB
	dbPath   string
	setAside string
}

// NewEncryptedJournal opens (or creates) the journal in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedJournal(dataDir string, key []byte) (*EncryptedJournal, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, journalDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// A wrong key only shows up on first read.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	j := &EncryptedJournal{db: db, dbPath: dbPath}
	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return j, nil
}

func (j *EncryptedJournal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS journal_kind ON journal (kind);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record appends entry. Missing ID and CreatedAt are filled in.
func (j *EncryptedJournal) Record(entry domain.JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Kind == "" {
		return fmt.Errorf("journal entry %s has no kind", entry.ID)
	}

	_, err := j.db.Exec(`
		INSERT INTO journal (id, kind, subject, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Kind, entry.Subject, entry.Outcome, entry.Detail, entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", entry.Kind, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *EncryptedJournal) Recent(limit int) ([]domain.JournalEntry, error) {
	if limit <= 0 {
		limit = DefaultJournalLimit
	}

	rows, err := j.db.Query(`
		SELECT id, kind, subject, outcome, detail, created_at
		FROM journal ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Kind, &e.Subject, &e.Outcome, &e.Detail, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(0, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Path returns the database file path.
func (j *EncryptedJournal) Path() string {
	return j.dbPath
}

// Close releases the database connection.
func (j *EncryptedJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// OpenJournal loads or creates the key in dataDir and opens the journal.
// A journal left without its key is set aside; see SetAside.
func OpenJournal(dataDir string) (*EncryptedJournal, error) {
	key, setAside, err := journalKey(dataDir, NewJournalKeyFile(dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load journal key: %w", err)
	}
	j, err := NewEncryptedJournal(dataDir, key)
	if err != nil {
		return nil, err
	}
	j.setAside = setAside
	return j, nil
}

// SetAside returns where an unreadable earlier journal was moved when this
// one was opened, or "".
func (j *EncryptedJournal) SetAside() string {
	return j.setAside
}

// Ensure EncryptedJournal implements domain.Journal.
var _ domain.Journal = (*EncryptedJournal)(nil)
