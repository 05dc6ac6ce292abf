package infra

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

func TestJournalKeyFile(t *testing.T) {
	tests := []struct {
		name   string
		testFn func(t *testing.T, keys *JournalKeyFile)
	}{
		{
			name: "key file sits beside the journal database",
			testFn: func(t *testing.T, keys *JournalKeyFile) {
				assert.Equal(t, journalDBName+".key", filepath.Base(keys.path))
				assert.False(t, keys.KeyExists())
			},
		},
		{
			name: "stored key is owner-only and reads back",
			testFn: func(t *testing.T, keys *JournalKeyFile) {
				key, err := generateJournalKey()
				require.NoError(t, err)
				require.NoError(t, keys.StoreKey(key))

				info, err := os.Stat(keys.path)
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

				got, err := keys.GetKey()
				require.NoError(t, err)
				assert.Equal(t, key, got)
			},
		},
		{
			name: "hand-edited key with trailing newline still reads",
			testFn: func(t *testing.T, keys *JournalKeyFile) {
				key, err := generateJournalKey()
				require.NoError(t, err)
				require.NoError(t, keys.StoreKey(key))

				raw, err := os.ReadFile(keys.path)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(keys.path, append(raw, '\n'), 0600))

				got, err := keys.GetKey()
				require.NoError(t, err)
				assert.Equal(t, key, got)
			},
		},
		{
			name: "short key is rejected",
			testFn: func(t *testing.T, keys *JournalKeyFile) {
				err := keys.StoreKey([]byte("tooshort"))
				require.Error(t, err)
				assert.Contains(t, err.Error(), "want 32")
			},
		},
		{
			name: "garbage key file is rejected",
			testFn: func(t *testing.T, keys *JournalKeyFile) {
				require.NoError(t, os.WriteFile(keys.path, []byte("not base64!"), 0600))
				_, err := keys.GetKey()
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.testFn(t, NewJournalKeyFile(t.TempDir()))
		})
	}
}

// TestOpenJournal_ReusesKey verifies entries survive a reopen through the key file
func TestOpenJournal_ReusesKey(t *testing.T) {
	dataDir := t.TempDir()

	j, err := OpenJournal(dataDir)
	require.NoError(t, err)
	require.NoError(t, j.Record(domain.JournalEntry{Kind: "event", Subject: "enrolled"}))
	require.NoError(t, j.Close())

	j, err = OpenJournal(dataDir)
	require.NoError(t, err)
	defer j.Close()

	assert.Empty(t, j.SetAside())
	entries, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "enrolled", entries[0].Subject)
}

// TestOpenJournal_LostKeySetsJournalAside verifies a journal whose key is gone is moved away and a fresh one opened
func TestOpenJournal_LostKeySetsJournalAside(t *testing.T) {
	dataDir := t.TempDir()

	j, err := OpenJournal(dataDir)
	require.NoError(t, err)
	require.NoError(t, j.Record(domain.JournalEntry{Kind: "event", Subject: "before"}))
	require.NoError(t, j.Close())

	require.NoError(t, os.Remove(NewJournalKeyFile(dataDir).path))

	j, err = OpenJournal(dataDir)
	require.NoError(t, err)
	defer j.Close()

	setAside := j.SetAside()
	require.NotEmpty(t, setAside)
	assert.True(t, strings.HasPrefix(filepath.Base(setAside), journalDBName+".unreadable-"))
	assert.FileExists(t, setAside)

	entries, err := j.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
