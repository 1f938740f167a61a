package infra

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abduljabar5/khushood/internal/domain"
)

func newTestEncryptedStore(t *testing.T) (*EncryptedStore, []byte, string) {
	t.Helper()
	dir := t.TempDir()
	key, err := NewFileKeyProvider(dir).EnsureKey()
	require.NoError(t, err)

	store, err := NewEncryptedStore(dir, key)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, key, dir
}

// TestEncryptedStore_SetGetRoundTrip verifies basic encrypted storage
func TestEncryptedStore_SetGetRoundTrip(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)

	require.NoError(t, store.Set("strict_mode", []byte(`{"enabled":true}`)))

	data, err := store.Get("strict_mode")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"enabled":true}`), data)
}

// TestEncryptedStore_MissingKey verifies the not-found error
func TestEncryptedStore_MissingKey(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)

	_, err := store.Get("never_written")

	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

// TestEncryptedStore_OverwriteAndDelete verifies update and delete
func TestEncryptedStore_OverwriteAndDelete(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)

	require.NoError(t, store.Set("k", []byte("first")))
	require.NoError(t, store.Set("k", []byte("second")))

	data, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	require.NoError(t, store.Delete("k"))
	_, err = store.Get("k")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)

	assert.NoError(t, store.Delete("k"))
}

// TestEncryptedStore_PersistsAcrossReopen verifies data survives close/open
// with the same key
func TestEncryptedStore_PersistsAcrossReopen(t *testing.T) {
	store, key, dir := newTestEncryptedStore(t)

	require.NoError(t, store.Set("commitment", []byte("payload")))
	require.NoError(t, store.Close())

	reopened, err := NewEncryptedStore(dir, key)
	require.NoError(t, err)
	defer reopened.Close()

	data, err := reopened.Get("commitment")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

// TestEncryptedStore_FileIsNotPlaintext verifies the commitment record cannot
// be read or edited with a text editor
func TestEncryptedStore_FileIsNotPlaintext(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)

	secret := []byte("the-strict-mode-record")
	require.NoError(t, store.Set("strict_mode", secret))
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), string(secret))
}

// TestEncryptedStore_PersisterOverEncryptedBackend verifies the persistence
// adapter works unchanged over the encrypted backend
func TestEncryptedStore_PersisterOverEncryptedBackend(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)
	p := NewPersistenceAdapter(store)

	cfg := domain.StrictModeConfig{Enabled: true, RequiredPhrase: "I choose to end this block early"}
	require.NoError(t, p.SaveStrictMode(cfg))

	loaded, err := p.LoadStrictMode()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
