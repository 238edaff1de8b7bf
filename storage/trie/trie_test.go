package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"nftmarket/storage"
)

func TestTriePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256([]byte("listing"))
	value := []byte("value")

	require.NoError(t, tr.Update(key, value))
	root := tr.Root()
	require.NotEmpty(t, root)

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root)
	require.NoError(t, err)

	got, err := restored.Get(key)
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieRootIsContentAddressed(t *testing.T) {
	keyA := crypto.Keccak256([]byte("a"))
	keyB := crypto.Keccak256([]byte("b"))

	first, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	require.NoError(t, first.Update(keyA, []byte("1")))
	require.NoError(t, first.Update(keyB, []byte("2")))

	// Same contents inserted in the opposite order must commit to the same
	// root.
	second, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	require.NoError(t, second.Update(keyB, []byte("2")))
	require.NoError(t, second.Update(keyA, []byte("1")))

	require.Equal(t, first.Hash(), second.Hash())

	require.NoError(t, second.Update(keyA, []byte("3")))
	require.NotEqual(t, first.Hash(), second.Hash())
}

func TestTrieDeleteRestoresPriorRoot(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)

	keyA := crypto.Keccak256([]byte("a"))
	keyB := crypto.Keccak256([]byte("b"))

	require.NoError(t, tr.Update(keyA, []byte("1")))
	rootBefore := tr.Hash()

	require.NoError(t, tr.Update(keyB, []byte("2")))
	require.NotEqual(t, rootBefore, tr.Hash())

	require.NoError(t, tr.Delete(keyB))
	require.Equal(t, rootBefore, tr.Hash())

	got, err := tr.Get(keyB)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestTrieGetMissingKey(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)

	got, err := tr.Get(crypto.Keccak256([]byte("missing")))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestTrieBoltBackend(t *testing.T) {
	path := t.TempDir() + "/market.db"

	db, err := storage.NewBoltDB(path)
	require.NoError(t, err)
	defer db.Close()

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)

	key := crypto.Keccak256([]byte("bolt"))
	require.NoError(t, tr.Update(key, []byte("payload")))

	got, err := tr.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}
