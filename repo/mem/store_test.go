package mem

import (
	"testing"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/repo"
	"github.com/creativeprojects/imapview/repo/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	store := NewWithLogger(lib.NewTestLogger(t, "mem"))
	defer store.Close()
	test.RunTestsOnStore(t, store)
}

func TestCloseDropsEverything(t *testing.T) {
	store := New()
	err := store.RunTransaction(false, func(tx repo.Txn) error {
		_, err := tx.CreateNode(store.Root(), "Work", true)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.Empty(t, store.nodes)
}

func TestIDsKeepGrowingAfterDelete(t *testing.T) {
	store := New()
	defer store.Close()

	var first, second repo.NodeID
	err := store.RunTransaction(false, func(tx repo.Txn) error {
		var err error
		first, err = tx.CreateNode(store.Root(), "one", false)
		require.NoError(t, err)
		return tx.Delete(first)
	})
	require.NoError(t, err)

	err = store.RunTransaction(false, func(tx repo.Txn) error {
		var err error
		second, err = tx.CreateNode(store.Root(), "two", false)
		return err
	})
	require.NoError(t, err)
	assert.Greater(t, second, first)
}
