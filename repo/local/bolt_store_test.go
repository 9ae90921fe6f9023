package local

import (
	"path/filepath"
	"testing"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/repo"
	"github.com/creativeprojects/imapview/repo/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltStore(t *testing.T) {
	store, err := NewBoltStoreWithLogger(filepath.Join(t.TempDir(), "store.db"), lib.NewTestLogger(t, "bolt"))
	require.NoError(t, err)
	defer store.Close()
	test.RunTestsOnStore(t, store)
}

func TestReopenKeepsNodes(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "store.db")

	store, err := NewBoltStore(filename)
	require.NoError(t, err)
	root := store.Root()

	var folderID repo.NodeID
	err = store.RunTransaction(false, func(tx repo.Txn) error {
		var err error
		folderID, err = tx.CreateNode(root, "Work", true)
		if err != nil {
			return err
		}
		return tx.SetAttr(folderID, repo.AttrChangeToken, "token-1")
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewBoltStore(filename)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, root, store.Root())
	err = store.RunTransaction(true, func(tx repo.Txn) error {
		child, err := tx.ChildByName(root, "Work")
		require.NoError(t, err)
		assert.Equal(t, folderID, child.ID)

		value, ok, err := tx.Attr(folderID, repo.AttrChangeToken)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "token-1", value)
		return nil
	})
	require.NoError(t, err)
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(filepath.Join(dir, "store.db"))
	require.NoError(t, err)
	defer store.Close()

	err = store.RunTransaction(false, func(tx repo.Txn) error {
		_, err := tx.CreateNode(store.Root(), "Work", true)
		return err
	})
	require.NoError(t, err)

	backupFile := filepath.Join(dir, "backup.db")
	require.NoError(t, store.Backup(backupFile))

	backup, err := NewBoltStore(backupFile)
	require.NoError(t, err)
	defer backup.Close()

	err = backup.RunTransaction(true, func(tx repo.Txn) error {
		_, err := tx.ChildByName(backup.Root(), "Work")
		return err
	})
	require.NoError(t, err)
}

func TestFailedTransactionRollsBack(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer store.Close()

	err = store.RunTransaction(false, func(tx repo.Txn) error {
		if _, err := tx.CreateNode(store.Root(), "Work", true); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	err = store.RunTransaction(true, func(tx repo.Txn) error {
		_, err := tx.ChildByName(store.Root(), "Work")
		assert.ErrorIs(t, err, lib.ErrNodeNotFound)
		return nil
	})
	require.NoError(t, err)
}
