package folder

import (
	"testing"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/mailbox"
	"github.com/creativeprojects/imapview/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendAndGetNode(t *testing.T, service *Service) repo.NodeID {
	t.Helper()
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)
	return repo.NodeID(appendSample(t, view, "flags", mailbox.FlagSet{}))
}

func readFlags(t *testing.T, service *Service, node repo.NodeID) mailbox.FlagSet {
	t.Helper()
	var flags mailbox.FlagSet
	err := service.store.RunTransaction(true, func(tx repo.Txn) error {
		var err error
		flags, err = service.Flags(tx, node)
		return err
	})
	require.NoError(t, err)
	return flags
}

func TestFlagRoundTrip(t *testing.T) {
	service := newTestService(t, Options{})
	node := appendAndGetNode(t, service)

	for _, flag := range mailbox.AllFlags {
		flag := flag
		t.Run(string(flag), func(t *testing.T) {
			err := service.store.RunTransaction(false, func(tx repo.Txn) error {
				return service.SetFlag(tx, testUser, node, flag, true)
			})
			require.NoError(t, err)
			assert.True(t, readFlags(t, service, node).Contains(flag))

			err = service.store.RunTransaction(false, func(tx repo.Txn) error {
				return service.SetFlag(tx, testUser, node, flag, false)
			})
			require.NoError(t, err)
			assert.False(t, readFlags(t, service, node).Contains(flag))
		})
	}
}

func TestFlagsWithoutMarkerReadFalse(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	var node repo.NodeID
	err = service.store.RunTransaction(false, func(tx repo.Txn) error {
		node, err = tx.CreateNode(view.FolderID(), "plain.txt", false)
		if err != nil {
			return err
		}
		// a flag attribute without the marker stays invisible
		return tx.SetAttr(node, repo.AttrFlagSeen, true)
	})
	require.NoError(t, err)
	assert.True(t, readFlags(t, service, node).IsEmpty())
}

func TestReplaceFlags(t *testing.T) {
	service := newTestService(t, Options{})
	node := appendAndGetNode(t, service)

	err := service.store.RunTransaction(false, func(tx repo.Txn) error {
		if err := service.SetFlags(tx, testUser, node, mailbox.FlagSet{Seen: true, Draft: true}, true); err != nil {
			return err
		}
		return service.ReplaceFlags(tx, testUser, node, mailbox.FlagSet{Flagged: true})
	})
	require.NoError(t, err)

	flags := readFlags(t, service, node)
	assert.Equal(t, mailbox.FlagSet{Flagged: true}, flags)
}

func TestDeletedFlagNeedsDeletePermission(t *testing.T) {
	denied := map[repo.NodeID][]repo.Permission{}
	service := newTestService(t, Options{Permissions: repo.DenyList{Nodes: denied}})
	node := appendAndGetNode(t, service)
	denied[node] = []repo.Permission{repo.PermissionDelete}

	err := service.store.RunTransaction(false, func(tx repo.Txn) error {
		return service.SetFlag(tx, testUser, node, mailbox.FlagDeleted, true)
	})
	assert.ErrorIs(t, err, lib.ErrAccessDenied)
	assert.False(t, readFlags(t, service, node).Deleted)

	// write-properties being denied does not matter for Deleted
	denied[node] = []repo.Permission{repo.PermissionWriteProperties}
	err = service.store.RunTransaction(false, func(tx repo.Txn) error {
		return service.SetFlag(tx, testUser, node, mailbox.FlagDeleted, true)
	})
	require.NoError(t, err)
	assert.True(t, readFlags(t, service, node).Deleted)
}

func TestDeniedSeenIsOnlyLogged(t *testing.T) {
	denied := map[repo.NodeID][]repo.Permission{}
	service := newTestService(t, Options{Permissions: repo.DenyList{Nodes: denied}})
	node := appendAndGetNode(t, service)
	denied[node] = []repo.Permission{repo.PermissionWriteProperties}

	// clients mark messages seen on every fetch: a denied Seen write
	// must not error the whole fetch out
	err := service.store.RunTransaction(false, func(tx repo.Txn) error {
		return service.SetFlag(tx, testUser, node, mailbox.FlagSeen, true)
	})
	require.NoError(t, err)
	assert.False(t, readFlags(t, service, node).Seen)
}

func TestDeniedOtherFlagErrors(t *testing.T) {
	denied := map[repo.NodeID][]repo.Permission{}
	service := newTestService(t, Options{Permissions: repo.DenyList{Nodes: denied}})
	node := appendAndGetNode(t, service)
	denied[node] = []repo.Permission{repo.PermissionWriteProperties}

	err := service.store.RunTransaction(false, func(tx repo.Txn) error {
		return service.SetFlag(tx, testUser, node, mailbox.FlagFlagged, true)
	})
	assert.ErrorIs(t, err, lib.ErrAccessDenied)
}

func TestFlaggableMarkerAttachedLazily(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	var node repo.NodeID
	err = service.store.RunTransaction(false, func(tx repo.Txn) error {
		node, err = tx.CreateNode(view.FolderID(), "plain.txt", false)
		return err
	})
	require.NoError(t, err)

	err = service.store.RunTransaction(false, func(tx repo.Txn) error {
		return service.SetFlag(tx, testUser, node, mailbox.FlagFlagged, true)
	})
	require.NoError(t, err)

	err = service.store.RunTransaction(true, func(tx repo.Txn) error {
		flaggable, err := tx.HasAspect(node, repo.AspectFlaggable)
		require.NoError(t, err)
		assert.True(t, flaggable)
		return nil
	})
	require.NoError(t, err)
}
