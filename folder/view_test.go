package folder

import (
	"strings"
	"testing"
	"time"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/mailbox"
	"github.com/creativeprojects/imapview/repo"
	"github.com/emersion/go-message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendMessage(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	uid := appendSample(t, view, "m1", mailbox.FlagSet{Seen: true})

	count, err := view.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := view.GetMessage(uid)
	require.NoError(t, err)
	assert.Equal(t, sampleMessage("m1"), string(stored.Body))
	assert.True(t, stored.Flags.Seen)
	assert.True(t, stored.Flags.Recent)
	assert.False(t, stored.InternalDate.IsZero())
}

func TestAppendAssignsGrowingUids(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	first := appendSample(t, view, "m1", mailbox.FlagSet{})
	second := appendSample(t, view, "m2", mailbox.FlagSet{})
	assert.Greater(t, second, first)

	uidNext, err := view.UidNext()
	require.NoError(t, err)
	assert.Equal(t, second+1, uidNext)
}

func TestAppendDeduplicatesByMessageID(t *testing.T) {
	service := newTestService(t, Options{})
	inbox, err := service.GetOrCreateMailbox(testUser, "Repository/Inbox", true, true)
	require.NoError(t, err)
	archive, err := service.GetOrCreateMailbox(testUser, "Repository/Archive", true, true)
	require.NoError(t, err)

	first := appendSample(t, inbox, "same-id", mailbox.FlagSet{Deleted: true})
	second, err := archive.AppendMessage(strings.NewReader(sampleMessage("same-id")), mailbox.FlagSet{})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// the copy carries the content and drops the Deleted flag
	stored, err := archive.GetMessage(second)
	require.NoError(t, err)
	assert.Equal(t, sampleMessage("same-id"), string(stored.Body))
	assert.False(t, stored.Flags.Deleted)
	assert.True(t, stored.Flags.Recent)

	// only the original is registered in the identity index
	err = service.store.RunTransaction(true, func(tx repo.Txn) error {
		targets, err := tx.AssocTargets(service.store.Root(), repo.AssocMessageIndex)
		require.NoError(t, err)
		assert.Equal(t, []repo.NodeID{repo.NodeID(first)}, targets)
		return nil
	})
	require.NoError(t, err)
}

func TestAppendToUnwritableFolder(t *testing.T) {
	denied := map[repo.NodeID][]repo.Permission{}
	service := newTestService(t, Options{Permissions: repo.DenyList{Nodes: denied}})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)
	denied[view.FolderID()] = []repo.Permission{repo.PermissionAddChildren}

	_, err = view.AppendMessage(strings.NewReader(sampleMessage("m1")), mailbox.FlagSet{})
	assert.ErrorIs(t, err, lib.ErrAccessDenied)
}

func TestCopyMessage(t *testing.T) {
	service := newTestService(t, Options{})
	inbox, err := service.GetOrCreateMailbox(testUser, "Repository/Inbox", true, true)
	require.NoError(t, err)
	archive, err := service.GetOrCreateMailbox(testUser, "Repository/Archive", true, true)
	require.NoError(t, err)

	uid := appendSample(t, inbox, "m1", mailbox.FlagSet{Seen: true})
	copied, err := inbox.CopyMessage(uid, archive)
	require.NoError(t, err)
	assert.NotEqual(t, uid, copied)

	count, err := inbox.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = archive.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := archive.GetMessage(copied)
	require.NoError(t, err)
	assert.Equal(t, sampleMessage("m1"), string(stored.Body))
	assert.True(t, stored.Flags.Seen)
}

func TestCopyMissingMessage(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	_, err = view.CopyMessage(9999, view)
	assert.ErrorIs(t, err, lib.ErrMessageNotFound)
}

func TestVirtualFolderSynthesizesMessages(t *testing.T) {
	service := newTestService(t, Options{MountPoints: []MountPoint{
		{Name: "Documents", Path: "Company Home", Mode: mailbox.ViewModeVirtual},
	}})
	view, err := service.GetMailbox(testUser, "Documents")
	require.NoError(t, err)

	var node repo.NodeID
	err = service.store.RunTransaction(false, func(tx repo.Txn) error {
		node, err = tx.CreateNode(view.FolderID(), "report.txt", false)
		if err != nil {
			return err
		}
		if err = tx.SetAttr(node, repo.AttrTitle, "Quarterly report"); err != nil {
			return err
		}
		if err = tx.SetAttr(node, repo.AttrAuthor, "alice@example.org"); err != nil {
			return err
		}
		return tx.SetContent(node, []byte("all good"))
	})
	require.NoError(t, err)

	stored, err := view.GetMessage(int64(node))
	require.NoError(t, err)

	parsed, err := message.Read(strings.NewReader(string(stored.Body)))
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report", parsed.Header.Get("Subject"))
	assert.Equal(t, "alice@example.org", parsed.Header.Get("From"))
	assert.NotEmpty(t, parsed.Header.Get("Message-Id"))
}

func TestSearchUids(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	appendSample(t, view, "m1", mailbox.FlagSet{Seen: true})
	second := appendSample(t, view, "m2", mailbox.FlagSet{})

	unseen, err := view.SearchUids(func(node repo.Node, flags mailbox.FlagSet) bool {
		return !flags.Seen
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{second}, unseen)
}

func TestRecentCountReset(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	appendSample(t, view, "m1", mailbox.FlagSet{})
	appendSample(t, view, "m2", mailbox.FlagSet{})

	count, err := view.RecentCount(true)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = view.RecentCount(false)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestExpungeHidesThenDeletes(t *testing.T) {
	service := newTestService(t, Options{DeleteDelay: 50 * time.Millisecond})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	uid := appendSample(t, view, "m1", mailbox.FlagSet{})
	require.NoError(t, view.ExpungeUid(uid))

	// gone from the mailbox immediately
	count, err := view.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// but the node is only hidden until the delay runs out
	err = service.store.RunTransaction(true, func(tx repo.Txn) error {
		assert.True(t, tx.NodeExists(repo.NodeID(uid)))
		return nil
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		exists := true
		_ = service.store.RunTransaction(true, func(tx repo.Txn) error {
			exists = tx.NodeExists(repo.NodeID(uid))
			return nil
		})
		return !exists
	}, time.Second, 10*time.Millisecond)
}

func TestExpungedMessageSurvivesUnhide(t *testing.T) {
	service := newTestService(t, Options{DeleteDelay: 100 * time.Millisecond})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	uid := appendSample(t, view, "m1", mailbox.FlagSet{})
	require.NoError(t, view.ExpungeUid(uid))

	// restoring the item before the delay cancels the hard delete
	err = service.store.RunTransaction(false, func(tx repo.Txn) error {
		return tx.RemoveAspect(repo.NodeID(uid), repo.AspectHidden)
	})
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)

	err = service.store.RunTransaction(true, func(tx repo.Txn) error {
		assert.True(t, tx.NodeExists(repo.NodeID(uid)))
		return nil
	})
	require.NoError(t, err)

	count, err := view.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestExpungeDeletedMessages(t *testing.T) {
	service := newTestService(t, Options{DeleteDelay: 50 * time.Millisecond})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	kept := appendSample(t, view, "m1", mailbox.FlagSet{})
	doomed := appendSample(t, view, "m2", mailbox.FlagSet{Deleted: true})

	expunged, err := view.Expunge()
	require.NoError(t, err)
	assert.Equal(t, []int64{doomed}, expunged)

	uids, err := view.Uids()
	require.NoError(t, err)
	assert.Equal(t, []int64{kept}, uids)
}

func TestDeleteAllMessages(t *testing.T) {
	service := newTestService(t, Options{DeleteDelay: 50 * time.Millisecond})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	appendSample(t, view, "m1", mailbox.FlagSet{})
	appendSample(t, view, "m2", mailbox.FlagSet{})

	require.NoError(t, view.DeleteAllMessages())
	count, err := view.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestExpungeNeedsDeletePermission(t *testing.T) {
	denied := map[repo.NodeID][]repo.Permission{}
	service := newTestService(t, Options{Permissions: repo.DenyList{Nodes: denied}})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	uid := appendSample(t, view, "m1", mailbox.FlagSet{})
	denied[repo.NodeID(uid)] = []repo.Permission{repo.PermissionDelete}

	assert.ErrorIs(t, view.ExpungeUid(uid), lib.ErrAccessDenied)
}

func TestUidValidityOffsetByMountPoint(t *testing.T) {
	service := newTestService(t, Options{MountPoints: []MountPoint{
		{Name: "One", Path: "Company Home", Mode: mailbox.ViewModeMixed, ID: 100},
		{Name: "Two", Path: "Company Home", Mode: mailbox.ViewModeMixed, ID: 200},
	}})

	one, err := service.GetMailbox(testUser, "One")
	require.NoError(t, err)
	two, err := service.GetMailbox(testUser, "Two")
	require.NoError(t, err)
	appendSample(t, one, "m1", mailbox.FlagSet{})

	first, err := one.UidValidity()
	require.NoError(t, err)
	second, err := two.UidValidity()
	require.NoError(t, err)
	// same folder, same epoch underneath, different mount offsets
	assert.Equal(t, int64(100), second-first)
}

type recordingListener struct {
	folder repo.NodeID
	uid    int64
	msn    int
	calls  int
}

func (l *recordingListener) FlagsChanged(folder repo.NodeID, uid int64, msn int) {
	l.folder = folder
	l.uid = uid
	l.msn = msn
	l.calls++
}

func TestFlagChangeNotifiesListeners(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	appendSample(t, view, "m1", mailbox.FlagSet{})
	uid := appendSample(t, view, "m2", mailbox.FlagSet{})

	listener := &recordingListener{}
	session := &recordingListener{}
	service.AddListener(view.FolderID(), listener)
	service.AddListener(view.FolderID(), session)
	defer service.RemoveListener(view.FolderID(), listener)
	defer service.RemoveListener(view.FolderID(), session)

	// the session changing the flags is not echoed its own change
	require.NoError(t, view.SetMessageFlags(uid, mailbox.FlagSet{Seen: true}, true, session))

	assert.Equal(t, 1, listener.calls)
	assert.Equal(t, view.FolderID(), listener.folder)
	assert.Equal(t, uid, listener.uid)
	assert.Equal(t, 2, listener.msn)
	assert.Equal(t, 0, session.calls)
}

func TestRemoveListener(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)
	uid := appendSample(t, view, "m1", mailbox.FlagSet{})

	listener := &recordingListener{}
	service.AddListener(view.FolderID(), listener)
	service.RemoveListener(view.FolderID(), listener)

	require.NoError(t, view.SetMessageFlags(uid, mailbox.FlagSet{Seen: true}, true, nil))
	assert.Equal(t, 0, listener.calls)
}
