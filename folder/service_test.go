package folder

import (
	"strings"
	"testing"
	"time"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/mailbox"
	"github.com/creativeprojects/imapview/repo"
	"github.com/creativeprojects/imapview/repo/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "alice"

func newTestService(t *testing.T, options Options) *Service {
	t.Helper()
	store := mem.New()
	if options.Logger == nil {
		options.Logger = lib.NewTestLogger(t, "folder")
	}
	if options.MountPoints == nil {
		options.MountPoints = []MountPoint{
			{Name: "Repository", Path: "Company Home", Mode: mailbox.ViewModeMixed},
		}
	}
	if options.DeleteDelay == 0 {
		options.DeleteDelay = 50 * time.Millisecond
	}
	service, err := NewService(store, options)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = service.Close()
		_ = store.Close()
	})
	return service
}

func sampleMessage(id string) string {
	return "From: contact@example.org\r\n" +
		"To: contact@example.org\r\n" +
		"Subject: a little message\r\n" +
		"Date: Wed, 11 May 2016 14:31:59 +0000\r\n" +
		"Message-ID: <" + id + "@localhost>\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Hi there :)"
}

func appendSample(t *testing.T, view *View, id string, flags mailbox.FlagSet) int64 {
	t.Helper()
	uid, err := view.AppendMessage(strings.NewReader(sampleMessage(id)), flags)
	require.NoError(t, err)
	require.Positive(t, uid)
	return uid
}

func TestFolderStatusBootstrap(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	snapshot, err := service.FolderStatus(testUser, view.FolderID(), mailbox.ViewModeMixed)
	require.NoError(t, err)
	assert.Equal(t, 0, snapshot.Messages)
	assert.NotEmpty(t, snapshot.ChangeToken)

	// the folder is now under change tracking
	err = service.store.RunTransaction(true, func(tx repo.Txn) error {
		tracked, err := tx.HasAspect(view.FolderID(), repo.AspectFolder)
		require.NoError(t, err)
		assert.True(t, tracked)

		token, ok, err := attrString(tx, view.FolderID(), repo.AttrChangeToken)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, snapshot.ChangeToken, token)
		return nil
	})
	require.NoError(t, err)
}

func TestFolderStatusCachedWhileUnchanged(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	first, err := service.FolderStatus(testUser, view.FolderID(), mailbox.ViewModeMixed)
	require.NoError(t, err)
	second, err := service.FolderStatus(testUser, view.FolderID(), mailbox.ViewModeMixed)
	require.NoError(t, err)
	// same snapshot object, not an equal copy
	assert.Same(t, first, second)
}

func TestChangeTokenRotatesOnNewMessage(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	before, err := service.FolderStatus(testUser, view.FolderID(), mailbox.ViewModeMixed)
	require.NoError(t, err)

	appendSample(t, view, "m1", mailbox.FlagSet{})

	after, err := service.FolderStatus(testUser, view.FolderID(), mailbox.ViewModeMixed)
	require.NoError(t, err)
	assert.NotEqual(t, before.ChangeToken, after.ChangeToken)
	assert.Equal(t, 1, after.Messages)
	assert.Equal(t, 1, after.Recent)
	assert.Equal(t, 1, after.Unseen)
	assert.Equal(t, 1, after.FirstUnseen)
}

func TestInOrderAppendKeepsEpoch(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	// the first tracked append mints the folder epoch
	_, err = view.UidValidity()
	require.NoError(t, err)
	appendSample(t, view, "m1", mailbox.FlagSet{})
	before, err := view.UidValidity()
	require.NoError(t, err)
	require.NotZero(t, before)

	// new messages sort after the recorded maximum: clients keep their
	// UID map across deliveries
	appendSample(t, view, "m2", mailbox.FlagSet{})
	appendSample(t, view, "m3", mailbox.FlagSet{})
	after, err := view.UidValidity()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSignificantChangeForcesNewEpoch(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	uid := appendSample(t, view, "m1", mailbox.FlagSet{})
	before, err := view.UidValidity()
	require.NoError(t, err)

	err = service.store.RunTransaction(false, func(tx repo.Txn) error {
		return tx.SetAttr(repo.NodeID(uid), repo.AttrTitle, "edited")
	})
	require.NoError(t, err)

	after, err := view.UidValidity()
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestInsignificantChangeKeepsEpoch(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	uid := appendSample(t, view, "m1", mailbox.FlagSet{})
	before, err := service.FolderStatus(testUser, view.FolderID(), mailbox.ViewModeMixed)
	require.NoError(t, err)

	err = service.store.RunTransaction(false, func(tx repo.Txn) error {
		return tx.SetAttr(repo.NodeID(uid), repo.AttrComponentID, "documentLibrary")
	})
	require.NoError(t, err)

	after, err := service.FolderStatus(testUser, view.FolderID(), mailbox.ViewModeMixed)
	require.NoError(t, err)
	// the token rotates so sessions refresh, but clients keep their UID map
	assert.NotEqual(t, before.ChangeToken, after.ChangeToken)
	assert.Equal(t, before.UIDValidity, after.UIDValidity)
}

func TestRestoredMessageForcesNewEpoch(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	first := appendSample(t, view, "m1", mailbox.FlagSet{})
	appendSample(t, view, "m2", mailbox.FlagSet{})

	before, err := view.UidValidity()
	require.NoError(t, err)

	// archive and restore the first message: its id now sorts below the
	// recorded maximum, which must discard cached client UID maps
	var archived repo.Node
	err = service.store.RunTransaction(false, func(tx repo.Txn) error {
		var err error
		archived, err = tx.Node(repo.NodeID(first))
		require.NoError(t, err)
		return tx.Delete(archived.ID)
	})
	require.NoError(t, err)

	err = service.store.RunTransaction(false, func(tx repo.Txn) error {
		return tx.RestoreNode(archived)
	})
	require.NoError(t, err)

	after, err := view.UidValidity()
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestViewModeFiltersMessages(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)

	appendSample(t, view, "m1", mailbox.FlagSet{})
	// a plain content item, not a message
	err = service.store.RunTransaction(false, func(tx repo.Txn) error {
		id, err := tx.CreateNode(view.FolderID(), "report.txt", false)
		if err != nil {
			return err
		}
		return tx.SetContent(id, []byte("quarterly report"))
	})
	require.NoError(t, err)

	testCases := []struct {
		mode     mailbox.ViewMode
		messages int
	}{
		{mailbox.ViewModeMixed, 2},
		{mailbox.ViewModeArchive, 1},
		{mailbox.ViewModeVirtual, 1},
	}
	for _, testCase := range testCases {
		t.Run(string(testCase.mode), func(t *testing.T) {
			snapshot, err := service.FolderStatus(testUser, view.FolderID(), testCase.mode)
			require.NoError(t, err)
			assert.Equal(t, testCase.messages, snapshot.Messages)
		})
	}
}

func TestStatusVisibleAcrossUsers(t *testing.T) {
	service := newTestService(t, Options{})
	view, err := service.GetMailbox(testUser, "Repository")
	require.NoError(t, err)
	appendSample(t, view, "m1", mailbox.FlagSet{})

	mine, err := service.FolderStatus(testUser, view.FolderID(), mailbox.ViewModeMixed)
	require.NoError(t, err)
	other, err := service.FolderStatus("bob", view.FolderID(), mailbox.ViewModeMixed)
	require.NoError(t, err)

	// same folder state, same token, but snapshots are cached per user
	assert.Equal(t, mine.ChangeToken, other.ChangeToken)
	assert.NotSame(t, mine, other)
	assert.Equal(t, mine.Messages, other.Messages)
}
