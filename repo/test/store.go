package test

import (
	"testing"
	"time"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Event is one observer notification recorded during a test run.
type Event struct {
	Kind   string
	Node   repo.NodeID
	Detail string
}

// RecordingObserver keeps every mutation event for the tests to inspect.
type RecordingObserver struct {
	Events []Event
}

func (o *RecordingObserver) NodeCreated(tx repo.Txn, node repo.Node) {
	o.Events = append(o.Events, Event{Kind: "created", Node: node.ID, Detail: node.Name})
}

func (o *RecordingObserver) NodeRestored(tx repo.Txn, node repo.Node) {
	o.Events = append(o.Events, Event{Kind: "restored", Node: node.ID, Detail: node.Name})
}

func (o *RecordingObserver) NodeDeleted(tx repo.Txn, node repo.Node) {
	o.Events = append(o.Events, Event{Kind: "deleted", Node: node.ID, Detail: node.Name})
}

func (o *RecordingObserver) NodeMoved(tx repo.Txn, node repo.Node, oldParent repo.NodeID) {
	o.Events = append(o.Events, Event{Kind: "moved", Node: node.ID})
}

func (o *RecordingObserver) AttrChanged(tx repo.Txn, node repo.Node, name repo.Attr) {
	o.Events = append(o.Events, Event{Kind: "attr", Node: node.ID, Detail: string(name)})
}

func (o *RecordingObserver) AspectChanged(tx repo.Txn, node repo.Node, aspect repo.Aspect, added bool) {
	o.Events = append(o.Events, Event{Kind: "aspect", Node: node.ID, Detail: string(aspect)})
}

func (o *RecordingObserver) Filter(kind string) []Event {
	list := make([]Event, 0, len(o.Events))
	for _, event := range o.Events {
		if event.Kind == kind {
			list = append(list, event)
		}
	}
	return list
}

// RunTestsOnStore is the unit tests runner called by the concrete
// implementations of repo.Store.
func RunTestsOnStore(t *testing.T, store repo.Store) {
	require.NotNil(t, store)

	var folderID, messageID repo.NodeID

	t.Run("RootExists", func(t *testing.T) {
		err := store.RunTransaction(true, func(tx repo.Txn) error {
			assert.True(t, tx.NodeExists(store.Root()))
			node, err := tx.Node(store.Root())
			require.NoError(t, err)
			assert.True(t, node.Folder)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("CreateNodes", func(t *testing.T) {
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			var err error
			folderID, err = tx.CreateNode(store.Root(), "Work", true)
			require.NoError(t, err)
			messageID, err = tx.CreateNode(folderID, "message.eml", false)
			require.NoError(t, err)
			// ids only ever grow
			assert.Greater(t, messageID, folderID)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("ChildByName", func(t *testing.T) {
		err := store.RunTransaction(true, func(tx repo.Txn) error {
			child, err := tx.ChildByName(store.Root(), "Work")
			require.NoError(t, err)
			assert.Equal(t, folderID, child.ID)
			assert.Equal(t, store.Root(), child.Parent)

			_, err = tx.ChildByName(store.Root(), "no such child")
			assert.ErrorIs(t, err, lib.ErrNodeNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("ChildrenFoldersOnly", func(t *testing.T) {
		err := store.RunTransaction(true, func(tx repo.Txn) error {
			all, err := tx.Children(folderID, false)
			require.NoError(t, err)
			assert.Len(t, all, 1)

			folders, err := tx.Children(folderID, true)
			require.NoError(t, err)
			assert.Empty(t, folders)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("HiddenChildExcluded", func(t *testing.T) {
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			require.NoError(t, tx.AddAspect(messageID, repo.AspectHidden))
			children, err := tx.Children(folderID, false)
			require.NoError(t, err)
			assert.Empty(t, children)

			// the hidden node still resolves by name and by id
			assert.True(t, tx.NodeExists(messageID))
			child, err := tx.ChildByName(folderID, "message.eml")
			require.NoError(t, err)
			assert.Equal(t, messageID, child.ID)

			require.NoError(t, tx.RemoveAspect(messageID, repo.AspectHidden))
			children, err = tx.Children(folderID, false)
			require.NoError(t, err)
			assert.Len(t, children, 1)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("SetNodeType", func(t *testing.T) {
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			require.NoError(t, tx.SetNodeType(folderID, repo.TypeSite))
			node, err := tx.Node(folderID)
			require.NoError(t, err)
			assert.Equal(t, repo.TypeSite, node.Type)
			return tx.SetNodeType(folderID, repo.TypePlain)
		})
		require.NoError(t, err)
	})

	t.Run("Attrs", func(t *testing.T) {
		now := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			require.NoError(t, tx.SetAttr(messageID, repo.AttrTitle, "a title"))
			require.NoError(t, tx.SetAttr(messageID, repo.AttrMaxUID, int64(42)))
			require.NoError(t, tx.SetAttr(messageID, repo.AttrFlagSeen, true))
			require.NoError(t, tx.SetAttr(messageID, repo.AttrInternalDate, now))
			return nil
		})
		require.NoError(t, err)

		err = store.RunTransaction(true, func(tx repo.Txn) error {
			value, ok, err := tx.Attr(messageID, repo.AttrTitle)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "a title", value)

			value, ok, err = tx.Attr(messageID, repo.AttrMaxUID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(42), value)

			value, ok, err = tx.Attr(messageID, repo.AttrFlagSeen)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, true, value)

			value, ok, err = tx.Attr(messageID, repo.AttrInternalDate)
			require.NoError(t, err)
			require.True(t, ok)
			date, isTime := value.(time.Time)
			require.True(t, isTime)
			assert.True(t, now.Equal(date))

			_, ok, err = tx.Attr(messageID, repo.AttrAuthor)
			require.NoError(t, err)
			assert.False(t, ok)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("Content", func(t *testing.T) {
		body := []byte("Subject: hello\r\n\r\nbody")
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			require.NoError(t, tx.SetContent(messageID, body))
			stored, err := tx.Content(messageID)
			require.NoError(t, err)
			assert.Equal(t, body, stored)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("Aspects", func(t *testing.T) {
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			has, err := tx.HasAspect(messageID, repo.AspectMessage)
			require.NoError(t, err)
			assert.False(t, has)

			require.NoError(t, tx.AddAspect(messageID, repo.AspectMessage))
			// adding twice is a no-op
			require.NoError(t, tx.AddAspect(messageID, repo.AspectMessage))

			has, err = tx.HasAspect(messageID, repo.AspectMessage)
			require.NoError(t, err)
			assert.True(t, has)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("Assocs", func(t *testing.T) {
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			require.NoError(t, tx.CreateAssoc(store.Root(), messageID, repo.AssocMessageIndex))
			// creating twice keeps a single target
			require.NoError(t, tx.CreateAssoc(store.Root(), messageID, repo.AssocMessageIndex))

			targets, err := tx.AssocTargets(store.Root(), repo.AssocMessageIndex)
			require.NoError(t, err)
			assert.Equal(t, []repo.NodeID{messageID}, targets)

			require.NoError(t, tx.RemoveAssoc(store.Root(), messageID, repo.AssocMessageIndex))
			targets, err = tx.AssocTargets(store.Root(), repo.AssocMessageIndex)
			require.NoError(t, err)
			assert.Empty(t, targets)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("Rename", func(t *testing.T) {
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			require.NoError(t, tx.Rename(messageID, "renamed.eml"))
			child, err := tx.ChildByName(folderID, "renamed.eml")
			require.NoError(t, err)
			assert.Equal(t, messageID, child.ID)

			_, err = tx.ChildByName(folderID, "message.eml")
			assert.ErrorIs(t, err, lib.ErrNodeNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("Move", func(t *testing.T) {
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			otherID, err := tx.CreateNode(store.Root(), "Archive", true)
			require.NoError(t, err)

			require.NoError(t, tx.Move(messageID, otherID))
			node, err := tx.Node(messageID)
			require.NoError(t, err)
			assert.Equal(t, otherID, node.Parent)

			require.NoError(t, tx.Move(messageID, folderID))
			return tx.Delete(otherID)
		})
		require.NoError(t, err)
	})

	t.Run("CopyKeepsEverything", func(t *testing.T) {
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			copied, err := tx.Copy(messageID, store.Root())
			require.NoError(t, err)
			assert.Greater(t, copied, messageID)

			value, ok, err := tx.Attr(copied, repo.AttrTitle)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "a title", value)

			has, err := tx.HasAspect(copied, repo.AspectMessage)
			require.NoError(t, err)
			assert.True(t, has)

			body, err := tx.Content(copied)
			require.NoError(t, err)
			assert.Equal(t, []byte("Subject: hello\r\n\r\nbody"), body)

			return tx.Delete(copied)
		})
		require.NoError(t, err)
	})

	t.Run("RestoreNode", func(t *testing.T) {
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			node, err := tx.Node(messageID)
			require.NoError(t, err)

			require.NoError(t, tx.Delete(messageID))
			assert.False(t, tx.NodeExists(messageID))

			require.NoError(t, tx.RestoreNode(node))
			assert.True(t, tx.NodeExists(messageID))

			restored, err := tx.Node(messageID)
			require.NoError(t, err)
			assert.Equal(t, node, restored)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			subID, err := tx.CreateNode(folderID, "Sub", true)
			require.NoError(t, err)
			leafID, err := tx.CreateNode(subID, "leaf.eml", false)
			require.NoError(t, err)

			require.NoError(t, tx.Delete(subID))
			assert.False(t, tx.NodeExists(subID))
			assert.False(t, tx.NodeExists(leafID))

			// deleting a missing node is tolerated
			return tx.Delete(subID)
		})
		require.NoError(t, err)
	})

	t.Run("PreCommitRunsInOrder", func(t *testing.T) {
		order := []int{}
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			tx.OnPreCommit(func(tx repo.Txn) error {
				order = append(order, 1)
				return nil
			})
			tx.OnPreCommit(func(tx repo.Txn) error {
				order = append(order, 2)
				return nil
			})
			order = append(order, 0)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, order)
	})

	t.Run("Resources", func(t *testing.T) {
		err := store.RunTransaction(false, func(tx repo.Txn) error {
			assert.Nil(t, tx.Resource("some.key"))
			tx.BindResource("some.key", "value")
			assert.Equal(t, "value", tx.Resource("some.key"))
			return nil
		})
		require.NoError(t, err)

		// resources do not leak into the next transaction
		err = store.RunTransaction(true, func(tx repo.Txn) error {
			assert.Nil(t, tx.Resource("some.key"))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("ObserverEvents", func(t *testing.T) {
		observer := &RecordingObserver{}
		store.SetObserver(observer)
		defer store.SetObserver(nil)

		err := store.RunTransaction(false, func(tx repo.Txn) error {
			id, err := tx.CreateNode(folderID, "observed.eml", false)
			require.NoError(t, err)
			require.NoError(t, tx.SetAttr(id, repo.AttrTitle, "watch me"))
			require.NoError(t, tx.AddAspect(id, repo.AspectFlaggable))
			require.NoError(t, tx.Rename(id, "observed2.eml"))
			return tx.Delete(id)
		})
		require.NoError(t, err)

		assert.Len(t, observer.Filter("created"), 1)
		assert.Len(t, observer.Filter("deleted"), 1)
		assert.Len(t, observer.Filter("aspect"), 1)
		attrs := observer.Filter("attr")
		require.Len(t, attrs, 2)
		assert.Equal(t, string(repo.AttrTitle), attrs[0].Detail)
		assert.Equal(t, string(repo.AttrName), attrs[1].Detail)
	})
}
