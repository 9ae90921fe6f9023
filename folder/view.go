package folder

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/limitio"
	"github.com/creativeprojects/imapview/mailbox"
	"github.com/creativeprojects/imapview/repo"
	"github.com/google/uuid"
)

// View presents one folder to one user as an IMAP mailbox. A View is
// cheap to create and holds no state of its own: every operation reads
// the current snapshot from the service cache first, then runs its own
// transaction.
type View struct {
	service    *Service
	user       string
	name       string
	folder     repo.Node
	mode       mailbox.ViewMode
	mountID    int
	selectable bool
}

func newView(service *Service, user, name string, folder repo.Node, mode mailbox.ViewMode, mountID int, selectable bool) *View {
	return &View{
		service:    service,
		user:       user,
		name:       name,
		folder:     folder,
		mode:       mode,
		mountID:    mountID,
		selectable: selectable,
	}
}

// Name returns the full mailbox name, delimited with "/".
func (v *View) Name() string {
	return v.name
}

// FolderID returns the backing folder node.
func (v *View) FolderID() repo.NodeID {
	return v.folder.ID
}

// ViewMode returns the mount point's view mode.
func (v *View) ViewMode() mailbox.ViewMode {
	return v.mode
}

// Selectable reports whether the mailbox can be selected. Intermediate
// mailboxes materialized for the hierarchy only cannot.
func (v *View) Selectable() bool {
	return v.selectable
}

func (v *View) status() (*Snapshot, error) {
	return v.service.FolderStatus(v.user, v.folder.ID, v.mode)
}

// UidValidity returns the mailbox UIDVALIDITY. The folder epoch is
// offset by the mount point id so the same folder mounted twice never
// presents colliding (UIDVALIDITY, UID) pairs.
func (v *View) UidValidity() (int64, error) {
	snapshot, err := v.status()
	if err != nil {
		return 0, err
	}
	return snapshot.UIDValidity + int64(v.mountID), nil
}

// UidNext returns the lowest UID the next appended message can get.
func (v *View) UidNext() (int64, error) {
	snapshot, err := v.status()
	if err != nil {
		return 0, err
	}
	return snapshot.UIDNext(), nil
}

// MessageCount returns the number of visible messages.
func (v *View) MessageCount() (int, error) {
	snapshot, err := v.status()
	if err != nil {
		return 0, err
	}
	return snapshot.Messages, nil
}

// UnseenCount returns the number of messages without the Seen flag.
func (v *View) UnseenCount() (int, error) {
	snapshot, err := v.status()
	if err != nil {
		return 0, err
	}
	return snapshot.Unseen, nil
}

// FirstUnseen returns the sequence number of the first unseen message,
// 0 when all messages are seen.
func (v *View) FirstUnseen() (int, error) {
	snapshot, err := v.status()
	if err != nil {
		return 0, err
	}
	return snapshot.FirstUnseen, nil
}

// RecentCount returns the number of messages flagged Recent. With reset,
// the flag is removed so the messages count as recent for this session
// only.
func (v *View) RecentCount(reset bool) (int, error) {
	snapshot, err := v.status()
	if err != nil {
		return 0, err
	}
	count := snapshot.Recent
	if !reset || count == 0 {
		return count, nil
	}
	err = repo.RetryingTransaction(v.service.store, false, v.service.retries, func(tx repo.Txn) error {
		for _, uid := range snapshot.UIDs() {
			flags, err := v.service.Flags(tx, repo.NodeID(uid))
			if err != nil {
				return err
			}
			if !flags.Recent {
				continue
			}
			if err = v.service.SetFlag(tx, v.user, repo.NodeID(uid), mailbox.FlagRecent, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Uids returns the visible UIDs in ascending order.
func (v *View) Uids() ([]int64, error) {
	snapshot, err := v.status()
	if err != nil {
		return nil, err
	}
	return snapshot.UIDs(), nil
}

// Msn returns the 1-based message sequence number of a UID.
func (v *View) Msn(uid int64) (int, error) {
	snapshot, err := v.status()
	if err != nil {
		return 0, err
	}
	return snapshot.Msn(uid)
}

// GetMessage materializes one message: stored bytes for a mail item, a
// synthesized rendition for a plain content item.
func (v *View) GetMessage(uid int64) (*StoredMessage, error) {
	snapshot, err := v.status()
	if err != nil {
		return nil, err
	}
	node, ok := snapshot.Node(uid)
	if !ok {
		return nil, fmt.Errorf("uid %d: %w", uid, lib.ErrMessageNotFound)
	}
	message := &StoredMessage{UID: uid}
	err = repo.RetryingTransaction(v.service.store, true, v.service.retries, func(tx repo.Txn) error {
		var err error
		message.Body, err = v.service.materializeMessage(tx, node)
		if err != nil {
			return err
		}
		message.Flags, err = v.service.Flags(tx, node.ID)
		if err != nil {
			return err
		}
		message.InternalDate, err = attrTime(tx, node.ID, repo.AttrInternalDate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// SearchUids returns the UIDs whose node and flags satisfy the
// predicate, in ascending order.
func (v *View) SearchUids(match func(node repo.Node, flags mailbox.FlagSet) bool) ([]int64, error) {
	snapshot, err := v.status()
	if err != nil {
		return nil, err
	}
	found := make([]int64, 0, snapshot.Messages)
	err = repo.RetryingTransaction(v.service.store, true, v.service.retries, func(tx repo.Txn) error {
		found = found[:0]
		for _, uid := range snapshot.UIDs() {
			node, _ := snapshot.Node(uid)
			flags, err := v.service.Flags(tx, node.ID)
			if err != nil {
				return err
			}
			if match(node, flags) {
				found = append(found, uid)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// AppendMessage stores a new message in the folder and returns its UID.
// A message whose identity is already known to the repository is not
// stored twice: the existing item is copied in instead, so the content
// exists once however many folders present it.
func (v *View) AppendMessage(source io.Reader, flags mailbox.FlagSet) (int64, error) {
	if !v.selectable {
		return 0, fmt.Errorf("cannot append to %q: %w", v.name, lib.ErrFolderNotSelectable)
	}
	if v.service.perms.HasPermission(v.user, v.folder.ID, repo.PermissionAddChildren) == repo.Denied {
		return 0, fmt.Errorf("cannot append to %q: %w", v.name, lib.ErrAccessDenied)
	}
	data, err := v.service.readMessageData(source)
	if err != nil {
		return 0, err
	}
	identity := messageIdentity(data)

	var uid int64
	err = repo.RetryingTransaction(v.service.store, false, v.service.retries, func(tx repo.Txn) error {
		existing, found, err := v.service.findMessageByIdentity(tx, identity)
		if err != nil {
			return err
		}
		if found {
			id, err := tx.Copy(existing.ID, v.folder.ID)
			if err != nil {
				return err
			}
			uid = int64(id)
			// the original may sit expunged awaiting its delayed delete,
			// in which case the copy inherited the hidden marker
			if err = tx.RemoveAspect(id, repo.AspectHidden); err != nil {
				return err
			}
			if err = v.renameMessage(tx, id, uid); err != nil {
				return err
			}
			if err = tx.SetAttr(id, repo.AttrInternalDate, time.Now().UTC()); err != nil {
				return err
			}
			if err = v.service.SetFlags(tx, v.user, id, flags, true); err != nil {
				return err
			}
			if err = v.service.SetFlag(tx, v.user, id, mailbox.FlagDeleted, false); err != nil {
				return err
			}
			return v.service.SetFlag(tx, v.user, id, mailbox.FlagRecent, true)
		}

		id, err := tx.CreateNode(v.folder.ID, uuid.NewString(), false)
		if err != nil {
			return err
		}
		uid = int64(id)
		if err = v.renameMessage(tx, id, uid); err != nil {
			return err
		}
		// the initial content write is part of storing the message, whose
		// creation already registered the tracker: as a content change it
		// would discard every client's UID map on each delivery
		err = v.service.withEventsSuppressed(tx, func() error {
			return tx.SetContent(id, data)
		})
		if err != nil {
			return err
		}
		if err = tx.AddAspect(id, repo.AspectMessage); err != nil {
			return err
		}
		if err = tx.SetAttr(id, repo.AttrInternalDate, time.Now().UTC()); err != nil {
			return err
		}
		if identity != "" {
			if err = tx.SetAttr(id, repo.AttrMessageID, identity); err != nil {
				return err
			}
			if err = tx.CreateAssoc(v.service.store.Root(), id, repo.AssocMessageIndex); err != nil {
				return err
			}
		}
		if err = v.service.SetFlags(tx, v.user, id, flags, true); err != nil {
			return err
		}
		if err = v.service.SetFlag(tx, v.user, id, mailbox.FlagRecent, true); err != nil {
			return err
		}
		if v.service.extraction && v.service.extractor != nil {
			if err = v.service.extractor.ExtractAttachments(tx, id, data); err != nil {
				// extraction is best effort, the message itself is in
				v.service.log.Printf("append: attachment extraction failed on node %d: %v", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uid, nil
}

// CopyMessage copies one message into another mailbox and returns the
// UID of the copy. Mail items go through the target's append path so
// identity dedup applies; plain content items are copied as nodes.
func (v *View) CopyMessage(uid int64, target *View) (int64, error) {
	snapshot, err := v.status()
	if err != nil {
		return 0, err
	}
	node, ok := snapshot.Node(uid)
	if !ok {
		return 0, fmt.Errorf("uid %d: %w", uid, lib.ErrMessageNotFound)
	}

	var isMessage bool
	var body []byte
	var flags mailbox.FlagSet
	err = repo.RetryingTransaction(v.service.store, true, v.service.retries, func(tx repo.Txn) error {
		var err error
		isMessage, err = tx.HasAspect(node.ID, repo.AspectMessage)
		if err != nil {
			return err
		}
		if isMessage {
			body, err = tx.Content(node.ID)
			if err != nil {
				return err
			}
			flags, err = v.service.Flags(tx, node.ID)
		}
		return err
	})
	if err != nil {
		return 0, err
	}

	if isMessage {
		return target.AppendMessage(bytes.NewReader(body), flags.WithoutRecent())
	}

	var copied int64
	err = repo.RetryingTransaction(v.service.store, false, v.service.retries, func(tx repo.Txn) error {
		id, err := tx.Copy(node.ID, target.folder.ID)
		if err != nil {
			return err
		}
		copied = int64(id)
		return v.service.SetFlag(tx, target.user, id, mailbox.FlagRecent, true)
	})
	if err != nil {
		return 0, err
	}
	return copied, nil
}

// SetMessageFlags applies the flags contained in the set to one message
// and notifies the folder's listeners, except the silent one.
func (v *View) SetMessageFlags(uid int64, flags mailbox.FlagSet, value bool, silent Listener) error {
	return v.changeFlags(uid, silent, func(tx repo.Txn, node repo.NodeID) error {
		return v.service.SetFlags(tx, v.user, node, flags, value)
	})
}

// ReplaceMessageFlags overwrites the whole flag vector of one message.
func (v *View) ReplaceMessageFlags(uid int64, flags mailbox.FlagSet, silent Listener) error {
	return v.changeFlags(uid, silent, func(tx repo.Txn, node repo.NodeID) error {
		return v.service.ReplaceFlags(tx, v.user, node, flags)
	})
}

func (v *View) changeFlags(uid int64, silent Listener, change func(tx repo.Txn, node repo.NodeID) error) error {
	snapshot, err := v.status()
	if err != nil {
		return err
	}
	node, ok := snapshot.Node(uid)
	if !ok {
		return fmt.Errorf("uid %d: %w", uid, lib.ErrMessageNotFound)
	}
	msn, err := snapshot.Msn(uid)
	if err != nil {
		return err
	}
	err = repo.RetryingTransaction(v.service.store, false, v.service.retries, func(tx repo.Txn) error {
		return change(tx, node.ID)
	})
	if err != nil {
		return err
	}
	v.service.notifyFlagsChanged(v.folder.ID, uid, msn, silent)
	return nil
}

// Expunge removes every message flagged Deleted.
func (v *View) Expunge() ([]int64, error) {
	deleted, err := v.SearchUids(func(node repo.Node, flags mailbox.FlagSet) bool {
		return flags.Deleted
	})
	if err != nil {
		return nil, err
	}
	for _, uid := range deleted {
		if err = v.ExpungeUid(uid); err != nil {
			return nil, err
		}
	}
	return deleted, nil
}

// ExpungeUid removes one message. The item disappears from the mailbox
// immediately but the hard delete only runs after the configured delay,
// so a same-session copy of the expunged message still finds its bytes.
func (v *View) ExpungeUid(uid int64) error {
	snapshot, err := v.status()
	if err != nil {
		return err
	}
	node, ok := snapshot.Node(uid)
	if !ok {
		return fmt.Errorf("uid %d: %w", uid, lib.ErrMessageNotFound)
	}
	if v.service.perms.HasPermission(v.user, node.ID, repo.PermissionDelete) == repo.Denied {
		return fmt.Errorf("cannot expunge uid %d: %w", uid, lib.ErrAccessDenied)
	}
	err = repo.RetryingTransaction(v.service.store, false, v.service.retries, func(tx repo.Txn) error {
		return tx.AddAspect(node.ID, repo.AspectHidden)
	})
	if err != nil {
		return err
	}
	v.service.scheduleDelete(node.ID)
	return nil
}

// DeleteAllMessages removes every visible message, through the same
// hide-then-delete path as expunge.
func (v *View) DeleteAllMessages() error {
	snapshot, err := v.status()
	if err != nil {
		return err
	}
	for _, uid := range snapshot.UIDs() {
		if err = v.ExpungeUid(uid); err != nil {
			return err
		}
	}
	return nil
}

// scheduleDelete queues the hard delete of a hidden node. The task
// re-checks the hidden marker: an item restored in the meantime is left
// alone.
func (s *Service) scheduleDelete(id repo.NodeID) {
	s.scheduler.Schedule(fmt.Sprintf("delete node %d", id), func() error {
		return repo.RetryingTransaction(s.store, false, s.retries, func(tx repo.Txn) error {
			if !tx.NodeExists(id) {
				return nil
			}
			hidden, err := tx.HasAspect(id, repo.AspectHidden)
			if err != nil {
				return err
			}
			if !hidden {
				return nil
			}
			if err = tx.RemoveAspect(id, repo.AspectHidden); err != nil {
				return err
			}
			return tx.Delete(id)
		})
	})
}

// readMessageData drains the message source, throttled when an append
// rate limit is configured.
func (s *Service) readMessageData(source io.Reader) ([]byte, error) {
	reader := limitio.NewReader(source)
	if s.appendRate > 0 {
		reader.SetRateLimit(s.appendRate, s.appendBurst)
	}
	return io.ReadAll(reader)
}

func messageName(uid int64) string {
	return fmt.Sprintf("message_%d.eml", uid)
}

// renameMessage gives a freshly stored message its final name. The
// rename runs with events suppressed: a name change normally forces a
// new epoch, but this one is part of storing the message, whose creation
// already registered the tracker.
func (v *View) renameMessage(tx repo.Txn, id repo.NodeID, uid int64) error {
	return v.service.withEventsSuppressed(tx, func() error {
		return tx.Rename(id, messageName(uid))
	})
}

func attrTime(tx repo.Txn, id repo.NodeID, name repo.Attr) (time.Time, error) {
	value, ok, err := tx.Attr(id, name)
	if err != nil || !ok {
		return time.Time{}, err
	}
	date, isTime := value.(time.Time)
	if !isTime {
		return time.Time{}, nil
	}
	return date, nil
}
