package folder

import (
	"fmt"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/mailbox"
	"github.com/creativeprojects/imapview/repo"
)

const checkedFlaggableResource = "imapview.flaggableChecked"

var flagToAttr = map[mailbox.Flag]repo.Attr{
	mailbox.FlagAnswered: repo.AttrFlagAnswered,
	mailbox.FlagDeleted:  repo.AttrFlagDeleted,
	mailbox.FlagDraft:    repo.AttrFlagDraft,
	mailbox.FlagSeen:     repo.AttrFlagSeen,
	mailbox.FlagRecent:   repo.AttrFlagRecent,
	mailbox.FlagFlagged:  repo.AttrFlagFlagged,
}

// Flags reads the six message flags of a node. A node without the
// flaggable marker reads as all-false.
func (s *Service) Flags(tx repo.Txn, node repo.NodeID) (mailbox.FlagSet, error) {
	var flags mailbox.FlagSet
	flaggable, err := tx.HasAspect(node, repo.AspectFlaggable)
	if err != nil || !flaggable {
		return flags, err
	}
	for flag, attr := range flagToAttr {
		value, ok, err := tx.Attr(node, attr)
		if err != nil {
			return mailbox.FlagSet{}, err
		}
		if set, isBool := value.(bool); ok && isBool && set {
			flags.Set(flag, true)
		}
	}
	return flags, nil
}

// SetFlag writes one flag. Deleted requires delete permission, every
// other flag write-properties. A denied Seen write is only logged, not
// raised: clients marking messages read in folders they cannot write to
// would otherwise error out on every fetch.
func (s *Service) SetFlag(tx repo.Txn, user string, node repo.NodeID, flag mailbox.Flag, value bool) error {
	permission := repo.PermissionWriteProperties
	if flag == mailbox.FlagDeleted {
		permission = repo.PermissionDelete
	}
	if s.perms.HasPermission(user, node, permission) == repo.Denied {
		if flag == mailbox.FlagSeen {
			s.log.Printf("flags: access denied to set Seen, node=%d user=%s", node, user)
			return nil
		}
		return fmt.Errorf("cannot set flag %s on node %d: %w", flag, node, lib.ErrAccessDenied)
	}
	if err := s.checkFlaggable(tx, user, node); err != nil {
		return err
	}
	return tx.SetAttr(node, flagToAttr[flag], value)
}

// SetFlags applies every flag contained in the set to the given value.
func (s *Service) SetFlags(tx repo.Txn, user string, node repo.NodeID, flags mailbox.FlagSet, value bool) error {
	if err := s.checkFlaggable(tx, user, node); err != nil {
		return err
	}
	for _, flag := range mailbox.AllFlags {
		if !flags.Contains(flag) {
			continue
		}
		if err := s.SetFlag(tx, user, node, flag, value); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceFlags overwrites the whole flag vector.
func (s *Service) ReplaceFlags(tx repo.Txn, user string, node repo.NodeID, flags mailbox.FlagSet) error {
	if err := s.checkFlaggable(tx, user, node); err != nil {
		return err
	}
	current, err := s.Flags(tx, node)
	if err != nil {
		return err
	}
	for _, flag := range mailbox.AllFlags {
		wanted := flags.Contains(flag)
		if current.Contains(flag) == wanted {
			continue
		}
		if err = s.SetFlag(tx, user, node, flag, wanted); err != nil {
			return err
		}
	}
	return nil
}

// checkFlaggable lazily attaches the flaggable marker, once per node per
// transaction. A denied attach is logged and skipped: the flags then
// simply keep reading as all-false.
func (s *Service) checkFlaggable(tx repo.Txn, user string, node repo.NodeID) error {
	checked, _ := tx.Resource(checkedFlaggableResource).(map[repo.NodeID]bool)
	if checked == nil {
		checked = make(map[repo.NodeID]bool)
		tx.BindResource(checkedFlaggableResource, checked)
	}
	if checked[node] {
		return nil
	}
	flaggable, err := tx.HasAspect(node, repo.AspectFlaggable)
	if err != nil {
		return err
	}
	if !flaggable {
		if s.perms.HasPermission(user, node, repo.PermissionWriteProperties) == repo.Denied {
			s.log.Printf("flags: no permission to attach flaggable marker, node=%d user=%s", node, user)
		} else if err = tx.AddAspect(node, repo.AspectFlaggable); err != nil {
			return err
		}
	}
	checked[node] = true
	return nil
}
