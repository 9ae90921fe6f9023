package folder

import (
	"strconv"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/repo"
)

const (
	uidValidityResourcePrefix = "imapview.uidValidity."
	suppressEventsResource    = "imapview.suppressEvents"
)

// uidValidityTracker accumulates, over one transaction, the UID range of
// items created or restored in one folder plus a force marker for
// significant content changes. It is consumed exactly once at pre-commit:
// the folder epoch advances when needed and a fresh change token is
// always written, invalidating every session's cached snapshot for the
// folder.
type uidValidityTracker struct {
	service     *Service
	folder      repo.NodeID
	changeToken string
	minUID      int64
	maxUID      int64
	hasUID      bool
	force       bool
}

// tracker returns the per-folder accumulator bound to this transaction,
// creating it and registering its pre-commit hook on first use. Repeat
// lookups within the same transaction return the same instance.
func (s *Service) tracker(tx repo.Txn, folderID repo.NodeID) *uidValidityTracker {
	key := uidValidityResourcePrefix + strconv.FormatInt(int64(folderID), 10)
	if existing, ok := tx.Resource(key).(*uidValidityTracker); ok {
		return existing
	}
	tracker := &uidValidityTracker{
		service:     s,
		folder:      folderID,
		changeToken: lib.NewChangeToken(),
	}
	tx.BindResource(key, tracker)
	tx.OnPreCommit(tracker.beforeCommit)
	return tracker
}

// RecordNewUID widens the tracked [min,max] range.
func (t *uidValidityTracker) RecordNewUID(uid int64) {
	if !t.hasUID {
		t.minUID, t.maxUID = uid, uid
		t.hasUID = true
	} else if uid < t.minUID {
		t.minUID = uid
	} else if uid > t.maxUID {
		t.maxUID = uid
	}
}

// ForceNewUIDValidity marks the folder content as semantically changed so
// that cached client UID maps must be discarded.
func (t *uidValidityTracker) ForceNewUIDValidity() {
	t.force = true
}

func (t *uidValidityTracker) beforeCommit(tx repo.Txn) error {
	if tx.ReadOnly() {
		return nil
	}
	return t.service.withEventsSuppressed(tx, func() error {
		// the folder may have been deleted by the same transaction
		if !tx.NodeExists(t.folder) {
			return nil
		}
		if t.force || t.hasUID {
			priorMax, hasPrior, err := attrInt64(tx, t.folder, repo.AttrMaxUID)
			if err != nil {
				return err
			}
			_, hasEpoch, err := tx.Attr(t.folder, repo.AttrUIDValidity)
			if err != nil {
				return err
			}
			// UIDs are meant to only ever increase: when a new item does
			// not sort after the previously recorded maximum, clients'
			// cached UID maps could misread the folder, so the epoch
			// advances defensively.
			if t.force || !hasEpoch || !hasPrior || t.minUID <= priorMax {
				if err = tx.SetAttr(t.folder, repo.AttrUIDValidity, lib.NewUIDValidity()); err != nil {
					return err
				}
				t.service.log.Printf("uidvalidity: epoch advanced, folder=%d", t.folder)
			}
			if t.hasUID {
				if err = tx.SetAttr(t.folder, repo.AttrMaxUID, t.maxUID); err != nil {
					return err
				}
			}
		}
		return tx.SetAttr(t.folder, repo.AttrChangeToken, t.changeToken)
	})
}

// withEventsSuppressed runs maintenance writes without feeding them back
// into the mutation observer.
func (s *Service) withEventsSuppressed(tx repo.Txn, fn func() error) error {
	tx.BindResource(suppressEventsResource, true)
	defer tx.BindResource(suppressEventsResource, false)
	return fn()
}

func (s *Service) eventsSuppressed(tx repo.Txn) bool {
	suppressed, ok := tx.Resource(suppressEventsResource).(bool)
	return ok && suppressed
}

func attrInt64(tx repo.Txn, id repo.NodeID, name repo.Attr) (int64, bool, error) {
	value, ok, err := tx.Attr(id, name)
	if err != nil || !ok {
		return 0, false, err
	}
	switch v := value.(type) {
	case int64:
		return v, true, nil
	case repo.NodeID:
		return int64(v), true, nil
	case int:
		return int64(v), true, nil
	}
	return 0, false, nil
}

func attrString(tx repo.Txn, id repo.NodeID, name repo.Attr) (string, bool, error) {
	value, ok, err := tx.Attr(id, name)
	if err != nil || !ok {
		return "", false, err
	}
	s, ok := value.(string)
	return s, ok, nil
}
