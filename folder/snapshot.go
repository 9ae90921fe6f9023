package folder

import (
	"fmt"
	"sort"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/repo"
)

// Snapshot is one immutable look at a folder's visible messages, built by
// the status cache on a miss and shared between sessions holding the same
// change token.
type Snapshot struct {
	// Messages is the number of visible messages.
	Messages int
	// Recent is the number of messages flagged Recent.
	Recent int
	// Unseen is the number of messages without the Seen flag.
	Unseen int
	// FirstUnseen is the 1-based sequence number of the first unseen
	// message, 0 when every message is seen.
	FirstUnseen int
	// UIDValidity is the folder epoch, before any mount point offset.
	UIDValidity int64
	// ChangeToken identifies the folder state this snapshot was built from.
	ChangeToken string

	uids  []int64
	nodes map[int64]repo.Node
}

func newSnapshot(uidValidity int64, changeToken string, messages []repo.Node) *Snapshot {
	snapshot := &Snapshot{
		UIDValidity: uidValidity,
		ChangeToken: changeToken,
		Messages:    len(messages),
		uids:        make([]int64, 0, len(messages)),
		nodes:       make(map[int64]repo.Node, len(messages)),
	}
	for _, node := range messages {
		snapshot.uids = append(snapshot.uids, int64(node.ID))
		snapshot.nodes[int64(node.ID)] = node
	}
	sort.Slice(snapshot.uids, func(i, j int) bool { return snapshot.uids[i] < snapshot.uids[j] })
	return snapshot
}

// UIDs returns the message UIDs in ascending order.
func (s *Snapshot) UIDs() []int64 {
	return append([]int64(nil), s.uids...)
}

// Node returns the content item handle for a UID.
func (s *Snapshot) Node(uid int64) (repo.Node, bool) {
	node, ok := s.nodes[uid]
	return node, ok
}

// Msn returns the 1-based rank of a UID among the visible messages.
func (s *Snapshot) Msn(uid int64) (int, error) {
	index := sort.Search(len(s.uids), func(i int) bool { return s.uids[i] >= uid })
	if index >= len(s.uids) || s.uids[index] != uid {
		return 0, fmt.Errorf("uid %d: %w", uid, lib.ErrMessageNotFound)
	}
	return index + 1, nil
}

// MaxUID returns the highest UID, or 0 when the folder is empty.
func (s *Snapshot) MaxUID() int64 {
	if len(s.uids) == 0 {
		return 0
	}
	return s.uids[len(s.uids)-1]
}

// UIDNext returns one more than the highest UID, or 1 when empty.
func (s *Snapshot) UIDNext() int64 {
	return s.MaxUID() + 1
}
