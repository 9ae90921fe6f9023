package repo

import (
	"encoding/gob"
	"time"
)

// NodeID is the repository-assigned numeric identity of an item. IDs are
// strictly increasing at creation time and never reused, which is what
// makes them usable as IMAP UIDs.
type NodeID int64

// NoNode is the zero NodeID, never assigned to a real item.
const NoNode NodeID = 0

// NodeType classifies a folder node. Site roots get special treatment in
// mailbox listings.
type NodeType string

const (
	TypePlain NodeType = ""
	TypeSite  NodeType = "site"
)

// Node is the repository view of one item.
type Node struct {
	ID     NodeID
	Parent NodeID
	Name   string
	Folder bool
	Type   NodeType
}

// Attr names an attribute on a node.
type Attr string

const (
	// AttrName is not stored as an attribute (the name lives on the Node
	// record) but identifies rename events to observers.
	AttrName        Attr = "name"
	AttrTitle       Attr = "title"
	AttrDescription Attr = "description"
	AttrAuthor      Attr = "author"
	AttrContent     Attr = "content"
	AttrComponentID Attr = "componentId"

	AttrChangeToken Attr = "imap:changeToken"
	AttrUIDValidity Attr = "imap:uidValidity"
	AttrMaxUID      Attr = "imap:maxUid"

	AttrFlagAnswered Attr = "imap:flagAnswered"
	AttrFlagDeleted  Attr = "imap:flagDeleted"
	AttrFlagDraft    Attr = "imap:flagDraft"
	AttrFlagSeen     Attr = "imap:flagSeen"
	AttrFlagRecent   Attr = "imap:flagRecent"
	AttrFlagFlagged  Attr = "imap:flagFlagged"

	AttrMessageID    Attr = "imap:messageId"
	AttrInternalDate Attr = "imap:internalDate"
)

// Aspect is a capability marker: a dynamically attachable tag indicating
// the node supports a feature-specific attribute bundle.
type Aspect string

const (
	// AspectFlaggable marks a node carrying the flag attributes. Until it
	// is attached, all flags read as false.
	AspectFlaggable Aspect = "imap:flaggable"
	// AspectMessage marks a node holding genuine message content.
	AspectMessage Aspect = "imap:content"
	// AspectFolder marks a folder carrying change token and UIDVALIDITY
	// attributes.
	AspectFolder Aspect = "imap:folder"
	// AspectHidden removes a node from listings without deleting it.
	AspectHidden Aspect = "sys:hidden"
)

// AssocName names a directed association between two nodes.
type AssocName string

const (
	// AssocUnsubscribed links a user home folder to mailboxes the user
	// opted out of.
	AssocUnsubscribed AssocName = "imap:nonSubscribed"
	// AssocAttachment links a message to its extracted attachments.
	AssocAttachment AssocName = "imap:attachment"
	// AssocMessageIndex links the repository root to every appended
	// message, so append can resolve message identity without a search
	// engine.
	AssocMessageIndex AssocName = "imap:messageIndex"
)

func init() {
	// attribute values crossing the gob boundary in the local store
	gob.Register(time.Time{})
	gob.Register(NodeID(0))
	gob.Register(int64(0))
	gob.Register("")
	gob.Register(true)
}
