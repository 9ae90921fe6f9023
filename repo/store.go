package repo

import "errors"

// ErrTransient marks a store failure worth retrying in a fresh
// transaction (lock conflicts, optimistic concurrency).
var ErrTransient = errors.New("transient repository failure")

// Txn exposes the repository operations available inside one transaction.
// All reads and writes of a unit of work go through the same Txn; the
// transaction also carries component-scoped side state (Resource) and
// pre-commit callbacks, replacing ambient thread-local lookups.
type Txn interface {
	ReadOnly() bool

	// CreateNode creates a named child under a parent and returns its
	// repository-assigned id, strictly greater than any id assigned
	// before.
	CreateNode(parent NodeID, name string, folder bool) (NodeID, error)
	// RestoreNode re-inserts a previously captured node record, keeping
	// its original id. Used when an archived item comes back.
	RestoreNode(node Node) error
	Node(id NodeID) (Node, error)
	NodeExists(id NodeID) bool
	// Children lists direct children. Nodes bearing AspectHidden are
	// excluded.
	Children(parent NodeID, foldersOnly bool) ([]Node, error)
	// ChildByName resolves a direct child by name, or ErrNodeNotFound.
	ChildByName(parent NodeID, name string) (Node, error)
	Rename(id NodeID, name string) error
	// SetNodeType reclassifies a node. Site roots get filtered specially
	// in mailbox listings.
	SetNodeType(id NodeID, nodeType NodeType) error
	Move(id NodeID, newParent NodeID) error
	// Copy duplicates a node (and its attributes, aspects and content)
	// under a new parent, returning the id of the copy.
	Copy(id NodeID, newParent NodeID) (NodeID, error)
	// Delete removes a node. Deleting a missing node is a no-op.
	Delete(id NodeID) error

	Attr(id NodeID, name Attr) (any, bool, error)
	SetAttr(id NodeID, name Attr, value any) error

	HasAspect(id NodeID, aspect Aspect) (bool, error)
	AddAspect(id NodeID, aspect Aspect) error
	RemoveAspect(id NodeID, aspect Aspect) error

	SetContent(id NodeID, body []byte) error
	Content(id NodeID) ([]byte, error)

	CreateAssoc(from, to NodeID, name AssocName) error
	RemoveAssoc(from, to NodeID, name AssocName) error
	AssocTargets(from NodeID, name AssocName) ([]NodeID, error)

	// Resource returns transaction-scoped state bound under a key, or nil.
	Resource(key string) any
	// BindResource attaches transaction-scoped state under a key.
	BindResource(key string, value any)
	// OnPreCommit registers a callback to run once, after the unit of work
	// and before the transaction commits. Callbacks run in registration
	// order; an error aborts the commit.
	OnPreCommit(fn func(tx Txn) error)
}

// Observer receives synchronous notifications of node mutations, inside
// the mutating transaction.
type Observer interface {
	NodeCreated(tx Txn, node Node)
	NodeRestored(tx Txn, node Node)
	NodeDeleted(tx Txn, node Node)
	NodeMoved(tx Txn, node Node, oldParent NodeID)
	AttrChanged(tx Txn, node Node, name Attr)
	AspectChanged(tx Txn, node Node, aspect Aspect, added bool)
}

// Store is the hierarchical content store collaborator.
type Store interface {
	// Root returns the id of the repository root folder.
	Root() NodeID
	// RunTransaction runs fn inside a single transaction. The transaction
	// commits when fn and every pre-commit callback return nil.
	RunTransaction(readOnly bool, fn func(tx Txn) error) error
	// SetObserver installs the mutation observer. Pass nil to remove it.
	SetObserver(observer Observer)
	Close() error
}

// RetryingTransaction runs fn through store.RunTransaction, retrying the
// whole unit of work on transient failures up to the given budget.
func RetryingTransaction(store Store, readOnly bool, retries int, fn func(tx Txn) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = store.RunTransaction(readOnly, fn)
		if err == nil || !errors.Is(err, ErrTransient) || attempt >= retries {
			return err
		}
	}
}
