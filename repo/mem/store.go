package mem

import (
	"fmt"
	"sort"
	"sync"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/repo"
)

type record struct {
	node    repo.Node
	attrs   map[repo.Attr]any
	aspects map[repo.Aspect]bool
	content []byte
	assocs  map[repo.AssocName]map[repo.NodeID]bool
}

func (r *record) clone() *record {
	output := &record{
		node:    r.node,
		attrs:   make(map[repo.Attr]any, len(r.attrs)),
		aspects: make(map[repo.Aspect]bool, len(r.aspects)),
		content: append([]byte(nil), r.content...),
		assocs:  make(map[repo.AssocName]map[repo.NodeID]bool, len(r.assocs)),
	}
	for k, v := range r.attrs {
		output.attrs[k] = v
	}
	for k, v := range r.aspects {
		output.aspects[k] = v
	}
	for name, targets := range r.assocs {
		copied := make(map[repo.NodeID]bool, len(targets))
		for id := range targets {
			copied[id] = true
		}
		output.assocs[name] = copied
	}
	return output
}

// Store is an in-memory implementation of repo.Store. Transactions are
// serialized on a single mutex; there is no rollback of partial work on
// error.
type Store struct {
	mu       sync.Mutex
	nodes    map[repo.NodeID]*record
	nextID   repo.NodeID
	root     repo.NodeID
	observer repo.Observer
	log      lib.Logger
}

func New() *Store {
	return NewWithLogger(nil)
}

func NewWithLogger(logger lib.Logger) *Store {
	if logger == nil {
		logger = &lib.NoLog{}
	}
	store := &Store{
		nodes: make(map[repo.NodeID]*record),
		log:   logger,
	}
	store.root = store.insert(repo.NoNode, "", true)
	return store
}

func (s *Store) Root() repo.NodeID {
	return s.root
}

func (s *Store) SetObserver(observer repo.Observer) {
	s.observer = observer
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[repo.NodeID]*record)
	return nil
}

func (s *Store) RunTransaction(readOnly bool, fn func(tx repo.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txn{store: s, readOnly: readOnly}
	if err := fn(tx); err != nil {
		return err
	}
	for _, callback := range tx.preCommit {
		if err := callback(tx); err != nil {
			return err
		}
	}
	return nil
}

// insert allocates the next id; called with the lock held (or during New).
func (s *Store) insert(parent repo.NodeID, name string, folder bool) repo.NodeID {
	s.nextID++
	id := s.nextID
	s.nodes[id] = &record{
		node:    repo.Node{ID: id, Parent: parent, Name: name, Folder: folder},
		attrs:   make(map[repo.Attr]any),
		aspects: make(map[repo.Aspect]bool),
		assocs:  make(map[repo.AssocName]map[repo.NodeID]bool),
	}
	return id
}

type txn struct {
	store     *Store
	readOnly  bool
	resources map[string]any
	preCommit []func(tx repo.Txn) error
}

func (t *txn) ReadOnly() bool {
	return t.readOnly
}

func (t *txn) record(id repo.NodeID) (*record, error) {
	rec, ok := t.store.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, lib.ErrNodeNotFound)
	}
	return rec, nil
}

func (t *txn) CreateNode(parent repo.NodeID, name string, folder bool) (repo.NodeID, error) {
	if _, err := t.record(parent); err != nil {
		return repo.NoNode, err
	}
	id := t.store.insert(parent, name, folder)
	if t.store.observer != nil {
		t.store.observer.NodeCreated(t, t.store.nodes[id].node)
	}
	return id, nil
}

func (t *txn) RestoreNode(node repo.Node) error {
	if _, ok := t.store.nodes[node.ID]; ok {
		return fmt.Errorf("cannot restore node %d: already present", node.ID)
	}
	if _, err := t.record(node.Parent); err != nil {
		return err
	}
	t.store.nodes[node.ID] = &record{
		node:    node,
		attrs:   make(map[repo.Attr]any),
		aspects: make(map[repo.Aspect]bool),
		assocs:  make(map[repo.AssocName]map[repo.NodeID]bool),
	}
	if t.store.observer != nil {
		t.store.observer.NodeRestored(t, node)
	}
	return nil
}

func (t *txn) Node(id repo.NodeID) (repo.Node, error) {
	rec, err := t.record(id)
	if err != nil {
		return repo.Node{}, err
	}
	return rec.node, nil
}

func (t *txn) NodeExists(id repo.NodeID) bool {
	_, ok := t.store.nodes[id]
	return ok
}

func (t *txn) Children(parent repo.NodeID, foldersOnly bool) ([]repo.Node, error) {
	if _, err := t.record(parent); err != nil {
		return nil, err
	}
	list := make([]repo.Node, 0)
	for _, rec := range t.store.nodes {
		if rec.node.Parent != parent || rec.node.ID == t.store.root {
			continue
		}
		if foldersOnly && !rec.node.Folder {
			continue
		}
		if rec.aspects[repo.AspectHidden] {
			continue
		}
		list = append(list, rec.node)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (t *txn) ChildByName(parent repo.NodeID, name string) (repo.Node, error) {
	if _, err := t.record(parent); err != nil {
		return repo.Node{}, err
	}
	for _, rec := range t.store.nodes {
		if rec.node.Parent == parent && rec.node.Name == name {
			return rec.node, nil
		}
	}
	return repo.Node{}, fmt.Errorf("no child %q under node %d: %w", name, parent, lib.ErrNodeNotFound)
}

func (t *txn) Rename(id repo.NodeID, name string) error {
	rec, err := t.record(id)
	if err != nil {
		return err
	}
	rec.node.Name = name
	if t.store.observer != nil {
		t.store.observer.AttrChanged(t, rec.node, repo.AttrName)
	}
	return nil
}

func (t *txn) SetNodeType(id repo.NodeID, nodeType repo.NodeType) error {
	rec, err := t.record(id)
	if err != nil {
		return err
	}
	rec.node.Type = nodeType
	return nil
}

func (t *txn) Move(id repo.NodeID, newParent repo.NodeID) error {
	rec, err := t.record(id)
	if err != nil {
		return err
	}
	if _, err = t.record(newParent); err != nil {
		return err
	}
	oldParent := rec.node.Parent
	rec.node.Parent = newParent
	if t.store.observer != nil {
		t.store.observer.NodeMoved(t, rec.node, oldParent)
	}
	return nil
}

func (t *txn) Copy(id repo.NodeID, newParent repo.NodeID) (repo.NodeID, error) {
	rec, err := t.record(id)
	if err != nil {
		return repo.NoNode, err
	}
	if _, err = t.record(newParent); err != nil {
		return repo.NoNode, err
	}
	copied := rec.clone()
	t.store.nextID++
	copied.node.ID = t.store.nextID
	copied.node.Parent = newParent
	t.store.nodes[copied.node.ID] = copied
	if t.store.observer != nil {
		t.store.observer.NodeCreated(t, copied.node)
	}
	return copied.node.ID, nil
}

func (t *txn) Delete(id repo.NodeID) error {
	rec, ok := t.store.nodes[id]
	if !ok {
		// deleting a missing node is tolerated
		return nil
	}
	// cascade into children first
	for _, child := range t.store.nodes {
		if child.node.Parent == id {
			if err := t.Delete(child.node.ID); err != nil {
				return err
			}
		}
	}
	delete(t.store.nodes, id)
	if t.store.observer != nil {
		t.store.observer.NodeDeleted(t, rec.node)
	}
	return nil
}

func (t *txn) Attr(id repo.NodeID, name repo.Attr) (any, bool, error) {
	rec, err := t.record(id)
	if err != nil {
		return nil, false, err
	}
	value, ok := rec.attrs[name]
	return value, ok, nil
}

func (t *txn) SetAttr(id repo.NodeID, name repo.Attr, value any) error {
	rec, err := t.record(id)
	if err != nil {
		return err
	}
	rec.attrs[name] = value
	if t.store.observer != nil {
		t.store.observer.AttrChanged(t, rec.node, name)
	}
	return nil
}

func (t *txn) HasAspect(id repo.NodeID, aspect repo.Aspect) (bool, error) {
	rec, err := t.record(id)
	if err != nil {
		return false, err
	}
	return rec.aspects[aspect], nil
}

func (t *txn) AddAspect(id repo.NodeID, aspect repo.Aspect) error {
	rec, err := t.record(id)
	if err != nil {
		return err
	}
	if rec.aspects[aspect] {
		return nil
	}
	rec.aspects[aspect] = true
	if t.store.observer != nil {
		t.store.observer.AspectChanged(t, rec.node, aspect, true)
	}
	return nil
}

func (t *txn) RemoveAspect(id repo.NodeID, aspect repo.Aspect) error {
	rec, err := t.record(id)
	if err != nil {
		return err
	}
	if !rec.aspects[aspect] {
		return nil
	}
	delete(rec.aspects, aspect)
	if t.store.observer != nil {
		t.store.observer.AspectChanged(t, rec.node, aspect, false)
	}
	return nil
}

func (t *txn) SetContent(id repo.NodeID, body []byte) error {
	rec, err := t.record(id)
	if err != nil {
		return err
	}
	rec.content = append([]byte(nil), body...)
	if t.store.observer != nil {
		t.store.observer.AttrChanged(t, rec.node, repo.AttrContent)
	}
	return nil
}

func (t *txn) Content(id repo.NodeID) ([]byte, error) {
	rec, err := t.record(id)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), rec.content...), nil
}

func (t *txn) CreateAssoc(from, to repo.NodeID, name repo.AssocName) error {
	rec, err := t.record(from)
	if err != nil {
		return err
	}
	if _, err = t.record(to); err != nil {
		return err
	}
	if rec.assocs[name] == nil {
		rec.assocs[name] = make(map[repo.NodeID]bool)
	}
	rec.assocs[name][to] = true
	return nil
}

func (t *txn) RemoveAssoc(from, to repo.NodeID, name repo.AssocName) error {
	rec, err := t.record(from)
	if err != nil {
		return err
	}
	delete(rec.assocs[name], to)
	return nil
}

func (t *txn) AssocTargets(from repo.NodeID, name repo.AssocName) ([]repo.NodeID, error) {
	rec, err := t.record(from)
	if err != nil {
		return nil, err
	}
	list := make([]repo.NodeID, 0, len(rec.assocs[name]))
	for id := range rec.assocs[name] {
		list = append(list, id)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list, nil
}

func (t *txn) Resource(key string) any {
	if t.resources == nil {
		return nil
	}
	return t.resources[key]
}

func (t *txn) BindResource(key string, value any) {
	if t.resources == nil {
		t.resources = make(map[string]any)
	}
	t.resources[key] = value
}

func (t *txn) OnPreCommit(fn func(tx repo.Txn) error) {
	t.preCommit = append(t.preCommit, fn)
}

// verify interface
var _ repo.Store = &Store{}
