package local

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/repo"
	bolt "go.etcd.io/bbolt"
)

const (
	metadataBucket = "metadata"
	nodesBucket    = "nodes"
	childrenBucket = "children"
	contentBucket  = "content"
	versionKey     = "version"
	rootKey        = "root"
	boltFileVersion = 1
)

type nodeRecord struct {
	Node    repo.Node
	Attrs   map[repo.Attr]any
	Aspects []repo.Aspect
	Assocs  map[repo.AssocName][]repo.NodeID
}

func (r *nodeRecord) hasAspect(aspect repo.Aspect) bool {
	for _, a := range r.Aspects {
		if a == aspect {
			return true
		}
	}
	return false
}

// BoltStore is a persistent implementation of repo.Store on top of a
// single bbolt database file.
type BoltStore struct {
	dbFile   string
	db       *bolt.DB
	log      lib.Logger
	root     repo.NodeID
	observer repo.Observer
}

func NewBoltStore(filename string) (*BoltStore, error) {
	return NewBoltStoreWithLogger(filename, nil)
}

func NewBoltStoreWithLogger(filename string, logger lib.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = &lib.NoLog{}
	}
	options := bolt.DefaultOptions
	options.Timeout = 10 * time.Second

	err := os.MkdirAll(filepath.Dir(filename), 0o700)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", filename, err)
	}

	db, err := bolt.Open(filename, 0o600, options)
	if err != nil {
		return nil, err
	}

	store := &BoltStore{
		dbFile: filename,
		db:     db,
		log:    logger,
	}
	if err = store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// init creates the buckets and the root node on a fresh file.
func (s *BoltStore) init() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		nodes, err := tx.CreateBucketIfNotExists([]byte(nodesBucket))
		if err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(childrenBucket)); err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(contentBucket)); err != nil {
			return err
		}
		version, err := serializeInt64(boltFileVersion)
		if err != nil {
			return err
		}
		if err = meta.Put([]byte(versionKey), version); err != nil {
			return err
		}

		if existing := meta.Get([]byte(rootKey)); existing != nil {
			id, err := deserializeInt64(existing)
			if err != nil {
				return err
			}
			s.root = repo.NodeID(id)
			return nil
		}
		sequence, err := nodes.NextSequence()
		if err != nil {
			return err
		}
		s.root = repo.NodeID(sequence)
		record := &nodeRecord{
			Node: repo.Node{ID: s.root, Folder: true},
		}
		if err = putRecord(nodes, record); err != nil {
			return err
		}
		rootValue, err := serializeInt64(int64(s.root))
		if err != nil {
			return err
		}
		return meta.Put([]byte(rootKey), rootValue)
	})
}

func (s *BoltStore) Root() repo.NodeID {
	return s.root
}

func (s *BoltStore) SetObserver(observer repo.Observer) {
	s.observer = observer
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Backup writes a consistent copy of the database to filename.
func (s *BoltStore) Backup(filename string) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(filename, 0o644)
	})
}

func (s *BoltStore) RunTransaction(readOnly bool, fn func(tx repo.Txn) error) error {
	run := s.db.Update
	if readOnly {
		run = s.db.View
	}
	return run(func(boltTx *bolt.Tx) error {
		tx := &txn{store: s, boltTx: boltTx, readOnly: readOnly}
		if err := fn(tx); err != nil {
			return err
		}
		for _, callback := range tx.preCommit {
			if err := callback(tx); err != nil {
				return err
			}
		}
		return nil
	})
}

func putRecord(nodes *bolt.Bucket, record *nodeRecord) error {
	data, err := serializeObject(record)
	if err != nil {
		return err
	}
	return nodes.Put(nodeKey(int64(record.Node.ID)), data)
}

type txn struct {
	store     *BoltStore
	boltTx    *bolt.Tx
	readOnly  bool
	resources map[string]any
	preCommit []func(tx repo.Txn) error
}

func (t *txn) ReadOnly() bool {
	return t.readOnly
}

func (t *txn) nodes() *bolt.Bucket {
	return t.boltTx.Bucket([]byte(nodesBucket))
}

func (t *txn) children() *bolt.Bucket {
	return t.boltTx.Bucket([]byte(childrenBucket))
}

func (t *txn) record(id repo.NodeID) (*nodeRecord, error) {
	data := t.nodes().Get(nodeKey(int64(id)))
	if data == nil {
		return nil, fmt.Errorf("node %d: %w", id, lib.ErrNodeNotFound)
	}
	return deserializeObject[nodeRecord](data)
}

func (t *txn) put(record *nodeRecord) error {
	return putRecord(t.nodes(), record)
}

func (t *txn) index(record *nodeRecord) error {
	return t.children().Put(childKey(int64(record.Node.Parent), record.Node.Name), nodeKey(int64(record.Node.ID)))
}

func (t *txn) unindex(record *nodeRecord) error {
	return t.children().Delete(childKey(int64(record.Node.Parent), record.Node.Name))
}

func (t *txn) CreateNode(parent repo.NodeID, name string, folder bool) (repo.NodeID, error) {
	if _, err := t.record(parent); err != nil {
		return repo.NoNode, err
	}
	sequence, err := t.nodes().NextSequence()
	if err != nil {
		return repo.NoNode, fmt.Errorf("cannot get next node id: %w", err)
	}
	record := &nodeRecord{
		Node: repo.Node{ID: repo.NodeID(sequence), Parent: parent, Name: name, Folder: folder},
	}
	if err = t.put(record); err != nil {
		return repo.NoNode, err
	}
	if err = t.index(record); err != nil {
		return repo.NoNode, err
	}
	if t.store.observer != nil {
		t.store.observer.NodeCreated(t, record.Node)
	}
	return record.Node.ID, nil
}

func (t *txn) RestoreNode(node repo.Node) error {
	if t.NodeExists(node.ID) {
		return fmt.Errorf("cannot restore node %d: already present", node.ID)
	}
	if _, err := t.record(node.Parent); err != nil {
		return err
	}
	record := &nodeRecord{Node: node}
	if err := t.put(record); err != nil {
		return err
	}
	if err := t.index(record); err != nil {
		return err
	}
	if t.store.observer != nil {
		t.store.observer.NodeRestored(t, node)
	}
	return nil
}

func (t *txn) Node(id repo.NodeID) (repo.Node, error) {
	record, err := t.record(id)
	if err != nil {
		return repo.Node{}, err
	}
	return record.Node, nil
}

func (t *txn) NodeExists(id repo.NodeID) bool {
	return t.nodes().Get(nodeKey(int64(id))) != nil
}

func (t *txn) Children(parent repo.NodeID, foldersOnly bool) ([]repo.Node, error) {
	if _, err := t.record(parent); err != nil {
		return nil, err
	}
	prefix := nodeKey(int64(parent))
	list := make([]repo.Node, 0)
	cursor := t.children().Cursor()
	for key, value := cursor.Seek(prefix); key != nil && bytes.HasPrefix(key, prefix); key, value = cursor.Next() {
		record, err := t.record(repo.NodeID(nodeID(value)))
		if err != nil {
			return nil, err
		}
		if foldersOnly && !record.Node.Folder {
			continue
		}
		if record.hasAspect(repo.AspectHidden) {
			continue
		}
		list = append(list, record.Node)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (t *txn) ChildByName(parent repo.NodeID, name string) (repo.Node, error) {
	if _, err := t.record(parent); err != nil {
		return repo.Node{}, err
	}
	value := t.children().Get(childKey(int64(parent), name))
	if value == nil {
		return repo.Node{}, fmt.Errorf("no child %q under node %d: %w", name, parent, lib.ErrNodeNotFound)
	}
	return t.Node(repo.NodeID(nodeID(value)))
}

func (t *txn) Rename(id repo.NodeID, name string) error {
	record, err := t.record(id)
	if err != nil {
		return err
	}
	if err = t.unindex(record); err != nil {
		return err
	}
	record.Node.Name = name
	if err = t.put(record); err != nil {
		return err
	}
	if err = t.index(record); err != nil {
		return err
	}
	if t.store.observer != nil {
		t.store.observer.AttrChanged(t, record.Node, repo.AttrName)
	}
	return nil
}

func (t *txn) SetNodeType(id repo.NodeID, nodeType repo.NodeType) error {
	record, err := t.record(id)
	if err != nil {
		return err
	}
	record.Node.Type = nodeType
	return t.put(record)
}

func (t *txn) Move(id repo.NodeID, newParent repo.NodeID) error {
	record, err := t.record(id)
	if err != nil {
		return err
	}
	if _, err = t.record(newParent); err != nil {
		return err
	}
	oldParent := record.Node.Parent
	if err = t.unindex(record); err != nil {
		return err
	}
	record.Node.Parent = newParent
	if err = t.put(record); err != nil {
		return err
	}
	if err = t.index(record); err != nil {
		return err
	}
	if t.store.observer != nil {
		t.store.observer.NodeMoved(t, record.Node, oldParent)
	}
	return nil
}

func (t *txn) Copy(id repo.NodeID, newParent repo.NodeID) (repo.NodeID, error) {
	record, err := t.record(id)
	if err != nil {
		return repo.NoNode, err
	}
	if _, err = t.record(newParent); err != nil {
		return repo.NoNode, err
	}
	sequence, err := t.nodes().NextSequence()
	if err != nil {
		return repo.NoNode, fmt.Errorf("cannot get next node id: %w", err)
	}
	copied := &nodeRecord{
		Node:    record.Node,
		Attrs:   record.Attrs,
		Aspects: record.Aspects,
		Assocs:  record.Assocs,
	}
	copied.Node.ID = repo.NodeID(sequence)
	copied.Node.Parent = newParent
	if err = t.put(copied); err != nil {
		return repo.NoNode, err
	}
	if err = t.index(copied); err != nil {
		return repo.NoNode, err
	}
	content := t.boltTx.Bucket([]byte(contentBucket))
	if body := content.Get(nodeKey(int64(id))); body != nil {
		if err = content.Put(nodeKey(int64(copied.Node.ID)), body); err != nil {
			return repo.NoNode, err
		}
	}
	if t.store.observer != nil {
		t.store.observer.NodeCreated(t, copied.Node)
	}
	return copied.Node.ID, nil
}

func (t *txn) Delete(id repo.NodeID) error {
	record, err := t.record(id)
	if err != nil {
		// deleting a missing node is tolerated
		return nil
	}
	// cascade into children first; collect ids before mutating the index
	prefix := nodeKey(int64(id))
	childIDs := make([]repo.NodeID, 0)
	cursor := t.children().Cursor()
	for key, value := cursor.Seek(prefix); key != nil && bytes.HasPrefix(key, prefix); key, value = cursor.Next() {
		childIDs = append(childIDs, repo.NodeID(nodeID(value)))
	}
	for _, childID := range childIDs {
		if err = t.Delete(childID); err != nil {
			return err
		}
	}
	if err = t.unindex(record); err != nil {
		return err
	}
	if err = t.nodes().Delete(nodeKey(int64(id))); err != nil {
		return err
	}
	if err = t.boltTx.Bucket([]byte(contentBucket)).Delete(nodeKey(int64(id))); err != nil {
		return err
	}
	if t.store.observer != nil {
		t.store.observer.NodeDeleted(t, record.Node)
	}
	return nil
}

func (t *txn) Attr(id repo.NodeID, name repo.Attr) (any, bool, error) {
	record, err := t.record(id)
	if err != nil {
		return nil, false, err
	}
	value, ok := record.Attrs[name]
	return value, ok, nil
}

func (t *txn) SetAttr(id repo.NodeID, name repo.Attr, value any) error {
	record, err := t.record(id)
	if err != nil {
		return err
	}
	if record.Attrs == nil {
		record.Attrs = make(map[repo.Attr]any)
	}
	record.Attrs[name] = value
	if err = t.put(record); err != nil {
		return err
	}
	if t.store.observer != nil {
		t.store.observer.AttrChanged(t, record.Node, name)
	}
	return nil
}

func (t *txn) HasAspect(id repo.NodeID, aspect repo.Aspect) (bool, error) {
	record, err := t.record(id)
	if err != nil {
		return false, err
	}
	return record.hasAspect(aspect), nil
}

func (t *txn) AddAspect(id repo.NodeID, aspect repo.Aspect) error {
	record, err := t.record(id)
	if err != nil {
		return err
	}
	if record.hasAspect(aspect) {
		return nil
	}
	record.Aspects = append(record.Aspects, aspect)
	if err = t.put(record); err != nil {
		return err
	}
	if t.store.observer != nil {
		t.store.observer.AspectChanged(t, record.Node, aspect, true)
	}
	return nil
}

func (t *txn) RemoveAspect(id repo.NodeID, aspect repo.Aspect) error {
	record, err := t.record(id)
	if err != nil {
		return err
	}
	if !record.hasAspect(aspect) {
		return nil
	}
	aspects := make([]repo.Aspect, 0, len(record.Aspects))
	for _, a := range record.Aspects {
		if a != aspect {
			aspects = append(aspects, a)
		}
	}
	record.Aspects = aspects
	if err = t.put(record); err != nil {
		return err
	}
	if t.store.observer != nil {
		t.store.observer.AspectChanged(t, record.Node, aspect, false)
	}
	return nil
}

func (t *txn) SetContent(id repo.NodeID, body []byte) error {
	record, err := t.record(id)
	if err != nil {
		return err
	}
	err = t.boltTx.Bucket([]byte(contentBucket)).Put(nodeKey(int64(id)), body)
	if err != nil {
		return fmt.Errorf("cannot save content: %w", err)
	}
	if t.store.observer != nil {
		t.store.observer.AttrChanged(t, record.Node, repo.AttrContent)
	}
	return nil
}

func (t *txn) Content(id repo.NodeID) ([]byte, error) {
	if _, err := t.record(id); err != nil {
		return nil, err
	}
	body := t.boltTx.Bucket([]byte(contentBucket)).Get(nodeKey(int64(id)))
	return append([]byte(nil), body...), nil
}

func (t *txn) CreateAssoc(from, to repo.NodeID, name repo.AssocName) error {
	record, err := t.record(from)
	if err != nil {
		return err
	}
	if _, err = t.record(to); err != nil {
		return err
	}
	for _, target := range record.Assocs[name] {
		if target == to {
			return nil
		}
	}
	if record.Assocs == nil {
		record.Assocs = make(map[repo.AssocName][]repo.NodeID)
	}
	record.Assocs[name] = append(record.Assocs[name], to)
	return t.put(record)
}

func (t *txn) RemoveAssoc(from, to repo.NodeID, name repo.AssocName) error {
	record, err := t.record(from)
	if err != nil {
		return err
	}
	targets := record.Assocs[name][:0]
	for _, target := range record.Assocs[name] {
		if target != to {
			targets = append(targets, target)
		}
	}
	record.Assocs[name] = targets
	return t.put(record)
}

func (t *txn) AssocTargets(from repo.NodeID, name repo.AssocName) ([]repo.NodeID, error) {
	record, err := t.record(from)
	if err != nil {
		return nil, err
	}
	list := append([]repo.NodeID(nil), record.Assocs[name]...)
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
var _ repo.Store = &BoltStore{}
