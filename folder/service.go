package folder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/mailbox"
	"github.com/creativeprojects/imapview/repo"
)

const (
	// DefaultDeleteDelay is how long an expunged message stays hidden
	// before the hard delete runs.
	DefaultDeleteDelay = 5 * time.Second
	// DefaultTxnRetries bounds the retry budget on transient store
	// failures.
	DefaultTxnRetries = 3
	// DefaultHomePath is where per-user private mailbox trees live,
	// relative to the repository root.
	DefaultHomePath = "ImapHome"
)

// DefaultExcludedComponents lists folder component ids never exposed as
// mailboxes.
var DefaultExcludedComponents = []string{"calendar", "dataLists"}

// significantAttrs are the property changes that must invalidate cached
// client UID maps, not just rotate the change token.
var significantAttrs = map[repo.Attr]bool{
	repo.AttrName:        true,
	repo.AttrAuthor:      true,
	repo.AttrTitle:       true,
	repo.AttrDescription: true,
	repo.AttrContent:     true,
}

// maintenanceAttrs are written by the tracker itself and must not feed
// back into it.
var maintenanceAttrs = map[repo.Attr]bool{
	repo.AttrChangeToken: true,
	repo.AttrUIDValidity: true,
	repo.AttrMaxUID:      true,
}

// MountPoint exposes a subtree of the repository as a mailbox root.
type MountPoint struct {
	// Name is the first path segment clients use to address the mount.
	Name string
	// Path locates the subtree under the repository root, delimited with
	// "/". Missing folders are created.
	Path string
	// Mode selects which children are presented as messages.
	Mode mailbox.ViewMode
	// ID offsets UIDVALIDITY so two mounts of one folder never collide.
	// Assigned from position when zero.
	ID int
}

// PreferenceService is the user-preference collaborator: which site
// folders the user favourited.
type PreferenceService interface {
	FavouriteSites(tx repo.Txn, user string) ([]repo.NodeID, error)
}

// StaticPreferences is a fixed favourite-sites table, used by tests and
// single-user deployments.
type StaticPreferences struct {
	Favourites map[string][]repo.NodeID
}

func (p StaticPreferences) FavouriteSites(tx repo.Txn, user string) ([]repo.NodeID, error) {
	return p.Favourites[user], nil
}

// AttachmentExtractor is the attachment-extraction collaborator, invoked
// after a new message lands in a folder with extraction enabled.
type AttachmentExtractor interface {
	ExtractAttachments(tx repo.Txn, message repo.NodeID, body []byte) error
}

// Listener is notified of flag changes on a folder, with the affected
// message sequence number.
type Listener interface {
	FlagsChanged(folder repo.NodeID, uid int64, msn int)
}

// Options configures a Service. The zero value works against an empty
// store with no mount points.
type Options struct {
	MountPoints        []MountPoint
	HomePath           string
	CacheSize          int
	DeleteDelay        time.Duration
	TxnRetries         int
	ExcludedComponents []string
	// AppendRateLimit throttles message ingestion, in bytes per second.
	// Zero means unlimited.
	AppendRateLimit   float64
	AppendBurst       int
	ExtractionEnabled bool
	Extractor         AttachmentExtractor
	Preferences       PreferenceService
	Permissions       repo.PermissionChecker
	Logger            lib.Logger
}

type mountPoint struct {
	name string
	node repo.NodeID
	mode mailbox.ViewMode
	id   int
}

// Service maps folders of a hierarchical content store onto IMAP mailbox
// semantics. It owns the status cache and the delayed-delete scheduler;
// create one per server and Close it on shutdown.
type Service struct {
	store       repo.Store
	perms       repo.PermissionChecker
	prefs       PreferenceService
	cache       *Cache
	scheduler   *Scheduler
	log         lib.Logger
	retries     int
	extraction  bool
	extractor   AttachmentExtractor
	excluded    []string
	appendRate  float64
	appendBurst int
	mounts      []mountPoint
	homeRoot    repo.NodeID

	listeners *listenerRegistry
}

func NewService(store repo.Store, options Options) (*Service, error) {
	logger := options.Logger
	if logger == nil {
		logger = &lib.NoLog{}
	}
	if options.HomePath == "" {
		options.HomePath = DefaultHomePath
	}
	if options.DeleteDelay <= 0 {
		options.DeleteDelay = DefaultDeleteDelay
	}
	if options.TxnRetries <= 0 {
		options.TxnRetries = DefaultTxnRetries
	}
	if options.ExcludedComponents == nil {
		options.ExcludedComponents = DefaultExcludedComponents
	}
	if options.AppendBurst <= 0 {
		options.AppendBurst = 32 * 1024
	}
	if options.Permissions == nil {
		options.Permissions = repo.AllowAll{}
	}
	if options.Preferences == nil {
		options.Preferences = StaticPreferences{}
	}

	service := &Service{
		store:       store,
		perms:       options.Permissions,
		prefs:       options.Preferences,
		cache:       NewCacheWithLogger(options.CacheSize, logger),
		scheduler:   NewScheduler(options.DeleteDelay, logger),
		log:         logger,
		retries:     options.TxnRetries,
		extraction:  options.ExtractionEnabled,
		extractor:   options.Extractor,
		excluded:    options.ExcludedComponents,
		appendRate:  options.AppendRateLimit,
		appendBurst: options.AppendBurst,
		listeners:   newListenerRegistry(),
	}

	err := store.RunTransaction(false, func(tx repo.Txn) error {
		home, err := service.ensurePath(tx, options.HomePath)
		if err != nil {
			return err
		}
		service.homeRoot = home
		for index, mount := range options.MountPoints {
			if mount.Name == "" || mount.Path == "" {
				return fmt.Errorf("mount point %d: name and path are mandatory", index)
			}
			if !mount.Mode.Valid() {
				return fmt.Errorf("mount point %q: invalid view mode %q", mount.Name, mount.Mode)
			}
			node, err := service.ensurePath(tx, mount.Path)
			if err != nil {
				return fmt.Errorf("mount point %q: %w", mount.Name, err)
			}
			id := mount.ID
			if id == 0 {
				id = index + 1
			}
			service.mounts = append(service.mounts, mountPoint{
				name: mount.Name,
				node: node,
				mode: mount.Mode,
				id:   id,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	store.SetObserver(service)
	return service, nil
}

// Close stops the delayed-delete scheduler. The store is closed by its
// owner.
func (s *Service) Close() error {
	s.store.SetObserver(nil)
	s.scheduler.Stop()
	return nil
}

// Cache exposes the folder status cache, mainly for tests.
func (s *Service) Cache() *Cache {
	return s.cache
}

// ensurePath resolves a "/"-delimited path from the root, creating
// missing folders.
func (s *Service) ensurePath(tx repo.Txn, path string) (repo.NodeID, error) {
	current := s.store.Root()
	for _, segment := range strings.Split(path, mailbox.HierarchyDelimiter) {
		if segment == "" {
			continue
		}
		child, err := tx.ChildByName(current, segment)
		switch {
		case err == nil:
			current = child.ID
		case isNotFound(err):
			id, err := tx.CreateNode(current, segment, true)
			if err != nil {
				return repo.NoNode, err
			}
			current = id
		default:
			return repo.NoNode, err
		}
	}
	return current, nil
}

// SearchMails lists the folder children presented as messages under the
// given view mode.
func (s *Service) SearchMails(tx repo.Txn, folderID repo.NodeID, viewMode mailbox.ViewMode) ([]repo.Node, error) {
	children, err := tx.Children(folderID, false)
	if err != nil {
		return nil, err
	}
	list := make([]repo.Node, 0, len(children))
	for _, child := range children {
		if child.Folder {
			continue
		}
		isMessage, err := tx.HasAspect(child.ID, repo.AspectMessage)
		if err != nil {
			return nil, err
		}
		switch viewMode {
		case mailbox.ViewModeMixed:
		case mailbox.ViewModeArchive:
			if !isMessage {
				continue
			}
		case mailbox.ViewModeVirtual:
			if isMessage {
				continue
			}
		}
		list = append(list, child)
	}
	return list, nil
}

// FolderStatus returns the snapshot of a folder for one user, computing
// it only when the folder's change token is not in the cache.
func (s *Service) FolderStatus(user string, folderID repo.NodeID, viewMode mailbox.ViewMode) (*Snapshot, error) {
	var snapshot *Snapshot
	err := repo.RetryingTransaction(s.store, false, s.retries, func(tx repo.Txn) error {
		var err error
		snapshot, err = s.folderStatus(tx, user, folderID, viewMode)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Service) folderStatus(tx repo.Txn, user string, folderID repo.NodeID, viewMode mailbox.ViewMode) (*Snapshot, error) {
	// The token itself carries nothing confidential and must be readable
	// from restricted contexts for the cache to work, so this read is
	// never permission checked.
	changeToken, _, err := attrString(tx, folderID, repo.AttrChangeToken)
	if err != nil {
		return nil, err
	}

	if changeToken != "" {
		if snapshot := s.cache.get(cacheKey{user: user, changeToken: changeToken}); snapshot != nil {
			return snapshot, nil
		}
	}

	messages, err := s.SearchMails(tx, folderID, viewMode)
	if err != nil {
		return nil, err
	}

	if changeToken == "" {
		// first look at this folder: attach the folder marker and mint
		// the initial token
		changeToken = lib.NewChangeToken()
		maxUID := int64(0)
		for _, node := range messages {
			if int64(node.ID) > maxUID {
				maxUID = int64(node.ID)
			}
		}
		token := changeToken
		err = s.withEventsSuppressed(tx, func() error {
			if err := tx.AddAspect(folderID, repo.AspectFolder); err != nil {
				return err
			}
			if err := tx.SetAttr(folderID, repo.AttrChangeToken, token); err != nil {
				return err
			}
			return tx.SetAttr(folderID, repo.AttrMaxUID, maxUID)
		})
		if err != nil {
			return nil, err
		}
	}

	uidValidity, _, err := attrInt64(tx, folderID, repo.AttrUIDValidity)
	if err != nil {
		return nil, err
	}

	snapshot := newSnapshot(uidValidity, changeToken, messages)
	for index, uid := range snapshot.uids {
		flags, err := s.Flags(tx, repo.NodeID(uid))
		if err != nil {
			return nil, err
		}
		if flags.Recent {
			snapshot.Recent++
		}
		if !flags.Seen {
			if snapshot.FirstUnseen == 0 {
				snapshot.FirstUnseen = index + 1
			}
			snapshot.Unseen++
		}
	}

	key := cacheKey{user: user, changeToken: changeToken}
	result := s.cache.putIfAbsent(key, snapshot)
	s.log.Printf("folder status: folder=%d messages=%d changeToken=%s", folderID, result.Messages, changeToken)
	return result, nil
}

// trackedFolder reports whether a node is a folder already under change
// tracking.
func (s *Service) trackedFolder(tx repo.Txn, id repo.NodeID) bool {
	if !tx.NodeExists(id) {
		return false
	}
	tracked, err := tx.HasAspect(id, repo.AspectFolder)
	return err == nil && tracked
}

// NodeCreated implements repo.Observer.
func (s *Service) NodeCreated(tx repo.Txn, node repo.Node) {
	if s.eventsSuppressed(tx) {
		return
	}
	if s.trackedFolder(tx, node.Parent) {
		s.tracker(tx, node.Parent).RecordNewUID(int64(node.ID))
	}
}

// NodeRestored implements repo.Observer.
func (s *Service) NodeRestored(tx repo.Txn, node repo.Node) {
	if s.eventsSuppressed(tx) {
		return
	}
	if s.trackedFolder(tx, node.Parent) {
		s.tracker(tx, node.Parent).RecordNewUID(int64(node.ID))
	}
}

// NodeDeleted implements repo.Observer. Registering the tracker is
// enough: the folder gets a fresh change token at commit.
func (s *Service) NodeDeleted(tx repo.Txn, node repo.Node) {
	if s.eventsSuppressed(tx) {
		return
	}
	if s.trackedFolder(tx, node.Parent) {
		s.tracker(tx, node.Parent)
	}
}

// NodeMoved implements repo.Observer.
func (s *Service) NodeMoved(tx repo.Txn, node repo.Node, oldParent repo.NodeID) {
	if s.eventsSuppressed(tx) {
		return
	}
	if s.trackedFolder(tx, oldParent) {
		s.tracker(tx, oldParent)
	}
	if s.trackedFolder(tx, node.Parent) {
		// the moved item keeps its id, which may sort below the target
		// folder's previous maximum
		s.tracker(tx, node.Parent).RecordNewUID(int64(node.ID))
	}
}

// AttrChanged implements repo.Observer.
func (s *Service) AttrChanged(tx repo.Txn, node repo.Node, name repo.Attr) {
	if maintenanceAttrs[name] || s.eventsSuppressed(tx) {
		return
	}
	if !s.trackedFolder(tx, node.Parent) {
		return
	}
	tracker := s.tracker(tx, node.Parent)
	if significantAttrs[name] {
		tracker.ForceNewUIDValidity()
	}
}

// AspectChanged implements repo.Observer.
func (s *Service) AspectChanged(tx repo.Txn, node repo.Node, aspect repo.Aspect, added bool) {
	if aspect == repo.AspectFolder || aspect == repo.AspectFlaggable {
		return
	}
	if s.eventsSuppressed(tx) {
		return
	}
	if s.trackedFolder(tx, node.Parent) {
		s.tracker(tx, node.Parent)
	}
}

func isNotFound(err error) bool {
	return err != nil && (errors.Is(err, lib.ErrNodeNotFound) || errors.Is(err, lib.ErrMailboxNotFound))
}
