package folder

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/mailbox"
	"github.com/creativeprojects/imapview/repo"
)

const favouritesResourcePrefix = "imapview.favourites."

// MailboxInfo is one entry of a mailbox listing. A non-selectable entry
// is a placeholder surfaced only to keep the hierarchy of a subscribed
// descendant reachable.
type MailboxInfo struct {
	Name       string
	Selectable bool
	View       *View
}

// candidate is one folder reachable as a mailbox, before pattern and
// subscription filtering.
type candidate struct {
	name    string
	node    repo.Node
	mode    mailbox.ViewMode
	mountID int
}

// ListMailboxes expands an IMAP LIST/LSUB pattern against the mount
// points and the user's home namespace. "%" matches within one hierarchy
// level, "*" across levels. With subscribedOnly, unsubscribed mailboxes
// are omitted unless a subscribed descendant needs them as placeholders.
func (s *Service) ListMailboxes(user string, pattern string, subscribedOnly bool) ([]MailboxInfo, error) {
	if pattern == "" {
		return nil, nil
	}
	match, err := patternRegexp(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox pattern %q: %w", pattern, err)
	}

	var result []MailboxInfo
	err = repo.RetryingTransaction(s.store, false, s.retries, func(tx repo.Txn) error {
		result = result[:0]
		candidates, err := s.collectMailboxes(tx, user)
		if err != nil {
			return err
		}
		var unsubscribed map[repo.NodeID]bool
		if subscribedOnly {
			unsubscribed, err = s.unsubscribedSet(tx, user)
			if err != nil {
				return err
			}
		}
		for index, entry := range candidates {
			if !match.MatchString(entry.name) {
				continue
			}
			if subscribedOnly && unsubscribed[entry.node.ID] {
				if hasSubscribedDescendant(candidates, index, unsubscribed) {
					result = append(result, MailboxInfo{Name: entry.name})
				}
				continue
			}
			result = append(result, MailboxInfo{
				Name:       entry.name,
				Selectable: true,
				View:       newView(s, user, entry.name, entry.node, entry.mode, entry.mountID, true),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// GetMailbox resolves an existing mailbox to a View.
func (s *Service) GetMailbox(user string, name string) (*View, error) {
	return s.GetOrCreateMailbox(user, name, true, false)
}

// GetOrCreateMailbox resolves a mailbox by name. With mayCreate, missing
// folders along the path are created; with mayExist false, finding the
// mailbox already present is an error.
func (s *Service) GetOrCreateMailbox(user string, name string, mayExist, mayCreate bool) (*View, error) {
	if name == "" {
		return nil, lib.ErrMailboxNameRequired
	}
	var view *View
	err := repo.RetryingTransaction(s.store, false, s.retries, func(tx repo.Txn) error {
		entry, created, err := s.resolveMailbox(tx, user, name, mayCreate)
		if err != nil {
			return err
		}
		if !created && !mayExist {
			return fmt.Errorf("mailbox %q: %w", name, lib.ErrMailboxExists)
		}
		view = newView(s, user, entry.name, entry.node, entry.mode, entry.mountID, true)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// DeleteMailbox removes a mailbox. Mount points and mailboxes still
// holding subfolders are refused.
func (s *Service) DeleteMailbox(user string, name string) error {
	if name == "" {
		return lib.ErrMailboxNameRequired
	}
	return repo.RetryingTransaction(s.store, false, s.retries, func(tx repo.Txn) error {
		entry, _, err := s.resolveMailbox(tx, user, name, false)
		if err != nil {
			return err
		}
		if s.isMountRoot(entry.node.ID) {
			return fmt.Errorf("mailbox %q is a mount point: %w", name, lib.ErrAccessDenied)
		}
		subFolders, err := tx.Children(entry.node.ID, true)
		if err != nil {
			return err
		}
		if len(subFolders) > 0 {
			return fmt.Errorf("mailbox %q still has %d subfolders", name, len(subFolders))
		}
		if s.perms.HasPermission(user, entry.node.ID, repo.PermissionDelete) == repo.Denied {
			return fmt.Errorf("cannot delete mailbox %q: %w", name, lib.ErrAccessDenied)
		}
		return tx.Delete(entry.node.ID)
	})
}

// RenameMailbox renames or moves a mailbox. The renamed folder gets a
// new epoch: clients address mailboxes by name, so their cached UID maps
// for the old name must not survive onto the new one.
func (s *Service) RenameMailbox(user string, oldName, newName string) error {
	if oldName == "" || newName == "" {
		return lib.ErrMailboxNameRequired
	}
	return repo.RetryingTransaction(s.store, false, s.retries, func(tx repo.Txn) error {
		entry, _, err := s.resolveMailbox(tx, user, oldName, false)
		if err != nil {
			return err
		}
		if s.isMountRoot(entry.node.ID) {
			return fmt.Errorf("mailbox %q is a mount point: %w", oldName, lib.ErrAccessDenied)
		}
		if _, _, err = s.resolveMailbox(tx, user, newName, false); err == nil {
			return fmt.Errorf("mailbox %q: %w", newName, lib.ErrMailboxExists)
		} else if !isNotFound(err) {
			return err
		}

		path := mailbox.Path(newName)
		parent := entry.node.Parent
		if parentPath := parentOf(path); parentPath.IsEmpty() {
			// single-segment target: the mailbox lands in the user home
			parent, err = s.userHome(tx, user)
			if err != nil {
				return err
			}
		} else {
			parentEntry, _, err := s.resolveMailbox(tx, user, parentPath.String(), false)
			if err != nil {
				return err
			}
			parent = parentEntry.node.ID
		}

		if parent != entry.node.Parent {
			if err = tx.Move(entry.node.ID, parent); err != nil {
				return err
			}
		}
		if path.Name() != entry.node.Name {
			if err = tx.Rename(entry.node.ID, path.Name()); err != nil {
				return err
			}
		}
		if s.trackedFolder(tx, entry.node.ID) {
			s.tracker(tx, entry.node.ID).ForceNewUIDValidity()
		}
		return nil
	})
}

// SubscribeMailbox puts a mailbox back on the user's subscription list.
// Mailboxes are subscribed by default; only the opt-out is persisted.
func (s *Service) SubscribeMailbox(user string, name string) error {
	return s.setSubscribed(user, name, true)
}

// UnsubscribeMailbox takes a mailbox off the user's subscription list.
func (s *Service) UnsubscribeMailbox(user string, name string) error {
	return s.setSubscribed(user, name, false)
}

func (s *Service) setSubscribed(user string, name string, subscribed bool) error {
	if name == "" {
		return lib.ErrMailboxNameRequired
	}
	return repo.RetryingTransaction(s.store, false, s.retries, func(tx repo.Txn) error {
		entry, _, err := s.resolveMailbox(tx, user, name, false)
		if err != nil {
			return err
		}
		home, err := s.userHome(tx, user)
		if err != nil {
			return err
		}
		if subscribed {
			return tx.RemoveAssoc(home, entry.node.ID, repo.AssocUnsubscribed)
		}
		return tx.CreateAssoc(home, entry.node.ID, repo.AssocUnsubscribed)
	})
}

// resolveMailbox walks a mailbox name to its folder node. The first
// segment is matched against the mount point names, the user home is the
// fallback namespace. With mayCreate, missing folders are created and
// the returned flag reports whether any creation happened.
func (s *Service) resolveMailbox(tx repo.Txn, user string, name string, mayCreate bool) (candidate, bool, error) {
	first, rest := mailbox.Path(name).Root()

	entry := candidate{mode: mailbox.ViewModeArchive}
	var current repo.NodeID
	if mount, ok := s.mountByName(first); ok {
		node, err := tx.Node(mount.node)
		if err != nil {
			return candidate{}, false, err
		}
		entry.name = mount.name
		entry.mode = mount.mode
		entry.mountID = mount.id
		entry.node = node
		current = mount.node
	} else {
		home, err := s.userHome(tx, user)
		if err != nil {
			return candidate{}, false, err
		}
		current = home
		// the home folder itself is the namespace root, not a mailbox:
		// the first segment resolves below it
		rest = name
	}

	created := false
	for _, segment := range strings.Split(rest, mailbox.HierarchyDelimiter) {
		if segment == "" {
			continue
		}
		child, err := tx.ChildByName(current, segment)
		switch {
		case err == nil:
			if !child.Folder {
				return candidate{}, false, fmt.Errorf("%q under mailbox %q is not a folder: %w", segment, entry.name, lib.ErrMailboxNotFound)
			}
			entry.node = child
		case isNotFound(err):
			if !mayCreate {
				return candidate{}, false, fmt.Errorf("mailbox %q: %w", name, lib.ErrMailboxNotFound)
			}
			if s.perms.HasPermission(user, current, repo.PermissionAddChildren) == repo.Denied {
				return candidate{}, false, fmt.Errorf("cannot create mailbox %q: %w", name, lib.ErrAccessDenied)
			}
			id, err := tx.CreateNode(current, segment, true)
			if err != nil {
				return candidate{}, false, err
			}
			created = true
			entry.node, err = tx.Node(id)
			if err != nil {
				return candidate{}, false, err
			}
		default:
			return candidate{}, false, err
		}
		current = entry.node.ID
		entry.name = string(mailbox.Path(entry.name).Join(segment))
	}
	if entry.node.ID == repo.NoNode {
		return candidate{}, false, fmt.Errorf("mailbox %q: %w", name, lib.ErrMailboxNotFound)
	}
	return entry, created, nil
}

func (s *Service) mountByName(name string) (mountPoint, bool) {
	for _, mount := range s.mounts {
		if mount.name == name {
			return mount, true
		}
	}
	return mountPoint{}, false
}

func (s *Service) isMountRoot(id repo.NodeID) bool {
	for _, mount := range s.mounts {
		if mount.node == id {
			return true
		}
	}
	return false
}

// userHome returns the user's private mailbox root, creating it on first
// use.
func (s *Service) userHome(tx repo.Txn, user string) (repo.NodeID, error) {
	child, err := tx.ChildByName(s.homeRoot, user)
	if err == nil {
		return child.ID, nil
	}
	if !isNotFound(err) {
		return repo.NoNode, err
	}
	return tx.CreateNode(s.homeRoot, user, true)
}

// collectMailboxes enumerates every folder the user can see as a
// mailbox: the mount points with their filtered subtrees, then the home
// namespace.
func (s *Service) collectMailboxes(tx repo.Txn, user string) ([]candidate, error) {
	list := make([]candidate, 0)
	for _, mount := range s.mounts {
		node, err := tx.Node(mount.node)
		if err != nil {
			return nil, err
		}
		list = append(list, candidate{name: mount.name, node: node, mode: mount.mode, mountID: mount.id})
		list, err = s.collectSubFolders(tx, user, mount.node, mailbox.Path(mount.name), mount.mode, mount.id, list)
		if err != nil {
			return nil, err
		}
	}
	home, err := s.userHome(tx, user)
	if err != nil {
		return nil, err
	}
	return s.collectSubFolders(tx, user, home, "", mailbox.ViewModeArchive, 0, list)
}

func (s *Service) collectSubFolders(tx repo.Txn, user string, parent repo.NodeID, prefix mailbox.Path, mode mailbox.ViewMode, mountID int, list []candidate) ([]candidate, error) {
	folders, err := tx.Children(parent, true)
	if err != nil {
		return nil, err
	}
	for _, node := range folders {
		visible, err := s.visibleSubFolder(tx, user, node, mode)
		if err != nil {
			return nil, err
		}
		if !visible {
			continue
		}
		name := prefix.Join(node.Name)
		list = append(list, candidate{name: name.String(), node: node, mode: mode, mountID: mountID})
		list, err = s.collectSubFolders(tx, user, node.ID, name, mode, mountID, list)
		if err != nil {
			return nil, err
		}
	}
	return list, nil
}

// visibleSubFolder applies the subfolder filter: deny-listed component
// ids never show, site roots only show to users that favourited them and
// never under the archive mode.
func (s *Service) visibleSubFolder(tx repo.Txn, user string, node repo.Node, mode mailbox.ViewMode) (bool, error) {
	component, _, err := attrString(tx, node.ID, repo.AttrComponentID)
	if err != nil {
		return false, err
	}
	if component != "" {
		for _, excluded := range s.excluded {
			if strings.EqualFold(component, excluded) {
				return false, nil
			}
		}
	}
	if node.Type == repo.TypeSite {
		if mode == mailbox.ViewModeArchive {
			return false, nil
		}
		favourites, err := s.favouriteSites(tx, user)
		if err != nil {
			return false, err
		}
		return favourites[node.ID], nil
	}
	return true, nil
}

// favouriteSites fetches the user's favourite site folders once per
// transaction.
func (s *Service) favouriteSites(tx repo.Txn, user string) (map[repo.NodeID]bool, error) {
	key := favouritesResourcePrefix + user
	if cached, ok := tx.Resource(key).(map[repo.NodeID]bool); ok {
		return cached, nil
	}
	sites, err := s.prefs.FavouriteSites(tx, user)
	if err != nil {
		return nil, err
	}
	favourites := make(map[repo.NodeID]bool, len(sites))
	for _, id := range sites {
		favourites[id] = true
	}
	tx.BindResource(key, favourites)
	return favourites, nil
}

func (s *Service) unsubscribedSet(tx repo.Txn, user string) (map[repo.NodeID]bool, error) {
	home, err := s.userHome(tx, user)
	if err != nil {
		return nil, err
	}
	targets, err := tx.AssocTargets(home, repo.AssocUnsubscribed)
	if err != nil {
		return nil, err
	}
	unsubscribed := make(map[repo.NodeID]bool, len(targets))
	for _, id := range targets {
		unsubscribed[id] = true
	}
	return unsubscribed, nil
}

func hasSubscribedDescendant(candidates []candidate, index int, unsubscribed map[repo.NodeID]bool) bool {
	prefix := candidates[index].name + mailbox.HierarchyDelimiter
	for _, other := range candidates {
		if strings.HasPrefix(other.name, prefix) && !unsubscribed[other.node.ID] {
			return true
		}
	}
	return false
}

func parentOf(path mailbox.Path) mailbox.Path {
	name := path.String()
	index := strings.LastIndex(name, mailbox.HierarchyDelimiter)
	if index < 0 {
		return ""
	}
	return mailbox.Path(name[:index])
}

// patternRegexp compiles an IMAP mailbox pattern: "%" matches within one
// hierarchy level, "*" across levels.
func patternRegexp(pattern string) (*regexp.Regexp, error) {
	builder := &strings.Builder{}
	builder.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			builder.WriteString("[^" + mailbox.HierarchyDelimiter + "]*")
		case '*':
			builder.WriteString(".*")
		default:
			builder.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	builder.WriteString("$")
	return regexp.Compile(builder.String())
}
