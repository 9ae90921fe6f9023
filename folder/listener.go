package folder

import (
	"sync"

	"github.com/creativeprojects/imapview/repo"
)

// listenerRegistry holds the folder listeners, keyed by folder identity.
type listenerRegistry struct {
	mu        sync.Mutex
	listeners map[repo.NodeID][]Listener
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{
		listeners: make(map[repo.NodeID][]Listener),
	}
}

// AddListener registers a listener for flag changes on one folder.
func (s *Service) AddListener(folder repo.NodeID, listener Listener) {
	s.listeners.mu.Lock()
	defer s.listeners.mu.Unlock()
	s.listeners.listeners[folder] = append(s.listeners.listeners[folder], listener)
}

func (s *Service) RemoveListener(folder repo.NodeID, listener Listener) {
	s.listeners.mu.Lock()
	defer s.listeners.mu.Unlock()
	kept := s.listeners.listeners[folder][:0]
	for _, l := range s.listeners.listeners[folder] {
		if l != listener {
			kept = append(kept, l)
		}
	}
	s.listeners.listeners[folder] = kept
}

// notifyFlagsChanged fans a flag change out to the folder's listeners,
// skipping the silent one so a session does not get its own change
// echoed back.
func (s *Service) notifyFlagsChanged(folder repo.NodeID, uid int64, msn int, silent Listener) {
	s.listeners.mu.Lock()
	list := append([]Listener(nil), s.listeners.listeners[folder]...)
	s.listeners.mu.Unlock()

	for _, listener := range list {
		if listener == silent {
			continue
		}
		listener.FlagsChanged(folder, uid, msn)
	}
}
