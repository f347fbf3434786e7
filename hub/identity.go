package hub

import "sync"

// Kind partitions the identity map into independent key spaces.
type Kind int

const (
	KindTool Kind = iota
	KindResource
	KindPrompt
	KindComposite
	kindCount
)

// String returns the kind's label for logs.
func (k Kind) String() string {
	switch k {
	case KindTool:
		return "tool"
	case KindResource:
		return "resource"
	case KindPrompt:
		return "prompt"
	case KindComposite:
		return "composite"
	default:
		return "unknown"
	}
}

// IdentityMap is the routing table: it binds every public name the hub
// publishes to the backend handle that owns it. composite tool names bind to
// the dispatcher sentinel instead, and composite subkeys bind to the
// sub-backends they dispatch to.
type IdentityMap struct {
	mu         sync.RWMutex
	spaces     [kindCount]map[string]*BackendHandle
	backends   map[string]*BackendHandle
	dispatcher *BackendHandle
}

// NewIdentityMap creates an empty identity map.
func NewIdentityMap() *IdentityMap {
	m := &IdentityMap{
		backends:   make(map[string]*BackendHandle),
		dispatcher: &BackendHandle{name: "composite-dispatcher"},
	}
	for i := range m.spaces {
		m.spaces[i] = make(map[string]*BackendHandle)
	}
	return m
}

// Dispatcher returns the sentinel handle marking composite tool names.
// routing compares against it by identity, never by name.
func (m *IdentityMap) Dispatcher() *BackendHandle {
	return m.dispatcher
}

// Put binds key to handle within the kind's key space, replacing any
// previous binding.
func (m *IdentityMap) Put(kind Kind, key string, h *BackendHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spaces[kind][key] = h
}

// Get resolves key within the kind's key space.
func (m *IdentityMap) Get(kind Kind, key string) (*BackendHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.spaces[kind][key]
	return h, ok
}

// Clear drops every binding in the kind's key space.
func (m *IdentityMap) Clear(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spaces[kind] = make(map[string]*BackendHandle)
}

// Len returns the number of bindings in the kind's key space.
func (m *IdentityMap) Len(kind Kind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.spaces[kind])
}

// RegisterBackend records a live handle under its backend name.
func (m *IdentityMap) RegisterBackend(h *BackendHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backends[h.Name()] = h
}

// BackendByName returns the live handle registered for a backend name.
func (m *IdentityMap) BackendByName(name string) (*BackendHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.backends[name]
	return h, ok
}

// ReplaceBackend atomically rewrites every binding that points at the named
// backend to the replacement handle, so routes keep working across a restart
// without waiting for the next catalog sync.
func (m *IdentityMap) ReplaceBackend(name string, h *BackendHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, space := range m.spaces {
		for key, old := range space {
			if old != nil && old != m.dispatcher && old.Name() == name {
				space[key] = h
			}
		}
	}
	m.backends[name] = h
}

// CompositeKey renders the routing key for one subtool of a composite.
func CompositeKey(composite, server, tool string) string {
	return composite + ":" + server + ":" + tool
}
