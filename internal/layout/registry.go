package layout

import (
	"fmt"
	"sync"
)

// Registry is an in-memory layout authority mapping show IDs to their
// screen layouts. In production it is filled from the catalog service at
// startup; tests register layouts directly.
type Registry struct {
	mu      sync.RWMutex
	byShow  map[string]*Layout
	screens map[string]*Layout
}

func NewRegistry() *Registry {
	return &Registry{
		byShow:  make(map[string]*Layout),
		screens: make(map[string]*Layout),
	}
}

// RegisterScreen stores a screen layout under its name.
func (r *Registry) RegisterScreen(screenName string, l *Layout) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.screens[screenName] = l
}

// AssignShow binds a show to a registered screen layout.
func (r *Registry) AssignShow(showID, screenName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.screens[screenName]
	if !ok {
		return fmt.Errorf("screen %q has no registered layout", screenName)
	}
	r.byShow[showID] = l
	return nil
}

// LayoutForShow returns the layout bound to a show.
func (r *Registry) LayoutForShow(showID string) (*Layout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byShow[showID]
	if !ok {
		return nil, fmt.Errorf("show %q has no layout assigned", showID)
	}
	return l, nil
}
