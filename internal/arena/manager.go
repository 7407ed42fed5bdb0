package arena

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// kinds lists the arena kinds the engine can host, with a human name for logs.
var kinds = map[Kind]string{
	KindTeams:      "teams",
	KindFreeForAll: "free-for-all",
}

// Manager is the registry of arenas keyed by their unique key and the entry point for
// player actions that have to be routed to the arena a player is in.
type Manager struct {
	deps *Deps

	mu     sync.RWMutex
	arenas map[string]*Arena
}

func NewManager(deps Deps) *Manager {
	d := deps
	d.normalize()
	return &Manager{deps: &d, arenas: map[string]*Arena{}}
}

func (m *Manager) Sessions() *Sessions { return m.deps.Sessions }

// Create registers a new arena from an already-validated config.
func (m *Manager) Create(cfg Config) (*Arena, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.arenas[cfg.Key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrArenaExists, cfg.Key)
	}
	a := newArena(cfg, m.deps)
	m.arenas[cfg.Key] = a
	m.deps.Logger.Printf("arena %s: registered (%s, capacity %d, phase %s)", cfg.Key, kinds[cfg.Kind], cfg.Capacity(), a.Phase())
	return a, nil
}

func (m *Manager) Get(key string) (*Arena, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.arenas[key]
	if !ok {
		return nil, ErrArenaNotFound
	}
	return a, nil
}

// Remove unregisters an arena, ending any match in it as a draw.
func (m *Manager) Remove(key string) error {
	m.mu.Lock()
	a, ok := m.arenas[key]
	if ok {
		delete(m.arenas, key)
	}
	m.mu.Unlock()
	if !ok {
		return ErrArenaNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.abortLocked()
	a.removed = true
	m.deps.Logger.Printf("arena %s: removed", key)
	return nil
}

// Arenas returns every registered arena ordered by key.
func (m *Manager) Arenas() []*Arena {
	m.mu.RLock()
	out := make([]*Arena, 0, len(m.arenas))
	for _, a := range m.arenas {
		out = append(out, a)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (m *Manager) List() []View {
	arenas := m.Arenas()
	out := make([]View, 0, len(arenas))
	for _, a := range arenas {
		out = append(out, a.View())
	}
	return out
}

func (m *Manager) Snapshot(key string) (View, error) {
	a, err := m.Get(key)
	if err != nil {
		return View{}, err
	}
	return a.View(), nil
}

// ArenaOf returns the arena p currently belongs to.
func (m *Manager) ArenaOf(p PlayerID) (*Arena, error) {
	key := m.deps.Sessions.ArenaOf(p)
	if key == "" {
		return nil, ErrNotInArena
	}
	return m.Get(key)
}

func (m *Manager) Join(ctx context.Context, p PlayerID, key, team string) error {
	a, err := m.Get(key)
	if err != nil {
		return err
	}
	return a.Join(ctx, p, team)
}

func (m *Manager) Quit(ctx context.Context, p PlayerID) error {
	a, err := m.ArenaOf(p)
	if err != nil {
		return err
	}
	return a.Quit(ctx, p, false)
}

// Disconnect removes p from whatever arena it is in and forgets its session.
func (m *Manager) Disconnect(ctx context.Context, p PlayerID) {
	if a, err := m.ArenaOf(p); err == nil {
		if err := a.Quit(ctx, p, true); err != nil {
			m.deps.Logger.Printf("arena %s: disconnect %s: %v", a.Key(), p, err)
		}
	}
	m.deps.Sessions.Forget(p)
}

func (m *Manager) Eliminate(ctx context.Context, p PlayerID) error {
	a, err := m.ArenaOf(p)
	if err != nil {
		return err
	}
	return a.Eliminate(ctx, p, false)
}

func (m *Manager) UseAbility(p PlayerID, name string) (int, error) {
	a, err := m.ArenaOf(p)
	if err != nil {
		return 0, err
	}
	return a.UseAbility(p, name)
}

func (m *Manager) SetEnabled(key string, enabled bool) error {
	a, err := m.Get(key)
	if err != nil {
		return err
	}
	a.SetEnabled(enabled)
	return nil
}

func (m *Manager) Start(key string) error {
	a, err := m.Get(key)
	if err != nil {
		return err
	}
	return a.Start()
}

func (m *Manager) Capture(ctx context.Context, key string) (SnapshotRef, error) {
	a, err := m.Get(key)
	if err != nil {
		return SnapshotRef{}, err
	}
	return a.Capture(ctx)
}

func (m *Manager) Regenerate(ctx context.Context, key string) error {
	a, err := m.Get(key)
	if err != nil {
		return err
	}
	return a.Regenerate(ctx)
}
