package avatar

import (
	"sort"
	"sync"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
)

const (
	ModeSurvival  = "SURVIVAL"
	ModeAdventure = "ADVENTURE"
	ModeSpectator = "SPECTATOR"
)

// Avatar is the server-side body of one connected player.
type Avatar struct {
	ID        arena.PlayerID
	Name      string
	Pos       arena.Location
	Inventory map[string]int
	GameMode  string
	// Watching is the player being spectated, if any.
	Watching arena.PlayerID
}

func (a *Avatar) clone() Avatar {
	c := *a
	c.Inventory = copyInv(a.Inventory)
	return c
}

// Registry holds every avatar and implements arena.PlayerBridge. Safe for concurrent use.
type Registry struct {
	mu sync.RWMutex
	m  map[arena.PlayerID]*Avatar

	spawn arena.Location
}

var _ arena.PlayerBridge = (*Registry)(nil)

// NewRegistry creates a registry placing new avatars at spawn.
func NewRegistry(spawn arena.Location) *Registry {
	return &Registry{m: map[arena.PlayerID]*Avatar{}, spawn: spawn}
}

// Connect returns the avatar for id, creating it at the world spawn.
func (r *Registry) Connect(id arena.PlayerID, name string) Avatar {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.m[id]
	if a == nil {
		a = &Avatar{ID: id, Name: name, Pos: r.spawn, Inventory: map[string]int{}, GameMode: ModeSurvival}
		r.m[id] = a
	}
	return a.clone()
}

func (r *Registry) Disconnect(id arena.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
}

func (r *Registry) Get(id arena.PlayerID) (Avatar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a := r.m[id]
	if a == nil {
		return Avatar{}, false
	}
	return a.clone(), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// IDs returns connected players in sorted order.
func (r *Registry) IDs() []arena.PlayerID {
	r.mu.RLock()
	out := make([]arena.PlayerID, 0, len(r.m))
	for id := range r.m {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Move records a client-reported position. Spectators keep their camera.
func (r *Registry) Move(id arena.PlayerID, to arena.Location) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.m[id]
	if a == nil {
		return false
	}
	if to.World == "" {
		to.World = a.Pos.World
	}
	a.Pos = to
	return true
}

// Give adds (or with a negative n removes) items. Stacks never go below zero.
func (r *Registry) Give(id arena.PlayerID, item string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.m[id]
	if a == nil {
		return
	}
	v := a.Inventory[item] + n
	if v <= 0 {
		delete(a.Inventory, item)
		return
	}
	a.Inventory[item] = v
}

func (r *Registry) Position(p arena.PlayerID) (arena.Location, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a := r.m[p]
	if a == nil {
		return arena.Location{}, false
	}
	return a.Pos, true
}

func (r *Registry) InventoryEmpty(p arena.PlayerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a := r.m[p]
	return a == nil || len(a.Inventory) == 0
}

// SaveContext snapshots what the player carried and puts them in adventure mode.
func (r *Registry) SaveContext(p arena.PlayerID) arena.PlayerContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.m[p]
	if a == nil {
		return arena.PlayerContext{}
	}
	c := arena.PlayerContext{Location: a.Pos, Inventory: copyInv(a.Inventory), GameMode: a.GameMode}
	a.Inventory = map[string]int{}
	a.GameMode = ModeAdventure
	return c
}

func (r *Registry) RestoreContext(p arena.PlayerID, c arena.PlayerContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.m[p]
	if a == nil {
		return
	}
	a.Pos = c.Location
	a.Inventory = copyInv(c.Inventory)
	if a.Inventory == nil {
		a.Inventory = map[string]int{}
	}
	a.GameMode = c.GameMode
	if a.GameMode == "" {
		a.GameMode = ModeSurvival
	}
	a.Watching = ""
}

func (r *Registry) Teleport(p arena.PlayerID, to arena.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.m[p]; a != nil {
		a.Pos = to
	}
}

// Spectate switches p to spectator mode at target's position.
func (r *Registry) Spectate(p, target arena.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.m[p]
	if a == nil {
		return
	}
	a.GameMode = ModeSpectator
	a.Watching = target
	if t := r.m[target]; t != nil {
		a.Pos = t.Pos
	}
}

func copyInv(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
