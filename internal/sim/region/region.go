package region

import (
	"fmt"
	"sort"
	"sync"
)

// Block ids used by arena floors. Anything else is carried through untouched.
const (
	Air  uint16 = 0
	Snow uint16 = 1
)

type Pos struct {
	X, Y, Z int
}

// Grid is a dense box of blocks covering one arena. Safe for concurrent use.
type Grid struct {
	min, max Pos

	mu     sync.RWMutex
	blocks []uint16
	broken int
}

func NewGrid(min, max Pos) (*Grid, error) {
	if max.X < min.X || max.Y < min.Y || max.Z < min.Z {
		return nil, fmt.Errorf("region: empty box %v..%v", min, max)
	}
	g := &Grid{min: min, max: max}
	sx, sy, sz := g.Size()
	g.blocks = make([]uint16, sx*sy*sz)
	return g, nil
}

func (g *Grid) Bounds() (Pos, Pos) { return g.min, g.max }

// Size returns the box extent along each axis.
func (g *Grid) Size() (int, int, int) {
	return g.max.X - g.min.X + 1, g.max.Y - g.min.Y + 1, g.max.Z - g.min.Z + 1
}

func (g *Grid) Len() int { return len(g.blocks) }

func (g *Grid) index(p Pos) (int, bool) {
	if p.X < g.min.X || p.X > g.max.X || p.Y < g.min.Y || p.Y > g.max.Y || p.Z < g.min.Z || p.Z > g.max.Z {
		return 0, false
	}
	sx, sy, _ := g.Size()
	x, y, z := p.X-g.min.X, p.Y-g.min.Y, p.Z-g.min.Z
	return (z*sy+y)*sx + x, true
}

func (g *Grid) Get(p Pos) (uint16, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.index(p)
	if !ok {
		return Air, false
	}
	return g.blocks[i], true
}

func (g *Grid) Set(p Pos, id uint16) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	i, ok := g.index(p)
	if !ok {
		return false
	}
	g.blocks[i] = id
	return true
}

// FillLayer sets every block of layer y to id.
func (g *Grid) FillLayer(y int, id uint16) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for z := g.min.Z; z <= g.max.Z; z++ {
		for x := g.min.X; x <= g.max.X; x++ {
			if i, ok := g.index(Pos{x, y, z}); ok {
				g.blocks[i] = id
			}
		}
	}
}

// Break turns a solid block into air. It reports whether anything was broken.
func (g *Grid) Break(p Pos) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	i, ok := g.index(p)
	if !ok || g.blocks[i] == Air {
		return false
	}
	g.blocks[i] = Air
	g.broken++
	return true
}

// Broken counts blocks broken since the last Load.
func (g *Grid) Broken() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.broken
}

// SolidBelow reports whether there is a non-air block at or under p inside the box.
func (g *Grid) SolidBelow(p Pos) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for y := p.Y; y >= g.min.Y; y-- {
		if i, ok := g.index(Pos{p.X, y, p.Z}); ok && g.blocks[i] != Air {
			return true
		}
	}
	return false
}

// Blocks returns a copy of the block array in x-fastest, then y, then z order.
func (g *Grid) Blocks() []uint16 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]uint16(nil), g.blocks...)
}

// Paste writes a box of blocks with its minimum corner at origin. Positions outside the grid
// are skipped. It resets the broken counter.
func (g *Grid) Paste(origin Pos, sx, sy, sz int, blocks []uint16) error {
	if sx*sy*sz != len(blocks) {
		return fmt.Errorf("region: %d blocks for a %dx%dx%d box", len(blocks), sx, sy, sz)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for z := 0; z < sz; z++ {
		for y := 0; y < sy; y++ {
			for x := 0; x < sx; x++ {
				i, ok := g.index(Pos{origin.X + x, origin.Y + y, origin.Z + z})
				if !ok {
					continue
				}
				g.blocks[i] = blocks[(z*sy+y)*sx+x]
			}
		}
	}
	g.broken = 0
	return nil
}

// Registry maps arena keys to their grids.
type Registry struct {
	mu    sync.RWMutex
	grids map[string]*Grid
}

func NewRegistry() *Registry {
	return &Registry{grids: map[string]*Grid{}}
}

func (r *Registry) Put(key string, g *Grid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grids[key] = g
}

func (r *Registry) Get(key string) (*Grid, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grids[key]
	return g, ok
}

func (r *Registry) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grids, key)
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.grids))
	for k := range r.grids {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
