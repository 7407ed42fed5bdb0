package snapshot

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/sim/encoding"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/sim/region"
)

const fileSuffix = ".snap.zst"

// Regenerator implements arena.WorldRegenerator over the in-memory region grids, keeping
// snapshots under <dir>/<arena key>/<seq>-<tick>.snap.zst. seq is the capture's wall-clock
// time in nanoseconds and only grows, so the newest capture survives a tick counter that
// restarts with the process.
type Regenerator struct {
	dir   string
	grids *region.Registry
	clock func() uint64
	now   func() time.Time
	log   *log.Logger

	mu      sync.Mutex
	lastSeq int64
}

// NewRegenerator builds a regenerator. clock supplies the tick stamped on captures.
func NewRegenerator(dir string, grids *region.Registry, clock func() uint64, logger *log.Logger) *Regenerator {
	if logger == nil {
		logger = log.Default()
	}
	if clock == nil {
		clock = func() uint64 { return 0 }
	}
	return &Regenerator{dir: dir, grids: grids, clock: clock, now: time.Now, log: logger}
}

func (r *Regenerator) Capture(ctx context.Context, arenaKey string) (arena.SnapshotRef, error) {
	if err := ctx.Err(); err != nil {
		return arena.SnapshotRef{}, err
	}
	g, ok := r.grids.Get(arenaKey)
	if !ok {
		return arena.SnapshotRef{}, fmt.Errorf("no region for arena %s", arenaKey)
	}
	min, max := g.Bounds()
	blocks := g.Blocks()
	tick := r.clock()
	snap := ArenaSnapshotV1{
		Header: Header{Version: Version, ArenaKey: arenaKey, Tick: tick},
		Min:    [3]int{min.X, min.Y, min.Z},
		Max:    [3]int{max.X, max.Y, max.Z},
		Blocks: encoding.PackRuns(blocks),
		Count:  len(blocks),
	}
	path := filepath.Join(r.dir, arenaKey, fileName(r.nextSeq(), tick))
	if err := WriteSnapshot(path, snap); err != nil {
		return arena.SnapshotRef{}, err
	}
	return arena.SnapshotRef{ArenaKey: arenaKey, Path: path, Tick: tick}, nil
}

func (r *Regenerator) nextSeq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := r.now().UnixNano()
	if seq <= r.lastSeq {
		seq = r.lastSeq + 1
	}
	r.lastSeq = seq
	return seq
}

// Restore pastes the snapshot back on a separate goroutine. A zero anchor pastes the box
// where it was captured; otherwise the box's minimum corner lands on the anchor.
func (r *Regenerator) Restore(ctx context.Context, ref arena.SnapshotRef, anchor arena.Location) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- r.restore(ctx, ref, anchor)
	}()
	return done
}

func (r *Regenerator) restore(ctx context.Context, ref arena.SnapshotRef, anchor arena.Location) error {
	g, ok := r.grids.Get(ref.ArenaKey)
	if !ok {
		return fmt.Errorf("no region for arena %s", ref.ArenaKey)
	}
	snap, err := ReadSnapshot(ref.Path)
	if err != nil {
		return err
	}
	if snap.Header.ArenaKey != ref.ArenaKey {
		return fmt.Errorf("snapshot %s belongs to %s", ref.Path, snap.Header.ArenaKey)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	blocks, err := encoding.UnpackRuns(snap.Blocks, snap.Count)
	if err != nil {
		return fmt.Errorf("decode %s: %w", ref.Path, err)
	}
	origin := region.Pos{X: snap.Min[0], Y: snap.Min[1], Z: snap.Min[2]}
	if anchor != (arena.Location{World: anchor.World}) {
		origin = region.Pos{X: floor(anchor.X), Y: floor(anchor.Y), Z: floor(anchor.Z)}
	}
	sx, sy, sz := snap.Size()
	if err := g.Paste(origin, sx, sy, sz, blocks); err != nil {
		return err
	}
	r.log.Printf("arena %s: restored %d blocks from tick %d", ref.ArenaKey, len(blocks), snap.Header.Tick)
	return nil
}

// Latest finds the newest snapshot stored for an arena.
func (r *Regenerator) Latest(arenaKey string) (arena.SnapshotRef, bool) {
	f, ok := latestFile(filepath.Join(r.dir, arenaKey))
	if !ok {
		return arena.SnapshotRef{}, false
	}
	return arena.SnapshotRef{ArenaKey: arenaKey, Path: f.path, Tick: f.tick}, true
}

// LatestPath returns the newest snapshot file in dir, or "" when there is none.
func LatestPath(dir string) string {
	f, _ := latestFile(dir)
	return f.path
}

type storedFile struct {
	path string
	seq  int64
	tick uint64
}

func fileName(seq int64, tick uint64) string {
	return fmt.Sprintf("%d-%d%s", seq, tick, fileSuffix)
}

// parseFileName reads <seq>-<tick>.snap.zst.
func parseFileName(name string) (seq int64, tick uint64, ok bool) {
	base, found := strings.CutSuffix(name, fileSuffix)
	if !found {
		return 0, 0, false
	}
	rawSeq, rawTick, found := strings.Cut(base, "-")
	if !found {
		return 0, 0, false
	}
	seq, err := strconv.ParseInt(rawSeq, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	tick, err = strconv.ParseUint(rawTick, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return seq, tick, true
}

func latestFile(dir string) (storedFile, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return storedFile{}, false
	}
	var files []storedFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		seq, tick, ok := parseFileName(e.Name())
		if !ok {
			continue
		}
		files = append(files, storedFile{path: filepath.Join(dir, e.Name()), seq: seq, tick: tick})
	}
	if len(files) == 0 {
		return storedFile{}, false
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq < files[j].seq })
	return files[len(files)-1], true
}

func floor(v float64) int { return int(math.Floor(v)) }
