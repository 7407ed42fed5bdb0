package arena

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/sim/ticker"
)

type fakeRegen struct {
	mu       sync.Mutex
	captures int
	restores int
	gate     chan struct{}
	err      error
}

func (f *fakeRegen) Capture(_ context.Context, key string) (SnapshotRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	return SnapshotRef{ArenaKey: key, Path: key + ".snap.zst", Tick: uint64(f.captures)}, nil
}

func (f *fakeRegen) Restore(_ context.Context, _ SnapshotRef, _ Location) <-chan error {
	f.mu.Lock()
	f.restores++
	gate, err := f.gate, f.err
	f.mu.Unlock()
	ch := make(chan error, 1)
	go func() {
		if gate != nil {
			<-gate
		}
		ch <- err
	}()
	return ch
}

var errNoFunds = errors.New("fake: balance too low")

type fakeStats struct {
	mu       sync.Mutex
	balances map[PlayerID]decimal.Decimal
	stats    map[string]int
	down     bool
}

func newFakeStats() *fakeStats {
	return &fakeStats{balances: map[PlayerID]decimal.Decimal{}, stats: map[string]int{}}
}

func (f *fakeStats) fund(amount int64, players ...PlayerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range players {
		f.balances[p] = decimal.NewFromInt(amount)
	}
}

func (f *fakeStats) balance(p PlayerID) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[p]
}

func (f *fakeStats) stat(p PlayerID, name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats[string(p)+"/"+name]
}

func (f *fakeStats) RecordResult(_ context.Context, p PlayerID, _, stat string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[string(p)+"/"+stat] += delta
	return nil
}

func (f *fakeStats) BetBalance(_ context.Context, p PlayerID) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return decimal.Zero, errors.New("fake: store down")
	}
	return f.balances[p], nil
}

func (f *fakeStats) Debit(_ context.Context, p PlayerID, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[p].LessThan(amount) {
		return errNoFunds
	}
	f.balances[p] = f.balances[p].Sub(amount)
	return nil
}

func (f *fakeStats) Credit(_ context.Context, p PlayerID, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[p] = f.balances[p].Add(amount)
	return nil
}

type sent struct {
	key  string
	to   PlayerID
	subs map[string]string
}

type recMessenger struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recMessenger) Broadcast(_ Audience, key string, subs map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{key: key, subs: subs})
}

func (r *recMessenger) Tell(p PlayerID, key string, subs map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{key: key, to: p, subs: subs})
}

func (r *recMessenger) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.key == key {
			n++
		}
	}
	return n
}

type recCommands struct {
	mu  sync.Mutex
	ran []string
}

func (r *recCommands) Run(cmd string, vars map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, cmd+"|"+vars["player"]+"|"+vars["place"]+"|"+vars["players"])
}

type fakePlayers struct {
	mu         sync.Mutex
	y          map[PlayerID]float64
	dirty      map[PlayerID]bool
	teleports  map[PlayerID]int
	spectating map[PlayerID]PlayerID
	restored   map[PlayerID]int
}

func newFakePlayers() *fakePlayers {
	return &fakePlayers{
		y:          map[PlayerID]float64{},
		dirty:      map[PlayerID]bool{},
		teleports:  map[PlayerID]int{},
		spectating: map[PlayerID]PlayerID{},
		restored:   map[PlayerID]int{},
	}
}

func (f *fakePlayers) fall(p PlayerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.y[p] = -10
}

func (f *fakePlayers) Position(p PlayerID) (Location, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	y, ok := f.y[p]
	if !ok {
		y = 64
	}
	return Location{World: "world", Y: y}, true
}

func (f *fakePlayers) InventoryEmpty(p PlayerID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dirty[p]
}

func (f *fakePlayers) SaveContext(p PlayerID) PlayerContext {
	return PlayerContext{GameMode: "SURVIVAL"}
}

func (f *fakePlayers) RestoreContext(p PlayerID, _ PlayerContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored[p]++
}

func (f *fakePlayers) Teleport(p PlayerID, to Location) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teleports[p]++
	f.y[p] = to.Y
}

func (f *fakePlayers) Spectate(p PlayerID, target PlayerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spectating[p] = target
}

type recObserver struct {
	BaseObserver
	mu      sync.Mutex
	won     []PlayerID
	teams   []string
	draws   int
	settled []Settlement
}

func (r *recObserver) Won(_, _ string, p PlayerID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.won = append(r.won, p)
}

func (r *recObserver) TeamEliminated(_, _, team string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams = append(r.teams, team)
}

func (r *recObserver) Draw(string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draws++
}

func (r *recObserver) Settled(_ string, s Settlement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, s)
}

type testEnv struct {
	m       *Manager
	sched   *ticker.Scheduler
	regen   *fakeRegen
	stats   *fakeStats
	msgs    *recMessenger
	cmds    *recCommands
	players *fakePlayers
	obs     *recObserver
}

// newTestEnv runs the scheduler at one tick per second so one Step is one countdown second.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		sched:   ticker.New(1),
		regen:   &fakeRegen{},
		stats:   newFakeStats(),
		msgs:    &recMessenger{},
		cmds:    &recCommands{},
		players: newFakePlayers(),
		obs:     &recObserver{},
	}
	env.m = NewManager(Deps{
		Scheduler:   env.sched,
		Regenerator: env.regen,
		Stats:       env.stats,
		Messenger:   env.msgs,
		Commands:    env.cmds,
		Players:     env.players,
		Observers:   []Observer{env.obs},
		Logger:      log.New(io.Discard, "", 0),
		Seed:        1,
	})
	return env
}

func (e *testEnv) steps(n int) {
	for i := 0; i < n; i++ {
		e.sched.Step()
	}
}

func loc(y float64) *Location { return &Location{World: "world", Y: y} }

func ffaConfig(key string, max int, bet int64) Config {
	return Config{
		Key:               key,
		Kind:              KindFreeForAll,
		Enabled:           true,
		MinPlayers:        2,
		MaxPlayers:        max,
		Lobby:             loc(100),
		Spawn:             loc(64),
		Bet:               decimal.NewFromInt(bet),
		DeathY:            0,
		GameTimeSeconds:   100,
		CountdownSeconds:  3,
		PollIntervalTicks: 1,
	}
}

func teamsConfig(key string, size int) Config {
	return Config{
		Key:        key,
		Kind:       KindTeams,
		Enabled:    true,
		MinPlayers: 2,
		Teams: []TeamSpec{
			{ID: "red", Size: size, Spawn: loc(64)},
			{ID: "blue", Size: size, Spawn: loc(64)},
		},
		Lobby:             loc(100),
		GameTimeSeconds:   100,
		CountdownSeconds:  2,
		PollIntervalTicks: 1,
	}
}

func mustCreate(t *testing.T, e *testEnv, cfg Config) *Arena {
	t.Helper()
	a, err := e.m.Create(cfg)
	if err != nil {
		t.Fatalf("create %s: %v", cfg.Key, err)
	}
	return a
}

func mustJoin(t *testing.T, e *testEnv, key string, team string, players ...PlayerID) {
	t.Helper()
	for _, p := range players {
		if err := e.m.Join(context.Background(), p, key, team); err != nil {
			t.Fatalf("join %s to %s: %v", p, key, err)
		}
	}
}

// waitPhase waits for asynchronous regeneration to settle the arena into want.
func waitPhase(t *testing.T, a *Arena, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.Phase() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("phase: got %s want %s", a.Phase(), want)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
