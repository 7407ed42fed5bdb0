package arena

import (
	"context"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/sim/ticker"
)

// Message keys broadcast on state transitions.
const (
	MsgPlayerJoined       = "PLAYER_JOINED"
	MsgPlayerQuit         = "PLAYER_QUIT"
	MsgBetTaken           = "BET_TAKEN"
	MsgBetRefunded        = "BET_REFUNDED"
	MsgBetWon             = "BET_WON"
	MsgGameStarting       = "GAME_STARTING"
	MsgCountdown          = "COUNTDOWN"
	MsgCountdownCancelled = "COUNTDOWN_CANCELLED"
	MsgGameStarted        = "GAME_STARTED"
	MsgTimeRemaining      = "TIME_REMAINING"
	MsgPlayerEliminated   = "PLAYER_ELIMINATED"
	MsgTeamEliminated     = "TEAM_ELIMINATED"
	MsgPlayerWon          = "PLAYER_WON"
	MsgDraw               = "DRAW"
	MsgRegenerating       = "ARENA_REGENERATING"
	MsgArenaReady         = "ARENA_READY"
	MsgArenaDisabled      = "ARENA_DISABLED"
)

// Stat names recorded through the StatisticsStore.
const (
	StatWins         = "wins"
	StatLosses       = "losses"
	StatGamesPlayed  = "games_played"
	DefaultExtension = "spleef"
)

const statsTimeout = 2 * time.Second

// Deps are the collaborators shared by every arena of a host.
type Deps struct {
	Scheduler   *ticker.Scheduler
	Sessions    *Sessions
	Regenerator WorldRegenerator
	Stats       StatisticsStore
	Messenger   Messenger
	Presenter   Presenter
	Commands    CommandRunner
	Players     PlayerBridge
	Observers   []Observer
	Logger      *log.Logger
	// Extension is the statistics namespace results are recorded under.
	Extension string
	// Seed makes team selection deterministic when non-zero.
	Seed int64
}

func (d *Deps) normalize() {
	if d.Scheduler == nil {
		d.Scheduler = ticker.New(20)
	}
	if d.Sessions == nil {
		d.Sessions = NewSessions()
	}
	if d.Messenger == nil {
		d.Messenger = nopMessenger{}
	}
	if d.Presenter == nil {
		d.Presenter = nopPresenter{}
	}
	if d.Commands == nil {
		d.Commands = nopCommands{}
	}
	if d.Players == nil {
		d.Players = nopPlayers{}
	}
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	if d.Extension == "" {
		d.Extension = DefaultExtension
	}
}

// Entrant is one placement in the elimination record: a single player in FFA, a team
// (with the members it had when it went out) in team arenas.
type Entrant struct {
	Team    string
	Players []PlayerID
}

// Arena is one configured match location and its live state. All mutation happens under mu.
type Arena struct {
	mu   sync.Mutex
	cfg  Config
	deps *Deps
	log  *log.Logger
	rng  *rand.Rand

	enabled bool
	phase   Phase
	matchID string

	roster     *Roster
	ledger     *Ledger
	saved      map[PlayerID]PlayerContext
	spectators map[PlayerID]PlayerID
	// placements is the reverse-chronological elimination record: index 0 is 1st place
	// once the match concludes.
	placements []Entrant
	endTasks   []EndTask

	snapshot *SnapshotRef
	regenGen uint64

	countdown *countdown
	loop      *gameLoop
	concluded bool
	// holdWin defers win checks until a poll pass has applied all of its eliminations.
	holdWin bool
	removed bool
}

func newArena(cfg Config, deps *Deps) *Arena {
	seed := deps.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	a := &Arena{
		cfg:        cfg,
		deps:       deps,
		log:        deps.Logger,
		rng:        rand.New(rand.NewSource(seed)),
		enabled:    cfg.Enabled,
		roster:     newRoster(cfg),
		ledger:     newLedger(),
		saved:      map[PlayerID]PlayerContext{},
		spectators: map[PlayerID]PlayerID{},
	}
	a.phase = a.effectivePhaseLocked()
	return a
}

func (a *Arena) Key() string { return a.cfg.Key }

func (a *Arena) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Phase returns the current phase, re-validated against the enabled flag and setup.
func (a *Arena) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshPhaseLocked()
}

func (a *Arena) effectivePhaseLocked() Phase {
	if a.phase.Authoritative() {
		return a.phase
	}
	if !a.enabled {
		return PhaseDisabled
	}
	if !a.cfg.SetupComplete() {
		return PhaseNeedsSetup
	}
	if a.phase == PhaseDisabled || a.phase == PhaseNeedsSetup {
		return PhaseWaiting
	}
	return a.phase
}

func (a *Arena) refreshPhaseLocked() Phase {
	if p := a.effectivePhaseLocked(); p != a.phase {
		a.setPhaseLocked(p)
	}
	return a.phase
}

func (a *Arena) setPhaseLocked(to Phase) bool {
	from := a.phase
	if from == to {
		return true
	}
	if !CanTransition(from, to) {
		a.log.Printf("arena %s: illegal phase transition %s -> %s", a.cfg.Key, from, to)
		return false
	}
	a.phase = to
	for _, o := range a.deps.Observers {
		o.PhaseChanged(a.cfg.Key, from, to)
	}
	return true
}

// audienceLocked addresses every member and spectator.
func (a *Arena) audienceLocked() Audience {
	players := a.roster.Players()
	for p := range a.spectators {
		players = append(players, p)
	}
	return Audience{ArenaKey: a.cfg.Key, ArenaName: a.cfg.DisplayName, Players: players}
}

func (a *Arena) broadcastLocked(key string, subs map[string]string) {
	if subs == nil {
		subs = map[string]string{}
	}
	subs["arena"] = a.cfg.DisplayName
	a.deps.Messenger.Broadcast(a.audienceLocked(), key, subs)
}

func (a *Arena) presentLocked(to []PlayerID, kind PresentationKind, key string, subs map[string]string) {
	if len(to) == 0 {
		return
	}
	a.deps.Presenter.Present(to, Presentation{Kind: kind, Key: key, Subs: subs, ArenaKey: a.cfg.Key})
}

func (a *Arena) recordStat(p PlayerID, stat string, delta int) {
	if a.deps.Stats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	if err := a.deps.Stats.RecordResult(ctx, p, a.deps.Extension, stat, delta); err != nil {
		a.log.Printf("arena %s: record %s for %s: %v", a.cfg.Key, stat, p, err)
	}
}

func (a *Arena) runCommands(cmds []string, vars map[string]string) {
	for _, c := range cmds {
		a.deps.Commands.Run(c, vars)
	}
}

// TeamView is a read-only team summary.
type TeamView struct {
	ID         string     `json:"id"`
	Size       int        `json:"size"`
	Members    []PlayerID `json:"members"`
	Alive      []PlayerID `json:"alive"`
	Eliminated bool       `json:"eliminated"`
}

// View is a read-only snapshot of an arena for display collaborators.
type View struct {
	Key                string     `json:"key"`
	DisplayName        string     `json:"display_name"`
	Kind               Kind       `json:"kind"`
	Enabled            bool       `json:"enabled"`
	Phase              Phase      `json:"phase"`
	MatchID            string     `json:"match_id,omitempty"`
	Players            int        `json:"players"`
	Alive              int        `json:"alive"`
	Spectators         int        `json:"spectators"`
	MinPlayers         int        `json:"min_players"`
	Capacity           int        `json:"capacity"`
	Bet                string     `json:"bet"`
	Pool               string     `json:"pool"`
	CountdownRemaining int        `json:"countdown_remaining,omitempty"`
	TimeRemaining      int        `json:"time_remaining,omitempty"`
	HasSnapshot        bool       `json:"has_snapshot"`
	Teams              []TeamView `json:"teams"`
}

func (a *Arena) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := View{
		Key:         a.cfg.Key,
		DisplayName: a.cfg.DisplayName,
		Kind:        a.cfg.Kind,
		Enabled:     a.enabled,
		Phase:       a.refreshPhaseLocked(),
		MatchID:     a.matchID,
		Players:     a.roster.Participants(),
		Alive:       a.roster.AliveCount(),
		Spectators:  len(a.spectators),
		MinPlayers:  a.cfg.MinPlayers,
		Capacity:    a.cfg.Capacity(),
		Bet:         a.cfg.Bet.String(),
		Pool:        a.ledger.Pool().String(),
		HasSnapshot: a.snapshot != nil,
	}
	if a.countdown != nil {
		v.CountdownRemaining = a.countdown.remaining
	}
	if a.loop != nil {
		v.TimeRemaining = a.loop.remaining
	}
	for _, t := range a.roster.Teams() {
		v.Teams = append(v.Teams, TeamView{
			ID:         t.ID,
			Size:       t.Size,
			Members:    t.Members(),
			Alive:      t.Alive(),
			Eliminated: t.Eliminated(),
		})
	}
	return v
}

// Placements returns a copy of the elimination record, best placement first.
func (a *Arena) Placements() []Entrant {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entrant, len(a.placements))
	for i, e := range a.placements {
		out[i] = Entrant{Team: e.Team, Players: append([]PlayerID(nil), e.Players...)}
	}
	return out
}

// LedgerTotals exposes escrow accounting for audits.
func (a *Arena) LedgerTotals() (collected, refunded, paid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, r, p := a.ledger.Totals()
	return c.String(), r.String(), p.String()
}

// SetEnabled toggles the arena. Disabling a running match ends it as a draw.
func (a *Arena) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enabled == enabled {
		return
	}
	a.enabled = enabled
	if !enabled {
		a.broadcastLocked(MsgArenaDisabled, nil)
		a.abortLocked()
	}
	a.refreshPhaseLocked()
}

// abortLocked tears down a countdown or running match without a winner.
func (a *Arena) abortLocked() {
	a.cancelCountdownLocked(false)
	if a.phase == PhaseActive && !a.concluded {
		a.concludeLocked(nil, nil, true)
	}
	for _, p := range a.roster.Players() {
		a.releaseLocked(p, false)
	}
	a.roster.Reset()
}

func itoa(n int) string { return strconv.Itoa(n) }
