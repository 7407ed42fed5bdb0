package arena

import (
	"context"

	"github.com/shopspring/decimal"
)

type PlayerID string

type Location struct {
	World string  `json:"world,omitempty" yaml:"world,omitempty"`
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Z     float64 `json:"z" yaml:"z"`
}

// PlayerContext is what a player carried before joining; it is handed back on leave.
type PlayerContext struct {
	Location  Location
	Inventory map[string]int
	GameMode  string
}

// SnapshotRef identifies a stored copy of an arena region.
type SnapshotRef struct {
	ArenaKey string `json:"arena_key"`
	Path     string `json:"path"`
	Tick     uint64 `json:"tick"`
}

// WorldRegenerator captures and restores arena regions. Restore runs asynchronously and
// reports completion on the returned channel.
type WorldRegenerator interface {
	Capture(ctx context.Context, arenaKey string) (SnapshotRef, error)
	Restore(ctx context.Context, ref SnapshotRef, anchor Location) <-chan error
}

// StatisticsStore persists per-player stats and the bet currency. RecordResult and Credit
// are called under arena locks, often from the tick goroutine, and must not wait on storage.
type StatisticsStore interface {
	RecordResult(ctx context.Context, player PlayerID, extension, stat string, delta int) error
	BetBalance(ctx context.Context, player PlayerID) (decimal.Decimal, error)
	Debit(ctx context.Context, player PlayerID, amount decimal.Decimal) error
	Credit(ctx context.Context, player PlayerID, amount decimal.Decimal) error
}

// Audience is a read-only view of who a broadcast is addressed to.
type Audience struct {
	ArenaKey  string
	ArenaName string
	Players   []PlayerID
}

// Messenger delivers keyed, localizable text.
type Messenger interface {
	Broadcast(to Audience, key string, subs map[string]string)
	Tell(player PlayerID, key string, subs map[string]string)
}

type PresentationKind string

const (
	PresentTitle      PresentationKind = "TITLE"
	PresentActionBar  PresentationKind = "ACTIONBAR"
	PresentScoreboard PresentationKind = "SCOREBOARD"
)

type Presentation struct {
	Kind     PresentationKind  `json:"kind"`
	Key      string            `json:"key"`
	Subs     map[string]string `json:"subs,omitempty"`
	ArenaKey string            `json:"arena"`
}

// Presenter shows titles/action bars/scoreboards. Fire-and-forget.
type Presenter interface {
	Present(to []PlayerID, p Presentation)
}

// CommandRunner executes configured command strings after placeholder substitution.
type CommandRunner interface {
	Run(command string, vars map[string]string)
}

// PlayerBridge is the host-side view of a connected player.
type PlayerBridge interface {
	Position(p PlayerID) (Location, bool)
	InventoryEmpty(p PlayerID) bool
	SaveContext(p PlayerID) PlayerContext
	RestoreContext(p PlayerID, c PlayerContext)
	Teleport(p PlayerID, to Location)
	Spectate(p PlayerID, target PlayerID)
}

// Observer receives engine events in the order they are applied.
// Calls are made while the arena is locked; implementations must not call back into it.
type Observer interface {
	PhaseChanged(arenaKey string, from, to Phase)
	Eliminated(arenaKey, matchID string, p PlayerID, team string)
	TeamEliminated(arenaKey, matchID, team string)
	Won(arenaKey, matchID string, p PlayerID, team string)
	Draw(arenaKey, matchID string)
	Settled(arenaKey string, s Settlement)
}

// BaseObserver implements Observer with no-ops, for embedding.
type BaseObserver struct{}

func (BaseObserver) PhaseChanged(string, Phase, Phase)           {}
func (BaseObserver) Eliminated(string, string, PlayerID, string) {}
func (BaseObserver) TeamEliminated(string, string, string)       {}
func (BaseObserver) Won(string, string, PlayerID, string)        {}
func (BaseObserver) Draw(string, string)                         {}
func (BaseObserver) Settled(string, Settlement)                  {}

type nopMessenger struct{}

func (nopMessenger) Broadcast(Audience, string, map[string]string) {}
func (nopMessenger) Tell(PlayerID, string, map[string]string)      {}

type nopPresenter struct{}

func (nopPresenter) Present([]PlayerID, Presentation) {}

type nopCommands struct{}

func (nopCommands) Run(string, map[string]string) {}

type nopPlayers struct{}

func (nopPlayers) Position(PlayerID) (Location, bool)     { return Location{}, false }
func (nopPlayers) InventoryEmpty(PlayerID) bool           { return true }
func (nopPlayers) SaveContext(PlayerID) PlayerContext     { return PlayerContext{} }
func (nopPlayers) RestoreContext(PlayerID, PlayerContext) {}
func (nopPlayers) Teleport(PlayerID, Location)            {}
func (nopPlayers) Spectate(PlayerID, PlayerID)            {}
