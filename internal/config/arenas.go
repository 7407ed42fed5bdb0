package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/sim/region"
)

type ArenasFile struct {
	Arenas []ArenaSpec `yaml:"arenas"`
}

type ArenaSpec struct {
	Key         string `yaml:"key"`
	DisplayName string `yaml:"display_name"`
	Kind        string `yaml:"kind"`
	Enabled     *bool  `yaml:"enabled"`

	MinPlayers int        `yaml:"min_players"`
	MaxPlayers int        `yaml:"max_players"`
	Teams      []TeamSpec `yaml:"teams"`

	Bet                 decimal.Decimal `yaml:"bet"`
	DeathY              float64         `yaml:"death_y"`
	GameTimeSeconds     int             `yaml:"game_time_seconds"`
	CountdownSeconds    int             `yaml:"countdown_seconds"`
	CountdownMilestones []int           `yaml:"countdown_milestones"`
	PollIntervalTicks   int             `yaml:"poll_interval_ticks"`

	RequireEmptyInventory     bool `yaml:"require_empty_inventory"`
	RegenerateBeforeCountdown bool `yaml:"regenerate_before_countdown"`
	SpectateMinAlive          int  `yaml:"spectate_min_alive"`

	Lobby  *arena.Location `yaml:"lobby"`
	Spawn  *arena.Location `yaml:"spawn"`
	Anchor arena.Location  `yaml:"anchor"`

	Rewards   []RewardSpec   `yaml:"rewards"`
	Commands  CommandSpec    `yaml:"commands"`
	Abilities map[string]int `yaml:"abilities"`

	Region *RegionSpec `yaml:"region"`
}

type TeamSpec struct {
	ID    string          `yaml:"id"`
	Size  int             `yaml:"size"`
	Spawn *arena.Location `yaml:"spawn"`
}

type RewardSpec struct {
	Place    int             `yaml:"place"`
	Money    decimal.Decimal `yaml:"money"`
	Commands []string        `yaml:"commands"`
}

type CommandSpec struct {
	OnFill  []string `yaml:"on_fill"`
	OnStart []string `yaml:"on_start"`
}

// RegionSpec is the block box regenerated between matches.
type RegionSpec struct {
	Min    [3]int      `yaml:"min"`
	Max    [3]int      `yaml:"max"`
	Floors []FloorSpec `yaml:"floors"`
}

type FloorSpec struct {
	Y     int    `yaml:"y"`
	Block uint16 `yaml:"block"`
}

// Load reads and validates arenas.yaml. An empty path yields no arenas.
func Load(path string) (ArenasFile, error) {
	var f ArenasFile
	if strings.TrimSpace(path) == "" {
		return f, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	return ParseArenas(raw)
}

func ParseArenas(raw []byte) (ArenasFile, error) {
	var f ArenasFile
	if err := validateYAML(raw); err != nil {
		return f, fmt.Errorf("arenas.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("arenas.yaml: %w", err)
	}
	seen := map[string]bool{}
	for _, a := range f.Arenas {
		if seen[a.Key] {
			return f, fmt.Errorf("arenas.yaml: duplicate arena %q", a.Key)
		}
		seen[a.Key] = true
		cfg := a.ToArena()
		if err := cfg.Validate(); err != nil {
			return f, fmt.Errorf("arenas.yaml: %w", err)
		}
	}
	return f, nil
}

// ToArena converts the file form into the engine's config, defaults applied.
func (s ArenaSpec) ToArena() arena.Config {
	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}
	cfg := arena.Config{
		Key:                       s.Key,
		DisplayName:               s.DisplayName,
		Kind:                      arena.Kind(strings.ToUpper(s.Kind)),
		Enabled:                   enabled,
		MinPlayers:                s.MinPlayers,
		MaxPlayers:                s.MaxPlayers,
		Lobby:                     s.Lobby,
		Spawn:                     s.Spawn,
		Anchor:                    s.Anchor,
		Bet:                       s.Bet,
		DeathY:                    s.DeathY,
		GameTimeSeconds:           s.GameTimeSeconds,
		CountdownSeconds:          s.CountdownSeconds,
		CountdownMilestones:       s.CountdownMilestones,
		PollIntervalTicks:         s.PollIntervalTicks,
		RequireEmptyInventory:     s.RequireEmptyInventory,
		RegenerateBeforeCountdown: s.RegenerateBeforeCountdown,
		SpectateMinAlive:          s.SpectateMinAlive,
		Commands:                  arena.CommandHooks{OnFill: s.Commands.OnFill, OnStart: s.Commands.OnStart},
		Abilities:                 s.Abilities,
	}
	for _, t := range s.Teams {
		cfg.Teams = append(cfg.Teams, arena.TeamSpec{ID: t.ID, Size: t.Size, Spawn: t.Spawn})
	}
	for _, r := range s.Rewards {
		cfg.Rewards = append(cfg.Rewards, arena.RewardTier{Place: r.Place, Money: r.Money, Commands: r.Commands})
	}
	cfg.Normalize()
	return cfg
}

// BuildGrid creates the arena's block region with its floors laid down.
func (r RegionSpec) BuildGrid() (*region.Grid, error) {
	g, err := region.NewGrid(
		region.Pos{X: r.Min[0], Y: r.Min[1], Z: r.Min[2]},
		region.Pos{X: r.Max[0], Y: r.Max[1], Z: r.Max[2]},
	)
	if err != nil {
		return nil, err
	}
	for _, f := range r.Floors {
		id := f.Block
		if id == 0 {
			id = region.Snow
		}
		g.FillLayer(f.Y, id)
	}
	return g, nil
}
