package arena

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindTeams      Kind = "TEAMS"
	KindFreeForAll Kind = "FFA"
)

// DefaultSpectateMinAlive is the number of alive participants (counted before the
// elimination) at or above which an eliminated player stays on as a spectator. Below it the
// match is about to end anyway, so the player is removed outright.
const DefaultSpectateMinAlive = 3

const (
	DefaultCountdownSeconds  = 15
	DefaultGameTimeSeconds   = 300
	DefaultPollIntervalTicks = 5
)

var DefaultCountdownMilestones = []int{60, 30, 15, 10, 5, 4, 3, 2, 1}

// Config is the static, already-validated configuration of one arena.
type Config struct {
	Key         string
	DisplayName string
	Kind        Kind
	Enabled     bool

	MinPlayers int
	// MaxPlayers bounds FFA arenas; team arenas are bounded by the sum of team sizes.
	MaxPlayers int
	Teams      []TeamSpec

	Lobby  *Location
	Spawn  *Location
	Anchor Location

	Bet              decimal.Decimal
	DeathY           float64
	GameTimeSeconds  int
	CountdownSeconds int
	// CountdownMilestones are the remaining-second values that get a broadcast.
	CountdownMilestones []int
	PollIntervalTicks   int

	RequireEmptyInventory     bool
	RegenerateBeforeCountdown bool
	SpectateMinAlive          int

	Rewards   []RewardTier
	Commands  CommandHooks
	Abilities map[string]int
}

type TeamSpec struct {
	ID    string
	Size  int
	Spawn *Location
}

type RewardTier struct {
	Place    int
	Money    decimal.Decimal
	Commands []string
}

type CommandHooks struct {
	OnFill  []string
	OnStart []string
}

const ffaTeamID = "ffa"

// Normalize fills defaults in place.
func (c *Config) Normalize() {
	c.Key = strings.TrimSpace(c.Key)
	if c.DisplayName == "" {
		c.DisplayName = c.Key
	}
	if c.Kind == "" {
		c.Kind = KindFreeForAll
	}
	if c.MinPlayers < 2 {
		c.MinPlayers = 2
	}
	if c.CountdownSeconds <= 0 {
		c.CountdownSeconds = DefaultCountdownSeconds
	}
	if c.GameTimeSeconds <= 0 {
		c.GameTimeSeconds = DefaultGameTimeSeconds
	}
	if len(c.CountdownMilestones) == 0 {
		c.CountdownMilestones = append([]int(nil), DefaultCountdownMilestones...)
	}
	if c.PollIntervalTicks <= 0 {
		c.PollIntervalTicks = DefaultPollIntervalTicks
	}
	if c.SpectateMinAlive <= 0 {
		c.SpectateMinAlive = DefaultSpectateMinAlive
	}
	if c.Bet.IsNegative() {
		c.Bet = decimal.Zero
	}
	sort.SliceStable(c.Rewards, func(i, j int) bool { return c.Rewards[i].Place < c.Rewards[j].Place })
}

// Capacity is the maximum number of participants.
func (c Config) Capacity() int {
	if c.Kind == KindTeams {
		n := 0
		for _, t := range c.Teams {
			n += t.Size
		}
		return n
	}
	return c.MaxPlayers
}

// SetupComplete reports whether the arena has everything it needs to host a match.
// Incomplete arenas sit in NEEDS_SETUP instead of failing.
func (c Config) SetupComplete() bool {
	if c.Lobby == nil {
		return false
	}
	switch c.Kind {
	case KindFreeForAll:
		return c.Spawn != nil && c.MaxPlayers >= 2
	case KindTeams:
		if len(c.Teams) < 2 {
			return false
		}
		for _, t := range c.Teams {
			if t.Size < 1 || t.Spawn == nil {
				return false
			}
		}
		return true
	}
	return false
}

func (c Config) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("arena: empty key")
	}
	if _, ok := kinds[c.Kind]; !ok {
		return fmt.Errorf("arena %s: %w %q", c.Key, ErrUnknownKind, c.Kind)
	}
	seen := map[string]bool{}
	for _, t := range c.Teams {
		if t.ID == "" {
			return fmt.Errorf("arena %s: team with empty id", c.Key)
		}
		if seen[t.ID] {
			return fmt.Errorf("arena %s: duplicate team %s", c.Key, t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}
