package protocol

import (
	"errors"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Arena routing.
	ErrArenaNotFound = "E_ARENA_NOT_FOUND"
	ErrArenaExists   = "E_ARENA_EXISTS"

	// Admission.
	ErrAlreadyInArena    = "E_ALREADY_IN_ARENA"
	ErrArenaDisabled     = "E_ARENA_DISABLED"
	ErrInventoryNotEmpty = "E_INVENTORY_NOT_EMPTY"
	ErrArenaFull         = "E_ARENA_FULL"
	ErrInsufficientFunds = "E_INSUFFICIENT_FUNDS"
	ErrNotJoinable       = "E_NOT_JOINABLE"
	ErrInvalidTeam       = "E_INVALID_TEAM"
	ErrTeamFull          = "E_TEAM_FULL"
	ErrNotInArena        = "E_NOT_IN_ARENA"

	// Rule/action layer.
	ErrBadRequest       = "E_BAD_REQUEST"
	ErrNotActive        = "E_NOT_ACTIVE"
	ErrAbilityExhausted = "E_ABILITY_EXHAUSTED"
	ErrRateLimit        = "E_RATE_LIMIT"

	// Collaborators.
	ErrRegenUnavailable = "E_REGEN_UNAVAILABLE"
	ErrRegenBlocked     = "E_REGEN_BLOCKED"
	ErrStatsUnavailable = "E_STATS_UNAVAILABLE"
	ErrInternal         = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrArenaNotFound:     {},
	ErrArenaExists:       {},
	ErrAlreadyInArena:    {},
	ErrArenaDisabled:     {},
	ErrInventoryNotEmpty: {},
	ErrArenaFull:         {},
	ErrInsufficientFunds: {},
	ErrNotJoinable:       {},
	ErrInvalidTeam:       {},
	ErrTeamFull:          {},
	ErrNotInArena:        {},
	ErrBadRequest:        {},
	ErrNotActive:         {},
	ErrAbilityExhausted:  {},
	ErrRateLimit:         {},
	ErrRegenUnavailable:  {},
	ErrRegenBlocked:      {},
	ErrStatsUnavailable:  {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Sentinels are checked in order; wrapped errors match their innermost known cause.
var codeTable = []struct {
	err  error
	code string
}{
	{arena.ErrArenaNotFound, ErrArenaNotFound},
	{arena.ErrArenaExists, ErrArenaExists},
	{arena.ErrAlreadyInArena, ErrAlreadyInArena},
	{arena.ErrArenaDisabled, ErrArenaDisabled},
	{arena.ErrInventoryNotEmpty, ErrInventoryNotEmpty},
	{arena.ErrArenaFull, ErrArenaFull},
	{arena.ErrInsufficientFunds, ErrInsufficientFunds},
	{arena.ErrNotJoinable, ErrNotJoinable},
	{arena.ErrInvalidTeam, ErrInvalidTeam},
	{arena.ErrTeamFull, ErrTeamFull},
	{arena.ErrNotInArena, ErrNotInArena},
	{arena.ErrNotActive, ErrNotActive},
	{arena.ErrAbilityExhausted, ErrAbilityExhausted},
	{arena.ErrUnknownKind, ErrBadRequest},
	{arena.ErrRegenerationUnavailable, ErrRegenUnavailable},
	{arena.ErrRegenerationBlocked, ErrRegenBlocked},
	{arena.ErrStatisticsUnavailable, ErrStatsUnavailable},
}

// CodeFor maps an engine error to its wire code. nil maps to "".
func CodeFor(err error) string {
	if err == nil {
		return ""
	}
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return ErrInternal
}
