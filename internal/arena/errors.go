package arena

import "errors"

// Join/quit rejections. A rejected call leaves the arena untouched.
var (
	ErrAlreadyInArena    = errors.New("player already in an arena")
	ErrArenaDisabled     = errors.New("arena disabled")
	ErrInventoryNotEmpty = errors.New("inventory must be empty to join")
	ErrArenaFull         = errors.New("arena full")
	ErrInsufficientFunds = errors.New("insufficient funds for bet")
	ErrNotJoinable       = errors.New("arena not accepting players")
	ErrInvalidTeam       = errors.New("invalid team")
	ErrTeamFull          = errors.New("team full")
	ErrNotInArena        = errors.New("player not in arena")
	ErrNotActive         = errors.New("match not active")
	ErrAbilityExhausted  = errors.New("ability exhausted")
)

// Registry errors.
var (
	ErrArenaNotFound = errors.New("arena not found")
	ErrArenaExists   = errors.New("arena already exists")
	ErrUnknownKind   = errors.New("unknown arena kind")
)

// Collaborator failures.
var (
	ErrRegenerationUnavailable = errors.New("regeneration unavailable: no snapshot stored")
	ErrRegenerationBlocked     = errors.New("regeneration blocked while a match is running")
	ErrStatisticsUnavailable   = errors.New("statistics store unavailable")
)
