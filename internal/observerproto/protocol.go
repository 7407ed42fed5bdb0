package observerproto

import "github.com/HyperCubeMC/SpleefX-sub000/internal/arena"

// Version is the observer protocol version (separate from the player WS protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeState     = "STATE"
	TypeFeed      = "FEED"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to
// change the arena filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Arenas limits the stream to these keys; empty means every arena.
	Arenas []string `json:"arenas,omitempty"`

	// StateEveryTicks throttles STATE frames; 0 means the server default.
	StateEveryTicks int `json:"state_every_ticks,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	TickRateHz      int          `json:"tick_rate_hz"`
	Arenas          []arena.View `json:"arenas"`
}

// Server -> Client. Periodic full view of the subscribed arenas.
type StateMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Arenas          []arena.View `json:"arenas"`
}

// Server -> Client. One engine event, pushed as it happens.
type FeedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Kind    string `json:"kind"`
	Arena   string `json:"arena"`
	MatchID string `json:"match_id,omitempty"`

	From   string         `json:"from,omitempty"`
	To     string         `json:"to,omitempty"`
	Player arena.PlayerID `json:"player,omitempty"`
	Team   string         `json:"team,omitempty"`

	Settlement *arena.Settlement `json:"settlement,omitempty"`
}

// Feed kinds.
const (
	KindPhase          = "PHASE"
	KindEliminated     = "ELIMINATED"
	KindTeamEliminated = "TEAM_ELIMINATED"
	KindWon            = "WON"
	KindDraw           = "DRAW"
	KindSettled        = "SETTLED"
)
