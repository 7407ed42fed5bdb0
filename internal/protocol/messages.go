package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	PlayerName      string            `json:"player_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

type HelloAuth struct {
	ResumeToken string `json:"resume_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	PlayerID        string     `json:"player_id"`
	ResumeToken     string     `json:"resume_token"`
	TickRateHz      int        `json:"tick_rate_hz"`
	Arenas          []ArenaRef `json:"arenas"`
}

// ArenaRef is the client-facing summary of one arena.
type ArenaRef struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Phase    string `json:"phase"`
	Players  int    `json:"players"`
	Capacity int    `json:"capacity"`
	Bet      string `json:"bet,omitempty"`
}

// Actions carried by ACT.
const (
	ActJoin    = "JOIN"
	ActQuit    = "QUIT"
	ActMove    = "MOVE"
	ActBreak   = "BREAK"
	ActList    = "LIST"
	ActAbility = "ABILITY"
)

// ACT (client -> server)
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	Action          string `json:"action"`

	Arena   string      `json:"arena,omitempty"`
	Team    string      `json:"team,omitempty"`
	Pos     *[3]float64 `json:"pos,omitempty"`
	Block   *[3]int     `json:"block,omitempty"`
	Ability string      `json:"ability,omitempty"`
}

// RESULT (server -> client), one per ACT.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`

	Arenas    []ArenaRef `json:"arenas,omitempty"`
	Remaining *int       `json:"remaining,omitempty"`
}

// EVENT (server -> client): a rendered broadcast, tell or presentation.
type EventMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Tick            uint64            `json:"tick"`
	Arena           string            `json:"arena,omitempty"`
	Key             string            `json:"key"`
	Text            string            `json:"text"`
	Subs            map[string]string `json:"subs,omitempty"`
	// Display is empty for chat and TITLE/ACTIONBAR/SCOREBOARD for presentations.
	Display string `json:"display,omitempty"`
}
