package arena

import "sync"

type ParticipationState int

const (
	StateNotInGame ParticipationState = iota
	StateWaiting
	StateInGame
	StateSpectating
)

func (s ParticipationState) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateInGame:
		return "IN_GAME"
	case StateSpectating:
		return "SPECTATING"
	default:
		return "NOT_IN_GAME"
	}
}

// PlayerSession is the volatile per-player state. It references at most one arena, by key.
type PlayerSession struct {
	Player    PlayerID
	ArenaKey  string
	State     ParticipationState
	Abilities map[string]int
}

// Sessions is the registry of player sessions, created lazily on first reference and
// forgotten on disconnect. Safe for concurrent use.
type Sessions struct {
	mu sync.Mutex
	m  map[PlayerID]*PlayerSession
}

func NewSessions() *Sessions {
	return &Sessions{m: map[PlayerID]*PlayerSession{}}
}

func (s *Sessions) getLocked(p PlayerID) *PlayerSession {
	ps := s.m[p]
	if ps == nil {
		ps = &PlayerSession{Player: p}
		s.m[p] = ps
	}
	return ps
}

// Get returns a copy of the player's session.
func (s *Sessions) Get(p PlayerID) PlayerSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := *s.getLocked(p)
	if ps.Abilities != nil {
		ab := make(map[string]int, len(ps.Abilities))
		for k, v := range ps.Abilities {
			ab[k] = v
		}
		ps.Abilities = ab
	}
	return ps
}

// ArenaOf returns the key of the arena the player is in, or "".
func (s *Sessions) ArenaOf(p PlayerID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ps := s.m[p]; ps != nil {
		return ps.ArenaKey
	}
	return ""
}

// claim binds p to arenaKey unless p is already bound elsewhere.
func (s *Sessions) claim(p PlayerID, arenaKey string, abilities map[string]int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.getLocked(p)
	if ps.ArenaKey != "" && ps.ArenaKey != arenaKey {
		return false
	}
	ps.ArenaKey = arenaKey
	ps.State = StateWaiting
	ps.Abilities = make(map[string]int, len(abilities))
	for k, v := range abilities {
		ps.Abilities[k] = v
	}
	return true
}

func (s *Sessions) setState(p PlayerID, st ParticipationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getLocked(p).State = st
}

// release unbinds p from its arena.
func (s *Sessions) release(p PlayerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ps := s.m[p]; ps != nil {
		ps.ArenaKey = ""
		ps.State = StateNotInGame
		ps.Abilities = nil
	}
}

func (s *Sessions) useAbility(p PlayerID, name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.m[p]
	if ps == nil || ps.Abilities[name] <= 0 {
		return 0, false
	}
	ps.Abilities[name]--
	return ps.Abilities[name], true
}

// Forget drops the session entirely (connection closed).
func (s *Sessions) Forget(p PlayerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, p)
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
