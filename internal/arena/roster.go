package arena

// Team is one side of a match. For FFA arenas a single synthetic team holds everyone.
type Team struct {
	ID    string
	Size  int
	Spawn *Location

	members    []PlayerID
	alive      map[PlayerID]struct{}
	eliminated bool
}

func newTeam(id string, size int, spawn *Location) *Team {
	return &Team{ID: id, Size: size, Spawn: spawn, alive: map[PlayerID]struct{}{}}
}

func (t *Team) Members() []PlayerID { return append([]PlayerID(nil), t.members...) }

// Alive returns alive members in join order.
func (t *Team) Alive() []PlayerID {
	out := make([]PlayerID, 0, len(t.alive))
	for _, p := range t.members {
		if _, ok := t.alive[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (t *Team) AliveCount() int  { return len(t.alive) }
func (t *Team) Full() bool       { return t.Size > 0 && len(t.members) >= t.Size }
func (t *Team) Eliminated() bool { return t.eliminated }

func (t *Team) remove(p PlayerID) bool {
	for i, m := range t.members {
		if m == p {
			t.members = append(t.members[:i], t.members[i+1:]...)
			delete(t.alive, p)
			return true
		}
	}
	return false
}

// Roster is the live membership bookkeeping of one arena. It is not safe for concurrent
// use; the owning Arena serializes access.
type Roster struct {
	kind     Kind
	teams    []*Team
	byPlayer map[PlayerID]*Team
}

func newRoster(cfg Config) *Roster {
	r := &Roster{kind: cfg.Kind, byPlayer: map[PlayerID]*Team{}}
	if cfg.Kind == KindFreeForAll {
		r.teams = []*Team{newTeam(ffaTeamID, cfg.MaxPlayers, cfg.Spawn)}
		return r
	}
	for _, ts := range cfg.Teams {
		r.teams = append(r.teams, newTeam(ts.ID, ts.Size, ts.Spawn))
	}
	return r
}

func (r *Roster) Teams() []*Team { return append([]*Team(nil), r.teams...) }

func (r *Roster) Team(id string) *Team {
	for _, t := range r.teams {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (r *Roster) TeamOf(p PlayerID) *Team { return r.byPlayer[p] }

func (r *Roster) Contains(p PlayerID) bool {
	_, ok := r.byPlayer[p]
	return ok
}

// Add puts p on team t as an alive member.
func (r *Roster) Add(p PlayerID, t *Team) {
	if _, ok := r.byPlayer[p]; ok {
		return
	}
	t.members = append(t.members, p)
	t.alive[p] = struct{}{}
	r.byPlayer[p] = t
}

// Remove drops p from membership and the alive set.
func (r *Roster) Remove(p PlayerID) *Team {
	t := r.byPlayer[p]
	if t == nil {
		return nil
	}
	t.remove(p)
	delete(r.byPlayer, p)
	return t
}

// Kill removes p from the alive set only. It returns false when p was not alive.
func (r *Roster) Kill(p PlayerID) bool {
	t := r.byPlayer[p]
	if t == nil {
		return false
	}
	if _, ok := t.alive[p]; !ok {
		return false
	}
	delete(t.alive, p)
	return true
}

func (r *Roster) IsAlive(p PlayerID) bool {
	t := r.byPlayer[p]
	if t == nil {
		return false
	}
	_, ok := t.alive[p]
	return ok
}

func (r *Roster) Participants() int { return len(r.byPlayer) }

// Players returns every member in team then join order.
func (r *Roster) Players() []PlayerID {
	out := make([]PlayerID, 0, len(r.byPlayer))
	for _, t := range r.teams {
		out = append(out, t.members...)
	}
	return out
}

// AliveAll returns a snapshot of every alive participant.
func (r *Roster) AliveAll() []PlayerID {
	var out []PlayerID
	for _, t := range r.teams {
		out = append(out, t.Alive()...)
	}
	return out
}

func (r *Roster) AliveCount() int {
	n := 0
	for _, t := range r.teams {
		n += len(t.alive)
	}
	return n
}

// Populated counts the teams with at least one member.
func (r *Roster) Populated() int {
	n := 0
	for _, t := range r.teams {
		if len(t.members) > 0 {
			n++
		}
	}
	return n
}

// OpenTeams returns the teams that still have a free slot.
func (r *Roster) OpenTeams() []*Team {
	var out []*Team
	for _, t := range r.teams {
		if !t.Full() {
			out = append(out, t)
		}
	}
	return out
}

// Standing returns the teams that are not eliminated and still have someone alive.
func (r *Roster) Standing() []*Team {
	var out []*Team
	for _, t := range r.teams {
		if !t.eliminated && len(t.alive) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// Revive marks every member alive and clears elimination flags at match start.
func (r *Roster) Revive() {
	for _, t := range r.teams {
		t.eliminated = false
		for _, p := range t.members {
			t.alive[p] = struct{}{}
		}
	}
}

func (r *Roster) Reset() {
	for _, t := range r.teams {
		t.members = nil
		t.alive = map[PlayerID]struct{}{}
		t.eliminated = false
	}
	r.byPlayer = map[PlayerID]*Team{}
}
