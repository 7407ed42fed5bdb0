package arena

import (
	"context"
	"errors"
	"fmt"
)

// Join admits p into the arena, onto teamID when non-empty or a random open team.
// Preconditions are checked in a fixed order and a rejected call has no side effects.
func (a *Arena) Join(ctx context.Context, p PlayerID, teamID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.removed {
		return ErrArenaNotFound
	}
	if owner := a.deps.Sessions.ArenaOf(p); owner != "" || a.roster.Contains(p) {
		return ErrAlreadyInArena
	}
	phase := a.refreshPhaseLocked()
	if phase == PhaseDisabled {
		return ErrArenaDisabled
	}
	if a.cfg.RequireEmptyInventory && !a.deps.Players.InventoryEmpty(p) {
		return ErrInventoryNotEmpty
	}
	if a.roster.Participants() >= a.cfg.Capacity() {
		return ErrArenaFull
	}
	bet := a.cfg.Bet
	if bet.IsPositive() {
		if a.deps.Stats == nil {
			return ErrStatisticsUnavailable
		}
		bal, err := a.deps.Stats.BetBalance(ctx, p)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStatisticsUnavailable, err)
		}
		if bal.LessThan(bet) {
			return ErrInsufficientFunds
		}
	}
	if !phase.Joinable() {
		return ErrNotJoinable
	}

	team, err := a.resolveTeamLocked(teamID)
	if err != nil {
		return err
	}

	if bet.IsPositive() {
		if err := a.deps.Stats.Debit(ctx, p, bet); err != nil {
			return fmt.Errorf("%w: %v", ErrStatisticsUnavailable, err)
		}
	}
	if !a.deps.Sessions.claim(p, a.cfg.Key, a.cfg.Abilities) {
		if bet.IsPositive() {
			a.creditLocked(p, bet)
		}
		return ErrAlreadyInArena
	}

	a.roster.Add(p, team)
	a.saved[p] = a.deps.Players.SaveContext(p)
	if a.cfg.Lobby != nil {
		a.deps.Players.Teleport(p, *a.cfg.Lobby)
	}
	count := a.roster.Participants()
	a.broadcastLocked(MsgPlayerJoined, map[string]string{
		"player":   string(p),
		"team":     team.ID,
		"players":  itoa(count),
		"capacity": itoa(a.cfg.Capacity()),
	})
	if bet.IsPositive() {
		a.ledger.Hold(p, bet)
		a.deps.Messenger.Tell(p, MsgBetTaken, map[string]string{"amount": bet.String(), "arena": a.cfg.DisplayName})
	}
	a.presentLocked([]PlayerID{p}, PresentScoreboard, MsgPlayerJoined, map[string]string{"players": itoa(count)})

	if count >= a.cfg.Capacity() {
		a.runCommands(a.cfg.Commands.OnFill, map[string]string{"arena": a.cfg.Key, "players": itoa(count)})
	}
	if a.readyLocked() {
		a.startCountdownLocked()
	}
	return nil
}

// resolveTeamLocked picks the requested team or a uniformly random open one.
func (a *Arena) resolveTeamLocked(teamID string) (*Team, error) {
	if a.cfg.Kind == KindFreeForAll {
		t := a.roster.Team(ffaTeamID)
		if t.Full() {
			return nil, ErrArenaFull
		}
		return t, nil
	}
	if teamID != "" {
		t := a.roster.Team(teamID)
		if t == nil {
			return nil, ErrInvalidTeam
		}
		if t.Full() {
			return nil, ErrTeamFull
		}
		return t, nil
	}
	return a.selectTeamLocked()
}

func (a *Arena) selectTeamLocked() (*Team, error) {
	open := a.roster.OpenTeams()
	if len(open) == 0 {
		return nil, ErrArenaFull
	}
	return open[a.rng.Intn(len(open))], nil
}

// Quit removes p from the arena. A player who walks out of a running match forfeits and
// stays on as a spectator unless the connection dropped; everyone else leaves for good.
func (a *Arena) Quit(ctx context.Context, p PlayerID, disconnect bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.spectators[p]; ok {
		a.releaseLocked(p, disconnect)
		a.broadcastLocked(MsgPlayerQuit, map[string]string{"player": string(p)})
		return nil
	}
	if !a.roster.Contains(p) {
		return ErrNotInArena
	}
	a.quitLocked(p, disconnect, false)
	return nil
}

// quitLocked is the single removal path. hard skips the spectate-on-quit rule.
func (a *Arena) quitLocked(p PlayerID, disconnect, hard bool) {
	team := a.roster.TeamOf(p)
	wasAlive := a.roster.IsAlive(p)
	active := a.phase == PhaseActive && !a.concluded

	if active && wasAlive {
		a.recordEliminationLocked(p, team)
	}
	a.roster.Remove(p)

	if active && wasAlive && !disconnect && !hard {
		if target, ok := a.spectateTargetLocked(p); ok {
			a.spectators[p] = target
			a.deps.Sessions.setState(p, StateSpectating)
			a.deps.Players.Spectate(p, target)
			a.broadcastLocked(MsgPlayerQuit, map[string]string{"player": string(p), "team": team.ID})
			a.checkWinLocked()
			return
		}
	}

	a.releaseLocked(p, disconnect)
	remaining := a.roster.Participants()
	a.broadcastLocked(MsgPlayerQuit, map[string]string{
		"player":  string(p),
		"team":    team.ID,
		"players": itoa(remaining),
	})

	switch a.phase {
	case PhaseCountdown:
		if remaining < a.cfg.MinPlayers || !a.sidesReadyLocked() {
			a.cancelCountdownLocked(true)
		}
	case PhaseActive:
		a.checkWinLocked()
	}
}

// releaseLocked hands a player back to the host: refund what is still refundable,
// restore the saved context and unbind the session. Roster membership is the caller's job.
func (a *Arena) releaseLocked(p PlayerID, disconnect bool) {
	if amount, ok := a.ledger.Refund(p); ok {
		a.creditLocked(p, amount)
		if !disconnect {
			a.deps.Messenger.Tell(p, MsgBetRefunded, map[string]string{"amount": amount.String(), "arena": a.cfg.DisplayName})
		}
	}
	if c, ok := a.saved[p]; ok {
		a.deps.Players.RestoreContext(p, c)
		delete(a.saved, p)
	}
	delete(a.spectators, p)
	if disconnect {
		a.deps.Sessions.Forget(p)
	} else {
		a.deps.Sessions.release(p)
	}
}

// Eliminate knocks p out of the running match.
func (a *Arena) Eliminate(ctx context.Context, p PlayerID, disconnect bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseActive || a.concluded {
		return ErrNotActive
	}
	if !a.roster.IsAlive(p) {
		return ErrNotInArena
	}
	a.eliminateLocked(p, disconnect)
	a.checkWinLocked()
	return nil
}

func (a *Arena) eliminateLocked(p PlayerID, disconnect bool) {
	team := a.roster.TeamOf(p)
	if team == nil || !a.roster.IsAlive(p) {
		return
	}
	aliveBefore := a.roster.AliveCount()
	a.recordEliminationLocked(p, team)

	if aliveBefore >= a.cfg.SpectateMinAlive && !disconnect {
		if target, ok := a.spectateTargetLocked(p); ok {
			a.deps.Sessions.setState(p, StateSpectating)
			a.deps.Players.Spectate(p, target)
			return
		}
	}
	a.quitLocked(p, disconnect, true)
}

// recordEliminationLocked takes p out of the alive set and books the loss.
func (a *Arena) recordEliminationLocked(p PlayerID, team *Team) {
	if !a.roster.Kill(p) {
		return
	}
	a.ledger.Forfeit(p)
	a.recordStat(p, StatLosses, 1)
	if a.cfg.Kind == KindFreeForAll {
		a.placements = append([]Entrant{{Team: team.ID, Players: []PlayerID{p}}}, a.placements...)
	}
	for _, o := range a.deps.Observers {
		o.Eliminated(a.cfg.Key, a.matchID, p, team.ID)
	}
	a.broadcastLocked(MsgPlayerEliminated, map[string]string{
		"player": string(p),
		"team":   team.ID,
		"alive":  itoa(a.roster.AliveCount()),
	})
	a.presentLocked([]PlayerID{p}, PresentTitle, MsgPlayerEliminated, nil)

	if a.cfg.Kind == KindTeams && team.AliveCount() == 0 && !team.eliminated {
		team.eliminated = true
		a.placements = append([]Entrant{{Team: team.ID, Players: team.Members()}}, a.placements...)
		for _, o := range a.deps.Observers {
			o.TeamEliminated(a.cfg.Key, a.matchID, team.ID)
		}
		a.broadcastLocked(MsgTeamEliminated, map[string]string{"team": team.ID})
	}
}

// spectateTargetLocked picks the first alive participant other than p.
func (a *Arena) spectateTargetLocked(p PlayerID) (PlayerID, bool) {
	for _, q := range a.roster.AliveAll() {
		if q != p {
			return q, true
		}
	}
	return "", false
}

// checkWinLocked ends the match once a single participant (FFA) or team stands.
func (a *Arena) checkWinLocked() {
	if a.phase != PhaseActive || a.concluded || a.holdWin {
		return
	}
	if a.cfg.Kind == KindFreeForAll {
		alive := a.roster.AliveAll()
		switch len(alive) {
		case 0:
			a.concludeLocked(nil, nil, true)
		case 1:
			a.concludeLocked(alive, a.roster.TeamOf(alive[0]), false)
		}
		return
	}
	standing := a.roster.Standing()
	switch len(standing) {
	case 0:
		a.concludeLocked(nil, nil, true)
	case 1:
		a.concludeLocked(standing[0].Alive(), standing[0], false)
	}
}

// DeclareWinner ends the match with p's team (or p alone in FFA) as the winner.
func (a *Arena) DeclareWinner(ctx context.Context, p PlayerID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseActive || a.concluded {
		return ErrNotActive
	}
	team := a.roster.TeamOf(p)
	if team == nil {
		return ErrNotInArena
	}
	winners := []PlayerID{p}
	if a.cfg.Kind == KindTeams {
		winners = team.Alive()
		if len(winners) == 0 {
			winners = []PlayerID{p}
		}
	}
	a.concludeLocked(winners, team, false)
	return nil
}

// DeclareDraw ends the match without a winner.
func (a *Arena) DeclareDraw(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseActive || a.concluded {
		return ErrNotActive
	}
	a.concludeLocked(nil, nil, true)
	return nil
}

// concludeLocked runs exactly once per match: placements, settlement, then regeneration.
func (a *Arena) concludeLocked(winners []PlayerID, team *Team, draw bool) {
	if a.concluded {
		return
	}
	a.concluded = true
	a.stopGameLoopLocked()

	if draw {
		for _, o := range a.deps.Observers {
			o.Draw(a.cfg.Key, a.matchID)
		}
		a.broadcastLocked(MsgDraw, nil)
		a.presentLocked(a.audienceLocked().Players, PresentTitle, MsgDraw, nil)
	} else {
		teamID := ""
		if team != nil {
			teamID = team.ID
		}
		a.placements = append([]Entrant{{Team: teamID, Players: a.winningSideLocked(winners, team)}}, a.placements...)
		for _, w := range winners {
			a.recordStat(w, StatWins, 1)
			for _, o := range a.deps.Observers {
				o.Won(a.cfg.Key, a.matchID, w, teamID)
			}
			a.broadcastLocked(MsgPlayerWon, map[string]string{"player": string(w), "team": teamID})
		}
		a.presentLocked(winners, PresentTitle, MsgPlayerWon, nil)
	}

	a.settleLocked(winners, team, draw)

	if err := a.regenerateLocked(PhaseWaiting); err != nil {
		if !errors.Is(err, ErrRegenerationUnavailable) {
			a.log.Printf("arena %s: regenerate after match: %v", a.cfg.Key, err)
		}
		a.setPhaseLocked(PhaseWaiting)
		a.refreshPhaseLocked()
	}
}

// winningSideLocked is everyone credited with the win: the whole team in a Teams arena,
// eliminated members included, otherwise the winners themselves.
func (a *Arena) winningSideLocked(winners []PlayerID, team *Team) []PlayerID {
	if a.cfg.Kind == KindTeams && team != nil {
		if members := team.Members(); len(members) > 0 {
			return members
		}
	}
	return append([]PlayerID(nil), winners...)
}

// UseAbility spends one charge of a per-match ability.
func (a *Arena) UseAbility(p PlayerID, name string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseActive || a.concluded {
		return 0, ErrNotActive
	}
	if !a.roster.IsAlive(p) {
		return 0, ErrNotInArena
	}
	left, ok := a.deps.Sessions.useAbility(p, name)
	if !ok {
		return 0, ErrAbilityExhausted
	}
	return left, nil
}
