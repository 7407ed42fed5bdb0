package arena

import (
	"github.com/google/uuid"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/sim/ticker"
)

var timeMilestones = []int{300, 120, 60, 30, 10, 5, 4, 3, 2, 1}

// gameLoop owns the two timers of a running match. Both are cancelled together.
type gameLoop struct {
	timer     *ticker.Task
	poll      *ticker.Task
	remaining int
}

func (a *Arena) startGameLocked() {
	if !a.setPhaseLocked(PhaseActive) {
		return
	}
	a.matchID = uuid.NewString()
	a.concluded = false
	a.placements = nil
	a.roster.Revive()

	for _, t := range a.roster.Teams() {
		spawn := t.Spawn
		if spawn == nil {
			spawn = a.cfg.Spawn
		}
		for _, p := range t.Members() {
			a.deps.Sessions.setState(p, StateInGame)
			if spawn != nil {
				a.deps.Players.Teleport(p, *spawn)
			}
			a.recordStat(p, StatGamesPlayed, 1)
		}
	}

	players := a.roster.Participants()
	a.broadcastLocked(MsgGameStarted, map[string]string{
		"players": itoa(players),
		"seconds": itoa(a.cfg.GameTimeSeconds),
	})
	a.presentLocked(a.roster.Players(), PresentTitle, MsgGameStarted, nil)
	a.runCommands(a.cfg.Commands.OnStart, map[string]string{"arena": a.cfg.Key, "players": itoa(players)})

	loop := &gameLoop{remaining: a.cfg.GameTimeSeconds}
	a.loop = loop
	sched := a.deps.Scheduler
	loop.timer = sched.Every(sched.TickRate(), func() { a.timeLimitTick(loop) })
	loop.poll = sched.Every(a.cfg.PollIntervalTicks, func() { a.pollTick(loop) })

	a.log.Printf("arena %s: match %s started with %d players", a.cfg.Key, a.matchID, players)
	a.checkWinLocked()
}

func (a *Arena) timeLimitTick(loop *gameLoop) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loop != loop || a.phase != PhaseActive || a.concluded {
		return
	}
	loop.remaining--
	if loop.remaining <= 0 {
		a.concludeLocked(nil, nil, true)
		return
	}
	if isMilestone(timeMilestones, loop.remaining) {
		a.broadcastLocked(MsgTimeRemaining, map[string]string{"seconds": itoa(loop.remaining)})
	}
}

// pollTick eliminates everyone at or below the death threshold, then re-evaluates the win
// condition. The alive set is copied first since eliminations mutate it.
func (a *Arena) pollTick(loop *gameLoop) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loop != loop || a.phase != PhaseActive || a.concluded {
		return
	}
	a.holdWin = true
	for _, p := range a.roster.AliveAll() {
		pos, ok := a.deps.Players.Position(p)
		if !ok || pos.Y > a.cfg.DeathY {
			continue
		}
		a.eliminateLocked(p, false)
	}
	a.holdWin = false
	a.checkWinLocked()
}

func (a *Arena) stopGameLoopLocked() {
	if a.loop == nil {
		return
	}
	a.loop.timer.Cancel()
	a.loop.poll.Cancel()
	a.loop = nil
}
