package arena

import (
	"context"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/sim/ticker"
)

type countdown struct {
	task      *ticker.Task
	remaining int
}

// Start begins the pre-match countdown. It is a no-op while one is already running.
func (a *Arena) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.refreshPhaseLocked() {
	case PhaseCountdown:
		return nil
	case PhaseWaiting:
		if a.roster.Participants() < 2 || !a.sidesReadyLocked() {
			return ErrNotJoinable
		}
		a.startCountdownLocked()
		return nil
	default:
		return ErrNotJoinable
	}
}

func (a *Arena) startCountdownLocked() bool {
	if a.countdown != nil || a.phase != PhaseWaiting {
		return false
	}
	if !a.setPhaseLocked(PhaseCountdown) {
		return false
	}
	if a.cfg.RegenerateBeforeCountdown {
		a.restoreOutOfBandLocked()
	}
	cd := &countdown{remaining: a.cfg.CountdownSeconds}
	a.countdown = cd
	cd.task = a.deps.Scheduler.Every(a.deps.Scheduler.TickRate(), func() { a.countdownTick(cd) })

	a.broadcastLocked(MsgGameStarting, map[string]string{"seconds": itoa(cd.remaining)})
	a.presentLocked(a.roster.Players(), PresentTitle, MsgGameStarting, map[string]string{"seconds": itoa(cd.remaining)})
	return true
}

func (a *Arena) countdownTick(cd *countdown) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.countdown != cd || a.phase != PhaseCountdown {
		cd.task.Cancel()
		return
	}
	cd.remaining--
	if cd.remaining <= 0 {
		if !a.sidesReadyLocked() {
			a.cancelCountdownLocked(true)
			return
		}
		cd.task.Cancel()
		a.countdown = nil
		a.startGameLocked()
		return
	}
	subs := map[string]string{"seconds": itoa(cd.remaining)}
	a.presentLocked(a.roster.Players(), PresentActionBar, MsgCountdown, subs)
	if isMilestone(a.cfg.CountdownMilestones, cd.remaining) {
		a.broadcastLocked(MsgCountdown, map[string]string{"seconds": itoa(cd.remaining)})
	}
}

// readyLocked reports whether the roster may start a match on its own.
func (a *Arena) readyLocked() bool {
	return a.roster.Participants() >= a.cfg.MinPlayers && a.sidesReadyLocked()
}

// sidesReadyLocked requires two populated teams in a Teams arena; a match with a single
// side would be won at the first win check.
func (a *Arena) sidesReadyLocked() bool {
	return a.cfg.Kind != KindTeams || a.roster.Populated() >= 2
}

// cancelCountdownLocked stops a running countdown and returns the arena to Waiting. It
// reports whether there was anything to cancel.
func (a *Arena) cancelCountdownLocked(notify bool) bool {
	cd := a.countdown
	if cd == nil {
		return false
	}
	cd.task.Cancel()
	a.countdown = nil
	if a.phase == PhaseCountdown {
		a.setPhaseLocked(PhaseWaiting)
	}
	if notify {
		a.broadcastLocked(MsgCountdownCancelled, map[string]string{
			"players": itoa(a.roster.Participants()),
			"min":     itoa(a.cfg.MinPlayers),
		})
	}
	return true
}

// restoreOutOfBandLocked restores the stored snapshot without touching the phase.
func (a *Arena) restoreOutOfBandLocked() {
	if a.deps.Regenerator == nil || a.snapshot == nil {
		return
	}
	done := a.deps.Regenerator.Restore(context.Background(), *a.snapshot, a.cfg.Anchor)
	key, logger := a.cfg.Key, a.log
	go func() {
		if err := <-done; err != nil {
			logger.Printf("arena %s: pre-countdown restore: %v", key, err)
		}
	}()
}

func isMilestone(ms []int, v int) bool {
	for _, m := range ms {
		if m == v {
			return true
		}
	}
	return false
}
