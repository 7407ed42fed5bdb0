package arena

import (
	"context"
	"fmt"
)

// Capture stores the current arena region as the regeneration target.
func (a *Arena) Capture(ctx context.Context) (SnapshotRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deps.Regenerator == nil {
		return SnapshotRef{}, ErrRegenerationUnavailable
	}
	switch a.phase {
	case PhaseCountdown, PhaseActive, PhaseRegenerating:
		return SnapshotRef{}, ErrRegenerationBlocked
	}
	ref, err := a.deps.Regenerator.Capture(ctx, a.cfg.Key)
	if err != nil {
		return SnapshotRef{}, fmt.Errorf("capture %s: %w", a.cfg.Key, err)
	}
	a.snapshot = &ref
	a.log.Printf("arena %s: captured snapshot %s", a.cfg.Key, ref.Path)
	return ref, nil
}

// AdoptSnapshot sets the regeneration target without capturing, e.g. one found on disk at boot.
func (a *Arena) AdoptSnapshot(ref SnapshotRef) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot = &ref
}

// Regenerate restores the arena from its snapshot. It refuses while players are committed
// to a match.
func (a *Arena) Regenerate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.phase {
	case PhaseCountdown, PhaseActive, PhaseRegenerating:
		return ErrRegenerationBlocked
	case PhaseWaiting:
		return a.regenerateLocked(PhaseWaiting)
	}
	// Disabled or unconfigured arenas have no phase to hand back; restore in place.
	if a.deps.Regenerator == nil || a.snapshot == nil {
		return ErrRegenerationUnavailable
	}
	a.restoreOutOfBandLocked()
	return nil
}

// regenerateLocked moves to Regenerating and restores asynchronously; the completion re-takes
// the lock and returns to restoreTo. Without a snapshot the phase is left untouched.
func (a *Arena) regenerateLocked(restoreTo Phase) error {
	if a.deps.Regenerator == nil || a.snapshot == nil {
		return ErrRegenerationUnavailable
	}
	if !a.setPhaseLocked(PhaseRegenerating) {
		return fmt.Errorf("regenerate %s from %s: %w", a.cfg.Key, a.phase, ErrRegenerationBlocked)
	}
	a.regenGen++
	gen := a.regenGen
	a.broadcastLocked(MsgRegenerating, nil)
	done := a.deps.Regenerator.Restore(context.Background(), *a.snapshot, a.cfg.Anchor)
	go a.awaitRegeneration(gen, restoreTo, done)
	return nil
}

func (a *Arena) awaitRegeneration(gen uint64, restoreTo Phase, done <-chan error) {
	err := <-done
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.log.Printf("arena %s: regenerate: %v", a.cfg.Key, err)
	}
	if a.regenGen != gen || a.phase != PhaseRegenerating {
		return
	}
	a.setPhaseLocked(restoreTo)
	a.refreshPhaseLocked()
	a.broadcastLocked(MsgArenaReady, nil)
}
