package arena

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
)

type EndTaskPhase int

const (
	// EndBefore tasks run ahead of any payout.
	EndBefore EndTaskPhase = iota
	// EndAfter tasks run once players are released and the roster is cleared.
	EndAfter
)

// EndTask is a hook run at every settlement.
type EndTask struct {
	Phase EndTaskPhase
	Name  string
	Run   func(Settlement)
}

// Payout is money credited to one player at settlement.
type Payout struct {
	Player PlayerID        `json:"player"`
	Place  int             `json:"place,omitempty"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// Settlement summarizes how a match ended and what was paid.
type Settlement struct {
	ArenaKey   string          `json:"arena"`
	MatchID    string          `json:"match_id"`
	Draw       bool            `json:"draw"`
	Team       string          `json:"team,omitempty"`
	Winners    []PlayerID      `json:"winners,omitempty"`
	Placements []Entrant       `json:"placements"`
	Pool       decimal.Decimal `json:"pool"`
	Payouts    []Payout        `json:"payouts"`
}

const (
	payoutPool   = "pool"
	payoutRefund = "refund"
	payoutReward = "reward"
)

// RegisterEndTask adds a settlement hook. Tasks run in registration order within a phase.
func (a *Arena) RegisterEndTask(t EndTask) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.endTasks = append(a.endTasks, t)
}

func (a *Arena) runEndTasksLocked(phase EndTaskPhase, s Settlement) {
	for _, t := range a.endTasks {
		if t.Phase != phase || t.Run == nil {
			continue
		}
		t.Run(s)
	}
}

// settleLocked distributes the escrow and placement rewards, releases every participant
// and runs the end tasks around it.
func (a *Arena) settleLocked(winners []PlayerID, team *Team, draw bool) {
	s := Settlement{
		ArenaKey: a.cfg.Key,
		MatchID:  a.matchID,
		Draw:     draw,
		Winners:  append([]PlayerID(nil), winners...),
		Pool:     a.ledger.Pool(),
	}
	if team != nil {
		s.Team = team.ID
	}
	for _, e := range a.placements {
		s.Placements = append(s.Placements, Entrant{Team: e.Team, Players: append([]PlayerID(nil), e.Players...)})
	}

	a.runEndTasksLocked(EndBefore, s)

	entries := a.ledger.Drain()
	if draw || len(winners) == 0 {
		// Nobody won: every stake goes back to whoever put it in.
		for _, e := range entries {
			a.creditLocked(e.Player, e.Amount)
			s.Payouts = append(s.Payouts, Payout{Player: e.Player, Amount: e.Amount, Reason: payoutRefund})
			a.deps.Messenger.Tell(e.Player, MsgBetRefunded, map[string]string{"amount": e.Amount.String(), "arena": a.cfg.DisplayName})
		}
	} else {
		payees := a.winningSideLocked(winners, team)
		for i, share := range splitPool(s.Pool, len(payees)) {
			if !share.IsPositive() {
				continue
			}
			w := payees[i]
			a.creditLocked(w, share)
			s.Payouts = append(s.Payouts, Payout{Player: w, Place: 1, Amount: share, Reason: payoutPool})
			a.deps.Messenger.Tell(w, MsgBetWon, map[string]string{"amount": share.String(), "arena": a.cfg.DisplayName})
		}
	}

	if !draw {
		s.Payouts = append(s.Payouts, a.payRewardTiersLocked()...)
	}

	for _, p := range a.roster.Players() {
		a.releaseLocked(p, false)
	}
	for p := range a.spectators {
		a.releaseLocked(p, false)
	}
	a.roster.Reset()

	for _, o := range a.deps.Observers {
		o.Settled(a.cfg.Key, s)
	}
	a.runEndTasksLocked(EndAfter, s)
}

// payRewardTiersLocked walks the configured tiers against the placement record. Tiers with
// no matching placement are skipped.
func (a *Arena) payRewardTiersLocked() []Payout {
	var out []Payout
	for _, tier := range a.cfg.Rewards {
		idx := tier.Place - 1
		if idx < 0 || idx >= len(a.placements) {
			continue
		}
		place := strconv.Itoa(tier.Place)
		for _, p := range a.placements[idx].Players {
			if tier.Money.IsPositive() {
				a.creditLocked(p, tier.Money)
				out = append(out, Payout{Player: p, Place: tier.Place, Amount: tier.Money, Reason: payoutReward})
			}
			a.runCommands(tier.Commands, map[string]string{
				"player": string(p),
				"place":  place,
				"arena":  a.cfg.Key,
			})
		}
	}
	return out
}

// splitPool divides pool into n shares truncated to cents; the remainder goes to the first.
func splitPool(pool decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	share := pool.Div(decimal.NewFromInt(int64(n))).Truncate(2)
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = share
	}
	out[0] = pool.Sub(share.Mul(decimal.NewFromInt(int64(n - 1))))
	return out
}

// creditLocked pays p, logging instead of failing when the store is unreachable.
func (a *Arena) creditLocked(p PlayerID, amount decimal.Decimal) {
	if a.deps.Stats == nil || !amount.IsPositive() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	if err := a.deps.Stats.Credit(ctx, p, amount); err != nil {
		a.log.Printf("arena %s: credit %s to %s: %v", a.cfg.Key, amount, p, err)
	}
}
