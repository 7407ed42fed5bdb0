package arena

import "github.com/shopspring/decimal"

// BetEntry is a player's stake currently held in escrow.
type BetEntry struct {
	Player PlayerID
	Amount decimal.Decimal
	// Forfeit is set once the match concluded for the player; the stake then stays in the
	// pool and is no longer refundable.
	Forfeit bool
}

// Ledger escrows entry bets for one match. Every unit collected leaves either as a refund
// or as part of the settlement payout.
type Ledger struct {
	entries map[PlayerID]*BetEntry
	order   []PlayerID

	collected decimal.Decimal
	refunded  decimal.Decimal
	paid      decimal.Decimal
}

func newLedger() *Ledger {
	return &Ledger{entries: map[PlayerID]*BetEntry{}}
}

func (l *Ledger) Hold(p PlayerID, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	if e, ok := l.entries[p]; ok {
		e.Amount = e.Amount.Add(amount)
	} else {
		l.entries[p] = &BetEntry{Player: p, Amount: amount}
		l.order = append(l.order, p)
	}
	l.collected = l.collected.Add(amount)
}

func (l *Ledger) Forfeit(p PlayerID) {
	if e, ok := l.entries[p]; ok {
		e.Forfeit = true
	}
}

// Refund removes a refundable entry and returns its amount.
func (l *Ledger) Refund(p PlayerID) (decimal.Decimal, bool) {
	e, ok := l.entries[p]
	if !ok || e.Forfeit {
		return decimal.Zero, false
	}
	l.drop(p)
	l.refunded = l.refunded.Add(e.Amount)
	return e.Amount, true
}

// Pool is the sum of every entry still in escrow.
func (l *Ledger) Pool() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range l.entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

func (l *Ledger) Entries() []BetEntry {
	out := make([]BetEntry, 0, len(l.order))
	for _, p := range l.order {
		out = append(out, *l.entries[p])
	}
	return out
}

func (l *Ledger) Has(p PlayerID) bool {
	_, ok := l.entries[p]
	return ok
}

// Drain empties escrow, counting the drained amount as paid out.
func (l *Ledger) Drain() []BetEntry {
	out := l.Entries()
	for _, e := range out {
		l.paid = l.paid.Add(e.Amount)
	}
	l.entries = map[PlayerID]*BetEntry{}
	l.order = nil
	return out
}

// Totals reports collected, refunded and paid amounts since the ledger was created.
func (l *Ledger) Totals() (collected, refunded, paid decimal.Decimal) {
	return l.collected, l.refunded, l.paid
}

func (l *Ledger) drop(p PlayerID) {
	delete(l.entries, p)
	for i, q := range l.order {
		if q == p {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}
