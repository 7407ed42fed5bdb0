package arena

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFreeForAllMatch(t *testing.T) {
	e := newTestEnv(t)
	e.regen.gate = make(chan struct{})
	e.stats.fund(100, "A", "B", "C", "D")
	a := mustCreate(t, e, ffaConfig("ffa1", 4, 10))
	if _, err := a.Capture(context.Background()); err != nil {
		t.Fatalf("capture: %v", err)
	}

	mustJoin(t, e, "ffa1", "", "A", "B")
	if got := a.Phase(); got != PhaseCountdown {
		t.Fatalf("after two joins: phase %s", got)
	}
	if err := e.m.Quit(context.Background(), "B"); err != nil {
		t.Fatalf("quit B: %v", err)
	}
	if got := a.Phase(); got != PhaseWaiting {
		t.Fatalf("after quit: phase %s", got)
	}
	if e.msgs.count(MsgCountdownCancelled) != 1 {
		t.Fatalf("expected one cancellation notice")
	}
	if !e.stats.balance("B").Equal(decimal.NewFromInt(100)) {
		t.Fatalf("B refund: balance %s", e.stats.balance("B"))
	}

	mustJoin(t, e, "ffa1", "", "C", "D")
	if got := a.Phase(); got != PhaseCountdown {
		t.Fatalf("after restart: phase %s", got)
	}
	e.steps(3)
	if got := a.Phase(); got != PhaseActive {
		t.Fatalf("after countdown: phase %s", got)
	}
	if st := e.m.Sessions().Get("D").State; st != StateInGame {
		t.Fatalf("D state: %s", st)
	}

	e.players.fall("A")
	e.steps(1)
	if st := e.m.Sessions().Get("A").State; st != StateSpectating {
		t.Fatalf("A should spectate with three alive, got %s", st)
	}
	e.players.fall("C")
	e.steps(1)

	if len(e.obs.won) != 1 || e.obs.won[0] != "D" {
		t.Fatalf("winners: %v", e.obs.won)
	}
	if got := a.Phase(); got != PhaseRegenerating {
		t.Fatalf("after win: phase %s", got)
	}
	if !e.stats.balance("D").Equal(decimal.NewFromInt(120)) {
		t.Fatalf("D balance: got %s want 120", e.stats.balance("D"))
	}
	for _, p := range []PlayerID{"A", "C"} {
		if !e.stats.balance(p).Equal(decimal.NewFromInt(90)) {
			t.Fatalf("%s balance: %s", p, e.stats.balance(p))
		}
	}
	close(e.regen.gate)
	waitPhase(t, a, PhaseWaiting)

	pl := a.Placements()
	if len(pl) != 3 || pl[0].Players[0] != "D" || pl[1].Players[0] != "C" || pl[2].Players[0] != "A" {
		t.Fatalf("placements: %+v", pl)
	}
	for _, p := range []PlayerID{"A", "C", "D"} {
		if e.m.Sessions().ArenaOf(p) != "" {
			t.Fatalf("%s still bound to an arena", p)
		}
		if e.stats.stat(p, StatGamesPlayed) != 1 {
			t.Fatalf("%s games played: %d", p, e.stats.stat(p, StatGamesPlayed))
		}
	}
	if e.stats.stat("A", StatLosses) != 1 || e.stats.stat("D", StatWins) != 1 {
		t.Fatalf("stats: A losses %d D wins %d", e.stats.stat("A", StatLosses), e.stats.stat("D", StatWins))
	}

	collected, refunded, paid := a.LedgerTotals()
	if collected != "40" || refunded != "10" || paid != "30" {
		t.Fatalf("ledger: collected %s refunded %s paid %s", collected, refunded, paid)
	}
	if e.sched.Pending() != 0 {
		t.Fatalf("timers left running: %d", e.sched.Pending())
	}
}

func TestTeamsMatch(t *testing.T) {
	e := newTestEnv(t)
	cfg := teamsConfig("teams1", 2)
	cfg.Rewards = []RewardTier{
		{Place: 1, Money: decimal.NewFromInt(5), Commands: []string{"give {player} diamond"}},
		{Place: 3, Money: decimal.NewFromInt(100)},
	}
	a := mustCreate(t, e, cfg)
	mustJoin(t, e, "teams1", "red", "A", "B")
	mustJoin(t, e, "teams1", "blue", "C", "D")
	e.steps(2)
	if got := a.Phase(); got != PhaseActive {
		t.Fatalf("phase %s", got)
	}

	ctx := context.Background()
	if err := e.m.Eliminate(ctx, "C"); err != nil {
		t.Fatalf("eliminate C: %v", err)
	}
	if len(e.obs.teams) != 0 {
		t.Fatalf("blue still has D alive")
	}
	if err := e.m.Eliminate(ctx, "D"); err != nil {
		t.Fatalf("eliminate D: %v", err)
	}
	if len(e.obs.teams) != 1 || e.obs.teams[0] != "blue" {
		t.Fatalf("team eliminations: %v", e.obs.teams)
	}
	if len(e.obs.won) != 2 {
		t.Fatalf("winners: %v", e.obs.won)
	}
	if e.msgs.count(MsgTeamEliminated) != 1 {
		t.Fatalf("team elimination broadcast %d times", e.msgs.count(MsgTeamEliminated))
	}
	// No snapshot stored, so the arena goes straight back to waiting.
	if got := a.Phase(); got != PhaseWaiting {
		t.Fatalf("phase after match: %s", got)
	}

	pl := a.Placements()
	if len(pl) != 2 || pl[0].Team != "red" || pl[1].Team != "blue" || len(pl[1].Players) != 2 {
		t.Fatalf("placements: %+v", pl)
	}
	for _, p := range []PlayerID{"A", "B"} {
		if !e.stats.balance(p).Equal(decimal.NewFromInt(5)) {
			t.Fatalf("%s reward: %s", p, e.stats.balance(p))
		}
	}
	if len(e.cmds.ran) != 2 {
		t.Fatalf("reward commands: %v", e.cmds.ran)
	}
}

func TestTeamsSplitPool(t *testing.T) {
	e := newTestEnv(t)
	cfg := teamsConfig("pool", 2)
	cfg.Bet = decimal.NewFromInt(10)
	e.stats.fund(10, "A", "B", "C", "D")
	a := mustCreate(t, e, cfg)
	mustJoin(t, e, "pool", "red", "A", "B")
	mustJoin(t, e, "pool", "blue", "C", "D")
	e.steps(2)
	// A goes down first and watches the rest of the match; red still wins through B.
	e.players.fall("A")
	e.steps(1)
	if st := e.m.Sessions().Get("A").State; st != StateSpectating {
		t.Fatalf("A state: %s", st)
	}
	e.players.fall("C")
	e.players.fall("D")
	e.steps(1)

	if a.Phase() != PhaseWaiting {
		t.Fatalf("phase %s", a.Phase())
	}
	for _, p := range []PlayerID{"A", "B"} {
		if !e.stats.balance(p).Equal(decimal.NewFromInt(20)) {
			t.Fatalf("%s: %s", p, e.stats.balance(p))
		}
	}
	if len(e.obs.won) != 1 || e.obs.won[0] != "B" {
		t.Fatalf("won events: %v", e.obs.won)
	}
	if e.stats.stat("A", StatWins) != 0 || e.stats.stat("B", StatWins) != 1 {
		t.Fatalf("wins: A %d B %d", e.stats.stat("A", StatWins), e.stats.stat("B", StatWins))
	}
	if pl := a.Placements(); len(pl) == 0 || pl[0].Team != "red" || len(pl[0].Players) != 2 {
		t.Fatalf("placements: %+v", pl)
	}
	for _, p := range []PlayerID{"C", "D"} {
		if !e.stats.balance(p).IsZero() {
			t.Fatalf("%s: %s", p, e.stats.balance(p))
		}
	}
}

func TestTeamsNeedTwoSides(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	cfg := teamsConfig("oneside", 2)
	cfg.Rewards = []RewardTier{{Place: 1, Money: decimal.NewFromInt(5)}}
	a := mustCreate(t, e, cfg)

	mustJoin(t, e, "oneside", "red", "A", "B")
	if got := a.Phase(); got != PhaseWaiting {
		t.Fatalf("one populated team started a countdown: %s", got)
	}
	if err := e.m.Start("oneside"); !errors.Is(err, ErrNotJoinable) {
		t.Fatalf("forced start with one side: %v", err)
	}
	e.steps(3)
	if len(e.obs.won) != 0 || !e.stats.balance("A").IsZero() || e.stats.stat("A", StatWins) != 0 {
		t.Fatalf("match ran without an opponent: won=%v balance=%s", e.obs.won, e.stats.balance("A"))
	}

	mustJoin(t, e, "oneside", "blue", "C")
	if got := a.Phase(); got != PhaseCountdown {
		t.Fatalf("two sides: phase %s", got)
	}
	if err := e.m.Quit(ctx, "C"); err != nil {
		t.Fatalf("quit C: %v", err)
	}
	if got := a.Phase(); got != PhaseWaiting {
		t.Fatalf("countdown kept running with one side: %s", got)
	}
	if e.msgs.count(MsgCountdownCancelled) != 1 {
		t.Fatalf("cancellations: %d", e.msgs.count(MsgCountdownCancelled))
	}
	e.steps(3)
	if len(e.obs.won) != 0 || e.sched.Pending() != 0 {
		t.Fatalf("won=%v pending=%d", e.obs.won, e.sched.Pending())
	}
}

func TestJoinNeverExceedsCapacity(t *testing.T) {
	e := newTestEnv(t)
	a := mustCreate(t, e, ffaConfig("small", 2, 0))
	mustJoin(t, e, "small", "", "A", "B")
	err := e.m.Join(context.Background(), "C", "small", "")
	if !errors.Is(err, ErrArenaFull) {
		t.Fatalf("third join: %v", err)
	}
	v := a.View()
	if v.Players != 2 || e.m.Sessions().ArenaOf("C") != "" {
		t.Fatalf("roster changed on rejection: %+v", v)
	}
}

func TestJoinPreconditions(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	mustCreate(t, e, ffaConfig("one", 4, 10))
	mustCreate(t, e, ffaConfig("two", 4, 0))
	off := ffaConfig("off", 4, 0)
	off.Enabled = false
	mustCreate(t, e, off)
	dirty := ffaConfig("dirty", 4, 0)
	dirty.RequireEmptyInventory = true
	mustCreate(t, e, dirty)

	e.stats.fund(10, "A")
	mustJoin(t, e, "one", "", "A")

	cases := []struct {
		name  string
		p     PlayerID
		arena string
		want  error
	}{
		{"same arena", "A", "one", ErrAlreadyInArena},
		{"other arena", "A", "two", ErrAlreadyInArena},
		{"disabled", "B", "off", ErrArenaDisabled},
		{"inventory", "Z", "dirty", ErrInventoryNotEmpty},
		{"funds", "B", "one", ErrInsufficientFunds},
		{"unknown arena", "B", "nope", ErrArenaNotFound},
	}
	e.players.dirty["Z"] = true
	for _, tc := range cases {
		if err := e.m.Join(ctx, tc.p, tc.arena, ""); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
	if !e.stats.balance("B").IsZero() {
		t.Fatalf("rejected join touched the balance")
	}
}

func TestJoinRejectedWhileActive(t *testing.T) {
	e := newTestEnv(t)
	mustCreate(t, e, ffaConfig("busy", 4, 0))
	mustJoin(t, e, "busy", "", "A", "B")
	e.steps(3)
	if err := e.m.Join(context.Background(), "C", "busy", ""); !errors.Is(err, ErrNotJoinable) {
		t.Fatalf("join during match: %v", err)
	}
}

func TestTeamSelection(t *testing.T) {
	e := newTestEnv(t)
	a := mustCreate(t, e, teamsConfig("sel", 1))
	ctx := context.Background()
	if err := e.m.Join(ctx, "A", "sel", "green"); !errors.Is(err, ErrInvalidTeam) {
		t.Fatalf("unknown team: %v", err)
	}
	mustJoin(t, e, "sel", "red", "A")
	if err := e.m.Join(ctx, "B", "sel", "red"); !errors.Is(err, ErrTeamFull) {
		t.Fatalf("full team: %v", err)
	}
	mustJoin(t, e, "sel", "", "B")
	v := a.View()
	if len(v.Teams) != 2 || len(v.Teams[1].Members) != 1 || v.Teams[1].Members[0] != "B" {
		t.Fatalf("B should land on the open team: %+v", v.Teams)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	a := mustCreate(t, e, ffaConfig("idem", 4, 0))
	mustJoin(t, e, "idem", "", "A", "B")
	for i := 0; i < 3; i++ {
		if err := a.Start(); err != nil {
			t.Fatalf("start #%d: %v", i, err)
		}
	}
	if e.sched.Pending() != 1 {
		t.Fatalf("countdown timers: %d", e.sched.Pending())
	}
	if e.msgs.count(MsgGameStarting) != 1 {
		t.Fatalf("starting notices: %d", e.msgs.count(MsgGameStarting))
	}
}

func TestCountdownCancelOnce(t *testing.T) {
	e := newTestEnv(t)
	a := mustCreate(t, e, ffaConfig("cancel", 4, 0))
	mustJoin(t, e, "cancel", "", "A", "B")
	e.steps(1)
	ctx := context.Background()
	if err := e.m.Quit(ctx, "B"); err != nil {
		t.Fatal(err)
	}
	if err := e.m.Quit(ctx, "A"); err != nil {
		t.Fatal(err)
	}
	e.steps(5)
	if a.Phase() != PhaseWaiting {
		t.Fatalf("phase %s", a.Phase())
	}
	if n := e.msgs.count(MsgCountdownCancelled); n != 1 {
		t.Fatalf("cancellations: %d", n)
	}
	if e.sched.Pending() != 0 {
		t.Fatalf("timers left: %d", e.sched.Pending())
	}
	if e.msgs.count(MsgGameStarted) != 0 {
		t.Fatalf("a cancelled countdown started the match")
	}
}

func TestTimeLimitDrawRefunds(t *testing.T) {
	e := newTestEnv(t)
	cfg := ffaConfig("draw", 4, 10)
	cfg.GameTimeSeconds = 2
	e.stats.fund(10, "A", "B")
	a := mustCreate(t, e, cfg)
	mustJoin(t, e, "draw", "", "A", "B")
	e.steps(3 + 2)
	if e.obs.draws != 1 {
		t.Fatalf("draws: %d", e.obs.draws)
	}
	if a.Phase() != PhaseWaiting {
		t.Fatalf("phase %s", a.Phase())
	}
	for _, p := range []PlayerID{"A", "B"} {
		if !e.stats.balance(p).Equal(decimal.NewFromInt(10)) {
			t.Fatalf("%s: %s", p, e.stats.balance(p))
		}
	}
}

func TestSimultaneousFallIsDraw(t *testing.T) {
	e := newTestEnv(t)
	mustCreate(t, e, ffaConfig("both", 2, 0))
	mustJoin(t, e, "both", "", "A", "B")
	e.steps(3)
	e.players.fall("A")
	e.players.fall("B")
	e.steps(1)
	if e.obs.draws != 1 || len(e.obs.won) != 0 {
		t.Fatalf("draws %d winners %v", e.obs.draws, e.obs.won)
	}
}

func TestDisconnectDuringMatch(t *testing.T) {
	e := newTestEnv(t)
	mustCreate(t, e, ffaConfig("dc", 4, 0))
	mustJoin(t, e, "dc", "", "A", "B", "C")
	e.steps(3)
	e.m.Disconnect(context.Background(), "A")
	if _, ok := e.players.spectating["A"]; ok {
		t.Fatalf("disconnected player must not spectate")
	}
	if e.m.Sessions().Len() != 2 {
		t.Fatalf("sessions: %d", e.m.Sessions().Len())
	}
	e.m.Disconnect(context.Background(), "B")
	if len(e.obs.won) != 1 || e.obs.won[0] != "C" {
		t.Fatalf("winners: %v", e.obs.won)
	}
}

func TestQuitDuringMatchSpectates(t *testing.T) {
	e := newTestEnv(t)
	e.stats.fund(10, "A", "B", "C")
	a := mustCreate(t, e, ffaConfig("quitters", 4, 10))
	mustJoin(t, e, "quitters", "", "A", "B", "C")
	e.steps(3)
	if err := e.m.Quit(context.Background(), "A"); err != nil {
		t.Fatal(err)
	}
	if e.players.spectating["A"] == "" {
		t.Fatalf("A should spectate after quitting a running match")
	}
	if !e.stats.balance("A").IsZero() {
		t.Fatalf("bet refunded after forfeit: %s", e.stats.balance("A"))
	}
	v := a.View()
	if v.Players != 2 || v.Spectators != 1 {
		t.Fatalf("view: %+v", v)
	}
	// Leaving spectator mode.
	if err := e.m.Quit(context.Background(), "A"); err != nil {
		t.Fatal(err)
	}
	if e.m.Sessions().ArenaOf("A") != "" {
		t.Fatalf("A still bound")
	}
}

func TestRegenerationGating(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	a := mustCreate(t, e, ffaConfig("regen", 4, 0))
	if err := a.Regenerate(ctx); !errors.Is(err, ErrRegenerationUnavailable) {
		t.Fatalf("no snapshot: %v", err)
	}
	if a.Phase() != PhaseWaiting {
		t.Fatalf("phase changed: %s", a.Phase())
	}
	if _, err := a.Capture(ctx); err != nil {
		t.Fatal(err)
	}
	mustJoin(t, e, "regen", "", "A", "B")
	if err := a.Regenerate(ctx); !errors.Is(err, ErrRegenerationBlocked) {
		t.Fatalf("during countdown: %v", err)
	}
	if _, err := a.Capture(ctx); !errors.Is(err, ErrRegenerationBlocked) {
		t.Fatalf("capture during countdown: %v", err)
	}
	_ = e.m.Quit(ctx, "A")
	_ = e.m.Quit(ctx, "B")

	e.regen.gate = make(chan struct{})
	if err := a.Regenerate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := e.m.Join(ctx, "C", "regen", ""); !errors.Is(err, ErrNotJoinable) {
		t.Fatalf("join while regenerating: %v", err)
	}
	close(e.regen.gate)
	waitPhase(t, a, PhaseWaiting)
}

func TestDisableEndsMatch(t *testing.T) {
	e := newTestEnv(t)
	e.stats.fund(10, "A", "B", "C")
	a := mustCreate(t, e, ffaConfig("toggle", 4, 10))
	mustJoin(t, e, "toggle", "", "A", "B", "C")
	e.steps(3)
	e.players.fall("A")
	e.steps(1)
	if err := e.m.SetEnabled("toggle", false); err != nil {
		t.Fatal(err)
	}
	if a.Phase() != PhaseDisabled {
		t.Fatalf("phase %s", a.Phase())
	}
	// A draw hands every stake back, including the one already forfeited.
	for _, p := range []PlayerID{"A", "B", "C"} {
		if !e.stats.balance(p).Equal(decimal.NewFromInt(10)) {
			t.Fatalf("%s: %s", p, e.stats.balance(p))
		}
	}
	if err := e.m.Join(context.Background(), "D", "toggle", ""); !errors.Is(err, ErrArenaDisabled) {
		t.Fatalf("join disabled: %v", err)
	}
	_ = e.m.SetEnabled("toggle", true)
	if a.Phase() != PhaseWaiting {
		t.Fatalf("re-enabled phase %s", a.Phase())
	}
}

func TestRemoveArena(t *testing.T) {
	e := newTestEnv(t)
	a := mustCreate(t, e, ffaConfig("gone", 4, 0))
	mustJoin(t, e, "gone", "", "A", "B")
	e.steps(3)
	if err := e.m.Remove("gone"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.m.Get("gone"); !errors.Is(err, ErrArenaNotFound) {
		t.Fatalf("get removed: %v", err)
	}
	if e.m.Sessions().ArenaOf("A") != "" {
		t.Fatalf("session survived removal")
	}
	if err := a.Join(context.Background(), "C", ""); !errors.Is(err, ErrArenaNotFound) {
		t.Fatalf("join removed arena: %v", err)
	}
	if _, err := e.m.Create(ffaConfig("gone", 4, 0)); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if _, err := e.m.Create(ffaConfig("gone", 4, 0)); !errors.Is(err, ErrArenaExists) {
		t.Fatalf("duplicate: %v", err)
	}
}

func TestNeedsSetup(t *testing.T) {
	e := newTestEnv(t)
	cfg := ffaConfig("bare", 1, 0)
	a := mustCreate(t, e, cfg)
	if a.Phase() != PhaseNeedsSetup {
		t.Fatalf("FFA with capacity 1: %s", a.Phase())
	}
	if err := e.m.Join(context.Background(), "A", "bare", ""); err == nil {
		t.Fatalf("join should be rejected")
	}
}

func TestAbilities(t *testing.T) {
	e := newTestEnv(t)
	cfg := ffaConfig("ab", 4, 0)
	cfg.Abilities = map[string]int{"double_jump": 1}
	mustCreate(t, e, cfg)
	mustJoin(t, e, "ab", "", "A", "B")
	if _, err := e.m.UseAbility("A", "double_jump"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("before start: %v", err)
	}
	e.steps(3)
	left, err := e.m.UseAbility("A", "double_jump")
	if err != nil || left != 0 {
		t.Fatalf("first use: %d %v", left, err)
	}
	if _, err := e.m.UseAbility("A", "double_jump"); !errors.Is(err, ErrAbilityExhausted) {
		t.Fatalf("second use: %v", err)
	}
}

func TestEndTasksRunAroundPayout(t *testing.T) {
	e := newTestEnv(t)
	e.stats.fund(10, "A", "B")
	a := mustCreate(t, e, ffaConfig("hooks", 2, 10))
	var order []string
	a.RegisterEndTask(EndTask{Phase: EndAfter, Name: "after", Run: func(s Settlement) {
		order = append(order, "after:"+s.Pool.String()+":"+itoa(len(s.Payouts)))
	}})
	a.RegisterEndTask(EndTask{Phase: EndBefore, Name: "before", Run: func(s Settlement) {
		order = append(order, "before:"+itoa(len(s.Payouts)))
	}})
	mustJoin(t, e, "hooks", "", "A", "B")
	e.steps(3)
	if err := a.DeclareWinner(context.Background(), "B"); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "before:0" || order[1] != "after:20:1" {
		t.Fatalf("end task order: %v", order)
	}
	if err := a.DeclareWinner(context.Background(), "B"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("second declare: %v", err)
	}
	if len(e.obs.won) != 1 {
		t.Fatalf("winner fired %d times", len(e.obs.won))
	}
}

func TestSplitPool(t *testing.T) {
	shares := splitPool(dec("10"), 3)
	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s)
	}
	if !sum.Equal(dec("10")) || !shares[0].Equal(dec("3.34")) || !shares[2].Equal(dec("3.33")) {
		t.Fatalf("shares %v", shares)
	}
	if splitPool(dec("5"), 0) != nil {
		t.Fatalf("zero winners should yield nothing")
	}
}

// TestRosterInvariantsUnderChurn drives random joins, quits and eliminations and checks that
// the alive set stays inside membership, capacity holds and the escrow balances.
func TestRosterInvariantsUnderChurn(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	players := []PlayerID{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	e.stats.fund(1000, players...)
	a := mustCreate(t, e, ffaConfig("churn", 5, 1))
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 400; i++ {
		p := players[rng.Intn(len(players))]
		switch rng.Intn(4) {
		case 0:
			_ = e.m.Join(ctx, p, "churn", "")
		case 1:
			_ = e.m.Quit(ctx, p)
		case 2:
			_ = e.m.Eliminate(ctx, p)
		default:
			e.steps(1)
		}
		waitNotRegenerating(t, a)

		a.mu.Lock()
		if n := a.roster.Participants(); n > a.cfg.Capacity() {
			a.mu.Unlock()
			t.Fatalf("step %d: %d participants over capacity", i, n)
		}
		for _, q := range a.roster.AliveAll() {
			if !a.roster.Contains(q) {
				a.mu.Unlock()
				t.Fatalf("step %d: %s alive but not a member", i, q)
			}
		}
		collected, refunded, paid := a.ledger.Totals()
		held := a.ledger.Pool()
		a.mu.Unlock()
		if !collected.Equal(refunded.Add(paid).Add(held)) {
			t.Fatalf("step %d: collected %s != refunded %s + paid %s + held %s", i, collected, refunded, paid, held)
		}
	}
}

func waitNotRegenerating(t *testing.T, a *Arena) {
	t.Helper()
	if a.Phase() == PhaseRegenerating {
		waitPhase(t, a, PhaseWaiting)
	}
}
