package statsdb

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	return openAt(t, filepath.Join(t.TempDir(), "stats.sqlite"))
}

func openAt(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Balances(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	bal, err := s.BetBalance(ctx, "alice")
	if err != nil || !bal.IsZero() {
		t.Fatalf("fresh balance: %s %v", bal, err)
	}
	if _, err := s.Deposit(ctx, "alice", decimal.NewFromInt(25)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := s.Debit(ctx, "alice", decimal.RequireFromString("10.5")); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if err := s.Debit(ctx, "alice", decimal.NewFromInt(100)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraw: %v", err)
	}
	if err := s.Credit(ctx, "alice", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	bal, err = s.BetBalance(ctx, "alice")
	if err != nil {
		t.Fatalf("BetBalance: %v", err)
	}
	if !bal.Equal(decimal.RequireFromString("15.5")) {
		t.Fatalf("balance=%s want 15.5", bal)
	}
	if _, err := s.Deposit(ctx, "alice", decimal.Zero); err == nil {
		t.Fatalf("zero deposit should fail")
	}
}

func TestStore_RecordResultIsQueued(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := openTest(t)

	for i := 0; i < 3; i++ {
		if err := s.RecordResult(ctx, "bob", "spleef", "wins", 1); err != nil {
			t.Fatalf("RecordResult: %v", err)
		}
	}
	if err := s.RecordResult(ctx, "bob", "spleef", "losses", 2); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	wins, err := s.Stat(ctx, "bob", "spleef", "wins")
	if err != nil || wins != 3 {
		t.Fatalf("wins=%d err=%v", wins, err)
	}
	losses, _ := s.Stat(ctx, "bob", "spleef", "losses")
	if losses != 2 {
		t.Fatalf("losses=%d", losses)
	}
	other, _ := s.Stat(ctx, "bob", "bowspleef", "wins")
	if other != 0 {
		t.Fatalf("extensions must not share counters: %d", other)
	}
}

func TestStore_FullQueueNeverBlocks(t *testing.T) {
	s := &Store{ch: make(chan req, 1)}
	s.ch <- req{kind: reqResult}

	if err := s.RecordResult(context.Background(), "carol", "spleef", "wins", 1); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("full queue: %v", err)
	}
	if err := s.Credit(context.Background(), "carol", decimal.NewFromInt(7)); err != nil {
		t.Fatalf("Credit on a full queue: %v", err)
	}
	st := s.Stats()
	if st.Dropped != 1 || st.Spilled != 1 || st.Depth != 1 || st.Capacity != 1 {
		t.Fatalf("queue stats: %+v", st)
	}

	<-s.ch
	select {
	case r := <-s.ch:
		if r.kind != reqCredit || r.player != "carol" || !r.amount.Equal(decimal.NewFromInt(7)) {
			t.Fatalf("spilled credit: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("spilled credit never reached the queue")
	}
}

func TestStore_CreditsSurviveClose(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stats.sqlite")
	s, err := Open(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 20; i++ {
		if err := s.Credit(ctx, "erin", decimal.RequireFromString("0.5")); err != nil {
			t.Fatalf("Credit: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	again := openAt(t, path)
	bal, err := again.BetBalance(ctx, "erin")
	if err != nil || !bal.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("balance=%s err=%v want 10", bal, err)
	}
}

func TestStore_ClosedRejects(t *testing.T) {
	s := openTest(t)
	_ = s.Close()
	if err := s.RecordResult(context.Background(), "dave", "spleef", "wins", 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("after close: %v", err)
	}
}

func TestIsBusy(t *testing.T) {
	if !isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatalf("busy error not detected")
	}
	if isBusy(nil) || isBusy(ErrInsufficientBalance) {
		t.Fatalf("false positive")
	}
}
