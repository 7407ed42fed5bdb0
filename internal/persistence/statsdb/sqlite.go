package statsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
)

var (
	ErrInsufficientBalance = errors.New("statsdb: insufficient balance")
	ErrClosed              = errors.New("statsdb: closed")
	ErrQueueFull           = errors.New("statsdb: queue full")
)

// Store is the SQLite-backed arena.StatisticsStore. Stat increments and credits are queued
// to a single writer goroutine so callers on the tick thread never wait on the database;
// debits, deposits and reads are synchronous transactions.
type Store struct {
	db  *sql.DB
	log *log.Logger

	// mu keeps senders off ch while Close closes it.
	mu   sync.RWMutex
	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
	spilled atomic.Uint64
}

type reqKind int

const (
	reqResult reqKind = iota + 1
	reqCredit
	reqFlush
)

type req struct {
	kind reqKind

	player    string
	extension string
	stat      string
	delta     int
	amount    decimal.Decimal

	done chan struct{}
}

// QueueStats reports writer queue health for metrics.
type QueueStats struct {
	Depth    int
	Capacity int
	Dropped  uint64
	Spilled  uint64
}

func Open(path string, logger *log.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:  db,
		log: logger,
		ch:  make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS stats (
			player TEXT NOT NULL,
			extension TEXT NOT NULL,
			stat TEXT NOT NULL,
			value INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (player, extension, stat)
		);`,
		`CREATE TABLE IF NOT EXISTS balances (
			player TEXT PRIMARY KEY,
			amount TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordResult queues a stat increment without blocking. A full queue drops the write and
// returns ErrQueueFull.
func (s *Store) RecordResult(_ context.Context, p arena.PlayerID, extension, stat string, delta int) error {
	if s == nil {
		return ErrClosed
	}
	err := s.enqueue(req{kind: reqResult, player: string(p), extension: extension, stat: stat, delta: delta})
	if errors.Is(err, ErrQueueFull) {
		return fmt.Errorf("record %s/%s for %s: %w", extension, stat, p, err)
	}
	return err
}

// Credit queues a payout without blocking. Credits are never dropped: when the queue is full
// a goroutine holds the credit until the writer has room.
func (s *Store) Credit(_ context.Context, p arena.PlayerID, amount decimal.Decimal) error {
	if s == nil {
		return ErrClosed
	}
	return s.enqueue(req{kind: reqCredit, player: string(p), amount: amount})
}

func (s *Store) enqueue(r req) error {
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.ch <- r:
		s.mu.RUnlock()
		return nil
	default:
	}
	if r.kind != reqCredit {
		s.mu.RUnlock()
		s.dropped.Add(1)
		return ErrQueueFull
	}
	s.spilled.Add(1)
	// The read lock moves to the spill goroutine so Close waits for the credit to land.
	go func() {
		defer s.mu.RUnlock()
		s.ch <- r
	}()
	return nil
}

// Flush waits until every queued write ahead of it is committed.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) Stats() QueueStats {
	return QueueStats{Depth: len(s.ch), Capacity: cap(s.ch), Dropped: s.dropped.Load(), Spilled: s.spilled.Load()}
}

// Stat reads one counter; a missing row is zero.
func (s *Store) Stat(ctx context.Context, p arena.PlayerID, extension, stat string) (int, error) {
	var v int
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx,
			`SELECT value FROM stats WHERE player=? AND extension=? AND stat=?`,
			string(p), extension, stat,
		).Scan(&v)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (s *Store) BetBalance(ctx context.Context, p arena.PlayerID) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		bal, err = readBalance(ctx, s.db, string(p))
		return err
	})
	return bal, err
}

func (s *Store) Debit(ctx context.Context, p arena.PlayerID, amount decimal.Decimal) error {
	_, err := s.adjust(ctx, string(p), amount.Neg())
	return err
}

// Deposit adds funds outside of any match (admin top-ups) and returns the new balance.
func (s *Store) Deposit(ctx context.Context, p arena.PlayerID, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("deposit must be positive, got %s", amount)
	}
	return s.adjust(ctx, string(p), amount)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readBalance(ctx context.Context, q queryer, player string) (decimal.Decimal, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT amount FROM balances WHERE player=?`, player).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// adjust applies delta to a balance in one transaction. A debit that would go negative
// fails with ErrInsufficientBalance and changes nothing.
func (s *Store) adjust(ctx context.Context, player string, delta decimal.Decimal) (decimal.Decimal, error) {
	var next decimal.Decimal
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		cur, err := readBalance(ctx, tx, player)
		if err != nil {
			return err
		}
		next = cur.Add(delta)
		if next.IsNegative() {
			return ErrInsufficientBalance
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO balances(player,amount,updated_at) VALUES(?,?,?)
			 ON CONFLICT(player) DO UPDATE SET amount=excluded.amount, updated_at=excluded.updated_at`,
			player, next.String(), now(),
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	return next, err
}

// withRetry retries fn while SQLite reports the database as busy.
func (s *Store) withRetry(ctx context.Context, fn func(context.Context) error) error {
	b := retry.WithMaxRetries(5, retry.NewExponential(20*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if isBusy(err) {
			s.log.Printf("sqlite busy, retrying: %v", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (s *Store) loop() {
	ctx := context.Background()

	upsert, err := s.db.Prepare(`INSERT INTO stats(player,extension,stat,value,updated_at) VALUES(?,?,?,?,?)
		ON CONFLICT(player,extension,stat) DO UPDATE SET value=value+excluded.value, updated_at=excluded.updated_at`)
	if err != nil {
		s.log.Printf("prepare stats upsert: %v", err)
	}
	defer func() {
		if upsert != nil {
			_ = upsert.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Printf("begin stats batch: %v", err)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.Printf("commit stats batch: %v", err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		// Balance transactions share the single connection, so an idle queue commits at once.
		if len(s.ch) == 0 || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	idle := time.NewTicker(commitMaxWait)
	defer idle.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			switch r.kind {
			case reqFlush:
				commit()
				close(r.done)
				continue
			case reqCredit:
				// Credits run in their own transaction; the batch holds the only connection.
				commit()
				if _, err := s.adjust(ctx, r.player, r.amount); err != nil {
					s.log.Printf("credit %s to %s: %v", r.amount, r.player, err)
				}
				continue
			case reqResult:
				begin()
				if tx == nil || upsert == nil {
					s.dropped.Add(1)
					continue
				}
				if _, err := tx.Stmt(upsert).Exec(r.player, r.extension, r.stat, r.delta, now()); err != nil {
					s.log.Printf("stats %s/%s/%s: %v", r.player, r.extension, r.stat, err)
					_ = tx.Rollback()
					tx = nil
					continue
				}
				opCount++
			}
			flushIfNeeded()
		case <-idle.C:
			flushIfNeeded()
		}
	}
}
