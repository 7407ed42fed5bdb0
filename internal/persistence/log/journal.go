package log

import (
	"encoding/json"
	stdlog "log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
)

const journalPrefix = "journal"

// Journal entry kinds.
const (
	KindPhase          = "PHASE"
	KindEliminated     = "ELIMINATED"
	KindTeamEliminated = "TEAM_ELIMINATED"
	KindWon            = "WON"
	KindDraw           = "DRAW"
	KindSettled        = "SETTLED"
)

type JournalEntry struct {
	Time       time.Time         `json:"time"`
	Kind       string            `json:"kind"`
	Arena      string            `json:"arena"`
	MatchID    string            `json:"match_id,omitempty"`
	From       string            `json:"from,omitempty"`
	To         string            `json:"to,omitempty"`
	Player     arena.PlayerID    `json:"player,omitempty"`
	Team       string            `json:"team,omitempty"`
	Settlement *arena.Settlement `json:"settlement,omitempty"`
}

// MatchJournal records engine events to compressed JSONL. Observer callbacks only enqueue;
// a background goroutine does the file I/O, so arenas never wait on disk.
type MatchJournal struct {
	arena.BaseObserver

	w   *JSONLZstdWriter
	log *stdlog.Logger
	now func() time.Time

	mu      sync.RWMutex
	ch      chan JournalEntry
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

func NewMatchJournal(dir string, logger *stdlog.Logger) *MatchJournal {
	if logger == nil {
		logger = stdlog.Default()
	}
	j := &MatchJournal{
		w:   NewJSONLZstdWriter(dir, journalPrefix),
		log: logger,
		now: time.Now,
		ch:  make(chan JournalEntry, 8192),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for e := range j.ch {
			if err := j.w.Write(e); err != nil {
				j.log.Printf("journal write: %v", err)
			}
		}
	}()
	return j
}

// Close drains the queue and closes the current file.
func (j *MatchJournal) Close() error {
	var err error
	j.once.Do(func() {
		j.mu.Lock()
		j.closed.Store(true)
		close(j.ch)
		j.mu.Unlock()
		j.wg.Wait()
		err = j.w.Close()
	})
	return err
}

func (j *MatchJournal) Dropped() uint64 { return j.dropped.Load() }

func (j *MatchJournal) enqueue(e JournalEntry) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed.Load() {
		return
	}
	e.Time = j.now().UTC()
	select {
	case j.ch <- e:
	default:
		j.dropped.Add(1)
	}
}

func (j *MatchJournal) PhaseChanged(key string, from, to arena.Phase) {
	j.enqueue(JournalEntry{Kind: KindPhase, Arena: key, From: from.String(), To: to.String()})
}

func (j *MatchJournal) Eliminated(key, matchID string, p arena.PlayerID, team string) {
	j.enqueue(JournalEntry{Kind: KindEliminated, Arena: key, MatchID: matchID, Player: p, Team: team})
}

func (j *MatchJournal) TeamEliminated(key, matchID, team string) {
	j.enqueue(JournalEntry{Kind: KindTeamEliminated, Arena: key, MatchID: matchID, Team: team})
}

func (j *MatchJournal) Won(key, matchID string, p arena.PlayerID, team string) {
	j.enqueue(JournalEntry{Kind: KindWon, Arena: key, MatchID: matchID, Player: p, Team: team})
}

func (j *MatchJournal) Draw(key, matchID string) {
	j.enqueue(JournalEntry{Kind: KindDraw, Arena: key, MatchID: matchID})
}

func (j *MatchJournal) Settled(key string, s arena.Settlement) {
	j.enqueue(JournalEntry{Kind: KindSettled, Arena: key, MatchID: s.MatchID, Settlement: &s})
}

// JournalFiles lists journal files under dir, oldest first.
func JournalFiles(dir string) ([]string, error) {
	return Files(filepath.Clean(dir), journalPrefix)
}

// ReadJournal calls fn for every entry of one journal file.
func ReadJournal(path string, fn func(JournalEntry) error) error {
	return ReadJSONL(path, func(line []byte) error {
		var e JournalEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		return fn(e)
	})
}
