package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	persistlog "github.com/HyperCubeMC/SpleefX-sub000/internal/persistence/log"
)

func main() {
	var (
		dir      = flag.String("dir", "./data/journal", "journal dir containing journal-*.jsonl.zst")
		arenaKey = flag.String("arena", "", "only entries for this arena (optional)")
		kind     = flag.String("kind", "", "only entries of this kind, e.g. SETTLED (optional)")
		summary  = flag.Bool("summary", false, "print per-arena totals instead of entries")
		verify   = flag.Bool("verify", false, "check that every settlement paid out exactly its pool")
	)
	flag.Parse()

	files, err := persistlog.JournalFiles(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", *dir)
		os.Exit(1)
	}

	f := filter{arena: *arenaKey, kind: strings.ToUpper(strings.TrimSpace(*kind))}
	sum := newSummary()
	var (
		problems []string
		settled  int
	)
	enc := json.NewEncoder(os.Stdout)

	for _, path := range files {
		err := persistlog.ReadJournal(path, func(e persistlog.JournalEntry) error {
			if !f.match(e) {
				return nil
			}
			if *verify && e.Kind == persistlog.KindSettled {
				settled++
				if msg := checkSettlement(e); msg != "" {
					problems = append(problems, msg)
				}
			}
			if *summary {
				sum.add(e)
				return nil
			}
			if *verify {
				return nil
			}
			return enc.Encode(e)
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read journal:", err)
			os.Exit(1)
		}
	}

	if *summary {
		sum.write(os.Stdout)
	}
	if *verify {
		for _, p := range problems {
			fmt.Fprintln(os.Stderr, p)
		}
		if len(problems) > 0 {
			os.Exit(1)
		}
		fmt.Printf("verify ok: %d settlements\n", settled)
	}
}

type filter struct {
	arena string
	kind  string
}

func (f filter) match(e persistlog.JournalEntry) bool {
	if f.arena != "" && e.Arena != f.arena {
		return false
	}
	if f.kind != "" && e.Kind != f.kind {
		return false
	}
	return true
}

// checkSettlement returns a problem description when the pool and refund payouts of a
// settlement do not add up to its pool.
func checkSettlement(e persistlog.JournalEntry) string {
	if e.Kind != persistlog.KindSettled || e.Settlement == nil {
		return ""
	}
	s := e.Settlement
	paid := decimal.Zero
	for _, p := range s.Payouts {
		if p.Reason == "pool" || p.Reason == "refund" {
			paid = paid.Add(p.Amount)
		}
	}
	if !paid.Equal(s.Pool) {
		return fmt.Sprintf("%s match %s: paid %s of pool %s", s.ArenaKey, s.MatchID, paid, s.Pool)
	}
	return ""
}

type arenaTotals struct {
	matches int
	draws   int
	pool    decimal.Decimal
	wins    map[string]int
}

type summary struct {
	arenas  map[string]*arenaTotals
	settled int
}

func newSummary() *summary {
	return &summary{arenas: map[string]*arenaTotals{}}
}

func (s *summary) add(e persistlog.JournalEntry) {
	if e.Kind != persistlog.KindSettled || e.Settlement == nil {
		return
	}
	t := s.arenas[e.Arena]
	if t == nil {
		t = &arenaTotals{wins: map[string]int{}}
		s.arenas[e.Arena] = t
	}
	s.settled++
	t.matches++
	t.pool = t.pool.Add(e.Settlement.Pool)
	if e.Settlement.Draw {
		t.draws++
		return
	}
	for _, w := range e.Settlement.Winners {
		t.wins[string(w)]++
	}
}

func (s *summary) write(w io.Writer) {
	keys := make([]string, 0, len(s.arenas))
	for k := range s.arenas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t := s.arenas[k]
		fmt.Fprintf(w, "%s matches=%d draws=%d pool=%s\n", k, t.matches, t.draws, t.pool)

		players := make([]string, 0, len(t.wins))
		for p := range t.wins {
			players = append(players, p)
		}
		sort.Slice(players, func(i, j int) bool {
			if t.wins[players[i]] != t.wins[players[j]] {
				return t.wins[players[i]] > t.wins[players[j]]
			}
			return players[i] < players[j]
		})
		for _, p := range players {
			fmt.Fprintf(w, "  %s wins=%d\n", p, t.wins[p])
		}
	}
}
