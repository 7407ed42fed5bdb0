package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/stats.sqlite)")
	extension := fs.String("extension", "spleef", "extension whose counters to read")
	stat := fs.String("stat", "wins", "counter for top (wins, losses, games_played, ...)")
	player := fs.String("player", "", "player id (player query)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "top"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "stats.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "db:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	var rows []map[string]any
	switch q {
	case "top":
		rows, err = topStats(ctx, db, *extension, *stat, *limit)
	case "player":
		if strings.TrimSpace(*player) == "" {
			fmt.Fprintln(os.Stderr, "missing -player")
			os.Exit(2)
		}
		rows, err = playerStats(ctx, db, *player)
	case "balances":
		rows, err = balances(ctx, db, *limit)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want top|player|balances)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rows)
}

func topStats(ctx context.Context, db *sql.DB, extension, stat string, limit int) ([]map[string]any, error) {
	rs, err := db.QueryContext(ctx,
		`SELECT player, value FROM stats WHERE extension=? AND stat=? ORDER BY value DESC, player ASC LIMIT ?`,
		extension, stat, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	out := []map[string]any{}
	for rs.Next() {
		var p string
		var v int
		if err := rs.Scan(&p, &v); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{"player": p, stat: v})
	}
	return out, rs.Err()
}

func playerStats(ctx context.Context, db *sql.DB, player string) ([]map[string]any, error) {
	rs, err := db.QueryContext(ctx,
		`SELECT extension, stat, value, updated_at FROM stats WHERE player=? ORDER BY extension, stat`,
		player,
	)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	out := []map[string]any{}
	for rs.Next() {
		var ext, stat, updated string
		var v int
		if err := rs.Scan(&ext, &stat, &v, &updated); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{"extension": ext, "stat": stat, "value": v, "updated_at": updated})
	}
	return out, rs.Err()
}

func balances(ctx context.Context, db *sql.DB, limit int) ([]map[string]any, error) {
	rs, err := db.QueryContext(ctx, `SELECT player, amount, updated_at FROM balances ORDER BY player LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	out := []map[string]any{}
	for rs.Next() {
		var p, amount, updated string
		if err := rs.Scan(&p, &amount, &updated); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{"player": p, "amount": amount, "updated_at": updated})
	}
	return out, rs.Err()
}
