package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/persistence/snapshot"
)

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	arenaKey := fs.String("arena", "", "arena key; picks its newest snapshot")
	path := fs.String("path", "", "snapshot file (overrides -arena)")
	full := fs.Bool("full", false, "decode the region body too")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		if strings.TrimSpace(*arenaKey) == "" {
			fmt.Fprintln(os.Stderr, "missing -arena or -path")
			os.Exit(2)
		}
		p = snapshot.LatestPath(filepath.Join(*dataDir, "snapshots", *arenaKey))
		if p == "" {
			fmt.Fprintln(os.Stderr, "no snapshot stored for", *arenaKey)
			os.Exit(2)
		}
	}

	if !*full {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d arena=%s tick=%d file=%s\n", h.Version, h.ArenaKey, h.Tick, p)
		return
	}

	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	sx, sy, sz := snap.Size()
	fmt.Printf("snapshot v%d arena=%s tick=%d min=%v max=%v size=%dx%dx%d blocks=%d packed=%dB\n",
		snap.Header.Version, snap.Header.ArenaKey, snap.Header.Tick, snap.Min, snap.Max, sx, sy, sz, snap.Count, len(snap.Blocks))
}
