package main

import (
	"fmt"
	"os"
)

const usage = `usage: admin <command> [flags]

server commands (talk to a running server over the loopback admin API):
  arenas                              list arenas
  arena -key K                        show one arena
  enable|disable|start -key K         toggle or force-start an arena
  capture|regenerate -key K           snapshot or restore an arena region
  remove -key K                       delete an arena
  player -id P                        show a player's session and balance
  deposit -id P -amount N             credit a player's bet balance

offline commands (read the data dir directly):
  snapshot -arena K | -path F         describe a stored region snapshot
  db top|player|balances              query the statistics database`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	args := os.Args[2:]
	switch cmd := os.Args[1]; cmd {
	case "arenas":
		arenasCmd(args)
	case "arena", "enable", "disable", "start", "capture", "regenerate", "remove":
		arenaCmd(cmd, args)
	case "player":
		playerCmd(args)
	case "deposit":
		depositCmd(args)
	case "snapshot":
		snapshotCmd(args)
	case "db":
		dbCmd(args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}
