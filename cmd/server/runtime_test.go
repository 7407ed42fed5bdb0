package main

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/config"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/messages"
)

const testArenas = `
arenas:
  - key: classic
    max_players: 4
    lobby: {world: spleef, x: 0, y: 80, z: 0}
    spawn: {world: spleef, x: 0, y: 65, z: 0}
    region:
      min: [-2, 60, -2]
      max: [2, 64, 2]
      floors:
        - y: 64
`

func testRuntime(t *testing.T, dataDir string) *serverRuntime {
	t.Helper()
	arenas, err := config.ParseArenas([]byte(testArenas))
	if err != nil {
		t.Fatalf("ParseArenas: %v", err)
	}
	srv := config.ServerDefaults()
	srv.DataDir = dataDir
	srv.Journal = false
	rt, err := newRuntime(runtimeConfig{
		Server:    srv,
		Arenas:    arenas,
		Catalog:   messages.Default(),
		DisableDB: true,
		Logger:    log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func TestRuntime_CapturesThenAdopts(t *testing.T) {
	dir := t.TempDir()

	rt := testRuntime(t, dir)
	if _, ok := rt.grids.Get("classic"); !ok {
		t.Fatalf("region grid not registered")
	}
	if _, ok := rt.regen.Latest("classic"); !ok {
		t.Fatalf("initial snapshot not captured")
	}

	// A restart finds the snapshot on disk and restores from it.
	rt2 := testRuntime(t, dir)
	a, err := rt2.mgr.Get("classic")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for a.Phase() != arena.PhaseWaiting {
		if time.Now().After(deadline) {
			t.Fatalf("arena stuck in %s", a.Phase())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRuntime_Routes(t *testing.T) {
	rt := testRuntime(t, t.TempDir())
	ts := httptest.NewServer(rt.handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"spleefx_ws_clients 0", "spleefx_scheduler_tasks"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(string(body), "spleefx_statsdb_queue_depth") {
		t.Fatalf("statsdb gauges exported without a db")
	}

	// Plain HTTP on the socket path is refused by the upgrader.
	resp, err = http.Get(ts.URL + "/v1/ws")
	if err != nil {
		t.Fatalf("ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("ws without upgrade status=%d", resp.StatusCode)
	}
}

func TestExpand(t *testing.T) {
	got := expand("give {player} diamond {place}", map[string]string{"player": "alice", "place": "1"})
	if got != "give alice diamond 1" {
		t.Fatalf("expand=%q", got)
	}
	if expand("say hi", nil) != "say hi" {
		t.Fatalf("no vars should be identity")
	}
}
