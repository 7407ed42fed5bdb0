package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/config"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/messages"
	persistlog "github.com/HyperCubeMC/SpleefX-sub000/internal/persistence/log"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/persistence/snapshot"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/persistence/statsdb"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/sim/avatar"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/sim/region"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/sim/ticker"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/transport/admin"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/transport/observer"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/transport/ws"
)

type runtimeConfig struct {
	Server    config.Server
	Arenas    config.ArenasFile
	Catalog   *messages.Catalog
	DisableDB bool
	Logger    *log.Logger
}

// serverRuntime is every long-lived component of one host, wired together.
type serverRuntime struct {
	log *log.Logger

	sched   *ticker.Scheduler
	mgr     *arena.Manager
	hub     *ws.Hub
	avatars *avatar.Registry
	grids   *region.Registry
	regen   *snapshot.Regenerator
	stats   *statsdb.Store
	journal *persistlog.MatchJournal
	watch   *observer.Server

	handler http.Handler
}

func newRuntime(cfg runtimeConfig) (*serverRuntime, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	srv := cfg.Server
	if err := os.MkdirAll(srv.DataDir, 0o755); err != nil {
		return nil, err
	}

	rt := &serverRuntime{
		log:     logger,
		sched:   ticker.New(srv.TickRateHz),
		avatars: avatar.NewRegistry(arena.Location{World: "lobby"}),
		grids:   region.NewRegistry(),
	}
	rt.hub = ws.NewHub(cfg.Catalog, rt.sched.CurrentTick, log.New(logger.Writer(), "[ws] ", logger.Flags()))
	rt.regen = snapshot.NewRegenerator(filepath.Join(srv.DataDir, "snapshots"), rt.grids, rt.sched.CurrentTick, logger)

	deps := arena.Deps{
		Scheduler:   rt.sched,
		Regenerator: rt.regen,
		Messenger:   rt.hub,
		Presenter:   rt.hub,
		Commands:    consoleRunner{log: log.New(logger.Writer(), "[cmd] ", logger.Flags())},
		Players:     rt.avatars,
		Logger:      log.New(logger.Writer(), "[arena] ", logger.Flags()),
		Extension:   srv.Extension,
	}
	if !cfg.DisableDB {
		dbPath := strings.TrimSpace(srv.StatsDB)
		if dbPath == "" {
			dbPath = filepath.Join(srv.DataDir, "stats.sqlite")
		}
		st, err := statsdb.Open(dbPath, log.New(logger.Writer(), "[statsdb] ", logger.Flags()))
		if err != nil {
			return nil, fmt.Errorf("open stats db: %w", err)
		}
		rt.stats = st
		deps.Stats = st
	} else {
		logger.Printf("statistics disabled (-disable_db); arenas with a bet will reject joins")
	}
	rt.watch = observer.NewServer(observer.Options{
		Views:      func() []arena.View { return rt.mgr.List() },
		Tick:       rt.sched.CurrentTick,
		TickRateHz: srv.TickRateHz,
		Logger:     log.New(logger.Writer(), "[observer] ", logger.Flags()),
	})
	deps.Observers = append(deps.Observers, rt.watch)
	rt.sched.Every(1, rt.watch.PublishState)
	if srv.Journal {
		rt.journal = persistlog.NewMatchJournal(filepath.Join(srv.DataDir, "journal"), logger)
		deps.Observers = append(deps.Observers, rt.journal)
	}
	rt.mgr = arena.NewManager(deps)

	for _, spec := range cfg.Arenas.Arenas {
		if err := rt.addArena(srv, spec); err != nil {
			rt.Close()
			return nil, err
		}
	}

	rt.handler = rt.routes(srv)
	return rt, nil
}

// addArena registers one configured arena with its region and regeneration target.
func (rt *serverRuntime) addArena(srv config.Server, spec config.ArenaSpec) error {
	srv.ApplyDefaults(&spec)
	if spec.Region != nil {
		g, err := spec.Region.BuildGrid()
		if err != nil {
			return fmt.Errorf("arena %s: %w", spec.Key, err)
		}
		rt.grids.Put(spec.Key, g)
	}
	a, err := rt.mgr.Create(spec.ToArena())
	if err != nil {
		return err
	}
	if rt.stats != nil {
		stats := rt.stats
		a.RegisterEndTask(arena.EndTask{Phase: arena.EndAfter, Name: "flush-stats", Run: func(arena.Settlement) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := stats.Flush(ctx); err != nil {
					rt.log.Printf("flush stats: %v", err)
				}
			}()
		}})
	}
	if spec.Region == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if ref, ok := rt.regen.Latest(spec.Key); ok {
		a.AdoptSnapshot(ref)
		// The stored snapshot wins over the floors in the config.
		if err := a.Regenerate(ctx); err != nil {
			rt.log.Printf("arena %s: restore %s: %v", spec.Key, ref.Path, err)
		}
		return nil
	}
	if _, err := a.Capture(ctx); err != nil {
		rt.log.Printf("arena %s: initial capture: %v", spec.Key, err)
	}
	return nil
}

func (rt *serverRuntime) routes(srv config.Server) http.Handler {
	adminSrv := admin.NewServer(admin.Options{
		Manager:  rt.mgr,
		Bank:     rt.bank(),
		Tick:     rt.sched.CurrentTick,
		Gauges:   rt.gauges(),
		OnRemove: rt.grids.Delete,
		Logger:   log.New(rt.log.Writer(), "[admin] ", rt.log.Flags()),
	})
	wsSrv := ws.NewServer(ws.Options{
		Manager:    rt.mgr,
		Hub:        rt.hub,
		Avatars:    rt.avatars,
		Grids:      rt.grids,
		TickRateHz: srv.TickRateHz,
		Logger:     log.New(rt.log.Writer(), "[ws] ", rt.log.Flags()),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("/v1/observer/bootstrap", rt.watch.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", rt.watch.WSHandler())
	mux.Handle("/", adminSrv.Routes())
	return mux
}

func (rt *serverRuntime) bank() admin.Bank {
	if rt.stats == nil {
		return nil
	}
	return rt.stats
}

func (rt *serverRuntime) gauges() []admin.Gauge {
	g := []admin.Gauge{
		{Name: "spleefx_ws_clients", Help: "Connected player sockets.", Value: func() float64 { return float64(rt.hub.Stats().Connected) }},
		{Name: "spleefx_ws_events_total", Help: "Event frames queued to players.", Type: "counter", Value: func() float64 { return float64(rt.hub.Stats().Sent) }},
		{Name: "spleefx_ws_dropped_total", Help: "Event frames dropped on full queues.", Type: "counter", Value: func() float64 { return float64(rt.hub.Stats().Dropped) }},
		{Name: "spleefx_observer_subscribers", Help: "Connected spectator streams.", Value: func() float64 { return float64(rt.watch.Stats().Subscribers) }},
		{Name: "spleefx_scheduler_tasks", Help: "Live timer tasks.", Value: func() float64 { return float64(rt.sched.Pending()) }},
	}
	if rt.stats != nil {
		g = append(g,
			admin.Gauge{Name: "spleefx_statsdb_queue_depth", Help: "Queued stat writes.", Value: func() float64 { return float64(rt.stats.Stats().Depth) }},
			admin.Gauge{Name: "spleefx_statsdb_dropped_total", Help: "Stat writes dropped on a full queue.", Type: "counter", Value: func() float64 { return float64(rt.stats.Stats().Dropped) }},
			admin.Gauge{Name: "spleefx_statsdb_spilled_total", Help: "Credits parked while the queue was full.", Type: "counter", Value: func() float64 { return float64(rt.stats.Stats().Spilled) }},
		)
	}
	if rt.journal != nil {
		g = append(g, admin.Gauge{Name: "spleefx_journal_dropped_total", Help: "Journal entries dropped on a full queue.", Type: "counter", Value: func() float64 { return float64(rt.journal.Dropped()) }})
	}
	return g
}

func (rt *serverRuntime) Close() {
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.log.Printf("close journal: %v", err)
		}
	}
	if rt.stats != nil {
		if err := rt.stats.Close(); err != nil {
			rt.log.Printf("close stats db: %v", err)
		}
	}
}
