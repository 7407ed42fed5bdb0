package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/protocol"
)

// Bank is the balance side of the statistics store.
type Bank interface {
	BetBalance(ctx context.Context, p arena.PlayerID) (decimal.Decimal, error)
	Deposit(ctx context.Context, p arena.PlayerID, amount decimal.Decimal) (decimal.Decimal, error)
}

// Gauge is one extra metric line source; labels are rendered as given.
type Gauge struct {
	Name   string
	Help   string
	Type   string
	Labels string
	Value  func() float64
}

type Options struct {
	Manager *arena.Manager
	Bank    Bank
	Tick    func() uint64
	Gauges  []Gauge
	// OnRemove runs after an arena is deleted, e.g. to drop its region grid.
	OnRemove func(key string)
	Logger   *log.Logger
}

type Server struct {
	o   Options
	log *log.Logger
}

func NewServer(o Options) *Server {
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.Tick == nil {
		o.Tick = func() uint64 { return 0 }
	}
	return &Server{o: o, log: o.Logger}
}

// Routes mounts health, metrics and the loopback-only admin API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	r.Get("/metrics", s.handleMetrics)

	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(loopbackOnly)
		r.Get("/arenas", s.handleList)
		r.Route("/arenas/{key}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleRemove)
			r.Post("/enable", s.handleEnable(true))
			r.Post("/disable", s.handleEnable(false))
			r.Post("/start", s.handleStart)
			r.Post("/capture", s.handleCapture)
			r.Post("/regenerate", s.handleRegenerate)
		})
		r.Get("/players/{id}", s.handlePlayer)
		r.Post("/players/{id}/deposit", s.handleDeposit)
	})
	return r
}

func (s *Server) handleList(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{"tick": s.o.Tick(), "arenas": s.o.Manager.List()})
}

func (s *Server) handleGet(rw http.ResponseWriter, r *http.Request) {
	a, err := s.o.Manager.Get(chi.URLParam(r, "key"))
	if err != nil {
		writeErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"arena": a.View(), "placements": a.Placements()})
}

func (s *Server) handleRemove(rw http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.o.Manager.Remove(key); err != nil {
		writeErr(rw, err)
		return
	}
	if s.o.OnRemove != nil {
		s.o.OnRemove(key)
	}
	s.log.Printf("arena %s removed via admin", key)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleEnable(enabled bool) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if err := s.o.Manager.SetEnabled(key, enabled); err != nil {
			writeErr(rw, err)
			return
		}
		v, _ := s.o.Manager.Snapshot(key)
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "phase": v.Phase})
	}
}

func (s *Server) handleStart(rw http.ResponseWriter, r *http.Request) {
	if err := s.o.Manager.Start(chi.URLParam(r, "key")); err != nil {
		writeErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCapture(rw http.ResponseWriter, r *http.Request) {
	ref, err := s.o.Manager.Capture(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "snapshot": ref})
}

func (s *Server) handleRegenerate(rw http.ResponseWriter, r *http.Request) {
	if err := s.o.Manager.Regenerate(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *Server) handlePlayer(rw http.ResponseWriter, r *http.Request) {
	p := arena.PlayerID(chi.URLParam(r, "id"))
	sess := s.o.Manager.Sessions().Get(p)
	resp := map[string]any{
		"player":    p,
		"arena":     sess.ArenaKey,
		"state":     sess.State.String(),
		"abilities": sess.Abilities,
	}
	if s.o.Bank != nil {
		bal, err := s.o.Bank.BetBalance(r.Context(), p)
		if err != nil {
			writeErr(rw, fmt.Errorf("%w: %v", arena.ErrStatisticsUnavailable, err))
			return
		}
		resp["balance"] = bal
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleDeposit(rw http.ResponseWriter, r *http.Request) {
	if s.o.Bank == nil {
		writeErr(rw, arena.ErrStatisticsUnavailable)
		return
	}
	var body struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 1<<12)).Decode(&body); err != nil {
		writeJSON(rw, http.StatusBadRequest, errorBody(protocol.ErrBadRequest, err.Error()))
		return
	}
	if !body.Amount.IsPositive() {
		writeJSON(rw, http.StatusBadRequest, errorBody(protocol.ErrBadRequest, "amount must be positive"))
		return
	}
	p := arena.PlayerID(chi.URLParam(r, "id"))
	bal, err := s.o.Bank.Deposit(r.Context(), p, body.Amount)
	if err != nil {
		writeErr(rw, fmt.Errorf("%w: %v", arena.ErrStatisticsUnavailable, err))
		return
	}
	s.log.Printf("deposit %s to %s, balance %s", body.Amount, p, bal)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "balance": bal})
}

func (s *Server) handleMetrics(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP spleefx_tick Current scheduler tick.\n")
	fmt.Fprintf(rw, "# TYPE spleefx_tick gauge\n")
	fmt.Fprintf(rw, "spleefx_tick %d\n", s.o.Tick())

	views := s.o.Manager.List()

	fmt.Fprintf(rw, "# HELP spleefx_arena_phase Current arena phase (1 for the active phase).\n")
	fmt.Fprintf(rw, "# TYPE spleefx_arena_phase gauge\n")
	for _, v := range views {
		fmt.Fprintf(rw, "spleefx_arena_phase{arena=%q,phase=%q} 1\n", v.Key, v.Phase.String())
	}

	fmt.Fprintf(rw, "# HELP spleefx_arena_players Participants in the arena.\n")
	fmt.Fprintf(rw, "# TYPE spleefx_arena_players gauge\n")
	for _, v := range views {
		fmt.Fprintf(rw, "spleefx_arena_players{arena=%q,state=%q} %d\n", v.Key, "joined", v.Players)
		fmt.Fprintf(rw, "spleefx_arena_players{arena=%q,state=%q} %d\n", v.Key, "alive", v.Alive)
		fmt.Fprintf(rw, "spleefx_arena_players{arena=%q,state=%q} %d\n", v.Key, "spectating", v.Spectators)
	}

	fmt.Fprintf(rw, "# HELP spleefx_arena_pool Bet money currently held in escrow.\n")
	fmt.Fprintf(rw, "# TYPE spleefx_arena_pool gauge\n")
	for _, v := range views {
		fmt.Fprintf(rw, "spleefx_arena_pool{arena=%q} %s\n", v.Key, v.Pool)
	}

	for _, g := range s.o.Gauges {
		typ := g.Type
		if typ == "" {
			typ = "gauge"
		}
		fmt.Fprintf(rw, "# HELP %s %s\n", g.Name, g.Help)
		fmt.Fprintf(rw, "# TYPE %s %s\n", g.Name, typ)
		if g.Labels != "" {
			fmt.Fprintf(rw, "%s{%s} %g\n", g.Name, g.Labels, g.Value())
		} else {
			fmt.Fprintf(rw, "%s %g\n", g.Name, g.Value())
		}
	}
}

type errorResp struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

func errorBody(code, msg string) errorResp {
	return errorResp{OK: false, Code: code, Error: msg}
}

func writeErr(rw http.ResponseWriter, err error) {
	code := protocol.CodeFor(err)
	writeJSON(rw, statusFor(code), errorBody(code, err.Error()))
}

func statusFor(code string) int {
	switch code {
	case protocol.ErrArenaNotFound, protocol.ErrNotInArena:
		return http.StatusNotFound
	case protocol.ErrRegenBlocked, protocol.ErrArenaExists, protocol.ErrNotJoinable:
		return http.StatusConflict
	case protocol.ErrRegenUnavailable, protocol.ErrStatsUnavailable:
		return http.StatusServiceUnavailable
	case protocol.ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
