package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/observerproto"
)

type Options struct {
	// Views lists every arena; called from PublishState and the bootstrap handler, never
	// from inside an observer callback.
	Views      func() []arena.View
	Tick       func() uint64
	TickRateHz int
	Logger     *log.Logger
}

// Server streams arena state and engine events to read-only spectators (dashboards,
// casters). It is an arena.Observer: callbacks only encode and enqueue, so arenas never wait
// on a slow socket.
type Server struct {
	o   Options
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu   sync.RWMutex
	subs map[string]*subscriber

	dropped atomic.Uint64
}

var _ arena.Observer = (*Server)(nil)

type subscriber struct {
	out    chan []byte
	arenas map[string]bool
	every  uint64
	last   uint64
}

func (s *subscriber) wants(key string) bool {
	return len(s.arenas) == 0 || s.arenas[key]
}

type Stats struct {
	Subscribers int
	Dropped     uint64
}

func NewServer(o Options) *Server {
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.Tick == nil {
		o.Tick = func() uint64 { return 0 }
	}
	if o.Views == nil {
		o.Views = func() []arena.View { return nil }
	}
	return &Server{
		o:   o,
		log: o.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: map[string]*subscriber{},
	}
}

func (s *Server) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Subscribers: len(s.subs), Dropped: s.dropped.Load()}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Tick:            s.o.Tick(),
			TickRateHz:      s.o.TickRateHz,
			Arenas:          s.o.Views(),
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		out := make(chan []byte, 256)
		s.subscribe(sid, out, sub)
		defer s.unsubscribe(sid)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				s.subscribe(sid, out, sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

// subscribe registers or updates a session. STATE frames default to once per second.
func (s *Server) subscribe(sid string, out chan []byte, msg observerproto.SubscribeMsg) {
	every := msg.StateEveryTicks
	if every <= 0 {
		every = s.o.TickRateHz
	}
	if every <= 0 {
		every = 1
	}
	var filter map[string]bool
	if len(msg.Arenas) > 0 {
		filter = make(map[string]bool, len(msg.Arenas))
		for _, k := range msg.Arenas {
			filter[k] = true
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sid] = &subscriber{out: out, arenas: filter, every: uint64(every)}
}

func (s *Server) unsubscribe(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sid)
}

// PublishState sends a STATE frame to every subscriber whose interval has elapsed. It is
// meant to run once per tick on the scheduler. Views are collected without holding s.mu,
// since arenas call back into the observer methods while holding their own locks.
func (s *Server) PublishState() {
	tick := s.o.Tick()
	s.mu.Lock()
	due := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.last != 0 && tick-sub.last < sub.every {
			continue
		}
		sub.last = tick
		due = append(due, &subscriber{out: sub.out, arenas: sub.arenas})
	}
	s.mu.Unlock()
	if len(due) == 0 {
		return
	}

	views := s.o.Views()
	for _, sub := range due {
		msg := observerproto.StateMsg{
			Type:            observerproto.TypeState,
			ProtocolVersion: observerproto.Version,
			Tick:            tick,
			Arenas:          make([]arena.View, 0, len(views)),
		}
		for _, v := range views {
			if sub.wants(v.Key) {
				msg.Arenas = append(msg.Arenas, v)
			}
		}
		b, err := json.Marshal(msg)
		if err != nil {
			s.log.Printf("observer state: %v", err)
			return
		}
		s.send(sub.out, b)
	}
}

func (s *Server) publish(m observerproto.FeedMsg) {
	m.Type = observerproto.TypeFeed
	m.ProtocolVersion = observerproto.Version
	m.Tick = s.o.Tick()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.subs) == 0 {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		s.log.Printf("observer feed: %v", err)
		return
	}
	for _, sub := range s.subs {
		if sub.wants(m.Arena) {
			s.send(sub.out, b)
		}
	}
}

// send enqueues b, dropping the oldest queued frame when the subscriber is behind.
func (s *Server) send(out chan []byte, b []byte) {
	select {
	case out <- b:
		return
	default:
	}
	select {
	case <-out:
		s.dropped.Add(1)
	default:
	}
	select {
	case out <- b:
	default:
		s.dropped.Add(1)
	}
}

func (s *Server) PhaseChanged(key string, from, to arena.Phase) {
	s.publish(observerproto.FeedMsg{Kind: observerproto.KindPhase, Arena: key, From: from.String(), To: to.String()})
}

func (s *Server) Eliminated(key, matchID string, p arena.PlayerID, team string) {
	s.publish(observerproto.FeedMsg{Kind: observerproto.KindEliminated, Arena: key, MatchID: matchID, Player: p, Team: team})
}

func (s *Server) TeamEliminated(key, matchID, team string) {
	s.publish(observerproto.FeedMsg{Kind: observerproto.KindTeamEliminated, Arena: key, MatchID: matchID, Team: team})
}

func (s *Server) Won(key, matchID string, p arena.PlayerID, team string) {
	s.publish(observerproto.FeedMsg{Kind: observerproto.KindWon, Arena: key, MatchID: matchID, Player: p, Team: team})
}

func (s *Server) Draw(key, matchID string) {
	s.publish(observerproto.FeedMsg{Kind: observerproto.KindDraw, Arena: key, MatchID: matchID})
}

func (s *Server) Settled(key string, st arena.Settlement) {
	s.publish(observerproto.FeedMsg{Kind: observerproto.KindSettled, Arena: key, MatchID: st.MatchID, Settlement: &st})
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
