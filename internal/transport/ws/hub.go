package ws

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/messages"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/protocol"
)

// Hub fans rendered engine messages out to connected players. It implements
// arena.Messenger and arena.Presenter and never blocks the caller: a full queue drops its
// oldest frame.
type Hub struct {
	catalog atomic.Pointer[messages.Catalog]
	clock   func() uint64
	log     *log.Logger

	mu      sync.RWMutex
	clients map[arena.PlayerID]chan []byte

	sent    atomic.Uint64
	dropped atomic.Uint64
}

var (
	_ arena.Messenger = (*Hub)(nil)
	_ arena.Presenter = (*Hub)(nil)
)

type HubStats struct {
	Connected int
	Sent      uint64
	Dropped   uint64
}

func NewHub(catalog *messages.Catalog, clock func() uint64, logger *log.Logger) *Hub {
	if catalog == nil {
		catalog = messages.Default()
	}
	if clock == nil {
		clock = func() uint64 { return 0 }
	}
	if logger == nil {
		logger = log.Default()
	}
	h := &Hub{clock: clock, log: logger, clients: map[arena.PlayerID]chan []byte{}}
	h.catalog.Store(catalog)
	return h
}

// SetCatalog swaps the message templates; frames rendered afterwards use c.
func (h *Hub) SetCatalog(c *messages.Catalog) {
	if c != nil {
		h.catalog.Store(c)
	}
}

// Attach routes p's messages to out, replacing any previous connection.
func (h *Hub) Attach(p arena.PlayerID, out chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[p] = out
}

// Detach removes p only if out is still its current queue, so a stale connection closing
// late cannot unhook a newer one.
func (h *Hub) Detach(p arena.PlayerID, out chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[p] == out {
		delete(h.clients, p)
	}
}

func (h *Hub) Connected(p arena.PlayerID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[p]
	return ok
}

// Players returns the connected players in sorted order.
func (h *Hub) Players() []arena.PlayerID {
	h.mu.RLock()
	out := make([]arena.PlayerID, 0, len(h.clients))
	for p := range h.clients {
		out = append(out, p)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return HubStats{Connected: n, Sent: h.sent.Load(), Dropped: h.dropped.Load()}
}

func (h *Hub) Broadcast(to arena.Audience, key string, subs map[string]string) {
	subs = withArena(subs, to.ArenaName)
	h.send(to.Players, to.ArenaKey, key, subs, "")
}

func (h *Hub) Tell(p arena.PlayerID, key string, subs map[string]string) {
	h.send([]arena.PlayerID{p}, "", key, subs, "")
}

func (h *Hub) Present(to []arena.PlayerID, pr arena.Presentation) {
	h.send(to, pr.ArenaKey, pr.Key, pr.Subs, string(pr.Kind))
}

// Send pushes an already-built frame to one player, e.g. a RESULT.
func (h *Hub) Send(p arena.PlayerID, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Printf("marshal frame for %s: %v", p, err)
		return false
	}
	h.mu.RLock()
	out := h.clients[p]
	h.mu.RUnlock()
	if out == nil {
		return false
	}
	h.push(out, b)
	return true
}

func (h *Hub) send(to []arena.PlayerID, arenaKey, key string, subs map[string]string, display string) {
	if len(to) == 0 {
		return
	}
	msg := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Tick:            h.clock(),
		Arena:           arenaKey,
		Key:             key,
		Text:            h.catalog.Load().Render(key, subs),
		Subs:            subs,
		Display:         display,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Printf("marshal %s: %v", key, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range to {
		if out := h.clients[p]; out != nil {
			h.push(out, b)
		}
	}
}

func (h *Hub) push(out chan []byte, b []byte) {
	if sendLatest(out, b) {
		h.dropped.Add(1)
	}
	h.sent.Add(1)
}

// sendLatest enqueues b, evicting the oldest queued frame when full. It reports whether a
// frame was dropped.
func sendLatest(ch chan []byte, b []byte) (dropped bool) {
	select {
	case ch <- b:
		return false
	default:
	}
	select {
	case <-ch:
		dropped = true
	default:
	}
	select {
	case ch <- b:
	default:
		dropped = true
	}
	return dropped
}

func withArena(subs map[string]string, name string) map[string]string {
	if name == "" {
		return subs
	}
	if _, ok := subs["arena"]; ok {
		return subs
	}
	out := make(map[string]string, len(subs)+1)
	for k, v := range subs {
		out[k] = v
	}
	out["arena"] = name
	return out
}
