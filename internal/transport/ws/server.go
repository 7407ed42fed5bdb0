package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/protocol"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/sim/avatar"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/sim/region"
)

type Options struct {
	Manager    *arena.Manager
	Hub        *Hub
	Avatars    *avatar.Registry
	Grids      *region.Registry
	TickRateHz int
	Logger     *log.Logger
}

// Server accepts player connections: HELLO/WELCOME, then ACT frames answered by RESULT.
type Server struct {
	mgr     *arena.Manager
	hub     *Hub
	avatars *avatar.Registry
	grids   *region.Registry
	rate    int
	log     *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu     sync.Mutex
	tokens map[string]arena.PlayerID
}

func NewServer(o Options) *Server {
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return &Server{
		mgr:     o.Manager,
		hub:     o.Hub,
		avatars: o.Avatars,
		grids:   o.Grids,
		rate:    o.TickRateHz,
		log:     o.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		tokens: map[string]arena.PlayerID{},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		player, out := s.handshake(conn)
		if player == "" {
			return
		}
		defer s.leave(player, out)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAct {
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				s.hub.Send(player, result(act.Ref, protocol.ErrProtoBadRequest, "bad protocol_version"))
				continue
			}
			s.hub.Send(player, s.handleAct(ctx, player, act))
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (arena.PlayerID, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return "", nil
	}

	player := playerID(hello.PlayerName)
	if hello.Auth != nil && hello.Auth.ResumeToken != "" {
		if p, ok := s.resume(hello.Auth.ResumeToken); ok {
			player = p
		}
	}
	if player == "" {
		closeWith(conn, websocket.ClosePolicyViolation, "bad player_name")
		return "", nil
	}
	if s.hub.Connected(player) {
		closeWith(conn, websocket.ClosePolicyViolation, "player already connected")
		return "", nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 32
	}
	if maxQ > 256 {
		maxQ = 256
	}
	out := make(chan []byte, maxQ)

	s.avatars.Connect(player, hello.PlayerName)
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       fmt.Sprintf("S%d", s.nextID.Add(1)),
		PlayerID:        string(player),
		ResumeToken:     s.issueToken(player),
		TickRateHz:      s.rate,
		Arenas:          ArenaRefs(s.mgr.List()),
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.avatars.Disconnect(player)
		return "", nil
	}
	s.hub.Attach(player, out)
	s.log.Printf("player %s connected (%s)", player, welcome.SessionID)
	return player, out
}

// leave runs once the connection is gone: the player quits whatever arena it was in.
func (s *Server) leave(p arena.PlayerID, out chan []byte) {
	s.hub.Detach(p, out)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.mgr.Disconnect(ctx, p)
	s.avatars.Disconnect(p)
	s.log.Printf("player %s disconnected", p)
}

func (s *Server) handleAct(ctx context.Context, p arena.PlayerID, act protocol.ActMsg) protocol.ResultMsg {
	switch act.Action {
	case protocol.ActJoin:
		if act.Arena == "" {
			return result(act.Ref, protocol.ErrBadRequest, "missing arena")
		}
		return errResult(act.Ref, s.mgr.Join(ctx, p, act.Arena, act.Team))
	case protocol.ActQuit:
		return errResult(act.Ref, s.mgr.Quit(ctx, p))
	case protocol.ActMove:
		if act.Pos == nil {
			return result(act.Ref, protocol.ErrBadRequest, "missing pos")
		}
		s.avatars.Move(p, arena.Location{X: act.Pos[0], Y: act.Pos[1], Z: act.Pos[2]})
		return result(act.Ref, "", "")
	case protocol.ActBreak:
		if act.Block == nil {
			return result(act.Ref, protocol.ErrBadRequest, "missing block")
		}
		return s.breakBlock(act.Ref, p, region.Pos{X: act.Block[0], Y: act.Block[1], Z: act.Block[2]})
	case protocol.ActList:
		res := result(act.Ref, "", "")
		res.Arenas = ArenaRefs(s.mgr.List())
		return res
	case protocol.ActAbility:
		left, err := s.mgr.UseAbility(p, act.Ability)
		res := errResult(act.Ref, err)
		if err == nil {
			res.Remaining = &left
		}
		return res
	default:
		return result(act.Ref, protocol.ErrBadRequest, "unknown action "+act.Action)
	}
}

// breakBlock lets an in-game player dig the floor of the arena it is playing in.
func (s *Server) breakBlock(ref string, p arena.PlayerID, pos region.Pos) protocol.ResultMsg {
	a, err := s.mgr.ArenaOf(p)
	if err != nil {
		return errResult(ref, err)
	}
	if a.Phase() != arena.PhaseActive || s.mgr.Sessions().Get(p).State != arena.StateInGame {
		return errResult(ref, arena.ErrNotActive)
	}
	g, ok := s.grids.Get(a.Key())
	if !ok {
		return result(ref, protocol.ErrBadRequest, "arena has no region")
	}
	if !g.Break(pos) {
		return result(ref, protocol.ErrBadRequest, "nothing to break")
	}
	return result(ref, "", "")
}

func (s *Server) issueToken(p arena.PlayerID) string {
	tok := "resume_" + uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, owner := range s.tokens {
		if owner == p {
			delete(s.tokens, t)
		}
	}
	s.tokens[tok] = p
	return tok
}

func (s *Server) resume(token string) (arena.PlayerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.tokens[strings.TrimSpace(token)]
	return p, ok
}

// ArenaRefs converts engine views to their wire summary.
func ArenaRefs(views []arena.View) []protocol.ArenaRef {
	out := make([]protocol.ArenaRef, 0, len(views))
	for _, v := range views {
		out = append(out, protocol.ArenaRef{
			Key:      v.Key,
			Name:     v.DisplayName,
			Kind:     string(v.Kind),
			Phase:    v.Phase.String(),
			Players:  v.Players,
			Capacity: v.Capacity,
			Bet:      v.Bet,
		})
	}
	return out
}

// playerID derives a stable id from a display name: lower-cased, limited to [a-z0-9_].
func playerID(name string) arena.PlayerID {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			b.WriteRune(r)
		}
		if b.Len() >= 32 {
			break
		}
	}
	return arena.PlayerID(b.String())
}

func result(ref, code, message string) protocol.ResultMsg {
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		OK:              code == "",
		Code:            code,
		Message:         message,
	}
}

func errResult(ref string, err error) protocol.ResultMsg {
	if err == nil {
		return result(ref, "", "")
	}
	return result(ref, protocol.CodeFor(err), err.Error())
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return fmt.Errorf("write after close: %w", err)
		}
		return err
	}
	return nil
}
