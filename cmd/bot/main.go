package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/protocol"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name      = flag.String("name", "bot", "player name")
		arenaKey  = flag.String("arena", "classic", "arena to join")
		team      = flag.String("team", "", "team to join (team arenas)")
		floorY    = flag.Int("floor_y", 64, "y of the floor to dig")
		radius    = flag.Int("radius", 4, "dig within this many blocks of the origin")
		fallAfter = flag.Int("fall_after", 0, "report a fall after this many digs (0: never)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 16},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	b := &bot{
		conn:      conn,
		log:       logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		floorY:    *floorY,
		radius:    *radius,
		fallAfter: *fallAfter,
	}

	msgs := make(chan []byte, 16)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- msg
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	dig := time.NewTicker(400 * time.Millisecond)
	defer dig.Stop()

	for {
		select {
		case <-stop:
			_ = conn.WriteJSON(b.act(protocol.ActQuit))
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			b.handle(msg, *arenaKey, *team)
		case <-dig.C:
			b.tick()
		}
	}
}

type bot struct {
	conn *websocket.Conn
	log  *log.Logger
	rng  *rand.Rand

	floorY    int
	radius    int
	fallAfter int

	seq     int
	playing bool
	digs    int
}

func (b *bot) act(action string) protocol.ActMsg {
	b.seq++
	return protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Ref:             fmt.Sprintf("R%d", b.seq),
		Action:          action,
	}
}

func (b *bot) handle(msg []byte, arenaKey, team string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		b.log.Printf("WELCOME player_id=%s tick_rate=%d arenas=%d", w.PlayerID, w.TickRateHz, len(w.Arenas))
		join := b.act(protocol.ActJoin)
		join.Arena = arenaKey
		join.Team = team
		_ = b.conn.WriteJSON(join)

	case protocol.TypeResult:
		var r protocol.ResultMsg
		if err := json.Unmarshal(msg, &r); err != nil {
			return
		}
		if !r.OK {
			b.log.Printf("RESULT %s %s: %s", r.Ref, r.Code, r.Message)
		}

	case protocol.TypeEvent:
		var ev protocol.EventMsg
		if err := json.Unmarshal(msg, &ev); err != nil {
			return
		}
		b.log.Printf("EVENT %s %s", ev.Key, ev.Text)
		switch ev.Key {
		case arena.MsgGameStarted:
			b.playing = true
			b.digs = 0
		case arena.MsgPlayerWon, arena.MsgDraw, arena.MsgArenaDisabled:
			b.playing = false
		}
	}
}

// tick digs one random floor block while a match is running, and reports a fall once
// the configured number of digs is reached.
func (b *bot) tick() {
	if !b.playing {
		return
	}
	if b.fallAfter > 0 && b.digs >= b.fallAfter {
		mv := b.act(protocol.ActMove)
		mv.Pos = &[3]float64{0, 0, 0}
		_ = b.conn.WriteJSON(mv)
		b.playing = false
		return
	}
	r := b.radius
	if r < 0 {
		r = 0
	}
	brk := b.act(protocol.ActBreak)
	brk.Block = &[3]int{b.rng.Intn(2*r+1) - r, b.floorY, b.rng.Intn(2*r+1) - r}
	_ = b.conn.WriteJSON(brk)
	b.digs++
}
