package ws

import (
	"encoding/json"
	"io"
	"log"
	"testing"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/messages"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/protocol"
)

func TestSendLatest_DropsOldest(t *testing.T) {
	ch := make(chan []byte, 2)
	if sendLatest(ch, []byte("a")) || sendLatest(ch, []byte("b")) {
		t.Fatalf("no drop expected while there is room")
	}
	if !sendLatest(ch, []byte("c")) {
		t.Fatalf("full queue should report a drop")
	}
	if got := string(<-ch) + string(<-ch); got != "bc" {
		t.Fatalf("queue=%q want bc", got)
	}
}

func TestHub_BroadcastRendersPerRecipient(t *testing.T) {
	h := NewHub(messages.Default(), func() uint64 { return 7 }, log.New(io.Discard, "", 0))
	alice := make(chan []byte, 4)
	bob := make(chan []byte, 4)
	h.Attach("alice", alice)
	h.Attach("bob", bob)

	h.Broadcast(arena.Audience{ArenaKey: "classic", ArenaName: "Classic", Players: []arena.PlayerID{"alice", "bob", "offline"}},
		arena.MsgPlayerQuit, map[string]string{"player": "carol"})

	for name, ch := range map[string]chan []byte{"alice": alice, "bob": bob} {
		var ev protocol.EventMsg
		if err := json.Unmarshal(<-ch, &ev); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if ev.Type != protocol.TypeEvent || ev.Tick != 7 || ev.Arena != "classic" || ev.Text != "carol left Classic" {
			t.Fatalf("%s got %+v", name, ev)
		}
	}
	if st := h.Stats(); st.Connected != 2 || st.Sent != 2 || st.Dropped != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestHub_PresentAndTell(t *testing.T) {
	h := NewHub(nil, nil, nil)
	out := make(chan []byte, 4)
	h.Attach("alice", out)

	h.Present([]arena.PlayerID{"alice"}, arena.Presentation{Kind: arena.PresentActionBar, Key: arena.MsgCountdown, Subs: map[string]string{"seconds": "3"}, ArenaKey: "classic"})
	h.Tell("alice", arena.MsgBetWon, map[string]string{"amount": "30", "arena": "Classic"})

	var ev protocol.EventMsg
	_ = json.Unmarshal(<-out, &ev)
	if ev.Display != "ACTIONBAR" || ev.Text != "3..." {
		t.Fatalf("presentation=%+v", ev)
	}
	_ = json.Unmarshal(<-out, &ev)
	if ev.Display != "" || ev.Text != "You won 30 in Classic!" {
		t.Fatalf("tell=%+v", ev)
	}
}

func TestHub_DetachIgnoresStaleQueue(t *testing.T) {
	h := NewHub(nil, nil, nil)
	old := make(chan []byte, 1)
	cur := make(chan []byte, 1)
	h.Attach("alice", old)
	h.Attach("alice", cur)
	h.Detach("alice", old)
	if !h.Connected("alice") {
		t.Fatalf("stale detach removed the live connection")
	}
	h.Detach("alice", cur)
	if h.Connected("alice") || len(h.Players()) != 0 {
		t.Fatalf("detach failed")
	}
	if h.Send("alice", struct{}{}) {
		t.Fatalf("send to a detached player should report false")
	}
}

func TestHub_SetCatalog(t *testing.T) {
	h := NewHub(nil, nil, log.New(io.Discard, "", 0))
	out := make(chan []byte, 4)
	h.Attach("alice", out)

	c, err := messages.Parse([]byte(`BET_WON: "+{amount}"`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	h.SetCatalog(c)
	h.SetCatalog(nil)
	h.Tell("alice", arena.MsgBetWon, map[string]string{"amount": "30"})

	var ev protocol.EventMsg
	if err := json.Unmarshal(<-out, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Text != "+30" {
		t.Fatalf("text=%q", ev.Text)
	}
}
