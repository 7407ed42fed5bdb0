package messages

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	if err := os.WriteFile(path, []byte(`DRAW: "tie"`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *Catalog, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, log.New(io.Discard, "", 0), func(c *Catalog) { got <- c })
	}()

	// The watcher registers asynchronously, so keep rewriting until a reload lands.
	deadline := time.After(5 * time.Second)
	for i := 0; ; i++ {
		body := fmt.Sprintf("DRAW: \"no winner %d\"", i)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		select {
		case c := <-got:
			if c.Render(arena.MsgDraw, nil) == "tie" {
				t.Fatalf("reload returned the old template")
			}
			if !c.Has(arena.MsgPlayerWon) {
				t.Fatalf("reloaded catalog lost the defaults")
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch: %v", err)
			}
			return
		case <-deadline:
			t.Fatalf("no reload observed")
		case <-time.After(300 * time.Millisecond):
		}
	}
}
