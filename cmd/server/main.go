package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/config"
	"github.com/HyperCubeMC/SpleefX-sub000/internal/messages"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (default: listen_addr from server.yaml)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "", "runtime data directory (default: data_dir from server.yaml)")
		arenasPath = flag.String("arenas", "", "path to arenas.yaml (default: <configs>/arenas.yaml)")
		disableDB  = flag.Bool("disable_db", false, "run without the statistics/balance database")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	srv, err := config.LoadServer(filepath.Join(*configDir, "server.yaml"))
	if err != nil {
		logger.Fatalf("load server config: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		srv.ListenAddr = *addr
	}
	if strings.TrimSpace(*dataDir) != "" {
		srv.DataDir = *dataDir
	}

	ap := strings.TrimSpace(*arenasPath)
	if ap == "" {
		ap = filepath.Join(*configDir, "arenas.yaml")
	}
	arenas, err := config.Load(ap)
	if err != nil {
		logger.Fatalf("load arenas: %v", err)
	}

	catalog := messages.Default()
	messagesPath := strings.TrimSpace(srv.Messages)
	if messagesPath != "" {
		if !filepath.IsAbs(messagesPath) {
			messagesPath = filepath.Join(*configDir, messagesPath)
		}
		catalog, err = messages.Load(messagesPath)
		if err != nil {
			logger.Fatalf("load messages: %v", err)
		}
	}

	rt, err := newRuntime(runtimeConfig{
		Server:    srv,
		Arenas:    arenas,
		Catalog:   catalog,
		DisableDB: *disableDB,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("start: %v", err)
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	httpSrv := &http.Server{
		Addr:              srv.ListenAddr,
		Handler:           rt.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := rt.sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	if messagesPath != "" {
		g.Go(func() error {
			if err := messages.Watch(gctx, messagesPath, logger, rt.hub.SetCatalog); err != nil {
				logger.Printf("messages hot reload disabled: %v", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		logger.Printf("listening on %s (%d arenas, %d Hz)", srv.ListenAddr, len(arenas.Arenas), srv.TickRateHz)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return httpSrv.Shutdown(ctx2)
	})

	if err := g.Wait(); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
