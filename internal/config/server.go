package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/HyperCubeMC/SpleefX-sub000/internal/arena"
)

// Server holds host-level settings from server.yaml.
type Server struct {
	TickRateHz int    `yaml:"tick_rate_hz"`
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`
	// StatsDB defaults to <data_dir>/stats.sqlite when empty.
	StatsDB   string `yaml:"stats_db"`
	Messages  string `yaml:"messages"`
	Extension string `yaml:"extension"`
	Journal   bool   `yaml:"journal"`
	// MaxQueue bounds each connection's outbound event queue.
	MaxQueue int `yaml:"max_queue"`
	// SpectateMinAlive is the fallback for arenas that do not set their own. It counts the
	// participants alive just before an elimination.
	SpectateMinAlive int `yaml:"spectate_min_alive"`
}

func ServerDefaults() Server {
	return Server{
		TickRateHz: 20,
		ListenAddr: ":8080",
		DataDir:    "./data",
		Extension:  "spleef",
		Journal:    true,
		MaxQueue:   64,

		SpectateMinAlive: arena.DefaultSpectateMinAlive,
	}
}

// LoadServer reads server.yaml over the defaults. A missing file is not an error.
func LoadServer(path string) (Server, error) {
	s := ServerDefaults()
	if strings.TrimSpace(path) == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("server.yaml: %w", err)
	}
	if s.TickRateHz <= 0 {
		return s, fmt.Errorf("server.yaml: tick_rate_hz must be positive, got %d", s.TickRateHz)
	}
	if s.MaxQueue <= 0 {
		s.MaxQueue = 64
	}
	if s.SpectateMinAlive <= 0 {
		s.SpectateMinAlive = arena.DefaultSpectateMinAlive
	}
	return s, nil
}

// ApplyDefaults fills arena settings the server provides a fallback for.
func (s Server) ApplyDefaults(a *ArenaSpec) {
	if a.SpectateMinAlive <= 0 {
		a.SpectateMinAlive = s.SpectateMinAlive
	}
}
