package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/altbit/internal/sim"
)

type fileConfig struct {
	Messages          int     `toml:"messages"`
	MessageInterval   string  `toml:"message_interval"`
	LossProb          float64 `toml:"loss"`
	CorruptProb       float64 `toml:"corrupt"`
	MinDelay          string  `toml:"min_delay"`
	MaxDelay          string  `toml:"max_delay"`
	RetransmitTimeout string  `toml:"retransmit_timeout"`
	PayloadLen        int     `toml:"payload_len"`
	Seed              int64   `toml:"seed"`
	MaxTime           string  `toml:"max_time"`
}

func loadScenario(path string) (sim.Config, error) {
	cfg := sim.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return sim.Config{}, fmt.Errorf("load scenario: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return sim.Config{}, fmt.Errorf("load scenario: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("messages") {
		cfg.Messages = raw.Messages
	}
	if meta.IsDefined("loss") {
		cfg.LossProb = raw.LossProb
	}
	if meta.IsDefined("corrupt") {
		cfg.CorruptProb = raw.CorruptProb
	}
	if meta.IsDefined("payload_len") {
		cfg.PayloadLen = raw.PayloadLen
	}
	if meta.IsDefined("seed") {
		cfg.Seed = raw.Seed
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"message_interval", raw.MessageInterval, &cfg.MessageInterval},
		{"min_delay", raw.MinDelay, &cfg.MinDelay},
		{"max_delay", raw.MaxDelay, &cfg.MaxDelay},
		{"retransmit_timeout", raw.RetransmitTimeout, &cfg.RetransmitTimeout},
		{"max_time", raw.MaxTime, &cfg.MaxTime},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return sim.Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return sim.Config{}, err
	}
	return cfg, nil
}
