package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// NodeConfig describes one UDP endpoint and its admin API.
type NodeConfig struct {
	Name              string   `toml:"name"`
	Role              string   `toml:"role"`
	Listen            string   `toml:"listen"`
	Peer              string   `toml:"peer"`
	RetransmitTimeout string   `toml:"retransmit_timeout"`
	MaxPayloadBytes   int      `toml:"max_payload_bytes"`
	AdminAddr         string   `toml:"admin_addr"`
	CorsOrigins       []string `toml:"cors_origins"`
}

func LoadNodeConfig(path string) (NodeConfig, error) {
	var cfg NodeConfig
	if err := loadToml(path, &cfg); err != nil {
		return NodeConfig{}, err
	}
	applyNodeDefaults(&cfg)
	if err := ValidateNodeConfig(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

func applyNodeDefaults(cfg *NodeConfig) {
	cfg.Role = strings.ToLower(strings.TrimSpace(cfg.Role))
	if cfg.Name == "" {
		cfg.Name = "altnode-" + cfg.Role
	}
	if cfg.RetransmitTimeout == "" {
		cfg.RetransmitTimeout = "200ms"
	}
	if cfg.MaxPayloadBytes == 0 {
		cfg.MaxPayloadBytes = 1024
	}
	if cfg.AdminAddr == "" {
		switch cfg.Role {
		case RoleSender:
			cfg.AdminAddr = "127.0.0.1:7101"
		case RoleReceiver:
			cfg.AdminAddr = "127.0.0.1:7102"
		}
	}
}

// Timeout returns the parsed retransmission interval.
func (c NodeConfig) Timeout() time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(c.RetransmitTimeout))
	return d
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateNodeConfig(cfg NodeConfig) error {
	if cfg.Role != RoleSender && cfg.Role != RoleReceiver {
		return fmt.Errorf("node config role must be %q or %q, got %q", RoleSender, RoleReceiver, cfg.Role)
	}
	if _, err := net.ResolveUDPAddr("udp", strings.TrimSpace(cfg.Listen)); err != nil || strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("node config listen invalid: %q", cfg.Listen)
	}
	// A receiver without a peer replies to whoever last sent it data.
	peer := strings.TrimSpace(cfg.Peer)
	if peer == "" && cfg.Role == RoleSender {
		return fmt.Errorf("node config sender requires peer")
	}
	if peer != "" {
		if _, err := net.ResolveUDPAddr("udp", peer); err != nil {
			return fmt.Errorf("node config peer invalid: %q", cfg.Peer)
		}
	}
	d, err := time.ParseDuration(strings.TrimSpace(cfg.RetransmitTimeout))
	if err != nil {
		return fmt.Errorf("node config retransmit_timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("node config retransmit_timeout must be positive")
	}
	if cfg.MaxPayloadBytes < 0 || cfg.MaxPayloadBytes > 0xFFFF {
		return fmt.Errorf("node config max_payload_bytes out of range: %d", cfg.MaxPayloadBytes)
	}
	if strings.TrimSpace(cfg.AdminAddr) == "" {
		return fmt.Errorf("node config missing admin_addr")
	}
	return nil
}
