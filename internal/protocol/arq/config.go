package arq

import (
	"time"

	"github.com/danmuck/altbit/internal/protocol/frame"
)

// Config defines endpoint behavior shared by sender and receiver.
type Config struct {
	RetransmitTimeout time.Duration
	Limits            frame.Limits
}

// DefaultConfig returns the fixed 40-unit retransmission interval and the
// default payload bound.
func DefaultConfig() Config {
	return Config{
		RetransmitTimeout: 40 * time.Millisecond,
		Limits:            frame.DefaultLimits(),
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.RetransmitTimeout <= 0 {
		c.RetransmitTimeout = d.RetransmitTimeout
	}
	if c.Limits.MaxPayloadBytes <= 0 {
		c.Limits = d.Limits
	}
	return c
}
