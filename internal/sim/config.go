package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/altbit/internal/protocol/frame"
)

var ErrInvalidConfig = errors.New("sim: invalid config")

// Config fully determines one simulation run.
type Config struct {
	// Messages is the number of units the application offers.
	Messages int
	// MessageInterval is the mean gap between offers; gaps are uniform on
	// [0, 2*MessageInterval].
	MessageInterval   time.Duration
	LossProb          float64
	CorruptProb       float64
	MinDelay          time.Duration
	MaxDelay          time.Duration
	RetransmitTimeout time.Duration
	PayloadLen        int
	Seed              int64
	// MaxTime bounds virtual time; zero means unbounded.
	MaxTime time.Duration
}

func DefaultConfig() Config {
	return Config{
		Messages:          10,
		MessageInterval:   100 * time.Millisecond,
		LossProb:          0.1,
		CorruptProb:       0.1,
		MinDelay:          1 * time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		RetransmitTimeout: 40 * time.Millisecond,
		PayloadLen:        frame.MaxPayloadLen,
		Seed:              1,
		MaxTime:           time.Hour,
	}
}

func (c Config) Validate() error {
	if c.Messages < 0 {
		return fmt.Errorf("%w: messages must be >= 0", ErrInvalidConfig)
	}
	if c.MessageInterval < 0 {
		return fmt.Errorf("%w: message interval must be >= 0", ErrInvalidConfig)
	}
	if c.LossProb < 0 || c.LossProb >= 1 {
		return fmt.Errorf("%w: loss probability must be in [0,1)", ErrInvalidConfig)
	}
	if c.CorruptProb < 0 || c.CorruptProb >= 1 {
		return fmt.Errorf("%w: corrupt probability must be in [0,1)", ErrInvalidConfig)
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("%w: delay range [%v,%v]", ErrInvalidConfig, c.MinDelay, c.MaxDelay)
	}
	if c.RetransmitTimeout <= 0 {
		return fmt.Errorf("%w: retransmit timeout must be > 0", ErrInvalidConfig)
	}
	if c.PayloadLen < 0 || c.PayloadLen > frame.MaxPayloadLen {
		return fmt.Errorf("%w: payload length must be in [0,%d]", ErrInvalidConfig, frame.MaxPayloadLen)
	}
	if c.MaxTime < 0 {
		return fmt.Errorf("%w: max time must be >= 0", ErrInvalidConfig)
	}
	return nil
}

func (c Config) channel() ChannelConfig {
	return ChannelConfig{
		LossProb:    c.LossProb,
		CorruptProb: c.CorruptProb,
		MinDelay:    c.MinDelay,
		MaxDelay:    c.MaxDelay,
	}
}
