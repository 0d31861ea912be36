package sim

import (
	"math/rand"
	"time"

	"github.com/danmuck/altbit/internal/protocol/frame"
	"github.com/rs/zerolog"
)

// ChannelConfig is the error and delay model of one direction.
type ChannelConfig struct {
	LossProb    float64
	CorruptProb float64
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// ChannelStats counts what one direction did to the frames it carried.
type ChannelStats struct {
	Sent      int `json:"sent"`
	Lost      int `json:"lost"`
	Corrupted int `json:"corrupted"`
	Delivered int `json:"delivered"`
}

// Channel carries frames in one direction. It may drop or corrupt a frame
// but never lets a later frame overtake an earlier one.
type Channel struct {
	name    string
	sched   *Scheduler
	rng     *rand.Rand
	cfg     ChannelConfig
	deliver func(frame.Frame)
	log     zerolog.Logger

	lastArrival time.Duration
	stats       ChannelStats
}

func newChannel(name string, sched *Scheduler, rng *rand.Rand, cfg ChannelConfig, deliver func(frame.Frame), log zerolog.Logger) *Channel {
	return &Channel{
		name:    name,
		sched:   sched,
		rng:     rng,
		cfg:     cfg,
		deliver: deliver,
		log:     log.With().Str("channel", name).Logger(),
	}
}

// Transmit implements arq.Link.
func (c *Channel) Transmit(f frame.Frame) {
	c.stats.Sent++
	if c.rng.Float64() < c.cfg.LossProb {
		c.stats.Lost++
		c.log.Debug().Dur("t", c.sched.Now()).Stringer("frame", f).Msg("lost")
		return
	}

	f = f.Clone()
	if c.rng.Float64() < c.cfg.CorruptProb {
		c.stats.Corrupted++
		f = c.corrupt(f)
		c.log.Debug().Dur("t", c.sched.Now()).Stringer("frame", f).Msg("corrupted")
	}

	// Arrivals are monotonic per direction.
	at := c.sched.Now()
	if c.lastArrival > at {
		at = c.lastArrival
	}
	at += c.delay()
	c.lastArrival = at

	c.sched.At(at, c.name, func() {
		c.stats.Delivered++
		c.deliver(f)
	})
}

func (c *Channel) Stats() ChannelStats {
	return c.stats
}

func (c *Channel) delay() time.Duration {
	span := c.cfg.MaxDelay - c.cfg.MinDelay
	if span <= 0 {
		return c.cfg.MinDelay
	}
	return c.cfg.MinDelay + time.Duration(c.rng.Int63n(int64(span)+1))
}

// corrupt alters exactly one field so the additive checksum always
// disagrees with the result.
func (c *Channel) corrupt(f frame.Frame) frame.Frame {
	x := c.rng.Float64()
	switch {
	case len(f.Payload) > 0 && x < 0.75:
		i := c.rng.Intn(len(f.Payload))
		f.Payload[i] += byte(1 + c.rng.Intn(255))
	case x < 0.85:
		f.Seq = f.Seq.Flip()
	case x < 0.95:
		f.Ack = f.Ack.Flip()
	default:
		f.Checksum += uint32(1 + c.rng.Intn(1000))
	}
	return f
}
