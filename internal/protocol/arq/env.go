package arq

import (
	"time"

	"github.com/danmuck/altbit/internal/protocol/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Link hands a frame to the unreliable channel toward the peer.
type Link interface {
	Transmit(f frame.Frame)
}

// Sink receives validated, deduplicated payloads.
type Sink interface {
	Deliver(payload []byte)
}

// Timer is a one-shot retransmission timer. Arm replaces any pending expiry.
type Timer interface {
	Arm(d time.Duration)
	Cancel()
}

type LinkFunc func(f frame.Frame)

func (fn LinkFunc) Transmit(f frame.Frame) { fn(f) }

type SinkFunc func(payload []byte)

func (fn SinkFunc) Deliver(payload []byte) { fn(payload) }

type options struct {
	logger zerolog.Logger
	name   string
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithName tags log lines with the endpoint name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func buildOptions(role string, opts []Option) options {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	ctx := o.logger.With().Str("role", role)
	if o.name != "" {
		ctx = ctx.Str("endpoint", o.name)
	}
	o.logger = ctx.Logger()
	return o
}
