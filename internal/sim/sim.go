package sim

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/danmuck/altbit/internal/observability"
	"github.com/danmuck/altbit/internal/protocol/arq"
	"github.com/danmuck/altbit/internal/protocol/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrTimeLimit    = errors.New("sim: virtual time limit reached")
	ErrVerification = errors.New("sim: verification failed")
)

// Report summarizes one run.
type Report struct {
	Offered   int           `json:"offered"`
	Accepted  int           `json:"accepted"`
	Dropped   int           `json:"dropped"`
	Delivered int           `json:"delivered"`
	Elapsed   time.Duration `json:"elapsed"`

	Sender   arq.SenderStats   `json:"sender"`
	Receiver arq.ReceiverStats `json:"receiver"`
	Forward  ChannelStats      `json:"forward"`
	Reverse  ChannelStats      `json:"reverse"`

	SenderState arq.State `json:"-"`
	SenderBit   frame.Bit `json:"-"`
	ReceiverBit frame.Bit `json:"-"`

	AcceptedUnits  [][]byte `json:"-"`
	DeliveredUnits [][]byte `json:"-"`
}

// Verify checks that every accepted unit was delivered exactly once, in
// order, and that both endpoints finished idle with matching bits.
func (r Report) Verify() error {
	if len(r.DeliveredUnits) != len(r.AcceptedUnits) {
		return fmt.Errorf("%w: accepted %d units, delivered %d", ErrVerification, len(r.AcceptedUnits), len(r.DeliveredUnits))
	}
	for i := range r.AcceptedUnits {
		if !bytes.Equal(r.AcceptedUnits[i], r.DeliveredUnits[i]) {
			return fmt.Errorf("%w: unit %d mismatch: sent %q got %q", ErrVerification, i, r.AcceptedUnits[i], r.DeliveredUnits[i])
		}
	}
	if r.SenderState != arq.Idle {
		return fmt.Errorf("%w: sender finished in %s", ErrVerification, r.SenderState)
	}
	if r.SenderBit != r.ReceiverBit {
		return fmt.Errorf("%w: sender bit %s, receiver bit %s", ErrVerification, r.SenderBit, r.ReceiverBit)
	}
	return nil
}

// Simulation wires one sender and one receiver through two channels.
type Simulation struct {
	cfg   Config
	sched *Scheduler
	rng   *rand.Rand
	log   zerolog.Logger

	sender   *arq.Sender
	receiver *arq.Receiver
	forward  *Channel
	reverse  *Channel

	offered   int
	accepted  [][]byte
	delivered [][]byte
}

type Option func(*Simulation)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Simulation) { s.log = l }
}

func New(cfg Config, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Simulation{
		cfg:   cfg,
		sched: NewScheduler(),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		log:   log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = observability.ComponentLogger(s.log, "sim", "").With().Int64("seed", cfg.Seed).Logger()
	s.sched.OnFire = func(at time.Duration, name string) {
		s.log.Trace().Dur("t", at).Str("event", name).Msg("fire")
	}

	s.forward = newChannel("a->b", s.sched, s.rng, cfg.channel(), func(f frame.Frame) {
		s.receiver.HandleFrame(f)
	}, s.log)
	s.reverse = newChannel("b->a", s.sched, s.rng, cfg.channel(), func(f frame.Frame) {
		s.sender.HandleFrame(f)
	}, s.log)

	t := &timer{sched: s.sched}
	arqCfg := arq.DefaultConfig()
	arqCfg.RetransmitTimeout = cfg.RetransmitTimeout
	s.sender = arq.NewSender(s.forward, t, arqCfg, arq.WithLogger(s.log), arq.WithName("a"))
	t.onFire = s.sender.HandleTimeout
	s.receiver = arq.NewReceiver(s.reverse, arq.SinkFunc(func(p []byte) {
		s.delivered = append(s.delivered, p)
	}), arq.WithLogger(s.log), arq.WithName("b"))
	return s, nil
}

// Run executes a fresh simulation and returns its report.
func Run(cfg Config, opts ...Option) (Report, error) {
	s, err := New(cfg, opts...)
	if err != nil {
		return Report{}, err
	}
	return s.Run()
}

// Run starts the session and drains the event queue.
func (s *Simulation) Run() (Report, error) {
	s.sender.Start()
	s.receiver.Start()
	if s.cfg.Messages > 0 {
		s.scheduleOffer()
	}
	for {
		at, ok := s.sched.Peek()
		if !ok {
			break
		}
		if s.cfg.MaxTime > 0 && at > s.cfg.MaxTime {
			return s.Report(), fmt.Errorf("%w: %v", ErrTimeLimit, s.cfg.MaxTime)
		}
		s.sched.Step()
	}
	r := s.Report()
	s.log.Info().
		Int("offered", r.Offered).
		Int("accepted", r.Accepted).
		Int("delivered", r.Delivered).
		Int("retransmissions", r.Sender.Retransmissions).
		Dur("elapsed", r.Elapsed).
		Msg("simulation complete")
	return r, nil
}

func (s *Simulation) Report() Report {
	st := s.sender.Stats()
	return Report{
		Offered:        s.offered,
		Accepted:       len(s.accepted),
		Dropped:        st.Dropped,
		Delivered:      len(s.delivered),
		Elapsed:        s.sched.Now(),
		Sender:         st,
		Receiver:       s.receiver.Stats(),
		Forward:        s.forward.Stats(),
		Reverse:        s.reverse.Stats(),
		SenderState:    s.sender.State(),
		SenderBit:      s.sender.Expected(),
		ReceiverBit:    s.receiver.Expected(),
		AcceptedUnits:  s.accepted,
		DeliveredUnits: s.delivered,
	}
}

func (s *Simulation) scheduleOffer() {
	var gap time.Duration
	if s.cfg.MessageInterval > 0 {
		gap = time.Duration(s.rng.Int63n(2*int64(s.cfg.MessageInterval) + 1))
	}
	s.sched.After(gap, "app", s.offer)
}

func (s *Simulation) offer() {
	unit := messagePayload(s.offered, s.cfg.PayloadLen)
	s.offered++
	if s.sender.Submit(unit) {
		s.accepted = append(s.accepted, unit)
	}
	if s.offered < s.cfg.Messages {
		s.scheduleOffer()
	}
}

// messagePayload returns the n-th unit: n%26 repeated as a lowercase letter.
func messagePayload(n, size int) []byte {
	return bytes.Repeat([]byte{byte('a' + n%26)}, size)
}
