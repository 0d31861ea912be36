package arq

import (
	"github.com/danmuck/altbit/internal/observability"
	"github.com/danmuck/altbit/internal/protocol/frame"
	"github.com/rs/zerolog"
)

// State is the sender's position in the stop-and-wait cycle.
type State uint8

const (
	Idle State = iota
	WaitAck
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case WaitAck:
		return "WAIT_ACK"
	default:
		return "UNKNOWN"
	}
}

// SenderStats counts sender activity since Start.
type SenderStats struct {
	Submitted       int `json:"submitted"`
	Dropped         int `json:"dropped"`
	Transmissions   int `json:"transmissions"`
	Retransmissions int `json:"retransmissions"`
	AcksAccepted    int `json:"acks_accepted"`
	AcksCorrupt     int `json:"acks_corrupt"`
	AcksStale       int `json:"acks_stale"`
}

// Sender frames application units and retransmits until acknowledged.
type Sender struct {
	link  Link
	timer Timer
	cfg   Config
	log   zerolog.Logger

	state       State
	expected    frame.Bit
	outstanding frame.Frame
	stats       SenderStats
}

func NewSender(link Link, timer Timer, cfg Config, opts ...Option) *Sender {
	o := buildOptions(observability.RoleSender, opts)
	s := &Sender{
		link:  link,
		timer: timer,
		cfg:   cfg.normalized(),
		log:   o.logger,
	}
	s.Start()
	return s
}

// Start resets the sender to its session-start state.
func (s *Sender) Start() {
	s.state = Idle
	s.expected = frame.Zero
	s.outstanding = frame.Frame{}
	s.stats = SenderStats{}
}

// Submit offers one application unit. It reports whether the unit was
// accepted; units offered while a frame is outstanding, or over the
// payload bound, are dropped.
func (s *Sender) Submit(payload []byte) bool {
	if s.state != Idle {
		s.stats.Dropped++
		observability.RecordUnit(observability.RoleSender, observability.OutcomeDropped)
		s.log.Debug().Int("len", len(payload)).Msg("unit dropped: awaiting ack")
		return false
	}
	if len(payload) > s.cfg.Limits.MaxPayloadBytes {
		s.stats.Dropped++
		observability.RecordUnit(observability.RoleSender, observability.OutcomeDropped)
		s.log.Warn().
			Int("len", len(payload)).
			Int("max", s.cfg.Limits.MaxPayloadBytes).
			Msg("unit dropped: payload too large")
		return false
	}

	s.outstanding = frame.NewData(s.expected, payload)
	s.state = WaitAck
	s.stats.Submitted++
	observability.RecordUnit(observability.RoleSender, observability.OutcomeAccepted)

	s.transmit(observability.KindData)
	s.timer.Arm(s.cfg.RetransmitTimeout)
	return true
}

// HandleFrame processes an inbound acknowledgment.
func (s *Sender) HandleFrame(f frame.Frame) {
	if s.state != WaitAck {
		observability.RecordReject(observability.RoleSender, observability.ReasonIdle)
		s.log.Debug().Stringer("frame", f).Msg("frame ignored: nothing outstanding")
		return
	}
	if f.Corrupt() {
		s.stats.AcksCorrupt++
		observability.RecordReject(observability.RoleSender, observability.ReasonCorrupt)
		s.log.Debug().Stringer("frame", f).Msg("ack rejected: corrupt")
		return
	}
	if f.Ack != s.expected {
		s.stats.AcksStale++
		observability.RecordReject(observability.RoleSender, observability.ReasonStale)
		s.log.Debug().
			Stringer("frame", f).
			Stringer("expected", s.expected).
			Msg("ack rejected: stale")
		return
	}

	s.timer.Cancel()
	s.expected = s.expected.Flip()
	s.state = Idle
	s.stats.AcksAccepted++
	observability.RecordUnit(observability.RoleSender, observability.OutcomeAcked)
	s.log.Debug().Stringer("next", s.expected).Msg("ack accepted")
}

// HandleTimeout retransmits the outstanding frame unchanged and re-arms.
func (s *Sender) HandleTimeout() {
	if s.state != WaitAck {
		s.log.Debug().Msg("timeout ignored: nothing outstanding")
		return
	}
	s.stats.Retransmissions++
	s.transmit(observability.KindRetransmit)
	s.timer.Arm(s.cfg.RetransmitTimeout)
}

func (s *Sender) transmit(kind string) {
	s.stats.Transmissions++
	observability.RecordTransmit(observability.RoleSender, kind)
	s.log.Debug().Str("kind", kind).Stringer("frame", s.outstanding).Msg("transmit")
	s.link.Transmit(s.outstanding.Clone())
}

func (s *Sender) State() State {
	return s.state
}

// Expected returns the ack bit the sender is waiting for, which is also the
// sequence bit of the next data frame.
func (s *Sender) Expected() frame.Bit {
	return s.expected
}

func (s *Sender) Outstanding() (frame.Frame, bool) {
	if s.state != WaitAck {
		return frame.Frame{}, false
	}
	return s.outstanding.Clone(), true
}

func (s *Sender) Stats() SenderStats {
	return s.stats
}
