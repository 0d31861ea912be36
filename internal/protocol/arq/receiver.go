package arq

import (
	"github.com/danmuck/altbit/internal/observability"
	"github.com/danmuck/altbit/internal/protocol/frame"
	"github.com/rs/zerolog"
)

// ReceiverStats counts receiver activity since Start.
type ReceiverStats struct {
	Delivered  int `json:"delivered"`
	Corrupt    int `json:"corrupt"`
	Duplicates int `json:"duplicates"`
	AcksSent   int `json:"acks_sent"`
	AckResends int `json:"ack_resends"`
}

// Receiver validates data frames and delivers each new unit exactly once.
type Receiver struct {
	link Link
	sink Sink
	log  zerolog.Logger

	expected   frame.Bit
	lastAck    frame.Frame
	hasLastAck bool
	stats      ReceiverStats
}

func NewReceiver(link Link, sink Sink, opts ...Option) *Receiver {
	o := buildOptions(observability.RoleReceiver, opts)
	r := &Receiver{
		link: link,
		sink: sink,
		log:  o.logger,
	}
	r.Start()
	return r
}

// Start resets the receiver to its session-start state.
func (r *Receiver) Start() {
	r.expected = frame.Zero
	r.lastAck = frame.Frame{}
	r.hasLastAck = false
	r.stats = ReceiverStats{}
}

// HandleFrame processes an inbound data frame.
func (r *Receiver) HandleFrame(f frame.Frame) {
	corrupt := f.Corrupt()
	if !corrupt && f.Seq == r.expected {
		r.sink.Deliver(append([]byte(nil), f.Payload...))
		r.stats.Delivered++
		observability.RecordUnit(observability.RoleReceiver, observability.OutcomeDelivered)

		r.lastAck = frame.NewAck(f.Seq, f.Ack)
		r.hasLastAck = true
		r.stats.AcksSent++
		observability.RecordTransmit(observability.RoleReceiver, observability.KindAck)
		r.log.Debug().Stringer("frame", f).Stringer("ack", r.lastAck).Msg("delivered")
		r.link.Transmit(r.lastAck.Clone())

		r.expected = r.expected.Flip()
		return
	}

	if corrupt {
		r.stats.Corrupt++
		observability.RecordReject(observability.RoleReceiver, observability.ReasonCorrupt)
	} else {
		r.stats.Duplicates++
		observability.RecordReject(observability.RoleReceiver, observability.ReasonStale)
	}

	if !r.hasLastAck {
		r.log.Debug().Bool("corrupt", corrupt).Msg("frame rejected: no ack to resend")
		return
	}
	r.stats.AckResends++
	observability.RecordTransmit(observability.RoleReceiver, observability.KindAckResend)
	r.log.Debug().Bool("corrupt", corrupt).Stringer("ack", r.lastAck).Msg("frame rejected: resending last ack")
	r.link.Transmit(r.lastAck.Clone())
}

// Expected returns the sequence bit of the next new data frame.
func (r *Receiver) Expected() frame.Bit {
	return r.expected
}

func (r *Receiver) LastAck() (frame.Frame, bool) {
	if !r.hasLastAck {
		return frame.Frame{}, false
	}
	return r.lastAck.Clone(), true
}

func (r *Receiver) Stats() ReceiverStats {
	return r.stats
}
