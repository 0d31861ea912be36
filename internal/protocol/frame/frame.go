package frame

import (
	"bytes"
	"fmt"
)

// MaxPayloadLen is the default bound on one application unit.
const MaxPayloadLen = 20

// Frame is one protocol unit. A transmitted frame is never mutated;
// retransmission sends a bit-identical copy.
type Frame struct {
	Seq      Bit
	Ack      Bit
	Checksum uint32
	Payload  []byte
}

// Limits constrains payload size on submit and decode.
type Limits struct {
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: MaxPayloadLen}
}

// Integrity is the additive checksum: seq + ack + sum of payload bytes.
// It detects the simulator's single-field corruption, nothing more.
func Integrity(payload []byte, seq, ack Bit) uint32 {
	sum := uint32(seq) + uint32(ack)
	for _, b := range payload {
		sum += uint32(b)
	}
	return sum
}

// NewData builds a data frame carrying payload with seq = ack = bit.
func NewData(bit Bit, payload []byte) Frame {
	p := make([]byte, len(payload))
	copy(p, payload)
	return Frame{
		Seq:      bit,
		Ack:      bit,
		Checksum: Integrity(p, bit, bit),
		Payload:  p,
	}
}

// NewAck builds an acknowledgment echoing seq and ack with an empty payload.
func NewAck(seq, ack Bit) Frame {
	return Frame{
		Seq:      seq,
		Ack:      ack,
		Checksum: Integrity(nil, ack, seq),
		Payload:  []byte{},
	}
}

// Corrupt reports whether the carried checksum disagrees with the fields.
func (f Frame) Corrupt() bool {
	if !f.Seq.Valid() || !f.Ack.Valid() {
		return true
	}
	return f.Checksum != Integrity(f.Payload, f.Seq, f.Ack)
}

func (f Frame) Clone() Frame {
	out := f
	out.Payload = make([]byte, len(f.Payload))
	copy(out.Payload, f.Payload)
	return out
}

func (f Frame) Equal(o Frame) bool {
	return f.Seq == o.Seq && f.Ack == o.Ack && f.Checksum == o.Checksum &&
		bytes.Equal(f.Payload, o.Payload)
}

func (f Frame) String() string {
	return fmt.Sprintf("{seq=%s,ack=%s,checksum=%d,payload=%q}", f.Seq, f.Ack, f.Checksum, f.Payload)
}
