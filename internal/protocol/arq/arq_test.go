package arq

import (
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/altbit/internal/protocol/frame"
	"github.com/danmuck/altbit/internal/testutil/testlog"
)

type recordingLink struct {
	frames []frame.Frame
}

func (l *recordingLink) Transmit(f frame.Frame) { l.frames = append(l.frames, f) }

func (l *recordingLink) take() []frame.Frame {
	out := l.frames
	l.frames = nil
	return out
}

type fakeTimer struct {
	armed   bool
	last    time.Duration
	arms    int
	cancels int
}

func (t *fakeTimer) Arm(d time.Duration) {
	t.armed = true
	t.last = d
	t.arms++
}

func (t *fakeTimer) Cancel() {
	t.armed = false
	t.cancels++
}

type recordingSink struct {
	units []string
}

func (s *recordingSink) Deliver(p []byte) { s.units = append(s.units, string(p)) }

type pair struct {
	toReceiver *recordingLink
	toSender   *recordingLink
	timer      *fakeTimer
	sink       *recordingSink
	sender     *Sender
	receiver   *Receiver
}

func newPair(t *testing.T) *pair {
	t.Helper()
	testlog.Start(t)
	p := &pair{
		toReceiver: &recordingLink{},
		toSender:   &recordingLink{},
		timer:      &fakeTimer{},
		sink:       &recordingSink{},
	}
	p.sender = NewSender(p.toReceiver, p.timer, DefaultConfig(), WithName("a"))
	p.receiver = NewReceiver(p.toSender, p.sink, WithName("b"))
	return p
}

// pump delivers every queued frame in both directions once.
func (p *pair) pump() {
	for _, f := range p.toReceiver.take() {
		p.receiver.HandleFrame(f)
	}
	for _, f := range p.toSender.take() {
		p.sender.HandleFrame(f)
	}
}

func corrupted(f frame.Frame) frame.Frame {
	f = f.Clone()
	f.Checksum += 5
	return f
}

func TestScenarioAPerfectChannel(t *testing.T) {
	p := newPair(t)
	if !p.sender.Submit([]byte("HELLO")) {
		t.Fatalf("submit rejected in idle")
	}
	if p.sender.State() != WaitAck || !p.timer.armed || p.timer.last != 40*time.Millisecond {
		t.Fatalf("expected wait_ack with armed timer, state=%s timer=%+v", p.sender.State(), p.timer)
	}

	sent := p.toReceiver.take()
	if len(sent) != 1 {
		t.Fatalf("expected one data frame, got %d", len(sent))
	}
	want := frame.Frame{Seq: frame.Zero, Ack: frame.Zero, Checksum: 372, Payload: []byte("HELLO")}
	if !sent[0].Equal(want) {
		t.Fatalf("unexpected data frame: %s", sent[0])
	}

	p.receiver.HandleFrame(sent[0])
	if len(p.sink.units) != 1 || p.sink.units[0] != "HELLO" {
		t.Fatalf("unexpected deliveries: %v", p.sink.units)
	}
	acks := p.toSender.take()
	if len(acks) != 1 || !acks[0].Equal(frame.NewAck(frame.Zero, frame.Zero)) || len(acks[0].Payload) != 0 {
		t.Fatalf("unexpected acks: %v", acks)
	}

	p.sender.HandleFrame(acks[0])
	if p.sender.State() != Idle || p.sender.Expected() != frame.One {
		t.Fatalf("sender did not advance: state=%s expected=%s", p.sender.State(), p.sender.Expected())
	}
	if p.timer.armed || p.timer.cancels != 1 {
		t.Fatalf("timer not cancelled: %+v", p.timer)
	}
	if p.receiver.Expected() != p.sender.Expected() {
		t.Fatalf("bits out of lockstep")
	}
}

func TestScenarioBCorruptDataFrame(t *testing.T) {
	p := newPair(t)
	p.sender.Submit([]byte("HELLO"))
	first := p.toReceiver.take()[0]

	p.receiver.HandleFrame(corrupted(first))
	if len(p.toSender.frames) != 0 {
		t.Fatalf("receiver must stay silent without a prior ack")
	}
	if len(p.sink.units) != 0 {
		t.Fatalf("corrupt frame delivered")
	}

	p.sender.HandleTimeout()
	if p.timer.arms != 2 {
		t.Fatalf("timer not restarted: arms=%d", p.timer.arms)
	}
	retx := p.toReceiver.frames
	if len(retx) != 1 || !retx[0].Equal(first) {
		t.Fatalf("retransmission differs: %v vs %s", retx, first)
	}
	p.pump()

	if len(p.sink.units) != 1 || p.sink.units[0] != "HELLO" {
		t.Fatalf("unexpected deliveries: %v", p.sink.units)
	}
	if p.sender.State() != Idle || p.sender.Expected() != frame.One {
		t.Fatalf("sender did not recover")
	}
	if st := p.sender.Stats(); st.Retransmissions != 1 || st.Transmissions != 2 {
		t.Fatalf("unexpected sender stats: %+v", st)
	}
}

func TestScenarioCCorruptAck(t *testing.T) {
	p := newPair(t)
	p.sender.Submit([]byte("HELLO"))
	p.receiver.HandleFrame(p.toReceiver.take()[0])
	ack := p.toSender.take()[0]

	p.sender.HandleFrame(corrupted(ack))
	if p.sender.State() != WaitAck || p.sender.Expected() != frame.Zero {
		t.Fatalf("corrupt ack changed sender state")
	}

	p.sender.HandleTimeout()
	retx := p.toReceiver.take()
	if len(retx) != 1 || retx[0].Seq != frame.Zero {
		t.Fatalf("unexpected retransmission: %v", retx)
	}
	p.receiver.HandleFrame(retx[0])
	resent := p.toSender.take()
	if len(resent) != 1 || !resent[0].Equal(ack) {
		t.Fatalf("receiver must resend last ack verbatim: %v", resent)
	}
	p.sender.HandleFrame(resent[0])

	if len(p.sink.units) != 1 {
		t.Fatalf("duplicate delivery: %v", p.sink.units)
	}
	if p.sender.State() != Idle || p.sender.Expected() != p.receiver.Expected() {
		t.Fatalf("sender did not recover in lockstep")
	}
	if st := p.receiver.Stats(); st.Duplicates != 1 || st.AckResends != 1 {
		t.Fatalf("unexpected receiver stats: %+v", st)
	}
}

func TestSubmitWhileAwaitingAckIsDropped(t *testing.T) {
	p := newPair(t)
	p.sender.Submit([]byte("one"))
	if p.sender.Submit([]byte("two")) {
		t.Fatalf("second unit accepted while awaiting ack")
	}
	if len(p.toReceiver.frames) != 1 || p.timer.arms != 1 {
		t.Fatalf("dropped unit caused traffic: frames=%d arms=%d", len(p.toReceiver.frames), p.timer.arms)
	}
	out, ok := p.sender.Outstanding()
	if !ok || string(out.Payload) != "one" {
		t.Fatalf("outstanding frame replaced: %s", out)
	}
	if st := p.sender.Stats(); st.Dropped != 1 || st.Submitted != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestSubmitOversizedIsDropped(t *testing.T) {
	p := newPair(t)
	if p.sender.Submit(make([]byte, frame.MaxPayloadLen+1)) {
		t.Fatalf("oversized unit accepted")
	}
	if p.sender.State() != Idle || len(p.toReceiver.frames) != 0 {
		t.Fatalf("oversized unit changed state")
	}
	if !p.sender.Submit(make([]byte, frame.MaxPayloadLen)) {
		t.Fatalf("unit at the bound rejected")
	}
}

func TestSubmitCopiesPayload(t *testing.T) {
	p := newPair(t)
	buf := []byte("HELLO")
	p.sender.Submit(buf)
	buf[0] = 'X'
	p.sender.HandleTimeout()
	frames := p.toReceiver.take()
	if len(frames) != 2 || !frames[0].Equal(frames[1]) || string(frames[1].Payload) != "HELLO" {
		t.Fatalf("retransmission not bit-identical: %v", frames)
	}
}

func TestSenderIgnoresFramesAndTimeoutsWhileIdle(t *testing.T) {
	p := newPair(t)
	p.sender.HandleFrame(frame.NewAck(frame.Zero, frame.Zero))
	p.sender.HandleTimeout()
	if p.sender.State() != Idle || p.sender.Expected() != frame.Zero {
		t.Fatalf("idle sender changed state")
	}
	if len(p.toReceiver.frames) != 0 || p.timer.arms != 0 || p.timer.cancels != 0 {
		t.Fatalf("idle sender acted: frames=%d timer=%+v", len(p.toReceiver.frames), p.timer)
	}
}

func TestSenderRejectsStaleAck(t *testing.T) {
	p := newPair(t)
	p.sender.Submit([]byte("a"))
	p.pump()
	p.sender.Submit([]byte("b"))

	p.sender.HandleFrame(frame.NewAck(frame.Zero, frame.Zero))
	if p.sender.State() != WaitAck || p.sender.Expected() != frame.One {
		t.Fatalf("stale ack accepted")
	}
	if st := p.sender.Stats(); st.AcksStale != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	p.pump()
	if p.sender.State() != Idle || p.sender.Expected() != frame.Zero {
		t.Fatalf("fresh ack not accepted")
	}
}

func TestReceiverReplayIsIdempotent(t *testing.T) {
	p := newPair(t)
	p.sender.Submit([]byte("HELLO"))
	data := p.toReceiver.take()[0]
	p.receiver.HandleFrame(data)
	first := p.toSender.take()[0]

	for i := 0; i < 10; i++ {
		p.receiver.HandleFrame(data)
	}
	resent := p.toSender.take()
	if len(resent) != 10 {
		t.Fatalf("expected 10 ack resends, got %d", len(resent))
	}
	for i, f := range resent {
		if !f.Equal(first) {
			t.Fatalf("resend %d differs: %s vs %s", i, f, first)
		}
	}
	if len(p.sink.units) != 1 {
		t.Fatalf("replay delivered again: %v", p.sink.units)
	}
	if p.receiver.Expected() != frame.One {
		t.Fatalf("replay moved expected bit")
	}
}

func TestReceiverCorruptAfterAckResendsLastAck(t *testing.T) {
	p := newPair(t)
	p.sender.Submit([]byte("a"))
	p.pump()
	last, ok := p.receiver.LastAck()
	if !ok {
		t.Fatalf("missing last ack")
	}

	p.sender.Submit([]byte("b"))
	p.receiver.HandleFrame(corrupted(p.toReceiver.take()[0]))
	resent := p.toSender.take()
	if len(resent) != 1 || !resent[0].Equal(last) {
		t.Fatalf("expected last ack resend, got %v", resent)
	}
	// The resent ack is stale for the sender and must not advance it.
	p.sender.HandleFrame(resent[0])
	if p.sender.State() != WaitAck {
		t.Fatalf("sender advanced on stale ack")
	}
	if len(p.sink.units) != 1 {
		t.Fatalf("corrupt frame delivered: %v", p.sink.units)
	}
}

func TestReceiverDeliveredPayloadIsOwned(t *testing.T) {
	var got []byte
	r := NewReceiver(LinkFunc(func(frame.Frame) {}), SinkFunc(func(p []byte) { got = p }))
	f := frame.NewData(frame.Zero, []byte("HELLO"))
	r.HandleFrame(f)
	f.Payload[0] = 'J'
	if string(got) != "HELLO" {
		t.Fatalf("sink payload aliases frame: %q", got)
	}
}

func TestStartResetsSession(t *testing.T) {
	p := newPair(t)
	p.sender.Submit([]byte("a"))
	p.pump()
	p.sender.Start()
	p.receiver.Start()
	if p.sender.Expected() != frame.Zero || p.sender.State() != Idle || p.sender.Stats() != (SenderStats{}) {
		t.Fatalf("sender not reset")
	}
	if _, ok := p.receiver.LastAck(); ok || p.receiver.Expected() != frame.Zero {
		t.Fatalf("receiver not reset")
	}
}

func TestManyUnitsStayInLockstep(t *testing.T) {
	p := newPair(t)
	for i := 0; i < 50; i++ {
		unit := fmt.Sprintf("unit-%02d", i)
		if !p.sender.Submit([]byte(unit)) {
			t.Fatalf("unit %d rejected", i)
		}
		// Lose every third data frame and every fifth ack once.
		if i%3 == 0 {
			p.toReceiver.take()
			p.sender.HandleTimeout()
		}
		for _, f := range p.toReceiver.take() {
			p.receiver.HandleFrame(f)
		}
		if i%5 == 0 {
			p.toSender.take()
			p.sender.HandleTimeout()
			p.pump()
		}
		p.pump()
		if p.sender.State() != Idle {
			t.Fatalf("unit %d not acknowledged", i)
		}
		if p.sender.Expected() != p.receiver.Expected() {
			t.Fatalf("unit %d: bits diverged sender=%s receiver=%s", i, p.sender.Expected(), p.receiver.Expected())
		}
	}
	if len(p.sink.units) != 50 {
		t.Fatalf("expected 50 deliveries, got %d", len(p.sink.units))
	}
	for i, u := range p.sink.units {
		if u != fmt.Sprintf("unit-%02d", i) {
			t.Fatalf("delivery %d out of order: %q", i, u)
		}
	}
}
