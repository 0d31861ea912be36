package peer

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/altbit/internal/observability"
	"github.com/danmuck/altbit/internal/protocol/arq"
	"github.com/danmuck/altbit/internal/protocol/frame"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

var (
	ErrInvalidConfig = errors.New("peer: invalid config")
	ErrWrongRole     = errors.New("peer: operation not supported by role")
	ErrStopped       = errors.New("peer: node stopped")
)

// Config describes one UDP endpoint.
type Config struct {
	Name   string
	Role   string
	Listen string
	// Peer is required for a sender. A receiver without one replies to the
	// source of the most recent datagram.
	Peer string
	ARQ  arq.Config
}

// Status is a point-in-time snapshot served by the admin API.
type Status struct {
	Name        string             `json:"name"`
	Role        string             `json:"role"`
	Local       string             `json:"local"`
	Peer        string             `json:"peer,omitempty"`
	State       string             `json:"state,omitempty"`
	Expected    string             `json:"expected_bit"`
	Sender      *arq.SenderStats   `json:"sender,omitempty"`
	Receiver    *arq.ReceiverStats `json:"receiver,omitempty"`
	Delivered   int                `json:"delivered"`
	Undecodable int64              `json:"undecodable"`
	Foreign     int64              `json:"foreign"`
}

// Node runs one arq endpoint over UDP. Every state-machine event is
// executed on the event loop started by Run.
type Node struct {
	cfg    Config
	conn   *net.UDPConn
	log    zerolog.Logger
	sink   arq.Sink
	filter func(frame.Frame) (frame.Frame, bool)

	events chan func()
	done   chan struct{}
	once   sync.Once

	// loop-owned
	peer      *net.UDPAddr
	sender    *arq.Sender
	receiver  *arq.Receiver
	timer     *wallTimer
	delivered [][]byte

	undecodable atomic.Int64
	foreign     atomic.Int64
}

type Option func(*Node)

func WithLogger(l zerolog.Logger) Option {
	return func(n *Node) { n.log = l }
}

// WithSink receives each delivered payload in addition to the node's own
// record. It runs on the event loop.
func WithSink(s arq.Sink) Option {
	return func(n *Node) { n.sink = s }
}

// WithTransmitFilter intercepts outbound frames; returning false drops the
// frame. Used to inject loss and corruption.
func WithTransmitFilter(fn func(frame.Frame) (frame.Frame, bool)) Option {
	return func(n *Node) { n.filter = fn }
}

// New binds the local socket and builds the endpoint.
func New(cfg Config, opts ...Option) (*Node, error) {
	cfg.Role = strings.ToLower(strings.TrimSpace(cfg.Role))
	if cfg.Role != RoleSender && cfg.Role != RoleReceiver {
		return nil, errors.Wrapf(ErrInvalidConfig, "role %q", cfg.Role)
	}
	if cfg.ARQ.RetransmitTimeout <= 0 {
		cfg.ARQ.RetransmitTimeout = arq.DefaultConfig().RetransmitTimeout
	}
	if cfg.ARQ.Limits.MaxPayloadBytes <= 0 {
		cfg.ARQ.Limits = frame.DefaultLimits()
	}

	var peer *net.UDPAddr
	if strings.TrimSpace(cfg.Peer) != "" {
		addr, err := net.ResolveUDPAddr("udp", cfg.Peer)
		if err != nil {
			return nil, errors.Wrapf(err, "peer: resolve peer %s", cfg.Peer)
		}
		peer = addr
	} else if cfg.Role == RoleSender {
		return nil, errors.Wrap(ErrInvalidConfig, "sender requires peer")
	}

	laddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, errors.Wrapf(err, "peer: resolve listen %s", cfg.Listen)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Wrapf(err, "peer: listen %s", cfg.Listen)
	}

	n := &Node{
		cfg:    cfg,
		conn:   conn,
		log:    log.Logger,
		events: make(chan func(), 64),
		done:   make(chan struct{}),
		peer:   peer,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = observability.ComponentLogger(n.log, "peer", cfg.Name).With().
		Str("local", conn.LocalAddr().String()).
		Logger()

	link := arq.LinkFunc(n.transmit)
	arqOpts := []arq.Option{arq.WithLogger(n.log), arq.WithName(cfg.Name)}
	switch cfg.Role {
	case RoleSender:
		n.timer = &wallTimer{post: n.post}
		n.sender = arq.NewSender(link, n.timer, cfg.ARQ, arqOpts...)
		n.timer.fire = n.sender.HandleTimeout
	case RoleReceiver:
		n.receiver = arq.NewReceiver(link, arq.SinkFunc(n.deliver), arqOpts...)
	}
	return n, nil
}

func (n *Node) LocalAddr() *net.UDPAddr {
	return n.conn.LocalAddr().(*net.UDPAddr)
}

func (n *Node) Role() string {
	return n.cfg.Role
}

func (n *Node) Name() string {
	return n.cfg.Name
}

// MaxPayloadBytes is the largest unit Submit will accept.
func (n *Node) MaxPayloadBytes() int {
	return n.cfg.ARQ.Limits.MaxPayloadBytes
}

// Run starts the session and serves until ctx is cancelled. The socket is
// closed on return.
func (n *Node) Run(ctx context.Context) error {
	if n.sender != nil {
		n.sender.Start()
	} else {
		n.receiver.Start()
	}
	n.log.Info().Str("role", n.cfg.Role).Msg("session started")

	readErr := make(chan error, 1)
	go func() { readErr <- n.readLoop() }()

	defer n.stop()
	for {
		select {
		case <-ctx.Done():
			n.log.Info().Msg("session stopped")
			return nil
		case err := <-readErr:
			return errors.Wrap(err, "peer: read loop")
		case fn := <-n.events:
			fn()
		}
	}
}

func (n *Node) stop() {
	n.once.Do(func() {
		close(n.done)
		if n.timer != nil {
			n.timer.stop()
		}
		_ = n.conn.Close()
	})
}

// Submit offers one unit to the sender. The bool reports acceptance; a
// unit offered while another is outstanding is dropped.
func (n *Node) Submit(ctx context.Context, payload []byte) (bool, error) {
	if n.sender == nil {
		return false, ErrWrongRole
	}
	p := append([]byte(nil), payload...)
	var accepted bool
	err := n.call(ctx, func() { accepted = n.sender.Submit(p) })
	return accepted, err
}

func (n *Node) Status(ctx context.Context) (Status, error) {
	var st Status
	err := n.call(ctx, func() {
		st = Status{
			Name:        n.cfg.Name,
			Role:        n.cfg.Role,
			Local:       n.conn.LocalAddr().String(),
			Delivered:   len(n.delivered),
			Undecodable: n.undecodable.Load(),
			Foreign:     n.foreign.Load(),
		}
		if n.peer != nil {
			st.Peer = n.peer.String()
		}
		if n.sender != nil {
			stats := n.sender.Stats()
			st.Sender = &stats
			st.State = n.sender.State().String()
			st.Expected = n.sender.Expected().String()
		} else {
			stats := n.receiver.Stats()
			st.Receiver = &stats
			st.Expected = n.receiver.Expected().String()
		}
	})
	return st, err
}

// Delivered returns copies of the payloads delivered so far, in order.
func (n *Node) Delivered(ctx context.Context) ([][]byte, error) {
	if n.receiver == nil {
		return nil, ErrWrongRole
	}
	var out [][]byte
	err := n.call(ctx, func() {
		out = make([][]byte, len(n.delivered))
		for i, p := range n.delivered {
			out[i] = append([]byte(nil), p...)
		}
	})
	return out, err
}

// call runs fn on the event loop and waits for it. ctx bounds only the
// wait to enqueue.
func (n *Node) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}
	select {
	case n.events <- wrapped:
	case <-n.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once queued, fn runs; report its outcome rather than ctx.
	select {
	case <-finished:
		return nil
	case <-n.done:
		return ErrStopped
	}
}

// post queues fn on the event loop without waiting.
func (n *Node) post(fn func()) {
	select {
	case n.events <- fn:
	case <-n.done:
	}
}

func (n *Node) readLoop() error {
	buf := make([]byte, frame.FixedHeaderLen+n.cfg.ARQ.Limits.MaxPayloadBytes+1)
	for {
		size, from, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-n.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		f, err := frame.DecodeFrame(buf[:size], n.cfg.ARQ.Limits)
		if err != nil {
			n.undecodable.Add(1)
			observability.RecordReject(n.cfg.Role, observability.ReasonUndecodable)
			n.log.Warn().Err(err).Str("from", from.String()).Int("size", size).Msg("datagram dropped")
			continue
		}
		n.post(func() { n.handle(f, from) })
	}
}

func (n *Node) handle(f frame.Frame, from *net.UDPAddr) {
	if n.sender != nil {
		if !sameAddr(from, n.peer) {
			n.foreign.Add(1)
			n.log.Debug().Str("from", from.String()).Msg("frame from unknown source ignored")
			return
		}
		n.sender.HandleFrame(f)
		return
	}
	if n.cfg.Peer == "" {
		n.peer = from
	} else if !sameAddr(from, n.peer) {
		n.foreign.Add(1)
		n.log.Debug().Str("from", from.String()).Msg("frame from unknown source ignored")
		return
	}
	n.receiver.HandleFrame(f)
}

func (n *Node) transmit(f frame.Frame) {
	if n.filter != nil {
		var keep bool
		if f, keep = n.filter(f); !keep {
			return
		}
	}
	if n.peer == nil {
		n.log.Warn().Msg("no peer address; frame not sent")
		return
	}
	b, err := frame.EncodeFrame(f, n.cfg.ARQ.Limits)
	if err != nil {
		n.log.Error().Err(err).Stringer("frame", f).Msg("encode failed")
		return
	}
	if _, err := n.conn.WriteToUDP(b, n.peer); err != nil {
		n.log.Warn().Err(errors.Wrapf(err, "write to %s", n.peer)).Msg("transmit failed")
	}
}

func (n *Node) deliver(p []byte) {
	n.delivered = append(n.delivered, p)
	n.log.Info().Int("len", len(p)).Int("count", len(n.delivered)).Msg("unit delivered")
	if n.sink != nil {
		n.sink.Deliver(p)
	}
}

func sameAddr(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

// wallTimer implements arq.Timer on time.AfterFunc. Expiry is posted to the
// event loop; a generation check discards expiries of cancelled arms.
type wallTimer struct {
	post func(func())
	fire func()

	t   *time.Timer
	gen uint64
}

func (w *wallTimer) Arm(d time.Duration) {
	w.Cancel()
	w.gen++
	gen := w.gen
	w.t = time.AfterFunc(d, func() {
		w.post(func() {
			if gen == w.gen {
				w.t = nil
				w.fire()
			}
		})
	})
}

func (w *wallTimer) Cancel() {
	w.gen++
	if w.t != nil {
		w.t.Stop()
		w.t = nil
	}
}

func (w *wallTimer) stop() {
	if w.t != nil {
		w.t.Stop()
	}
}
