package udp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/framelink/framelink-go/internal/net/wire"
	"github.com/framelink/framelink-go/internal/telemetry/logger"
	"github.com/framelink/framelink-go/internal/telemetry/metric"
)

const (
	// DefaultPort is the well-known handshake port.
	DefaultPort = 7770

	// recvBufferSize bounds a single inbound datagram.
	recvBufferSize = 8192
)

// Inbound is one decoded datagram with its sender.
type Inbound struct {
	From netip.AddrPort
	Msg  wire.Message
}

// Option configures a Socket at bind time.
type Option func(*Socket)

// WithLogger overrides the structured logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Socket) { s.log = l }
}

// WithMetrics attaches a metrics registry. Nil disables instrumentation.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Socket) { s.metrics = m }
}

// WithJoinLimit rate limits JoinRequest datagrams per source address.
// A zero perSec disables limiting.
func WithJoinLimit(perSec float64, burst int) Option {
	return func(s *Socket) {
		s.joinLimit = rate.Limit(perSec)
		s.joinBurst = burst
	}
}

// Socket is a framed UDP endpoint. It satisfies the session Sender
// contract on the outbound side and queues decoded messages inbound.
type Socket struct {
	conn  *net.UDPConn
	local netip.AddrPort

	mu    sync.Mutex
	buf   []byte
	queue []Inbound

	joinLimit rate.Limit
	joinBurst int
	limiters  map[netip.Addr]*rate.Limiter

	log     logger.Logger
	metrics *metric.Registry
}

// Bind opens a UDP socket on addr, e.g. "0.0.0.0:7770" or "127.0.0.1:0".
func Bind(addr string, opts ...Option) (*Socket, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return nil, fmt.Errorf("udp: parse %q: %w", addr, err)
	}

	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(ap))
	if err != nil {
		return nil, fmt.Errorf("udp: bind %q: %w", addr, err)
	}

	local := conn.LocalAddr().(*net.UDPAddr).AddrPort()

	s := &Socket{
		conn:     conn,
		local:    local,
		buf:      make([]byte, recvBufferSize),
		limiters: make(map[netip.Addr]*rate.Limiter),
		log:      logger.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.log.Debug("socket bound", "addr", local.String())
	return s, nil
}

// LocalAddr returns the bound address, with the kernel-assigned port
// when binding to port 0.
func (s *Socket) LocalAddr() netip.AddrPort {
	return s.local
}

// Close releases the socket. Poll and Wait fail afterwards.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// SendTo encodes and sends one message. Best effort: an error means no
// more than a dropped datagram would.
func (s *Socket) SendTo(addr netip.AddrPort, msg wire.Message) error {
	frame := wire.Encode(msg)
	if _, err := s.conn.WriteToUDPAddrPort(frame, addr); err != nil {
		return fmt.Errorf("udp: send to %s: %w", addr, err)
	}
	return nil
}

// Poll drains the kernel buffer and returns the next queued message,
// without blocking. ok is false when nothing is pending.
func (s *Socket) Poll() (Inbound, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recvAll()
	return s.pop()
}

// Wait blocks up to timeout for the next message.
func (s *Socket) Wait(timeout time.Duration) (Inbound, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recvAll()
	if in, ok := s.pop(); ok {
		return in, true
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_ = s.conn.SetReadDeadline(deadline)
		n, from, err := s.conn.ReadFromUDPAddrPort(s.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Warn("receive failed", "error", err)
			break
		}
		s.ingest(from, s.buf[:n])
		if in, ok := s.pop(); ok {
			return in, true
		}
	}
	return Inbound{}, false
}

func (s *Socket) pop() (Inbound, bool) {
	if len(s.queue) == 0 {
		return Inbound{}, false
	}
	in := s.queue[0]
	s.queue = s.queue[1:]
	return in, true
}

// recvAll reads every datagram the kernel has buffered. The immediate
// deadline makes ReadFromUDPAddrPort non-blocking.
func (s *Socket) recvAll() {
	for {
		_ = s.conn.SetReadDeadline(time.Now())
		n, from, err := s.conn.ReadFromUDPAddrPort(s.buf)
		if err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) && !errors.Is(err, net.ErrClosed) {
				s.log.Warn("receive failed", "error", err)
			}
			return
		}
		s.ingest(from, s.buf[:n])
	}
}

func (s *Socket) ingest(from netip.AddrPort, datagram []byte) {
	msg, err := wire.Decode(datagram)
	if err != nil {
		s.metrics.DecodeFailed()
		s.log.Warn("dropping undecodable datagram", "from", from.String(), "error", err)
		return
	}

	if _, isJoin := msg.(wire.JoinRequest); isJoin && !s.allowJoin(from.Addr()) {
		s.metrics.JoinRejected("rate_limited")
		s.log.Warn("dropping rate-limited join request", "from", from.String())
		return
	}

	s.metrics.MessageReceived(msg.Type().String())
	s.queue = append(s.queue, Inbound{From: from, Msg: msg})
}

func (s *Socket) allowJoin(from netip.Addr) bool {
	if s.joinLimit <= 0 {
		return true
	}
	lim, ok := s.limiters[from]
	if !ok {
		lim = rate.NewLimiter(s.joinLimit, s.joinBurst)
		s.limiters[from] = lim
	}
	return lim.Allow()
}
