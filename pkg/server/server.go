package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/radgate/radgate/pkg/admission"
	"github.com/radgate/radgate/pkg/codec"
	"github.com/radgate/radgate/pkg/counter"
	"github.com/radgate/radgate/pkg/events"
	"github.com/radgate/radgate/pkg/handler"
	"github.com/radgate/radgate/pkg/log"
	"github.com/radgate/radgate/pkg/metrics"
	"github.com/radgate/radgate/pkg/nas"
	"github.com/radgate/radgate/pkg/nodebus"
	"github.com/radgate/radgate/pkg/reqlog"
	"github.com/radgate/radgate/pkg/types"
)

const (
	// DefaultResendTimeout is the reply retention window.
	DefaultResendTimeout = 5 * time.Second

	// resendRetries caps retransmissions per retained reply.
	resendRetries = 3

	// maxDatagram is the RFC 2865 maximum packet length.
	maxDatagram = 4096
)

// Options configures one server instance.
type Options struct {
	// NodeID identifies this process in the handler pool.
	NodeID types.NodeID

	// Handlers resolves module names for local execution.
	Handlers *handler.Registry

	// Registry answers NAS lookups.
	Registry *nas.Registry

	// Monitor reports handler advertisement; Invoker runs handlers on
	// remote nodes. Single-node deployments pass a nodebus.Static.
	Monitor nodebus.Monitor
	Invoker nodebus.Invoker

	// RateConfig parameterizes the admission queue.
	RateConfig admission.Config

	// ResendTimeout is the reply retention window, default 5 s.
	ResendTimeout time.Duration

	// Events receives server events when set.
	Events *events.Broker

	// ReqLog records request/reply lines; defaults to the zerolog writer.
	ReqLog reqlog.Writer
}

// StatsKind selects how Stats treats the counters it returns.
type StatsKind int

const (
	// StatsRead returns the snapshot without mutation.
	StatsRead StatsKind = iota
	// StatsPull returns the snapshot and zeroes the store atomically.
	StatsPull
	// StatsReset zeroes the store and returns the zeroed snapshot.
	StatsReset
)

// packet is one received datagram.
type packet struct {
	raw  []byte
	peer *net.UDPAddr
}

type sigKind uint8

const (
	sigReplied sigKind = iota
	sigDiscarded
	sigWorkerExit
)

// signal is an internal message from a worker to the listener.
type signal struct {
	kind     sigKind
	key      RequestKey
	w        *worker
	abnormal bool
}

// Server is one bound RADIUS endpoint.
type Server struct {
	addr     string
	listenIP net.IP
	port     int
	opts     Options

	conn     *net.UDPConn
	table    *txTable
	counters *counter.Store
	admit    *admission.Queue
	reqlog   reqlog.Writer
	logger   zerolog.Logger

	packets chan packet
	signals chan signal

	resendTimeout time.Duration
	pending       atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// Start binds the UDP endpoint, initializes counters and the admission
// queue, and begins reception.
func Start(listenIP net.IP, listenPort int, opts Options) (*Server, error) {
	if opts.Handlers == nil || opts.Registry == nil || opts.Monitor == nil || opts.Invoker == nil {
		return nil, fmt.Errorf("server requires handlers, registry, monitor and invoker")
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: listenIP, Port: listenPort})
	if err != nil {
		return nil, fmt.Errorf("binding %s:%d: %w", listenIP, listenPort, err)
	}

	// Port 0 asks the kernel for a free port; NAS lookups must use the
	// port that was actually bound.
	listenPort = conn.LocalAddr().(*net.UDPAddr).Port
	addr := net.JoinHostPort(listenIP.String(), fmt.Sprint(listenPort))
	resend := opts.ResendTimeout
	if resend <= 0 {
		resend = DefaultResendTimeout
	}
	rl := opts.ReqLog
	if rl == nil {
		rl = reqlog.New(addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:          addr,
		listenIP:      listenIP,
		port:          listenPort,
		opts:          opts,
		conn:          conn,
		table:         newTxTable(),
		counters:      counter.NewStore(addr),
		admit:         admission.NewQueue(addr, opts.RateConfig),
		reqlog:        rl,
		logger:        log.WithComponent("server").With().Str("server", addr).Logger(),
		packets:       make(chan packet, 128),
		signals:       make(chan signal, 128),
		resendTimeout: resend,
		ctx:           ctx,
		cancel:        cancel,
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.run()

	metrics.RegisterComponent("listener", true, "")
	s.publish(events.EventServerStarted, "listening on "+addr, nil)
	s.logger.Info().Msg("server started")
	return s, nil
}

// Addr returns the bound endpoint as "ip:port".
func (s *Server) Addr() string {
	return s.addr
}

// LocalAddr returns the actual bound address, useful when port 0 was
// requested.
func (s *Server) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Stats returns the counter snapshot according to kind.
func (s *Server) Stats(kind StatsKind) counter.Snapshot {
	switch kind {
	case StatsPull:
		return s.counters.Pull()
	case StatsReset:
		s.counters.Reset()
		return s.counters.Read()
	default:
		return s.counters.Read()
	}
}

// Pending reports the number of in-flight transactions.
func (s *Server) Pending() int {
	return int(s.pending.Load())
}

// Close shuts the server down: the socket is closed, retained workers are
// released, and the listener goroutine drains.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.Close()
		s.wg.Wait()
		s.publish(events.EventServerStopped, "closed "+s.addr, nil)
		s.logger.Info().Msg("server stopped")
	})
	return nil
}

// readLoop owns the blocking receive and feeds the listener loop.
func (s *Server) readLoop() {
	defer s.wg.Done()
	defer close(s.packets)

	buf := make([]byte, maxDatagram)
	for {
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			// Socket closed during shutdown, or a transient error.
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.logger.Error().Err(err).Msg("socket read failed")
			return
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])

		select {
		case s.packets <- packet{raw: raw, peer: peer}:
		case <-s.ctx.Done():
			return
		}
	}
}

// run is the listener loop: the sole owner of the transaction table.
func (s *Server) run() {
	defer s.wg.Done()

	for {
		select {
		case pkt, ok := <-s.packets:
			if !ok {
				return
			}
			s.ingest(pkt)
		case sig := <-s.signals:
			s.handleSignal(sig)
		case <-s.ctx.Done():
			return
		}
	}
}

// ingest implements the packet-ingest algorithm for one datagram.
func (s *Server) ingest(pkt packet) {
	reqID, ok := codec.RequestID(pkt.raw)
	if !ok {
		s.counters.IncServer(counter.InvalidRequests)
		metrics.DiscardsTotal.WithLabelValues(s.addr, string(types.DiscardBadPdu)).Inc()
		s.logger.Debug().Str("peer", pkt.peer.String()).Msg("short packet discarded")
		return
	}

	entry, err := s.opts.Registry.Lookup(s.listenIP, s.port, pkt.peer.IP)
	if err != nil {
		s.counters.IncServer(counter.InvalidRequests)
		metrics.DiscardsTotal.WithLabelValues(s.addr, string(types.DiscardUnknownNas)).Inc()
		s.logger.Debug().Str("peer", pkt.peer.String()).Msg("unknown NAS discarded")
		return
	}

	key := keyFor(pkt.peer, reqID)
	nasKey := entry.Props.Key()

	switch tx := s.table.get(key); {
	case tx == nil:
		w := newWorker(s, key, entry, pkt.raw, pkt.peer)
		s.table.insertHandling(key, w)
		s.pending.Store(int64(s.table.len()))
		metrics.PendingTransactions.WithLabelValues(s.addr).Set(float64(s.table.len()))

		s.counters.IncNas(nasKey, counter.Requests)
		s.reqlog.Trace(entry.Props, "request id=%d accepted", reqID)
		s.publish(events.EventRequestAccepted, fmt.Sprintf("id=%d from %s", reqID, pkt.peer), nil)

		s.wg.Add(1)
		go w.run()

	case tx.state == txHandling:
		// Handler still working; swallow the duplicate.
		s.counters.IncNas(nasKey, counter.DupRequests)
		metrics.DuplicateRequestsTotal.WithLabelValues(s.addr, nasKey).Inc()
		s.reqlog.Trace(entry.Props, "duplicate id=%d while handling", reqID)
		s.publish(events.EventRequestDuplicate, fmt.Sprintf("id=%d from %s", reqID, pkt.peer), nil)

	default: // txReplied
		tx.w.signalResend()
		s.counters.IncNas(nasKey, counter.DupRequests)
		metrics.DuplicateRequestsTotal.WithLabelValues(s.addr, nasKey).Inc()
		s.reqlog.Trace(entry.Props, "duplicate id=%d, resending cached reply", reqID)
		s.publish(events.EventRequestDuplicate, fmt.Sprintf("id=%d from %s", reqID, pkt.peer), nil)
	}
}

func (s *Server) handleSignal(sig signal) {
	switch sig.kind {
	case sigReplied:
		s.table.markReplied(sig.key, sig.w)

	case sigDiscarded:
		s.table.remove(sig.key)

	case sigWorkerExit:
		if sig.abnormal {
			if purged := s.table.purgeWorker(sig.w); purged > 0 {
				s.logger.Warn().Int("purged", purged).Msg("purged entries of crashed worker")
			}
			s.publish(events.EventHandlerCrashed, "worker died abnormally", nil)
		}
	}

	s.pending.Store(int64(s.table.len()))
	metrics.PendingTransactions.WithLabelValues(s.addr).Set(float64(s.table.len()))
}

// send delivers an internal signal to the listener without ever blocking
// past shutdown.
func (s *Server) send(sig signal) {
	select {
	case s.signals <- sig:
	case <-s.ctx.Done():
	}
}

func (s *Server) publish(t events.EventType, msg string, meta map[string]string) {
	if s.opts.Events == nil {
		return
	}
	s.opts.Events.Publish(&events.Event{Type: t, Message: msg, Metadata: meta})
}
