package server

import (
	"context"
	"net"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/radgate/radgate/pkg/admission"
	"github.com/radgate/radgate/pkg/codec"
	"github.com/radgate/radgate/pkg/counter"
	"github.com/radgate/radgate/pkg/handler"
	"github.com/radgate/radgate/pkg/log"
	"github.com/radgate/radgate/pkg/nas"
	"github.com/radgate/radgate/pkg/nodebus"
	"github.com/radgate/radgate/pkg/reqlog"
	"github.com/radgate/radgate/pkg/types"
)

const testSecret = "testing123"

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel})
	os.Exit(m.Run())
}

// acceptAll replies Access-Accept to everything.
func acceptAll(ctx context.Context, req *codec.Request, nas *types.NasProperties, data any) (*codec.Reply, error) {
	return &codec.Reply{Cmd: codec.CmdAccessAccept}, nil
}

type env struct {
	srv      *Server
	client   *net.UDPConn
	handlers *handler.Registry
	registry *nas.Registry
	calls    atomic.Int32
}

type envConfig struct {
	serve      handler.Func
	rec        func(*types.NasRecord)
	opts       func(*Options)
	unknownNas bool
}

func newEnv(t *testing.T, cfg envConfig) *env {
	t.Helper()

	e := &env{
		handlers: handler.NewRegistry(),
		registry: nas.NewRegistry(),
	}

	serve := cfg.serve
	if serve == nil {
		serve = acceptAll
	}
	counted := func(ctx context.Context, req *codec.Request, props *types.NasProperties, data any) (*codec.Reply, error) {
		e.calls.Add(1)
		return serve(ctx, req, props, data)
	}
	require.NoError(t, e.handlers.Register(&handler.Handler{Module: "auth", Serve: counted}))

	opts := Options{
		NodeID:        "n1",
		Handlers:      e.handlers,
		Registry:      e.registry,
		Monitor:       &nodebus.Static{Self: "n1", Registry: e.handlers},
		Invoker:       &nodebus.Static{Self: "n1", Registry: e.handlers},
		ResendTimeout: 300 * time.Millisecond,
		ReqLog:        reqlog.Nop{},
	}
	if cfg.opts != nil {
		cfg.opts(&opts)
	}

	srv, err := Start(net.ParseIP("127.0.0.1"), 0, opts)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	e.srv = srv

	if !cfg.unknownNas {
		rec := &types.NasRecord{
			Name:       "edge-1",
			ListenAddr: srv.Addr(),
			NasIP:      "127.0.0.1",
			Secret:     testSecret,
			Handler:    "auth",
		}
		if cfg.rec != nil {
			cfg.rec(rec)
		}
		require.NoError(t, e.registry.Register(rec))
	}

	client, err := net.DialUDP("udp", nil, srv.LocalAddr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	e.client = client

	return e
}

func accessRequest(t *testing.T, id uint8) []byte {
	t.Helper()
	pkt := radius.New(radius.CodeAccessRequest, []byte(testSecret))
	pkt.Identifier = id
	require.NoError(t, rfc2865.UserName_SetString(pkt, "alice"))
	wire, err := pkt.Encode()
	require.NoError(t, err)
	return wire
}

func (e *env) send(t *testing.T, wire []byte) {
	t.Helper()
	_, err := e.client.Write(wire)
	require.NoError(t, err)
}

// recv reads one datagram or reports failure after the timeout.
func (e *env) recv(t *testing.T, timeout time.Duration) ([]byte, bool) {
	t.Helper()
	buf := make([]byte, 4096)
	require.NoError(t, e.client.SetReadDeadline(time.Now().Add(timeout)))
	n, err := e.client.Read(buf)
	if err != nil {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, true
}

func (e *env) nasKey() string {
	return "edge-1/127.0.0.1"
}

func TestNormalRoundTrip(t *testing.T) {
	e := newEnv(t, envConfig{})

	e.send(t, accessRequest(t, 7))

	reply, ok := e.recv(t, 2*time.Second)
	require.True(t, ok, "expected a reply datagram")

	rep, err := radius.Parse(reply, []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, radius.CodeAccessAccept, rep.Code)
	assert.Equal(t, uint8(7), rep.Identifier)

	assert.Equal(t, int32(1), e.calls.Load())
	assert.Equal(t, 1, e.srv.Pending(), "transaction retained for the resend window")

	snap := e.srv.Stats(StatsRead)
	assert.Equal(t, uint64(1), snap.PerNas[e.nasKey()][counter.Requests])
	assert.Equal(t, uint64(1), snap.PerNas[e.nasKey()][counter.AccessRequests])
	assert.Equal(t, uint64(1), snap.PerNas[e.nasKey()][counter.AccessAccepts])

	// Retention bound: the entry disappears after the resend window.
	require.Eventually(t, func() bool { return e.srv.Pending() == 0 },
		2*time.Second, 20*time.Millisecond)

	// A later identical request is new and handled again.
	e.send(t, accessRequest(t, 7))
	_, ok = e.recv(t, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, int32(2), e.calls.Load())
}

func TestDuplicateDuringHandling(t *testing.T) {
	release := make(chan struct{})
	e := newEnv(t, envConfig{
		serve: func(ctx context.Context, req *codec.Request, props *types.NasProperties, data any) (*codec.Reply, error) {
			<-release
			return &codec.Reply{Cmd: codec.CmdAccessAccept}, nil
		},
	})

	wire := accessRequest(t, 7)
	e.send(t, wire)
	e.send(t, wire)

	// Let both datagrams reach the table before releasing the handler.
	require.Eventually(t, func() bool {
		return e.srv.Stats(StatsRead).PerNas[e.nasKey()][counter.DupRequests] == 1
	}, 2*time.Second, 10*time.Millisecond)
	close(release)

	_, ok := e.recv(t, 2*time.Second)
	require.True(t, ok)

	// The duplicate was swallowed, not queued: exactly one reply.
	_, ok = e.recv(t, 300*time.Millisecond)
	assert.False(t, ok, "duplicate during handling must not produce a second datagram")
	assert.Equal(t, int32(1), e.calls.Load())
}

func TestDuplicateAfterReply(t *testing.T) {
	e := newEnv(t, envConfig{
		opts: func(o *Options) { o.ResendTimeout = time.Second },
	})

	wire := accessRequest(t, 7)
	e.send(t, wire)
	first, ok := e.recv(t, 2*time.Second)
	require.True(t, ok)

	e.send(t, wire)
	second, ok := e.recv(t, 2*time.Second)
	require.True(t, ok, "cached reply must be retransmitted")

	assert.Equal(t, first, second, "retransmission must be byte-identical")
	assert.Equal(t, int32(1), e.calls.Load(), "handler runs exactly once per request key")

	snap := e.srv.Stats(StatsRead)
	assert.Equal(t, uint64(1), snap.PerNas[e.nasKey()][counter.DupRequests])
}

func TestRetryCap(t *testing.T) {
	e := newEnv(t, envConfig{
		opts: func(o *Options) { o.ResendTimeout = 2 * time.Second },
	})

	wire := accessRequest(t, 7)
	e.send(t, wire)
	_, ok := e.recv(t, 2*time.Second)
	require.True(t, ok)

	for i := 0; i < 6; i++ {
		e.send(t, wire)
	}

	resent := 0
	for {
		if _, ok := e.recv(t, 500 * time.Millisecond); !ok {
			break
		}
		resent++
	}
	assert.Equal(t, 3, resent, "at most 3 resends per retained reply")
	assert.Equal(t, int32(1), e.calls.Load())

	// Exhausting the budget releases the transaction before the timer.
	require.Eventually(t, func() bool { return e.srv.Pending() == 0 },
		2*time.Second, 20*time.Millisecond)
}

func TestUnknownNas(t *testing.T) {
	e := newEnv(t, envConfig{unknownNas: true})

	e.send(t, accessRequest(t, 7))

	_, ok := e.recv(t, 300*time.Millisecond)
	assert.False(t, ok, "unknown NAS must not get a reply")
	assert.Equal(t, int32(0), e.calls.Load())
	assert.Equal(t, 0, e.srv.Pending())

	snap := e.srv.Stats(StatsRead)
	assert.Equal(t, uint64(1), snap.Metrics[counter.InvalidRequests])
}

func TestMalformedShortPacket(t *testing.T) {
	e := newEnv(t, envConfig{})

	e.send(t, []byte{0x01})

	_, ok := e.recv(t, 300*time.Millisecond)
	assert.False(t, ok)

	snap := e.srv.Stats(StatsRead)
	assert.Equal(t, uint64(1), snap.Metrics[counter.InvalidRequests])
	assert.Equal(t, 0, e.srv.Pending())
}

func TestMalformedPduAfterNasLookup(t *testing.T) {
	e := newEnv(t, envConfig{})

	// Two bytes carry a request id but cannot parse as RADIUS.
	e.send(t, []byte{0x01, 0x07, 0xff, 0xff})

	_, ok := e.recv(t, 300*time.Millisecond)
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		return e.srv.Stats(StatsRead).PerNas[e.nasKey()][counter.MalformedRequests] == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), e.calls.Load())
}

func TestNoAvailableNode(t *testing.T) {
	e := newEnv(t, envConfig{
		rec: func(rec *types.NasRecord) { rec.HandlerNodes = []string{"n2"} },
	})

	e.send(t, accessRequest(t, 7))

	_, ok := e.recv(t, 300*time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, int32(0), e.calls.Load(), "handler must not be invoked")

	require.Eventually(t, func() bool {
		return e.srv.Stats(StatsRead).Metrics[counter.DiscardNoHandler] == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// fakeMonitor advertises a fixed node set.
type fakeMonitor struct{ nodes []types.NodeID }

func (m *fakeMonitor) NodesFor(string) []types.NodeID { return m.nodes }

// fakeInvoker fails or delegates to a canned response.
type fakeInvoker struct {
	err   error
	reply *nodebus.InvokeReply
	calls atomic.Int32
}

func (i *fakeInvoker) Invoke(ctx context.Context, node types.NodeID, req *nodebus.InvokeRequest) (*nodebus.InvokeReply, error) {
	i.calls.Add(1)
	if i.err != nil {
		return nil, i.err
	}
	return i.reply, nil
}

func TestRemoteReplyTimeout(t *testing.T) {
	inv := &fakeInvoker{err: nodebus.ErrReplyTimeout}
	e := newEnv(t, envConfig{
		rec: func(rec *types.NasRecord) { rec.HandlerNodes = []string{"n2"} },
		opts: func(o *Options) {
			o.Monitor = &fakeMonitor{nodes: []types.NodeID{"n2"}}
			o.Invoker = inv
		},
	})

	e.send(t, accessRequest(t, 7))

	_, ok := e.recv(t, 300*time.Millisecond)
	assert.False(t, ok, "timed-out remote dispatch must not produce a datagram")

	require.Eventually(t, func() bool {
		return e.srv.Stats(StatsRead).PerNas[e.nasKey()][counter.HandlerFailure] == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), inv.calls.Load())
	assert.Equal(t, int32(0), e.calls.Load())
}

func TestRemoteDispatchRoundTrip(t *testing.T) {
	// The "remote" node is a second handler registry executed through the
	// shared node-side execution path.
	remoteReg := handler.NewRegistry()
	require.NoError(t, remoteReg.Register(&handler.Handler{Module: "auth", Serve: acceptAll}))

	inv := &remoteInvoker{registry: remoteReg}
	e := newEnv(t, envConfig{
		rec: func(rec *types.NasRecord) { rec.HandlerNodes = []string{"n2"} },
		opts: func(o *Options) {
			o.Monitor = &fakeMonitor{nodes: []types.NodeID{"n2"}}
			o.Invoker = inv
		},
	})

	e.send(t, accessRequest(t, 9))

	reply, ok := e.recv(t, 2*time.Second)
	require.True(t, ok)

	rep, err := radius.Parse(reply, []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, radius.CodeAccessAccept, rep.Code)
	assert.Equal(t, uint8(9), rep.Identifier)

	snap := e.srv.Stats(StatsRead)
	assert.Equal(t, uint64(1), snap.PerNas[e.nasKey()][counter.AccessRequests])
	assert.Equal(t, uint64(1), snap.PerNas[e.nasKey()][counter.AccessAccepts])
	assert.Equal(t, int32(0), e.calls.Load(), "local handler must not run")
}

// remoteInvoker runs the invocation against another registry in-process,
// exactly as a serving node would.
type remoteInvoker struct{ registry *handler.Registry }

func (i *remoteInvoker) Invoke(ctx context.Context, node types.NodeID, req *nodebus.InvokeRequest) (*nodebus.InvokeReply, error) {
	return nodebus.Execute(i.registry, req, log.WithComponent("test")), nil
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	var first atomic.Bool
	first.Store(true)
	e := newEnv(t, envConfig{
		serve: func(ctx context.Context, req *codec.Request, props *types.NasProperties, data any) (*codec.Reply, error) {
			if first.Swap(false) {
				panic("boom")
			}
			return &codec.Reply{Cmd: codec.CmdAccessAccept}, nil
		},
	})

	e.send(t, accessRequest(t, 1))
	_, ok := e.recv(t, 300*time.Millisecond)
	assert.False(t, ok, "crashed handler must not produce a datagram")

	require.Eventually(t, func() bool {
		return e.srv.Stats(StatsRead).PerNas[e.nasKey()][counter.HandlerFailure] == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return e.srv.Pending() == 0 },
		2*time.Second, 20*time.Millisecond)

	// The server keeps serving.
	e.send(t, accessRequest(t, 2))
	_, ok = e.recv(t, 2*time.Second)
	assert.True(t, ok, "server must survive a handler crash")
}

func TestHandlerNoReply(t *testing.T) {
	e := newEnv(t, envConfig{
		serve: func(ctx context.Context, req *codec.Request, props *types.NasProperties, data any) (*codec.Reply, error) {
			return nil, nil
		},
	})

	e.send(t, accessRequest(t, 3))

	_, ok := e.recv(t, 300*time.Millisecond)
	assert.False(t, ok)
	require.Eventually(t, func() bool { return e.srv.Pending() == 0 },
		2*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), e.calls.Load())
}

func TestAdmissionRefusal(t *testing.T) {
	e := newEnv(t, envConfig{
		opts: func(o *Options) {
			o.RateConfig = admission.Config{RatePerSecond: 0.001, Burst: 1}
		},
	})

	e.send(t, accessRequest(t, 1))
	e.send(t, accessRequest(t, 2))

	replies := 0
	for {
		if _, ok := e.recv(t, 500 * time.Millisecond); !ok {
			break
		}
		replies++
	}
	assert.Equal(t, 1, replies, "only the admitted request gets a reply")

	snap := e.srv.Stats(StatsRead)
	assert.Equal(t, uint64(1), snap.PerNas[e.nasKey()][counter.PacketsDropped])
}

func TestStatsPull(t *testing.T) {
	e := newEnv(t, envConfig{})

	e.send(t, accessRequest(t, 7))
	_, ok := e.recv(t, 2*time.Second)
	require.True(t, ok)

	pulled := e.srv.Stats(StatsPull)
	assert.Equal(t, uint64(1), pulled.PerNas[e.nasKey()][counter.AccessAccepts])

	after := e.srv.Stats(StatsRead)
	assert.Empty(t, after.PerNas, "pull must zero the store")

	reset := e.srv.Stats(StatsReset)
	assert.Empty(t, reset.PerNas)
}

func TestCloseIsIdempotent(t *testing.T) {
	e := newEnv(t, envConfig{})

	require.NoError(t, e.srv.Close())
	require.NoError(t, e.srv.Close())
}
