package nodebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/radgate/radgate/pkg/handler"
	"github.com/radgate/radgate/pkg/log"
	"github.com/radgate/radgate/pkg/metrics"
	"github.com/radgate/radgate/pkg/types"
)

const (
	subjectMembership  = "radgate.nodes"
	subjectInvokeStem  = "radgate.handler"
	heartbeatInterval  = 2 * time.Second
	livenessWindow     = 10 * time.Second

	// InvokeTimeout bounds a remote handler invocation.
	InvokeTimeout = 15 * time.Second
)

type heartbeat struct {
	Node    string   `json:"node"`
	Modules []string `json:"modules"`
}

// Bus is the NATS-backed Monitor and Invoker.
type Bus struct {
	self     types.NodeID
	registry *handler.Registry
	nc       *nats.Conn
	logger   zerolog.Logger

	mu      sync.RWMutex
	members map[string]map[types.NodeID]time.Time // module -> node -> last seen

	stopCh chan struct{}
	subs   []*nats.Subscription
}

// Connect dials the NATS server, starts advertising the local registry,
// and begins folding membership heartbeats.
func Connect(url string, self types.NodeID, registry *handler.Registry) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("radgate-"+string(self)),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to node bus: %w", err)
	}

	b := &Bus{
		self:     self,
		registry: registry,
		nc:       nc,
		logger:   log.WithComponent("nodebus").With().Str("node_id", string(self)).Logger(),
		members:  make(map[string]map[types.NodeID]time.Time),
		stopCh:   make(chan struct{}),
	}

	sub, err := nc.Subscribe(subjectMembership, b.onHeartbeat)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribing to membership: %w", err)
	}
	b.subs = append(b.subs, sub)

	go b.advertise()

	b.logger.Info().Str("url", url).Msg("connected to node bus")
	return b, nil
}

// Close stops advertising and drops the connection.
func (b *Bus) Close() {
	close(b.stopCh)
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.nc.Close()
}

// Self returns the local node identity.
func (b *Bus) Self() types.NodeID {
	return b.self
}

// NodesFor returns the nodes whose advertisement for module is within the
// liveness window. The local node is always consulted directly so a server
// never depends on hearing its own heartbeat.
func (b *Bus) NodesFor(module string) []types.NodeID {
	var out []types.NodeID
	if _, ok := b.registry.Get(module); ok {
		out = append(out, b.self)
	}

	cutoff := time.Now().Add(-livenessWindow)
	b.mu.RLock()
	for node, seen := range b.members[module] {
		if node == b.self || seen.Before(cutoff) {
			continue
		}
		out = append(out, node)
	}
	b.mu.RUnlock()

	metrics.NodesAdvertising.WithLabelValues(module).Set(float64(len(out)))
	return out
}

// Invoke sends the request to a node and waits for its reply envelope.
func (b *Bus) Invoke(ctx context.Context, node types.NodeID, req *InvokeRequest) (*InvokeReply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding invoke request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, InvokeTimeout)
	defer cancel()

	subject := fmt.Sprintf("%s.%s.%s", subjectInvokeStem, node, req.Module)
	msg, err := b.nc.RequestWithContext(ctx, subject, data)
	switch {
	case err == nil:
	case errors.Is(err, nats.ErrNoResponders):
		return nil, ErrNoResponder
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
		return nil, ErrReplyTimeout
	default:
		return nil, fmt.Errorf("invoking handler on %s: %w", node, err)
	}

	var rep InvokeReply
	if err := json.Unmarshal(msg.Data, &rep); err != nil {
		return nil, fmt.Errorf("decoding invoke reply from %s: %w", node, err)
	}
	return &rep, nil
}

// Serve subscribes to this node's invocation subjects so other nodes can
// run handlers here. Requests execute concurrently, one goroutine each.
func (b *Bus) Serve() error {
	subject := fmt.Sprintf("%s.%s.>", subjectInvokeStem, b.self)
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		go b.serveInvoke(msg)
	})
	if err != nil {
		return fmt.Errorf("subscribing to invocations: %w", err)
	}
	b.subs = append(b.subs, sub)
	b.logger.Info().Msg("serving remote handler invocations")
	return nil
}

func (b *Bus) serveInvoke(msg *nats.Msg) {
	var req InvokeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.logger.Error().Err(err).Msg("bad invoke request")
		return
	}

	rep := Execute(b.registry, &req, b.logger)
	data, err := json.Marshal(rep)
	if err != nil {
		b.logger.Error().Err(err).Msg("encoding invoke reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		b.logger.Error().Err(err).Msg("responding to invoke")
	}
}

func (b *Bus) advertise() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	b.publishHeartbeat()
	for {
		select {
		case <-ticker.C:
			b.publishHeartbeat()
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) publishHeartbeat() {
	hb := heartbeat{Node: string(b.self), Modules: b.registry.Modules()}
	data, err := json.Marshal(hb)
	if err != nil {
		return
	}
	if err := b.nc.Publish(subjectMembership, data); err != nil {
		b.logger.Debug().Err(err).Msg("heartbeat publish failed")
	}
}

func (b *Bus) onHeartbeat(msg *nats.Msg) {
	var hb heartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		return
	}
	node := types.NodeID(hb.Node)
	now := time.Now()

	b.mu.Lock()
	for _, module := range hb.Modules {
		byNode := b.members[module]
		if byNode == nil {
			byNode = make(map[types.NodeID]time.Time)
			b.members[module] = byNode
		}
		byNode[node] = now
	}
	b.mu.Unlock()
}
