package nodebus

import (
	"context"
	"errors"

	"github.com/radgate/radgate/pkg/handler"
	"github.com/radgate/radgate/pkg/types"
)

var (
	// ErrReplyTimeout means a remote node did not answer within the
	// invocation deadline.
	ErrReplyTimeout = errors.New("remote handler reply timeout")

	// ErrNoResponder means the target node is not listening on the bus.
	ErrNoResponder = errors.New("remote node not responding")

	// ErrRemoteDisabled is returned by Static when a remote invocation is
	// attempted without a bus connection.
	ErrRemoteDisabled = errors.New("remote dispatch disabled")
)

// Monitor reports which nodes currently advertise a handler module.
type Monitor interface {
	NodesFor(module string) []types.NodeID
}

// Invoker executes a handler on a remote node.
type Invoker interface {
	Invoke(ctx context.Context, node types.NodeID, req *InvokeRequest) (*InvokeReply, error)
}

// InvokeRequest carries one raw request to the node that will handle it.
// The raw datagram travels undecoded; the executing node owns the decode.
type InvokeRequest struct {
	Module string           `json:"module"`
	Raw    []byte           `json:"raw"`
	Nas    *types.NasRecord `json:"nas"`
}

// Disposition of a remote invocation.
const (
	DispositionReply   = "reply"
	DispositionDiscard = "discard"
)

// InvokeReply is the envelope a node returns after executing a handler.
type InvokeReply struct {
	Disposition string `json:"disposition"`

	// Reason is set on discard dispositions.
	Reason string `json:"reason,omitempty"`

	// Cmd is the reply command (a codec.Command value) when Disposition
	// is "reply"; the caller uses it for per-command counting.
	Cmd int `json:"cmd,omitempty"`

	// Data holds the encoded reply bytes ready for transmission.
	Data []byte `json:"data,omitempty"`
}

// Static is the single-node Monitor/Invoker: the local registry is the
// whole pool.
type Static struct {
	Self     types.NodeID
	Registry *handler.Registry
}

// NodesFor returns the local node when it has the module registered.
func (s *Static) NodesFor(module string) []types.NodeID {
	if _, ok := s.Registry.Get(module); ok {
		return []types.NodeID{s.Self}
	}
	return nil
}

// Invoke always fails: with no bus there is nobody to call.
func (s *Static) Invoke(context.Context, types.NodeID, *InvokeRequest) (*InvokeReply, error) {
	return nil, ErrRemoteDisabled
}
