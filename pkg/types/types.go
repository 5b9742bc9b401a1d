package types

import (
	"fmt"
	"net"
)

// NodeID identifies a worker node in the handler pool.
type NodeID string

// NasProperties describes one registered NAS client as seen by a server
// instance. A copy travels with each accepted request for the life of the
// transaction.
type NasProperties struct {
	Name       string
	ServerIP   net.IP
	ServerPort int
	NasIP      net.IP
	NasPort    int
	Secret     []byte
	Trace      bool

	// HandlerNodes is the set of worker nodes the NAS permits its handler
	// to execute on. A nil slice pins execution to the listening node.
	HandlerNodes []NodeID
}

// Local reports whether handler execution is pinned to the listening node.
func (p *NasProperties) Local() bool {
	return p.HandlerNodes == nil
}

// Key returns the per-NAS counter key for this client.
func (p *NasProperties) Key() string {
	return fmt.Sprintf("%s/%s", p.Name, p.NasIP)
}

// NasRecord is the serialized form of a NAS registration, used by the
// YAML configuration and the persistent store. The registry converts
// records into NasProperties at load time.
type NasRecord struct {
	Name         string   `json:"name" yaml:"name"`
	ListenAddr   string   `json:"listen_addr" yaml:"listen_addr"`
	NasIP        string   `json:"nas_ip" yaml:"nas_ip"`
	NasPort      int      `json:"nas_port" yaml:"nas_port"`
	Secret       string   `json:"secret" yaml:"secret"`
	Trace        bool     `json:"trace" yaml:"trace"`
	Handler      string   `json:"handler" yaml:"handler"`
	HandlerNodes []string `json:"handler_nodes,omitempty" yaml:"handler_nodes,omitempty"`
}

// Key returns the store key for this record, unique per server endpoint
// and NAS source address.
func (r *NasRecord) Key() string {
	return r.ListenAddr + "/" + r.NasIP
}

// DiscardReason classifies why a request was dropped without a reply.
type DiscardReason string

const (
	DiscardBadPdu              DiscardReason = "bad_pdu"
	DiscardUnknownNas          DiscardReason = "unknown_nas"
	DiscardNoNodes             DiscardReason = "no_nodes"
	DiscardNoNodesLocal        DiscardReason = "no_nodes_local"
	DiscardNoReply             DiscardReason = "handler_returned_noreply"
	DiscardBadReturn           DiscardReason = "bad_return"
	DiscardRemoteReplyTimeout  DiscardReason = "remote_handler_reply_timeout"
	DiscardHandlerFailure      DiscardReason = "handler_failure"
	DiscardAdmissionRefused    DiscardReason = "packets_dropped"
	DiscardDuplicate           DiscardReason = "duplicate"
	DiscardShutdown            DiscardReason = "shutdown"
)

// NoHandler reports whether the reason counts against the server-level
// discardNoHandler counter. Both the local and the clustered variant do.
func (r DiscardReason) NoHandler() bool {
	return r == DiscardNoNodes || r == DiscardNoNodesLocal
}
