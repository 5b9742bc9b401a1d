package nas

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/radgate/radgate/pkg/storage"
	"github.com/radgate/radgate/pkg/types"
)

// ErrUnknownNas is returned when no registration matches the source.
var ErrUnknownNas = errors.New("unknown NAS")

// Entry is one resolved NAS registration.
type Entry struct {
	// Handler is the module name invoked for this NAS.
	Handler string

	Props *types.NasProperties

	// Rec is the record the entry was built from; remote dispatch ships
	// it to the executing node.
	Rec *types.NasRecord
}

// Registry answers NAS lookups for one or more server endpoints. All
// methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

func entryKey(listenAddr string, nasIP net.IP) string {
	return listenAddr + "/" + nasIP.String()
}

// Register adds or replaces a registration built from a record.
func (r *Registry) Register(rec *types.NasRecord) error {
	nasIP := net.ParseIP(rec.NasIP)
	if nasIP == nil {
		return fmt.Errorf("invalid NAS IP %q for %q", rec.NasIP, rec.Name)
	}
	listenIP, listenPort, err := splitAddr(rec.ListenAddr)
	if err != nil {
		return fmt.Errorf("invalid listen address for %q: %w", rec.Name, err)
	}
	if rec.Handler == "" {
		return fmt.Errorf("NAS %q has no handler module", rec.Name)
	}

	var nodes []types.NodeID
	if rec.HandlerNodes != nil {
		nodes = make([]types.NodeID, 0, len(rec.HandlerNodes))
		for _, n := range rec.HandlerNodes {
			nodes = append(nodes, types.NodeID(n))
		}
	}

	entry := &Entry{
		Handler: rec.Handler,
		Rec:     rec,
		Props: &types.NasProperties{
			Name:         rec.Name,
			ServerIP:     listenIP,
			ServerPort:   listenPort,
			NasIP:        nasIP,
			NasPort:      rec.NasPort,
			Secret:       []byte(rec.Secret),
			Trace:        rec.Trace,
			HandlerNodes: nodes,
		},
	}

	r.mu.Lock()
	r.entries[entryKey(rec.ListenAddr, nasIP)] = entry
	r.mu.Unlock()
	return nil
}

// Deregister removes a registration.
func (r *Registry) Deregister(listenAddr string, nasIP net.IP) {
	r.mu.Lock()
	delete(r.entries, entryKey(listenAddr, nasIP))
	r.mu.Unlock()
}

// Lookup resolves the NAS behind a datagram received on the given listen
// endpoint. Unknown sources return ErrUnknownNas.
func (r *Registry) Lookup(listenIP net.IP, listenPort int, nasIP net.IP) (*Entry, error) {
	addr := net.JoinHostPort(listenIP.String(), fmt.Sprint(listenPort))
	r.mu.RLock()
	entry, ok := r.entries[entryKey(addr, nasIP)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownNas
	}
	return entry, nil
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// LoadRecords registers a batch of records, failing on the first bad one.
func (r *Registry) LoadRecords(recs []*types.NasRecord) error {
	for _, rec := range recs {
		if err := r.Register(rec); err != nil {
			return err
		}
	}
	return nil
}

// LoadStore registers every record persisted in the store.
func (r *Registry) LoadStore(store storage.Store) error {
	recs, err := store.ListNas()
	if err != nil {
		return fmt.Errorf("listing NAS records: %w", err)
	}
	return r.LoadRecords(recs)
}

func splitAddr(addr string) (net.IP, int, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, fmt.Errorf("invalid IP %q", host)
	}
	var p int
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil || p <= 0 || p > 65535 {
		return nil, 0, fmt.Errorf("invalid port %q", port)
	}
	return ip, p, nil
}
