package counter

import (
	"sync"
	"time"

	"github.com/radgate/radgate/pkg/codec"
)

// Metric names a single counter within a Store.
type Metric string

// Server-level metrics.
const (
	InvalidRequests  Metric = "invalidRequests"
	DiscardNoHandler Metric = "discardNoHandler"
)

// Per-NAS metrics.
const (
	Requests           Metric = "requests"
	AccessRequests     Metric = "accessRequests"
	AccountRequests    Metric = "accountRequests"
	CoaRequests        Metric = "coaRequests"
	DisconnectRequests Metric = "disconnectRequests"

	Replies          Metric = "replies"
	AccessAccepts    Metric = "accessAccepts"
	AccessRejects    Metric = "accessRejects"
	AccessChallenges Metric = "accessChallenges"
	AccountResponses Metric = "accountResponses"
	CoaAcks          Metric = "coaAcks"
	CoaNaks          Metric = "coaNaks"
	DiscAcks         Metric = "discAcks"
	DiscNaks         Metric = "discNaks"

	DupRequests       Metric = "dupRequests"
	MalformedRequests Metric = "malformedRequests"
	PacketsDropped    Metric = "packetsDropped"
	HandlerFailure    Metric = "handlerFailure"
)

var requestMetrics = map[codec.Command]Metric{
	codec.CmdAccessRequest:     AccessRequests,
	codec.CmdAccountingRequest: AccountRequests,
	codec.CmdCoARequest:        CoaRequests,
	codec.CmdDisconnectRequest: DisconnectRequests,
}

var replyMetrics = map[codec.Command]Metric{
	codec.CmdAccessAccept:       AccessAccepts,
	codec.CmdAccessReject:       AccessRejects,
	codec.CmdAccessChallenge:    AccessChallenges,
	codec.CmdAccountingResponse: AccountResponses,
	codec.CmdCoAACK:             CoaAcks,
	codec.CmdCoANAK:             CoaNaks,
	codec.CmdDisconnectACK:      DiscAcks,
	codec.CmdDisconnectNAK:      DiscNaks,
}

// ForRequest maps a request command onto its per-NAS counter.
func ForRequest(cmd codec.Command) (Metric, bool) {
	m, ok := requestMetrics[cmd]
	return m, ok
}

// ForReply maps a reply command onto its per-NAS counter.
func ForReply(cmd codec.Command) (Metric, bool) {
	m, ok := replyMetrics[cmd]
	return m, ok
}

// Snapshot is a point-in-time copy of a Store's counters.
type Snapshot struct {
	Server  string
	Since   time.Time
	Taken   time.Time
	Metrics map[Metric]uint64
	PerNas  map[string]map[Metric]uint64
}

// Store holds the counters for one server instance. All methods are safe
// for concurrent use.
type Store struct {
	server string

	mu     sync.Mutex
	since  time.Time
	totals map[Metric]uint64
	perNas map[string]map[Metric]uint64
}

// NewStore creates an empty counter store tagged with the server endpoint.
func NewStore(server string) *Store {
	return &Store{
		server: server,
		since:  time.Now(),
		totals: make(map[Metric]uint64),
		perNas: make(map[string]map[Metric]uint64),
	}
}

// Server returns the endpoint tag of this store.
func (s *Store) Server() string {
	return s.server
}

// IncServer increments a server-level counter.
func (s *Store) IncServer(m Metric) {
	s.mu.Lock()
	s.totals[m]++
	s.mu.Unlock()
}

// IncNas increments a per-NAS counter.
func (s *Store) IncNas(nas string, m Metric) {
	s.mu.Lock()
	byNas := s.perNas[nas]
	if byNas == nil {
		byNas = make(map[Metric]uint64)
		s.perNas[nas] = byNas
	}
	byNas[m]++
	s.mu.Unlock()
}

// Read returns the current snapshot without mutating the store.
func (s *Store) Read() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Pull returns the current snapshot and zeroes the store in the same step.
func (s *Store) Pull() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	s.resetLocked()
	return snap
}

// Reset zeroes the store.
func (s *Store) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Server:  s.server,
		Since:   s.since,
		Taken:   time.Now(),
		Metrics: make(map[Metric]uint64, len(s.totals)),
		PerNas:  make(map[string]map[Metric]uint64, len(s.perNas)),
	}
	for m, v := range s.totals {
		snap.Metrics[m] = v
	}
	for nas, byNas := range s.perNas {
		cp := make(map[Metric]uint64, len(byNas))
		for m, v := range byNas {
			cp[m] = v
		}
		snap.PerNas[nas] = cp
	}
	return snap
}

func (s *Store) resetLocked() {
	s.since = time.Now()
	s.totals = make(map[Metric]uint64)
	s.perNas = make(map[string]map[Metric]uint64)
}
