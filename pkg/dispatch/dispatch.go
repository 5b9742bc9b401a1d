package dispatch

import (
	"errors"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/radgate/radgate/pkg/types"
)

var (
	// ErrNoNodes means no node in the candidate set can run the handler.
	ErrNoNodes = errors.New("no nodes advertising handler")

	// ErrNoNodesLocal means the NAS pins execution locally but the local
	// node does not advertise the handler.
	ErrNoNodesLocal = errors.New("handler not available on local node")
)

// Select picks the node that will execute a request.
//
// advertising is the set of nodes currently offering the handler module;
// preferred is the NAS's node preference, nil meaning execution is pinned
// to local. With multiple eligible candidates one is chosen uniformly at
// random per request.
func Select(local types.NodeID, advertising []types.NodeID, preferred []types.NodeID) (types.NodeID, error) {
	if len(advertising) == 0 {
		return "", ErrNoNodes
	}

	if preferred == nil {
		for _, n := range advertising {
			if n == local {
				return local, nil
			}
		}
		return "", ErrNoNodesLocal
	}

	candidates := intersect(advertising, preferred)
	switch len(candidates) {
	case 0:
		return "", ErrNoNodes
	case 1:
		return candidates[0], nil
	default:
		return candidates[pick(len(candidates))], nil
	}
}

// intersect keeps advertising order so repeated calls walk a stable list.
func intersect(advertising, preferred []types.NodeID) []types.NodeID {
	allowed := make(map[types.NodeID]struct{}, len(preferred))
	for _, n := range preferred {
		allowed[n] = struct{}{}
	}
	var out []types.NodeID
	for _, n := range advertising {
		if _, ok := allowed[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// pick hashes a fresh unique token so each request lands independently.
func pick(n int) int {
	id := uuid.New()
	h := fnv.New32a()
	h.Write(id[:])
	return int(h.Sum32() % uint32(n))
}
