package nodebus

import (
	"context"
	"net"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/radgate/radgate/pkg/codec"
	"github.com/radgate/radgate/pkg/handler"
	"github.com/radgate/radgate/pkg/types"
)

// Execute runs one invocation against the local registry and produces the
// reply envelope. It is used by the bus's serve loop and shares the exact
// decode/callback/encode semantics the listening node applies locally.
func Execute(registry *handler.Registry, req *InvokeRequest, logger zerolog.Logger) *InvokeReply {
	h, ok := registry.Get(req.Module)
	if !ok {
		return &InvokeReply{Disposition: DispositionDiscard, Reason: string(types.DiscardNoNodes)}
	}

	nas := propsFromRecord(req.Nas)
	decoded, err := codec.Decode(req.Raw, nas.Secret)
	if err != nil {
		return &InvokeReply{Disposition: DispositionDiscard, Reason: string(types.DiscardBadPdu)}
	}

	rep, err := callHandler(h, decoded, nas, logger)
	if err != nil {
		return &InvokeReply{Disposition: DispositionDiscard, Reason: string(types.DiscardHandlerFailure)}
	}
	if rep == nil {
		return &InvokeReply{Disposition: DispositionDiscard, Reason: string(types.DiscardNoReply)}
	}

	if h.MsgAuth {
		rep.MsgAuth = true
	}
	wire, err := codec.EncodeReply(decoded, rep)
	if err != nil {
		logger.Error().Err(err).Str("module", req.Module).Msg("encoding reply failed")
		return &InvokeReply{Disposition: DispositionDiscard, Reason: string(types.DiscardHandlerFailure)}
	}

	return &InvokeReply{Disposition: DispositionReply, Cmd: int(rep.Cmd), Data: wire}
}

// callHandler isolates callback panics so a crashing handler never takes
// the serving node down.
func callHandler(h *handler.Handler, req *codec.Request, nas *types.NasProperties, logger zerolog.Logger) (rep *codec.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("module", h.Module).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			rep, err = nil, errPanic{}
		}
	}()
	return h.Serve(context.Background(), req, nas, h.Data)
}

type errPanic struct{}

func (errPanic) Error() string { return "handler panicked" }

func propsFromRecord(rec *types.NasRecord) *types.NasProperties {
	if rec == nil {
		return &types.NasProperties{}
	}
	var nodes []types.NodeID
	if rec.HandlerNodes != nil {
		nodes = make([]types.NodeID, 0, len(rec.HandlerNodes))
		for _, n := range rec.HandlerNodes {
			nodes = append(nodes, types.NodeID(n))
		}
	}
	return &types.NasProperties{
		Name:         rec.Name,
		NasIP:        net.ParseIP(rec.NasIP),
		NasPort:      rec.NasPort,
		Secret:       []byte(rec.Secret),
		Trace:        rec.Trace,
		HandlerNodes: nodes,
	}
}
