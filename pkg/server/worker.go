package server

import (
	"errors"
	"net"
	"runtime/debug"
	"time"

	"github.com/radgate/radgate/pkg/codec"
	"github.com/radgate/radgate/pkg/counter"
	"github.com/radgate/radgate/pkg/dispatch"
	"github.com/radgate/radgate/pkg/events"
	"github.com/radgate/radgate/pkg/handler"
	"github.com/radgate/radgate/pkg/metrics"
	"github.com/radgate/radgate/pkg/nas"
	"github.com/radgate/radgate/pkg/nodebus"
	"github.com/radgate/radgate/pkg/reqlog"
	"github.com/radgate/radgate/pkg/types"
)

// worker executes one request end-to-end and serves retransmissions until
// its retention window closes.
type worker struct {
	srv   *Server
	key   RequestKey
	entry *nas.Entry
	raw   []byte
	peer  *net.UDPAddr

	// resend is signalled by the listener for each duplicate that arrives
	// after the reply went out. Its capacity is the retry budget.
	resend chan struct{}

	cached []byte
}

func newWorker(s *Server, key RequestKey, entry *nas.Entry, raw []byte, peer *net.UDPAddr) *worker {
	return &worker{
		srv:    s,
		key:    key,
		entry:  entry,
		raw:    raw,
		peer:   peer,
		resend: make(chan struct{}, resendRetries),
	}
}

// signalResend asks the worker to retransmit its cached reply. Called
// from the listener goroutine; never blocks. Once the budget is consumed
// further duplicates are dropped on the floor.
func (w *worker) signalResend() {
	select {
	case w.resend <- struct{}{}:
	default:
	}
}

// run drives the request lifecycle. Any panic escaping the handler guard
// is reported to the listener as an abnormal exit so the table is purged.
func (w *worker) run() {
	defer w.srv.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.srv.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker died")
			w.srv.send(signal{kind: sigWorkerExit, w: w, abnormal: true})
			return
		}
		w.srv.send(signal{kind: sigWorkerExit, w: w})
	}()

	nasProps := w.entry.Props
	nasKey := nasProps.Key()

	// Admission before any real work.
	token, err := w.srv.admit.Ask()
	if err != nil {
		w.srv.counters.IncNas(nasKey, counter.PacketsDropped)
		metrics.AdmissionRefusalsTotal.WithLabelValues(w.srv.addr).Inc()
		w.discard(types.DiscardAdmissionRefused)
		return
	}
	defer w.srv.admit.Done(token)

	// Node selection.
	advertising := w.srv.opts.Monitor.NodesFor(w.entry.Handler)
	var preferred []types.NodeID
	if !nasProps.Local() {
		preferred = nasProps.HandlerNodes
	}
	node, err := dispatch.Select(w.srv.opts.NodeID, advertising, preferred)
	if err != nil {
		reason := types.DiscardNoNodes
		if errors.Is(err, dispatch.ErrNoNodesLocal) {
			reason = types.DiscardNoNodesLocal
		}
		w.srv.counters.IncServer(counter.DiscardNoHandler)
		w.srv.logger.Debug().Err(err).Str("module", w.entry.Handler).Msg("no node available for handler")
		w.discard(reason)
		return
	}

	timer := metrics.NewTimer()
	if node == w.srv.opts.NodeID {
		if !w.runLocal(nasKey) {
			return
		}
		timer.ObserveDurationVec(metrics.HandlerDuration, w.srv.addr, "local")
	} else {
		if !w.runRemote(node, nasKey) {
			return
		}
		timer.ObserveDurationVec(metrics.HandlerDuration, w.srv.addr, "remote")
	}

	// The handler has finished; its admission slot is not held through
	// the retention window.
	w.srv.admit.Done(token)
	w.retain()
}

// runLocal decodes and handles the request in-process. It returns true
// when a reply was sent and retention should begin.
func (w *worker) runLocal(nasKey string) bool {
	req, err := codec.Decode(w.raw, w.entry.Props.Secret)
	if err != nil {
		w.srv.counters.IncNas(nasKey, counter.MalformedRequests)
		w.discard(types.DiscardBadPdu)
		return false
	}
	if m, ok := counter.ForRequest(req.Cmd); ok {
		w.srv.counters.IncNas(nasKey, m)
		metrics.RequestsTotal.WithLabelValues(w.srv.addr, nasKey, req.Cmd.String()).Inc()
	}
	w.srv.reqlog.WriteRequest(w.entry.Props.NasIP, w.entry.Props.NasPort, req.ID, reqlog.DirRequest, req.Cmd, len(w.raw))

	h, ok := w.srv.opts.Handlers.Get(w.entry.Handler)
	if !ok {
		w.srv.counters.IncServer(counter.DiscardNoHandler)
		w.discard(types.DiscardNoNodes)
		return false
	}

	rep, err := w.callHandler(h, req)
	if err != nil {
		w.srv.counters.IncNas(nasKey, counter.HandlerFailure)
		metrics.HandlerFailuresTotal.WithLabelValues(w.srv.addr, nasKey).Inc()
		w.discard(types.DiscardHandlerFailure)
		return false
	}
	if rep == nil {
		w.discard(types.DiscardNoReply)
		return false
	}

	if h.MsgAuth {
		rep.MsgAuth = true
	}
	wire, err := codec.EncodeReply(req, rep)
	if err != nil {
		w.srv.logger.Error().Err(err).Msg("encoding reply failed")
		w.srv.counters.IncNas(nasKey, counter.HandlerFailure)
		metrics.HandlerFailuresTotal.WithLabelValues(w.srv.addr, nasKey).Inc()
		w.discard(types.DiscardHandlerFailure)
		return false
	}

	return w.sendReply(nasKey, rep.Cmd, wire, req.ID)
}

// callHandler isolates callback faults: a panic is logged with its stack
// and surfaces as a handler failure, not a worker death.
func (w *worker) callHandler(h *handler.Handler, req *codec.Request) (rep *codec.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.srv.logger.Error().
				Interface("panic", r).
				Str("module", h.Module).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			rep, err = nil, errors.New("handler panicked")
		}
	}()
	return h.Serve(w.srv.ctx, req, w.entry.Props, h.Data)
}

// runRemote ships the raw request to the selected node and relays its
// reply. It returns true when a reply was sent.
func (w *worker) runRemote(node types.NodeID, nasKey string) bool {
	metrics.RemoteDispatchTotal.WithLabelValues(w.srv.addr, string(node)).Inc()

	rep, err := w.srv.opts.Invoker.Invoke(w.srv.ctx, node, &nodebus.InvokeRequest{
		Module: w.entry.Handler,
		Raw:    w.raw,
		Nas:    w.entry.Rec,
	})
	if err != nil {
		if errors.Is(err, nodebus.ErrReplyTimeout) || errors.Is(err, nodebus.ErrNoResponder) {
			metrics.RemoteTimeoutsTotal.WithLabelValues(w.srv.addr, string(node)).Inc()
		}
		w.srv.counters.IncNas(nasKey, counter.HandlerFailure)
		metrics.HandlerFailuresTotal.WithLabelValues(w.srv.addr, nasKey).Inc()
		w.srv.reqlog.Trace(w.entry.Props, "remote invoke on %s failed: %v", node, err)
		w.discard(types.DiscardRemoteReplyTimeout)
		return false
	}

	if rep.Disposition != nodebus.DispositionReply {
		switch types.DiscardReason(rep.Reason) {
		case types.DiscardBadPdu:
			w.srv.counters.IncNas(nasKey, counter.MalformedRequests)
		case types.DiscardHandlerFailure:
			w.srv.counters.IncNas(nasKey, counter.HandlerFailure)
			metrics.HandlerFailuresTotal.WithLabelValues(w.srv.addr, nasKey).Inc()
		}
		w.discard(types.DiscardReason(rep.Reason))
		return false
	}

	// The remote node owns the decode; request accounting still belongs
	// to the receiving server.
	cmd := requestCmd(w.raw)
	if m, ok := counter.ForRequest(cmd); ok {
		w.srv.counters.IncNas(nasKey, m)
		metrics.RequestsTotal.WithLabelValues(w.srv.addr, nasKey, cmd.String()).Inc()
	}
	w.srv.reqlog.WriteRequest(w.entry.Props.NasIP, w.entry.Props.NasPort, w.key.ID, reqlog.DirRequest, cmd, len(w.raw))
	return w.sendReply(nasKey, codec.Command(rep.Cmd), rep.Data, w.key.ID)
}

// sendReply transmits the encoded reply, records it, signals the listener
// and caches the bytes for retransmission.
func (w *worker) sendReply(nasKey string, cmd codec.Command, wire []byte, reqID uint8) bool {
	if _, err := w.srv.conn.WriteToUDP(wire, w.peer); err != nil {
		w.srv.logger.Error().Err(err).Str("peer", w.peer.String()).Msg("reply send failed")
		w.discard(types.DiscardHandlerFailure)
		return false
	}

	if m, ok := counter.ForReply(cmd); ok {
		w.srv.counters.IncNas(nasKey, m)
		metrics.RepliesTotal.WithLabelValues(w.srv.addr, nasKey, cmd.String()).Inc()
	}
	w.srv.reqlog.WriteRequest(w.entry.Props.NasIP, w.entry.Props.NasPort, reqID, reqlog.DirReply, cmd, len(wire))
	w.srv.reqlog.Trace(w.entry.Props, "reply %s id=%d sent", cmd, reqID)
	w.srv.publish(events.EventReplySent, cmd.String(), nil)

	w.cached = wire
	w.srv.send(signal{kind: sigReplied, key: w.key, w: w})
	return true
}

// retain serves retransmissions until the retention timer fires or the
// retry budget is spent, then releases the transaction.
func (w *worker) retain() {
	timer := time.NewTimer(w.srv.resendTimeout)
	defer timer.Stop()

	retries := 0
	for retries < resendRetries {
		select {
		case <-w.resend:
			if _, err := w.srv.conn.WriteToUDP(w.cached, w.peer); err != nil {
				w.srv.logger.Error().Err(err).Msg("retransmission failed")
			} else {
				retries++
				metrics.RetransmissionsTotal.WithLabelValues(w.srv.addr).Inc()
				w.srv.publish(events.EventReplyResent, w.peer.String(), nil)
			}
		case <-timer.C:
			w.srv.send(signal{kind: sigDiscarded, key: w.key, w: w})
			return
		case <-w.srv.ctx.Done():
			return
		}
	}
	w.srv.send(signal{kind: sigDiscarded, key: w.key, w: w})
}

// discard releases the transaction without a reply.
func (w *worker) discard(reason types.DiscardReason) {
	metrics.DiscardsTotal.WithLabelValues(w.srv.addr, string(reason)).Inc()
	w.srv.reqlog.Trace(w.entry.Props, "request id=%d discarded: %s", w.key.ID, reason)
	w.srv.publish(events.EventRequestDiscarded, string(reason), nil)
	w.srv.send(signal{kind: sigDiscarded, key: w.key, w: w})
}

// requestCmd extracts the command of a raw request for counting when the
// decode happened elsewhere.
func requestCmd(raw []byte) codec.Command {
	if len(raw) < 1 {
		return codec.CmdUnknown
	}
	switch raw[0] {
	case 1:
		return codec.CmdAccessRequest
	case 4:
		return codec.CmdAccountingRequest
	case 43:
		return codec.CmdCoARequest
	case 40:
		return codec.CmdDisconnectRequest
	}
	return codec.CmdUnknown
}
