package reqlog

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/radgate/radgate/pkg/codec"
	"github.com/radgate/radgate/pkg/log"
	"github.com/radgate/radgate/pkg/types"
)

// Direction tells whether a line describes an inbound request or an
// outbound reply.
type Direction string

const (
	DirRequest Direction = "request"
	DirReply   Direction = "reply"
)

// Writer records request and reply lines.
type Writer interface {
	// WriteRequest logs one packet keyed by the NAS source tuple.
	WriteRequest(nasIP net.IP, nasPort int, reqID uint8, dir Direction, cmd codec.Command, size int)

	// Trace emits a human-readable line for a trace-flagged NAS. It is a
	// no-op when the NAS does not have tracing enabled.
	Trace(nas *types.NasProperties, format string, args ...any)
}

// ZerologWriter is the default Writer backed by the global logger.
type ZerologWriter struct {
	logger zerolog.Logger
}

// New creates a writer scoped to the given server endpoint.
func New(server string) *ZerologWriter {
	return &ZerologWriter{
		logger: log.WithComponent("reqlog").With().Str("server", server).Logger(),
	}
}

func (w *ZerologWriter) WriteRequest(nasIP net.IP, nasPort int, reqID uint8, dir Direction, cmd codec.Command, size int) {
	w.logger.Debug().
		Str("nas_ip", nasIP.String()).
		Int("nas_port", nasPort).
		Uint8("request_id", reqID).
		Str("direction", string(dir)).
		Str("command", cmd.String()).
		Int("bytes", size).
		Msg("radius packet")
}

func (w *ZerologWriter) Trace(nas *types.NasProperties, format string, args ...any) {
	if nas == nil || !nas.Trace {
		return
	}
	w.logger.Info().
		Str("nas", nas.Name).
		Str("nas_ip", nas.NasIP.String()).
		Msg("trace: " + fmt.Sprintf(format, args...))
}

// Nop is a Writer that discards everything; used in tests.
type Nop struct{}

func (Nop) WriteRequest(net.IP, int, uint8, Direction, codec.Command, int) {}
func (Nop) Trace(*types.NasProperties, string, ...any)                     {}
