package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/radgate/radgate/pkg/codec"
	"github.com/radgate/radgate/pkg/config"
	"github.com/radgate/radgate/pkg/events"
	"github.com/radgate/radgate/pkg/handler"
	"github.com/radgate/radgate/pkg/log"
	"github.com/radgate/radgate/pkg/metrics"
	"github.com/radgate/radgate/pkg/nas"
	"github.com/radgate/radgate/pkg/nodebus"
	"github.com/radgate/radgate/pkg/server"
	"github.com/radgate/radgate/pkg/storage"
	"github.com/radgate/radgate/pkg/types"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the RADIUS server",
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger := log.WithComponent("main")
	nodeID := types.NodeID(cfg.NodeID)

	handlers := handler.NewRegistry()
	if err := registerBuiltinHandlers(handlers); err != nil {
		return err
	}

	registry := nas.NewRegistry()
	if err := registry.LoadRecords(cfg.NasClients); err != nil {
		return fmt.Errorf("loading NAS clients: %w", err)
	}
	if cfg.DataDir != "" {
		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := registry.LoadStore(store); err != nil {
			return err
		}
	}

	var (
		monitor nodebus.Monitor
		invoker nodebus.Invoker
	)
	if cfg.NatsURL != "" {
		bus, err := nodebus.Connect(cfg.NatsURL, nodeID, handlers)
		if err != nil {
			return err
		}
		defer bus.Close()
		if err := bus.Serve(); err != nil {
			return err
		}
		metrics.RegisterComponent("nodebus", true, "")
		monitor, invoker = bus, bus
	} else {
		static := &nodebus.Static{Self: nodeID, Registry: handlers}
		monitor, invoker = static, static
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	var servers []*server.Server
	for _, sc := range cfg.Servers {
		host, port, err := net.SplitHostPort(sc.Listen)
		if err != nil {
			return fmt.Errorf("invalid listen address %q: %w", sc.Listen, err)
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return fmt.Errorf("invalid listen IP %q", host)
		}
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
			return fmt.Errorf("invalid listen port %q", port)
		}

		srv, err := server.Start(ip, p, server.Options{
			NodeID:        nodeID,
			Handlers:      handlers,
			Registry:      registry,
			Monitor:       monitor,
			Invoker:       invoker,
			RateConfig:    sc.Rate,
			ResendTimeout: cfg.ResendTimeout(),
			Events:        broker,
		})
		if err != nil {
			return err
		}
		defer srv.Close()
		servers = append(servers, srv)
	}

	metrics.SetVersion(Version)
	logger.Info().
		Int("servers", len(servers)).
		Int("nas_clients", registry.Len()).
		Str("node_id", cfg.NodeID).
		Msg("radgate running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")
	return nil
}

// registerBuiltinHandlers installs the static lab handlers. Production
// deployments embed radgate as a library and register their own modules.
func registerBuiltinHandlers(reg *handler.Registry) error {
	return reg.Register(&handler.Handler{
		Module: "static",
		Serve: func(ctx context.Context, req *codec.Request, props *types.NasProperties, data any) (*codec.Reply, error) {
			switch req.Cmd {
			case codec.CmdAccessRequest:
				return &codec.Reply{Cmd: codec.CmdAccessAccept}, nil
			case codec.CmdAccountingRequest:
				return &codec.Reply{Cmd: codec.CmdAccountingResponse}, nil
			case codec.CmdCoARequest:
				return &codec.Reply{Cmd: codec.CmdCoAACK}, nil
			case codec.CmdDisconnectRequest:
				return &codec.Reply{Cmd: codec.CmdDisconnectACK}, nil
			}
			return nil, nil
		},
	})
}
