package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/radgate/radgate/pkg/config"
	"github.com/radgate/radgate/pkg/nas"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the NAS table",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	registry := nas.NewRegistry()
	if err := registry.LoadRecords(cfg.NasClients); err != nil {
		return err
	}

	fmt.Printf("configuration OK: %d server(s), %d NAS client(s)\n\n",
		len(cfg.Servers), len(cfg.NasClients))

	for _, srv := range cfg.Servers {
		fmt.Printf("server %s\n", srv.Listen)
		for _, rec := range cfg.NasClients {
			if rec.ListenAddr != srv.Listen {
				continue
			}
			nodes := "local"
			if rec.HandlerNodes != nil {
				nodes = strings.Join(rec.HandlerNodes, ",")
			}
			trace := ""
			if rec.Trace {
				trace = " [trace]"
			}
			fmt.Printf("  %-16s %-15s handler=%s nodes=%s%s\n",
				rec.Name, rec.NasIP, rec.Handler, nodes, trace)
		}
	}
	return nil
}
