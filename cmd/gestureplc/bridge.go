package main

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/spf13/cobra"

	"github.com/ayusman/gestureplc/internal/plc"
)

type bridgeOptions struct {
	backend backendFlags
	listen  string
}

func newBridgeCommand() *cobra.Command {
	o := &bridgeOptions{}

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Serve the line-based bridge protocol",
		Long: `bridge accepts WRITE and READ commands over TCP and applies them to a PLC
reached directly over S7, or to a simulated PLC with --backend sim.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context())
		},
	}

	o.backend.register(cmd, backendSim)
	cmd.Flags().StringVar(&o.listen, "listen", ":5000", "TCP listen address")

	return cmd
}

func (o *bridgeOptions) run(ctx context.Context) error {
	if o.backend.kind == backendBridge {
		return fmt.Errorf("bridge cannot forward to another bridge; use --backend direct or sim")
	}

	backend, err := o.backend.build()
	if err != nil {
		return err
	}

	log.Printf("[INIT] Connecting to %s", o.backend.describe())
	if err := backend.Connect(ctx); err != nil {
		return err
	}
	defer backend.Disconnect()
	log.Printf("[PLC] State %s", backend.ConnectionState(ctx))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", o.listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", o.listen, err)
	}
	log.Printf("[READY] Bridge listening on %s", ln.Addr())

	return plc.NewBridgeServer(backend, log.Default()).Serve(ctx, ln)
}
