package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "gestureplc",
		Short: "Pulse PLC gesture flags from hand tracking",
		Long: `gestureplc classifies hand tracking frames into swipe and pose gestures and
pulses one flag bit per gesture in PLC marker memory, either directly over S7
or through a line-based TCP bridge.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCommand(), newProbeCommand(), newBridgeCommand())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Printf("Error: %v", err)
		cancel()
		os.Exit(1)
	}
}
