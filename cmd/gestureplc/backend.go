package main

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/gestureplc/internal/plc"
)

// Backend kinds selectable with --backend.
const (
	backendDirect = "direct"
	backendBridge = "bridge"
	backendSim    = "sim"
)

// defaultPLCAddr is the S7 CPU address used when --plc-addr is not given.
const defaultPLCAddr = "192.168.2.23"

// backendFlags are shared by every command that talks to a PLC.
type backendFlags struct {
	kind       string
	plcAddr    string
	rack       int
	slot       int
	bridgeAddr string
	timeout    time.Duration
	trace      bool
}

func (f *backendFlags) register(cmd *cobra.Command, defaultKind string) {
	cmd.Flags().StringVar(&f.kind, "backend", defaultKind, "PLC backend: direct, bridge or sim")
	cmd.Flags().StringVar(&f.plcAddr, "plc-addr", defaultPLCAddr, "S7 CPU address for the direct backend")
	cmd.Flags().IntVar(&f.rack, "rack", 0, "S7 rack")
	cmd.Flags().IntVar(&f.slot, "slot", 1, "S7 slot")
	cmd.Flags().StringVar(&f.bridgeAddr, "bridge-addr", plc.DefaultBridgeAddr, "bridge host:port for the bridge backend")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 5*time.Second, "connect and I/O timeout")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "log S7 driver traffic")
}

// build creates the selected backend. No connection is made.
func (f *backendFlags) build() (plc.Backend, error) {
	switch f.kind {
	case backendDirect:
		cfg := plc.DefaultDirectConfig(f.plcAddr)
		cfg.Rack = f.rack
		cfg.Slot = f.slot
		cfg.Timeout = f.timeout
		if f.trace {
			cfg.Logger = log.New(log.Writer(), "[S7] ", log.LstdFlags)
		}
		return plc.NewDirect(cfg), nil
	case backendBridge:
		cfg := plc.DefaultBridgeConfig(f.bridgeAddr)
		cfg.DialTimeout = f.timeout
		return plc.NewBridge(cfg), nil
	case backendSim:
		return plc.NewMemory(plc.DefaultMemorySize), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s, %s or %s)", f.kind, backendDirect, backendBridge, backendSim)
	}
}

// describe names the backend target for log lines.
func (f *backendFlags) describe() string {
	switch f.kind {
	case backendDirect:
		return fmt.Sprintf("S7 %s rack %d slot %d", f.plcAddr, f.rack, f.slot)
	case backendBridge:
		return "bridge " + f.bridgeAddr
	default:
		return "simulated PLC"
	}
}
