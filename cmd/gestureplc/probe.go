package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/gestureplc/internal/address"
	"github.com/ayusman/gestureplc/internal/app"
)

type probeOptions struct {
	backend    backendFlags
	configPath string
	pulse      string
	cycle      bool
	hold       time.Duration
}

func newProbeCommand() *cobra.Command {
	o := &probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect to the PLC and show every gesture flag",
		Long: `probe connects to the PLC, prints its state and the current value of every
gesture flag in the active set. With --cycle it sets, reads back, clears and
reads back each flag in turn.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	o.backend.register(cmd, backendBridge)
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", address.DefaultConfigPath, "gesture address configuration")
	f.StringVar(&o.pulse, "pulse", "", "pulse one gesture flag")
	f.BoolVar(&o.cycle, "cycle", false, "write and read back every gesture flag")
	f.DurationVar(&o.hold, "hold", app.DefaultHold, "how long a pulsed flag stays set")

	return cmd
}

func (o *probeOptions) run(ctx context.Context, out io.Writer) error {
	addrs, err := address.Load(o.configPath)
	if err != nil {
		return err
	}

	backend, err := o.backend.build()
	if err != nil {
		return err
	}

	cfg := app.DefaultConfig()
	cfg.Backend = backend
	cfg.Addresses = addrs
	cfg.Hold = o.hold
	cfg.IOTimeout = o.backend.timeout
	cfg.Logger = log.New(os.Stderr, "", log.LstdFlags)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop()

	fmt.Fprintf(out, "PLC:  %s (%s)\n", o.backend.describe(), a.BackendState(ctx))
	fmt.Fprintf(out, "Set:  %s at %s%d\n\n", addrs.Set(), addrs.Area(), addrs.ByteOffset())

	if o.pulse != "" {
		p, err := a.Pulse(ctx, o.pulse)
		if err != nil {
			return fmt.Errorf("pulse %s: %w", o.pulse, err)
		}
		fmt.Fprintf(out, "Pulsed %s (%s) in %s\n\n", p.Gesture, p.Address, p.Duration.Round(time.Millisecond))
	}

	if o.cycle {
		return cycleFlags(ctx, a, out)
	}
	return printFlags(ctx, a, out)
}

func printFlags(ctx context.Context, a *app.App, out io.Writer) error {
	values, err := a.ReadAll(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GESTURE\tADDRESS\tVALUE")
	for _, name := range a.Addresses().Names() {
		addr, _ := a.Addresses().Resolve(name)
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, addr, bit(values[name]))
	}
	return w.Flush()
}

// cycleFlags sets and clears every flag, reading each back.
func cycleFlags(ctx context.Context, a *app.App, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GESTURE\tADDRESS\tON\tOFF")

	failed := 0
	for _, name := range a.Addresses().Names() {
		addr, _ := a.Addresses().Resolve(name)
		on := readBack(ctx, a, name, true)
		off := readBack(ctx, a, name, false)
		if on != "1" || off != "0" {
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, addr, on, off)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d flags did not read back", failed, len(a.Addresses().Names()))
	}
	return nil
}

func readBack(ctx context.Context, a *app.App, name string, value bool) string {
	if err := a.WriteGesture(ctx, name, value); err != nil {
		return "write: " + err.Error()
	}
	got, err := a.ReadGesture(ctx, name)
	if err != nil {
		return "read: " + err.Error()
	}
	return bit(got)
}

func bit(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
