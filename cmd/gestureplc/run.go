package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/gestureplc/internal/address"
	"github.com/ayusman/gestureplc/internal/app"
	"github.com/ayusman/gestureplc/internal/debounce"
	"github.com/ayusman/gestureplc/internal/gesture"
	"github.com/ayusman/gestureplc/internal/leap"
	"github.com/ayusman/gestureplc/internal/server"
	"github.com/ayusman/gestureplc/internal/store"
	"github.com/ayusman/gestureplc/internal/tray"
)

const (
	// retryDelay is the pause before reconnecting to the tracking service.
	retryDelay = 2 * time.Second
	// defaultHistoryDays is how long pulse records are kept.
	defaultHistoryDays = 30
)

type runOptions struct {
	backend backendFlags

	configPath string
	leapURL    string
	replay     string
	paced      bool

	dbPath      string
	noHistory   bool
	historyDays int
	httpAddr  string
	webDir    string

	cooldown   time.Duration
	hold       time.Duration
	swipeSpeed float64
	poses      bool
	requireRun bool
	disabled   bool
	useTray    bool
}

func newRunCommand() *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch tracked gestures to the PLC",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context())
		},
	}

	o.backend.register(cmd, backendBridge)
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", address.DefaultConfigPath, "gesture address configuration")
	f.StringVar(&o.leapURL, "leap-url", leap.DefaultURL, "tracking service WebSocket URL")
	f.StringVar(&o.replay, "replay", "", "replay a recorded session instead of connecting to the tracking service")
	f.BoolVar(&o.paced, "paced", false, "replay frames at their recorded timing")
	f.StringVar(&o.dbPath, "db", defaultDBPath(), "pulse history database")
	f.BoolVar(&o.noHistory, "no-history", false, "do not record pulses")
	f.IntVar(&o.historyDays, "history-days", defaultHistoryDays, "days of pulse history kept at startup (0 keeps everything)")
	f.StringVar(&o.httpAddr, "http", ":8080", "status API listen address (empty to disable)")
	f.StringVar(&o.webDir, "web", "", "directory of static files served at /")
	f.DurationVar(&o.cooldown, "cooldown", debounce.DefaultInterval, "minimum time between two pulses of one gesture")
	f.DurationVar(&o.hold, "hold", app.DefaultHold, "how long a gesture flag stays set")
	f.Float64Var(&o.swipeSpeed, "swipe-speed", gesture.SwipeSpeed, "palm speed (mm/s) that counts as a swipe")
	f.BoolVar(&o.poses, "poses", false, "also classify static poses (pointing drives circle)")
	f.BoolVar(&o.requireRun, "require-run", false, "refuse to start unless the PLC reports RUN")
	f.BoolVar(&o.disabled, "disabled", false, "start with gesture dispatch switched off")
	f.BoolVar(&o.useTray, "tray", false, "show a system tray menu")

	return cmd
}

func (o *runOptions) run(ctx context.Context) error {
	// Configuration errors are fatal before anything connects.
	addrs, err := address.Load(o.configPath)
	if err != nil {
		return err
	}
	log.Printf("[CONFIG] Gesture set %q at %s%d: %s",
		addrs.Set(), addrs.Area(), addrs.ByteOffset(), strings.Join(addrs.Names(), ", "))

	backend, err := o.backend.build()
	if err != nil {
		return err
	}

	var st *store.Store
	if !o.noHistory {
		st, err = openStore(o.dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := pruneHistory(st, o.historyDays, time.Now()); err != nil {
			log.Printf("Failed to prune pulse history: %v", err)
		}
	}

	cfg := app.DefaultConfig()
	cfg.Backend = backend
	cfg.Addresses = addrs
	cfg.Classifier = &gesture.Classifier{SwipeSpeed: o.swipeSpeed, Poses: o.poses}
	cfg.Cooldown = o.cooldown
	cfg.Hold = o.hold
	cfg.IOTimeout = o.backend.timeout
	cfg.RequireRun = o.requireRun
	cfg.Enabled = !o.disabled
	cfg.Store = st

	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	log.Printf("[INIT] Connecting to %s", o.backend.describe())
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop()

	src, err := o.source()
	if err != nil {
		return err
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if o.httpAddr != "" {
		srv := server.New(server.Config{App: a, Store: st, StaticDir: o.webDir})
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("[HTTP] Listening on %s", o.httpAddr)
			if err := srv.ListenAndServe(ctx, o.httpAddr); err != nil {
				log.Printf("[HTTP] Server failed: %v", err)
			}
		}()
	}

	log.Println("[READY] Gesture detection active")

	if !o.useTray {
		err := o.track(ctx, a, src)
		cancel()
		wg.Wait()
		return err
	}

	t := tray.New(a.IsEnabled())
	t.OnToggle(a.SetEnabled)
	t.OnQuit(cancel)
	if o.httpAddr != "" {
		url := statusURL(o.httpAddr)
		t.OnOpenStatus(func() {
			if err := openBrowser(url); err != nil {
				log.Printf("Failed to open %s: %v", url, err)
			}
		})
	}
	a.RegisterPulseCallback(func(p app.Pulse) {
		t.SetLastGesture(p.Gesture)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- o.track(ctx, a, src)
		t.Quit()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		pollPLCState(ctx, a, t)
	}()

	// The tray owns the main goroutine until it quits.
	t.Run()
	cancel()
	err = <-errCh
	wg.Wait()
	return err
}

func (o *runOptions) source() (leap.Source, error) {
	if o.replay != "" {
		log.Printf("[INIT] Replaying %s", o.replay)
		return leap.OpenReplay(o.replay, o.paced)
	}

	cfg := leap.DefaultConfig()
	cfg.URL = o.leapURL
	log.Printf("[INIT] Tracking service %s", cfg.URL)
	return leap.NewWebSocketSource(cfg), nil
}

// track runs src until ctx is done. A live tracking connection is retried
// when it drops; a replay runs once.
func (o *runOptions) track(ctx context.Context, a *app.App, src leap.Source) error {
	for {
		err := a.Run(ctx, src)
		if ctx.Err() != nil {
			return nil
		}
		if o.replay != "" {
			if err == nil {
				log.Println("[REPLAY] Finished")
			}
			return err
		}

		if err != nil {
			log.Printf("[LEAP] %v; retrying in %s", err, retryDelay)
		} else {
			log.Printf("[LEAP] Connection closed; retrying in %s", retryDelay)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}
}

// pollPLCState mirrors the backend state into the tray menu.
func pollPLCState(ctx context.Context, a *app.App, t *tray.Tray) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		t.SetPLCState(a.BackendState(ctx).String())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "gestureplc.db"
	}
	return filepath.Join(homeDir, ".gestureplc", "gestureplc.db")
}

func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pulse history: %w", err)
	}
	return st, nil
}

// pruneHistory removes pulse records older than days before now.
func pruneHistory(st *store.Store, days int, now time.Time) error {
	if days <= 0 {
		return nil
	}
	cutoff := now.AddDate(0, 0, -days)
	removed, err := st.Pulses().DeleteBefore(cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("[HISTORY] Removed %d pulses before %s", removed, cutoff.Format(time.DateOnly))
	}
	return nil
}

func statusURL(listenAddr string) string {
	host := listenAddr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + "/api/status"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
