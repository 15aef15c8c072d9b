package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/hotplug/internal/api"
	"github.com/tutu-network/hotplug/internal/health"
	"github.com/tutu-network/hotplug/internal/infra/cpu"
	"github.com/tutu-network/hotplug/internal/infra/hotplug"
	"github.com/tutu-network/hotplug/internal/infra/metrics"
	"github.com/tutu-network/hotplug/internal/infra/sqlite"
)

// pruneInterval is how often journal entries past retention are removed.
const pruneInterval = time.Hour

// Daemon is the hotplug runtime. It wires together all services.
type Daemon struct {
	Config     Config
	Log        logr.Logger
	DB         *sqlite.DB
	Journal    *sqlite.Journal // nil when the journal is disabled
	Controller *hotplug.Controller
	Simulated  *cpu.Simulated // nil on real hardware
	Server     *api.Server
	Health     *health.Checker

	startEnabled bool
	syncLog      func()
	ready        chan struct{}
	addr         string
}

// New loads the config and creates a Daemon.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	log, syncLog, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		Config:  cfg,
		Log:     log,
		syncLog: syncLog,
		ready:   make(chan struct{}),
	}

	backend, err := d.newBackend()
	if err != nil {
		syncLog()
		return nil, fmt.Errorf("platform %s: %w", cfg.Platform.Backend, err)
	}
	total := backend.Topology.TotalCores()

	db, err := sqlite.Open(hotplugHome())
	if err != nil {
		syncLog()
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.DB = db

	observers := hotplug.Observers{metrics.Recorder{}}
	if cfg.Journal.Enabled {
		d.Journal = sqlite.NewJournal(db, cfg.Journal.Queue, log)
		observers = append(observers, d.Journal)
	}

	tunables := cfg.Controller.Tunables(total)
	if len(tunables.Thresholds) == 0 {
		tunables.Thresholds = hotplug.DefaultThresholds(total)
	}
	ctrl, err := hotplug.New(backend, tunables, hotplug.Options{
		PrimaryCore: cfg.Controller.PrimaryCore,
		Observer:    observers,
	}, log)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create controller: %w", err)
	}
	d.Controller = ctrl

	d.startEnabled = cfg.Controller.Enabled
	if cfg.Controller.RestoreTunables {
		d.restore(context.Background())
	}

	interval, _ := parseDuration(cfg.Health.Interval)
	d.Health = health.NewChecker(health.Options{
		DB:         db,
		Topology:   backend.Topology,
		Controller: ctrl,
		Interval:   interval,
		Log:        log,
	})

	srv := api.NewServer(ctrl, log)
	srv.SetStore(db)
	srv.SetHealth(d.Health)
	srv.OnChange(d.publishState)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	log.Info("daemon initialized",
		"backend", cfg.Platform.Backend,
		"cores", total,
		"home", hotplugHome(),
		"enabled", d.startEnabled)
	return d, nil
}

// newBackend builds the platform collaborators selected by the config.
func (d *Daemon) newBackend() (hotplug.Backend, error) {
	p := d.Config.Platform
	if p.Backend == "simulated" {
		delay, err := parseDuration(p.SimulatedDelay)
		if err != nil {
			return hotplug.Backend{}, err
		}
		sim, err := cpu.NewSimulated(cpu.SimulatedOptions{
			Cores:           p.SimulatedCores,
			Online:          p.SimulatedOnline,
			Threads:         p.SimulatedLoad,
			TransitionDelay: delay,
			FixedCores:      []int{d.Config.Controller.PrimaryCore},
		})
		if err != nil {
			return hotplug.Backend{}, err
		}
		d.Simulated = sim
		return sim.Backend(), nil
	}

	backend, sysfs, err := cpu.NewLinuxBackend(p.SysfsRoot, p.SchedstatPath)
	if err != nil {
		return hotplug.Backend{}, err
	}
	if !sysfs.Hotpluggable(d.Config.Controller.PrimaryCore) {
		d.Log.V(1).Info("primary core has no online control", "cpu", d.Config.Controller.PrimaryCore)
	}
	return backend, nil
}

// restore applies the tunables and enabled state saved by a previous run.
// Saved values that no longer fit this machine are ignored.
func (d *Daemon) restore(ctx context.Context) {
	saved, ok, err := d.DB.LoadTunables(ctx)
	switch {
	case err != nil:
		d.Log.Error(err, "load saved tunables")
	case ok:
		if err := d.Controller.Settings().Apply(saved); err != nil {
			d.Log.Error(err, "saved tunables rejected, using config")
		} else {
			d.Log.Info("restored saved tunables", "bounds", saved.Bounds, "thresholds", saved.Thresholds)
		}
	}

	enabled, ok, err := d.DB.LoadEnabled(ctx)
	if err != nil {
		d.Log.Error(err, "load saved enabled state")
		return
	}
	if ok {
		d.startEnabled = enabled
	}
}

// publishState mirrors the live bounds and lifecycle state into metrics.
func (d *Daemon) publishState() {
	metrics.SetBounds(d.Controller.Settings().Bounds())
	metrics.SetRunning(d.Controller.IsEnabled())
}

// Serve runs every component until ctx is done, SIGINT or SIGTERM arrives,
// or one component fails.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(d.Config.API.Host, fmt.Sprint(d.Config.API.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	d.addr = ln.Addr().String()

	httpServer := &http.Server{
		Handler:      d.Server.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	if d.startEnabled {
		d.Controller.Start()
	}
	d.publishState()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if !d.startEnabled {
			<-ctx.Done()
			d.Controller.Stop()
			return nil
		}
		return d.Controller.Run(ctx)
	})
	if d.Journal != nil {
		g.Go(func() error { return d.Journal.Run(ctx) })
		if retention, _ := parseDuration(d.Config.Journal.Retention); retention > 0 {
			g.Go(func() error { return d.pruneLoop(ctx, retention) })
		}
	}
	g.Go(func() error { return d.Health.Run(ctx) })
	g.Go(func() error {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	d.Log.Info("serving", "addr", d.addr, "metrics", d.Config.Telemetry.Prometheus)
	close(d.ready)

	err = g.Wait()
	metrics.SetRunning(false)
	if d.Journal != nil && d.Journal.Dropped() > 0 {
		d.Log.Info("journal dropped events", "count", d.Journal.Dropped())
	}
	d.Log.Info("daemon stopped")
	return err
}

// Ready is closed once Serve is listening.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr is the address Serve listens on. Valid after Ready.
func (d *Daemon) Addr() string {
	return d.addr
}

// pruneLoop drops journal entries older than retention.
func (d *Daemon) pruneLoop(ctx context.Context, retention time.Duration) error {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := d.DB.PruneEvents(ctx, time.Now().Add(-retention))
		if err != nil && ctx.Err() == nil {
			d.Log.Error(err, "prune journal")
		} else if n > 0 {
			d.Log.V(1).Info("pruned journal", "events", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.Controller != nil {
		d.Controller.Stop()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.syncLog != nil {
		d.syncLog()
	}
}
