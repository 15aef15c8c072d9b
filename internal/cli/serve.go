package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tutu-network/hotplug/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveSimulate, "simulate", false, "Drive a simulated machine instead of sysfs")
	serveCmd.Flags().IntVar(&serveSimCores, "sim-cores", 0, "Cores of the simulated machine (overrides config)")
	serveCmd.Flags().Float64Var(&serveSimLoad, "sim-load", -1, "Runnable threads on the simulated machine (overrides config)")
	serveCmd.Flags().BoolVar(&serveDisabled, "disabled", false, "Start with the controller disabled")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost     string
	servePort     int
	serveSimulate bool
	serveSimCores int
	serveSimLoad  float64
	serveDisabled bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hotplug daemon",
	Long: `Run the controller together with its HTTP API, journal and health checks.
Real hardware requires root to write /sys/devices/system/cpu/cpuN/online.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveSimulate {
		cfg.Platform.Backend = "simulated"
	}
	if serveSimCores > 0 {
		cfg.Platform.SimulatedCores = serveSimCores
	}
	if serveSimLoad >= 0 {
		cfg.Platform.SimulatedLoad = serveSimLoad
	}
	if serveDisabled {
		cfg.Controller.Enabled = false
		cfg.Controller.RestoreTunables = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	d.Server.SetVersion(rootCmd.Version)

	return d.Serve(context.Background())
}
