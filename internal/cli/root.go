// Package cli implements the hotplug command-line interface using Cobra.
// serve runs the daemon; every other command is a client of its HTTP API.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tutu-network/hotplug/internal/daemon"
)

var apiAddr string

var rootCmd = &cobra.Command{
	Use:   "hotplug",
	Short: "hotplug — runnable-load CPU hotplug controller",
	Long: `hotplug brings CPU cores online and takes them offline following the
number of runnable threads, within configurable core bounds.

Run 'hotplug serve' as root to control the machine, or
'hotplug serve --simulate' to watch the controller drive a simulated one.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "daemon address host:port (default from HOTPLUG_ADDR or config)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// daemonAddr resolves the API address: --addr, then HOTPLUG_ADDR, then the
// [api] section of the config.
func daemonAddr() (string, error) {
	if apiAddr != "" {
		return apiAddr, nil
	}
	if env := os.Getenv("HOTPLUG_ADDR"); env != "" {
		return env, nil
	}
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port)), nil
}
