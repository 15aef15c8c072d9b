package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/hotplug/internal/api"
)

func init() {
	tuneCmd.Flags().Uint32Var(&tuneSampleRate, "sample-rate", 0, "Sampling period in milliseconds")
	tuneCmd.Flags().Uint32Var(&tuneWindow, "window", 0, "Smoothing window in milliseconds")
	tuneCmd.Flags().Uint32Var(&tuneHysteresis, "hysteresis", 0, "Hysteresis band as 1/N of a thread")
	rootCmd.AddCommand(tuneCmd)
}

var (
	tuneSampleRate uint32
	tuneWindow     uint32
	tuneHysteresis uint32
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Change sampling and smoothing tunables",
	Long: `Change any of the sample rate, smoothing window and hysteresis at once.
Values are validated together; a rejected change leaves every tunable as it was.`,
	Args: cobra.NoArgs,
	RunE: runTune,
}

func runTune(cmd *cobra.Command, args []string) error {
	body := map[string]uint32{}
	flags := cmd.Flags()
	if flags.Changed("sample-rate") {
		body["sample_rate_ms"] = tuneSampleRate
	}
	if flags.Changed("window") {
		body["window_ms"] = tuneWindow
	}
	if flags.Changed("hysteresis") {
		body["hysteresis_divisor"] = tuneHysteresis
	}
	if len(body) == 0 {
		return errors.New("nothing to change: pass --sample-rate, --window or --hysteresis")
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	var t api.TunablesView
	if err := c.put(cmd.Context(), "/api/tunables", body, &t); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sample rate %dms, window %dms (exp %d), hysteresis 1/%d\n",
		t.SampleRateMS, t.WindowMS, t.SmoothingFactor, t.HysteresisDivisor)
	return nil
}
