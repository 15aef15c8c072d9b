package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/hotplug/internal/api"
	"github.com/tutu-network/hotplug/internal/domain"
	"github.com/tutu-network/hotplug/internal/infra/cpu"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show controller state, load and online cores",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var st api.StatusResponse
	if err := c.get(cmd.Context(), "/api/status", &st); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "State:\t%s\n", st.State)
	if st.RunID != "" {
		fmt.Fprintf(w, "Run:\t%s\n", st.RunID)
	}
	fmt.Fprintf(w, "Load:\t%.2f threads\n", st.LoadThreads)
	fmt.Fprintf(w, "Demanded:\t%d cores\n", st.NrRun)
	fmt.Fprintf(w, "Online:\t%d/%d (%s)\n", st.Online, st.TotalCores, cpu.FormatList(st.OnlineCores))
	fmt.Fprintf(w, "Bounds:\t%d..%d\n", st.Tunables.Bounds.Min, st.Tunables.Bounds.Max)
	fmt.Fprintf(w, "Sample rate:\t%dms\n", st.Tunables.SampleRateMS)
	fmt.Fprintf(w, "Window:\t%dms (exp %d/%d)\n", st.Tunables.WindowMS, st.Tunables.SmoothingFactor, domain.FixedOne)
	fmt.Fprintf(w, "Hysteresis:\t1/%d thread\n", st.Tunables.HysteresisDivisor)
	fmt.Fprintf(w, "Thresholds:\t%s\n", formatThresholds(st.Tunables.Thresholds))
	return w.Flush()
}
