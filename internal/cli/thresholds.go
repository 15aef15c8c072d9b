package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tutu-network/hotplug/internal/domain"
)

func init() {
	rootCmd.AddCommand(thresholdsCmd)
}

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds [LEVEL...]",
	Short: "Show or set the load thresholds, in eighths of a thread",
	Long: `Without arguments, print the thresholds. Otherwise set them: exactly
one value per core minus one, non-decreasing, in eighths of a runnable thread.
The default 10 18 20 means 1.25, 2.25 and 2.5 threads.`,
	RunE: runThresholds,
}

type thresholdsBody struct {
	Thresholds []uint32 `json:"thresholds"`
}

func runThresholds(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var res thresholdsBody
	if len(args) == 0 {
		if err := c.get(cmd.Context(), "/api/thresholds", &res); err != nil {
			return err
		}
	} else {
		levels := make([]uint32, len(args))
		for i, a := range args {
			v, err := strconv.ParseUint(a, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid threshold %q", a)
			}
			levels[i] = uint32(v)
		}
		if err := c.put(cmd.Context(), "/api/thresholds", thresholdsBody{Thresholds: levels}, &res); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Thresholds: %s\n", formatThresholds(res.Thresholds))
	return nil
}

// formatThresholds prints each level with its value in threads.
func formatThresholds(levels []uint32) string {
	if len(levels) == 0 {
		return "none"
	}
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = fmt.Sprintf("%d (%.3g)", l, float64(l)/domain.ThresholdScale)
	}
	return strings.Join(parts, " ")
}
