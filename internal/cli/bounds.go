package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tutu-network/hotplug/internal/domain"
)

func init() {
	rootCmd.AddCommand(boundsCmd)
}

var boundsCmd = &cobra.Command{
	Use:   "bounds [MIN MAX]",
	Short: "Show or set the allowed range of online cores",
	Long: `Without arguments, print the current bounds. With MIN and MAX, set them.
Both are clamped to [1, total cores]; a MIN above MAX is lowered to MAX.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected no arguments or MIN MAX, got %d", len(args))
		}
		return nil
	},
	RunE: runBounds,
}

func runBounds(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var b domain.Bounds
	if len(args) == 0 {
		if err := c.get(cmd.Context(), "/api/bounds", &b); err != nil {
			return err
		}
	} else {
		minCores, err := parseCores(args[0])
		if err != nil {
			return err
		}
		maxCores, err := parseCores(args[1])
		if err != nil {
			return err
		}
		body := map[string]uint32{"min": minCores, "max": maxCores}
		if err := c.put(cmd.Context(), "/api/bounds", body, &b); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Bounds: %d..%d\n", b.Min, b.Max)
	return nil
}

func parseCores(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid core count %q", s)
	}
	return uint32(n), nil
}
