package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/hotplug/internal/api"
)

func init() {
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Start the controller",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Stop the controller, leaving cores as they are",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, false)
	},
}

func setEnabled(cmd *cobra.Command, enabled bool) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var st api.StatusResponse
	if err := c.put(cmd.Context(), "/api/enabled", map[string]bool{"enabled": enabled}, &st); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Controller %s (%d/%d cores online)\n", st.State, st.Online, st.TotalCores)
	return nil
}
