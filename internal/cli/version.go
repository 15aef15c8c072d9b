package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client and daemon versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "client: %s\n", rootCmd.Version)

		c, err := newClient()
		if err != nil {
			return err
		}
		var v struct {
			Version string `json:"version"`
		}
		if err := c.get(cmd.Context(), "/api/version", &v); err != nil {
			fmt.Fprintln(out, "daemon: not running")
			return nil
		}
		fmt.Fprintf(out, "daemon: %s\n", v.Version)
		return nil
	},
}
