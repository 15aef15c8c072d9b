package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/hotplug/internal/api"
)

func init() {
	eventsCmd.Flags().StringVar(&eventsRun, "run", "", "Only transitions of this run id")
	eventsCmd.Flags().StringVar(&eventsAction, "action", "", "Only bring_up or take_down")
	eventsCmd.Flags().BoolVar(&eventsFailed, "failed", false, "Only failed transitions")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "Only transitions since a time (RFC 3339) or duration ago (15m)")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Maximum number of transitions")
	rootCmd.AddCommand(eventsCmd)
}

var (
	eventsRun    string
	eventsAction string
	eventsFailed bool
	eventsSince  string
	eventsLimit  int
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Aliases: []string{"journal"},
	Short:   "List journaled core transitions, newest first",
	Args:    cobra.NoArgs,
	RunE:    runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	q := url.Values{}
	if eventsRun != "" {
		q.Set("run_id", eventsRun)
	}
	if eventsAction != "" {
		q.Set("action", eventsAction)
	}
	if eventsFailed {
		q.Set("failed", "true")
	}
	if eventsSince != "" {
		q.Set("since", eventsSince)
	}
	q.Set("limit", strconv.Itoa(eventsLimit))

	var res api.EventsResponse
	if err := c.get(cmd.Context(), "/api/events?"+q.Encode(), &res); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.Count == 0 {
		fmt.Fprintln(out, "No transitions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tCPU\tNR_RUN\tONLINE\tDURATION\tERROR")
	for _, e := range res.Events {
		errMsg := "-"
		if !e.Succeeded() {
			errMsg = e.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			e.At.Local().Format("2006-01-02 15:04:05.000"),
			e.Action,
			e.CPU,
			e.NrRun,
			e.Online,
			e.Duration,
			errMsg,
		)
	}
	return w.Flush()
}
