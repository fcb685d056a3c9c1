package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var flagTallyJSON bool

func init() {
	tallyCmd.Flags().BoolVar(&flagTallyJSON, "json", false, "Print JSON instead of a table")
}

var tallyCmd = &cobra.Command{
	Use:   "tally",
	Short: "Show live vote metrics for every recorded debate",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), cfgPath, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		live, err := a.svc.LiveDebates(cmd.Context())
		if err != nil && live == nil {
			return err
		}
		// A partial view is printed before the error is reported.
		partial := err

		out := cmd.OutOrStdout()
		if flagTallyJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(live); err != nil {
				return err
			}
			return partial
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCHAIN\tDEBATE\tYES%\tNO%\tVOTES\tYES POT\tNO POT\tSTATUS\tTITLE")
		for _, d := range live {
			m := d.Metrics
			if !m.Known {
				fmt.Fprintf(tw, "%d\t%d\t%d\t-\t-\t-\t-\t-\tunknown\t%s\n", d.ID, d.ChainID, d.DebateID, d.Title)
				continue
			}
			status := "open"
			switch {
			case m.Finalized:
				status = "finalized"
			case m.VotingClosed:
				status = "closed"
			}
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
				d.ID, d.ChainID, d.DebateID, m.YesPercent, m.NoPercent, m.TotalVotes, m.YesPot, m.NoPot, status, d.Title)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		return partial
	},
}
