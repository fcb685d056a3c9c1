package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show audit cursors and their lag behind each chain head",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx, cfgPath, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CHAIN\tNAME\tCURSOR\tHEAD\tLAG")
		for _, id := range a.registry.ChainIDs() {
			p, err := a.registry.Resolve(id)
			if err != nil {
				return err
			}
			cursor, ok, err := a.store.GetAuditCursor(ctx, id)
			if err != nil {
				return err
			}
			cursorCol := "-"
			if ok {
				cursorCol = fmt.Sprintf("%d", cursor)
			}

			headCtx, cancel := context.WithTimeout(ctx, validateTimeout)
			head, err := p.Client.BlockNumber(headCtx)
			cancel()
			if err != nil {
				fmt.Fprintf(tw, "%d\t%s\t%s\terror\t%v\n", id, p.Name, cursorCol, err)
				continue
			}
			lag := "-"
			if ok && head >= cursor {
				lag = fmt.Sprintf("%d", head-cursor)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", id, p.Name, cursorCol, head, lag)
		}
		fmt.Fprintf(tw, "\nas of %s\n", time.Now().UTC().Format(time.RFC3339))
		return tw.Flush()
	},
}
