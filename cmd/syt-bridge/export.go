package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagExportFormat string
	flagExportDebate int64
)

func init() {
	exportCmd.Flags().StringVar(&flagExportFormat, "format", "json", "Output format: json|csv")
	exportCmd.Flags().Int64Var(&flagExportDebate, "debate", 0, "Export evidence for this debate id instead of debates")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded debates or a debate's evidence as json or csv",
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(flagExportFormat)
		if format != "json" && format != "csv" {
			return fmt.Errorf("unsupported format %q", flagExportFormat)
		}
		ctx := cmd.Context()
		a, err := buildApp(ctx, cfgPath, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		if flagExportDebate > 0 {
			items, err := a.svc.ListEvidence(ctx, flagExportDebate)
			if err != nil {
				return err
			}
			if format == "json" {
				return json.NewEncoder(out).Encode(items)
			}
			w := csv.NewWriter(out)
			_ = w.Write([]string{"id", "debate_id_pg", "content", "asset_url", "created_at"})
			for _, e := range items {
				_ = w.Write([]string{
					strconv.FormatInt(e.ID, 10),
					strconv.FormatInt(e.DebateIDPg, 10),
					e.Content,
					e.AssetURL,
					e.CreatedAt.UTC().Format(time.RFC3339),
				})
			}
			w.Flush()
			return w.Error()
		}

		debates, err := a.svc.ListDebates(ctx)
		if err != nil {
			return err
		}
		if format == "json" {
			return json.NewEncoder(out).Encode(debates)
		}
		w := csv.NewWriter(out)
		_ = w.Write([]string{"id", "chain_id", "debate_id", "title", "creation_tx_hash", "created_at"})
		for _, d := range debates {
			_ = w.Write([]string{
				strconv.FormatInt(d.ID, 10),
				strconv.FormatInt(d.ChainID, 10),
				strconv.FormatInt(d.DebateID, 10),
				d.Title,
				d.CreationTxHash,
				d.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		w.Flush()
		return w.Error()
	},
}
