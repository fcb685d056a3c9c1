package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagAuditChain int64
	flagAuditFrom  uint64
	flagAuditTo    uint64
)

func init() {
	auditCmd.Flags().Int64Var(&flagAuditChain, "chain", 0, "Chain id to scan")
	auditCmd.Flags().Uint64Var(&flagAuditFrom, "from", 0, "First block (defaults to the stored cursor)")
	auditCmd.Flags().Uint64Var(&flagAuditTo, "to", 0, "Last block, inclusive (defaults to head)")
	_ = auditCmd.MarkFlagRequired("chain")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report debates created on chain but never recorded",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx, cfgPath, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		from := flagAuditFrom
		if !cmd.Flags().Changed("from") {
			last, ok, err := a.store.GetAuditCursor(ctx, flagAuditChain)
			if err != nil {
				return err
			}
			if ok {
				from = last + 1
			}
		}

		report, err := a.svc.Audit(ctx, flagAuditChain, from, flagAuditTo)
		if err != nil {
			return err
		}
		if err := a.store.UpsertAuditCursor(ctx, flagAuditChain, report.To); err != nil {
			return fmt.Errorf("save audit cursor: %w", err)
		}
		a.log.Info("audit complete",
			"chain_id", report.ChainID, "from", report.From, "to", report.To,
			"created", report.Created, "orphans", len(report.Orphans))

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if len(report.Orphans) > 0 {
			return fmt.Errorf("audit: %d unrecorded debate(s) on chain %d", len(report.Orphans), report.ChainID)
		}
		return nil
	},
}
