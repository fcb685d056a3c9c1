package main

import (
	"encoding/json"
	"fmt"

	"github.com/devblac/syt-bridge/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var flagInspectChain int64

func init() {
	inspectTxCmd.Flags().Int64Var(&flagInspectChain, "chain", 0, "Chain id the transaction was sent on")
	_ = inspectTxCmd.MarkFlagRequired("chain")
}

var inspectTxCmd = &cobra.Command{
	Use:   "inspect-tx <hash>",
	Short: "Fetch and decode a transaction against the voting contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := hexutil.Decode(args[0])
		if err != nil || len(raw) != common.HashLength {
			return fmt.Errorf("%w: transaction hash must be 32 bytes of hex", domain.ErrInvalidInput)
		}

		a, err := buildApp(cmd.Context(), cfgPath, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		details, err := a.resolver.FetchTransactionDetails(cmd.Context(), common.BytesToHash(raw), flagInspectChain)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(details); err != nil {
			return err
		}
		if !details.Found {
			return nil
		}
		id, err := details.DebateID()
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "debate id: none (%v)\n", err)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "debate id: %d\n", id)
		return nil
	},
}
