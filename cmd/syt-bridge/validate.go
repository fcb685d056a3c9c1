package main

import (
	"context"
	"fmt"
	"time"

	"github.com/devblac/syt-bridge/internal/cache"
	"github.com/devblac/syt-bridge/internal/health"
	"github.com/spf13/cobra"
)

const validateTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and check every chain node and the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		a, err := buildApp(cmd.Context(), cfgPath, appOptions{})
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		defer a.close()
		fmt.Fprintf(out, "config OK (version %d)\n", a.cfg.Version)

		failures := 0
		for _, ch := range a.cfg.Chains {
			ctx, cancel := context.WithTimeout(cmd.Context(), validateTimeout)
			err := health.PingChain(ctx, a.registry, ch.ID)
			cancel()
			if err != nil {
				failures++
				fmt.Fprintf(out, "- chain %d (%s): ERROR %v\n", ch.ID, ch.Name, err)
				continue
			}
			fmt.Fprintf(out, "- chain %d (%s): contract %s OK\n", ch.ID, ch.Name, ch.Contract)
		}

		if rc, ok := a.cache.(*cache.Redis); ok {
			ctx, cancel := context.WithTimeout(cmd.Context(), validateTimeout)
			err := rc.Ping(ctx)
			cancel()
			if err != nil {
				failures++
				fmt.Fprintf(out, "- cache redis %s: ERROR %v\n", a.cfg.Cache.RedisAddr, err)
			} else {
				fmt.Fprintf(out, "- cache redis %s: OK\n", a.cfg.Cache.RedisAddr)
			}
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d check(s) failed", failures)
		}
		fmt.Fprintln(out, "validate: success")
		return nil
	},
}
