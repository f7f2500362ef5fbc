package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codexplain/codexplain/internal/client"
	"github.com/codexplain/codexplain/internal/output"
)

var (
	quotaServer string
	quotaRemote bool
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect or reset the request quota",
}

var quotaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the remaining advisory quota (and optionally the server's)",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		limiter, closeLimiter, err := openClientLimiter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("%w: %w", errConfigInvalid, err)
		}
		defer closeLimiter()

		state := limiter.State(ctx)
		resetsAt := state.ResetAt().UTC()
		reports := []output.QuotaReport{{
			Scope:         output.ScopeLocal,
			Limit:         limiter.Quota().Max,
			Remaining:     limiter.GetRemainingRequests(ctx),
			WindowSeconds: int64(limiter.Quota().Window / time.Second),
			ResetsAt:      &resetsAt,
		}}

		if quotaRemote || quotaServer != "" {
			status, err := client.New(serverURL(quotaServer, cfg), cfg.Client.Timeout).Quota(ctx)
			if err != nil {
				return err
			}
			reports = append(reports, output.QuotaReport{
				Scope:         output.ScopeServer,
				Limit:         status.Limit,
				Remaining:     status.RemainingRequests,
				WindowSeconds: status.WindowSeconds,
			})
		}

		rendered, err := output.RenderQuota(format, reports)
		if err != nil {
			return err
		}
		return emit(cmd, rendered)
	},
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the local advisory quota state",
	Long: `Forget the local advisory quota state.

This only clears the local hint. The server keeps counting requests and
will still reject them once its quota is spent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		limiter, closeLimiter, err := openClientLimiter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("%w: %w", errConfigInvalid, err)
		}
		defer closeLimiter()

		if err := limiter.Reset(ctx); err != nil {
			return fmt.Errorf("reset advisory quota: %w", err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Local quota reset: %d request(s) available. The server quota is unchanged.\n",
			limiter.GetRemainingRequests(ctx))
		return err
	},
}

func init() {
	quotaShowCmd.Flags().BoolVar(&quotaRemote, "remote", false, "also query the server quota")
	quotaShowCmd.Flags().StringVar(&quotaServer, "server", "", "server URL to query (implies --remote)")
	addOutputFlags(quotaShowCmd)

	quotaCmd.AddCommand(quotaShowCmd)
	quotaCmd.AddCommand(quotaResetCmd)
	rootCmd.AddCommand(quotaCmd)
}
