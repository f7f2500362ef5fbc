package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codexplain/codexplain/internal/client"
	"github.com/codexplain/codexplain/internal/core"
	"github.com/codexplain/codexplain/internal/core/ratelimit"
	"github.com/codexplain/codexplain/internal/metrics"
	"github.com/codexplain/codexplain/internal/observability"
	"github.com/codexplain/codexplain/internal/output"
	"github.com/codexplain/codexplain/internal/server/gate"
)

var (
	explainLanguage       string
	explainServer         string
	explainSkipLocalQuota bool
)

// errLocalQuotaExhausted is returned when the advisory limiter refuses the
// request before any network round trip.
var errLocalQuotaExhausted = errors.New(gate.MessageRateLimited)

var explainCmd = &cobra.Command{
	Use:   "explain [file|-]",
	Short: "Explain a source file line by line",
	Long: `Send a source file (or stdin) to a codexplain server and print the explanation.

A local advisory quota is checked first so that requests the server would
reject are not sent. The server quota is authoritative either way.`,
	Args: cobra.MaximumNArgs(1),
	Example: `  codexplain explain main.go
  cat query.sql | codexplain explain --language sql
  codexplain explain handler.ts --output-format markdown --out handler.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		code, err := readSource(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}
		req := core.ExplainRequest{Code: code, Language: resolveLanguage(explainLanguage, path)}
		if err := req.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		limiter, closeLimiter, err := openClientLimiter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("%w: %w", errConfigInvalid, err)
		}
		defer closeLimiter()

		if !explainSkipLocalQuota {
			if err := checkLocalQuota(ctx, limiter); err != nil {
				return err
			}
		}

		api := client.New(serverURL(explainServer, cfg), cfg.Client.Timeout)
		observability.CLILogger.Debug("Requesting explanation",
			zap.String("server", api.BaseURL),
			zap.String("language", req.Language),
			zap.Int("bytes", len(req.Code)))

		result, err := api.Explain(ctx, req)
		if err != nil {
			var rle *client.RateLimitError
			if errors.As(err, &rle) && rle.RetryAfter > 0 {
				observability.CLILogger.Info("Server quota exhausted",
					zap.Duration("retry_after", rle.RetryAfter.Round(time.Second)))
			}
			return err
		}

		rendered, err := output.NewFormatter(format).FormatExplanation(result)
		if err != nil {
			return err
		}
		if err := emit(cmd, rendered); err != nil {
			return err
		}

		observability.CLILogger.Info(fmt.Sprintf("Advisory quota: %d request(s) left this window",
			limiter.GetRemainingRequests(ctx)))
		return nil
	},
}

// checkLocalQuota consumes one advisory unit or refuses with the reset time.
func checkLocalQuota(ctx context.Context, limiter *ratelimit.ClientLimiter) error {
	allowed := limiter.CheckLimit(ctx)
	metrics.RecordRateLimitDecision(metrics.ScopeClient, allowed)
	if allowed {
		return nil
	}
	state := limiter.State(ctx)
	observability.CLILogger.Info("Local quota exhausted",
		zap.Int("limit", state.Max),
		zap.Time("resets_at", state.ResetAt()))
	return errLocalQuotaExhausted
}

// readSource reads path, or in when path is "-".
func readSource(in io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if strings.TrimSpace(path) == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path) // #nosec G304 -- user-selected input file
	}
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	return string(data), nil
}

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().StringVarP(&explainLanguage, "language", "l", "", "source language (default: inferred from the file extension)")
	explainCmd.Flags().StringVar(&explainServer, "server", "", "server URL (default: client.server_url)")
	explainCmd.Flags().BoolVar(&explainSkipLocalQuota, "skip-local-quota", false, "do not consult the local advisory quota")
	addOutputFlags(explainCmd)
}
