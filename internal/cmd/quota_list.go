package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/codexplain/codexplain/internal/core/ratelimit"
	"github.com/codexplain/codexplain/internal/output"
)

var quotaListPrefix string

// quotaListEntry is one persisted advisory state as shown to the user.
type quotaListEntry struct {
	Key       string                 `json:"key"`
	State     *ratelimit.WindowState `json:"state,omitempty"`
	Raw       string                 `json:"raw,omitempty"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

var quotaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted advisory quota state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		items, err := db.LocalStorage().ListItems(cmd.Context(), quotaListPrefix)
		if err != nil {
			return err
		}

		entries := make([]quotaListEntry, 0, len(items))
		for _, item := range items {
			entry := quotaListEntry{Key: item.Key, UpdatedAt: item.UpdatedAt}
			var state ratelimit.WindowState
			if err := json.Unmarshal([]byte(item.Value), &state); err == nil {
				entry.State = &state
			} else {
				entry.Raw = item.Value
			}
			entries = append(entries, entry)
		}

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			return emit(cmd, string(payload))
		}

		lines := []string{"Advisory quota state", ""}
		if len(entries) == 0 {
			lines = append(lines, "(no stored state)")
		}
		for _, entry := range entries {
			if entry.State == nil {
				lines = append(lines, fmt.Sprintf("%s: unreadable state", entry.Key))
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: used=%d/%d window=%s resets=%s",
				entry.Key, entry.State.Used, entry.State.Max, entry.State.WindowLength,
				entry.State.ResetAt().UTC().Format(time.RFC3339)))
		}
		return emit(cmd, ascii.DrawBox(strings.Join(lines, "\n"), 0))
	},
}

func init() {
	quotaListCmd.Flags().StringVar(&quotaListPrefix, "prefix", "", "only list keys with this prefix")
	addOutputFlags(quotaListCmd)
	quotaCmd.AddCommand(quotaListCmd)
}
