package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codexplain/codexplain/internal/output"
)

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// emit writes rendered followed by a newline to --out, or to the command's
// stdout when --out is empty or "-".
func emit(cmd *cobra.Command, rendered string) error {
	if !strings.HasSuffix(rendered, "\n") {
		rendered += "\n"
	}
	path := ""
	if flag := cmd.Flag("out"); flag != nil {
		path = strings.TrimSpace(flag.Value.String())
	}
	if path == "" || path == "-" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), rendered)
		return err
	}
	return writeFileAtomic(path, []byte(rendered))
}

// writeFileAtomic replaces path via a sibling temp file so a failed run never
// leaves a truncated report behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	// #nosec G301 -- output directories use 0755 like the data directory
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// #nosec G302 -- reports are meant to be readable by other tools
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
