package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codexplain/codexplain/internal/server/handlers"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print version information. --extended adds build, Go and Gofulmen/Crucible
details; --json prints the same document as the server's GET /version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		extended, _ := cmd.Flags().GetBool("extended")
		asJSON, _ := cmd.Flags().GetBool("json")

		info := handlers.NewVersionResponse(buildInfo)
		switch {
		case asJSON:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case !extended:
			_, err := fmt.Fprintf(out, "%s %s\n", info.App.Name, info.App.Version)
			return err
		}

		_, err := fmt.Fprintf(out, "%s %s\nCommit: %s\nBuilt: %s\nGo: %s (%s)\n\nGofulmen: %s\nCrucible: %s\n",
			info.App.Name, info.App.Version,
			info.App.Commit, info.App.BuildDate,
			info.GoVersion, info.Platform,
			info.Dependencies["gofulmen"], info.Dependencies["crucible"])
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("extended", "e", false, "show extended version information")
	versionCmd.Flags().Bool("json", false, "print version information as JSON")
}
