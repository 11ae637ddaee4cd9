package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"oj_sync/internal/app/bootstrap"
	"oj_sync/internal/platform/config"
)

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List supported platforms",
	Args:  cobra.NoArgs,
	RunE:  runPlatforms,
}

func runPlatforms(cmd *cobra.Command, _ []string) error {
	reg := bootstrap.NewRegistry(config.SyncConfig{})
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tNAME\tAUTH\tCURSOR\tCODE")
	for _, m := range reg.Metas() {
		auth := "none"
		if m.RequiresAuth {
			auth = string(m.AuthMethod)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", m.Platform, m.DisplayName, auth, m.Cursor, m.SupportsCode)
	}
	return w.Flush()
}
