package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"oj_sync/internal/fetcher"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Map a problem URL to its platform and problem id",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	res, ok := fetcher.ResolveURL(args[0])
	if !ok {
		return fmt.Errorf("%s is not a problem on a supported platform", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", res.Platform, res.ProblemID)
	return nil
}
