package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Josh5/secrets-sync/internal/driver"
)

var (
	files            []string
	dryRun           bool
	printValues      bool
	printFormat      string
	printSyncDetails bool
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Load config, collect sources, and write items to the configured sinks",
	RunE:  runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)

	pushCmd.Flags().StringSliceVarP(&files, "file", "f", nil, "config document (repeatable; later overrides earlier)")
	pushCmd.Flags().BoolVar(&dryRun, "dry-run", false, "suppress AWS writes and print a preview instead")
	pushCmd.Flags().BoolVar(&printValues, "print-values", false, "include value snapshots in preview/sync output")
	pushCmd.Flags().StringVar(&printFormat, "print-format", "list", "preview format: list, table, json")
	pushCmd.Flags().BoolVar(&printSyncDetails, "print-sync-details", false, "print a line per item once dispatch has finished")
}

func runPush(cmd *cobra.Command, args []string) error {
	if len(files) == 0 {
		return fmt.Errorf("at least one -f/--file is required")
	}

	ctx := context.Background()
	exitCode := driver.Run(ctx, cmd.OutOrStdout(), driver.Options{
		Files:            files,
		DryRun:           dryRun,
		PrintValues:      printValues,
		PrintFormat:      printFormat,
		PrintSyncDetails: printSyncDetails,
	})

	if exitCode != driver.ExitOK {
		os.Exit(exitCode)
	}
	return nil
}
