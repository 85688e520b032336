package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/Homedex/internal/app"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [device-id]",
	Short: "Rebuild the vector store for one device or every device",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	core, err := app.NewCore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	if len(args) == 1 {
		n, err := core.Ingestor.IngestDevice(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", args[0], n)
		return nil
	}

	n, err := core.Ingestor.RebuildAll(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "%d chunks written\n", n)
	return err
}
