package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/Homedex/internal/langsection"
	"github.com/markdave123-py/Homedex/internal/pdfdoc"
)

var scanInterval int

var scanCmd = &cobra.Command{
	Use:   "scan <pdf>",
	Short: "Detect the language sections of a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanInterval, "interval", 5, "sample every Nth page")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	detector := langsection.NewDetector(langsection.NewLinguaClassifier(), pdfdoc.Open)
	res, err := detector.DetectAndSelect(args[0], scanInterval)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d pages\n", args[0], res.TotalPages)
	for _, s := range res.Sections {
		fmt.Fprintf(out, "  %-12s pages %d-%d (%d)\n", langsection.LanguageName(s.Language), s.StartPage+1, s.EndPage+1, s.PageCount)
	}
	if res.Selected == nil {
		fmt.Fprintln(out, "selected: none, all pages would be extracted")
		return nil
	}
	fmt.Fprintf(out, "selected: %s (pages %d-%d)\n", langsection.LanguageName(res.Selected.Language), res.Selected.StartPage+1, res.Selected.EndPage+1)
	return nil
}
