package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/markdave123-py/Homedex/internal/core/llm"
	"github.com/markdave123-py/Homedex/internal/ocr"
	"github.com/markdave123-py/Homedex/internal/reference"
	"github.com/markdave123-py/Homedex/internal/translation"
)

var (
	extractOutputDir string
	extractDebug     bool
	extractNoTransl  bool
	extractSkipIndex int
	extractStart     int
	extractEnd       int
)

var extractCmd = &cobra.Command{
	Use:   "extract <pdf>",
	Short: "OCR a PDF and write its reference markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutputDir, "output-dir", "o", ".", "directory for the markdown and images/")
	extractCmd.Flags().BoolVar(&extractDebug, "debug", false, "also write the raw per-page markdown")
	extractCmd.Flags().BoolVar(&extractNoTransl, "no-translate", false, "keep the source language")
	extractCmd.Flags().IntVar(&extractSkipIndex, "skip-index-pages", 0, "leading pages to leave out of the reference")
	extractCmd.Flags().IntVar(&extractStart, "start", 1, "first page (1-based)")
	extractCmd.Flags().IntVar(&extractEnd, "end", 0, "last page (1-based, 0 for the last page)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Hour)
	defer cancel()

	pdfPath := args[0]
	if _, err := os.Stat(pdfPath); err != nil {
		return fmt.Errorf("open %s: %w", pdfPath, err)
	}
	if extractStart < 1 {
		return fmt.Errorf("--start must be at least 1")
	}
	if err := os.MkdirAll(extractOutputDir, 0o755); err != nil {
		return err
	}

	providers, err := llm.NewProviders(ctx, cfg)
	if err != nil {
		return err
	}
	defer providers.Close()

	extractor := ocr.NewExtractor(providers.Vision, ocr.WithRateLimit(cfg.OCRRateLimit))
	pages := extractor.ExtractRange(ctx, pdfPath, filepath.Join(extractOutputDir, "images"), ocr.RangeOptions{
		Start: extractStart - 1,
		End:   extractEnd - 1,
		Progress: func(done, total int) {
			log.Info().Int("page", done).Int("total", total).Msg("page processed")
		},
	})
	if len(pages) == 0 {
		return fmt.Errorf("OCR extraction returned no pages")
	}

	base := filepath.Base(pdfPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if extractDebug {
		debugPath := filepath.Join(extractOutputDir, stem+"_debug.md")
		if err := os.WriteFile(debugPath, []byte(reference.BuildDebug(pages, base, time.Now())), 0o644); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "debug:", debugPath)
	}

	translator := translation.NewTranslator(providers.Translation, providers.Chat)
	refPath := filepath.Join(extractOutputDir, stem+"_reference.md")
	err = reference.NewGenerator(translator).Write(ctx, refPath, pages, reference.Options{
		SourceName:     base,
		ImagesRelPath:  "images",
		Translate:      !extractNoTransl,
		SkipIndexPages: extractSkipIndex,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reference: %s (%d pages)\n", refPath, len(pages))
	return nil
}
