package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lazypower/atlas/internal/engine"
	"github.com/lazypower/atlas/internal/transfer"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export everything as JSON",
	Long:  "Export problems, attempts, mistakes and reviews as a JSON document. Writes to stdout when no file is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a JSON export",
	Long:  "Import a document written by export, - reads stdin. Records are added alongside existing data.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func runExport(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		doc, err := transfer.Export(ctx, eng.DB, eng.Clock())
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encode export: %w", err)
		}
		data = append(data, '\n')

		if len(args) == 0 || args[0] == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d problems, %d attempts, %d mistakes, %d reviews to %s\n",
			len(doc.Problems), len(doc.Attempts), len(doc.Mistakes), len(doc.Reviews), args[0])
		return nil
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}

	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		c, err := transfer.Import(ctx, eng.DB, data, eng.Clock())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d mistake types, %d problems, %d attempts, %d mistakes, %d reviews",
			c.MistakeTypes, c.Problems, c.Attempts, c.Mistakes, c.Reviews)
		if c.Skipped > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), " (%d skipped)", c.Skipped)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	})
}
