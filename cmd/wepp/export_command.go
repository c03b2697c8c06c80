package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"wepp/internal/config"
	"wepp/internal/export"
	"wepp/internal/logging"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outPath string
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "export <dir>",
		Short: "Write every saved pick to a CSV or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := config.ExpandPath(strings.TrimSpace(outPath))
			if err != nil {
				return fmt.Errorf("resolve output path: %w", err)
			}
			if target == "" {
				return errors.New("--out is required")
			}
			format := export.FormatForPath(target)
			switch strings.ToLower(strings.TrimSpace(formatFlag)) {
			case "":
			case string(export.CSV):
				format = export.CSV
			case string(export.JSON):
				format = export.JSON
			default:
				return fmt.Errorf("unknown export format %q (want csv or json)", formatFlag)
			}

			eng, err := ctx.openEngine(ctx.baseContext(cmd.Context()), args[0])
			if err != nil {
				return err
			}
			defer eng.Close()

			rows := eng.session.Rows()
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No picks to export")
				return nil
			}
			if err := export.WriteFile(target, format, rows); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			eng.logger.Info("picks exported",
				logging.String("path", target),
				logging.String("format", string(format)),
				logging.Int("rows", len(rows)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d picks to %s\n", len(rows), target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (.csv or .json)")
	cmd.Flags().StringVar(&formatFlag, "format", "", "Override the format chosen from the file extension")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
