package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"wepp/internal/erp"
	"wepp/internal/project"
	"wepp/internal/redcap"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Inspect and edit the project file stored with the recordings",
	}
	projectCmd.AddCommand(newProjectShowCommand(ctx))
	projectCmd.AddCommand(newProjectSetCommand())
	return projectCmd
}

func newProjectShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <dir>",
		Short: "Print the project settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDir(args[0])
			if err != nil {
				return err
			}
			settings, found, err := project.Load(dir)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				settings.REDCapToken = maskToken(settings.REDCapToken)
				return writeJSON(cmd, settings)
			}

			windows := make([]string, 0, len(settings.DefaultWindows))
			for _, w := range settings.DefaultWindows {
				windows = append(windows, fmt.Sprintf("%s %s", w.Polarity, w.Window))
			}
			mask := make([]string, 0, len(settings.SelectedChannels))
			for _, on := range settings.SelectedChannels {
				mask = append(mask, yesNo(on))
			}
			rows := [][]string{
				{project.KeyREDCapURL, settings.REDCapURL},
				{project.KeyREDCapToken, maskToken(settings.REDCapToken)},
				{project.KeySelectedChannels, strings.Join(mask, ",")},
				{project.KeyDefaultWindows, strings.Join(windows, "; ")},
			}
			title := project.Path(dir)
			if !found {
				title += " (not created yet)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(tableSpec{
				Title:   title,
				Headers: []string{"Key", "Value"},
				Rows:    rows,
			}))
			return nil
		},
	}
}

func newProjectSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <dir> <key> <value>",
		Short: "Change one project setting",
		Long: "Keys: " + strings.Join([]string{
			project.KeyREDCapURL, project.KeyREDCapToken, project.KeySelectedChannels, project.KeyDefaultWindows,
		}, ", ") + ".\n" +
			"selectedChannels takes a comma separated mask (1,0,1); defaultWindows takes pol:start:end items.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDir(args[0])
			if err != nil {
				return err
			}
			if _, err := erp.List(dir); err != nil {
				return err
			}
			settings, _, err := project.Load(dir)
			if err != nil {
				return err
			}
			key := strings.TrimSpace(args[1])
			if err := settings.Set(key, args[2]); err != nil {
				return err
			}
			if key == project.KeyREDCapURL || key == project.KeyREDCapToken {
				if settings.REDCapToken != "" {
					if err := redcap.ValidCredentials(settings.REDCapURL, settings.REDCapToken); err != nil {
						return err
					}
				}
			}
			if err := settings.Save(dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s in %s\n", key, project.Path(dir))
			return nil
		},
	}
}

func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
