package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"wepp/internal/project"
	"wepp/internal/session"
)

type annotateStep struct {
	Recording string `json:"recording"`
	Segment   string `json:"segment"`
	Peaks     int    `json:"peaks"`
	Uploaded  bool   `json:"uploaded"`
}

type annotateReport struct {
	Steps    []annotateStep `json:"steps"`
	Progress float64        `json:"progress"`
	Complete bool           `json:"complete"`
}

func newAnnotateCommand(ctx *commandContext) *cobra.Command {
	var notes string
	var windowFlags []string
	var limit int

	cmd := &cobra.Command{
		Use:   "annotate <dir>",
		Short: "Accept picks segment by segment from the saved position",
		Long: "Accept the picks of each segment and advance, starting where the previous run stopped.\n" +
			"Unvisited segments get the default windows; --window adds further picks on every segment.\n" +
			"Finishing a recording uploads everything not yet synced.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []project.DefaultWindow
			for _, value := range windowFlags {
				windows, err := project.ParseWindows(value)
				if err != nil {
					return err
				}
				extra = append(extra, windows...)
			}

			runCtx := ctx.baseContext(cmd.Context())
			eng, err := ctx.openEngine(runCtx, args[0])
			if err != nil {
				return err
			}

			report := annotateReport{}
			runErr := func() error {
				for limit <= 0 || len(report.Steps) < limit {
					view := eng.session.Current()
					if err := applyWindows(eng.session, extra); err != nil {
						return err
					}
					out, err := eng.session.AcceptAndNext(runCtx, notes)
					if err != nil {
						return err
					}
					report.Steps = append(report.Steps, annotateStep{
						Recording: view.Recording,
						Segment:   view.Segment,
						Peaks:     out.Count,
						Uploaded:  out.Uploaded,
					})
					if !out.Moved {
						return nil
					}
				}
				return nil
			}()
			closeErr := eng.Close()
			if runErr != nil {
				return runErr
			}
			if closeErr != nil {
				return closeErr
			}

			final := eng.session.Current()
			report.Progress = final.Progress
			report.Complete = final.Complete
			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}

			rows := make([][]string, 0, len(report.Steps))
			for _, step := range report.Steps {
				rows = append(rows, []string{step.Recording, step.Segment, strconv.Itoa(step.Peaks), yesNo(step.Uploaded)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(tableSpec{
				Headers: []string{"Recording", "Segment", "Peaks", "Upload sent"},
				Rows:    rows,
				Aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			}))
			fmt.Fprintf(out, "Progress: %s\n", progressBar(report.Progress, 30, shouldColorize(out)))
			if report.Complete {
				fmt.Fprintln(out, "All recordings annotated")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Notes stored with every accepted peak")
	cmd.Flags().StringArrayVarP(&windowFlags, "window", "w", nil, "Extra window as pol:start:end (repeatable)")
	cmd.Flags().IntVar(&limit, "segments", 0, "Stop after this many segments (0 runs to the end)")
	return cmd
}

func applyWindows(s *session.Session, windows []project.DefaultWindow) error {
	for _, w := range windows {
		if _, err := s.Highlight(w.Polarity, w.Window); err != nil {
			return err
		}
		if err := s.EndSelection(); err != nil {
			return err
		}
	}
	return nil
}
