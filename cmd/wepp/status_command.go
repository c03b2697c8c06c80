package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"wepp/internal/archive"
	"wepp/internal/peaks"
)

type cellRef struct {
	Recording int `json:"recording"`
	Segment   int `json:"segment"`
}

type statusReport struct {
	Dataset     string         `json:"dataset"`
	Recordings  int            `json:"recordings"`
	Recording   string         `json:"recording"`
	Segment     string         `json:"segment"`
	Position    cellRef        `json:"position"`
	GoodTrials  int            `json:"good_trials"`
	BadTrials   int            `json:"bad_trials"`
	Channels    []string       `json:"selected_channels"`
	Visited     bool           `json:"visited"`
	Progress    float64        `json:"progress"`
	Complete    bool           `json:"complete"`
	SyncEnabled bool           `json:"sync_enabled"`
	Uploaded    int            `json:"uploaded_watermark"`
	Pending     int            `json:"pending_watermark"`
	Modified    []cellRef      `json:"modified"`
	Peaks       []peaks.Record `json:"peaks"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <dir>",
		Short: "Show annotation progress, sync state and the current segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.openEngine(ctx.baseContext(cmd.Context()), args[0])
			if err != nil {
				return err
			}
			defer eng.Close()

			view := eng.session.Current()
			report := statusReport{
				Dataset:     view.Dataset,
				Recordings:  len(view.Recordings),
				Recording:   view.Recording,
				Segment:     view.Segment,
				Position:    cellRef{Recording: view.Position.Recording, Segment: view.Position.Segment},
				GoodTrials:  view.Good,
				BadTrials:   view.Bad,
				Channels:    view.SelectedNames(),
				Visited:     view.Visited,
				Progress:    view.Progress,
				Complete:    view.Complete,
				SyncEnabled: eng.client.Enabled(),
				Uploaded:    view.Watermark.Uploaded,
				Pending:     view.Watermark.Pending,
				Modified:    cellRefs(view.Modified),
				Peaks:       view.Picked,
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := headingLines("Dataset", colorize)
			lines = append(lines,
				fmt.Sprintf("Directory:  %s", report.Dataset),
				fmt.Sprintf("Progress:   %s", progressBar(report.Progress, 30, colorize)),
				fmt.Sprintf("Sync:       %s", syncState(report.Uploaded, report.Pending, len(report.Modified), report.SyncEnabled)),
				"",
			)
			lines = append(lines, headingLines("Current segment", colorize)...)
			lines = append(lines,
				fmt.Sprintf("Recording:  %s (%d of %d)", report.Recording, report.Position.Recording+1, report.Recordings),
				fmt.Sprintf("Segment:    %s", report.Segment),
				fmt.Sprintf("Trials:     %d good, %d bad", report.GoodTrials, report.BadTrials),
				fmt.Sprintf("Channels:   %s", strings.Join(report.Channels, ", ")),
				fmt.Sprintf("Saved:      %s", yesNo(report.Visited)),
			)
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if len(report.Peaks) > 0 {
				fmt.Fprintln(out, renderPeaks(report.Peaks))
			}
			return nil
		},
	}
}

func cellRefs(cells []archive.Cell) []cellRef {
	refs := make([]cellRef, len(cells))
	for i, c := range cells {
		refs[i] = cellRef{Recording: c.Recording, Segment: c.Segment}
	}
	return refs
}

func renderPeaks(records []peaks.Record) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			strconv.FormatInt(rec.RecordID, 10),
			rec.Channel,
			rec.Polarity.String(),
			strconv.FormatFloat(rec.Latency, 'f', -1, 64),
			strconv.FormatFloat(rec.Amplitude, 'f', 3, 64),
			peaks.Window{Start: rec.WindowStart, End: rec.WindowEnd}.String(),
			rec.Notes,
		})
	}
	return renderTable(tableSpec{
		Headers: []string{"ID", "Channel", "Polarity", "Latency (ms)", "Amplitude", "Window", "Notes"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	})
}
