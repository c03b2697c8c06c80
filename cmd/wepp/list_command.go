package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"wepp/internal/erp"
)

type recordingSummary struct {
	Index    int      `json:"index"`
	Name     string   `json:"name"`
	Segments []string `json:"segments"`
	Channels int      `json:"channels"`
	Good     int      `json:"good_trials"`
	Bad      int      `json:"bad_trials"`
	Visited  int      `json:"visited_segments"`
	Error    string   `json:"error,omitempty"`
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <dir>",
		Short: "List recordings with their segments and annotation state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.openEngine(ctx.baseContext(cmd.Context()), args[0])
			if err != nil {
				return err
			}
			defer eng.Close()

			view := eng.session.Current()
			visited := make(map[int]int)
			for _, cell := range view.VisitedCells {
				visited[cell.Recording]++
			}

			summaries := make([]recordingSummary, 0, len(eng.listing.Recordings))
			for i, path := range eng.listing.Recordings {
				summary := recordingSummary{Index: i, Name: view.Recordings[i], Visited: visited[i]}
				rec, err := erp.Load(path)
				if err != nil {
					summary.Error = err.Error()
					summaries = append(summaries, summary)
					continue
				}
				summary.Channels = len(rec.Channels)
				for _, seg := range rec.Segments {
					summary.Segments = append(summary.Segments, seg.Name)
					summary.Good += seg.Good
					summary.Bad += seg.Bad
				}
				summaries = append(summaries, summary)
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, summaries)
			}

			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				if s.Error != "" {
					rows = append(rows, []string{strconv.Itoa(s.Index + 1), s.Name, "-", "-", "-", "-", s.Error})
					continue
				}
				rows = append(rows, []string{
					strconv.Itoa(s.Index + 1),
					s.Name,
					strconv.Itoa(len(s.Segments)),
					strconv.Itoa(s.Channels),
					fmt.Sprintf("%d/%d", s.Good, s.Good+s.Bad),
					fmt.Sprintf("%d/%d", s.Visited, len(s.Segments)),
					"",
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(tableSpec{
				Title:   eng.dir,
				Headers: []string{"#", "Recording", "Segments", "Channels", "Good trials", "Visited", "Error"},
				Rows:    rows,
				Aligns:  []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			}))
			return nil
		},
	}
}
