package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"wepp/internal/erp"
	"wepp/internal/peaks"
)

type peakResult struct {
	Channel   string  `json:"channel"`
	Found     bool    `json:"found"`
	Latency   float64 `json:"latency,omitempty"`
	Amplitude float64 `json:"amplitude,omitempty"`
}

type peakReport struct {
	Recording string       `json:"recording"`
	Segment   string       `json:"segment"`
	Polarity  string       `json:"polarity"`
	Window    [2]float64   `json:"window"`
	Results   []peakResult `json:"results"`
}

func newPeakCommand(ctx *commandContext) *cobra.Command {
	var segmentFlag string
	var channels []string
	var polarityFlag string
	var windowFlag string

	cmd := &cobra.Command{
		Use:   "peak <file>",
		Short: "Find the peak in one window of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := peaks.ParsePolarity(polarityFlag)
			if err != nil {
				return err
			}
			window, err := parseWindowFlag(windowFlag)
			if err != nil {
				return err
			}
			path, err := resolveDir(args[0])
			if err != nil {
				return err
			}
			rec, err := erp.Load(path)
			if err != nil {
				return err
			}
			segment, err := resolveSegment(rec, segmentFlag)
			if err != nil {
				return err
			}

			targets := make([]int, 0, len(rec.Channels))
			if len(channels) == 0 {
				for i := range rec.Channels {
					targets = append(targets, i)
				}
			} else {
				selected, unknown := rec.SelectionByName(channels)
				if len(unknown) > 0 {
					return fmt.Errorf("unknown channels in %s: %s", rec.Name, strings.Join(unknown, ", "))
				}
				targets = selected
			}

			report := peakReport{
				Recording: filepath.Base(path),
				Segment:   rec.Segments[segment].Name,
				Polarity:  pol.String(),
				Window:    [2]float64{window.Start, window.End},
			}
			for _, ch := range targets {
				result := peakResult{Channel: rec.Channels[ch]}
				if c, ok := peaks.Find(pol, window, rec.Samples(segment, ch), rec.Times); ok {
					result.Found = true
					result.Latency = c.Latency
					result.Amplitude = c.Amplitude
				}
				report.Results = append(report.Results, result)
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}
			rows := make([][]string, 0, len(report.Results))
			for _, r := range report.Results {
				if !r.Found {
					rows = append(rows, []string{r.Channel, "-", "-"})
					continue
				}
				rows = append(rows, []string{
					r.Channel,
					strconv.FormatFloat(r.Latency, 'f', -1, 64),
					strconv.FormatFloat(r.Amplitude, 'f', 3, 64),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(tableSpec{
				Title:   fmt.Sprintf("%s %s %s %s", report.Recording, report.Segment, report.Polarity, window),
				Headers: []string{"Channel", "Latency (ms)", "Amplitude"},
				Rows:    rows,
				Aligns:  []columnAlignment{alignLeft, alignRight, alignRight},
			}))
			return nil
		},
	}

	cmd.Flags().StringVarP(&segmentFlag, "segment", "s", "0", "Segment name or 0-based index")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "Channel names to scan (default every channel)")
	cmd.Flags().StringVarP(&polarityFlag, "polarity", "p", "positive", "Peak polarity: positive or negative")
	cmd.Flags().StringVarP(&windowFlag, "window", "w", "", "Time window in ms as start:end")
	_ = cmd.MarkFlagRequired("window")
	return cmd
}

// parseWindowFlag reads "start:end" in milliseconds.
func parseWindowFlag(value string) (peaks.Window, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return peaks.Window{}, fmt.Errorf("window %q: want start:end", value)
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return peaks.Window{}, fmt.Errorf("window start: %w", err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return peaks.Window{}, fmt.Errorf("window end: %w", err)
	}
	if start >= end {
		return peaks.Window{}, errors.New("window start must be before end")
	}
	return peaks.Window{Start: start, End: end}, nil
}

func resolveSegment(rec *erp.Recording, value string) (int, error) {
	value = strings.TrimSpace(value)
	for i, seg := range rec.Segments {
		if seg.Name == value {
			return i, nil
		}
	}
	idx, err := strconv.Atoi(value)
	if err != nil || idx < 0 || idx >= len(rec.Segments) {
		return 0, fmt.Errorf("segment %q not found in %s (%d segments)", value, rec.Name, len(rec.Segments))
	}
	return idx, nil
}
