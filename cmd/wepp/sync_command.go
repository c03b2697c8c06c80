package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"wepp/internal/notifications"
)

type syncReport struct {
	Records   int    `json:"records"`
	Watermark int    `json:"watermark"`
	Accepted  int    `json:"accepted"`
	Confirmed bool   `json:"confirmed"`
	Error     string `json:"error,omitempty"`
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <dir>",
		Short: "Upload every pick not yet confirmed by REDCap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := ctx.baseContext(cmd.Context())
			eng, err := ctx.openEngine(runCtx, args[0])
			if err != nil {
				return err
			}
			defer eng.Close()

			if !eng.client.Enabled() {
				return errors.New("REDCap sync is disabled; set [redcap] enabled with a url and token, or `wepp project set` the credentials")
			}

			var mu sync.Mutex
			var last notifications.Event
			eng.hub.On(notifications.SyncResponse, func(e notifications.Event) {
				mu.Lock()
				last = e
				mu.Unlock()
			})

			up, err := eng.session.Sync(runCtx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if up.Empty {
				if ctx.jsonOutput() {
					return writeJSON(cmd, syncReport{Watermark: up.Watermark, Confirmed: true})
				}
				fmt.Fprintln(out, "Nothing to sync")
				return nil
			}

			waitCtx, cancel := context.WithTimeout(runCtx, syncWaitTimeout)
			defer cancel()
			if err := eng.client.Wait(waitCtx); err != nil {
				return fmt.Errorf("wait for redcap: %w", err)
			}

			mu.Lock()
			resp := last
			mu.Unlock()
			view := eng.session.Current()
			report := syncReport{
				Records:   len(up.Records),
				Watermark: up.Watermark,
				Accepted:  resp.Count,
				Confirmed: resp.UploadID == up.ID && resp.Succeeded() && view.Watermark.Uploaded == up.Watermark,
			}
			if resp.Err != nil {
				report.Error = resp.Err.Error()
			}
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else if report.Confirmed {
				fmt.Fprintf(out, "Uploaded %d records; REDCap accepted %d\n", report.Records, report.Accepted)
			}
			if !report.Confirmed {
				if resp.Err != nil {
					return fmt.Errorf("sync failed: %w", resp.Err)
				}
				return errors.New("sync was not confirmed; the attempt limit may have been reached")
			}
			return nil
		},
	}
}
