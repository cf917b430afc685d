package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"devlens/internal/api"
	"devlens/internal/calendar"
)

func newDraftsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List calendar drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := make([]calendar.DraftStatus, 0, len(statuses))
			for _, value := range statuses {
				status, ok := calendar.ParseDraftStatus(value)
				if !ok {
					return fmt.Errorf("invalid draft status %q", value)
				}
				filters = append(filters, status)
			}
			return ctx.withClient(func(client *api.Client) error {
				drafts, err := client.Drafts(cmd.Context(), filters...)
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, api.DraftListResponse{Drafts: drafts})
				}
				out := cmd.OutOrStdout()
				if len(drafts) == 0 {
					fmt.Fprintln(out, "No drafts")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(drafts))
				for _, d := range drafts {
					rows = append(rows, []string{
						d.SessionID,
						colorStatus(string(d.Status), colorize),
						dash(d.Title),
						dash(d.SuggestedMode),
						dash(strings.Join(d.Attendees, ", ")),
						yesNo(d.RecordingURL() != ""),
					})
				}
				fmt.Fprintln(out, renderTable([]column{
					{title: "ID"}, {title: "Status"}, {title: "Title"},
					{title: "Mode"}, {title: "Attendees"}, {title: "Recording"},
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by draft status (repeatable)")
	cmd.AddCommand(newDraftImportCommand(ctx))
	return cmd
}

func newDraftImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <draft-id>",
		Short: "Download a draft's recording and create its session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.ImportDraft(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%s) to %s\n",
					resp.Session.SessionID, humanize.Bytes(uint64(resp.Bytes)), resp.RecordingPath)
				return nil
			})
		},
	}
}
