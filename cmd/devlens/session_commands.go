package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"devlens/internal/api"
	"devlens/internal/session"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				sessions, err := client.Sessions(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, api.SessionListResponse{Sessions: sessions})
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions")
					return nil
				}
				fmt.Fprintln(out, renderTable(sessionColumns, sessionRows(sessions, shouldColorize(out))))
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session or calendar draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				proj, err := client.Session(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printProjection(cmd, ctx, proj)
			})
		},
	}
}

func newActiveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the session currently being processed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				proj, err := client.Active(cmd.Context())
				if err != nil {
					return err
				}
				if proj == nil {
					if ctx.wantJSON() {
						return writeJSON(cmd, nil)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "No active session")
					return nil
				}
				return printProjection(cmd, ctx, *proj)
			})
		},
	}
}

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		id        string
		meta      session.Metadata
		immediate bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			meta.StartImmediately = immediate
			return ctx.withClient(func(client *api.Client) error {
				proj, err := client.CreateSession(cmd.Context(), api.CreateSessionRequest{
					SessionID: strings.TrimSpace(id),
					Metadata:  meta,
				})
				if err != nil {
					return err
				}
				return printProjection(cmd, ctx, proj)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Session id (generated when empty)")
	cmd.Flags().StringVar(&meta.Title, "title", "", "Session title")
	cmd.Flags().StringVar(&meta.ProjectName, "project", "", "Project name")
	cmd.Flags().StringVar(&meta.Mode, "mode", "", "Documentation mode (see `devlens modes`)")
	cmd.Flags().BoolVar(&immediate, "start", false, "Create the session already processing")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				ok, err := client.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, api.ActionResponse{Success: ok})
				}
				if ok {
					fmt.Fprintf(cmd.OutOrStdout(), "Session %s cancelled\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Session %s was not cancelled (unknown or already finished)\n", args[0])
				}
				return nil
			})
		},
	}
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <session-id> <manifest.json>",
		Short: "Submit extracted material for a session",
		Long: "Reads a JSON manifest with duration, frames, transcript, audio_path, " +
			"boundaries, keywords, and segment_seconds, and submits it to the daemon.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			material, err := readManifest(args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Process(cmd.Context(), args[0], material)
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s accepted for processing\n", resp.SessionID)
				return nil
			})
		},
	}
}

func readManifest(path string) (api.ProcessRequest, error) {
	var material api.ProcessRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return material, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &material); err != nil {
		return material, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := material.Validate(); err != nil {
		return material, err
	}
	return material, nil
}

func printProjection(cmd *cobra.Command, ctx *commandContext, proj session.Projection) error {
	if ctx.wantJSON() {
		return writeJSON(cmd, proj)
	}
	out := cmd.OutOrStdout()
	renderProjection(out, proj, shouldColorize(out))
	return nil
}
