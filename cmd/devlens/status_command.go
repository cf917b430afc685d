package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"devlens/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and workflow status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, status)
				}
				renderDaemonStatus(cmd, status)
				return nil
			})
		},
	}
}

func renderDaemonStatus(cmd *cobra.Command, status api.DaemonStatus) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	running := "stopped"
	if status.Running {
		running = "running"
	}
	fmt.Fprintln(out, renderField("Daemon", fmt.Sprintf("%s (pid %d)", running, status.PID)))
	fmt.Fprintln(out, renderField("Database", status.DatabasePath))
	fmt.Fprintln(out, renderField("Lock", status.LockPath))
	fmt.Fprintln(out, renderField("Content", status.ContentSource))
	fmt.Fprintln(out, renderField("Drafts", strconv.Itoa(status.Drafts)))

	statuses := make([]string, 0, len(status.Sessions))
	for name := range status.Sessions {
		statuses = append(statuses, name)
	}
	sort.Strings(statuses)
	parts := make([]string, 0, len(statuses))
	for _, name := range statuses {
		parts = append(parts, fmt.Sprintf("%s=%d", colorStatus(name, colorize), status.Sessions[name]))
	}
	fmt.Fprintln(out, renderField("Sessions", dash(strings.Join(parts, " "))))

	wf := status.Workflow
	fmt.Fprintln(out, renderField("Workflow", fmt.Sprintf("running=%s processed=%d failed=%d",
		yesNo(wf.Running), wf.Processed, wf.Failed)))
	if len(wf.Active) > 0 {
		fmt.Fprintln(out, renderField("Active", strings.Join(wf.Active, ", ")))
	}
	if wf.LastError != "" {
		fmt.Fprintln(out, renderField("Last error", wf.LastError))
	}
	if len(wf.Health) > 0 {
		rows := make([][]string, 0, len(wf.Health))
		for _, h := range wf.Health {
			rows = append(rows, []string{h.Name, yesNo(h.Ready), dash(h.Detail)})
		}
		fmt.Fprintln(out, renderTable([]column{{title: "Collaborator"}, {title: "Ready"}, {title: "Detail"}}, rows))
	}
}
