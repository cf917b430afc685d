package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"devlens/internal/api"
)

func newModesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List documentation modes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				list, err := client.Modes(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, api.ModesResponse{Modes: list})
				}
				rows := make([][]string, 0, len(list))
				for _, m := range list {
					rows = append(rows, []string{m.Mode, m.Name, dash(m.Description)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{{title: "Mode"}, {title: "Name"}, {title: "Description"}}, rows))
				return nil
			})
		},
	}
}
