package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"pttrelay/internal/core/domain"

	"github.com/spf13/cobra"
)

func newStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connected sessions, active channels and stored audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := opts.client()

			status, err := client.Status(ctx)
			if err != nil {
				return err
			}
			channels, err := client.Channels(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					*domain.RelayStatus
					Rosters []domain.ChannelSummary `json:"rosters"`
				}{status, channels})
			}

			fmt.Fprintf(out, "Connections:   %d\n", status.Connections)
			fmt.Fprintf(out, "Audio objects: %d\n", status.AudioObjects)
			fmt.Fprintf(out, "Uptime:        %s\n", status.Uptime)

			if len(channels) == 0 {
				fmt.Fprintln(out, "No active channels")
				return nil
			}

			rows := make([][]string, 0, len(channels))
			for _, ch := range channels {
				kind := "named"
				if ch.ID.IsFrequencyChannel() {
					kind = "frequency"
				}
				rows = append(rows, []string{string(ch.ID), kind, strconv.Itoa(ch.Members)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Channel", "Kind", "Members"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}
