package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newUploadCommand(opts *globalOptions) *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an audio clip and print its reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := opts.client().Upload(cmd.Context(), args[0], f, channel)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return json.NewEncoder(out).Encode(result)
			}
			fmt.Fprintln(out, result.Reference)
			fmt.Fprintf(cmd.ErrOrStderr(), "stored %s in %dms\n", humanize.IBytes(uint64(result.Size)), result.ProcessingTimeMs)
			return nil
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "Channel the clip belongs to (logged by the relay)")
	return cmd
}

func newFetchCommand(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch <reference>",
		Short: "Download a stored audio clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := opts.client().Fetch(cmd.Context(), args[0], w)
			if err != nil {
				if output != "" && output != "-" {
					os.Remove(output)
				}
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s to %s\n", humanize.IBytes(uint64(n)), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}
