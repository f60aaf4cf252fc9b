package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

type globalOptions struct {
	server  string
	timeout time.Duration
	json    bool
}

func (o *globalOptions) client() *apiClient {
	return newAPIClient(o.server, o.timeout)
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "pttctl",
		Short:         "Operate a PTT relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	server := os.Getenv("PTTRELAY_URL")
	if server == "" {
		server = defaultServer
	}

	rootCmd.PersistentFlags().StringVarP(&opts.server, "server", "s", server, "Relay base URL (env PTTRELAY_URL)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "HTTP request timeout")
	rootCmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print raw JSON responses")

	rootCmd.AddCommand(newStatusCommand(opts))
	rootCmd.AddCommand(newUploadCommand(opts))
	rootCmd.AddCommand(newFetchCommand(opts))
	rootCmd.AddCommand(newFreqCommand())

	return rootCmd
}
