package main

import (
	"fmt"
	"strconv"

	"pttrelay/internal/core/domain"
	"pttrelay/pkg/validation"

	"github.com/spf13/cobra"
)

func newFreqCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "freq <mhz>",
		Short: "Print the channel id for a frequency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mhz, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid frequency %q", args[0])
			}
			if err := validation.ValidateFrequency(mhz); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), domain.ChannelIDFromFrequency(mhz))
			return nil
		},
	}
}
