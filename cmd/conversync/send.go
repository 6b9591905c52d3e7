package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	var (
		userID  string
		convID  string
		sender  string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send one message to a conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			eng, err := newEngine(verbose)
			if err != nil {
				return err
			}
			defer eng.Stop()

			ctx, cancel := switchWithTimeout(eng, userID, convID)
			defer cancel()

			msg, err := eng.Send(ctx, strings.Join(args, " "), sender)
			if err != nil {
				return err
			}
			fmt.Printf("sent %s\n", msg.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID the connection is scoped to")
	cmd.Flags().StringVar(&convID, "conversation", "", "conversation ID to send to")
	cmd.Flags().StringVar(&sender, "sender", "consultant", "sender label on the message")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("conversation")

	return cmd
}
