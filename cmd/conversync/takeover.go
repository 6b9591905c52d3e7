package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/consultline/conversync"
)

func newTakeoverCmd() *cobra.Command {
	var (
		userID  string
		convID  string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "takeover",
		Short: "Inspect or change who is answering a conversation",
	}

	cmd.PersistentFlags().StringVar(&userID, "user", "", "user ID the connection is scoped to")
	cmd.PersistentFlags().StringVar(&convID, "conversation", "", "conversation ID")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	cmd.MarkPersistentFlagRequired("user")
	cmd.MarkPersistentFlagRequired("conversation")

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the current takeover status",
		RunE: func(_ *cobra.Command, _ []string) error {
			eng, err := newEngine(verbose)
			if err != nil {
				return err
			}
			defer eng.Stop()

			_, cancel := switchWithTimeout(eng, userID, convID)
			defer cancel()

			status, ok := eng.TakeoverStatus()
			if !ok {
				return fmt.Errorf("takeover status unavailable")
			}
			fmt.Println(status)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:       "set {full_takeover|semi_takeover|no_takeover}",
		Short:     "Request a takeover transition",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"full_takeover", "semi_takeover", "no_takeover"},
		RunE: func(_ *cobra.Command, args []string) error {
			eng, err := newEngine(verbose)
			if err != nil {
				return err
			}
			defer eng.Stop()

			ctx, cancel := switchWithTimeout(eng, userID, convID)
			defer cancel()

			if err := eng.SetTakeover(ctx, conversync.TakeoverStatus(args[0])); err != nil {
				return err
			}
			status, _ := eng.TakeoverStatus()
			fmt.Println(status)
			return nil
		},
	}

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}
