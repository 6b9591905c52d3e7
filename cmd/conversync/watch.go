package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/consultline/conversync"
	"github.com/consultline/conversync/frame"
	"github.com/consultline/conversync/wire"
)

func newWatchCmd() *cobra.Command {
	var (
		userID  string
		convID  string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream a conversation to stdout until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := newEngine(verbose)
			if err != nil {
				return err
			}
			defer eng.Stop()

			eng.OnEvent(conversync.EventMessage, func(f frame.Frame) {
				var p wire.MessagePayload
				if err := json.Unmarshal(f.Payload, &p); err != nil {
					return
				}
				fmt.Printf("[%s] %s: %s\n",
					f.ServerTimestamp.Local().Format(time.TimeOnly), p.Sender, p.Content)
			})
			eng.OnEvent(conversync.EventConnect, func(f frame.Frame) {
				var p wire.ConnectPayload
				if err := json.Unmarshal(f.Payload, &p); err != nil {
					return
				}
				fmt.Printf("-- connection: %s\n", p.State)
			})
			eng.OnError(conversync.KindAny, func(ce conversync.Classified) {
				fmt.Fprintf(os.Stderr, "!! %s: %s\n", ce.Kind, ce.Message)
			})

			ctx := cmd.Context()
			if err := eng.Switch(ctx, userID, convID); err != nil {
				fmt.Fprintf(os.Stderr, "!! switch: %v\n", err)
			}

			for _, m := range eng.Messages() {
				fmt.Printf("[%s] %s: %s\n",
					m.Timestamp.Local().Format(time.TimeOnly), m.Sender, m.Content)
			}
			if status, ok := eng.TakeoverStatus(); ok {
				fmt.Printf("-- takeover: %s\n", status)
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			// SIGCONT approximates the page-visible signal a browser
			// host would deliver: poke the engine to reconnect.
			wake := make(chan os.Signal, 1)
			signal.Notify(wake, syscall.SIGCONT)

			for {
				select {
				case <-wake:
					eng.WakeUp()
				case <-stop:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID the connection is scoped to")
	cmd.Flags().StringVar(&convID, "conversation", "", "conversation ID to watch")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("conversation")

	return cmd
}

// switchWithTimeout is shared by the one-shot commands. A partial
// switch failure (e.g. the live connection not coming up) is only a
// warning: the REST-backed actions still work.
func switchWithTimeout(eng *conversync.Engine, userID, convID string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := eng.Switch(ctx, userID, convID); err != nil {
		fmt.Fprintf(os.Stderr, "!! switch: %v\n", err)
	}
	return ctx, cancel
}
