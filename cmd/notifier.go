/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/streamhub/apiserver/config"
	"github.com/streamhub/apiserver/internal/events"
)

// notifierCmd represents the notifier command. It consumes platform
// events from the configured broker and logs them; notification
// delivery hangs off this consumer.
var notifierCmd = &cobra.Command{
	Use:   "notifier",
	Short: "Consume platform events and emit notifications",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()

		bus, err := events.NewBus(cmd.Context(), cfg.MQ)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to broker: %v\n", err)
			os.Exit(1)
		}
		if bus == nil {
			fmt.Fprintln(os.Stderr, "MQ_BACKEND is required for the notifier")
			os.Exit(1)
		}
		defer bus.Close()

		err = bus.Subscribe(cmd.Context(), events.TopicChannelSubscribed, func(ctx context.Context, msg events.Message) error {
			var event events.ChannelSubscribed
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				log.Printf("notifier: drop malformed message %s: %v", msg.ID, err)
				return nil
			}
			log.Printf("notifier: user %d subscribed to channel %d", event.SubscriberID, event.ChannelID)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "notifier error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(notifierCmd)
}
