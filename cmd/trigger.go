package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/gigecam/internal/logging"
	"github.com/smazurov/gigecam/internal/nats"
)

// CreateTriggerCmd creates the trigger command.
func CreateTriggerCmd() *cobra.Command {
	var url string
	var timeout time.Duration
	var reason string
	var count int
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "trigger <camera>",
		Short: "Send software triggers to a running gigecam over NATS",
		Long: `Requests software triggers from the gigecam process serving <camera>. ` +
			`The process accepts them only while a software-triggered acquisition is armed.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("trigger")

			pub, err := nats.NewControlPublisher(url, timeout, logger)
			if err != nil {
				logger.Error("Failed to connect to NATS", "url", url, "error", err)
				os.Exit(1)
			}
			defer pub.Close()

			for i := 0; i < count; i++ {
				if i > 0 {
					time.Sleep(interval)
				}
				if err := pub.Trigger(args[0], reason); err != nil {
					logger.Error("Trigger failed", "camera", args[0], "error", err)
					pub.Close()
					os.Exit(1)
				}
			}
		},
	}

	cmd.Flags().StringVar(&url, "nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "How long to wait for the camera to answer")
	cmd.Flags().StringVar(&reason, "reason", "cli", "Reason recorded with the trigger")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of triggers to send")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "Pause between triggers")
	return cmd
}
