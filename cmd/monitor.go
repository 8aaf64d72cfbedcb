package cmd

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/logging"
	"github.com/smazurov/gigecam/internal/nats"
)

// CreateMonitorCmd creates the monitor command.
func CreateMonitorCmd() *cobra.Command {
	var url string
	var camera string
	var frames bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print camera events published on NATS",
		Long:  `Bridges the camera subjects of a NATS server onto a local event bus and prints each event as a JSON line.`,
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("monitor")

			bus := events.New()
			ch := make(chan any, 256)
			kinds := events.KindTriggers | events.KindState
			if frames {
				kinds |= events.KindFrames
			}
			unsubscribe := events.SubscribeCamera(bus, ch, kinds, camera)
			defer unsubscribe()

			bridge := nats.NewBridge(url, bus, logger)
			if err := bridge.Start(); err != nil {
				logger.Error("Failed to start NATS bridge", "url", url, "error", err)
				os.Exit(1)
			}
			defer bridge.Stop()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

			enc := json.NewEncoder(os.Stdout)
			for {
				select {
				case <-sig:
					return
				case ev := <-ch:
					if err := enc.Encode(map[string]any{"event": events.Name(ev), "data": ev}); err != nil {
						logger.Error("Failed to encode event", "error", err)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&url, "nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	cmd.Flags().StringVar(&camera, "camera", "", "Only print events of this camera")
	cmd.Flags().BoolVar(&frames, "frames", false, "Also print every processed frame")
	return cmd
}
