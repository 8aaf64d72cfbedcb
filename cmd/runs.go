package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/gigecam/internal/logging"
	"github.com/smazurov/gigecam/internal/store"
)

// CreateRunsCmd creates the runs command.
func CreateRunsCmd() *cobra.Command {
	var path string
	var camera string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List triggered acquisitions recorded in the journal",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})
			logger := logging.GetLogger("runs")

			if _, err := os.Stat(path); err != nil {
				logger.Error("Journal not found", "path", path, "error", err)
				os.Exit(1)
			}
			journal, err := store.Open(path)
			if err != nil {
				logger.Error("Failed to open journal", "path", path, "error", err)
				os.Exit(1)
			}
			defer journal.Close()

			runs, err := journal.Runs(context.Background(), camera, limit)
			if err != nil {
				logger.Error("Failed to list runs", "error", err)
				os.Exit(1)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(runs)
				return
			}
			fmt.Printf("%-5s %-10s %-13s %-17s %-8s %7s %8s %s\n", "ID", "Camera", "Trigger", "Selector", "Source", "Frames", "Triggers", "Started")
			for _, r := range runs {
				source := "hardware"
				if r.Software {
					source = "software"
				}
				fmt.Printf("%-5d %-10s %-13s %-17s %-8s %7d %8d %s",
					r.ID, r.Camera, r.Trigger, r.Selector, source, r.Frames, r.Triggers, r.StartedAt.Local().Format(time.DateTime))
				if r.Error != "" {
					fmt.Printf("  error: %s", r.Error)
				}
				fmt.Println()
			}
		},
	}

	cmd.Flags().StringVar(&path, "journal", "gigecam.db", "Journal database file")
	cmd.Flags().StringVar(&camera, "camera", "", "Only list runs of this camera")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the runs as JSON")
	return cmd
}
