package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/gigecam/internal/report"
	"github.com/smazurov/gigecam/pkg/gev"
)

// CreateCapabilitiesCmd creates the capabilities command.
func CreateCapabilitiesCmd() *cobra.Command {
	var flags cameraFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Print the GigE Vision capability registers",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logger := flags.initLogging("capabilities")
			cam := flags.mustOpen(logger)
			defer cam.Close()

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report.DecodeCapabilities(cam)); err != nil {
					logger.Error("Failed to encode capabilities", "error", err)
					os.Exit(1)
				}
				return
			}
			for _, set := range gev.CapabilitySets {
				report.CapabilityPage(os.Stdout, set, cam.Capability(set.Register))
				fmt.Println()
			}
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the decoded registers as JSON")
	return cmd
}
