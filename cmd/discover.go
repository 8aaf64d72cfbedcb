package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/gigecam/internal/logging"
	"github.com/smazurov/gigecam/pkg/gev"
)

// discoveredCamera is the JSON form of a discovery acknowledge.
type discoveredCamera struct {
	IP       string `json:"ip"`
	MAC      string `json:"mac"`
	Vendor   string `json:"vendor"`
	Model    string `json:"model"`
	Version  string `json:"version"`
	Serial   string `json:"serial"`
	UserName string `json:"user_name"`
	GEV      string `json:"gev_version"`
}

// CreateDiscoverCmd creates the discover command.
func CreateDiscoverCmd() *cobra.Command {
	var broadcast string
	var wait time.Duration
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List GigE Vision cameras on the network",
		Long:  `Broadcasts a GVCP discovery command and lists every camera that acknowledges within the wait time.`,
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("discover")

			ctx, cancel := context.WithTimeout(context.Background(), wait+time.Second)
			defer cancel()

			found, err := gev.Discover(ctx, broadcast, wait)
			if err != nil {
				logger.Error("Discovery failed", "broadcast", broadcast, "error", err)
				os.Exit(1)
			}
			logger.Debug("Discovery finished", "cameras", len(found))

			cams := make([]discoveredCamera, 0, len(found))
			for _, d := range found {
				cams = append(cams, discoveredCamera{
					IP:       d.IP.String(),
					MAC:      d.MAC.String(),
					Vendor:   d.ManufacturerName,
					Model:    d.ModelName,
					Version:  d.DeviceVersion,
					Serial:   d.SerialNumber,
					UserName: d.UserDefinedName,
					GEV:      fmt.Sprintf("%d.%d", d.VersionMajor, d.VersionMinor),
				})
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(cams); err != nil {
					logger.Error("Failed to encode cameras", "error", err)
					os.Exit(1)
				}
				return
			}

			if len(cams) == 0 {
				fmt.Println("No GigE Vision camera found.")
				return
			}
			fmt.Printf("%-16s %-18s %-20s %-20s %-12s %s\n", "IP", "MAC", "Vendor", "Model", "Serial", "Name")
			for _, c := range cams {
				fmt.Printf("%-16s %-18s %-20s %-20s %-12s %s\n", c.IP, c.MAC, c.Vendor, c.Model, c.Serial, c.UserName)
			}
		},
	}

	cmd.Flags().StringVar(&broadcast, "broadcast", "255.255.255.255", "Broadcast address to send the discovery command to")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "How long to collect acknowledges")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the cameras as JSON")
	return cmd
}
