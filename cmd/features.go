package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/gigecam/internal/features"
	"github.com/smazurov/gigecam/internal/report"
)

// CreateFeaturesCmd creates the features command and its subcommands.
func CreateFeaturesCmd() *cobra.Command {
	var flags cameraFlags

	cmd := &cobra.Command{
		Use:   "features",
		Short: "Print, read, write, save and load camera features",
		Long:  `Without a subcommand, prints the camera features summary non-interactively.`,
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logger := flags.initLogging("features")
			cam := flags.mustOpen(logger)
			defer cam.Close()

			if _, err := report.New(os.Stdout, cam, logger).Summary(nil); err != nil {
				logger.Error("Failed to print summary", "error", err)
				os.Exit(1)
			}
		},
	}
	flags.register(cmd.PersistentFlags())

	cmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Print the value of a feature",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			logger := flags.initLogging("features")
			cam := flags.mustOpen(logger)
			defer cam.Close()

			value, typ, err := features.Read(cam, args[0])
			if err != nil {
				logger.Error("Failed to read feature", "feature", args[0], "error", err)
				os.Exit(1)
			}
			fmt.Printf("%s (%s) = %s\n", args[0], typ, value)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name> <value>",
		Short: "Write a feature value, or execute a command feature",
		Args:  cobra.RangeArgs(1, 2),
		Run: func(_ *cobra.Command, args []string) {
			logger := flags.initLogging("features")
			cam := flags.mustOpen(logger)
			defer cam.Close()

			value := ""
			if len(args) == 2 {
				value = args[1]
			}
			if err := features.Write(cam, args[0], value); err != nil {
				logger.Error("Failed to write feature", "feature", args[0], "value", value, "error", err)
				os.Exit(1)
			}
			logger.Info("Feature written", "feature", args[0], "value", value)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save <file>",
		Short: "Save the user-settable features to a TOML or YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			logger := flags.initLogging("features")
			cam := flags.mustOpen(logger)
			defer cam.Close()

			set, err := features.Capture(cam, features.Persistent, logger)
			if set == nil {
				logger.Error("Failed to capture features", "error", err)
				os.Exit(1)
			}
			if err != nil {
				logger.Warn("Some features could not be captured", "error", err)
			}
			if err := features.Save(args[0], set); err != nil {
				logger.Error("Failed to save feature set", "file", args[0], "error", err)
				os.Exit(1)
			}
			logger.Info("Feature set saved", "file", args[0], "features", len(set.Features))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "load <file>",
		Short: "Write a saved feature set to the camera",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			logger := flags.initLogging("features")
			set, err := features.Load(args[0])
			if err != nil {
				logger.Error("Failed to load feature set", "file", args[0], "error", err)
				os.Exit(1)
			}
			cam := flags.mustOpen(logger)
			defer cam.Close()

			applied, err := features.Apply(cam, set, logger)
			logger.Info("Feature set applied", "file", args[0], "applied", applied, "total", len(set.Features))
			if err != nil {
				logger.Error("Some features could not be written", "error", err)
				os.Exit(1)
			}
		},
	})
	return cmd
}
