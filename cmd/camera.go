// Package cmd holds the gigecam subcommands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/smazurov/gigecam/internal/camera"
	_ "github.com/smazurov/gigecam/internal/camera/gevcam" // registers the gev backend
	_ "github.com/smazurov/gigecam/internal/camera/sim"    // registers the sim backend
	"github.com/smazurov/gigecam/internal/config"
	"github.com/smazurov/gigecam/internal/logging"
)

// cameraFlags are the flags every subcommand that opens a camera shares.
type cameraFlags struct {
	config      string
	logJSON     bool
	backend     string
	profile     string
	address     string
	iface       string
	registerMap string
	packetSize  int
	name        string
}

func (f *cameraFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.config, "config", "c", "gigecam.toml", "Configuration file for logging levels")
	fs.BoolVar(&f.logJSON, "log-json", false, "Log in JSON format")
	fs.StringVarP(&f.backend, "backend", "b", "sim", "Camera backend (sim, gev)")
	fs.StringVar(&f.profile, "profile", "", "Simulated camera profile (TOML); empty uses the built-in profile")
	fs.StringVarP(&f.address, "address", "a", "", "Camera IP address (gev backend)")
	fs.StringVar(&f.iface, "interface", "", "Host interface name to report")
	fs.StringVar(&f.registerMap, "register-map", "", "Register map for SFNC features (gev backend)")
	fs.IntVar(&f.packetSize, "packet-size", 0, "GVSP packet size; 0 keeps the camera's value")
	fs.StringVar(&f.name, "name", "", "Camera name for events and the journal; defaults to the backend")
}

// initLogging initializes logging from the config file's [logging] table
// and returns the logger for module.
func (f *cameraFlags) initLogging(module string) *slog.Logger {
	cfg := config.LoadLoggingConfig(f.config)
	if f.logJSON {
		cfg.Format = "json"
	}
	logging.Initialize(cfg)
	return logging.GetLogger(module)
}

func (f *cameraFlags) open(logger *slog.Logger) (camera.Camera, error) {
	cam, err := camera.Open(camera.Config{
		Name:        f.cameraName(),
		Backend:     f.backend,
		Profile:     f.profile,
		Address:     f.address,
		Interface:   f.iface,
		RegisterMap: f.registerMap,
		PacketSize:  f.packetSize,
		Logger:      logging.GetLogger("camera"),
	})
	if err != nil {
		logger.Error("Failed to open camera", "backend", f.backend, "error", err)
		return nil, err
	}
	return cam, nil
}

// cameraName is the label events and journal rows carry.
func (f *cameraFlags) cameraName() string {
	if f.name != "" {
		return f.name
	}
	return f.backend
}

// mustOpen opens the camera or exits with status 1.
func (f *cameraFlags) mustOpen(logger *slog.Logger) camera.Camera {
	cam, err := f.open(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	return cam
}
