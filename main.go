package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/gigecam/cmd"
	"github.com/smazurov/gigecam/internal/api"
	"github.com/smazurov/gigecam/internal/camera"
	_ "github.com/smazurov/gigecam/internal/camera/gevcam" // registers the gev backend
	_ "github.com/smazurov/gigecam/internal/camera/sim"    // registers the sim backend
	"github.com/smazurov/gigecam/internal/config"
	"github.com/smazurov/gigecam/internal/console"
	"github.com/smazurov/gigecam/internal/demo"
	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/frame"
	"github.com/smazurov/gigecam/internal/logging"
	"github.com/smazurov/gigecam/internal/metrics/collectors"
	"github.com/smazurov/gigecam/internal/metrics/exporters"
	"github.com/smazurov/gigecam/internal/nats"
	"github.com/smazurov/gigecam/internal/store"
	"github.com/smazurov/gigecam/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"gigecam.toml"`

	// Camera settings
	Backend     string `help:"Camera backend (sim, gev)" short:"b" default:"sim" toml:"camera.backend" env:"CAMERA_BACKEND"`
	Profile     string `help:"Simulated camera profile (TOML); empty uses the built-in profile" default:"" toml:"camera.profile" env:"CAMERA_PROFILE"`
	Address     string `help:"Camera IP address (gev backend)" short:"a" default:"" toml:"camera.address" env:"CAMERA_ADDRESS"`
	Interface   string `help:"Host interface name to report" default:"" toml:"camera.interface" env:"CAMERA_INTERFACE"`
	RegisterMap string `name:"register-map" help:"Register map for SFNC features (gev backend)" default:"" toml:"camera.register_map" env:"CAMERA_REGISTER_MAP"`
	PacketSize  int    `name:"packet-size" help:"GVSP packet size; 0 keeps the camera's value" default:"0" toml:"camera.packet_size" env:"CAMERA_PACKET_SIZE"`
	Name        string `help:"Camera name for events, metrics and the journal; defaults to the backend" default:"" toml:"camera.name" env:"CAMERA_NAME"`

	// Demo settings
	PrintLUT     bool   `name:"print-lut" help:"Page through the lookup tables after the feature summary" default:"false" toml:"demo.print_lut" env:"PRINT_LUT"`
	Keys         string `help:"Play these key presses instead of reading the keyboard" default:"" toml:"demo.keys" env:"DEMO_KEYS"`
	BufferBudget int    `name:"buffer-budget" help:"Grab buffer memory budget in MiB; allocation stops early past it, 0 is unbounded" default:"256" toml:"demo.buffer_budget" env:"BUFFER_BUDGET"`

	// Server settings
	HTTP bool   `name:"http" help:"Serve the feature browser API and live display" default:"true" toml:"server.enabled" env:"SERVER_ENABLED"`
	Port string `help:"Address the API listens on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `name:"auth-username" help:"Basic auth username; empty disables auth" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `name:"auth-password" help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// NATS settings
	NATSURL   string `name:"nats-url" help:"NATS server to publish events to and take remote triggers from; empty disables NATS" default:"" toml:"nats.url" env:"NATS_URL"`
	NATSEmbed bool   `name:"nats-embed" help:"Run an embedded NATS server" default:"false" toml:"nats.embed" env:"NATS_EMBED"`
	NATSPort  int    `name:"nats-port" help:"Embedded NATS server port" default:"4222" toml:"nats.port" env:"NATS_PORT"`

	// Journal settings
	Journal string `help:"SQLite journal of triggered runs and feature writes; empty disables it" default:"gigecam.db" toml:"journal.path" env:"JOURNAL_PATH"`

	// Logging settings
	LoggingLevel   string `name:"logging-level" help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `name:"logging-format" help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera  string `name:"logging-camera" help:"Camera backend logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingGEV     string `name:"logging-gev" help:"GVCP/GVSP protocol logging level" default:"info" toml:"logging.gev" env:"LOGGING_GEV"`
	LoggingAcquire string `name:"logging-acquire" help:"Acquisition logging level" default:"info" toml:"logging.acquire" env:"LOGGING_ACQUIRE"`
	LoggingAPI     string `name:"logging-api" help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingNATS    string `name:"logging-nats" help:"NATS logging level" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
	WatchConfig    bool   `name:"watch-config" help:"Reload logging levels when the configuration file changes" default:"true" toml:"logging.watch" env:"LOGGING_WATCH"`
}

func (o *Options) cameraName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.Backend
}

// browserURL is the base URL printed for the feature browser.
func browserURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var (
			shutdownOnce sync.Once
			cleanups     []func()
		)
		// shutdown runs the cleanups in reverse registration order.
		shutdown := func() {
			shutdownOnce.Do(func() {
				for i := len(cleanups) - 1; i >= 0; i-- {
					cleanups[i]()
				}
			})
		}

		hooks.OnStart(func() {
			// Flags set on the command line win over env and file values.
			if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
				os.Stderr.WriteString("Failed to load config: " + loadErr.Error() + "\n")
			}

			// The terminal is opened first so log lines get CRLF endings in raw mode.
			var con console.Console
			logOutput := os.Stderr
			var term *console.Terminal
			if opts.Keys != "" {
				con = console.NewScripted(opts.Keys).Echo(os.Stdout)
			} else {
				t, err := console.Open(os.Stdin, os.Stdout)
				if err != nil {
					os.Stderr.WriteString(err.Error() + "\n")
					os.Exit(1)
				}
				term = t
				con = t
				cleanups = append(cleanups, func() { _ = t.Restore() })
			}

			loggingConfig := logging.Config{
				Level:  opts.LoggingLevel,
				Format: opts.LoggingFormat,
				Modules: map[string]string{
					"camera":  opts.LoggingCamera,
					"gev":     opts.LoggingGEV,
					"acquire": opts.LoggingAcquire,
					"trigger": opts.LoggingAcquire,
					"api":     opts.LoggingAPI,
					"nats":    opts.LoggingNATS,
				},
			}
			if term != nil {
				loggingConfig.Output = term.Wrap(logOutput)
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("main")
			logger.Info("Starting gigecam", "version", version.String(), "backend", opts.Backend)

			eventBus := events.New()

			// Log entries reach SSE clients through the bus.
			var logSeq atomic.Uint64
			logging.SetLogCallback(func(e logging.LogEntry) {
				eventBus.Publish(events.LogEntryEvent{
					Seq:        logSeq.Add(1),
					Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
					Level:      e.Level,
					Module:     e.Module,
					Message:    e.Message,
					Attributes: e.Attributes,
				})
			})
			cleanups = append(cleanups, func() { logging.SetLogCallback(nil) })

			if opts.WatchConfig {
				if _, statErr := os.Stat(opts.Config); statErr == nil {
					watcher, err := config.WatchLogging(opts.Config, logging.GetLogger("config"))
					if err != nil {
						logger.Warn("Failed to watch config file", "path", opts.Config, "error", err)
					} else {
						cleanups = append(cleanups, func() { _ = watcher.Stop() })
					}
				}
			}

			ctx, cancel := context.WithCancel(context.Background())
			cleanups = append(cleanups, cancel)

			collector := collectors.NewBusCollector(eventBus)
			if err := collector.Start(ctx); err != nil {
				logger.Warn("Failed to start metrics collector", "error", err)
			} else {
				cleanups = append(cleanups, func() { _ = collector.Stop() })
			}
			sseExporter := exporters.NewSSEExporter(eventBus)
			sseExporter.Start(ctx)
			cleanups = append(cleanups, sseExporter.Stop)

			name := opts.cameraName()
			cam, err := camera.Open(camera.Config{
				Name:        name,
				Backend:     opts.Backend,
				Profile:     opts.Profile,
				Address:     opts.Address,
				Interface:   opts.Interface,
				RegisterMap: opts.RegisterMap,
				PacketSize:  opts.PacketSize,
				Logger:      logging.GetLogger("camera"),
			})
			if err != nil {
				logger.Error("Failed to open camera", "backend", opts.Backend, "error", err)
				shutdown()
				os.Exit(1)
			}
			cleanups = append(cleanups, func() {
				if err := cam.Close(); err != nil {
					logger.Warn("Error closing camera", "error", err)
				}
			})

			var journal *store.Journal
			if opts.Journal != "" {
				journal, err = store.Open(opts.Journal)
				if err != nil {
					logger.Warn("Journal disabled", "path", opts.Journal, "error", err)
				} else {
					cleanups = append(cleanups, func() { _ = journal.Close() })
					stopRecording := journal.RecordFeatureChanges(eventBus, logging.GetLogger("store"))
					cleanups = append(cleanups, stopRecording)
				}
			}

			demoOpts := demo.Options{
				Camera:    name,
				PrintLUT:  opts.PrintLUT,
				Allocator: frame.NewPool(opts.BufferBudget << 20),
				Bus:       eventBus,
				Journal:   journal,
				Logger:    logging.GetLogger("acquire"),
			}
			if opts.HTTP {
				demoOpts.BrowserURL = browserURL(opts.Port)
			}
			session, err := demo.New(cam, con, demoOpts)
			if err != nil {
				logger.Error("Failed to prepare demo", "error", err)
				shutdown()
				os.Exit(1)
			}

			natsURL := opts.NATSURL
			if opts.NATSEmbed {
				srv := nats.NewServer(nats.ServerOptions{Port: opts.NATSPort, Logger: logging.GetLogger("nats")})
				if err := srv.Start(); err != nil {
					logger.Error("Failed to start embedded NATS server", "error", err)
				} else {
					cleanups = append(cleanups, srv.Stop)
					if natsURL == "" {
						natsURL = srv.ClientURL()
					}
				}
			}
			if natsURL != "" {
				client := nats.NewCameraClient(natsURL, name, logging.GetLogger("nats"))
				client.OnTrigger(session.Runner().Trigger)
				if err := client.Connect(); err != nil {
					logger.Warn("NATS unavailable, events stay local", "url", natsURL, "error", err)
				}
				detach := client.Attach(eventBus)
				cleanups = append(cleanups, client.Close, detach)
			}

			if opts.HTTP {
				server := api.NewServer(&api.Options{
					AuthUsername:      opts.AuthUsername,
					AuthPassword:      opts.AuthPassword,
					Camera:            cam,
					CameraName:        name,
					Bus:               eventBus,
					Display:           session.Display(),
					Journal:           journal,
					Trigger:           session.Runner().Trigger,
					PrometheusHandler: exporters.HTTPHandler(),
				})
				go func() {
					if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
						logger.Error("HTTP server failed", "error", startErr)
					}
				}()
				cleanups = append(cleanups, func() {
					if stopErr := server.Stop(); stopErr != nil {
						logger.Error("Error stopping HTTP server", "error", stopErr)
					}
				})
			}

			runErr := session.Run(ctx)
			shutdown()
			switch {
			case errors.Is(runErr, camera.ErrNotGigE):
				os.Exit(1)
			case errors.Is(runErr, console.ErrInterrupted):
				logger.Info("Interrupted")
			case runErr != nil:
				logger.Error("Demo ended with error", "error", runErr)
			}
		})

		hooks.OnStop(func() {
			logging.GetLogger("main").Info("Shutting down")
			shutdown()
		})
	})

	cli.Root().Use = "gigecam"
	cli.Root().Short = "GigE Vision camera feature summary and triggered acquisition demo"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateDiscoverCmd())
	cli.Root().AddCommand(cmd.CreateFeaturesCmd())
	cli.Root().AddCommand(cmd.CreateCapabilitiesCmd())
	cli.Root().AddCommand(cmd.CreateTriggerCmd())
	cli.Root().AddCommand(cmd.CreateMonitorCmd())
	cli.Root().AddCommand(cmd.CreateRunsCmd())

	cli.Run()
}
