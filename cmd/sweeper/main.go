package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/panel.sweep/internal/command"
	"github.com/banshee-data/panel.sweep/internal/config"
	"github.com/banshee-data/panel.sweep/internal/control"
	"github.com/banshee-data/panel.sweep/internal/db"
	"github.com/banshee-data/panel.sweep/internal/frames"
	"github.com/banshee-data/panel.sweep/internal/schedule"
	"github.com/banshee-data/panel.sweep/internal/seriallink"
	"github.com/banshee-data/panel.sweep/internal/spectral"
	"github.com/banshee-data/panel.sweep/internal/state"
	"github.com/banshee-data/panel.sweep/internal/version"
)

var (
	configFile   = flag.String("config", "", "Path to a .json or .yaml config file")
	devMode      = flag.Bool("dev", false, "Run without Redis or hardware: in-memory state and no serial link")
	showVersion  = flag.Bool("version", false, "Print version and exit")
	logLevel     = flag.String("log-level", "diag", "Log streams to print: ops, diag or trace")
	deviceID     = flag.String("device", "", "Device id (overrides config)")
	redisURL     = flag.String("redis", "", "Redis URL (overrides config)")
	serialPort   = flag.String("port", "", "Serial port; empty means discover by signature (overrides config)")
	framesDir    = flag.String("frames", "", "Directory of .mp4 videos (overrides config)")
	referenceImg = flag.String("reference", "", "Clean reference image (overrides config)")
	journalPath  = flag.String("journal", "", "SQLite score journal; \"off\" disables it (overrides config)")
	listen       = flag.String("listen", "", "Debug HTTP listen address; \"off\" disables it (overrides config)")
)

// applyFlags folds explicitly set command-line flags into cfg.
func applyFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "device":
			cfg.DeviceID = &v
		case "redis":
			cfg.RedisURL = &v
		case "port":
			cfg.SerialPort = &v
		case "frames":
			cfg.FramesDir = &v
		case "reference":
			cfg.ReferenceImage = &v
		case "journal":
			if v == "off" {
				v = ""
			}
			cfg.JournalPath = &v
		case "listen":
			if v == "off" {
				v = ""
			}
			cfg.DebugListen = &v
		}
	})
}

// logWriters maps a level name to the ops, diag and trace writers.
func logWriters(level string, w io.Writer) (ops, diag, trace io.Writer, err error) {
	switch strings.ToLower(level) {
	case "ops":
		return w, nil, nil, nil
	case "diag", "":
		return w, w, nil, nil
	case "trace":
		return w, w, w, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown log level %q (want ops, diag or trace)", level)
	}
}

func configureLogging(level string, w io.Writer) error {
	ops, diag, trace, err := logWriters(level, w)
	if err != nil {
		return err
	}
	seriallink.SetLogWriters(ops, diag, trace)
	frames.SetLogWriters(ops, diag, trace)
	control.SetLogWriters(ops, diag, trace)
	command.SetLogWriters(ops, diag)
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg := config.Empty()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyFlags(flag.CommandLine, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("sweeper %s\n", version.String())
		return
	}

	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		path := *journalPath
		if path == "" {
			path = config.DefaultJournalPath
		}
		if err := db.RunMigrateCommand(os.Stdout, flag.Args()[1:], path); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	if err := configureLogging(*logLevel, os.Stderr); err != nil {
		log.Fatal(err)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared state and the actuator board
	var store state.SharedState
	var link seriallink.Conn
	if *devMode {
		log.Printf("dev mode: in-memory state, no hardware")
		store = state.NewMemory()
		link = seriallink.NewDisabled()
	} else {
		rs, err := state.DialRedis(ctx, cfg.GetRedisURL())
		if err != nil {
			log.Fatalf("failed to connect to shared state: %v", err)
		}
		store = rs
		link = seriallink.Connect(
			seriallink.Dialer{Settle: cfg.GetSerialSettle()},
			cfg.GetSerialPort(),
			cfg.GetSerialSignatures(),
			seriallink.PortOptions{BaudRate: cfg.GetBaudRate()},
		)
	}
	defer store.Close()
	defer link.Close()

	device := state.NewDevice(store, cfg.GetDeviceID())
	sub, err := device.Commands(ctx)
	if err != nil {
		log.Fatalf("failed to subscribe to commands: %v", err)
	}
	commands := command.NewSubscriptionSource(sub)
	defer commands.Close()

	params, err := cfg.GetClassifierParams()
	if err != nil {
		log.Fatalf("failed to load classifier parameters: %v", err)
	}

	// Frames and the clean reference
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	playlist, err := frames.ScanPlaylist(cfg.GetFramesDir(), rng)
	if err != nil {
		log.Fatalf("failed to load videos: %v", err)
	}
	log.Printf("loaded %d videos from %s", playlist.Len(), cfg.GetFramesDir())
	source := frames.NewSource(playlist, frames.FFmpegExtractor{Binary: cfg.GetFFmpegPath()}, cfg.GetWorkDir())

	opts := spectral.Options{
		BrightnessTarget: cfg.GetBrightnessTarget(),
		BrightnessCutoff: cfg.GetBrightnessCutoff(),
		CompareSize:      cfg.GetCompareSize(),
	}
	ref, err := spectral.LoadReference(cfg.GetReferenceImage(), opts)
	if err != nil {
		log.Fatalf("failed to load reference image: %v", err)
	}

	// Score journal
	var database *db.DB
	var journal control.Journal
	if path := cfg.GetJournalPath(); path != "" {
		database, err = db.NewDB(path)
		if err != nil {
			log.Fatalf("failed to open journal: %v", err)
		}
		defer database.Close()
		j, err := database.StartRun(ctx, db.Run{
			DeviceID:       device.ID(),
			Started:        time.Now(),
			Version:        version.Version,
			ReferenceImage: cfg.GetReferenceImage(),
		})
		if err != nil {
			log.Fatalf("failed to start run: %v", err)
		}
		log.Printf("journalling run %s to %s", j.RunID(), path)
		journal = j
	}

	loop, err := control.New(control.Config{
		Device:           device,
		Commands:         command.NewChannel(device, commands),
		Link:             link,
		Frames:           source,
		Scorer:           spectral.NewEngine(ref, opts),
		Journal:          journal,
		Params:           params,
		FrameInterval:    schedule.IntervalForRate(cfg.GetFrameRate()),
		IdleInterval:     cfg.GetIdleInterval(),
		AuxChannels:      cfg.GetAuxChannels(),
		ProcessNoise:     cfg.GetKalmanProcessNoise(),
		MeasurementNoise: cfg.GetKalmanMeasurementNoise(),
	})
	if err != nil {
		log.Fatalf("failed to build control loop: %v", err)
	}
	loop.Publish()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("control loop error: %v", err)
		}
		log.Printf("control loop stopped: %s", loop.Stats().Snapshot().Summary())
	}()

	if addr := cfg.GetDebugListen(); addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mux := http.NewServeMux()
			tsweb.Debugger(mux).KV("Version", version.String())
			if l, ok := link.(*seriallink.Link); ok {
				l.AttachAdminRoutes(mux)
			}
			if database != nil {
				if err := database.AttachAdminRoutes(mux); err != nil {
					log.Printf("failed to attach journal routes: %v", err)
				}
			}
			loop.AttachAdminRoutes(mux)
			serveDebug(ctx, addr, mux)
		}()
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// serveDebug runs the debug HTTP server until ctx is cancelled.
func serveDebug(ctx context.Context, addr string, handler http.Handler) {
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("debug server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}
