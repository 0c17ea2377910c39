package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mkaleva/chunkcast/internal/api"
	"github.com/mkaleva/chunkcast/internal/cache"
	"github.com/mkaleva/chunkcast/internal/config"
	"github.com/mkaleva/chunkcast/internal/engine"
	"github.com/mkaleva/chunkcast/internal/timing"
	"github.com/mkaleva/chunkcast/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	versionFlag = flag.Bool("version", false, "Show version information")
	debugFlag   = flag.Bool("debug", false, "Enable debug logging")
	trackFlag   = flag.String("track", "", "Track ID to play (defaults to the last played track)")
	apiFlag     = flag.String("api", "", "Backend base URL (overrides config)")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		os.Exit(0)
	}

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.DefaultConfig()
	}

	if *apiFlag != "" {
		cfg.APIBaseURL = *apiFlag
	}

	trackID := *trackFlag
	if trackID == "" {
		trackID = cfg.LastTrack
	}
	if trackID == "" {
		fmt.Fprintln(os.Stderr, "No track to play: pass -track or play one first.")
		os.Exit(1)
	}

	client := api.NewClient(cfg.APIBaseURL)

	opts := []engine.Option{
		engine.WithEnvelope(parseEnvelope(cfg.Envelope)),
	}
	if cfg.CacheChunks {
		chunkCache, err := cache.NewCache()
		if err != nil {
			log.Warn().Err(err).Msg("Chunk cache unavailable")
		} else {
			chunkCache.CleanExpired()
			opts = append(opts, engine.WithChunkCache(chunkCache))
		}
	}

	player := engine.NewPlayer(client, cfg.Fetch, engine.Settings{
		Enabled:   cfg.Enhancement.Enabled,
		Preset:    cfg.Enhancement.Preset,
		Intensity: cfg.Enhancement.Intensity,
	}, opts...)

	castUI := ui.NewUI(player, cfg, trackID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, cleaning up...")
		castUI.Shutdown()
	}()

	uiDone := make(chan error, 1)
	go func() {
		uiDone <- castUI.Run()
	}()

	if err := <-uiDone; err != nil {
		log.Error().Err(err).Msg("Error running UI")
		player.Destroy()
		os.Exit(1)
	}

	player.Destroy()
	log.Info().Msg("ChunkCast stopped")
}

func setupLogging() {
	if !*debugFlag {
		// Avoid TUI corruption by only logging errors to /dev/null
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			log.Logger = log.Output(logFile)
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
	}
	logPath := filepath.Join(cacheDir, "debug.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		logFile = os.Stderr
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
	fmt.Printf("Debug log: %s\n", logPath)
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)

	if configPath, err := config.GetConfigPath(); err == nil {
		log.Debug().Msgf("Config: %s", configPath)
	}
	log.Debug().Msgf("Cache: %s", cacheDir)
}

func parseEnvelope(name string) timing.Envelope {
	env, err := timing.ParseEnvelope(name)
	if err != nil {
		log.Warn().Err(err).Str("envelope", name).Msg("Unknown envelope, using equal-power")
		return timing.EnvelopeEqualPower
	}
	return env
}
