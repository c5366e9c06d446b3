package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wavecast/wavecast/internal/api"
	"github.com/wavecast/wavecast/internal/config"
	"github.com/wavecast/wavecast/internal/player"
	"github.com/wavecast/wavecast/internal/track"
)

var (
	versionFlag  = flag.Bool("version", false, "Show version information")
	debugFlag    = flag.Bool("debug", false, "Enable debug logging")
	endpointFlag = flag.String("endpoint", "", "Chunk server base URL (overrides config)")
	enhancedFlag = flag.Bool("enhanced", false, "Request the enhanced variant of each chunk")
	presetFlag   = flag.String("preset", "", "Enhancement preset name")
	intensityVal = flag.Float64("intensity", 0, "Enhancement intensity")
	seekFlag     = flag.Duration("seek", 0, "Start playback at this position")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <track-id>\n\n", os.Args[0])
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

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if *debugFlag {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	trackID := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Using default configuration")
	}
	if *endpointFlag != "" {
		cfg.Endpoint = *endpointFlag
	}

	if err := run(cfg, trackID); err != nil {
		log.Error().Err(err).Msg("Playback failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, trackID string) error {
	client := api.NewClient(cfg.Endpoint)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t, err := client.GetTrack(ctx, trackID)
	cancel()
	if err != nil {
		return err
	}

	engine := player.New(player.Config{
		BufferBytes:  cfg.BufferKB * 1024,
		CrossfadeMs:  cfg.CrossfadeMs,
		PreloadAhead: cfg.PreloadAhead,
		MaxAttempts:  cfg.MaxLoadAttempts,
		RetryBase:    time.Duration(cfg.RetryBaseMs) * time.Millisecond,
		CacheSlots:   cfg.CacheSlots,
		TickInterval: time.Duration(cfg.TickMs) * time.Millisecond,
		Volume:       cfg.Volume,
	}, client, nil)
	defer engine.Close()

	sub := engine.Events().Subscribe()
	defer engine.Events().Unsubscribe(sub)

	variant := track.Variant{
		Enhanced:  *enhancedFlag,
		Preset:    *presetFlag,
		Intensity: *intensityVal,
	}
	if err := engine.Load(t, variant); err != nil {
		return err
	}
	if *seekFlag > 0 {
		if err := engine.Seek(*seekFlag); err != nil {
			return err
		}
	}
	if err := engine.Play(); err != nil {
		return err
	}

	fmt.Printf("Playing %s (%v)\n", t.Title, t.Duration())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigChan:
			fmt.Println("\nStopping...")
			engine.Stop()
			return nil
		case <-sub.Done():
			return nil
		case ev := <-sub.C:
			switch e := ev.(type) {
			case player.TimeUpdate:
				fmt.Printf("\r%v / %v  buffer %3.0f%%", e.Position.Round(time.Second), t.Duration(), engine.BufferHealth())
				if e.Position >= t.Duration() {
					fmt.Println("\nDone.")
					engine.Stop()
					return nil
				}
			case player.ChunkError:
				log.Warn().Err(e.Err).Int("chunk", e.Index).Msg("Chunk load error")
			case player.QueueError:
				return fmt.Errorf("track %s cannot be streamed: %w", t.ID, e.Err)
			}
		}
	}
}
