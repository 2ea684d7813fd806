package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/vitalrelay/internal/config"
	"github.com/danmuck/vitalrelay/internal/observability"
	"github.com/danmuck/vitalrelay/internal/pipeline"
	"github.com/danmuck/vitalrelay/internal/sensor"
	"github.com/danmuck/vitalrelay/internal/status"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "config file (defaults plus env overrides when empty)")
	simulate := flag.Bool("simulate", false, "use the simulated sensor instead of serial ports")
	flag.Parse()

	observability.InitLogger("vitalrelay")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *simulate); err != nil {
		fmt.Fprintf(os.Stderr, "vitalrelay: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, simulate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if simulate {
		cfg.Sensor.Simulate = true
	}
	log.Info().Str("path", configPath).Bool("simulate", cfg.Sensor.Simulate).Str("relay", cfg.Relay.URL).Msg("loaded config")

	dialer, err := cfg.Relay.Dialer()
	if err != nil {
		return err
	}
	source, params, closeSource, err := openSource(ctx, cfg.Sensor)
	if err != nil {
		return err
	}

	p, err := pipeline.New(source, dialer, pipeline.Config{
		BufferCapacity: cfg.Sensor.BufferCapacity,
		Session:        cfg.Relay.Session,
		SensorConfig:   params,
	})
	if err != nil {
		_ = closeSource()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	api := status.New(cfg.Status(), p, params)
	apiErr := make(chan error, 1)
	go func() { apiErr <- api.Serve(ctx) }()

	// A blocked read only returns once the source is closed or times out.
	go func() {
		<-ctx.Done()
		if sim, ok := source.(*sensor.Simulator); ok {
			_ = sim.Close()
		}
	}()

	log.Info().Str("run_id", p.ID()).Msg("vitalrelay started")
	runErr := p.Run(ctx)
	cancel()
	closeErr := closeSource()
	if err := <-apiErr; err != nil {
		log.Error().Err(err).Msg("status api failed")
	}
	return errors.Join(runErr, closeErr)
}

// openSource returns the sensor byte stream, the config snapshot attached to
// every delivery, and a close func that stops the sensor.
func openSource(ctx context.Context, cfg config.SensorConfig) (io.Reader, map[string]float64, func() error, error) {
	if cfg.Simulate {
		params := map[string]float64{}
		if cfg.Profile != "" {
			if profile, err := sensor.LoadProfile(cfg.Profile); err == nil {
				params = profile.Params
			} else {
				log.Warn().Err(err).Msg("simulating without sensor profile")
			}
		}
		sim := sensor.NewSimulator(cfg.FrameInterval, time.Now().UnixNano())
		return sim, params, sim.Close, nil
	}

	profile, err := sensor.LoadProfile(cfg.Profile)
	if err != nil {
		return nil, nil, nil, err
	}
	dev, err := sensor.OpenDevice(cfg.CLIPort, cfg.DataPort, cfg.ReadTimeout)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := dev.Configure(ctx, profile.Lines); err != nil {
		_ = dev.Close()
		return nil, nil, nil, fmt.Errorf("configure sensor: %w", err)
	}
	return dev, profile.Params, dev.Close, nil
}
