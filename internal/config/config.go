package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/vitalrelay/internal/protocol/frame"
	"github.com/danmuck/vitalrelay/internal/protocol/session"
	"github.com/danmuck/vitalrelay/internal/sensor"
)

const (
	EnvRelayURL    = "VITALRELAY_RELAY_URL"
	EnvStatusAddr  = "VITALRELAY_STATUS_ADDR"
	EnvStatusToken = "VITALRELAY_STATUS_TOKEN"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Name       string
	StatusAddr string
	// StatusToken guards /stats and /config when set.
	StatusToken string
	CorsOrigins []string
	Sensor      SensorConfig
	Relay       RelayConfig
}

type SensorConfig struct {
	Simulate       bool
	Profile        string
	CLIPort        string
	DataPort       string
	ReadTimeout    time.Duration
	BufferCapacity int
	// FrameInterval paces the simulator.
	FrameInterval time.Duration
}

type RelayConfig struct {
	URL    string
	Origin string
	// CAFile pins the trusted roots for wss:// relays.
	CAFile  string
	Session session.Config
}

func Default() Config {
	return Config{
		Name:        "vitalrelay",
		StatusAddr:  ":9300",
		CorsOrigins: []string{"http://localhost:3000"},
		Sensor: SensorConfig{
			Profile:        "profiles/xwr6843_profile_VitalSigns_20fps_Front.cfg",
			CLIPort:        "/dev/ttyUSB0",
			DataPort:       "/dev/ttyUSB1",
			ReadTimeout:    sensor.DefaultReadTimeout,
			BufferCapacity: frame.DefaultCapacity,
			FrameInterval:  sensor.SimulatedFrameInterval,
		},
		Relay: RelayConfig{
			URL:     "ws://localhost:8765",
			Session: session.DefaultConfig(),
		},
	}
}

// Load reads path on top of Default, applies environment overrides and
// validates the result. An empty path loads defaults only.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := apply(&cfg, raw, meta); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func apply(cfg *Config, raw fileConfig, meta toml.MetaData) error {
	var err error
	duration := func(dst *time.Duration, v string, key ...string) {
		if err != nil || !meta.IsDefined(key...) {
			return
		}
		d, perr := time.ParseDuration(strings.TrimSpace(v))
		if perr != nil {
			err = fmt.Errorf("parse %s: %w", strings.Join(key, "."), perr)
			return
		}
		*dst = d
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("status_token") {
		cfg.StatusToken = strings.TrimSpace(raw.StatusToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalize(raw.CorsOrigins)
	}

	s := &cfg.Sensor
	if meta.IsDefined("sensor", "simulate") {
		s.Simulate = raw.Sensor.Simulate
	}
	if meta.IsDefined("sensor", "profile") {
		s.Profile = strings.TrimSpace(raw.Sensor.Profile)
	}
	if meta.IsDefined("sensor", "cli_port") {
		s.CLIPort = strings.TrimSpace(raw.Sensor.CLIPort)
	}
	if meta.IsDefined("sensor", "data_port") {
		s.DataPort = strings.TrimSpace(raw.Sensor.DataPort)
	}
	if meta.IsDefined("sensor", "buffer_capacity") {
		s.BufferCapacity = raw.Sensor.BufferCapacity
	}
	duration(&s.ReadTimeout, raw.Sensor.ReadTimeout, "sensor", "read_timeout")
	duration(&s.FrameInterval, raw.Sensor.FrameInterval, "sensor", "frame_interval")

	r := &cfg.Relay
	if meta.IsDefined("relay", "url") {
		r.URL = strings.TrimSpace(raw.Relay.URL)
	}
	if meta.IsDefined("relay", "origin") {
		r.Origin = strings.TrimSpace(raw.Relay.Origin)
	}
	if meta.IsDefined("relay", "ca_file") {
		r.CAFile = strings.TrimSpace(raw.Relay.CAFile)
	}
	if meta.IsDefined("relay", "queue_size") {
		r.Session.QueueSize = raw.Relay.QueueSize
	}
	if meta.IsDefined("relay", "failure_report_threshold") {
		r.Session.FailureReportThreshold = raw.Relay.FailureReportThreshold
	}
	duration(&r.Session.DialTimeout, raw.Relay.DialTimeout, "relay", "dial_timeout")
	duration(&r.Session.WriteTimeout, raw.Relay.WriteTimeout, "relay", "write_timeout")

	b := &r.Session.Backoff
	duration(&b.InitialDelay, raw.Relay.Backoff.Initial, "relay", "backoff", "initial")
	duration(&b.MaxDelay, raw.Relay.Backoff.Max, "relay", "backoff", "max")
	if meta.IsDefined("relay", "backoff", "multiplier") {
		b.Multiplier = raw.Relay.Backoff.Multiplier
	}
	if meta.IsDefined("relay", "backoff", "jitter") {
		b.Jitter = raw.Relay.Backoff.Jitter
	}
	return err
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvRelayURL)); v != "" {
		cfg.Relay.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStatusAddr)); v != "" {
		cfg.StatusAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStatusToken)); v != "" {
		cfg.StatusToken = v
	}
}

func Validate(cfg Config) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return invalid("name is required")
	}
	if strings.TrimSpace(cfg.Relay.URL) == "" {
		return invalid("relay.url is required")
	}
	if !strings.HasPrefix(cfg.Relay.URL, "ws://") && !strings.HasPrefix(cfg.Relay.URL, "wss://") {
		return invalid("relay.url must be ws:// or wss://, got %q", cfg.Relay.URL)
	}
	if cfg.Sensor.BufferCapacity < frame.PreambleLen {
		return invalid("sensor.buffer_capacity %d below frame preamble %d", cfg.Sensor.BufferCapacity, frame.PreambleLen)
	}
	if !cfg.Sensor.Simulate {
		if cfg.Sensor.CLIPort == "" || cfg.Sensor.DataPort == "" {
			return invalid("sensor.cli_port and sensor.data_port are required unless simulating")
		}
		if cfg.Sensor.Profile == "" {
			return invalid("sensor.profile is required unless simulating")
		}
	}
	s := cfg.Relay.Session
	if s.QueueSize <= 0 {
		return invalid("relay.queue_size must be positive")
	}
	if s.Backoff.InitialDelay <= 0 || s.Backoff.MaxDelay < s.Backoff.InitialDelay {
		return invalid("relay.backoff initial=%v max=%v", s.Backoff.InitialDelay, s.Backoff.MaxDelay)
	}
	if s.Backoff.Multiplier < 1 {
		return invalid("relay.backoff.multiplier must be >= 1, got %v", s.Backoff.Multiplier)
	}
	return nil
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
