package config

import (
	"github.com/danmuck/vitalrelay/internal/relay"
	"github.com/danmuck/vitalrelay/internal/status"
)

// fileConfig is the on-disk shape. Durations are Go duration strings.
type fileConfig struct {
	Name        string     `toml:"name"`
	StatusAddr  string     `toml:"status_addr"`
	StatusToken string     `toml:"status_token"`
	CorsOrigins []string   `toml:"cors_origins"`
	Sensor      fileSensor `toml:"sensor"`
	Relay       fileRelay  `toml:"relay"`
}

type fileSensor struct {
	Simulate       bool   `toml:"simulate"`
	Profile        string `toml:"profile"`
	CLIPort        string `toml:"cli_port"`
	DataPort       string `toml:"data_port"`
	ReadTimeout    string `toml:"read_timeout"`
	BufferCapacity int    `toml:"buffer_capacity"`
	FrameInterval  string `toml:"frame_interval"`
}

type fileRelay struct {
	URL                    string      `toml:"url"`
	Origin                 string      `toml:"origin"`
	CAFile                 string      `toml:"ca_file"`
	QueueSize              int         `toml:"queue_size"`
	DialTimeout            string      `toml:"dial_timeout"`
	WriteTimeout           string      `toml:"write_timeout"`
	FailureReportThreshold int         `toml:"failure_report_threshold"`
	Backoff                fileBackoff `toml:"backoff"`
}

type fileBackoff struct {
	Initial    string  `toml:"initial"`
	Multiplier float64 `toml:"multiplier"`
	Max        string  `toml:"max"`
	Jitter     bool    `toml:"jitter"`
}

func toFile(cfg Config) fileConfig {
	s := cfg.Relay.Session
	return fileConfig{
		Name:        cfg.Name,
		StatusAddr:  cfg.StatusAddr,
		StatusToken: cfg.StatusToken,
		CorsOrigins: cfg.CorsOrigins,
		Sensor: fileSensor{
			Simulate:       cfg.Sensor.Simulate,
			Profile:        cfg.Sensor.Profile,
			CLIPort:        cfg.Sensor.CLIPort,
			DataPort:       cfg.Sensor.DataPort,
			ReadTimeout:    cfg.Sensor.ReadTimeout.String(),
			BufferCapacity: cfg.Sensor.BufferCapacity,
			FrameInterval:  cfg.Sensor.FrameInterval.String(),
		},
		Relay: fileRelay{
			URL:                    cfg.Relay.URL,
			Origin:                 cfg.Relay.Origin,
			CAFile:                 cfg.Relay.CAFile,
			QueueSize:              s.QueueSize,
			DialTimeout:            s.DialTimeout.String(),
			WriteTimeout:           s.WriteTimeout.String(),
			FailureReportThreshold: s.FailureReportThreshold,
			Backoff: fileBackoff{
				Initial:    s.Backoff.InitialDelay.String(),
				Multiplier: s.Backoff.Multiplier,
				Max:        s.Backoff.MaxDelay.String(),
				Jitter:     s.Backoff.Jitter,
			},
		},
	}
}

// Status builds the status API settings.
func (c Config) Status() status.Config {
	return status.Config{
		ID:          c.Name,
		Addr:        c.StatusAddr,
		CorsOrigins: c.CorsOrigins,
		Token:       c.StatusToken,
	}
}

// Dialer builds the relay dialer, loading CAFile when set.
func (r RelayConfig) Dialer() (relay.WebsocketDialer, error) {
	d := relay.WebsocketDialer{
		URL:          r.URL,
		Origin:       r.Origin,
		DialTimeout:  r.Session.DialTimeout,
		WriteTimeout: r.Session.WriteTimeout,
	}
	if r.CAFile != "" {
		tlsCfg, err := relay.LoadCAFile(r.CAFile)
		if err != nil {
			return relay.WebsocketDialer{}, err
		}
		d.TLSConfig = tlsCfg
	}
	return d, nil
}
