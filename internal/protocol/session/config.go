package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines relay delivery defaults.
type Config struct {
	QueueSize    int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// FailureReportThreshold is the consecutive-failure count after which a
	// dead relay is reported at error level.
	FailureReportThreshold int
	Backoff                BackoffConfig
}

// DefaultConfig returns delivery defaults: 1000 queued records, 1s backoff
// growing by 1.5 up to 30s.
func DefaultConfig() Config {
	return Config{
		QueueSize:              1000,
		DialTimeout:            5 * time.Second,
		WriteTimeout:           5 * time.Second,
		FailureReportThreshold: 5,
		Backoff: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   1.5,
			MaxDelay:     30 * time.Second,
			Jitter:       false,
		},
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.FailureReportThreshold <= 0 {
		c.FailureReportThreshold = def.FailureReportThreshold
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier <= 0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	return c
}
