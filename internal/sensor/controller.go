package sensor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// CommandDelay is the pause after each CLI line so the sensor can apply it.
	CommandDelay = 30 * time.Millisecond
	StopCommand  = "sensorStop"
)

// Controller writes CLI commands to the sensor command port.
type Controller struct {
	cli   io.Writer
	delay time.Duration
	sleep func(context.Context, time.Duration) error
}

func NewController(cli io.Writer) *Controller {
	return &Controller{cli: cli, delay: CommandDelay, sleep: sleepContext}
}

// Configure sends lines one at a time, each newline-terminated.
func (c *Controller) Configure(ctx context.Context, lines []string) error {
	log.Info().Int("lines", len(lines)).Msg("sending sensor configuration")
	for i, line := range lines {
		if _, err := io.WriteString(c.cli, line+"\n"); err != nil {
			return fmt.Errorf("sensor config line %d (%q): %w", i+1, line, err)
		}
		if err := c.sleep(ctx, c.delay); err != nil {
			return err
		}
	}
	log.Info().Msg("sensor configuration sent")
	return nil
}

func (c *Controller) Stop() error {
	if _, err := io.WriteString(c.cli, StopCommand+"\n"); err != nil {
		return fmt.Errorf("sensor stop: %w", err)
	}
	log.Info().Msg("sensor stopped")
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
