package relay

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/danmuck/vitalrelay/internal/observability"
	"github.com/danmuck/vitalrelay/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var ErrDialerRequired = errors.New("relay: dialer required")

// Conn is one open relay connection carrying whole text messages in order.
type Conn interface {
	Send(ctx context.Context, msg []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// SenderStats is a point-in-time view of the delivery flow.
type SenderStats struct {
	Sent                uint64 `json:"sent"`
	Failures            uint64 `json:"failures"`
	ConsecutiveFailures int64  `json:"consecutive_failures"`
	Connected           bool   `json:"connected"`
}

type Sender struct {
	dialer  Dialer
	queue   *session.Queue
	cfg     session.Config
	backoff *session.Backoff
	sleep   func(context.Context, time.Duration) error

	sent        atomic.Uint64
	failures    atomic.Uint64
	consecutive atomic.Int64
	connected   atomic.Bool
}

func NewSender(dialer Dialer, queue *session.Queue, cfg session.Config) (*Sender, error) {
	if dialer == nil {
		return nil, ErrDialerRequired
	}
	cfg = cfg.WithDefaults()
	return &Sender{
		dialer:  dialer,
		queue:   queue,
		cfg:     cfg,
		backoff: session.NewBackoff(cfg.Backoff, rand.New(rand.NewSource(time.Now().UnixNano()))),
		sleep:   sleepContext,
	}, nil
}

// Run drains the queue until ctx ends or the queue is closed. A delivery whose
// send failed is retried first on the next connection.
func (s *Sender) Run(ctx context.Context) error {
	var conn Conn
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
		s.connected.Store(false)
		observability.SetRelayConnected(false)
	}()

	var pending *session.Delivery
	for {
		if conn == nil {
			c, err := s.dialer.Dial(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if err := s.fail(ctx, "dial", err); err != nil {
					return nil
				}
				continue
			}
			conn = c
			s.connected.Store(true)
			observability.SetRelayConnected(true)
			log.Info().Int64("after_failures", s.consecutive.Load()).Msg("relay connected")
		}

		if pending == nil {
			d, err := s.queue.Take(ctx)
			if err != nil {
				return nil
			}
			pending = &d
		}

		msg, err := json.Marshal(*pending)
		if err != nil {
			log.Error().Err(err).Uint32("frame", pending.Frame).Msg("relay delivery not encodable, dropped")
			pending = nil
			continue
		}
		if err := conn.Send(ctx, msg); err != nil {
			_ = conn.Close()
			conn = nil
			s.connected.Store(false)
			observability.SetRelayConnected(false)
			if ctx.Err() != nil {
				return nil
			}
			if err := s.fail(ctx, "send", err); err != nil {
				return nil
			}
			continue
		}

		pending = nil
		s.backoff.Reset()
		s.consecutive.Store(0)
		s.sent.Add(1)
		observability.RecordRelaySent(s.queue.Len())
	}
}

// fail records a transport failure and sleeps for the next backoff delay.
func (s *Sender) fail(ctx context.Context, stage string, cause error) error {
	delay := s.backoff.Next()
	n := s.consecutive.Add(1)
	s.failures.Add(1)
	observability.RecordRelayFailure(stage, delay)

	event := log.Warn()
	if n >= int64(s.cfg.FailureReportThreshold) {
		event = log.Error()
	}
	event.Err(cause).
		Str("stage", stage).
		Int64("consecutive", n).
		Dur("backoff", delay).
		Msg("relay transport failure")

	return s.sleep(ctx, delay)
}

func (s *Sender) Stats() SenderStats {
	return SenderStats{
		Sent:                s.sent.Load(),
		Failures:            s.failures.Load(),
		ConsecutiveFailures: s.consecutive.Load(),
		Connected:           s.connected.Load(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
