// Package pipeline wires a sensor byte stream to the relay: one goroutine
// decodes frames into the delivery queue, another drains it to the relay.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/vitalrelay/internal/observability"
	"github.com/danmuck/vitalrelay/internal/protocol/frame"
	"github.com/danmuck/vitalrelay/internal/protocol/session"
	"github.com/danmuck/vitalrelay/internal/relay"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// readChunk bounds a single source read.
const readChunk = 4096

var ErrSourceRequired = errors.New("pipeline: source required")

type Config struct {
	BufferCapacity int
	Session        session.Config
	// SensorConfig is attached to every delivery.
	SensorConfig map[string]float64
}

// Stats is a point-in-time view of a pipeline run.
type Stats struct {
	RunID         string            `json:"run_id"`
	StartedAt     time.Time         `json:"started_at"`
	Running       bool              `json:"running"`
	BytesRead     uint64            `json:"bytes_read"`
	BytesDropped  uint64            `json:"bytes_dropped"`
	FramesDecoded uint64            `json:"frames_decoded"`
	FramesCorrupt uint64            `json:"frames_corrupt"`
	FramesEmpty   uint64            `json:"frames_empty"`
	QueueDepth    int               `json:"queue_depth"`
	QueueCapacity int               `json:"queue_capacity"`
	QueueEvicted  uint64            `json:"queue_evicted"`
	Relay         relay.SenderStats `json:"relay"`
}

type Pipeline struct {
	id      string
	source  io.Reader
	decoder *frame.Decoder
	queue   *session.Queue
	sender  *relay.Sender
	config  map[string]float64
	now     func() time.Time
	log     zerolog.Logger

	startedAt     atomic.Int64
	running       atomic.Bool
	bytesRead     atomic.Uint64
	bytesDropped  atomic.Uint64
	framesDecoded atomic.Uint64
	framesCorrupt atomic.Uint64
	framesEmpty   atomic.Uint64
}

func New(source io.Reader, dialer relay.Dialer, cfg Config) (*Pipeline, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = frame.DefaultCapacity
	}
	cfg.Session = cfg.Session.WithDefaults()

	queue := session.NewQueue(cfg.Session.QueueSize)
	sender, err := relay.NewSender(dialer, queue, cfg.Session)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Pipeline{
		id:      id,
		source:  source,
		decoder: frame.NewDecoder(cfg.BufferCapacity),
		queue:   queue,
		sender:  sender,
		config:  maps.Clone(cfg.SensorConfig),
		now:     time.Now,
		log:     log.With().Str("run_id", id).Logger(),
	}, nil
}

func (p *Pipeline) ID() string { return p.id }

// Run decodes until the source ends, fails, or ctx is cancelled. The source
// must return periodically (a read timeout, or Close on the simulator) for
// cancellation to be observed. Queued deliveries are discarded on exit.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("pipeline: already running")
	}
	defer p.running.Store(false)
	p.startedAt.Store(p.now().UnixNano())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.sender.Run(ctx)
	}()

	p.log.Info().Int("buffer_capacity", p.decoder.Capacity()).Int("queue_capacity", p.queue.Cap()).Msg("pipeline started")
	err := p.decode(ctx)

	cancel()
	dropped := p.queue.Close()
	wg.Wait()
	p.log.Info().Int("discarded", dropped).Uint64("frames", p.framesDecoded.Load()).Msg("pipeline stopped")
	return err
}

func (p *Pipeline) decode(ctx context.Context) error {
	buf := make([]byte, readChunk)
	for {
		if ctx.Err() != nil {
			return nil
		}
		free := p.decoder.Free()
		if free == 0 {
			// Reads are bounded by Free, so a full buffer means a stuck decoder.
			p.bytesDropped.Add(uint64(p.decoder.Buffered()))
			p.log.Warn().Int("buffered", p.decoder.Buffered()).Msg("frame buffer full, resetting")
			p.decoder.Reset()
			continue
		}

		n, err := p.source.Read(buf[:min(len(buf), free)])
		if n > 0 {
			p.bytesRead.Add(uint64(n))
			accepted := p.decoder.Feed(buf[:n])
			observability.RecordBytes(n, accepted)
			if !accepted {
				p.bytesDropped.Add(uint64(n))
				p.log.Warn().Int("bytes", n).Msg("frame buffer full, chunk dropped")
			}
			p.drain()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.log.Info().Msg("sensor stream ended")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pipeline source read: %w", err)
		}
	}
}

// drain decodes every complete frame currently buffered.
func (p *Pipeline) drain() {
	for {
		f, status, err := p.decoder.Next()
		if status.Waiting() {
			return
		}
		observability.RecordFrame(status.String())
		if status == frame.CorruptFrame {
			p.framesCorrupt.Add(1)
			p.log.Warn().Err(err).Msg("corrupt frame dropped")
			continue
		}

		p.framesDecoded.Add(1)
		if !f.HasRecords() {
			p.framesEmpty.Add(1)
			continue
		}
		evicted := p.queue.Offer(session.NewDelivery(p.now(), f, p.config))
		observability.RecordQueue(p.queue.Len(), evicted)
		if evicted {
			p.log.Debug().Uint32("frame", f.Header.FrameNumber).Msg("delivery queue full, oldest evicted")
		}
	}
}

func (p *Pipeline) Running() bool { return p.running.Load() }

func (p *Pipeline) Stats() Stats {
	s := Stats{
		RunID:         p.id,
		Running:       p.running.Load(),
		BytesRead:     p.bytesRead.Load(),
		BytesDropped:  p.bytesDropped.Load(),
		FramesDecoded: p.framesDecoded.Load(),
		FramesCorrupt: p.framesCorrupt.Load(),
		FramesEmpty:   p.framesEmpty.Load(),
		QueueDepth:    p.queue.Len(),
		QueueCapacity: p.queue.Cap(),
		QueueEvicted:  p.queue.Evicted(),
		Relay:         p.sender.Stats(),
	}
	if ns := p.startedAt.Load(); ns != 0 {
		s.StartedAt = time.Unix(0, ns).UTC()
	}
	return s
}
