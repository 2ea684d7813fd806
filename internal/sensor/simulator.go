package sensor

import (
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/vitalrelay/internal/protocol/frame"
	"github.com/danmuck/vitalrelay/internal/protocol/tlv"
)

const (
	// SimulatedFrameInterval is 20 frames per second.
	SimulatedFrameInterval = 50 * time.Millisecond
	SimulatedRangeBins     = 64

	simHeartRate   = 75.0
	simBreathRate  = 16.0
	simFirstBinM   = 0.3
	simBinSpacingM = 0.02
	simPlatform    = 0xA6843
	simVersion     = 0x03050004
)

// Simulator is an io.Reader that emits encoded radar frames with synthetic
// heart and breathing waveforms. It reads like the sensor data port.
type Simulator struct {
	interval time.Duration
	rng      *rand.Rand

	mu      sync.Mutex
	ticker  *time.Ticker
	closed  chan struct{}
	once    sync.Once
	t       float64
	frame   uint32
	pending []byte
}

// NewSimulator paces frames at interval; zero emits them back to back.
func NewSimulator(interval time.Duration, seed int64) *Simulator {
	s := &Simulator{
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
		closed:   make(chan struct{}),
	}
	if interval > 0 {
		s.ticker = time.NewTicker(interval)
	}
	return s
}

// Read returns bytes of the current frame, waiting for the next tick once it
// is exhausted. It returns io.EOF after Close.
func (s *Simulator) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	empty := len(s.pending) == 0
	s.mu.Unlock()
	if empty {
		if err := s.wait(); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		s.pending = s.nextFrame()
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *Simulator) wait() error {
	if s.ticker == nil {
		select {
		case <-s.closed:
			return io.EOF
		default:
			return nil
		}
	}
	select {
	case <-s.closed:
		return io.EOF
	case <-s.ticker.C:
		return nil
	}
}

func (s *Simulator) Close() error {
	s.once.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.closed)
	})
	return nil
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *Simulator) nextFrame() []byte {
	s.t += SimulatedFrameInterval.Seconds()
	s.frame++

	hr := simHeartRate + s.uniform(-3, 3)
	br := simBreathRate + s.uniform(-1, 1)

	heartPhase := math.Mod(2*math.Pi*hr/60*s.t, 2*math.Pi)
	heart := math.Sin(heartPhase)
	switch {
	case heartPhase > 0 && heartPhase < 0.3:
		heart += 3 * math.Exp(-10*(heartPhase-0.15)*(heartPhase-0.15))
	case heartPhase > 0.3 && heartPhase < 0.5:
		heart += 0.5 * math.Exp(-20*(heartPhase-0.4)*(heartPhase-0.4))
	}
	heart += s.uniform(-0.05, 0.05)
	breath := math.Sin(2*math.Pi*br/60*s.t) + s.uniform(-0.1, 0.1)

	bins := make([]tlv.Bin, SimulatedRangeBins)
	peak, peakBin := 0.0, 0
	for i := range bins {
		d := simFirstBinM + float64(i)*simBinSpacingM
		mag := 50 + s.uniform(0, 30)
		if d >= 0.8 && d <= 1.2 {
			mag = 800 + 400*math.Exp(-5*(d-1)*(d-1)) + 100*math.Abs(breath)
		}
		if mag > peak {
			peak, peakBin = mag, i
		}
		angle := s.uniform(0, 2*math.Pi)
		bins[i] = tlv.Bin{
			Real: int16(math.Round(mag * math.Cos(angle))),
			Imag: int16(math.Round(mag * math.Sin(angle))),
		}
	}

	f32 := func(v float64) *float32 { x := float32(v); return &x }
	u16 := func(v int) *uint16 { x := uint16(v); return &x }
	cycles := uint32(int(s.t*1000) % 10000)
	vitals := tlv.VitalSigns{
		RangeBinIndexMax:             u16(peakBin),
		RangeBinIndexPhase:           u16(peakBin),
		MaxVal:                       f32(peak),
		ProcessingCyclesOut:          &cycles,
		RangeBinStartIndex:           u16(0),
		RangeBinEndIndex:             u16(SimulatedRangeBins - 1),
		UnwrapPhasePeakMM:            f32(2.5 + 1.5*breath),
		OutputFilterBreathOut:        f32(breath),
		OutputFilterHeartOut:         f32(heart),
		HeartRateEstFFT:              f32(hr),
		HeartRateEstFFT4Hz:           f32(hr),
		HeartRateEstXCorr:            f32(hr + s.uniform(-1, 1)),
		HeartRateEstPeakCount:        f32(math.Round(hr)),
		BreathingRateEstFFT:          f32(br),
		BreathingRateEstXCorr:        f32(br + s.uniform(-0.5, 0.5)),
		BreathingRateEstPeakCount:    f32(math.Round(br)),
		ConfidenceMetricBreathOut:    f32(s.uniform(0.6, 1)),
		ConfidenceMetricBreathXCorr:  f32(s.uniform(0.6, 1)),
		ConfidenceMetricHeartOut:     f32(s.uniform(0.5, 1)),
		ConfidenceMetricHeartOut4Hz:  f32(s.uniform(0.5, 1)),
		ConfidenceMetricHeartOutXCor: f32(s.uniform(0.5, 1)),
		SumEnergyBreathWfm:           f32(1200 + 300*math.Abs(breath) + s.uniform(-80, 80)),
		SumEnergyHeartWfm:            f32(800 + 200*math.Abs(heart) + s.uniform(-50, 50)),
		MotionDetectedFlag:           f32(0),
	}

	return frame.Encode(
		frame.Header{
			Version:        simVersion,
			Platform:       simPlatform,
			FrameNumber:    s.frame,
			TimeCPUCycles:  uint32(s.t * 1e6),
			NumDetectedObj: 1,
		},
		[]tlv.Segment{
			{Type: tlv.TypeDetectedPoints, Payload: make([]byte, 16)},
			{Type: tlv.TypeRangeProfile, Payload: tlv.EncodeRangeProfile(bins)},
			{Type: tlv.TypeVitalSigns, Payload: tlv.EncodeVitalSigns(vitals)},
		},
	)
}
