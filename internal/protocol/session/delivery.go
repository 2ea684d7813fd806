package session

import (
	"encoding/json"
	"maps"
	"math"
	"time"

	"github.com/danmuck/vitalrelay/internal/protocol/frame"
	"github.com/danmuck/vitalrelay/internal/protocol/tlv"
)

// Delivery is one decoded frame bound for the relay, with the sensor config
// snapshot taken when it was queued. It is not mutated after Offer.
type Delivery struct {
	Timestamp      time.Time
	Frame          uint32
	NumDetectedObj uint32
	Vitals         *tlv.VitalSigns
	RangeProfile   []float64
	Config         map[string]float64
}

func NewDelivery(at time.Time, f frame.Frame, config map[string]float64) Delivery {
	return Delivery{
		Timestamp:      at,
		Frame:          f.Header.FrameNumber,
		NumDetectedObj: f.Header.NumDetectedObj,
		Vitals:         f.Vitals,
		RangeProfile:   f.RangeProfile,
		Config:         maps.Clone(config),
	}
}

type wireVitals struct {
	tlv.VitalSigns
	NumDetectedObj uint32    `json:"numDetectedObj"`
	RangeProfile   []float64 `json:"RangeProfile,omitempty"`
}

type wireDelivery struct {
	Timestamp float64            `json:"timestamp"`
	Frame     uint32             `json:"frame"`
	Vitals    wireVitals         `json:"vitals"`
	Config    map[string]float64 `json:"config"`
}

// MarshalJSON writes the relay message. Non-finite values are omitted since
// JSON cannot carry them.
func (d Delivery) MarshalJSON() ([]byte, error) {
	w := wireDelivery{
		Timestamp: float64(d.Timestamp.Unix()) + float64(d.Timestamp.Nanosecond())/1e9,
		Frame:     d.Frame,
		Vitals: wireVitals{
			NumDetectedObj: d.NumDetectedObj,
			RangeProfile:   finiteSlice(d.RangeProfile),
		},
		Config: make(map[string]float64, len(d.Config)),
	}
	if d.Vitals != nil {
		w.Vitals.VitalSigns = d.Vitals.Finite()
	}
	for k, v := range d.Config {
		if isFinite(v) {
			w.Config[k] = v
		}
	}
	return json.Marshal(w)
}

func finiteSlice(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, 0, len(in))
	for _, v := range in {
		if isFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
