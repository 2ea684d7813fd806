package tlv

import (
	"encoding/binary"
	"math"
)

// VitalSignsLen is the full payload size of a vital-signs segment. Shorter
// payloads decode to a prefix of the layout.
const VitalSignsLen = 88

// VitalSigns is the decoded vital-signs segment. A nil field was not present
// in the payload. HeartRateEstFFT4Hz holds the halved value.
type VitalSigns struct {
	RangeBinIndexMax             *uint16  `json:"rangeBinIndexMax,omitempty"`
	RangeBinIndexPhase           *uint16  `json:"rangeBinIndexPhase,omitempty"`
	MaxVal                       *float32 `json:"maxVal,omitempty"`
	ProcessingCyclesOut          *uint32  `json:"processingCyclesOut,omitempty"`
	RangeBinStartIndex           *uint16  `json:"rangeBinStartIndex,omitempty"`
	RangeBinEndIndex             *uint16  `json:"rangeBinEndIndex,omitempty"`
	UnwrapPhasePeakMM            *float32 `json:"unwrapPhasePeak_mm,omitempty"`
	OutputFilterBreathOut        *float32 `json:"outputFilterBreathOut,omitempty"`
	OutputFilterHeartOut         *float32 `json:"outputFilterHeartOut,omitempty"`
	HeartRateEstFFT              *float32 `json:"heartRateEst_FFT,omitempty"`
	HeartRateEstFFT4Hz           *float32 `json:"heartRateEst_FFT_4Hz,omitempty"`
	HeartRateEstXCorr            *float32 `json:"heartRateEst_xCorr,omitempty"`
	HeartRateEstPeakCount        *float32 `json:"heartRateEst_peakCount,omitempty"`
	BreathingRateEstFFT          *float32 `json:"breathingRateEst_FFT,omitempty"`
	BreathingRateEstXCorr        *float32 `json:"breathingRateEst_xCorr,omitempty"`
	BreathingRateEstPeakCount    *float32 `json:"breathingRateEst_peakCount,omitempty"`
	ConfidenceMetricBreathOut    *float32 `json:"confidenceMetricBreathOut,omitempty"`
	ConfidenceMetricBreathXCorr  *float32 `json:"confidenceMetricBreathOut_xCorr,omitempty"`
	ConfidenceMetricHeartOut     *float32 `json:"confidenceMetricHeartOut,omitempty"`
	ConfidenceMetricHeartOut4Hz  *float32 `json:"confidenceMetricHeartOut_4Hz,omitempty"`
	ConfidenceMetricHeartOutXCor *float32 `json:"confidenceMetricHeartOut_xCorr,omitempty"`
	SumEnergyBreathWfm           *float32 `json:"sumEnergyBreathWfm,omitempty"`
	SumEnergyHeartWfm            *float32 `json:"sumEnergyHeartWfm,omitempty"`
	MotionDetectedFlag           *float32 `json:"motionDetectedFlag,omitempty"`
}

// layout lists the fields in wire order. Offsets are implied by the sizes.
func (v *VitalSigns) layout() []any {
	return []any{
		&v.RangeBinIndexMax,
		&v.RangeBinIndexPhase,
		&v.MaxVal,
		&v.ProcessingCyclesOut,
		&v.RangeBinStartIndex,
		&v.RangeBinEndIndex,
		&v.UnwrapPhasePeakMM,
		&v.OutputFilterBreathOut,
		&v.OutputFilterHeartOut,
		&v.HeartRateEstFFT,
		&v.HeartRateEstFFT4Hz,
		&v.HeartRateEstXCorr,
		&v.HeartRateEstPeakCount,
		&v.BreathingRateEstFFT,
		&v.BreathingRateEstXCorr,
		&v.BreathingRateEstPeakCount,
		&v.ConfidenceMetricBreathOut,
		&v.ConfidenceMetricBreathXCorr,
		&v.ConfidenceMetricHeartOut,
		&v.ConfidenceMetricHeartOut4Hz,
		&v.ConfidenceMetricHeartOutXCor,
		&v.SumEnergyBreathWfm,
		&v.SumEnergyHeartWfm,
		&v.MotionDetectedFlag,
	}
}

// DecodeVitalSigns maps the vital-signs layout over payload. Extraction stops
// at the first field that does not fit; it never fails.
func DecodeVitalSigns(payload []byte) VitalSigns {
	var v VitalSigns
	off := 0
	for _, f := range v.layout() {
		switch p := f.(type) {
		case **uint16:
			if off+2 > len(payload) {
				return v.finish()
			}
			x := binary.LittleEndian.Uint16(payload[off:])
			*p = &x
			off += 2
		case **uint32:
			if off+4 > len(payload) {
				return v.finish()
			}
			x := binary.LittleEndian.Uint32(payload[off:])
			*p = &x
			off += 4
		case **float32:
			if off+4 > len(payload) {
				return v.finish()
			}
			x := math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))
			*p = &x
			off += 4
		}
	}
	return v.finish()
}

func (v VitalSigns) finish() VitalSigns {
	if v.HeartRateEstFFT4Hz != nil {
		half := *v.HeartRateEstFFT4Hz / 2
		v.HeartRateEstFFT4Hz = &half
	}
	return v
}

// EncodeVitalSigns writes the present prefix of v in wire order, stopping at
// the first nil field. HeartRateEstFFT4Hz is doubled back to its raw value.
func EncodeVitalSigns(v VitalSigns) []byte {
	if v.HeartRateEstFFT4Hz != nil {
		raw := *v.HeartRateEstFFT4Hz * 2
		v.HeartRateEstFFT4Hz = &raw
	}
	out := make([]byte, 0, VitalSignsLen)
	for _, f := range v.layout() {
		switch p := f.(type) {
		case **uint16:
			if *p == nil {
				return out
			}
			out = binary.LittleEndian.AppendUint16(out, **p)
		case **uint32:
			if *p == nil {
				return out
			}
			out = binary.LittleEndian.AppendUint32(out, **p)
		case **float32:
			if *p == nil {
				return out
			}
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(**p))
		}
	}
	return out
}

// BinSpan returns end-start+1 when both range bin indices are present and
// ordered.
func (v VitalSigns) BinSpan() (int, bool) {
	if v.RangeBinStartIndex == nil || v.RangeBinEndIndex == nil {
		return 0, false
	}
	if *v.RangeBinEndIndex < *v.RangeBinStartIndex {
		return 0, false
	}
	return int(*v.RangeBinEndIndex) - int(*v.RangeBinStartIndex) + 1, true
}

// Finite returns a copy with NaN and infinite float fields dropped.
func (v VitalSigns) Finite() VitalSigns {
	for _, f := range v.layout() {
		if p, ok := f.(**float32); ok && *p != nil {
			x := float64(**p)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				*p = nil
			}
		}
	}
	return v
}
