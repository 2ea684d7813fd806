package sensor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	ErrMalformedCommand  = errors.New("sensor: malformed profile command")
	ErrIncompleteProfile = errors.New("sensor: profileCfg without frameCfg")
)

// Transmit antennas assumed by the vital-signs demo profile.
const numTxAnt = 2

// Param keys derived from the profile.
const (
	ParamRangeResolution = "rangeResolutionMeters"
	ParamMaxRange        = "maxRange"
	ParamNumRangeBins    = "numRangeBins"
	ParamNumDopplerBins  = "numDopplerBins"
	ParamRangeStart      = "rangeStart"
	ParamRangeEnd        = "rangeEnd"
)

// Profile is a parsed sensor CLI configuration.
type Profile struct {
	// Lines are the commands sent to the sensor, in file order.
	Lines  []string
	Params map[string]float64
}

func LoadProfile(path string) (Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return Profile{}, fmt.Errorf("profile load failed (%s): %w", path, err)
	}
	defer f.Close()
	p, err := ParseProfile(f)
	if err != nil {
		return Profile{}, fmt.Errorf("profile parse failed (%s): %w", path, err)
	}
	return p, nil
}

// ParseProfile keeps every non-empty, non-comment line and derives the range
// parameters from profileCfg, frameCfg and vitalSignsCfg. A profile without
// profileCfg yields no params.
func ParseProfile(r io.Reader) (Profile, error) {
	var (
		p       = Profile{Params: map[string]float64{}}
		profile []string
		frame   []string
		vitals  []string
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		p.Lines = append(p.Lines, line)
		words := strings.Fields(line)
		switch words[0] {
		case "profileCfg":
			profile = words
		case "frameCfg":
			frame = words
		case "vitalSignsCfg":
			vitals = words
		}
	}
	if err := sc.Err(); err != nil {
		return Profile{}, err
	}
	if profile == nil {
		return p, nil
	}
	if frame == nil {
		return Profile{}, ErrIncompleteProfile
	}

	var (
		n              numbers
		freqSlope      = n.float(profile, 8)
		numAdcSamples  = n.float(profile, 10)
		digOutRate     = n.float(profile, 11)
		chirpStart     = n.float(frame, 1)
		chirpEnd       = n.float(frame, 2)
		numLoops       = n.float(frame, 3)
		rangeStart     float64
		rangeEnd       float64
		haveRangeGates = vitals != nil
	)
	if haveRangeGates {
		rangeStart = n.float(vitals, 1)
		rangeEnd = n.float(vitals, 2)
	}
	if n.err != nil {
		return Profile{}, n.err
	}
	if freqSlope == 0 || numAdcSamples <= 0 {
		return Profile{}, fmt.Errorf("%w: profileCfg slope=%v samples=%v", ErrMalformedCommand, freqSlope, numAdcSamples)
	}

	rangeBins := 1
	for float64(rangeBins) < numAdcSamples {
		rangeBins *= 2
	}
	chirps := (chirpEnd - chirpStart + 1) * numLoops

	p.Params[ParamNumDopplerBins] = chirps / numTxAnt
	p.Params[ParamNumRangeBins] = float64(rangeBins)
	p.Params[ParamRangeResolution] = (3e8 * digOutRate * 1e3) / (2 * freqSlope * 1e12 * numAdcSamples)
	p.Params[ParamMaxRange] = (300 * 0.9 * digOutRate) / (2 * freqSlope * 1e3)
	if haveRangeGates {
		p.Params[ParamRangeStart] = rangeStart
		p.Params[ParamRangeEnd] = rangeEnd
	}
	return p, nil
}

// numbers keeps the first parse failure so a command can be read field by
// field.
type numbers struct {
	err error
}

func (n *numbers) float(words []string, i int) float64 {
	if n.err != nil {
		return 0
	}
	if i >= len(words) {
		n.err = fmt.Errorf("%w: %s needs field %d, has %d", ErrMalformedCommand, words[0], i, len(words)-1)
		return 0
	}
	v, err := strconv.ParseFloat(words[i], 64)
	if err != nil {
		n.err = fmt.Errorf("%w: %s field %d: %v", ErrMalformedCommand, words[0], i, err)
		return 0
	}
	return v
}
