package accent

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrAudioAnalysis reports that acoustic features could not be computed from
// a non-empty signal. It is distinct from the empty-signal case, which yields
// zero acoustic evidence without error.
var ErrAudioAnalysis = errors.New("audio analysis failed")

// AnalysisError describes why a signal was rejected.
type AnalysisError struct {
	Reason string
	Err    error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio analysis: %s: %v", e.Reason, e.Err)
	}
	return "audio analysis: " + e.Reason
}

func (e *AnalysisError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAudioAnalysis, e.Err}
	}
	return []error{ErrAudioAnalysis}
}

// Signal is a decoded mono waveform with samples nominally in [-1, 1].
type Signal struct {
	Samples    []float64
	SampleRate int
}

// Empty reports whether the signal carries no samples.
func (s Signal) Empty() bool { return len(s.Samples) == 0 }

// Duration is zero for empty or malformed signals.
func (s Signal) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.Samples)) / float64(s.SampleRate) * float64(time.Second))
}

// Features are the coarse prosodic measurements of a signal.
type Features struct {
	Tempo      float64 `json:"tempo"`
	PitchProxy float64 `json:"pitch_proxy"`
}

// FeatureExtractor computes acoustic features from a signal.
type FeatureExtractor interface {
	Extract(sig Signal) (Features, error)
}

// AcousticOptions tune the frame analysis.
type AcousticOptions struct {
	FrameLength  int
	HopLength    int
	MinBPM       float64
	MaxBPM       float64
	PriorBPM     float64
	PriorOctaves float64
}

func DefaultAcousticOptions() AcousticOptions {
	return AcousticOptions{
		FrameLength:  2048,
		HopLength:    512,
		MinBPM:       30,
		MaxBPM:       320,
		PriorBPM:     120,
		PriorOctaves: 1.0,
	}
}

// AcousticExtractor estimates tempo from a spectral-flux onset envelope and a
// pitch proxy from the mean frame zero-crossing rate.
type AcousticExtractor struct {
	opts AcousticOptions
}

func NewAcousticExtractor(opts AcousticOptions) (*AcousticExtractor, error) {
	if opts.FrameLength < 2 {
		return nil, fmt.Errorf("frame length must be >= 2, got %d", opts.FrameLength)
	}
	if opts.HopLength <= 0 {
		return nil, fmt.Errorf("hop length must be positive, got %d", opts.HopLength)
	}
	if opts.MinBPM <= 0 || opts.MaxBPM <= opts.MinBPM {
		return nil, fmt.Errorf("bpm range [%g, %g] is invalid", opts.MinBPM, opts.MaxBPM)
	}
	if opts.PriorBPM <= 0 || opts.PriorOctaves <= 0 {
		return nil, errors.New("tempo prior must be positive")
	}
	return &AcousticExtractor{opts: opts}, nil
}

// Extract returns zero features for an empty signal and an *AnalysisError for
// a malformed one.
func (x *AcousticExtractor) Extract(sig Signal) (Features, error) {
	if sig.Empty() {
		return Features{}, nil
	}
	if sig.SampleRate <= 0 {
		return Features{}, &AnalysisError{Reason: fmt.Sprintf("invalid sample rate %d", sig.SampleRate)}
	}
	for i, v := range sig.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Features{}, &AnalysisError{Reason: fmt.Sprintf("non-finite sample at index %d", i)}
		}
	}

	f := Features{
		Tempo:      x.tempo(sig),
		PitchProxy: x.zeroCrossingRate(sig.Samples),
	}
	if f.Tempo < 0 || math.IsNaN(f.Tempo) {
		f.Tempo = 0
	}
	if f.PitchProxy < 0 || math.IsNaN(f.PitchProxy) {
		f.PitchProxy = 0
	}
	return f, nil
}

func (x *AcousticExtractor) frameCount(n int) int {
	return 1 + n/x.opts.HopLength
}

// zeroCrossingRate frames the edge-padded signal and averages the fraction of
// sign changes per frame. Values within 1e-10 of zero count as positive.
func (x *AcousticExtractor) zeroCrossingRate(samples []float64) float64 {
	frame, hop := x.opts.FrameLength, x.opts.HopLength
	pad := frame / 2
	n := len(samples)
	at := func(i int) float64 {
		i -= pad
		if i < 0 {
			i = 0
		} else if i >= n {
			i = n - 1
		}
		v := samples[i]
		if math.Abs(v) <= 1e-10 {
			return 0
		}
		return v
	}

	rates := make([]float64, x.frameCount(n))
	for t := range rates {
		start := t * hop
		crossings := 0
		prev := at(start) >= 0
		for i := start + 1; i < start+frame; i++ {
			cur := at(i) >= 0
			if cur != prev {
				crossings++
			}
			prev = cur
		}
		rates[t] = float64(crossings) / float64(frame)
	}
	return stat.Mean(rates, nil)
}

// tempo autocorrelates the onset envelope and weights candidate periods with
// a log-normal prior around PriorBPM. Signals without rhythmic onsets yield 0.
func (x *AcousticExtractor) tempo(sig Signal) float64 {
	env := x.onsetEnvelope(sig.Samples)
	if len(env) < 3 {
		return 0
	}
	floats.AddConst(-stat.Mean(env, nil), env)
	energy := floats.Dot(env, env)
	if energy <= 1e-12 {
		return 0
	}

	frameRate := float64(sig.SampleRate) / float64(x.opts.HopLength)
	minLag := int(math.Ceil(60 * frameRate / x.opts.MaxBPM))
	maxLag := int(math.Floor(60 * frameRate / x.opts.MinBPM))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag > len(env)-1 {
		maxLag = len(env) - 1
	}

	best, bestBPM := 0.0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		acf := floats.Dot(env[:len(env)-lag], env[lag:]) / energy
		bpm := 60 * frameRate / float64(lag)
		z := (math.Log2(bpm) - math.Log2(x.opts.PriorBPM)) / x.opts.PriorOctaves
		if score := acf * math.Exp(-0.5*z*z); score > best {
			best, bestBPM = score, bpm
		}
	}
	return bestBPM
}

// onsetEnvelope is the mean positive change of log-magnitude spectra between
// consecutive Hann-windowed frames of the zero-padded signal.
func (x *AcousticExtractor) onsetEnvelope(samples []float64) []float64 {
	frame, hop := x.opts.FrameLength, x.opts.HopLength
	pad := frame / 2
	n := len(samples)
	frames := x.frameCount(n)

	window := make([]float64, frame)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(frame))
	}

	fft := fourier.NewFFT(frame)
	buf := make([]float64, frame)
	var coeffs []complex128
	bins := frame/2 + 1
	prev := make([]float64, bins)
	cur := make([]float64, bins)
	env := make([]float64, frames)

	for t := 0; t < frames; t++ {
		start := t*hop - pad
		for i := range buf {
			j := start + i
			if j < 0 || j >= n {
				buf[i] = 0
				continue
			}
			buf[i] = samples[j] * window[i]
		}
		coeffs = fft.Coefficients(coeffs, buf)
		for k, c := range coeffs {
			cur[k] = math.Log1p(cmplx.Abs(c))
		}
		if t > 0 {
			flux := 0.0
			for k := range cur {
				if d := cur[k] - prev[k]; d > 0 {
					flux += d
				}
			}
			env[t] = flux / float64(bins)
		}
		prev, cur = cur, prev
	}
	return env
}

// Thresholds drive the two acoustic scoring ladders.
type Thresholds struct {
	TempoFast     float64
	TempoModerate float64
	PitchHigh     float64
	PitchModerate float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		TempoFast:     120,
		TempoModerate: 100,
		PitchHigh:     0.07,
		PitchModerate: 0.05,
	}
}

// Score applies the tempo and pitch ladders. Exactly one rung of each ladder
// contributes and the two contributions add up.
func (t Thresholds) Score(f Features) Counts {
	var c Counts
	switch {
	case f.Tempo > t.TempoFast:
		c[American] += 2
	case f.Tempo > t.TempoModerate:
		c[American]++
		c[Australian]++
	default:
		c[British]++
		c[Indian]++
	}
	switch {
	case f.PitchProxy > t.PitchHigh:
		c[British] += 2
	case f.PitchProxy > t.PitchModerate:
		c[American]++
	default:
		c[Indian]++
	}
	return c
}
