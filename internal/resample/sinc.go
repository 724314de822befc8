// Package resample converts mono PCM between sample rates with a windowed-sinc
// low-pass interpolator. A converter is built once per input and used for a
// single block covering the whole signal.
package resample

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
)

const (
	// DefaultHalfLength is the number of filter taps on each side of the
	// interpolation point.
	DefaultHalfLength = 256
	// DefaultCutoff is the pass band edge as a fraction of the Nyquist rate.
	DefaultCutoff = 0.95
	// DefaultOversampling is the number of sinc table entries per input sample.
	DefaultOversampling = 256

	maxRatio       = 256.0
	minChunkFrames = 4096
)

var (
	ErrInvalidRate   = errors.New("sample rate must be positive")
	ErrInvalidRatio  = errors.New("resample ratio out of range")
	ErrInvalidParams = errors.New("invalid sinc parameters")
	ErrEmptyInput    = errors.New("empty input")
)

// Error reports a failed construction or processing step.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resample %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Params configures the interpolation filter.
type Params struct {
	HalfLength   int
	Cutoff       float64
	Oversampling int
}

// DefaultParams favors anti-aliasing quality over speed.
func DefaultParams() Params {
	return Params{
		HalfLength:   DefaultHalfLength,
		Cutoff:       DefaultCutoff,
		Oversampling: DefaultOversampling,
	}
}

// Sinc is a one-shot single channel sample rate converter.
type Sinc struct {
	fromRate int
	toRate   int
	params   Params
	table    []float64
}

// New validates the conversion and precomputes the windowed sinc table.
// When downsampling the cutoff is scaled by the rate ratio.
func New(fromRate, toRate int, params Params) (*Sinc, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, &Error{Op: "construct", Err: fmt.Errorf("%w: %d -> %d", ErrInvalidRate, fromRate, toRate)}
	}

	ratio := float64(toRate) / float64(fromRate)
	if ratio > maxRatio || ratio < 1/maxRatio {
		return nil, &Error{Op: "construct", Err: fmt.Errorf("%w: %d -> %d", ErrInvalidRatio, fromRate, toRate)}
	}

	if params.HalfLength <= 0 || params.Oversampling <= 0 || params.Cutoff <= 0 || params.Cutoff > 1 {
		return nil, &Error{Op: "construct", Err: fmt.Errorf("%w: %+v", ErrInvalidParams, params)}
	}

	cutoff := params.Cutoff
	if ratio < 1 {
		cutoff *= ratio
	}

	return &Sinc{
		fromRate: fromRate,
		toRate:   toRate,
		params:   params,
		table:    makeTable(params.HalfLength, params.Oversampling, cutoff),
	}, nil
}

// Resample converts samples from fromRate to toRate using DefaultParams.
func Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	s, err := New(fromRate, toRate, DefaultParams())
	if err != nil {
		return nil, err
	}
	return s.Process(samples)
}

// OutputLen returns the number of samples Process produces for n inputs.
func (s *Sinc) OutputLen(n int) int {
	return int((int64(n)*int64(s.toRate) + int64(s.fromRate) - 1) / int64(s.fromRate))
}

// Process converts the whole input in one block. Output sample i is taken at
// input time i*fromRate/toRate, so the result is aligned with the input.
func (s *Sinc) Process(in []float32) ([]float32, error) {
	if len(in) == 0 {
		return nil, &Error{Op: "process", Err: ErrEmptyInput}
	}

	outLen := s.OutputLen(len(in))
	out := make([]float32, outLen)
	step := float64(s.fromRate) / float64(s.toRate)

	chunk := (outLen + runtime.GOMAXPROCS(0) - 1) / runtime.GOMAXPROCS(0)
	if chunk < minChunkFrames {
		chunk = minChunkFrames
	}

	var wg sync.WaitGroup
	for start := 0; start < outLen; start += chunk {
		end := min(start+chunk, outLen)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				out[i] = s.interpolate(in, float64(i)*step)
			}
		}(start, end)
	}
	wg.Wait()

	return out, nil
}

// interpolate evaluates the filter centered on input time t. Samples outside
// the input are treated as silence.
func (s *Sinc) interpolate(in []float32, t float64) float32 {
	half := s.params.HalfLength
	over := s.params.Oversampling

	n := int(math.Floor(t))
	pos := (t - float64(n)) * float64(over)
	p0 := int(pos)
	if p0 >= over {
		p0 = over - 1
	}
	frac := pos - float64(p0)

	lo := max(n-half+1, 0)
	hi := min(n+half, len(in)-1)

	var acc float64
	for k := lo; k <= hi; k++ {
		j := p0 + (half-(k-n))*over
		w := s.table[j] + frac*(s.table[j+1]-s.table[j])
		acc += float64(in[k]) * w
	}
	return float32(acc)
}

// makeTable samples the windowed sinc at 1/over input sample spacing over
// [-half, half] and normalizes it to unity DC gain.
func makeTable(half, over int, cutoff float64) []float64 {
	n := 2 * half * over
	table := make([]float64, n+1)

	var sum float64
	for j := 0; j <= n; j++ {
		d := float64(j-half*over) / float64(over)
		v := cutoff * sinc(cutoff*d) * blackmanHarris2(float64(j)/float64(n))
		table[j] = v
		sum += v
	}

	scale := float64(over) / sum
	for j := range table {
		table[j] *= scale
	}
	return table
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackmanHarris2 is the squared four-term Blackman-Harris window at x in [0,1].
func blackmanHarris2(x float64) float64 {
	const (
		a0 = 0.35875
		a1 = 0.48829
		a2 = 0.14128
		a3 = 0.01168
	)
	w := a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x) - a3*math.Cos(6*math.Pi*x)
	return w * w
}
