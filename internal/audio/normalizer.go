// Package audio turns an audio file into the mono 16 kHz float32 buffer the
// recognition engine consumes.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"whisper-transcribe/internal/audio/decode"
	"whisper-transcribe/internal/resample"
)

// TargetRate is the sample rate required by whisper models.
const TargetRate = 16000

// DefaultMaxConsecutiveCorrupt bounds how many undecodable packets in a row
// are skipped before the file is treated as broken.
const DefaultMaxConsecutiveCorrupt = 64

var (
	ErrUnsupportedFormat     = decode.ErrUnsupportedFormat
	ErrNoAudioTrack          = decode.ErrNoAudioTrack
	ErrEmptyAudio            = decode.ErrEmptyAudio
	ErrUnknownFormat         = errors.New("unknown sample rate or channel count")
	ErrTooManyCorruptPackets = errors.New("too many consecutive corrupt packets")
)

// Opener opens a decoded stream for a path.
type Opener interface {
	Open(ctx context.Context, path string) (decode.Stream, error)
}

// ResampleFunc converts mono samples between rates.
type ResampleFunc func(samples []float32, fromRate, toRate int) ([]float32, error)

// SkipObserver is notified about skipped packets.
type SkipObserver interface {
	ObserveSkippedPackets(n int)
}

// Normalizer decodes, downmixes and resamples audio files.
type Normalizer struct {
	opener                Opener
	resample              ResampleFunc
	targetRate            uint32
	maxConsecutiveCorrupt int
	logger                *zap.Logger
	observer              SkipObserver
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithResampler replaces the sinc resampler.
func WithResampler(fn ResampleFunc) Option {
	return func(n *Normalizer) { n.resample = fn }
}

// WithLogger sets the logger used for skipped packet warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Normalizer) { n.logger = logger }
}

// WithMaxConsecutiveCorrupt changes the corrupt packet limit.
func WithMaxConsecutiveCorrupt(limit int) Option {
	return func(n *Normalizer) { n.maxConsecutiveCorrupt = limit }
}

// WithSkipObserver reports skipped packet counts, typically to metrics.
func WithSkipObserver(observer SkipObserver) Option {
	return func(n *Normalizer) { n.observer = observer }
}

// NewNormalizer builds a normalizer over opener.
func NewNormalizer(opener Opener, opts ...Option) *Normalizer {
	n := &Normalizer{
		opener:                opener,
		resample:              resample.Resample,
		targetRate:            TargetRate,
		maxConsecutiveCorrupt: DefaultMaxConsecutiveCorrupt,
		logger:                zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns the mono samples of path at the target rate.
func (n *Normalizer) Normalize(ctx context.Context, path string) ([]float32, error) {
	stream, err := n.opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	track := stream.Track()
	if track.SampleRate == 0 || track.Channels == 0 {
		return nil, fmt.Errorf("%w: rate=%d channels=%d", ErrUnknownFormat, track.SampleRate, track.Channels)
	}

	samples, err := n.decodeAll(stream, path)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	mono := samples
	if track.Channels > 1 {
		mono = Downmix(samples, int(track.Channels))
		if len(mono) == 0 {
			return nil, ErrEmptyAudio
		}
	}

	if track.SampleRate == n.targetRate {
		return mono, nil
	}

	n.logger.Debug("resampling audio",
		zap.Uint32("from", track.SampleRate),
		zap.Uint32("to", n.targetRate),
		zap.Int("samples", len(mono)),
	)
	return n.resample(mono, int(track.SampleRate), int(n.targetRate))
}

// decodeAll reads every packet. Corrupt packets are skipped; io.EOF ends the
// loop; any other error is fatal.
func (n *Normalizer) decodeAll(stream decode.Stream, path string) ([]float32, error) {
	var (
		samples     []float32
		skipped     int
		consecutive int
	)

	defer func() {
		if skipped == 0 {
			return
		}
		n.logger.Warn("skipped corrupt audio packets",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
		if n.observer != nil {
			n.observer.ObserveSkippedPackets(skipped)
		}
	}()

	for {
		packet, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return samples, nil
			}
			if errors.Is(err, decode.ErrCorruptPacket) {
				skipped++
				consecutive++
				n.logger.Debug("skipping corrupt packet", zap.Error(err))
				if n.maxConsecutiveCorrupt > 0 && consecutive > n.maxConsecutiveCorrupt {
					return nil, fmt.Errorf("%w: %d in a row", ErrTooManyCorruptPackets, consecutive)
				}
				continue
			}
			return nil, fmt.Errorf("read audio packet: %w", err)
		}

		consecutive = 0
		samples = append(samples, packet...)
	}
}

// Downmix averages each group of channels interleaved samples into one mono
// sample with equal weights. A trailing partial frame is dropped. This is a
// plain mean, not a loudness-preserving mix.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range out {
		var sum float32
		for _, s := range interleaved[i*channels : (i+1)*channels] {
			sum += s
		}
		out[i] = sum / float32(channels)
	}
	return out
}
