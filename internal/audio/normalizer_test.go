package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"whisper-transcribe/internal/audio/decode"
	"whisper-transcribe/internal/resample"
)

// step is one scripted Next result.
type step struct {
	packet []float32
	err    error
}

// scriptedStream replays scripted packets and errors.
type scriptedStream struct {
	track  decode.Track
	steps  []step
	closed bool
}

func (s *scriptedStream) Track() decode.Track { return s.track }

func (s *scriptedStream) Next() ([]float32, error) {
	if len(s.steps) == 0 {
		return nil, io.EOF
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next.packet, next.err
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

// fakeOpener returns a fixed stream or error.
type fakeOpener struct {
	stream *scriptedStream
	err    error
}

// Open returns the configured result.
func (f *fakeOpener) Open(ctx context.Context, path string) (decode.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

// countingObserver records skipped packet reports.
type countingObserver struct {
	total int
}

func (o *countingObserver) ObserveSkippedPackets(n int) { o.total += n }

// TestDownmixAveragesChannelGroups checks the equal-weight mean.
func TestDownmixAveragesChannelGroups(t *testing.T) {
	got := Downmix([]float32{1, -1, 0, 0, 2, 2}, 2)
	want := []float32{0, 0, 2}
	assertSamples(t, got, want)
}

// TestDownmixDropsTrailingPartialFrame checks integer frame counts.
func TestDownmixDropsTrailingPartialFrame(t *testing.T) {
	got := Downmix([]float32{0.3, 0.6, 0.9, 1, 1}, 3)
	want := []float32{0.6}
	assertSamples(t, got, want)
}

// TestNormalizeIdentityAtTargetRate checks 16 kHz input bypasses the resampler.
func TestNormalizeIdentityAtTargetRate(t *testing.T) {
	called := false
	opener := &fakeOpener{stream: &scriptedStream{
		track: decode.Track{SampleRate: TargetRate, Channels: 1},
		steps: []step{{packet: []float32{0.1, 0.2}}, {packet: []float32{0.3}}},
	}}
	n := NewNormalizer(opener, WithResampler(func(samples []float32, from, to int) ([]float32, error) {
		called = true
		return samples, nil
	}))

	got, err := n.Normalize(context.Background(), "clip.wav")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if called {
		t.Fatal("resampler called for 16 kHz input")
	}
	assertSamples(t, got, []float32{0.1, 0.2, 0.3})
	if !opener.stream.closed {
		t.Fatal("stream not closed")
	}
}

// TestNormalizeDownmixesThenResamples checks resampler input is mono.
func TestNormalizeDownmixesThenResamples(t *testing.T) {
	var gotFrom, gotTo int
	var gotInput []float32
	opener := &fakeOpener{stream: &scriptedStream{
		track: decode.Track{SampleRate: 48000, Channels: 2},
		steps: []step{{packet: []float32{1, -1, 0, 0}}, {packet: []float32{2, 2}}},
	}}
	n := NewNormalizer(opener, WithResampler(func(samples []float32, from, to int) ([]float32, error) {
		gotFrom, gotTo = from, to
		gotInput = append([]float32(nil), samples...)
		return []float32{0.5}, nil
	}))

	got, err := n.Normalize(context.Background(), "clip.flac")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if gotFrom != 48000 || gotTo != TargetRate {
		t.Fatalf("resample rates = %d->%d, want 48000->16000", gotFrom, gotTo)
	}
	assertSamples(t, gotInput, []float32{0, 0, 2})
	assertSamples(t, got, []float32{0.5})
}

// TestNormalizeEmptyAudio checks zero decoded samples is an error.
func TestNormalizeEmptyAudio(t *testing.T) {
	opener := &fakeOpener{stream: &scriptedStream{track: decode.Track{SampleRate: 44100, Channels: 2}}}

	got, err := NewNormalizer(opener).Normalize(context.Background(), "silence.ogg")
	if !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("error = %v, want ErrEmptyAudio", err)
	}
	if got != nil {
		t.Fatalf("samples = %v, want nil", got)
	}
}

// TestNormalizeNoAudioTrack checks probe failures pass through.
func TestNormalizeNoAudioTrack(t *testing.T) {
	opener := &fakeOpener{err: decode.ErrNoAudioTrack}

	_, err := NewNormalizer(opener).Normalize(context.Background(), "video.webm")
	if !errors.Is(err, ErrNoAudioTrack) {
		t.Fatalf("error = %v, want ErrNoAudioTrack", err)
	}
}

// TestNormalizeUnknownFormat checks missing rate or channels fail.
func TestNormalizeUnknownFormat(t *testing.T) {
	for _, track := range []decode.Track{
		{SampleRate: 0, Channels: 2},
		{SampleRate: 44100, Channels: 0},
	} {
		opener := &fakeOpener{stream: &scriptedStream{track: track}}
		_, err := NewNormalizer(opener).Normalize(context.Background(), "clip.wma")
		if !errors.Is(err, ErrUnknownFormat) {
			t.Fatalf("track %+v: error = %v, want ErrUnknownFormat", track, err)
		}
	}
}

// TestNormalizeSkipsCorruptPackets checks per-packet errors are recovered and logged.
func TestNormalizeSkipsCorruptPackets(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	counter := &countingObserver{}
	corrupt := errors.Join(decode.ErrCorruptPacket, errors.New("bad crc"))
	opener := &fakeOpener{stream: &scriptedStream{
		track: decode.Track{SampleRate: TargetRate, Channels: 1},
		steps: []step{
			{packet: []float32{0.1}},
			{err: corrupt},
			{packet: []float32{0.2}},
			{err: corrupt},
		},
	}}

	got, err := NewNormalizer(opener, WithLogger(zap.New(core)), WithSkipObserver(counter)).
		Normalize(context.Background(), "clip.mp3")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	assertSamples(t, got, []float32{0.1, 0.2})

	if counter.total != 2 {
		t.Fatalf("skipped = %d, want 2", counter.total)
	}
	entries := logs.FilterMessage("skipped corrupt audio packets").All()
	if len(entries) != 1 {
		t.Fatalf("warn entries = %d, want 1", len(entries))
	}
	if skipped := entries[0].ContextMap()["skipped"]; skipped != int64(2) {
		t.Fatalf("logged skipped = %v, want 2", skipped)
	}
}

// TestNormalizeFailsOnCorruptRun checks systematic corruption is not masked.
func TestNormalizeFailsOnCorruptRun(t *testing.T) {
	steps := []step{{packet: []float32{0.1}}}
	for i := 0; i < 4; i++ {
		steps = append(steps, step{err: decode.ErrCorruptPacket})
	}
	opener := &fakeOpener{stream: &scriptedStream{
		track: decode.Track{SampleRate: TargetRate, Channels: 1},
		steps: steps,
	}}

	_, err := NewNormalizer(opener, WithMaxConsecutiveCorrupt(3)).Normalize(context.Background(), "clip.mp3")
	if !errors.Is(err, ErrTooManyCorruptPackets) {
		t.Fatalf("error = %v, want ErrTooManyCorruptPackets", err)
	}
}

// TestNormalizeReadErrorIsFatal checks non-packet errors stop decoding.
func TestNormalizeReadErrorIsFatal(t *testing.T) {
	readErr := errors.New("device removed")
	opener := &fakeOpener{stream: &scriptedStream{
		track: decode.Track{SampleRate: TargetRate, Channels: 1},
		steps: []step{{packet: []float32{0.1}}, {err: readErr}, {packet: []float32{0.2}}},
	}}

	_, err := NewNormalizer(opener).Normalize(context.Background(), "clip.wav")
	if !errors.Is(err, readErr) {
		t.Fatalf("error = %v, want %v", err, readErr)
	}
}

// TestNormalizeSurfacesResampleError checks resampler failures are typed.
func TestNormalizeSurfacesResampleError(t *testing.T) {
	opener := &fakeOpener{stream: &scriptedStream{
		track: decode.Track{SampleRate: 1, Channels: 1},
		steps: []step{{packet: []float32{0.1, 0.2}}},
	}}

	_, err := NewNormalizer(opener).Normalize(context.Background(), "clip.wav")
	var resampleErr *resample.Error
	if !errors.As(err, &resampleErr) {
		t.Fatalf("error = %v, want *resample.Error", err)
	}
}

// TestNormalizeRealWAV runs the prober, downmix and sinc resampler together.
func TestNormalizeRealWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	stereo := make([]float32, 2*32000)
	for i := range stereo {
		stereo[i] = 0.25
	}
	if err := decode.WriteWAV(path, stereo, 32000, 2); err != nil {
		t.Fatalf("WriteWAV() error = %v", err)
	}

	got, err := NewNormalizer(decode.NewProber(nil, nil)).Normalize(context.Background(), path)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(got) != TargetRate {
		t.Fatalf("len = %d, want %d", len(got), TargetRate)
	}
	mid := got[len(got)/2]
	if mid < 0.24 || mid > 0.26 {
		t.Fatalf("mid sample = %v, want about 0.25", mid)
	}
}

// TestNormalizeDamagedFLAC checks a damaged frame in a real FLAC file is
// skipped with the default corrupt-packet limit.
func TestNormalizeDamagedFLAC(t *testing.T) {
	const (
		frames    = 10
		blockSize = 1024
	)
	data := encodeConstantFLAC(t, frames, blockSize, 8192)

	// Verbatim frames all have the same size after the 42-byte header.
	size := (len(data) - 42) / frames
	start := 42 + 3*size + size/2 - 100
	for i := start; i < start+200; i++ {
		data[i] ^= 0x5A
	}
	path := filepath.Join(t.TempDir(), "damaged.flac")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	counter := &countingObserver{}
	got, err := NewNormalizer(decode.NewProber(nil, nil), WithSkipObserver(counter)).
		Normalize(context.Background(), path)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if counter.total != 1 {
		t.Fatalf("skipped = %d, want 1", counter.total)
	}
	want := (frames - 1) * blockSize * TargetRate / 44100
	if len(got) < want-2 || len(got) > want+2 {
		t.Fatalf("len = %d, want about %d", len(got), want)
	}
	if mid := got[len(got)/2]; mid < 0.24 || mid > 0.26 {
		t.Fatalf("mid sample = %v, want about 0.25", mid)
	}
}

// encodeConstantFLAC writes a 44.1 kHz 16-bit stereo file holding value in
// every sample.
func encodeConstantFLAC(t *testing.T, frames, blockSize int, value int32) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := flac.NewEncoder(&buf, &meta.StreamInfo{
		BlockSizeMin:  uint16(blockSize),
		BlockSizeMax:  uint16(blockSize),
		SampleRate:    44100,
		NChannels:     2,
		BitsPerSample: 16,
	})
	if err != nil {
		t.Fatalf("NewEncoder() error = %v", err)
	}

	samples := make([]int32, blockSize)
	for i := range samples {
		samples[i] = value
	}
	for i := 0; i < frames; i++ {
		f := &frame.Frame{Header: frame.Header{
			HasFixedBlockSize: true,
			BlockSize:         uint16(blockSize),
			SampleRate:        44100,
			Channels:          frame.ChannelsLR,
			BitsPerSample:     16,
		}}
		for c := 0; c < 2; c++ {
			f.Subframes = append(f.Subframes, &frame.Subframe{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   samples,
				NSamples:  blockSize,
			})
		}
		if err := enc.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("encoder Close() error = %v", err)
	}
	return buf.Bytes()
}

// TestIsSupportedExtension checks the advisory allow-list.
func TestIsSupportedExtension(t *testing.T) {
	for _, path := range []string{"a.wav", "B.MP3", "c.opus", "/x/y.webm"} {
		if !IsSupportedExtension(path) {
			t.Fatalf("IsSupportedExtension(%q) = false", path)
		}
	}
	for _, path := range []string{"model.bin", "notes.txt", "noext"} {
		if IsSupportedExtension(path) {
			t.Fatalf("IsSupportedExtension(%q) = true", path)
		}
	}
}

func assertSamples(t *testing.T, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("samples = %v, want %v", got, want)
	}
	for i := range want {
		diff := got[i] - want[i]
		if diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("samples = %v, want %v", got, want)
		}
	}
}
