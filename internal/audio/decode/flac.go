package decode

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

const (
	flacBufferSize = 64 << 10
	// maxResyncBytes bounds one search for the next frame header.
	maxResyncBytes = 1 << 20
)

// FLAC decodes native FLAC streams frame by frame.
type FLAC struct{}

func (FLAC) Name() string { return "flac" }

func (FLAC) Extensions() []string { return []string{"flac"} }

func (FLAC) Sniff(header []byte) bool {
	return len(header) >= 4 && string(header[:4]) == "fLaC"
}

func (FLAC) Open(rs io.ReadSeeker) (Stream, error) {
	// flac.New keeps an already buffered reader as is, so resync can peek
	// at the same bytes the frame parser reads.
	br := bufio.NewReaderSize(rs, flacBufferSize)
	stream, err := flac.New(br)
	if err != nil {
		return nil, fmt.Errorf("open flac stream: %w", err)
	}
	if stream.Info.BitsPerSample == 0 {
		return nil, errors.New("flac stream has no bit depth")
	}
	return &flacStream{
		stream: stream,
		br:     br,
		track: Track{
			SampleRate: stream.Info.SampleRate,
			Channels:   uint32(stream.Info.NChannels),
			Codec:      "flac",
		},
		scale: float32(int64(1) << (stream.Info.BitsPerSample - 1)),
	}, nil
}

type flacStream struct {
	stream *flac.Stream
	br     *bufio.Reader
	track  Track
	scale  float32

	// pending holds the first good frame found by resync.
	pending []float32
	done    bool
}

func (s *flacStream) Track() Track { return s.track }

func (s *flacStream) Next() ([]float32, error) {
	if s.pending != nil {
		out := s.pending
		s.pending = nil
		return out, nil
	}
	if s.done {
		return nil, io.EOF
	}

	f, err := s.stream.ParseNext()
	if err == nil {
		return s.samples(f), nil
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	return nil, s.resync(err)
}

// resync skips a damaged region up to the next frame that parses. The region
// is reported as a single corrupt packet and the recovered frame is returned
// by the following Next. A region longer than maxResyncBytes is reported in
// pieces, one per call.
func (s *flacStream) resync(cause error) error {
	scanned := 0
	for scanned < maxResyncBytes {
		n, err := s.skipToSync(maxResyncBytes - scanned)
		scanned += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				return corrupt("flac", cause)
			}
			return fmt.Errorf("read flac stream: %w", err)
		}

		f, err := s.stream.ParseNext()
		if err == nil {
			s.pending = s.samples(f)
			return corrupt("flac", cause)
		}
		if errors.Is(err, io.EOF) {
			s.done = true
			return corrupt("flac", cause)
		}
		// A failed parse always consumes at least the two sync bytes.
		scanned += 2
	}
	return corrupt("flac", fmt.Errorf("no frame header within %d bytes: %w", maxResyncBytes, cause))
}

// skipToSync discards bytes until the reader is positioned on a frame sync
// code (0xFFF8 or 0xFFF9) or limit bytes were dropped. It returns io.EOF when
// fewer than two bytes remain.
func (s *flacStream) skipToSync(limit int) (int, error) {
	for n := 0; n < limit; n++ {
		head, err := s.br.Peek(2)
		if err != nil {
			return n, err
		}
		if head[0] == 0xFF && head[1]&0xFE == 0xF8 {
			return n, nil
		}
		if _, err := s.br.Discard(1); err != nil {
			return n, err
		}
	}
	return limit, nil
}

func (s *flacStream) samples(f *frame.Frame) []float32 {
	if len(f.Subframes) == 0 {
		return []float32{}
	}

	channels := len(f.Subframes)
	frames := len(f.Subframes[0].Samples)
	out := make([]float32, frames*channels)
	for c, sub := range f.Subframes {
		for i := 0; i < frames && i < len(sub.Samples); i++ {
			out[i*channels+c] = float32(sub.Samples[i]) / s.scale
		}
	}
	return out
}

func (s *flacStream) Close() error {
	return s.stream.Close()
}
