package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
)

const vorbisFramesPerPacket = 4096

// Vorbis decodes Ogg Vorbis. Other Ogg payloads such as Opus are left to the
// external decoder.
type Vorbis struct{}

func (Vorbis) Name() string { return "vorbis" }

func (Vorbis) Extensions() []string { return []string{"ogg", "oga"} }

// Sniff checks the Ogg capture pattern and the Vorbis identification packet
// that starts right after the first page's segment table.
func (Vorbis) Sniff(header []byte) bool {
	if len(header) < 27 || string(header[:4]) != "OggS" {
		return false
	}
	start := 27 + int(header[26])
	return len(header) >= start+7 && string(header[start:start+7]) == "\x01vorbis"
}

func (Vorbis) Open(rs io.ReadSeeker) (Stream, error) {
	reader, err := oggvorbis.NewReader(rs)
	if err != nil {
		return nil, fmt.Errorf("open ogg vorbis stream: %w", err)
	}
	channels := reader.Channels()
	return &vorbisStream{
		reader: reader,
		track: Track{
			SampleRate: uint32(reader.SampleRate()),
			Channels:   uint32(channels),
			Codec:      "vorbis",
		},
		buf: make([]float32, vorbisFramesPerPacket*max(channels, 1)),
	}, nil
}

type vorbisStream struct {
	reader  *oggvorbis.Reader
	track   Track
	buf     []float32
	pending error
	done    bool
}

func (s *vorbisStream) Track() Track { return s.track }

// Next returns decoded data before reporting an error that arrived with it.
func (s *vorbisStream) Next() ([]float32, error) {
	if s.done {
		return nil, io.EOF
	}
	if s.pending != nil {
		err := s.pending
		s.pending = nil
		return nil, s.classify(err)
	}

	n, err := s.reader.Read(s.buf)
	if n > 0 {
		s.pending = err
		out := make([]float32, n)
		copy(out, s.buf[:n])
		return out, nil
	}
	if err == nil {
		return nil, nil
	}
	return nil, s.classify(err)
}

// classify maps reader errors. A truncated last page is one corrupt packet
// and ends the stream.
func (s *vorbisStream) classify(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		s.done = true
	}
	return corrupt("vorbis", err)
}

func (s *vorbisStream) Close() error { return nil }
