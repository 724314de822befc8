package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always produces 16-bit little endian stereo.
const (
	mp3Channels       = 2
	mp3BytesPerFrame  = 4
	mp3FramesPerChunk = 1152
)

// MP3 decodes MPEG-1/2 Layer III streams.
type MP3 struct{}

func (MP3) Name() string { return "mp3" }

func (MP3) Extensions() []string { return []string{"mp3"} }

// Sniff accepts an ID3v2 tag or a Layer III frame sync. ADTS AAC shares the
// sync word but has layer bits 00 and is rejected.
func (MP3) Sniff(header []byte) bool {
	if len(header) >= 3 && string(header[:3]) == "ID3" {
		return true
	}
	return len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0 && header[1]&0x06 == 0x02
}

func (MP3) Open(rs io.ReadSeeker) (Stream, error) {
	dec, err := mp3.NewDecoder(rs)
	if err != nil {
		return nil, fmt.Errorf("open mp3 stream: %w", err)
	}
	return &mp3Stream{
		dec: dec,
		track: Track{
			SampleRate: uint32(dec.SampleRate()),
			Channels:   mp3Channels,
			Codec:      "mp3",
		},
		buf: make([]byte, mp3FramesPerChunk*mp3BytesPerFrame),
	}, nil
}

type mp3Stream struct {
	dec   *mp3.Decoder
	track Track
	buf   []byte
	done  bool
}

func (s *mp3Stream) Track() Track { return s.track }

func (s *mp3Stream) Next() ([]float32, error) {
	if s.done {
		return nil, io.EOF
	}

	n, err := io.ReadFull(s.dec, s.buf)
	n -= n % 2
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.done = true
			if n == 0 {
				return nil, io.EOF
			}
		} else if n == 0 {
			return nil, corrupt("mp3", err)
		}
	}

	out := make([]float32, n/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(s.buf[2*i:]))) / 32768
	}
	return out, nil
}

func (s *mp3Stream) Close() error { return nil }
