package decode

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
	wavFramesPerPacket  = 4096
)

// WAV decodes integer PCM RIFF/WAVE files.
type WAV struct{}

func (WAV) Name() string { return "wav" }

func (WAV) Extensions() []string { return []string{"wav", "wave"} }

func (WAV) Sniff(header []byte) bool {
	return len(header) >= 12 && string(header[0:4]) == "RIFF" && string(header[8:12]) == "WAVE"
}

func (WAV) Open(rs io.ReadSeeker) (Stream, error) {
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("invalid wav file: %w", err)
		}
		return nil, errors.New("invalid wav file")
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("unsupported wav encoding %d", dec.WavAudioFormat)
	}
	if dec.BitDepth == 0 || dec.BitDepth > 32 {
		return nil, fmt.Errorf("unsupported wav bit depth %d", dec.BitDepth)
	}

	channels := int(dec.NumChans)
	data := make([]int, wavFramesPerPacket*max(channels, 1))
	return &wavStream{
		dec: dec,
		track: Track{
			SampleRate: dec.SampleRate,
			Channels:   uint32(dec.NumChans),
			Codec:      fmt.Sprintf("pcm_s%d", dec.BitDepth),
		},
		bitDepth: int(dec.BitDepth),
		data:     data,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: int(dec.SampleRate)},
			Data:           data,
			SourceBitDepth: int(dec.BitDepth),
		},
	}, nil
}

type wavStream struct {
	dec      *wav.Decoder
	track    Track
	bitDepth int
	data     []int
	buf      *audio.IntBuffer
}

func (s *wavStream) Track() Track { return s.track }

func (s *wavStream) Next() ([]float32, error) {
	s.buf.Data = s.data
	n, err := s.dec.PCMBuffer(s.buf)
	if n > len(s.buf.Data) {
		n = len(s.buf.Data)
	}
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read wav samples: %w", err)
	}

	out := make([]float32, n)
	for i, v := range s.buf.Data[:n] {
		out[i] = intToFloat(v, s.bitDepth)
	}
	return out, nil
}

func (s *wavStream) Close() error { return nil }

// intToFloat maps a PCM integer sample to [-1, 1). 8-bit WAV is unsigned.
func intToFloat(v, bitDepth int) float32 {
	if bitDepth == 8 {
		return float32(v-128) / 128
	}
	return float32(float64(v) / float64(int64(1)<<(bitDepth-1)))
}

// WriteWAV stores interleaved float samples as 16-bit PCM.
func WriteWAV(path string, samples []float32, sampleRate, channels int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		data[i] = int(max(min(v, 32767), -32768))
	}

	enc := wav.NewEncoder(file, sampleRate, 16, channels, wavFormatPCM)
	writeErr := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	})
	encErr := enc.Close()
	fileErr := file.Close()
	if err := errors.Join(writeErr, encErr, fileErr); err != nil {
		return fmt.Errorf("write wav file: %w", err)
	}
	return nil
}
