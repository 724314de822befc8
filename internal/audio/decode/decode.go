// Package decode opens audio files as streams of interleaved float32 PCM.
//
// Native Go decoders cover WAV, MP3, FLAC and Ogg Vorbis. Files none of them
// accept can be handed to an External decoder (ffprobe/ffmpeg). The file
// extension is only a hint: formats matching it are tried first, but every
// candidate must also recognize the content.
package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrNoAudioTrack      = errors.New("no audio track found")
	ErrEmptyAudio        = errors.New("no audio samples decoded")
	// ErrCorruptPacket marks a single undecodable packet. Callers may skip it
	// and keep reading.
	ErrCorruptPacket = errors.New("corrupt packet")
)

const sniffLen = 64

// Track describes the selected audio stream. Zero values mean unknown.
type Track struct {
	SampleRate uint32 `json:"sampleRate"`
	Channels   uint32 `json:"channels"`
	Codec      string `json:"codec"`
}

// Stream yields decoded packets of the selected track in stream order.
// Next returns io.EOF at the end of the stream.
type Stream interface {
	Track() Track
	Next() ([]float32, error)
	Close() error
}

// Format decodes one container/codec family.
type Format interface {
	Name() string
	Extensions() []string
	Sniff(header []byte) bool
	Open(rs io.ReadSeeker) (Stream, error)
}

// External opens files by path when no native format accepts them.
type External interface {
	Open(ctx context.Context, path string) (Stream, error)
}

// DefaultFormats returns the native decoders in probe order.
func DefaultFormats() []Format {
	return []Format{WAV{}, FLAC{}, Vorbis{}, MP3{}}
}

// Prober selects a decoder for a file.
type Prober struct {
	formats  []Format
	external External
	logger   *zap.Logger
}

// NewProber builds a prober over formats. external may be nil.
func NewProber(logger *zap.Logger, external External, formats ...Format) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(formats) == 0 {
		formats = DefaultFormats()
	}
	return &Prober{
		formats:  formats,
		external: external,
		logger:   logger,
	}
}

// Open probes path and returns a stream over its first audio track.
func (p *Prober) Open(ctx context.Context, path string) (Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat audio file: %w", err)
	}
	if info.Size() == 0 {
		_ = file.Close()
		return nil, ErrEmptyAudio
	}

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(file, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		_ = file.Close()
		return nil, fmt.Errorf("read audio header: %w", err)
	}
	header = header[:n]

	hint := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, format := range p.candidates(hint, header) {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("rewind audio file: %w", err)
		}

		stream, err := format.Open(file)
		if err != nil {
			p.logger.Debug("decoder rejected file",
				zap.String("format", format.Name()),
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}

		p.logger.Debug("audio format detected",
			zap.String("format", format.Name()),
			zap.String("hint", hint),
		)
		return &fileStream{Stream: stream, file: file}, nil
	}
	_ = file.Close()

	if p.external == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}

	stream, err := p.external.Open(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNoAudioTrack) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return stream, nil
}

// candidates orders formats: extension matches first, then any other format
// whose sniffer recognizes the header.
func (p *Prober) candidates(hint string, header []byte) []Format {
	out := make([]Format, 0, len(p.formats))
	tried := make(map[string]bool, len(p.formats))

	for _, format := range p.formats {
		if hasExtension(format, hint) && format.Sniff(header) {
			out = append(out, format)
			tried[format.Name()] = true
		}
	}
	for _, format := range p.formats {
		if !tried[format.Name()] && format.Sniff(header) {
			out = append(out, format)
		}
	}
	return out
}

func hasExtension(format Format, ext string) bool {
	if ext == "" {
		return false
	}
	for _, candidate := range format.Extensions() {
		if candidate == ext {
			return true
		}
	}
	return false
}

// fileStream closes the underlying file with the stream.
type fileStream struct {
	Stream
	file *os.File
}

func (s *fileStream) Close() error {
	streamErr := s.Stream.Close()
	fileErr := s.file.Close()
	return errors.Join(streamErr, fileErr)
}

// corrupt wraps a codec error so callers can skip the packet.
func corrupt(format string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorruptPacket, format, err)
}
