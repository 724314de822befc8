package decode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"sync"

	"whisper-transcribe/internal/command"
)

const ffmpegFramesPerPacket = 4096

// FFmpeg decodes any container ffmpeg understands. Track metadata comes from
// ffprobe; samples are piped from ffmpeg as raw little endian float32.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	runner      command.Runner
}

// NewFFmpeg builds the external decoder for the given binaries.
func NewFFmpeg(ffmpegPath, ffprobePath string, runner command.Runner) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if runner == nil {
		runner = command.NewExecRunner()
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      runner,
	}
}

// Open probes path and starts decoding its first audio track.
func (f *FFmpeg) Open(ctx context.Context, path string) (Stream, error) {
	result, err := f.runner.Run(ctx, f.ffprobePath, buildProbeArgs(path)...)
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	track, index, err := parseProbe([]byte(result.Stdout))
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, buildDecodeArgs(path, index)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &pipeStream{
		track:  track,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		buf:    make([]byte, ffmpegFramesPerPacket*4*max(int(track.Channels), 1)),
	}, nil
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	Index      int    `json:"index"`
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// parseProbe picks the first audio stream that has a codec.
func parseProbe(data []byte) (Track, int, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Track{}, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "audio" || s.CodecName == "" || s.CodecName == "none" {
			continue
		}
		rate, _ := strconv.ParseUint(s.SampleRate, 10, 32)
		channels := max(s.Channels, 0)
		return Track{
			SampleRate: uint32(rate),
			Channels:   uint32(channels),
			Codec:      s.CodecName,
		}, s.Index, nil
	}
	return Track{}, 0, ErrNoAudioTrack
}

func buildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "stream=index,codec_type,codec_name,sample_rate,channels",
		"-of", "json",
		path,
	}
}

// buildDecodeArgs keeps the native rate and channel layout; downmix and
// resampling happen in-process.
func buildDecodeArgs(path string, streamIndex int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-v", "error",
		"-i", path,
		"-map", "0:" + strconv.Itoa(streamIndex),
		"-vn",
		"-f", "f32le",
		"-c:a", "pcm_f32le",
		"-",
	}
}

type pipeStream struct {
	track  Track
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	buf    []byte

	waitOnce sync.Once
	waitErr  error
}

func (s *pipeStream) Track() Track { return s.track }

func (s *pipeStream) Next() ([]float32, error) {
	n, err := io.ReadFull(s.stdout, s.buf)
	n -= n % 4
	if n > 0 {
		out := make([]float32, n/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(s.buf[4*i:]))
		}
		return out, nil
	}

	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if werr := s.wait(); werr != nil {
			return nil, fmt.Errorf("ffmpeg decode: %w: %s", werr, command.Tail(s.stderr.String(), 400))
		}
		return nil, io.EOF
	}
	return nil, fmt.Errorf("read ffmpeg output: %w", err)
}

func (s *pipeStream) Close() error {
	if s.cmd.ProcessState == nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.wait()
	return nil
}

func (s *pipeStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}
