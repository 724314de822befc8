package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"whisper-transcribe/internal/audio/decode"
	"whisper-transcribe/internal/command"
)

func init() {
	Register("cli", func(opts Options) (Loader, error) {
		return NewCLILoader(opts), nil
	})
}

// CLILoader prepares engines backed by a whisper.cpp executable.
type CLILoader struct {
	whisperPath string
	language    string
	threads     int
	runner      command.Runner
	logger      *zap.Logger

	lookPath  func(file string) (string, error)
	stat      func(name string) (os.FileInfo, error)
	readDir   func(name string) ([]os.DirEntry, error)
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	readFile  func(name string) ([]byte, error)
	detect    func(ctx context.Context) Accelerator
}

// NewCLILoader builds a loader using OS dependencies.
func NewCLILoader(opts Options) *CLILoader {
	opts = opts.withDefaults()
	whisperPath := strings.TrimSpace(opts.WhisperPath)
	if whisperPath == "" {
		whisperPath = "whisper-cli"
	}

	l := &CLILoader{
		whisperPath: whisperPath,
		language:    opts.Language,
		threads:     opts.Threads,
		runner:      opts.Runner,
		logger:      opts.Logger,
		lookPath:    exec.LookPath,
		stat:        os.Stat,
		readDir:     os.ReadDir,
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		readFile:    os.ReadFile,
	}
	l.detect = func(ctx context.Context) Accelerator {
		return Select(Detect(ctx, l.runner))
	}
	return l
}

// Load resolves the model and executable. When accelerated is true and no
// accelerator is detected it fails with ErrAcceleratorUnavailable.
func (l *CLILoader) Load(ctx context.Context, modelPath string, accelerated bool) (Engine, error) {
	resolved, err := l.resolveModelPath(modelPath)
	if err != nil {
		return nil, err
	}

	binary, err := l.lookPath(l.whisperPath)
	if err != nil {
		return nil, fmt.Errorf("whisper executable not found: %s: %w", l.whisperPath, err)
	}

	accel := AccelNone
	if accelerated {
		accel = l.detect(ctx)
		if accel == AccelNone {
			return nil, ErrAcceleratorUnavailable
		}
	}

	l.logger.Debug("cli engine ready",
		zap.String("binary", binary),
		zap.String("model", resolved),
		zap.String("accelerator", string(accel)),
	)
	return &cliEngine{loader: l, binary: binary, modelPath: resolved, accelerated: accelerated}, nil
}

// resolveModelPath returns model file path from file or directory input.
func (l *CLILoader) resolveModelPath(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := l.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s: %w", modelPath, err)
	}
	if !info.IsDir() {
		if info.Size() == 0 {
			return "", fmt.Errorf("model file is empty: %s", modelPath)
		}
		return modelPath, nil
	}

	entries, err := l.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s: %w", modelPath, err)
	}

	modelNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			modelNames = append(modelNames, entry.Name())
		}
	}
	if len(modelNames) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(modelNames)
	return filepath.Join(modelPath, modelNames[0]), nil
}

type cliEngine struct {
	loader      *CLILoader
	binary      string
	modelPath   string
	accelerated bool
}

// Transcribe writes samples to a temporary WAV, runs whisper.cpp with text
// export and returns one segment per output line.
func (e *cliEngine) Transcribe(ctx context.Context, samples []float32) ([]Segment, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	l := e.loader
	tempDir, err := l.mkdirTemp("", "whisper-transcribe-*")
	if err != nil {
		return nil, fmt.Errorf("create temporary workspace: %w", err)
	}
	defer func() { _ = l.removeAll(tempDir) }()

	audioPath := filepath.Join(tempDir, "input-16k-mono.wav")
	if err := decode.WriteWAV(audioPath, samples, SampleRate, 1); err != nil {
		return nil, fmt.Errorf("write engine input: %w", err)
	}

	textBase := filepath.Join(tempDir, "transcript")
	args := buildWhisperArgs(e.modelPath, audioPath, textBase, l.language, l.threads, e.accelerated)
	if _, err := l.runner.Run(ctx, e.binary, args...); err != nil {
		return nil, fmt.Errorf("whisper.cpp transcription failed: %w", err)
	}

	content, err := l.readFile(textBase + ".txt")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("whisper.cpp completed but transcript .txt file is missing: %w", err)
		}
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return segmentsFromText(string(content)), nil
}

func (e *cliEngine) Close() error { return nil }

// segmentsFromText turns each line of the .txt output into a segment. Line
// breaks are dropped so joined text matches the in-process engine.
func segmentsFromText(text string) []Segment {
	var segments []Segment
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		segments = append(segments, Segment{Text: line})
	}
	return segments
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildWhisperArgs builds whisper.cpp args for greedy, quiet txt export.
func buildWhisperArgs(modelPath, audioPath, textBase, language string, threads int, accelerated bool) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", textBase,
		"-otxt",
		"-np",
		"-nt",
		"-bo", "1",
		"-bs", "1",
		"-nf",
	}

	if !accelerated {
		args = append(args, "-ng")
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	if threads > 0 {
		args = append(args, "-t", strconv.Itoa(threads))
	}

	return args
}
