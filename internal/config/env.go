package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"whisper-transcribe/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WHISPER_TRANSCRIBE_"

// LoadDotEnv loads .env files without overriding variables already set.
// Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from WHISPER_TRANSCRIBE_* variables.
func ApplyEnv(s domain.Settings) (domain.Settings, error) {
	fields := map[string]*string{
		"MODEL_PATH":      &s.ModelPath,
		"MODELS_DIR":      &s.ModelsDir,
		"MODEL_BASE_URL":  &s.ModelBaseURL,
		"ENGINE":          &s.Engine,
		"WHISPER_PATH":    &s.WhisperPath,
		"FFMPEG_PATH":     &s.FFmpegPath,
		"FFPROBE_PATH":    &s.FFprobePath,
		"LANGUAGE":        &s.Language,
		"ACCELERATOR_ENV": &s.AcceleratorEnv,
		"LOG_LEVEL":       &s.LogLevel,
		"LOG_FILE":        &s.LogFile,
	}
	for key, field := range fields {
		if value, ok := os.LookupEnv(EnvPrefix + key); ok {
			*field = value
		}
	}

	if value, ok := os.LookupEnv(EnvPrefix + "THREADS"); ok {
		threads, err := strconv.Atoi(value)
		if err != nil {
			return s, fmt.Errorf("%sTHREADS: %w", EnvPrefix, err)
		}
		s.Threads = threads
	}
	return s, nil
}
