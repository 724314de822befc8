package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"whisper-transcribe/internal/catalog"
	"whisper-transcribe/internal/domain"
)

// AppDirName is the per-user directory holding settings and logs.
const AppDirName = ".whisper-transcribe"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		ModelsDir:      catalog.DefaultModelsDir,
		ModelBaseURL:   catalog.DefaultBaseURL,
		Engine:         "cli",
		WhisperPath:    defaultWhisperPath(),
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		Language:       "auto",
		AcceleratorEnv: "CUDA_PATH",
		LogLevel:       "info",
	}
}

// DefaultSettingsPath returns ~/.whisper-transcribe/settings.json.
func DefaultSettingsPath() string {
	return filepath.Join(appDir(), "settings.json")
}

// DefaultLogFile returns ~/.whisper-transcribe/logs/whisper-transcribe.log.
func DefaultLogFile() string {
	return filepath.Join(appDir(), "logs", "whisper-transcribe.log")
}

// Normalize fills empty fields with defaults and trims paths.
func Normalize(s domain.Settings) domain.Settings {
	def := DefaultSettings()
	fill := func(v *string, fallback string) {
		*v = strings.TrimSpace(*v)
		if *v == "" {
			*v = fallback
		}
	}

	s.ModelPath = strings.TrimSpace(s.ModelPath)
	s.LogFile = strings.TrimSpace(s.LogFile)
	fill(&s.ModelsDir, def.ModelsDir)
	fill(&s.ModelBaseURL, def.ModelBaseURL)
	fill(&s.Engine, def.Engine)
	fill(&s.WhisperPath, def.WhisperPath)
	fill(&s.FFmpegPath, def.FFmpegPath)
	fill(&s.FFprobePath, def.FFprobePath)
	fill(&s.Language, def.Language)
	fill(&s.AcceleratorEnv, def.AcceleratorEnv)
	fill(&s.LogLevel, def.LogLevel)
	if s.Threads < 0 {
		s.Threads = 0
	}
	return s
}

func appDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, AppDirName)
}

// defaultWhisperPath uses the executable name shipped by current whisper.cpp releases.
func defaultWhisperPath() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}
