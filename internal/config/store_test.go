package config

import (
	"os"
	"path/filepath"
	"testing"

	"whisper-transcribe/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.Language != "auto" {
		t.Fatalf("language = %q, want auto", cfg.Language)
	}
	if cfg.ModelsDir != "models" {
		t.Fatalf("models dir = %q, want models", cfg.ModelsDir)
	}
	if cfg.Engine != "cli" {
		t.Fatalf("engine = %q, want cli", cfg.Engine)
	}
	if cfg.AcceleratorEnv != "CUDA_PATH" {
		t.Fatalf("accelerator env = %q, want CUDA_PATH", cfg.AcceleratorEnv)
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

// TestStoresRoundTrip checks persisted settings fidelity for both formats.
func TestStoresRoundTrip(t *testing.T) {
	want := domain.Settings{
		ModelPath:      "/models/ggml-base.bin",
		ModelsDir:      "/models",
		ModelBaseURL:   "https://mirror.test",
		Engine:         "whisper_cpp",
		WhisperPath:    "/opt/whisper/whisper-cli",
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		Language:       "en",
		Threads:        8,
		AcceleratorEnv: "CUDA_PATH",
		LogLevel:       "debug",
		LogFile:        "/tmp/wt.log",
	}

	for _, name := range []string{"settings.json", "settings.yaml"} {
		store := NewStore(filepath.Join(t.TempDir(), "cfg", name))
		if err := store.Save(want); err != nil {
			t.Fatalf("%s: Save() error = %v", name, err)
		}
		got, err := store.Load()
		if err != nil {
			t.Fatalf("%s: Load() error = %v", name, err)
		}
		if got != want {
			t.Fatalf("%s: settings = %+v, want %+v", name, got, want)
		}
	}
}

// TestNewStorePicksFormat checks extension based selection.
func TestNewStorePicksFormat(t *testing.T) {
	if _, ok := NewStore("a/settings.yml").(*YAMLStore); !ok {
		t.Fatal("yml path did not select YAMLStore")
	}
	if _, ok := NewStore("a/settings.json").(*JSONStore); !ok {
		t.Fatal("json path did not select JSONStore")
	}
}

// TestYAMLStorePartialFileKeepsDefaults checks hand-edited files only override what they set.
func TestYAMLStorePartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("language: de\nthreads: 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewYAMLStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Language != "de" || got.Threads != 2 {
		t.Fatalf("settings = %+v, want language de threads 2", got)
	}
	if got.Engine != "cli" {
		t.Fatalf("engine = %q, want default cli", got.Engine)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewJSONStore(path).Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}

// TestNormalizeFillsDefaults checks empty fields fall back.
func TestNormalizeFillsDefaults(t *testing.T) {
	got := Normalize(domain.Settings{ModelPath: "  m.bin ", Threads: -1})
	if got.ModelPath != "m.bin" {
		t.Fatalf("model path = %q, want trimmed", got.ModelPath)
	}
	if got.Threads != 0 || got.Engine != "cli" || got.LogLevel != "info" {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}
