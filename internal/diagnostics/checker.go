package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"whisper-transcribe/internal/catalog"
	"whisper-transcribe/internal/domain"
	"whisper-transcribe/internal/engine"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	lookupEnv  func(string) (string, bool)
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		lookupEnv:  os.LookupEnv,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkEngine(settings),
		c.checkOptionalTool("ffmpeg", settings.FFmpegPath),
		c.checkOptionalTool("ffprobe", settings.FFprobePath),
		c.checkModelPath(settings.ModelPath),
		c.checkModelsDir(settings.ModelsDir),
		c.checkAccelerator(settings.AcceleratorEnv),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkEngine verifies the whisper.cpp executable when the cli backend is selected.
func (c *Checker) checkEngine(settings domain.Settings) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "engine", Name: "Whisper engine"}

	kind := strings.TrimSpace(settings.Engine)
	if kind == "" {
		kind = engine.DefaultKind
	}
	if kind != "cli" {
		if _, err := engine.NewLoader(kind, engine.Options{}); err != nil {
			item.Status = domain.DiagnosticStatusFail
			item.Message = err.Error()
			item.Hint = fmt.Sprintf("Available engines: %s.", strings.Join(engine.Kinds(), ", "))
			return item
		}
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("In-process engine: %s", kind)
		return item
	}

	path, err := c.lookPath(settings.WhisperPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("whisper.cpp executable not found: %s", settings.WhisperPath)
		item.Hint = "Install whisper.cpp and ensure whisper-cli is on PATH, or set the executable path in settings."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkOptionalTool reports ffmpeg-family tools. Built-in decoders cover
// wav, mp3, flac and ogg, so a missing tool is only a warning.
func (c *Checker) checkOptionalTool(name, configured string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "tool_" + name, Name: name}
	if strings.TrimSpace(configured) == "" {
		configured = name
	}

	path, err := c.lookPath(configured)
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Tool not found in PATH: %s", configured)
		item.Hint = "Needed for m4a, aac, wma, opus and webm input. Install it to enable those formats."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkModelPath validates the selected model file or model directory.
func (c *Checker) checkModelPath(modelPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "model_path",
		Name: "Model path",
	}

	if strings.TrimSpace(modelPath) == "" {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "No model selected."
		item.Hint = "Pick a .bin model file or download one from the model list."
		return item
	}

	info, err := c.stat(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Model path does not exist: %s", modelPath)
		} else {
			item.Message = fmt.Sprintf("Cannot access model path: %s", modelPath)
		}
		item.Hint = "Download a whisper.cpp model and select it again."
		return item
	}

	if !info.IsDir() {
		if info.Size() == 0 {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Model file is empty: %s", modelPath)
			item.Hint = "The file is probably an interrupted download. Download it again."
			return item
		}
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Model file found: %s", modelPath)
		return item
	}

	entries, err := c.readDir(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read model directory: %s", modelPath)
		item.Hint = "Check permissions for the model directory."
		return item
	}

	for _, entry := range entries {
		if !entry.IsDir() && catalog.IsModelFile(entry.Name()) {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Model directory is valid: %s", modelPath)
			return item
		}
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("No model files found in directory: %s", modelPath)
	item.Hint = "Place a .bin or .gguf model file in this directory or point to a model file directly."
	return item
}

// checkModelsDir validates that downloads can be written.
func (c *Checker) checkModelsDir(modelsDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "models_dir",
		Name: "Models directory",
	}

	if strings.TrimSpace(modelsDir) == "" {
		modelsDir = catalog.DefaultModelsDir
	}

	if err := c.mkdirAll(modelsDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create models directory: %s", modelsDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(modelsDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Models directory is not writable: %s", modelsDir)
		item.Hint = "Model downloads need a writable directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", modelsDir)
	return item
}

// checkAccelerator reports the advisory GPU hint shown in the UI.
func (c *Checker) checkAccelerator(envName string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "accelerator", Name: "GPU acceleration"}

	if engine.HintFrom(envName, c.lookupEnv) {
		item.Status = domain.DiagnosticStatusPass
		item.Message = "CUDA Available"
		return item
	}

	item.Status = domain.DiagnosticStatusWarn
	item.Message = "CUDA Not Found (CPU mode)"
	if strings.TrimSpace(envName) != "" {
		item.Hint = fmt.Sprintf("%s is not set. Transcription still runs on the CPU.", envName)
	}
	return item
}
