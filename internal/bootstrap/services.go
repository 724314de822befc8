package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"whisper-transcribe/internal/audio"
	"whisper-transcribe/internal/audio/decode"
	"whisper-transcribe/internal/catalog"
	"whisper-transcribe/internal/command"
	"whisper-transcribe/internal/config"
	"whisper-transcribe/internal/diagnostics"
	"whisper-transcribe/internal/domain"
	"whisper-transcribe/internal/download"
	"whisper-transcribe/internal/engine"
	"whisper-transcribe/internal/jobs"
	"whisper-transcribe/internal/metrics"
	"whisper-transcribe/internal/transcribe"
)

// Services is the object graph shared by the desktop App and the CLI.
type Services struct {
	Settings   domain.Settings
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Catalog    *catalog.Catalog
	Controller *jobs.Controller
	Checker    *diagnostics.Checker
}

// NewServices wires workers, the job controller and the catalog from settings.
// reg may be nil when metrics are not exported.
func NewServices(settings domain.Settings, logger *zap.Logger, reg prometheus.Registerer) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings = config.Normalize(settings)

	m := metrics.New(reg)
	runner := command.NewExecRunner()

	prober := decode.NewProber(
		logger.Named("decode"),
		decode.NewFFmpeg(settings.FFmpegPath, settings.FFprobePath, runner),
	)
	normalizer := audio.NewNormalizer(prober,
		audio.WithLogger(logger.Named("audio")),
		audio.WithSkipObserver(m),
	)

	loader, err := engine.NewLoader(settings.Engine, engine.Options{
		WhisperPath: settings.WhisperPath,
		Language:    settings.Language,
		Threads:     settings.Threads,
		Runner:      runner,
		Logger:      logger.Named("engine"),
	})
	if err != nil {
		return nil, fmt.Errorf("build engine loader: %w", err)
	}

	controller := jobs.NewController(
		transcribe.NewWorker(loader, normalizer, logger.Named("transcribe"), m),
		download.NewWorker(nil, logger.Named("download"), m),
		jobs.WithLogger(logger.Named("jobs")),
	)
	controller.SetAcceleratorHint(engine.HintFromEnv(settings.AcceleratorEnv))
	if settings.ModelPath != "" {
		controller.SelectModel(settings.ModelPath)
	}

	return &Services{
		Settings:   settings,
		Logger:     logger,
		Metrics:    m,
		Catalog:    catalog.New(settings.ModelBaseURL, settings.ModelsDir),
		Controller: controller,
		Checker:    diagnostics.NewChecker(),
	}, nil
}

// StartDownload starts fetching the catalog model id into the models directory.
func (s *Services) StartDownload(modelID string) (string, error) {
	model, err := s.Catalog.Lookup(modelID)
	if err != nil {
		return "", &domain.JobError{Kind: domain.KindConfig, Message: "cannot start download", Err: err}
	}
	return s.Controller.StartDownload(model.ID, model.URL, s.Catalog.Destination(model.FileName))
}

// SelectDropped routes dropped paths: model files select the model and
// allow-listed audio files select the audio. Other paths are ignored. The
// last match of each kind wins.
func (s *Services) SelectDropped(paths []string) (modelPath, audioPath string) {
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		switch {
		case catalog.IsModelFile(path):
			modelPath = path
		case audio.IsSupportedExtension(path):
			audioPath = path
		default:
			s.Logger.Debug("ignoring dropped file", zap.String("path", path))
		}
	}
	if modelPath != "" {
		s.Controller.SelectModel(modelPath)
	}
	if audioPath != "" {
		s.Controller.SelectAudio(audioPath)
	}
	return modelPath, audioPath
}

// Diagnostics runs the startup checks against the current settings.
func (s *Services) Diagnostics() domain.DiagnosticReport {
	return s.Checker.Run(s.Settings)
}

// ensureLocalBinOnPATH prepends ~/.whisper-transcribe/bin so a whisper-cli
// placed there is found without editing the shell profile.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := filepath.Join(homeDir, config.AppDirName, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

// PreparePATH makes the per-user tool directory visible to exec lookups.
func PreparePATH() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve user home: %w", err)
	}
	return ensureLocalBinOnPATH(homeDir)
}
