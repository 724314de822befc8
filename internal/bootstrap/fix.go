package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"whisper-transcribe/internal/catalog"
	"whisper-transcribe/internal/domain"
)

// DefaultFixModelID is downloaded when the model check is fixed without a selection.
const DefaultFixModelID = "base"

// ErrNoAutomaticFix is returned for checks that need manual installation.
var ErrNoAutomaticFix = errors.New("no automatic fix available")

// FixDiagnostic applies a remediation for one diagnostic item and returns
// the refreshed report. Fixing the model check starts a catalog download;
// the finished download selects the model.
func (a *App) FixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.loadSettings()
	if err != nil {
		return domain.DiagnosticReport{}, err
	}

	settingsChanged := false
	var fixErr error

	switch id {
	case "model_path":
		_, fixErr = a.services.StartDownload(DefaultFixModelID)
	case "models_dir":
		settings, settingsChanged, fixErr = fixModelsDir(settings)
	case "engine", "tool_ffmpeg", "tool_ffprobe", "accelerator":
		fixErr = fmt.Errorf("%w for %s", ErrNoAutomaticFix, id)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	a.logger.Info("diagnostic fix applied", zap.String("item", id), zap.Error(fixErr))
	report := a.refreshDiagnosticsFromSettings(settings)
	return report, fixErr
}

// fixModelsDir creates the models directory, falling back to the default
// location when the configured one cannot be created.
func fixModelsDir(settings domain.Settings) (domain.Settings, bool, error) {
	dir := strings.TrimSpace(settings.ModelsDir)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			return settings, false, nil
		}
	}

	if err := os.MkdirAll(catalog.DefaultModelsDir, 0o755); err != nil {
		return settings, false, fmt.Errorf("create models directory %s: %w", catalog.DefaultModelsDir, err)
	}
	changed := settings.ModelsDir != catalog.DefaultModelsDir
	settings.ModelsDir = catalog.DefaultModelsDir
	return settings, changed, nil
}
