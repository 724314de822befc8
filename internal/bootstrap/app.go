package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"

	"whisper-transcribe/internal/audio"
	"whisper-transcribe/internal/config"
	"whisper-transcribe/internal/domain"
	"whisper-transcribe/internal/engine"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// StateEvent is emitted to the frontend whenever the rendered View changes.
const StateEvent = "app:state"

// DefaultTranscriptName is offered by the save dialog.
const DefaultTranscriptName = "transcription.txt"

const defaultPollInterval = 100 * time.Millisecond

var errNoTranscript = errors.New("no transcription to export")

var audioDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audio files",
		Pattern:     audio.DialogPattern(),
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var modelDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Whisper models",
		Pattern:     "*.bin;*.gguf",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var transcriptDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Text files",
		Pattern:     "*.txt",
	},
}

// desktop isolates the Wails runtime calls that need a live window.
type desktop interface {
	OpenFile(ctx context.Context, opts wailsruntime.OpenDialogOptions) (string, error)
	SaveFile(ctx context.Context, opts wailsruntime.SaveDialogOptions) (string, error)
	SetClipboard(ctx context.Context, text string) error
	Emit(ctx context.Context, name string, data ...interface{})
	OnFileDrop(ctx context.Context, fn func(x, y int, paths []string))
}

type wailsDesktop struct{}

func (wailsDesktop) OpenFile(ctx context.Context, opts wailsruntime.OpenDialogOptions) (string, error) {
	return wailsruntime.OpenFileDialog(ctx, opts)
}

func (wailsDesktop) SaveFile(ctx context.Context, opts wailsruntime.SaveDialogOptions) (string, error) {
	return wailsruntime.SaveFileDialog(ctx, opts)
}

func (wailsDesktop) SetClipboard(ctx context.Context, text string) error {
	return wailsruntime.ClipboardSetText(ctx, text)
}

func (wailsDesktop) Emit(ctx context.Context, name string, data ...interface{}) {
	wailsruntime.EventsEmit(ctx, name, data...)
}

func (wailsDesktop) OnFileDrop(ctx context.Context, fn func(x, y int, paths []string)) {
	wailsruntime.OnFileDrop(ctx, fn)
}

// App binds the services to the Wails window.
type App struct {
	Store    config.Store
	services *Services
	assets   fs.FS
	desktop  desktop
	logger   *zap.Logger

	writeFile    func(name string, data []byte, perm os.FileMode) error
	pollInterval time.Duration

	mu          sync.Mutex
	diagnostics domain.DiagnosticReport
	runtimeCtx  context.Context
	stopPolling context.CancelFunc
	lastView    View
}

// NewApp builds the desktop application. assets may be nil, in which case
// ./frontend is served from disk.
func NewApp(services *Services, store config.Store, assets fs.FS) *App {
	return &App{
		Store:        store,
		services:     services,
		assets:       assets,
		desktop:      wailsDesktop{},
		logger:       services.Logger.Named("app"),
		writeFile:    os.WriteFile,
		pollInterval: defaultPollInterval,
		diagnostics:  services.Diagnostics(),
	}
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Whisper Transcribe",
		Width:       760,
		Height:      680,
		AssetServer: assetOptions,
		DragAndDrop: &options.DragAndDrop{EnableFileDrop: true},
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context, registers the file drop handler
// and starts pushing state changes to the frontend.
func (a *App) Startup(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	a.runtimeCtx = ctx
	a.stopPolling = cancel
	a.mu.Unlock()

	a.desktop.OnFileDrop(ctx, func(_, _ int, paths []string) {
		a.DropFiles(paths)
	})
	go a.pushState(pollCtx)
}

// Shutdown stops the state push loop. Workers still running are abandoned.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopPolling != nil {
		a.stopPolling()
		a.stopPolling = nil
	}
	a.runtimeCtx = nil
}

// pushState polls the controller and emits StateEvent when the view changes.
func (a *App) pushState(ctx context.Context) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Poll()
		}
	}
}

// Poll drains worker messages and returns the rendered state.
func (a *App) Poll() View {
	view := NewView(a.services.Controller.Poll())
	a.publish(view)
	return view
}

func (a *App) publish(view View) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	changed := !reflect.DeepEqual(a.lastView, view)
	a.lastView = view
	a.mu.Unlock()

	if ctx != nil && changed {
		a.desktop.Emit(ctx, StateEvent, view)
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.diagnostics
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.loadSettings()
	if err != nil {
		return domain.DiagnosticReport{}, err
	}
	return a.refreshDiagnosticsFromSettings(settings), nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	return a.loadSettings()
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
// The model selection and accelerator hint apply immediately; engine and
// tool paths apply on the next launch.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	if normalized.ModelPath != "" {
		a.services.Controller.SelectModel(normalized.ModelPath)
	}
	a.services.Controller.SetAcceleratorHint(engine.HintFromEnv(normalized.AcceleratorEnv))
	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// PickAudioFile opens a native file dialog and selects the chosen audio file.
func (a *App) PickAudioFile() (View, error) {
	path, err := a.openFile(wailsruntime.OpenDialogOptions{
		Title:   "Select audio file",
		Filters: audioDialogFilter,
	})
	if err != nil {
		return View{}, err
	}
	if path != "" {
		a.services.Controller.SelectAudio(path)
	}
	return a.Poll(), nil
}

// PickModelFile opens a native file dialog and selects the chosen model.
func (a *App) PickModelFile() (View, error) {
	path, err := a.openFile(wailsruntime.OpenDialogOptions{
		Title:   "Select whisper model",
		Filters: modelDialogFilter,
	})
	if err != nil {
		return View{}, err
	}
	if path != "" {
		a.services.Controller.SelectModel(path)
	}
	return a.Poll(), nil
}

// DropFiles routes files dropped on the window.
func (a *App) DropFiles(paths []string) View {
	modelPath, audioPath := a.services.SelectDropped(paths)
	a.logger.Debug("files dropped",
		zap.Int("count", len(paths)),
		zap.String("model", modelPath),
		zap.String("audio", audioPath),
	)
	return a.Poll()
}

// GetWhisperModels returns the downloadable model catalog.
func (a *App) GetWhisperModels() []domain.WhisperModelOption {
	return a.services.Catalog.Models()
}

// StartDownload downloads the catalog model id.
func (a *App) StartDownload(modelID string) (View, error) {
	_, err := a.services.StartDownload(modelID)
	return a.Poll(), err
}

// StartTranscription transcribes the selected audio with the selected model.
func (a *App) StartTranscription() (View, error) {
	_, err := a.services.Controller.StartTranscription()
	return a.Poll(), err
}

// ClearTranscript empties the transcript and returns to Idle.
func (a *App) ClearTranscript() View {
	a.services.Controller.ClearTranscript()
	return a.Poll()
}

// CopyTranscript places the finished transcript on the clipboard.
func (a *App) CopyTranscript() error {
	text, err := a.transcript()
	if err != nil {
		return err
	}
	ctx, err := a.runtimeContext()
	if err != nil {
		return err
	}
	return a.desktop.SetClipboard(ctx, text)
}

// SaveTranscript asks for a destination and writes the transcript as plain
// text. An empty path means the dialog was cancelled.
func (a *App) SaveTranscript() (string, error) {
	text, err := a.transcript()
	if err != nil {
		return "", err
	}
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := a.desktop.SaveFile(ctx, wailsruntime.SaveDialogOptions{
		Title:           "Save transcription",
		DefaultFilename: DefaultTranscriptName,
		Filters:         transcriptDialogFilter,
	})
	if err != nil {
		return "", err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}

	if err := a.writeFile(path, []byte(text), 0o644); err != nil {
		return "", &domain.JobError{Kind: domain.KindIO, Message: "save transcription", Err: err}
	}
	a.logger.Info("transcription saved", zap.String("path", path))
	return path, nil
}

func (a *App) transcript() (string, error) {
	status := a.services.Controller.PollTranscription()
	if status.State != domain.TranscriptionDone || status.Text == "" {
		return "", errNoTranscript
	}
	return status.Text, nil
}

func (a *App) openFile(opts wailsruntime.OpenDialogOptions) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}
	path, err := a.desktop.OpenFile(ctx, opts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

func (a *App) loadSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return config.Normalize(settings), nil
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	report := a.services.Checker.Run(settings)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.diagnostics = report
	return report
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}
