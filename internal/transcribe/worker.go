// Package transcribe runs one transcription job: engine load with
// accelerator fallback, audio normalization and inference.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"whisper-transcribe/internal/domain"
	"whisper-transcribe/internal/engine"
	"whisper-transcribe/internal/jobs"
	"whisper-transcribe/internal/metrics"
	"whisper-transcribe/internal/resample"
)

// Normalizer produces mono 16 kHz samples for an audio file.
type Normalizer interface {
	Normalize(ctx context.Context, path string) ([]float32, error)
}

// Worker executes transcription jobs. It is safe to run several jobs on one
// Worker; each Run keeps its own state.
type Worker struct {
	loader     engine.Loader
	normalizer Normalizer
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewWorker builds a worker. logger and m may be nil.
func NewWorker(loader engine.Loader, normalizer Normalizer, logger *zap.Logger, m *metrics.Metrics) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		loader:     loader,
		normalizer: normalizer,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// Run reports LoadingModel, AcceleratorInUse, Transcribing and exactly one
// terminal message to sink. It never panics across the sink boundary.
func (w *Worker) Run(ctx context.Context, req domain.TranscriptionRequest, sink jobs.Sink[domain.TranscriptionMessage]) {
	started := w.now()
	logger := w.logger.With(zap.String("jobId", req.JobID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("transcription worker panicked", zap.Any("panic", r), zap.Stack("stack"))
			w.metrics.RecordTranscription("failed", w.now().Sub(started).Seconds())
			sink.Send(domain.FailedMessage(fmt.Sprintf("internal error: %v", r)))
		}
	}()

	text, err := w.run(ctx, req, sink, logger)
	elapsed := w.now().Sub(started)
	if err != nil {
		logger.Error("transcription failed",
			zap.String("kind", string(domain.KindOf(err))),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		w.metrics.RecordTranscription("failed", elapsed.Seconds())
		sink.Send(domain.FailedMessage(err.Error()))
		return
	}

	logger.Info("transcription done", zap.Duration("elapsed", elapsed), zap.Int("chars", len(text)))
	w.metrics.RecordTranscription("done", elapsed.Seconds())
	sink.Send(domain.DoneMessage(text))
}

func (w *Worker) run(ctx context.Context, req domain.TranscriptionRequest, sink jobs.Sink[domain.TranscriptionMessage], logger *zap.Logger) (string, error) {
	sink.Send(domain.LoadingModelMessage())

	eng, accelerated, err := w.load(ctx, req.ModelPath, logger)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("engine close failed", zap.Error(err))
		}
	}()

	sink.Send(domain.AcceleratorMessage(accelerated))
	sink.Send(domain.TranscribingMessage())

	samples, err := w.normalizer.Normalize(ctx, req.AudioPath)
	if err != nil {
		return "", classifyAudioError(err)
	}
	logger.Debug("audio normalized", zap.Int("samples", len(samples)))

	segments, err := eng.Transcribe(ctx, samples)
	if err != nil {
		return "", &domain.JobError{Kind: domain.KindInference, Message: "transcription failed", Err: err}
	}
	return engine.JoinSegments(segments), nil
}

// load tries the accelerated path once, then the CPU path once.
func (w *Worker) load(ctx context.Context, modelPath string, logger *zap.Logger) (engine.Engine, bool, error) {
	eng, err := w.loader.Load(ctx, modelPath, true)
	w.metrics.RecordEngineLoad(true, err == nil)
	if err == nil {
		logger.Info("engine loaded", zap.Bool("accelerated", true))
		return eng, true, nil
	}
	logger.Warn("accelerated engine load failed, falling back to cpu", zap.Error(err))

	eng, cpuErr := w.loader.Load(ctx, modelPath, false)
	w.metrics.RecordEngineLoad(false, cpuErr == nil)
	if cpuErr != nil {
		return nil, false, &domain.JobError{Kind: domain.KindModelLoad, Message: "failed to load model", Err: cpuErr}
	}
	logger.Info("engine loaded", zap.Bool("accelerated", false))
	return eng, false, nil
}

// classifyAudioError maps normalizer failures onto the job error taxonomy.
func classifyAudioError(err error) error {
	var resampleErr *resample.Error
	if errors.As(err, &resampleErr) {
		return &domain.JobError{Kind: domain.KindResample, Message: "resampling failed", Err: err}
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return &domain.JobError{Kind: domain.KindIO, Message: "cannot read audio file", Err: err}
	}

	return &domain.JobError{Kind: domain.KindAudioDecode, Message: "audio decoding failed", Err: err}
}
