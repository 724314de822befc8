//go:build whisper_cpp

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"go.uber.org/zap"
)

func init() {
	Register("whisper_cpp", func(opts Options) (Loader, error) {
		return &bindingLoader{opts: opts}, nil
	})
}

// bindingLoader loads models in-process through the whisper.cpp bindings.
// GPU offload is decided when libwhisper is built, so an accelerated load
// only succeeds when an accelerator is detected on the host.
//
// whisper.New takes no GPU flag: the CPU load is the same call as the
// accelerated one, and a GPU-enabled libwhisper may still offload after the
// job reported CPU.
type bindingLoader struct {
	opts Options
}

func (l *bindingLoader) Load(ctx context.Context, modelPath string, accelerated bool) (Engine, error) {
	if accelerated && Select(Detect(ctx, l.opts.Runner)) == AccelNone {
		return nil, ErrAcceleratorUnavailable
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %s: %w", modelPath, err)
	}
	l.opts.Logger.Debug("whisper model loaded",
		zap.String("model", modelPath),
		zap.Bool("accelerated", accelerated),
		zap.Bool("multilingual", model.IsMultilingual()),
	)
	return &bindingEngine{model: model, opts: l.opts}, nil
}

type bindingEngine struct {
	model whisper.Model
	opts  Options
}

// Transcribe runs greedy decoding; the bindings' default context params
// already disable progress and realtime printing.
func (e *bindingEngine) Transcribe(ctx context.Context, samples []float32) ([]Segment, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("create whisper context: %w", err)
	}

	if lang := normalizeLanguage(e.opts.Language); lang != "" {
		if err := wctx.SetLanguage(lang); err != nil {
			return nil, fmt.Errorf("set language %q: %w", lang, err)
		}
	}
	if e.opts.Threads > 0 {
		wctx.SetThreads(uint(e.opts.Threads))
	}

	if err := wctx.Process(samples, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper inference: %w", err)
	}

	var segments []Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			return segments, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read segment: %w", err)
		}
		segments = append(segments, Segment{Text: seg.Text, Start: seg.Start, End: seg.End})
	}
}

func (e *bindingEngine) Close() error {
	return e.model.Close()
}
