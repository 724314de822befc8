package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whisper-transcribe/internal/bootstrap"
	"whisper-transcribe/internal/domain"
)

func (a *cliApp) transcribeCommand() *cobra.Command {
	var (
		modelPath string
		modelID   string
		output    string
		language  string
		threads   int
	)

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe one audio file and print the text",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if language != "" {
				a.settings.Language = language
			}
			if cmd.Flags().Changed("threads") {
				a.settings.Threads = threads
			}

			svc, err := a.services()
			if err != nil {
				return err
			}
			model, err := resolveModel(svc, modelPath, modelID)
			if err != nil {
				return err
			}
			if model != "" {
				svc.Controller.SelectModel(model)
			}
			svc.Controller.SelectAudio(args[0])

			jobID, err := svc.Controller.StartTranscription()
			if err != nil {
				return err
			}
			a.logger.Debug("transcription job started", zap.String("jobId", jobID))

			status, err := a.waitTranscription(cmd.Context(), svc, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if status.State == domain.TranscriptionFailed {
				return fmt.Errorf("transcription failed: %s", status.Reason)
			}
			return writeTranscript(cmd.OutOrStdout(), output, status.Text)
		}),
	}

	flags := cmd.Flags()
	flags.StringVarP(&modelPath, "model", "m", "", "model file (defaults to the configured model)")
	flags.StringVar(&modelID, "model-id", "", "use a downloaded catalog model by id")
	flags.StringVarP(&output, "output", "o", "", "write the transcript to this file instead of stdout")
	flags.StringVarP(&language, "language", "l", "", "spoken language code or auto")
	flags.IntVarP(&threads, "threads", "t", 0, "inference threads (0 lets the engine decide)")
	return cmd
}

// resolveModel picks the model from --model, then --model-id. An empty
// result keeps the configured model.
func resolveModel(svc *bootstrap.Services, modelPath, modelID string) (string, error) {
	if strings.TrimSpace(modelPath) != "" {
		return modelPath, nil
	}
	if strings.TrimSpace(modelID) == "" {
		return "", nil
	}

	model, err := svc.Catalog.Lookup(modelID)
	if err != nil {
		return "", err
	}
	if !model.Downloaded {
		return "", fmt.Errorf("model %s is not downloaded; run: whisper-transcribe download %s", model.ID, model.ID)
	}
	return model.LocalPath, nil
}

// waitTranscription polls until the job is terminal, printing each new status line.
func (a *cliApp) waitTranscription(ctx context.Context, svc *bootstrap.Services, progress io.Writer) (domain.TranscriptionStatus, error) {
	var (
		lastText    string
		lastRuntime string
	)
	for {
		state := svc.Controller.Poll()
		view := bootstrap.NewView(state)

		if view.Runtime != lastRuntime && state.Accelerated != nil {
			fmt.Fprintln(progress, view.Runtime)
			lastRuntime = view.Runtime
		}
		if view.Transcription != lastText && !state.Transcription.Terminal() {
			fmt.Fprintln(progress, view.Transcription)
			lastText = view.Transcription
		}
		if state.Transcription.Terminal() {
			return state.Transcription, nil
		}

		select {
		case <-ctx.Done():
			return domain.TranscriptionStatus{}, ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
}

func writeTranscript(stdout io.Writer, output, text string) error {
	if output == "" {
		_, err := fmt.Fprintln(stdout, text)
		return err
	}
	if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
		return &domain.JobError{Kind: domain.KindIO, Message: "write transcript", Err: err}
	}
	return nil
}
