package bootstrap

import (
	"fmt"

	"whisper-transcribe/internal/domain"
)

const bytesPerMB = 1_000_000

// View is the AppState plus the texts the UI and CLI render for it.
type View struct {
	State           domain.AppState `json:"state"`
	Transcription   string          `json:"transcriptionText"`
	Download        string          `json:"downloadText"`
	AcceleratorHint string          `json:"acceleratorHintText"`
	Runtime         string          `json:"runtimeText"`
}

// NewView renders state.
func NewView(state domain.AppState) View {
	return View{
		State:           state,
		Transcription:   TranscriptionText(state.Transcription),
		Download:        DownloadText(state.Download),
		AcceleratorHint: AcceleratorHintText(state.AcceleratorHint),
		Runtime:         RuntimeText(state.Accelerated),
	}
}

// TranscriptionText is the status line next to the Transcribe button.
func TranscriptionText(s domain.TranscriptionStatus) string {
	switch s.State {
	case domain.TranscriptionLoadingModel:
		return "Loading model..."
	case domain.TranscriptionTranscribing:
		return "Transcribing..."
	case domain.TranscriptionDone:
		return "Done"
	case domain.TranscriptionFailed:
		return "Error: " + s.Reason
	default:
		return ""
	}
}

// DownloadText describes download progress. Without a declared length the
// progress is indeterminate and only the received size is shown.
func DownloadText(s domain.DownloadStatus) string {
	switch s.State {
	case domain.DownloadInProgress:
		done := float64(s.BytesDone) / bytesPerMB
		fraction, ok := s.Fraction()
		if !ok {
			return fmt.Sprintf("Downloading... %.1f MB", done)
		}
		total := float64(s.BytesTotal) / bytesPerMB
		return fmt.Sprintf("Downloading... %.1f / %.1f MB (%.0f%%)", done, total, fraction*100)
	case domain.DownloadDone:
		return "Download complete!"
	case domain.DownloadFailed:
		return "Download error: " + s.Reason
	default:
		return ""
	}
}

// AcceleratorHintText renders the advisory environment check.
func AcceleratorHintText(available bool) string {
	if available {
		return "CUDA Available"
	}
	return "CUDA Not Found (CPU mode)"
}

// RuntimeText renders the path the last job actually used.
func RuntimeText(accelerated *bool) string {
	switch {
	case accelerated == nil:
		return "Ready"
	case *accelerated:
		return "Running on GPU"
	default:
		return "Running on CPU"
	}
}
