package bootstrap

import (
	"testing"

	"whisper-transcribe/internal/domain"
)

// TestTranscriptionText checks the status line for each state.
func TestTranscriptionText(t *testing.T) {
	cases := map[domain.TranscriptionState]string{
		domain.TranscriptionIdle:         "",
		domain.TranscriptionLoadingModel: "Loading model...",
		domain.TranscriptionTranscribing: "Transcribing...",
		domain.TranscriptionDone:         "Done",
	}
	for state, want := range cases {
		if got := TranscriptionText(domain.TranscriptionStatus{State: state}); got != want {
			t.Fatalf("text(%s) = %q, want %q", state, got, want)
		}
	}
	failed := domain.TranscriptionStatus{State: domain.TranscriptionFailed, Reason: "failed to load model"}
	if got := TranscriptionText(failed); got != "Error: failed to load model" {
		t.Fatalf("failed text = %q", got)
	}
}

// TestDownloadText checks determinate and indeterminate progress.
func TestDownloadText(t *testing.T) {
	known := domain.DownloadStatus{State: domain.DownloadInProgress, BytesDone: 37_500_000, BytesTotal: 75_000_000}
	if got := DownloadText(known); got != "Downloading... 37.5 / 75.0 MB (50%)" {
		t.Fatalf("known = %q", got)
	}

	unknown := domain.DownloadStatus{State: domain.DownloadInProgress, BytesDone: 1_250_000}
	if got := DownloadText(unknown); got != "Downloading... 1.2 MB" && got != "Downloading... 1.3 MB" {
		t.Fatalf("unknown = %q", got)
	}

	failed := domain.DownloadStatus{State: domain.DownloadFailed, Reason: "download failed: HTTP 404"}
	if got := DownloadText(failed); got != "Download error: download failed: HTTP 404" {
		t.Fatalf("failed = %q", got)
	}
	if got := DownloadText(domain.DownloadStatus{State: domain.DownloadIdle}); got != "" {
		t.Fatalf("idle = %q", got)
	}
}

// TestAcceleratorTexts checks the hint and the runtime indicator.
func TestAcceleratorTexts(t *testing.T) {
	if AcceleratorHintText(true) != "CUDA Available" || AcceleratorHintText(false) != "CUDA Not Found (CPU mode)" {
		t.Fatal("unexpected hint text")
	}
	gpu, cpu := true, false
	if RuntimeText(nil) != "Ready" || RuntimeText(&gpu) != "Running on GPU" || RuntimeText(&cpu) != "Running on CPU" {
		t.Fatal("unexpected runtime text")
	}
}

// TestNewViewCombinesTexts checks the rendered view mirrors the state.
func TestNewViewCombinesTexts(t *testing.T) {
	view := NewView(domain.AppState{
		Transcription:   domain.TranscriptionStatus{State: domain.TranscriptionTranscribing},
		Download:        domain.DownloadStatus{State: domain.DownloadDone},
		AcceleratorHint: true,
	})
	if view.Transcription != "Transcribing..." || view.Download != "Download complete!" || view.AcceleratorHint != "CUDA Available" {
		t.Fatalf("view = %+v", view)
	}
}
