package engine

import (
	"context"
	"os"
	"runtime"
	"strings"

	"whisper-transcribe/internal/command"
)

// Accelerator names a hardware backend whisper.cpp can offload to.
type Accelerator string

const (
	AccelNone  Accelerator = "none"
	AccelCUDA  Accelerator = "cuda"
	AccelMetal Accelerator = "metal"
)

// Detect lists accelerators usable on this host. AccelNone is always last.
func Detect(ctx context.Context, runner command.Runner) []Accelerator {
	var available []Accelerator

	if runner != nil {
		if result, err := runner.Run(ctx, "nvidia-smi", "-L"); err == nil && strings.Contains(result.Stdout, "GPU") {
			available = append(available, AccelCUDA)
		}
	}
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		available = append(available, AccelMetal)
	}

	return append(available, AccelNone)
}

// Select picks the preferred accelerator from available.
func Select(available []Accelerator) Accelerator {
	for _, preferred := range []Accelerator{AccelCUDA, AccelMetal} {
		for _, a := range available {
			if a == preferred {
				return preferred
			}
		}
	}
	return AccelNone
}

// HintFromEnv reports whether the advisory variable name is set, even to an
// empty value. It only drives the UI indicator; Load decides what is
// actually used.
func HintFromEnv(name string) bool {
	return HintFrom(name, os.LookupEnv)
}

// HintFrom applies the HintFromEnv rule to lookup.
func HintFrom(name string, lookup func(string) (string, bool)) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, ok := lookup(name)
	return ok
}
