// Package catalog lists the downloadable whisper.cpp model variants.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"whisper-transcribe/internal/domain"
)

// DefaultBaseURL is the remote location models are fetched from, keyed by file name.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// DefaultModelsDir is relative to the working directory.
const DefaultModelsDir = "models"

var whisperModels = []domain.WhisperModelOption{
	{
		ID:          "tiny",
		Name:        "Tiny",
		FileName:    "ggml-tiny.bin",
		SizeLabel:   "~75 MB",
		Description: "Fastest multilingual model.",
	},
	{
		ID:          "base",
		Name:        "Base",
		FileName:    "ggml-base.bin",
		SizeLabel:   "~142 MB",
		Description: "Balanced speed/quality, multilingual.",
	},
	{
		ID:          "small",
		Name:        "Small",
		FileName:    "ggml-small.bin",
		SizeLabel:   "~466 MB",
		Description: "Higher quality multilingual model.",
	},
	{
		ID:          "medium",
		Name:        "Medium",
		FileName:    "ggml-medium.bin",
		SizeLabel:   "~1.5 GB",
		Description: "High quality multilingual model.",
	},
	{
		ID:          "large",
		Name:        "Large v3 Turbo",
		FileName:    "ggml-large-v3-turbo.bin",
		SizeLabel:   "~1.6 GB",
		Description: "Faster large-v3 variant.",
	},
}

// Catalog resolves model ids to remote URLs and local destinations.
type Catalog struct {
	baseURL   string
	modelsDir string
	stat      func(name string) (os.FileInfo, error)
}

// New builds a catalog. Empty arguments select the defaults.
func New(baseURL, modelsDir string) *Catalog {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(modelsDir) == "" {
		modelsDir = DefaultModelsDir
	}
	return &Catalog{baseURL: baseURL, modelsDir: modelsDir, stat: os.Stat}
}

// ModelsDir returns the local download directory.
func (c *Catalog) ModelsDir() string { return c.modelsDir }

// Models returns every variant with URL, destination and download state filled in.
func (c *Catalog) Models() []domain.WhisperModelOption {
	models := make([]domain.WhisperModelOption, len(whisperModels))
	for i, model := range whisperModels {
		models[i] = c.fill(model)
	}
	return models
}

// Lookup returns the variant with id.
func (c *Catalog) Lookup(id string) (domain.WhisperModelOption, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.WhisperModelOption{}, fmt.Errorf("model id is required")
	}
	for _, model := range whisperModels {
		if model.ID == id {
			return c.fill(model), nil
		}
	}
	return domain.WhisperModelOption{}, fmt.Errorf("unknown model id: %s (known: %s)", id, strings.Join(IDs(), ", "))
}

// URL returns the remote location of fileName.
func (c *Catalog) URL(fileName string) string {
	return c.baseURL + "/" + fileName
}

// Destination returns the local path fileName is downloaded to.
func (c *Catalog) Destination(fileName string) string {
	return filepath.Join(c.modelsDir, fileName)
}

func (c *Catalog) fill(model domain.WhisperModelOption) domain.WhisperModelOption {
	model.URL = c.URL(model.FileName)
	local := c.Destination(model.FileName)
	if info, err := c.stat(local); err == nil && !info.IsDir() && info.Size() > 0 {
		model.Downloaded = true
		model.LocalPath = local
	}
	return model
}

// IDs lists the known model ids in catalog order.
func IDs() []string {
	ids := make([]string, len(whisperModels))
	for i, model := range whisperModels {
		ids[i] = model.ID
	}
	return ids
}

// IsModelFile reports whether path looks like a whisper model file.
func IsModelFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".bin" || ext == ".gguf"
}
