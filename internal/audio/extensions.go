package audio

import (
	"path/filepath"
	"strings"
)

// SupportedExtensions lists file types offered in pickers and accepted on
// drop. Decodability is still decided by probing.
var SupportedExtensions = []string{"wav", "mp3", "flac", "ogg", "m4a", "aac", "wma", "opus", "webm"}

// IsSupportedExtension reports whether path has an allow-listed extension.
func IsSupportedExtension(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return false
	}
	for _, candidate := range SupportedExtensions {
		if candidate == ext {
			return true
		}
	}
	return false
}

// DialogPattern returns the extensions as a "*.wav;*.mp3" filter pattern.
func DialogPattern() string {
	patterns := make([]string, len(SupportedExtensions))
	for i, ext := range SupportedExtensions {
		patterns[i] = "*." + ext
	}
	return strings.Join(patterns, ";")
}
