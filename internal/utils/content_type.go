package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

// DetectContentType guesses a content type from a file name.
func DetectContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if isTextLike(ext) {
		return "text/plain; charset=utf-8"
	} else if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}

// IsPDF reports whether name looks like a PDF document.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

func isTextLike(ext string) bool {
	switch ext {
	case ".md", ".txt", ".csv", ".yaml", ".yml", ".toml":
		return true
	}
	return false
}
