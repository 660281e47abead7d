package simpleqa

import (
	"path/filepath"
	"strings"
)

// NormalizeLabel trims and lowercases a category label.
func NormalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeLabels normalizes labels and drops duplicates, keeping first-seen
// order. Blank labels are rejected.
func normalizeLabels(labels []string) ([]string, error) {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		n := NormalizeLabel(l)
		if n == "" {
			return nil, ErrBadRequest
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

var (
	allowedImageExts = map[string]bool{".jpeg": true, ".jpg": true, ".png": true}

	allowedImageMimes = map[string]bool{
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
	}
)

// ValidateImage checks that both the file extension and the declared media
// type name an accepted image format.
func ValidateImage(fileName, contentType string) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedImageExts[ext] {
		return ErrInvalidContent
	}
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	if !allowedImageMimes[mediaType] {
		return ErrInvalidContent
	}
	return nil
}
