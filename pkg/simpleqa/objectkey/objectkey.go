// Package objectkey derives blob store keys for attachments.
//
// Keys have the shape {parent_id}/{file_id}/{basename}{ext}. The parent
// prefix keeps a blob traceable to its question or answer after the
// metadata row is gone; the file id keeps repeated uploads of the same file
// name from colliding.
package objectkey

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const fallbackName = "file"

// ForAttachment returns the object key for a file attached to parentID.
func ForAttachment(parentID, fileID uuid.UUID, fileName string) string {
	return fmt.Sprintf("%s/%s/%s", parentID, fileID, SanitizeFilename(fileName))
}

// Parse splits a key produced by ForAttachment.
func Parse(key string) (parentID, fileID uuid.UUID, fileName string, err error) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 {
		return uuid.Nil, uuid.Nil, "", fmt.Errorf("malformed object key %q", key)
	}
	if parentID, err = uuid.Parse(parts[0]); err != nil {
		return uuid.Nil, uuid.Nil, "", fmt.Errorf("malformed parent id in key %q: %w", key, err)
	}
	if fileID, err = uuid.Parse(parts[1]); err != nil {
		return uuid.Nil, uuid.Nil, "", fmt.Errorf("malformed file id in key %q: %w", key, err)
	}
	return parentID, fileID, parts[2], nil
}

// SanitizeFilename keeps the base name of an uploaded file and strips
// characters that are awkward in object keys.
func SanitizeFilename(name string) string {
	// clients may send Windows paths
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	base = sanitizeComponent(base)
	ext = sanitizeComponent(strings.TrimPrefix(ext, "."))
	if base == "" {
		base = fallbackName
	}
	if ext == "" {
		return base
	}
	return base + "." + strings.ToLower(ext)
}

func sanitizeComponent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), ".")
}
