package services

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/medicalreportflow/internal/models"
)

// IngestRequest is the input to one ingestion call.
type IngestRequest struct {
	UserID string
	Title  string
	File   *models.SourceFile
	// ClientCreatedAt is the creation time reported by the client. Zero means
	// "use the time the request was received".
	ClientCreatedAt time.Time
	// PromptOverride replaces the default analysis instruction when set.
	PromptOverride string
}

var acceptedTypes = map[string]string{
	models.ContentTypePDF:  ".pdf",
	models.ContentTypeJPEG: ".jpg",
	models.ContentTypePNG:  ".png",
}

// NormalizeContentType strips parameters and casing from a media type and
// maps common aliases.
func NormalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return models.ContentTypeJPEG
	}
	return ct
}

// ContentTypeForName guesses an accepted media type from a file extension.
func ContentTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return models.ContentTypePDF
	case ".jpg", ".jpeg":
		return models.ContentTypeJPEG
	case ".png":
		return models.ContentTypePNG
	}
	return ""
}

// Validate rejects requests the pipeline must not start on.
func (r *IngestRequest) Validate(maxBytes int64) error {
	if r.File == nil || len(r.File.Data) == 0 {
		return models.NewError(models.ErrValidation, "a file is required", nil)
	}
	if strings.TrimSpace(r.Title) == "" {
		return models.NewError(models.ErrValidation, "a document title is required", nil)
	}
	if strings.TrimSpace(r.UserID) == "" {
		return models.NewError(models.ErrValidation, "a user id is required", nil)
	}
	if _, ok := acceptedTypes[r.File.ContentType]; !ok {
		return models.NewError(models.ErrValidation,
			fmt.Sprintf("unsupported file type %q: upload a PDF, JPEG or PNG", r.File.ContentType), nil)
	}
	if maxBytes > 0 && r.File.Size() > maxBytes {
		return models.NewError(models.ErrValidation,
			fmt.Sprintf("file is %d bytes, larger than the %d byte limit", r.File.Size(), maxBytes), nil)
	}
	return nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// StorageKey builds the object key for an upload:
// reports/{user}/{unix millis}_{title}{ext}, whitespace in the title becoming
// underscores.
func StorageKey(userID, title, fileName, contentType string, at time.Time) string {
	normalizedTitle := whitespaceRun.ReplaceAllString(strings.TrimSpace(title), "_")
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = acceptedTypes[contentType]
	}
	return fmt.Sprintf("reports/%s/%d_%s%s", userID, at.UnixMilli(), normalizedTitle, ext)
}

// isPermanent reports failures that re-running the same input cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrExtraction)
}

// ParseClientTime accepts RFC 3339 timestamps or Unix milliseconds.
func ParseClientTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return time.UnixMilli(ms), nil
}
