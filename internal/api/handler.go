package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/Lllllllleong/medicalreportflow/internal/models"
	"github.com/Lllllllleong/medicalreportflow/internal/services"
)

// Multipart form fields accepted by the upload endpoint.
const (
	FieldFile      = "file"
	FieldTitle     = "title"
	FieldUserID    = "userId"
	FieldCreatedAt = "createdAt"
	FieldPrompt    = "prompt"
)

// multipartOverhead is allowed on top of the file limit for the other form
// fields and part headers.
const multipartOverhead = 1 << 20

// Ingestor is the part of services.IngestorFunction the handlers use.
type Ingestor interface {
	Process(ctx context.Context, req *services.IngestRequest, progress services.ProgressFunc) (*models.IngestedDocument, error)
	Lookup(ctx context.Context, id string) (*models.IngestedDocument, error)
	MaxUploadBytes() int64
}

// DocumentHandler serves the upload and retrieval endpoints.
type DocumentHandler struct {
	ingestor Ingestor
}

func NewDocumentHandler(ingestor Ingestor) *DocumentHandler {
	return &DocumentHandler{ingestor: ingestor}
}

// Upload handles a multipart upload and returns the stored document along
// with the progress messages emitted while processing it.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "method not allowed"})
		return
	}

	req, err := h.parseUpload(w, r)
	if err != nil {
		slog.Warn("Could not parse upload request", "error", err)
		writeError(w, err)
		return
	}

	var progress services.ProgressLog
	doc, err := h.ingestor.Process(r.Context(), req, progress.Func())
	if err != nil {
		// The specific error is already logged inside the Process method.
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.IngestResponse{
		Document: models.NewDocumentResponse(doc),
		Progress: progress.Messages,
	})
}

// Get returns one document by id, taken from the {id} route parameter.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, models.NewError(models.ErrValidation, "a document id is required", nil))
		return
	}
	doc, err := h.ingestor.Lookup(r.Context(), id)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.Error("Failed to load document", "error", err, "documentId", id)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewDocumentResponse(doc))
}

// Health reports that the process is serving.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *DocumentHandler) parseUpload(w http.ResponseWriter, r *http.Request) (*services.IngestRequest, error) {
	maxBytes := h.ingestor.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, models.NewError(models.ErrValidation,
				fmt.Sprintf("file is larger than the %d byte limit", maxBytes), err)
		}
		return nil, models.NewError(models.ErrValidation, "could not parse multipart form", err)
	}

	req := &services.IngestRequest{
		UserID:         r.FormValue(FieldUserID),
		Title:          r.FormValue(FieldTitle),
		PromptOverride: r.FormValue(FieldPrompt),
	}
	if ts := r.FormValue(FieldCreatedAt); ts != "" {
		t, err := services.ParseClientTime(ts)
		if err != nil {
			return nil, models.NewError(models.ErrValidation, "createdAt must be RFC 3339 or Unix milliseconds", err)
		}
		req.ClientCreatedAt = t
	}

	file, header, err := r.FormFile(FieldFile)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			// Validation reports the missing file with the other field checks.
			return req, nil
		}
		return nil, models.NewError(models.ErrValidation, "invalid file", err)
	}
	defer file.Close()

	source, err := readSource(file, header)
	if err != nil {
		return nil, err
	}
	req.File = source
	return req, nil
}

func readSource(file multipart.File, header *multipart.FileHeader) (*models.SourceFile, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, models.NewError(models.ErrValidation, "could not read uploaded file", err)
	}
	name := filepath.Base(header.Filename)
	contentType := services.NormalizeContentType(header.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := services.ContentTypeForName(name); guessed != "" {
			contentType = guessed
		}
	}
	return &models.SourceFile{FileName: name, ContentType: contentType, Data: data}, nil
}

// StatusFor maps an error kind to the HTTP status returned for it.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	res := models.ErrorResponse{Error: err.Error()}
	var ie *models.IngestError
	if errors.As(err, &ie) {
		res.Error = ie.Message
		res.Kind = string(ie.Kind)
	}
	writeJSON(w, StatusFor(err), res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
