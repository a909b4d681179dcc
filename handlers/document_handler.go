package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/NathanYKo/RAG-Document-System/middleware"
	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/services/document"
	"github.com/NathanYKo/RAG-Document-System/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// multipartMemoryLimit bounds how much of an upload is held in memory
// before the multipart reader spills to disk.
const multipartMemoryLimit = 8 << 20

// DocumentService defines the interface for document lifecycle operations
type DocumentService interface {
	// Upload validates, processes and stores a document for the given user
	Upload(ctx context.Context, user *models.User, req *document.UploadRequest) (*models.Document, error)
	// List returns the caller's documents, newest first
	List(ctx context.Context, user *models.User, limit, offset int) ([]*models.Document, error)
	// Get returns one document the caller may access
	Get(ctx context.Context, user *models.User, id uuid.UUID) (*models.Document, error)
	// Delete removes a document and its chunks
	Delete(ctx context.Context, user *models.User, id uuid.UUID) error
}

// UploadResponse confirms a processed upload
type UploadResponse struct {
	Message          string    `json:"message"`
	DocumentID       uuid.UUID `json:"document_id"`
	ProcessingStatus string    `json:"processing_status"`
	ChunkCount       int       `json:"chunk_count"`
}

// DocumentHandler handles document management HTTP requests
type DocumentHandler struct {
	service        DocumentService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewDocumentHandler creates a new DocumentHandler. maxUploadBytes caps
// the request body on upload; zero keeps a 10 MiB default.
func NewDocumentHandler(service DocumentService, maxUploadBytes int64, logger *zap.Logger) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &DocumentHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// HandleUpload handles POST /documents/upload
// The body is a multipart form with the file under "file" and optional
// chunk_size and chunk_overlap fields.
func (h *DocumentHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	// Leave headroom for the form fields around the file part
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		h.logger.Warn("failed to parse multipart form",
			zap.String("request_id", requestID),
			zap.Error(err))
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "File exceeds maximum upload size", nil)
			return
		}
		_ = utils.WriteBadRequest(w, "Invalid multipart form", nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.logger.Warn("missing file in upload",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "A file is required under the 'file' form field", nil)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read uploaded file",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to read uploaded file")
		return
	}

	req := &document.UploadRequest{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}
	if raw := r.FormValue("chunk_size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			_ = utils.WriteBadRequest(w, "chunk_size must be an integer", nil)
			return
		}
		req.ChunkSize = &v
	}
	if raw := r.FormValue("chunk_overlap"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			_ = utils.WriteBadRequest(w, "chunk_overlap must be an integer", nil)
			return
		}
		req.ChunkOverlap = &v
	}

	h.logger.Debug("processing upload",
		zap.String("request_id", requestID),
		zap.String("filename", req.Filename),
		zap.Int("size_bytes", len(content)),
		zap.String("user_id", user.ID.String()))

	doc, err := h.service.Upload(ctx, user, req)
	if err != nil {
		h.logger.Error("document upload failed",
			zap.String("request_id", requestID),
			zap.String("filename", req.Filename),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("document uploaded",
		zap.String("request_id", requestID),
		zap.String("document_id", doc.ID.String()),
		zap.Int("chunks", doc.ChunkCount))

	_ = utils.WriteCreated(w, UploadResponse{
		Message:          "Document '" + doc.Filename + "' uploaded and processed successfully",
		DocumentID:       doc.ID,
		ProcessingStatus: string(doc.Status),
		ChunkCount:       doc.ChunkCount,
	})
}

// HandleList handles GET /documents
func (h *DocumentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, offset := parsePagination(r, defaultPageLimit)

	docs, err := h.service.List(ctx, user, limit, offset)
	if err != nil {
		h.logger.Error("failed to list documents",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, docs)
}

// HandleGet handles GET /documents/{id}
func (h *DocumentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid document ID format", nil)
		return
	}

	doc, err := h.service.Get(ctx, user, id)
	if err != nil {
		h.logger.Warn("failed to get document",
			zap.String("request_id", requestID),
			zap.String("document_id", id.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, doc)
}

// HandleDelete handles DELETE /documents/{id}
func (h *DocumentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.UserFromContext(ctx)
	if user == nil {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid document ID format", nil)
		return
	}

	if err := h.service.Delete(ctx, user, id); err != nil {
		h.logger.Warn("failed to delete document",
			zap.String("request_id", requestID),
			zap.String("document_id", id.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("document deleted",
		zap.String("request_id", requestID),
		zap.String("document_id", id.String()),
		zap.String("user_id", user.ID.String()))

	utils.WriteNoContent(w)
}
