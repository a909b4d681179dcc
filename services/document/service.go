// Package document ingests uploads into the vector store. Each upload is
// extracted per file type, cleaned, split into overlapping chunks,
// embedded, and persisted alongside its document record.
package document

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NathanYKo/RAG-Document-System/config"
	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/NathanYKo/RAG-Document-System/services"
	"github.com/NathanYKo/RAG-Document-System/services/embedding"
)

const (
	defaultChunkSize      = 1000
	defaultChunkOverlap   = 200
	defaultMaxUploadBytes = 10 << 20
)

// UploadRequest carries one uploaded file. ChunkSize and ChunkOverlap
// override the configured defaults when set; an explicit zero overlap is
// a valid override.
type UploadRequest struct {
	Filename     string
	ContentType  string
	Content      []byte
	ChunkSize    *int
	ChunkOverlap *int
}

// Service owns the document lifecycle from upload to deletion
type Service struct {
	documents repositories.DocumentRepository
	chunks    repositories.ChunkRepository
	txm       repositories.TransactionManager
	embedder  embedding.Embedder
	cfg       config.IngestionConfig
	logger    *zap.Logger
}

// NewService creates the document service
func NewService(repos *repositories.Repositories, txm repositories.TransactionManager, embedder embedding.Embedder, cfg config.IngestionConfig, logger *zap.Logger) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
		cfg.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Service{
		documents: repos.Documents,
		chunks:    repos.Chunks,
		txm:       txm,
		embedder:  embedder,
		cfg:       cfg,
		logger:    logger,
	}
}

// Upload validates, processes and stores a document for the given user.
// The record is created before processing starts; if processing fails the
// row is kept in failed status with the error recorded, so the owner can
// see what went wrong.
func (s *Service) Upload(ctx context.Context, user *models.User, req *UploadRequest) (*models.Document, error) {
	fileType, ok := models.FileTypeFromFilename(req.Filename)
	if !ok {
		return nil, services.ErrUnsupportedFileType
	}
	if int64(len(req.Content)) > s.cfg.MaxUploadBytes {
		return nil, services.ErrFileTooLarge
	}

	chunkCfg, err := s.resolveChunkConfig(req)
	if err != nil {
		return nil, err
	}

	doc := models.NewDocument(user.ID, req.Filename, req.ContentType, fileType,
		int64(len(req.Content)), chunkCfg.Size, chunkCfg.Overlap)
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, services.WrapInternal("failed to create document record", err)
	}

	if err := s.process(ctx, doc, req.Content, chunkCfg); err != nil {
		s.markFailed(ctx, doc, err)
		return nil, err
	}

	s.logger.Info("document ingested",
		zap.String("document_id", doc.ID.String()),
		zap.String("filename", doc.Filename),
		zap.String("file_type", string(doc.FileType)),
		zap.Int("chunks", doc.ChunkCount),
		zap.String("user_id", user.ID.String()),
	)
	return doc, nil
}

// process runs extraction through persistence and marks the document
// completed. The caller owns failure bookkeeping.
func (s *Service) process(ctx context.Context, doc *models.Document, content []byte, chunkCfg ChunkConfig) error {
	raw, err := extractText(content, doc.FileType)
	if err != nil {
		return services.NewDomainError(services.ErrorTypeValidation,
			fmt.Sprintf("failed to extract text from %s", doc.Filename), err)
	}

	cleaned := cleanText(raw)
	if cleaned == "" {
		return services.ErrEmptyDocument
	}

	pieces := splitChunks(cleaned, chunkCfg)

	vectors, err := s.embedder.EmbedDocuments(ctx, pieces)
	if err != nil {
		return services.WrapExternal("failed to embed document chunks", err)
	}

	chunks := make([]*models.DocumentChunk, len(pieces))
	for i, piece := range pieces {
		chunk := models.NewDocumentChunk(doc, i, piece, nil)
		chunk.Embedding = vectors[i]
		chunks[i] = chunk
	}

	if err := s.chunks.InsertBatch(ctx, chunks); err != nil {
		return services.WrapInternal("failed to store document chunks", err)
	}

	doc.MarkAsCompleted(len(chunks), &models.DocumentMetadata{
		OriginalTextLength:  utf8.RuneCountInString(raw),
		CleanedTextLength:   utf8.RuneCountInString(cleaned),
		ProcessingTimestamp: time.Now().UTC(),
	})
	if err := s.documents.Update(ctx, doc); err != nil {
		return services.WrapInternal("failed to finalize document", err)
	}
	return nil
}

func (s *Service) markFailed(ctx context.Context, doc *models.Document, cause error) {
	doc.MarkAsFailed(cause.Error())
	if err := s.documents.Update(ctx, doc); err != nil {
		s.logger.Error("failed to record document failure",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) resolveChunkConfig(req *UploadRequest) (ChunkConfig, error) {
	cfg := ChunkConfig{Size: s.cfg.ChunkSize, Overlap: s.cfg.ChunkOverlap}
	if req.ChunkSize != nil {
		cfg.Size = *req.ChunkSize
	}
	if req.ChunkOverlap != nil {
		cfg.Overlap = *req.ChunkOverlap
	}
	if err := cfg.Validate(); err != nil {
		return ChunkConfig{}, err
	}
	return cfg, nil
}

// List returns the user's documents, newest first
func (s *Service) List(ctx context.Context, user *models.User, limit, offset int) ([]*models.Document, error) {
	docs, err := s.documents.GetByOwner(ctx, user.ID, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list documents", err)
	}
	return docs, nil
}

// Get loads a single document. Only the owner may read it.
func (s *Service) Get(ctx context.Context, user *models.User, id uuid.UUID) (*models.Document, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrDocumentNotFound
		}
		return nil, services.WrapInternal("failed to load document", err)
	}
	if doc.OwnerID != user.ID {
		return nil, services.ErrNotOwner
	}
	return doc, nil
}

// Delete removes a document and its chunks in one transaction. Chunks go
// first so the vector store never holds entries for a missing document.
func (s *Service) Delete(ctx context.Context, user *models.User, id uuid.UUID) error {
	doc, err := s.Get(ctx, user, id)
	if err != nil {
		return err
	}

	err = s.txm.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		if err := s.chunks.WithTx(tx).DeleteByDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete document chunks: %w", err)
		}
		if err := s.documents.WithTx(tx).Delete(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete document record: %w", err)
		}
		return nil
	})
	if err != nil {
		return services.WrapInternal("failed to delete document", err)
	}

	s.logger.Info("document deleted",
		zap.String("document_id", doc.ID.String()),
		zap.String("user_id", user.ID.String()),
	)
	return nil
}
