package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/extract"
	"docqa/internal/generate"
	"docqa/internal/pipeline"
	"docqa/pkg/utils"
)

// maxUploadBytes caps the size of an uploaded document.
const maxUploadBytes = 64 << 20

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !extract.Supported(ext) {
		s.respondError(w, http.StatusUnprocessableEntity, "unsupported document type "+ext)
		return
	}

	// Stage the upload on disk so extraction sees a regular file.
	tmp, err := os.CreateTemp("", "docqa-upload-*"+ext)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := tmp.Close(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Debug("upload request", zap.String("filename", header.Filename), zap.Int64("bytes", header.Size))
	n, err := s.pipeline.IndexDocument(r.Context(), tmpPath)
	if err != nil {
		if errors.Is(err, extract.ErrUnreadable) {
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("indexing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"filename": header.Filename,
		"chunks":   n,
		"status":   "indexed",
	})
}

type queryRequest struct {
	Question    string  `json:"question"`
	TopK        int     `json:"top_k,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	var opts []pipeline.QueryOption
	if req.TopK > 0 {
		opts = append(opts, pipeline.WithTopK(req.TopK))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, pipeline.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, pipeline.WithTemperature(req.Temperature))
	}

	s.logger.Debug("query request", zap.String("question", utils.Truncate(req.Question, 200)))
	result, err := s.pipeline.Query(r.Context(), req.Question, opts...)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrEmptyIndex):
			s.respondError(w, http.StatusConflict, "no documents indexed yet")
		case errors.Is(err, generate.ErrUnavailable):
			s.logger.Error("generation failed", zap.Error(err))
			s.respondError(w, http.StatusBadGateway, err.Error())
		default:
			s.logger.Error("query failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Clear(r.Context()); err != nil {
		s.logger.Error("clear failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count := s.pipeline.Count()
	resp := map[string]interface{}{
		"chunks":     count,
		"dimensions": s.pipeline.Dimensions(),
		"ready":      count > 0,
		"config": map[string]interface{}{
			"chunk_size":  s.config.Retrieval.ChunkSize,
			"top_k":       s.config.Retrieval.TopK,
			"provider":    s.config.Embedding.Provider,
			"chunks_path": s.config.Storage.ChunksPath,
			"index_path":  s.config.Storage.IndexPath,
		},
	}
	if diskBytes, err := utils.DiskUsageBytes(s.config.Storage.ChunksPath, s.config.Storage.IndexPath); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
