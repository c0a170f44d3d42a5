package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/lumi/internal/models"
	"github.com/hyperjump/lumi/internal/storage"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondChatError(w, &req, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("chat request", zap.String("session_id", req.SessionID))
	res, err := s.executor.SubmitTurn(r.Context(), req.SessionID, req.Message)
	if err != nil {
		status := statusFor(err)
		s.logger.Error("chat failed", zap.String("session_id", req.SessionID), zap.Int("status", status), zap.Error(err))
		s.respondChatError(w, &req, status, err.Error())
		return
	}
	s.logger.Debug("chat answered",
		zap.String("session_id", res.SessionID),
		zap.Bool("tool_used", res.ToolUsed),
		zap.Bool("fallback", res.Fallback),
		zap.Bool("degraded", res.Degraded),
	)
	answer := res.Answer
	s.respondJSON(w, http.StatusOK, &models.ChatResponse{
		SessionID: res.SessionID,
		Message:   req.Message,
		Response:  &answer,
	})
}

func (s *Server) respondChatError(w http.ResponseWriter, req *models.ChatRequest, status int, message string) {
	s.respondJSON(w, status, &models.ChatResponse{
		SessionID: req.SessionID,
		Message:   req.Message,
		Error:     &message,
	})
}

func (s *Server) handleSessionTurns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns, err := s.executor.History(r.Context(), id)
	if err != nil {
		s.logger.Error("read history failed", zap.String("session_id", id), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"session_id": id, "turns": turns})
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("reset session request", zap.String("session_id", id))
	if err := s.executor.Reset(r.Context(), id); err != nil {
		s.logger.Error("reset failed", zap.String("session_id", id), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "reset"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query))
	res, err := s.retriever.Query(r.Context(), query.Query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	if s.spell != nil {
		if c, err := s.spell.Check(query.Query); err != nil {
			s.logger.Warn("spell check failed", zap.Error(err))
		} else if c.Changed() {
			res.SuggestedQuery = c.Corrected
		}
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents": docCount,
	}
	if s.vectorIndex != nil {
		if size, err := s.vectorIndex.Size(ctx); err == nil {
			resp["vector_index_size"] = size
		} else {
			s.logger.Warn("status: vector index size failed", zap.Error(err))
		}
	}

	if s.config != nil {
		cfg := s.config
		resp["config"] = map[string]interface{}{
			"vector_backend":    cfg.Storage.VectorBackend,
			"history_backend":   cfg.History.Backend,
			"embedding_model":   cfg.Embedding.Model,
			"llm_model":         cfg.LLM.Model,
			"fallback_mode":     cfg.Agent.FallbackMode,
			"per_source_top_k":  cfg.Retrieval.PerSourceTopK,
			"top_k":             cfg.Retrieval.TopK,
			"lexical_weight":    cfg.Retrieval.LexicalWeight,
			"vector_weight":     cfg.Retrieval.VectorWeight,
			"query_timeout":     cfg.Retrieval.QueryTimeout.String(),
			"database_path":     cfg.Storage.DatabasePath,
			"bleve_index_path":  cfg.Storage.BleveIndexPath,
			"vector_index_path": cfg.Storage.VectorIndexPath,
		}
		usage, total, err := storage.DiskUsage(map[string]string{
			"database":     cfg.Storage.DatabasePath,
			"bleve_index":  cfg.Storage.BleveIndexPath,
			"vector_index": cfg.Storage.VectorIndexPath,
		})
		if err == nil {
			resp["disk_usage_bytes"] = total
			resp["disk_usage"] = usage
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrStoreUnavailable),
		errors.Is(err, models.ErrRetrievalUnavailable),
		errors.Is(err, models.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrAgentFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// nginx's "client closed request"
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
