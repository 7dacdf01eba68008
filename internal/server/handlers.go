package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"quoterag/internal/domain"
	"quoterag/internal/usecase"
)

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Topic            string `json:"topic" validate:"required"`
	IncludeNarrative *bool  `json:"include_narrative,omitempty"`
	TopK             int    `json:"top_k,omitempty" validate:"omitempty,gte=1,lte=50"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: code, Message: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	info := s.engine.Info()
	status := http.StatusOK
	if !info.Ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, info)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Info())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Request body must be a JSON object")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, string(domain.KindValidation), "topic is required and top_k must be between 1 and 50")
		return
	}

	opts := usecase.SearchOptions{IncludeNarrative: true, TopK: req.TopK}
	if req.IncludeNarrative != nil {
		opts.IncludeNarrative = *req.IncludeNarrative
	}

	result := s.engine.SearchWithOptions(r.Context(), req.Topic, opts)
	respondJSON(w, statusFor(result), result)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Reload(r.Context())
	if err != nil {
		s.logger.Warn("reload failed", zap.Error(err))
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"reloaded": false,
			"message":  err.Error(),
			"store":    info,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"reloaded": true, "store": info})
}

// statusFor maps a search outcome to an HTTP status.
func statusFor(result domain.SearchResult) int {
	serr, failed := result.Failed()
	if !failed {
		return http.StatusOK
	}
	switch serr.Kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotReady:
		return http.StatusServiceUnavailable
	case domain.KindEmbeddingProvider, domain.KindGenerationProvider:
		if serr.Retryable {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
