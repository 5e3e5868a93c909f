package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/curator/internal/ingest"
	"github.com/hyperjump/curator/internal/keyword"
	"github.com/hyperjump/curator/internal/models"
	"github.com/hyperjump/curator/internal/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type searchResponse struct {
	Query   string                    `json:"query"`
	By      models.SearchKind         `json:"by,omitempty"`
	Count   int                       `json:"count"`
	Results []*models.RetrievalResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Retrieval.DefaultTopK, s.config.Retrieval.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.String("by", string(req.By)), zap.Int("top_k", req.TopK))
	results := s.engine.Do(r.Context(), &req)
	s.respondJSON(w, http.StatusOK, searchResponse{Query: req.Query, By: req.By, Count: len(results), Results: results})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Retrieval.DefaultTopK, s.config.Retrieval.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	text := s.engine.Retrieve(r.Context(), req.Query, req.TopK)
	s.respondJSON(w, http.StatusOK, map[string]string{"query": req.Query, "context": text})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	stats, err := s.engine.Statistics(r.Context(), refresh)
	if err != nil {
		s.logger.Error("statistics failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// The run continues if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	report, err := s.pipeline.Run(ctx, s.config.Data.Dir)
	switch {
	case errors.Is(err, ingest.ErrRunInProgress):
		s.respondError(w, http.StatusConflict, err.Error())
	case err != nil && report == nil:
		s.logger.Error("ingestion failed to start", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	case err != nil:
		s.respondJSON(w, http.StatusInternalServerError, report)
	default:
		s.respondJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultPageSize)
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	items, err := s.storage.ListItems(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list items failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []*models.Item{}
	}
	total, err := s.storage.CountItems(r.Context())
	if err != nil {
		s.logger.Error("count items failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.storage.GetItem(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleSearchItems(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.respondError(w, http.StatusNotImplemented, "item index not enabled")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	fuzzy, _ := strconv.ParseBool(r.URL.Query().Get("fuzzy"))
	limit := queryInt(r, "limit", 10)
	hits, err := s.index.Search(r.Context(), q, limit, &keyword.SearchOptions{FuzzyEnabled: fuzzy})
	if err != nil {
		s.logger.Error("item search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if hits == nil {
		hits = []*keyword.ItemHit{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": q, "hits": hits})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.storage.ListRuns(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.IngestReport{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info := s.engine.CollectionInfo(ctx)
	itemCount, err := s.storage.CountItems(ctx)
	if err != nil {
		s.logger.Error("status: count items failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"collection": info,
		"items":      itemCount,
	}
	if runs, err := s.storage.ListRuns(ctx, 1); err == nil && len(runs) > 0 {
		resp["last_run"] = runs[0]
	}

	cfg := s.config
	resp["config"] = map[string]interface{}{
		"data_dir":           cfg.Data.Dir,
		"vector_backend":     cfg.Vector.Backend,
		"embedding_provider": cfg.Embedding.Provider,
		"database_path":      cfg.Storage.DatabasePath,
		"bleve_index_path":   cfg.Storage.BleveIndexPath,
		"watch_enabled":      cfg.Watch.Enabled,
	}
	usage, err := storage.MeasureDiskUsage(map[string]string{
		"database":    cfg.Storage.DatabasePath,
		"item_index":  cfg.Storage.BleveIndexPath,
		"vector_data": cfg.Vector.SnapshotPath,
	})
	if err == nil {
		resp["disk_usage"] = usage
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
