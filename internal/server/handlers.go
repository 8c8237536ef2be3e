package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
)

const (
	msgIngested      = "Documento ingerido exitosamente"
	msgNoChunks      = "No se pudieron procesar chunks del documento"
	msgIngestFailure = "Error en ingesta: "
)

type uploadResponse struct {
	Message  string               `json:"message"`
	Filename string               `json:"filename"`
	Stats    *models.IngestResult `json:"stats"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.config.MaxUploadMB) << 20
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	params, err := parseChunkParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	filename := filepath.Base(header.Filename)
	if err := s.deps.Ingestion.Check(filename, &params); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidParams), errors.Is(err, models.ErrUnsupportedExtension):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("ingestion precondition failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, msgIngestFailure+err.Error())
		}
		return
	}

	path, cleanup, err := s.saveUpload(filename, file)
	if err != nil {
		s.logger.Error("saving upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, msgIngestFailure+err.Error())
		return
	}
	defer cleanup()
	s.logger.Debug("upload saved", zap.String("filename", filename), zap.String("path", path),
		zap.String("chunker_type", string(params.ChunkerType)), zap.Int("chunk_size", params.ChunkSize),
		zap.Int("chunk_overlap", params.ChunkOverlap))

	chunks, err := s.deps.Ingestion.ProcessFile(r.Context(), path, params)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, msgNoChunks)
		return
	}
	result, err := s.deps.Ingestion.Ingest(r.Context(), chunks)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, msgIngestFailure+err.Error())
		return
	}
	if !result.Success {
		s.respondError(w, http.StatusInternalServerError, msgIngestFailure+result.Error)
		return
	}
	s.respondJSON(w, http.StatusOK, uploadResponse{Message: msgIngested, Filename: header.Filename, Stats: result})
}

// parseChunkParams reads the optional chunking form fields, applying defaults.
func parseChunkParams(r *http.Request) (models.ChunkParams, error) {
	params := models.DefaultChunkParams()
	if v := strings.TrimSpace(r.FormValue("chunker_type")); v != "" {
		params.ChunkerType = models.ChunkerType(strings.ToLower(v))
	}
	for field, dst := range map[string]*int{
		"chunk_size":    &params.ChunkSize,
		"chunk_overlap": &params.ChunkOverlap,
	} {
		v := strings.TrimSpace(r.FormValue(field))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidParams, field)
		}
		*dst = n
	}
	return params, nil
}

// saveUpload writes the upload under the upload directory with its base name, so
// re-uploads keep the same source path, or to a temp file removed by cleanup.
func (s *Server) saveUpload(filename string, src io.Reader) (string, func(), error) {
	var (
		f   *os.File
		err error
	)
	cleanup := func() {}
	if dir := s.config.UploadDir; dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", nil, err
		}
		f, err = os.Create(filepath.Join(dir, filename))
	} else {
		f, err = os.CreateTemp("", "kiku-*"+strings.ToLower(filepath.Ext(filename)))
		if err == nil {
			name := f.Name()
			cleanup = func() { _ = os.Remove(name) }
		}
	}
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Stats.Scan(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "collection_stats": stats})
}

type invokeRequest struct {
	Input json.RawMessage `json:"input"`
}

// question accepts {"question": "..."} or a bare string as input.
func (req invokeRequest) question() string {
	var obj struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(req.Input, &obj); err == nil {
		return obj.Question
	}
	var s string
	if err := json.Unmarshal(req.Input, &s); err == nil {
		return s
	}
	return ""
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	answer, ok := s.ask(w, r, req.question())
	if ok {
		s.respondJSON(w, http.StatusOK, map[string]string{"output": answer})
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	answer, ok := s.ask(w, r, req.Question)
	if ok {
		s.respondJSON(w, http.StatusOK, map[string]string{"answer": answer})
	}
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request, question string) (string, bool) {
	question = strings.TrimSpace(question)
	if question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return "", false
	}
	answer, err := s.deps.Asker.Route(r.Context(), question)
	if err != nil {
		s.logger.Error("answer failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrMissingStoreConfig) {
			status = http.StatusServiceUnavailable
		}
		s.respondError(w, status, err.Error())
		return "", false
	}
	return answer, true
}

type orphanReport struct {
	Source  string   `json:"source"`
	Orphans []string `json:"orphans"`
}

func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		s.respondError(w, http.StatusNotImplemented, "ledger not enabled")
		return
	}
	ctx := r.Context()
	sources := []string{}
	if src := r.URL.Query().Get("source"); src != "" {
		sources = append(sources, src)
	} else {
		all, err := s.deps.Ledger.Sources(ctx)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		sources = append(sources, all...)
	}
	reports := make([]orphanReport, 0, len(sources))
	for _, src := range sources {
		ids, err := s.deps.Ledger.Orphans(ctx, src)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ids == nil {
			ids = []string{}
		}
		reports = append(reports, orphanReport{Source: src, Orphans: ids})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"sources": reports})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		s.respondError(w, http.StatusNotImplemented, "ledger not enabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	recs, err := s.deps.Ledger.ListIngestions(r.Context(), r.URL.Query().Get("source"), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"ingestions": recs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
