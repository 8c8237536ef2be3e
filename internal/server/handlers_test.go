package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/indexer"
	"github.com/hyperjump/kiku/internal/llm"
	"github.com/hyperjump/kiku/internal/search"
	"github.com/hyperjump/kiku/internal/stats"
	"github.com/hyperjump/kiku/internal/storage"
	"github.com/hyperjump/kiku/internal/vector"
)

type testEnv struct {
	handler   http.Handler
	store     *vector.MemoryStore
	provider  *llm.MockProvider
	ledger    *storage.SQLiteLedger
	uploadDir string
}

func newTestEnv(t *testing.T, storeCfg config.StoreConfig) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store = storeCfg
	cfg.Server.UploadDir = filepath.Join(t.TempDir(), "uploads")

	var store *vector.MemoryStore
	var vs vector.Store
	if storeCfg.Validate() == nil {
		store = vector.NewMemoryStore(storeCfg.Collection)
		vs = store
	}
	ledger, err := storage.NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	embedder := embedding.NewMockEmbedder(64)
	idx := indexer.NewIndexer(cfg.Store, vs, embedder, nil, indexer.WithLedger(ledger))
	scanner := stats.NewScanner(cfg.Store, vs, 0, nil)
	provider := &llm.MockProvider{Reply: "Kiku answers from documents [a.txt, page 0]."}
	var engine search.Retriever = search.NewEngine(vs, embedder, cfg.Retrieval)
	chain := search.NewChain(engine, provider, cfg.Retrieval, nil)
	router := search.NewRouter(scanner, chain, nil)

	srv := NewServer(Deps{Ingestion: idx, Asker: router, Stats: scanner, Ledger: ledger}, &cfg.Server, zap.NewNop())
	return &testEnv{handler: srv.Handler(), store: store, provider: provider, ledger: ledger, uploadDir: cfg.Server.UploadDir}
}

var memoryCfg = config.StoreConfig{Type: config.StoreMemory, Collection: "kb"}

func uploadRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/ingest/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

const sampleText = "Kiku ingests documents into a vector store.\n\nIt answers questions with citations."

func TestHandleUpload_Success(t *testing.T) {
	env := newTestEnv(t, memoryCfg)

	rec, body := serve(env.handler, uploadRequest(t, "a.txt", sampleText, map[string]string{
		"chunker_type": "recursive", "chunk_size": "500", "chunk_overlap": "50",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Documento ingerido exitosamente", body["message"])
	assert.Equal(t, "a.txt", body["filename"])
	st := body["stats"].(map[string]any)
	assert.Equal(t, true, st["success"])
	assert.Positive(t, st["documents_processed"])
	first := env.store.Size()
	assert.Positive(t, first)

	_, err := os.Stat(filepath.Join(env.uploadDir, "a.txt"))
	assert.NoError(t, err, "upload kept under a stable path")

	// Re-uploading the same file overwrites the same points.
	rec, _ = serve(env.handler, uploadRequest(t, "a.txt", sampleText, map[string]string{"chunk_size": "500", "chunk_overlap": "50"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, env.store.Size())

	rec, body = serve(env.handler, httptest.NewRequest(http.MethodGet, "/ingest/orphans?source="+filepath.Join(env.uploadDir, "a.txt"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	sources := body["sources"].([]any)
	require.Len(t, sources, 1)
	assert.Empty(t, sources[0].(map[string]any)["orphans"])
}

func TestHandleUpload_ValidationBeforeWrite(t *testing.T) {
	env := newTestEnv(t, memoryCfg)

	tests := []struct {
		name     string
		filename string
		fields   map[string]string
		want     string
	}{
		{"overlap above size", "a.pdf", map[string]string{"chunk_size": "150", "chunk_overlap": "200"}, "chunk_overlap"},
		{"size out of range", "a.pdf", map[string]string{"chunk_size": "50"}, "chunk_size"},
		{"unknown chunker", "a.pdf", map[string]string{"chunker_type": "fixed"}, "chunker_type"},
		{"non-numeric size", "a.pdf", map[string]string{"chunk_size": "big"}, "integer"},
		{"unsupported extension", "sheet.xlsx", nil, "unsupported file type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(env.handler, uploadRequest(t, tt.filename, "%PDF-1.4", tt.fields))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, body["error"], tt.want)
		})
	}
	_, err := os.Stat(env.uploadDir)
	assert.True(t, os.IsNotExist(err), "nothing written for rejected uploads")

	rec, body := serve(env.handler, uploadRequest(t, "", "", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file is required", body["error"])
}

func TestHandleUpload_MissingStoreConfig(t *testing.T) {
	env := newTestEnv(t, config.StoreConfig{Type: config.StoreQdrant, Collection: "kb"})

	rec, body := serve(env.handler, uploadRequest(t, "a.txt", sampleText, nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["error"], "Error en ingesta")
	assert.Contains(t, body["error"], "QDRANT_URL")
	_, err := os.Stat(env.uploadDir)
	assert.True(t, os.IsNotExist(err))
}

func TestHandleUpload_NoChunks(t *testing.T) {
	env := newTestEnv(t, memoryCfg)
	rec, body := serve(env.handler, uploadRequest(t, "empty.txt", "   \n ", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "No se pudieron procesar chunks del documento", body["error"])
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, memoryCfg)
	rec, _ := serve(env.handler, uploadRequest(t, "a.txt", sampleText, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := serve(env.handler, httptest.NewRequest(http.MethodGet, "/ingest/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	st := body["collection_stats"].(map[string]any)
	assert.Equal(t, float64(1), st["total_files"])
	assert.Equal(t, []any{"a.txt"}, st["samples"])
}

func TestHandleInvoke(t *testing.T) {
	env := newTestEnv(t, memoryCfg)
	rec, _ := serve(env.handler, uploadRequest(t, "a.txt", sampleText, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := serve(env.handler, jsonRequest(http.MethodPost, "/rag/invoke", `{"input":{"question":"¿Cuántos archivos hay?"}}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["output"], "Total de archivos: 1")
	assert.Empty(t, env.provider.Requests(), "statistics bypass the model")

	rec, body = serve(env.handler, jsonRequest(http.MethodPost, "/rag/invoke", `{"input":"What does kiku do?"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Kiku answers from documents [a.txt, page 0].", body["output"])
	assert.Len(t, env.provider.Requests(), 1)

	rec, body = serve(env.handler, jsonRequest(http.MethodPost, "/rag/invoke", `{"input":{}}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "question is required", body["error"])
}

func TestHandleAsk(t *testing.T) {
	env := newTestEnv(t, memoryCfg)

	rec, body := serve(env.handler, jsonRequest(http.MethodPost, "/api/v1/ask", `{"question":"What does kiku do?"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.DefaultAbstention, body["answer"], "empty collection abstains")

	rec, _ = serve(env.handler, jsonRequest(http.MethodPost, "/api/v1/ask", `not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAsk_MissingStore(t *testing.T) {
	env := newTestEnv(t, config.StoreConfig{Type: config.StoreQdrant})
	rec, _ := serve(env.handler, jsonRequest(http.MethodPost, "/api/v1/ask", `{"question":"What does kiku do?"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, body := serve(env.handler, jsonRequest(http.MethodPost, "/api/v1/ask", `{"question":"how many files"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, search.StatsUnavailable, body["answer"])
}

func TestHandleHistoryAndOrphans(t *testing.T) {
	env := newTestEnv(t, memoryCfg)
	rec, _ := serve(env.handler, uploadRequest(t, "a.txt", sampleText, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := serve(env.handler, httptest.NewRequest(http.MethodGet, "/ingest/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["ingestions"], 1)

	rec, _ = serve(env.handler, httptest.NewRequest(http.MethodGet, "/ingest/history?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = serve(env.handler, httptest.NewRequest(http.MethodGet, "/ingest/orphans", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["sources"], 1)

	srv := NewServer(Deps{}, &config.ServerConfig{}, nil)
	rec, _ = serve(srv.Handler(), httptest.NewRequest(http.MethodGet, "/ingest/orphans", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer(Deps{}, &config.ServerConfig{}, nil)
	rec, body := serve(srv.Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestStop_NotStarted(t *testing.T) {
	srv := NewServer(Deps{}, &config.ServerConfig{}, nil)
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestCORSPreflight(t *testing.T) {
	srv := NewServer(Deps{}, &config.ServerConfig{CORSOrigins: []string{"http://localhost:*"}}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ask", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/ask", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
