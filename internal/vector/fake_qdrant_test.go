package vector

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newFakeQdrant serves the subset of the Qdrant REST API used by QdrantStore,
// backed by a MemoryStore. Requests without the expected api-key are rejected.
func newFakeQdrant(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	var backing *MemoryStore
	mux := http.NewServeMux()

	reply := func(w http.ResponseWriter, status int, result any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
	}
	notFound := func(w http.ResponseWriter) {
		reply(w, http.StatusNotFound, nil)
	}
	store := func(r *http.Request) *MemoryStore {
		if backing == nil || backing.Collection() != r.PathValue("name") {
			return nil
		}
		if info, _ := backing.Info(r.Context()); !info.Exists {
			return nil
		}
		return backing
	}

	mux.HandleFunc("GET /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		s := store(r)
		if s == nil {
			notFound(w)
			return
		}
		info, _ := s.Info(r.Context())
		reply(w, http.StatusOK, map[string]any{
			"status":       "green",
			"points_count": info.Points,
			"config": map[string]any{"params": map[string]any{
				"vectors": map[string]any{"size": info.VectorSize, "distance": "Cosine"},
			}},
		})
	})
	mux.HandleFunc("PUT /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		backing = NewMemoryStore(r.PathValue("name"))
		if err := backing.EnsureCollection(r.Context(), body.Vectors.Size); err != nil {
			reply(w, http.StatusBadRequest, err.Error())
			return
		}
		reply(w, http.StatusOK, true)
	})
	mux.HandleFunc("PUT /collections/{name}/points", func(w http.ResponseWriter, r *http.Request) {
		s := store(r)
		if s == nil {
			notFound(w)
			return
		}
		var body struct {
			Points []struct {
				ID      string         `json:"id"`
				Vector  []float32      `json:"vector"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		points := make([]Point, 0, len(body.Points))
		for _, p := range body.Points {
			points = append(points, Point{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
		}
		if err := s.Upsert(r.Context(), points); err != nil {
			reply(w, http.StatusBadRequest, err.Error())
			return
		}
		reply(w, http.StatusOK, map[string]any{"status": "completed"})
	})
	mux.HandleFunc("POST /collections/{name}/points/search", func(w http.ResponseWriter, r *http.Request) {
		s := store(r)
		if s == nil {
			notFound(w)
			return
		}
		var body struct {
			Vector         []float32 `json:"vector"`
			Limit          int       `json:"limit"`
			WithVector     bool      `json:"with_vector"`
			ScoreThreshold float64   `json:"score_threshold"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		hits, err := s.Search(r.Context(), SearchRequest{
			Vector: body.Vector, Limit: body.Limit, WithVectors: body.WithVector, ScoreThreshold: body.ScoreThreshold,
		})
		if err != nil {
			reply(w, http.StatusBadRequest, err.Error())
			return
		}
		out := make([]map[string]any, 0, len(hits))
		for _, h := range hits {
			p := map[string]any{"id": h.ID, "score": h.Score, "payload": h.Payload}
			if h.Vector != nil {
				p["vector"] = h.Vector
			}
			out = append(out, p)
		}
		reply(w, http.StatusOK, out)
	})
	mux.HandleFunc("POST /collections/{name}/points/scroll", func(w http.ResponseWriter, r *http.Request) {
		s := store(r)
		if s == nil {
			notFound(w)
			return
		}
		var body struct {
			Limit  int    `json:"limit"`
			Offset string `json:"offset"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		page, err := s.Scroll(r.Context(), Cursor(body.Offset), body.Limit)
		if err != nil {
			reply(w, http.StatusBadRequest, err.Error())
			return
		}
		points := make([]map[string]any, 0, len(page.Points))
		for _, p := range page.Points {
			points = append(points, map[string]any{"id": p.ID, "payload": p.Payload})
		}
		var next any
		if page.Next != "" {
			next = string(page.Next)
		}
		reply(w, http.StatusOK, map[string]any{"points": points, "next_page_offset": next})
	})

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != apiKey {
			reply(w, http.StatusForbidden, errors.New("bad api key").Error())
			return
		}
		mux.ServeHTTP(w, r)
	}))
}
