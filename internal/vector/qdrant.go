package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const qdrantUpsertBatch = 256

// QdrantConfig connects a QdrantStore.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantStore is a minimal REST client for one Qdrant collection.
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
	logger     *zap.Logger
}

// QdrantOption configures a QdrantStore.
type QdrantOption func(*QdrantStore)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) QdrantOption {
	return func(s *QdrantStore) {
		if c != nil {
			s.client = c
		}
	}
}

// WithQdrantLogger sets the logger.
func WithQdrantLogger(l *zap.Logger) QdrantOption {
	return func(s *QdrantStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewQdrantStore returns a client for cfg.Collection at cfg.URL.
func NewQdrantStore(cfg QdrantConfig, opts ...QdrantOption) *QdrantStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s := &QdrantStore{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collection returns the collection name.
func (s *QdrantStore) Collection() string {
	return s.collection
}

type qdrantCollection struct {
	Status      string `json:"status"`
	PointsCount int    `json:"points_count"`
	Config      struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type qdrantPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
	Vector  []float32       `json:"vector"`
}

func (s *QdrantStore) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(s.collection) + suffix
}

func (s *QdrantStore) getCollection(ctx context.Context) (*qdrantCollection, error) {
	var out qdrantCollection
	if err := s.do(ctx, http.MethodGet, s.collectionPath(""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EnsureCollection creates the collection with cosine distance unless it already exists
// with the same vector size.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	existing, err := s.getCollection(ctx)
	if err == nil {
		if size := existing.Config.Params.Vectors.Size; size != 0 && size != dimensions {
			return fmt.Errorf("%w: collection %q has size %d, got %d", ErrDimensionMismatch, s.collection, size, dimensions)
		}
		return nil
	}
	if !isNotFound(err) {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionPath(""), body, nil); err != nil {
		return fmt.Errorf("failed to create collection %q: %w", s.collection, err)
	}
	s.logger.Info("created collection", zap.String("collection", s.collection), zap.Int("dimensions", dimensions))
	return nil
}

// Upsert writes points in batches and waits for each batch to be applied.
func (s *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	for i := 0; i < len(points); i += qdrantUpsertBatch {
		end := i + qdrantUpsertBatch
		if end > len(points) {
			end = len(points)
		}
		batch := make([]map[string]any, 0, end-i)
		for _, p := range points[i:end] {
			batch = append(batch, map[string]any{
				"id":      p.ID,
				"vector":  p.Vector,
				"payload": p.Payload,
			})
		}
		if err := s.do(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": batch}, nil); err != nil {
			return fmt.Errorf("failed to upsert points: %w", err)
		}
	}
	return nil
}

// Search queries the collection by vector.
func (s *QdrantStore) Search(ctx context.Context, req SearchRequest) ([]ScoredPoint, error) {
	if req.Limit <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector":       req.Vector,
		"limit":        req.Limit,
		"with_payload": true,
		"with_vector":  req.WithVectors,
	}
	if req.ScoreThreshold != 0 {
		body["score_threshold"] = req.ScoreThreshold
	}
	var out []qdrantPoint
	if err := s.do(ctx, http.MethodPost, s.collectionPath("/points/search"), body, &out); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	hits := make([]ScoredPoint, 0, len(out))
	for _, p := range out {
		hits = append(hits, ScoredPoint{
			ID:      pointID(p.ID),
			Score:   p.Score,
			Payload: p.Payload,
			Vector:  p.Vector,
		})
	}
	return hits, nil
}

// Scroll pages through the collection. The cursor carries Qdrant's next_page_offset verbatim.
func (s *QdrantStore) Scroll(ctx context.Context, cursor Cursor, limit int) (*Page, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if cursor != "" {
		body["offset"] = json.RawMessage(cursor)
	}
	var out struct {
		Points         []qdrantPoint   `json:"points"`
		NextPageOffset json.RawMessage `json:"next_page_offset"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath("/points/scroll"), body, &out); err != nil {
		return nil, fmt.Errorf("scroll failed: %w", err)
	}
	page := &Page{Points: make([]Point, 0, len(out.Points))}
	for _, p := range out.Points {
		page.Points = append(page.Points, Point{ID: pointID(p.ID), Payload: p.Payload})
	}
	if next := bytes.TrimSpace(out.NextPageOffset); len(next) > 0 && string(next) != "null" {
		page.Next = Cursor(next)
	}
	return page, nil
}

// Info describes the collection; a missing collection is reported with Exists false.
func (s *QdrantStore) Info(ctx context.Context) (*CollectionInfo, error) {
	info := &CollectionInfo{Name: s.collection}
	c, err := s.getCollection(ctx)
	if isNotFound(err) {
		return info, nil
	}
	if err != nil {
		return nil, err
	}
	info.Exists = true
	info.Points = c.PointsCount
	info.VectorSize = c.Config.Params.Vectors.Size
	info.Distance = c.Config.Params.Vectors.Distance
	return info, nil
}

// Close releases idle connections.
func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do sends a JSON request and decodes the "result" field of the response into out.
func (s *QdrantStore) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// pointID renders a Qdrant id (UUID string or unsigned integer) as a string.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrCollectionNotFound)
}
