package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/models"
)

// StatsUnavailable is returned for statistics questions when the scan fails.
const StatsUnavailable = "No puedo acceder a las estadísticas (faltan credenciales de Qdrant)."

// statsKeywords are matched as lower-case substrings of the question.
var statsKeywords = []string{
	"cuantos archivos", "cuántos archivos", "cuantos documentos", "cuántos documentos",
	"lista de fuentes", "listar fuentes", "cuantos chunks", "cuántos chunks",
	"how many files", "how many documents", "list sources", "how many chunks",
}

// StatsSource computes corpus statistics.
type StatsSource interface {
	Scan(ctx context.Context) *models.CorpusStats
}

// Answerer answers a question from retrieved context.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Router answers statistics questions by direct aggregation and delegates
// everything else to the answerer.
type Router struct {
	stats  StatsSource
	chain  Answerer
	logger *zap.Logger
}

// NewRouter creates a router.
func NewRouter(stats StatsSource, chain Answerer, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{stats: stats, chain: chain, logger: logger}
}

// IsStatsQuestion reports whether question asks for file, document, or chunk counts
// or a source listing.
func IsStatsQuestion(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, k := range statsKeywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return false
}

// Route answers question.
func (r *Router) Route(ctx context.Context, question string) (string, error) {
	if IsStatsQuestion(question) {
		r.logger.Debug("routing to corpus statistics")
		return FormatStats(r.stats.Scan(ctx)), nil
	}
	return r.chain.Answer(ctx, question)
}

// FormatStats renders stats as plain text lines, or StatsUnavailable when the scan failed.
func FormatStats(s *models.CorpusStats) string {
	if s == nil || s.Error != "" {
		return StatsUnavailable
	}
	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	byType := make([]string, len(types))
	for i, t := range types {
		byType[i] = fmt.Sprintf("%s: %d", t, s.ByType[t])
	}

	lines := []string{
		fmt.Sprintf("Total de archivos: %d", s.TotalFiles),
		fmt.Sprintf("Total de chunks: %d", s.TotalChunks),
		"Por tipo: " + strings.Join(byType, ", "),
	}
	if len(s.Samples) > 0 {
		lines = append(lines, "Ejemplos de archivos: "+strings.Join(s.Samples, ", "))
	}
	return strings.Join(lines, "\n")
}
