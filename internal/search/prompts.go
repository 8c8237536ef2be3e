package search

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kiku/internal/vector"
)

const contextSeparator = "\n\n---\n\n"

const systemPromptTemplate = "You are an expert RAG (Retrieval-Augmented Generation) assistant. " +
	"Your role is to answer questions based EXCLUSIVELY on the provided CONTEXT from the knowledge base. " +
	"You must follow these strict rules:\n\n" +
	"1. **ONLY use information from the CONTEXT** - Do not use external knowledge\n" +
	"2. **If insufficient information exists**, respond exactly: '%s'\n" +
	"3. **Always cite sources** - Include file_name and page number when available\n" +
	"4. **Be accurate and precise** - Don't make assumptions or inferences beyond the context\n" +
	"5. **Structure your response** - Use clear paragraphs and bullet points when appropriate\n" +
	"6. **Maintain objectivity** - Present information factually without bias\n\n" +
	"Your expertise is in analyzing and synthesizing information from the provided documents " +
	"to give accurate, well-referenced answers."

const userPromptTemplate = "Question: %s\n\n" +
	"CONTEXT (from knowledge base):\n%s\n\n" +
	"Instructions: Answer the question using ONLY the information in the context above. " +
	"If the context doesn't contain enough information, say so clearly. " +
	"Always cite your sources with file names and page numbers when available."

// SystemPrompt returns the system instructions with the abstention sentence embedded verbatim.
func SystemPrompt(abstention string) string {
	return fmt.Sprintf(systemPromptTemplate, abstention)
}

// UserPrompt returns the user message carrying the question and formatted context.
func UserPrompt(question, context string) string {
	return fmt.Sprintf(userPromptTemplate, question, context)
}

// FormatContext renders passages as citation-prefixed blocks separated by rules.
func FormatContext(passages []Passage) string {
	blocks := make([]string, len(passages))
	for i, p := range passages {
		blocks[i] = citation(p.Metadata) + "\n" + p.Content
	}
	return strings.Join(blocks, contextSeparator)
}

// citation returns "[source: X, page: N]", or "[source: X]" when the metadata has no page.
func citation(meta map[string]any) string {
	src := vector.String(meta, "file_name")
	if src == "" {
		src = vector.String(meta, "source")
	}
	if src == "" {
		src = "unknown"
	}
	page, ok := meta["page"]
	if !ok || page == nil {
		return fmt.Sprintf("[source: %s]", src)
	}
	if n, ok := vector.Int(meta, "page"); ok {
		return fmt.Sprintf("[source: %s, page: %d]", src, n)
	}
	return fmt.Sprintf("[source: %s, page: %v]", src, page)
}
